// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package pipeline

import (
	"context"
	"strconv"
	"time"

	"github.com/tomtom215/galleria/internal/apperr"
	"github.com/tomtom215/galleria/internal/ffmpeg"
	"github.com/tomtom215/galleria/internal/flush"
	"github.com/tomtom215/galleria/internal/logging"
	"github.com/tomtom215/galleria/internal/metrics"
	"github.com/tomtom215/galleria/internal/models"
	"github.com/tomtom215/galleria/internal/scheduler"
)

// staticGIFMaxDuration: GIFs that ffprobe reports at a single frame's worth
// of duration are stills mislabeled as video; they re-enter the image path.
const staticGIFMaxDuration = 0.2

// scheduleTranscode queues the Video stage for a pending record.
func (p *Pipeline) scheduleTranscode(id string) {
	p.cpu.ExecuteDetached(scheduler.TaskFunc("video", func(ctx context.Context) error {
		return p.transcode(ctx, id)
	}), scheduler.PriorityLow)
}

// transcode compresses a pending video into the 720p MP4 derivative and
// clears the pending flag. Runs detached: a failure leaves the record
// pending and is retried by an operator reindex.
func (p *Pipeline) transcode(ctx context.Context, id string) error {
	record, err := p.store.Get(id)
	if err != nil {
		return err
	}
	if record.Type != models.TypeVideo {
		return apperr.Newf(apperr.InvalidInput, "transcode target %s is %s", id[:8], record.Type)
	}
	media := record.Media()
	imported := p.layout.ImportedPath(id, media.Ext)

	info, err := ffmpeg.Probe(ctx, imported)
	if err != nil {
		return err
	}

	// Static GIFs routed through the video path are reclassified as images
	// and re-processed through the image path.
	if media.Ext == "gif" && info.Duration < staticGIFMaxDuration {
		return p.reclassifyAsImage(ctx, record)
	}

	start := time.Now()
	dst := p.layout.CompressedVideoPath(id)
	total := info.Duration
	err = ffmpeg.Transcode(ctx, imported, dst, func(outTimeUS int64) {
		if total > 0 {
			done := float64(outTimeUS) / 1e6 / total * 100
			logging.Trace().Str("hash", id[:8]).Int("percent", int(done)).
				Msg("transcode progress")
		}
	})
	if err != nil {
		return err
	}
	metrics.TranscodeDuration.Observe(time.Since(start).Seconds())

	record.Video.Duration = info.Duration
	record.Video.Exif.Set("duration", strconv.FormatFloat(info.Duration, 'f', -1, 64))
	record.Pending = false
	record.UpdateAt = time.Now().UnixMilli()
	p.flush.FlushDetached(flush.Insert(record))

	logging.Info().Str("hash", id[:8]).Dur("took", time.Since(start)).Msg("video compressed")
	return nil
}

// reclassifyAsImage rebuilds a mislabeled GIF record through the image
// index path, reusing the already-copied blob.
func (p *Pipeline) reclassifyAsImage(_ context.Context, record *models.Record) error {
	video := record.Video
	record.Type = models.TypeImage
	record.Video = nil
	record.Image = &models.ImageMetadata{MediaMetadata: video.MediaMetadata}
	record.Image.Exif = models.ExifVec{}

	imported := p.layout.ImportedPath(record.ID, record.Image.Ext)
	if err := p.indexImage(record, imported); err != nil {
		return err
	}
	record.Pending = false
	record.UpdateAt = time.Now().UnixMilli()
	p.flush.FlushDetached(flush.Insert(record))

	logging.Info().Str("hash", record.ID[:8]).Msg("static gif reclassified as image")
	return nil
}

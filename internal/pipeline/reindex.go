// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/tomtom215/galleria/internal/apperr"
	"github.com/tomtom215/galleria/internal/flush"
	"github.com/tomtom215/galleria/internal/logging"
	"github.com/tomtom215/galleria/internal/models"
	"github.com/tomtom215/galleria/internal/scheduler"
)

// Regenerate re-runs the Index stage (and, for videos with a missing
// derivative, the Video stage) over an existing record, reading the
// original from the imported blob. Tags, flags, description, albums, and
// aliases are preserved; EXIF, dimensions, hashes, and derivatives are
// recomputed.
func (p *Pipeline) Regenerate(ctx context.Context, id string) error {
	record, err := p.store.Get(id)
	if err != nil {
		return err
	}
	if !record.IsMedia() {
		return apperr.Newf(apperr.InvalidInput, "cannot regenerate %s record %s",
			record.Type, id[:8])
	}

	release, ok := p.guard.Acquire(id)
	if !ok {
		logging.Debug().Str("hash", id[:8]).Msg("regenerate skipped, pipeline in flight")
		return nil
	}
	defer release()

	imported := p.layout.ImportedPath(id, record.Media().Ext)
	if _, err := os.Stat(imported); err != nil {
		return apperr.Wrap(apperr.NotFound, "imported blob missing", err)
	}

	err = p.runStage(ctx, p.cpu, "index", scheduler.PriorityLow, func(ctx context.Context) error {
		return p.indexRecord(ctx, record)
	})
	if err != nil {
		return err
	}
	record.UpdateAt = time.Now().UnixMilli()

	if record.Type == models.TypeVideo {
		if _, err := os.Stat(p.layout.CompressedVideoPath(id)); err != nil {
			record.Pending = true
			p.flush.FlushDetached(flush.Insert(record))
			p.scheduleTranscode(id)
			return nil
		}
		record.Pending = false
	}
	p.flush.FlushDetached(flush.Insert(record))
	return nil
}

// RegenerateDetached queues a regeneration without waiting.
func (p *Pipeline) RegenerateDetached(id string) {
	p.io.ExecuteDetached(scheduler.TaskFunc("regenerate", func(ctx context.Context) error {
		return p.Regenerate(ctx, id)
	}), scheduler.PriorityLow)
}

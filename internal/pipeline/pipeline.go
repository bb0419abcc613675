// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

// Package pipeline ingests files into the content-addressed store.
//
// Stages run strictly in order per file and concurrently across files:
//
//	OpenFile → Hash → Deduplicate → Copy → Index → (Video)
//
// CPU-heavy stages (Hash, Index, Video) run on the CPU actor; I/O stages on
// the I/O actor. Copy additionally holds a global one-slot semaphore so only
// one bulk file copy touches the disk at a time. A per-stage failure aborts
// that file only: the source stays on disk and any already-inserted record
// keeps pending=true.
package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/galleria/internal/apperr"
	"github.com/tomtom215/galleria/internal/database"
	"github.com/tomtom215/galleria/internal/flush"
	"github.com/tomtom215/galleria/internal/logging"
	"github.com/tomtom215/galleria/internal/metrics"
	"github.com/tomtom215/galleria/internal/models"
	"github.com/tomtom215/galleria/internal/scheduler"
	"github.com/tomtom215/galleria/internal/storage"
)

// Retry policy for transient file I/O: 3 tries, 100ms doubling.
const (
	retryAttempts = 3
	retryBaseWait = 100 * time.Millisecond
)

// Pipeline orchestrates ingestion.
type Pipeline struct {
	// ctx bounds detached pipelines; canceled on shutdown.
	ctx context.Context

	layout *storage.Layout
	store  *database.Store
	flush  *flush.Coordinator

	io  *scheduler.Actor
	cpu *scheduler.Actor

	// copySem serializes bulk copies so import bursts don't thrash disk.
	copySem *semaphore.Weighted

	guard *Guard
}

// New wires a pipeline over its collaborators.
func New(ctx context.Context, layout *storage.Layout, store *database.Store,
	coordinator *flush.Coordinator, ioActor, cpuActor *scheduler.Actor) *Pipeline {
	return &Pipeline{
		ctx:     ctx,
		layout:  layout,
		store:   store,
		flush:   coordinator,
		io:      ioActor,
		cpu:     cpuActor,
		copySem: semaphore.NewWeighted(1),
		guard:   NewGuard(),
	}
}

// Guard exposes the IN_PROGRESS set (the facade reports it on dashboards).
func (p *Pipeline) Guard() *Guard { return p.guard }

// SubmitDetached schedules ingestion of a path without waiting. The watcher
// and upload boundary both enter here. Each submission is an unbounded
// producer goroutine; the per-stage actors bound the actual work, so
// orchestrators never occupy a worker slot while waiting on one.
func (p *Pipeline) SubmitDetached(path string, albumID string) {
	go func() {
		_ = p.Ingest(p.ctx, path, albumID)
	}()
}

// Ingest runs the full pipeline for one source path. albumID, when
// non-empty, pre-signs the resulting record into that album.
func (p *Pipeline) Ingest(ctx context.Context, path string, albumID string) error {
	err := p.ingest(ctx, path, albumID)
	if err != nil {
		logging.Error().Err(err).Str("path", path).Msg("ingestion aborted")
	}
	return err
}

func (p *Pipeline) ingest(ctx context.Context, path string, albumID string) error {
	ext := models.NormalizeExt(filepath.Ext(path))
	objType, supported := models.ClassifyExt(ext)
	if !supported {
		return apperr.Newf(apperr.InvalidInput, "unsupported extension %q: %s", ext, path)
	}

	// OpenFile: obtain a readable handle with retry on transient failure.
	var info os.FileInfo
	err := p.runStage(ctx, p.io, "open_file", scheduler.PriorityHigh, func(context.Context) error {
		return withRetry(func() error {
			f, err := os.Open(path)
			if err != nil {
				return apperr.Temp(apperr.Wrap(apperr.IO, "open source", err))
			}
			defer f.Close()
			info, err = f.Stat()
			if err != nil {
				return apperr.Temp(apperr.Wrap(apperr.IO, "stat source", err))
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	// Hash: stream the bytes into BLAKE3 on the CPU pool.
	var id string
	err = p.runStage(ctx, p.cpu, "hash", scheduler.PriorityHigh, func(context.Context) error {
		var hashErr error
		id, hashErr = hashFile(path)
		return hashErr
	})
	if err != nil {
		return err
	}

	// Two concurrent pipelines for the same content collapse here.
	release, ok := p.guard.Acquire(id)
	if !ok {
		logging.Debug().Str("hash", id[:8]).Str("path", path).
			Msg("content already in flight, skipping")
		return nil
	}
	defer release()

	// Deduplicate: merge into an existing record, or construct a new one.
	now := time.Now()
	alias := models.FileModify{
		File:     path,
		Modified: info.ModTime().UnixMilli(),
		ScanTime: now.UnixMilli(),
	}

	var record *models.Record
	err = p.runStage(ctx, p.io, "deduplicate", scheduler.PriorityNormal, func(context.Context) error {
		existing, err := p.store.Get(id)
		switch {
		case err == nil:
			p.mergeAlias(existing, alias, albumID, now.UnixMilli())
			p.flush.FlushDetached(flush.Insert(existing))
			metrics.DedupHits.Inc()
			return nil
		case apperr.IsNotFound(err):
			record = newRecord(id, objType, ext, info.Size(), alias, albumID)
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return err
	}
	if record == nil {
		// Duplicate content: the merge is committed, drop the source.
		removeSource(path)
		return nil
	}

	// Copy: one bulk copy at a time, with retry.
	imported := p.layout.ImportedPath(id, ext)
	err = p.runStage(ctx, p.io, "copy", scheduler.PriorityNormal, func(ctx context.Context) error {
		if err := p.copySem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer p.copySem.Release(1)
		return withRetry(func() error {
			return copyFile(path, imported)
		})
	})
	if err != nil {
		return err
	}

	// Index: EXIF, dimensions, orientation, thumbhash, phash, thumbnail.
	err = p.runStage(ctx, p.cpu, "index", scheduler.PriorityNormal, func(ctx context.Context) error {
		return p.indexRecord(ctx, record)
	})
	if err != nil {
		return err
	}
	p.flush.FlushDetached(flush.Insert(record))
	removeSource(path)
	metrics.FilesIngested.Inc()

	if record.Type == models.TypeVideo {
		p.scheduleTranscode(record.ID)
	}
	return nil
}

// mergeAlias appends the alias (the order by scan time is preserved since
// new scans are the newest) and pre-signs the album if requested. Purely
// additive and idempotent on identical inputs.
func (p *Pipeline) mergeAlias(existing *models.Record, alias models.FileModify,
	albumID string, nowMS int64) {
	media := existing.Media()
	if media == nil {
		return
	}
	for _, have := range media.Alias {
		if have.File == alias.File && have.Modified == alias.Modified {
			// Same path and mtime already recorded; only the album
			// pre-sign below can still change the record.
			alias.File = ""
			break
		}
	}
	if alias.File != "" {
		media.Alias = append(media.Alias, alias)
	}
	if albumID != "" {
		media.Albums.Add(albumID)
	}
	if nowMS > existing.UpdateAt {
		existing.UpdateAt = nowMS
	}
}

func newRecord(id string, objType models.ObjectType, ext string, size int64,
	alias models.FileModify, albumID string) *models.Record {

	meta := models.MediaMetadata{
		Size:  size,
		Ext:   ext,
		Alias: []models.FileModify{alias},
	}
	if albumID != "" {
		meta.Albums = models.NewStringSet(albumID)
	}

	var record *models.Record
	if objType == models.TypeImage {
		record = models.NewImage(id, models.ImageMetadata{MediaMetadata: meta})
	} else {
		record = models.NewVideo(id, models.VideoMetadata{MediaMetadata: meta})
	}
	record.UpdateAt = alias.ScanTime
	return record
}

// runStage executes one stage on an actor, timing it and classifying
// failures for metrics.
func (p *Pipeline) runStage(ctx context.Context, actor *scheduler.Actor, stage string,
	priority int, fn func(ctx context.Context) error) error {

	start := time.Now()
	err := actor.ExecuteWaiting(ctx, scheduler.TaskFunc(stage, fn), priority)
	metrics.PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PipelineFailures.WithLabelValues(stage).Inc()
	}
	return err
}

// withRetry retries fn on temporary errors: 3 tries, 100ms doubling.
func withRetry(fn func() error) error {
	wait := retryBaseWait
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(wait)
			wait *= 2
		}
		if err = fn(); err == nil || !apperr.IsTemporary(err) {
			return err
		}
	}
	return err
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return apperr.Wrap(apperr.IO, "create shard dir", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return apperr.Temp(apperr.Wrap(apperr.IO, "open copy source", err))
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return apperr.Temp(apperr.Wrap(apperr.IO, "create copy target", err))
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return apperr.Temp(apperr.Wrap(apperr.IO, "copy bytes", err))
	}
	if err := out.Close(); err != nil {
		return apperr.Temp(apperr.Wrap(apperr.IO, "close copy target", err))
	}
	return nil
}

// removeSource deletes an ingested source path. Failure is logged only:
// the record is durable, a leftover source re-ingests as a dedup no-op.
func removeSource(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn().Err(err).Str("path", path).Msg("remove ingested source failed")
	}
}

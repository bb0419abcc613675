// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

// Package watcher feeds filesystem events into the ingestion pipeline.
//
// Every configured sync path is watched recursively. Create/Modify events
// pass an extension filter and land in the debounce map; one second after
// the last event for a path, the path is submitted for ingestion. Editors
// and copy tools fire many events per file, the trailing debounce collapses
// them to one ingestion.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tomtom215/galleria/internal/logging"
	"github.com/tomtom215/galleria/internal/metrics"
	"github.com/tomtom215/galleria/internal/models"
)

// debounceDelay is the trailing quiet period before a path is ingested.
const debounceDelay = time.Second

// Submitter is the pipeline entry point the watcher drives.
type Submitter interface {
	SubmitDetached(path string, albumID string)
}

// Watcher owns one fsnotify instance and the debounce state.
type Watcher struct {
	roots   []string
	submit  Submitter
	allowed map[string]bool

	mu       sync.Mutex
	debounce map[string]time.Time
}

// New builds a watcher over the given root directories. Relative roots must
// already be resolved by the caller.
func New(roots []string, submit Submitter) *Watcher {
	allowed := make(map[string]bool)
	for _, ext := range models.SupportedExts() {
		allowed[ext] = true
	}
	return &Watcher{
		roots:    roots,
		submit:   submit,
		allowed:  allowed,
		debounce: make(map[string]time.Time),
	}
}

// Serve watches until the context is canceled. Implements suture.Service,
// so a watcher lost to an fsnotify error is restarted by the supervisor;
// configuration reloads cancel the old service and add a fresh one.
func (w *Watcher) Serve(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	for _, root := range w.roots {
		if err := addRecursive(fsw, root); err != nil {
			logging.Error().Err(err).Str("root", root).Msg("watch root failed")
			continue
		}
		logging.Info().Str("root", root).Msg("watching")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, fsw, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.Error().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return
	}

	// New directories join the recursive watch.
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if event.Op.Has(fsnotify.Create) {
			if err := addRecursive(fsw, event.Name); err != nil {
				logging.Error().Err(err).Str("dir", event.Name).Msg("watch new dir failed")
			}
		}
		return
	}

	ext := models.NormalizeExt(filepath.Ext(event.Name))
	if !w.allowed[ext] {
		return
	}
	metrics.WatcherEvents.Inc()
	w.enqueue(ctx, event.Name)
}

// enqueue records the event instant and arms a trailing check. If a newer
// event lands on the same path before the delay elapses, this check yields;
// the newer event's check fires instead.
func (w *Watcher) enqueue(ctx context.Context, path string) {
	now := time.Now()
	w.mu.Lock()
	w.debounce[path] = now
	w.mu.Unlock()

	go func() {
		select {
		case <-time.After(debounceDelay):
		case <-ctx.Done():
			return
		}

		w.mu.Lock()
		last, ok := w.debounce[path]
		if !ok || !last.Equal(now) {
			w.mu.Unlock()
			return
		}
		delete(w.debounce, path)
		w.mu.Unlock()

		metrics.DebounceFires.Inc()
		w.submit.SubmitDetached(path, "")
	}()
}

// String names the watcher in supervisor logs.
func (w *Watcher) String() string { return "watcher" }

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

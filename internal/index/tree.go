// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

// Package index maintains the in-memory projection of the data table: every
// record paired with its computed sort timestamp, sorted descending.
//
// The projection is lossy on purpose: EXIF keys outside the allow-list are
// dropped so predicate evaluation stays cheap. The authoritative record in
// the KV store keeps the full EXIF; a rebuild never writes the projection
// back.
package index

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/galleria/internal/database"
	"github.com/tomtom215/galleria/internal/models"
)

// ExifAllowList is the set of EXIF keys retained in the in-memory
// projection at steady state.
var ExifAllowList = map[string]bool{
	"Make":                    true,
	"Model":                   true,
	"FNumber":                 true,
	"ExposureTime":            true,
	"FocalLength":             true,
	"PhotographicSensitivity": true,
	"DateTimeOriginal":        true,
	"duration":                true,
	"rotation":                true,
}

// Entry is one row of the projection.
type Entry struct {
	Record *models.Record

	// SortTimestamp is the derived ordering key, milliseconds.
	SortTimestamp int64
}

// Tree is the shared in-memory index. Readers grab the current entry slice
// with Entries (an immutable snapshot); the only writer is Rebuild, which
// swaps in a freshly sorted slice atomically.
type Tree struct {
	entries atomic.Pointer[[]Entry]

	// version increments on every successful rebuild. Query-cache rows
	// remember the version they were computed against; a mismatch makes
	// them stale.
	version atomic.Uint64

	// rebuildMu serializes rebuilds; concurrent UpdateTree submissions are
	// already coalesced by the batch coordinator, this is a backstop.
	rebuildMu sync.Mutex
}

// NewTree returns an empty index.
func NewTree() *Tree {
	t := &Tree{}
	empty := make([]Entry, 0)
	t.entries.Store(&empty)
	return t
}

// Entries returns the current sorted projection. The slice is immutable;
// callers must not modify it.
func (t *Tree) Entries() []Entry {
	return *t.entries.Load()
}

// Version returns the current index version.
func (t *Tree) Version() uint64 {
	return t.version.Load()
}

// Len returns the number of indexed records.
func (t *Tree) Len() int {
	return len(t.Entries())
}

// Get returns the entry for an id, if indexed.
func (t *Tree) Get(id string) (Entry, bool) {
	for _, entry := range t.Entries() {
		if entry.Record.ID == id {
			return entry, true
		}
	}
	return Entry{}, false
}

// Rebuild recomputes the projection from the store inside one read
// transaction, computes sort timestamps in parallel, sorts descending, and
// swaps the shared slice.
func (t *Tree) Rebuild(store *database.Store) error {
	t.rebuildMu.Lock()
	defer t.rebuildMu.Unlock()

	var records []*models.Record
	err := store.ForEach(func(r *models.Record) error {
		records = append(records, r)
		return nil
	})
	if err != nil {
		return err
	}

	now := time.Now()
	entries := make([]Entry, len(records))

	workers := runtime.NumCPU()
	if workers > len(records) {
		workers = len(records)
	}
	if workers > 1 {
		var g errgroup.Group
		chunk := (len(records) + workers - 1) / workers
		for w := 0; w < workers; w++ {
			start := w * chunk
			end := start + chunk
			if end > len(records) {
				end = len(records)
			}
			g.Go(func() error {
				for i := start; i < end; i++ {
					entries[i] = project(records[i], now)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	} else {
		for i, r := range records {
			entries[i] = project(r, now)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].SortTimestamp != entries[j].SortTimestamp {
			return entries[i].SortTimestamp > entries[j].SortTimestamp
		}
		return entries[i].Record.ID < entries[j].Record.ID
	})

	t.entries.Store(&entries)
	t.version.Add(1)
	return nil
}

// project computes one entry, dropping EXIF keys outside the allow-list
// from the in-memory copy only.
func project(r *models.Record, now time.Time) Entry {
	if media := r.Media(); media != nil {
		media.Exif = media.Exif.Retain(func(key string) bool {
			return ExifAllowList[key]
		})
	}
	return Entry{Record: r, SortTimestamp: SortTimestamp(r, now)}
}

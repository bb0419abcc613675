// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

// Package snapshot serves immutable, paginated views over the in-memory
// index.
//
// A client presents a query; the engine fingerprints it, evaluates (or
// reuses a cached evaluation of) the compiled predicate over the current
// index, and persists the resulting hash vector under a fresh snapshot
// timestamp. Pagination, justified-row, and scrollbar reads all answer from
// that persisted vector, so element positions stay stable no matter what
// happens to the underlying records.
package snapshot

import (
	"runtime"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/galleria/internal/apperr"
	"github.com/tomtom215/galleria/internal/database"
	"github.com/tomtom215/galleria/internal/index"
	"github.com/tomtom215/galleria/internal/logging"
	"github.com/tomtom215/galleria/internal/metrics"
	"github.com/tomtom215/galleria/internal/query"
)

// DefaultTTL is how long a snapshot survives without being renewed.
const DefaultTTL = 24 * time.Hour

// ReducedData is one element of a snapshot vector: just enough to paginate
// and lay out rows without touching the full record.
type ReducedData struct {
	Hash          string `json:"hash"`
	SortTimestamp int64  `json:"sort_timestamp"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
}

// snapshotPayload is the persisted snapshot row.
type snapshotPayload struct {
	Fingerprint uint64        `json:"fingerprint"`
	Items       []ReducedData `json:"items"`
}

// cachePayload is the persisted query-cache row.
type cachePayload struct {
	// Version is the index version the result was computed against.
	Version uint64        `json:"version"`
	Items   []ReducedData `json:"items"`
}

// Engine allocates snapshots and answers reads from them.
type Engine struct {
	tree   *index.Tree
	snaps  *database.SnapshotStore
	cache  *database.CacheStore
	expire *database.ExpireStore
	ttl    time.Duration

	rows *rowCache

	// clock state: snapshot timestamps are millisecond-resolution and
	// strictly increasing so they key the snapshot table uniquely.
	mu   sync.Mutex
	last int64
}

// NewEngine wires the engine over its stores.
func NewEngine(tree *index.Tree, snaps *database.SnapshotStore,
	cache *database.CacheStore, expire *database.ExpireStore) *Engine {
	return &Engine{
		tree:   tree,
		snaps:  snaps,
		cache:  cache,
		expire: expire,
		ttl:    DefaultTTL,
		rows:   newRowCache(),
	}
}

// fingerprintInput is the canonical form hashed into the query fingerprint.
type fingerprintInput struct {
	Expression *query.Expression `json:"expression"`
	Priority   []string          `json:"priority"`
	ShareAlbum string            `json:"share_album,omitempty"`
	Restricted bool              `json:"restricted,omitempty"`
}

// Fingerprint computes the 64-bit identity of (expression, priority list,
// share context).
func Fingerprint(expr *query.Expression, priority []string, restriction *query.Restriction) uint64 {
	in := fingerprintInput{Expression: expr, Priority: priority}
	if restriction != nil {
		in.ShareAlbum = restriction.AlbumID
		in.Restricted = true
	}
	payload, err := json.Marshal(in)
	if err != nil {
		// The expression tree is plain data; Marshal cannot fail on it.
		panic("snapshot: fingerprint marshal: " + err.Error())
	}
	return xxhash.Sum64(payload)
}

// Open allocates a snapshot for the query and returns its timestamp and
// length.
func (e *Engine) Open(expr *query.Expression, priority []string,
	restriction *query.Restriction) (int64, int, error) {

	fp := Fingerprint(expr, priority, restriction)
	version := e.tree.Version()

	items, ok := e.cachedResult(fp, version)
	if !ok {
		var pred query.Predicate
		var err error
		if restriction != nil {
			pred, err = query.CompileRestricted(expr, *restriction)
		} else {
			pred, err = query.Compile(expr)
		}
		if err != nil {
			return 0, 0, err
		}

		items = e.evaluate(pred)

		cached, err := json.Marshal(cachePayload{Version: version, Items: items})
		if err != nil {
			return 0, 0, apperr.Wrap(apperr.Serialization, "encode query cache", err)
		}
		if err := e.cache.Put(fp, cached); err != nil {
			return 0, 0, err
		}
	}

	timestamp := e.nextTimestamp()
	payload, err := json.Marshal(snapshotPayload{Fingerprint: fp, Items: items})
	if err != nil {
		return 0, 0, apperr.Wrap(apperr.Serialization, "encode snapshot", err)
	}
	if err := e.snaps.Put(timestamp, payload); err != nil {
		return 0, 0, err
	}
	entry := database.ExpireEntry{
		Timestamp:   timestamp,
		Fingerprint: fp,
		ExpireAt:    time.Now().Add(e.ttl).UnixMilli(),
	}
	if err := e.expire.Put(entry); err != nil {
		return 0, 0, err
	}

	metrics.SnapshotsOpened.Inc()
	return timestamp, len(items), nil
}

// cachedResult returns a cached evaluation if it was computed against the
// current index version.
func (e *Engine) cachedResult(fp uint64, version uint64) ([]ReducedData, bool) {
	raw, err := e.cache.Get(fp)
	if err != nil {
		return nil, false
	}
	var payload cachePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false
	}
	if payload.Version != version {
		return nil, false
	}
	metrics.QueryCacheHits.Inc()
	return payload.Items, true
}

// evaluate runs the predicate over the index in parallel, preserving the
// index's descending sort order in the result.
func (e *Engine) evaluate(pred query.Predicate) []ReducedData {
	entries := e.tree.Entries()
	if len(entries) == 0 {
		return []ReducedData{}
	}

	workers := runtime.NumCPU()
	if workers > len(entries) {
		workers = len(entries)
	}
	chunk := (len(entries) + workers - 1) / workers
	parts := make([][]ReducedData, workers)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > len(entries) {
			end = len(entries)
		}
		if start >= end {
			break
		}
		g.Go(func() error {
			part := make([]ReducedData, 0, end-start)
			for i := start; i < end; i++ {
				entry := entries[i]
				if !pred(entry.Record) {
					continue
				}
				rd := ReducedData{
					Hash:          entry.Record.ID,
					SortTimestamp: entry.SortTimestamp,
				}
				if media := entry.Record.Media(); media != nil {
					rd.Width = media.Width
					rd.Height = media.Height
				}
				part = append(part, rd)
			}
			parts[start/chunk] = part
			return nil
		})
	}
	// The workers only write disjoint slots; Wait cannot fail.
	_ = g.Wait()

	total := 0
	for _, part := range parts {
		total += len(part)
	}
	out := make([]ReducedData, 0, total)
	for _, part := range parts {
		out = append(out, part...)
	}
	return out
}

// Load returns the full vector of a snapshot.
func (e *Engine) Load(timestamp int64) ([]ReducedData, error) {
	raw, err := e.snaps.Get(timestamp)
	if err != nil {
		return nil, err
	}
	var payload snapshotPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.Serialization, "decode snapshot", err)
	}
	return payload.Items, nil
}

// GetData returns elements [start, min(end, len)) in snapshot order. A
// start at or past the end returns an empty slice, not an error.
func (e *Engine) GetData(timestamp int64, start, end int) ([]ReducedData, error) {
	if start < 0 || end < start {
		return nil, apperr.Newf(apperr.InvalidInput, "invalid range [%d, %d)", start, end)
	}
	items, err := e.Load(timestamp)
	if err != nil {
		return nil, err
	}
	if start >= len(items) {
		return []ReducedData{}, nil
	}
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], nil
}

// nextTimestamp returns a strictly increasing millisecond timestamp.
func (e *Engine) nextTimestamp() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now().UnixMilli()
	if now <= e.last {
		now = e.last + 1
	}
	e.last = now
	return now
}

// Sweep evicts expired snapshots and query-cache rows computed against a
// stale index version. Called periodically and nudged after every index
// rebuild. Errors are logged, not surfaced.
func (e *Engine) Sweep() {
	now := time.Now().UnixMilli()
	version := e.tree.Version()

	var dead []database.ExpireEntry
	err := e.expire.ForEach(func(entry database.ExpireEntry) error {
		if entry.ExpireAt != 0 && now > entry.ExpireAt {
			dead = append(dead, entry)
		}
		return nil
	})
	if err != nil {
		logging.Error().Err(err).Msg("expire sweep: scan failed")
		return
	}
	for _, entry := range dead {
		if err := e.snaps.Delete(entry.Timestamp); err != nil {
			logging.Error().Err(err).Int64("timestamp", entry.Timestamp).
				Msg("expire sweep: delete snapshot failed")
			continue
		}
		if err := e.cache.Delete(entry.Fingerprint); err != nil {
			logging.Error().Err(err).Msg("expire sweep: delete query cache failed")
		}
		if err := e.expire.Delete(entry.Timestamp); err != nil {
			logging.Error().Err(err).Msg("expire sweep: delete entry failed")
		}
		e.rows.invalidate(entry.Timestamp)
		metrics.SnapshotsExpired.Inc()
	}

	// Query-cache rows tied to an older index version are stale even if
	// their snapshots live on: snapshots are immutable, caches are not.
	var staleFPs []uint64
	err = e.cache.ForEach(func(fp uint64, payload []byte) error {
		var cached cachePayload
		if err := json.Unmarshal(payload, &cached); err != nil {
			staleFPs = append(staleFPs, fp)
			return nil
		}
		if cached.Version != version {
			staleFPs = append(staleFPs, fp)
		}
		return nil
	})
	if err != nil {
		logging.Error().Err(err).Msg("expire sweep: cache scan failed")
		return
	}
	for _, fp := range staleFPs {
		if err := e.cache.Delete(fp); err != nil {
			logging.Error().Err(err).Msg("expire sweep: delete stale cache failed")
		}
	}
}

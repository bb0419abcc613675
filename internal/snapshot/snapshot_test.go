// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package snapshot

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/galleria/internal/database"
	"github.com/tomtom215/galleria/internal/index"
	"github.com/tomtom215/galleria/internal/models"
	"github.com/tomtom215/galleria/internal/query"
)

func testID(seed byte) string {
	const hexdigits = "0123456789abcdef"
	return strings.Repeat(string(hexdigits[seed%16]), models.IDLength)
}

type fixture struct {
	store  *database.Store
	tree   *index.Tree
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	open := func(name string) *database.Store {
		db, err := database.Open(filepath.Join(dir, name))
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return database.NewStore(db)
	}
	store := open("index_v5.redb")

	snapDB, err := database.Open(filepath.Join(dir, "temp_db.redb"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = snapDB.Close() })
	cacheDB, err := database.Open(filepath.Join(dir, "cache_db.redb"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cacheDB.Close() })
	expireDB, err := database.Open(filepath.Join(dir, "expire_db.redb"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = expireDB.Close() })

	tree := index.NewTree()
	engine := NewEngine(tree,
		database.NewSnapshotStore(snapDB),
		database.NewCacheStore(cacheDB),
		database.NewExpireStore(expireDB))
	return &fixture{store: store, tree: tree, engine: engine}
}

func (f *fixture) seed(t *testing.T, n int) []*models.Record {
	t.Helper()
	records := make([]*models.Record, 0, n)
	for i := 0; i < n; i++ {
		record := models.NewImage(testID(byte(i+1)), models.ImageMetadata{
			MediaMetadata: models.MediaMetadata{
				Ext:    "jpg",
				Width:  1600,
				Height: 900,
				Alias: []models.FileModify{{
					File:     "/p/img.jpg",
					ScanTime: int64(1000 * (i + 1)),
				}},
			},
		})
		if i%2 == 0 {
			record.IsFavorite = true
		}
		records = append(records, record)
	}
	require.NoError(t, f.store.Flush(records, nil))
	require.NoError(t, f.tree.Rebuild(f.store))
	return records
}

func TestOpenAndPaginate(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 5)

	ts, length, err := f.engine.Open(&query.Expression{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, length)

	page, err := f.engine.GetData(ts, 0, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	// Descending by sort timestamp: the newest scan time first.
	assert.Greater(t, page[0].SortTimestamp, page[1].SortTimestamp)

	// End past the snapshot clamps.
	tail, err := f.engine.GetData(ts, 3, 99)
	require.NoError(t, err)
	assert.Len(t, tail, 2)

	// Start at or past the end yields empty, not an error.
	empty, err := f.engine.GetData(ts, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = f.engine.GetData(ts, -1, 2)
	assert.Error(t, err)
}

func TestSnapshotStableUnderMutation(t *testing.T) {
	f := newFixture(t)
	records := f.seed(t, 4)

	ts, _, err := f.engine.Open(&query.Expression{}, nil, nil)
	require.NoError(t, err)
	before, err := f.engine.GetData(ts, 0, 4)
	require.NoError(t, err)

	// Mutate a record without changing its sort timestamp, then rebuild.
	records[0].Tags = models.NewStringSet("edited")
	require.NoError(t, f.store.Flush([]*models.Record{records[0]}, nil))
	require.NoError(t, f.tree.Rebuild(f.store))

	after, err := f.engine.GetData(ts, 0, 4)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].Hash, after[i].Hash)
	}
}

func TestFilteredSnapshot(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 6)

	fav := true
	ts, length, err := f.engine.Open(&query.Expression{Favorite: &fav}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, length)

	items, err := f.engine.GetData(ts, 0, length)
	require.NoError(t, err)
	for _, item := range items {
		record, err := f.store.Get(item.Hash)
		require.NoError(t, err)
		assert.True(t, record.IsFavorite)
	}
}

func TestQueryCacheReuseAndInvalidation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 3)

	_, n1, err := f.engine.Open(&query.Expression{}, nil, nil)
	require.NoError(t, err)

	// Same fingerprint and index version: served from cache.
	fp := Fingerprint(&query.Expression{}, nil, nil)
	cached, ok := f.engine.cachedResult(fp, f.tree.Version())
	assert.True(t, ok)
	assert.Len(t, cached, n1)

	// A rebuild bumps the version; the cached row goes stale.
	require.NoError(t, f.tree.Rebuild(f.store))
	_, ok = f.engine.cachedResult(fp, f.tree.Version())
	assert.False(t, ok)
}

func TestFingerprintDistinguishesContexts(t *testing.T) {
	expr := &query.Expression{}
	admin := Fingerprint(expr, nil, nil)
	restricted := Fingerprint(expr, nil, &query.Restriction{AlbumID: testID(9)})
	priority := Fingerprint(expr, []string{"filename"}, nil)

	assert.NotEqual(t, admin, restricted)
	assert.NotEqual(t, admin, priority)
	assert.Equal(t, admin, Fingerprint(&query.Expression{}, nil, nil))
}

func TestMonotonicTimestamps(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1)

	seen := make(map[int64]bool)
	for i := 0; i < 20; i++ {
		ts, _, err := f.engine.Open(&query.Expression{}, nil, nil)
		require.NoError(t, err)
		assert.False(t, seen[ts], "timestamp reused")
		seen[ts] = true
	}
}

func TestSweepEvictsExpired(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 2)
	f.engine.ttl = -time.Second // every snapshot is born expired

	ts, _, err := f.engine.Open(&query.Expression{}, nil, nil)
	require.NoError(t, err)

	f.engine.Sweep()

	_, err = f.engine.Load(ts)
	assert.Error(t, err)
}

func TestRowLayout(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 8)

	ts, _, err := f.engine.Open(&query.Expression{}, nil, nil)
	require.NoError(t, err)

	layout, err := f.engine.GetRows(ts, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, layout.Total)
	require.NotEmpty(t, layout.Rows)

	covered := 0
	prevEnd := 0
	for _, row := range layout.Rows {
		assert.Equal(t, prevEnd, row.Start)
		assert.Greater(t, row.End, row.Start)
		for _, item := range row.Items {
			assert.Equal(t, rowHeight, item.Height)
			assert.Greater(t, item.Width, 0)
		}
		covered += row.End - row.Start
		prevEnd = row.End
	}
	assert.Equal(t, 8, covered)

	// Cached second read returns identical geometry.
	again, err := f.engine.GetRows(ts, 0)
	require.NoError(t, err)
	assert.Equal(t, layout, again)

	// A window past the end is empty.
	tail, err := f.engine.GetRows(ts, 99)
	require.NoError(t, err)
	assert.Empty(t, tail.Rows)
}

func TestScrollBarBuckets(t *testing.T) {
	f := newFixture(t)

	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.Local).UnixMilli()
	feb := time.Date(2024, 2, 5, 0, 0, 0, 0, time.Local).UnixMilli()
	var records []*models.Record
	for i, ms := range []int64{feb, feb, jan} {
		records = append(records, models.NewImage(testID(byte(i+1)), models.ImageMetadata{
			MediaMetadata: models.MediaMetadata{
				Ext:   "jpg",
				Alias: []models.FileModify{{File: "/p/x.jpg", ScanTime: ms}},
			},
		}))
	}
	require.NoError(t, f.store.Flush(records, nil))
	require.NoError(t, f.tree.Rebuild(f.store))

	ts, _, err := f.engine.Open(&query.Expression{}, nil, nil)
	require.NoError(t, err)

	buckets, err := f.engine.GetScrollBar(ts)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, Bucket{Year: 2024, Month: 2, Count: 2}, buckets[0])
	assert.Equal(t, Bucket{Year: 2024, Month: 1, Count: 1}, buckets[1])
}

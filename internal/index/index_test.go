// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package index

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/galleria/internal/database"
	"github.com/tomtom215/galleria/internal/models"
)

func testID(seed byte) string {
	const hexdigits = "0123456789abcdef"
	return strings.Repeat(string(hexdigits[seed%16]), models.IDLength)
}

func mediaRecord(id string, aliases ...models.FileModify) *models.Record {
	return models.NewImage(id, models.ImageMetadata{
		MediaMetadata: models.MediaMetadata{Ext: "jpg", Alias: aliases},
	})
}

func TestSortTimestampExifWins(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	record := mediaRecord(testID(1), models.FileModify{
		File: "/p/20240102_120000.jpg", Modified: 1, ScanTime: 2,
	})
	record.Image.Exif.Set("DateTimeOriginal", "2023:05:06 07:08:09")

	want := time.Date(2023, 5, 6, 7, 8, 9, 0, time.Local).UnixMilli()
	assert.Equal(t, want, SortTimestamp(record, now))
}

func TestSortTimestampRejectsFutureExif(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	record := mediaRecord(testID(1), models.FileModify{
		File: "/p/2024-01-02 12.00.00.jpg", Modified: 1, ScanTime: 2,
	})
	record.Image.Exif.Set("DateTimeOriginal", "2031:01:01 00:00:00")

	// Falls through to the filename rule.
	want := time.Date(2024, 1, 2, 12, 0, 0, 0, time.Local).UnixMilli()
	assert.Equal(t, want, SortTimestamp(record, now))
}

func TestSortTimestampFilenameVariants(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	want := time.Date(2024, 1, 2, 12, 0, 0, 0, time.Local).UnixMilli()

	for _, name := range []string{
		"IMG_2024-01-02_12-00-00.jpg",
		"20240102120000.jpg",
		"2024.01.02 12.00.00.jpg",
	} {
		record := mediaRecord(testID(1), models.FileModify{File: "/p/" + name})
		assert.Equal(t, want, SortTimestamp(record, now), name)
	}
}

func TestSortTimestampScanAndModifiedFallbacks(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)

	record := mediaRecord(testID(1),
		models.FileModify{File: "/p/a.jpg", Modified: 500, ScanTime: 1000},
		models.FileModify{File: "/p/b.jpg", Modified: 900, ScanTime: 3000},
	)
	assert.Equal(t, int64(3000), SortTimestamp(record, now))

	// Without scan times, the newest alias's mtime wins.
	record = mediaRecord(testID(1),
		models.FileModify{File: "/p/a.jpg", Modified: 500},
		models.FileModify{File: "/p/b.jpg", Modified: 900},
	)
	assert.Equal(t, int64(900), SortTimestamp(record, now))
}

func TestSortTimestampRandomBucketIsDeterministicAndBounded(t *testing.T) {
	now := time.Now()
	record := mediaRecord(testID(3))
	first := SortTimestamp(record, now)
	second := SortTimestamp(record, now)
	assert.Equal(t, first, second)
	assert.LessOrEqual(t, first, now.UnixMilli())
	assert.GreaterOrEqual(t, first, int64(0))
}

func TestSortTimestampAlbum(t *testing.T) {
	album := models.NewAlbum("trip", 12345)
	assert.Equal(t, int64(12345), SortTimestamp(album, time.Now()))
}

func openStore(t *testing.T) *database.Store {
	t.Helper()
	db, err := database.Open(t.TempDir() + "/index_v5.redb")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return database.NewStore(db)
}

func TestRebuildSortsDescendingAndBumpsVersion(t *testing.T) {
	store := openStore(t)
	old := mediaRecord(testID(1), models.FileModify{File: "/p/a.jpg", ScanTime: 1000})
	newer := mediaRecord(testID(2), models.FileModify{File: "/p/b.jpg", ScanTime: 2000})
	require.NoError(t, store.Flush([]*models.Record{old, newer}, nil))

	tree := NewTree()
	require.Equal(t, uint64(0), tree.Version())
	require.NoError(t, tree.Rebuild(store))

	entries := tree.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, newer.ID, entries[0].Record.ID)
	assert.Equal(t, old.ID, entries[1].Record.ID)
	assert.GreaterOrEqual(t, entries[0].SortTimestamp, entries[1].SortTimestamp)
	assert.Equal(t, uint64(1), tree.Version())
}

func TestRebuildDropsExifOutsideAllowList(t *testing.T) {
	store := openStore(t)
	record := mediaRecord(testID(1), models.FileModify{File: "/p/a.jpg", ScanTime: 1000})
	record.Image.Exif.Set("Make", "Canon")
	record.Image.Exif.Set("Software", "darktable")
	require.NoError(t, store.Flush([]*models.Record{record}, nil))

	tree := NewTree()
	require.NoError(t, tree.Rebuild(store))

	entry, ok := tree.Get(record.ID)
	require.True(t, ok)
	_, hasMake := entry.Record.Media().Exif.Get("Make")
	_, hasSoftware := entry.Record.Media().Exif.Get("Software")
	assert.True(t, hasMake)
	assert.False(t, hasSoftware)

	// The projection is lossy; the stored record is not. A rebuild must
	// never write the lossy copy back.
	stored, err := store.Get(record.ID)
	require.NoError(t, err)
	_, hasSoftware = stored.Media().Exif.Get("Software")
	assert.True(t, hasSoftware)
}

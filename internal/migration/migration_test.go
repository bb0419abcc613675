// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package migration

import (
	"os"
	"strings"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/galleria/internal/database"
	"github.com/tomtom215/galleria/internal/models"
	"github.com/tomtom215/galleria/internal/storage"
)

func testID(seed byte) string {
	const hexdigits = "0123456789abcdef"
	return strings.Repeat(string(hexdigits[seed%16]), models.IDLength)
}

func encodeV3(t *testing.T, record *v3Record) []byte {
	t.Helper()
	body, err := json.Marshal(record)
	require.NoError(t, err)
	return append([]byte{models.SchemaV3}, body...)
}

func v3Fixture(seed byte) *v3Record {
	exif := map[string]string{"Make": "Canon"}
	exif[legacyDescriptionKey] = "our trip"
	return &v3Record{
		ID:   testID(seed),
		Type: string(models.TypeImage),
		Tags: []string{"_favorite", "_trashed", "holiday"},
		Image: &v3Media{
			Size:  100,
			Ext:   "JPG",
			Exif:  exif,
			Alias: []models.FileModify{{File: "/p/a.jpg", Modified: 10, ScanTime: 20}},
		},
	}
}

func TestV3TransformLiftsLegacyFields(t *testing.T) {
	record, err := convertV3(encodeV3(t, v3Fixture(1)))
	require.NoError(t, err)

	// Tag-flags become booleans and vanish from tags.
	assert.True(t, record.IsFavorite)
	assert.True(t, record.IsTrashed)
	assert.False(t, record.IsArchived)
	assert.False(t, record.Tags.Has("_favorite"))
	assert.False(t, record.Tags.Has("_trashed"))
	assert.True(t, record.Tags.Has("holiday"))

	// The buried description surfaces and leaves the EXIF vector.
	assert.Equal(t, "our trip", record.Description)
	_, hasLegacy := record.Image.Exif.Get(legacyDescriptionKey)
	assert.False(t, hasLegacy)
	makeValue, ok := record.Image.Exif.Get("Make")
	assert.True(t, ok)
	assert.Equal(t, "Canon", makeValue)

	// Ids are preserved, extensions normalized, update_at synthesized.
	assert.Equal(t, testID(1), record.ID)
	assert.Equal(t, "jpg", record.Image.Ext)
	assert.Equal(t, int64(20), record.UpdateAt)
}

func TestV2MediaConversion(t *testing.T) {
	payload, err := json.Marshal(map[string]any{
		"hash": testID(2),
		"size": 1234,
		"ext":  "mp4",
		"tags": []string{"_archived"},
		"alias": []map[string]any{
			{"file": "/p/v.mp4", "modified": 10, "scan_time": 20},
		},
	})
	require.NoError(t, err)

	record, err := convertV2(v2MediaPrefix+testID(2), payload)
	require.NoError(t, err)
	assert.Equal(t, models.TypeVideo, record.Type)
	assert.True(t, record.IsArchived)
	assert.Equal(t, int64(1234), record.Video.Size)
	require.Len(t, record.Video.Alias, 1)
	assert.Equal(t, int64(20), record.Video.Alias[0].ScanTime)
}

func TestV2TimestampOverflowIsAnError(t *testing.T) {
	payload, err := json.Marshal(map[string]any{
		"hash": testID(2),
		"ext":  "jpg",
		"alias": []map[string]any{
			// One past MaxInt64: a legacy u128 value that cannot narrow.
			{"file": "/p/a.jpg", "modified": 0, "scan_time": json.RawMessage("9223372036854775808")},
		},
	})
	require.NoError(t, err)

	_, err = convertV2(v2MediaPrefix+testID(2), payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signed 64-bit")
}

func TestV2AlbumConversion(t *testing.T) {
	payload, err := json.Marshal(map[string]any{
		"id":                 testID(3),
		"title":              "Old Trip",
		"created_time":       1000,
		"last_modified_time": 2000,
		"item_count":         4,
	})
	require.NoError(t, err)

	record, err := convertV2(v2AlbumPrefix+testID(3), payload)
	require.NoError(t, err)
	assert.Equal(t, models.TypeAlbum, record.Type)
	assert.Equal(t, "Old Trip", record.Album.Title)
	assert.Equal(t, int64(1000), record.Album.CreatedTime)
	assert.Equal(t, 4, record.Album.ItemCount)
}

func writeLegacyStore(t *testing.T, path string, rows map[string][]byte) {
	t.Helper()
	db, err := database.Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		for key, payload := range rows {
			if err := txn.Set([]byte(key), payload); err != nil {
				return err
			}
		}
		return nil
	}))
	require.NoError(t, db.Close())
}

func TestRunNoopWhenFresh(t *testing.T) {
	layout := storage.NewLayout(t.TempDir())
	require.NoError(t, layout.EnsureDirs())
	require.NoError(t, Run(layout, strings.NewReader("")))
	_, err := os.Stat(layout.IndexDB())
	assert.True(t, os.IsNotExist(err))
}

func TestRunDeclined(t *testing.T) {
	layout := storage.NewLayout(t.TempDir())
	require.NoError(t, layout.EnsureDirs())

	v3 := v3Fixture(4)
	writeLegacyStore(t, layout.LegacyIndexDB(), map[string][]byte{
		v3.ID: encodeV3(t, v3),
	})

	err := Run(layout, strings.NewReader("no\n"))
	assert.ErrorIs(t, err, ErrDeclined)
	_, statErr := os.Stat(layout.IndexDB())
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunMigratesV3Store(t *testing.T) {
	layout := storage.NewLayout(t.TempDir())
	require.NoError(t, layout.EnsureDirs())

	a, b := v3Fixture(5), v3Fixture(6)
	writeLegacyStore(t, layout.LegacyIndexDB(), map[string][]byte{
		a.ID: encodeV3(t, a),
		b.ID: encodeV3(t, b),
	})

	require.NoError(t, Run(layout, strings.NewReader("yes\n")))

	// The legacy store is parked as .bak and the v5 store decodes.
	_, err := os.Stat(layout.LegacyIndexDB() + ".bak")
	assert.NoError(t, err)

	db, err := database.Open(layout.IndexDB())
	require.NoError(t, err)
	defer db.Close()
	store := database.NewStore(db)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	migrated, err := store.Get(a.ID)
	require.NoError(t, err)
	assert.True(t, migrated.IsFavorite)
	assert.Equal(t, "our trip", migrated.Description)
}

func TestRunRenamesV4Store(t *testing.T) {
	layout := storage.NewLayout(t.TempDir())
	require.NoError(t, layout.EnsureDirs())

	// A store full of current-shape rows under the legacy file name.
	record := models.NewImage(testID(7), models.ImageMetadata{
		MediaMetadata: models.MediaMetadata{Ext: "jpg"},
	})
	payload, err := models.Encode(record)
	require.NoError(t, err)
	payload[0] = models.SchemaV4
	writeLegacyStore(t, layout.LegacyIndexDB(), map[string][]byte{record.ID: payload})

	// No confirmation needed for a pure rename.
	require.NoError(t, Run(layout, strings.NewReader("")))

	db, err := database.Open(layout.IndexDB())
	require.NoError(t, err)
	defer db.Close()

	got, err := database.NewStore(db).Get(record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
}

// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package models

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testID(seed byte) string {
	return strings.Repeat(string([]byte{'a' + seed%6}), IDLength)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	record := NewImage(testID(0), ImageMetadata{
		MediaMetadata: MediaMetadata{
			Size:   1234,
			Width:  800,
			Height: 600,
			Ext:    "jpg",
			Albums: NewStringSet(testID(1)),
			Alias: []FileModify{
				{File: "/photos/a.jpg", Modified: 1000, ScanTime: 2000},
			},
		},
		Phash: []byte{1, 2, 3, 4, 5, 6, 7, 8},
	})
	record.Tags = NewStringSet("vacation", "beach")
	record.IsFavorite = true
	record.UpdateAt = 42

	payload, err := Encode(record)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, payload[0])

	decoded, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, record.ID, decoded.ID)
	assert.Equal(t, TypeImage, decoded.Type)
	assert.True(t, decoded.IsFavorite)
	assert.True(t, decoded.Tags.Has("vacation"))
	assert.Equal(t, record.Image.Phash, decoded.Image.Phash)
	assert.Equal(t, int64(42), decoded.UpdateAt)
	require.Len(t, decoded.Image.Alias, 1)
	assert.Equal(t, "/photos/a.jpg", decoded.Image.Alias[0].File)
}

func TestDecodeAcceptsV4(t *testing.T) {
	record := NewImage(testID(0), ImageMetadata{})
	payload, err := Encode(record)
	require.NoError(t, err)

	payload[0] = SchemaV4
	decoded, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, record.ID, decoded.ID)
}

func TestDecodeRejectsOldSchemas(t *testing.T) {
	record := NewImage(testID(0), ImageMetadata{})
	payload, err := Encode(record)
	require.NoError(t, err)

	payload[0] = SchemaV3
	_, err = Decode(payload)
	assert.Error(t, err)

	_, err = Decode([]byte{SchemaVersion})
	assert.Error(t, err)
}

func TestStringSetMarshalsSorted(t *testing.T) {
	s := NewStringSet("zebra", "alpha", "middle")
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `["alpha","middle","zebra"]`, string(data))

	var back StringSet
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Has("zebra"))
	assert.Len(t, back, 3)
}

func TestExifVecPreservesOrder(t *testing.T) {
	var vec ExifVec
	vec.Set("Make", "Canon")
	vec.Set("Model", "EOS R5")
	vec.Set("FNumber", "4/1")
	vec.Set("Make", "Nikon")

	require.Len(t, vec, 3)
	assert.Equal(t, "Make", vec[0].Key)
	assert.Equal(t, "Nikon", vec[0].Value)

	data, err := json.Marshal(vec)
	require.NoError(t, err)
	var back ExifVec
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, vec, back)
}

func TestExifVecUnmarshalLegacyObject(t *testing.T) {
	var vec ExifVec
	require.NoError(t, json.Unmarshal([]byte(`{"Model":"X100","Make":"Fuji"}`), &vec))
	v, ok := vec.Get("Model")
	assert.True(t, ok)
	assert.Equal(t, "X100", v)
}

func TestExifVecRetain(t *testing.T) {
	var vec ExifVec
	vec.Set("Make", "Canon")
	vec.Set("Software", "darktable")
	kept := vec.Retain(func(key string) bool { return key == "Make" })
	require.Len(t, kept, 1)
	assert.Equal(t, "Make", kept[0].Key)
	// The receiver is untouched.
	assert.Len(t, vec, 2)
}

func TestClassifyExt(t *testing.T) {
	tests := []struct {
		ext      string
		wantType ObjectType
		wantOK   bool
	}{
		{"jpg", TypeImage, true},
		{".JPG", TypeImage, true},
		{"png", TypeImage, true},
		{"mp4", TypeVideo, true},
		{"gif", TypeVideo, true},
		{"txt", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.ext, func(t *testing.T) {
			got, ok := ClassifyExt(tc.ext)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantType, got)
		})
	}
}

func TestNewAlbumID(t *testing.T) {
	id := NewAlbumID()
	assert.Len(t, id, IDLength)
	assert.True(t, ValidID(id))
	assert.NotEqual(t, id, NewAlbumID())
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID(strings.Repeat("0f", 32)))
	assert.False(t, ValidID("short"))
	assert.False(t, ValidID(strings.Repeat("G", IDLength)))
	assert.False(t, ValidID(strings.Repeat("A", IDLength)))
}

func TestShardAndNormalizeExt(t *testing.T) {
	id := testID(2)
	assert.Equal(t, id[:2], Shard(id))
	assert.Equal(t, "jpg", NormalizeExt(".JPG"))
	assert.Equal(t, "mov", NormalizeExt("MOV"))
}

func TestShareExpired(t *testing.T) {
	s := Share{Exp: 0}
	assert.False(t, s.Expired(9_999_999))
	s.Exp = 1000
	assert.False(t, s.Expired(1000))
	assert.True(t, s.Expired(1001))
}

// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package migration

import (
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/galleria/internal/apperr"
	"github.com/tomtom215/galleria/internal/models"
)

// The pre-3.0 store kept two logical tables in one keyspace.
const (
	v2MediaPrefix = "database:"
	v2AlbumPrefix = "album:"
)

// v2Media is a pre-3.0 media row. Timestamps were unsigned 128-bit
// milliseconds; they decode through json.Number so values that overflow the
// signed 64-bit range fail the migration instead of truncating.
type v2Media struct {
	Hash   string            `json:"hash"`
	Size   int64             `json:"size"`
	Width  int               `json:"width"`
	Height int               `json:"height"`
	Ext    string            `json:"ext"`
	Phash  []byte            `json:"phash,omitempty"`
	Exif   map[string]string `json:"exif_vec,omitempty"`
	Albums []string          `json:"album,omitempty"`
	Tags   []string          `json:"tags,omitempty"`
	Alias  []v2Alias         `json:"alias,omitempty"`

	Thumbhash []byte  `json:"thumbhash,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
}

type v2Alias struct {
	File     string      `json:"file"`
	Modified json.Number `json:"modified"`
	ScanTime json.Number `json:"scan_time"`
}

// v2Album is a pre-3.0 album row.
type v2Album struct {
	ID               string      `json:"id"`
	Title            string      `json:"title,omitempty"`
	CreatedTime      json.Number `json:"created_time"`
	LastModifiedTime json.Number `json:"last_modified_time"`
	Cover            *string     `json:"cover,omitempty"`
	Thumbhash        []byte      `json:"thumbhash,omitempty"`
	ItemCount        int         `json:"item_count"`
	ItemSize         int64       `json:"item_size"`
}

// convertV2 runs the V2→V3→V4 chain for one row. Membership lives on the
// media row in every schema, so each row converts independently.
func convertV2(key string, payload []byte) (*models.Record, error) {
	switch {
	case strings.HasPrefix(key, v2MediaPrefix):
		return convertV2Media(payload)
	case strings.HasPrefix(key, v2AlbumPrefix):
		return convertV2Album(payload)
	default:
		return nil, apperr.Newf(apperr.Serialization, "v2 row with unknown table prefix %q", key)
	}
}

func convertV2Media(payload []byte) (record *models.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Newf(apperr.Serialization, "v2 decode panic: %v", r)
		}
	}()

	var v2 v2Media
	if err := json.Unmarshal(payload, &v2); err != nil {
		return nil, apperr.Wrap(apperr.Serialization, "decode v2 media row", err)
	}
	if !models.ValidID(v2.Hash) {
		return nil, apperr.Newf(apperr.Serialization, "v2 media row has invalid hash %q", v2.Hash)
	}

	// V2→V3: flatten into the single-table shape.
	v3 := &v3Record{
		ID:        v2.Hash,
		Thumbhash: v2.Thumbhash,
		Tags:      v2.Tags,
	}
	media := &v3Media{
		Size:     v2.Size,
		Width:    v2.Width,
		Height:   v2.Height,
		Ext:      v2.Ext,
		Phash:    v2.Phash,
		Duration: v2.Duration,
		Albums:   v2.Albums,
		Exif:     v2.Exif,
	}
	for _, alias := range v2.Alias {
		modified, err := narrowTimestamp(v2.Hash, alias.Modified)
		if err != nil {
			return nil, err
		}
		scanTime, err := narrowTimestamp(v2.Hash, alias.ScanTime)
		if err != nil {
			return nil, err
		}
		media.Alias = append(media.Alias, models.FileModify{
			File:     alias.File,
			Modified: modified,
			ScanTime: scanTime,
		})
	}

	if objType, ok := models.ClassifyExt(v2.Ext); ok && objType == models.TypeVideo {
		v3.Type = string(models.TypeVideo)
		v3.Video = media
	} else {
		v3.Type = string(models.TypeImage)
		v3.Image = media
	}

	// V3→V4 finishes the chain.
	return v3ToV4(v3)
}

func convertV2Album(payload []byte) (record *models.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Newf(apperr.Serialization, "v2 decode panic: %v", r)
		}
	}()

	var v2 v2Album
	if err := json.Unmarshal(payload, &v2); err != nil {
		return nil, apperr.Wrap(apperr.Serialization, "decode v2 album row", err)
	}
	if !models.ValidID(v2.ID) {
		return nil, apperr.Newf(apperr.Serialization, "v2 album row has invalid id %q", v2.ID)
	}

	created, err := narrowTimestamp(v2.ID, v2.CreatedTime)
	if err != nil {
		return nil, err
	}
	modified, err := narrowTimestamp(v2.ID, v2.LastModifiedTime)
	if err != nil {
		return nil, err
	}

	v3 := &v3Record{
		ID:        v2.ID,
		Type:      string(models.TypeAlbum),
		Thumbhash: v2.Thumbhash,
		Album: &v3Album{
			Title:            v2.Title,
			CreatedTime:      created,
			LastModifiedTime: modified,
			Cover:            v2.Cover,
			ItemCount:        v2.ItemCount,
			ItemSize:         v2.ItemSize,
		},
	}
	return v3ToV4(v3)
}

// narrowTimestamp converts a legacy unsigned 128-bit millisecond value into
// signed 64-bit. Overflow is a migration error, never a silent truncation.
func narrowTimestamp(id string, n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return 0, apperr.Newf(apperr.Serialization,
			"record %s has a timestamp outside the signed 64-bit range: %s", id, n)
	}
	if v > math.MaxInt64 {
		return 0, apperr.Newf(apperr.Serialization,
			"record %s has a timestamp outside the signed 64-bit range: %s", id, n)
	}
	return int64(v), nil
}

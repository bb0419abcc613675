// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package migration

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/galleria/internal/apperr"
	"github.com/tomtom215/galleria/internal/models"
)

// Legacy tag-flags the V3→V4 transform lifts into explicit booleans.
const (
	legacyTagFavorite = "_favorite"
	legacyTagArchived = "_archived"
	legacyTagTrashed  = "_trashed"

	// legacyDescriptionKey is the EXIF-vector key older versions abused to
	// carry the user's description.
	legacyDescriptionKey = "_user_defined_description"
)

// v3Record is the pre-V4 row shape: flags still encoded as underscore tags,
// no update_at, description buried in the EXIF vector.
type v3Record struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Thumbhash []byte   `json:"thumbhash,omitempty"`
	Tags      []string `json:"tags,omitempty"`

	Image *v3Media `json:"image,omitempty"`
	Video *v3Media `json:"video,omitempty"`
	Album *v3Album `json:"album,omitempty"`
}

type v3Media struct {
	Size     int64               `json:"size"`
	Width    int                 `json:"width"`
	Height   int                 `json:"height"`
	Ext      string              `json:"ext"`
	Phash    []byte              `json:"phash,omitempty"`
	Duration float64             `json:"duration,omitempty"`
	Albums   []string            `json:"albums,omitempty"`
	Exif     map[string]string   `json:"exif_vec,omitempty"`
	Alias    []models.FileModify `json:"alias,omitempty"`
}

type v3Album struct {
	Title            string                  `json:"title,omitempty"`
	CreatedTime      int64                   `json:"created_time"`
	StartTime        *int64                  `json:"start_time,omitempty"`
	EndTime          *int64                  `json:"end_time,omitempty"`
	LastModifiedTime int64                   `json:"last_modified_time"`
	Cover            *string                 `json:"cover,omitempty"`
	ItemCount        int                     `json:"item_count"`
	ItemSize         int64                   `json:"item_size"`
	ShareList        map[string]models.Share `json:"share_list,omitempty"`
}

// safeDecodeV3 decodes a version-3 payload behind a panic isolator: schema
// probing must produce errors, not process aborts.
func safeDecodeV3(payload []byte) (record *v3Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Newf(apperr.Serialization, "v3 decode panic: %v", r)
		}
	}()

	version, body, err := models.SplitVersion(payload)
	if err != nil {
		return nil, err
	}
	if version != models.SchemaV3 {
		return nil, apperr.Newf(apperr.Serialization, "payload is v%d, not v3", version)
	}
	var v3 v3Record
	if err := json.Unmarshal(body, &v3); err != nil {
		return nil, apperr.Wrap(apperr.Serialization, "decode v3 record", err)
	}
	if !models.ValidID(v3.ID) {
		return nil, apperr.Newf(apperr.Serialization, "v3 record has invalid id %q", v3.ID)
	}
	return &v3, nil
}

// convertV3 runs the V3→V4 transform for one row (V4 and V5 share a shape,
// so the result encodes directly into the new store).
func convertV3(payload []byte) (*models.Record, error) {
	v3, err := safeDecodeV3(payload)
	if err != nil {
		return nil, err
	}
	return v3ToV4(v3)
}

// v3ToV4 lifts tag-flags into booleans, extracts the legacy description,
// and synthesizes update_at from the newest alias scan time.
func v3ToV4(v3 *v3Record) (*models.Record, error) {
	record := &models.Record{
		Object: models.Object{
			ID:        v3.ID,
			Type:      models.ObjectType(v3.Type),
			Thumbhash: v3.Thumbhash,
		},
	}

	for _, tag := range v3.Tags {
		switch tag {
		case legacyTagFavorite:
			record.IsFavorite = true
		case legacyTagArchived:
			record.IsArchived = true
		case legacyTagTrashed:
			record.IsTrashed = true
		default:
			if strings.HasPrefix(tag, "_") {
				// Unknown reserved tags are dropped rather than leaked.
				continue
			}
			record.Tags.Add(tag)
		}
	}

	switch record.Type {
	case models.TypeImage:
		if v3.Image == nil {
			return nil, apperr.Newf(apperr.Serialization, "v3 image %s lacks payload", v3.ID)
		}
		media, err := v3MediaToV4(v3.ID, v3.Image, record)
		if err != nil {
			return nil, err
		}
		record.Image = &models.ImageMetadata{MediaMetadata: *media, Phash: v3.Image.Phash}
	case models.TypeVideo:
		if v3.Video == nil {
			return nil, apperr.Newf(apperr.Serialization, "v3 video %s lacks payload", v3.ID)
		}
		media, err := v3MediaToV4(v3.ID, v3.Video, record)
		if err != nil {
			return nil, err
		}
		record.Video = &models.VideoMetadata{MediaMetadata: *media, Duration: v3.Video.Duration}
	case models.TypeAlbum:
		if v3.Album == nil {
			return nil, apperr.Newf(apperr.Serialization, "v3 album %s lacks payload", v3.ID)
		}
		record.Album = &models.AlbumMetadata{
			Title:            v3.Album.Title,
			CreatedTime:      v3.Album.CreatedTime,
			StartTime:        v3.Album.StartTime,
			EndTime:          v3.Album.EndTime,
			LastModifiedTime: v3.Album.LastModifiedTime,
			Cover:            v3.Album.Cover,
			ItemCount:        v3.Album.ItemCount,
			ItemSize:         v3.Album.ItemSize,
			ShareList:        v3.Album.ShareList,
		}
		record.UpdateAt = v3.Album.LastModifiedTime
	default:
		return nil, apperr.Newf(apperr.Serialization, "v3 record %s has type %q", v3.ID, v3.Type)
	}
	return record, nil
}

func v3MediaToV4(id string, m *v3Media, record *models.Record) (*models.MediaMetadata, error) {
	media := &models.MediaMetadata{
		Size:   m.Size,
		Width:  m.Width,
		Height: m.Height,
		Ext:    models.NormalizeExt(m.Ext),
		Albums: models.NewStringSet(m.Albums...),
		Alias:  m.Alias,
	}

	for _, key := range sortedKeys(m.Exif) {
		value := m.Exif[key]
		if key == legacyDescriptionKey {
			record.Description = value
			continue
		}
		media.Exif.Set(key, value)
	}

	for _, alias := range m.Alias {
		if alias.ScanTime > record.UpdateAt {
			record.UpdateAt = alias.ScanTime
		}
	}
	if record.UpdateAt < 0 {
		return nil, apperr.Newf(apperr.Serialization,
			"record %s has a timestamp outside the signed 64-bit range", id)
	}
	return media, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

// safeDecodeV4 probes whether a payload already decodes under the running
// codec, again behind a panic isolator.
func safeDecodeV4(payload []byte) (record *models.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Newf(apperr.Serialization, "v4 decode panic: %v", r)
		}
	}()

	record, err = models.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("probe v4: %w", err)
	}
	if !models.ValidID(record.ID) {
		return nil, apperr.Newf(apperr.Serialization, "v4 record has invalid id %q", record.ID)
	}
	return record, nil
}

// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

// Package models defines the durable record types stored in the gallery
// database: the Object header shared by every variant, the media and album
// metadata payloads, and the versioned codec used for the embedded KV store.
package models

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// ObjectType discriminates the Record union.
type ObjectType string

// Record variants.
const (
	TypeImage ObjectType = "image"
	TypeVideo ObjectType = "video"
	TypeAlbum ObjectType = "album"
)

// IDLength is the length of every record id: 64 lowercase hex characters.
// Media ids are the BLAKE3 hash of the content bytes; album ids are random.
const IDLength = 64

// Object is the header shared by every record variant.
type Object struct {
	// ID is the 64-char hex content hash (media) or random id (albums).
	ID string `json:"id"`

	// Type discriminates which metadata payload is populated.
	Type ObjectType `json:"type"`

	// Pending is true while background work (transcode, aggregate) is outstanding.
	Pending bool `json:"pending"`

	// Thumbhash is the compact perceptual thumbnail, if computed.
	Thumbhash []byte `json:"thumbhash,omitempty"`

	// Description is operator-supplied free text.
	Description string `json:"description,omitempty"`

	// Tags is the record's tag set. Leading-underscore tags are reserved
	// for legacy flag migration and never written by current code.
	Tags StringSet `json:"tags,omitempty"`

	IsFavorite bool `json:"is_favorite"`
	IsArchived bool `json:"is_archived"`
	IsTrashed  bool `json:"is_trashed"`

	// UpdateAt is the millisecond timestamp of the last mutation.
	// Non-decreasing across successful mutations.
	UpdateAt int64 `json:"update_at"`
}

// FileModify records one source filesystem path observed for a record.
type FileModify struct {
	// File is the source path as seen by the watcher or uploader.
	File string `json:"file"`

	// Modified is the file's mtime in milliseconds.
	Modified int64 `json:"modified"`

	// ScanTime is when the path was ingested, in milliseconds.
	ScanTime int64 `json:"scan_time"`
}

// MediaMetadata is the payload shared by images and videos.
type MediaMetadata struct {
	Size   int64  `json:"size"`
	Width  int    `json:"width"`
	Height int    `json:"height"`

	// Ext is the lowercased file extension without the dot.
	Ext string `json:"ext"`

	// Albums is the set of album ids this item belongs to.
	Albums StringSet `json:"albums,omitempty"`

	// Exif holds the extracted EXIF-like key/value pairs in extraction order.
	Exif ExifVec `json:"exif_vec,omitempty"`

	// Alias lists every source path that has ever resolved to this content,
	// ordered by scan time. Append-only.
	Alias []FileModify `json:"alias,omitempty"`
}

// ImageMetadata is the media payload for images.
type ImageMetadata struct {
	MediaMetadata

	// Phash is the perceptual hash used for similarity grouping.
	Phash []byte `json:"phash,omitempty"`
}

// VideoMetadata is the media payload for videos.
type VideoMetadata struct {
	MediaMetadata

	// Duration is the stream duration in seconds.
	Duration float64 `json:"duration"`
}

// AlbumMetadata is the payload for album records.
type AlbumMetadata struct {
	Title            string  `json:"title,omitempty"`
	CreatedTime      int64   `json:"created_time"`
	StartTime        *int64  `json:"start_time,omitempty"`
	EndTime          *int64  `json:"end_time,omitempty"`
	LastModifiedTime int64   `json:"last_modified_time"`
	Cover            *string `json:"cover,omitempty"`

	// ItemCount and ItemSize are aggregates derived from non-trashed members.
	ItemCount int   `json:"item_count"`
	ItemSize  int64 `json:"item_size"`

	// ShareList maps share id to its capability grant.
	ShareList map[string]Share `json:"share_list,omitempty"`
}

// Record is the tagged union stored one-per-row in the data table.
// Exactly one of Image, Video, Album is non-nil, matching Object.Type.
type Record struct {
	Object

	Image *ImageMetadata `json:"image,omitempty"`
	Video *VideoMetadata `json:"video,omitempty"`
	Album *AlbumMetadata `json:"album,omitempty"`
}

// Media returns the shared media payload, or nil for albums.
func (r *Record) Media() *MediaMetadata {
	switch r.Type {
	case TypeImage:
		if r.Image != nil {
			return &r.Image.MediaMetadata
		}
	case TypeVideo:
		if r.Video != nil {
			return &r.Video.MediaMetadata
		}
	}
	return nil
}

// IsMedia reports whether the record is an image or video.
func (r *Record) IsMedia() bool {
	return r.Type == TypeImage || r.Type == TypeVideo
}

// NewImage constructs an image record for the given content hash.
func NewImage(id string, meta ImageMetadata) *Record {
	return &Record{
		Object: Object{ID: id, Type: TypeImage},
		Image:  &meta,
	}
}

// NewVideo constructs a video record for the given content hash.
// Videos start pending: the transcode stage clears the flag.
func NewVideo(id string, meta VideoMetadata) *Record {
	return &Record{
		Object: Object{ID: id, Type: TypeVideo, Pending: true},
		Video:  &meta,
	}
}

// NewAlbum constructs an album record with a fresh random id.
func NewAlbum(title string, createdAt int64) *Record {
	return &Record{
		Object: Object{ID: NewAlbumID(), Type: TypeAlbum},
		Album: &AlbumMetadata{
			Title:            title,
			CreatedTime:      createdAt,
			LastModifiedTime: createdAt,
		},
	}
}

// NewAlbumID returns a random 64-char lowercase hex id, the same shape as a
// content hash so albums share the single data table keyspace.
func NewAlbumID() string {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic("models: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf[:])
}

// ValidID reports whether s is a well-formed record id.
func ValidID(s string) bool {
	if len(s) != IDLength {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Shard returns the two-char directory shard for an id.
func Shard(id string) string {
	return id[:2]
}

// NormalizeExt lowercases an extension and strips a leading dot.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// videoExts are the extensions routed through the video pipeline.
var videoExts = map[string]bool{
	"mp4": true, "mov": true, "avi": true, "mkv": true, "webm": true,
	"m4v": true, "mts": true, "m2ts": true, "3gp": true, "gif": true,
}

// imageExts are the extensions routed through the image pipeline.
var imageExts = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "webp": true, "bmp": true,
	"tif": true, "tiff": true, "heic": true,
}

// ClassifyExt returns the record type an extension maps to, and whether the
// extension is supported at all.
func ClassifyExt(ext string) (ObjectType, bool) {
	ext = NormalizeExt(ext)
	switch {
	case imageExts[ext]:
		return TypeImage, true
	case videoExts[ext]:
		return TypeVideo, true
	default:
		return "", false
	}
}

// SupportedExts returns every extension the ingestion pipeline accepts.
// The watcher uses this as its event filter.
func SupportedExts() []string {
	out := make([]string, 0, len(imageExts)+len(videoExts))
	for e := range imageExts {
		out = append(out, e)
	}
	for e := range videoExts {
		out = append(out, e)
	}
	return out
}

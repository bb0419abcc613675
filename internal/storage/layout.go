// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

// Package storage resolves every on-disk path the gallery uses: the data
// root, the content-addressed blob layout, and the database files.
//
// Blobs are sharded by the first two hex characters of the content hash to
// bound directory fan-out:
//
//	object/imported/ab/abcdef....jpg    original bytes
//	object/compressed/ab/abcdef....jpg  image thumbnail / video poster
//	object/compressed/ab/abcdef....mp4  transcoded video
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tomtom215/galleria/internal/models"
)

// Database file names under <root>/db. The index suffix is the schema
// version: breaking codec changes increment the file name, never rewrite in
// place.
const (
	IndexDBName  = "index_v5.redb"
	TempDBName   = "temp_db.redb"
	CacheDBName  = "cache_db.redb"
	ExpireDBName = "expire_db.redb"

	// LegacyIndexDBName is the pre-v5 single-file store the migration
	// engine knows how to read.
	LegacyIndexDBName = "index.redb"
)

// EnvDataRoot overrides data-root detection when set.
const EnvDataRoot = "GALLERIA_DATA_ROOT"

// Layout holds the resolved directory tree for one gallery instance.
type Layout struct {
	Root string
}

// ResolveRoot picks the data root. Precedence, first match wins:
//
//  1. explicit override (the --data-root flag), when non-empty
//  2. GALLERIA_DATA_ROOT environment variable
//  3. portable mode: ./db or ./object exists beside the working directory
//  4. the platform user config directory, <UserConfigDir>/galleria
func ResolveRoot(override string) (string, error) {
	if override != "" {
		return filepath.Abs(override)
	}
	if env := os.Getenv(EnvDataRoot); env != "" {
		return filepath.Abs(env)
	}
	for _, probe := range []string{"db", "object"} {
		if info, err := os.Stat(probe); err == nil && info.IsDir() {
			return filepath.Abs(".")
		}
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve platform data dir: %w", err)
	}
	return filepath.Join(base, "galleria"), nil
}

// NewLayout returns the layout rooted at root.
func NewLayout(root string) *Layout {
	return &Layout{Root: root}
}

// EnsureDirs creates the directory skeleton the gallery needs.
func (l *Layout) EnsureDirs() error {
	for _, dir := range []string{
		l.DBDir(),
		l.UploadDir(),
		filepath.Join(l.Root, "object", "imported"),
		filepath.Join(l.Root, "object", "compressed"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// DBDir is the directory holding every database file.
func (l *Layout) DBDir() string { return filepath.Join(l.Root, "db") }

// IndexDB is the primary KV store path.
func (l *Layout) IndexDB() string { return filepath.Join(l.DBDir(), IndexDBName) }

// LegacyIndexDB is the pre-v5 store path, input to the migration engine.
func (l *Layout) LegacyIndexDB() string { return filepath.Join(l.DBDir(), LegacyIndexDBName) }

// TempDB is the snapshot store path. Derivable; deleted on startup.
func (l *Layout) TempDB() string { return filepath.Join(l.DBDir(), TempDBName) }

// CacheDB is the query cache store path. Derivable; deleted on startup.
func (l *Layout) CacheDB() string { return filepath.Join(l.DBDir(), CacheDBName) }

// ExpireDB is the TTL store path. Derivable; deleted on startup.
func (l *Layout) ExpireDB() string { return filepath.Join(l.DBDir(), ExpireDBName) }

// UploadDir receives uploaded files before they are indexed in place.
func (l *Layout) UploadDir() string { return filepath.Join(l.Root, "upload") }

// ConfigFile is the configuration file path.
func (l *Layout) ConfigFile() string { return filepath.Join(l.Root, "config.json") }

// ImportedPath is where the original bytes for id live.
func (l *Layout) ImportedPath(id, ext string) string {
	return filepath.Join(l.Root, "object", "imported", models.Shard(id),
		id+"."+models.NormalizeExt(ext))
}

// CompressedImagePath is the JPEG derivative for id: the thumbnail for
// images, the poster frame for videos.
func (l *Layout) CompressedImagePath(id string) string {
	return filepath.Join(l.Root, "object", "compressed", models.Shard(id), id+".jpg")
}

// CompressedVideoPath is the transcoded MP4 for a video id.
func (l *Layout) CompressedVideoPath(id string) string {
	return filepath.Join(l.Root, "object", "compressed", models.Shard(id), id+".mp4")
}

// ResolveSyncPaths turns configured sync paths into absolute watch roots;
// relative entries resolve against the data root.
func ResolveSyncPaths(root string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		out = append(out, p)
	}
	return out
}

// RemoveDerivedDBs deletes the snapshot, cache, and expire stores. They are
// rebuilt from the primary store, so startup always begins clean.
func (l *Layout) RemoveDerivedDBs() error {
	for _, path := range []string{l.TempDB(), l.CacheDB(), l.ExpireDB()} {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

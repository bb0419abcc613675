// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package index

import (
	"path/filepath"
	"regexp"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/tomtom215/galleria/internal/models"
)

// exifTimeLayouts are the accepted DateTimeOriginal formats, in naive local
// time. The colon-separated form is what cameras actually write.
var exifTimeLayouts = []string{
	"2006:01:02 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// filenameTimeRE matches YYYY MM DD hh mm ss groups in a file name, each
// pair optionally separated by a single non-alphanumeric character
// (IMG_20240102_120000.jpg, 2024-01-02 12.00.00.jpg, ...).
var filenameTimeRE = regexp.MustCompile(
	`(\d{4})[^0-9A-Za-z]?(\d{2})[^0-9A-Za-z]?(\d{2})[^0-9A-Za-z]?(\d{2})[^0-9A-Za-z]?(\d{2})[^0-9A-Za-z]?(\d{2})`)

// SortTimestamp derives the ordering key for a record. The first rule that
// produces a value wins, and every produced value is bounded by now:
//
//	albums:  created_time
//	media:   1. EXIF DateTimeOriginal (naive local, accepted iff ≤ now)
//	         2. max filename-embedded time across aliases, ≤ now
//	         3. max scan_time across aliases
//	         4. modified of the alias with the newest scan_time
//	         5. a deterministic pseudo-random value from the id
func SortTimestamp(r *models.Record, now time.Time) int64 {
	if r.Type == models.TypeAlbum {
		if r.Album != nil {
			return r.Album.CreatedTime
		}
		return 0
	}

	media := r.Media()
	if media == nil {
		return 0
	}
	nowMS := now.UnixMilli()

	if v, ok := media.Exif.Get("DateTimeOriginal"); ok {
		if ms, ok := parseExifTime(v, now); ok && ms <= nowMS {
			return ms
		}
	}

	if ms, ok := maxFilenameTime(media.Alias, now); ok && ms <= nowMS {
		return ms
	}

	if len(media.Alias) > 0 {
		var maxScan int64
		newest := media.Alias[0]
		for _, alias := range media.Alias {
			if alias.ScanTime > maxScan {
				maxScan = alias.ScanTime
			}
			if alias.ScanTime >= newest.ScanTime {
				newest = alias
			}
		}
		if maxScan > 0 {
			return maxScan
		}
		if newest.Modified > 0 {
			return newest.Modified
		}
	}

	// Random bucket: synthetic data without any time signal. Derived from
	// the id so rebuilds order identically.
	return int64(xxhash.Sum64String(r.ID) % uint64(nowMS))
}

func parseExifTime(value string, now time.Time) (int64, bool) {
	for _, layout := range exifTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, now.Location()); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

// maxFilenameTime scans every alias file name for an embedded timestamp and
// returns the newest one not in the future.
func maxFilenameTime(aliases []models.FileModify, now time.Time) (int64, bool) {
	nowMS := now.UnixMilli()
	var best int64
	found := false
	for _, alias := range aliases {
		name := filepath.Base(alias.File)
		for _, m := range filenameTimeRE.FindAllStringSubmatch(name, -1) {
			t, err := time.ParseInLocation("20060102150405",
				m[1]+m[2]+m[3]+m[4]+m[5]+m[6], now.Location())
			if err != nil {
				continue
			}
			ms := t.UnixMilli()
			if ms <= nowMS && (!found || ms > best) {
				best = ms
				found = true
			}
		}
	}
	return best, found
}

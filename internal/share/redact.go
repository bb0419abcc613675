// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package share

import "github.com/tomtom215/galleria/internal/models"

// Redact returns a copy of the record shaped for the viewer:
//
//   - without show_metadata: albums, tags, aliases and EXIF are cleared
//   - with show_metadata: only the newest alias (max scan_time) is kept
//
// The stored record is never modified; redaction happens on the response
// copy only.
func Redact(record *models.Record, viewer *Context) *models.Record {
	out := *record
	if record.Image != nil {
		img := *record.Image
		out.Image = &img
	}
	if record.Video != nil {
		vid := *record.Video
		out.Video = &vid
	}
	if record.Album != nil {
		alb := *record.Album
		// Share grants never leak through a share.
		if !viewer.Admin {
			alb.ShareList = nil
		}
		out.Album = &alb
	}

	media := out.Media()
	if media == nil {
		return &out
	}

	if !viewer.ShowMetadata() {
		out.Tags = nil
		media.Albums = nil
		media.Alias = nil
		media.Exif = nil
		return &out
	}

	// Full metadata viewers still only get the newest alias; the full
	// history stays server-side.
	if len(media.Alias) > 1 {
		newest := media.Alias[0]
		for _, alias := range media.Alias[1:] {
			if alias.ScanTime > newest.ScanTime {
				newest = alias
			}
		}
		media.Alias = []models.FileModify{newest}
	}
	return &out
}

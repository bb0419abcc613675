// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package models

// Share is a capability attached to an album, granting limited access to the
// album's members without authentication.
type Share struct {
	// URL is the public path fragment the share is reachable under.
	URL string `json:"url"`

	// Description is operator-facing free text.
	Description string `json:"description,omitempty"`

	// PasswordHash is the bcrypt hash of the share password; empty means open.
	PasswordHash string `json:"password,omitempty"`

	// ShowMetadata grants tags, aliases, EXIF and album membership on responses.
	ShowMetadata bool `json:"show_metadata"`

	// ShowDownload grants access to original blobs (not just derivatives).
	ShowDownload bool `json:"show_download"`

	// ShowUpload grants uploading into the shared album.
	ShowUpload bool `json:"show_upload"`

	// Exp is the expiry in milliseconds since epoch; zero means no expiry.
	Exp int64 `json:"exp,omitempty"`
}

// Expired reports whether the share is past its expiry at nowMS.
func (s Share) Expired(nowMS int64) bool {
	return s.Exp != 0 && nowMS > s.Exp
}

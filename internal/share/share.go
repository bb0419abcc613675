// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

// Package share resolves album share capabilities and applies the
// permission-driven redaction on outgoing records.
package share

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/galleria/internal/apperr"
	"github.com/tomtom215/galleria/internal/models"
)

// Validation failures are distinguished so the boundary can prompt for a
// password on one and show a dead-link page on the other.
var (
	// ErrUnauthorized means the password is missing or wrong.
	ErrUnauthorized = errors.New("share: unauthorized")

	// ErrExpired means the share is past its expiry.
	ErrExpired = errors.New("share: expired")
)

// Context is the viewer identity a request acts under: either admin or one
// resolved album share.
type Context struct {
	Admin bool

	// AlbumID and ShareID identify the authorizing share when not admin.
	AlbumID string
	ShareID string
	Share   models.Share
}

// AdminContext is the unrestricted viewer.
var AdminContext = &Context{Admin: true}

// ShowMetadata reports whether tags/aliases/EXIF/albums survive redaction.
func (c *Context) ShowMetadata() bool {
	return c.Admin || c.Share.ShowMetadata
}

// ShowDownload reports whether original-blob access is granted.
func (c *Context) ShowDownload() bool {
	return c.Admin || c.Share.ShowDownload
}

// ShowUpload reports whether uploading into the shared album is granted.
func (c *Context) ShowUpload() bool {
	return c.Admin || c.Share.ShowUpload
}

// Resolve validates a share id + password pair against an album record and
// returns the viewer context. Password failures return ErrUnauthorized;
// elapsed shares return ErrExpired; both arrive wrapped as apperr.Auth.
func Resolve(album *models.Record, shareID, password string, now time.Time) (*Context, error) {
	if album.Type != models.TypeAlbum || album.Album == nil {
		return nil, apperr.Newf(apperr.InvalidInput, "record %s is not an album", album.ID[:8])
	}
	grant, ok := album.Album.ShareList[shareID]
	if !ok {
		return nil, apperr.Wrap(apperr.Auth, "unknown share", ErrUnauthorized)
	}
	if grant.Expired(now.UnixMilli()) {
		return nil, apperr.Wrap(apperr.Auth, "share expired", ErrExpired)
	}
	if grant.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(grant.PasswordHash), []byte(password)); err != nil {
			return nil, apperr.Wrap(apperr.Auth, "share password mismatch", ErrUnauthorized)
		}
	}
	return &Context{AlbumID: album.ID, ShareID: shareID, Share: grant}, nil
}

// HashPassword bcrypt-hashes a share password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "hash share password", err)
	}
	return string(hash), nil
}

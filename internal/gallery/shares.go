// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package gallery

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tomtom215/galleria/internal/apperr"
	"github.com/tomtom215/galleria/internal/models"
	"github.com/tomtom215/galleria/internal/share"
)

// ShareParams is the operator input for creating or editing a share.
type ShareParams struct {
	Description string `json:"description" validate:"max=1024"`

	// Password, when non-empty, protects the share; stored as bcrypt.
	Password string `json:"password" validate:"omitempty,min=4,max=72"`

	ShowMetadata bool `json:"show_metadata"`
	ShowDownload bool `json:"show_download"`
	ShowUpload   bool `json:"show_upload"`

	// Exp is the expiry in milliseconds since epoch; zero means none.
	Exp int64 `json:"exp" validate:"min=0"`
}

var shareValidator = validator.New(validator.WithRequiredStructEnabled())

// CreateShare attaches a share to an album and returns the share id.
func (s *Service) CreateShare(ctx context.Context, albumID string, params ShareParams) (string, error) {
	if err := s.mutable(); err != nil {
		return "", err
	}
	if err := shareValidator.Struct(params); err != nil {
		return "", apperr.Wrap(apperr.InvalidInput, "invalid share parameters", err)
	}

	grant, err := buildShare(params)
	if err != nil {
		return "", err
	}
	shareID := uuid.New().String()
	grant.URL = "/share/" + shareID

	err = s.mutateRecords(ctx, []string{albumID}, func(record *models.Record) bool {
		if record.Album == nil {
			return false
		}
		if record.Album.ShareList == nil {
			record.Album.ShareList = make(map[string]models.Share)
		}
		record.Album.ShareList[shareID] = grant
		record.Album.LastModifiedTime = time.Now().UnixMilli()
		return true
	})
	if err != nil {
		return "", err
	}
	return shareID, nil
}

// EditShare replaces a share's grant in place, keeping its id and URL.
func (s *Service) EditShare(ctx context.Context, albumID, shareID string, params ShareParams) error {
	if err := s.mutable(); err != nil {
		return err
	}
	if err := shareValidator.Struct(params); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "invalid share parameters", err)
	}

	grant, err := buildShare(params)
	if err != nil {
		return err
	}

	found := false
	err = s.mutateRecords(ctx, []string{albumID}, func(record *models.Record) bool {
		if record.Album == nil {
			return false
		}
		existing, ok := record.Album.ShareList[shareID]
		if !ok {
			return false
		}
		found = true
		grant.URL = existing.URL
		if params.Password == "" {
			// Editing without a new password keeps the old one.
			grant.PasswordHash = existing.PasswordHash
		}
		record.Album.ShareList[shareID] = grant
		record.Album.LastModifiedTime = time.Now().UnixMilli()
		return true
	})
	if err != nil {
		return err
	}
	if !found {
		return apperr.Newf(apperr.NotFound, "share %s on album %s", shareID, albumID[:8])
	}
	return nil
}

// DeleteShare removes a share from an album.
func (s *Service) DeleteShare(ctx context.Context, albumID, shareID string) error {
	if err := s.mutable(); err != nil {
		return err
	}
	found := false
	err := s.mutateRecords(ctx, []string{albumID}, func(record *models.Record) bool {
		if record.Album == nil {
			return false
		}
		if _, ok := record.Album.ShareList[shareID]; !ok {
			return false
		}
		found = true
		delete(record.Album.ShareList, shareID)
		record.Album.LastModifiedTime = time.Now().UnixMilli()
		return true
	})
	if err != nil {
		return err
	}
	if !found {
		return apperr.Newf(apperr.NotFound, "share %s on album %s", shareID, albumID[:8])
	}
	return nil
}

func buildShare(params ShareParams) (models.Share, error) {
	grant := models.Share{
		Description:  params.Description,
		ShowMetadata: params.ShowMetadata,
		ShowDownload: params.ShowDownload,
		ShowUpload:   params.ShowUpload,
		Exp:          params.Exp,
	}
	if params.Password != "" {
		hash, err := share.HashPassword(params.Password)
		if err != nil {
			return models.Share{}, err
		}
		grant.PasswordHash = hash
	}
	return grant, nil
}

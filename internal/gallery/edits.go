// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package gallery

import (
	"context"
	"strings"
	"time"

	"github.com/tomtom215/galleria/internal/apperr"
	"github.com/tomtom215/galleria/internal/flush"
	"github.com/tomtom215/galleria/internal/models"
)

// EditTags adds and removes tags on the records at the given snapshot
// positions. Leading-underscore tags are reserved for legacy migration and
// rejected.
func (s *Service) EditTags(ctx context.Context, indices []int, timestamp int64,
	add, remove []string) error {

	if err := s.mutable(); err != nil {
		return err
	}
	for _, tag := range add {
		if strings.HasPrefix(tag, "_") {
			return apperr.Newf(apperr.InvalidInput, "tag %q uses the reserved prefix", tag)
		}
	}
	ids, err := s.resolveIndices(timestamp, indices)
	if err != nil {
		return err
	}
	return s.mutateRecords(ctx, ids, func(record *models.Record) bool {
		changed := false
		for _, tag := range add {
			if !record.Tags.Has(tag) {
				record.Tags.Add(tag)
				changed = true
			}
		}
		for _, tag := range remove {
			if record.Tags.Has(tag) {
				record.Tags.Remove(tag)
				changed = true
			}
		}
		return changed
	})
}

// EditFlags sets the favorite/archived/trashed booleans on the records at
// the given snapshot positions. Nil leaves a flag untouched. Touching
// trashed schedules aggregate updates for every album the records belong
// to, since trashed items leave their albums' counts.
func (s *Service) EditFlags(ctx context.Context, indices []int, timestamp int64,
	favorite, archived, trashed *bool) error {

	if err := s.mutable(); err != nil {
		return err
	}
	ids, err := s.resolveIndices(timestamp, indices)
	if err != nil {
		return err
	}

	touchedAlbums := models.StringSet{}
	err = s.mutateRecords(ctx, ids, func(record *models.Record) bool {
		changed := false
		if favorite != nil && record.IsFavorite != *favorite {
			record.IsFavorite = *favorite
			changed = true
		}
		if archived != nil && record.IsArchived != *archived {
			record.IsArchived = *archived
			changed = true
		}
		if trashed != nil && record.IsTrashed != *trashed {
			record.IsTrashed = *trashed
			changed = true
			if media := record.Media(); media != nil {
				for albumID := range media.Albums {
					touchedAlbums.Add(albumID)
				}
			}
		}
		return changed
	})
	if err != nil {
		return err
	}

	for albumID := range touchedAlbums {
		s.albums.ScheduleSelfUpdate(albumID)
	}
	return nil
}

// EditDescription replaces the free-text description on the records.
func (s *Service) EditDescription(ctx context.Context, indices []int, timestamp int64,
	description string) error {

	if err := s.mutable(); err != nil {
		return err
	}
	ids, err := s.resolveIndices(timestamp, indices)
	if err != nil {
		return err
	}
	return s.mutateRecords(ctx, ids, func(record *models.Record) bool {
		if record.Description == description {
			return false
		}
		record.Description = description
		return true
	})
}

// EditAlbums adds and removes album memberships on the records at the given
// snapshot positions, then schedules aggregate updates on every touched
// album.
func (s *Service) EditAlbums(ctx context.Context, indices []int, timestamp int64,
	addAlbums, removeAlbums []string) error {

	if err := s.mutable(); err != nil {
		return err
	}
	for _, albumID := range addAlbums {
		record, err := s.store.Get(albumID)
		if err != nil {
			return err
		}
		if record.Type != models.TypeAlbum {
			return apperr.Newf(apperr.InvalidInput, "%s is not an album", albumID[:8])
		}
	}
	ids, err := s.resolveIndices(timestamp, indices)
	if err != nil {
		return err
	}

	err = s.mutateRecords(ctx, ids, func(record *models.Record) bool {
		media := record.Media()
		if media == nil {
			return false
		}
		changed := false
		for _, albumID := range addAlbums {
			if !media.Albums.Has(albumID) {
				media.Albums.Add(albumID)
				changed = true
			}
		}
		for _, albumID := range removeAlbums {
			if media.Albums.Has(albumID) {
				media.Albums.Remove(albumID)
				changed = true
			}
		}
		return changed
	})
	if err != nil {
		return err
	}

	for _, albumID := range addAlbums {
		s.albums.ScheduleSelfUpdate(albumID)
	}
	for _, albumID := range removeAlbums {
		s.albums.ScheduleSelfUpdate(albumID)
	}
	return nil
}

// CreateAlbum creates an album, optionally signing the records at the given
// snapshot positions in as initial members, and returns the album id.
func (s *Service) CreateAlbum(ctx context.Context, title string, indices []int,
	timestamp int64) (string, error) {

	if err := s.mutable(); err != nil {
		return "", err
	}
	record := models.NewAlbum(title, time.Now().UnixMilli())
	if err := s.flush.FlushSync(ctx, flush.Insert(record)); err != nil {
		return "", err
	}

	if len(indices) > 0 {
		if err := s.EditAlbums(ctx, indices, timestamp, []string{record.ID}, nil); err != nil {
			return "", err
		}
	} else {
		s.albums.ScheduleSelfUpdate(record.ID)
	}
	return record.ID, nil
}

// SetAlbumCover pins an album's cover to a member item; the member's
// thumbhash becomes the album's.
func (s *Service) SetAlbumCover(ctx context.Context, albumID, coverHash string) error {
	if err := s.mutable(); err != nil {
		return err
	}
	cover, err := s.store.Get(coverHash)
	if err != nil {
		return err
	}
	media := cover.Media()
	if media == nil || !media.Albums.Has(albumID) {
		return apperr.Newf(apperr.InvalidInput, "%s is not a member of album %s",
			coverHash[:8], albumID[:8])
	}
	if cover.IsTrashed {
		return apperr.Newf(apperr.InvalidInput, "cover %s is trashed", coverHash[:8])
	}
	return s.mutateRecords(ctx, []string{albumID}, func(record *models.Record) bool {
		if record.Album == nil {
			return false
		}
		id := coverHash
		record.Album.Cover = &id
		record.Thumbhash = cover.Thumbhash
		record.Album.LastModifiedTime = time.Now().UnixMilli()
		return true
	})
}

// SetAlbumTitle renames an album. An empty title clears it.
func (s *Service) SetAlbumTitle(ctx context.Context, albumID, title string) error {
	if err := s.mutable(); err != nil {
		return err
	}
	return s.mutateRecords(ctx, []string{albumID}, func(record *models.Record) bool {
		if record.Album == nil || record.Album.Title == title {
			return false
		}
		record.Album.Title = title
		record.Album.LastModifiedTime = time.Now().UnixMilli()
		return true
	})
}

// Reindex queues a detached regeneration of the indexing stages for each
// record. Every record is queued as its own task; the records are not
// grouped into batches.
func (s *Service) Reindex(ctx context.Context, indices []int, timestamp int64) error {
	if err := s.mutable(); err != nil {
		return err
	}
	ids, err := s.resolveIndices(timestamp, indices)
	if err != nil {
		return err
	}
	for _, id := range ids {
		s.pipeline.RegenerateDetached(id)
	}
	return nil
}

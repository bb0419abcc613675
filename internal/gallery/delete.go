// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package gallery

import (
	"context"
	"errors"
	"os"

	"github.com/tomtom215/galleria/internal/flush"
	"github.com/tomtom215/galleria/internal/logging"
	"github.com/tomtom215/galleria/internal/models"
)

// DeleteRecords removes the records at the given snapshot positions.
//
// Deleting a media record also removes its blobs and schedules aggregate
// updates for the albums it belonged to. Deleting an album clears the album
// id from every member's albums set in the same flush batch, so no record
// ever references a missing album.
func (s *Service) DeleteRecords(ctx context.Context, indices []int, timestamp int64) error {
	if err := s.mutable(); err != nil {
		return err
	}
	ids, err := s.resolveIndices(timestamp, indices)
	if err != nil {
		return err
	}

	removals := make([]string, 0, len(ids))
	var memberFixups []*models.Record
	touchedAlbums := models.StringSet{}
	var blobs []string

	for _, id := range ids {
		record, err := s.store.Get(id)
		if err != nil {
			return err
		}
		removals = append(removals, id)

		if media := record.Media(); media != nil {
			for albumID := range media.Albums {
				touchedAlbums.Add(albumID)
			}
			blobs = append(blobs,
				s.layout.ImportedPath(id, media.Ext),
				s.layout.CompressedImagePath(id))
			if record.Type == models.TypeVideo {
				blobs = append(blobs, s.layout.CompressedVideoPath(id))
			}
			continue
		}

		// Album: strip the id from every member.
		for _, entry := range s.tree.Entries() {
			memberMedia := entry.Record.Media()
			if memberMedia == nil || !memberMedia.Albums.Has(id) {
				continue
			}
			member, err := s.store.Get(entry.Record.ID)
			if err != nil {
				return err
			}
			member.Media().Albums.Remove(id)
			memberFixups = append(memberFixups, member)
		}
	}

	// Members of deleted albums that are themselves being deleted need no
	// fixup write.
	deleted := models.NewStringSet(removals...)
	kept := memberFixups[:0]
	for _, member := range memberFixups {
		if !deleted.Has(member.ID) {
			kept = append(kept, member)
		}
	}

	err = s.flush.FlushSync(ctx, flush.Mutation{Inserts: kept, Removals: removals})
	if err != nil {
		return err
	}

	for _, blob := range blobs {
		if err := os.Remove(blob); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn().Err(err).Str("blob", blob).Msg("remove blob failed")
		}
	}

	for albumID := range touchedAlbums {
		if !deleted.Has(albumID) {
			s.albums.ScheduleSelfUpdate(albumID)
		}
	}
	return nil
}

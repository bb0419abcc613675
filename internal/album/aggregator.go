// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

// Package album recomputes album aggregates when membership may have
// changed: item edits touching trash state, album edits, deletes, and album
// creation with initial members.
package album

import (
	"context"
	"time"

	"github.com/tomtom215/galleria/internal/apperr"
	"github.com/tomtom215/galleria/internal/database"
	"github.com/tomtom215/galleria/internal/flush"
	"github.com/tomtom215/galleria/internal/index"
	"github.com/tomtom215/galleria/internal/logging"
	"github.com/tomtom215/galleria/internal/models"
	"github.com/tomtom215/galleria/internal/scheduler"
)

// Aggregator is the single authority resolving album membership into
// derived counters and cover selection.
type Aggregator struct {
	store *database.Store
	tree  *index.Tree
	flush *flush.Coordinator
	io    *scheduler.Actor
}

// NewAggregator wires the aggregator.
func NewAggregator(store *database.Store, tree *index.Tree,
	coordinator *flush.Coordinator, ioActor *scheduler.Actor) *Aggregator {
	return &Aggregator{store: store, tree: tree, flush: coordinator, io: ioActor}
}

// ScheduleSelfUpdate queues an aggregate recompute for the album.
func (a *Aggregator) ScheduleSelfUpdate(albumID string) {
	a.io.ExecuteDetached(scheduler.TaskFunc("album-self-update", func(ctx context.Context) error {
		return a.SelfUpdate(ctx, albumID)
	}), scheduler.PriorityNormal)
}

// member is one non-trashed item belonging to the album.
type member struct {
	id            string
	size          int64
	sortTimestamp int64
	thumbhash     []byte
}

// SelfUpdate recomputes count, size, timespan, and cover for one album.
// The intermediate state is exposed: the album flushes with pending=true
// first and the final write clears it.
func (a *Aggregator) SelfUpdate(ctx context.Context, albumID string) error {
	record, err := a.store.Get(albumID)
	if err != nil {
		if apperr.IsNotFound(err) {
			// Deleted while queued; members were already cleaned up.
			return nil
		}
		return err
	}
	if record.Type != models.TypeAlbum {
		return apperr.Newf(apperr.InvalidInput, "self-update target %s is %s",
			albumID[:8], record.Type)
	}

	record.Pending = true
	if err := a.flush.FlushWaiting(ctx, flush.Insert(record)); err != nil {
		return err
	}

	members := a.collectMembers(albumID)
	nowMS := time.Now().UnixMilli()

	meta := record.Album
	if len(members) == 0 {
		meta.StartTime = nil
		meta.EndTime = nil
		meta.Cover = nil
		record.Thumbhash = nil
		meta.ItemCount = 0
		meta.ItemSize = 0
	} else {
		var size int64
		start, end := members[0].sortTimestamp, members[0].sortTimestamp
		for _, m := range members {
			size += m.size
			if m.sortTimestamp < start {
				start = m.sortTimestamp
			}
			if m.sortTimestamp > end {
				end = m.sortTimestamp
			}
		}
		meta.ItemCount = len(members)
		meta.ItemSize = size
		meta.StartTime = &start
		meta.EndTime = &end

		if meta.Cover == nil || !memberExists(members, *meta.Cover) {
			newest := members[0]
			for _, m := range members {
				if m.sortTimestamp > newest.sortTimestamp {
					newest = m
				}
			}
			cover := newest.id
			meta.Cover = &cover
			record.Thumbhash = newest.thumbhash
		} else {
			for _, m := range members {
				if m.id == *meta.Cover {
					record.Thumbhash = m.thumbhash
					break
				}
			}
		}
	}
	meta.LastModifiedTime = nowMS

	record.Pending = false
	record.UpdateAt = nowMS
	if err := a.flush.FlushWaiting(ctx, flush.Insert(record)); err != nil {
		return err
	}

	logging.Debug().Str("album", albumID[:8]).Int("items", meta.ItemCount).
		Msg("album aggregates updated")
	return nil
}

// collectMembers reads the in-memory index for every non-trashed item whose
// albums set contains the album id.
func (a *Aggregator) collectMembers(albumID string) []member {
	var members []member
	for _, entry := range a.tree.Entries() {
		rec := entry.Record
		if rec.IsTrashed {
			continue
		}
		media := rec.Media()
		if media == nil || !media.Albums.Has(albumID) {
			continue
		}
		members = append(members, member{
			id:            rec.ID,
			size:          media.Size,
			sortTimestamp: entry.SortTimestamp,
			thumbhash:     rec.Thumbhash,
		})
	}
	return members
}

func memberExists(members []member, id string) bool {
	for _, m := range members {
		if m.id == id {
			return true
		}
	}
	return false
}

// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package query

import (
	"strings"

	"github.com/tomtom215/galleria/internal/models"
)

// Predicate is a compiled filter: pure, thread-safe, evaluated in parallel
// over the in-memory index.
type Predicate func(*models.Record) bool

// Restriction narrows a compiled filter for callers authenticated through an
// album share that does not grant show_metadata. Metadata-bearing branches
// collapse to false and album matches are pinned to the authorizing album.
type Restriction struct {
	// AlbumID is the id of the album the share is attached to.
	AlbumID string
}

// Compile turns an expression into a predicate with full (admin) semantics.
func Compile(e *Expression) (Predicate, error) {
	return compile(e, nil)
}

// CompileRestricted compiles an expression under a hide-metadata share.
func CompileRestricted(e *Expression, r Restriction) (Predicate, error) {
	return compile(e, &r)
}

func compile(e *Expression, r *Restriction) (Predicate, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return compileNode(e, r), nil
}

//nolint:gocyclo // one arm per AST node; splitting hurts readability
func compileNode(e *Expression, r *Restriction) Predicate {
	switch {
	case len(e.Or) > 0:
		preds := compileList(e.Or, r)
		return func(rec *models.Record) bool {
			for _, p := range preds {
				if p(rec) {
					return true
				}
			}
			return false
		}

	case len(e.And) > 0:
		preds := compileList(e.And, r)
		return func(rec *models.Record) bool {
			for _, p := range preds {
				if !p(rec) {
					return false
				}
			}
			return true
		}

	case e.Not != nil:
		inner := compileNode(e.Not, r)
		return func(rec *models.Record) bool {
			return !inner(rec)
		}

	case e.Tag != nil:
		if r != nil {
			return matchNone
		}
		if e.Tag.Value != nil {
			value := *e.Tag.Value
			return func(rec *models.Record) bool {
				return rec.Tags.Has(value)
			}
		}
		return func(rec *models.Record) bool {
			return len(rec.Tags) > 0
		}

	case e.ExtType != nil:
		needle := strings.ToLower(*e.ExtType)
		return func(rec *models.Record) bool {
			return strings.Contains(string(rec.Type), needle)
		}

	case e.Ext != nil:
		needle := strings.ToLower(*e.Ext)
		return func(rec *models.Record) bool {
			media := rec.Media()
			return media != nil && strings.Contains(media.Ext, needle)
		}

	case e.Model != nil:
		return exifPredicate("Model", e.Model)

	case e.Make != nil:
		return exifPredicate("Make", e.Make)

	case e.Path != nil:
		if r != nil {
			return matchNone
		}
		needle := strings.ToLower(*e.Path)
		return func(rec *models.Record) bool {
			return matchPath(rec, needle)
		}

	case e.Album != nil:
		if r != nil {
			if e.Album.Value == nil {
				// Everything visible through a share is, by construction,
				// a member of the authorizing album: bare existence is
				// decided by the flag alone. Albums never match.
				exists := e.Album.Exists
				return func(rec *models.Record) bool {
					return exists && rec.IsMedia()
				}
			}
			// Only the authorizing album id is queryable through the share.
			if *e.Album.Value != r.AlbumID {
				return matchNone
			}
		}
		if e.Album.Value != nil {
			id := *e.Album.Value
			return func(rec *models.Record) bool {
				media := rec.Media()
				return media != nil && media.Albums.Has(id)
			}
		}
		return func(rec *models.Record) bool {
			media := rec.Media()
			return media != nil && len(media.Albums) > 0
		}

	case e.Favorite != nil:
		want := *e.Favorite
		return func(rec *models.Record) bool {
			return rec.IsFavorite == want
		}

	case e.Archived != nil:
		want := *e.Archived
		return func(rec *models.Record) bool {
			return rec.IsArchived == want
		}

	case e.Trashed != nil:
		want := *e.Trashed
		return func(rec *models.Record) bool {
			return rec.IsTrashed == want
		}

	case e.Any != nil:
		needle := strings.ToLower(*e.Any)
		raw := *e.Any
		if r != nil {
			// Under a hide-metadata share the tag, id-substring, and path
			// disjuncts drop; the type label and EXIF Make/Model checks
			// remain, and the media extension is matched as well.
			return func(rec *models.Record) bool {
				media := rec.Media()
				if media == nil {
					return false
				}
				if strings.Contains(string(rec.Type), needle) {
					return true
				}
				if strings.Contains(media.Ext, needle) {
					return true
				}
				if v, ok := media.Exif.Get("Make"); ok &&
					strings.Contains(strings.ToLower(v), needle) {
					return true
				}
				if v, ok := media.Exif.Get("Model"); ok &&
					strings.Contains(strings.ToLower(v), needle) {
					return true
				}
				return false
			}
		}
		return func(rec *models.Record) bool {
			if rec.Tags.Has(raw) {
				return true
			}
			if strings.Contains(string(rec.Type), needle) {
				return true
			}
			if strings.Contains(rec.ID, needle) {
				return true
			}
			if media := rec.Media(); media != nil {
				if v, ok := media.Exif.Get("Model"); ok &&
					strings.Contains(strings.ToLower(v), needle) {
					return true
				}
				if v, ok := media.Exif.Get("Make"); ok &&
					strings.Contains(strings.ToLower(v), needle) {
					return true
				}
			}
			return matchPath(rec, needle)
		}

	default:
		// Empty node: match everything.
		return func(*models.Record) bool { return true }
	}
}

func compileList(nodes []Expression, r *Restriction) []Predicate {
	preds := make([]Predicate, len(nodes))
	for i := range nodes {
		preds[i] = compileNode(&nodes[i], r)
	}
	return preds
}

func exifPredicate(key string, m *Match) Predicate {
	if m.Value != nil {
		needle := strings.ToLower(*m.Value)
		return func(rec *models.Record) bool {
			media := rec.Media()
			if media == nil {
				return false
			}
			v, ok := media.Exif.Get(key)
			return ok && strings.Contains(strings.ToLower(v), needle)
		}
	}
	return func(rec *models.Record) bool {
		media := rec.Media()
		if media == nil {
			return false
		}
		_, ok := media.Exif.Get(key)
		return ok
	}
}

func matchPath(rec *models.Record, lowerNeedle string) bool {
	media := rec.Media()
	if media == nil {
		return false
	}
	for _, alias := range media.Alias {
		if strings.Contains(strings.ToLower(alias.File), lowerNeedle) {
			return true
		}
	}
	return false
}

func matchNone(*models.Record) bool { return false }

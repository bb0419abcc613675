// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

// Package query defines the boolean expression tree clients filter with and
// compiles it into a pure predicate over records.
//
// Expressions arrive as JSON from the HTTP boundary. At most one field of a
// node may be set (an empty node matches every record); combinators nest
// arbitrarily:
//
//	{"and": [{"favorite": true}, {"not": {"trashed": true}}]}
package query

import (
	"github.com/tomtom215/galleria/internal/apperr"
)

// Match selects either a concrete value or a bare existence check.
type Match struct {
	Value  *string `json:"value,omitempty"`
	Exists bool    `json:"exists,omitempty"`
}

// Expression is one node of the filter tree. The zero value matches every
// record.
type Expression struct {
	Or  []Expression `json:"or,omitempty"`
	And []Expression `json:"and,omitempty"`
	Not *Expression  `json:"not,omitempty"`

	// Tag matches tag membership, or a non-empty tag set with Exists.
	Tag *Match `json:"tag,omitempty"`

	// ExtType substring-matches against the type label image/video/album.
	ExtType *string `json:"ext_type,omitempty"`

	// Ext substring-matches (case-insensitive) the media file extension.
	Ext *string `json:"ext,omitempty"`

	// Model and Make match EXIF fields by substring, or presence with Exists.
	Model *Match `json:"model,omitempty"`
	Make  *Match `json:"make,omitempty"`

	// Path substring-matches any alias path, lowercased.
	Path *string `json:"path,omitempty"`

	// Album matches album membership, or any membership with Exists.
	Album *Match `json:"album,omitempty"`

	Favorite *bool `json:"favorite,omitempty"`
	Archived *bool `json:"archived,omitempty"`
	Trashed  *bool `json:"trashed,omitempty"`

	// Any is the broad disjunction: tag value, type label, id substring,
	// EXIF model/make, or alias path.
	Any *string `json:"any,omitempty"`
}

// Validate checks that every node sets at most one field.
func (e *Expression) Validate() error {
	count := 0
	if len(e.Or) > 0 {
		count++
		for i := range e.Or {
			if err := e.Or[i].Validate(); err != nil {
				return err
			}
		}
	}
	if len(e.And) > 0 {
		count++
		for i := range e.And {
			if err := e.And[i].Validate(); err != nil {
				return err
			}
		}
	}
	if e.Not != nil {
		count++
		if err := e.Not.Validate(); err != nil {
			return err
		}
	}
	for _, set := range []bool{
		e.Tag != nil, e.ExtType != nil, e.Ext != nil, e.Model != nil,
		e.Make != nil, e.Path != nil, e.Album != nil, e.Favorite != nil,
		e.Archived != nil, e.Trashed != nil, e.Any != nil,
	} {
		if set {
			count++
		}
	}
	if count > 1 {
		return apperr.New(apperr.InvalidInput, "expression node sets more than one field")
	}
	return nil
}

// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package apperr

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindClassification(t *testing.T) {
	err := New(NotFound, "record missing")
	assert.Equal(t, NotFound, KindOf(err))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsTemporary(err))
}

func TestWrapPreservesSource(t *testing.T) {
	source := fs.ErrPermission
	err := Wrap(IO, "open file", source)
	assert.True(t, errors.Is(err, fs.ErrPermission))
	assert.Equal(t, IO, KindOf(err))
	assert.Contains(t, err.Error(), "open file")
}

func TestWrappedThroughFmt(t *testing.T) {
	inner := Newf(Database, "flush batch %d", 7)
	outer := fmt.Errorf("coordinator: %w", inner)
	assert.Equal(t, Database, KindOf(outer))
}

func TestTemporaryStatus(t *testing.T) {
	err := Temp(Wrap(IO, "transient open", errors.New("EAGAIN")))
	assert.True(t, IsTemporary(err))
	assert.Equal(t, Temporary, err.Status)

	wrapped := fmt.Errorf("stage: %w", err)
	assert.True(t, IsTemporary(wrapped))
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("plain")))
	assert.False(t, IsTemporary(errors.New("plain")))
}

func TestKindStrings(t *testing.T) {
	for kind, want := range map[Kind]string{
		NotFound:         "not_found",
		PermissionDenied: "permission_denied",
		InvalidInput:     "invalid_input",
		Internal:         "internal",
		Database:         "database",
		IO:               "io",
		Serialization:    "serialization",
		Auth:             "auth",
		ReadOnlyMode:     "read_only_mode",
	} {
		assert.Equal(t, want, kind.String())
	}
}

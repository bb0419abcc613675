// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package watcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeSubmitter) SubmitDetached(path string, albumID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
}

func (f *fakeSubmitter) submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func TestDebounceFiresOnceAfterQuietPeriod(t *testing.T) {
	submit := &fakeSubmitter{}
	w := New(nil, submit)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Rapid events on the same path collapse to one ingestion.
	w.enqueue(ctx, "/roots/a.jpg")
	time.Sleep(200 * time.Millisecond)
	w.enqueue(ctx, "/roots/a.jpg")
	time.Sleep(200 * time.Millisecond)
	w.enqueue(ctx, "/roots/a.jpg")

	require.Eventually(t, func() bool {
		return len(submit.submitted()) == 1
	}, 3*time.Second, 20*time.Millisecond)

	// Nothing else fires afterwards.
	time.Sleep(debounceDelay + 300*time.Millisecond)
	assert.Len(t, submit.submitted(), 1)
	assert.Equal(t, "/roots/a.jpg", submit.submitted()[0])
}

func TestDebounceIsPerPath(t *testing.T) {
	submit := &fakeSubmitter{}
	w := New(nil, submit)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.enqueue(ctx, "/roots/a.jpg")
	w.enqueue(ctx, "/roots/b.jpg")

	require.Eventually(t, func() bool {
		return len(submit.submitted()) == 2
	}, 3*time.Second, 20*time.Millisecond)
	assert.ElementsMatch(t, []string{"/roots/a.jpg", "/roots/b.jpg"}, submit.submitted())
}

func TestDebounceCanceledByContext(t *testing.T) {
	submit := &fakeSubmitter{}
	w := New(nil, submit)
	ctx, cancel := context.WithCancel(context.Background())

	w.enqueue(ctx, "/roots/a.jpg")
	cancel()

	time.Sleep(debounceDelay + 200*time.Millisecond)
	assert.Empty(t, submit.submitted())
}

func TestExtensionFilter(t *testing.T) {
	w := New(nil, &fakeSubmitter{})
	assert.True(t, w.allowed["jpg"])
	assert.True(t, w.allowed["mp4"])
	assert.False(t, w.allowed["txt"])
	assert.False(t, w.allowed[""])
}

// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package pipeline

import "sync"

// Guard is the IN_PROGRESS set: one pipeline per content hash. The second
// pipeline to hash identical bytes takes a no-op exit; the in-flight one
// completes the work for both.
type Guard struct {
	mu  sync.Mutex
	set map[string]struct{}
}

// NewGuard returns an empty guard.
func NewGuard() *Guard {
	return &Guard{set: make(map[string]struct{})}
}

// Acquire claims the hash. On success it returns a release func the caller
// must invoke when the pipeline ends, success or not. ok is false when
// another pipeline already holds the hash.
func (g *Guard) Acquire(id string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.set[id]; held {
		return nil, false
	}
	g.set[id] = struct{}{}
	return func() {
		g.mu.Lock()
		delete(g.set, id)
		g.mu.Unlock()
	}, true
}

// Held reports whether a pipeline currently owns the hash.
func (g *Guard) Held(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, held := g.set[id]
	return held
}

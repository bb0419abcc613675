// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package scheduler

import (
	"context"
	"sync"

	"github.com/tomtom215/galleria/internal/logging"
)

// Batcher coalesces submissions of one task kind. While a batch runs, new
// submissions buffer; when the batch completes, everything buffered runs as
// a single merged batch. Waiting callers resolve when the batch containing
// their submission finishes.
type Batcher[T any] struct {
	name string
	run  func(ctx context.Context, items []T) error

	mu       sync.Mutex
	pending  []T
	waiters  []chan error
	inFlight bool
	closed   bool

	// wg tracks the in-flight batch goroutine for Close.
	wg sync.WaitGroup

	// ctx is the serve context batches run under.
	ctx context.Context
}

// NewBatcher creates a coalescer. run receives the merged submission list;
// ctx bounds every batch execution.
func NewBatcher[T any](ctx context.Context, name string, run func(ctx context.Context, items []T) error) *Batcher[T] {
	return &Batcher[T]{name: name, run: run, ctx: ctx}
}

// ExecuteBatchWaiting submits an item and blocks until the batch that
// includes it completes.
func (b *Batcher[T]) ExecuteBatchWaiting(ctx context.Context, item T) error {
	done := make(chan error, 1)
	if !b.submit(item, done) {
		return context.Canceled
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecuteBatchDetached submits an item and returns immediately.
func (b *Batcher[T]) ExecuteBatchDetached(item T) {
	if !b.submit(item, nil) {
		logging.Warn().Str("batcher", b.name).Msg("detached submission shed: batcher closed")
	}
}

func (b *Batcher[T]) submit(item T, done chan error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.pending = append(b.pending, item)
	if done != nil {
		b.waiters = append(b.waiters, done)
	}
	if !b.inFlight {
		b.inFlight = true
		b.wg.Add(1)
		go b.loop()
	}
	return true
}

// loop drains pending batches until none remain.
func (b *Batcher[T]) loop() {
	defer b.wg.Done()
	for {
		b.mu.Lock()
		if len(b.pending) == 0 {
			b.inFlight = false
			b.mu.Unlock()
			return
		}
		items := b.pending
		waiters := b.waiters
		b.pending = nil
		b.waiters = nil
		b.mu.Unlock()

		err := b.run(b.ctx, items)
		if err != nil {
			logging.Error().Err(err).Str("batcher", b.name).
				Int("items", len(items)).Msg("batch failed")
		}
		for _, w := range waiters {
			w <- err
		}
	}
}

// Close rejects further submissions and waits for the in-flight batch.
// Buffered-but-unstarted submissions still run: the loop drains fully.
func (b *Batcher[T]) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}

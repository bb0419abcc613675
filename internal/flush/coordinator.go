// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

// Package flush owns the batched write path of the data table and the
// follow-on maintenance chain:
//
//	FlushTree (merge mutations, one write txn)
//	  → UpdateTree (rebuild the in-memory index)
//	    → UpdateExpire (evict stale snapshots and caches)
//
// Each link is a coalescing batcher: submissions arriving while a batch is
// in flight merge into the next one. FlushTree enqueues UpdateTree on
// completion, which enqueues UpdateExpire, so the ordering guarantee
// "every flush is followed by a rebuild" holds by construction.
package flush

import (
	"context"

	"github.com/tomtom215/galleria/internal/database"
	"github.com/tomtom215/galleria/internal/index"
	"github.com/tomtom215/galleria/internal/logging"
	"github.com/tomtom215/galleria/internal/metrics"
	"github.com/tomtom215/galleria/internal/models"
	"github.com/tomtom215/galleria/internal/scheduler"
)

// Mutation is one FlushTree submission.
type Mutation struct {
	Inserts  []*models.Record
	Removals []string
}

// Insert builds an insert mutation for the given records.
func Insert(records ...*models.Record) Mutation {
	return Mutation{Inserts: records}
}

// Remove builds a removal mutation.
func Remove(ids ...string) Mutation {
	return Mutation{Removals: ids}
}

// Coordinator wires the three batchers.
type Coordinator struct {
	store *database.Store
	tree  *index.Tree

	flushBatcher  *scheduler.Batcher[Mutation]
	updateBatcher *scheduler.Batcher[struct{}]
	expireBatcher *scheduler.Batcher[struct{}]
}

// NewCoordinator builds the chain. sweep is the expiration pass run after
// every index rebuild (the snapshot engine's Sweep).
func NewCoordinator(ctx context.Context, store *database.Store, tree *index.Tree,
	sweep func()) *Coordinator {

	c := &Coordinator{store: store, tree: tree}

	c.expireBatcher = scheduler.NewBatcher(ctx, "update-expire",
		func(context.Context, []struct{}) error {
			// Idempotent: one sweep covers every merged submission.
			sweep()
			return nil
		})

	c.updateBatcher = scheduler.NewBatcher(ctx, "update-tree",
		func(context.Context, []struct{}) error {
			if err := c.tree.Rebuild(c.store); err != nil {
				return err
			}
			metrics.TreeRebuilds.Inc()
			metrics.TreeSize.Set(float64(c.tree.Len()))
			c.expireBatcher.ExecuteBatchDetached(struct{}{})
			return nil
		})

	c.flushBatcher = scheduler.NewBatcher(ctx, "flush-tree",
		func(_ context.Context, muts []Mutation) error {
			var inserts []*models.Record
			var removals []string
			for _, m := range muts {
				inserts = append(inserts, m.Inserts...)
				removals = append(removals, m.Removals...)
			}
			metrics.FlushBatchSize.Observe(float64(len(inserts) + len(removals)))
			if err := c.store.Flush(inserts, removals); err != nil {
				// The batch aborts whole; callers retry opportunistically
				// with their next submission.
				return err
			}
			logging.Debug().Int("inserts", len(inserts)).
				Int("removals", len(removals)).Msg("flush committed")
			c.updateBatcher.ExecuteBatchDetached(struct{}{})
			return nil
		})

	return c
}

// FlushWaiting submits a mutation and blocks until its batch commits.
func (c *Coordinator) FlushWaiting(ctx context.Context, m Mutation) error {
	return c.flushBatcher.ExecuteBatchWaiting(ctx, m)
}

// FlushDetached submits a mutation without waiting.
func (c *Coordinator) FlushDetached(m Mutation) {
	c.flushBatcher.ExecuteBatchDetached(m)
}

// FlushSync flushes and then waits for the index rebuild that follows, so
// the caller observes its own write in the next query.
func (c *Coordinator) FlushSync(ctx context.Context, m Mutation) error {
	if err := c.flushBatcher.ExecuteBatchWaiting(ctx, m); err != nil {
		return err
	}
	return c.updateBatcher.ExecuteBatchWaiting(ctx, struct{}{})
}

// UpdateTreeWaiting forces an index rebuild and waits for it.
func (c *Coordinator) UpdateTreeWaiting(ctx context.Context) error {
	return c.updateBatcher.ExecuteBatchWaiting(ctx, struct{}{})
}

// Close drains the chain in order.
func (c *Coordinator) Close() {
	c.flushBatcher.Close()
	c.updateBatcher.Close()
	c.expireBatcher.Close()
}

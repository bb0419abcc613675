// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

// Package scheduler provides the two task coordinators the gallery runs on:
//
//   - Actor: a per-task scheduler with a priority queue and a global
//     concurrency cap. Callers wait for a result or fire-and-forget.
//   - Batcher: a coalescer for tasks whose instances merge. Submissions
//     arriving while a batch is in flight are buffered and run as one
//     merged batch when the current one completes.
//
// Detached submissions never back-pressure producers; on shutdown any still
// queued are shed with a warning.
package scheduler

import (
	"container/heap"
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/galleria/internal/logging"
)

// Task is a unit of work scheduled on an Actor.
type Task interface {
	// Name labels the task in logs and metrics.
	Name() string

	// Run performs the work. The context is the actor's serve context.
	Run(ctx context.Context) error
}

// Priorities for actor submissions. Higher runs first.
const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

type submission struct {
	task     Task
	priority int
	seq      uint64
	done     chan error
}

type submissionHeap []*submission

func (h submissionHeap) Len() int { return len(h) }

func (h submissionHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h submissionHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *submissionHeap) Push(x any) { *h = append(*h, x.(*submission)) }

func (h *submissionHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Actor is the per-task coordinator. Create one per resource domain (one for
// I/O-bound work, one capped at NumCPU for CPU-bound work) and run it as a
// suture service.
type Actor struct {
	name string
	sem  *semaphore.Weighted

	mu      sync.Mutex
	queue   submissionHeap
	wake    chan struct{}
	seq     uint64
	stopped bool

	// running tracks in-flight tasks so Serve can drain on shutdown.
	running sync.WaitGroup
}

// NewActor creates an actor with the given concurrency cap.
func NewActor(name string, concurrency int64) *Actor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Actor{
		name: name,
		sem:  semaphore.NewWeighted(concurrency),
		wake: make(chan struct{}, 1),
	}
}

// ExecuteWaiting schedules a task and blocks until it completes, returning
// the task's error.
func (a *Actor) ExecuteWaiting(ctx context.Context, task Task, priority int) error {
	done := make(chan error, 1)
	if !a.enqueue(&submission{task: task, priority: priority, done: done}) {
		return context.Canceled
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecuteDetached schedules a task without waiting. Failures are logged.
func (a *Actor) ExecuteDetached(task Task, priority int) {
	if !a.enqueue(&submission{task: task, priority: priority}) {
		logging.Warn().Str("actor", a.name).Str("task", task.Name()).
			Msg("detached task shed: actor stopped")
	}
}

func (a *Actor) enqueue(s *submission) bool {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return false
	}
	a.seq++
	s.seq = a.seq
	heap.Push(&a.queue, s)
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
	return true
}

// Serve dispatches queued tasks until the context is canceled, then drains
// in-flight tasks. Implements suture.Service.
func (a *Actor) Serve(ctx context.Context) error {
	for {
		s := a.next()
		if s == nil {
			select {
			case <-a.wake:
				continue
			case <-ctx.Done():
				a.shutdown()
				return ctx.Err()
			}
		}

		if err := a.sem.Acquire(ctx, 1); err != nil {
			// Canceled while waiting for a slot: fail the submission and drain.
			s.finish(err)
			a.shutdown()
			return err
		}

		a.running.Add(1)
		go func(s *submission) {
			defer a.running.Done()
			defer a.sem.Release(1)
			err := s.task.Run(ctx)
			if err != nil && s.done == nil {
				logging.Error().Err(err).Str("actor", a.name).
					Str("task", s.task.Name()).Msg("detached task failed")
			}
			s.finish(err)
		}(s)
	}
}

func (s *submission) finish(err error) {
	if s.done != nil {
		s.done <- err
	}
}

func (a *Actor) next() *submission {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return nil
	}
	return heap.Pop(&a.queue).(*submission)
}

// shutdown rejects new work, sheds the queue, and waits for running tasks.
func (a *Actor) shutdown() {
	a.mu.Lock()
	a.stopped = true
	shed := len(a.queue)
	for _, s := range a.queue {
		s.finish(context.Canceled)
	}
	a.queue = nil
	a.mu.Unlock()

	if shed > 0 {
		logging.Warn().Str("actor", a.name).Int("count", shed).
			Msg("queued tasks shed on shutdown")
	}
	a.running.Wait()
}

// String names the actor in supervisor logs.
func (a *Actor) String() string { return "actor-" + a.name }

// funcTask adapts a closure to the Task interface.
type funcTask struct {
	name string
	fn   func(ctx context.Context) error
}

func (t funcTask) Name() string                  { return t.name }
func (t funcTask) Run(ctx context.Context) error { return t.fn(ctx) }

// TaskFunc wraps a closure as a named Task.
func TaskFunc(name string, fn func(ctx context.Context) error) Task {
	return funcTask{name: name, fn: fn}
}

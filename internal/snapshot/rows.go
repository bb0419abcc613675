// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package snapshot

import (
	"fmt"
	"sync"

	"github.com/tomtom215/galleria/internal/apperr"
)

// Justified-row geometry. The frontend renders fixed-height rows and scales
// each item to preserve aspect ratio; a row breaks when the scaled widths
// fill the layout width.
const (
	rowHeight      = 250
	rowWidthLimit  = 2200
	rowsPerWindow  = 20
	defaultAspectW = 4
	defaultAspectH = 3
)

// ScaledItem is one item placed in a row.
type ScaledItem struct {
	Hash string `json:"hash"`

	// Width and Height are the display dimensions at row height.
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Row is one justified row of the layout.
type Row struct {
	// Start and End are the snapshot indices covered, [Start, End).
	Start int `json:"start"`
	End   int `json:"end"`

	Items []ScaledItem `json:"items"`
}

// RowLayout is a window of justified rows starting at a snapshot index.
type RowLayout struct {
	// Index is the snapshot index the window starts at.
	Index int `json:"index"`

	Rows []Row `json:"rows"`

	// Total is the snapshot length, so clients can stop requesting windows.
	Total int `json:"total"`
}

// GetRows lays out a window of justified rows starting at index. Geometry
// for a (timestamp, index) pair is cached: snapshots are immutable, so the
// layout never changes.
func (e *Engine) GetRows(timestamp int64, idx int) (*RowLayout, error) {
	if idx < 0 {
		return nil, apperr.Newf(apperr.InvalidInput, "negative row index %d", idx)
	}
	if layout, ok := e.rows.get(timestamp, idx); ok {
		return layout, nil
	}

	items, err := e.Load(timestamp)
	if err != nil {
		return nil, err
	}

	layout := buildRows(items, idx)
	e.rows.put(timestamp, idx, layout)
	return layout, nil
}

func buildRows(items []ReducedData, start int) *RowLayout {
	layout := &RowLayout{Index: start, Total: len(items), Rows: []Row{}}
	if start >= len(items) {
		return layout
	}

	i := start
	for len(layout.Rows) < rowsPerWindow && i < len(items) {
		row := Row{Start: i}
		width := 0
		for i < len(items) {
			item := items[i]
			w, h := item.Width, item.Height
			if w <= 0 || h <= 0 {
				w, h = defaultAspectW, defaultAspectH
			}
			scaled := w * rowHeight / h
			if width > 0 && width+scaled > rowWidthLimit {
				break
			}
			row.Items = append(row.Items, ScaledItem{
				Hash:   item.Hash,
				Width:  scaled,
				Height: rowHeight,
			})
			width += scaled
			i++
		}
		row.End = i
		layout.Rows = append(layout.Rows, row)
	}
	return layout
}

// rowCache is a small LRU over computed row windows, keyed by snapshot
// timestamp and start index. Doubly-linked list plus map, the same shape as
// every other cache in the codebase.
type rowCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*rowCacheEntry
	head     *rowCacheEntry
	tail     *rowCacheEntry
}

type rowCacheEntry struct {
	key       string
	timestamp int64
	layout    *RowLayout
	prev      *rowCacheEntry
	next      *rowCacheEntry
}

func newRowCache() *rowCache {
	c := &rowCache{
		capacity: 1024,
		items:    make(map[string]*rowCacheEntry),
		head:     &rowCacheEntry{},
		tail:     &rowCacheEntry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

func rowCacheKey(timestamp int64, idx int) string {
	return fmt.Sprintf("%d:%d", timestamp, idx)
}

func (c *rowCache) get(timestamp int64, idx int) (*RowLayout, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.items[rowCacheKey(timestamp, idx)]
	if !ok {
		return nil, false
	}
	c.moveToFront(entry)
	return entry.layout, true
}

func (c *rowCache) put(timestamp int64, idx int, layout *RowLayout) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := rowCacheKey(timestamp, idx)
	if entry, ok := c.items[key]; ok {
		entry.layout = layout
		c.moveToFront(entry)
		return
	}
	entry := &rowCacheEntry{key: key, timestamp: timestamp, layout: layout}
	c.items[key] = entry
	c.insertFront(entry)
	if len(c.items) > c.capacity {
		lru := c.tail.prev
		c.unlink(lru)
		delete(c.items, lru.key)
	}
}

// invalidate drops every window belonging to an expired snapshot.
func (c *rowCache) invalidate(timestamp int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.items {
		if entry.timestamp == timestamp {
			c.unlink(entry)
			delete(c.items, key)
		}
	}
}

func (c *rowCache) insertFront(entry *rowCacheEntry) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *rowCache) unlink(entry *rowCacheEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
}

func (c *rowCache) moveToFront(entry *rowCacheEntry) {
	c.unlink(entry)
	c.insertFront(entry)
}

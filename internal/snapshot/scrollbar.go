// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package snapshot

import "time"

// Bucket is one scrollbar segment: how many snapshot elements fall in a
// calendar month. Buckets come back in snapshot order (newest first).
type Bucket struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Count int `json:"count"`
}

// GetScrollBar returns month buckets over a snapshot's sort timestamps so
// the frontend can render a date-marked scrollbar.
func (e *Engine) GetScrollBar(timestamp int64) ([]Bucket, error) {
	items, err := e.Load(timestamp)
	if err != nil {
		return nil, err
	}

	buckets := []Bucket{}
	for _, item := range items {
		t := time.UnixMilli(item.SortTimestamp)
		year, month := t.Year(), int(t.Month())
		if n := len(buckets); n > 0 && buckets[n-1].Year == year && buckets[n-1].Month == month {
			buckets[n-1].Count++
			continue
		}
		buckets = append(buckets, Bucket{Year: year, Month: month, Count: 1})
	}
	return buckets, nil
}

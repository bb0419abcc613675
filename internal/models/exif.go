// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package models

import (
	"github.com/goccy/go-json"
)

// ExifEntry is one key/value pair extracted from a media file.
type ExifEntry struct {
	Key   string `json:"k"`
	Value string `json:"v"`
}

// ExifVec is an ordered map of EXIF-like keys to string values. Extraction
// order is preserved; lookups are linear, which is fine for the handful of
// keys a record carries at steady state.
type ExifVec []ExifEntry

// Get returns the value for key and whether it exists.
func (e ExifVec) Get(key string) (string, bool) {
	for _, entry := range e {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	return "", false
}

// Set replaces the value for key, or appends it if absent.
func (e *ExifVec) Set(key, value string) {
	for i, entry := range *e {
		if entry.Key == key {
			(*e)[i].Value = value
			return
		}
	}
	*e = append(*e, ExifEntry{Key: key, Value: value})
}

// Delete removes key if present, preserving the order of the rest.
func (e *ExifVec) Delete(key string) {
	for i, entry := range *e {
		if entry.Key == key {
			*e = append((*e)[:i], (*e)[i+1:]...)
			return
		}
	}
}

// Retain keeps only the entries whose key satisfies keep, in order.
func (e ExifVec) Retain(keep func(key string) bool) ExifVec {
	out := make(ExifVec, 0, len(e))
	for _, entry := range e {
		if keep(entry.Key) {
			out = append(out, entry)
		}
	}
	return out
}

// MarshalJSON encodes the vector as an array of pairs.
func (e ExifVec) MarshalJSON() ([]byte, error) {
	return json.Marshal([]ExifEntry(e))
}

// UnmarshalJSON accepts either the pair-array form or a plain JSON object
// (the shape older stores used); object keys lose their original order.
func (e *ExifVec) UnmarshalJSON(data []byte) error {
	var pairs []ExifEntry
	if err := json.Unmarshal(data, &pairs); err == nil {
		*e = pairs
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := make(ExifVec, 0, len(m))
	for _, k := range sortedKeys(m) {
		out = append(out, ExifEntry{Key: k, Value: m[k]})
	}
	*e = out
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

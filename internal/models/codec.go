// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package models

import (
	"fmt"

	"github.com/goccy/go-json"
)

// SchemaVersion is the running record schema. The on-disk payload is one
// version byte followed by the JSON body, so the migration engine can sniff
// a store's schema without fully decoding rows.
const SchemaVersion byte = 5

// Legacy schema versions recognized by the migration engine.
const (
	SchemaV3 byte = 3
	SchemaV4 byte = 4
)

// Encode serializes a record with the current schema version prefix.
func Encode(r *Record) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", r.ID, err)
	}
	out := make([]byte, 1, len(body)+1)
	out[0] = SchemaVersion
	return append(out, body...), nil
}

// Decode deserializes a payload written by Encode. V4 payloads are
// accepted too: V5 changed the store file name, not the record shape, which
// is what makes the V4→V5 migration a pure rename. Older versions are
// rejected; the migration engine owns those.
func Decode(data []byte) (*Record, error) {
	version, body, err := SplitVersion(data)
	if err != nil {
		return nil, err
	}
	if version != SchemaVersion && version != SchemaV4 {
		return nil, fmt.Errorf("record schema v%d, want v%d", version, SchemaVersion)
	}
	var r Record
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &r, nil
}

// SplitVersion separates the schema version byte from the payload body.
func SplitVersion(data []byte) (byte, []byte, error) {
	if len(data) < 2 {
		return 0, nil, fmt.Errorf("record payload too short: %d bytes", len(data))
	}
	return data[0], data[1:], nil
}

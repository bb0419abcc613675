// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

// Package database wraps the embedded BadgerDB stores: the primary data
// table (id → Record) plus the derivable snapshot, query-cache, and
// expiration stores.
//
// Reads run inside View transactions and writes inside Update transactions.
// Mutations of the data table arrive pre-batched from the flush coordinator,
// so one Update commits a whole batch atomically: observers never see a
// partial flush.
package database

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/galleria/internal/apperr"
	"github.com/tomtom215/galleria/internal/models"
)

// ErrNotFound is returned when a key is absent from a store.
var ErrNotFound = errors.New("database: key not found")

// Open opens (or creates) a Badger store at path with gallery defaults.
func Open(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(badgerLogger{}).
		WithCompactL0OnClose(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store %s: %w", path, err)
	}
	return db, nil
}

// Store is the primary data table: one row per record, keyed by the
// 64-char hex id.
type Store struct {
	db *badger.DB
}

// NewStore wraps an opened Badger database as the primary store.
func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle, for the migration engine only.
func (s *Store) DB() *badger.DB { return s.db }

// Close flushes and closes the store.
func (s *Store) Close() error { return s.db.Close() }

// Get reads one record. Returns apperr.NotFound when the id is absent.
func (s *Store) Get(id string) (*models.Record, error) {
	var record *models.Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return apperr.Newf(apperr.NotFound, "record %s", id)
		}
		if err != nil {
			return apperr.Wrap(apperr.Database, "get record", err)
		}
		return item.Value(func(val []byte) error {
			record, err = models.Decode(val)
			if err != nil {
				return apperr.Wrap(apperr.Serialization, "decode record", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Has reports whether the id exists without decoding the payload.
func (s *Store) Has(id string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Wrap(apperr.Database, "probe record", err)
	}
	return true, nil
}

// Flush commits one batch in a single write transaction: all inserts in
// order, then all removals. This is the only writer of the data table.
func (s *Store) Flush(inserts []*models.Record, removals []string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, record := range inserts {
			payload, err := models.Encode(record)
			if err != nil {
				return apperr.Wrap(apperr.Serialization, "encode record", err)
			}
			if err := txn.Set([]byte(record.ID), payload); err != nil {
				return fmt.Errorf("set %s: %w", record.ID, err)
			}
		}
		for _, id := range removals {
			if err := txn.Delete([]byte(id)); err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return err
		}
		return apperr.Wrap(apperr.Database, "flush batch", err)
	}
	return nil
}

// ForEach iterates every record inside one read transaction, in key order.
// The callback receives a decoded copy it may retain.
func (s *Store) ForEach(fn func(*models.Record) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				record, err := models.Decode(val)
				if err != nil {
					return apperr.Wrap(apperr.Serialization,
						fmt.Sprintf("decode record %s", item.Key()), err)
				}
				return fn(record)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of rows.
func (s *Store) Count() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, apperr.Wrap(apperr.Database, "count records", err)
	}
	return count, nil
}

// i64Key encodes a millisecond timestamp as a big-endian key so that Badger
// iteration order matches numeric order.
func i64Key(v int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return buf[:]
}

// i64FromKey decodes a key produced by i64Key.
func i64FromKey(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key))
}

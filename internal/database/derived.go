// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

package database

import (
	"encoding/binary"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/galleria/internal/apperr"
)

// SnapshotStore persists filtered result vectors keyed by the snapshot
// timestamp. Payloads are opaque here; the snapshot engine owns encoding.
type SnapshotStore struct {
	db *badger.DB
}

// NewSnapshotStore wraps an opened Badger database.
func NewSnapshotStore(db *badger.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Close closes the store.
func (s *SnapshotStore) Close() error { return s.db.Close() }

// Put stores the payload under the snapshot timestamp.
func (s *SnapshotStore) Put(timestamp int64, payload []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(i64Key(timestamp), payload)
	})
	if err != nil {
		return apperr.Wrap(apperr.Database, "put snapshot", err)
	}
	return nil
}

// Get loads the payload for a snapshot timestamp.
func (s *SnapshotStore) Get(timestamp int64) ([]byte, error) {
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(i64Key(timestamp))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return apperr.Newf(apperr.NotFound, "snapshot %d", timestamp)
		}
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.Database, "get snapshot", err)
	}
	return payload, nil
}

// Delete removes a snapshot row. Missing rows are not an error.
func (s *SnapshotStore) Delete(timestamp int64) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(i64Key(timestamp))
	})
	if err != nil {
		return apperr.Wrap(apperr.Database, "delete snapshot", err)
	}
	return nil
}

// CacheStore persists query results keyed by the 64-bit query fingerprint.
type CacheStore struct {
	db *badger.DB
}

// NewCacheStore wraps an opened Badger database.
func NewCacheStore(db *badger.DB) *CacheStore {
	return &CacheStore{db: db}
}

// Close closes the store.
func (s *CacheStore) Close() error { return s.db.Close() }

func fingerprintKey(fp uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], fp)
	return buf[:]
}

// Put stores the payload under the query fingerprint.
func (s *CacheStore) Put(fingerprint uint64, payload []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(fingerprintKey(fingerprint), payload)
	})
	if err != nil {
		return apperr.Wrap(apperr.Database, "put query cache", err)
	}
	return nil
}

// Get loads a cached query result. Returns apperr.NotFound on miss.
func (s *CacheStore) Get(fingerprint uint64) ([]byte, error) {
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fingerprintKey(fingerprint))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return apperr.Newf(apperr.NotFound, "query cache %x", fingerprint)
		}
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.Database, "get query cache", err)
	}
	return payload, nil
}

// ForEach iterates every cached query result.
func (s *CacheStore) ForEach(fn func(fingerprint uint64, payload []byte) error) error {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			fp := binary.BigEndian.Uint64(item.Key())
			err := item.Value(func(val []byte) error {
				return fn(fp, append([]byte(nil), val...))
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.Database, "scan query cache", err)
	}
	return nil
}

// Delete removes a cached query result.
func (s *CacheStore) Delete(fingerprint uint64) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(fingerprintKey(fingerprint))
	})
	if err != nil {
		return apperr.Wrap(apperr.Database, "delete query cache", err)
	}
	return nil
}

// ExpireEntry associates a snapshot with its query fingerprint and optional
// expiry. The expiration loop walks these to evict stale state.
type ExpireEntry struct {
	// Timestamp is the snapshot id.
	Timestamp int64

	// Fingerprint is the query-cache row the snapshot was served from.
	Fingerprint uint64

	// ExpireAt is the eviction deadline in milliseconds; zero means the
	// entry only dies when its index version goes stale.
	ExpireAt int64
}

// ExpireStore persists expiration entries keyed by snapshot timestamp.
type ExpireStore struct {
	db *badger.DB
}

// NewExpireStore wraps an opened Badger database.
func NewExpireStore(db *badger.DB) *ExpireStore {
	return &ExpireStore{db: db}
}

// Close closes the store.
func (s *ExpireStore) Close() error { return s.db.Close() }

func encodeExpireEntry(e ExpireEntry) []byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], e.Fingerprint)
	binary.BigEndian.PutUint64(buf[8:16], uint64(e.ExpireAt))
	return buf[:]
}

// Put stores one entry.
func (s *ExpireStore) Put(entry ExpireEntry) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(i64Key(entry.Timestamp), encodeExpireEntry(entry))
	})
	if err != nil {
		return apperr.Wrap(apperr.Database, "put expire entry", err)
	}
	return nil
}

// ForEach iterates every entry in timestamp order.
func (s *ExpireStore) ForEach(fn func(ExpireEntry) error) error {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			entry := ExpireEntry{Timestamp: i64FromKey(item.Key())}
			err := item.Value(func(val []byte) error {
				if len(val) >= 16 {
					entry.Fingerprint = binary.BigEndian.Uint64(val[0:8])
					entry.ExpireAt = int64(binary.BigEndian.Uint64(val[8:16]))
				}
				return nil
			})
			if err != nil {
				return err
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperr.Wrap(apperr.Database, "scan expire entries", err)
	}
	return nil
}

// Delete removes one entry.
func (s *ExpireStore) Delete(timestamp int64) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(i64Key(timestamp))
	})
	if err != nil {
		return apperr.Wrap(apperr.Database, "delete expire entry", err)
	}
	return nil
}

// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

// Package migration upgrades legacy on-disk stores to the running V5
// schema.
//
// Detection at startup:
//
//	db/index_v5.redb exists        → nothing to do
//	db/index.redb decodes as V4    → rename only (V5 changed the file name)
//	db/index.redb decodes as V3    → V3→V4 transform into a new V5 store
//	db/index.redb is the two-table
//	pre-3.0 layout (V2)            → V2→V3→V4 into a new V5 store
//	anything else                  → abort
//
// A destructive transform requires the operator to type "yes" on stdin.
// Transforms run in parallel batches of 5000 rows; on success the legacy
// store is renamed to *.bak.
package migration

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/galleria/internal/apperr"
	"github.com/tomtom215/galleria/internal/database"
	"github.com/tomtom215/galleria/internal/logging"
	"github.com/tomtom215/galleria/internal/models"
	"github.com/tomtom215/galleria/internal/storage"
)

// batchSize is how many rows one parallel transform batch covers.
const batchSize = 5000

// ErrDeclined is returned when the operator answers anything but "yes";
// the caller exits cleanly without touching the store.
var ErrDeclined = errors.New("migration: declined by operator")

// schema is the detected legacy layout.
type schema int

const (
	schemaNone schema = iota
	schemaV4
	schemaV3
	schemaV2
)

// Run detects and, with operator confirmation, executes a migration.
// confirm reads the operator's answer (stdin in production).
func Run(layout *storage.Layout, confirm io.Reader) error {
	if _, err := os.Stat(layout.IndexDB()); err == nil {
		return nil
	}
	legacy := layout.LegacyIndexDB()
	if _, err := os.Stat(legacy); err != nil {
		// Fresh install.
		return nil
	}

	detected, err := detect(legacy)
	if err != nil {
		return err
	}

	switch detected {
	case schemaV4:
		// Same record shape, new file name.
		logging.Info().Msg("v4 store detected, renaming to v5")
		return os.Rename(legacy, layout.IndexDB())
	case schemaV3, schemaV2:
		if !confirmed(confirm, detected) {
			return ErrDeclined
		}
		if err := transform(legacy, layout.IndexDB(), detected); err != nil {
			return err
		}
		return os.Rename(legacy, legacy+".bak")
	default:
		return apperr.New(apperr.Database, "unrecognized legacy store layout")
	}
}

// detect opens the legacy store and sniffs its schema from the rows. Decode
// attempts run through a panic-isolating adapter: a mismatched schema must
// surface as a typed error, never abort the process.
func detect(path string) (schema, error) {
	db, err := database.Open(path)
	if err != nil {
		return schemaNone, err
	}
	defer db.Close()

	detected := schemaNone
	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			var payload []byte
			if payload, err = item.ValueCopy(nil); err != nil {
				return err
			}
			detected = sniffRow(key, payload)
			return nil
		}
		return nil
	})
	if err != nil {
		return schemaNone, apperr.Wrap(apperr.Database, "sniff legacy store", err)
	}
	if detected == schemaNone {
		// An empty legacy store migrates as a trivial V4 rename.
		return schemaV4, nil
	}
	return detected, nil
}

func sniffRow(key string, payload []byte) schema {
	if strings.HasPrefix(key, v2MediaPrefix) || strings.HasPrefix(key, v2AlbumPrefix) {
		return schemaV2
	}
	if len(payload) == 0 {
		return schemaNone
	}
	switch payload[0] {
	case models.SchemaV4, models.SchemaVersion:
		if _, err := safeDecodeV4(payload); err == nil {
			return schemaV4
		}
	case models.SchemaV3:
		if _, err := safeDecodeV3(payload); err == nil {
			return schemaV3
		}
	}
	return schemaNone
}

func confirmed(in io.Reader, detected schema) bool {
	name := "v3"
	if detected == schemaV2 {
		name = "v2"
	}
	fmt.Printf("Legacy %s store detected. Migrate to v5? Type 'yes' to continue: ", name)
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	return strings.TrimSpace(scanner.Text()) == "yes"
}

// row is one legacy row handed to the batch transformer.
type row struct {
	key     string
	payload []byte
}

// transform streams every legacy row through the schema-specific converter
// in parallel batches, writing the V5 store as it goes.
func transform(legacyPath, targetPath string, detected schema) error {
	src, err := database.Open(legacyPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := database.Open(targetPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	var batch []row
	total := 0
	flushBatch := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := transformBatch(dst, batch, detected); err != nil {
			return err
		}
		total += len(batch)
		logging.Info().Int("migrated", total).Msg("migration progress")
		batch = nil
		return nil
	}

	err = src.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			payload, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			batch = append(batch, row{key: string(item.Key()), payload: payload})
			if len(batch) >= batchSize {
				if err := flushBatch(); err != nil {
					return err
				}
			}
		}
		return flushBatch()
	})
	if err != nil {
		return apperr.Wrap(apperr.Database, "migrate legacy store", err)
	}

	logging.Info().Int("records", total).Msg("migration complete")
	return nil
}

// transformBatch converts one batch in parallel and commits it with a
// write batch. V2 album-membership rows need the media rows of the same
// batch view, so V2 conversion happens row-local: membership lives on the
// media row in every schema.
func transformBatch(dst *badger.DB, batch []row, detected schema) error {
	records := make([]*models.Record, len(batch))

	var g errgroup.Group
	for i := range batch {
		g.Go(func() error {
			var record *models.Record
			var err error
			switch detected {
			case schemaV2:
				record, err = convertV2(batch[i].key, batch[i].payload)
			case schemaV3:
				record, err = convertV3(batch[i].payload)
			default:
				return apperr.New(apperr.Internal, "unexpected schema in batch")
			}
			if err != nil {
				return err
			}
			records[i] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	wb := dst.NewWriteBatch()
	defer wb.Cancel()
	for _, record := range records {
		payload, err := models.Encode(record)
		if err != nil {
			return apperr.Wrap(apperr.Serialization, "encode migrated record", err)
		}
		if err := wb.Set([]byte(record.ID), payload); err != nil {
			return apperr.Wrap(apperr.Database, "write migrated record", err)
		}
	}
	return wb.Flush()
}

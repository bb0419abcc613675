// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

// Package main is the entry point for the Galleria server.
//
// Startup order:
//
//  1. Resolve the data root (flag > env > portable mode > platform dir)
//  2. Load and validate configuration (Koanf v2, config.json + env)
//  3. Run the migration engine; destructive migrations prompt on stdin
//  4. Delete the derivable stores and open the four BadgerDB files
//  5. Warm the in-memory index from the data table
//  6. Start the supervisor tree: expiration sweep, task actors, watcher
//  7. Block until SIGINT/SIGTERM, then drain cooperatively
//
// The HTTP boundary attaches to the gallery.Service handle; it lives
// outside this module.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/tomtom215/galleria/internal/album"
	"github.com/tomtom215/galleria/internal/config"
	"github.com/tomtom215/galleria/internal/database"
	"github.com/tomtom215/galleria/internal/ffmpeg"
	"github.com/tomtom215/galleria/internal/flush"
	"github.com/tomtom215/galleria/internal/gallery"
	"github.com/tomtom215/galleria/internal/index"
	"github.com/tomtom215/galleria/internal/logging"
	"github.com/tomtom215/galleria/internal/migration"
	"github.com/tomtom215/galleria/internal/pipeline"
	"github.com/tomtom215/galleria/internal/scheduler"
	"github.com/tomtom215/galleria/internal/snapshot"
	"github.com/tomtom215/galleria/internal/storage"
	"github.com/tomtom215/galleria/internal/supervisor"
	"github.com/tomtom215/galleria/internal/token"
	"github.com/tomtom215/galleria/internal/watcher"
)

const expireSweepInterval = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "galleria:", err)
		os.Exit(1)
	}
}

func run() error {
	dataRoot := flag.String("data-root", "", "override data root directory")
	flag.Parse()

	root, err := storage.ResolveRoot(*dataRoot)
	if err != nil {
		return err
	}
	layout := storage.NewLayout(root)
	if err := layout.EnsureDirs(); err != nil {
		return err
	}

	cfg, err := config.Load(layout.ConfigFile())
	if err != nil {
		return err
	}
	if err := logging.Init(logging.DefaultConfig()); err != nil {
		return err
	}
	logging.Info().Str("root", root).Bool("read_only", cfg.Public.ReadOnlyMode).
		Msg("galleria starting")

	if !ffmpeg.Available() {
		logging.Warn().Msg("ffmpeg/ffprobe not found on PATH; video ingestion will fail per-file")
	}

	// Migration before anything opens the primary store.
	if err := migration.Run(layout, os.Stdin); err != nil {
		if errors.Is(err, migration.ErrDeclined) {
			logging.Info().Msg("migration declined, exiting")
			return nil
		}
		return err
	}

	// Snapshot, cache, and expire stores are derivable; start clean.
	if err := layout.RemoveDerivedDBs(); err != nil {
		return err
	}

	indexDB, err := database.Open(layout.IndexDB())
	if err != nil {
		return err
	}
	defer indexDB.Close()
	tempDB, err := database.Open(layout.TempDB())
	if err != nil {
		return err
	}
	defer tempDB.Close()
	cacheDB, err := database.Open(layout.CacheDB())
	if err != nil {
		return err
	}
	defer cacheDB.Close()
	expireDB, err := database.Open(layout.ExpireDB())
	if err != nil {
		return err
	}
	defer expireDB.Close()

	store := database.NewStore(indexDB)
	tree := index.NewTree()
	if err := tree.Rebuild(store); err != nil {
		return err
	}
	logging.Info().Int("records", tree.Len()).Msg("index warmed")

	engine := snapshot.NewEngine(tree,
		database.NewSnapshotStore(tempDB),
		database.NewCacheStore(cacheDB),
		database.NewExpireStore(expireDB))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coordinator := flush.NewCoordinator(ctx, store, tree, engine.Sweep)
	defer coordinator.Close()

	ioActor := scheduler.NewActor("io", 64)
	cpuActor := scheduler.NewActor("cpu", int64(runtime.NumCPU()))

	pipe := pipeline.New(ctx, layout, store, coordinator, ioActor, cpuActor)
	albums := album.NewAggregator(store, tree, coordinator, ioActor)
	signer := token.NewSigner(cfg.Private.AuthKey)
	service := gallery.New(cfg, layout, store, tree, engine, coordinator, pipe, albums, signer)
	_ = service // handed to the HTTP boundary, which lives outside this module

	supTree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	supTree.AddDataService(supervisor.NewExpireService(expireSweepInterval, engine.Sweep))
	supTree.AddIngestService(ioActor)
	supTree.AddIngestService(cpuActor)
	if len(cfg.Public.SyncPaths) > 0 {
		roots := storage.ResolveSyncPaths(root, cfg.Public.SyncPaths)
		supTree.AddIngestService(watcher.New(roots, pipe))
	}

	errCh := supTree.Root().ServeBackground(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logging.Info().Str("signal", s.String()).Msg("shutting down")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}

	logging.Info().Msg("galleria stopped")
	return nil
}

// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

// Package metrics exposes Prometheus instrumentation for the gallery core.
// The HTTP boundary serves these on /metrics; the core only records.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion pipeline

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "galleria_pipeline_stage_duration_seconds",
			Help:    "Duration of ingestion pipeline stages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	PipelineFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galleria_pipeline_failures_total",
			Help: "Files whose ingestion aborted, by stage",
		},
		[]string{"stage"},
	)

	FilesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "galleria_files_ingested_total",
			Help: "Files that completed ingestion with a new record",
		},
	)

	DedupHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "galleria_dedup_hits_total",
			Help: "Ingested files whose content already existed",
		},
	)

	TranscodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "galleria_transcode_duration_seconds",
			Help:    "Wall time of video transcodes",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	// Store and index

	FlushBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "galleria_flush_batch_size",
			Help:    "Inserts plus removals per flush transaction",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	TreeRebuilds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "galleria_tree_rebuilds_total",
			Help: "In-memory index rebuilds",
		},
	)

	TreeSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "galleria_tree_records",
			Help: "Records in the in-memory index",
		},
	)

	// Snapshots and caches

	SnapshotsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "galleria_snapshots_opened_total",
			Help: "Snapshots allocated for client queries",
		},
	)

	SnapshotsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "galleria_snapshots_expired_total",
			Help: "Snapshots evicted by the expiration loop",
		},
	)

	QueryCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "galleria_query_cache_hits_total",
			Help: "Snapshot opens served from the query cache",
		},
	)

	// Watcher

	WatcherEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "galleria_watcher_events_total",
			Help: "Filesystem events that passed the extension filter",
		},
	)

	DebounceFires = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "galleria_debounce_fires_total",
			Help: "Debounced paths handed to the ingestion pipeline",
		},
	)
)

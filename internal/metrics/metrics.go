// Package metrics declares the Prometheus metrics exported by thumbindex.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Index query metrics
var (
	QueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbindex_queries_total",
			Help: "Total number of index queries",
		},
		[]string{"operation", "status"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbindex_query_duration_seconds",
			Help:    "Index query duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation"},
	)

	RowsReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbindex_rows_returned",
			Help:    "Rows returned per subfolder query",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"mode"}, // "materialize", "stream"
	)
)

// Write path metrics
var (
	WritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbindex_row_writes_total",
			Help: "Row write attempts by outcome",
		},
		[]string{"outcome"},
	)

	DeletesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbindex_row_deletes_total",
			Help: "Rows removed from the index",
		},
	)
)

// Lock and handle metrics
var (
	LockAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbindex_lock_acquisitions_total",
			Help: "Lock acquisition attempts by result",
		},
		[]string{"result"}, // "acquired", "contended", "error"
	)

	LockReleases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbindex_lock_releases_total",
			Help: "Lock releases by trigger",
		},
		[]string{"trigger"}, // "debounce", "close"
	)

	OpenHandles = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thumbindex_open_handles",
			Help: "Open index database handles by mode",
		},
		[]string{"mode"}, // "rw", "ro"
	)

	HandleReloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbindex_handle_reloads_total",
			Help: "Handles closed and reopened after finding the lock held elsewhere",
		},
	)
)

// Sync metrics
var (
	SyncEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbindex_sync_entries_total",
			Help: "Entries processed by subtree sync by result",
		},
		[]string{"result"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "thumbindex_sync_duration_seconds",
			Help:    "Duration of subtree sync runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)
)

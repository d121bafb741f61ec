// Package metrics holds the Prometheus collectors exported by the database core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection metrics
var (
	DBOpenAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_db_open_attempts_total",
			Help: "Physical database open attempts by result (ok, busy, error)",
		},
		[]string{"result"},
	)

	DBConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clinic_db_connection_state",
			Help: "Connection state: 0 uninitialized, 1 connecting, 2 ready, 3 failed",
		},
	)

	DBMigrationsApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clinic_db_migrations_applied_total",
			Help: "Migration files applied since process start",
		},
	)
)

// Query metrics
var (
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_db_queries_total",
			Help: "Executed statements by operation and status",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clinic_db_query_duration_seconds",
			Help:    "Statement duration including busy retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBBusyRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_db_busy_retries_total",
			Help: "Retries scheduled after a busy/locked error",
		},
		[]string{"operation"},
	)

	DBRetriesExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_db_retries_exhausted_total",
			Help: "Operations that failed because the retry budget ran out",
		},
		[]string{"operation"},
	)

	DBTransactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_db_transactions_total",
			Help: "Transactions by outcome (committed, rolled_back, begin_failed)",
		},
		[]string{"outcome"},
	)
)

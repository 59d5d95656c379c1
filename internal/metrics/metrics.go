package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchRequests 按类型(keyword/semantic)与结果(ok/empty/error/cached)计数
	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kshows_search_requests_total",
			Help: "Total number of catalog search requests",
		},
		[]string{"kind", "outcome"},
	)

	EmbeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kshows_embedding_duration_seconds",
			Help:    "Duration of embedding inference calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	EmbeddingBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kshows_embedding_breaker_state",
			Help: "Embedding circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	SeedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kshows_seed_records_total",
			Help: "Seed import records by result",
		},
		[]string{"result"}, // inserted, duplicate, invalid, failed
	)

	BackfillRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kshows_backfill_records_total",
			Help: "Embedding backfill records by result",
		},
		[]string{"result"}, // embedded, skipped, failed
	)
)

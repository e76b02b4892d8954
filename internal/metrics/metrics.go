package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors are created eagerly so packages can record into them before (or
// without) Register being called, e.g. in tests.
var (
	DefectsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartroad_defects_submitted_total",
			Help: "Total defect reports submitted, by severity.",
		},
		[]string{"severity"},
	)

	Validations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartroad_validations_total",
			Help: "Validation attempts, by outcome.",
		},
		[]string{"outcome"},
	)

	StatusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartroad_status_transitions_total",
			Help: "Defect status transitions, by source and target status and trigger.",
		},
		[]string{"from", "to", "trigger"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartroad_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by endpoint and method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "smartroad_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		},
	)

	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smartroad_cache_hits_total",
			Help: "Total Redis cache hits.",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smartroad_cache_misses_total",
			Help: "Total Redis cache misses.",
		},
	)

	WorkerBatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartroad_worker_batch_duration_seconds",
			Help:    "Duration of background worker batches, by worker.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"worker"},
	)
)

// Register registers all collectors with the default registry. Call once at
// startup. pool may be nil.
func Register(pool *pgxpool.Pool) {
	if pool != nil {
		prometheus.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "smartroad_db_connection_pool_active",
					Help: "Number of active database connections.",
				},
				func() float64 {
					return float64(pool.Stat().AcquiredConns())
				},
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "smartroad_db_connection_pool_idle",
					Help: "Number of idle database connections.",
				},
				func() float64 {
					return float64(pool.Stat().IdleConns())
				},
			),
		)
	}

	prometheus.MustRegister(
		DefectsSubmitted,
		Validations,
		StatusTransitions,
		RequestDuration,
		RequestsInFlight,
		CacheHits,
		CacheMisses,
		WorkerBatchDuration,
	)
}

package poolsentry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// --- Prometheus Metrics Definition ---

// Metrics contains all the Prometheus metrics for the Sentry.
// Encapsulating them in a struct keeps the main system struct clean and organized.
type Metrics struct {
	// --- Tier 1: Critical System Health & Liveness ---
	LastProcessedBlock *prometheus.GaugeVec
	ErrorsTotal        *prometheus.CounterVec

	// --- Tier 2: Performance & Bottleneck Identification ---
	EventProcessingDur *prometheus.HistogramVec
	ProvenanceDur      *prometheus.HistogramVec
	PruningDuration    *prometheus.HistogramVec

	// --- Tier 3: Data & State Integrity ---
	EventsSeen            *prometheus.CounterVec
	DuplicateEvents       *prometheus.CounterVec
	EvaluationsTotal      *prometheus.CounterVec
	EvaluationsInRegistry *prometheus.GaugeVec
	SwapsSubmitted        *prometheus.CounterVec
}

// NewMetrics creates and registers all the Prometheus metrics for the system.
// It takes a prometheus.Registerer to allow for flexible registration (e.g., default vs. custom).
func NewMetrics(reg prometheus.Registerer, systemName string) *Metrics {
	return &Metrics{
		// --- Tier 1 Metrics ---
		LastProcessedBlock: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: systemName,
			Name:      "sentry_last_processed_block",
			Help:      "The block number of the last pool-creation log processed by the system.",
		}, []string{}),

		ErrorsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: systemName,
			Name:      "sentry_errors_total",
			Help:      "Total number of errors encountered by the system, labeled by error type.",
		}, []string{"type"}),

		// --- Tier 2 Metrics ---
		EventProcessingDur: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: systemName,
			Name:      "sentry_event_processing_duration_seconds",
			Help:      "A histogram of the end-to-end time from log delivery to recorded verdict.",
			Buckets:   prometheus.DefBuckets,
		}, []string{}),

		ProvenanceDur: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: systemName,
			Name:      "sentry_provenance_resolution_duration_seconds",
			Help:      "A histogram of the time it takes to resolve a creator's history and verification status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{}),

		PruningDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: systemName,
			Name:      "sentry_pruning_duration_seconds",
			Help:      "A histogram of the time it takes for the pruner to run a full cycle.",
			Buckets:   prometheus.DefBuckets,
		}, []string{}),

		// --- Tier 3 Metrics ---
		EventsSeen: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: systemName,
			Name:      "sentry_pool_creation_events_total",
			Help:      "A counter of pool-creation logs delivered to the system.",
		}, []string{}),

		DuplicateEvents: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: systemName,
			Name:      "sentry_duplicate_events_total",
			Help:      "A counter of deliveries for pools that were already evaluated.",
		}, []string{}),

		EvaluationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: systemName,
			Name:      "sentry_evaluations_total",
			Help:      "A counter of completed consensus evaluations, labeled by verdict.",
		}, []string{"verdict"}),

		EvaluationsInRegistry: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: systemName,
			Name:      "sentry_evaluations_in_registry_total",
			Help:      "The total number of evaluation outcomes currently retained in the registry.",
		}, []string{}),

		SwapsSubmitted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Subsystem: systemName,
			Name:      "sentry_swaps_submitted_total",
			Help:      "A counter of swap transactions submitted for passing events.",
		}, []string{}),
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	EventsRecorded  prometheus.Counter
	DuplicateWrites prometheus.Counter
	BroadcastDrops  prometheus.Counter
	Subscribers     prometheus.Gauge
	SummaryHits     prometheus.Counter
	SummaryMisses   prometheus.Counter
	Invalidations   prometheus.Counter
}

// New creates and registers all Prometheus metrics on reg. Pass a fresh
// registry in tests to avoid duplicate-registration panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "assettrail_audit_events_recorded_total",
			Help: "Audit events durably recorded (first writes only)",
		}),
		DuplicateWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "assettrail_audit_duplicate_writes_total",
			Help: "Write attempts short-circuited by the idempotency key",
		}),
		BroadcastDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "assettrail_broadcast_drops_total",
			Help: "Per-connection deliveries skipped because the subscriber was full or gone",
		}),
		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "assettrail_stream_subscribers",
			Help: "Live audit stream subscriber connections",
		}),
		SummaryHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "assettrail_summary_cache_hits_total",
			Help: "Summary reads served from cache",
		}),
		SummaryMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "assettrail_summary_cache_misses_total",
			Help: "Summary reads that forced recomputation",
		}),
		Invalidations: factory.NewCounter(prometheus.CounterOpts{
			Name: "assettrail_summary_invalidations_total",
			Help: "Summary cache generation advances",
		}),
	}
}

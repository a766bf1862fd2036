package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commute_resolutions_total",
			Help: "Total number of commute resolutions by outcome.",
		},
		[]string{"outcome"}, // success, permanent, transient
	)

	ResolveAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "commute_resolve_attempts_total",
			Help: "Total number of resolver calls, retries included.",
		},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commute_cache_lookups_total",
			Help: "Result cache lookups by result.",
		},
		[]string{"result"}, // hit, miss, expired
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "commute_queue_depth",
			Help: "Current number of cards waiting for a resolution slot.",
		},
	)

	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "commute_resolutions_in_flight",
			Help: "Current number of outstanding resolutions.",
		},
	)

	AnnotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commute_annotations_total",
			Help: "Annotations rendered into the host page by kind and state.",
		},
		[]string{"kind", "state"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EstimationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "estimation_requests_total",
			Help: "Total number of estimation requests by outcome",
		},
		[]string{"outcome"},
	)

	EstimationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "estimation_duration_seconds",
			Help: "Duration of full estimation pipeline runs in seconds",
		},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "estimation_cache_lookups_total",
			Help: "Estimation cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	MarketplaceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_requests_total",
			Help: "Upstream marketplace search calls by outcome",
		},
		[]string{"outcome"},
	)

	ThrottleRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "estimation_throttle_rejections_total",
			Help: "Requests rejected by the local inter-request gate",
		},
	)

	SingleFlightJoins = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "estimation_singleflight_joins_total",
			Help: "Requests that attached to an already in-flight estimation",
		},
	)
)

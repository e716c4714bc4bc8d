package upstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trustgate_upstream_calls_total",
		Help: "Terminal outcomes of upstream calls by endpoint and status.",
	}, []string{"endpoint", "status"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trustgate_upstream_retries_total",
		Help: "Retry attempts by endpoint.",
	}, []string{"endpoint"})

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trustgate_upstream_cache_hits_total",
		Help: "Degraded responses served from cache.",
	})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trustgate_breaker_state",
		Help: "Circuit breaker state per endpoint (0 closed, 1 half-open, 2 open).",
	}, []string{"endpoint"})
)

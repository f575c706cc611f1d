// Package metrics exposes the relay's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChainReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_chain_reads_total",
			Help: "On-chain read calls by chain and outcome (ok, not_found, transient_error)",
		},
		[]string{"chain", "outcome"},
	)

	ChainReadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_chain_read_duration_seconds",
			Help:    "On-chain read call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain"},
	)

	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_cache_hits_total",
			Help: "Reconciliation cache hits by entry class (entity, id)",
		},
		[]string{"class"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_cache_misses_total",
			Help: "Reconciliation cache misses by entry class (entity, id)",
		},
		[]string{"class"},
	)

	FinalizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_finalizations_total",
			Help: "Finalize requests by entity kind and outcome (finalized, duplicate, not_found, transient_error, failed)",
		},
		[]string{"kind", "outcome"},
	)

	NotificationsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_notifications_published_total",
			Help: "Host notifications published by entity kind",
		},
		[]string{"kind"},
	)

	WSClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_ws_clients_connected",
		Help: "Currently connected websocket dashboard clients",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

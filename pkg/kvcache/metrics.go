package kvcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks reads that produced a value, by sub-key kind.
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esi_kv_hits_total",
			Help: "Total ESI cache reads that produced a value",
		},
		[]string{"kind"}, // "etag", "json", "pages"
	)

	// cacheMisses tracks reads that produced nothing, by sub-key kind.
	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esi_kv_misses_total",
			Help: "Total ESI cache reads that produced no value",
		},
		[]string{"kind"},
	)

	// cacheErrors tracks absorbed Redis errors by operation. Errors are
	// never surfaced to the fetch path; this counter is the only place
	// they remain visible.
	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esi_kv_errors_total",
			Help: "Total absorbed ESI cache store errors",
		},
		[]string{"operation"}, // "get", "set"
	)
)

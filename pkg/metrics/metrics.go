// Package metrics documents the Prometheus metrics exported by the
// moonwatch ESI client. Metrics live in the packages that produce them
// (pkg/esi, pkg/kvcache) and register themselves via promauto; this
// package is the catalog.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the registerer all moonwatch metrics attach to.
var Registry = prometheus.DefaultRegisterer

// Request metrics (pkg/esi):
//   - esi_requests_total{method, status} (Counter): upstream responses seen
//   - esi_failures_total{kind} (Counter): failed attempts by kind
//     (status, connection, unexpected)
//   - esi_retry_sleep_seconds (Histogram): backoff slept between attempts
//   - esi_retry_exhausted_total (Counter): calls that burned the whole
//     attempt budget
//   - esi_errors_remaining (Gauge): upstream error-limit window state
//
// Cache metrics (pkg/kvcache):
//   - esi_kv_hits_total{kind} (Counter): reads that produced a value
//   - esi_kv_misses_total{kind} (Counter): reads that produced nothing
//   - esi_kv_errors_total{operation} (Counter): absorbed Redis errors
//
// Example queries:
//
//	# Conditional-request effectiveness
//	rate(esi_requests_total{status="304"}[5m]) / rate(esi_requests_total[5m])
//
//	# Cache hit rate
//	sum(rate(esi_kv_hits_total[5m])) /
//	(sum(rate(esi_kv_hits_total[5m])) + sum(rate(esi_kv_misses_total[5m])))

// Package kvcache implements the shared ESI response cache on a Redis
// backend.
//
// Each request identity owns three independent keys, each with its own
// TTL derived from the upstream Expires header:
//
//	etag:<identity>   opaque validator for If-None-Match
//	json:<identity>   last successfully decoded response body
//	pages:<identity>  total page count (paginated identities only)
//
// The store is strictly best-effort: every read returns a value plus an
// ok flag, and Redis trouble of any kind reads as a miss. A miss only
// forces an unconditional upstream request, it never fails a fetch.
// Callers must tolerate torn reads (an etag without a matching body) by
// skipping the conditional validator.
package kvcache

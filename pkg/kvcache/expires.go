package kvcache

import (
	"net/http"
	"time"
)

// DefaultLifetime is the fallback TTL when the upstream response carries
// no usable Expires header.
const DefaultLifetime = 3600 * time.Second

// Lifetime derives a cache TTL from an Expires header value. A missing
// or unparseable header yields fallback. A header in the past yields a
// non-positive duration, which the store refuses to write.
func Lifetime(expires string, fallback time.Duration) time.Duration {
	if expires == "" {
		return fallback
	}

	at, err := http.ParseTime(expires)
	if err != nil {
		return fallback
	}

	return time.Until(at)
}

package kvcache

import (
	"net/http"
	"testing"
	"time"
)

func TestLifetime_FromExpiresHeader(t *testing.T) {
	expires := time.Now().Add(120 * time.Second).UTC().Format(http.TimeFormat)

	ttl := Lifetime(expires, DefaultLifetime)

	// http.TimeFormat has second granularity, so allow slack on both
	// sides of the 120s target.
	if ttl < 118*time.Second || ttl > 121*time.Second {
		t.Errorf("Lifetime() = %v, want ~120s", ttl)
	}
}

func TestLifetime_MissingHeader(t *testing.T) {
	if ttl := Lifetime("", DefaultLifetime); ttl != DefaultLifetime {
		t.Errorf("Lifetime(\"\") = %v, want %v", ttl, DefaultLifetime)
	}
}

func TestLifetime_UnparseableHeader(t *testing.T) {
	if ttl := Lifetime("not a timestamp", DefaultLifetime); ttl != DefaultLifetime {
		t.Errorf("Lifetime(garbage) = %v, want %v", ttl, DefaultLifetime)
	}
}

func TestLifetime_PastHeader(t *testing.T) {
	expires := time.Now().Add(-1 * time.Hour).UTC().Format(http.TimeFormat)

	// A past Expires yields a non-positive TTL; the store refuses to
	// write those, so the stale response is simply not cached.
	if ttl := Lifetime(expires, DefaultLifetime); ttl > 0 {
		t.Errorf("Lifetime(past) = %v, want <= 0", ttl)
	}
}

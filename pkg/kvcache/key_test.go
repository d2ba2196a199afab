package kvcache

import (
	"net/url"
	"testing"
)

func TestIdentity(t *testing.T) {
	tests := []struct {
		name   string
		rawURL string
		params url.Values
		want   string
	}{
		{
			name:   "no params",
			rawURL: "https://esi.evetech.net/latest/status/",
			want:   "https://esi.evetech.net/latest/status/",
		},
		{
			name:   "params merged into url",
			rawURL: "https://esi.evetech.net/latest/status/",
			params: url.Values{"datasource": {"tranquility"}},
			want:   "https://esi.evetech.net/latest/status/?datasource=tranquility",
		},
		{
			name:   "params sorted for determinism",
			rawURL: "https://esi.evetech.net/latest/alliances/99002329/corporations/",
			params: url.Values{"page": {"2"}, "datasource": {"tranquility"}},
			want:   "https://esi.evetech.net/latest/alliances/99002329/corporations/?datasource=tranquility&page=2",
		},
		{
			name:   "params override url query",
			rawURL: "https://esi.evetech.net/latest/foo/?page=1",
			params: url.Values{"page": {"3"}},
			want:   "https://esi.evetech.net/latest/foo/?page=3",
		},
		{
			name:   "existing query preserved",
			rawURL: "https://esi.evetech.net/latest/foo/?language=en",
			params: url.Values{"page": {"2"}},
			want:   "https://esi.evetech.net/latest/foo/?language=en&page=2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Identity(tt.rawURL, tt.params)
			if got != tt.want {
				t.Errorf("Identity() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIdentity_HeaderIndependent(t *testing.T) {
	// Two calls with the same URL and params must share an identity no
	// matter which headers accompany them; headers never enter the key.
	a := Identity("https://esi.evetech.net/latest/foo/", url.Values{"page": {"1"}})
	b := Identity("https://esi.evetech.net/latest/foo/", url.Values{"page": {"1"}})
	if a != b {
		t.Errorf("identities differ: %q vs %q", a, b)
	}
}

func TestSubKeys(t *testing.T) {
	identity := "https://esi.evetech.net/latest/status/"

	if got := etagKey(identity); got != "etag:"+identity {
		t.Errorf("etagKey() = %q", got)
	}
	if got := jsonKey(identity); got != "json:"+identity {
		t.Errorf("jsonKey() = %q", got)
	}
	if got := pagesKey(identity); got != "pages:"+identity {
		t.Errorf("pagesKey() = %q", got)
	}
}

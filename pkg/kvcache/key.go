package kvcache

import (
	"net/url"
)

// Key prefixes for the three sub-keys stored per request identity.
const (
	etagPrefix  = "etag:"
	jsonPrefix  = "json:"
	pagesPrefix = "pages:"
)

// Identity derives the canonical cache-key root for one logical request:
// the target URL with the supplied query parameters merged in and encoded
// in sorted order. Headers never participate, so an authorized and an
// anonymous call to the same URL share one identity.
func Identity(rawURL string, params url.Values) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		// Unparseable input is still a deterministic key; the request
		// itself will fail downstream.
		return rawURL
	}

	q := u.Query()
	for name, values := range params {
		q[name] = values
	}
	u.RawQuery = q.Encode()

	return u.String()
}

func etagKey(identity string) string  { return etagPrefix + identity }
func jsonKey(identity string) string  { return jsonPrefix + identity }
func pagesKey(identity string) string { return pagesPrefix + identity }

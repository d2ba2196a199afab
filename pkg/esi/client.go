package esi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/evetools/moonwatch/pkg/kvcache"
)

// Request and response headers with distinguished handling.
const (
	headerIfNoneMatch = "If-None-Match"
	headerETag        = "ETag"
	headerExpires     = "Expires"
	headerPages       = "X-Pages"
)

// DefaultAPIRoot is the versioned root of the upstream ESI API.
const DefaultAPIRoot = "https://esi.evetech.net/latest"

// Prometheus metrics for client operations.
var (
	esiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esi_requests_total",
		Help: "Total ESI requests by method and status",
	}, []string{"method", "status"})

	esiFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esi_failures_total",
		Help: "Total ESI request failures by kind",
	}, []string{"kind"}) // "status", "connection", "unexpected"

	esiRetrySleepSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "esi_retry_sleep_seconds",
		Help:    "Backoff slept between retry attempts",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	esiRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esi_retry_exhausted_total",
		Help: "Total ESI calls that exhausted their attempt budget",
	})
)

// Client talks to ESI. It owns its cache-store handle and logger;
// construct one at startup and pass it to callers.
type Client struct {
	httpClient *http.Client
	store      *kvcache.Store
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Redis backs the shared response cache.
	Redis *redis.Client

	// UserAgent identifies the application to ESI (required).
	// Format: "AppName/Version (contact@example.com)"
	UserAgent string

	// APIRoot is the versioned upstream root used by convenience calls.
	APIRoot string

	// MaxAttempts bounds the retry loop, including the first attempt.
	MaxAttempts int

	// BaseDelay is slept between attempts, scaled by the per-status
	// multiplier. Connection failures sleep the base delay unscaled.
	BaseDelay time.Duration

	// BackoffMultipliers scales BaseDelay per failing status. Unlisted
	// statuses use multiplier 1.
	BackoffMultipliers map[int]float64

	// LimitPerHost bounds concurrent connections of the per-call
	// transport pool opened for paginated fetches.
	LimitPerHost int

	// DefaultLifetime is the cache TTL when a response carries no
	// usable Expires header.
	DefaultLifetime time.Duration

	// Logger receives structured request telemetry.
	Logger zerolog.Logger
}

// DefaultBackoffMultipliers returns the per-status backoff table.
// Error-limited and throttled responses back off hardest.
func DefaultBackoffMultipliers() map[int]float64 {
	return map[int]float64{
		420:                            30, // ESI "error limited"
		http.StatusTooManyRequests:     10,
		http.StatusInternalServerError: 2,
		http.StatusBadGateway:          2,
		http.StatusServiceUnavailable:  2,
		http.StatusGatewayTimeout:      5,
	}
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(rdb *redis.Client, userAgent string) Config {
	return Config{
		Redis:              rdb,
		UserAgent:          userAgent,
		APIRoot:            DefaultAPIRoot,
		MaxAttempts:        5,
		BaseDelay:          1 * time.Second,
		BackoffMultipliers: DefaultBackoffMultipliers(),
		LimitPerHost:       10,
		DefaultLifetime:    kvcache.DefaultLifetime,
		Logger:             log.With().Str("component", "esi").Logger(),
	}
}

// New creates a new ESI client.
func New(cfg Config) (*Client, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("max_attempts must be >= 1 (got %d)", cfg.MaxAttempts)
	}

	if cfg.BaseDelay <= 0 {
		return nil, fmt.Errorf("base_delay must be positive (got %v)", cfg.BaseDelay)
	}

	if cfg.APIRoot == "" {
		cfg.APIRoot = DefaultAPIRoot
	}

	if cfg.BackoffMultipliers == nil {
		cfg.BackoffMultipliers = DefaultBackoffMultipliers()
	}

	if cfg.LimitPerHost < 1 {
		cfg.LimitPerHost = 10
	}

	if cfg.DefaultLifetime <= 0 {
		cfg.DefaultLifetime = kvcache.DefaultLifetime
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		store:  kvcache.NewStore(cfg.Redis, cfg.Logger),
		config: cfg,
		logger: cfg.Logger,
	}, nil
}

// Get performs one logical GET with conditional-request caching and
// bounded retry. Data is populated on success or on a not-modified
// response whose body is still cached; otherwise it is nil.
func (c *Client) Get(ctx context.Context, rawURL string, headers http.Header, params url.Values) Result {
	return c.get(ctx, c.httpClient, rawURL, headers, params)
}

func (c *Client) get(ctx context.Context, hc *http.Client, rawURL string, headers http.Header, params url.Values) Result {
	identity := kvcache.Identity(rawURL, params)

	prevBody, haveBody := c.store.Body(ctx, identity)
	prevETag, haveETag := c.store.ETag(ctx, identity)

	reqHeaders := cloneHeader(headers)
	// A stale etag without its body would yield a 304 we cannot serve,
	// so both must be present before revalidating.
	if haveBody && haveETag {
		reqHeaders.Set(headerIfNoneMatch, prevETag)
	}

	status := http.StatusNotFound
	var data json.RawMessage

	ret := c.newRetrier(permanentGetStatuses)
	for ret.more() {
		resp, err := c.do(ctx, hc, http.MethodGet, rawURL, reqHeaders, params, nil)
		if err != nil {
			if !isTransportError(err) {
				esiFailuresTotal.WithLabelValues("unexpected").Inc()
				c.logger.Error().Err(err).Str("url", rawURL).Msg("request build failed")
				break
			}
			ret.connFailure(ctx, rawURL, err)
			continue
		}

		status = resp.StatusCode
		c.observeErrorLimit(resp.Header)
		esiRequestsTotal.WithLabelValues(http.MethodGet, fmt.Sprintf("%d", status)).Inc()

		if status == http.StatusOK {
			body, err := readJSONBody(resp)
			if err != nil {
				esiFailuresTotal.WithLabelValues("unexpected").Inc()
				c.logger.Error().Err(err).Str("url", rawURL).Msg("undecodable response body")
				break
			}

			if etag := resp.Header.Get(headerETag); etag != "" {
				ttl := kvcache.Lifetime(resp.Header.Get(headerExpires), c.config.DefaultLifetime)
				c.store.SaveBody(ctx, identity, body, etag, ttl)
			}

			data = body
			break
		}

		if status == http.StatusNotModified {
			discardBody(resp)
			if haveBody {
				data = prevBody
			}
			break
		}

		ret.statusFailure(ctx, resp, rawURL)
	}

	c.logger.Info().Str("url", rawURL).Int("status", status).Bool("ok", data != nil).Msg("get complete")
	return Result{Status: status, Data: data}
}

// Post performs one logical POST with the same retry policy as Get but
// no caching. Success is strictly 200, and unauthorized is permanent in
// addition to bad-request and forbidden.
func (c *Client) Post(ctx context.Context, rawURL string, payload any, headers http.Header, params url.Values) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		esiFailuresTotal.WithLabelValues("unexpected").Inc()
		c.logger.Error().Err(err).Str("url", rawURL).Msg("unencodable request payload")
		return Result{Status: http.StatusNotFound}
	}

	status := http.StatusNotFound
	var data json.RawMessage

	ret := c.newRetrier(permanentPostStatuses)
	for ret.more() {
		resp, err := c.do(ctx, c.httpClient, http.MethodPost, rawURL, headers, params, body)
		if err != nil {
			if !isTransportError(err) {
				esiFailuresTotal.WithLabelValues("unexpected").Inc()
				c.logger.Error().Err(err).Str("url", rawURL).Msg("request build failed")
				break
			}
			ret.connFailure(ctx, rawURL, err)
			continue
		}

		status = resp.StatusCode
		c.observeErrorLimit(resp.Header)
		esiRequestsTotal.WithLabelValues(http.MethodPost, fmt.Sprintf("%d", status)).Inc()

		if status == http.StatusOK {
			respBody, err := readJSONBody(resp)
			if err != nil {
				esiFailuresTotal.WithLabelValues("unexpected").Inc()
				c.logger.Error().Err(err).Str("url", rawURL).Msg("undecodable response body")
				break
			}
			data = respBody
			break
		}

		ret.statusFailure(ctx, resp, rawURL)
	}

	return Result{Status: status, Data: data}
}

// do issues a single HTTP request. The returned response body is still
// open; transport errors come back for the caller to classify.
func (c *Client) do(ctx context.Context, hc *http.Client, method, rawURL string, headers http.Header, params url.Values, body []byte) (*http.Response, error) {
	// The request URL must carry the same merged query the cache
	// identity was derived from.
	target := kvcache.Identity(rawURL, params)

	var payload io.Reader
	if body != nil {
		payload = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		// Malformed input, not a transport problem. The caller aborts
		// instead of retrying.
		return nil, err
	}

	for name, values := range headers {
		req.Header[name] = values
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return hc.Do(req)
}

// readJSONBody consumes a response body and validates it is JSON.
func readJSONBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("response body is not valid JSON")
	}

	return body, nil
}

// discardBody drains and closes a response body so the connection can be
// reused.
func discardBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	return h.Clone()
}

package esi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// Permanent statuses are never retried: the request itself is at fault
// and repeating it only burns error budget.
//
// The sets differ on purpose: a GET is safe to reissue past an auth
// hiccup, a POST is not, so unauthorized is permanent only for POST.
var (
	permanentGetStatuses = map[int]bool{
		http.StatusBadRequest: true,
		http.StatusForbidden:  true,
	}

	permanentPostStatuses = map[int]bool{
		http.StatusBadRequest:   true,
		http.StatusForbidden:    true,
		http.StatusUnauthorized: true,
	}
)

// retrier tracks the attempt budget for one logical request. Each
// failure consumes an attempt and sleeps the appropriate backoff when
// attempts remain; permanent statuses and context cancellation zero the
// budget.
type retrier struct {
	remaining   int
	baseDelay   time.Duration
	multipliers map[int]float64
	permanent   map[int]bool
	logger      zerolog.Logger
}

func (c *Client) newRetrier(permanent map[int]bool) *retrier {
	return &retrier{
		remaining:   c.config.MaxAttempts,
		baseDelay:   c.config.BaseDelay,
		multipliers: c.config.BackoffMultipliers,
		permanent:   permanent,
		logger:      c.logger,
	}
}

// more reports whether another attempt may be issued.
func (r *retrier) more() bool {
	return r.remaining > 0
}

// statusFailure consumes an attempt for a non-success response and
// sleeps the status-scaled backoff when attempts remain. The response
// body is drained for connection reuse, with a snippet kept for the log.
func (r *retrier) statusFailure(ctx context.Context, resp *http.Response, rawURL string) {
	r.remaining--
	esiFailuresTotal.WithLabelValues("status").Inc()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	resp.Body.Close()

	r.logger.Warn().
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Int("attempts_remaining", r.remaining).
		Str("body", string(snippet)).
		Msg("upstream error")

	if r.permanent[resp.StatusCode] {
		r.remaining = 0
		return
	}

	if r.remaining > 0 {
		r.sleep(ctx, r.backoff(resp.StatusCode))
	} else {
		esiRetryExhaustedTotal.Inc()
	}
}

// connFailure consumes an attempt for a connection-level failure and
// sleeps the unscaled base delay when attempts remain.
func (r *retrier) connFailure(ctx context.Context, rawURL string, err error) {
	r.remaining--
	esiFailuresTotal.WithLabelValues("connection").Inc()

	r.logger.Error().
		Err(err).
		Str("url", rawURL).
		Int("attempts_remaining", r.remaining).
		Msg("connection failure")

	if r.remaining > 0 {
		r.sleep(ctx, r.baseDelay)
	} else {
		esiRetryExhaustedTotal.Inc()
	}
}

// backoff returns the delay for a failing status: base delay scaled by
// the per-status multiplier, default 1 for unlisted statuses.
func (r *retrier) backoff(status int) time.Duration {
	multiplier, ok := r.multipliers[status]
	if !ok {
		multiplier = 1
	}
	return time.Duration(float64(r.baseDelay) * multiplier)
}

// sleep waits out a backoff. Context cancellation zeroes the budget so
// the caller's loop terminates.
func (r *retrier) sleep(ctx context.Context, d time.Duration) {
	esiRetrySleepSeconds.Observe(d.Seconds())

	select {
	case <-ctx.Done():
		r.logger.Warn().Msg("context cancelled during retry backoff")
		r.remaining = 0
	case <-time.After(d):
	}
}

// isTransportError reports whether a request failure came from the
// transport (retriable) rather than from building the request (not).
// http.Client wraps every transport failure in *url.Error.
func isTransportError(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

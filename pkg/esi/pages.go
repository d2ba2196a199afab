package esi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/evetools/moonwatch/pkg/kvcache"
)

// Pages fetches every page of a paginated collection endpoint and
// returns the items as one ordered sequence. A non-empty access token is
// attached as a bearer authorization header.
//
// Page one runs under the full retry loop and determines the total page
// count from the X-Pages header (default 1). Pages 2..N are then fetched
// concurrently over a per-call transport pool bounded by LimitPerHost,
// and assembled strictly in page order. The operation is all-or-nothing:
// one definitively failed page discards everything and reports that
// page's status, since consumers assume complete collections.
func (c *Client) Pages(ctx context.Context, rawURL string, accessToken string, params url.Values) Result {
	authHeaders := http.Header{}
	if len(accessToken) > 0 {
		authHeaders.Set("Authorization", "Bearer "+accessToken)
	}

	identity := kvcache.Identity(rawURL, params)

	prevBody, haveBody := c.store.Body(ctx, identity)
	prevPages, _ := c.store.PageCount(ctx, identity)
	prevETag, haveETag := c.store.ETag(ctx, identity)

	reqHeaders := authHeaders.Clone()
	// Stricter precondition than the single-fetch case: a cached page
	// count is needed too, because a 304 must reproduce the fan-out.
	if haveETag && haveBody && prevPages > 0 {
		reqHeaders.Set(headerIfNoneMatch, prevETag)
	}

	// One transport pool for the whole call, page one included.
	hc := c.newPooledClient()
	defer hc.CloseIdleConnections()

	status := http.StatusNotFound
	var firstPage json.RawMessage
	totalPages := 0

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
			pages := 1
			if raw := resp.Header.Get(headerPages); raw != "" {
				if n, err := strconv.Atoi(raw); err == nil {
					pages = n
				}
			}

			body, err := readJSONBody(resp)
			if err != nil {
				esiFailuresTotal.WithLabelValues("unexpected").Inc()
				c.logger.Error().Err(err).Str("url", rawURL).Msg("undecodable response body")
				break
			}

			// Write precondition is etag+body only; the page count
			// rides along whenever those are present.
			if etag := resp.Header.Get(headerETag); etag != "" {
				ttl := kvcache.Lifetime(resp.Header.Get(headerExpires), c.config.DefaultLifetime)
				c.store.SavePage(ctx, identity, body, etag, pages, ttl)
			}

			totalPages = pages
			firstPage = body
			break
		}

		if status == http.StatusNotModified {
			discardBody(resp)
			if haveBody {
				totalPages = prevPages
				firstPage = prevBody
			}
			break
		}

		ret.statusFailure(ctx, resp, rawURL)
	}

	if firstPage == nil {
		c.logger.Info().Str("identity", identity).Int("status", status).Bool("ok", false).Msg("pages complete")
		return Result{Status: status}
	}

	items, err := appendItems(nil, firstPage)
	if err != nil {
		esiFailuresTotal.WithLabelValues("unexpected").Inc()
		c.logger.Error().Err(err).Str("url", rawURL).Msg("first page is not a collection")
		return Result{Status: status}
	}

	if totalPages > 1 {
		followers := make([]Result, totalPages+1)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.config.LimitPerHost)
		for page := 2; page <= totalPages; page++ {
			g.Go(func() error {
				pageParams := cloneValues(params)
				pageParams.Set("page", strconv.Itoa(page))
				followers[page] = c.get(gctx, hc, rawURL, authHeaders, pageParams)
				return nil
			})
		}
		_ = g.Wait()

		// Assemble in page order regardless of completion order.
		for page := 2; page <= totalPages; page++ {
			res := followers[page]
			if !res.fresh() {
				c.logger.Warn().
					Str("identity", identity).
					Int("page", page).
					Int("status", res.Status).
					Msg("page fetch failed, discarding collection")
				return Result{Status: res.Status}
			}

			items, err = appendItems(items, res.Data)
			if err != nil {
				esiFailuresTotal.WithLabelValues("unexpected").Inc()
				c.logger.Error().Err(err).Str("identity", identity).Int("page", page).Msg("page is not a collection")
				return Result{Status: res.Status}
			}
		}
	}

	if items == nil {
		items = []json.RawMessage{}
	}

	data, err := json.Marshal(items)
	if err != nil {
		esiFailuresTotal.WithLabelValues("unexpected").Inc()
		return Result{Status: status}
	}

	c.logger.Info().Str("identity", identity).Int("status", status).Int("pages", totalPages).Bool("ok", true).Msg("pages complete")
	return Result{Status: status, Data: data}
}

// newPooledClient opens a transport pool scoped to one paginated call,
// with bounded concurrent connections per host.
func (c *Client) newPooledClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     c.config.LimitPerHost,
			MaxIdleConnsPerHost: c.config.LimitPerHost,
		},
		Timeout: c.httpClient.Timeout,
	}
}

// appendItems decodes one page body as a JSON array and appends its
// elements.
func appendItems(items []json.RawMessage, page json.RawMessage) ([]json.RawMessage, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(page, &elems); err != nil {
		return nil, err
	}
	return append(items, elems...), nil
}

func cloneValues(params url.Values) url.Values {
	out := url.Values{}
	for name, values := range params {
		out[name] = append([]string(nil), values...)
	}
	return out
}

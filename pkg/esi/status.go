package esi

import (
	"context"
	"net/http"
	"net/url"

	json "github.com/goccy/go-json"
)

// minPlayerCount is the player floor below which the upstream is
// considered too degraded to poll.
const minPlayerCount = 128

// ServerStatus probes the upstream status endpoint and reports whether
// ESI is worth talking to: the fetch produced data, more than
// minPlayerCount players are online, and VIP mode is off. Any other
// outcome reads as unavailable.
func (c *Client) ServerStatus(ctx context.Context) bool {
	params := url.Values{
		"datasource": {"tranquility"},
		"language":   {"en"},
	}

	res := c.Get(ctx, c.config.APIRoot+"/status/", nil, params)
	c.logger.Info().Int("status", res.Status).Bool("ok", res.Ok()).Msg("server status probe")

	if (res.Status != http.StatusOK && res.Status != http.StatusNotModified) || !res.Ok() {
		return false
	}

	var payload struct {
		Players int  `json:"players"`
		VIP     bool `json:"vip"`
	}
	if err := json.Unmarshal(res.Data, &payload); err != nil {
		return false
	}

	return payload.Players > minPlayerCount && !payload.VIP
}

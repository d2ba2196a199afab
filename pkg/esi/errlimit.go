package esi

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ESI error-limit headers, present on every upstream response.
const (
	headerErrorLimitRemain = "X-ESI-Error-Limit-Remain"
	headerErrorLimitReset  = "X-ESI-Error-Limit-Reset"
)

// errorLimitWarnFloor is the remaining-error level below which the
// client starts warning. Observation only: the retry budget stays the
// sole bounded-time mechanism, requests are never gated here.
const errorLimitWarnFloor = 20

var esiErrorsRemaining = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "esi_errors_remaining",
	Help: "Errors remaining in the current ESI error limit window",
})

// observeErrorLimit records the upstream error-limit state from response
// headers.
func (c *Client) observeErrorLimit(headers http.Header) {
	remainStr := headers.Get(headerErrorLimitRemain)
	if remainStr == "" {
		return
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return
	}

	esiErrorsRemaining.Set(float64(remain))

	if remain < errorLimitWarnFloor {
		c.logger.Warn().
			Int("errors_remaining", remain).
			Str("reset_in", headers.Get(headerErrorLimitReset)+"s").
			Msg("ESI error limit running low")
	}
}

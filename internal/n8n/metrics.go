package n8n

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// dispatchTotal counts outbound posts by kind and outcome
	// (the status code, or "error" for transport failures).
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n8n_requests_total",
			Help: "Total number of requests sent to n8n webhooks.",
		},
		[]string{"kind", "outcome"},
	)

	dispatchLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "n8n_request_duration_seconds",
			Help:    "Duration of requests sent to n8n webhooks in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(dispatchTotal, dispatchLat)
}

func observe(kind string, start time.Time, resp *Response, err error) {
	outcome := "error"
	if err == nil && resp != nil {
		outcome = strconv.Itoa(resp.Status)
	}
	dispatchTotal.WithLabelValues(kind, outcome).Inc()
	dispatchLat.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// Package metrics defines the Prometheus metrics exported by the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts requests by endpoint and outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speedtest_requests_total",
			Help: "Number of speed test requests by endpoint and result.",
		},
		[]string{"endpoint", "result"},
	)

	// BytesTotal counts payload bytes moved by endpoint.
	BytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speedtest_bytes_total",
			Help: "Payload bytes sent (download) or received (upload).",
		},
		[]string{"endpoint"},
	)

	// ActiveRequests tracks requests currently being served.
	ActiveRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "speedtest_active_requests",
			Help: "Number of in-flight speed test requests.",
		},
		[]string{"endpoint"},
	)
)

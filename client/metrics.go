package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts view queries by view identity and HTTP status.
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bunview_requests_total",
			Help: "Total number of view queries issued",
		},
		[]string{"design_doc", "view", "status"},
	)
	// requestDuration is the latency of view queries.
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bunview_request_duration_seconds",
			Help:    "View query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"design_doc", "view"},
	)
	// rowsTotal counts rows pulled from result streams.
	rowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bunview_rows_total",
			Help: "Total number of result rows streamed",
		},
	)
)

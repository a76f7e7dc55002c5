package listctl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchesTotal counts list fetches.
	// Labels: resource, result (success, error)
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_list_fetches_total",
			Help: "Total number of remote list fetches",
		},
		[]string{"resource", "result"},
	)

	// FetchDuration tracks remote list fetch latency.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stockroom_list_fetch_duration_seconds",
			Help:    "Remote list fetch duration distribution",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"resource"},
	)

	// SupersededTotal counts fetch results dropped because the view had
	// moved on to another query by the time they arrived.
	SupersededTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_list_superseded_total",
			Help: "Total number of list results discarded as superseded",
		},
		[]string{"resource"},
	)
)

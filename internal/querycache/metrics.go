package querycache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LookupsTotal counts list and detail lookups.
	// Labels: kind (list, detail), result (hit, stale, miss)
	LookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_query_cache_lookups_total",
			Help: "Total number of query cache lookups",
		},
		[]string{"kind", "result"},
	)

	// InvalidationsTotal counts entries marked stale or removed.
	// Labels: kind (list, detail), action (stale, remove)
	InvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_query_cache_invalidations_total",
			Help: "Total number of invalidated query cache entries",
		},
		[]string{"kind", "action"},
	)

	// Entries tracks the number of cached entries per kind.
	Entries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stockroom_query_cache_entries",
			Help: "Current number of query cache entries",
		},
		[]string{"kind"},
	)
)

func recordLookup(kind string, e *Entry) {
	switch {
	case e == nil:
		LookupsTotal.WithLabelValues(kind, "miss").Inc()
	case e.Stale:
		LookupsTotal.WithLabelValues(kind, "stale").Inc()
	default:
		LookupsTotal.WithLabelValues(kind, "hit").Inc()
	}
}

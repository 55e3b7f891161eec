package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnalysesTotal counts analysis requests by resolved mode and outcome
	// (ok, not_found, error).
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "remora",
		Name:      "analyses_total",
		Help:      "Completed unusual-activity analyses by mode and outcome.",
	}, []string{"mode", "outcome"})

	// AnalysisDuration observes end-to-end analysis latency.
	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "remora",
		Name:      "analysis_duration_seconds",
		Help:      "End-to-end analysis duration.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	// SourceFetches counts chain fetch attempts per provider and result.
	SourceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "remora",
		Name:      "source_fetches_total",
		Help:      "Chain fetch attempts by source and result.",
	}, []string{"source", "result"})

	// BrokerReconnects counts gateway connect attempts.
	BrokerReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "remora",
		Name:      "broker_connects_total",
		Help:      "Broker gateway connect calls.",
	})
)

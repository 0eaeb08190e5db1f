// Package metrics defines the Prometheus instruments for capture ingestion.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the ingestion counters.
type Metrics struct {
	IngestTotal        *prometheus.CounterVec
	RelayDrained       prometheus.Counter
	ClassifierFallback *prometheus.CounterVec
	ClassifierRetries  prometheus.Counter
	PendingCandidates  prometheus.Gauge
}

// New registers the instruments on reg. Pass prometheus.DefaultRegisterer
// in the application and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IngestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smart_captures_ingest_total",
				Help: "Messages processed by the ingestion pipeline, by outcome",
			},
			[]string{"outcome"},
		),
		RelayDrained: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "smart_captures_relay_drained_total",
				Help: "Messages taken out of the cross-process relay",
			},
		),
		ClassifierFallback: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smart_captures_classifier_fallback_total",
				Help: "Remote classifications answered by the keyword fallback, by reason",
			},
			[]string{"reason"},
		),
		ClassifierRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "smart_captures_classifier_retries_total",
				Help: "Remote classification attempts that failed and were retried",
			},
		),
		PendingCandidates: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "smart_captures_pending_candidates",
				Help: "Candidates awaiting review",
			},
		),
	}
}

// Nop returns instruments registered nowhere.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

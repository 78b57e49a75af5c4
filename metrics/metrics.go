// Package metrics exposes the service's operational counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WebhookEvents counts purchase webhook deliveries by outcome
	// (processed, duplicate, ignored, parked, error).
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kindling_webhook_events_total",
		Help: "Purchase webhook deliveries by outcome.",
	}, []string{"outcome"})

	// LedgerMutations counts applied ledger transactions by kind.
	LedgerMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kindling_ledger_mutations_total",
		Help: "Applied ledger transactions by kind.",
	}, []string{"kind"})

	// SweepTransitions counts lifecycle transitions applied by the sweeper.
	SweepTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kindling_sweep_transitions_total",
		Help: "Lifecycle transitions applied by the sweeper.",
	}, []string{"transition"})
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

// Metrics holds the pipeline counters. Registered once on the default
// registerer; the server exposes them on /metrics.
type Metrics struct {
	EventsIngested  *prometheus.CounterVec
	EventsProcessed *prometheus.CounterVec
	AlertsRaised    prometheus.Counter
	DriftsDetected  prometheus.Counter
	WorkerRedrives  prometheus.Counter
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the counters on reg, so tests can use a throwaway
// registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "profitlens",
			Name:      "events_ingested_total",
			Help:      "Events accepted at the intake, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "profitlens",
			Name:      "events_processed_total",
			Help:      "State machine completions, by kind and final status.",
		}, []string{"kind", "status"}),
		AlertsRaised: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "profitlens",
			Name:      "margin_alerts_raised_total",
			Help:      "Margin alerts created.",
		}),
		DriftsDetected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "profitlens",
			Name:      "price_drifts_detected_total",
			Help:      "Pending price drifts recorded by catalog sync.",
		}),
		WorkerRedrives: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "profitlens",
			Name:      "worker_redrives_total",
			Help:      "Stuck events picked up by the redrive loop.",
		}),
	}
}

var Module = fx.Module("observability.metrics",
	fx.Provide(New),
)

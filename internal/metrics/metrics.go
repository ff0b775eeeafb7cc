package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Wizard metrics
	WizardTurnsTotal     *prometheus.CounterVec
	WizardTurnIterations prometheus.Histogram

	// Tool metrics
	ToolExecutionsTotal *prometheus.CounterVec

	// Provider metrics
	ProviderCallsTotal *prometheus.CounterVec

	// Store metrics
	SessionsCreatedTotal prometheus.Counter

	// Purge metrics
	PurgeRunsTotal        prometheus.Counter
	PurgeDeletedKeysTotal prometheus.Counter
}

// New creates and registers all metrics
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		WizardTurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wizard_turns_total",
				Help: "Total number of wizard turns by terminal status",
			},
			[]string{"status"},
		),
		WizardTurnIterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wizard_turn_iterations",
				Help:    "Provider round trips per wizard turn",
				Buckets: prometheus.LinearBuckets(1, 1, 15),
			},
		),
		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool", "status"},
		),
		ProviderCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_calls_total",
				Help: "Total number of provider round trips",
			},
			[]string{"model", "status"},
		),
		SessionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		PurgeRunsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "purge_runs_total",
				Help: "Total number of purge runs",
			},
		),
		PurgeDeletedKeysTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "purge_deleted_keys_total",
				Help: "Total number of keys deleted by purge runs",
			},
		),
	}

	registry.MustRegister(
		m.WizardTurnsTotal,
		m.WizardTurnIterations,
		m.ToolExecutionsTotal,
		m.ProviderCallsTotal,
		m.SessionsCreatedTotal,
		m.PurgeRunsTotal,
		m.PurgeDeletedKeysTotal,
	)

	return m
}

// Handler returns an HTTP handler exposing the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Package metrics records per-run Prometheus metrics on a private registry
// and pushes them to a Pushgateway at the end of the run.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"signal-systemv1/internal/marketdata/provider"
)

// Metrics holds all Prometheus metrics for one signal run.
type Metrics struct {
	reg *prometheus.Registry

	AssetsTotal      *prometheus.CounterVec // labels: outcome=signal|skipped
	SignalsTotal     *prometheus.CounterVec // labels: action
	ChangedTotal     *prometheus.CounterVec // labels: action
	FetchDur         *prometheus.HistogramVec
	FetchFailures    *prometheus.CounterVec // labels: provider
	BreakerState     *prometheus.GaugeVec   // labels: provider; 0=closed, 1=open, 2=half-open
	BarsDropped      prometheus.Counter
	ClassifierSource *prometheus.GaugeVec // labels: source; 1 for the active source
	NotifyFailures   prometheus.Counter
	RunDuration      prometheus.Gauge
	LastSuccess      prometheus.Gauge
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),

		AssetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_assets_total",
			Help: "Assets processed by outcome",
		}, []string{"outcome"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_signals_total",
			Help: "Decisions produced by action",
		}, []string{"action"}),
		ChangedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_changed_signals_total",
			Help: "Notify-worthy signal changes by action",
		}, []string{"action"}),
		FetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signal_engine_fetch_duration_seconds",
			Help:    "Market data fetch latency per provider attempt",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"provider"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_fetch_failures_total",
			Help: "Failed market data fetches per provider",
		}, []string{"provider"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signal_engine_provider_breaker_state",
			Help: "Provider circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"provider"}),
		BarsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_engine_bars_dropped_total",
			Help: "Invalid, duplicate or forming bars dropped during normalisation",
		}),
		ClassifierSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signal_engine_classifier_source",
			Help: "Where the run's classifier came from (disabled, artifact, trained, constant)",
		}, []string{"source"}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_engine_notify_failures_total",
			Help: "Runs whose notification failed on every channel",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_engine_run_duration_seconds",
			Help: "Wall-clock duration of the run",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_engine_last_success_timestamp_seconds",
			Help: "Unix time of the last run that persisted state",
		}),
	}

	m.reg.MustRegister(
		m.AssetsTotal,
		m.SignalsTotal,
		m.ChangedTotal,
		m.FetchDur,
		m.FetchFailures,
		m.BreakerState,
		m.BarsDropped,
		m.ClassifierSource,
		m.NotifyFailures,
		m.RunDuration,
		m.LastSuccess,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveFetch is a provider.Chain fetch hook.
func (m *Metrics) ObserveFetch(name string, took time.Duration, err error) {
	m.FetchDur.WithLabelValues(name).Observe(took.Seconds())
	if err != nil {
		m.FetchFailures.WithLabelValues(name).Inc()
	}
}

// ObserveBreaker is a provider breaker state-change hook.
func (m *Metrics) ObserveBreaker(name string, _, to provider.State) {
	m.BreakerState.WithLabelValues(name).Set(float64(to))
}

// SetClassifierSource marks the active classifier source.
func (m *Metrics) SetClassifierSource(source string) {
	m.ClassifierSource.Reset()
	m.ClassifierSource.WithLabelValues(source).Set(1)
}

// Push sends the registry to a Pushgateway under job, replacing the
// previous push of the same job and instance.
func (m *Metrics) Push(ctx context.Context, url, job, instance string) error {
	p := push.New(url, job).Gatherer(m.reg)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("pushgateway: %w", err)
	}
	return nil
}

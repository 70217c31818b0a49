// Package metrics exposes Prometheus instrumentation for the relay loop.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ucg_information"

// Metrics holds the relay counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	emissions     *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	cycleFailures prometheus.Counter
	cycleDuration prometheus.Histogram
	state         *prometheus.GaugeVec
}

// New registers the relay metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		emissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emissions_total",
			Help:      "Items delivered and recorded, by kind and destination.",
		}, []string{"kind", "destination"}),
		skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_total",
			Help:      "Candidates not delivered this cycle, by kind and reason.",
		}, []string{"kind", "reason"}),
		cycleFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_failures_total",
			Help:      "Relay cycles that ended with an error or panic.",
		}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one relay cycle.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 900},
		}),
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_state",
			Help:      "1 for the state the relay is currently in.",
		}, []string{"state"}),
	}
}

// Registry exposes the underlying registry for the HTTP handler and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Emitted counts one delivered item.
func (m *Metrics) Emitted(kind, destination string) {
	if m == nil {
		return
	}
	m.emissions.WithLabelValues(kind, destination).Inc()
}

// Skipped counts one candidate left for a later cycle.
func (m *Metrics) Skipped(kind, reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(kind, reason).Inc()
}

// CycleFinished observes one cycle and counts it as failed when failed is set.
func (m *Metrics) CycleFinished(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
	if failed {
		m.cycleFailures.Inc()
	}
}

// SetState marks state as current and clears the others.
func (m *Metrics) SetState(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics provides Prometheus metrics for lookups. It implements
// lookup.Recorder.
type Metrics struct {
	config MetricsConfig

	lookups        *prometheus.CounterVec
	lookupDuration prometheus.Histogram
	providerCalls  *prometheus.CounterVec
	cacheHits      *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with its own registry. A
// disabled configuration yields a collector that records nothing.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lookups_total",
				Help:      "Total number of public lookups by outcome",
			},
			[]string{"outcome"},
		),
		lookupDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lookup_duration_seconds",
				Help:      "Duration of public lookups in seconds",
				Buckets:   buckets,
			},
		),
		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of backend function invocations",
			},
			[]string{"function", "kind"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "data_cache_hits_total",
				Help:      "Total number of backend results served from the session cache",
			},
			[]string{"function"},
		),
	}

	registry.MustRegister(
		m.lookups,
		m.lookupDuration,
		m.providerCalls,
		m.cacheHits,
	)

	return m, nil
}

// LookupCompleted records a finished public lookup.
func (m *Metrics) LookupCompleted(outcome string, d time.Duration) {
	if m.lookups == nil {
		return
	}
	m.lookups.WithLabelValues(outcome).Inc()
	m.lookupDuration.Observe(d.Seconds())
}

// ProviderCalled records one backend function invocation.
func (m *Metrics) ProviderCalled(function, kind string) {
	if m.providerCalls == nil {
		return
	}
	m.providerCalls.WithLabelValues(function, kind).Inc()
}

// CacheHit records a backend result served from the session cache.
func (m *Metrics) CacheHit(function string) {
	if m.cacheHits == nil {
		return
	}
	m.cacheHits.WithLabelValues(function).Inc()
}

// Registry returns the registry holding the collectors, nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	reg := m.Registry()
	if reg == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes the metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Str("path", path).Msg("serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/openfroyo/strata/pkg/config"
)

func TestMetricsRecorder(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	m.LookupCompleted("found", time.Millisecond)
	m.LookupCompleted("found", time.Millisecond)
	m.LookupCompleted("not_found", time.Millisecond)
	m.ProviderCalled("yaml_data", "data_hash")
	m.CacheHit("yaml_data")
	m.CacheHit("yaml_data")

	if got := testutil.ToFloat64(m.lookups.WithLabelValues("found")); got != 2 {
		t.Errorf("lookups{found} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.lookups.WithLabelValues("not_found")); got != 1 {
		t.Errorf("lookups{not_found} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.providerCalls.WithLabelValues("yaml_data", "data_hash")); got != 1 {
		t.Errorf("provider_calls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.cacheHits.WithLabelValues("yaml_data")); got != 2 {
		t.Errorf("cache_hits = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.lookupDuration); got != 1 {
		t.Errorf("lookup_duration collected %d metrics, want 1", got)
	}
}

func TestDisabledMetrics(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	// no-ops must not panic
	m.LookupCompleted("found", time.Second)
	m.ProviderCalled("f", "data_hash")
	m.CacheHit("f")
	if m.Registry() != nil {
		t.Error("disabled metrics should have no registry")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, false},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, false},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }, false},
		{"bad sampling", func(c *Config) { c.Tracing.SamplingRate = 2 }, false},
		{"no version", func(c *Config) { c.ServiceVersion = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() error = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestFromSettings(t *testing.T) {
	s := config.Default()
	s.Environment = "staging"
	s.Logging.Level = "debug"
	s.Tracing.Enabled = true
	s.Tracing.Exporter = "stdout"

	cfg := FromSettings(s, "1.2.3")
	if cfg.ServiceVersion != "1.2.3" || cfg.Environment != "staging" {
		t.Errorf("version, environment = %s, %s", cfg.ServiceVersion, cfg.Environment)
	}
	if cfg.Logging.Level != "debug" || !cfg.Tracing.Enabled || cfg.Tracing.Exporter != "stdout" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "warn", Format: "json"})

	logger.Info("hidden")
	logger.Warn("shown")
	logger.NewComponentLogger("functions").Error("component")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"message":"shown"`) || !strings.Contains(out, `"component":"functions"`) {
		t.Errorf("unexpected log output: %s", out)
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "debug", Format: "json"})

	logger.WithField("command", "lookup").WithError(errors.New("boom")).Debug("failed")
	logger.Infof("watching %d directories", 3)

	out := buf.String()
	for _, want := range []string{`"command":"lookup"`, `"error":"boom"`, `"message":"failed"`, `"message":"watching 3 directories"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}

func TestLoggerContext(t *testing.T) {
	logger := NewLoggerTo(&bytes.Buffer{}, LoggingConfig{Level: "info", Format: "json"})
	ctx := logger.WithContext(context.Background())
	if FromContext(ctx) != logger {
		t.Error("FromContext() did not return the stored logger")
	}
	if FromContext(context.Background()) == nil {
		t.Error("FromContext() without logger returned nil")
	}
}

func TestDisabledTracer(t *testing.T) {
	tr, err := NewTracer(TracingConfig{}, "strata", "dev", "test")
	if err != nil {
		t.Fatalf("NewTracer() error = %v", err)
	}
	ctx, span := tr.StartCommandSpan(context.Background(), "lookup", "test")
	RecordSuccess(span)
	span.End()
	if id := TraceID(ctx); id != "" {
		t.Errorf("TraceID() = %q for a disabled tracer", id)
	}
	if err := tr.ForceFlush(context.Background()); err != nil {
		t.Errorf("ForceFlush() error = %v", err)
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func TestLoadRejectsEmptyEnvironment(t *testing.T) {
	t.Setenv("STRATA_ENVIRONMENT", "")
	s, err := Load(afero.NewMemMapFs(), "/etc/strata/strata.yaml")
	if err == nil {
		t.Fatalf("Load() = %+v, want validation error", s)
	}
}

func TestLoadDefaults(t *testing.T) {
	s, err := Load(afero.NewMemMapFs(), "/nowhere/strata.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(Default(), s); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
	if got := s.ModuleDir(); got != "/etc/strata/code/environments/production/modules" {
		t.Errorf("ModuleDir() = %s", got)
	}
	if !s.DataBindingEnabled() {
		t.Error("data binding should be enabled by default")
	}
}

func TestLoadYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	doc := `
codedir: /srv/code
environmentpath: /srv/code/envs
environment: staging
data_binding: none
strict: error
starlark_timeout: 5s
logging:
  level: debug
tracing:
  enabled: true
  exporter: otlp
  endpoint: collector:4317
`
	if err := afero.WriteFile(fs, "/srv/strata.yaml", []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(fs, "/srv/strata.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Default()
	want.CodeDir = "/srv/code"
	want.EnvironmentPath = "/srv/code/envs"
	want.Environment = "staging"
	want.DataBinding = "none"
	want.Strict = "error"
	want.StarlarkTimeout = 5 * time.Second
	want.Logging.Level = "debug"
	want.Tracing.Enabled = true
	want.Tracing.Exporter = "otlp"
	want.Tracing.Endpoint = "collector:4317"
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
	if s.DataBindingEnabled() {
		t.Error("data binding should be disabled")
	}
	if got := s.EnvironmentDir(); got != "/srv/code/envs/staging" {
		t.Errorf("EnvironmentDir() = %s", got)
	}
}

func TestLoadCUE(t *testing.T) {
	fs := afero.NewMemMapFs()
	doc := `
environment:      "qa"
starlark_timeout: "250ms"
metrics: {
	enabled:        true
	listen_address: ":9100"
}
`
	if err := afero.WriteFile(fs, "/srv/strata.cue", []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(fs, "/srv/strata.cue")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Environment != "qa" || s.StarlarkTimeout != 250*time.Millisecond {
		t.Errorf("Environment, StarlarkTimeout = %s, %v", s.Environment, s.StarlarkTimeout)
	}
	if !s.Metrics.Enabled || s.Metrics.ListenAddress != ":9100" {
		t.Errorf("Metrics = %+v", s.Metrics)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"bad yaml", "codedir: [", "failed to parse settings"},
		{"bad strict", "strict: sometimes", "Strict"},
		{"otlp without endpoint", "tracing:\n  exporter: otlp\n", "Endpoint"},
		{"environment with slash", "environment: a/b", "Environment"},
		{"negative sampling", "tracing:\n  sampling_rate: -1\n", "SamplingRate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			if err := afero.WriteFile(fs, "/strata.yaml", []byte(tt.doc), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(fs, "/strata.yaml")
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Load() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"STRATA_ENVIRONMENT":      "dev",
		"STRATA_DATA_BINDING":     "none",
		"STRATA_STARLARK_TIMEOUT": "2s",
		"STRATA_TRACING":          "true",
		"STRATA_LOG_LEVEL":        "trace",
	}
	s := Default()
	err := s.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if s.Environment != "dev" || s.DataBinding != "none" || s.StarlarkTimeout != 2*time.Second {
		t.Errorf("unexpected settings %+v", s)
	}
	if !s.Tracing.Enabled || s.Logging.Level != "trace" {
		t.Errorf("unexpected tracing or logging %+v %+v", s.Tracing, s.Logging)
	}

	for _, bad := range []map[string]string{
		{"STRATA_STARLARK_TIMEOUT": "soon"},
		{"STRATA_TRACING": "maybe"},
	} {
		err := Default().ApplyEnv(func(k string) (string, bool) {
			v, ok := bad[k]
			return v, ok
		})
		if err == nil {
			t.Errorf("ApplyEnv(%v) expected error", bad)
		}
	}
}

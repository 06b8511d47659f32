package policy

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"

	"github.com/openfroyo/strata/pkg/lookup"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return eng
}

func parseConfig(t *testing.T, path string, layer lookup.LayerKind, doc string) *lookup.HierarchyConfig {
	t.Helper()
	cfg, err := lookup.ParseHierarchyConfig([]byte(doc), path, layer, lookup.ParseOptions{})
	if err != nil {
		t.Fatalf("ParseHierarchyConfig() error = %v", err)
	}
	return cfg
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	var names []string
	for _, p := range eng.ListPolicies() {
		names = append(names, p.Name)
	}
	want := []string{"credential-options", "empty-hierarchy", "layer-datadir", "module-environment", "unbounded-globs"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("built-in policies mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateConfig_BuiltinPolicies(t *testing.T) {
	tests := []struct {
		name  string
		layer lookup.LayerKind
		doc   string
		want  []Violation
	}{
		{
			name:  "clean configuration",
			layer: lookup.LayerEnvironment,
			doc: `
version: 5
hierarchy:
  - name: Common
    path: common.yaml
`,
		},
		{
			name:  "credential option",
			layer: lookup.LayerGlobal,
			doc: `
version: 5
hierarchy:
  - name: Database
    lookup_key: sqlite_lookup_key
    path: /var/lib/strata/common.db
    options:
      password: hunter2
`,
			want: []Violation{{
				Policy:   "credential-options",
				Entry:    "Database",
				Message:  "Hierarchy entry 'Database' carries a credential in option 'password'",
				Severity: SeverityWarning,
			}},
		},
		{
			name:  "absolute datadir in environment",
			layer: lookup.LayerEnvironment,
			doc: `
version: 5
hierarchy:
  - name: Shared
    datadir: /srv/shared
    path: common.yaml
`,
			want: []Violation{{
				Policy:   "layer-datadir",
				Entry:    "Shared",
				Message:  "Hierarchy entry 'Shared' reads data outside its layer from '/srv/shared'",
				Severity: SeverityWarning,
			}},
		},
		{
			name:  "absolute datadir in global layer",
			layer: lookup.LayerGlobal,
			doc: `
version: 5
hierarchy:
  - name: Shared
    datadir: /srv/shared
    path: common.yaml
`,
		},
		{
			name:  "module reading the environment",
			layer: lookup.LayerModule,
			doc: `
version: 5
hierarchy:
  - name: Env
    lookup_key: environment_lookup_key
`,
			want: []Violation{{
				Policy:   "module-environment",
				Entry:    "Env",
				Message:  "Module hierarchy entry 'Env' reads environment variables",
				Severity: SeverityWarning,
			}},
		},
		{
			name:  "unbounded glob",
			layer: lookup.LayerEnvironment,
			doc: `
version: 5
hierarchy:
  - name: Everything
    glob: "**/*.yaml"
`,
			want: []Violation{{
				Policy:   "unbounded-globs",
				Entry:    "Everything",
				Message:  "Glob '**/*.yaml' of hierarchy entry 'Everything' searches the whole data directory",
				Severity: SeverityInfo,
			}},
		},
	}

	eng := newTestEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := parseConfig(t, "/cfg/hiera.yaml", tt.layer, tt.doc)
			result, err := eng.EvaluateConfig(context.Background(), cfg, "production")
			if err != nil {
				t.Fatalf("EvaluateConfig() error = %v", err)
			}
			if len(result.Warnings) > 0 {
				t.Fatalf("evaluation warnings: %v", result.Warnings)
			}
			if !result.Allowed {
				t.Errorf("warnings must not block, got Allowed = false")
			}
			if diff := cmp.Diff(tt.want, result.Violations, cmpopts.EquateEmpty(), cmpopts.IgnoreFields(Violation{}, "Config")); diff != "" {
				t.Errorf("violations mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEvaluate_ErrorSeverityBlocks(t *testing.T) {
	eng := newTestEngine(t)
	err := eng.AddPolicy(context.Background(), Policy{
		Name:     "no-legacy",
		Severity: SeverityError,
		Enabled:  true,
		Rego: `package site.legacy

deny[msg] {
	some i
	entry := input.config.entries[i]
	entry.legacy
	msg := sprintf("entry %s uses a legacy backend", [entry.name])
}
`,
	})
	if err != nil {
		t.Fatalf("AddPolicy() error = %v", err)
	}

	cfg := parseConfig(t, "/cfg/hiera.yaml", lookup.LayerEnvironment, `
version: 4
hierarchy:
  - name: common
    backend: yaml
`)
	result, err := eng.EvaluateConfig(context.Background(), cfg, "production")
	if err != nil {
		t.Fatalf("EvaluateConfig() error = %v", err)
	}
	if result.Allowed {
		t.Fatal("error violation should block")
	}
	want := []Violation{{
		Policy:   "no-legacy",
		Config:   "/cfg/hiera.yaml",
		Message:  "entry common uses a legacy backend",
		Severity: SeverityError,
	}}
	if diff := cmp.Diff(want, result.Violations); diff != "" {
		t.Errorf("violations mismatch (-want +got):\n%s", diff)
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	cfg := parseConfig(t, "/cfg/hiera.yaml", lookup.LayerEnvironment, `
version: 5
hierarchy:
  - name: Shared
    datadir: /srv/shared
    path: common.yaml
`)

	if err := eng.DisablePolicy("layer-datadir"); err != nil {
		t.Fatalf("DisablePolicy() error = %v", err)
	}
	p, err := eng.GetPolicy("layer-datadir")
	if err != nil {
		t.Fatalf("GetPolicy() error = %v", err)
	}
	if p.Enabled {
		t.Error("policy should be disabled")
	}

	result, err := eng.EvaluateConfig(context.Background(), cfg, "production")
	if err != nil {
		t.Fatalf("EvaluateConfig() error = %v", err)
	}
	if len(result.Violations) != 0 {
		t.Errorf("disabled policy reported violations: %+v", result.Violations)
	}
	for _, name := range result.EvaluatedPolicies {
		if name == "layer-datadir" {
			t.Error("disabled policy was evaluated")
		}
	}

	if err := eng.EnablePolicy("layer-datadir"); err != nil {
		t.Fatalf("EnablePolicy() error = %v", err)
	}
	result, err = eng.EvaluateConfig(context.Background(), cfg, "production")
	if err != nil {
		t.Fatalf("EvaluateConfig() error = %v", err)
	}
	if len(result.Violations) != 1 {
		t.Errorf("expected one violation after enabling, got %+v", result.Violations)
	}

	if err := eng.EnablePolicy("missing"); err == nil {
		t.Error("EnablePolicy() of an unknown policy should fail")
	}
}

func TestAddPolicyInvalidRego(t *testing.T) {
	eng := newTestEngine(t)
	err := eng.AddPolicy(context.Background(), Policy{Name: "broken", Rego: "package x\ndeny[msg] {"})
	if err == nil {
		t.Fatal("AddPolicy() with a syntax error should fail")
	}
}

func TestNewConfigDocument(t *testing.T) {
	cfg := parseConfig(t, "/env/hiera.yaml", lookup.LayerEnvironment, `
version: 5
defaults:
  datadir: data
  data_hash: yaml_data
hierarchy:
  - name: Nodes
    paths: ["nodes/%{certname}.yaml", "common.yaml"]
    options:
      strict: true
`)
	got := NewConfigDocument(cfg)
	want := &ConfigDocument{
		Path:    "/env/hiera.yaml",
		Root:    "/env",
		Version: 5,
		Layer:   "environment",
		Entries: []EntryDocument{{
			Name:         "Nodes",
			Kind:         "data_hash",
			Function:     "yaml_data",
			DataDir:      "data",
			LocationKind: "paths",
			Locations:    []string{"nodes/%{certname}.yaml", "common.yaml"},
			Options:      map[string]any{"strict": true},
		}},
		DefaultHierarchy: []EntryDocument{},
		Diagnostics:      []string{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NewConfigDocument() mismatch (-want +got):\n%s", diff)
	}
}

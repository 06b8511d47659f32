package policy

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/openfroyo/strata/pkg/lookup"
)

const sitePolicy = `# Hierarchies name their entries in lower case.
package site.naming

import rego.v1

deny contains msg if {
	some entry in input.config.entries
	lower(entry.name) != entry.name
	msg := sprintf("entry name '%s' is not lower case", [entry.name])
}
`

func newMemFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", path, err)
		}
	}
	return fs
}

func TestLoadFromFile_Rego(t *testing.T) {
	loader := NewLoader(newMemFs(t, map[string]string{"/policies/naming.rego": sitePolicy}), zerolog.Nop())

	policy, err := loader.loadFromFile(context.Background(), "/policies/naming.rego")
	if err != nil {
		t.Fatalf("loadFromFile() error = %v", err)
	}

	want := &Policy{
		Name:        "naming",
		Description: "Hierarchies name their entries in lower case.",
		Rego:        sitePolicy,
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{},
		Source:      "/policies/naming.rego",
	}
	if diff := cmp.Diff(want, policy); diff != "" {
		t.Errorf("loadFromFile() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	fs := newMemFs(t, map[string]string{
		"/policies/strict.json": `{
  "name": "strict-naming",
  "description": "Naming is enforced",
  "severity": "error",
  "rego": "package strict\ndeny[msg] { false; msg := \"\" }"
}`,
		"/policies/unnamed.json": `{"rego": "package x"}`,
	})
	loader := NewLoader(fs, zerolog.Nop())

	policy, err := loader.loadFromFile(context.Background(), "/policies/strict.json")
	if err != nil {
		t.Fatalf("loadFromFile() error = %v", err)
	}
	if policy.Name != "strict-naming" || policy.Severity != SeverityError || !policy.Enabled {
		t.Errorf("unexpected policy %+v", policy)
	}

	if _, err := loader.loadFromFile(context.Background(), "/policies/unnamed.json"); err == nil {
		t.Error("JSON policy without a name should fail")
	}
}

func TestLoadFromDirectory(t *testing.T) {
	fs := newMemFs(t, map[string]string{
		"/policies/a.rego":        "package a\ndeny[msg] { false; msg := \"\" }",
		"/policies/nested/b.rego": "package b\ndeny[msg] { false; msg := \"\" }",
		"/policies/README.md":     "not a policy",
		"/policies/broken.json":   "{",
	})
	loader := NewLoader(fs, zerolog.Nop())

	policies, err := loader.LoadFromPaths(context.Background(), []string{"/policies"})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}
	var names []string
	for _, p := range policies {
		names = append(names, p.Name)
	}
	if diff := cmp.Diff([]string{"a", "b"}, names); diff != "" {
		t.Errorf("loaded policies mismatch (-want +got):\n%s", diff)
	}

	if _, err := loader.LoadFromPaths(context.Background(), []string{"/missing"}); err == nil {
		t.Error("LoadFromPaths() of a missing path should fail")
	}
}

func TestEngineLoadPolicies(t *testing.T) {
	fs := newMemFs(t, map[string]string{"/policies/naming.rego": sitePolicy})
	eng := newTestEngine(t)
	if err := eng.LoadPolicies(context.Background(), fs, []string{"/policies"}); err != nil {
		t.Fatalf("LoadPolicies() error = %v", err)
	}

	cfg := parseConfig(t, "/cfg/hiera.yaml", lookup.LayerGlobal, `
version: 5
hierarchy:
  - name: Common
    path: common.yaml
`)
	result, err := eng.EvaluateConfig(context.Background(), cfg, "production")
	if err != nil {
		t.Fatalf("EvaluateConfig() error = %v", err)
	}
	want := []Violation{{
		Policy:   "naming",
		Config:   "/cfg/hiera.yaml",
		Message:  "entry name 'Common' is not lower case",
		Severity: SeverityWarning,
	}}
	if diff := cmp.Diff(want, result.Violations); diff != "" {
		t.Errorf("violations mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractDescription(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"leading comments", "# first\n# second\npackage x\n", "first second"},
		{"no comments", "package x\n", ""},
		{"comment after package", "package x\n# about\n\ndeny[msg] { false }\n", "about"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractDescription(tt.content); got != tt.want {
				t.Errorf("extractDescription() = %q, want %q", got, tt.want)
			}
		})
	}
}

package commands

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/openfroyo/strata/pkg/config"
	"github.com/openfroyo/strata/pkg/lookup"
)

const testSettings = `
codedir: /code
environmentpath: /code/environments
environment: production
hiera_config: /etc/strata/hiera.yaml
strict: warning
logging:
  level: error
  format: json
`

const testEnvConfig = `
version: 5
defaults:
  datadir: data
  data_hash: yaml_data
hierarchy:
  - name: Nodes
    path: "nodes/%{hostname}.yaml"
  - name: Common
    path: common.yaml
`

// siteFiles is a small site with a global and an environment layer.
func siteFiles() map[string]string {
	return map[string]string{
		config.DefaultPath: testSettings,
		"/etc/strata/hiera.yaml": `
version: 5
hierarchy:
  - name: Common
    path: common.yaml
`,
		"/etc/strata/data/common.yaml": `
users:
  alice:
    uid: 1000
`,
		"/code/environments/production/hiera.yaml": testEnvConfig,
		"/code/environments/production/data/nodes/web01.yaml": `
ntp::servers:
  - web.ntp.org
users:
  bob:
    uid: 1001
`,
		"/code/environments/production/data/common.yaml": `
lookup_options:
  secret:
    convert_to: Sensitive
ntp::servers:
  - 0.pool.ntp.org
secret: hunter2
`,
		"/facts.yaml": "hostname: web01\n",
	}
}

func newTestApp(t *testing.T, files map[string]string) (*app, *bytes.Buffer) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(strings.TrimLeft(content, "\n")), 0o644); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", path, err)
		}
	}
	out := &bytes.Buffer{}
	return &app{fs: fs, out: out, version: "test"}, out
}

func execute(a *app, args ...string) error {
	cmd := newRootCommand(a, "none", "unknown")
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(context.Background())
}

func TestLookupCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "node data",
			args: []string{"lookup", "ntp::servers", "--scope", "/facts.yaml"},
			want: "[\"web.ntp.org\"]\n",
		},
		{
			name: "common data without scope",
			args: []string{"lookup", "ntp::servers"},
			want: "[\"0.pool.ntp.org\"]\n",
		},
		{
			name: "first name found wins",
			args: []string{"lookup", "missing", "ntp::servers"},
			want: "[\"0.pool.ntp.org\"]\n",
		},
		{
			name: "default with type",
			args: []string{"lookup", "missing", "--default", "42", "--type", "Integer"},
			want: "42\n",
		},
		{
			name: "sensitive string",
			args: []string{"lookup", "secret"},
			want: "Sensitive [value redacted]\n",
		},
		{
			name: "sensitive json",
			args: []string{"lookup", "secret", "--render-as", "json"},
			want: "\"Sensitive [value redacted]\"\n",
		},
		{
			name: "yaml",
			args: []string{"lookup", "ntp::servers", "--render-as", "yaml"},
			want: "- 0.pool.ntp.org\n",
		},
		{
			name: "sub key",
			args: []string{"lookup", "users.alice.uid"},
			want: "1000\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, out := newTestApp(t, siteFiles())
			if err := execute(a, tt.args...); err != nil {
				t.Fatalf("execute(%v) error = %v", tt.args, err)
			}
			if got := out.String(); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLookupMergeJSON(t *testing.T) {
	a, out := newTestApp(t, siteFiles())
	if err := execute(a, "lookup", "users", "--merge", "hash", "--scope", "/facts.yaml", "--render-as", "json"); err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	want := map[string]any{
		"alice": map[string]any{"uid": float64(1000)},
		"bob":   map[string]any{"uid": float64(1001)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged users mismatch (-want +got):\n%s", diff)
	}
}

func TestLookupErrors(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(error) bool
	}{
		{"not found", []string{"lookup", "missing"}, lookup.IsNotFound},
		{"global only", []string{"lookup", "ntp::servers", "--global-only"}, lookup.IsNotFound},
		{"type mismatch", []string{"lookup", "ntp::servers", "--type", "String"}, lookup.IsTypeMismatch},
		{"bad merge", []string{"lookup", "users", "--merge", "sideways"}, func(err error) bool { return err != nil }},
		{"bad render", []string{"lookup", "ntp::servers", "--render-as", "xml"}, func(err error) bool {
			return err != nil && strings.Contains(err.Error(), "unknown render format")
		}},
		{"bad environment", []string{"lookup", "ntp::servers", "-e", "../etc"}, func(err error) bool {
			return err != nil && strings.Contains(err.Error(), "invalid environment")
		}},
		{"missing scope file", []string{"lookup", "x", "--scope", "/nope.yaml"}, func(err error) bool {
			return err != nil && strings.Contains(err.Error(), "failed to read scope")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestApp(t, siteFiles())
			err := execute(a, tt.args...)
			if !tt.check(err) {
				t.Errorf("execute(%v) error = %v", tt.args, err)
			}
		})
	}
}

func TestLookupExplain(t *testing.T) {
	a, out := newTestApp(t, siteFiles())
	if err := execute(a, "lookup", "ntp::servers", "--scope", "/facts.yaml", "--explain"); err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	text := out.String()
	for _, want := range []string{
		`Searching for "ntp::servers"`,
		`Path "/code/environments/production/data/nodes/web01.yaml"`,
		`Found value: ["web.ntp.org"]`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("explanation missing %q:\n%s", want, text)
		}
	}
}

func TestLookupExplainNotFound(t *testing.T) {
	a, out := newTestApp(t, siteFiles())
	if err := execute(a, "lookup", "missing", "--explain"); err != nil {
		t.Fatalf("explain of a missing key should not fail, got %v", err)
	}
	if !strings.Contains(out.String(), "No such key") {
		t.Errorf("explanation does not report the missing key:\n%s", out.String())
	}
}

func TestLookupOptionsMergeSpec(t *testing.T) {
	tests := []struct {
		name    string
		opts    lookupOptions
		want    any
		wantErr bool
	}{
		{"none", lookupOptions{}, nil, false},
		{"named", lookupOptions{merge: "unique"}, "unique", false},
		{
			name: "deep options",
			opts: lookupOptions{merge: "deep", knockoutPrefix: "--", sortMergedArrays: true},
			want: map[string]any{"strategy": "deep", "knockout_prefix": "--", "sort_merged_arrays": true},
		},
		{"options without deep", lookupOptions{merge: "hash", mergeHashArrays: true}, nil, true},
		{"options without merge", lookupOptions{knockoutPrefix: "--"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.mergeSpec()
			if (err != nil) != tt.wantErr {
				t.Fatalf("mergeSpec() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mergeSpec() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadScope(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/a.yaml", []byte("hostname: web01\nrole: web\n"), 0o644)
	_ = afero.WriteFile(fs, "/b.json", []byte(`{"role": "db", "cores": 4}`), 0o644)

	got, err := loadScope(fs, []string{"/a.yaml", "/b.json"})
	if err != nil {
		t.Fatalf("loadScope() error = %v", err)
	}
	want := lookup.MapScope{"hostname": "web01", "role": "db", "cores": 4}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("loadScope() mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateCommand(t *testing.T) {
	files := siteFiles()
	files["/code/environments/production/modules/ntp/hiera.yaml"] = testEnvConfig
	a, out := newTestApp(t, files)

	if err := execute(a, "validate"); err != nil {
		t.Fatalf("validate error = %v\n%s", err, out.String())
	}
	for _, want := range []string{
		"✓ /etc/strata/hiera.yaml (global layer, version 5, 1 entries)",
		"✓ /code/environments/production/hiera.yaml (environment layer, version 5, 2 entries)",
		"✓ /code/environments/production/modules/ntp/hiera.yaml (module layer",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestValidateUnknownFunction(t *testing.T) {
	files := siteFiles()
	files["/bad.yaml"] = `
version: 5
hierarchy:
  - name: Vault
    data_hash: vault_data
    path: secrets.yaml
`
	a, out := newTestApp(t, files)

	err := execute(a, "validate", "/bad.yaml", "/does-not-exist.yaml")
	if err == nil || !strings.Contains(err.Error(), "2 of 2") {
		t.Fatalf("validate error = %v, want 2 of 2 invalid", err)
	}
	if !strings.Contains(out.String(), "unknown function data_hash 'vault_data'") {
		t.Errorf("output does not name the unknown function:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "/does-not-exist.yaml: file does not exist") {
		t.Errorf("output does not report the missing file:\n%s", out.String())
	}
}

func TestValidateStrictMode(t *testing.T) {
	legacy := `
version: 4
datadir: data
hierarchy:
  - name: Common
    backend: yaml
    path: common.yaml
`
	tests := []struct {
		strict  string
		wantErr bool
		wantOut bool
	}{
		{"off", false, false},
		{"warning", false, true},
		{"error", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.strict, func(t *testing.T) {
			files := siteFiles()
			files[config.DefaultPath] = strings.Replace(testSettings, "strict: warning", "strict: "+tt.strict, 1)
			files["/legacy/hiera.yaml"] = legacy
			a, out := newTestApp(t, files)

			err := execute(a, "validate", "/legacy/hiera.yaml")
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate error = %v, wantErr %v\n%s", err, tt.wantErr, out.String())
			}
			if got := strings.Contains(out.String(), "deprecation"); got != tt.wantOut {
				t.Errorf("diagnostic printed = %v, want %v:\n%s", got, tt.wantOut, out.String())
			}
		})
	}
}

func TestDataCommands(t *testing.T) {
	a, out := newTestApp(t, map[string]string{
		"/data/common.yaml": `
ntp::servers:
  - 0.pool.ntp.org
ntp::port: 123
`,
	})
	db := filepath.Join(t.TempDir(), "common.db")

	if err := execute(a, "data", "import", db, "/data/common.yaml"); err != nil {
		t.Fatalf("data import error = %v", err)
	}
	if !strings.Contains(out.String(), "Imported 2 keys") {
		t.Errorf("unexpected import output: %q", out.String())
	}

	out.Reset()
	if err := execute(a, "data", "get", db, "ntp::port", "--render-as", "s"); err != nil {
		t.Fatalf("data get error = %v", err)
	}
	if got := out.String(); got != "123\n" {
		t.Errorf("data get output = %q, want %q", got, "123\n")
	}

	out.Reset()
	if err := execute(a, "data", "list", db); err != nil {
		t.Fatalf("data list error = %v", err)
	}
	for _, want := range []string{"ntp::port", "ntp::servers", "/data/common.yaml"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("data list output missing %q:\n%s", want, out.String())
		}
	}

	if err := execute(a, "data", "get", db, "missing"); err == nil {
		t.Error("data get of a missing key should fail")
	}
	if err := execute(a, "data", "get", filepath.Join(t.TempDir(), "none.db"), "x"); err == nil {
		t.Error("data get of a missing store should fail")
	}
}

func TestValidatePolicies(t *testing.T) {
	files := siteFiles()
	files["/policies/lowercase.json"] = `{
  "name": "lowercase",
  "severity": "error",
  "rego": "package site\nimport rego.v1\ndeny contains msg if { some e in input.config.entries; lower(e.name) != e.name; msg := sprintf(\"entry %s is not lower case\", [e.name]) }"
}`
	a, out := newTestApp(t, files)

	err := execute(a, "validate", "--policy", "/policies")
	if err == nil {
		t.Fatalf("validate with an error policy should fail:\n%s", out.String())
	}
	want := "✗ /etc/strata/hiera.yaml: error: lowercase: entry Common is not lower case"
	if !strings.Contains(out.String(), want) {
		t.Errorf("output missing %q:\n%s", want, out.String())
	}
}

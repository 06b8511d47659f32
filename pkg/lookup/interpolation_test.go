package lookup

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestInterpolate(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		testGlobalConfig: v5Common,
		"/etc/strata/data/common.yaml": `
domain: example.com
ports: [80, 443]
`,
	})
	inv := env.invocation(map[string]any{
		"host":    "web1",
		"enabled": true,
		"count":   3,
		"facts":   map[string]any{"os": map[string]any{"family": "Debian"}},
		"list":    []any{"a", "b"},
	})

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"no expression", "plain", "plain"},
		{"variable", "%{host}.local", "web1.local"},
		{"top scope prefix", "%{::host}", "web1"},
		{"dotted variable", "%{facts.os.family}", "Debian"},
		{"boolean", "on=%{enabled}", "on=true"},
		{"number", "n=%{count}", "n=3"},
		{"array", "l=%{list}", `l=["a", "b"]`},
		{"missing variable", "[%{nope}]", "[]"},
		{"empty expression", "a%{}b", "ab"},
		{"empty top scope", "a%{::}b", "ab"},
		{"empty quotes", `a%{""}b`, "ab"},
		{"scope method", "%{scope('host')}", "web1"},
		{"lookup method", "www.%{lookup('domain')}", "www.example.com"},
		{"hiera method", "%{hiera(\"domain\")}", "example.com"},
		{"alias keeps type", "%{alias('ports')}", []any{80, 443}},
		{"literal", "%{literal('%')}{host}", "%{host}"},
		{"array elements", []any{"%{host}", 1}, []any{"web1", 1}},
		{"map values only", map[string]any{"%{host}": "%{host}"}, map[string]any{"%{host}": "web1"}},
		{"non string", 42, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := inv.Interpolate(tt.in, true)
			if err != nil {
				t.Fatalf("Interpolate() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Interpolate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInterpolateErrors(t *testing.T) {
	env := newTestEnv(t, map[string]string{testGlobalConfig: v5Common})
	inv := env.invocation(nil)

	tests := []struct {
		name         string
		in           string
		allowMethods bool
	}{
		{"unknown method", "%{shout('x')}", true},
		{"methods not allowed", "%{lookup('x')}", false},
		{"alias inside text", "x%{alias('y')}", true},
		{"bad key", "%{a..b}", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := inv.Interpolate(tt.in, tt.allowMethods); !IsSyntax(err) {
				t.Errorf("Interpolate(%q) expected syntax error, got %v", tt.in, err)
			}
		})
	}
}

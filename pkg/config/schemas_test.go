package config

import (
	"strings"
	"testing"
)

func TestSchemaRegistry_RegisterAndGet(t *testing.T) {
	sr := NewSchemaRegistry()

	customSchema := `
#CustomType: {
	field1: string
	field2: int
}
`

	if err := sr.RegisterSchema("custom", "#CustomType", customSchema); err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}

	schema, ok := sr.GetSchema("custom")
	if !ok {
		t.Fatal("expected to find custom schema")
	}
	if schema.Err() != nil {
		t.Errorf("schema has errors: %v", schema.Err())
	}

	if names := sr.ListSchemas(); strings.Join(names, ",") != "custom,settings" {
		t.Errorf("ListSchemas() = %v", names)
	}
}

func TestSchemaRegistry_RegisterErrors(t *testing.T) {
	sr := NewSchemaRegistry()

	if err := sr.RegisterSchema("broken", "#X", "#X: {"); err == nil {
		t.Error("expected compile error")
	}
	if err := sr.RegisterSchema("missing", "#Y", "#X: {}"); err == nil {
		t.Error("expected missing definition error")
	}
}

func TestSchemaRegistry_ExportSettings(t *testing.T) {
	sr := NewSchemaRegistry()

	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name: "valid",
			src: `
environment: "staging"
strict:      "error"
tracing: sampling_rate: 0.5
`,
		},
		{
			name:    "unknown field",
			src:     `environmnet: "staging"`,
			wantErr: "validation failed",
		},
		{
			name:    "bad enum",
			src:     `data_binding: "sometimes"`,
			wantErr: "validation failed",
		},
		{
			name:    "sampling out of range",
			src:     `tracing: sampling_rate: 2`,
			wantErr: "validation failed",
		},
		{
			name:    "bad duration",
			src:     `starlark_timeout: "soon"`,
			wantErr: "validation failed",
		},
		{
			name:    "syntax",
			src:     `environment: `,
			wantErr: "failed to compile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := sr.ExportSettings("strata.cue", []byte(tt.src))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("ExportSettings() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExportSettings() error = %v", err)
			}
			if !strings.Contains(string(out), `"environment":"staging"`) {
				t.Errorf("ExportSettings() = %s", out)
			}
		})
	}
}

package lookup

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		raw    string
		segs   []any
		module string
	}{
		{"a", []any{"a"}, ""},
		{"a.b.c", []any{"a", "b", "c"}, ""},
		{"a.0", []any{"a", 0}, ""},
		{"a.-1", []any{"a", -1}, ""},
		{`a."0"`, []any{"a", "0"}, ""},
		{`a."b.c".d`, []any{"a", "b.c", "d"}, ""},
		{`a.'x"y'`, []any{"a", `x"y`}, ""},
		{" a . b ", []any{"a", "b"}, ""},
		{"ntp::servers.0", []any{"ntp::servers", 0}, "ntp"},
		{"::ntp::servers", []any{"::ntp::servers"}, "ntp"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			k, err := ParseKey(tt.raw)
			if err != nil {
				t.Fatalf("ParseKey() error = %v", err)
			}
			if diff := cmp.Diff(tt.segs, k.Segments()); diff != "" {
				t.Errorf("Segments() mismatch (-want +got):\n%s", diff)
			}
			if k.ModuleName() != tt.module {
				t.Errorf("ModuleName() = %q, want %q", k.ModuleName(), tt.module)
			}
			if k.String() != tt.raw {
				t.Errorf("String() = %q, want %q", k.String(), tt.raw)
			}
		})
	}
}

func TestParseKeyErrors(t *testing.T) {
	for _, raw := range []string{"", "a.", ".a", "a..b", `a."b`, `a.b"c"`, `"a"b`, "0", "12.a", `a.""`} {
		t.Run(raw, func(t *testing.T) {
			if _, err := ParseKey(raw); !IsSyntax(err) {
				t.Errorf("ParseKey(%q) expected syntax error, got %v", raw, err)
			}
		})
	}
}

func TestFormatKeyRoundTrip(t *testing.T) {
	for _, segs := range [][]any{
		{"a", "b"},
		{"a", "b.c", 3},
		{"a", "7"},
		{"a", `say "hi"`},
		{"a", " padded "},
	} {
		raw, err := FormatKey(segs)
		if err != nil {
			t.Fatalf("FormatKey(%v) error = %v", segs, err)
		}
		k, err := ParseKey(raw)
		if err != nil {
			t.Fatalf("ParseKey(%q) error = %v", raw, err)
		}
		if diff := cmp.Diff(segs, k.Segments()); diff != "" {
			t.Errorf("round trip of %q mismatch (-want +got):\n%s", raw, diff)
		}
	}
}

func TestFormatKeyRejectsInexpressibleSegments(t *testing.T) {
	tests := []struct {
		name string
		segs []any
	}{
		{"both quotes", []any{"a", `it's "x"`}},
		{"empty segment", []any{"a", ""}},
		{"numeric root", []any{"12", "a"}},
		{"index root", []any{0}},
		{"no segments", nil},
		{"unsupported type", []any{"a", 1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := FormatKey(tt.segs)
			if !IsSyntax(err) {
				t.Errorf("FormatKey(%v) = %q, %v; want syntax error", tt.segs, raw, err)
			}
		})
	}
}

func TestDigReportsInexpressibleKey(t *testing.T) {
	_, _, err := Dig(map[string]any{"a": "scalar"}, []any{"a", `it's "x"`})
	if !IsTypeMismatch(err) {
		t.Fatalf("Dig() error = %v, want type mismatch", err)
	}
}

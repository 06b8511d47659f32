package types

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	tests := []struct {
		expr    string
		want    string
		wantErr bool
	}{
		{"String", "String", false},
		{"Array[ Integer ]", "Array[Integer]", false},
		{"Hash[String, Array[Integer]]", "Hash[String, Array[Integer]]", false},
		{"Integer[0, 10]", "Integer[0, 10]", false},
		{"Enum['a', \"b\"]", "Enum['a', 'b']", false},
		{"Optional[Variant[String, Integer]]", "Optional[Variant[String, Integer]]", false},
		{"Strin", "", true},
		{"Array[String", "", true},
		{"Array[String]]", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Parse(tt.expr)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) expected error", tt.expr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.expr, err)
			}
			if got.String() != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.expr, got, tt.want)
			}
		})
	}
}

func TestAssert(t *testing.T) {
	sys := NewSystem()

	tests := []struct {
		name  string
		value any
		expr  string
		ok    bool
	}{
		{"string", "x", "String", true},
		{"string mismatch", 1, "String", false},
		{"integer", 3, "Integer", true},
		{"integer range", 11, "Integer[0, 10]", false},
		{"float is not integer", 1.5, "Integer", false},
		{"numeric", 1.5, "Numeric", true},
		{"boolean", true, "Boolean", true},
		{"array of int", []any{1, 2}, "Array[Integer]", true},
		{"array of mixed", []any{1, "a"}, "Array[Integer]", false},
		{"hash", map[string]any{"a": []any{1}}, "Hash[String, Array[Integer]]", true},
		{"hash bad value", map[string]any{"a": "x"}, "Hash[String, Integer]", false},
		{"optional nil", nil, "Optional[String]", true},
		{"undef is not string", nil, "String", false},
		{"enum", "b", "Enum['a', 'b']", true},
		{"enum miss", "c", "Enum['a', 'b']", false},
		{"variant", 1, "Variant[String, Integer]", true},
		{"sensitive", NewSensitive("pw"), "Sensitive[String]", true},
		{"sensitive in data", []any{NewSensitive("pw")}, "Data", false},
		{"sensitive in any", []any{NewSensitive("pw")}, "Any", true},
		{"string length", "", "String[1]", false},
		{"scalar", 1.0, "Scalar", true},
		{"not undef", nil, "NotUndef", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sys.Assert(tt.value, tt.expr)
			if tt.ok && err != nil {
				t.Errorf("Assert(%v, %s) error = %v", tt.value, tt.expr, err)
			}
			if !tt.ok {
				if err == nil {
					t.Errorf("Assert(%v, %s) expected mismatch", tt.value, tt.expr)
				} else if !IsMismatch(err) {
					t.Errorf("Assert(%v, %s) error = %v, want MismatchError", tt.value, tt.expr, err)
				}
			}
		})
	}
}

func TestConstruct(t *testing.T) {
	sys := NewSystem()

	tests := []struct {
		name  string
		expr  string
		value any
		args  []any
		want  any
	}{
		{"string from int", "String", 42, nil, "42"},
		{"integer from string", "Integer", "42", nil, 42},
		{"integer with radix", "Integer", "ff", []any{16}, 255},
		{"float from string", "Float", "1.5", nil, 1.5},
		{"boolean from string", "Boolean", "yes", nil, true},
		{"array from hash", "Array", map[string]any{"b": 2, "a": 1}, nil, []any{[]any{"a", 1}, []any{"b", 2}}},
		{"array wraps scalar", "Array", "x", []any{true}, []any{"x"}},
		{"hash from pairs", "Hash", []any{[]any{"a", 1}}, nil, map[string]any{"a": 1}},
		{"hash from flat list", "Hash", []any{"a", 1, "b", 2}, nil, map[string]any{"a": 1, "b": 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sys.Construct(tt.expr, tt.value, tt.args...)
			if err != nil {
				t.Fatalf("Construct() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Construct() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConstructFailure(t *testing.T) {
	sys := NewSystem()
	if _, err := sys.Construct("Integer", "not a number"); err == nil {
		t.Error("expected conversion error")
	}
	if _, err := sys.Construct("Integer[0, 5]", "10"); err == nil {
		t.Error("expected range error after conversion")
	}
}

func TestConstructSensitive(t *testing.T) {
	sys := NewSystem()
	got, err := sys.Construct("Sensitive", "secret")
	if err != nil {
		t.Fatalf("Construct() error = %v", err)
	}
	s, ok := got.(Sensitive)
	if !ok || s.Unwrap() != "secret" {
		t.Fatalf("Construct() = %#v", got)
	}
	if s.String() != "Sensitive [value redacted]" {
		t.Errorf("String() = %q", s.String())
	}
}

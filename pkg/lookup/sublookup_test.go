package lookup

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/openfroyo/strata/pkg/types"
)

func TestDig(t *testing.T) {
	value := map[string]any{
		"a": map[string]any{
			"b":  []any{"x", map[string]any{"c": 1}},
			"1":  "string key",
			"nv": nil,
		},
	}

	tests := []struct {
		name  string
		segs  []any
		want  any
		found bool
	}{
		{"nested map", []any{"a", "b", 1, "c"}, 1, true},
		{"numeric segment on map", []any{"a", 1}, "string key", true},
		{"negative index", []any{"a", "b", -2}, "x", true},
		{"missing key", []any{"a", "zz"}, nil, false},
		{"index out of range", []any{"a", "b", 5}, nil, false},
		{"nil value is found", []any{"a", "nv"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found, err := Dig(value, tt.segs)
			if err != nil {
				t.Fatalf("Dig() error = %v", err)
			}
			if found != tt.found {
				t.Fatalf("Dig() found = %v, want %v", found, tt.found)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Dig() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDigTypeMismatch(t *testing.T) {
	_, _, err := Dig(map[string]any{"a": "text"}, []any{"a", "x"})
	if !IsTypeMismatch(err) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "hash-like object was expected to access value using 'x' from key 'a.x'") {
		t.Errorf("unexpected message: %v", err)
	}

	_, _, err = Dig([]any{1}, []any{"name"})
	if !IsTypeMismatch(err) {
		t.Fatalf("expected type mismatch for string segment on array, got %v", err)
	}
}

func TestDigSensitive(t *testing.T) {
	value := types.NewSensitive(map[string]any{"password": "s3cret"})
	got, found, err := Dig(value, []any{"password"})
	if err != nil || !found {
		t.Fatalf("Dig() = %v, %v, %v", got, found, err)
	}
	s, ok := got.(types.Sensitive)
	if !ok || s.Unwrap() != "s3cret" {
		t.Errorf("Dig() = %#v, want sensitive s3cret", got)
	}
}

func TestUndigAndPrune(t *testing.T) {
	if diff := cmp.Diff(map[string]any{"a": []any{nil, "x"}}, Undig("x", []any{"a", 1})); diff != "" {
		t.Errorf("Undig() mismatch (-want +got):\n%s", diff)
	}

	whole := map[string]any{"a": map[string]any{"b": 1, "c": 2}, "d": 3}
	got, err := Prune(whole, []any{"a", "b"})
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if diff := cmp.Diff(map[string]any{"a": map[string]any{"b": 1}}, got); diff != "" {
		t.Errorf("Prune() mismatch (-want +got):\n%s", diff)
	}

	got, err = Prune(whole, []any{"zz"})
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if diff := cmp.Diff(map[string]any{}, got); diff != "" {
		t.Errorf("Prune() of missing path mismatch (-want +got):\n%s", diff)
	}
}

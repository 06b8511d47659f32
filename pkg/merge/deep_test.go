package merge

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/openfroyo/strata/pkg/types"
)

func deepMerge2(t *testing.T, e1, e2 any, opts map[string]any) any {
	t.Helper()
	spec := map[string]any{"strategy": Deep}
	for k, v := range opts {
		spec[k] = v
	}
	got, err := Merge(e1, e2, spec)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	return got
}

func TestDeepMerge(t *testing.T) {
	tests := []struct {
		name   string
		e1, e2 any
		opts   map[string]any
		want   any
	}{
		{
			name: "nested maps",
			e1:   map[string]any{"a": map[string]any{"b": 1, "c": 2}},
			e2:   map[string]any{"a": map[string]any{"b": 0, "d": 3}, "e": 4},
			want: map[string]any{"a": map[string]any{"b": 1, "c": 2, "d": 3}, "e": 4},
		},
		{
			name: "arrays are unioned lower priority first",
			e1:   map[string]any{"k": []any{"1", "3"}},
			e2:   map[string]any{"k": []any{"2", "4"}},
			want: map[string]any{"k": []any{"2", "4", "1", "3"}},
		},
		{
			name: "sorted arrays",
			e1:   map[string]any{"k": []any{"1", "3"}},
			e2:   map[string]any{"k": []any{"2", "4"}},
			opts: map[string]any{"sort_merged_arrays": true},
			want: map[string]any{"k": []any{"1", "2", "3", "4"}},
		},
		{
			name: "knockout scalar",
			e1:   map[string]any{"k": "--"},
			e2:   map[string]any{"k": "value"},
			opts: map[string]any{"knockout_prefix": "--"},
			want: map[string]any{"k": ""},
		},
		{
			name: "knockout whole array",
			e1:   map[string]any{"k": []any{"--"}},
			e2:   map[string]any{"k": []any{"a", "b"}},
			opts: map[string]any{"knockout_prefix": "--"},
			want: map[string]any{"k": []any{}},
		},
		{
			name: "knockout array and replace",
			e1:   map[string]any{"k": []any{"--", "2"}},
			e2:   map[string]any{"k": []any{"1", "3"}},
			opts: map[string]any{"knockout_prefix": "--"},
			want: map[string]any{"k": []any{"2"}},
		},
		{
			name: "knockout array elements",
			e1:   map[string]any{"k": []any{"--b", "c"}},
			e2:   map[string]any{"k": []any{"a", "b"}},
			opts: map[string]any{"knockout_prefix": "--"},
			want: map[string]any{"k": []any{"a", "c"}},
		},
		{
			name: "knockout map key",
			e1:   map[string]any{"--b": nil, "c": 3},
			e2:   map[string]any{"a": 1, "b": 2},
			opts: map[string]any{"knockout_prefix": "--"},
			want: map[string]any{"a": 1, "c": 3},
		},
		{
			name: "merge hash arrays",
			e1:   map[string]any{"k": []any{map[string]any{"x": 1}}},
			e2:   map[string]any{"k": []any{map[string]any{"y": 2}, map[string]any{"z": 3}}},
			opts: map[string]any{"merge_hash_arrays": true},
			want: map[string]any{"k": []any{map[string]any{"x": 1, "y": 2}, map[string]any{"z": 3}}},
		},
		{
			name: "scalar overwrites map without strict",
			e1:   map[string]any{"k": "s"},
			e2:   map[string]any{"k": map[string]any{"a": 1}},
			want: map[string]any{"k": "s"},
		},
		{
			name: "nil keeps lower priority value",
			e1:   map[string]any{"k": nil},
			e2:   map[string]any{"k": 1},
			want: map[string]any{"k": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deepMerge2(t, tt.e1, tt.e2, tt.opts)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("deep merge mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeepMergeStrictCollision(t *testing.T) {
	spec := map[string]any{"strategy": Deep, "strict": true}
	_, err := Merge(map[string]any{"k": "s"}, map[string]any{"k": map[string]any{"a": 1}}, spec)
	if !IsMergeError(err) {
		t.Fatalf("expected merge error, got %v", err)
	}
	_, err = Merge("scalar", map[string]any{}, spec)
	if err == nil {
		t.Fatal("expected error for scalar operand in strict mode")
	}
}

func TestDeepMergeDoesNotMutateInputs(t *testing.T) {
	input := func() (map[string]any, map[string]any) {
		return map[string]any{"a": map[string]any{"b": []any{1}}},
			map[string]any{"a": map[string]any{"b": []any{2}, "c": 3}, "d": []any{map[string]any{"e": 4}}}
	}
	e1, e2 := input()
	before1, before2 := input()

	got := deepMerge2(t, e1, e2, nil).(map[string]any)
	got["a"].(map[string]any)["b"].([]any)[0] = "changed"
	got["d"].([]any)[0].(map[string]any)["e"] = "changed"

	if diff := cmp.Diff(before1, e1); diff != "" {
		t.Errorf("e1 mutated (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(before2, e2); diff != "" {
		t.Errorf("e2 mutated (-before +after):\n%s", diff)
	}
}

func TestClone(t *testing.T) {
	secret := types.NewSensitive(map[string]any{"password": "hunter2"})
	v := map[string]any{
		"list":   []any{1, map[string]any{"k": "v"}},
		"secret": secret,
	}

	got, err := Clone(v)
	if err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	if diff := cmp.Diff(any(v), got); diff != "" {
		t.Fatalf("Clone() mismatch (-want +got):\n%s", diff)
	}

	got.(map[string]any)["list"].([]any)[1].(map[string]any)["k"] = "changed"
	if v["list"].([]any)[1].(map[string]any)["k"] != "v" {
		t.Error("Clone() shares nested maps with its input")
	}

	for _, scalar := range []any{nil, "s", 1, 2.5, true, secret} {
		if got, err := Clone(scalar); err != nil || !cmp.Equal(got, scalar) {
			t.Errorf("Clone(%v) = %v, %v", scalar, got, err)
		}
	}
}

func TestReverseDeepMerge(t *testing.T) {
	got, err := Merge(map[string]any{"k": 1, "a": 1}, map[string]any{"k": 2, "b": 2}, ReverseDeep)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	want := map[string]any{"k": 2, "a": 1, "b": 2}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("reverse deep mismatch (-want +got):\n%s", diff)
	}
}

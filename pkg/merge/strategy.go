package merge

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/tiendc/go-deepcopy"
)

// Strategy names understood by New.
const (
	First             = "first"
	Hash              = "hash"
	Unique            = "unique"
	Deep              = "deep"
	ReverseDeep       = "reverse_deep"
	UnconstrainedDeep = "unconstrained_deep"
)

// Strategy combines values found in several places into one value.
//
// Merge receives the higher priority value as e1. Implementations never mutate
// their arguments.
type Strategy interface {
	// Name returns the strategy name as used in lookup options.
	Name() string

	// Options returns the validated options the strategy was created with.
	Options() map[string]any

	// FirstFound reports whether the strategy stops at the first found value.
	FirstFound() bool

	// Convert validates a single found value and normalizes it into the shape
	// the strategy merges (for example, unique flattens arrays).
	Convert(v any) (any, error)

	// Merge combines e1 (higher priority) with e2 (lower priority).
	Merge(e1, e2 any) (any, error)
}

// New returns the strategy described by spec.
//
// spec may be nil (first found), a strategy name, a map holding a "strategy"
// key plus strategy options, or an existing Strategy. Unknown strategy names and
// options are reported as errors.
func New(spec any) (Strategy, error) {
	switch s := spec.(type) {
	case nil:
		return firstFound{}, nil
	case Strategy:
		return s, nil
	case string:
		return newNamed(s, nil)
	case map[string]any:
		name, ok := s["strategy"].(string)
		if !ok {
			return nil, &Error{Message: fmt.Sprintf("merge options must contain a string 'strategy' entry, got %v", s["strategy"])}
		}
		opts := make(map[string]any, len(s))
		for k, v := range s {
			if k != "strategy" {
				opts[k] = v
			}
		}
		return newNamed(name, opts)
	default:
		return nil, &Error{Message: fmt.Sprintf("merge specification must be a string or a map, got %T", spec)}
	}
}

func newNamed(name string, opts map[string]any) (Strategy, error) {
	switch name {
	case First, "":
		if err := noOptions(First, opts); err != nil {
			return nil, err
		}
		return firstFound{}, nil
	case Hash:
		if err := noOptions(Hash, opts); err != nil {
			return nil, err
		}
		return hashMerge{}, nil
	case Unique:
		if err := noOptions(Unique, opts); err != nil {
			return nil, err
		}
		return uniqueMerge{}, nil
	case Deep:
		o, err := parseDeepOptions(Deep, opts, true)
		if err != nil {
			return nil, err
		}
		return &deepMerge{name: Deep, opts: o}, nil
	case ReverseDeep:
		o, err := parseDeepOptions(ReverseDeep, opts, true)
		if err != nil {
			return nil, err
		}
		return &deepMerge{name: ReverseDeep, opts: o, reverse: true}, nil
	case UnconstrainedDeep:
		o, _ := parseDeepOptions(UnconstrainedDeep, opts, false)
		return &deepMerge{name: UnconstrainedDeep, opts: o}, nil
	default:
		return nil, &Error{Strategy: name, Message: fmt.Sprintf("Unknown merge strategy: '%s'", name)}
	}
}

func noOptions(name string, opts map[string]any) error {
	for k := range opts {
		return &Error{Strategy: name, Message: fmt.Sprintf("merge strategy '%s' does not accept option '%s'", name, k)}
	}
	return nil
}

// Merge is a convenience for New(spec) followed by Strategy.Merge.
func Merge(e1, e2, spec any) (any, error) {
	s, err := New(spec)
	if err != nil {
		return nil, err
	}
	c1, err := s.Convert(e1)
	if err != nil {
		return nil, err
	}
	c2, err := s.Convert(e2)
	if err != nil {
		return nil, err
	}
	return s.Merge(c1, c2)
}

// Fold calls fn for each variant in order and combines the found values with
// s. For a first-found strategy it returns on the first found value. The search
// order is never changed, only the combination of results.
func Fold[T any](s Strategy, variants []T, fn func(T) (any, bool, error)) (any, bool, error) {
	var (
		memo  any
		found bool
	)
	for _, variant := range variants {
		v, ok, err := fn(variant)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		if s.FirstFound() {
			return v, true, nil
		}
		cv, err := s.Convert(v)
		if err != nil {
			return nil, false, err
		}
		if !found {
			memo, found = cv, true
			continue
		}
		if memo, err = s.Merge(memo, cv); err != nil {
			return nil, false, err
		}
	}
	return memo, found, nil
}

type firstFound struct{}

func (firstFound) Name() string               { return First }
func (firstFound) Options() map[string]any    { return nil }
func (firstFound) FirstFound() bool           { return true }
func (firstFound) Convert(v any) (any, error) { return v, nil }
func (firstFound) Merge(e1, _ any) (any, error) {
	return e1, nil
}

type hashMerge struct{}

func (hashMerge) Name() string            { return Hash }
func (hashMerge) Options() map[string]any { return nil }
func (hashMerge) FirstFound() bool        { return false }

func (hashMerge) Convert(v any) (any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &Error{Strategy: Hash, Message: fmt.Sprintf("value must be a map, got %s", typeName(v))}
	}
	return m, nil
}

func (h hashMerge) Merge(e1, e2 any) (any, error) {
	m1, err := h.Convert(e1)
	if err != nil {
		return nil, err
	}
	m2, err := h.Convert(e2)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(m1.(map[string]any))+len(m2.(map[string]any)))
	for k, v := range m2.(map[string]any) {
		out[k] = v
	}
	for k, v := range m1.(map[string]any) {
		out[k] = v
	}
	return out, nil
}

type uniqueMerge struct{}

func (uniqueMerge) Name() string            { return Unique }
func (uniqueMerge) Options() map[string]any { return nil }
func (uniqueMerge) FirstFound() bool        { return false }

func (uniqueMerge) Convert(v any) (any, error) {
	switch v.(type) {
	case map[string]any:
		return nil, &Error{Strategy: Unique, Message: "value must be a scalar or an array, got a map"}
	case []any:
		return dedupe(flatten(v, nil)), nil
	default:
		return []any{v}, nil
	}
}

func (u uniqueMerge) Merge(e1, e2 any) (any, error) {
	a1, err := u.Convert(e1)
	if err != nil {
		return nil, err
	}
	a2, err := u.Convert(e2)
	if err != nil {
		return nil, err
	}
	all := append(append([]any{}, a1.([]any)...), a2.([]any)...)
	return dedupe(all), nil
}

func flatten(v any, into []any) []any {
	if arr, ok := v.([]any); ok {
		for _, e := range arr {
			into = flatten(e, into)
		}
		return into
	}
	return append(into, v)
}

func dedupe(values []any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if indexOf(out, v) < 0 {
			out = append(out, v)
		}
	}
	return out
}

func indexOf(values []any, v any) int {
	for i, e := range values {
		if reflect.DeepEqual(e, v) {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of maps and arrays in v. Other values are
// immutable and returned as is.
func Clone(v any) (any, error) {
	var err error
	switch t := v.(type) {
	case map[string]any:
		var out map[string]any
		if err = deepcopy.Copy(&out, t); err == nil {
			return out, nil
		}
	case []any:
		var out []any
		if err = deepcopy.Copy(&out, t); err == nil {
			return out, nil
		}
	default:
		return v, nil
	}
	return nil, &Error{Message: fmt.Sprintf("unable to copy %s: %v", typeName(v), err)}
}

func sortValues(values []any) {
	sort.SliceStable(values, func(i, j int) bool {
		return fmt.Sprint(values[i]) < fmt.Sprint(values[j])
	})
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "Undef"
	case string:
		return "String"
	case bool:
		return "Boolean"
	case int, int64:
		return "Integer"
	case float64:
		return "Float"
	case []any:
		return "Array"
	case map[string]any:
		return "Hash"
	default:
		return strings.TrimPrefix(fmt.Sprintf("%T", v), "*")
	}
}

package types

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Construct implements System. The result is asserted against the type.
func (s *CUESystem) Construct(typeExpr string, v any, args ...any) (any, error) {
	t, err := s.Parse(typeExpr)
	if err != nil {
		return nil, err
	}
	out, err := construct(t, v, args)
	if err != nil {
		return nil, fmt.Errorf("cannot convert %s to %s: %w", Describe(v), t, err)
	}
	return s.Assert(out, typeExpr)
}

func construct(t *Type, v any, args []any) (any, error) {
	switch t.Name {
	case "Any", "Data", "Scalar", "ScalarData", "NotUndef":
		return v, nil
	case "Undef":
		return nil, nil
	case "String":
		return Stringify(v), nil
	case "Integer":
		return toInteger(v, args)
	case "Float":
		return toFloat(v)
	case "Numeric":
		if i, err := toInteger(v, nil); err == nil {
			return i, nil
		}
		return toFloat(v)
	case "Boolean":
		return toBoolean(v)
	case "Array":
		return toArray(v, args)
	case "Hash":
		return toHash(v)
	case "Sensitive":
		if sv, ok := v.(Sensitive); ok {
			return sv, nil
		}
		return NewSensitive(v), nil
	case "Enum":
		s := Stringify(v)
		for _, allowed := range t.Values {
			if s == allowed {
				return s, nil
			}
		}
		return nil, fmt.Errorf("'%s' is not one of %s", s, strings.Join(t.Values, ", "))
	case "Optional":
		if v == nil || len(t.Params) == 0 {
			return v, nil
		}
		return construct(t.Params[0], v, args)
	case "Variant":
		var lastErr error
		for _, p := range t.Params {
			out, err := construct(p, v, args)
			if err == nil {
				return out, nil
			}
			lastErr = err
		}
		return nil, lastErr
	case "Type":
		if s, ok := v.(string); ok {
			if _, err := Parse(s); err != nil {
				return nil, err
			}
			return TypeRef{Expr: s}, nil
		}
	}
	return nil, fmt.Errorf("no conversion to %s", t.Name)
}

// Stringify renders v the way interpolation and String conversion do.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case Sensitive:
		return t.String()
	case TypeRef:
		return t.Expr
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = quoteNested(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + " => " + quoteNested(t[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(v)
	}
}

func quoteNested(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	if v == nil {
		return "undef"
	}
	return Stringify(v)
}

func toInteger(v any, args []any) (any, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(math.Trunc(t)), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		base := 0
		if len(args) > 0 {
			if b, ok := args[0].(int); ok {
				base = b
			}
		}
		s := strings.TrimSpace(t)
		n, err := strconv.ParseInt(s, base, 64)
		if err != nil {
			if base == 0 {
				if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
					return int(math.Trunc(f)), nil
				}
			}
			return nil, fmt.Errorf("'%s' is not an integer", t)
		}
		return int(n), nil
	}
	return nil, fmt.Errorf("no conversion from %s to Integer", Describe(v))
}

func toFloat(v any) (any, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case bool:
		if t {
			return 1.0, nil
		}
		return 0.0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil, fmt.Errorf("'%s' is not a float", t)
		}
		return f, nil
	}
	return nil, fmt.Errorf("no conversion from %s to Float", Describe(v))
}

func toBoolean(v any) (any, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case int:
		return t != 0, nil
	case float64:
		return t != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y":
			return true, nil
		case "false", "no", "n", "":
			return false, nil
		}
		return nil, fmt.Errorf("'%s' is not a boolean", t)
	}
	return nil, fmt.Errorf("no conversion from %s to Boolean", Describe(v))
}

// toArray converts maps into [key, value] pairs sorted by key and wraps
// scalars. A true argument wraps arrays too.
func toArray(v any, args []any) (any, error) {
	wrap := len(args) > 0 && args[0] == true
	switch t := v.(type) {
	case []any:
		if wrap {
			return []any{t}, nil
		}
		return t, nil
	case map[string]any:
		if wrap {
			return []any{t}, nil
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = []any{k, t[k]}
		}
		return out, nil
	case string:
		if wrap {
			return []any{t}, nil
		}
		out := make([]any, 0, len(t))
		for _, r := range t {
			out = append(out, string(r))
		}
		return out, nil
	default:
		return []any{v}, nil
	}
}

// toHash accepts a map, a list of [key, value] pairs or a flat list of
// alternating keys and values.
func toHash(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case []any:
		out := make(map[string]any, len(t))
		pairs := len(t) > 0
		for _, e := range t {
			if p, ok := e.([]any); !ok || len(p) != 2 {
				pairs = false
				break
			}
		}
		if pairs {
			for _, e := range t {
				p := e.([]any)
				out[Stringify(p[0])] = p[1]
			}
			return out, nil
		}
		if len(t)%2 != 0 {
			return nil, fmt.Errorf("odd number of elements for Hash conversion")
		}
		for i := 0; i < len(t); i += 2 {
			out[Stringify(t[i])] = t[i+1]
		}
		return out, nil
	case nil:
		return map[string]any{}, nil
	}
	return nil, fmt.Errorf("no conversion from %s to Hash", Describe(v))
}

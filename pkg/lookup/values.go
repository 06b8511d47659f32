package lookup

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/openfroyo/strata/pkg/types"
)

// numberLike is implemented by json.Number style values.
type numberLike interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

// NormalizeValue converts backend output into the lookup value model and
// checks it against the data contract: map keys must be strings, booleans or
// numbers, values must be scalars, nil, sensitive values, type references,
// arrays or maps of valid values.
func NormalizeValue(v any) (any, error) {
	return normalize(v, "")
}

func normalize(v any, path string) (any, error) {
	switch t := v.(type) {
	case nil, bool, string, int, float64, types.Sensitive, types.TypeRef:
		return v, nil
	case int8:
		return int(t), nil
	case int16:
		return int(t), nil
	case int32:
		return int(t), nil
	case int64:
		return int(t), nil
	case uint8:
		return int(t), nil
	case uint16:
		return int(t), nil
	case uint32:
		return int(t), nil
	case uint:
		if uint64(t) > math.MaxInt64 {
			return float64(t), nil
		}
		return int(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return float64(t), nil
		}
		return int(t), nil
	case float32:
		return float64(t), nil
	case json.Number:
		return normalizeNumber(t)
	case time.Time:
		return t.Format(time.RFC3339Nano), nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			ne, err := normalize(e, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = ne
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			ne, err := normalize(e, joinValuePath(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = ne
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			ks, err := normalizeKey(k, path)
			if err != nil {
				return nil, err
			}
			ne, err := normalize(e, joinValuePath(path, ks))
			if err != nil {
				return nil, err
			}
			out[ks] = ne
		}
		return out, nil
	}

	if n, ok := v.(numberLike); ok {
		return normalizeNumber(n)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			ne, err := normalize(rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = ne
		}
		return out, nil
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			ks, err := normalizeKey(iter.Key().Interface(), path)
			if err != nil {
				return nil, err
			}
			ne, err := normalize(iter.Value().Interface(), joinValuePath(path, ks))
			if err != nil {
				return nil, err
			}
			out[ks] = ne
		}
		return out, nil
	}

	return nil, fmt.Errorf("value at '%s' has unsupported type %T", displayPath(path), v)
}

func normalizeNumber(n numberLike) (any, error) {
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", n.String())
	}
	return f, nil
}

func normalizeKey(k any, path string) (string, error) {
	switch t := k.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		nk, err := normalize(t, path)
		if err != nil {
			return "", err
		}
		return types.Stringify(nk), nil
	}
	return "", fmt.Errorf("key of type %s at '%s' is not allowed, keys must be strings, booleans or numbers", types.Describe(k), displayPath(path))
}

func joinValuePath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func displayPath(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}

// validatedData checks a whole-table result and reports violations as data
// shape errors naming the provider and location.
func validatedData(data any, provider, location string) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	nd, err := normalize(data, "")
	if err != nil {
		return nil, dataShapeError(provider, location, err)
	}
	m, ok := nd.(map[string]any)
	if !ok {
		return nil, dataShapeError(provider, location, fmt.Errorf("expected a map, got %s", types.Describe(nd)))
	}
	return m, nil
}

func validatedValue(v any, provider, location string) (any, error) {
	nv, err := normalize(v, "")
	if err != nil {
		return nil, dataShapeError(provider, location, err)
	}
	return nv, nil
}

func dataShapeError(provider, location string, err error) error {
	msg := fmt.Sprintf("Value returned from %s has wrong type", provider)
	e := NewDataShapeError(msg).WithLocation(location)
	e.Err = err
	return e
}

package lookup

import (
	"fmt"
	"strconv"

	"github.com/openfroyo/strata/pkg/types"
)

// Dig walks value along segments. A missing map key or an out of range index
// is reported as not found. Any other mismatch between a segment and the value
// it is applied to is a type mismatch error.
func Dig(value any, segments []any) (any, bool, error) {
	return dig(value, segments, segmentsText(segments), nil)
}

func dig(value any, segments []any, keyText string, onSegment func(seg any, v any, found bool)) (any, bool, error) {
	for _, seg := range segments {
		if s, ok := value.(types.Sensitive); ok {
			v, found, err := dig(s.Unwrap(), []any{seg}, keyText, onSegment)
			if err != nil || !found {
				return nil, found, err
			}
			value = types.NewSensitive(v)
			continue
		}

		var (
			next  any
			found bool
		)
		switch container := value.(type) {
		case map[string]any:
			next, found = container[segmentString(seg)]
		case []any:
			idx, isInt := seg.(int)
			if !isInt {
				return nil, false, digMismatch(value, "a hash-like", seg, keyText)
			}
			if idx < 0 {
				idx += len(container)
			}
			if idx >= 0 && idx < len(container) {
				next, found = container[idx], true
			}
		default:
			kind := "a hash-like"
			if _, isInt := seg.(int); isInt {
				kind = "an array-like"
			}
			return nil, false, digMismatch(value, kind, seg, keyText)
		}

		if onSegment != nil {
			onSegment(seg, next, found)
		}
		if !found {
			return nil, false, nil
		}
		value = next
	}
	return value, true, nil
}

func digMismatch(value any, kind string, seg any, keyText string) error {
	msg := fmt.Sprintf("Got %s when %s object was expected to access value using '%v' from key '%s'",
		types.Describe(value), kind, seg, keyText)
	return NewTypeMismatchError(msg, nil).WithKey(keyText)
}

func segmentString(seg any) string {
	if i, ok := seg.(int); ok {
		return strconv.Itoa(i)
	}
	return seg.(string)
}

// Undig builds the minimal nested structure such that digging segments out of
// it yields leaf.
func Undig(leaf any, segments []any) any {
	value := leaf
	for i := len(segments) - 1; i >= 0; i-- {
		switch seg := segments[i].(type) {
		case int:
			if seg < 0 {
				value = []any{value}
				continue
			}
			arr := make([]any, seg+1)
			arr[seg] = value
			value = arr
		default:
			value = map[string]any{segmentString(seg): value}
		}
	}
	return value
}

// Prune returns the minimal part of whole that contains the path given by
// segments. When the path does not exist an empty container of the same kind
// as whole is returned.
func Prune(whole any, segments []any) (any, error) {
	if len(segments) == 0 {
		return whole, nil
	}
	v, found, err := Dig(whole, segments)
	if err != nil {
		return nil, err
	}
	if found {
		return Undig(v, segments), nil
	}
	switch whole.(type) {
	case []any:
		return []any{}, nil
	case map[string]any:
		return map[string]any{}, nil
	default:
		return whole, nil
	}
}

// subLookup digs into value and records the segments in the explanation.
func (inv *Invocation) subLookup(key Key, value any, segments []any) (any, bool, error) {
	keyText := key.String()
	if !inv.explaining() {
		return dig(value, segments, keyText, nil)
	}

	var (
		result any
		found  bool
		err    error
	)
	inv.with(NodeSubLookup, fmt.Sprintf("Sub key: \"%s\"", segmentsText(segments)), func() {
		result, found, err = dig(value, segments, keyText, func(seg any, v any, ok bool) {
			inv.explainer.push(NodeSegment, fmt.Sprintf("Found key: \"%v\"", seg))
			if ok {
				inv.explainer.found(v)
			} else {
				inv.explainer.notFound()
			}
			inv.explainer.pop()
		})
		if err == nil {
			if found {
				inv.explainer.found(result)
			} else {
				inv.explainer.notFound()
			}
		}
	})
	return result, found, err
}

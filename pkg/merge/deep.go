package merge

import (
	"fmt"
	"strings"
)

type deepOptions struct {
	KnockoutPrefix   string
	MergeHashArrays  bool
	SortMergedArrays bool
	Strict           bool
}

func (o deepOptions) asMap() map[string]any {
	m := map[string]any{}
	if o.KnockoutPrefix != "" {
		m["knockout_prefix"] = o.KnockoutPrefix
	}
	if o.MergeHashArrays {
		m["merge_hash_arrays"] = true
	}
	if o.SortMergedArrays {
		m["sort_merged_arrays"] = true
	}
	if o.Strict {
		m["strict"] = true
	}
	return m
}

func parseDeepOptions(name string, opts map[string]any, validate bool) (deepOptions, error) {
	var o deepOptions
	for k, v := range opts {
		switch k {
		case "knockout_prefix":
			s, ok := v.(string)
			if !ok && validate {
				return o, optionTypeError(name, k, "a string", v)
			}
			o.KnockoutPrefix = s
		case "merge_hash_arrays":
			b, ok := v.(bool)
			if !ok && validate {
				return o, optionTypeError(name, k, "a boolean", v)
			}
			o.MergeHashArrays = b
		case "sort_merged_arrays":
			b, ok := v.(bool)
			if !ok && validate {
				return o, optionTypeError(name, k, "a boolean", v)
			}
			o.SortMergedArrays = b
		case "strict":
			b, ok := v.(bool)
			if !ok && validate {
				return o, optionTypeError(name, k, "a boolean", v)
			}
			o.Strict = b
		case "merge_debug":
			// accepted for compatibility, has no effect
		default:
			if validate {
				return o, &Error{Strategy: name, Message: fmt.Sprintf("Unknown merge option '%s' for strategy '%s'", k, name)}
			}
		}
	}
	return o, nil
}

func optionTypeError(strategy, option, want string, got any) error {
	return &Error{Strategy: strategy, Message: fmt.Sprintf("merge option '%s' must be %s, got %s", option, want, typeName(got))}
}

// deepMerge merges maps recursively and unions arrays.
type deepMerge struct {
	name    string
	opts    deepOptions
	reverse bool
}

func (d *deepMerge) Name() string            { return d.name }
func (d *deepMerge) Options() map[string]any { return d.opts.asMap() }
func (d *deepMerge) FirstFound() bool        { return false }

func (d *deepMerge) Convert(v any) (any, error) {
	switch v.(type) {
	case map[string]any, []any:
		return v, nil
	default:
		if d.opts.Strict {
			return nil, &Error{Strategy: d.name, Message: fmt.Sprintf("value must be an array or a map, got %s", typeName(v))}
		}
		return v, nil
	}
}

func (d *deepMerge) Merge(e1, e2 any) (any, error) {
	if d.reverse {
		e1, e2 = e2, e1
	}
	dest, err := Clone(e2)
	if err != nil {
		return nil, err
	}
	return d.mergeInto(dest, e1, "")
}

// mergeInto merges src (higher priority) into dest, which is owned by the
// caller and may be modified.
func (d *deepMerge) mergeInto(dest, src any, path string) (any, error) {
	ko := d.opts.KnockoutPrefix

	switch s := src.(type) {
	case map[string]any:
		dm, ok := dest.(map[string]any)
		if !ok {
			if dest != nil && d.opts.Strict {
				return nil, d.collision(path, dest, src)
			}
			return d.stripKnockouts(s)
		}
		for k, v := range s {
			if ko != "" && strings.HasPrefix(k, ko) {
				delete(dm, strings.TrimPrefix(k, ko))
				continue
			}
			existing, exists := dm[k]
			if !exists {
				stripped, err := d.stripKnockouts(v)
				if err != nil {
					return nil, err
				}
				dm[k] = stripped
				continue
			}
			merged, err := d.mergeInto(existing, v, joinPath(path, k))
			if err != nil {
				return nil, err
			}
			dm[k] = merged
		}
		return dm, nil

	case []any:
		da, ok := dest.([]any)
		if !ok {
			if dest != nil && d.opts.Strict {
				return nil, d.collision(path, dest, src)
			}
			return d.stripKnockouts(s)
		}
		return d.mergeArrays(da, s, path)

	case string:
		if ko != "" && s == ko {
			return "", nil
		}
		if d.opts.Strict && isContainer(dest) {
			return nil, d.collision(path, dest, src)
		}
		return s, nil

	case nil:
		if dest != nil {
			return dest, nil
		}
		return nil, nil

	default:
		if d.opts.Strict && isContainer(dest) {
			return nil, d.collision(path, dest, src)
		}
		return s, nil
	}
}

func (d *deepMerge) mergeArrays(dest, src []any, path string) (any, error) {
	ko := d.opts.KnockoutPrefix
	if ko != "" {
		var kept []any
		for _, e := range src {
			str, ok := e.(string)
			if !ok || !strings.HasPrefix(str, ko) {
				kept = append(kept, e)
				continue
			}
			if str == ko {
				dest = dest[:0]
				continue
			}
			target := strings.TrimPrefix(str, ko)
			filtered := dest[:0]
			for _, de := range dest {
				if ds, isStr := de.(string); isStr && ds == target {
					continue
				}
				filtered = append(filtered, de)
			}
			dest = filtered
		}
		src = kept
	}

	if d.opts.MergeHashArrays && allMaps(dest) && allMaps(src) {
		for i, e := range src {
			if i >= len(dest) {
				stripped, err := d.stripKnockouts(e)
				if err != nil {
					return nil, err
				}
				dest = append(dest, stripped)
				continue
			}
			merged, err := d.mergeInto(dest[i], e, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			dest[i] = merged
		}
	} else {
		for _, e := range src {
			if indexOf(dest, e) >= 0 {
				continue
			}
			stripped, err := d.stripKnockouts(e)
			if err != nil {
				return nil, err
			}
			dest = append(dest, stripped)
		}
	}

	if d.opts.SortMergedArrays {
		sortValues(dest)
	}
	if dest == nil {
		dest = []any{}
	}
	return dest, nil
}

// stripKnockouts returns a copy of v without knockout entries, which have
// nothing to remove when there is no counterpart.
func (d *deepMerge) stripKnockouts(v any) (any, error) {
	ko := d.opts.KnockoutPrefix
	if ko == "" {
		return Clone(v)
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			if strings.HasPrefix(k, ko) {
				continue
			}
			stripped, err := d.stripKnockouts(e)
			if err != nil {
				return nil, err
			}
			out[k] = stripped
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok && strings.HasPrefix(s, ko) {
				continue
			}
			stripped, err := d.stripKnockouts(e)
			if err != nil {
				return nil, err
			}
			out = append(out, stripped)
		}
		return out, nil
	case string:
		if t == ko {
			return "", nil
		}
		return t, nil
	default:
		return v, nil
	}
}

func (d *deepMerge) collision(path string, dest, src any) error {
	where := path
	if where == "" {
		where = "<root>"
	}
	return &Error{
		Strategy: d.name,
		Message:  fmt.Sprintf("cannot merge %s into %s at %s", typeName(src), typeName(dest), where),
	}
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func allMaps(values []any) bool {
	for _, v := range values {
		if _, ok := v.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

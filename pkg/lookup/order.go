package lookup

import (
	"slices"
	"sort"
)

// OrderedTable is a data_hash result that also carries the document order of
// the keys of hash values stored under root keys. Functions reading formats
// that keep key order return it so that lookup_options patterns are tested
// in the order they were declared.
type OrderedTable struct {
	Data map[string]any

	// KeyOrder maps a root key to the keys of its hash value, in document
	// order.
	KeyOrder map[string][]string
}

// keyOrder collects the key order of every lookup_options hash found while
// options are resolved, highest priority source first.
type keyOrder struct {
	sources [][]string
}

func (o *keyOrder) add(keys []string) {
	o.sources = append(o.sources, keys)
}

// merged returns the keys in the order successive hash merges produce: the
// keys of the lowest priority source first, then keys only present in higher
// priority sources.
func (o *keyOrder) merged() []string {
	var out []string
	for i := len(o.sources) - 1; i >= 0; i-- {
		out = appendMissing(out, o.sources[i])
	}
	return out
}

// mergeKeyOrder orders the keys of a hash merge of a higher and a lower
// priority hash.
func mergeKeyOrder(higher, lower []string) []string {
	return appendMissing(slices.Clone(lower), higher)
}

func appendMissing(out, keys []string) []string {
	for _, k := range keys {
		if !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}

// sortedKeys returns the keys of m in lexicographic order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// orderedKeys returns the keys of m following order. Keys that order does not
// list come last, in lexicographic order.
func orderedKeys(m map[string]any, order []string) []string {
	keys := make([]string, 0, len(m))
	for _, k := range order {
		if _, ok := m[k]; ok && !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	if len(keys) == len(m) {
		return keys
	}
	for _, k := range sortedKeys(m) {
		if !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// noteOptionsOrder records the key order of a lookup_options hash found by a
// backend while options are being resolved. Without a document order the
// keys are taken in lexicographic order.
func (inv *Invocation) noteOptionsOrder(v any, keys []string) {
	rec := inv.state.optionsOrder
	if rec == nil {
		return
	}
	m, ok := v.(map[string]any)
	if !ok {
		return
	}
	rec.add(orderedKeys(m, keys))
}

// collectOptionsOrder runs fn while recording the key order of the
// lookup_options hashes it finds.
func (inv *Invocation) collectOptionsOrder(fn func() (any, bool, error)) (any, bool, []string, error) {
	prev := inv.state.optionsOrder
	rec := &keyOrder{}
	inv.state.optionsOrder = rec
	defer func() { inv.state.optionsOrder = prev }()

	v, found, err := fn()
	return v, found, rec.merged(), err
}

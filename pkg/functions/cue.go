package functions

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/openfroyo/strata/pkg/lookup"
)

// compileCUE compiles the file at the path option. The compiled value is
// cached in the provider for the session.
func compileCUE(pc lookup.ProviderContext, options map[string]any) (cue.Value, error) {
	path, err := pathOption(options)
	if err != nil {
		return cue.Value{}, err
	}
	ck := "cue:" + path
	if v, ok := pc.CachedValue(ck); ok {
		return v.(cue.Value), nil
	}

	_, src, err := readPath(pc, options)
	if err != nil {
		return cue.Value{}, err
	}
	v := cuecontext.New().CompileBytes(src, cue.Filename(path))
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("unable to compile %s: %w", path, err)
	}
	pc.Cache(ck, v)
	return v, nil
}

// cueValue exports a concrete CUE value into the lookup value model.
func cueValue(v cue.Value) (any, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, err
	}
	doc, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return decodeJSON(doc)
}

func cueData(pc lookup.ProviderContext, options map[string]any) (any, error) {
	v, err := compileCUE(pc, options)
	if err != nil {
		return nil, err
	}
	if v.IncompleteKind() != cue.StructKind {
		return nil, fmt.Errorf("%s: top level value must be a struct, got %s", options["path"], v.IncompleteKind())
	}
	out, err := cueValue(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", options["path"], err)
	}
	return out, nil
}

// cueDataDig resolves all key segments inside the CUE file.
func cueDataDig(pc lookup.ProviderContext, key lookup.Key, options map[string]any) (any, bool, error) {
	v, err := compileCUE(pc, options)
	if err != nil {
		return nil, false, err
	}

	selectors := make([]cue.Selector, 0, len(key.Segments()))
	for _, seg := range key.Segments() {
		switch s := seg.(type) {
		case int:
			selectors = append(selectors, cue.Index(s))
		case string:
			selectors = append(selectors, cue.Str(s))
		default:
			return nil, false, fmt.Errorf("unsupported key segment %v", seg)
		}
	}

	target := v.LookupPath(cue.MakePath(selectors...))
	if !target.Exists() {
		return nil, false, nil
	}
	out, err := cueValue(target)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %s: %w", options["path"], key, err)
	}
	return out, true, nil
}

package lookup

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/openfroyo/strata/pkg/merge"
	"github.com/openfroyo/strata/pkg/types"
)

// LookupOptionsKey is the reserved key holding per key lookup directives.
const LookupOptionsKey = "lookup_options"

// Option names inside a lookup_options entry.
const (
	OptionMerge     = "merge"
	OptionConvertTo = "convert_to"
)

const patternStart = "^"

// compiledOptions is a validated lookup_options hash split into exact keys
// and regular expression patterns.
type compiledOptions struct {
	exact    map[string]map[string]any
	patterns []optionPattern
}

type optionPattern struct {
	source  string
	re      *regexp.Regexp
	options map[string]any
}

// compileOptions splits opts into exact and pattern keys. Patterns are
// tested in declaration order; keys missing from order follow in
// lexicographic order.
func compileOptions(opts map[string]any, order []string) (*compiledOptions, error) {
	if opts == nil {
		return nil, nil
	}
	co := &compiledOptions{exact: make(map[string]map[string]any)}
	for _, k := range orderedKeys(opts, order) {
		v := opts[k]
		m, ok := v.(map[string]any)
		if !ok {
			return nil, NewConfigurationError(fmt.Sprintf("value of %s key '%s' must be a hash, got %s", LookupOptionsKey, k, types.Describe(v)), nil).
				WithCode(ErrCodeInvalidOptions)
		}
		if !strings.HasPrefix(k, patternStart) {
			co.exact[k] = m
			continue
		}
		re, err := regexp.Compile(k)
		if err != nil {
			return nil, NewConfigurationError(fmt.Sprintf("invalid %s pattern '%s'", LookupOptionsKey, k), err).
				WithCode(ErrCodeInvalidOptions)
		}
		co.patterns = append(co.patterns, optionPattern{source: k, re: re, options: m})
	}
	return co, nil
}

// forKey returns the options of the root of key. An exact match wins over
// the first matching pattern.
func (co *compiledOptions) forKey(key Key) map[string]any {
	if co == nil {
		return nil
	}
	rk := key.Root()
	if o, ok := co.exact[rk]; ok {
		return o
	}
	for _, p := range co.patterns {
		if p.re.MatchString(rk) {
			return p.options
		}
	}
	return nil
}

// validateLookupOptions checks the shape of a found lookup_options value. For
// a module every key and pattern must address the module namespace.
func validateLookupOptions(v any, moduleName string) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	opts, ok := v.(map[string]any)
	if !ok {
		return nil, NewConfigurationError(fmt.Sprintf("value of %s must be a hash", LookupOptionsKey), nil).WithCode(ErrCodeInvalidOptions)
	}
	if moduleName == "" {
		return opts, nil
	}

	pfx := moduleName + "::"
	for k := range opts {
		if strings.HasPrefix(k, patternStart) {
			if !strings.HasPrefix(k[1:], pfx) {
				return nil, NewConfigurationError(fmt.Sprintf("all %s patterns must match a key starting with module name '%s'", LookupOptionsKey, moduleName), nil).
					WithCode(ErrCodeInvalidOptions).WithKey(k)
			}
			continue
		}
		if !strings.HasPrefix(k, pfx) {
			return nil, NewConfigurationError(fmt.Sprintf("all %s keys must start with module name '%s'", LookupOptionsKey, moduleName), nil).
				WithCode(ErrCodeInvalidOptions).WithKey(k)
		}
	}
	return opts, nil
}

type optionsCacheKey struct {
	module     string
	globalOnly bool
}

// optionsLookupKey is the parsed form of LookupOptionsKey.
var optionsLookupKey = MustParseKey(LookupOptionsKey)

// metaInvocation returns the invocation used to resolve lookup_options. It
// starts from a copy of the recursion stack and explains only when options
// are explained.
func (a *Adapter) metaInvocation(inv *Invocation) *Invocation {
	meta := &Invocation{
		ctx:     inv.ctx,
		adapter: a,
		scope:   inv.scope,
		state: &invocationState{
			id:         inv.state.id,
			nameStack:  slices.Clone(inv.state.nameStack),
			flags:      inv.state.flags,
			scopeUsage: inv.state.scopeUsage,
		},
	}
	if e := inv.state.explainer; e != nil && e.ExplainOptions() {
		meta.state.explainer = e
		meta.explainer = inv.explainer
	}
	return meta
}

// lookupOptionsFor returns the options that apply to key. Options are
// resolved once per module and session.
func (a *Adapter) lookupOptionsFor(key Key, inv *Invocation) (map[string]any, error) {
	ck := optionsCacheKey{module: key.ModuleName(), globalOnly: inv.Flags().GlobalOnly}
	co, ok := a.lookupOptions[ck]
	if !ok {
		var err error
		if co, err = a.retrieveLookupOptions(ck, inv); err != nil {
			return nil, err
		}
		a.lookupOptions[ck] = co
	}
	return co.forKey(key), nil
}

func (a *Adapter) retrieveLookupOptions(ck optionsCacheKey, inv *Invocation) (*compiledOptions, error) {
	meta := a.metaInvocation(inv).forModule(ck.module)
	hash, _ := merge.New(merge.Hash)

	var co *compiledOptions
	_, _, err := meta.check(LookupOptionsKey, func() (any, bool, error) {
		return meta.withResult(NodeMeta, LookupOptionsKey, func() (any, bool, error) {
			if ck.globalOnly {
				global, err := a.globalLookupOptions(meta, hash)
				if err != nil {
					return nil, false, err
				}
				co, err = compileOptions(global.opts, global.order)
				return nil, false, err
			}

			opts, err := a.envLookupOptions(meta, hash)
			if err != nil {
				return nil, false, err
			}
			if ck.module != "" {
				envKey := optionsCacheKey{}
				if _, ok := a.lookupOptions[envKey]; !ok {
					envCompiled, err := compileOptions(opts.opts, opts.order)
					if err != nil {
						return nil, false, err
					}
					a.lookupOptions[envKey] = envCompiled
				}
				if opts, err = a.mergeModuleOptions(meta, hash, ck.module, opts); err != nil {
					return nil, false, err
				}
			}
			co, err = compileOptions(opts.opts, opts.order)
			return nil, false, err
		})
	})
	if err != nil {
		return nil, err
	}
	return co, nil
}

// mergeModuleOptions overlays the lookup_options of a module on the global
// and environment options.
func (a *Adapter) mergeModuleOptions(meta *Invocation, hash merge.Strategy, moduleName string, opts orderedOptions) (orderedOptions, error) {
	v, found, moduleOrder, err := meta.collectOptionsOrder(func() (any, bool, error) {
		return a.lookupInModule(optionsLookupKey, meta, hash)
	})
	if err != nil || !found {
		return opts, err
	}
	moduleOpts, err := validateLookupOptions(v, moduleName)
	if err != nil {
		return orderedOptions{}, err
	}
	if opts.opts == nil {
		return orderedOptions{opts: moduleOpts, order: moduleOrder}, nil
	}

	sources := []optionsSource{
		{"Global and Environment", opts.opts},
		{fmt.Sprintf("Module %s", moduleName), moduleOpts},
	}
	merged, _, err := lookupVariants(meta, hash, sources, func(s optionsSource) (any, bool, error) {
		return meta.withResult(NodeScope, s.name, func() (any, bool, error) {
			meta.reportFound(s.opts)
			return s.opts, true, nil
		})
	})
	if err != nil {
		return orderedOptions{}, err
	}
	return orderedOptions{
		opts:  merged.(map[string]any),
		order: mergeKeyOrder(opts.order, moduleOrder),
	}, nil
}

// globalLookupOptions returns the validated lookup_options of the global
// layer.
func (a *Adapter) globalLookupOptions(meta *Invocation, hash merge.Strategy) (orderedOptions, error) {
	if a.globalOptions.loaded {
		return a.globalOptions.orderedOptions, nil
	}
	v, found, order, err := meta.collectOptionsOrder(func() (any, bool, error) {
		return a.lookupGlobal(optionsLookupKey, meta, hash)
	})
	if err != nil {
		return orderedOptions{}, err
	}
	var opts map[string]any
	if found {
		if opts, err = validateLookupOptions(v, ""); err != nil {
			return orderedOptions{}, err
		}
	}
	a.globalOptions = cachedOptions{orderedOptions: orderedOptions{opts: opts, order: order}, loaded: true}
	return a.globalOptions.orderedOptions, nil
}

// envLookupOptions returns the global options merged with the environment
// options. Global options win on conflicts, as in the layer search order.
// Merged keys keep the environment declaration order first.
func (a *Adapter) envLookupOptions(meta *Invocation, hash merge.Strategy) (orderedOptions, error) {
	if a.envOptions.loaded {
		return a.envOptions.orderedOptions, nil
	}
	global, err := a.globalLookupOptions(meta, hash)
	if err != nil {
		return orderedOptions{}, err
	}

	var envOnly map[string]any
	v, found, envOrder, err := meta.collectOptionsOrder(func() (any, bool, error) {
		return a.lookupInEnvironment(optionsLookupKey, meta, hash)
	})
	if err != nil {
		return orderedOptions{}, err
	}
	if found {
		if envOnly, err = validateLookupOptions(v, ""); err != nil {
			return orderedOptions{}, err
		}
	}

	opts := global
	switch {
	case global.opts == nil:
		opts = orderedOptions{opts: envOnly, order: envOrder}
	case envOnly != nil:
		m, err := hash.Merge(global.opts, envOnly)
		if err != nil {
			return orderedOptions{}, NewMergeError(err)
		}
		opts = orderedOptions{opts: m.(map[string]any), order: mergeKeyOrder(global.order, envOrder)}
	}
	a.envOptions = cachedOptions{orderedOptions: opts, loaded: true}
	return opts, nil
}

type optionsSource struct {
	name string
	opts map[string]any
}

// orderedOptions is a lookup_options hash with the declaration order of its
// keys.
type orderedOptions struct {
	opts  map[string]any
	order []string
}

type cachedOptions struct {
	orderedOptions
	loaded bool
}

// defaultHierarchyOptions returns the lookup_options found in the default
// hierarchy of a module.
func (a *Adapter) defaultHierarchyOptions(inv *Invocation, p *DataProvider, moduleName string) (*compiledOptions, error) {
	if co, ok := a.defaultOptions[moduleName]; ok {
		return co, nil
	}
	meta := a.metaInvocation(inv).forModule(moduleName)
	hash, _ := merge.New(merge.Hash)

	var co *compiledOptions
	_, _, err := meta.check(LookupOptionsKey, func() (any, bool, error) {
		return meta.withResult(NodeScope, fmt.Sprintf("Searching for \"%s\"", LookupOptionsKey), func() (any, bool, error) {
			v, found, order, err := meta.collectOptionsOrder(func() (any, bool, error) {
				return p.KeyLookupInDefault(optionsLookupKey, meta, hash)
			})
			if err != nil || !found {
				return nil, false, err
			}
			opts, err := validateLookupOptions(v, moduleName)
			if err != nil {
				return nil, false, err
			}
			co, err = compileOptions(opts, order)
			return nil, false, err
		})
	})
	if err != nil {
		return nil, err
	}
	a.defaultOptions[moduleName] = co
	return co, nil
}

package lookup

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/strata/pkg/merge"
	"github.com/openfroyo/strata/pkg/types"
)

// Recorder receives lookup measurements.
type Recorder interface {
	// LookupCompleted is called once per public lookup with its outcome.
	LookupCompleted(outcome string, d time.Duration)

	// ProviderCalled is called for every backend function invocation.
	ProviderCalled(function, kind string)

	// CacheHit is called when a cached backend result is reused.
	CacheHit(function string)
}

type nopRecorder struct{}

func (nopRecorder) LookupCompleted(string, time.Duration) {}
func (nopRecorder) ProviderCalled(string, string)         {}
func (nopRecorder) CacheHit(string)                       {}

// AdapterConfig configures an Adapter.
type AdapterConfig struct {
	// Fs is the filesystem for configurations and data. Defaults to the OS.
	Fs afero.Fs

	// Logger receives diagnostics. Defaults to a disabled logger.
	Logger *zerolog.Logger

	// Loader resolves backend function names. Required.
	Loader FunctionLoader

	// Types asserts and constructs values. Defaults to types.NewSystem().
	Types types.System

	// Modules locates module layers. Without it no module layer exists.
	Modules ModuleResolver

	// GlobalConfig is the path of the global hiera.yaml. Empty disables the
	// global layer.
	GlobalConfig string

	// EnvironmentRoot is the directory of the active environment. Empty
	// disables the environment layer.
	EnvironmentRoot string

	// DisableDataBinding makes the global layer answer only legacy calls.
	DisableDataBinding bool

	// ParseOptions is passed to every configuration load.
	ParseOptions ParseOptions

	// Metrics receives measurements. Optional.
	Metrics Recorder

	// Tracer creates spans. Defaults to the global OpenTelemetry provider.
	Tracer trace.Tracer
}

// Adapter resolves keys across the global, environment and module layers.
// It owns every cache of one session and must not be shared between
// sessions or used concurrently.
type Adapter struct {
	id           string
	fs           afero.Fs
	logger       zerolog.Logger
	loader       FunctionLoader
	types        types.System
	modules      ModuleResolver
	globalPath   string
	envRoot      string
	dataBinding  bool
	parseOptions ParseOptions
	metrics      Recorder
	tracer       trace.Tracer

	global      *DataProvider
	env         *DataProvider
	envResolved bool
	moduleLayer map[string]*DataProvider

	lookupOptions  map[optionsCacheKey]*compiledOptions
	defaultOptions map[string]*compiledOptions
	globalOptions  cachedOptions
	envOptions     cachedOptions
}

// NewAdapter creates the adapter of one session.
func NewAdapter(cfg AdapterConfig) (*Adapter, error) {
	if cfg.Loader == nil {
		return nil, errors.New("lookup: a function loader is required")
	}
	a := &Adapter{
		id:             uuid.NewString(),
		fs:             cfg.Fs,
		loader:         cfg.Loader,
		types:          cfg.Types,
		modules:        cfg.Modules,
		globalPath:     cfg.GlobalConfig,
		envRoot:        cfg.EnvironmentRoot,
		dataBinding:    !cfg.DisableDataBinding,
		parseOptions:   cfg.ParseOptions,
		metrics:        cfg.Metrics,
		tracer:         cfg.Tracer,
		moduleLayer:    make(map[string]*DataProvider),
		lookupOptions:  make(map[optionsCacheKey]*compiledOptions),
		defaultOptions: make(map[string]*compiledOptions),
	}
	if a.fs == nil {
		a.fs = afero.NewOsFs()
	}
	if cfg.Logger != nil {
		a.logger = cfg.Logger.With().Str("session", a.id).Logger()
	} else {
		a.logger = zerolog.Nop()
	}
	if a.types == nil {
		a.types = types.NewSystem()
	}
	if a.metrics == nil {
		a.metrics = nopRecorder{}
	}
	if a.tracer == nil {
		a.tracer = otel.Tracer("github.com/openfroyo/strata/pkg/lookup")
	}
	return a, nil
}

// ID returns the session id.
func (a *Adapter) ID() string { return a.id }

// Logger returns the session logger.
func (a *Adapter) Logger() zerolog.Logger { return a.logger }

// Types returns the type system.
func (a *Adapter) Types() types.System { return a.types }

// GlobalProvider returns the global layer, nil when it is disabled.
func (a *Adapter) GlobalProvider() *DataProvider {
	if a.global == nil && a.globalPath != "" {
		a.global = newDataProvider(a, LayerGlobal, "", a.globalPath)
	}
	return a.global
}

// EnvironmentProvider returns the environment layer. It exists only when
// the environment has a hiera.yaml.
func (a *Adapter) EnvironmentProvider() *DataProvider {
	if !a.envResolved {
		a.envResolved = true
		if a.envRoot != "" {
			path := filepath.Join(a.envRoot, ConfigFileName)
			if ok, _ := afero.Exists(a.fs, path); ok {
				a.env = newDataProvider(a, LayerEnvironment, "", path)
			}
		}
	}
	return a.env
}

// ModuleProvider returns the layer of the named module. moduleExists is
// false when the module itself cannot be found; a module without hiera.yaml
// has no layer.
func (a *Adapter) ModuleProvider(name string) (p *DataProvider, moduleExists bool) {
	if p, ok := a.moduleLayer[name]; ok {
		return p, true
	}
	if a.modules == nil {
		return nil, false
	}
	root, ok := a.modules.ModuleRoot(name)
	if !ok {
		return nil, false
	}
	path := filepath.Join(root, ConfigFileName)
	if exists, _ := afero.Exists(a.fs, path); exists {
		p = newDataProvider(a, LayerModule, name, path)
	}
	a.moduleLayer[name] = p
	return p, true
}

// lookupVariants folds the values found by fn for each variant. Merges with
// more than one variant are recorded as a merge node.
func lookupVariants[T any](inv *Invocation, s merge.Strategy, variants []T, fn func(T) (any, bool, error)) (any, bool, error) {
	if s == nil {
		s, _ = merge.New(nil)
	}
	fold := func() (any, bool, error) {
		v, found, err := merge.Fold(s, variants, fn)
		if err != nil {
			var me *merge.Error
			if _, ok := err.(*LookupError); !ok && errors.As(err, &me) {
				return nil, false, NewMergeError(err)
			}
			return nil, false, err
		}
		return v, found, nil
	}
	if s.FirstFound() || len(variants) < 2 {
		return fold()
	}
	return inv.withResult(NodeMerge, "Merge strategy "+s.Name(), func() (any, bool, error) {
		if opts := s.Options(); len(opts) > 0 {
			inv.ReportText(func() string { return "Options: " + renderValue(opts) })
		}
		v, found, err := fold()
		if err == nil && found {
			inv.reportResult(v)
		}
		return v, found, err
	})
}

type layerLookup func(key Key, inv *Invocation, strategy merge.Strategy) (any, bool, error)

// lookupKey resolves one key through the layers. Overrides and defaults are
// handled by the public Lookup.
func (a *Adapter) lookupKey(key Key, inv *Invocation, mergeSpec any) (any, bool, error) {
	raw := key.String()
	if key.Root() == LookupOptionsKey || strings.HasPrefix(raw, LookupOptionsKey+".") {
		inv.with(NodeInvalidKey, fmt.Sprintf("Invalid key \"%s\"", LookupOptionsKey), func() {
			inv.reportNotFound()
		})
		return nil, false, nil
	}

	inv = inv.forModule(key.ModuleName())
	return inv.check(raw, func() (any, bool, error) {
		return inv.withResult(NodeLookup, fmt.Sprintf("Searching for \"%s\"", raw), func() (any, bool, error) {
			if e := inv.state.explainer; e != nil && e.OnlyExplainOptions() {
				_, err := a.lookupOptionsFor(key, inv)
				return nil, false, err
			}

			opts, err := a.lookupOptionsFor(key, inv)
			if err != nil {
				return nil, false, err
			}
			if mergeSpec == nil {
				if m, ok := opts[OptionMerge]; ok {
					mergeSpec = m
					inv.ReportText(func() string { return fmt.Sprintf("Using merge options from \"%s\" hash", LookupOptionsKey) })
				} else if inv.Flags().LegacyMergeBehavior {
					if mergeSpec, err = a.legacyMergeBehavior(); err != nil {
						return nil, false, err
					}
				}
			}
			strategy, err := merge.New(mergeSpec)
			if err != nil {
				return nil, false, NewConfigurationError(fmt.Sprintf("Invalid merge for key '%s'", raw), err).WithKey(raw)
			}

			v, found, err := a.doLookup(key, inv, strategy)
			if err != nil {
				return nil, false, err
			}
			if !found && !inv.Flags().GlobalOnly {
				if v, found, err = a.lookupDefaultInModule(key, inv); err != nil {
					return nil, false, err
				}
			}
			if !found {
				return nil, false, nil
			}
			if v, err = a.convertResult(key, opts, inv, v); err != nil {
				return nil, false, err
			}
			return v, true, nil
		})
	})
}

// doLookup walks the layers and digs into the combined value.
func (a *Adapter) doLookup(key Key, inv *Invocation, strategy merge.Strategy) (any, bool, error) {
	var (
		v     any
		found bool
		err   error
	)
	if inv.Flags().GlobalOnly {
		v, found, err = a.lookupGlobal(key, inv, strategy)
	} else {
		layers := []layerLookup{a.lookupGlobal, a.lookupInEnvironment, a.lookupInModule}
		v, found, err = lookupVariants(inv, strategy, layers, func(l layerLookup) (any, bool, error) {
			return l(key, inv, strategy)
		})
	}
	if err != nil || !found {
		return nil, false, err
	}
	return key.Dig(inv, v)
}

func (a *Adapter) lookupGlobal(key Key, inv *Invocation, strategy merge.Strategy) (any, bool, error) {
	if !a.dataBinding && !inv.Flags().LegacyCallOrigin {
		inv.with(NodeLayer, "Data Binding \"none\"", func() { inv.reportNotFound() })
		return nil, false, nil
	}
	p := a.GlobalProvider()
	if p == nil {
		return nil, false, nil
	}
	return p.KeyLookup(key, inv, strategy)
}

func (a *Adapter) lookupInEnvironment(key Key, inv *Invocation, strategy merge.Strategy) (any, bool, error) {
	p := a.EnvironmentProvider()
	if p == nil {
		return nil, false, nil
	}
	return p.KeyLookup(key, inv, strategy)
}

func (a *Adapter) lookupInModule(key Key, inv *Invocation, strategy merge.Strategy) (any, bool, error) {
	name := inv.ModuleName()
	if name == "" {
		return nil, false, nil
	}
	p, exists := a.ModuleProvider(name)
	if p == nil {
		inv.with(NodeModule, fmt.Sprintf("Module \"%s\"", name), func() {
			if exists {
				inv.ReportText(func() string { return fmt.Sprintf("Module data provider for module \"%s\" not found", name) })
			}
			inv.reportOutcome(OutcomeModuleNotFound, nil)
		})
		return nil, false, nil
	}
	return p.KeyLookup(key, inv, strategy)
}

// lookupDefaultInModule searches the default hierarchy of the module of key
// using the merge found in the default hierarchy's own lookup_options.
func (a *Adapter) lookupDefaultInModule(key Key, inv *Invocation) (any, bool, error) {
	name := inv.ModuleName()
	if name == "" {
		return nil, false, nil
	}
	p, _ := a.ModuleProvider(name)
	if p == nil {
		return nil, false, nil
	}
	cfg, err := p.Config()
	if err != nil || !cfg.HasDefaultHierarchy() {
		return nil, false, err
	}

	return inv.withResult(NodeScope, fmt.Sprintf("Searching default_hierarchy of module \"%s\"", name), func() (any, bool, error) {
		co, err := a.defaultHierarchyOptions(inv, p, name)
		if err != nil {
			return nil, false, err
		}
		strategy, err := merge.New(co.forKey(key)[OptionMerge])
		if err != nil {
			return nil, false, NewConfigurationError(fmt.Sprintf("Invalid merge for key '%s' in default_hierarchy", key), err).WithKey(key.String())
		}
		v, found, err := inv.withResult(NodeScope, fmt.Sprintf("Searching for \"%s\"", key), func() (any, bool, error) {
			return p.KeyLookupInDefault(key, inv, strategy)
		})
		if err != nil || !found {
			return nil, false, err
		}
		return key.Dig(inv, v)
	})
}

// legacyMergeBehavior returns the merge declared by a version 3 global
// configuration.
func (a *Adapter) legacyMergeBehavior() (any, error) {
	p := a.GlobalProvider()
	if p == nil {
		return nil, nil
	}
	cfg, err := p.Config()
	if err != nil {
		return nil, err
	}
	return cfg.LegacyMergeBehavior, nil
}

// convertResult applies the convert_to option.
func (a *Adapter) convertResult(key Key, opts map[string]any, inv *Invocation, v any) (any, error) {
	ct, ok := opts[OptionConvertTo]
	if !ok || ct == nil {
		return v, nil
	}

	var (
		typeExpr string
		args     []any
	)
	switch t := ct.(type) {
	case string:
		typeExpr = t
	case []any:
		if len(t) > 0 {
			typeExpr, _ = t[0].(string)
			args = t[1:]
		}
	}
	if typeExpr == "" {
		return nil, NewConversionError(fmt.Sprintf("Invalid data type in %s for key '%s': convert_to must be a type or an array starting with a type, got %s",
			LookupOptionsKey, key, renderValue(ct)), nil).WithKey(key.String())
	}
	if _, err := types.Parse(typeExpr); err != nil {
		return nil, NewConversionError(fmt.Sprintf("Invalid data type in %s for key '%s' could not parse '%s'", LookupOptionsKey, key, typeExpr), err).
			WithKey(key.String())
	}

	var out any
	_, _, err := inv.withResult(NodeConvertTo, fmt.Sprintf("convert_to %s", typeExpr), func() (any, bool, error) {
		var err error
		out, err = a.types.Construct(typeExpr, v, args...)
		if err != nil {
			return nil, false, err
		}
		inv.ReportText(func() string {
			return fmt.Sprintf("Applying convert_to lookup_option with arguments %s", types.Stringify(ct))
		})
		inv.reportResult(out)
		return out, true, nil
	})
	if err != nil {
		return nil, NewConversionError(fmt.Sprintf("The convert_to lookup_option for key '%s' raised error", key), err).WithKey(key.String())
	}
	return out, nil
}

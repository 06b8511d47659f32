package lookup

import (
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openfroyo/strata/pkg/merge"
)

// DataProvider is one layer of the search order. It owns the hierarchy
// configuration of the layer and the function providers built from it.
type DataProvider struct {
	adapter    *Adapter
	layer      LayerKind
	moduleName string
	configPath string
	logger     zerolog.Logger

	config *HierarchyConfig

	providers        []FunctionProvider
	defaultProviders []FunctionProvider
	built            bool
	scopeUsage       map[string]scopeValue

	warned map[string]bool
}

func newDataProvider(a *Adapter, layer LayerKind, moduleName, configPath string) *DataProvider {
	logger := a.logger.With().Str("component", "lookup").Str("layer", layer.String()).Logger()
	if moduleName != "" {
		logger = logger.With().Str("module", moduleName).Logger()
	}
	return &DataProvider{
		adapter:    a,
		layer:      layer,
		moduleName: moduleName,
		configPath: configPath,
		logger:     logger,
		warned:     make(map[string]bool),
	}
}

// Layer returns the layer kind.
func (d *DataProvider) Layer() LayerKind { return d.layer }

// ModuleName returns the module of a module layer.
func (d *DataProvider) ModuleName() string { return d.moduleName }

// ConfigPath returns the path of the hierarchy configuration.
func (d *DataProvider) ConfigPath() string { return d.configPath }

func (d *DataProvider) configRoot() string { return filepath.Dir(d.configPath) }

// Config loads the hierarchy configuration on first use.
func (d *DataProvider) Config() (*HierarchyConfig, error) {
	if d.config != nil {
		return d.config, nil
	}
	cfg, err := LoadHierarchyConfig(d.adapter.fs, d.configPath, d.layer, d.adapter.parseOptions)
	if err != nil {
		return nil, err
	}
	for _, diag := range cfg.Diagnostics {
		ev := d.logger.Warn()
		if diag.Severity == SeverityDeprecation {
			ev = ev.Str("severity", string(diag.Severity))
		}
		ev.Msg(diag.Message)
	}
	d.config = cfg
	return cfg, nil
}

func (d *DataProvider) title() string {
	switch d.layer {
	case LayerGlobal:
		return "Global Data Provider"
	case LayerEnvironment:
		return "Environment Data Provider"
	default:
		return fmt.Sprintf("Module \"%s\" Data Provider", d.moduleName)
	}
}

// ownsKey reports whether a module layer may answer for key.
func (d *DataProvider) ownsKey(key Key) bool {
	if d.layer != LayerModule {
		return true
	}
	return key.Root() == LookupOptionsKey || key.ModuleName() == d.moduleName
}

// KeyLookup looks key up in the hierarchy of the layer.
func (d *DataProvider) KeyLookup(key Key, inv *Invocation, strategy merge.Strategy) (any, bool, error) {
	return d.lookup(key, inv, strategy, false)
}

// KeyLookupInDefault looks key up in the module default hierarchy.
func (d *DataProvider) KeyLookupInDefault(key Key, inv *Invocation, strategy merge.Strategy) (any, bool, error) {
	return d.lookup(key, inv, strategy, true)
}

func (d *DataProvider) lookup(key Key, inv *Invocation, strategy merge.Strategy, inDefault bool) (any, bool, error) {
	cfg, err := d.Config()
	if err != nil {
		return nil, false, err
	}

	kind := NodeLayer
	if inDefault {
		kind = NodeDefaultHierarchy
	}
	label := fmt.Sprintf("%s (%s)", d.title(), cfg.Name())
	return inv.withResult(kind, label, func() (any, bool, error) {
		if cfg.Default {
			inv.ReportText(func() string { return "Using built-in default configuration" })
		} else {
			inv.ReportText(func() string { return fmt.Sprintf("Using configuration \"%s\"", d.configPath) })
		}
		if !d.ownsKey(key) {
			inv.reportNotFound()
			return nil, false, nil
		}

		providers, err := d.functionProviders(inv, cfg)
		if err != nil {
			return nil, false, err
		}
		if inDefault {
			providers = d.defaultProviders
		}
		if len(providers) == 0 {
			inv.reportNotFound()
			return nil, false, nil
		}

		v, found, err := lookupVariants(inv, strategy, providers, func(fp FunctionProvider) (any, bool, error) {
			return fp.UncheckedKeyLookup(key, inv, strategy)
		})
		if err != nil {
			return nil, false, err
		}
		return v, found, nil
	})
}

// functionProviders returns the providers of the layer, building them on
// first use and again when a scope variable used while building changed.
func (d *DataProvider) functionProviders(inv *Invocation, cfg *HierarchyConfig) ([]FunctionProvider, error) {
	if d.built {
		if d.scopeStable(inv) {
			return d.providers, nil
		}
		inv.ReportText(func() string {
			return "Hierarchy recreated due to change of scope variables used in interpolation expressions"
		})
		d.logger.Debug().Msg("hierarchy recreated after scope change")
	}

	build := inv.linked()
	build.explainer = nil
	stop := build.recordScopeUsage()
	providers, err := d.createProviders(build, cfg, cfg.Entries)
	var defaults []FunctionProvider
	if err == nil {
		defaults, err = d.createProviders(build, cfg, cfg.DefaultHierarchy)
	}
	usage := stop()
	if err != nil {
		return nil, err
	}

	d.providers, d.defaultProviders = providers, defaults
	d.scopeUsage = usage
	d.built = true
	return d.providers, nil
}

// scopeStable reports whether every scope variable read while building the
// providers still has the same value.
func (d *DataProvider) scopeStable(inv *Invocation) bool {
	for name, old := range d.scopeUsage {
		v, found := inv.scope.Get(name)
		if found != old.found || !reflect.DeepEqual(v, old.value) {
			return false
		}
	}
	return true
}

func (d *DataProvider) createProviders(inv *Invocation, cfg *HierarchyConfig, entries []HierarchyEntry) ([]FunctionProvider, error) {
	out := make([]FunctionProvider, 0, len(entries))
	for _, entry := range entries {
		fn, ok, err := d.adapter.loader.Resolve(entry.FunctionName, entry.Kind, cfg.Root)
		if err != nil {
			return nil, NewConfigurationError(fmt.Sprintf("Unable to load %s function '%s'", entry.Kind, entry.FunctionName), err).WithLocation(cfg.Path)
		}
		if !ok {
			return nil, cfg.errorf("Unable to find '%s' function named '%s'", entry.Kind, entry.FunctionName).WithCode(ErrCodeUnknownFunction)
		}
		if fn.Kind != entry.Kind {
			return nil, cfg.errorf("Function '%s' is a %s function and cannot be used as %s in hierarchy '%s'", entry.FunctionName, fn.Kind, entry.Kind, entry.Name)
		}

		dd, err := inv.Interpolate(entry.DataDir, false)
		if err != nil {
			return nil, err
		}
		datadir, _ := dd.(string)
		if !filepath.IsAbs(datadir) {
			datadir = filepath.Join(cfg.Root, datadir)
		}

		var locations []Location
		if entry.Locations != nil {
			if locations, err = resolveLocations(inv, d.adapter.fs, entry.Locations, datadir); err != nil {
				return nil, err
			}
			if cfg.Default {
				locations = existing(locations)
				if len(locations) == 0 {
					continue
				}
			}
		}

		var options map[string]any
		if len(entry.Options) > 0 {
			io, err := inv.Interpolate(entry.Options, false)
			if err != nil {
				return nil, err
			}
			options = io.(map[string]any)
		}

		out = append(out, newFunctionProvider(functionProvider{
			entry:     entry,
			function:  fn,
			layer:     d,
			locations: locations,
			options:   options,
		}))
	}
	return out, nil
}

func existing(locations []Location) []Location {
	out := locations[:0:0]
	for _, l := range locations {
		if l.Exists {
			out = append(out, l)
		}
	}
	return out
}

// filterData removes keys a module layer must not provide. Each location is
// reported once.
func (d *DataProvider) filterData(inv *Invocation, data map[string]any, loc *Location) map[string]any {
	if d.layer != LayerModule {
		return data
	}
	prefix := d.moduleName + "::"
	var dropped []string
	out := make(map[string]any, len(data))
	for k, v := range data {
		if k == LookupOptionsKey || strings.HasPrefix(strings.TrimPrefix(k, "::"), prefix) {
			out[k] = v
			continue
		}
		dropped = append(dropped, k)
	}
	if len(dropped) == 0 {
		return data
	}
	sort.Strings(dropped)

	where := d.configPath
	if loc != nil {
		where = loc.Resolved
	}
	if !d.warned[where] {
		d.warned[where] = true
		d.logger.Warn().
			Str("location", where).
			Strs("keys", dropped).
			Msgf("Module data for module '%s' must use keys qualified with the name of the module", d.moduleName)
	}
	inv.ReportText(func() string {
		return fmt.Sprintf("Dropped %d keys not qualified with module name '%s'", len(dropped), d.moduleName)
	})
	return out
}

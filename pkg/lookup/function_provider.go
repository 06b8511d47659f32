package lookup

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/strata/pkg/merge"
)

// FunctionProvider binds one hierarchy entry to its backend function.
type FunctionProvider interface {
	// Name returns the hierarchy entry name.
	Name() string

	// Kind returns the kind of the bound function.
	Kind() ProviderKind

	// Locations returns the resolved locations, nil for entries without any.
	Locations() []Location

	// UncheckedKeyLookup returns the value of the root of key, combining the
	// values of all locations with strategy.
	UncheckedKeyLookup(key Key, inv *Invocation, strategy merge.Strategy) (any, bool, error)
}

// functionProvider holds what the three provider kinds share.
type functionProvider struct {
	entry     HierarchyEntry
	function  Function
	layer     *DataProvider
	locations []Location
	options   map[string]any

	// fnCache backs ProviderContext.Cache.
	fnCache map[string]any
}

func (p *functionProvider) Name() string          { return p.entry.Name }
func (p *functionProvider) Kind() ProviderKind    { return p.entry.Kind }
func (p *functionProvider) Locations() []Location { return p.locations }

func (p *functionProvider) label() string {
	return fmt.Sprintf("Hierarchy entry \"%s\"", p.entry.Name)
}

// description names the provider in data shape errors.
func (p *functionProvider) description() string {
	return fmt.Sprintf("%s function '%s' in hierarchy entry '%s'", p.entry.Kind, p.function.Name, p.entry.Name)
}

// optionsFor returns the function options with the location added.
func (p *functionProvider) optionsFor(loc *Location) map[string]any {
	out := make(map[string]any, len(p.options)+1)
	for k, v := range p.options {
		out[k] = v
	}
	if loc != nil {
		out[loc.OptionKey()] = loc.Resolved
	}
	return out
}

// eachLocation runs fn for every location, or once with nil when the entry
// declares none, and folds the results with strategy.
func (p *functionProvider) eachLocation(inv *Invocation, strategy merge.Strategy, fn func(loc *Location) (any, bool, error)) (any, bool, error) {
	return inv.withResult(NodeProvider, p.label(), func() (any, bool, error) {
		if p.entry.Locations == nil {
			return inv.reportFoundResult(fn(nil))
		}
		return lookupVariants(inv, strategy, p.locations, func(loc Location) (any, bool, error) {
			return inv.withResult(NodeLocation, loc.label(), func() (any, bool, error) {
				if loc.Original != loc.Resolved {
					inv.ReportText(func() string { return fmt.Sprintf("Original %s: \"%s\"", loc.OptionKey(), loc.Original) })
				}
				if !loc.Exists {
					inv.reportOutcome(OutcomeLocationNotFound, nil)
					return nil, false, nil
				}
				return inv.reportFoundResult(fn(&loc))
			})
		})
	})
}

func (p *functionProvider) locationText(loc *Location) string {
	if loc == nil {
		return ""
	}
	return loc.Resolved
}

// call wraps one backend function invocation in a span and counts it.
func (p *functionProvider) call(inv *Invocation, loc *Location, fn func(pc ProviderContext) error) error {
	a := p.layer.adapter
	a.metrics.ProviderCalled(p.function.Name, p.entry.Kind.String())

	ctx, span := a.tracer.Start(inv.Context(), "lookup.function "+p.function.Name,
		trace.WithAttributes(
			attribute.String("strata.function", p.function.Name),
			attribute.String("strata.kind", p.entry.Kind.String()),
			attribute.String("strata.entry", p.entry.Name),
			attribute.String("strata.location", p.locationText(loc)),
		))
	defer span.End()

	err := fn(&providerContext{ctx: ctx, inv: inv, provider: p})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// functionError wraps a failure reported by a backend function.
func (p *functionProvider) functionError(loc *Location, err error) error {
	if _, ok := err.(*LookupError); ok {
		return err
	}
	msg := fmt.Sprintf("Function '%s' used in hierarchy entry '%s' failed", p.function.Name, p.entry.Name)
	return NewConfigurationError(msg, err).WithLocation(p.locationText(loc)).WithCode(ErrCodeFunctionFailed)
}

func (p *functionProvider) interpolated(inv *Invocation, v any) (any, error) {
	return inv.Interpolate(v, true)
}

// dataHashProvider reads whole tables and caches them per location.
type dataHashProvider struct {
	functionProvider
	data  map[string]map[string]any
	order map[string]map[string][]string
}

func (p *dataHashProvider) UncheckedKeyLookup(key Key, inv *Invocation, strategy merge.Strategy) (any, bool, error) {
	root := key.Root()
	return p.eachLocation(inv, strategy, func(loc *Location) (any, bool, error) {
		data, err := p.dataFor(inv, loc)
		if err != nil {
			return nil, false, err
		}
		v, ok := data[root]
		if !ok {
			return nil, false, nil
		}
		v, err = p.interpolated(inv, v)
		if err != nil {
			return nil, false, err
		}
		if root == LookupOptionsKey {
			inv.noteOptionsOrder(v, p.order[locationCacheKey(loc)][root])
		}
		return v, true, nil
	})
}

// dataFor returns the validated table of a location. The function runs at
// most once per location and session.
func (p *dataHashProvider) dataFor(inv *Invocation, loc *Location) (map[string]any, error) {
	ck := locationCacheKey(loc)
	if d, ok := p.data[ck]; ok {
		p.layer.adapter.metrics.CacheHit(p.function.Name)
		return d, nil
	}

	var raw any
	err := p.call(inv, loc, func(pc ProviderContext) error {
		var err error
		raw, err = p.function.DataHash(pc, p.optionsFor(loc))
		return err
	})
	if err != nil {
		return nil, p.functionError(loc, err)
	}
	if t, ok := raw.(OrderedTable); ok {
		raw = t.Data
		p.order[ck] = t.KeyOrder
	}

	data, err := validatedData(raw, p.description(), p.locationText(loc))
	if err != nil {
		return nil, err
	}
	data = p.layer.filterData(inv, data, loc)
	p.data[ck] = data
	return data, nil
}

func locationCacheKey(loc *Location) string {
	if loc == nil {
		return ""
	}
	return loc.cacheKey()
}

type memoValue struct {
	value any
	found bool

	// optionsKey is set for values of the lookup_options key.
	optionsKey bool
}

// lookupKeyProvider asks its function for one root key at a time.
type lookupKeyProvider struct {
	functionProvider
	memo map[string]memoValue
}

func (p *lookupKeyProvider) UncheckedKeyLookup(key Key, inv *Invocation, strategy merge.Strategy) (any, bool, error) {
	root := key.Root()
	return p.eachLocation(inv, strategy, func(loc *Location) (any, bool, error) {
		mk := memoKey(loc, root)
		if m, ok := p.memo[mk]; ok {
			p.layer.adapter.metrics.CacheHit(p.function.Name)
			return p.found(inv, m)
		}

		var (
			v     any
			found bool
		)
		err := p.call(inv, loc, func(pc ProviderContext) error {
			var err error
			v, found, err = p.function.LookupKey(pc, root, p.optionsFor(loc))
			return err
		})
		if err != nil {
			return nil, false, p.functionError(loc, err)
		}
		if found {
			if v, err = validatedValue(v, p.description(), p.locationText(loc)); err != nil {
				return nil, false, err
			}
		}
		m := memoValue{value: v, found: found, optionsKey: root == LookupOptionsKey}
		p.memo[mk] = m
		return p.found(inv, m)
	})
}

func (p *functionProvider) found(inv *Invocation, m memoValue) (any, bool, error) {
	if !m.found {
		return nil, false, nil
	}
	v, err := p.interpolated(inv, m.value)
	if err != nil {
		return nil, false, err
	}
	if m.optionsKey {
		inv.noteOptionsOrder(v, nil)
	}
	return v, true, nil
}

// dataDigProvider lets its function resolve complete dotted keys.
type dataDigProvider struct {
	functionProvider
	memo map[string]memoValue
}

func (p *dataDigProvider) UncheckedKeyLookup(key Key, inv *Invocation, strategy merge.Strategy) (any, bool, error) {
	return p.eachLocation(inv, strategy, func(loc *Location) (any, bool, error) {
		mk := memoKey(loc, key.String())
		m, ok := p.memo[mk]
		if ok {
			p.layer.adapter.metrics.CacheHit(p.function.Name)
		} else {
			var (
				v     any
				found bool
			)
			err := p.call(inv, loc, func(pc ProviderContext) error {
				var err error
				v, found, err = p.function.DataDig(pc, key, p.optionsFor(loc))
				return err
			})
			if err != nil {
				return nil, false, p.functionError(loc, err)
			}
			if found {
				if v, err = validatedValue(v, p.description(), p.locationText(loc)); err != nil {
					return nil, false, err
				}
			}
			m = memoValue{value: v, found: found, optionsKey: key.String() == LookupOptionsKey}
			p.memo[mk] = m
		}

		v, found, err := p.found(inv, m)
		if err != nil || !found {
			return nil, false, err
		}
		return key.Undig(v), true, nil
	})
}

func memoKey(loc *Location, key string) string {
	if loc == nil {
		return "\x00" + key
	}
	return loc.cacheKey() + "\x00" + key
}

// newFunctionProvider creates the provider matching the entry kind.
func newFunctionProvider(base functionProvider) FunctionProvider {
	base.fnCache = make(map[string]any)
	switch base.entry.Kind {
	case LookupKey:
		return &lookupKeyProvider{functionProvider: base, memo: make(map[string]memoValue)}
	case DataDig:
		return &dataDigProvider{functionProvider: base, memo: make(map[string]memoValue)}
	default:
		return &dataHashProvider{
			functionProvider: base,
			data:             make(map[string]map[string]any),
			order:            make(map[string]map[string][]string),
		}
	}
}

// providerContext is the ProviderContext handed to backend functions.
type providerContext struct {
	ctx      context.Context
	inv      *Invocation
	provider *functionProvider
}

func (c *providerContext) Context() context.Context { return c.ctx }
func (c *providerContext) Fs() afero.Fs             { return c.provider.layer.adapter.fs }
func (c *providerContext) ConfigRoot() string       { return c.provider.layer.configRoot() }

func (c *providerContext) Logger() zerolog.Logger {
	return c.provider.layer.logger.With().Str("function", c.provider.function.Name).Logger()
}

func (c *providerContext) Explain(msg func() string) { c.inv.ReportText(msg) }

func (c *providerContext) Interpolate(v any) (any, error) { return c.inv.Interpolate(v, true) }

func (c *providerContext) CachedValue(key string) (any, bool) {
	v, ok := c.provider.fnCache[key]
	return v, ok
}

func (c *providerContext) Cache(key string, value any) { c.provider.fnCache[key] = value }

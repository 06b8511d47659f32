package lookup

import (
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/strata/pkg/types"
)

// Lookup outcomes reported to the Recorder.
const (
	OutcomeLabelFound    = "found"
	OutcomeLabelDefault  = "default"
	OutcomeLabelNotFound = "not_found"
	OutcomeLabelError    = "error"
)

// Lookup resolves the first of names that has a value. Each name is searched
// in the overrides and the layers; then the defaults of the invocation are
// consulted per name. When nothing is found the default value is returned if
// hasDefault is set, otherwise a not found error.
//
// A non-empty expectedType is asserted on the result. mergeSpec, when not nil,
// overrides the merge given by lookup_options.
func Lookup(inv *Invocation, names []string, expectedType string, defaultValue any, hasDefault bool, mergeSpec any) (any, error) {
	var fallback func() (any, error)
	if hasDefault {
		fallback = func() (any, error) { return defaultValue, nil }
	}
	return LookupWithDefaultFunc(inv, names, expectedType, fallback, mergeSpec)
}

// LookupWithDefaultFunc is Lookup with a default computed by defaultFn. The
// function is only called when no name produced a value.
func LookupWithDefaultFunc(inv *Invocation, names []string, expectedType string, defaultFn func() (any, error), mergeSpec any) (any, error) {
	a := inv.adapter
	start := time.Now()

	ctx, span := a.tracer.Start(inv.Context(), "lookup",
		trace.WithAttributes(
			attribute.StringSlice("strata.names", names),
			attribute.String("strata.session", a.id),
			attribute.String("strata.invocation", inv.ID()),
		))
	defer span.End()
	call := inv.linked()
	call.ctx = ctx

	v, outcome, err := call.lookupNames(names, expectedType, defaultFn, mergeSpec)
	if err != nil {
		outcome = OutcomeLabelError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("strata.outcome", outcome))
	a.metrics.LookupCompleted(outcome, time.Since(start))

	if e := inv.Explainer(); e != nil && a.logger.Debug().Enabled() {
		a.logger.Debug().Strs("names", names).Msg("lookup explanation\n" + e.Text())
	}
	return v, err
}

func (inv *Invocation) lookupNames(names []string, expectedType string, defaultFn func() (any, error), mergeSpec any) (any, string, error) {
	if len(names) == 0 {
		return nil, OutcomeLabelError, NewSyntaxError("lookup requires at least one name", nil)
	}
	keys := make([]Key, len(names))
	for i, name := range names {
		k, err := ParseKey(name)
		if err != nil {
			return nil, OutcomeLabelError, err
		}
		keys[i] = k
	}

	for _, key := range keys {
		v, found, err := inv.lookupInOverrides(key)
		if err == nil && !found {
			v, found, err = inv.adapter.lookupKey(key, inv, mergeSpec)
		}
		if err != nil {
			return nil, OutcomeLabelError, err
		}
		if found {
			v, err = inv.assertType(key, v, expectedType)
			return v, OutcomeLabelFound, err
		}
	}
	if e := inv.Explainer(); e != nil && e.OnlyExplainOptions() {
		return nil, OutcomeLabelNotFound, nil
	}

	for _, key := range keys {
		v, found, err := inv.lookupInDefaults(key)
		if err != nil {
			return nil, OutcomeLabelError, err
		}
		if found {
			v, err = inv.assertType(key, v, expectedType)
			return v, OutcomeLabelDefault, err
		}
	}

	if defaultFn == nil {
		return nil, OutcomeLabelNotFound, NewNotFoundError(names)
	}
	v, err := defaultFn()
	if err != nil {
		return nil, OutcomeLabelError, err
	}
	v, err = inv.assertType(keys[0], v, expectedType)
	return v, OutcomeLabelDefault, err
}

// lookupInOverrides finds key in the overrides. A key matching an override
// exactly wins; otherwise the root key is searched and dug into.
func (inv *Invocation) lookupInOverrides(key Key) (any, bool, error) {
	return inv.lookupInHash(NodeOverrides, OutcomeFoundInOverrides, inv.overrides, key)
}

func (inv *Invocation) lookupInDefaults(key Key) (any, bool, error) {
	return inv.lookupInHash(NodeDefaults, OutcomeFoundInDefaults, inv.defaults, key)
}

func (inv *Invocation) lookupInHash(kind NodeKind, outcome Outcome, hash map[string]any, key Key) (any, bool, error) {
	if len(hash) == 0 {
		return nil, false, nil
	}
	var (
		v     any
		found bool
		err   error
	)
	inv.with(kind, fmt.Sprintf("Searching %s for \"%s\"", kind, key), func() {
		if ev, ok := hash[key.String()]; ok {
			v, found = ev, true
		} else if rv, ok := hash[key.Root()]; ok {
			v, found, err = key.Dig(inv, rv)
		}
		if err != nil {
			return
		}
		if found {
			inv.reportOutcome(outcome, v)
		} else {
			inv.reportNotFound()
		}
	})
	return v, found, err
}

func (inv *Invocation) assertType(key Key, v any, expectedType string) (any, error) {
	if expectedType == "" {
		return v, nil
	}
	out, err := inv.adapter.types.Assert(v, expectedType)
	if err != nil {
		var me *types.MismatchError
		if errors.As(err, &me) {
			return nil, NewTypeMismatchError(fmt.Sprintf("Found value for key '%s' has wrong type, %s", key, me.Error()), err).
				WithKey(key.String())
		}
		return nil, NewSyntaxError(fmt.Sprintf("Invalid type expression '%s'", expectedType), err).WithKey(key.String())
	}
	return out, nil
}

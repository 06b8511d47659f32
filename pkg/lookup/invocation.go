package lookup

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Scope is the source of variables for interpolation.
type Scope interface {
	// Has reports whether the variable is defined.
	Has(name string) bool

	// Get returns the variable value.
	Get(name string) (any, bool)
}

// MapScope is a Scope backed by a map.
type MapScope map[string]any

// Has implements Scope.
func (s MapScope) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Get implements Scope.
func (s MapScope) Get(name string) (any, bool) {
	v, ok := s[name]
	return v, ok
}

// Flags are behavioural switches for one invocation.
type Flags struct {
	// GlobalOnly restricts lookups to the global layer.
	GlobalOnly bool

	// LegacyMergeBehavior makes lookups without an explicit merge use the
	// merge behavior declared by a version 3 global configuration.
	LegacyMergeBehavior bool

	// LegacyCallOrigin marks calls made through the legacy hiera entry points.
	// These consult the global layer even when data binding is disabled.
	LegacyCallOrigin bool
}

// invocationState is shared by an invocation and all linked invocations.
type invocationState struct {
	id        string
	nameStack []string
	explainer *Explainer
	flags     Flags

	// scopeUsage records scope variables read while it is non-nil.
	scopeUsage map[string]scopeValue

	// optionsOrder records the key order of lookup_options hashes while it is
	// non-nil.
	optionsOrder *keyOrder
}

type scopeValue struct {
	value any
	found bool
}

// Invocation is the context of one public lookup call. Nested lookups made
// by interpolation use linked invocations that share the recursion stack,
// flags and explanation of their parent.
type Invocation struct {
	ctx        context.Context
	adapter    *Adapter
	scope      Scope
	overrides  map[string]any
	defaults   map[string]any
	state      *invocationState
	explainer  *Explainer
	moduleName string
}

// InvocationOption configures an Invocation.
type InvocationOption func(*Invocation)

// WithOverrides sets values that take precedence over all layers.
func WithOverrides(overrides map[string]any) InvocationOption {
	return func(inv *Invocation) { inv.overrides = overrides }
}

// WithDefaults sets values used when no layer produces a value.
func WithDefaults(defaults map[string]any) InvocationOption {
	return func(inv *Invocation) { inv.defaults = defaults }
}

// WithExplainer records the resolution into e.
func WithExplainer(e *Explainer) InvocationOption {
	return func(inv *Invocation) {
		inv.state.explainer = e
		inv.explainer = e
	}
}

// WithFlags sets the invocation flags.
func WithFlags(f Flags) InvocationOption {
	return func(inv *Invocation) { inv.state.flags = f }
}

// NewInvocation creates the context for one public lookup call.
func (a *Adapter) NewInvocation(ctx context.Context, scope Scope, opts ...InvocationOption) *Invocation {
	if scope == nil {
		scope = MapScope{}
	}
	inv := &Invocation{
		ctx:     ctx,
		adapter: a,
		scope:   scope,
		state:   &invocationState{id: uuid.NewString()},
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Context returns the Go context of the call.
func (inv *Invocation) Context() context.Context {
	if inv.ctx == nil {
		return context.Background()
	}
	return inv.ctx
}

// ID returns the unique id shared by this invocation and its linked ones.
func (inv *Invocation) ID() string { return inv.state.id }

// Adapter returns the owning adapter.
func (inv *Invocation) Adapter() *Adapter { return inv.adapter }

// Scope returns the variable source.
func (inv *Invocation) Scope() Scope { return inv.scope }

// Flags returns the invocation flags.
func (inv *Invocation) Flags() Flags { return inv.state.flags }

// Explainer returns the explainer or nil.
func (inv *Invocation) Explainer() *Explainer { return inv.state.explainer }

// Overrides returns the override values.
func (inv *Invocation) Overrides() map[string]any { return inv.overrides }

// Defaults returns the default values.
func (inv *Invocation) Defaults() map[string]any { return inv.defaults }

// ModuleName returns the module of the key currently being looked up.
func (inv *Invocation) ModuleName() string { return inv.moduleName }

// linked returns an invocation sharing all state with inv.
func (inv *Invocation) linked() *Invocation {
	c := *inv
	return &c
}

func (inv *Invocation) forModule(moduleName string) *Invocation {
	c := inv.linked()
	c.moduleName = moduleName
	return c
}

// check runs fn with name pushed on the recursion stack. A name that is
// already on the stack is an error.
func (inv *Invocation) check(name string, fn func() (any, bool, error)) (any, bool, error) {
	if slices.Contains(inv.state.nameStack, name) {
		stack := append(slices.Clone(inv.state.nameStack), name)
		return nil, false, NewRecursionError(stack)
	}
	inv.state.nameStack = append(inv.state.nameStack, name)
	defer func() {
		inv.state.nameStack = inv.state.nameStack[:len(inv.state.nameStack)-1]
	}()
	return fn()
}

// NameStack returns a copy of the keys currently being resolved.
func (inv *Invocation) NameStack() []string {
	return slices.Clone(inv.state.nameStack)
}

func (inv *Invocation) explaining() bool {
	return inv.explainer != nil
}

// with records fn under a new explain node.
func (inv *Invocation) with(kind NodeKind, label string, fn func()) {
	if inv.explainer == nil {
		fn()
		return
	}
	inv.explainer.push(kind, label)
	defer inv.explainer.pop()
	fn()
}

// withResult runs fn under a new explain node and records its outcome.
func (inv *Invocation) withResult(kind NodeKind, label string, fn func() (any, bool, error)) (any, bool, error) {
	var (
		v     any
		found bool
		err   error
	)
	inv.with(kind, label, func() {
		v, found, err = fn()
	})
	return v, found, err
}

// withoutExplain runs fn with explanation suppressed.
func (inv *Invocation) withoutExplain(fn func() (any, bool, error)) (any, bool, error) {
	saved := inv.explainer
	inv.explainer = nil
	defer func() { inv.explainer = saved }()
	return fn()
}

// ReportText adds a text line to the current explain node. The message
// function is only called when an explanation is recorded.
func (inv *Invocation) ReportText(msg func() string) {
	if inv.explainer != nil {
		inv.explainer.text(msg())
	}
}

func (inv *Invocation) reportFound(v any) {
	if inv.explainer != nil {
		inv.explainer.found(v)
	}
}

func (inv *Invocation) reportNotFound() {
	if inv.explainer != nil {
		inv.explainer.notFound()
	}
}

func (inv *Invocation) reportResult(v any) {
	if inv.explainer != nil {
		inv.explainer.result(v)
	}
}

func (inv *Invocation) reportOutcome(o Outcome, v any) {
	if inv.explainer != nil {
		inv.explainer.outcome(o, v)
	}
}

// reportFoundResult records the outcome of a (value, found, error) triple.
func (inv *Invocation) reportFoundResult(v any, found bool, err error) (any, bool, error) {
	if err == nil {
		if found {
			inv.reportFound(v)
		} else {
			inv.reportNotFound()
		}
	}
	return v, found, err
}

// recordScopeUsage starts recording the scope variables read through
// interpolation. The returned function stops recording and returns them.
func (inv *Invocation) recordScopeUsage() func() map[string]scopeValue {
	saved := inv.state.scopeUsage
	usage := make(map[string]scopeValue)
	inv.state.scopeUsage = usage
	return func() map[string]scopeValue {
		inv.state.scopeUsage = saved
		if saved != nil {
			for k, v := range usage {
				saved[k] = v
			}
		}
		return usage
	}
}

func (inv *Invocation) noteScopeRead(name string, v any, found bool) {
	if inv.state.scopeUsage != nil {
		inv.state.scopeUsage[name] = scopeValue{value: v, found: found}
	}
}

// scopeLookup resolves a variable from overrides, scope and defaults in that
// order.
func (inv *Invocation) scopeLookup(name string) (any, bool) {
	if v, ok := inv.overrides[name]; ok {
		return v, true
	}
	if v, ok := inv.scope.Get(name); ok {
		inv.noteScopeRead(name, v, true)
		return v, true
	}
	inv.noteScopeRead(name, nil, false)
	if v, ok := inv.defaults[name]; ok {
		return v, true
	}
	return nil, false
}

func (inv *Invocation) String() string {
	return fmt.Sprintf("invocation %s", inv.state.id)
}

package functions

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/openfroyo/strata/pkg/lookup"
)

const providerContextKey = "strata.provider_context"

// notFound is the type of the NOT_FOUND sentinel returned by lookup_key and
// data_dig scripts.
type notFound struct{}

func (notFound) String() string        { return "NOT_FOUND" }
func (notFound) Type() string          { return "not_found" }
func (notFound) Freeze()               {}
func (notFound) Truth() starlark.Bool  { return starlark.False }
func (notFound) Hash() (uint32, error) { return 0, nil }

// NotFound is predeclared as NOT_FOUND in every script.
var NotFound starlark.Value = notFound{}

// script is a loaded Starlark file. Its globals are frozen after the top
// level ran, so calls never share mutable state.
type script struct {
	path    string
	modTime time.Time
	timeout time.Duration
	globals starlark.StringDict
}

func predeclared() starlark.StringDict {
	return starlark.StringDict{
		"struct":    starlark.NewBuiltin("struct", starlarkstruct.Make),
		"NOT_FOUND": NotFound,
		"explain":   starlark.NewBuiltin("explain", builtinExplain),
	}
}

func compileScript(path string, src []byte, modTime time.Time, timeout time.Duration) (*script, error) {
	thread := newThread(path)
	stop := time.AfterFunc(timeout, func() { thread.Cancel("timeout") })
	defer stop.Stop()

	globals, err := starlark.ExecFile(thread, path, src, predeclared())
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}
	globals.Freeze()
	return &script{path: path, modTime: modTime, timeout: timeout, globals: globals}, nil
}

func newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			// Suppress print
		},
	}
}

// function returns the entry point matching kind. A script may define
// several kinds, one per global function name.
func (s *script) function(name string, kind lookup.ProviderKind) (lookup.Function, bool, error) {
	callable, ok := s.globals[kind.String()].(starlark.Callable)
	if !ok {
		return lookup.Function{}, false, fmt.Errorf("%s does not define a function %s", s.path, kind)
	}

	fn := lookup.Function{Name: name, Kind: kind}
	switch kind {
	case lookup.DataHash:
		fn.DataHash = func(pc lookup.ProviderContext, options map[string]any) (any, error) {
			opts, err := toStarlarkValue(options)
			if err != nil {
				return nil, err
			}
			v, err := s.call(pc, callable, starlark.Tuple{opts})
			if err != nil {
				return nil, err
			}
			return fromStarlarkValue(v)
		}
	case lookup.LookupKey:
		fn.LookupKey = func(pc lookup.ProviderContext, key string, options map[string]any) (any, bool, error) {
			opts, err := toStarlarkValue(options)
			if err != nil {
				return nil, false, err
			}
			return s.callFound(pc, callable, starlark.Tuple{starlark.String(key), opts})
		}
	case lookup.DataDig:
		fn.DataDig = func(pc lookup.ProviderContext, key lookup.Key, options map[string]any) (any, bool, error) {
			opts, err := toStarlarkValue(options)
			if err != nil {
				return nil, false, err
			}
			segs, err := toStarlarkValue(key.Segments())
			if err != nil {
				return nil, false, err
			}
			return s.callFound(pc, callable, starlark.Tuple{segs, opts})
		}
	default:
		return lookup.Function{}, false, fmt.Errorf("unsupported function kind %s", kind)
	}
	return fn, true, nil
}

// call runs callable on a fresh thread that is cancelled when the timeout
// expires or the lookup context is done.
func (s *script) call(pc lookup.ProviderContext, callable starlark.Callable, args starlark.Tuple) (starlark.Value, error) {
	ctx, cancel := context.WithTimeout(pc.Context(), s.timeout)
	defer cancel()

	thread := newThread(s.path)
	thread.SetLocal(providerContextKey, pc)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	v, err := starlark.Call(thread, callable, args, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("starlark execution timeout after %v: %w", s.timeout, err)
		}
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}
	return v, nil
}

func (s *script) callFound(pc lookup.ProviderContext, callable starlark.Callable, args starlark.Tuple) (any, bool, error) {
	v, err := s.call(pc, callable, args)
	if err != nil {
		return nil, false, err
	}
	if v == NotFound {
		return nil, false, nil
	}
	out, err := fromStarlarkValue(v)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// builtinExplain implements explain(msg).
func builtinExplain(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var msg string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "msg", &msg); err != nil {
		return nil, err
	}
	if pc, ok := thread.Local(providerContextKey).(lookup.ProviderContext); ok {
		pc.Explain(func() string { return msg })
	}
	return starlark.None, nil
}

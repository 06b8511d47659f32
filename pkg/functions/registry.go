package functions

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/openfroyo/strata/pkg/lookup"
	"github.com/openfroyo/strata/pkg/stores"
)

// DefaultStarlarkTimeout bounds a single Starlark function call.
const DefaultStarlarkTimeout = 30 * time.Second

// Registry resolves backend functions by name. Built-in functions are
// registered at creation; user functions are Starlark scripts found in the
// functions directory next to the configuration that references them.
type Registry struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	fs       afero.Fs
	timeout  time.Duration
	getenv   func(string) (string, bool)
	builtins map[string]lookup.Function
	scripts  map[string]*script
	dbs      map[string]*stores.SQLiteStore
}

// Option configures a Registry.
type Option func(*Registry)

// WithFs sets the filesystem user functions are loaded from.
func WithFs(fs afero.Fs) Option {
	return func(r *Registry) { r.fs = fs }
}

// WithStarlarkTimeout sets the time limit of one Starlark call.
func WithStarlarkTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithEnv replaces the environment used by environment_lookup_key.
func WithEnv(getenv func(string) (string, bool)) Option {
	return func(r *Registry) { r.getenv = getenv }
}

// WithFunction registers an additional function. It replaces a built-in of
// the same name.
func WithFunction(fn lookup.Function) Option {
	return func(r *Registry) { r.builtins[fn.Name] = fn }
}

// NewRegistry creates a registry holding the built-in functions.
func NewRegistry(logger zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		logger:   logger.With().Str("component", "functions").Logger(),
		fs:       afero.NewOsFs(),
		timeout:  DefaultStarlarkTimeout,
		getenv:   os.LookupEnv,
		builtins: make(map[string]lookup.Function),
		scripts:  make(map[string]*script),
		dbs:      make(map[string]*stores.SQLiteStore),
	}
	r.registerBuiltins()
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) registerBuiltins() {
	for _, fn := range []lookup.Function{
		{Name: "yaml_data", Kind: lookup.DataHash, DataHash: yamlData},
		{Name: "json_data", Kind: lookup.DataHash, DataHash: jsonData},
		{Name: "hcl_data", Kind: lookup.DataHash, DataHash: hclData},
		{Name: "cue_data", Kind: lookup.DataHash, DataHash: cueData},
		{Name: "cue_data_dig", Kind: lookup.DataDig, DataDig: cueDataDig},
		{Name: "rego_data", Kind: lookup.DataHash, DataHash: regoData},
		{Name: "sqlite_lookup_key", Kind: lookup.LookupKey, LookupKey: r.sqliteLookupKey},
		{Name: "environment_lookup_key", Kind: lookup.LookupKey, LookupKey: r.environmentLookupKey},
	} {
		r.builtins[fn.Name] = fn
	}
}

// Names returns the names of all registered functions, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.builtins))
	for name := range r.builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve implements lookup.FunctionLoader. Registered functions take
// precedence over scripts.
func (r *Registry) Resolve(name string, kind lookup.ProviderKind, configRoot string) (lookup.Function, bool, error) {
	r.mu.Lock()
	fn, ok := r.builtins[name]
	r.mu.Unlock()
	if ok {
		return fn, true, nil
	}
	if configRoot == "" {
		return lookup.Function{}, false, nil
	}

	path := filepath.Join(configRoot, "functions", name+".star")
	info, err := r.fs.Stat(path)
	if err != nil || info.IsDir() {
		return lookup.Function{}, false, nil
	}

	s, err := r.loadScript(path, info.ModTime())
	if err != nil {
		return lookup.Function{}, false, err
	}
	return s.function(name, kind)
}

func (r *Registry) loadScript(path string, modTime time.Time) (*script, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.scripts[path]; ok && s.modTime.Equal(modTime) {
		return s, nil
	}
	src, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	s, err := compileScript(path, src, modTime, r.timeout)
	if err != nil {
		return nil, err
	}
	r.logger.Debug().Str("path", path).Msg("loaded starlark function")
	r.scripts[path] = s
	return s, nil
}

// store returns the open store of a database file, opening it on first use.
func (r *Registry) store(pc lookup.ProviderContext, path string) (*stores.SQLiteStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.dbs[path]; ok {
		return s, nil
	}
	s, err := stores.NewSQLiteStore(stores.Config{Path: path, MaxOpenConns: 1})
	if err != nil {
		return nil, err
	}
	if err := s.Init(pc.Context()); err != nil {
		return nil, err
	}
	r.dbs[path] = s
	return s, nil
}

// Close releases the databases opened by sqlite_lookup_key.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for path, s := range r.dbs {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s: %w", path, err)
		}
		delete(r.dbs, path)
	}
	return firstErr
}

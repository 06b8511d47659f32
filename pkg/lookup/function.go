package lookup

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// ProviderKind is the kind of backend function bound to a hierarchy entry.
type ProviderKind int

const (
	// DataHash functions return the whole table for a location.
	DataHash ProviderKind = iota + 1

	// LookupKey functions return the value of one root key.
	LookupKey

	// DataDig functions return the value of a full dotted key.
	DataDig
)

// String returns the configuration name of the kind.
func (k ProviderKind) String() string {
	switch k {
	case DataHash:
		return "data_hash"
	case LookupKey:
		return "lookup_key"
	case DataDig:
		return "data_dig"
	default:
		return fmt.Sprintf("ProviderKind(%d)", int(k))
	}
}

// ProviderContext is handed to backend functions.
type ProviderContext interface {
	// Context returns the Go context of the lookup call.
	Context() context.Context

	// Fs returns the filesystem used for all data access.
	Fs() afero.Fs

	// Logger returns a logger tagged with the function name.
	Logger() zerolog.Logger

	// Explain adds a line to the lookup explanation.
	Explain(msg func() string)

	// Interpolate resolves %{...} expressions in v.
	Interpolate(v any) (any, error)

	// CachedValue returns a value stored with Cache by the same provider.
	CachedValue(key string) (any, bool)

	// Cache stores a value for the lifetime of the session.
	Cache(key string, value any)

	// ConfigRoot returns the directory holding the layer's configuration.
	ConfigRoot() string
}

// DataHashFunc returns the whole table for the location given in options
// ("path" or "uri").
type DataHashFunc func(pc ProviderContext, options map[string]any) (any, error)

// LookupKeyFunc returns the value for one root key.
type LookupKeyFunc func(pc ProviderContext, key string, options map[string]any) (any, bool, error)

// DataDigFunc returns the value addressed by all segments of key.
type DataDigFunc func(pc ProviderContext, key Key, options map[string]any) (any, bool, error)

// Function is a resolved backend function. Exactly one of the function
// fields matching Kind is set.
type Function struct {
	Name      string
	Kind      ProviderKind
	DataHash  DataHashFunc
	LookupKey LookupKeyFunc
	DataDig   DataDigFunc
}

// FunctionLoader resolves function names used in hierarchy entries.
type FunctionLoader interface {
	// Resolve returns the function registered under name. configRoot is the
	// directory of the configuration that references the function.
	Resolve(name string, kind ProviderKind, configRoot string) (Function, bool, error)
}

// ModuleResolver locates module roots.
type ModuleResolver interface {
	// ModuleRoot returns the root directory of the named module.
	ModuleRoot(name string) (string, bool)
}

// ModulePath resolves modules as directories below a list of base
// directories, first match wins.
type ModulePath struct {
	Fs   afero.Fs
	Dirs []string
}

// ModuleRoot implements ModuleResolver.
func (m ModulePath) ModuleRoot(name string) (string, bool) {
	for _, dir := range m.Dirs {
		root := filepath.Join(dir, name)
		if ok, _ := afero.DirExists(m.Fs, root); ok {
			return root, true
		}
	}
	return "", false
}

package config

import (
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for settings files.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema("settings", "#Settings", builtinSettingsSchema); err != nil {
		panic(err)
	}

	return sr
}

// RegisterSchema compiles src and registers the definition named def under
// name.
func (sr *SchemaRegistry) RegisterSchema(name, def, src string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(src)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	schema := val.LookupPath(cue.ParsePath(def))
	if !schema.Exists() {
		return fmt.Errorf("schema %s does not define %s", name, def)
	}

	sr.schemas[name] = schema
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Export compiles a CUE document, unifies it with the named schema and
// returns the concrete result as JSON.
func (sr *SchemaRegistry) Export(schemaName, filename string, src []byte) ([]byte, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return nil, fmt.Errorf("schema %s not found", schemaName)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileBytes(src, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", filename, err)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return unified.MarshalJSON()
}

// ExportSettings validates a CUE settings file against the settings schema.
func (sr *SchemaRegistry) ExportSettings(filename string, src []byte) ([]byte, error) {
	return sr.Export("settings", filename, src)
}

// Built-in schema definitions

const builtinSettingsSchema = `
#Settings: {
	codedir?:          string
	environmentpath?:  string
	environment?:      string & =~"^[A-Za-z0-9_]+$"
	hiera_config?:     string
	data_binding?:     "hiera" | "none"
	strict?:           "off" | "warning" | "error"
	starlark_timeout?: string & =~"^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"
	policies?:         [...string]

	logging?: {
		level?:  "trace" | "debug" | "info" | "warn" | "error" | "fatal"
		format?: "console" | "json"
	}

	metrics?: {
		enabled?:        bool
		listen_address?: string
	}

	tracing?: {
		enabled?:       bool
		exporter?:      "otlp" | "stdout" | "none"
		endpoint?:      string
		sampling_rate?: number & >=0 & <=1
		insecure?:      bool
	}
}
`

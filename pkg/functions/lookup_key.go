package functions

import (
	"fmt"
	"strings"

	"github.com/openfroyo/strata/pkg/lookup"
)

// DefaultEnvPrefix is prepended to variable names by environment_lookup_key.
const DefaultEnvPrefix = "STRATA_"

// sqliteLookupKey reads a root key from a database written by the data
// import command.
func (r *Registry) sqliteLookupKey(pc lookup.ProviderContext, key string, options map[string]any) (any, bool, error) {
	path, err := pathOption(options)
	if err != nil {
		return nil, false, err
	}
	s, err := r.store(pc, path)
	if err != nil {
		return nil, false, err
	}
	return s.Get(pc.Context(), key)
}

// EnvVarName returns the variable environment_lookup_key reads for key.
func EnvVarName(prefix, key string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, c := range strings.ToUpper(key) {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (r *Registry) environmentLookupKey(pc lookup.ProviderContext, key string, options map[string]any) (any, bool, error) {
	prefix := DefaultEnvPrefix
	if p, ok := options["prefix"]; ok {
		ps, ok := p.(string)
		if !ok {
			return nil, false, fmt.Errorf("option 'prefix' must be a string")
		}
		prefix = ps
	}

	name := EnvVarName(prefix, key)
	v, ok := r.getenv(name)
	if !ok {
		return nil, false, nil
	}
	pc.Explain(func() string { return fmt.Sprintf("Found in environment variable %s", name) })
	return v, true, nil
}

package lookup

type defaultsV5 struct {
	DataHash  string         `yaml:"data_hash" validate:"excluded_with=LookupKey DataDig"`
	LookupKey string         `yaml:"lookup_key" validate:"excluded_with=DataDig"`
	DataDig   string         `yaml:"data_dig"`
	DataDir   string         `yaml:"datadir"`
	Options   map[string]any `yaml:"options" validate:"dive,keys,optionname,endkeys"`
}

type entryV5 struct {
	Name string `yaml:"name" validate:"required"`

	DataHash      string `yaml:"data_hash" validate:"excluded_with=LookupKey DataDig Hiera3Backend V4DataHash"`
	LookupKey     string `yaml:"lookup_key" validate:"excluded_with=DataDig Hiera3Backend V4DataHash"`
	DataDig       string `yaml:"data_dig" validate:"excluded_with=Hiera3Backend V4DataHash"`
	Hiera3Backend string `yaml:"hiera3_backend" validate:"excluded_with=V4DataHash"`
	V4DataHash    string `yaml:"v4_data_hash"`

	DataDir string `yaml:"datadir"`

	Path  string   `yaml:"path" validate:"excluded_with=Paths Glob Globs URI URIs"`
	Paths []string `yaml:"paths" validate:"omitnil,min=1,excluded_with=Glob Globs URI URIs,dive,required"`
	Glob  string   `yaml:"glob" validate:"excluded_with=Globs URI URIs"`
	Globs []string `yaml:"globs" validate:"omitnil,min=1,excluded_with=URI URIs,dive,required"`
	URI   string   `yaml:"uri" validate:"excluded_with=URIs"`
	URIs  []string `yaml:"uris" validate:"omitnil,min=1,dive,required"`

	Options map[string]any `yaml:"options" validate:"dive,keys,optionname,endkeys"`
}

type configV5 struct {
	Version          int         `yaml:"version"`
	Defaults         *defaultsV5 `yaml:"defaults"`
	Hierarchy        []entryV5   `yaml:"hierarchy" validate:"dive"`
	DefaultHierarchy []entryV5   `yaml:"default_hierarchy" validate:"dive"`
}

var functionKeys = []string{"data_hash", "lookup_key", "data_dig", "hiera3_backend"}

var reservedOptionKeys = []string{"path", "uri"}

func (d *defaultsV5) function() (ProviderKind, string) {
	switch {
	case d.DataHash != "":
		return DataHash, d.DataHash
	case d.LookupKey != "":
		return LookupKey, d.LookupKey
	case d.DataDig != "":
		return DataDig, d.DataDig
	}
	return 0, ""
}

func parseV5(cfg *HierarchyConfig, data []byte) error {
	var raw configV5
	if err := decodeStrict(cfg, data, &raw); err != nil {
		return err
	}

	defaults := raw.Defaults
	if defaults == nil {
		defaults = &defaultsV5{DataHash: "yaml_data", DataDir: "data"}
	}
	if defaults.DataDir == "" {
		defaults.DataDir = "data"
	}

	hierarchy := raw.Hierarchy
	if hierarchy == nil {
		hierarchy = []entryV5{{Name: "Common", Path: "common.yaml"}}
	}

	var err error
	if cfg.Entries, err = convertV5Entries(cfg, hierarchy, defaults); err != nil {
		return err
	}

	if len(raw.DefaultHierarchy) > 0 {
		if cfg.Layer != LayerModule {
			return cfg.errorf("'default_hierarchy' is only allowed in the module layer")
		}
		if cfg.DefaultHierarchy, err = convertV5Entries(cfg, raw.DefaultHierarchy, defaults); err != nil {
			return err
		}
	}
	return nil
}

func convertV5Entries(cfg *HierarchyConfig, entries []entryV5, defaults *defaultsV5) ([]HierarchyEntry, error) {
	out := make([]HierarchyEntry, 0, len(entries))
	seen := make(map[string]bool, len(entries))

	for _, he := range entries {
		if seen[he.Name] {
			return nil, cfg.errorf("Name '%s' defined more than once", he.Name)
		}
		seen[he.Name] = true

		entry := HierarchyEntry{
			Name:      he.Name,
			DataDir:   he.DataDir,
			Locations: locationSpecOf(he.Path, he.Paths, he.Glob, he.Globs, he.URI, he.URIs),
		}
		if entry.DataDir == "" {
			entry.DataDir = defaults.DataDir
		}

		switch {
		case he.DataHash != "":
			entry.Kind, entry.FunctionName = DataHash, he.DataHash
		case he.LookupKey != "":
			entry.Kind, entry.FunctionName = LookupKey, he.LookupKey
		case he.DataDig != "":
			entry.Kind, entry.FunctionName = DataDig, he.DataDig
		case he.V4DataHash != "":
			entry.Kind, entry.FunctionName, entry.Legacy = DataHash, he.V4DataHash, true
			cfg.diagnose(SeverityDeprecation, "%s: Use of legacy data provider function '%s'. Please convert to a 'data_hash' function", cfg.Path, he.V4DataHash)
		case he.Hiera3Backend != "":
			return nil, hiera3BackendError(cfg, he)
		default:
			entry.Kind, entry.FunctionName = defaults.function()
			if entry.FunctionName == "" {
				return nil, cfg.errorf("One of %s must be defined in hierarchy '%s'", combineKeys(functionKeys...), he.Name)
			}
		}

		for _, k := range reservedOptionKeys {
			if _, ok := he.Options[k]; ok {
				return nil, cfg.errorf("Option key '%s' used in hierarchy '%s' is reserved", k, he.Name).WithCode(ErrCodeReservedKey)
			}
		}
		entry.Options = entryOptions(defaults.Options, he.Options)

		out = append(out, entry)
	}
	return out, nil
}

func hiera3BackendError(cfg *HierarchyConfig, he entryV5) error {
	if cfg.Layer != LayerGlobal {
		return cfg.errorf("'hiera3_backend' is only allowed in the global layer")
	}
	switch he.Hiera3Backend {
	case "yaml", "json":
		return cfg.errorf("Use \"data_hash: %s_data\" instead of \"hiera3_backend: %s\"", he.Hiera3Backend, he.Hiera3Backend)
	}
	return cfg.errorf("Hiera 3 backend '%s' used in hierarchy '%s' is not supported", he.Hiera3Backend, he.Name).WithCode(ErrCodeUnknownFunction)
}

// entryOptions overlays the entry options on the defaults options.
func entryOptions(defaults, options map[string]any) map[string]any {
	if len(defaults) == 0 {
		return options
	}
	out := make(map[string]any, len(defaults)+len(options))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range options {
		out[k] = v
	}
	return out
}

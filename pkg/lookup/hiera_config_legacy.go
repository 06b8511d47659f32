package lookup

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/openfroyo/strata/pkg/merge"
)

type entryV4 struct {
	Name    string   `yaml:"name" validate:"required"`
	Backend string   `yaml:"backend" validate:"required,oneof=yaml json"`
	DataDir string   `yaml:"datadir"`
	Path    string   `yaml:"path" validate:"excluded_with=Paths"`
	Paths   []string `yaml:"paths" validate:"omitnil,min=1,dive,required"`
}

type configV4 struct {
	Version   int       `yaml:"version"`
	DataDir   string    `yaml:"datadir"`
	Hierarchy []entryV4 `yaml:"hierarchy" validate:"dive"`
}

// parseV4 upgrades a version 4 document. Every entry becomes a data_hash
// entry bound to the reader of its backend.
func parseV4(cfg *HierarchyConfig, data []byte) error {
	cfg.diagnose(SeverityDeprecation, "%s: Use of 'hiera.yaml' version 4 is deprecated. It should be converted to version 5", cfg.Path)

	var raw configV4
	if err := decodeStrict(cfg, data, &raw); err != nil {
		return err
	}
	if raw.DataDir == "" {
		raw.DataDir = "data"
	}
	if raw.Hierarchy == nil {
		raw.Hierarchy = []entryV4{{Name: "common", Backend: "yaml"}}
	}

	seen := make(map[string]bool, len(raw.Hierarchy))
	for _, he := range raw.Hierarchy {
		if seen[he.Name] {
			return cfg.errorf("Name '%s' defined more than once", he.Name)
		}
		seen[he.Name] = true

		paths := he.Paths
		if paths == nil {
			p := he.Path
			if p == "" {
				p = he.Name
			}
			paths = []string{p}
		}
		ext := "." + he.Backend
		withExt := make([]string, len(paths))
		for i, p := range paths {
			withExt[i] = addExtension(p, ext)
		}

		datadir := he.DataDir
		if datadir == "" {
			datadir = raw.DataDir
		}
		cfg.Entries = append(cfg.Entries, HierarchyEntry{
			Name:         he.Name,
			Kind:         DataHash,
			FunctionName: he.Backend + "_data",
			DataDir:      datadir,
			Locations:    &LocationSpec{Kind: LocationPaths, Values: withExt},
			Legacy:       true,
		})
	}
	return nil
}

func addExtension(p, ext string) string {
	if strings.HasSuffix(p, ext) {
		return p
	}
	return p + ext
}

var defaultV3Hierarchy = []string{"nodes/%{::trusted.certname}", "common"}

// parseV3 upgrades a version 3 document. Keys may carry a leading colon.
// Each backend becomes one data_hash entry searching all hierarchy levels.
func parseV3(cfg *HierarchyConfig, doc map[string]any, opts ParseOptions) error {
	cfg.diagnose(SeverityDeprecation, "%s: Use of 'hiera.yaml' version 3 is deprecated. It should be converted to version 5", cfg.Path)

	m := make(map[string]any, len(doc))
	for k, v := range doc {
		m[strings.TrimPrefix(k, ":")] = v
	}

	backends, err := v3StringList(cfg, m, "backends", []string{"yaml"})
	if err != nil {
		return err
	}
	hierarchy, err := v3StringList(cfg, m, "hierarchy", defaultV3Hierarchy)
	if err != nil {
		return err
	}

	if cfg.LegacyMergeBehavior, err = v3MergeBehavior(cfg, m); err != nil {
		return err
	}

	defaultDataDir := filepath.Join(cfg.Root, "hieradata")
	if opts.CodeDir != "" {
		defaultDataDir = filepath.Join(opts.CodeDir, "environments", "%{::environment}", "hieradata")
	}

	seen := make(map[string]bool, len(backends))
	for _, backend := range backends {
		if seen[backend] {
			return cfg.errorf("Backend '%s' defined more than once", backend)
		}
		seen[backend] = true

		if backend != "yaml" && backend != "json" {
			return cfg.errorf("Backend '%s' is not supported", backend).WithCode(ErrCodeUnknownFunction)
		}

		datadir := defaultDataDir
		if bc, ok := m[backend]; ok {
			bm, ok := bc.(map[string]any)
			if !ok {
				return cfg.errorf("The configuration of backend '%s' must be a hash", backend)
			}
			for k, v := range bm {
				if strings.TrimPrefix(k, ":") == "datadir" {
					s, ok := v.(string)
					if !ok || s == "" {
						return cfg.errorf("The datadir of backend '%s' must be a non empty string", backend)
					}
					datadir = s
				}
			}
		}

		ext := "." + backend
		paths := make([]string, len(hierarchy))
		for i, level := range hierarchy {
			paths[i] = level + ext
		}
		cfg.Entries = append(cfg.Entries, HierarchyEntry{
			Name:         backend,
			Kind:         DataHash,
			FunctionName: backend + "_data",
			DataDir:      datadir,
			Locations:    &LocationSpec{Kind: LocationPaths, Values: paths},
			Legacy:       true,
		})
	}
	return nil
}

func v3StringList(cfg *HierarchyConfig, m map[string]any, key string, def []string) ([]string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			break
		}
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok || s == "" {
				return nil, cfg.errorf("'%s' must contain non empty strings, got %v", key, e)
			}
			out = append(out, strings.TrimPrefix(s, ":"))
		}
		return out, nil
	}
	return nil, cfg.errorf("'%s' must be a string or an array of strings", key)
}

// v3MergeBehavior translates merge_behavior and deep_merge_options into a
// merge specification.
func v3MergeBehavior(cfg *HierarchyConfig, m map[string]any) (any, error) {
	behavior := "native"
	if v, ok := m["merge_behavior"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, cfg.errorf("'merge_behavior' must be a string")
		}
		behavior = strings.TrimPrefix(s, ":")
	}

	switch behavior {
	case "native":
		return merge.First, nil
	case "array":
		return merge.Unique, nil
	case "deep", "deeper":
		spec := map[string]any{"strategy": merge.ReverseDeep}
		if behavior == "deeper" {
			spec["strategy"] = merge.UnconstrainedDeep
		}
		if dm, ok := m["deep_merge_options"]; ok && dm != nil {
			opts, ok := dm.(map[string]any)
			if !ok {
				return nil, cfg.errorf("'deep_merge_options' must be a hash")
			}
			for k, v := range opts {
				switch v.(type) {
				case string, bool:
				default:
					return nil, cfg.errorf("deep_merge_options value for '%s' must be a string or a boolean", k)
				}
				spec[strings.TrimPrefix(k, ":")] = v
			}
		}
		return spec, nil
	}
	return nil, cfg.errorf("%s", fmt.Sprintf("'merge_behavior' must be one of deep, deeper or native, got '%s'", behavior))
}

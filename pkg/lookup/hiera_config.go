package lookup

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the name of the hierarchy configuration in each layer.
const ConfigFileName = "hiera.yaml"

// LayerKind identifies a priority tier in the search order.
type LayerKind int

const (
	// LayerGlobal is the system wide layer.
	LayerGlobal LayerKind = iota

	// LayerEnvironment is the layer of the active environment.
	LayerEnvironment

	// LayerModule is the layer of one module.
	LayerModule
)

// String returns the lower case layer name.
func (k LayerKind) String() string {
	switch k {
	case LayerGlobal:
		return "global"
	case LayerEnvironment:
		return "environment"
	case LayerModule:
		return "module"
	default:
		return fmt.Sprintf("LayerKind(%d)", int(k))
	}
}

// Severity classifies a configuration diagnostic.
type Severity string

const (
	SeverityWarning     Severity = "warning"
	SeverityDeprecation Severity = "deprecation"
)

// Diagnostic is a non fatal finding produced while loading a configuration.
type Diagnostic struct {
	Severity Severity
	Message  string
}

// HierarchyEntry is one named source of a hierarchy. All configuration
// versions are normalized into this shape.
type HierarchyEntry struct {
	Name         string
	Kind         ProviderKind
	FunctionName string

	// DataDir is the raw data directory, relative to the configuration root
	// unless absolute. It may contain interpolation expressions.
	DataDir string

	// Locations is nil for entries without locations.
	Locations *LocationSpec

	Options map[string]any

	// Legacy marks entries upgraded from a deprecated declaration.
	Legacy bool
}

// HierarchyConfig is a parsed and validated hierarchy configuration.
type HierarchyConfig struct {
	Path    string
	Root    string
	Version int
	Layer   LayerKind

	// Default is set when no document exists and the built-in hierarchy is
	// used. Locations that do not exist are then dropped.
	Default bool

	Entries          []HierarchyEntry
	DefaultHierarchy []HierarchyEntry

	// LegacyMergeBehavior is the merge declared by a version 3 document.
	LegacyMergeBehavior any

	Diagnostics []Diagnostic
}

// HasDefaultHierarchy reports whether a module default hierarchy exists.
func (c *HierarchyConfig) HasDefaultHierarchy() bool {
	return len(c.DefaultHierarchy) > 0
}

// Name returns the configuration description used in explanations.
func (c *HierarchyConfig) Name() string {
	return fmt.Sprintf("hiera configuration version %d", c.Version)
}

func (c *HierarchyConfig) diagnose(sev Severity, format string, args ...any) {
	c.Diagnostics = append(c.Diagnostics, Diagnostic{Severity: sev, Message: fmt.Sprintf(format, args...)})
}

func (c *HierarchyConfig) errorf(format string, args ...any) *LookupError {
	return NewConfigurationError(fmt.Sprintf(format, args...), nil).WithLocation(c.Path)
}

// ParseOptions carries settings that influence configuration defaults.
type ParseOptions struct {
	// CodeDir is the base of the default version 3 data directory.
	CodeDir string
}

// LoadHierarchyConfig reads the configuration at path. A missing document
// yields the built-in default configuration.
func LoadHierarchyConfig(fsys afero.Fs, path string, layer LayerKind, opts ParseOptions) (*HierarchyConfig, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultHierarchyConfig(path, layer), nil
		}
		return nil, NewConfigurationError("Unable to read hierarchy configuration", err).WithLocation(path)
	}
	return ParseHierarchyConfig(data, path, layer, opts)
}

// DefaultHierarchyConfig returns the configuration used when a layer has no
// document: one yaml_data entry reading common.yaml below the data directory.
func DefaultHierarchyConfig(path string, layer LayerKind) *HierarchyConfig {
	return &HierarchyConfig{
		Path:    path,
		Root:    filepath.Dir(path),
		Version: 5,
		Layer:   layer,
		Default: true,
		Entries: []HierarchyEntry{{
			Name:         "Common",
			Kind:         DataHash,
			FunctionName: "yaml_data",
			DataDir:      "data",
			Locations:    &LocationSpec{Kind: LocationPath, Values: []string{"common.yaml"}},
		}},
	}
}

// ParseHierarchyConfig parses a configuration document of version 3, 4 or 5
// and normalizes it.
func ParseHierarchyConfig(data []byte, path string, layer LayerKind, opts ParseOptions) (*HierarchyConfig, error) {
	cfg := &HierarchyConfig{Path: path, Root: filepath.Dir(path), Layer: layer}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, NewConfigurationError("Unable to parse hierarchy configuration", err).WithLocation(path)
	}
	m, ok := doc.(map[string]any)
	if !ok {
		cfg.diagnose(SeverityWarning, "%s: File exists but does not contain a valid YAML hash. Falling back to version 3 default config", path)
		m = map[string]any{}
		data = nil
	}

	version, err := configVersion(m)
	if err != nil {
		return nil, cfg.errorf("%s", err.Error())
	}
	cfg.Version = version

	switch version {
	case 3:
		if layer != LayerGlobal {
			return nil, cfg.errorf("hiera.yaml version 3 cannot be used in the %s layer", layer)
		}
		err = parseV3(cfg, m, opts)
	case 4:
		if layer == LayerGlobal {
			return nil, cfg.errorf("hiera.yaml version 4 cannot be used in the global layer")
		}
		err = parseV4(cfg, data)
	case 5:
		err = parseV5(cfg, data)
	default:
		return nil, cfg.errorf("This runtime does not support hiera.yaml version '%d'", version).WithCode(ErrCodeUnsupportedVersion)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func configVersion(m map[string]any) (int, error) {
	v, ok := m["version"]
	if !ok {
		v, ok = m[":version"]
	}
	if !ok || v == nil {
		return 3, nil
	}
	switch t := v.(type) {
	case int:
		return t, nil
	case string:
		var n int
		if _, err := fmt.Sscanf(t, "%d", &n); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("version must be an integer, got %v", v)
}

// configValidate validates the decoded configuration structs. Field names
// in errors are the YAML keys.
var configValidate = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("optionname", func(fl validator.FieldLevel) bool {
		return optionNamePattern.MatchString(fl.Field().String())
	})
	return v
}

// yamlFieldNames maps Go field names used in validator parameters to keys.
var yamlFieldNames = map[string]string{
	"DataHash":      "data_hash",
	"LookupKey":     "lookup_key",
	"DataDig":       "data_dig",
	"Hiera3Backend": "hiera3_backend",
	"V4DataHash":    "v4_data_hash",
	"Path":          "path",
	"Paths":         "paths",
	"Glob":          "glob",
	"Globs":         "globs",
	"URI":           "uri",
	"URIs":          "uris",
}

func validationError(cfg *HierarchyConfig, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewConfigurationError("Invalid hierarchy configuration", err).WithLocation(cfg.Path)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("'%s' is required", field))
		case "excluded_with":
			others := strings.Fields(fe.Param())
			for i, o := range others {
				if n, ok := yamlFieldNames[o]; ok {
					others[i] = n
				}
			}
			msgs = append(msgs, fmt.Sprintf("'%s' cannot be combined with %s", field, strings.Join(others, ", ")))
		case "min":
			msgs = append(msgs, fmt.Sprintf("'%s' must not be empty", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("'%s' must be one of %s, got '%v'", field, fe.Param(), fe.Value()))
		case "optionname":
			msgs = append(msgs, fmt.Sprintf("'%s' contains an invalid option name", field))
		default:
			msgs = append(msgs, fmt.Sprintf("'%s' failed validation '%s'", field, fe.Tag()))
		}
	}
	return cfg.errorf("The Lookup Configuration at '%s' is invalid: %s", cfg.Path, strings.Join(msgs, "; ")).WithCode(ErrCodeInvalidConfig)
}

var optionNamePattern = regexp.MustCompile(`^[A-Za-z](?:[0-9A-Za-z_-]*[0-9A-Za-z])?$`)

func decodeStrict(cfg *HierarchyConfig, data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return NewConfigurationError(fmt.Sprintf("The Lookup Configuration at '%s' has an unexpected structure", cfg.Path), err).WithLocation(cfg.Path)
	}
	if err := configValidate.Struct(out); err != nil {
		return validationError(cfg, err)
	}
	return nil
}

// locationSpecOf returns the location declaration of an entry, nil when none
// is declared.
func locationSpecOf(path string, paths []string, glob string, globs []string, uri string, uris []string) *LocationSpec {
	switch {
	case path != "":
		return &LocationSpec{Kind: LocationPath, Values: []string{path}}
	case len(paths) > 0:
		return &LocationSpec{Kind: LocationPaths, Values: paths}
	case glob != "":
		return &LocationSpec{Kind: LocationGlob, Values: []string{glob}}
	case len(globs) > 0:
		return &LocationSpec{Kind: LocationGlobs, Values: globs}
	case uri != "":
		return &LocationSpec{Kind: LocationURI, Values: []string{uri}}
	case len(uris) > 0:
		return &LocationSpec{Kind: LocationURIs, Values: uris}
	}
	return nil
}

func combineKeys(keys ...string) string {
	if len(keys) == 1 {
		return keys[0]
	}
	return strings.Join(keys[:len(keys)-1], ", ") + ", or " + keys[len(keys)-1]
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for settings.
const DefaultPath = "/etc/strata/strata.yaml"

// EnvPrefix is the prefix of environment variables overriding settings.
const EnvPrefix = "STRATA_"

// Settings is the runtime configuration of the lookup engine and the CLI.
type Settings struct {
	// CodeDir is the base directory of environments and the version 3
	// default data directory.
	CodeDir string `yaml:"codedir" json:"codedir" validate:"required"`

	// EnvironmentPath is the directory holding one directory per environment.
	EnvironmentPath string `yaml:"environmentpath" json:"environmentpath" validate:"required"`

	// Environment is the active environment name.
	Environment string `yaml:"environment" json:"environment" validate:"required,excludesall=/\\"`

	// HieraConfig is the path of the global layer configuration.
	HieraConfig string `yaml:"hiera_config" json:"hiera_config" validate:"required"`

	// DataBinding set to "none" disables the global layer for regular lookups.
	DataBinding string `yaml:"data_binding" json:"data_binding" validate:"oneof=hiera none"`

	// Strict controls how configuration diagnostics are treated.
	Strict string `yaml:"strict" json:"strict" validate:"oneof=off warning error"`

	// StarlarkTimeout bounds one call of a Starlark function.
	StarlarkTimeout time.Duration `yaml:"starlark_timeout" json:"starlark_timeout" validate:"gte=0"`

	// Policies lists Rego policy files or directories checked by validate in
	// addition to the built-in policies.
	Policies []string `yaml:"policies" json:"policies"`

	Logging LoggingSettings `yaml:"logging" json:"logging"`
	Metrics MetricsSettings `yaml:"metrics" json:"metrics"`
	Tracing TracingSettings `yaml:"tracing" json:"tracing"`
}

// LoggingSettings configures the CLI logger.
type LoggingSettings struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `yaml:"format" json:"format" validate:"oneof=console json"`
}

// MetricsSettings configures the Prometheus endpoint of the watch command.
type MetricsSettings struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	ListenAddress string `yaml:"listen_address" json:"listen_address" validate:"required_if=Enabled true"`
}

// TracingSettings configures span export.
type TracingSettings struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter" validate:"oneof=otlp stdout none"`
	Endpoint     string  `yaml:"endpoint" json:"endpoint" validate:"required_if=Exporter otlp"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate" validate:"gte=0,lte=1"`
	Insecure     bool    `yaml:"insecure" json:"insecure"`
}

// Default returns the settings used when no file is present.
func Default() *Settings {
	return &Settings{
		CodeDir:         "/etc/strata/code",
		EnvironmentPath: "/etc/strata/code/environments",
		Environment:     "production",
		HieraConfig:     "/etc/strata/hiera.yaml",
		DataBinding:     "hiera",
		Strict:          "warning",
		StarlarkTimeout: 30 * time.Second,
		Logging: LoggingSettings{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsSettings{
			ListenAddress: ":9090",
		},
		Tracing: TracingSettings{
			Exporter:     "none",
			SamplingRate: 1.0,
		},
	}
}

// Load reads settings from path on top of the defaults, applies environment
// overrides and validates the result. A missing file is not an error. Files
// ending in .cue are checked against the settings schema first.
func Load(fsys afero.Fs, path string) (*Settings, error) {
	s := Default()

	data, err := afero.ReadFile(fsys, path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	default:
		if filepath.Ext(path) == ".cue" {
			data, err = NewSchemaRegistry().ExportSettings(path, data)
			if err != nil {
				return nil, err
			}
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
		}
	}

	if err := s.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return s, nil
}

// ApplyEnv overrides settings from STRATA_* variables.
func (s *Settings) ApplyEnv(getenv func(string) (string, bool)) error {
	strs := map[string]*string{
		"CODEDIR":         &s.CodeDir,
		"ENVIRONMENTPATH": &s.EnvironmentPath,
		"ENVIRONMENT":     &s.Environment,
		"HIERA_CONFIG":    &s.HieraConfig,
		"DATA_BINDING":    &s.DataBinding,
		"STRICT":          &s.Strict,
		"LOG_LEVEL":       &s.Logging.Level,
		"LOG_FORMAT":      &s.Logging.Format,
		"TRACE_EXPORTER":  &s.Tracing.Exporter,
		"TRACE_ENDPOINT":  &s.Tracing.Endpoint,
	}
	for name, dst := range strs {
		if v, ok := getenv(EnvPrefix + name); ok {
			*dst = v
		}
	}

	if v, ok := getenv(EnvPrefix + "STARLARK_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sSTARLARK_TIMEOUT: %w", EnvPrefix, err)
		}
		s.StarlarkTimeout = d
	}
	if v, ok := getenv(EnvPrefix + "TRACING"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sTRACING: %w", EnvPrefix, err)
		}
		s.Tracing.Enabled = b
	}
	return nil
}

// Validate checks the settings with their struct tags.
func (s *Settings) Validate() error {
	return validator.New().Struct(s)
}

// EnvironmentDir returns the directory of the active environment.
func (s *Settings) EnvironmentDir() string {
	return filepath.Join(s.EnvironmentPath, s.Environment)
}

// ModuleDir returns the directory holding the modules of the active
// environment.
func (s *Settings) ModuleDir() string {
	return filepath.Join(s.EnvironmentDir(), "modules")
}

// DataBindingEnabled reports whether the global layer serves regular lookups.
func (s *Settings) DataBindingEnabled() bool {
	return s.DataBinding != "none"
}

package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/openfroyo/strata/pkg/lookup"
	"github.com/openfroyo/strata/pkg/policy"
	"github.com/openfroyo/strata/pkg/telemetry"
)

type configTarget struct {
	path  string
	layer lookup.LayerKind
}

func newValidateCommand(a *app) *cobra.Command {
	var (
		layer    string
		policies []string
	)

	cmd := &cobra.Command{
		Use:   "validate [HIERA_YAML...]",
		Short: "Validate hierarchy configurations",
		Long: `Parse hierarchy configurations and report errors and diagnostics.

Without arguments the global configuration, the configuration of the active
environment and the configurations of all its modules are checked. Every
hierarchy entry must name a known backend function of the declared kind.

The strict setting controls diagnostics: off hides them, warning prints them
and error makes them fail the validation.

Each configuration is also checked by the built-in Rego policies and the
policies named in the settings or with --policy. Policy violations with
error severity fail the validation.`,
		Example: `  # Validate the configured layers
  strata validate

  # Validate a module configuration
  strata validate --layer module modules/ntp/hiera.yaml

  # Apply site policies
  strata validate --policy ./policies`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runValidate(cmd.Context(), args, layer, policies)
		},
	}

	cmd.Flags().StringVar(&layer, "layer", "environment", "layer of explicitly given files: global, environment or module")
	cmd.Flags().StringArrayVar(&policies, "policy", nil, "Rego policy file or directory (repeatable)")

	return cmd
}

func parseLayer(name string) (lookup.LayerKind, error) {
	switch name {
	case "global":
		return lookup.LayerGlobal, nil
	case "environment":
		return lookup.LayerEnvironment, nil
	case "module":
		return lookup.LayerModule, nil
	default:
		return 0, fmt.Errorf("unknown layer %q, expected global, environment or module", name)
	}
}

func (a *app) runValidate(ctx context.Context, paths []string, layerName string, policyPaths []string) error {
	sess, err := a.openSession()
	if err != nil {
		return err
	}
	defer sess.Close(context.Background())

	engine, err := policy.NewEngine(sess.logger)
	if err != nil {
		return err
	}
	if err := engine.LoadPolicies(ctx, a.fs, append(append([]string{}, sess.settings.Policies...), policyPaths...)); err != nil {
		return err
	}

	var targets []configTarget
	if len(paths) > 0 {
		layer, err := parseLayer(layerName)
		if err != nil {
			return err
		}
		for _, p := range paths {
			targets = append(targets, configTarget{path: p, layer: layer})
		}
	} else {
		targets, err = sess.configTargets()
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			fmt.Fprintln(a.out, "No hierarchy configurations found")
			return nil
		}
	}

	return sess.trace(ctx, "validate", func(ctx context.Context) error {
		return a.validateTargets(ctx, sess, engine, targets)
	})
}

func (a *app) validateTargets(ctx context.Context, sess *session, engine *policy.Engine, targets []configTarget) error {
	strict := sess.settings.Strict
	invalid, diagnostics := 0, 0

	for _, t := range targets {
		if ok, _ := afero.Exists(a.fs, t.path); !ok {
			fmt.Fprintf(a.out, "✗ %s: file does not exist\n", t.path)
			invalid++
			continue
		}
		cfg, err := lookup.LoadHierarchyConfig(a.fs, t.path, t.layer, lookup.ParseOptions{CodeDir: sess.settings.CodeDir})
		if err != nil {
			fmt.Fprintf(a.out, "✗ %s: %v\n", t.path, err)
			invalid++
			continue
		}

		problems := sess.checkFunctions(cfg)
		for _, p := range problems {
			fmt.Fprintf(a.out, "✗ %s: %s\n", t.path, p)
		}
		if len(problems) > 0 {
			invalid++
			continue
		}

		if strict != "off" {
			for _, d := range cfg.Diagnostics {
				fmt.Fprintf(a.out, "! %s: %s: %s\n", t.path, d.Severity, d.Message)
				diagnostics++
			}
		}

		result, err := engine.EvaluateConfig(ctx, cfg, sess.settings.Environment)
		if err != nil {
			return err
		}
		for _, w := range result.Warnings {
			fmt.Fprintf(a.out, "! %s: %s\n", t.path, w)
		}
		for _, v := range result.Violations {
			mark := "!"
			if v.Severity == policy.SeverityError {
				mark = "✗"
			}
			fmt.Fprintf(a.out, "%s %s: %s: %s: %s\n", mark, t.path, v.Severity, v.Policy, v.Message)
		}
		if !result.Allowed {
			invalid++
			continue
		}
		fmt.Fprintf(a.out, "✓ %s (%s layer, version %d, %d entries)\n", t.path, t.layer, cfg.Version, len(cfg.Entries))
	}

	telemetry.FromContext(ctx).Zerolog().Info().
		Int("configurations", len(targets)).
		Int("invalid", invalid).
		Int("diagnostics", diagnostics).
		Msg("Validation finished")

	if invalid > 0 {
		return fmt.Errorf("%d of %d hierarchy configurations are invalid", invalid, len(targets))
	}
	if strict == "error" && diagnostics > 0 {
		return fmt.Errorf("%d diagnostics reported with strict mode error", diagnostics)
	}
	return nil
}

// checkFunctions resolves the function of every entry.
func (s *session) checkFunctions(cfg *lookup.HierarchyConfig) []string {
	var problems []string
	entries := append(append([]lookup.HierarchyEntry{}, cfg.Entries...), cfg.DefaultHierarchy...)
	for _, e := range entries {
		fn, ok, err := s.registry.Resolve(e.FunctionName, e.Kind, cfg.Root)
		switch {
		case err != nil:
			problems = append(problems, fmt.Sprintf("hierarchy entry %q: %v", e.Name, err))
		case !ok:
			problems = append(problems, fmt.Sprintf("hierarchy entry %q: unknown function %s '%s'", e.Name, e.Kind, e.FunctionName))
		case fn.Kind != e.Kind:
			problems = append(problems, fmt.Sprintf("hierarchy entry %q: function '%s' is a %s function, not %s", e.Name, e.FunctionName, fn.Kind, e.Kind))
		}
	}
	return problems
}

// configTargets lists the existing configurations of the active layers.
func (s *session) configTargets() ([]configTarget, error) {
	fs := s.app.fs
	var targets []configTarget
	add := func(path string, layer lookup.LayerKind) {
		if ok, _ := afero.Exists(fs, path); ok {
			targets = append(targets, configTarget{path: path, layer: layer})
		}
	}

	add(s.settings.HieraConfig, lookup.LayerGlobal)
	add(filepath.Join(s.settings.EnvironmentDir(), lookup.ConfigFileName), lookup.LayerEnvironment)

	modules, err := afero.ReadDir(fs, s.settings.ModuleDir())
	if err != nil {
		if ok, _ := afero.DirExists(fs, s.settings.ModuleDir()); !ok {
			return targets, nil
		}
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	for _, m := range modules {
		if m.IsDir() {
			add(filepath.Join(s.settings.ModuleDir(), m.Name(), lookup.ConfigFileName), lookup.LayerModule)
		}
	}
	return targets, nil
}

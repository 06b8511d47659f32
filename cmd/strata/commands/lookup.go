package commands

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/strata/pkg/lookup"
	"github.com/openfroyo/strata/pkg/merge"
	"github.com/openfroyo/strata/pkg/telemetry"
)

// lookupOptions are the flags shared by lookup and watch.
type lookupOptions struct {
	scopeFiles       []string
	merge            string
	knockoutPrefix   string
	sortMergedArrays bool
	mergeHashArrays  bool
	valueType        string
	defaultValue     string
	explain          bool
	explainOptions   bool
	globalOnly       bool
	renderAs         string
}

func (o *lookupOptions) addFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArrayVar(&o.scopeFiles, "scope", nil, "YAML or JSON file with scope variables (repeatable, later files win)")
	flags.StringVar(&o.merge, "merge", "", "merge strategy: first, unique, hash, deep")
	flags.StringVar(&o.knockoutPrefix, "knockout-prefix", "", "knockout prefix of a deep merge")
	flags.BoolVar(&o.sortMergedArrays, "sort-merged-arrays", false, "sort arrays merged by a deep merge")
	flags.BoolVar(&o.mergeHashArrays, "merge-hash-arrays", false, "merge hashes found in arrays by a deep merge")
	flags.StringVarP(&o.valueType, "type", "t", "", "type the result must match, e.g. Array[String]")
	flags.StringVar(&o.defaultValue, "default", "", "value returned when nothing is found (parsed as YAML)")
	flags.BoolVar(&o.explain, "explain", false, "explain how the value was found")
	flags.BoolVar(&o.explainOptions, "explain-options", false, "explain how lookup_options were found")
	flags.BoolVar(&o.globalOnly, "global-only", false, "only consult the global layer")
	flags.StringVar(&o.renderAs, "render-as", "s", "output format: s, json or yaml")
}

// mergeSpec builds the merge argument of a lookup. Deep merge options
// require an explicit deep strategy.
func (o *lookupOptions) mergeSpec() (any, error) {
	deepOpts := map[string]any{}
	if o.knockoutPrefix != "" {
		deepOpts["knockout_prefix"] = o.knockoutPrefix
	}
	if o.sortMergedArrays {
		deepOpts["sort_merged_arrays"] = true
	}
	if o.mergeHashArrays {
		deepOpts["merge_hash_arrays"] = true
	}

	if len(deepOpts) == 0 {
		if o.merge == "" {
			return nil, nil
		}
		return o.merge, nil
	}
	if o.merge != merge.Deep {
		return nil, fmt.Errorf("--knockout-prefix, --sort-merged-arrays and --merge-hash-arrays require --merge %s", merge.Deep)
	}
	deepOpts["strategy"] = o.merge
	return deepOpts, nil
}

func (o *lookupOptions) parsedDefault(cmd *cobra.Command) (any, bool, error) {
	if !cmd.Flags().Changed("default") {
		return nil, false, nil
	}
	var v any
	if err := yaml.Unmarshal([]byte(o.defaultValue), &v); err != nil {
		return nil, false, fmt.Errorf("invalid --default: %w", err)
	}
	v, err := lookup.NormalizeValue(v)
	if err != nil {
		return nil, false, fmt.Errorf("invalid --default: %w", err)
	}
	return v, true, nil
}

// loadScope merges the scope files, later files overriding earlier ones.
// yaml.v3 reads JSON documents as well.
func loadScope(fs afero.Fs, files []string) (lookup.MapScope, error) {
	scope := lookup.MapScope{}
	for _, file := range files {
		data, err := afero.ReadFile(fs, file)
		if err != nil {
			return nil, fmt.Errorf("failed to read scope %s: %w", file, err)
		}
		var vars map[string]any
		if err := yaml.Unmarshal(data, &vars); err != nil {
			return nil, fmt.Errorf("failed to parse scope %s: %w", file, err)
		}
		for k, v := range vars {
			nv, err := lookup.NormalizeValue(v)
			if err != nil {
				return nil, fmt.Errorf("scope %s: variable %s: %w", file, k, err)
			}
			scope[k] = nv
		}
	}
	return scope, nil
}

func newLookupCommand(a *app) *cobra.Command {
	opts := &lookupOptions{}

	cmd := &cobra.Command{
		Use:   "lookup KEY...",
		Short: "Look up the value of a key",
		Long: `Look up a key through the global, environment and module layers.

When several keys are given the first one that produces a value wins.
The lookup exits with an error when no value is found and no default is given.`,
		Example: `  # Look up a key for a node
  strata lookup ntp::servers --scope facts.yaml

  # Deep merge all layers and print JSON
  strata lookup profile::users --merge deep --render-as json

  # Explain where the value came from
  strata lookup ntp::servers --scope facts.yaml --explain`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLookup(cmd, args, opts)
		},
	}
	opts.addFlags(cmd)

	return cmd
}

func (a *app) runLookup(cmd *cobra.Command, names []string, opts *lookupOptions) error {
	ctx := cmd.Context()
	sess, err := a.openSession()
	if err != nil {
		return err
	}
	defer sess.Close(context.Background())

	return sess.trace(ctx, "lookup", func(ctx context.Context) error {
		return a.lookupOnce(ctx, cmd, sess, names, opts)
	})
}

// lookupOnce runs one lookup with a fresh adapter and renders the result.
func (a *app) lookupOnce(ctx context.Context, cmd *cobra.Command, sess *session, names []string, opts *lookupOptions) error {
	mergeSpec, err := opts.mergeSpec()
	if err != nil {
		return err
	}
	defaultValue, hasDefault, err := opts.parsedDefault(cmd)
	if err != nil {
		return err
	}
	scope, err := loadScope(a.fs, opts.scopeFiles)
	if err != nil {
		return err
	}

	adapter, err := sess.newAdapter()
	if err != nil {
		return err
	}

	invOpts := []lookup.InvocationOption{
		lookup.WithFlags(lookup.Flags{GlobalOnly: opts.globalOnly}),
	}
	var explainer *lookup.Explainer
	if opts.explain || opts.explainOptions {
		explainer = lookup.NewExplainer(opts.explainOptions, opts.explainOptions && !opts.explain)
		invOpts = append(invOpts, lookup.WithExplainer(explainer))
	}

	inv := adapter.NewInvocation(ctx, scope, invOpts...)
	value, err := lookup.Lookup(inv, names, opts.valueType, defaultValue, hasDefault, mergeSpec)

	telemetry.FromContext(ctx).Zerolog().Debug().
		Strs("names", names).
		Str("session", adapter.ID()).
		Bool("found", err == nil).
		Msg("Lookup finished")

	if explainer != nil {
		if err != nil && !lookup.IsNotFound(err) {
			return err
		}
		return renderExplanation(a.out, explainer, opts.renderAs)
	}
	if err != nil {
		return err
	}
	return renderValue(a.out, value, opts.renderAs)
}

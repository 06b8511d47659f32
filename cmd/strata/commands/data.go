package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/strata/pkg/lookup"
	"github.com/openfroyo/strata/pkg/stores"
)

func newDataCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage SQLite data stores",
		Long: `Manage the SQLite databases read by the sqlite_lookup_key backend.

Each root key of an imported document becomes one entry holding the JSON
encoding of its value.`,
	}

	cmd.AddCommand(newDataImportCommand(a))
	cmd.AddCommand(newDataGetCommand(a))
	cmd.AddCommand(newDataListCommand(a))

	return cmd
}

func newDataImportCommand(a *app) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:     "import DB FILE.yaml",
		Short:   "Import the root keys of a YAML or JSON document",
		Example: `  strata data import /var/lib/strata/common.db data/common.yaml`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDataImport(cmd.Context(), args[0], args[1], source)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source recorded with each entry (default: the file name)")

	return cmd
}

func newDataGetCommand(a *app) *cobra.Command {
	var renderAs string

	cmd := &cobra.Command{
		Use:   "get DB KEY",
		Short: "Print the value of one entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDataGet(cmd.Context(), args[0], args[1], renderAs)
		},
	}
	cmd.Flags().StringVar(&renderAs, "render-as", renderJSON, "output format: s, json or yaml")

	return cmd
}

func newDataListCommand(a *app) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list DB",
		Short: "List the entries of a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDataList(cmd.Context(), args[0], limit, offset)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of entries")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of entries to skip")

	return cmd
}

// openStore opens the store at path. Without migrate the database must
// already exist.
func openStore(ctx context.Context, path string, migrate bool) (*stores.SQLiteStore, error) {
	if !migrate {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("data store %s: %w", path, err)
		}
	}
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if migrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}

func (a *app) runDataImport(ctx context.Context, dbPath, file, source string) error {
	raw, err := afero.ReadFile(a.fs, file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", file, err)
	}
	normalized, err := lookup.NormalizeValue(doc)
	if err != nil {
		return fmt.Errorf("invalid data in %s: %w", file, err)
	}
	data, _ := normalized.(map[string]any)

	if source == "" {
		source = file
	}

	store, err := openStore(ctx, dbPath, true)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Import(ctx, data, source)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Imported %d keys from %s into %s\n", n, file, dbPath)
	return nil
}

func (a *app) runDataGet(ctx context.Context, dbPath, key, renderAs string) error {
	store, err := openStore(ctx, dbPath, false)
	if err != nil {
		return err
	}
	defer store.Close()

	v, found, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("key %q not found in %s", key, dbPath)
	}
	v, err = lookup.NormalizeValue(v)
	if err != nil {
		return err
	}
	return renderValue(a.out, v, renderAs)
}

func (a *app) runDataList(ctx context.Context, dbPath string, limit, offset int) error {
	store, err := openStore(ctx, dbPath, false)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.ListEntries(ctx, limit, offset)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSOURCE\tUPDATED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Key, e.Source, e.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

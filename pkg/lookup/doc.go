// Package lookup resolves keys against layered, hierarchical configuration
// data.
//
// A session is represented by an Adapter. It searches three layers in order:
//
//   - global: the hierarchy configured at a fixed path
//   - environment: <environment root>/hiera.yaml, when it exists
//   - module: <module root>/hiera.yaml for the namespace of the key
//
// Each layer holds a hierarchy of entries bound to backend functions. Values
// found in several entries and layers are combined with a merge strategy from
// package merge, selected explicitly or through the reserved lookup_options
// key. String values may reference scope variables and other keys through
// %{...} interpolation.
//
// Basic usage:
//
//	a, err := lookup.NewAdapter(lookup.AdapterConfig{
//		Fs:              afero.NewOsFs(),
//		Loader:          functions.NewRegistry(logger),
//		GlobalConfig:    "/etc/strata/hiera.yaml",
//		EnvironmentRoot: "/etc/strata/environments/production",
//	})
//	if err != nil {
//		return err
//	}
//	inv := a.NewInvocation(ctx, lookup.MapScope{"environment": "production"})
//	v, err := lookup.Lookup(inv, []string{"ntp::servers"}, "Array[String]", nil, false, "unique")
//
// Missing values are not errors inside the engine: internal operations return
// (value, found, error). Lookup turns a final miss into a LookupError of class
// not_found unless a default applies.
//
// An Adapter caches configurations, backend results and lookup options for its
// whole lifetime. It is not safe for concurrent use; create one per session.
package lookup

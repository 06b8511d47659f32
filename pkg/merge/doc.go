// Package merge implements the strategies used to combine values found in
// several hierarchy levels or data layers.
//
// Available strategies:
//
//   - first: the first found value wins, nothing is merged
//   - hash: top-level map keys are combined, higher priority keys win
//   - unique: scalars and arrays are flattened into one array without duplicates
//   - deep: maps are merged recursively and arrays are unioned
//   - reverse_deep: deep merge where the lower priority value wins
//   - unconstrained_deep: deep merge without option validation
//
// The deep strategy accepts the options knockout_prefix, merge_hash_arrays,
// sort_merged_arrays and strict.
//
// Basic usage:
//
//	s, err := merge.New(map[string]any{"strategy": "deep", "knockout_prefix": "--"})
//	if err != nil {
//		return err
//	}
//	v, found, err := merge.Fold(s, sources, func(src Source) (any, bool, error) {
//		return src.Get(key)
//	})
package merge

// Package policy checks hierarchy configurations with Rego policies.
//
// Every policy is a Rego module whose package defines a deny set. Each member
// of the set is a violation, either a message string or an object:
//
//	deny contains violation if {
//		some entry in input.config.entries
//		entry.function == "environment_lookup_key"
//		violation := {
//			"message": sprintf("entry '%s' reads the environment", [entry.name]),
//			"entry": entry.name,
//			"severity": "error",
//		}
//	}
//
// The input document has two members. config is the parsed configuration
// (path, root, version, layer, default, entries, default_hierarchy and
// diagnostics) with entries carrying name, kind, function, datadir,
// location_kind, locations, options and legacy. context holds the
// environment, the operation and a timestamp.
//
// Built-in policies:
//
//	credential-options    credentials written into entry options
//	layer-datadir         absolute data directories outside the global layer
//	module-environment    modules reading environment variables
//	empty-hierarchy       configurations without entries
//	unbounded-globs       globs starting with a recursive wildcard
//
// Additional policies are loaded from .rego files, named after the file, or
// from JSON policy definitions. Violations with error severity make
// Result.Allowed false; the validate command then fails.
package policy

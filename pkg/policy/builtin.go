package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		credentialOptionsPolicy(),
		layerDatadirPolicy(),
		moduleEnvironmentPolicy(),
		emptyHierarchyPolicy(),
		unboundedGlobsPolicy(),
	}
}

// credentialOptionsPolicy flags credentials written into entry options.
func credentialOptionsPolicy() Policy {
	return Policy{
		Name:        "credential-options",
		Description: "Hierarchy entry options must not carry plain text credentials",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"security"},
		Rego: `package strata.policies.credentials

import rego.v1

credential_names := {"password", "passwd", "secret", "token", "api_key", "private_key"}

deny contains violation if {
	some entry in input.config.entries
	some name, value in entry.options
	lower(name) in credential_names
	is_string(value)
	violation := {
		"message": sprintf("Hierarchy entry '%s' carries a credential in option '%s'", [entry.name, name]),
		"entry": entry.name,
	}
}
`,
	}
}

// layerDatadirPolicy flags environment and module entries that read data
// from absolute directories, which escapes the layer.
func layerDatadirPolicy() Policy {
	return Policy{
		Name:        "layer-datadir",
		Description: "Environment and module hierarchies keep their data inside the layer",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"layout"},
		Rego: `package strata.policies.datadir

import rego.v1

deny contains violation if {
	input.config.layer != "global"
	some entry in input.config.entries
	startswith(entry.datadir, "/")
	violation := {
		"message": sprintf("Hierarchy entry '%s' reads data outside its layer from '%s'", [entry.name, entry.datadir]),
		"entry": entry.name,
	}
}
`,
	}
}

func moduleEnvironmentPolicy() Policy {
	return Policy{
		Name:        "module-environment",
		Description: "Module hierarchies do not read process environment variables",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"modules"},
		Rego: `package strata.policies.modules

import rego.v1

deny contains violation if {
	input.config.layer == "module"
	some entry in array.concat(input.config.entries, input.config.default_hierarchy)
	entry.function == "environment_lookup_key"
	violation := {
		"message": sprintf("Module hierarchy entry '%s' reads environment variables", [entry.name]),
		"entry": entry.name,
	}
}
`,
	}
}

func emptyHierarchyPolicy() Policy {
	return Policy{
		Name:        "empty-hierarchy",
		Description: "A hierarchy configuration declares at least one entry",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"layout"},
		Rego: `package strata.policies.hierarchy

import rego.v1

deny contains violation if {
	not input.config["default"]
	count(input.config.entries) == 0
	count(input.config.default_hierarchy) == 0
	violation := {"message": "Hierarchy configuration defines no entries"}
}
`,
	}
}

// unboundedGlobsPolicy flags globs that start with a recursive wildcard and
// therefore read every file below the data directory.
func unboundedGlobsPolicy() Policy {
	return Policy{
		Name:        "unbounded-globs",
		Description: "Globs are anchored below the data directory",
		Severity:    SeverityInfo,
		Enabled:     true,
		Tags:        []string{"performance"},
		Rego: `package strata.policies.globs

import rego.v1

deny contains violation if {
	some entry in input.config.entries
	entry.location_kind in {"glob", "globs"}
	some pattern in entry.locations
	startswith(pattern, "**")
	violation := {
		"message": sprintf("Glob '%s' of hierarchy entry '%s' searches the whole data directory", [pattern, entry.name]),
		"entry": entry.name,
	}
}
`,
	}
}

/*
Package functions provides the backend functions hierarchy entries bind to.

A Registry implements lookup.FunctionLoader. It holds the built-in
functions and loads user functions written in Starlark.

# Built-in Functions

	yaml_data               data_hash   YAML file at "path"
	json_data               data_hash   JSON file at "path", comments allowed
	hcl_data                data_hash   top level attributes of an HCL file
	cue_data                data_hash   concrete CUE file
	cue_data_dig            data_dig    single value inside a CUE file
	rego_data               data_hash   Rego package document, or option "query"
	sqlite_lookup_key       lookup_key  database written by "strata data import"
	environment_lookup_key  lookup_key  environment variable, option "prefix"

# Starlark Functions

A hierarchy entry naming an unknown function is resolved against
<config root>/functions/<name>.star. The script defines a global function
named after the entry kind:

	def data_hash(options):
	    return {"ntp::servers": ["0.pool.ntp.org"]}

	def lookup_key(key, options):
	    if key == "motd":
	        explain("computed motd")
	        return "hello " + options.get("site", "")
	    return NOT_FOUND

	def data_dig(segments, options):
	    return NOT_FOUND

Scripts run without file or network access. Every call gets a fresh thread
that is cancelled after the configured timeout.

# Usage

	reg := functions.NewRegistry(logger,
		functions.WithStarlarkTimeout(5*time.Second),
	)
	defer reg.Close()

	adapter, err := lookup.NewAdapter(lookup.AdapterConfig{Loader: reg})
*/
package functions

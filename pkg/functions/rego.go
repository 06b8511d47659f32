package functions

import (
	"fmt"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/openfroyo/strata/pkg/lookup"
)

// regoData evaluates a query against the Rego module at the path option and
// returns the resulting object. Without a "query" option the whole package
// document is returned. An undefined result is an empty table.
func regoData(pc lookup.ProviderContext, options map[string]any) (any, error) {
	path, src, err := readPath(pc, options)
	if err != nil {
		return nil, err
	}

	module, err := ast.ParseModule(path, string(src))
	if err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}

	query := module.Package.Path.String()
	if q, ok := options["query"]; ok {
		qs, ok := q.(string)
		if !ok || qs == "" {
			return nil, fmt.Errorf("option 'query' must be a non empty string")
		}
		query = qs
	}

	r := rego.New(
		rego.Query(query),
		rego.Module(path, string(src)),
	)
	rs, err := r.Eval(pc.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate %s in %s: %w", query, path, err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		pc.Explain(func() string { return fmt.Sprintf("Query %s is undefined", query) })
		return map[string]any{}, nil
	}
	return rs[0].Expressions[0].Value, nil
}

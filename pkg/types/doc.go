// Package types provides the small type-contract system used by lookups:
// parsing type expressions like "Hash[String, Array[Integer]]", asserting
// values against them and converting raw values for convert_to lookup
// options. Constraints are compiled to CUE and checked by unification.
//
// Values handled by the package are the lookup value model: nil, bool, int,
// float64, string, []any, map[string]any, Sensitive and TypeRef.
package types

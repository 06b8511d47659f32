package lookup

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/openfroyo/strata/pkg/types"
)

var (
	interpolationSpan   = regexp.MustCompile(`%\{([^}]*)\}`)
	interpolationWhole  = regexp.MustCompile(`^%\{[^}]*\}$`)
	interpolationMethod = regexp.MustCompile(`^(\w+)\((?:"([^"]*)"|'([^']*)')\)$`)
	quotedEmpty         = regexp.MustCompile(`^(?:""|'')$`)
)

// Interpolate resolves %{...} expressions in value. Strings are scanned,
// arrays and map values are processed recursively, map keys are left alone.
// When allowMethods is false only plain variable references are accepted.
func (inv *Invocation) Interpolate(value any, allowMethods bool) (any, error) {
	switch v := value.(type) {
	case string:
		if !strings.Contains(v, "%{") {
			return v, nil
		}
		var (
			out any
			err error
		)
		inv.with(NodeInterpolate, fmt.Sprintf("Interpolation on \"%s\"", v), func() {
			out, err = inv.interpolateString(v, allowMethods)
			if err == nil {
				inv.reportResult(out)
			}
		})
		return out, err
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			ie, err := inv.Interpolate(e, allowMethods)
			if err != nil {
				return nil, err
			}
			out[i] = ie
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			ie, err := inv.Interpolate(e, allowMethods)
			if err != nil {
				return nil, err
			}
			out[k] = ie
		}
		return out, nil
	default:
		return value, nil
	}
}

func (inv *Invocation) interpolateString(s string, allowMethods bool) (any, error) {
	isWhole := interpolationWhole.MatchString(s)

	var firstErr error
	var aliasValue any
	aliased := false

	out := interpolationSpan.ReplaceAllStringFunc(s, func(span string) string {
		if firstErr != nil {
			return ""
		}
		expr := strings.TrimSpace(span[2 : len(span)-1])
		if expr == "" || expr == "::" || quotedEmpty.MatchString(expr) {
			return ""
		}

		method, arg := "scope", expr
		if m := interpolationMethod.FindStringSubmatch(expr); m != nil {
			method, arg = m[1], m[2]+m[3]
			if !allowMethods {
				firstErr = NewSyntaxError(fmt.Sprintf("Interpolation using method syntax is not allowed in this context: %s", span), nil)
				return ""
			}
		} else if strings.Contains(expr, "(") && strings.HasSuffix(expr, ")") {
			name := expr[:strings.Index(expr, "(")]
			if validMethodName(name) {
				firstErr = NewSyntaxError(fmt.Sprintf("Syntax error in string: %s", span), nil)
				return ""
			}
		}

		var (
			v   any
			err error
		)
		switch method {
		case "scope":
			v, err = inv.interpolateScope(arg, span)
		case "lookup", "hiera":
			v, err = inv.interpolateLookup(arg, span)
		case "alias":
			if !isWhole {
				err = NewSyntaxError(fmt.Sprintf("'alias' interpolation is only permitted if the expression is equal to the entire string: %s", s), nil)
				break
			}
			v, err = inv.interpolateLookup(arg, span)
			aliasValue, aliased = v, true
		case "literal":
			v = arg
		default:
			err = NewSyntaxError(fmt.Sprintf("Unknown interpolation method '%s'", method), nil).WithCode(ErrCodeUnknownMethod)
		}
		if err != nil {
			firstErr = err
			return ""
		}
		return types.Stringify(v)
	})

	if firstErr != nil {
		return nil, firstErr
	}
	if aliased {
		return aliasValue, nil
	}
	return out, nil
}

func validMethodName(name string) bool {
	switch name {
	case "scope", "lookup", "hiera", "alias", "literal":
		return true
	}
	return false
}

func (inv *Invocation) parseInterpolationKey(expr, span string) (Key, error) {
	key, err := ParseKey(strings.TrimPrefix(expr, "::"))
	if err != nil {
		return Key{}, NewSyntaxError(fmt.Sprintf("Syntax error in string: %s", span), nil)
	}
	return key, nil
}

// interpolateScope resolves a variable reference. Missing variables yield nil.
func (inv *Invocation) interpolateScope(expr, span string) (any, error) {
	key, err := inv.parseInterpolationKey(expr, span)
	if err != nil {
		return nil, err
	}

	var (
		value any
		found bool
	)
	inv.with(NodeScope, fmt.Sprintf("Global Scope, variable \"%s\"", key.Root()), func() {
		value, found = inv.scopeLookup(key.Root())
		if found {
			inv.reportFound(value)
		} else {
			inv.reportNotFound()
		}
	})
	if !found {
		return nil, nil
	}
	value, found, err = key.Dig(inv, value)
	if err != nil || !found {
		return nil, err
	}
	return value, nil
}

// interpolateLookup performs a nested lookup through the adapter. Keys that
// are not found yield nil.
func (inv *Invocation) interpolateLookup(expr, span string) (any, error) {
	key, err := inv.parseInterpolationKey(expr, span)
	if err != nil {
		return nil, err
	}
	v, found, err := inv.adapter.lookupKey(key, inv.linked(), nil)
	if err != nil || !found {
		return nil, err
	}
	return v, nil
}

package types

import (
	"fmt"
	"strconv"
)

// Sensitive wraps a value that must not be revealed in logs, explanations or
// rendered output. Its text, JSON and YAML forms are redacted.
type Sensitive struct {
	Value any
}

// NewSensitive wraps v.
func NewSensitive(v any) Sensitive {
	return Sensitive{Value: v}
}

// Unwrap returns the wrapped value.
func (s Sensitive) Unwrap() any {
	return s.Value
}

// String implements fmt.Stringer without revealing the value.
func (s Sensitive) String() string {
	return "Sensitive [value redacted]"
}

// MarshalJSON renders the redacted form.
func (s Sensitive) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// MarshalYAML renders the redacted form.
func (s Sensitive) MarshalYAML() (any, error) {
	return s.String(), nil
}

// TypeRef is a reference to a named type carried as data.
type TypeRef struct {
	Expr string
}

// String implements fmt.Stringer.
func (t TypeRef) String() string {
	return t.Expr
}

// MarshalJSON renders the type expression as a string.
func (t TypeRef) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(t.Expr)), nil
}

// MarshalYAML renders the type expression.
func (t TypeRef) MarshalYAML() (any, error) {
	return t.Expr, nil
}

// Describe returns the type name of v as used in error messages.
func Describe(v any) string {
	switch t := v.(type) {
	case nil:
		return "Undef"
	case string:
		return "String"
	case bool:
		return "Boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "Integer"
	case float32, float64:
		return "Float"
	case []any:
		return "Array"
	case map[string]any:
		return "Hash"
	case Sensitive:
		return "Sensitive"
	case TypeRef:
		return "Type"
	default:
		return fmt.Sprintf("%T", t)
	}
}

package types

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// System asserts values against type expressions and constructs values of a
// type from raw data.
type System interface {
	// Assert returns v when it matches the type expression.
	Assert(v any, typeExpr string) (any, error)

	// Construct converts v into a value of the given type.
	Construct(typeExpr string, v any, args ...any) (any, error)
}

// MismatchError reports a value that does not match a type expression.
type MismatchError struct {
	Expected string
	Actual   string
	Err      error
}

// Error implements the error interface.
func (e *MismatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("expects a value of type %s, got %s: %v", e.Expected, e.Actual, e.Err)
	}
	return fmt.Sprintf("expects a value of type %s, got %s", e.Expected, e.Actual)
}

// Unwrap returns the underlying validation error.
func (e *MismatchError) Unwrap() error {
	return e.Err
}

// IsMismatch returns true if err is or wraps a MismatchError.
func IsMismatch(err error) bool {
	var e *MismatchError
	return errors.As(err, &e)
}

// CUESystem implements System by compiling type expressions into CUE
// constraints and unifying values with them.
type CUESystem struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	parsed  map[string]*Type
	mu      sync.Mutex
}

// NewSystem creates a CUE backed type system.
func NewSystem() *CUESystem {
	return &CUESystem{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
		parsed:  make(map[string]*Type),
	}
}

// Parse parses expr, caching the result.
func (s *CUESystem) Parse(expr string) (*Type, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parseLocked(expr)
}

func (s *CUESystem) parseLocked(expr string) (*Type, error) {
	if t, ok := s.parsed[expr]; ok {
		return t, nil
	}
	t, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	s.parsed[expr] = t
	return t, nil
}

// Assert implements System.
func (s *CUESystem) Assert(v any, typeExpr string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.parseLocked(typeExpr)
	if err != nil {
		return nil, err
	}
	if err := s.check(v, t); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *CUESystem) check(v any, t *Type) error {
	mismatch := func(err error) error {
		return &MismatchError{Expected: t.String(), Actual: Describe(v), Err: err}
	}

	switch t.Name {
	case "Any":
		return nil
	case "Sensitive":
		sv, ok := v.(Sensitive)
		if !ok {
			return mismatch(nil)
		}
		if len(t.Params) == 1 {
			return s.check(sv.Unwrap(), t.Params[0])
		}
		return nil
	case "Type":
		if _, ok := v.(TypeRef); !ok {
			return mismatch(nil)
		}
		return nil
	case "Optional":
		if v == nil {
			return nil
		}
		if len(t.Params) == 1 {
			return s.check(v, t.Params[0])
		}
		return nil
	case "Variant":
		for _, p := range t.Params {
			if s.check(v, p) == nil {
				return nil
			}
		}
		return mismatch(nil)
	}

	if containsWrapper(v) {
		return mismatch(nil)
	}
	if t.Name == "Data" {
		return nil
	}

	schema, err := s.schema(t)
	if err != nil {
		return err
	}
	val := s.ctx.Encode(v)
	if err := val.Err(); err != nil {
		return mismatch(err)
	}
	if err := schema.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return mismatch(err)
	}
	return nil
}

// schema returns the compiled CUE constraint for t.
func (s *CUESystem) schema(t *Type) (cue.Value, error) {
	key := t.String()
	if sch, ok := s.schemas[key]; ok {
		return sch, nil
	}

	imports := map[string]bool{}
	expr, err := cueExpr(t, imports)
	if err != nil {
		return cue.Value{}, err
	}

	var src strings.Builder
	var names []string
	for name := range imports {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&src, "import %q\n", name)
	}
	fmt.Fprintf(&src, "#T: %s\n", expr)

	compiled := s.ctx.CompileString(src.String())
	if err := compiled.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("failed to compile constraint for %s: %w", key, err)
	}
	sch := compiled.LookupPath(cue.ParsePath("#T"))
	s.schemas[key] = sch
	return sch, nil
}

func cueExpr(t *Type, imports map[string]bool) (string, error) {
	param := func(i int) (string, error) {
		if i < len(t.Params) {
			return cueExpr(t.Params[i], imports)
		}
		return "_", nil
	}

	switch t.Name {
	case "Any", "Data", "Type", "Sensitive":
		return "_", nil
	case "NotUndef":
		return "!=null", nil
	case "Undef":
		return "null", nil
	case "Scalar", "ScalarData":
		return "(string | number | bool)", nil
	case "Boolean":
		return "bool", nil
	case "Numeric":
		return boundedNumber("number", t.Bounds), nil
	case "Integer":
		return boundedNumber("int", t.Bounds), nil
	case "Float":
		return boundedNumber("float", t.Bounds), nil
	case "String":
		if len(t.Bounds) == 0 {
			return "string", nil
		}
		imports["strings"] = true
		parts := []string{"string", fmt.Sprintf("strings.MinRunes(%d)", t.Bounds[0])}
		if len(t.Bounds) > 1 {
			parts = append(parts, fmt.Sprintf("strings.MaxRunes(%d)", t.Bounds[1]))
		}
		return "(" + strings.Join(parts, " & ") + ")", nil
	case "Enum":
		if len(t.Values) == 0 {
			return "string", nil
		}
		quoted := make([]string, len(t.Values))
		for i, v := range t.Values {
			quoted[i] = strconv.Quote(v)
		}
		return "(" + strings.Join(quoted, " | ") + ")", nil
	case "Array":
		elem, err := param(0)
		if err != nil {
			return "", err
		}
		expr := "[...(" + elem + ")]"
		if len(t.Bounds) > 0 {
			imports["list"] = true
			expr = fmt.Sprintf("(%s & list.MinItems(%d)", expr, t.Bounds[0])
			if len(t.Bounds) > 1 {
				expr += fmt.Sprintf(" & list.MaxItems(%d)", t.Bounds[1])
			}
			expr += ")"
		}
		return expr, nil
	case "Hash":
		if len(t.Params) == 0 {
			return "{...}", nil
		}
		value, err := param(len(t.Params) - 1)
		if err != nil {
			return "", err
		}
		return "{[string]: (" + value + ")}", nil
	case "Optional":
		inner, err := param(0)
		if err != nil {
			return "", err
		}
		return "(null | (" + inner + "))", nil
	case "Variant":
		var alts []string
		for i := range t.Params {
			alt, err := param(i)
			if err != nil {
				return "", err
			}
			alts = append(alts, "("+alt+")")
		}
		if len(alts) == 0 {
			return "_|_", nil
		}
		return "(" + strings.Join(alts, " | ") + ")", nil
	default:
		return "", fmt.Errorf("type %s has no constraint form", t.Name)
	}
}

func boundedNumber(kind string, bounds []int64) string {
	parts := []string{kind}
	if len(bounds) > 0 {
		parts = append(parts, fmt.Sprintf(">=%d", bounds[0]))
	}
	if len(bounds) > 1 {
		parts = append(parts, fmt.Sprintf("<=%d", bounds[1]))
	}
	if len(parts) == 1 {
		return kind
	}
	return "(" + strings.Join(parts, " & ") + ")"
}

func containsWrapper(v any) bool {
	switch t := v.(type) {
	case Sensitive, TypeRef:
		return true
	case []any:
		for _, e := range t {
			if containsWrapper(e) {
				return true
			}
		}
	case map[string]any:
		for _, e := range t {
			if containsWrapper(e) {
				return true
			}
		}
	}
	return false
}

package types

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Type is a parsed type expression such as "Hash[String, Array[Integer]]".
type Type struct {
	// Name is the base type name, e.g. "Array".
	Name string

	// Params are the type parameters.
	Params []*Type

	// Bounds holds numeric parameters (Integer[1, 5], String[1]).
	Bounds []int64

	// Values holds the string parameters of Enum.
	Values []string
}

// Known base type names.
var knownTypes = map[string]bool{
	"Any": true, "Data": true, "Scalar": true, "ScalarData": true,
	"String": true, "Integer": true, "Float": true, "Numeric": true,
	"Boolean": true, "Undef": true, "Array": true, "Hash": true,
	"Optional": true, "Variant": true, "Enum": true, "Sensitive": true,
	"NotUndef": true, "Type": true,
}

// String renders the type back into its expression form.
func (t *Type) String() string {
	var params []string
	for _, p := range t.Params {
		params = append(params, p.String())
	}
	for _, b := range t.Bounds {
		params = append(params, strconv.FormatInt(b, 10))
	}
	for _, v := range t.Values {
		params = append(params, "'"+v+"'")
	}
	if len(params) == 0 {
		return t.Name
	}
	return t.Name + "[" + strings.Join(params, ", ") + "]"
}

// Parse parses a type expression.
func Parse(expr string) (*Type, error) {
	p := &typeParser{src: expr}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected %q", p.src[p.pos:])
	}
	return t, nil
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) errorf(format string, args ...any) error {
	return fmt.Errorf("invalid type expression '%s': %s", p.src, fmt.Sprintf(format, args...))
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *typeParser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *typeParser) parseType() (*Type, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && (unicode.IsLetter(rune(p.src[p.pos])) || unicode.IsDigit(rune(p.src[p.pos]))) {
		p.pos++
	}
	name := p.src[start:p.pos]
	if name == "" {
		return nil, p.errorf("type name expected at offset %d", start)
	}
	if !knownTypes[name] {
		return nil, p.errorf("unknown type '%s'", name)
	}
	t := &Type{Name: name}

	p.skipSpace()
	if p.peek() != '[' {
		return t, nil
	}
	p.pos++
	for {
		p.skipSpace()
		switch c := p.peek(); {
		case c == '\'' || c == '"':
			s, err := p.parseString(c)
			if err != nil {
				return nil, err
			}
			t.Values = append(t.Values, s)
		case c == '-' || (c >= '0' && c <= '9'):
			n, err := p.parseInt()
			if err != nil {
				return nil, err
			}
			t.Bounds = append(t.Bounds, n)
		case c == 0:
			return nil, p.errorf("unterminated parameter list")
		default:
			param, err := p.parseType()
			if err != nil {
				return nil, err
			}
			t.Params = append(t.Params, param)
		}
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return t, nil
		default:
			return nil, p.errorf("expected ',' or ']' at offset %d", p.pos)
		}
	}
}

func (p *typeParser) parseString(quote byte) (string, error) {
	p.pos++
	end := strings.IndexByte(p.src[p.pos:], quote)
	if end < 0 {
		return "", p.errorf("unterminated string")
	}
	s := p.src[p.pos : p.pos+end]
	p.pos += end + 1
	return s, nil
}

func (p *typeParser) parseInt() (int64, error) {
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	n, err := strconv.ParseInt(p.src[start:p.pos], 10, 64)
	if err != nil {
		return 0, p.errorf("bad integer %q", p.src[start:p.pos])
	}
	return n, nil
}

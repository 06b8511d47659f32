package lookup

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var numericSegment = regexp.MustCompile(`^-?[0-9]+$`)

// Key is a parsed lookup key. The first segment is the root key, the
// remaining segments address a value inside the value found for the root.
type Key struct {
	raw        string
	segments   []any
	moduleName string
}

// ParseKey parses a dotted key such as `a.b."c.d".0`.
//
// Segments are separated by dots outside of single or double quotes.
// Unquoted segments are trimmed and unquoted integer segments after the root
// become array indexes.
func ParseKey(raw string) (Key, error) {
	segments, err := splitKey(raw)
	if err != nil {
		return Key{}, err
	}
	root := segments[0].(string)
	if numericSegment.MatchString(root) {
		return Key{}, NewSyntaxError(fmt.Sprintf("lookup of key '%s' is not allowed, the root key cannot be numeric", raw), nil).WithKey(raw)
	}
	return Key{raw: raw, segments: segments, moduleName: moduleNameOf(root)}, nil
}

// MustParseKey is like ParseKey but panics on error. Intended for constants
// and tests.
func MustParseKey(raw string) Key {
	k, err := ParseKey(raw)
	if err != nil {
		panic(err)
	}
	return k
}

func moduleNameOf(root string) string {
	root = strings.TrimPrefix(root, "::")
	if i := strings.Index(root, "::"); i > 0 {
		return root[:i]
	}
	return ""
}

// String returns the key as given to ParseKey.
func (k Key) String() string {
	return k.raw
}

// Root returns the root segment.
func (k Key) Root() string {
	if len(k.segments) == 0 {
		return ""
	}
	return k.segments[0].(string)
}

// Segments returns the root followed by all sub-key segments.
func (k Key) Segments() []any {
	return k.segments
}

// SubSegments returns the segments after the root.
func (k Key) SubSegments() []any {
	if len(k.segments) < 2 {
		return nil
	}
	return k.segments[1:]
}

// ModuleName returns the namespace of the root key, or "" when there is none.
func (k Key) ModuleName() string {
	return k.moduleName
}

// RootKey returns a key consisting of the root segment only.
func (k Key) RootKey() Key {
	if len(k.segments) < 2 {
		return k
	}
	root := k.Root()
	return Key{raw: segmentsText([]any{root}), segments: []any{root}, moduleName: k.moduleName}
}

// Dig returns the value addressed by the sub-key segments of k inside the
// value found for the root key.
func (k Key) Dig(inv *Invocation, value any) (any, bool, error) {
	subs := k.SubSegments()
	if len(subs) == 0 {
		return value, true, nil
	}
	return inv.subLookup(k, value, subs)
}

// Undig wraps a value found for the full key back into the root shape.
func (k Key) Undig(value any) any {
	return Undig(value, k.SubSegments())
}

func splitKey(raw string) ([]any, error) {
	syntaxError := func() error {
		return NewSyntaxError(fmt.Sprintf("Syntax error in string: %s", raw), nil).WithKey(raw)
	}

	var segments []any
	s := raw
	i := 0
	skipBlank := func() {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
	}

	for {
		skipBlank()
		if i >= len(s) {
			return nil, syntaxError()
		}

		var (
			seg    string
			quoted bool
		)
		if c := s[i]; c == '\'' || c == '"' {
			end := strings.IndexByte(s[i+1:], c)
			if end < 0 {
				return nil, syntaxError()
			}
			seg = s[i+1 : i+1+end]
			if seg == "" {
				return nil, syntaxError()
			}
			i += end + 2
			skipBlank()
			quoted = true
		} else {
			j := i
			for j < len(s) && s[j] != '.' && s[j] != '\'' && s[j] != '"' {
				j++
			}
			if j < len(s) && s[j] != '.' {
				return nil, syntaxError()
			}
			seg = strings.TrimSpace(s[i:j])
			if seg == "" {
				return nil, syntaxError()
			}
			i = j
		}

		if !quoted && len(segments) > 0 && numericSegment.MatchString(seg) {
			n, err := strconv.Atoi(seg)
			if err != nil {
				return nil, syntaxError()
			}
			segments = append(segments, n)
		} else {
			segments = append(segments, seg)
		}

		if i >= len(s) {
			return segments, nil
		}
		if s[i] != '.' {
			return nil, syntaxError()
		}
		i++
	}
}

// FormatKey renders segments as a key string that ParseKey turns back into
// the same segments. Segments that no key string can express, such as an empty
// string or a string holding both quote characters, are a syntax error.
func FormatKey(segments []any) (string, error) {
	if len(segments) == 0 {
		return "", NewSyntaxError("a key must have at least one segment", nil)
	}
	parts := make([]string, len(segments))
	for i, seg := range segments {
		switch s := seg.(type) {
		case int:
			if i == 0 {
				return "", NewSyntaxError(fmt.Sprintf("the root key cannot be numeric, got %d", s), nil)
			}
			parts[i] = strconv.Itoa(s)
		case string:
			if i == 0 && numericSegment.MatchString(s) {
				return "", NewSyntaxError(fmt.Sprintf("the root key cannot be numeric, got %s", s), nil)
			}
			q, err := quoteSegment(s, i > 0)
			if err != nil {
				return "", err
			}
			parts[i] = q
		default:
			return "", NewSyntaxError(fmt.Sprintf("a key segment must be a string or an integer, got %T", seg), nil)
		}
	}
	return strings.Join(parts, "."), nil
}

// segmentsText renders segments for messages, also when FormatKey rejects them.
func segmentsText(segments []any) string {
	if text, err := FormatKey(segments); err == nil {
		return text
	}
	parts := make([]string, len(segments))
	for i, seg := range segments {
		parts[i] = fmt.Sprint(seg)
	}
	return strings.Join(parts, ".")
}

func quoteSegment(s string, numericMatters bool) (string, error) {
	if s == "" {
		return "", NewSyntaxError("a key segment cannot be empty", nil)
	}
	needsQuote := strings.ContainsAny(s, `.'"`) ||
		strings.TrimSpace(s) != s ||
		(numericMatters && numericSegment.MatchString(s))
	if !needsQuote {
		return s, nil
	}
	switch {
	case strings.Contains(s, `"`) && strings.Contains(s, "'"):
		return "", NewSyntaxError(fmt.Sprintf("key segment %s contains both single and double quotes", strconv.Quote(s)), nil)
	case strings.Contains(s, `"`):
		return "'" + s + "'", nil
	default:
		return `"` + s + `"`, nil
	}
}

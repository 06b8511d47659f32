package lookup

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of a lookup error.
type ErrorClass string

const (
	// ErrorClassNotFound indicates that no value was found and no default applied.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassRecursion indicates a key that transitively depends on itself.
	ErrorClassRecursion ErrorClass = "recursion"

	// ErrorClassConfiguration indicates a malformed hierarchy configuration,
	// unknown function, unknown merge strategy or invalid lookup options.
	ErrorClassConfiguration ErrorClass = "configuration"

	// ErrorClassDataShape indicates data returned by a backend that violates
	// the key or value contract.
	ErrorClassDataShape ErrorClass = "data_shape"

	// ErrorClassSyntax indicates a malformed key or interpolation expression.
	ErrorClassSyntax ErrorClass = "syntax"

	// ErrorClassTypeMismatch indicates a value of an unexpected type, either
	// while digging into sub-keys or when asserting the expected type.
	ErrorClassTypeMismatch ErrorClass = "type_mismatch"

	// ErrorClassConversion indicates a failed convert_to conversion.
	ErrorClassConversion ErrorClass = "conversion"

	// ErrorClassMerge indicates values that the merge strategy cannot combine.
	ErrorClassMerge ErrorClass = "merge"
)

// LookupError is the error type returned by all lookup operations.
// nolint:revive // LookupError is intentionally named to match the package domain
type LookupError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Key is the key being looked up when the error occurred, if any.
	Key string `json:"key,omitempty"`

	// Location is the configuration file or data location involved, if any.
	Location string `json:"location,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *LookupError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Location != "" {
		fmt.Fprintf(&b, " (location=%s)", e.Location)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *LookupError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *LookupError) Is(target error) bool {
	t, ok := target.(*LookupError)
	if !ok {
		return false
	}
	return e.Class == t.Class && (t.Code == "" || e.Code == t.Code)
}

func newError(class ErrorClass, code, message string, err error) *LookupError {
	return &LookupError{Class: class, Code: code, Message: message, Err: err}
}

// NewNotFoundError creates the error returned when none of the names produced a value.
func NewNotFoundError(names []string) *LookupError {
	var msg string
	if len(names) == 1 {
		msg = fmt.Sprintf("Function lookup() did not find a value for the name '%s'", names[0])
	} else {
		msg = fmt.Sprintf("Function lookup() did not find a value for any of the names [%s]", quoteJoin(names))
	}
	e := newError(ErrorClassNotFound, ErrCodeKeyNotFound, msg, nil)
	if len(names) > 0 {
		e.Key = names[0]
	}
	return e
}

// NewRecursionError creates the error for a key found on the recursion stack.
func NewRecursionError(stack []string) *LookupError {
	msg := fmt.Sprintf("Recursive lookup detected in [%s]", strings.Join(stack, ", "))
	e := newError(ErrorClassRecursion, ErrCodeRecursiveLookup, msg, nil)
	if len(stack) > 0 {
		e.Key = stack[len(stack)-1]
	}
	return e
}

// NewConfigurationError creates a configuration error.
func NewConfigurationError(message string, err error) *LookupError {
	return newError(ErrorClassConfiguration, ErrCodeInvalidConfig, message, err)
}

// NewDataShapeError creates a data shape error.
func NewDataShapeError(message string) *LookupError {
	return newError(ErrorClassDataShape, ErrCodeDataShape, message, nil)
}

// NewSyntaxError creates a syntax error.
func NewSyntaxError(message string, err error) *LookupError {
	return newError(ErrorClassSyntax, ErrCodeSyntax, message, err)
}

// NewTypeMismatchError creates a type mismatch error.
func NewTypeMismatchError(message string, err error) *LookupError {
	return newError(ErrorClassTypeMismatch, ErrCodeTypeMismatch, message, err)
}

// NewConversionError creates a convert_to failure.
func NewConversionError(message string, err error) *LookupError {
	return newError(ErrorClassConversion, ErrCodeConversion, message, err)
}

// NewMergeError wraps a merge failure.
func NewMergeError(err error) *LookupError {
	return newError(ErrorClassMerge, ErrCodeMerge, "merge failed", err)
}

// WithKey adds key context to an error.
func (e *LookupError) WithKey(key string) *LookupError {
	e.Key = key
	return e
}

// WithLocation adds location context to an error.
func (e *LookupError) WithLocation(location string) *LookupError {
	e.Location = location
	return e
}

// WithCode sets the error code.
func (e *LookupError) WithCode(code string) *LookupError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *LookupError) WithDetail(key string, value interface{}) *LookupError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func classOf(err error) ErrorClass {
	var e *LookupError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// IsNotFound returns true if the error reports a key without value or default.
func IsNotFound(err error) bool {
	return classOf(err) == ErrorClassNotFound
}

// IsRecursion returns true if the error reports a recursive lookup.
func IsRecursion(err error) bool {
	return classOf(err) == ErrorClassRecursion
}

// IsConfiguration returns true if the error is a configuration error.
func IsConfiguration(err error) bool {
	return classOf(err) == ErrorClassConfiguration
}

// IsDataShape returns true if the error reports invalid backend data.
func IsDataShape(err error) bool {
	return classOf(err) == ErrorClassDataShape
}

// IsSyntax returns true if the error reports a malformed key or expression.
func IsSyntax(err error) bool {
	return classOf(err) == ErrorClassSyntax
}

// IsTypeMismatch returns true if the error reports an unexpected value type.
func IsTypeMismatch(err error) bool {
	return classOf(err) == ErrorClassTypeMismatch
}

// IsConversion returns true if the error reports a failed convert_to.
func IsConversion(err error) bool {
	return classOf(err) == ErrorClassConversion
}

// Common error codes.
const (
	ErrCodeKeyNotFound        = "KEY_NOT_FOUND"
	ErrCodeRecursiveLookup    = "RECURSIVE_LOOKUP"
	ErrCodeInvalidConfig      = "INVALID_CONFIG"
	ErrCodeUnsupportedVersion = "UNSUPPORTED_VERSION"
	ErrCodeUnknownFunction    = "UNKNOWN_FUNCTION"
	ErrCodeFunctionFailed     = "FUNCTION_FAILED"
	ErrCodeInvalidOptions     = "INVALID_LOOKUP_OPTIONS"
	ErrCodeUnknownMethod      = "UNKNOWN_INTERPOLATION_METHOD"
	ErrCodeDataShape          = "DATA_SHAPE"
	ErrCodeSyntax             = "SYNTAX"
	ErrCodeTypeMismatch       = "TYPE_MISMATCH"
	ErrCodeConversion         = "CONVERSION_FAILED"
	ErrCodeMerge              = "MERGE_FAILED"
	ErrCodeReservedKey        = "RESERVED_KEY"
)

func quoteJoin(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	return strings.Join(quoted, ", ")
}

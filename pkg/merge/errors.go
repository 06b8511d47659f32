package merge

import "errors"

// Error is returned for unknown strategies, invalid options, and values that a
// strategy cannot combine.
type Error struct {
	// Strategy is the name of the strategy involved, if known.
	Strategy string

	// Message is the human-readable error message.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Strategy == "" {
		return "merge: " + e.Message
	}
	return "merge strategy " + e.Strategy + ": " + e.Message
}

// IsMergeError returns true if err is or wraps a merge error.
func IsMergeError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

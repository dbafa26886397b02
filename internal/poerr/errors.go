// Package poerr defines the core error taxonomy shared across the
// engine, store, registry, and universal capabilities.
package poerr

import "fmt"

// Kind classifies an error for logging and for deciding whether a turn
// recovers (tool-result) or aborts (turn boundary).
type Kind string

const (
	KindConfig       Kind = "config"        // malformed frontmatter, duplicate name, unreadable file
	KindResolution   Kind = "resolution"    // capability name unknown at dispatch
	KindCapability   Kind = "capability"    // primitive/universal raised while executing
	KindLLM          Kind = "llm"           // transport/decode/auth failure from the adapter
	KindStore        Kind = "store"         // I/O or constraint failure
	KindHumanCancel  Kind = "human_cancel"  // ask_human rejected/cancelled
	KindCancelled    Kind = "cancelled"     // cooperative cancellation
	KindNotFound     Kind = "not_found"     // generic lookup miss
	KindInvalidInput Kind = "invalid_input" // bad arguments from a caller
)

// Error is the uniform error type used across the core. It carries a
// Kind so callers can branch (recoverable tool-result vs turn-aborting)
// without string matching.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Wrapped: err}
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Wrapped)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Wrapped }

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	if ok := asError(err, &pe); ok {
		return pe.Kind == kind
	}
	return false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if pe, ok := err.(*Error); ok {
			*target = pe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Recoverable reports whether the error should be converted into a
// tool-result string (turn continues) as opposed to aborting the turn.
func (e *Error) Recoverable() bool {
	switch e.Kind {
	case KindResolution, KindCapability, KindInvalidInput, KindNotFound:
		return true
	default:
		return false
	}
}

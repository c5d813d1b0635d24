package api

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can pick the right affordance:
// a log-in prompt, a retry button, or nothing at all.
type Kind int

const (
	KindUnknown Kind = iota
	// KindAuthRequired means there is no usable credential. It is never
	// conflated with a transient network failure; callers show a log-in
	// affordance, not an error state.
	KindAuthRequired
	// KindNetwork is a transport-level failure: the request never produced
	// an HTTP response.
	KindNetwork
	// KindLoad is a non-2xx response other than 401/403.
	KindLoad
	// KindValidation is a rejected outbound body. Empty-input cases are
	// silently ignored and never surface this kind to the user.
	KindValidation
	// KindStateConflict is a stale response discard or a toggle rejected
	// because one is already in flight. Logged for diagnostics, never
	// shown to the user.
	KindStateConflict
)

func (k Kind) String() string {
	switch k {
	case KindAuthRequired:
		return "auth_required"
	case KindNetwork:
		return "network"
	case KindLoad:
		return "load"
	case KindValidation:
		return "validation"
	case KindStateConflict:
		return "state_conflict"
	default:
		return "unknown"
	}
}

// An Error carries a Kind alongside the wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errf builds a classified error in fmt.Errorf style.
func Errf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the classification of err, unwrapping as needed.
// Unclassified errors report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsAuthRequired reports whether err means the user must log in.
func IsAuthRequired(err error) bool { return KindOf(err) == KindAuthRequired }

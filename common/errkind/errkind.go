// Package errkind classifies failures crossing the relay's component
// boundaries.
//
// Every error that leaves a platform adapter, the language model gateway, the
// configuration layer or the inbound payload parsers is wrapped in an *Error
// carrying one of four kinds. Callers branch on the kind (for example the
// webhook boundary answers 400 for Validation) and use errors.As to reach the
// detail types AuthError and UpstreamError.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is the coarse failure class.
type Kind string

const (
	// Config means a credential or required setting is missing. Fatal for the
	// operation, not for the process.
	Config Kind = "config"
	// Adapter means a downstream platform API rejected the call. The reply is
	// considered undelivered.
	Adapter Kind = "adapter"
	// Gateway means the model call failed or returned non-success.
	Gateway Kind = "gateway"
	// Validation means an inbound payload could not become a canonical
	// message.
	Validation Kind = "validation"
)

// Error wraps an underlying error with its kind and the operation that
// produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with kind and op. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf is E with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Is reports whether any *Error in err's chain has the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" when
// err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// AuthError reports a missing credential for an external service.
type AuthError struct {
	Service string
}

func (e *AuthError) Error() string {
	return e.Service + ": no credential configured"
}

// UpstreamError reports a non-success HTTP response from an external service.
type UpstreamError struct {
	Service string
	Status  int
	Body    string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: upstream status %d", e.Service, e.Status)
	}
	return fmt.Sprintf("%s: upstream status %d: %s", e.Service, e.Status, e.Body)
}

// StatusOf returns the upstream HTTP status carried in err's chain, or 0.
func StatusOf(err error) int {
	var up *UpstreamError
	if errors.As(err, &up) {
		return up.Status
	}
	return 0
}

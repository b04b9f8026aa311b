package backend

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a repository failure. The mapping from HTTP status
// to kind happens exactly once, inside the REST client; callers switch on
// the kind instead of sniffing error strings.
type ErrorKind int

const (
	// KindHTTP is a non-2xx response not otherwise classified.
	KindHTTP ErrorKind = iota
	// KindUnauthorized is a missing or rejected token (401/403).
	KindUnauthorized
	// KindNotFound is a 404 for an entity that should exist.
	KindNotFound
	// KindUnsupported is a capability rejection for an optional action.
	KindUnsupported
	// KindNetwork is a transport-level failure; no HTTP response arrived.
	KindNetwork
)

// String returns the kind name for logs.
func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindUnsupported:
		return "unsupported"
	case KindNetwork:
		return "network"
	default:
		return "http"
	}
}

// Error is a typed repository failure.
type Error struct {
	Kind    ErrorKind
	Status  int    // HTTP status code, 0 for network failures
	Message string // server-provided message when available
	Err     error  // underlying transport error for network failures
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Kind == KindNetwork && e.Err != nil:
		return fmt.Sprintf("network error: %v", e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
	default:
		return fmt.Sprintf("%s (status %d)", e.Kind, e.Status)
	}
}

// Unwrap returns the underlying error for error chain support.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a typed repository error.
func NewError(kind ErrorKind, status int, message string) *Error {
	return &Error{Kind: kind, Status: status, Message: message}
}

// NewNetworkError wraps a transport failure.
func NewNetworkError(err error) *Error {
	return &Error{Kind: KindNetwork, Err: err}
}

// kindOf extracts the kind from an error chain, or KindHTTP if untyped.
func kindOf(err error) (ErrorKind, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind, true
	}
	return KindHTTP, false
}

// IsUnauthorized reports whether err is an auth rejection.
func IsUnauthorized(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUnauthorized
}

// IsNotFound reports whether err is a missing-entity response.
func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

// IsUnsupported reports whether err is a capability rejection.
func IsUnsupported(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUnsupported
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNetwork
}

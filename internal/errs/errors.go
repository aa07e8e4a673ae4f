// Package errs provides the unified error type used across all of SchemaBridge.
//
// Every subsystem (connection store, mapping resolver, engine adapters, file
// store, …) wraps its native errors into *errs.Error before returning them to
// callers. Callers use the Is* predicates to handle errors without importing
// driver-specific packages.
//
// Usage:
//
//	// In a store, wrap native errors:
//	return errs.Wrap(errs.ErrKindQueryFailed, "failed to load connection", err)
//
//	// In a handler, check the error kind:
//	if errs.IsNotFound(err) {
//	    http.Error(w, "not found", http.StatusNotFound)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
// All backends (Oracle, SQL Server, MySQL, Postgres, SQLite, MinIO, …) map
// their native errors to one of these kinds, giving callers a single
// consistent API.
type ErrKind int

const (
	ErrKindUnknown              ErrKind = iota
	ErrKindNotFound                     // no rows, no record, no object
	ErrKindConnectionFailed             // cannot reach the backend
	ErrKindTimeout                      // context deadline / cancellation
	ErrKindQueryFailed                  // SQL or storage operation error
	ErrKindInvalidInput                 // bad arguments from the caller
	ErrKindPermissionDenied             // access denied / auth failure
	ErrKindConfigurationMissing         // no default/active connection, no schema
	ErrKindMappingNotFound              // strict-mode resolution miss
	ErrKindDriverNotInstalled           // engine client library absent at runtime
	ErrKindObjectNotFound               // table or column absent on the live engine
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindConfigurationMissing:
		return "configuration_missing"
	case ErrKindMappingNotFound:
		return "mapping_not_found"
	case ErrKindDriverNotInstalled:
		return "driver_not_installed"
	case ErrKindObjectNotFound:
		return "object_not_found"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all SchemaBridge subsystems.
// Producers create it; callers inspect it via the Is* predicates below.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a format string.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result
// (no rows, missing record, missing object, …).
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a backend operation failure
// (SQL execution error, storage I/O error, …).
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsConfigurationMissing reports whether err means there is no usable
// connection (or schema) configured.
func IsConfigurationMissing(err error) bool {
	return KindOf(err) == ErrKindConfigurationMissing
}

// IsMappingNotFound reports whether err is a strict-mode resolution miss.
func IsMappingNotFound(err error) bool {
	return KindOf(err) == ErrKindMappingNotFound
}

// IsDriverNotInstalled reports whether err means the engine client library
// is missing from the current runtime.
func IsDriverNotInstalled(err error) bool {
	return KindOf(err) == ErrKindDriverNotInstalled
}

// IsObjectNotFound reports whether err means a table or column does not exist
// on the live engine.
func IsObjectNotFound(err error) bool {
	return KindOf(err) == ErrKindObjectNotFound
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

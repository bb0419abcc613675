// Galleria - Self-Hosted Photo and Video Gallery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galleria

// Package apperr defines the typed errors used across the gallery core.
//
// Every error carries a Kind (what went wrong), a human-readable message,
// an optional wrapped source error, and a Status that tells callers
// whether retrying can ever help. Pipeline stages use the Status to decide
// between bounded retry (Temporary) and aborting a file (Permanent).
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind int

const (
	// Internal is the zero value: an unclassified failure.
	Internal Kind = iota

	// NotFound means the referenced record, snapshot or file does not exist.
	NotFound

	// PermissionDenied means the caller's share or token does not grant the operation.
	PermissionDenied

	// InvalidInput means the request itself is malformed.
	InvalidInput

	// Database means the embedded KV store failed.
	Database

	// IO means a filesystem or subprocess operation failed.
	IO

	// Serialization means encoding or decoding a stored payload failed.
	Serialization

	// Auth means token verification or share password validation failed.
	Auth

	// ReadOnlyMode means the instance rejects all mutations by configuration.
	ReadOnlyMode
)

// String returns the kind's name.
func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case PermissionDenied:
		return "permission_denied"
	case InvalidInput:
		return "invalid_input"
	case Database:
		return "database"
	case IO:
		return "io"
	case Serialization:
		return "serialization"
	case Auth:
		return "auth"
	case ReadOnlyMode:
		return "read_only_mode"
	default:
		return "internal"
	}
}

// Status tells callers whether an operation may succeed if retried.
type Status int

const (
	// Permanent failures will not succeed on retry.
	Permanent Status = iota

	// Temporary failures may succeed on retry (transient I/O, lock contention).
	Temporary
)

// Error is the concrete error type for the gallery core.
type Error struct {
	Kind    Kind
	Status  Status
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the source error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a permanent error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Status: Permanent, Message: message}
}

// Newf creates a permanent error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Status: Permanent, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps a source error with a kind and message. The wrapped error is
// reachable through errors.Unwrap.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Status: Permanent, Message: message, Err: err}
}

// Temp marks the error as temporary and returns it, for call-site chaining:
//
//	return apperr.Temp(apperr.Wrap(apperr.IO, "open source file", err))
func Temp(e *Error) *Error {
	e.Status = Temporary
	return e
}

// KindOf extracts the Kind from any error. Non-apperr errors report Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsTemporary reports whether err is a temporary apperr error. Retry loops
// use this to decide whether another attempt is worth making.
func IsTemporary(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Status == Temporary
	}
	return false
}

// IsNotFound reports whether err has kind NotFound.
func IsNotFound(err error) bool {
	return KindOf(err) == NotFound
}

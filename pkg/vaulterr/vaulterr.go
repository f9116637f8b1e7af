// Package vaulterr defines the vault's error taxonomy: a small, closed set
// of error kinds rather than a type per failure mode. Every layer of the
// vault — barrier, seal manager, token store, policy evaluator, secrets
// engines, lease manager, audit manager — returns errors wrapped with one
// of these kinds so the HTTP surface can map them to a status code without
// inspecting message text.
package vaulterr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of failure. Kinds are intentionally coarse:
// callers branch on Kind, never on the message.
type Kind string

const (
	Sealed             Kind = "sealed"
	NotInitialized     Kind = "not_initialized"
	AlreadyInitialized Kind = "already_initialized"
	AlreadyUnsealed    Kind = "already_unsealed"
	AlreadySealed      Kind = "already_sealed"
	InvalidConfig      Kind = "invalid_config"
	InvalidShare       Kind = "invalid_share"
	RecoveryFailed     Kind = "recovery_failed"
	RootKeyDecryption  Kind = "root_key_decryption"
	Crypto             Kind = "crypto"
	Storage            Kind = "storage"
	NotFound           Kind = "not_found"
	Denied             Kind = "denied"
	InvalidRequest     Kind = "invalid_request"
	BuiltIn            Kind = "built_in"
	Conflict           Kind = "conflict"
	Internal           Kind = "internal"
)

// Error is the vault's error type: a Kind plus a human-readable message
// and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and message to an underlying cause, preserving it for
// errors.Is/As and %w-style unwrapping.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err, defaulting to Internal if err is not
// (or does not wrap) a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

package ceremony

import (
	"errors"
	"fmt"
)

// Code identifies which bucket of the error taxonomy (spec §7) an error
// belongs to, so RPC handlers can translate it to a response without
// string-matching error text.
type Code string

const (
	CodeInput          Code = "INPUT"
	CodeAuth           Code = "AUTH"
	CodeNotFound       Code = "NOT_FOUND"
	CodePrecondition   Code = "PRECONDITION"
	CodeWorker         Code = "WORKER"
	CodeTransientStore Code = "TRANSIENT_STORE"
)

// Error is a structured, wrapped error carrying a stable Code.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(code Code, op string, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Err: fmt.Errorf(format, args...)}
}

// InputErrorf builds a non-retryable InputError (missing/malformed inputs or config).
func InputErrorf(op, format string, args ...any) error {
	return newErr(CodeInput, op, format, args...)
}

// AuthErrorf builds an AuthError (no principal, or wrong role).
func AuthErrorf(op, format string, args ...any) error {
	return newErr(CodeAuth, op, format, args...)
}

// NotFoundErrorf builds a NotFoundError: fatal to the invocation, store unchanged.
func NotFoundErrorf(op, format string, args ...any) error {
	return newErr(CodeNotFound, op, format, args...)
}

// PreconditionErrorf builds a PreconditionError: surfaced, no store mutation.
func PreconditionErrorf(op, format string, args ...any) error {
	return newErr(CodePrecondition, op, format, args...)
}

// WorkerErrorf builds a WorkerError: start/probe/command failure, classifies
// the contribution as invalid rather than aborting the handler.
func WorkerErrorf(op, format string, args ...any) error {
	return newErr(CodeWorker, op, format, args...)
}

// TransientStoreErrorf builds a TransientStoreError: safe for the platform to retry.
func TransientStoreErrorf(op, format string, args ...any) error {
	return newErr(CodeTransientStore, op, format, args...)
}

// CodeOf extracts the Code from err if it (or something it wraps) is an
// *Error, or "" otherwise.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

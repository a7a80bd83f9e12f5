// Package errs provides the tagged error taxonomy shared by the engines.
//
// Every failure the engines report is an *Error carrying a Kind (the status
// class an outer layer maps to a transport code) and a Code naming the
// specific failure. Kinds are sentinel errors, so callers can test with
// errors.Is:
//
//	if errors.Is(err, errs.ErrNotFound) { ... }
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per kind.
var (
	// ErrNotFound indicates a missing table or row
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the resource already exists
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput indicates a validation failure detected before any statement ran
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden indicates a capability the service was not opened with
	ErrForbidden = errors.New("forbidden")
	// ErrBackend indicates a failure reported by the database driver
	ErrBackend = errors.New("backend error")
)

// Code names a specific failure within a kind.
type Code string

const (
	CodeTableNotFound       Code = "TableNotFound"
	CodeNotFound            Code = "NotFound"
	CodeTableAlreadyExists  Code = "TableAlreadyExists"
	CodeInvalidIdentifier   Code = "InvalidIdentifier"
	CodeUnsupportedType     Code = "UnsupportedType"
	CodeInvalidColumns      Code = "InvalidColumns"
	CodeInvalidColumn       Code = "InvalidColumn"
	CodeInvalidDirection    Code = "InvalidDirection"
	CodeInvalidPagination   Code = "InvalidPagination"
	CodeEmptyStatement      Code = "EmptyStatement"
	CodeInsufficientColumns Code = "InsufficientColumns"
	CodeNoValidFields       Code = "NoValidFields"
	CodeRawSQLDisabled      Code = "RawSQLDisabled"
	CodeBackendError        Code = "BackendError"
)

// Error is a tagged engine error.
type Error struct {
	Kind    error  // One of the sentinel kinds
	Code    Code   // Specific failure
	Message string // Human-readable message
	Err     error  // Underlying cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == ErrBackend {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newf(kind error, code Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// TableNotFound reports a table missing from the catalog.
func TableNotFound(table string) error {
	return newf(ErrNotFound, CodeTableNotFound, "table '%s' does not exist", table)
}

// RowNotFound reports a missing row.
func RowNotFound(table, id string) error {
	return newf(ErrNotFound, CodeNotFound, "record with id '%s' not found in table '%s'", id, table)
}

// TableAlreadyExists reports a create against an existing table.
func TableAlreadyExists(table string) error {
	return newf(ErrConflict, CodeTableAlreadyExists, "table '%s' already exists", table)
}

// Invalid builds an ErrInvalidInput error with the given code.
func Invalid(code Code, format string, args ...any) error {
	return newf(ErrInvalidInput, code, format, args...)
}

// Forbidden builds an ErrForbidden error with the given code.
func Forbidden(code Code, format string, args ...any) error {
	return newf(ErrForbidden, code, format, args...)
}

// Backend wraps a driver error. A nil err yields nil. Errors that are already
// tagged pass through unchanged.
func Backend(op string, err error) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	return &Error{Kind: ErrBackend, Code: CodeBackendError, Message: "database error during " + op, Err: err}
}

// KindOf returns the kind sentinel of err, or ErrBackend for untagged errors.
// It returns nil for a nil error.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrNotFound, ErrConflict, ErrInvalidInput, ErrForbidden, ErrBackend} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrBackend
}

// CodeOf returns the failure code of err, or CodeBackendError for untagged errors.
func CodeOf(err error) Code {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Code
	}
	return CodeBackendError
}

// Package result wraps engine outcomes in a uniform success/failure envelope
// that an outer transport layer can render without knowing the engines.
package result

import (
	"errors"

	"github.com/tordrt/dyntable/internal/errs"
)

// StatusClass is the transport-independent outcome class of an operation
type StatusClass string

const (
	StatusOK          StatusClass = "ok"
	StatusBadRequest  StatusClass = "bad-request"
	StatusNotFound    StatusClass = "not-found"
	StatusConflict    StatusClass = "conflict"
	StatusForbidden   StatusClass = "forbidden"
	StatusServerError StatusClass = "server-error"
)

// Result is either a value or an error
type Result struct {
	Value any
	Err   error
}

// Success wraps a value
func Success(v any) Result {
	return Result{Value: v}
}

// Failure wraps an error
func Failure(err error) Result {
	return Result{Err: err}
}

// From builds a Result from the usual (value, error) pair
func From(v any, err error) Result {
	if err != nil {
		return Failure(err)
	}
	return Success(v)
}

// OK reports whether the operation succeeded
func (r Result) OK() bool {
	return r.Err == nil
}

// Status maps the outcome to its status class
func (r Result) Status() StatusClass {
	return StatusOf(r.Err)
}

// Envelope is the serialized form of a Result
type Envelope struct {
	Status StatusClass `json:"status"`
	Data   any         `json:"data,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody describes a failure
type ErrorBody struct {
	Code    errs.Code `json:"code"`
	Message string    `json:"message"`
}

// Envelope returns the serializable form of the result
func (r Result) Envelope() Envelope {
	if r.OK() {
		return Envelope{Status: StatusOK, Data: r.Value}
	}
	return Envelope{
		Status: r.Status(),
		Error:  &ErrorBody{Code: errs.CodeOf(r.Err), Message: r.Err.Error()},
	}
}

// StatusOf maps an error to its status class; nil is StatusOK
func StatusOf(err error) StatusClass {
	if err == nil {
		return StatusOK
	}
	switch kind := errs.KindOf(err); {
	case errors.Is(kind, errs.ErrNotFound):
		return StatusNotFound
	case errors.Is(kind, errs.ErrConflict):
		return StatusConflict
	case errors.Is(kind, errs.ErrInvalidInput):
		return StatusBadRequest
	case errors.Is(kind, errs.ErrForbidden):
		return StatusForbidden
	default:
		return StatusServerError
	}
}

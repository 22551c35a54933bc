package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation    Kind = "validation"
	KindUnauthorized  Kind = "unauthorized"
	KindForbidden     Kind = "forbidden"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindUpstream      Kind = "upstream"
	KindPipelineState Kind = "pipeline_state"
)

type Error struct {
	Status int
	Code   string
	Kind   Kind
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func newKind(kind Kind, status int, code string, format string, args ...any) *Error {
	return &Error{Status: status, Code: code, Kind: kind, Err: fmt.Errorf(format, args...)}
}

func Validation(code, format string, args ...any) *Error {
	return newKind(KindValidation, http.StatusBadRequest, code, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return newKind(KindUnauthorized, http.StatusUnauthorized, "unauthorized", format, args...)
}

func Forbidden(code, format string, args ...any) *Error {
	return newKind(KindForbidden, http.StatusForbidden, code, format, args...)
}

// NotFound is also returned for entities the caller cannot see, so existence
// is never leaked across owners.
func NotFound(code, format string, args ...any) *Error {
	return newKind(KindNotFound, http.StatusNotFound, code, format, args...)
}

func Conflict(code, format string, args ...any) *Error {
	return newKind(KindConflict, http.StatusConflict, code, format, args...)
}

func PipelineState(code, format string, args ...any) *Error {
	return newKind(KindPipelineState, http.StatusConflict, code, format, args...)
}

// Upstream wraps a failed or timed out call to an external model or storage
// provider. Timeouts map to 504, everything else to 502.
func Upstream(code string, err error) *Error {
	status := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	return &Error{Status: status, Code: code, Kind: KindUpstream, Err: err}
}

func IsKind(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

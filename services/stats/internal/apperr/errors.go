// Package apperr defines the failure taxonomy of a stats run. Every error
// carries a code so callers can decide whether it stays local to one region
// or aborts the run.
package apperr

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	CodeStaleInput        = "STALE_INPUT"
	CodeRemoteCompute     = "REMOTE_COMPUTE"
	CodeMalformedGeometry = "MALFORMED_GEOMETRY"
	CodeSinkWrite         = "SINK_WRITE"
	CodePixelBudget       = "PIXEL_BUDGET"
	CodeConfig            = "CONFIG"
)

// Error is a coded failure with an optional cause.
type Error struct {
	Code      string
	Message   string
	Retryable bool
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// StaleInput reports that no raster slice satisfies the recency constraint.
func StaleInput(message string) *Error {
	return New(CodeStaleInput, message, nil)
}

// RemoteCompute wraps a failed call to the reduction backend.
func RemoteCompute(message string, retryable bool, err error) *Error {
	e := New(CodeRemoteCompute, message, err)
	e.Retryable = retryable
	return e
}

// MalformedGeometry reports an unusable region geometry.
func MalformedGeometry(regionID string, err error) *Error {
	return New(CodeMalformedGeometry, fmt.Sprintf("region %q has malformed geometry", regionID), err)
}

// SinkWrite wraps an output sink failure.
func SinkWrite(path string, err error) *Error {
	return New(CodeSinkWrite, fmt.Sprintf("write %s", path), err)
}

// PixelBudget reports a reduction window larger than the configured ceiling.
func PixelBudget(pixels, limit float64) *Error {
	return New(CodePixelBudget, fmt.Sprintf("reduction needs %.0f pixels, limit is %.0f", pixels, limit), nil)
}

// Config reports invalid configuration.
func Config(message string, err error) *Error {
	return New(CodeConfig, message, err)
}

// Get extracts an *Error from err if present.
func Get(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// Code returns the code of err, or "" if it is not coded.
func Code(err error) string {
	if e := Get(err); e != nil {
		return e.Code
	}
	return ""
}

// IsStaleInput checks for a stale input error.
func IsStaleInput(err error) bool { return Code(err) == CodeStaleInput }

// IsRemoteCompute checks for a remote reduction error.
func IsRemoteCompute(err error) bool { return Code(err) == CodeRemoteCompute }

// IsMalformedGeometry checks for a malformed geometry error.
func IsMalformedGeometry(err error) bool { return Code(err) == CodeMalformedGeometry }

// IsSinkWrite checks for a sink write error.
func IsSinkWrite(err error) bool { return Code(err) == CodeSinkWrite }

// IsPixelBudget checks for an exceeded pixel budget.
func IsPixelBudget(err error) bool { return Code(err) == CodePixelBudget }

// IsRetryable reports whether the failure is transient.
func IsRetryable(err error) bool {
	if e := Get(err); e != nil {
		return e.Retryable
	}
	return false
}

// IsRegionLocal reports whether err must stay confined to the region that
// produced it. Anything else aborts the batch.
func IsRegionLocal(err error) bool {
	switch Code(err) {
	case CodeMalformedGeometry, CodeRemoteCompute:
		return true
	default:
		return false
	}
}

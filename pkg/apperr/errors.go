// Package apperr holds the error kinds surfaced by the storefront engine.
// All of them are recoverable: callers report them and carry on.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrService         = errors.New("service unavailable")
	ErrNotFound        = errors.New("not found")
	ErrStaleResponse   = errors.New("stale response discarded")
	ErrUnauthenticated = errors.New("login required")
)

// ValidationError reports missing or malformed input. No state is mutated
// when one is returned.
type ValidationError struct {
	Fields []string
	Reason string
}

func NewValidation(reason string, fields ...string) *ValidationError {
	return &ValidationError{Fields: fields, Reason: reason}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ServiceError wraps a failure talking to the catalog or auth service.
type ServiceError struct {
	Service string
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s %s failed (status %d): %s", e.Service, e.Op, e.Status, msg)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Service, e.Op, msg)
}

func (e *ServiceError) Is(target error) bool { return target == ErrService }

func (e *ServiceError) Unwrap() error { return e.Err }

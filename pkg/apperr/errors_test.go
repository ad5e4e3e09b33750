package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError(t *testing.T) {
	err := fmt.Errorf("checkout: %w", NewValidation("required fields missing", "name", "city"))
	if !errors.Is(err, ErrValidation) {
		t.Fatal("wrapped validation error should match ErrValidation")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || len(ve.Fields) != 2 {
		t.Fatalf("errors.As = %v", ve)
	}
	if got := ve.Error(); got != "required fields missing: name, city" {
		t.Errorf("message = %q", got)
	}
}

func TestServiceError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ServiceError{Service: "catalog", Op: "list", Err: cause}
	if !errors.Is(err, ErrService) || !errors.Is(err, cause) {
		t.Fatal("service error should match ErrService and its cause")
	}
	if errors.Is(err, ErrValidation) {
		t.Fatal("service error must not match ErrValidation")
	}
	withStatus := &ServiceError{Service: "auth", Op: "login", Status: 400, Message: "Invalid email or password"}
	if got := withStatus.Error(); got != "auth login failed (status 400): Invalid email or password" {
		t.Errorf("message = %q", got)
	}
}

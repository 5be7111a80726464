package service

import (
	"errors"
	"fmt"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("product", "abc123")

	expected := `product "abc123" not found`
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected error to wrap ErrNotFound")
	}
	if !IsNotFound(fmt.Errorf("lookup: %w", err)) {
		t.Error("IsNotFound should see through wrapping")
	}
}

func TestNotFoundError_NoID(t *testing.T) {
	err := NewNotFoundError("cart", "")
	if err.Error() != "cart not found" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestValidationError(t *testing.T) {
	err := RequiredError("email")
	if err.Error() != "email: is required" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !IsValidationError(err) {
		t.Error("IsValidationError should return true")
	}
	if IsNotFound(err) {
		t.Error("validation error must not look like not found")
	}
}

func TestConflictError(t *testing.T) {
	err := NewConflictError("only %d left in stock", 2)
	if err.Error() != "only 2 left in stock" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !IsConflict(err) {
		t.Error("IsConflict should return true")
	}
}

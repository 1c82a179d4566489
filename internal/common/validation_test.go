package common

import (
	"errors"
	"testing"
)

func TestValidatorCollectsFields(t *testing.T) {
	neg := -5.0
	v := NewValidator().
		Field("monthly_rent", &neg, NonNegative).
		Field("email", "not-an-email", Email).
		Field("phone_number", "+31612345678", Phone).
		Field("name", "", Required)

	if !v.HasErrors() {
		t.Fatal("expected errors")
	}
	if len(v.Errors()) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(v.Errors()), v.Errors())
	}
	err := v.Err("extraction invalid")
	if !IsCode(err, CodeValidation) {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Error("expected ErrValidation in chain")
	}
	fields := FieldErrors(err)
	if fields[0].Field != "monthly_rent" {
		t.Errorf("expected first field monthly_rent, got %s", fields[0].Field)
	}
}

func TestRulesAcceptEmptyOptional(t *testing.T) {
	var nilMoney *float64
	var nilStr *string
	v := NewValidator().
		Field("deposit", nilMoney, NonNegative).
		Field("email", nilStr, Email).
		Field("phone_number", "", Phone)
	if v.HasErrors() {
		t.Fatalf("unexpected errors: %s", v.ErrorMessage())
	}
	if v.Err("x") != nil {
		t.Error("Err should be nil without errors")
	}
}

func TestCodeOfWrapped(t *testing.T) {
	base := NotFound("household %d", 7)
	wrapped := WrapError(base, "upload")
	if CodeOf(wrapped) != CodeNotFound {
		t.Errorf("Expected NOT_FOUND, got %q", CodeOf(wrapped))
	}
	if MessageOf(wrapped) != "household 7" {
		t.Errorf("unexpected message %q", MessageOf(wrapped))
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("plain errors carry no code")
	}
}

package validator

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
)

type mappingRequest struct {
	SourceFieldKey string `json:"sourceFieldKey" validate:"required"`
	TargetField    string `json:"targetField" validate:"required,upper_only"`
}

type replaceRequest struct {
	Mappings []mappingRequest `json:"mappings" validate:"dive"`
}

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	val := New()
	if err := val.RegisterValidation("upper_only", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "EMAIL"
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	return val
}

func TestFieldErrorsUseJSONNames(t *testing.T) {
	err := newTestValidator(t).Struct(replaceRequest{Mappings: []mappingRequest{{TargetField: "email"}}})
	fields := FieldErrors(err)

	if fields["mappings[0].sourceFieldKey"] != "required" {
		t.Fatalf("expected required on sourceFieldKey, got %v", fields)
	}
	if fields["mappings[0].targetField"] != "upper_only" {
		t.Fatalf("expected custom tag on targetField, got %v", fields)
	}
}

func TestFieldErrorsIgnoresOtherErrors(t *testing.T) {
	if FieldErrors(errors.New("boom")) != nil {
		t.Fatalf("expected nil for non-validation errors")
	}
	if FieldErrors(newTestValidator(t).Struct(mappingRequest{SourceFieldKey: "email", TargetField: "EMAIL"})) != nil {
		t.Fatalf("expected nil for valid struct")
	}
}

package core

import (
	"github.com/go-playground/validator/v10"

	"revenda/internal/types"
)

// Validator wraps go-playground/validator for request payload validation.
// Domain rule validation (billing rule coupling, day ranges) lives in the
// billingrules package; this layer covers structural checks like required
// fields and phone format.
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a Validator with the tags the handlers use
// (required, oneof, e164, min/max).
func NewValidator() *Validator {
	return &Validator{v: validator.New()}
}

// ValidateStruct validates a request payload struct. Field failures are
// collected into the Details map of a single validation AppError so the
// client sees every problem at once.
func (val *Validator) ValidateStruct(s interface{}) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "payload validation failed", err)
	}

	details := make(map[string]any, len(validationErrs))
	for _, fe := range validationErrs {
		details[fe.Field()] = fe.Tag()
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"request payload failed validation",
		err,
		details,
	)
}

// Var validates a single value against a tag expression, e.g. phone
// numbers with "e164".
func (val *Validator) Var(field interface{}, tag string) error {
	return val.v.Var(field, tag)
}

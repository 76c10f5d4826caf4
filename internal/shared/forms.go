package shared

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// User-facing form messages.
const (
	MsgRequiredFields   = "Please fill in all required fields."
	MsgQuantityPositive = "Quantity must be a positive number."
	MsgUnitCostPositive = "Unit cost must be a positive number."
	MsgDistinctBases    = "Source and destination bases must be different."
)

// InsufficientStock builds the "Only N units available" message. purpose is
// appended as "for <purpose>" when non-empty.
func InsufficientStock(available int, purpose string) *ValidationError {
	if purpose == "" {
		return NewValidationError("Only %d units available.", available)
	}
	return NewValidationError("Only %d units available for %s.", available, purpose)
}

// NewValidator returns a validator that reports json field names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateStruct runs tag validation and folds failures into one ValidationError.
// Missing required fields win over every other failure.
func ValidateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" || fe.Tag() == "required_if" {
			return &ValidationError{Message: MsgRequiredFields}
		}
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "oneof":
		return NewValidationError("Invalid %s: must be one of %s.", fe.Field(), fe.Param())
	case "max":
		return NewValidationError("%s must be at most %s characters.", fe.Field(), fe.Param())
	case "gt", "gte", "min":
		return NewValidationError("%s is out of range.", fe.Field())
	case "email":
		return NewValidationError("Please enter a valid email address.")
	}
	return &ValidationError{Message: fmt.Sprintf("Invalid value for %s.", fe.Field())}
}

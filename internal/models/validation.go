package models

import (
	"errors"
	"fmt"
	"regexp"

	validator "github.com/go-playground/validator/v10"
)

var alphaSpacePattern = regexp.MustCompile(`^[a-zA-Z\s]+$`)

var validate = newValidator()

// ValidationError lists every rule a UserFields value breaks.
// Missing is set when at least one required field is empty.
type ValidationError struct {
	Missing  bool
	Problems []string
}

func (e *ValidationError) Error() string {
	if e.Missing {
		return "missing required fields"
	}
	return fmt.Sprintf("invalid user data: %v", e.Problems)
}

func validateAlphaSpace(fieldLevel validator.FieldLevel) bool {
	return alphaSpacePattern.MatchString(fieldLevel.Field().String())
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("alphaspace", validateAlphaSpace); err != nil {
		panic(err)
	}
	return v
}

func problemText(fieldError validator.FieldError) string {
	field := fieldError.Field()
	switch fieldError.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fieldError.Param())
	case "max":
		return fmt.Sprintf("%s must be less than %s characters", field, fieldError.Param())
	case "alphaspace":
		return field + " can only contain letters and spaces"
	case "email":
		return "Please enter a valid email address"
	}
	return field + " is invalid"
}

// ValidateUserFields applies the same rules the client form uses:
// name, city and country are 2..50 letters and spaces, email is an address.
// It returns nil or a *ValidationError.
func ValidateUserFields(fields UserFields) error {
	err := validate.Struct(fields)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}

	result := &ValidationError{}
	for _, fieldError := range fieldErrors {
		if fieldError.Tag() == "required" {
			result.Missing = true
		}
		result.Problems = append(result.Problems, problemText(fieldError))
	}

	return result
}

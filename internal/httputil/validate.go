package httputil

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var bodyValidator = validator.New()

// Validate runs struct-tag validation and turns the first failing field into
// a human-readable message, e.g. "username must be at least 3 characters".
func Validate(body any) error {
	if err := bodyValidator.Struct(body); err != nil {
		var fieldErrs validator.ValidationErrors
		if ok := asValidationErrors(err, &fieldErrs); ok {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return validationError(strings.Join(msgs, "; "))
		}
		return validationError(err.Error())
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return false
	}
	*target = ve
	return true
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must be at least " + fe.Param() + " characters"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	default:
		return field + " is invalid"
	}
}

type validationErr string

func (e validationErr) Error() string { return string(e) }

func validationError(msg string) error { return validationErr(msg) }

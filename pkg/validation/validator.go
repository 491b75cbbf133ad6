package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is a singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Struct validates a struct using its `validate` tags.
func Struct(v any) error {
	if err := validate.Struct(v); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError converts validator errors into readable messages
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		switch fieldErr.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s: field is required", fieldErr.Field()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s: value below minimum %s", fieldErr.Field(), fieldErr.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s: value exceeds maximum %s", fieldErr.Field(), fieldErr.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s: must be one of [%s]", fieldErr.Field(), fieldErr.Param()))
		case "hostname_port":
			msgs = append(msgs, fmt.Sprintf("%s: must be a host:port address", fieldErr.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: failed %s validation", fieldErr.Field(), fieldErr.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

package dto

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/eshaffer321/marketplace-backend/internal/application/bulk"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	// Report fields by their JSON names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

var messages = map[string]string{
	"required": "The field '%s' is required.",
	"min":      "The field '%s' must contain at least %s item(s).",
	"max":      "The field '%s' must not exceed %s.",
	"gt":       "The field '%s' must be greater than %s.",
	"gte":      "The field '%s' must be greater than or equal to %s.",
	"oneof":    "The field '%s' must be one of %s.",
}

// Validate checks struct tags on a request body. The first failing field is
// reported: missing fields wrap bulk.ErrMissingParameters, malformed ones
// wrap bulk.ErrInvalidParameterValue.
func Validate(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", bulk.ErrInvalidParameterValue, err)
	}

	fe := fieldErrs[0]
	sentinel := bulk.ErrInvalidParameterValue
	if fe.Tag() == "required" || fe.Tag() == "min" {
		sentinel = bulk.ErrMissingParameters
	}
	return fmt.Errorf("%w: %s", sentinel, message(fe))
}

func message(fe validator.FieldError) string {
	field := fe.Namespace()
	// Drop the struct name
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	msg, ok := messages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("Field '%s' is invalid: %s", field, fe.Tag())
	}
	if strings.Count(msg, "%s") == 2 {
		return fmt.Sprintf(msg, field, fe.Param())
	}
	return fmt.Sprintf(msg, field)
}

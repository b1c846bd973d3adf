package handlers

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wonny/clv-retention/internal/contracts"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report the JSON field name so 400s point at the request key
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs the struct tags and converts the first failure into
// a contracts.ValidationError.
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return contracts.NewValidationError(fe.Field(), "rule '%s' expected '%s', got '%v'", fe.Tag(), fe.Param(), fe.Value())
	}
	return contracts.NewValidationError("body", "%v", err)
}

// validateVar checks a single query value against tag
func validateVar(field string, value interface{}, tag string) error {
	if err := validate.Var(value, tag); err != nil {
		return contracts.NewValidationError(field, "rule '%s' not satisfied by '%v'", tag, value)
	}
	return nil
}

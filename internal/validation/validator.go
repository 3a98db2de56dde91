// Package validation validates service requests using the validator/v10 library.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	domainerrors "github.com/booksyapp/booksy-server/internal/errors"
)

// IdentifierTag validates user, book, chapter and record IDs. ':' is the
// compound-key separator in the Badger layout, so it is never allowed.
const IdentifierTag = "identifier"

const identifierRules = "required,max=128,excludes=:"

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v *validator.Validate
}

// New creates a validator configured for our domain.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	v.RegisterAlias(IdentifierTag, identifierRules)

	return &Validator{v: v}
}

// Validate validates a struct and returns a VALIDATION domain error with
// per-field details.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

// formatError converts validator errors to domain errors.
func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	fieldErrors := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		fieldErrors[e.Field()] = friendlyMessage(e.Tag(), e.ActualTag(), e.Param())
	}

	return domainerrors.ValidationWithDetails("validation failed", fieldErrors)
}

//nolint:gocyclo // Switch statement covering validation tags is intentionally exhaustive.
func friendlyMessage(tag, actual, param string) string {
	if tag == IdentifierTag {
		switch actual {
		case "required":
			return "is required"
		case "max":
			return "must not exceed 128 characters"
		case "excludes":
			return "must not contain ':'"
		}
	}

	switch tag {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", param)
	case "max":
		return fmt.Sprintf("must not exceed %s characters", param)
	case "excludes":
		return fmt.Sprintf("must not contain %q", param)
	case "oneof":
		return "must be one of: " + param
	case "gte":
		return "must be greater than or equal to " + param
	case "lte":
		return "must be less than or equal to " + param
	case "gt":
		return "must be greater than " + param
	case "lt":
		return "must be less than " + param
	default:
		return "is invalid"
	}
}

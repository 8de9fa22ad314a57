// Package services holds the application logic of the translation
// dictionary. Services validate input before touching the store, run every
// multi-step mutation in one transaction, and invalidate cached exports
// after the transaction commits.
//
// Errors returned by services belong to the domain taxonomy so handlers
// can map them with errors.Is.
package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/tbourn/go-translation-backend/internal/domain"
)

// Service-level aliases of the domain taxonomy.
var (
	ErrNotFound   = domain.ErrNotFound
	ErrConflict   = domain.ErrConflict
	ErrValidation = domain.ErrValidation
)

// validate is shared; validator caches struct metadata and is safe for
// concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct runs struct validation and converts failures into a
// *domain.ValidationError keyed by JSON field path.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fieldPath(fe)
		if _, seen := fields[name]; !seen {
			fields[name] = message(fe)
		}
	}
	return domain.NewValidationError(fields)
}

// fieldPath drops the root struct name from the namespace:
// "CreateInput.translations[en]" becomes "translations[en]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "notblank":
		return "must not be blank"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		if fe.Kind() == reflect.Int {
			return fmt.Sprintf("must be at most %s", fe.Param())
		}
		return fmt.Sprintf("must contain at most %s items", fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		if fe.Kind() == reflect.Int {
			return fmt.Sprintf("must be at least %s", fe.Param())
		}
		return fmt.Sprintf("must contain at least %s items", fe.Param())
	default:
		return "is invalid"
	}
}

// Package validation validates request and domain structs using validator/v10.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/neobackupapp/neobackup-server/internal/domain"
	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
)

// packageNameRe matches Android application ids such as "com.example.app".
var packageNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z0-9_]+)+$`)

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v *validator.Validate
}

// New creates a validator configured for our domain.
func New() *Validator {
	v := validator.New()

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("pkgname", func(fl validator.FieldLevel) bool {
		return IsPackageName(fl.Field().String())
	})
	_ = v.RegisterValidation("timeofday", func(fl validator.FieldLevel) bool {
		_, _, err := domain.ParseTimeOfDay(fl.Field().String())
		return err == nil
	})

	return &Validator{v: v}
}

// IsPackageName reports whether s looks like an Android package name.
func IsPackageName(s string) bool {
	return len(s) <= 255 && packageNameRe.MatchString(s)
}

// Validate validates a struct and returns a domain error.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

// Var validates a single value against a tag, e.g. "dive,pkgname".
func (v *Validator) Var(field string, value any, tag string) error {
	if err := v.v.Var(value, tag); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
			msg := field + " " + v.friendlyMessage(validationErrs[0])
			return domainerrors.ValidationWithDetails(msg, map[string]string{field: msg})
		}
		return err
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
	parts := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		msg := v.friendlyMessage(e)
		fieldErrors[e.Field()] = msg
		parts = append(parts, e.Field()+" "+msg)
	}
	slices.Sort(parts)

	return domainerrors.ValidationWithDetails("validation failed: "+strings.Join(parts, "; "), fieldErrors)
}

//nolint:gocyclo // Switch statement covering validation tags is intentionally exhaustive.
func (v *Validator) friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s", e.Param())
	case "oneof":
		return "must be one of: " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "lt":
		return "must be less than " + e.Param()
	case "pkgname":
		return "must be a package name like com.example.app"
	case "timeofday":
		return "must be a time of day as HH:MM"
	default:
		return "is invalid"
	}
}

// Package validation wraps go-playground/validator with the marketplace's
// custom tags and converts failures into field-level apperror values.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/apperror"
)

var ethPhone = regexp.MustCompile(`^\+251\d{9}$`)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	_ = val.RegisterValidation("ethphone", func(fl validator.FieldLevel) bool {
		return IsEthiopianPhone(fl.Field().String())
	})
	_ = val.RegisterValidation("strongpw", func(fl validator.FieldLevel) bool {
		return IsStrongPassword(fl.Field().String())
	})
	return val
}

// IsEthiopianPhone matches +251 followed by nine digits.
func IsEthiopianPhone(s string) bool {
	return ethPhone.MatchString(s)
}

// IsStrongPassword requires at least six characters with an upper case
// letter, a lower case letter and a digit.
func IsStrongPassword(s string) bool {
	if len(s) < 6 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// Struct validates s and returns every failing field at once.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return apperror.Internal(err)
	}
	fields := apperror.FieldErrors{}
	for _, fe := range ve {
		fields.Add(fieldPath(fe), message(fe))
	}
	return apperror.Validation(fields)
}

// fieldPath drops the root struct name: "Car.location.city" -> "location.city".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	// promoted fields of embedded structs show up under the embedded type name
	ns = strings.TrimPrefix(ns, "ListingBase.")
	return ns
}

func message(fe validator.FieldError) string {
	f := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", f)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", f)
	case "ethphone":
		return fmt.Sprintf("%s must be +251 followed by 9 digits", f)
	case "strongpw":
		return fmt.Sprintf("%s must be at least 6 characters and contain upper case, lower case and a digit", f)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", f, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", f, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters long", f, fe.Param())
	case "gt", "gte", "lt", "lte":
		return fmt.Sprintf("%s is out of range", f)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", f, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", f)
}

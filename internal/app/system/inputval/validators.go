// internal/app/system/inputval/validators.go
package inputval

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/dalemusser/leadtrack/internal/domain/models"
	"github.com/go-playground/validator/v10"
)

// FieldError is one human-readable validation failure.
type FieldError struct {
	Field   string
	Tag     string
	Message string
}

// Result collects the failures from Validate.
type Result struct {
	Errors []FieldError
}

// HasErrors reports whether validation failed.
func (r *Result) HasErrors() bool { return r != nil && len(r.Errors) > 0 }

// First returns the first message, or "" when valid.
func (r *Result) First() string {
	if !r.HasErrors() {
		return ""
	}
	return r.Errors[0].Message
}

// All joins every message with "; ".
func (r *Result) All() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

var (
	once sync.Once
	v    *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			if l := f.Tag.Get("label"); l != "" {
				return l
			}
			return f.Name
		})
		_ = v.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
			return IsValidObjectID(fl.Field().String())
		})
		_ = v.RegisterValidation("contactemail", func(fl validator.FieldLevel) bool {
			return IsValidEmail(strings.TrimSpace(fl.Field().String()))
		})
		_ = v.RegisterValidation("phonetype", func(fl validator.FieldLevel) bool {
			s := strings.ToLower(strings.TrimSpace(fl.Field().String()))
			return s == "" || models.PhoneType(s).Valid()
		})
	})
	return v
}

// Validate runs struct-tag validation on s. Field names in messages come
// from the `label` tag.
func Validate(s any) *Result {
	res := &Result{}
	err := instance().Struct(s)
	if err == nil {
		return res
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		res.Errors = append(res.Errors, FieldError{Message: err.Error()})
		return res
	}
	for _, fe := range verrs {
		res.Errors = append(res.Errors, FieldError{
			Field:   fe.StructField(),
			Tag:     fe.Tag(),
			Message: message(fe),
		})
	}
	return res
}

func message(fe validator.FieldError) string {
	label := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", label)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters.", label, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters.", label, fe.Param())
	case "email", "contactemail":
		return "A valid email address is required."
	case "objectid":
		return fmt.Sprintf("%s must be a valid ID.", label)
	case "phonetype":
		return fmt.Sprintf("%s must be calling, chat, or both.", label)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s.", label, fe.Param())
	case "excluded_with":
		return fmt.Sprintf("%s cannot be combined with %s.", label, fe.Param())
	case "required_without":
		return fmt.Sprintf("%s is required when %s is missing.", label, fe.Param())
	}
	return fmt.Sprintf("%s is invalid.", label)
}

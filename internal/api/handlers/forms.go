package handlers

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldErrors maps a form field name to the message shown under it.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for field, msg := range e {
		parts = append(parts, field+": "+msg)
	}
	return strings.Join(parts, "; ")
}

var validate = newValidator()

// newValidator reports fields by their form name rather than the Go field
// name, so messages line up with the inputs.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// form is implemented by every validated form. messages holds one message
// per field, whichever rule failed.
type form interface {
	messages() map[string]string
}

// validateForm runs the struct rules and translates failures. It returns nil
// when the form is valid.
func validateForm(f form) FieldErrors {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{"form": err.Error()}
	}
	msgs := f.messages()
	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if _, seen := out[field]; seen {
			continue
		}
		if msg, ok := msgs[field]; ok {
			out[field] = msg
		} else {
			out[field] = "Invalid value"
		}
	}
	return out
}

type loginForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required,min=6"`
	Kind     string `form:"kind"`
}

func (loginForm) messages() map[string]string {
	return map[string]string{
		"email":    "Invalid email address",
		"password": "Password must be at least 6 characters",
	}
}

type registerForm struct {
	Name            string `form:"name" validate:"required,min=2"`
	Email           string `form:"email" validate:"required,email"`
	Password        string `form:"password" validate:"required,min=6"`
	ConfirmPassword string `form:"confirmPassword" validate:"eqfield=Password"`
	Kind            string `form:"kind"`
}

func (registerForm) messages() map[string]string {
	return map[string]string{
		"name":            "Name must be at least 2 characters",
		"email":           "Invalid email address",
		"password":        "Password must be at least 6 characters",
		"confirmPassword": "Passwords don't match",
	}
}

type forgotPasswordForm struct {
	Email string `form:"email" validate:"required,email"`
}

func (forgotPasswordForm) messages() map[string]string {
	return map[string]string{"email": "Invalid email address"}
}

type interestForm struct {
	Name         string `form:"name" validate:"required,min=2"`
	Email        string `form:"email" validate:"required,email"`
	Organization string `form:"organization" validate:"required,min=2"`
	Description  string `form:"description" validate:"required,min=10"`
	Phone        string `form:"phone" validate:"required,min=10"`
}

func (interestForm) messages() map[string]string {
	return map[string]string{
		"name":         "Name must be at least 2 characters",
		"email":        "Invalid email address",
		"organization": "Organization name must be at least 2 characters",
		"description":  "Please provide more details about your events",
		"phone":        "Please enter a valid phone number",
	}
}

// captchaField is the hidden input the Turnstile widget adds to its form.
const captchaField = "cf-turnstile-response"

package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	emailRe         = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	passwordCharsRe = regexp.MustCompile(`^[A-Za-z\d@$!%*?&]{8,}$`)
	hasLetterRe     = regexp.MustCompile(`[A-Za-z]`)
	hasDigitRe      = regexp.MustCompile(`\d`)
)

type LoginForm struct {
	Email    string `validate:"required"`
	Password string `validate:"required"`
}

type RegisterForm struct {
	Username         string `validate:"required"`
	Email            string `validate:"required,mailbox"`
	Password         string `validate:"required,strongpassword"`
	ConfirmPassword  string `validate:"required,eqfield=Password"`
	VerificationCode string `validate:"required"`
}

type SendCodeForm struct {
	Email string `validate:"required,mailbox"`
}

// ValidationError is a form problem caught before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("mailbox", func(fl validator.FieldLevel) bool {
		return emailRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return ValidPassword(fl.Field().String())
	})
	return v
}

// ValidPassword requires at least 8 characters from letters, digits and
// @$!%*?&, with at least one letter and one digit.
func ValidPassword(p string) bool {
	return passwordCharsRe.MatchString(p) && hasLetterRe.MatchString(p) && hasDigitRe.MatchString(p)
}

// check validates form and reports only the first violation.
func check(v *validator.Validate, form any) error {
	err := v.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate form: %w", err)
	}
	fe := verrs[0]
	return &ValidationError{Field: fe.Field(), Message: messageFor(fe)}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "please fill in all fields"
	case "mailbox":
		return "please enter a valid email address"
	case "strongpassword":
		return "password must be at least 8 characters and contain letters and digits"
	case "eqfield":
		return "passwords do not match"
	default:
		return fmt.Sprintf("%s is invalid", strings.ToLower(fe.Field()))
	}
}

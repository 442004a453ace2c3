package auth

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	gwerrors "github.com/jrsteele09/stratgate/internal/errors"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// Validator checks credentials before they are sent to the identity provider.
type Validator struct{}

// NewValidator creates a new Validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateUserCredentials validates login credentials
func (v *Validator) ValidateUserCredentials(email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return invalid("email is required")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return invalid("invalid email format")
	}

	if password == "" {
		return invalid("password is required")
	}
	return nil
}

// ValidateNewPassword applies the signup password policy. Existing passwords
// are left to the provider.
func (v *Validator) ValidateNewPassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return invalid(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if n > MaxPasswordLength {
		return invalid(fmt.Sprintf("password must be at most %d characters", MaxPasswordLength))
	}
	if strings.TrimSpace(password) == "" {
		return invalid("password cannot be blank")
	}
	return nil
}

// ValidationError carries a message that is safe to show to the client.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return gwerrors.ErrInvalidRequest
}

func invalid(message string) error {
	return &ValidationError{Message: message}
}

package auth

import (
	"errors"
	"net/mail"
	"unicode/utf8"
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrNameRequired     = errors.New("name is required")
)

const minPasswordLength = 8

// ValidatePassword applies the backend's password policy locally so obvious
// mistakes fail before a round trip.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// ValidateRegistration checks a registration request before it is sent.
func ValidateRegistration(req RegisterRequest) error {
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return ErrInvalidEmail
	}
	if req.Name == "" {
		return ErrNameRequired
	}
	return ValidatePassword(req.Password)
}

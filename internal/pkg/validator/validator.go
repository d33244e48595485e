package validator

import (
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const MinPasswordLength = 6

var (
	ErrInvalidEmail     = errors.New("Invalid email")
	ErrPasswordTooShort = errors.New("Password must be at least 6 characters")
)

// Email checks the shape of a bare address. Deliverability is the auth
// service's concern.
func Email(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return ErrInvalidEmail
	}

	at := strings.LastIndex(email, "@")
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return ErrInvalidEmail
	}

	return nil
}

func Password(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// Credentials validates a sign-in or sign-up form and returns per-field
// messages keyed by field name. A nil map means the form is valid.
func Credentials(email, password string) map[string]string {
	var fieldErrors map[string]string
	if err := Email(email); err != nil {
		fieldErrors = map[string]string{"email": err.Error()}
	}
	if err := Password(password); err != nil {
		if fieldErrors == nil {
			fieldErrors = map[string]string{}
		}
		fieldErrors["password"] = err.Error()
	}
	return fieldErrors
}

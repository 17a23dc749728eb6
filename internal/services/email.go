package services

import (
	"net/mail"
	"strings"
)

// NormEmail lower-cases and trims an optional email address. ok is false when
// a non-empty value is not a bare address ("Awa <awa@x.ci>" is refused).
func NormEmail(s string) (email string, ok bool) {
	email = strings.ToLower(strings.TrimSpace(s))
	if email == "" {
		return "", true
	}
	addr, err := mail.ParseAddress(email)
	return email, err == nil && addr.Address == email
}

package auth

import (
	"strings"

	"github.com/pkg/errors"
)

// French messages for the hosted-auth error codes users actually hit.
var errText = map[string]string{
	"invalid_credentials":       "Identifiants invalides",
	"invalid login credentials": "Identifiants invalides",
	"email_not_confirmed":       "Email non confirmé",
	"email not confirmed":       "Email non confirmé",
	"session_expired":           "Session expirée",
	"session_not_found":         "Session expirée",
	"jwt expired":               "Session expirée",
	"invalid_token":             "Session invalide",
	"not_admin":                 "Accès réservé aux administrateurs",
	"slow_connection":           "Connexion lente, veuillez réessayer",
	"user_not_found":            "Utilisateur introuvable",
	"over_request_rate_limit":   "Trop de tentatives, réessayez plus tard",
}

// TranslateError returns the French message for a known auth error and the
// original text otherwise.
func TranslateError(err error) string {
	if err == nil {
		return ""
	}
	raw := errors.Cause(err).Error()
	if t, ok := errText[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return t
	}
	return raw
}

package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/sefimap/manager/internal/logsvc"
)

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// RequireAPIKey checks the public API key sent in X-API-Key.
func RequireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-API-Key")
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				deny(w, http.StatusUnauthorized, "Clé API invalide")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession verifies the bearer token and stores the admin session on
// the request context. conn may be nil to use the default connection.
func RequireSession(secret []byte, conn *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(h, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				deny(w, http.StatusUnauthorized, "Authentification requise")
				return
			}
			claims, err := ParseToken(secret, strings.TrimSpace(raw))
			if err != nil {
				deny(w, http.StatusUnauthorized, TranslateError(err))
				return
			}
			sess, err := Resolve(r.Context(), conn, claims)
			switch {
			case errors.Is(err, ErrNotAdmin):
				deny(w, http.StatusForbidden, TranslateError(err))
				return
			case errors.Is(err, ErrSlowConnection):
				deny(w, http.StatusGatewayTimeout, TranslateError(err))
				return
			case err != nil:
				logsvc.Default().Error("session lookup failed", err)
				deny(w, http.StatusInternalServerError, "Erreur interne")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// RequireRole lets through sessions holding one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := FromContext(r.Context())
			if !ok {
				deny(w, http.StatusUnauthorized, "Authentification requise")
				return
			}
			for _, role := range roles {
				if sess.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			deny(w, http.StatusForbidden, "Accès refusé")
		})
	}
}

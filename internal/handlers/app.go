package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/sefimap/manager/internal/auth"
	"github.com/sefimap/manager/internal/cache"
	"github.com/sefimap/manager/internal/logsvc"
	"github.com/sefimap/manager/internal/pdf"
	svc "github.com/sefimap/manager/internal/services"
	"github.com/sefimap/manager/internal/storage"
	"github.com/sefimap/manager/internal/validate"
)

// App carries what the handlers share.
type App struct {
	Cache  *cache.Provider
	Photos storage.Storage
	Log    *logsvc.Logger
}

func (a *App) logger() *logsvc.Logger {
	if a.Log != nil {
		return a.Log
	}
	return logsvc.Default()
}

// local reports a cache mutator failure. The write itself already
// succeeded, so the request does not fail; the next load repairs the cache.
func (a *App) local(err error) {
	if err == nil || errors.Is(err, cache.ErrUnknownRecord) {
		return
	}
	a.logger().Warn("cache patch failed", err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// userMessage turns a French sentinel into a sentence.
func userMessage(err error) string {
	s := errors.Cause(err).Error()
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	s = string(unicode.ToUpper(r)) + s[size:]
	if !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}

var statusOf = map[error]int{
	svc.ErrInscriptionIntrouvable: http.StatusNotFound,
	svc.ErrDortoirIntrouvable:     http.StatusNotFound,
	svc.ErrClasseIntrouvable:      http.StatusNotFound,
	svc.ErrNoteIntrouvable:        http.StatusNotFound,
	svc.ErrChefIntrouvable:        http.StatusNotFound,
	svc.ErrPaiementIntrouvable:    http.StatusNotFound,
	pdf.ErrEmpty:                  http.StatusNotFound,
	svc.ErrDortoirRequis:          http.StatusConflict,
	svc.ErrDortoirPlein:           http.StatusConflict,
	svc.ErrStatutInvalide:         http.StatusConflict,
	svc.ErrDortoirExiste:          http.StatusConflict,
	svc.ErrDortoirOccupe:          http.StatusConflict,
	svc.ErrCapaciteInsuffisante:   http.StatusConflict,
	svc.ErrClasseUtilisee:         http.StatusConflict,
	svc.ErrChefUtilise:            http.StatusConflict,
	svc.ErrMontantInvalide:        http.StatusBadRequest,
	svc.ErrConfirmation:           http.StatusBadRequest,
	svc.ErrPhotoRequise:           http.StatusBadRequest,
	svc.ErrModePaiementInvalide:   http.StatusBadRequest,
	svc.ErrNiveauInvalide:         http.StatusBadRequest,
}

// writeError maps business errors to a status and a French message.
// Anything unknown is logged and reported as 500.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validate.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: userMessage(verr.Err), Fields: verr.Fields})
		return
	}
	if code, ok := statusOf[errors.Cause(err)]; ok {
		writeJSON(w, code, errorBody{Error: userMessage(err)})
		return
	}
	a.logger().Error("request failed", err, map[string]interface{}{"method": r.Method, "path": r.URL.Path})
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Erreur interne."})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func idParam(r *http.Request, name string) (uint, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func session(r *http.Request) auth.Session {
	if s, ok := auth.FromContext(r.Context()); ok {
		return *s
	}
	return auth.Session{}
}

// GET /healthz
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

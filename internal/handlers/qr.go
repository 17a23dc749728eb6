package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/sefimap/manager/internal/db"
	"github.com/sefimap/manager/internal/models"
)

// GET /qr/{code}.png encodes a registration code, the same payload the
// badge carries.
func QR(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		if code == "" {
			http.NotFound(w, r)
			return
		}
		if !app.knownCode(r, code) {
			http.NotFound(w, r)
			return
		}
		png, err := qrcode.Encode(code, qrcode.Medium, 256)
		if err != nil {
			app.logger().Error("qr encode", err)
			http.Error(w, "failed to generate qr", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
	}
}

// knownCode checks the cache first and falls back to the store for
// registrations newer than the last load.
func (a *App) knownCode(r *http.Request, code string) bool {
	for _, i := range a.Cache.Inscriptions() {
		if i.Code == code {
			return true
		}
	}
	var n int64
	err := db.Conn().WithContext(r.Context()).Model(&models.Inscription{}).Where("code = ?", code).Count(&n).Error
	return err == nil && n > 0
}

package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sefimap/manager/internal/cache"
	"github.com/sefimap/manager/internal/db"
	svc "github.com/sefimap/manager/internal/services"
)

type statsView struct {
	Stats             cache.Stats             `json:"stats"`
	StatsScientifique cache.StatsScientifique `json:"statsScientifique"`
	LastUpdated       time.Time               `json:"lastUpdated"`
	Loading           bool                    `json:"loading"`
	Error             string                  `json:"error,omitempty"`
}

// GET /api/admin/stats
func AdminStats(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statsView{
			Stats:             app.Cache.Stats(),
			StatsScientifique: app.Cache.StatsScientifique(),
			LastUpdated:       app.Cache.LastUpdated(),
			Loading:           app.Cache.Loading(),
			Error:             app.Cache.Error(),
		})
	}
}

// GET /api/admin/stats/niveaux
// Read straight from the statistics view; the cache does not hold it.
func AdminNiveauxStats(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.StatistiquesNiveaux(db.Conn().WithContext(r.Context()))
		if err != nil {
			app.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

// GET /api/admin/sync/conflicts
func SyncConflicts(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, app.Cache.Conflicts())
	}
}

// POST /api/admin/sync/conflicts/{coll}/{id}/ack
func AckConflict(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			badRequest(w, "Identifiant invalide.")
			return
		}
		if !app.Cache.Ack(chi.URLParam(r, "coll"), id) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "Aucun conflit pour cet enregistrement."})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /api/admin/refresh reloads every collection. 409 when a load is
// already running.
func RefreshCache(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !app.Cache.Refresh(r.Context()) {
			writeJSON(w, http.StatusConflict, errorBody{Error: "Chargement déjà en cours."})
			return
		}
		writeJSON(w, http.StatusOK, statsView{
			Stats:             app.Cache.Stats(),
			StatsScientifique: app.Cache.StatsScientifique(),
			LastUpdated:       app.Cache.LastUpdated(),
			Error:             app.Cache.Error(),
		})
	}
}

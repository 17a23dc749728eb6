package handlers

import (
	"net/http"

	"github.com/sefimap/manager/internal/models"
	svc "github.com/sefimap/manager/internal/services"
	"github.com/sefimap/manager/internal/validate"
)

// bind decodes and validates a JSON body, answering the request itself when
// it cannot.
func (a *App) bind(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeJSON(r, v); err != nil {
		badRequest(w, "Requête invalide.")
		return false
	}
	if err := validate.Struct(v); err != nil {
		a.writeError(w, r, err)
		return false
	}
	return true
}

// POST /api/admin/dortoirs
func CreateDortoir(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in svc.DortoirInput
		if !app.bind(w, r, &in) {
			return
		}
		d, err := svc.CreateDortoir(in)
		if err != nil {
			app.writeError(w, r, err)
			return
		}
		app.local(app.Cache.AddDortoirLocal(*d))
		writeJSON(w, http.StatusCreated, d)
	}
}

// PATCH /api/admin/dortoirs/{id}
func UpdateDortoir(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			badRequest(w, "Identifiant invalide.")
			return
		}
		var p svc.DortoirPatch
		if !app.bind(w, r, &p) {
			return
		}
		d, changes, err := svc.UpdateDortoir(id, p)
		if err != nil {
			app.writeError(w, r, err)
			return
		}
		if len(changes) > 0 {
			app.local(app.Cache.UpdateDortoirLocal(id, changes))
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// DELETE /api/admin/dortoirs/{id}
func DeleteDortoir(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			badRequest(w, "Identifiant invalide.")
			return
		}
		detached, err := svc.DeleteDortoir(id)
		if err != nil {
			app.writeError(w, r, err)
			return
		}
		for _, inscID := range detached {
			app.local(app.Cache.UpdateInscriptionLocal(inscID, map[string]any{"dortoir_id": nil}))
		}
		app.local(app.Cache.DeleteDortoirLocal(id))
		w.WriteHeader(http.StatusNoContent)
	}
}

type classeRow struct {
	models.Classe
	Inscrits     int  `json:"inscrits"`
	PlacesLibres *int `json:"places_libres"` // nil when the class has no limit
}

// GET /api/admin/classes
func ListClasses(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		graded := app.Cache.StatsScientifique().ParClasse
		classes := app.Cache.Classes()
		rows := make([]classeRow, 0, len(classes))
		for _, c := range classes {
			row := classeRow{Classe: c, Inscrits: graded[c.ID]}
			if c.Capacite > 0 {
				free := max(c.Capacite-row.Inscrits, 0)
				row.PlacesLibres = &free
			}
			rows = append(rows, row)
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

// POST /api/admin/classes
func CreateClasse(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in svc.ClasseInput
		if !app.bind(w, r, &in) {
			return
		}
		c, err := svc.CreateClasse(in)
		if err != nil {
			app.writeError(w, r, err)
			return
		}
		app.local(app.Cache.AddClasseLocal(*c))
		writeJSON(w, http.StatusCreated, c)
	}
}

// PATCH /api/admin/classes/{id}
func UpdateClasse(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			badRequest(w, "Identifiant invalide.")
			return
		}
		var p svc.ClassePatch
		if !app.bind(w, r, &p) {
			return
		}
		c, changes, err := svc.UpdateClasse(id, p)
		if err != nil {
			app.writeError(w, r, err)
			return
		}
		if len(changes) > 0 {
			app.local(app.Cache.UpdateClasseLocal(id, changes))
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// DELETE /api/admin/classes/{id}
func DeleteClasse(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			badRequest(w, "Identifiant invalide.")
			return
		}
		if err := svc.DeleteClasse(id); err != nil {
			app.writeError(w, r, err)
			return
		}
		app.local(app.Cache.DeleteClasseLocal(id))
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /api/admin/chefs
func CreateChef(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in svc.ChefInput
		if !app.bind(w, r, &in) {
			return
		}
		c, err := svc.CreateChef(in)
		if err != nil {
			app.writeError(w, r, err)
			return
		}
		app.local(app.Cache.AddChefLocal(*c))
		writeJSON(w, http.StatusCreated, c)
	}
}

// PATCH /api/admin/chefs/{id}
func UpdateChef(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			badRequest(w, "Identifiant invalide.")
			return
		}
		var p svc.ChefPatch
		if !app.bind(w, r, &p) {
			return
		}
		c, changes, err := svc.UpdateChef(id, p)
		if err != nil {
			app.writeError(w, r, err)
			return
		}
		if len(changes) > 0 {
			app.local(app.Cache.UpdateChefLocal(id, changes))
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// DELETE /api/admin/chefs/{id}
func DeleteChef(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			badRequest(w, "Identifiant invalide.")
			return
		}
		if err := svc.DeleteChef(id); err != nil {
			app.writeError(w, r, err)
			return
		}
		app.local(app.Cache.DeleteChefLocal(id))
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /api/admin/capacites
func ListCapacites(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, app.Cache.Capacites())
	}
}

// PUT /api/admin/capacites
func PutCapacite(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in svc.CapaciteInput
		if !app.bind(w, r, &in) {
			return
		}
		cfg, created, err := svc.SetCapacite(in)
		if err != nil {
			app.writeError(w, r, err)
			return
		}
		app.local(app.Cache.SetCapaciteLocal(*cfg))
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, cfg)
	}
}

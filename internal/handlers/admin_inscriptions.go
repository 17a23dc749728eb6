package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/sefimap/manager/internal/auth"
	"github.com/sefimap/manager/internal/cache"
	"github.com/sefimap/manager/internal/models"
	svc "github.com/sefimap/manager/internal/services"
	"github.com/sefimap/manager/internal/validate"
)

type inscriptionFilters struct {
	Statut    string
	Canal     string
	DortoirID uint
	ChefID    uint
	Niveau    string
	Q         string
}

func readFilters(r *http.Request) inscriptionFilters {
	q := r.URL.Query()
	atoi := func(k string) uint {
		v, _ := strconv.ParseUint(q.Get(k), 10, 64)
		return uint(v)
	}
	return inscriptionFilters{
		Statut:    q.Get("statut"),
		Canal:     q.Get("canal"),
		DortoirID: atoi("dortoir_id"),
		ChefID:    atoi("chef_id"),
		Niveau:    q.Get("niveau"),
		Q:         strings.ToLower(strings.TrimSpace(q.Get("q"))),
	}
}

func onlyDigits(s string) string {
	b := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b = append(b, r)
		}
	}
	return string(b)
}

func (f inscriptionFilters) match(i models.Inscription) bool {
	if f.Statut != "" && i.Statut != f.Statut {
		return false
	}
	if f.Canal != "" && i.Canal != f.Canal {
		return false
	}
	if f.DortoirID != 0 && (i.DortoirID == nil || *i.DortoirID != f.DortoirID) {
		return false
	}
	if f.ChefID != 0 && (i.ChefQuartierID == nil || *i.ChefQuartierID != f.ChefID) {
		return false
	}
	if f.Niveau != "" && (i.NiveauFormation == nil || *i.NiveauFormation != f.Niveau) {
		return false
	}
	if f.Q == "" {
		return true
	}
	hay := strings.ToLower(i.Nom + " " + i.Prenom + " " + i.Code + " " + i.Quartier)
	if strings.Contains(hay, f.Q) {
		return true
	}
	if d := onlyDigits(f.Q); d != "" {
		return strings.Contains(onlyDigits(i.Telephone), d) || strings.Contains(onlyDigits(i.TelephoneTuteur), d)
	}
	return false
}

// visible reports whether sess may see insc. Presidents only see their own
// section.
// scopeOf confines presidents to their own section.
func scopeOf(sess auth.Session) svc.Scope {
	return svc.Scope{Restricted: sess.IsPresident(), ChefQuartierID: sess.ChefQuartierID}
}

func visible(sess auth.Session, insc models.Inscription) bool {
	return scopeOf(sess).Allows(insc)
}

func (a *App) filtered(r *http.Request) []models.Inscription {
	f := readFilters(r)
	sess := session(r)
	out := []models.Inscription{}
	for _, i := range a.Cache.Inscriptions() {
		if visible(sess, i) && f.match(i) {
			out = append(out, i)
		}
	}
	return out
}

// cached looks a registration up for the current session; ok is false when
// it is unknown or out of the caller's section.
func (a *App) cached(r *http.Request, id uint) (models.Inscription, bool) {
	insc, ok := a.Cache.Inscription(id)
	if !ok || !visible(session(r), insc) {
		return models.Inscription{}, false
	}
	return insc, true
}

// GET /api/admin/inscriptions
func ListInscriptions(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, app.filtered(r))
	}
}

type inscriptionDetail struct {
	models.Inscription
	Restant   int64             `json:"restant"`
	Paiements []models.Paiement `json:"paiements"`
	SyncState string            `json:"sync_state"`
}

// GET /api/admin/inscriptions/{id}
func GetInscription(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			badRequest(w, "Identifiant invalide.")
			return
		}
		insc, ok := app.cached(r, id)
		if !ok {
			app.writeError(w, r, svc.ErrInscriptionIntrouvable)
			return
		}
		writeJSON(w, http.StatusOK, inscriptionDetail{
			Inscription: insc,
			Restant:     svc.Restant(insc),
			Paiements:   app.Cache.PaiementsOf(id),
			SyncState:   app.Cache.SyncState(cache.CollInscriptions, id),
		})
	}
}

// GET /api/admin/inscriptions.csv
func InscriptionsCSV(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows := app.filtered(r)

		filename := fmt.Sprintf("inscriptions-%s.csv", fmtISODate(time.Now()))
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename="+filename)

		cw := csv.NewWriter(w)
		_ = cw.Write([]string{
			"Code", "Nom", "Prénom", "Âge", "Sexe", "Téléphone", "Quartier", "Tuteur", "Téléphone tuteur",
			"Section", "Dortoir", "Niveau", "Canal", "Statut", "Paiement", "Montant payé", "Restant", "Inscrit le",
		})
		for _, i := range rows {
			chef, dortoir, niveau := "", "", ""
			if i.ChefQuartier != nil {
				chef = i.ChefQuartier.Nom
			}
			if i.Dortoir != nil {
				dortoir = i.Dortoir.Nom
			}
			if i.NiveauFormation != nil {
				niveau = *i.NiveauFormation
			}
			_ = cw.Write([]string{
				i.Code, i.Nom, i.Prenom, strconv.Itoa(i.Age), i.Sexe, i.Telephone, i.Quartier, i.NomTuteur,
				i.TelephoneTuteur, chef, dortoir, niveau, i.Canal, i.Statut, i.StatutPaiement,
				strconv.FormatInt(i.MontantPaye, 10), strconv.FormatInt(svc.Restant(i), 10), fmtDateTime(i.CreatedAt),
			})
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			app.logger().Warn("csv export", err)
		}
	}
}

// PATCH /api/admin/inscriptions/{id}
func PatchInscription(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			badRequest(w, "Identifiant invalide.")
			return
		}
		var p svc.InscriptionPatch
		if err := decodeJSON(r, &p); err != nil {
			badRequest(w, "Requête invalide.")
			return
		}
		if err := validate.Struct(p); err != nil {
			app.writeError(w, r, err)
			return
		}
		insc, changes, err := svc.Update(id, p)
		if err != nil {
			app.writeError(w, r, err)
			return
		}
		if len(changes) > 0 {
			app.local(app.Cache.UpdateInscriptionLocal(id, changes))
		}
		writeJSON(w, http.StatusOK, insc)
	}
}

// transition wraps the status-changing actions that take no body.
func transition(app *App, do func(id uint) (*models.Inscription, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			badRequest(w, "Identifiant invalide.")
			return
		}
		insc, err := do(id)
		if err != nil {
			app.writeError(w, r, err)
			return
		}
		app.local(app.Cache.UpdateInscriptionLocal(id, map[string]any{"statut": insc.Statut}))
		writeJSON(w, http.StatusOK, insc)
	}
}

// POST /api/admin/inscriptions/{id}/valider
func ValiderInscription(app *App) http.HandlerFunc { return transition(app, svc.Validate) }

// POST /api/admin/inscriptions/{id}/rejeter
func RejeterInscription(app *App) http.HandlerFunc { return transition(app, svc.Reject) }

// DELETE /api/admin/inscriptions/{id}
func DeleteInscription(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			badRequest(w, "Identifiant invalide.")
			return
		}
		insc, err := svc.Delete(id)
		if err != nil {
			app.writeError(w, r, err)
			return
		}
		if insc.PhotoURL != "" && app.Photos != nil {
			if err := app.Photos.Delete(r.Context(), insc.PhotoURL); err != nil {
				app.logger().Warn("photo delete failed", err, map[string]interface{}{"photo_url": insc.PhotoURL})
			}
		}
		app.local(app.Cache.DeleteInscriptionLocal(id))
		w.WriteHeader(http.StatusNoContent)
	}
}

type dortoirBody struct {
	DortoirID uint `json:"dortoir_id" validate:"required"`
}

// POST /api/admin/inscriptions/{id}/dortoir
func AssignDortoir(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			badRequest(w, "Identifiant invalide.")
			return
		}
		var body dortoirBody
		if err := decodeJSON(r, &body); err != nil {
			badRequest(w, "Requête invalide.")
			return
		}
		if err := validate.Struct(body); err != nil {
			app.writeError(w, r, err)
			return
		}

		// Cached occupancy answers fast; an unknown dortoir may just be newer
		// than the last load, so the transaction decides.
		if cur, ok := app.Cache.Inscription(id); ok {
			if cur.DortoirID != nil && *cur.DortoirID == body.DortoirID {
				writeJSON(w, http.StatusOK, cur)
				return
			}
			err := svc.CheckDortoirCapacity(app.Cache.DortoirStats(), cur, body.DortoirID)
			if err != nil && !errors.Is(err, svc.ErrDortoirIntrouvable) {
				app.writeError(w, r, err)
				return
			}
		}

		insc, err := svc.AssignDortoir(id, body.DortoirID)
		if err != nil {
			app.writeError(w, r, err)
			return
		}
		app.local(app.Cache.UpdateInscriptionLocal(id, map[string]any{"dortoir_id": body.DortoirID}))
		writeJSON(w, http.StatusOK, insc)
	}
}

type paiementBody struct {
	Montant      int64  `json:"montant" validate:"required,gt=0"`
	ModePaiement string `json:"mode_paiement" validate:"required,oneof=especes mobile_money virement autre"`
}

// POST /api/admin/inscriptions/{id}/paiements
func AddPaiement(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			badRequest(w, "Identifiant invalide.")
			return
		}
		sess := session(r)
		if cur, ok := app.Cache.Inscription(id); ok && !visible(sess, cur) {
			app.writeError(w, r, svc.ErrInscriptionIntrouvable)
			return
		}
		var body paiementBody
		if err := decodeJSON(r, &body); err != nil {
			badRequest(w, "Requête invalide.")
			return
		}
		if err := validate.Struct(body); err != nil {
			app.writeError(w, r, err)
			return
		}

		p := &models.Paiement{
			InscriptionID: id,
			Montant:       body.Montant,
			ModePaiement:  body.ModePaiement,
			CreatedBy:     sess.Email,
		}
		insc, err := svc.AddPaiement(p, scopeOf(sess))
		if err != nil {
			app.writeError(w, r, err)
			return
		}
		app.local(app.Cache.AddPaiementLocal(*p))
		app.local(app.Cache.UpdateInscriptionLocal(id, map[string]any{
			"montant_paye":    insc.MontantPaye,
			"statut_paiement": insc.StatutPaiement,
		}))
		writeJSON(w, http.StatusCreated, p)
	}
}

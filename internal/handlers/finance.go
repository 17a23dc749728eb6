package handlers

import (
	"net/http"

	"github.com/sefimap/manager/internal/models"
	svc "github.com/sefimap/manager/internal/services"
)

type refusBody struct {
	Confirm bool `json:"confirm"`
}

func decide(app *App, decision string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			badRequest(w, "Identifiant invalide.")
			return
		}
		confirmed := true
		if decision == models.PaiementRefuse {
			var body refusBody
			if err := decodeJSON(r, &body); err != nil {
				badRequest(w, "Requête invalide.")
				return
			}
			confirmed = body.Confirm
		}
		insc, err := svc.DecideFinance(id, decision, confirmed)
		if err != nil {
			app.writeError(w, r, err)
			return
		}
		app.local(app.Cache.UpdateInscriptionLocal(id, map[string]any{"statut_paiement": insc.StatutPaiement}))
		writeJSON(w, http.StatusOK, insc)
	}
}

// POST /api/finance/inscriptions/{id}/valider
func ValiderFinance(app *App) http.HandlerFunc { return decide(app, models.PaiementValideFinancier) }

// POST /api/finance/inscriptions/{id}/refuser
func RefuserFinance(app *App) http.HandlerFunc { return decide(app, models.PaiementRefuse) }

// GET /api/finance/resume
func ResumeFinancier(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.BuildResumeFinancier(app.Cache.Inscriptions()))
	}
}

// GET /api/finance/paiements?inscription_id=
func ListPaiements(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if v := r.URL.Query().Get("inscription_id"); v != "" {
			id := formUint(r, "inscription_id")
			if id == 0 {
				badRequest(w, "Identifiant invalide.")
				return
			}
			writeJSON(w, http.StatusOK, app.Cache.PaiementsOf(id))
			return
		}
		writeJSON(w, http.StatusOK, app.Cache.Paiements())
	}
}

// POST /api/finance/paiements/{id}/annuler
func AnnulerPaiement(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			badRequest(w, "Identifiant invalide.")
			return
		}
		p, insc, err := svc.AnnulerPaiement(id)
		if err != nil {
			app.writeError(w, r, err)
			return
		}
		app.local(app.Cache.UpdatePaiementLocal(p.ID, map[string]any{"statut": p.Statut}))
		app.local(app.Cache.UpdateInscriptionLocal(insc.ID, map[string]any{
			"montant_paye":    insc.MontantPaye,
			"statut_paiement": insc.StatutPaiement,
		}))
		writeJSON(w, http.StatusOK, p)
	}
}

package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/sefimap/manager/internal/models"
	svc "github.com/sefimap/manager/internal/services"
	"github.com/sefimap/manager/internal/validate"
)

type rosterRow struct {
	NoteID        uint     `json:"note_id"`
	InscriptionID uint     `json:"inscription_id"`
	Code          string   `json:"code"`
	Nom           string   `json:"nom"`
	Prenom        string   `json:"prenom"`
	NoteEntree    *float64 `json:"note_entree"`
	NoteCahiers   *float64 `json:"note_cahiers"`
	NoteConduite  *float64 `json:"note_conduite"`
	NoteSortie    *float64 `json:"note_sortie"`
	Moyenne       *float64 `json:"moyenne"`
	Rang          *int     `json:"rang"`
	Total         int      `json:"total"`
}

func (a *App) roster(classeID uint) []rosterRow {
	notes := a.Cache.NotesOfClasse(classeID)
	ranks := svc.ComputeRanks(notes)
	rows := make([]rosterRow, 0, len(notes))
	for _, n := range notes {
		row := rosterRow{
			NoteID:        n.ID,
			InscriptionID: n.InscriptionID,
			NoteEntree:    n.NoteEntree,
			NoteCahiers:   n.NoteCahiers,
			NoteConduite:  n.NoteConduite,
			NoteSortie:    n.NoteSortie,
			Moyenne:       n.Moyenne,
		}
		if insc, ok := a.Cache.Inscription(n.InscriptionID); ok {
			row.Code, row.Nom, row.Prenom = insc.Code, insc.Nom, insc.Prenom
		}
		if rg, ok := ranks[n.ID]; ok {
			v := rg.Rang
			row.Rang, row.Total = &v, rg.Total
		}
		rows = append(rows, row)
	}
	return rows
}

func csvNote(v *float64) string {
	if v == nil {
		return ""
	}
	return strings.Replace(strconv.FormatFloat(*v, 'f', 2, 64), ".", ",", 1)
}

// GET /api/admin/classes/{id}/roster[?format=csv]
func ClasseRoster(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			badRequest(w, "Identifiant invalide.")
			return
		}
		var classe *models.Classe
		for _, c := range app.Cache.Classes() {
			if c.ID == id {
				c := c
				classe = &c
				break
			}
		}
		if classe == nil {
			app.writeError(w, r, svc.ErrClasseIntrouvable)
			return
		}
		rows := app.roster(id)

		if r.URL.Query().Get("format") != "csv" {
			writeJSON(w, http.StatusOK, map[string]any{"classe": classe, "notes": rows})
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=classe-%d.csv", id))
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"Code", "Nom", "Prénom", "Entrée", "Cahiers", "Conduite", "Sortie", "Moyenne", "Rang"})
		for _, row := range rows {
			rang := ""
			if row.Rang != nil {
				rang = fmt.Sprintf("%d / %d", *row.Rang, row.Total)
			}
			_ = cw.Write([]string{
				row.Code, row.Nom, row.Prenom,
				csvNote(row.NoteEntree), csvNote(row.NoteCahiers), csvNote(row.NoteConduite), csvNote(row.NoteSortie),
				csvNote(row.Moyenne), rang,
			})
		}
		cw.Flush()
	}
}

// PUT /api/admin/notes
func PutNote(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in svc.NoteInput
		if err := decodeJSON(r, &in); err != nil {
			badRequest(w, "Requête invalide.")
			return
		}
		if err := validate.Struct(in); err != nil {
			app.writeError(w, r, err)
			return
		}
		n, created, err := svc.UpsertNote(in)
		if err != nil {
			app.writeError(w, r, err)
			return
		}
		if created {
			app.local(app.Cache.AddNoteLocal(*n))
			writeJSON(w, http.StatusCreated, n)
			return
		}
		app.local(app.Cache.UpdateNoteLocal(n.ID, map[string]any{
			"note_entree":   n.NoteEntree,
			"note_cahiers":  n.NoteCahiers,
			"note_conduite": n.NoteConduite,
			"note_sortie":   n.NoteSortie,
			"moyenne":       n.Moyenne,
		}))
		writeJSON(w, http.StatusOK, n)
	}
}

// DELETE /api/admin/notes/{id}
func DeleteNote(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			badRequest(w, "Identifiant invalide.")
			return
		}
		if err := svc.DeleteNote(id); err != nil {
			app.writeError(w, r, err)
			return
		}
		app.local(app.Cache.DeleteNoteLocal(id))
		w.WriteHeader(http.StatusNoContent)
	}
}

package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sefimap/manager/internal/models"
	"github.com/sefimap/manager/internal/pdf"
	svc "github.com/sefimap/manager/internal/services"
)

// writePDF renders into a buffer first so a failure can still produce a
// proper error response.
func (a *App) writePDF(w http.ResponseWriter, r *http.Request, filename string, render func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename="+filename)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

func (a *App) photos() pdf.PhotoOpener {
	if a.Photos == nil {
		return nil
	}
	return a.Photos
}

// GET /api/admin/inscriptions/{id}/badge.pdf
func BadgePDF(app *App) http.HandlerFunc {
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
		app.writePDF(w, r, fmt.Sprintf("badge-%s.pdf", insc.Code), func(buf *bytes.Buffer) error {
			return pdf.Badge(r.Context(), buf, app.photos(), insc)
		})
	}
}

// GET /api/admin/badges.pdf takes the same filters as the list. Rejected
// registrations are left out unless asked for with statut=rejete.
func BadgesPDF(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all := app.filtered(r)
		inscs := make([]models.Inscription, 0, len(all))
		for _, i := range all {
			if i.Statut == models.StatutRejete && r.URL.Query().Get("statut") != models.StatutRejete {
				continue
			}
			inscs = append(inscs, i)
		}
		app.writePDF(w, r, "badges.pdf", func(buf *bytes.Buffer) error {
			return pdf.Badges(r.Context(), buf, app.photos(), inscs)
		})
	}
}

// bulletin assembles one report card from cached rows.
func (a *App) bulletin(n models.NoteExamen, peers []models.NoteExamen) pdf.BulletinData {
	b := pdf.BulletinData{Note: n}
	if insc, ok := a.Cache.Inscription(n.InscriptionID); ok {
		b.Inscription = insc
	} else if n.Inscription != nil {
		b.Inscription = *n.Inscription
	}
	if n.Classe != nil {
		b.Classe = *n.Classe
	} else {
		for _, c := range a.Cache.Classes() {
			if c.ID == n.ClasseID {
				b.Classe = c
				break
			}
		}
	}
	b.Rang, b.Ranked = svc.RankOf(peers, n.ID)
	return b
}

// GET /api/admin/notes/{id}/bulletin.pdf
func BulletinPDF(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			badRequest(w, "Identifiant invalide.")
			return
		}
		var (
			note  models.NoteExamen
			found bool
		)
		for _, n := range app.Cache.Notes() {
			if n.ID == id {
				note, found = n, true
				break
			}
		}
		if !found {
			app.writeError(w, r, svc.ErrNoteIntrouvable)
			return
		}
		b := app.bulletin(note, app.Cache.NotesOfClasse(note.ClasseID))
		app.writePDF(w, r, fmt.Sprintf("bulletin-%s.pdf", b.Inscription.Code), func(buf *bytes.Buffer) error {
			return pdf.Bulletins(buf, []pdf.BulletinData{b})
		})
	}
}

// GET /api/admin/classes/{id}/bulletins.pdf
func ClasseBulletinsPDF(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			badRequest(w, "Identifiant invalide.")
			return
		}
		notes := app.Cache.NotesOfClasse(id)
		items := make([]pdf.BulletinData, 0, len(notes))
		for _, n := range notes {
			items = append(items, app.bulletin(n, notes))
		}
		app.writePDF(w, r, fmt.Sprintf("bulletins-classe-%d.pdf", id), func(buf *bytes.Buffer) error {
			return pdf.Bulletins(buf, items)
		})
	}
}

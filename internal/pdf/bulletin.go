package pdf

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/sefimap/manager/internal/models"
	"github.com/sefimap/manager/internal/services"
)

// BulletinData is one report card. Rang is meaningful only when Ranked.
type BulletinData struct {
	Note        models.NoteExamen
	Inscription models.Inscription
	Classe      models.Classe
	Rang        services.Rang
	Ranked      bool
}

// Bulletins writes one A4 page per entry.
func Bulletins(w io.Writer, items []BulletinData) error {
	if len(items) == 0 {
		return ErrEmpty
	}
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(20, 20, 20)
	doc.SetAutoPageBreak(true, 20)
	doc.SetTitle("Bulletins SEFIMAP", true)
	doc.SetCreator("sefimap", true)
	tr := doc.UnicodeTranslatorFromDescriptor("")

	for _, b := range items {
		drawBulletin(doc, tr, b)
	}
	return output(doc, w)
}

func drawBulletin(doc *fpdf.Fpdf, tr func(string) string, b BulletinData) {
	doc.AddPage()
	pageW, _ := doc.GetPageSize()
	left, _, right, _ := doc.GetMargins()
	width := pageW - left - right

	doc.SetFont("Helvetica", "B", 18)
	doc.SetTextColor(20, 70, 140)
	doc.CellFormat(width, 10, "SEFIMAP", "", 1, "C", false, 0, "")
	doc.SetFont("Helvetica", "", 13)
	doc.SetTextColor(0, 0, 0)
	doc.CellFormat(width, 8, tr("Bulletin de notes"), "", 1, "C", false, 0, "")
	doc.Ln(8)

	doc.SetFont("Helvetica", "", 11)
	line := func(label, value string) {
		doc.SetFont("Helvetica", "B", 11)
		doc.CellFormat(45, 7, tr(label), "", 0, "L", false, 0, "")
		doc.SetFont("Helvetica", "", 11)
		doc.CellFormat(width-45, 7, tr(value), "", 1, "L", false, 0, "")
	}
	line("Nom :", b.Inscription.Nom)
	line("Prénom :", b.Inscription.Prenom)
	line("Code :", b.Inscription.Code)
	line("Classe :", b.Classe.Nom)
	line("Niveau :", niveauNom(b.Inscription))
	doc.Ln(6)

	// scores table
	colW := []float64{width * 0.65, width * 0.35}
	doc.SetFillColor(230, 236, 245)
	doc.SetFont("Helvetica", "B", 11)
	doc.CellFormat(colW[0], 8, tr("Épreuve"), "1", 0, "L", true, 0, "")
	doc.CellFormat(colW[1], 8, "Note / 20", "1", 1, "C", true, 0, "")

	doc.SetFont("Helvetica", "", 11)
	rows := []struct {
		label string
		v     *float64
	}{
		{"Note d'entrée", b.Note.NoteEntree},
		{"Note des cahiers", b.Note.NoteCahiers},
		{"Note de conduite", b.Note.NoteConduite},
		{"Note de sortie", b.Note.NoteSortie},
	}
	for _, r := range rows {
		doc.CellFormat(colW[0], 8, tr(r.label), "1", 0, "L", false, 0, "")
		doc.CellFormat(colW[1], 8, fmtNote(r.v), "1", 1, "C", false, 0, "")
	}

	doc.SetFont("Helvetica", "B", 11)
	doc.CellFormat(colW[0], 9, "Moyenne", "1", 0, "L", true, 0, "")
	doc.CellFormat(colW[1], 9, fmtNote(b.Note.Moyenne), "1", 1, "C", true, 0, "")
	rang := "-"
	if b.Ranked {
		rang = fmt.Sprintf("%d / %d", b.Rang.Rang, b.Rang.Total)
	}
	doc.CellFormat(colW[0], 9, "Rang", "1", 0, "L", true, 0, "")
	doc.CellFormat(colW[1], 9, rang, "1", 1, "C", true, 0, "")

	doc.Ln(12)
	doc.SetFont("Helvetica", "I", 9)
	doc.CellFormat(width, 6, tr("Édité le "+time.Now().Format("02/01/2006")), "", 1, "R", false, 0, "")
}

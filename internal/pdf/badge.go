package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/sefimap/manager/internal/models"
)

// Badge page is a credit-card sized landscape sheet, in millimetres.
const (
	badgeW = 86.0
	badgeH = 54.0
)

var niveauLabel = map[string]string{
	models.NiveauDebutant:  "Débutant",
	models.NiveauNormal:    "Normal",
	models.NiveauSuperieur: "Supérieur",
}

func newBadgeDoc() *fpdf.Fpdf {
	// landscape swaps the given size: Wd is the short side
	doc := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "L",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: badgeH, Ht: badgeW},
	})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.SetTitle("Badges SEFIMAP", true)
	doc.SetCreator("sefimap", true)
	return doc
}

// Badge writes a one-page badge PDF.
func Badge(ctx context.Context, w io.Writer, photos PhotoOpener, insc models.Inscription) error {
	return Badges(ctx, w, photos, []models.Inscription{insc})
}

// Badges writes one badge page per registration.
func Badges(ctx context.Context, w io.Writer, photos PhotoOpener, inscs []models.Inscription) error {
	if len(inscs) == 0 {
		return ErrEmpty
	}
	doc := newBadgeDoc()
	tr := doc.UnicodeTranslatorFromDescriptor("")
	for _, insc := range inscs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := drawBadge(ctx, doc, tr, photos, insc); err != nil {
			return err
		}
	}
	return output(doc, w)
}

func drawBadge(ctx context.Context, doc *fpdf.Fpdf, tr func(string) string, photos PhotoOpener, insc models.Inscription) error {
	doc.AddPage()

	// header band
	doc.SetFillColor(20, 70, 140)
	doc.Rect(0, 0, badgeW, 9, "F")
	doc.SetTextColor(255, 255, 255)
	doc.SetFont("Helvetica", "B", 11)
	doc.SetXY(0, 1.5)
	doc.CellFormat(badgeW, 6, "SEFIMAP", "", 0, "C", false, 0, "")

	// photo frame
	doc.SetDrawColor(180, 180, 180)
	doc.Rect(4, 12, 22, 28, "D")
	name := fmt.Sprintf("photo-%d", insc.ID)
	if registerPhoto(ctx, doc, photos, name, insc.PhotoURL) {
		doc.ImageOptions(name, 4, 12, 22, 28, false, fpdf.ImageOptions{}, 0, "")
	}

	doc.SetTextColor(0, 0, 0)
	doc.SetFont("Helvetica", "B", 10)
	doc.SetXY(29, 12)
	doc.CellFormat(55, 5, tr(insc.Nom), "", 2, "L", false, 0, "")
	doc.SetFont("Helvetica", "", 9)
	doc.CellFormat(55, 5, tr(insc.Prenom), "", 2, "L", false, 0, "")

	doc.SetFont("Helvetica", "", 7.5)
	doc.SetXY(29, 24)
	doc.CellFormat(32, 4, tr("Dortoir : "+dortoirNom(insc)), "", 2, "L", false, 0, "")
	doc.CellFormat(32, 4, tr("Niveau : "+niveauNom(insc)), "", 2, "L", false, 0, "")

	doc.SetFont("Courier", "B", 8)
	doc.SetXY(4, 44)
	doc.CellFormat(50, 5, insc.Code, "", 0, "L", false, 0, "")

	if insc.Code != "" {
		png, err := qrcode.Encode(insc.Code, qrcode.Medium, 256)
		if err != nil {
			return errors.Wrap(err, "encode qr")
		}
		qrName := "qr-" + insc.Code
		doc.RegisterImageOptionsReader(qrName, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(png))
		doc.ImageOptions(qrName, 62, 30, 20, 20, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	}
	return nil
}

func dortoirNom(insc models.Inscription) string {
	if insc.Dortoir != nil && insc.Dortoir.Nom != "" {
		return insc.Dortoir.Nom
	}
	return "-"
}

func niveauNom(insc models.Inscription) string {
	if insc.NiveauFormation == nil {
		return "-"
	}
	if l, ok := niveauLabel[*insc.NiveauFormation]; ok {
		return l
	}
	return *insc.NiveauFormation
}

package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"

	"github.com/sefimap/manager/internal/logsvc"
)

var ErrEmpty = errors.New("aucun document à générer")

// PhotoOpener reads a stored participant photo by its public URL.
type PhotoOpener interface {
	Open(ctx context.Context, publicURL string) (io.ReadCloser, error)
}

// maxPhotoBytes caps what a badge will embed.
const maxPhotoBytes = 8 << 20

// registerPhoto loads a photo into doc under name. It reports false when
// the photo cannot be used; badges are still printed without it.
func registerPhoto(ctx context.Context, doc *fpdf.Fpdf, photos PhotoOpener, name, url string) bool {
	if photos == nil || url == "" {
		return false
	}
	rc, err := photos.Open(ctx, url)
	if err != nil {
		logsvc.Default().Warn("badge photo unavailable", err, map[string]interface{}{"photo_url": url})
		return false
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxPhotoBytes))
	if err != nil {
		logsvc.Default().Warn("badge photo unreadable", err, map[string]interface{}{"photo_url": url})
		return false
	}
	typ := imageType(data)
	if typ == "" {
		return false
	}
	doc.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: typ}, bytes.NewReader(data))
	if !doc.Ok() {
		// a broken image must not spoil the whole batch
		logsvc.Default().Warn("badge photo rejected", doc.Error(), map[string]interface{}{"photo_url": url})
		doc.ClearError()
		return false
	}
	return true
}

func imageType(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return "JPG"
	case "image/png":
		return "PNG"
	case "image/gif":
		return "GIF"
	}
	return ""
}

// fmtNote prints a score the French way, "-" when missing.
func fmtNote(v *float64) string {
	if v == nil {
		return "-"
	}
	return strings.Replace(fmt.Sprintf("%.2f", *v), ".", ",", 1)
}

func output(doc *fpdf.Fpdf, w io.Writer) error {
	if err := doc.Error(); err != nil {
		return errors.Wrap(err, "render pdf")
	}
	return errors.Wrap(doc.Output(w), "write pdf")
}

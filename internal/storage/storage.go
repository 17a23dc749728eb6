package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Storage is the participant photo bucket.
type Storage interface {
	// Upload stores r under a fresh collision-resistant name derived from
	// filename and returns the public URL.
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
	// Delete removes the object a public URL points to.
	Delete(ctx context.Context, publicURL string) error
	// Open reads the object a public URL points to.
	Open(ctx context.Context, publicURL string) (io.ReadCloser, error)
}

var ErrBadURL = errors.New("photo url does not name an object")

// NewName builds "<unix millis>-<random>.<ext>" keeping the original
// extension in lower case.
func NewName(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" {
		ext = ".jpg"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	return fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), suffix, ext)
}

// NameFromURL extracts the object name from a stored public URL.
func NameFromURL(publicURL string) (string, error) {
	u, err := url.Parse(publicURL)
	if err != nil {
		return "", errors.Wrap(ErrBadURL, err.Error())
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", ErrBadURL
	}
	return name, nil
}

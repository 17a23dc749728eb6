package storage

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Local keeps photos in a directory served by the app under /photos/.
type Local struct {
	fs      afero.Fs
	baseURL string
}

// NewLocal stores photos below dir; publicBaseURL is the app's external URL.
func NewLocal(dir, publicBaseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", dir)
	}
	return NewLocalFs(afero.NewBasePathFs(afero.NewOsFs(), dir), publicBaseURL), nil
}

func NewLocalFs(fs afero.Fs, publicBaseURL string) *Local {
	return &Local{fs: fs, baseURL: publicBaseURL}
}

// Fs exposes the underlying filesystem so the router can serve it.
func (l *Local) Fs() afero.Fs { return l.fs }

func (l *Local) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	name := NewName(filename)
	f, err := l.fs.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", errors.Wrap(err, "create photo")
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = l.fs.Remove(name)
		return "", errors.Wrap(err, "write photo")
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "close photo")
	}
	return l.baseURL + "/photos/" + name, nil
}

func (l *Local) Delete(ctx context.Context, publicURL string) error {
	name, err := NameFromURL(publicURL)
	if err != nil {
		return err
	}
	return errors.Wrap(l.fs.Remove(name), "remove photo")
}

func (l *Local) Open(ctx context.Context, publicURL string) (io.ReadCloser, error) {
	name, err := NameFromURL(publicURL)
	if err != nil {
		return nil, err
	}
	f, err := l.fs.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, "open photo")
	}
	return f, nil
}

package storage

import (
	"context"
	"io"

	"github.com/kurin/blazer/b2"
	"github.com/pkg/errors"
)

// B2 stores photos in a public Backblaze B2 bucket.
type B2 struct {
	Client *b2.Client
	Bucket *b2.Bucket
}

func NewB2(ctx context.Context, accountID, appKey, bucketName string) (*B2, error) {
	client, err := b2.NewClient(ctx, accountID, appKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create b2 client")
	}

	bucket, err := client.Bucket(ctx, bucketName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get bucket")
	}

	return &B2{Client: client, Bucket: bucket}, nil
}

func (s *B2) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	obj := s.Bucket.Object("photos/" + NewName(filename))
	w := obj.NewWriter(ctx)

	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", errors.Wrap(err, "failed to write object")
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrap(err, "failed to close writer")
	}
	return obj.URL(), nil
}

func (s *B2) Delete(ctx context.Context, publicURL string) error {
	name, err := NameFromURL(publicURL)
	if err != nil {
		return err
	}
	return errors.Wrap(s.Bucket.Object("photos/"+name).Delete(ctx), "failed to delete object")
}

func (s *B2) Open(ctx context.Context, publicURL string) (io.ReadCloser, error) {
	name, err := NameFromURL(publicURL)
	if err != nil {
		return nil, err
	}
	return s.Bucket.Object("photos/" + name).NewReader(ctx), nil
}

package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewName(t *testing.T) {
	a := NewName("Photo Awa.JPEG")
	b := NewName("Photo Awa.JPEG")
	assert.Regexp(t, `^\d+-[0-9a-f]{10}\.jpeg$`, a)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `\.jpg$`, NewName("noext"))
}

func TestNameFromURL(t *testing.T) {
	name, err := NameFromURL("https://f000.backblazeb2.com/file/sefimap/photos/1700000000000-abcdef0123.png?x=1")
	require.NoError(t, err)
	assert.Equal(t, "1700000000000-abcdef0123.png", name)

	_, err = NameFromURL("https://cdn.test/")
	assert.Error(t, err)
}

func TestLocal_UploadOpenDelete(t *testing.T) {
	ctx := context.Background()
	l := NewLocalFs(afero.NewMemMapFs(), "http://localhost:8080")

	url, err := l.Upload(ctx, "awa.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost:8080/photos/"))

	rc, err := l.Open(ctx, url)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "png-bytes", string(body))

	require.NoError(t, l.Delete(ctx, url))
	_, err = l.Open(ctx, url)
	assert.Error(t, err)
	assert.Error(t, l.Delete(ctx, url), "second delete reports the missing file")
}

package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePDF = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n"

func newFileBackend(t *testing.T) *FileBackend {
	t.Helper()
	b, err := NewFileBackend(filepath.Join(t.TempDir(), "book"))
	require.NoError(t, err)
	return b
}

func TestFileBackend_PutStatOpen(t *testing.T) {
	b := newFileBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "dune.pdf", strings.NewReader(samplePDF), int64(len(samplePDF)), "application/pdf"))

	info, err := b.Stat(ctx, "dune.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(len(samplePDF)), info.Size)
	assert.Equal(t, "application/pdf", info.ContentType)

	rc, info, err := b.Open(ctx, "dune.pdf")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, samplePDF, string(data))
	assert.Equal(t, "dune.pdf", info.Key)

	entries, err := os.ReadDir(b.Root())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileBackend_Missing(t *testing.T) {
	b := newFileBackend(t)
	ctx := context.Background()

	_, err := b.Stat(ctx, "nope.epub")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, _, err = b.Open(ctx, "nope.epub")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	require.NoError(t, os.Mkdir(filepath.Join(b.Root(), "folder.epub"), 0o755))
	_, err = b.Stat(ctx, "folder.epub")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestFileBackend_RejectsPathKeys(t *testing.T) {
	b := newFileBackend(t)
	ctx := context.Background()

	for _, key := range []string{"", ".", "..", "../secret.pdf", `sub\file.pdf`, "a/b.epub"} {
		_, err := b.Stat(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestTranslateMinioError(t *testing.T) {
	notFound := minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}
	assert.ErrorIs(t, translateMinioError(notFound), ErrObjectNotFound)

	invalid := minio.ErrorResponse{Code: "XMinioInvalidObjectName"}
	assert.ErrorIs(t, translateMinioError(invalid), ErrInvalidKey)

	other := minio.ErrorResponse{Code: "AccessDenied"}
	err := translateMinioError(other)
	assert.NotErrorIs(t, err, ErrObjectNotFound)
	assert.Contains(t, err.Error(), "minio")
}

package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
	"github.com/JakeFAU/legal-ingest-crawler/internal/extract"
	"github.com/JakeFAU/legal-ingest-crawler/internal/storage"
	"github.com/JakeFAU/legal-ingest-crawler/internal/storage/local"
)

func newBackend(t *testing.T) *local.Backend {
	t.Helper()
	b, err := local.New(extract.New(extract.Config{}, nil, nil, nil))
	require.NoError(t, err)
	return b
}

func loc(t *testing.T, path string) storage.Location {
	t.Helper()
	l, err := storage.ParseLocation(path)
	require.NoError(t, err)
	require.Equal(t, storage.LocationLocal, l.Kind)
	return l
}

func TestNewRequiresExtractor(t *testing.T) {
	t.Parallel()

	_, err := local.New(nil)
	assert.Error(t, err)
}

func TestWriteCreatesParentsThenReads(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	path := filepath.Join(t.TempDir(), "US", "TAX", "abc.txt")

	require.NoError(t, b.Write(context.Background(), loc(t, path), []byte("hello law")))

	got, err := b.Read(context.Background(), loc(t, path))
	require.NoError(t, err)
	assert.Equal(t, "hello law", string(got))

	ok, err := b.Exists(context.Background(), loc(t, path))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReadMissingIsNotFound(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	_, err := b.Read(context.Background(), loc(t, filepath.Join(t.TempDir(), "nope.txt")))
	assert.ErrorIs(t, err, crawler.ErrNotFound)

	_, err = b.Read(context.Background(), loc(t, t.TempDir()))
	assert.ErrorIs(t, err, crawler.ErrNotFound)
}

func TestDeleteToleratesMissingFile(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	path := filepath.Join(t.TempDir(), "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	require.NoError(t, b.Delete(context.Background(), loc(t, path)))
	ok, err := b.Exists(context.Background(), loc(t, path))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, b.Delete(context.Background(), loc(t, path)))
}

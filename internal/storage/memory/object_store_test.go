package memory

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
)

func TestObjectStoreUploadCopiesData(t *testing.T) {
	t.Parallel()

	store := NewObjectStore()
	payload := []byte("content")
	if err := store.Upload(context.Background(), "bucket", "US/TAX/a.txt", bytes.NewReader(payload)); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	payload[0] = 'C'
	stored, ok := store.Object("bucket", "US/TAX/a.txt")
	if !ok || string(stored) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	if keys := store.Keys(); len(keys) != 1 || keys[0] != "bucket/US/TAX/a.txt" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestObjectStoreDownloadMissing(t *testing.T) {
	t.Parallel()

	store := NewObjectStore()
	var buf bytes.Buffer
	err := store.Download(context.Background(), "bucket", "missing", &buf)
	if !errors.Is(err, crawler.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	ok, err := store.Exists(context.Background(), "bucket", "missing")
	if err != nil || ok {
		t.Fatalf("expected missing object, got %v %v", ok, err)
	}
}

func TestObjectStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewObjectStore()
	if err := store.Upload(context.Background(), "b", "k", strings.NewReader("law")); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	var buf bytes.Buffer
	if err := store.Download(context.Background(), "b", "k", &buf); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if buf.String() != "law" {
		t.Fatalf("expected law, got %q", buf.String())
	}
}

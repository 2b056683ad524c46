// Package gcs provides an object store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
)

// ObjectStore serves gs:// locations.
type ObjectStore struct {
	client *storage.Client
}

// New creates a GCS-backed object store.
func New(client *storage.Client) (*ObjectStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	return &ObjectStore{client: client}, nil
}

// NewFromEnvironment creates a client using Application Default Credentials.
func NewFromEnvironment(ctx context.Context) (*ObjectStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &ObjectStore{client: client}, nil
}

// Close releases the underlying client.
func (s *ObjectStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close gcs client: %w", err)
	}
	return nil
}

// Download streams the object into w.
func (s *ObjectStore) Download(ctx context.Context, bucket, key string, w io.Writer) error {
	reader, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return crawler.NewError(crawler.KindNotFound, "download", "gs://"+bucket+"/"+key, err)
		}
		return fmt.Errorf("open object reader: %w", err)
	}
	defer reader.Close() //nolint:errcheck // read-only

	if _, err := io.Copy(w, reader); err != nil {
		return fmt.Errorf("copy object: %w", err)
	}
	return nil
}

// Upload writes everything from r into the object.
func (s *ObjectStore) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("object key is required")
	}
	writer := s.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Exists checks object attributes.
func (s *ObjectStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.Bucket(bucket).Object(key).Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrObjectNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("object attrs: %w", err)
	}
}

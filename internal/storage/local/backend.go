// Package local implements the local filesystem storage backend.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
	"github.com/JakeFAU/legal-ingest-crawler/internal/storage"
)

// Backend reads and writes files on the local filesystem. Reads are routed
// through the Extractor so PDFs and DOCX files come back as text.
type Backend struct {
	extractor crawler.Extractor
}

var _ storage.Backend = (*Backend)(nil)

// New creates a local filesystem backend.
func New(extractor crawler.Extractor) (*Backend, error) {
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	return &Backend{extractor: extractor}, nil
}

// Read extracts the file at loc. A missing file yields crawler.KindNotFound.
func (b *Backend) Read(ctx context.Context, loc storage.Location) ([]byte, error) {
	info, err := os.Stat(loc.Key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, crawler.NewError(crawler.KindNotFound, "read", loc.Key, err)
		}
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, crawler.NewError(crawler.KindNotFound, "read", loc.Key, fmt.Errorf("path is a directory"))
	}
	content, err := b.extractor.ExtractFile(ctx, loc.Key)
	if err != nil {
		return nil, fmt.Errorf("extract file: %w", err)
	}
	return content, nil
}

// Write creates missing parent directories and writes content.
func (b *Backend) Write(_ context.Context, loc storage.Location, content []byte) error {
	dir := filepath.Dir(loc.Key)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := os.WriteFile(loc.Key, content, 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Exists reports whether the file exists.
func (b *Backend) Exists(_ context.Context, loc storage.Location) (bool, error) {
	_, err := os.Stat(loc.Key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat file: %w", err)
	}
}

// Delete removes the file; a missing file is not an error.
func (b *Backend) Delete(_ context.Context, loc storage.Location) error {
	if err := os.Remove(loc.Key); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
)

// ObjectStore moves whole objects in and out of one bucket-style service.
// Download must return an error of kind crawler.KindNotFound for missing
// objects.
type ObjectStore interface {
	Download(ctx context.Context, bucket, key string, w io.Writer) error
	Upload(ctx context.Context, bucket, key string, r io.Reader) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// ObjectConfig configures an ObjectBackend.
type ObjectConfig struct {
	// TempDir is where objects are staged. Empty means os.TempDir().
	TempDir string
	// Stores maps a URI scheme (s3, gs, memory) to its ObjectStore.
	Stores map[string]ObjectStore
	// Local extracts staged copies on read.
	Local Backend
}

// ObjectBackend stages objects on local disk so reads get the same
// format-aware extraction as local files.
type ObjectBackend struct {
	tempDir string
	stores  map[string]ObjectStore
	local   Backend
}

// NewObjectBackend validates cfg and builds an ObjectBackend.
func NewObjectBackend(cfg ObjectConfig) (*ObjectBackend, error) {
	if len(cfg.Stores) == 0 {
		return nil, fmt.Errorf("at least one object store is required")
	}
	if cfg.Local == nil {
		return nil, fmt.Errorf("local backend is required for staged reads")
	}
	stores := make(map[string]ObjectStore, len(cfg.Stores))
	for scheme, s := range cfg.Stores {
		stores[scheme] = s
	}
	return &ObjectBackend{tempDir: cfg.TempDir, stores: stores, local: cfg.Local}, nil
}

func (b *ObjectBackend) store(op string, loc Location) (ObjectStore, error) {
	s, ok := b.stores[loc.Scheme]
	if !ok {
		return nil, crawler.NewError(crawler.KindUnsupported, op, loc.Raw,
			fmt.Errorf("no object store for scheme %q", loc.Scheme))
	}
	return s, nil
}

// Read downloads the object into a private temp dir, extracts it through the
// local backend and removes the staged copy.
func (b *ObjectBackend) Read(ctx context.Context, loc Location) ([]byte, error) {
	s, err := b.store("read", loc)
	if err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp(b.tempDir, "object-read-*")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(dir) //nolint:errcheck // best-effort cleanup

	name := path.Base(loc.Key)
	if name == "." || name == "/" || name == "" {
		name = "object"
	}
	staged := filepath.Join(dir, name)
	f, err := os.Create(staged) // #nosec G304 -- path is inside our own temp dir.
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}
	if err := s.Download(ctx, loc.Bucket, loc.Key, f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("download object: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close staged file: %w", err)
	}
	localLoc, err := ParseLocation(staged)
	if err != nil {
		return nil, err
	}
	content, err := b.local.Read(ctx, localLoc)
	if err != nil {
		return nil, fmt.Errorf("read staged object: %w", err)
	}
	return content, nil
}

// Write stages content in a temp file and uploads it.
func (b *ObjectBackend) Write(ctx context.Context, loc Location, content []byte) error {
	s, err := b.store("write", loc)
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(b.tempDir, "object-write-*")
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	defer os.Remove(f.Name()) //nolint:errcheck // best-effort cleanup
	defer f.Close()           //nolint:errcheck // read-only after upload

	if _, err := f.Write(content); err != nil {
		return fmt.Errorf("stage content: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind staged content: %w", err)
	}
	if err := s.Upload(ctx, loc.Bucket, loc.Key, f); err != nil {
		return fmt.Errorf("upload object: %w", err)
	}
	return nil
}

// Exists asks the object store.
func (b *ObjectBackend) Exists(ctx context.Context, loc Location) (bool, error) {
	s, err := b.store("exists", loc)
	if err != nil {
		return false, err
	}
	ok, err := s.Exists(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return false, fmt.Errorf("object exists: %w", err)
	}
	return ok, nil
}

// Delete is not supported for object storage.
func (b *ObjectBackend) Delete(_ context.Context, loc Location) error {
	return crawler.NewError(crawler.KindUnsupported, "delete", loc.Raw,
		fmt.Errorf("deleting objects is not supported"))
}

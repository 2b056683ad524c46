// Package catalogue stores crawled pages under their target directory and
// writes the metadata index that lists them.
package catalogue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
	"github.com/JakeFAU/legal-ingest-crawler/internal/storage"
)

// Config controls where pages land and where metadata is staged.
type Config struct {
	BaseDir string
	// TempDir holds per-job metadata staging directories. Empty means
	// os.TempDir().
	TempDir string
}

// Cataloguer implements crawler.Cataloguer.
type Cataloguer struct {
	cfg     Config
	gateway crawler.Gateway
	docs    crawler.DocumentStore
	hasher  crawler.Hasher
	clock   crawler.Clock
	logger  *zap.Logger

	// dirLocks serializes metadata merges per target directory.
	dirLocks sync.Map
}

var _ crawler.Cataloguer = (*Cataloguer)(nil)

// New builds a Cataloguer. docs may be nil, in which case no ParsedObjects
// are handed downstream.
func New(
	cfg Config,
	gateway crawler.Gateway,
	docs crawler.DocumentStore,
	hasher crawler.Hasher,
	clock crawler.Clock,
	logger *zap.Logger,
) (*Cataloguer, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, crawler.NewError(crawler.KindConfig, "catalogue", "", errors.New("base dir is required"))
	}
	if gateway == nil || hasher == nil || clock == nil {
		return nil, fmt.Errorf("gateway, hasher and clock are required")
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cataloguer{
		cfg:     cfg,
		gateway: gateway,
		docs:    docs,
		hasher:  hasher,
		clock:   clock,
		logger:  logger.Named("catalogue"),
	}, nil
}

// Catalogue writes every page of result to the site's target directory, then
// uploads metadata.csv listing them. jobToken keeps the local staging copy
// apart from concurrent jobs.
func (c *Cataloguer) Catalogue(ctx context.Context, jobToken string, result crawler.CrawlResult) (crawler.MetadataRecordSet, error) {
	if jobToken == "" || strings.ContainsAny(jobToken, `/\`) || jobToken == "." || jobToken == ".." {
		return nil, crawler.NewError(crawler.KindConfig, "catalogue", jobToken, errors.New("invalid job token"))
	}
	dir := TargetDirectory(c.cfg.BaseDir, result.Spec)
	logger := c.logger.With(zap.String("job_id", jobToken), zap.String("path", dir))

	records := make(crawler.MetadataRecordSet, 0, len(result.Pages))
	for _, page := range result.Pages {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("catalogue canceled: %w", err)
		}
		record := crawler.ContentRecord{
			SourceURL:    page.URL,
			FileName:     DeriveFileName(page.URL),
			Jurisdiction: result.Spec.Jurisdiction,
			Category:     result.Spec.Category,
			Text:         page.Content,
		}
		target := storage.Join(dir, record.FileName)
		if err := c.gateway.Write(ctx, record.Text, target); err != nil {
			return nil, fmt.Errorf("store page %s: %w", page.URL, err)
		}
		if err := c.index(ctx, result.Spec, record, page.Title, target); err != nil {
			return nil, err
		}
		records = append(records, crawler.MetadataRecord{URL: record.SourceURL, FileName: record.FileName})
	}

	metadataPath := storage.Join(dir, MetadataFileName)
	lock := c.dirLock(dir)
	lock.Lock()
	defer lock.Unlock()

	merged, err := c.mergeExisting(ctx, metadataPath, records)
	if err != nil {
		return nil, err
	}
	if err := c.uploadMetadata(ctx, jobToken, merged, metadataPath); err != nil {
		return nil, err
	}
	logger.Info("uploaded metadata", zap.String("metadata", metadataPath), zap.Int("pages", len(records)))
	return records, nil
}

func (c *Cataloguer) index(ctx context.Context, spec crawler.CrawlSpec, record crawler.ContentRecord, title, fileURL string) error {
	if c.docs == nil {
		return nil
	}
	hash, err := c.hasher.Hash(record.Text)
	if err != nil {
		return fmt.Errorf("hash %s: %w", record.SourceURL, err)
	}
	if title == "" {
		title = record.FileName
	}
	obj := crawler.ParsedObject{
		FileURL:      fileURL,
		Jurisdiction: record.Jurisdiction,
		SourceURL:    record.SourceURL,
		Category:     record.Category,
		Subcategory:  spec.SiteName,
		IndexedAt:    c.clock.Now(),
		Hash:         hash,
		Title:        title,
	}
	if err := c.docs.UpsertDocument(ctx, obj); err != nil {
		return fmt.Errorf("index %s: %w", record.SourceURL, err)
	}
	return nil
}

func (c *Cataloguer) dirLock(dir string) *sync.Mutex {
	lock, _ := c.dirLocks.LoadOrStore(dir, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// mergeExisting folds records into the metadata already stored at path so
// sites sharing a directory keep one index. Rows for re-crawled URLs are
// updated in place and new URLs are appended.
func (c *Cataloguer) mergeExisting(ctx context.Context, path string, records crawler.MetadataRecordSet) (crawler.MetadataRecordSet, error) {
	ok, err := c.gateway.Exists(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("check metadata: %w", err)
	}
	if !ok {
		return records, nil
	}
	content, err := c.gateway.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	existing, err := DecodeRecordSet(bytes.NewReader(content))
	if err != nil {
		c.logger.Warn("replacing unreadable metadata", zap.String("path", path), zap.Error(err))
		return records, nil
	}
	return Merge(existing, records), nil
}

// Merge returns base with updates applied: a row whose URL is already present
// replaces it, any other row is appended.
func Merge(base, updates crawler.MetadataRecordSet) crawler.MetadataRecordSet {
	out := make(crawler.MetadataRecordSet, len(base), len(base)+len(updates))
	copy(out, base)
	index := make(map[string]int, len(out))
	for i, rec := range out {
		index[rec.URL] = i
	}
	for _, rec := range updates {
		if i, ok := index[rec.URL]; ok {
			out[i] = rec
			continue
		}
		index[rec.URL] = len(out)
		out = append(out, rec)
	}
	return out
}

// uploadMetadata stages the CSV under {TempDir}/{jobToken} and removes the
// staging directory whatever happens.
func (c *Cataloguer) uploadMetadata(ctx context.Context, jobToken string, records crawler.MetadataRecordSet, target string) error {
	stagingDir := filepath.Join(c.cfg.TempDir, jobToken)
	if err := os.MkdirAll(stagingDir, 0o750); err != nil {
		return fmt.Errorf("create metadata staging dir: %w", err)
	}
	defer os.RemoveAll(stagingDir) //nolint:errcheck // best-effort cleanup

	var buf bytes.Buffer
	if err := EncodeRecordSet(&buf, records); err != nil {
		return err
	}
	staged := filepath.Join(stagingDir, MetadataFileName)
	if err := os.WriteFile(staged, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("stage metadata: %w", err)
	}
	content, err := os.ReadFile(staged) // #nosec G304 -- inside our staging dir.
	if err != nil {
		return fmt.Errorf("read staged metadata: %w", err)
	}
	if err := c.gateway.Write(ctx, content, target); err != nil {
		return fmt.Errorf("upload metadata: %w", err)
	}
	return nil
}

// StagingDir reports where metadata for jobToken is staged.
func (c *Cataloguer) StagingDir(jobToken string) string {
	return filepath.Join(c.cfg.TempDir, jobToken)
}

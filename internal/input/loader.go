// Package input turns the site-list CSV into crawl specs.
package input

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
)

// Columns: url, jurisdiction, category and an optional site name.
const minColumns = 3

// Loader reads site lists through a Gateway so the list may live on disk,
// behind a URL or in a bucket.
type Loader struct {
	gateway crawler.Gateway
	logger  *zap.Logger
}

// NewLoader builds a Loader.
func NewLoader(gateway crawler.Gateway, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{gateway: gateway, logger: logger.Named("input")}
}

// Load returns one CrawlSpec per data row. The header row is skipped. Any
// malformed row fails the whole load.
func (l *Loader) Load(ctx context.Context, path string) ([]crawler.CrawlSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, crawler.NewError(crawler.KindConfig, "load", path, errors.New("site list path is not set"))
	}
	ok, err := l.gateway.Exists(ctx, path)
	if err != nil {
		return nil, crawler.NewError(crawler.KindConfig, "load", path, err)
	}
	if !ok {
		return nil, crawler.NewError(crawler.KindConfig, "load", path, errors.New("site list does not exist"))
	}
	content, err := l.gateway.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read site list: %w", err)
	}
	specs, err := Parse(bytes.NewReader(content))
	if err != nil {
		return nil, crawler.NewError(crawler.KindConfig, "load", path, err)
	}
	l.logger.Info("site list loaded", zap.String("path", path), zap.Int("sites", len(specs)))
	return specs, nil
}

// Parse decodes site-list CSV.
func Parse(r io.Reader) ([]crawler.CrawlSpec, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	var specs []crawler.CrawlSpec
	for row := 2; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return specs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		if len(record) < minColumns {
			return nil, fmt.Errorf("row %d: expected at least %d columns, got %d", row, minColumns, len(record))
		}
		var siteName string
		if len(record) > minColumns {
			siteName = record[3]
		}
		spec, err := crawler.NewCrawlSpec(record[0], record[1], record[2], siteName)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		specs = append(specs, spec)
	}
}

// Package extract turns fetched and stored documents into normalized text.
//
// PDFs go through structured text extraction first. When the normalized
// result falls below the configured threshold the pages are rendered to
// images and run through optical character recognition instead, so scanned
// documents never come back empty without an error.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
	"github.com/JakeFAU/legal-ingest-crawler/internal/metrics"
)

var nonTextPattern = regexp.MustCompile(`[^a-zA-Z0-9. ]+`)

// Normalize drops every character outside [A-Za-z0-9. ].
func Normalize(text string) string {
	return nonTextPattern.ReplaceAllString(text, "")
}

// TextExtractor pulls the embedded text layer out of a PDF.
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// Config controls extraction policy.
type Config struct {
	// MinPDFTextLength is the shortest normalized structured text accepted
	// before falling back to OCR. Values below 1 are treated as 1.
	MinPDFTextLength int
}

// Extractor implements crawler.Extractor.
type Extractor struct {
	cfg        Config
	structured TextExtractor
	ocr        *OCR
	logger     *zap.Logger
}

var _ crawler.Extractor = (*Extractor)(nil)

// New builds an Extractor. A nil structured extractor defaults to PDFText; a
// nil ocr disables the fallback.
func New(cfg Config, structured TextExtractor, ocr *OCR, logger *zap.Logger) *Extractor {
	if cfg.MinPDFTextLength < 1 {
		cfg.MinPDFTextLength = 1
	}
	if structured == nil {
		structured = PDFText{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, structured: structured, ocr: ocr, logger: logger}
}

// ExtractFile dispatches on the file suffix.
func (e *Extractor) ExtractFile(ctx context.Context, path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err := e.extractPDF(ctx, path)
		if err != nil {
			return nil, err
		}
		return []byte(text), nil
	case ".docx":
		text, err := ReadDocx(path)
		if err != nil {
			return nil, crawler.NewError(crawler.KindExtraction, "docx", path, err)
		}
		return []byte(text), nil
	default:
		data, err := os.ReadFile(path) // #nosec G304 -- callers choose the path on purpose.
		if err != nil {
			return nil, fmt.Errorf("read text file: %w", err)
		}
		return bytes.ToValidUTF8(data, []byte("�")), nil
	}
}

func (e *Extractor) extractPDF(ctx context.Context, path string) (string, error) {
	text, err := e.structured.ExtractText(ctx, path)
	if err != nil {
		e.logger.Warn("structured pdf extraction failed", zap.String("path", path), zap.Error(err))
	}
	normalized := Normalize(text)
	if len(normalized) >= e.cfg.MinPDFTextLength {
		metrics.ObserveExtraction("structured")
		return normalized, nil
	}

	if e.ocr == nil {
		metrics.ObserveExtraction("failed")
		return "", crawler.NewError(crawler.KindExtraction, "pdf", path,
			fmt.Errorf("structured text below threshold and ocr is disabled"))
	}
	e.logger.Info("reading pdf with ocr", zap.String("path", path), zap.Int("structured_len", len(normalized)))
	ocrText, err := e.ocr.Extract(ctx, path)
	if err != nil {
		metrics.ObserveExtraction("failed")
		return "", crawler.NewError(crawler.KindExtraction, "ocr", path, err)
	}
	if strings.TrimSpace(ocrText) == "" {
		metrics.ObserveExtraction("failed")
		return "", crawler.NewError(crawler.KindExtraction, "ocr", path, fmt.Errorf("no usable text"))
	}
	metrics.ObserveExtraction("ocr")
	return ocrText, nil
}

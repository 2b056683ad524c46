package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// PageRenderer rasterizes every page of a PDF into outDir and returns the
// image paths in page order.
type PageRenderer interface {
	Render(ctx context.Context, pdfPath, outDir string) ([]string, error)
}

// Recognizer runs optical character recognition on one image.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// OCR renders pages and recognizes them one at a time.
type OCR struct {
	renderer   PageRenderer
	recognizer Recognizer
	tempDir    string
	logger     *zap.Logger
}

// NewOCR wires a renderer and recognizer. Page images are written under a
// fresh directory inside tempDir (os.TempDir() when empty).
func NewOCR(renderer PageRenderer, recognizer Recognizer, tempDir string, logger *zap.Logger) (*OCR, error) {
	if renderer == nil || recognizer == nil {
		return nil, fmt.Errorf("renderer and recognizer are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OCR{renderer: renderer, recognizer: recognizer, tempDir: tempDir, logger: logger}, nil
}

// Extract returns the de-hyphenated text of all pages concatenated.
func (o *OCR) Extract(ctx context.Context, pdfPath string) (string, error) {
	dir, err := os.MkdirTemp(o.tempDir, "ocr-*")
	if err != nil {
		return "", fmt.Errorf("create ocr dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			o.logger.Warn("failed to remove ocr dir", zap.String("dir", dir), zap.Error(rmErr))
		}
	}()

	pages, err := o.renderer.Render(ctx, pdfPath, dir)
	if err != nil {
		return "", fmt.Errorf("render pages: %w", err)
	}

	var sb strings.Builder
	for i, page := range pages {
		text, err := o.recognizer.Recognize(ctx, page)
		if err != nil {
			return "", fmt.Errorf("recognize page %d: %w", i+1, err)
		}
		sb.WriteString(strings.ReplaceAll(text, "-\n", ""))
		if rmErr := os.Remove(page); rmErr != nil && !os.IsNotExist(rmErr) {
			o.logger.Warn("failed to remove page image", zap.String("path", page), zap.Error(rmErr))
		}
	}
	return sb.String(), nil
}

// Pdftoppm renders pages with poppler's pdftoppm executable.
type Pdftoppm struct {
	Binary string
	DPI    int
}

// Render writes page-N.jpg files into outDir.
func (p Pdftoppm) Render(ctx context.Context, pdfPath, outDir string) ([]string, error) {
	bin := p.Binary
	if bin == "" {
		bin = "pdftoppm"
	}
	dpi := p.DPI
	if dpi <= 0 {
		dpi = 300
	}
	prefix := filepath.Join(outDir, "page")
	// #nosec G204 -- binary comes from configuration, arguments are paths we control.
	cmd := exec.CommandContext(ctx, bin, "-r", strconv.Itoa(dpi), "-jpeg", pdfPath, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(string(out)))
	}
	pages, err := filepath.Glob(prefix + "-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("list rendered pages: %w", err)
	}
	// pdftoppm zero-pads page numbers to a common width.
	sort.Strings(pages)
	return pages, nil
}

// Tesseract recognizes text with the tesseract executable.
type Tesseract struct {
	Binary   string
	Language string
}

// Recognize prints the recognized text of imagePath.
func (t Tesseract) Recognize(ctx context.Context, imagePath string) (string, error) {
	bin := t.Binary
	if bin == "" {
		bin = "tesseract"
	}
	args := []string{imagePath, "stdout"}
	if t.Language != "" {
		args = append(args, "-l", t.Language)
	}
	// #nosec G204 -- binary comes from configuration, arguments are paths we control.
	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return string(out), nil
}

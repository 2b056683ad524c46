package extract

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/legal-ingest-crawler/internal/crawler"
)

type fakeStructured struct {
	text string
	err  error
}

func (f fakeStructured) ExtractText(context.Context, string) (string, error) {
	return f.text, f.err
}

type fakeRenderer struct {
	pages  int
	outDir string
	err    error
}

func (f *fakeRenderer) Render(_ context.Context, _ string, outDir string) ([]string, error) {
	f.outDir = outDir
	if f.err != nil {
		return nil, f.err
	}
	var out []string
	for i := 1; i <= f.pages; i++ {
		p := filepath.Join(outDir, fmt.Sprintf("page-%03d.jpg", i))
		if err := os.WriteFile(p, []byte("img"), 0o600); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type fakeRecognizer struct {
	texts map[string]string
	calls []string
}

func (f *fakeRecognizer) Recognize(_ context.Context, imagePath string) (string, error) {
	f.calls = append(f.calls, filepath.Base(imagePath))
	return f.texts[filepath.Base(imagePath)], nil
}

func writePDFStub(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 stub"), 0o600))
	return path
}

func newOCR(t *testing.T, renderer PageRenderer, recognizer Recognizer) *OCR {
	t.Helper()
	ocr, err := NewOCR(renderer, recognizer, t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return ocr
}

func TestExtractPDFKeepsStructuredText(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{pages: 1}
	ext := New(Config{}, fakeStructured{text: "Section 1: Taxes, 2024!\n"}, newOCR(t, renderer, &fakeRecognizer{}), nil)

	got, err := ext.ExtractFile(context.Background(), writePDFStub(t))
	require.NoError(t, err)
	assert.Equal(t, "Section 1 Taxes 2024", string(got))
	assert.Empty(t, renderer.outDir, "ocr must not run when structured text is usable")
}

func TestExtractPDFFallsBackToOCRWhenStructuredTextStripsEmpty(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{pages: 2}
	recognizer := &fakeRecognizer{texts: map[string]string{
		"page-001.jpg": "The tax-\nation act ",
		"page-002.jpg": "applies.",
	}}
	ext := New(Config{}, fakeStructured{text: "§§§\n\t"}, newOCR(t, renderer, recognizer), zap.NewNop())

	got, err := ext.ExtractFile(context.Background(), writePDFStub(t))
	require.NoError(t, err)
	assert.Equal(t, "The taxation act applies.", string(got))
	assert.Equal(t, []string{"page-001.jpg", "page-002.jpg"}, recognizer.calls)

	_, statErr := os.Stat(renderer.outDir)
	assert.True(t, os.IsNotExist(statErr), "ocr temp dir should be removed")
}

func TestExtractPDFFallsBackWhenStructuredExtractionErrors(t *testing.T) {
	t.Parallel()

	recognizer := &fakeRecognizer{texts: map[string]string{"page-001.jpg": "scanned"}}
	ext := New(Config{}, fakeStructured{err: errors.New("broken xref")},
		newOCR(t, &fakeRenderer{pages: 1}, recognizer), nil)

	got, err := ext.ExtractFile(context.Background(), writePDFStub(t))
	require.NoError(t, err)
	assert.Equal(t, "scanned", string(got))
}

func TestExtractPDFHonorsMinimumLength(t *testing.T) {
	t.Parallel()

	recognizer := &fakeRecognizer{texts: map[string]string{"page-001.jpg": "full ocr text"}}
	ext := New(Config{MinPDFTextLength: 10}, fakeStructured{text: "a1"},
		newOCR(t, &fakeRenderer{pages: 1}, recognizer), nil)

	got, err := ext.ExtractFile(context.Background(), writePDFStub(t))
	require.NoError(t, err)
	assert.Equal(t, "full ocr text", string(got))
}

func TestExtractPDFFailsWhenOCRYieldsNothing(t *testing.T) {
	t.Parallel()

	ext := New(Config{}, fakeStructured{text: ""},
		newOCR(t, &fakeRenderer{pages: 1}, &fakeRecognizer{texts: map[string]string{}}), nil)

	_, err := ext.ExtractFile(context.Background(), writePDFStub(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrExtraction)
}

func TestExtractPDFFailsWithoutOCR(t *testing.T) {
	t.Parallel()

	ext := New(Config{}, fakeStructured{text: "***"}, nil, nil)
	_, err := ext.ExtractFile(context.Background(), writePDFStub(t))
	require.Error(t, err)
	assert.Equal(t, crawler.KindExtraction, crawler.KindOf(err))
}

func TestExtractPDFRendererErrorIsExtractionError(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{err: errors.New("pdftoppm missing")}
	ext := New(Config{}, fakeStructured{}, newOCR(t, renderer, &fakeRecognizer{}), nil)
	_, err := ext.ExtractFile(context.Background(), writePDFStub(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrExtraction)
	assert.Contains(t, err.Error(), "pdftoppm missing")
}

func writeDocx(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "brief.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"
  xmlns:mc="http://schemas.openxmlformats.org/markup-compatibility/2006"
  xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">
  <w:body>` + body + `</w:body>
</w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestExtractDocxJoinsParagraphs(t *testing.T) {
	t.Parallel()

	path := writeDocx(t, `
    <w:p><w:r><w:t>First </w:t></w:r><w:r><w:t>paragraph</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second</w:t><w:tab/><w:t>para</w:t></w:r></w:p>
    <w:p></w:p>`)

	ext := New(Config{}, nil, nil, nil)
	got, err := ext.ExtractFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "First paragraph\nSecond\tpara\n", string(got))
}

func TestExtractDocxKeepsParagraphAroundTextBox(t *testing.T) {
	t.Parallel()

	path := writeDocx(t, `
    <w:p>
      <w:r><w:t>Section 1 applies.</w:t></w:r>
      <w:r><mc:AlternateContent>
        <mc:Choice Requires="wps"><w:drawing><w:txbxContent>
          <w:p><w:r><w:t>Sidebar</w:t></w:r></w:p>
        </w:txbxContent></w:drawing></mc:Choice>
        <mc:Fallback><w:pict><w:txbxContent>
          <w:p><w:r><w:t>Sidebar</w:t></w:r></w:p>
        </w:txbxContent></w:pict></mc:Fallback>
      </mc:AlternateContent></w:r>
      <w:r><w:t xml:space="preserve"> Penalties follow.</w:t></w:r>
    </w:p>
    <w:p><w:r><a:p><a:t>chart label</a:t></a:p></w:r></w:p>
    <w:tbl><w:tr><w:tc><w:p><w:r><w:t>cell</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
    <w:p><w:r><w:t>Section 2.</w:t></w:r></w:p>`)

	got, err := New(Config{}, nil, nil, nil).ExtractFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Section 1 applies. Penalties follow.\n\nSection 2.", string(got))
}

func TestExtractDocxRejectsNonZip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.docx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o600))

	_, err := New(Config{}, nil, nil, nil).ExtractFile(context.Background(), path)
	assert.ErrorIs(t, err, crawler.ErrExtraction)
}

func TestExtractPlainText(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain law text\n"), 0o600))

	got, err := New(Config{}, nil, nil, nil).ExtractFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "plain law text\n", string(got))
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Art. 5 Sec 2", Normalize("Art. 5, §Sec (2)"))
	assert.Equal(t, "", Normalize("\n\t§"))
}

func TestHTMLText(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><head><title> Tax Code </title><style>p{}</style></head>
<body><script>var x = 1;</script><h1>Chapter  1</h1>
<p>  Income   tax applies.  </p></body></html>`)
	text, title, err := HTMLText(body)
	require.NoError(t, err)
	assert.Equal(t, "Tax Code", title)
	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "p{}")
	assert.Contains(t, text, "Chapter 1")
	assert.Contains(t, text, "Income")
	assert.Contains(t, text, "tax applies.")
}

// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/noldarim/ragbus/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_PlainText(t *testing.T) {
	r := NewRegistry()
	path := testutil.WriteFile(t, "upload-123", testutil.SecretDocument)

	for _, name := range []string{"notes.txt", "README.md", "NOTES.TXT"} {
		text, err := r.Extract(context.Background(), path, name)
		require.NoError(t, err, name)
		assert.Equal(t, testutil.SecretDocument, text)
	}
}

func TestRegistry_Unsupported(t *testing.T) {
	r := NewRegistry()
	path := testutil.WriteFile(t, "x.xyz", "whatever")

	_, err := r.Extract(context.Background(), path, "x.xyz")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Equal(t, "Unsupported file format: .xyz", err.Error())

	_, err = r.Extract(context.Background(), path, "no-extension")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRegistry_MissingFile(t *testing.T) {
	_, err := NewRegistry().Extract(context.Background(), "/does/not/exist.txt", "exist.txt")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRegistry_CSV(t *testing.T) {
	path := testutil.WriteFile(t, "q.csv", "quarter,revenue\nQ3,4M\nQ4,5M\n")

	text, err := NewRegistry().Extract(context.Background(), path, "q.csv")
	require.NoError(t, err)
	assert.Equal(t, "   quarter  revenue\n0       Q3       4M\n1       Q4       5M", text)
}

func TestRegistry_JSONAndYAML(t *testing.T) {
	jsonPath := testutil.WriteFile(t, "d.json", `{"report":{"q4":{"revenue":"5M"},"tags":["a","b"]}}`)
	yamlPath := testutil.WriteFile(t, "d.yaml", "report:\n  q4:\n    revenue: 5M\n  tags: [a, b]\n")

	want := "report.q4.revenue: 5M\nreport.tags[0]: a\nreport.tags[1]: b"

	r := NewRegistry()
	text, err := r.Extract(context.Background(), jsonPath, "d.json")
	require.NoError(t, err)
	assert.Equal(t, want, text)

	text, err = r.Extract(context.Background(), yamlPath, "d.yml")
	require.NoError(t, err)
	assert.Equal(t, want, text)
}

func TestRegistry_CustomExtractor(t *testing.T) {
	r := NewRegistry()
	r.Register(ExtractorFunc(func(context.Context, string) (string, error) {
		return "", errors.New("encrypted")
	}), "RTF")

	assert.Contains(t, r.Supported(), ".rtf")
	_, err := r.Extract(context.Background(), "/tmp/x", "doc.rtf")
	require.EqualError(t, err, "encrypted")
}

func TestRegistry_SupportsDocumentFormats(t *testing.T) {
	supported := NewRegistry().Supported()
	for _, ext := range []string{".pdf", ".docx", ".pptx"} {
		assert.Contains(t, supported, ext)
	}
}

func writeZip(t *testing.T, name string, parts map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for partName, content := range parts {
		w, err := zw.Create(partName)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestRegistry_DOCX(t *testing.T) {
	const body = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>Quarterly report</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t xml:space="preserve">The projected revenue </w:t></w:r><w:r><w:t>for Q4 is $5M.</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Code</w:t><w:tab/><w:t>ALPHA</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	path := writeZip(t, "upload-1", map[string]string{
		"[Content_Types].xml": "<Types/>",
		"word/document.xml":   body,
	})

	text, err := NewRegistry().Extract(context.Background(), path, "report.docx")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly report\nThe projected revenue for Q4 is $5M.\nCode\tALPHA\n", text)
}

func slideXML(paragraphs ...string) string {
	var b bytes.Buffer
	b.WriteString(`<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" ` +
		`xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><p:cSld><p:spTree><p:sp><p:txBody>`)
	for _, p := range paragraphs {
		fmt.Fprintf(&b, "<a:p><a:r><a:t>%s</a:t></a:r></a:p>", p)
	}
	b.WriteString(`</p:txBody></p:sp></p:spTree></p:cSld></p:sld>`)
	return b.String()
}

func TestRegistry_PPTX(t *testing.T) {
	path := writeZip(t, "upload-2", map[string]string{
		"ppt/slides/slide10.xml":           slideXML("Slide ten"),
		"ppt/slides/slide2.xml":            slideXML("Revenue", "Q4 is $5M"),
		"ppt/slides/slide1.xml":            slideXML("Title"),
		"ppt/slides/_rels/slide1.xml.rels": "<Relationships/>",
		"ppt/slideLayouts/slideLayout1.xml": slideXML("Layout placeholder"),
	})

	text, err := NewRegistry().Extract(context.Background(), path, "deck.pptx")
	require.NoError(t, err)
	assert.Equal(t, "Title\nRevenue\nQ4 is $5M\nSlide ten\n", text)
}

// minimalPDF builds a one-page PDF showing text in Helvetica, with a valid
// cross-reference table.
func minimalPDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestRegistry_PDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upload-3")
	require.NoError(t, os.WriteFile(path, minimalPDF("The projected revenue for Q4 is $5M."), 0o600))

	text, err := NewRegistry().Extract(context.Background(), path, "report.PDF")
	require.NoError(t, err)
	assert.Contains(t, text, "The projected revenue for Q4 is $5M.")
}

func TestRegistry_CorruptDocuments(t *testing.T) {
	path := testutil.WriteFile(t, "upload-4", "not a document")
	r := NewRegistry()

	for _, name := range []string{"a.pdf", "a.docx", "a.pptx"} {
		_, err := r.Extract(context.Background(), path, name)
		require.Error(t, err, name)
		assert.NotErrorIs(t, err, ErrUnsupportedFormat, name)
	}

	empty := writeZip(t, "upload-5", map[string]string{"docProps/app.xml": "<Properties/>"})
	_, err := r.Extract(context.Background(), empty, "a.docx")
	require.ErrorContains(t, err, "missing word/document.xml")
	_, err = r.Extract(context.Background(), empty, "a.pptx")
	require.ErrorContains(t, err, "no slides")
}

func TestSlideNumber(t *testing.T) {
	tests := []struct {
		name string
		n    int
		ok   bool
	}{
		{"ppt/slides/slide1.xml", 1, true},
		{"ppt/slides/slide12.xml", 12, true},
		{"ppt/slides/_rels/slide1.xml.rels", 0, false},
		{"ppt/slideLayouts/slideLayout1.xml", 0, false},
		{"ppt/slides/slideX.xml", 0, false},
	}
	for _, tt := range tests {
		n, ok := slideNumber(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.n, n, tt.name)
	}
}

package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF writes a minimal PDF with one Helvetica text line per page
func buildPDF(pages []string) []byte {
	var objects []string
	kids := make([]string, 0, len(pages))
	for i := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+i*2))
	}

	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	)
	for i, text := range pages {
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+i*2),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtract_RealPDF(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "doc.pdf", buildPDF([]string{"The sky is blue."}))

	docs, issues := New(testLogger()).Extract(context.Background(), []UploadedFile{file})

	assert.Empty(t, issues)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc.pdf", docs[0].Name)
	assert.Contains(t, docs[0].Text, "The sky is blue.")
}

func TestExtract_RealPDFPagesJoined(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "two.pdf", buildPDF([]string{"Page one.", "Page two."}))

	docs, issues := New(testLogger()).Extract(context.Background(), []UploadedFile{file})

	assert.Empty(t, issues)
	require.Len(t, docs, 1)
	assert.Equal(t, "Page one.\n\nPage two.", docs[0].Text)
}

func TestPDFCPUOpener_PageCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "three.pdf")
	require.NoError(t, os.WriteFile(path, buildPDF([]string{"a", "b", "c"}), 0600))

	doc, err := PDFCPUOpener{}.Open(path)
	require.NoError(t, err)
	defer func() { _ = doc.Close() }()

	assert.False(t, doc.Encrypted())
	assert.Equal(t, 3, doc.PageCount())
}

func TestExtract_RealPDFWithoutPages(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "empty.pdf", buildPDF(nil))

	docs, issues := New(testLogger()).Extract(context.Background(), []UploadedFile{file})

	assert.Empty(t, docs)
	require.Len(t, issues, 1)
	assert.Equal(t, "empty.pdf", issues[0].File)
}

func TestExtract_RealEncryptedPDF(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "plain.pdf")
	require.NoError(t, os.WriteFile(plain, buildPDF([]string{"Top secret."}), 0600))

	encrypted := filepath.Join(dir, "locked.pdf")
	require.NoError(t, api.EncryptFile(plain, encrypted, model.NewAESConfiguration("user-secret", "owner-secret", 256)))

	docs, issues := New(testLogger()).Extract(context.Background(), []UploadedFile{FromPath(encrypted)})

	assert.Empty(t, docs)
	require.Len(t, issues, 1)
	assert.Equal(t, "locked.pdf", issues[0].File)
	assert.Contains(t, issues[0].Message, "encrypted")
}

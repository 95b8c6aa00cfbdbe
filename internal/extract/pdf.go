package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
)

// PDFDocument is an opened paginated document
type PDFDocument interface {
	// Encrypted reports whether the document declares an encryption dictionary
	Encrypted() bool
	PageCount() int
	// PageText returns the text of a 1-based page
	PageText(page int) (string, error)
	Close() error
}

// PDFOpener opens a PDF file for page-by-page text extraction
type PDFOpener interface {
	Open(path string) (PDFDocument, error)
}

// pdfExtractor extracts text page by page, tolerating individual page failures
type pdfExtractor struct {
	opener PDFOpener
	logger *logrus.Logger
}

func (p *pdfExtractor) extractText(ctx context.Context, file UploadedFile) (string, []Issue, error) {
	doc, err := p.opener.Open(file.Path)
	if err != nil {
		if errors.Is(err, ErrEncrypted) {
			return "", nil, ErrEncrypted
		}
		return "", nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	defer func() {
		if err := doc.Close(); err != nil {
			p.logger.WithError(err).WithField("file", file.Name).Warn("Failed to close PDF")
		}
	}()

	if doc.Encrypted() {
		return "", nil, ErrEncrypted
	}

	pageCount := doc.PageCount()
	if pageCount <= 0 {
		return "", nil, ErrNoPages
	}

	p.logger.WithFields(logrus.Fields{
		"file":       file.Name,
		"page_count": pageCount,
	}).Debug("PDF page count")

	var notes []Issue
	pages := make([]string, 0, pageCount)
	for page := 1; page <= pageCount; page++ {
		if err := ctx.Err(); err != nil {
			notes = append(notes, newIssue(file.Name, "stopped at page %d: %v", page, err))
			break
		}

		text, err := pageTextSafely(doc, page)
		if err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"file": file.Name,
				"page": page,
			}).Warn("Failed to extract text from page")
			notes = append(notes, newIssue(file.Name, "failed to extract text from page %d: %v", page, err))
			continue
		}

		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}

	combined := strings.Join(pages, "\n\n")
	if strings.TrimSpace(combined) == "" {
		return "", notes, ErrImageOnly
	}
	return combined, notes, nil
}

// pageTextSafely converts a panic in the PDF backend into a page error
func pageTextSafely(doc PDFDocument, page int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while reading page: %v", r)
		}
	}()
	return doc.PageText(page)
}

// PDFCPUOpener opens PDFs with pdfcpu
type PDFCPUOpener struct{}

// Open reads the document structure; the file stays open until Close
func (PDFCPUOpener) Open(path string) (PDFDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(f, conf)
	if err != nil {
		_ = f.Close()
		if isPasswordError(err) {
			return nil, fmt.Errorf("%w: %v", ErrEncrypted, err)
		}
		return nil, err
	}

	// ReadContext leaves PageCount unset until the page tree is walked
	if ctx.Encrypt == nil {
		if err := ctx.EnsurePageCount(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to read page tree: %w", err)
		}
	}

	return &pdfcpuDocument{file: f, ctx: ctx}, nil
}

func isPasswordError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypt")
}

type pdfcpuDocument struct {
	file *os.File
	ctx  *model.Context
}

func (d *pdfcpuDocument) Encrypted() bool {
	return d.ctx.Encrypt != nil
}

func (d *pdfcpuDocument) PageCount() int {
	return d.ctx.PageCount
}

func (d *pdfcpuDocument) PageText(page int) (string, error) {
	r, err := pdfcpu.ExtractPageContent(d.ctx, page)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", nil
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return ContentStreamText(content), nil
}

func (d *pdfcpuDocument) Close() error {
	return d.file.Close()
}

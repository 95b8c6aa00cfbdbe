// Package extract turns uploaded text and PDF files into plain text documents.
// Every failure is reported as an Issue; nothing a single file does can abort a batch.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	ErrNoFiles     = errors.New("no files provided")
	ErrNotFound    = errors.New("file does not exist")
	ErrNotRegular  = errors.New("not a regular file")
	ErrUnsupported = errors.New("unsupported file type (only text and PDF files are supported)")
	ErrEmptyFile   = errors.New("file is empty")
	ErrEncrypted   = errors.New("document is encrypted; decryption is not supported")
	ErrNoPages     = errors.New("document has no pages")
	ErrImageOnly   = errors.New("no text extracted (likely image-only content)")
)

// textExtractor is implemented by each extraction variant.
// notes are informational issues that do not prevent a document being produced.
type textExtractor interface {
	extractText(ctx context.Context, file UploadedFile) (text string, notes []Issue, err error)
}

// Extractor converts uploaded files into Documents
type Extractor struct {
	logger      *logrus.Logger
	plain       textExtractor
	pdf         textExtractor
	maxFileSize int64
}

// Option configures an Extractor
type Option func(*Extractor)

// WithPDFOpener replaces the PDF backend, mainly for tests
func WithPDFOpener(opener PDFOpener) Option {
	return func(e *Extractor) {
		e.pdf = &pdfExtractor{opener: opener, logger: e.logger}
	}
}

// WithMaxFileSize sets the per-file size limit in bytes; zero or less disables it
func WithMaxFileSize(size int64) Option {
	return func(e *Extractor) {
		e.maxFileSize = size
	}
}

// New creates an Extractor using pdfcpu for PDFs and UTF-8 with an ISO-8859-1 fallback for text
func New(logger *logrus.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		logger: logger,
		plain:  newPlainTextExtractor(),
	}
	e.pdf = &pdfExtractor{opener: PDFCPUOpener{}, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads each file in order and returns the documents that could be built,
// plus one or more issues for every file that could not be (fully) processed.
func (e *Extractor) Extract(ctx context.Context, files []UploadedFile) ([]Document, []Issue) {
	documents := []Document{}
	var issues []Issue

	if len(files) == 0 {
		return documents, []Issue{{Message: ErrNoFiles.Error()}}
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			issues = append(issues, newIssue(file.Name, "skipped: %v", err))
			continue
		}

		doc, fileIssues := e.extractOne(ctx, file)
		issues = append(issues, fileIssues...)
		if doc != nil {
			documents = append(documents, *doc)
		}
	}

	e.logger.WithFields(logrus.Fields{
		"files":     len(files),
		"documents": len(documents),
		"issues":    len(issues),
	}).Debug("Extraction completed")

	return documents, issues
}

// extractOne handles a single file, converting panics into an issue
func (e *Extractor) extractOne(ctx context.Context, file UploadedFile) (doc *Document, issues []Issue) {
	name := file.Name
	if name == "" {
		name = FromPath(file.Path).Name
		file.Name = name
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.WithField("file", name).WithField("panic", r).Error("Unexpected failure while extracting file")
			doc = nil
			issues = append(issues, newIssue(name, "unexpected error: %v", r))
		}
	}()

	info, err := os.Stat(file.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, []Issue{newIssue(name, "%v", ErrNotFound)}
		}
		return nil, []Issue{newIssue(name, "cannot access file: %v", err)}
	}
	if !info.Mode().IsRegular() {
		return nil, []Issue{newIssue(name, "%v", ErrNotRegular)}
	}
	if e.maxFileSize > 0 && info.Size() > e.maxFileSize {
		sizeMB := float64(info.Size()) / (1024 * 1024)
		maxMB := float64(e.maxFileSize) / (1024 * 1024)
		return nil, []Issue{newIssue(name, "file size %.1fMB exceeds maximum allowed size of %.1fMB", sizeMB, maxMB)}
	}

	kind := KindOf(name)
	e.logger.WithFields(logrus.Fields{
		"file": name,
		"kind": kind.String(),
		"size": info.Size(),
	}).Debug("Extracting file")

	var variant textExtractor
	switch kind {
	case KindPlainText:
		variant = e.plain
	case KindPDF:
		variant = e.pdf
	default:
		return nil, []Issue{newIssue(name, "%v", ErrUnsupported)}
	}

	text, notes, err := variant.extractText(ctx, file)
	issues = append(issues, notes...)
	if err != nil {
		return nil, append(issues, newIssue(name, "%v", err))
	}
	if strings.TrimSpace(text) == "" {
		return nil, append(issues, newIssue(name, "%v", fmt.Errorf("%w after decoding", ErrEmptyFile)))
	}

	return &Document{Name: name, Text: text}, issues
}

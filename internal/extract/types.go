package extract

import (
	"fmt"
	"path/filepath"
	"strings"
)

// UploadedFile is a reference to file bytes on local storage
type UploadedFile struct {
	// Name is the display name, the base filename including its extension
	Name string `json:"name"`

	// Path is used to open the underlying bytes
	Path string `json:"path"`
}

// FromPath builds an UploadedFile whose display name is the base of path
func FromPath(path string) UploadedFile {
	return UploadedFile{Name: filepath.Base(path), Path: path}
}

// FromPaths builds UploadedFiles for each path, preserving order
func FromPaths(paths []string) []UploadedFile {
	files := make([]UploadedFile, 0, len(paths))
	for _, p := range paths {
		files = append(files, FromPath(p))
	}
	return files
}

// Document is the text extracted from one file. Text is never empty.
type Document struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Issue describes a non-fatal problem with one file
type Issue struct {
	// File is the display name of the originating file, empty for batch-level issues
	File    string `json:"file,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.File == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.File, i.Message)
}

func newIssue(file, format string, args ...any) Issue {
	return Issue{File: file, Message: fmt.Sprintf(format, args...)}
}

// Kind is the extraction variant chosen for a file
type Kind int

const (
	KindUnsupported Kind = iota
	KindPlainText
	KindPDF
)

func (k Kind) String() string {
	switch k {
	case KindPlainText:
		return "plain_text"
	case KindPDF:
		return "pdf"
	default:
		return "unsupported"
	}
}

var plainTextExtensions = map[string]bool{
	".txt":      true,
	".text":     true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".log":      true,
	".json":     true,
	".yaml":     true,
	".yml":      true,
	".xml":      true,
	".html":     true,
	".htm":      true,
	".rst":      true,
	".ini":      true,
	".cfg":      true,
	".toml":     true,
}

// KindOf resolves the extraction variant from the filename extension (case-insensitive)
func KindOf(name string) Kind {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".pdf" {
		return KindPDF
	}
	if plainTextExtensions[ext] {
		return KindPlainText
	}
	return KindUnsupported
}

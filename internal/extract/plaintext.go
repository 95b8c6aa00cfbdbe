package extract

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// plainTextExtractor decodes a file as UTF-8, falling back to a single-byte encoding
type plainTextExtractor struct {
	fallback     encoding.Encoding
	fallbackName string
}

func newPlainTextExtractor() *plainTextExtractor {
	return &plainTextExtractor{
		fallback:     charmap.ISO8859_1,
		fallbackName: "ISO-8859-1",
	}
}

func (p *plainTextExtractor) extractText(_ context.Context, file UploadedFile) (string, []Issue, error) {
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read file: %w", err)
	}

	text, usedFallback, err := p.decode(data)
	if err != nil {
		return "", nil, err
	}
	if strings.TrimSpace(text) == "" {
		return "", nil, ErrEmptyFile
	}

	var notes []Issue
	if usedFallback {
		notes = append(notes, newIssue(file.Name, "not valid UTF-8, decoded using %s fallback encoding", p.fallbackName))
	}
	return text, notes, nil
}

// decode returns the text and whether the fallback encoding was needed
func (p *plainTextExtractor) decode(data []byte) (string, bool, error) {
	if utf8.Valid(data) {
		decoded, err := unicode.UTF8BOM.NewDecoder().Bytes(data)
		if err != nil {
			return "", false, fmt.Errorf("could not decode as UTF-8: %w", err)
		}
		return string(decoded), false, nil
	}

	decoded, err := p.fallback.NewDecoder().Bytes(data)
	if err != nil {
		return "", false, fmt.Errorf("could not decode as UTF-8 or %s: %w", p.fallbackName, err)
	}
	return string(decoded), true, nil
}

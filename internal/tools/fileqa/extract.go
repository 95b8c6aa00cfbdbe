package fileqa

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/fileqa/internal/extract"
	"github.com/sammcj/fileqa/internal/qa"
	"github.com/sirupsen/logrus"
)

// ExtractTool returns the extracted text of local files without calling the LLM
type ExtractTool struct {
	extractor qa.DocumentExtractor
}

// NewExtractTool creates an extract_text tool
func NewExtractTool(extractor qa.DocumentExtractor) *ExtractTool {
	return &ExtractTool{extractor: extractor}
}

// Definition returns the tool's definition for MCP registration
func (t *ExtractTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"extract_text",
		mcp.WithDescription(`Extract plain text from local text or PDF files, exactly as it would be sent to the model by ask_files. Useful for checking what a PDF's text layer contains.`),
		mcp.WithArray("files",
			mcp.Required(),
			mcp.Description("Absolute paths to text or PDF files"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithNumber("max_characters",
			mcp.Description("Truncate each document to this many characters (default: no limit)"),
		),
	)
}

// Execute extracts the files and returns documents and issues as JSON
func (t *ExtractTool) Execute(ctx context.Context, logger *logrus.Logger, _ *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	request, err := t.ParseRequest(args)
	if err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	docs, issues := t.extractor.Extract(ctx, extract.FromPaths(request.Files))

	logger.WithFields(logrus.Fields{
		"files":     len(request.Files),
		"documents": len(docs),
		"issues":    len(issues),
	}).Debug("Executed extract_text")

	response := ExtractResponse{Documents: make([]ExtractedDocument, 0, len(docs))}
	for _, doc := range docs {
		response.Documents = append(response.Documents, toExtracted(doc, request.MaxCharacters))
	}
	for _, issue := range issues {
		response.Issues = append(response.Issues, issue.String())
	}

	return newToolResultJSON(response)
}

// ParseRequest parses and validates the tool arguments
func (t *ExtractTool) ParseRequest(args map[string]any) (*ExtractRequest, error) {
	files, err := parseFiles(args)
	if err != nil {
		return nil, err
	}

	request := &ExtractRequest{Files: files}
	if maxChars, ok := args["max_characters"].(float64); ok {
		if maxChars < 0 {
			return nil, fmt.Errorf("max_characters must not be negative")
		}
		request.MaxCharacters = int(maxChars)
	}
	return request, nil
}

func toExtracted(doc extract.Document, maxChars int) ExtractedDocument {
	out := ExtractedDocument{
		Name:       doc.Name,
		Characters: utf8.RuneCountInString(doc.Text),
		Text:       doc.Text,
	}
	if maxChars > 0 && out.Characters > maxChars {
		out.Text = string([]rune(doc.Text)[:maxChars])
		out.Truncated = true
	}
	return out
}

// newToolResultJSON creates a new tool result with JSON content
func newToolResultJSON(data any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return mcp.NewToolResultText(string(jsonBytes)), nil
}

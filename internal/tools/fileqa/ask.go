// Package fileqa exposes question answering over local files as MCP tools.
package fileqa

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/fileqa/internal/extract"
	"github.com/sammcj/fileqa/internal/qa"
	"github.com/sammcj/fileqa/internal/registry"
	"github.com/sammcj/fileqa/internal/tools"
	"github.com/sirupsen/logrus"
)

// AskTool answers a question from the contents of local files
type AskTool struct {
	handler *qa.Handler

	mu         sync.Mutex
	transcript qa.Transcript
}

// Register adds the file tools backed by handler and extractor to the registry
func Register(handler *qa.Handler, extractor qa.DocumentExtractor) {
	registry.Register(NewAskTool(handler))
	registry.Register(NewExtractTool(extractor))
}

// NewAskTool creates an ask_files tool
func NewAskTool(handler *qa.Handler) *AskTool {
	return &AskTool{handler: handler}
}

// Definition returns the tool's definition for MCP registration
func (t *AskTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"ask_files",
		mcp.WithDescription(`Answer a question using only the contents of local text or PDF files. The model is instructed to answer strictly from the provided content and to say so when the answer is not present. Problems with individual files are reported under "Processing notes" without failing the request.`),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer from the files"),
		),
		mcp.WithArray("files",
			mcp.Required(),
			mcp.Description("Absolute paths to text (.txt, .md, .csv, .json, ...) or PDF files"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithBoolean("ask_individually",
			mcp.Description("Answer each file separately instead of combining them (default: false)"),
			mcp.DefaultBool(false),
		),
	)
}

// Execute answers the question and returns the assembled message
func (t *AskTool) Execute(ctx context.Context, logger *logrus.Logger, _ *sync.Map, args map[string]any) (*mcp.CallToolResult, error) {
	request, err := t.ParseRequest(args)
	if err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"files":            len(request.Files),
		"ask_individually": request.AskIndividually,
	}).Debug("Executing ask_files")

	t.mu.Lock()
	transcript, result := t.handler.Handle(ctx, t.transcript, qa.Request{
		Question:        request.Question,
		Files:           extract.FromPaths(request.Files),
		AskIndividually: request.AskIndividually,
	})
	t.transcript = transcript
	t.mu.Unlock()

	return mcp.NewToolResultText(result.Message), nil
}

// Transcript returns the exchanges answered by this tool so far
func (t *AskTool) Transcript() qa.Transcript {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transcript
}

// ParseRequest parses and validates the tool arguments.
// A blank question or an empty file list is passed on so the handler can answer it.
func (t *AskTool) ParseRequest(args map[string]any) (*AskRequest, error) {
	question, ok := args["question"].(string)
	if _, present := args["question"]; present && !ok {
		return nil, fmt.Errorf("invalid parameter: question must be a string")
	}

	var files []string
	if raw, present := args["files"]; present {
		if list, isList := raw.([]any); !isList || len(list) > 0 {
			var err error
			if files, err = parseFiles(args); err != nil {
				return nil, err
			}
		}
	}

	request := &AskRequest{Question: question, Files: files}
	if individually, ok := args["ask_individually"].(bool); ok {
		request.AskIndividually = individually
	}
	return request, nil
}

// ProvideExtendedInfo provides detailed usage information for the ask_files tool
func (t *AskTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		Examples: []tools.ToolExample{
			{
				Description: "Ask one question across several files",
				Arguments: map[string]any{
					"question": "What is the notice period in these contracts?",
					"files":    []string{"/Users/username/docs/contract-a.pdf", "/Users/username/docs/contract-b.pdf"},
				},
				ExpectedResult: "A single combined answer headed 'Combined answer from 2 file(s)'",
			},
			{
				Description: "Compare files by answering each separately",
				Arguments: map[string]any{
					"question":         "Who is the author?",
					"files":            []string{"/Users/username/notes/a.md", "/Users/username/notes/b.md"},
					"ask_individually": true,
				},
				ExpectedResult: "One 'Answer for: <file>' section per file, in the order given",
			},
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "The result asks you to set an API key",
				Solution: "Start the server with OPENAI_API_KEY (or the variable named by FILEQA_API_KEY_ENV) set",
			},
			{
				Problem:  "A PDF is reported as image-only",
				Solution: "The PDF has no text layer. Run OCR on it first, OCR is not performed here",
			},
		},
		WhenToUse:    "When the answer must come from specific local documents rather than general knowledge",
		WhenNotToUse: "For scanned PDFs without a text layer, encrypted PDFs, or office formats such as DOCX",
	}
}

// parseFiles reads the files argument and requires absolute paths
func parseFiles(args map[string]any) ([]string, error) {
	files, ok := tools.ParseStringArray(args, "files")
	if !ok || len(files) == 0 {
		return nil, fmt.Errorf("missing or invalid required parameter: files")
	}
	for _, file := range files {
		if !filepath.IsAbs(file) {
			return nil, fmt.Errorf("file paths must be absolute: %s", file)
		}
	}
	return files, nil
}

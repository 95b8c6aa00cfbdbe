// Package qa handles one question end to end: credential check, extraction,
// answering per file or combined, and assembly of a single display message.
package qa

import (
	"context"
	"fmt"
	"strings"

	"github.com/sammcj/fileqa/internal/answer"
	"github.com/sammcj/fileqa/internal/extract"
	"github.com/sammcj/fileqa/internal/session"
	"github.com/sirupsen/logrus"
)

// User-facing messages for short-circuited requests
const (
	MsgCredentialRequired = "Please set your OpenAI API key before asking questions."
	MsgEmptyQuestion      = "Please provide a question."
	MsgNothingExtracted   = "No text could be extracted from the provided files."
	MsgExtractionFailed   = "Could not extract any text from the provided files:"
	processingNotesHeader = "Processing notes:"
)

// Request is one user question about a set of files
type Request struct {
	Question        string                 `json:"question"`
	Files           []extract.UploadedFile `json:"files"`
	AskIndividually bool                   `json:"ask_individually"`
}

// Exchange is one displayed (question, message) pair
type Exchange struct {
	Question string `json:"question"`
	Message  string `json:"message"`
}

// Transcript is the ordered, display-only list of exchanges.
// It is never sent back to the model.
type Transcript []Exchange

// Append returns a new transcript with the exchange added; t is not modified
func (t Transcript) Append(question, message string) Transcript {
	next := make(Transcript, len(t), len(t)+1)
	copy(next, t)
	return append(next, Exchange{Question: question, Message: message})
}

// Result is the outcome of one request
type Result struct {
	Message string
	// AuthFailed is set when the service rejected the active credential
	AuthFailed bool
}

// CredentialSource supplies the active client, if any
type CredentialSource interface {
	ActiveClient() (answer.ChatCompleter, bool)
}

// FromSession adapts a session to a CredentialSource
func FromSession(s *session.Session) CredentialSource {
	return sessionSource{s: s}
}

type sessionSource struct {
	s *session.Session
}

func (src sessionSource) ActiveClient() (answer.ChatCompleter, bool) {
	client, ok := src.s.ActiveClient()
	if !ok {
		return nil, false
	}
	return client, true
}

// DocumentExtractor converts files into documents and issues
type DocumentExtractor interface {
	Extract(ctx context.Context, files []extract.UploadedFile) ([]extract.Document, []extract.Issue)
}

// Handler orchestrates a single request
type Handler struct {
	credentials CredentialSource
	extractor   DocumentExtractor
	logger      *logrus.Logger
}

// NewHandler creates a Handler
func NewHandler(credentials CredentialSource, extractor DocumentExtractor, logger *logrus.Logger) *Handler {
	return &Handler{credentials: credentials, extractor: extractor, logger: logger}
}

// Handle answers req and returns the transcript with the exchange appended, plus the result
func (h *Handler) Handle(ctx context.Context, transcript Transcript, req Request) (Transcript, Result) {
	result := h.respond(ctx, req)
	return transcript.Append(req.Question, result.Message), result
}

func (h *Handler) respond(ctx context.Context, req Request) Result {
	client, ok := h.credentials.ActiveClient()
	if !ok || client == nil {
		return Result{Message: MsgCredentialRequired}
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Result{Message: MsgEmptyQuestion}
	}

	docs, issues := h.extractor.Extract(ctx, req.Files)

	h.logger.WithFields(logrus.Fields{
		"files":            len(req.Files),
		"documents":        len(docs),
		"issues":           len(issues),
		"ask_individually": req.AskIndividually,
	}).Info("Handling question")

	if len(docs) == 0 {
		if len(issues) == 0 {
			return Result{Message: MsgNothingExtracted}
		}
		return Result{Message: MsgExtractionFailed + "\n" + formatIssues(issues)}
	}

	var (
		message    strings.Builder
		authFailed bool
	)
	if req.AskIndividually {
		for i, doc := range docs {
			if i > 0 {
				message.WriteString("\n\n")
			}
			fmt.Fprintf(&message, "### Answer for: %s\n\n", doc.Name)
			reply := answer.Ask(ctx, client, doc.Text, question)
			authFailed = authFailed || reply.AuthFailed
			message.WriteString(reply.Text)
		}
	} else {
		fmt.Fprintf(&message, "### Combined answer from %d file(s)\n\n", len(docs))
		reply := answer.Ask(ctx, client, CombineDocuments(docs), question)
		authFailed = reply.AuthFailed
		message.WriteString(reply.Text)
	}

	if len(issues) > 0 {
		message.WriteString("\n\n---\n")
		message.WriteString(processingNotesHeader)
		message.WriteString("\n")
		message.WriteString(formatIssues(issues))
	}

	return Result{Message: message.String(), AuthFailed: authFailed}
}

// CombineDocuments joins documents into one blob, each prefixed with its source name
func CombineDocuments(docs []extract.Document) string {
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, fmt.Sprintf("=== File: %s ===\n%s", doc.Name, doc.Text))
	}
	return strings.Join(parts, "\n\n")
}

func formatIssues(issues []extract.Issue) string {
	lines := make([]string, 0, len(issues))
	for _, issue := range issues {
		lines = append(lines, "- "+issue.String())
	}
	return strings.Join(lines, "\n")
}

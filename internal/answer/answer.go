// Package answer asks the LLM a question about supplied content.
// Answer always returns a displayable string; failures are rendered, never returned.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sammcj/fileqa/internal/llm"
)

// SystemPrompt constrains the model to the supplied content
const SystemPrompt = "You are a helpful assistant that answers questions using only the content provided by the user. " +
	"Base your answer strictly on that content and do not use outside knowledge. " +
	"If the answer cannot be found in the content, say explicitly that the provided content does not contain the answer."

const (
	contentStart = "--- BEGIN CONTENT ---"
	contentEnd   = "--- END CONTENT ---"
)

// User-facing messages
const (
	MsgEmptyQuestion = "Error: the question is empty."
	MsgEmptyContent  = "Error: there is no content to answer from."
	MsgEmptyAnswer   = "The model returned an empty answer."
)

// ChatCompleter sends one system + user exchange and returns the first completion
type ChatCompleter interface {
	CompleteChat(ctx context.Context, system, user string) (string, error)
}

// BuildUserPrompt embeds the content between delimiters, followed by the question
func BuildUserPrompt(content, question string) string {
	var prompt strings.Builder
	prompt.WriteString("Answer the question using only the content between the markers below.\n\n")
	prompt.WriteString(contentStart)
	prompt.WriteString("\n")
	prompt.WriteString(content)
	prompt.WriteString("\n")
	prompt.WriteString(contentEnd)
	prompt.WriteString("\n\nQuestion: ")
	prompt.WriteString(question)
	return prompt.String()
}

// Reply is a displayable answer. AuthFailed is set when the service rejected the credential.
type Reply struct {
	Text       string
	AuthFailed bool
}

// Answer asks completer about content. Validation problems and remote failures are returned as text.
func Answer(ctx context.Context, completer ChatCompleter, content, question string) string {
	return Ask(ctx, completer, content, question).Text
}

// Ask is Answer, additionally reporting whether the failure was a rejected credential
func Ask(ctx context.Context, completer ChatCompleter, content, question string) Reply {
	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{Text: MsgEmptyQuestion}
	}
	if strings.TrimSpace(content) == "" {
		return Reply{Text: MsgEmptyContent}
	}
	if completer == nil {
		return Reply{Text: AuthenticationMessage(errors.New("no API client is configured"))}
	}

	text, err := completeSafely(ctx, completer, BuildUserPrompt(content, question))
	if err != nil {
		return Reply{Text: FailureMessage(err), AuthFailed: errors.Is(err, llm.ErrAuthentication)}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{Text: MsgEmptyAnswer}
	}
	return Reply{Text: text}
}

func completeSafely(ctx context.Context, completer ChatCompleter, user string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during completion: %v", r)
		}
	}()
	return completer.CompleteChat(ctx, SystemPrompt, user)
}

// AuthenticationMessage renders a credential failure; callers may use it to prompt for a new key
func AuthenticationMessage(err error) string {
	return fmt.Sprintf("Authentication error: %v. Please check your OpenAI API key.", err)
}

// FailureMessage renders err according to its class
func FailureMessage(err error) string {
	if errors.Is(err, llm.ErrAuthentication) {
		return AuthenticationMessage(err)
	}

	var svcErr *llm.ServiceError
	if errors.As(err, &svcErr) {
		return fmt.Sprintf("OpenAI API error: %s", svcErr.Message)
	}

	return fmt.Sprintf("An unexpected error occurred: %v", err)
}

// Package llm is the boundary to the remote chat completion service.
// It wraps the OpenAI client with a fixed model and sampling configuration
// and classifies failures into authentication and service errors.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sammcj/fileqa/internal/utils/httpclient"
	"github.com/sirupsen/logrus"
)

// Default LLM configuration values
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.2
)

// ErrAuthentication is returned when the service rejects the credential
var ErrAuthentication = errors.New("authentication failed")

// ServiceError is a failure reported by the remote service (quota, bad request, outage)
type ServiceError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Config holds the settings that shape every completion request
type Config struct {
	Model       string
	Temperature float64
	// BaseURL overrides the API endpoint, e.g. for OpenAI-compatible providers
	BaseURL string
	// Timeout bounds each HTTP request; zero means no client-side timeout
	Timeout time.Duration
}

// Client sends single-completion chat requests
type Client struct {
	client      openai.Client
	model       string
	temperature float64
	logger      *logrus.Logger
}

// NewClient creates a client for the given API key. No request is made.
func NewClient(cfg Config, apiKey string, logger *logrus.Logger) *Client {
	return newClient(cfg, apiKey, logger, httpclient.NewHTTPClientWithProxy(cfg.Timeout, logger))
}

func newClient(cfg Config, apiKey string, logger *logrus.Logger, httpClient *http.Client) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		// Interactive single-shot tool: the user re-asks instead of us retrying
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

// Model returns the configured model identifier
func (c *Client) Model() string {
	return c.model
}

// CompleteChat sends a system and user message and returns the first choice's content.
// Exactly one completion is requested.
func (c *Client) CompleteChat(ctx context.Context, system, user string) (string, error) {
	startTime := time.Now()

	response, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(c.temperature),
		N:           openai.Int(1),
	})
	if err != nil {
		return "", classify(err)
	}

	if len(response.Choices) == 0 {
		return "", &ServiceError{Message: "no response choices returned from LLM"}
	}

	c.logger.WithFields(logrus.Fields{
		"model":             c.model,
		"prompt_tokens":     response.Usage.PromptTokens,
		"completion_tokens": response.Usage.CompletionTokens,
		"duration":          time.Since(startTime).String(),
	}).Debug("Chat completion finished")

	return response.Choices[0].Message.Content, nil
}

// ValidateCredential makes one lightweight call (listing models) to check the API key
func (c *Client) ValidateCredential(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps OpenAI client errors onto ErrAuthentication and ServiceError
func classify(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	message := apiErr.Message
	if message == "" {
		message = apiErr.Error()
	}

	if isAuthFailure(apiErr.StatusCode, message) {
		return fmt.Errorf("%w: %s", ErrAuthentication, message)
	}

	return &ServiceError{
		StatusCode: apiErr.StatusCode,
		Message:    message,
		Err:        err,
	}
}

func isAuthFailure(status int, message string) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	lower := strings.ToLower(message)
	return status == http.StatusForbidden && (strings.Contains(lower, "api key") || strings.Contains(lower, "api_key"))
}

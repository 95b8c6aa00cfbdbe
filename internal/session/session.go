// Package session holds the single active LLM client for the running process.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sammcj/fileqa/internal/answer"
	"github.com/sammcj/fileqa/internal/llm"
	"github.com/sirupsen/logrus"
)

var (
	ErrEmptyCredential   = errors.New("API key is empty")
	ErrInvalidCredential = errors.New("invalid API key")
	ErrInitFailed        = errors.New("failed to initialise client")
)

// Client is an LLM client able to answer and to validate its own credential
type Client interface {
	answer.ChatCompleter
	ValidateCredential(ctx context.Context) error
}

// ClientFactory builds a client for an API key without contacting the service
type ClientFactory func(apiKey string) Client

// Session holds at most one active client. Replacing the credential discards the previous client.
type Session struct {
	mu      sync.RWMutex
	client  Client
	factory ClientFactory
	logger  *logrus.Logger
}

// New creates a session with no active client
func New(factory ClientFactory, logger *logrus.Logger) *Session {
	return &Session{factory: factory, logger: logger}
}

// NewLLMFactory returns a ClientFactory backed by llm.Client
func NewLLMFactory(cfg llm.Config, logger *logrus.Logger) ClientFactory {
	return func(apiKey string) Client {
		return llm.NewClient(cfg, apiKey, logger)
	}
}

// InitFromEnv activates a client from the named environment variable if it is set.
// It returns false, and logs a warning, when interactive entry is required.
func (s *Session) InitFromEnv(getenv func(string) string, envName string) bool {
	key := strings.TrimSpace(getenv(envName))
	if key == "" {
		s.logger.WithField("env", envName).Warn("API key not found in environment, it must be entered before asking questions")
		return false
	}

	s.mu.Lock()
	s.client = s.factory(key)
	s.mu.Unlock()

	s.logger.WithField("env", envName).Debug("API client initialised from environment")
	return true
}

// ActiveClient returns the current client, if any
func (s *Session) ActiveClient() (Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client, s.client != nil
}

// NeedsCredential reports whether an API key must be supplied
func (s *Session) NeedsCredential() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client == nil
}

// Clear discards the active client
func (s *Session) Clear() {
	s.mu.Lock()
	s.client = nil
	s.mu.Unlock()
}

// SetCredential validates apiKey with one lightweight call and activates it on success.
// An empty key is rejected without contacting the service.
// A rejected key clears the active client so the user is prompted again.
func (s *Session) SetCredential(ctx context.Context, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return ErrEmptyCredential
	}

	client := s.factory(apiKey)
	if err := client.ValidateCredential(ctx); err != nil {
		if errors.Is(err, llm.ErrAuthentication) {
			s.Clear()
			s.logger.Warn("API key rejected by the service")
			return fmt.Errorf("%w: %v", ErrInvalidCredential, err)
		}
		s.logger.WithError(err).Error("Failed to initialise API client")
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	s.logger.Info("API key validated and client activated")
	return nil
}

// CredentialStatusMessage renders the outcome of SetCredential for display
func CredentialStatusMessage(err error) string {
	switch {
	case err == nil:
		return "API key set successfully. You can now upload files and ask questions."
	case errors.Is(err, ErrEmptyCredential):
		return "Please enter an API key."
	case errors.Is(err, ErrInvalidCredential):
		return "Invalid API key. Please check the key and try again."
	default:
		return fmt.Sprintf("Failed to initialise the OpenAI client: %v", err)
	}
}

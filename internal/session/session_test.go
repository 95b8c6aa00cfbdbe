package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sammcj/fileqa/internal/llm"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	key         string
	validateErr error
	validations int
}

func (f *fakeClient) CompleteChat(context.Context, string, string) (string, error) {
	return "answer from " + f.key, nil
}

func (f *fakeClient) ValidateCredential(context.Context) error {
	f.validations++
	return f.validateErr
}

type fakeFactory struct {
	validateErr error
	built       []*fakeClient
}

func (f *fakeFactory) build(key string) Client {
	c := &fakeClient{key: key, validateErr: f.validateErr}
	f.built = append(f.built, c)
	return c
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestInitFromEnv(t *testing.T) {
	t.Run("key present", func(t *testing.T) {
		factory := &fakeFactory{}
		s := New(factory.build, testLogger())

		ok := s.InitFromEnv(func(string) string { return "sk-env" }, "OPENAI_API_KEY")

		assert.True(t, ok)
		assert.False(t, s.NeedsCredential())
		client, active := s.ActiveClient()
		require.True(t, active)
		assert.Equal(t, "sk-env", client.(*fakeClient).key)
		assert.Zero(t, factory.built[0].validations)
	})

	t.Run("key absent", func(t *testing.T) {
		factory := &fakeFactory{}
		s := New(factory.build, testLogger())

		ok := s.InitFromEnv(func(string) string { return "" }, "OPENAI_API_KEY")

		assert.False(t, ok)
		assert.True(t, s.NeedsCredential())
		assert.Empty(t, factory.built)
	})
}

func TestSetCredential(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		validateErr error
		wantErr     error
		wantActive  bool
		wantBuilt   int
	}{
		{
			name:       "valid key",
			key:        "sk-good",
			wantActive: true,
			wantBuilt:  1,
		},
		{
			name:      "empty key rejected locally",
			key:       "   ",
			wantErr:   ErrEmptyCredential,
			wantBuilt: 0,
		},
		{
			name:        "rejected key",
			key:         "sk-bad",
			validateErr: fmt.Errorf("%w: Incorrect API key provided", llm.ErrAuthentication),
			wantErr:     ErrInvalidCredential,
			wantBuilt:   1,
		},
		{
			name:        "network failure",
			key:         "sk-good",
			validateErr: errors.New("dial tcp: no route to host"),
			wantErr:     ErrInitFailed,
			wantBuilt:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := &fakeFactory{validateErr: tt.validateErr}
			s := New(factory.build, testLogger())

			err := s.SetCredential(context.Background(), tt.key)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			_, active := s.ActiveClient()
			assert.Equal(t, tt.wantActive, active)
			assert.Len(t, factory.built, tt.wantBuilt)
		})
	}
}

func TestSetCredential_ReplacesPreviousClient(t *testing.T) {
	factory := &fakeFactory{}
	s := New(factory.build, testLogger())

	require.NoError(t, s.SetCredential(context.Background(), "sk-first"))
	require.NoError(t, s.SetCredential(context.Background(), "sk-second"))

	client, ok := s.ActiveClient()
	require.True(t, ok)
	assert.Equal(t, "sk-second", client.(*fakeClient).key)
}

func TestSetCredential_RejectedKeyClearsActiveClient(t *testing.T) {
	factory := &fakeFactory{}
	s := New(factory.build, testLogger())
	require.NoError(t, s.SetCredential(context.Background(), "sk-first"))

	factory.validateErr = llm.ErrAuthentication
	err := s.SetCredential(context.Background(), "sk-revoked")

	assert.ErrorIs(t, err, ErrInvalidCredential)
	assert.True(t, s.NeedsCredential())
}

func TestClear(t *testing.T) {
	factory := &fakeFactory{}
	s := New(factory.build, testLogger())
	require.NoError(t, s.SetCredential(context.Background(), "sk-key"))

	s.Clear()

	assert.True(t, s.NeedsCredential())
}

func TestCredentialStatusMessage(t *testing.T) {
	assert.Contains(t, CredentialStatusMessage(nil), "successfully")
	assert.Contains(t, CredentialStatusMessage(ErrEmptyCredential), "Please enter")
	assert.Contains(t, CredentialStatusMessage(fmt.Errorf("%w: bad", ErrInvalidCredential)), "Invalid API key")
	assert.Contains(t, CredentialStatusMessage(fmt.Errorf("%w: timeout", ErrInitFailed)), "Failed to initialise")
}

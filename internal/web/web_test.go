package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sammcj/fileqa/internal/extract"
	"github.com/sammcj/fileqa/internal/llm"
	"github.com/sammcj/fileqa/internal/qa"
	"github.com/sammcj/fileqa/internal/session"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	reply       string
	completeErr error
	validateErr error
	prompts     []string
}

func (s *stubClient) CompleteChat(_ context.Context, _, user string) (string, error) {
	s.prompts = append(s.prompts, user)
	return s.reply, s.completeErr
}

func (s *stubClient) ValidateCredential(context.Context) error {
	return s.validateErr
}

type testEnv struct {
	echo    *echo.Echo
	session *session.Session
	uploads *UploadStore
	client  *stubClient
}

func newTestEnv(t *testing.T, client *stubClient) *testEnv {
	t.Helper()
	return newTestEnvWithRate(t, client, 0)
}

func newTestEnvWithRate(t *testing.T, client *stubClient, requestsPerSecond float64) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	uploads, err := NewUploadStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = uploads.Close() })

	sess := session.New(func(string) session.Client { return client }, logger)
	handler := qa.NewHandler(qa.FromSession(sess), extract.New(logger), logger)
	srv := NewServer(Dependencies{
		Session: sess,
		Handler: handler,
		Uploads: uploads,
		Logger:  logger,
		Version: "test",
	})

	return &testEnv{echo: srv.NewEcho(DefaultBodyLimit, requestsPerSecond), session: sess, uploads: uploads, client: client}
}

func (env *testEnv) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) postJSON(t *testing.T, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return env.do(t, http.MethodPost, path, body, echo.MIMEApplicationJSON)
}

func (env *testEnv) upload(t *testing.T, files map[string]string, order ...string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, name := range order {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return env.do(t, http.MethodPost, "/api/files", body.Bytes(), w.FormDataContentType())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &stubClient{})

	rec := env.do(t, http.MethodGet, "/health", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["credential_required"])
}

func TestSetCredential(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		validateErr error
		wantStatus  int
		wantCode    string
	}{
		{"valid", "sk-good", nil, http.StatusOK, ""},
		{"empty", "  ", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"rejected", "sk-bad", fmt.Errorf("%w: nope", llm.ErrAuthentication), http.StatusUnauthorized, "INVALID_CREDENTIAL"},
		{"unreachable", "sk-good", fmt.Errorf("dial tcp: timeout"), http.StatusBadGateway, "UPSTREAM_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, &stubClient{validateErr: tt.validateErr})

			rec := env.postJSON(t, "/api/credential", map[string]string{"api_key": tt.key})

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantCode == "" {
				assert.True(t, decode[credentialResponse](t, rec).Active)
				assert.False(t, env.session.NeedsCredential())
				return
			}
			assert.Equal(t, tt.wantCode, decode[APIError](t, rec).Code)
			assert.True(t, env.session.NeedsCredential())
		})
	}
}

func TestSetCredential_InvalidJSON(t *testing.T) {
	env := newTestEnv(t, &stubClient{})

	rec := env.do(t, http.MethodPost, "/api/credential", []byte("{"), echo.MIMEApplicationJSON)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", decode[APIError](t, rec).Code)
}

func TestUploadListAndClear(t *testing.T) {
	env := newTestEnv(t, &stubClient{})

	rec := env.upload(t, map[string]string{"a.txt": "alpha", "../../b.pdf": "%PDF"}, "a.txt", "../../b.pdf")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	stored := decode[[]StoredFile](t, rec)
	require.Len(t, stored, 2)
	assert.Equal(t, "a.txt", stored[0].Name)
	assert.Equal(t, "plain_text", stored[0].Kind)
	assert.EqualValues(t, 5, stored[0].Size)
	assert.Equal(t, "b.pdf", stored[1].Name, "directory components are stripped")
	assert.NotEqual(t, stored[0].ID, stored[1].ID)

	listed := decode[[]StoredFile](t, env.do(t, http.MethodGet, "/api/files", nil, ""))
	assert.Len(t, listed, 2)

	uploaded := env.uploads.Uploaded()
	require.Len(t, uploaded, 2)
	_, err := os.Stat(uploaded[0].Path)
	require.NoError(t, err)

	rec = env.do(t, http.MethodDelete, "/api/files", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[map[string]int](t, rec)["deleted"])
	assert.Empty(t, env.uploads.List())
	_, err = os.Stat(uploaded[0].Path)
	assert.True(t, os.IsNotExist(err))
}

func TestUpload_FailedPartDiscardsRequest(t *testing.T) {
	env := newTestEnv(t, &stubClient{})
	require.Equal(t, http.StatusCreated, env.upload(t, map[string]string{"kept.txt": "kept"}, "kept.txt").Code)

	rec := env.upload(t, map[string]string{"a.txt": "alpha", "..": "bad"}, "a.txt", "..")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[APIError](t, rec).Code)

	listed := env.uploads.List()
	require.Len(t, listed, 1, "the earlier upload survives, the partial request does not")
	assert.Equal(t, "kept.txt", listed[0].Name)

	entries, err := os.ReadDir(env.uploads.dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUploadStore_Remove(t *testing.T) {
	store, err := NewUploadStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	a, err := store.Save("a.txt", strings.NewReader("alpha"))
	require.NoError(t, err)
	b, err := store.Save("b.txt", strings.NewReader("beta"))
	require.NoError(t, err)

	require.NoError(t, store.Remove(a.ID, "unknown-id"))

	listed := store.List()
	require.Len(t, listed, 1)
	assert.Equal(t, b.ID, listed[0].ID)
	_, err = os.Stat(a.path)
	assert.True(t, os.IsNotExist(err))
}

func TestUpload_NoFiles(t *testing.T) {
	env := newTestEnv(t, &stubClient{})

	rec := env.upload(t, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[APIError](t, rec).Code)
}

func TestAsk(t *testing.T) {
	client := &stubClient{reply: "Blue."}
	env := newTestEnv(t, client)
	require.Equal(t, http.StatusOK, env.postJSON(t, "/api/credential", map[string]string{"api_key": "sk-good"}).Code)
	require.Equal(t, http.StatusCreated, env.upload(t, map[string]string{"sky.txt": "The sky is blue."}, "sky.txt").Code)

	rec := env.postJSON(t, "/api/ask", askRequest{Question: "What color is the sky?"})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[askResponse](t, rec)
	assert.True(t, strings.HasPrefix(resp.Message, "### Combined answer from 1 file(s)"))
	assert.Contains(t, resp.Message, "Blue.")
	assert.Equal(t, 1, resp.Files)
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "=== File: sky.txt ===")

	transcript := decode[qa.Transcript](t, env.do(t, http.MethodGet, "/api/transcript", nil, ""))
	require.Len(t, transcript, 1)
	assert.Equal(t, "What color is the sky?", transcript[0].Question)
}

func TestAsk_WithoutCredential(t *testing.T) {
	env := newTestEnv(t, &stubClient{})

	rec := env.postJSON(t, "/api/ask", askRequest{Question: "Anything?"})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[askResponse](t, rec)
	assert.Equal(t, qa.MsgCredentialRequired, resp.Message)
	assert.False(t, resp.CredentialActive)
}

func TestAsk_AuthenticationFailureClearsCredential(t *testing.T) {
	env := newTestEnv(t, &stubClient{completeErr: fmt.Errorf("%w: revoked", llm.ErrAuthentication)})
	require.Equal(t, http.StatusOK, env.postJSON(t, "/api/credential", map[string]string{"api_key": "sk-good"}).Code)
	require.Equal(t, http.StatusCreated, env.upload(t, map[string]string{"sky.txt": "The sky is blue."}, "sky.txt").Code)

	resp := decode[askResponse](t, env.postJSON(t, "/api/ask", askRequest{Question: "What color is the sky?"}))

	assert.Contains(t, resp.Message, "Authentication error:")
	assert.False(t, resp.CredentialActive)
	assert.True(t, env.session.NeedsCredential())
}

func TestAsk_AnswerQuotingAuthFailureKeepsCredential(t *testing.T) {
	env := newTestEnv(t, &stubClient{reply: "The log shows: Authentication error: token expired"})
	require.Equal(t, http.StatusOK, env.postJSON(t, "/api/credential", map[string]string{"api_key": "sk-good"}).Code)
	require.Equal(t, http.StatusCreated, env.upload(t, map[string]string{"app.log": "Authentication error: token expired"}, "app.log").Code)

	resp := decode[askResponse](t, env.postJSON(t, "/api/ask", askRequest{Question: "What does the log say?"}))

	assert.Contains(t, resp.Message, "Authentication error: token expired")
	assert.True(t, resp.CredentialActive)
	assert.False(t, env.session.NeedsCredential())
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, &stubClient{})

	rec := env.do(t, http.MethodGet, "/api/nope", nil, "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "HTTP_ERROR", decode[APIError](t, rec).Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnvWithRate(t, &stubClient{}, 1)

	first := env.do(t, http.MethodGet, "/api/transcript", nil, "")
	assert.Equal(t, http.StatusOK, first.Code)

	second := env.do(t, http.MethodGet, "/api/transcript", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), "RATE_LIMITED")

	health := env.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, health.Code)
}

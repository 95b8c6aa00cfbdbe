package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sammcj/fileqa/internal/qa"
	"github.com/sammcj/fileqa/internal/session"
)

type credentialRequest struct {
	APIKey string `json:"api_key"`
}

type credentialResponse struct {
	Active  bool   `json:"active"`
	Message string `json:"message"`
}

type askRequest struct {
	Question        string `json:"question"`
	AskIndividually bool   `json:"ask_individually"`
}

type askResponse struct {
	Message          string `json:"message"`
	Files            int    `json:"files"`
	CredentialActive bool   `json:"credential_active"`
}

// HandleHealth returns server health status
func (s *Server) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":              "ok",
		"version":             s.version,
		"credential_required": s.session.NeedsCredential(),
	})
}

// HandleSetCredential validates and activates an API key
func (s *Server) HandleSetCredential(c echo.Context) error {
	var req credentialRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	s.mu.Lock()
	err := s.session.SetCredential(c.Request().Context(), req.APIKey)
	s.mu.Unlock()

	message := session.CredentialStatusMessage(err)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, credentialResponse{Active: true, Message: message})
	case errors.Is(err, session.ErrEmptyCredential):
		return NewValidationError("api_key", message)
	case errors.Is(err, session.ErrInvalidCredential):
		return NewUnauthorizedError(message)
	default:
		return NewUpstreamError(message, nil)
	}
}

// HandleUploadFiles stores every multipart "files" part.
// A failed part discards the parts already stored by the same request.
func (s *Server) HandleUploadFiles(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("expected a multipart form", err)
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		return NewValidationError("files", "at least one file is required")
	}

	stored := make([]StoredFile, 0, len(headers))
	for _, fh := range headers {
		src, err := fh.Open()
		if err != nil {
			s.discardUploads(stored)
			return NewBadRequestError("failed to read uploaded file "+fh.Filename, err)
		}
		file, err := s.uploads.Save(fh.Filename, src)
		_ = src.Close()
		if err != nil {
			s.discardUploads(stored)
			if errors.Is(err, ErrInvalidName) {
				return NewValidationError("files", fmt.Sprintf("%v: %q", err, fh.Filename))
			}
			return NewInternalError("failed to store uploaded file "+fh.Filename, err)
		}
		stored = append(stored, file)
	}

	s.logger.WithField("files", len(stored)).Info("Files uploaded")
	return c.JSON(http.StatusCreated, stored)
}

func (s *Server) discardUploads(files []StoredFile) {
	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.ID)
	}
	if err := s.uploads.Remove(ids...); err != nil {
		s.logger.WithError(err).Warn("Failed to discard partial upload")
	}
}

// HandleListFiles returns the uploaded files
func (s *Server) HandleListFiles(c echo.Context) error {
	return c.JSON(http.StatusOK, s.uploads.List())
}

// HandleClearFiles deletes every uploaded file
func (s *Server) HandleClearFiles(c echo.Context) error {
	count, err := s.uploads.Clear()
	if err != nil {
		return NewInternalError("failed to delete uploaded files", err)
	}
	return c.JSON(http.StatusOK, map[string]int{"deleted": count})
}

// HandleAsk answers a question about the uploaded files.
// Short-circuits such as a missing credential are answers, not errors.
func (s *Server) HandleAsk(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	files := s.uploads.Uploaded()

	s.mu.Lock()
	transcript, result := s.handler.Handle(c.Request().Context(), s.transcript, qa.Request{
		Question:        req.Question,
		Files:           files,
		AskIndividually: req.AskIndividually,
	})
	s.transcript = transcript
	if result.AuthFailed {
		s.session.Clear()
	}
	s.mu.Unlock()

	return c.JSON(http.StatusOK, askResponse{
		Message:          result.Message,
		Files:            len(files),
		CredentialActive: !s.session.NeedsCredential(),
	})
}

// HandleTranscript returns the display transcript
func (s *Server) HandleTranscript(c echo.Context) error {
	s.mu.Lock()
	transcript := append(qa.Transcript{}, s.transcript...)
	s.mu.Unlock()
	return c.JSON(http.StatusOK, transcript)
}

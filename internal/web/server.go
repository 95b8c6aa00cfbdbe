// Package web serves the question-answering session over a small JSON API.
package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sammcj/fileqa/internal/qa"
	"github.com/sammcj/fileqa/internal/session"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultBodyLimit bounds a single request, uploads included
const DefaultBodyLimit = "256M"

// Dependencies holds everything the handlers need
type Dependencies struct {
	Session *session.Session
	Handler *qa.Handler
	Uploads *UploadStore
	Logger  *logrus.Logger
	Version string
}

// Server handles API requests for the single process-wide session
type Server struct {
	session *session.Session
	handler *qa.Handler
	uploads *UploadStore
	logger  *logrus.Logger
	version string

	// mu serialises credential changes and questions
	mu         sync.Mutex
	transcript qa.Transcript
}

// NewServer creates a Server from deps
func NewServer(deps Dependencies) *Server {
	return &Server{
		session: deps.Session,
		handler: deps.Handler,
		uploads: deps.Uploads,
		logger:  deps.Logger,
		version: deps.Version,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", s.HandleHealth)

	api := e.Group("/api")
	api.POST("/credential", s.HandleSetCredential)
	api.POST("/files", s.HandleUploadFiles)
	api.GET("/files", s.HandleListFiles)
	api.DELETE("/files", s.HandleClearFiles)
	api.POST("/ask", s.HandleAsk)
	api.GET("/transcript", s.HandleTranscript)
}

// NewEcho creates an Echo instance with the error handler, middleware and routes configured.
// requestsPerSecond limits each client IP when positive.
func (s *Server) NewEcho(bodyLimit string, requestsPerSecond float64) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(s.logger)

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: true,
	}))
	e.Use(middleware.BodyLimit(bodyLimit))
	if requestsPerSecond > 0 {
		e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Skipper: func(c echo.Context) bool { return c.Path() == "/health" },
			Store:   middleware.NewRateLimiterMemoryStore(rate.Limit(requestsPerSecond)),
			DenyHandler: func(c echo.Context, _ string, _ error) error {
				return NewRateLimitedError()
			},
		}))
	}
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.Round(time.Millisecond).String(),
			}).Info("Request handled")
			return nil
		},
	}))

	s.RegisterRoutes(e)
	return e
}

// HTTPServer wraps e in an http.Server with conservative timeouts.
// WriteTimeout is left unset because answers wait on the LLM service.
func HTTPServer(addr string, e *echo.Echo) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

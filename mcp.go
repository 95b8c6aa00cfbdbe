package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/sammcj/fileqa/internal/registry"
	"github.com/sirupsen/logrus"
	urfave "github.com/urfave/cli/v3"
)

func serveCommand(logger *logrus.Logger) *urfave.Command {
	return &urfave.Command{
		Name:  "serve",
		Usage: "Run an MCP server exposing the file tools",
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:    "transport",
				Aliases: []string{"t"},
				Value:   "stdio",
				Usage:   "Transport type (stdio, sse, or http)",
			},
			&urfave.StringFlag{
				Name:  "port",
				Value: "18080",
				Usage: "Port to use for HTTP transports (SSE and Streamable HTTP)",
			},
			&urfave.StringFlag{
				Name:  "base-url",
				Value: "http://localhost",
				Usage: "Base URL for HTTP transports",
			},
			&urfave.StringFlag{
				Name:    "auth-token",
				Usage:   "Bearer token required by the Streamable HTTP transport (optional)",
				Sources: urfave.EnvVars("FILEQA_AUTH_TOKEN"),
			},
			&urfave.StringFlag{
				Name:  "endpoint-path",
				Value: "/http",
				Usage: "Endpoint path for Streamable HTTP transport",
			},
		},
		Action: func(ctx context.Context, cmd *urfave.Command) error {
			transport := cmd.String("transport")
			configureLogging(logger, transport == "stdio")

			a, err := newApp(cmd, logger)
			if err != nil {
				return err
			}
			a.registerTools()

			mcpSrv := newMCPServer(logger)

			logger.WithField("transport", transport).Debug("Starting server")
			switch transport {
			case "stdio":
				return mcpserver.ServeStdio(mcpSrv)
			case "sse":
				port := cmd.String("port")
				sseServer := mcpserver.NewSSEServer(mcpSrv, mcpserver.WithBaseURL(cmd.String("base-url")+":"+port))
				logger.Infof("Starting SSE server on port %s", port)
				return sseServer.Start(":" + port)
			case "http":
				return startStreamableHTTPServer(ctx, cmd, mcpSrv, logger)
			default:
				return fmt.Errorf("unsupported transport: %s", transport)
			}
		},
	}
}

// newMCPServer creates an MCP server with every enabled registry tool
func newMCPServer(logger *logrus.Logger) *mcpserver.MCPServer {
	mcpSrv := mcpserver.NewMCPServer("fileqa", Version)

	for _, name := range registry.GetEnabledToolNames() {
		tool, _ := registry.GetTool(name)
		mcpSrv.AddTool(tool.Definition(), toolHandler(name, logger))
		logger.WithField("tool", name).Debug("Registered MCP tool")
	}
	return mcpSrv
}

// toolHandler adapts a registry tool to an mcp-go handler
func toolHandler(name string, logger *logrus.Logger) mcpserver.ToolHandlerFunc {
	return func(toolCtx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tool, ok := registry.GetTool(name)
		if !ok {
			return nil, fmt.Errorf("tool not found: %s", name)
		}

		args, ok := request.Params.Arguments.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid arguments type: expected map[string]any, got %T", request.Params.Arguments)
		}

		result, err := tool.Execute(toolCtx, registry.GetLogger(), registry.GetCache(), args)
		if err != nil {
			logger.WithError(err).WithField("tool", name).Warn("Tool execution failed")
			return nil, fmt.Errorf("tool execution failed: %w", err)
		}
		return result, nil
	}
}

// startStreamableHTTPServer serves the Streamable HTTP transport until ctx is cancelled
func startStreamableHTTPServer(ctx context.Context, cmd *urfave.Command, mcpSrv *mcpserver.MCPServer, logger *logrus.Logger) error {
	port := cmd.String("port")
	endpointPath := cmd.String("endpoint-path")

	httpServer := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath(endpointPath),
		mcpserver.WithSessionIdManager(&uuidSessionManager{logger: logger}),
		mcpserver.WithHeartbeatInterval(30*time.Second),
		mcpserver.WithLogger(&logrusAdapter{logger: logger}),
	)

	mux := http.NewServeMux()
	mux.Handle(endpointPath, requireBearerToken(cmd.String("auth-token"), httpServer, logger))

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	logger.Infof("Starting Streamable HTTP server on port %s with endpoint %s", port, endpointPath)
	return serveUntilDone(ctx, server, logger)
}

// requireBearerToken rejects requests without the expected token; an empty token disables the check
func requireBearerToken(expectedToken string, next http.Handler, logger *logrus.Logger) http.Handler {
	if expectedToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const bearerPrefix = "Bearer "
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, bearerPrefix) || strings.TrimPrefix(authHeader, bearerPrefix) != expectedToken {
			logger.Warn("Rejected request with missing or invalid bearer token")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// uuidSessionManager issues random session IDs and never expires them
type uuidSessionManager struct {
	logger *logrus.Logger
}

func (m *uuidSessionManager) Generate() string {
	return uuid.NewString()
}

func (m *uuidSessionManager) Validate(sessionID string) (bool, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return false, fmt.Errorf("invalid session ID: %w", err)
	}
	return false, nil
}

func (m *uuidSessionManager) Terminate(sessionID string) (bool, error) {
	m.logger.Debugf("Session terminated: %s", sessionID)
	return false, nil
}

// logrusAdapter adapts logrus.Logger to the mcp-go util.Logger interface
type logrusAdapter struct {
	logger *logrus.Logger
}

func (l *logrusAdapter) Infof(format string, args ...any) {
	l.logger.Infof(format, args...)
}

func (l *logrusAdapter) Errorf(format string, args ...any) {
	l.logger.Errorf(format, args...)
}

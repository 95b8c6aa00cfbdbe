package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sammcj/fileqa/internal/cli"
	"github.com/sammcj/fileqa/internal/config"
	"github.com/sammcj/fileqa/internal/extract"
	"github.com/sammcj/fileqa/internal/qa"
	"github.com/sammcj/fileqa/internal/registry"
	"github.com/sammcj/fileqa/internal/session"
	"github.com/sammcj/fileqa/internal/tools/fileqa"
	"github.com/sammcj/fileqa/internal/tools/toolhelp"
	"github.com/sammcj/fileqa/internal/web"
	"github.com/sirupsen/logrus"
	urfave "github.com/urfave/cli/v3"
)

// Version information (set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Global resources that need cleanup
var (
	debugLogFile atomic.Pointer[os.File]
	isStdioMode  atomic.Bool
)

// parseLogLevel parses the LOG_LEVEL environment variable and returns the appropriate logrus level.
// Defaults to WarnLevel if not set or invalid.
func parseLogLevel() logrus.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.WarnLevel
	}
}

// app is the wiring shared by every command
type app struct {
	cfg       config.Config
	logger    *logrus.Logger
	extractor *extract.Extractor
	session   *session.Session
	handler   *qa.Handler
}

// newApp loads configuration and builds the session and question handler.
// The API key is read from the configured environment variable without a validating call.
func newApp(cmd *urfave.Command, logger *logrus.Logger) (*app, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	extractor := extract.New(logger, extract.WithMaxFileSize(cfg.MaxFileSize))
	sess := session.New(session.NewLLMFactory(cfg.LLM(), logger), logger)
	sess.InitFromEnv(os.Getenv, cfg.APIKeyEnv)

	logger.WithFields(logrus.Fields{
		"model":       cfg.Model,
		"temperature": cfg.Temperature,
		"base_url":    cfg.BaseURL,
	}).Debug("Configuration loaded")

	return &app{
		cfg:       cfg,
		logger:    logger,
		extractor: extractor,
		session:   sess,
		handler:   qa.NewHandler(qa.FromSession(sess), extractor, logger),
	}, nil
}

// registerTools initialises the registry with the file tools
func (a *app) registerTools() {
	registry.Init(a.logger)
	fileqa.Register(a.handler, a.extractor)
	toolhelp.Register()
}

func main() {
	// Create context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A missing .env file is not an error
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(parseLogLevel())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	defer performCleanup()

	cmd := &urfave.Command{
		Name:    "fileqa",
		Usage:   "Ask questions about text and PDF files using an OpenAI-compatible model",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:    "config",
				Usage:   "Path to the YAML configuration file (default: ~/.fileqa/config.yaml)",
				Sources: urfave.EnvVars(config.EnvConfigPath),
			},
		},
		Commands: []*urfave.Command{
			askCommand(logger),
			chatCommand(logger),
			serveCommand(logger),
			webCommand(logger),
			toolsCommand(logger),
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(ctx context.Context, cmd *urfave.Command) error {
					fmt.Printf("fileqa version %s\n", Version)
					fmt.Printf("Commit: %s\n", Commit)
					fmt.Printf("Built: %s\n", BuildDate)
					return nil
				},
			},
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		// In stdio mode nothing may be written outside the protocol stream
		if !isStdioMode.Load() {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func askCommand(logger *logrus.Logger) *urfave.Command {
	return &urfave.Command{
		Name:      "ask",
		Usage:     "Answer a single question about one or more files",
		ArgsUsage: "QUESTION",
		Flags: []urfave.Flag{
			&urfave.StringSliceFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "File to read (repeatable)",
			},
			&urfave.BoolFlag{
				Name:    "individual",
				Aliases: []string{"i"},
				Usage:   "Answer each file separately instead of combining them",
			},
		},
		Action: func(ctx context.Context, cmd *urfave.Command) error {
			a, err := newApp(cmd, logger)
			if err != nil {
				return err
			}

			question := strings.Join(cmd.Args().Slice(), " ")
			_, result := a.handler.Handle(ctx, nil, qa.Request{
				Question:        question,
				Files:           extract.FromPaths(cmd.StringSlice("file")),
				AskIndividually: cmd.Bool("individual"),
			})
			fmt.Println(result.Message)
			return nil
		},
	}
}

func chatCommand(logger *logrus.Logger) *urfave.Command {
	return &urfave.Command{
		Name:  "chat",
		Usage: "Start an interactive session",
		Action: func(ctx context.Context, cmd *urfave.Command) error {
			a, err := newApp(cmd, logger)
			if err != nil {
				return err
			}
			return cli.NewChat(a.session, a.handler, logger, os.Stdin, os.Stdout).Run(ctx)
		},
	}
}

func webCommand(logger *logrus.Logger) *urfave.Command {
	return &urfave.Command{
		Name:  "web",
		Usage: "Serve the JSON API for a browser front end",
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:  "addr",
				Value: "127.0.0.1:8080",
				Usage: "Listen address",
			},
			&urfave.StringFlag{
				Name:  "body-limit",
				Value: web.DefaultBodyLimit,
				Usage: "Maximum request body size (e.g. 64M)",
			},
			&urfave.FloatFlag{
				Name:  "rate-limit",
				Usage: "Requests per second allowed per client IP (0 disables)",
			},
			&urfave.StringFlag{
				Name:  "upload-dir",
				Usage: "Parent directory for uploads (default: system temp dir)",
			},
		},
		Action: func(ctx context.Context, cmd *urfave.Command) error {
			configureLogging(logger, false)

			a, err := newApp(cmd, logger)
			if err != nil {
				return err
			}

			uploads, err := web.NewUploadStore(cmd.String("upload-dir"))
			if err != nil {
				return err
			}
			defer func() {
				if err := uploads.Close(); err != nil {
					logger.WithError(err).Warn("Failed to remove upload directory")
				}
			}()

			srv := web.NewServer(web.Dependencies{
				Session: a.session,
				Handler: a.handler,
				Uploads: uploads,
				Logger:  logger,
				Version: Version,
			})
			server := web.HTTPServer(cmd.String("addr"), srv.NewEcho(cmd.String("body-limit"), cmd.Float("rate-limit")))

			logger.Infof("Starting fileqa web API on %s", server.Addr)
			return serveUntilDone(ctx, server, logger)
		},
	}
}

func toolsCommand(logger *logrus.Logger) *urfave.Command {
	outputFlag := &urfave.StringFlag{
		Name:  "output",
		Value: string(cli.OutputText),
		Usage: "Output format (text or json)",
	}

	runner := func(cmd *urfave.Command) (*cli.Runner, error) {
		a, err := newApp(cmd, logger)
		if err != nil {
			return nil, err
		}
		a.registerTools()
		return cli.NewRunner(logger, registry.GetCache(), cli.OutputFormat(cmd.String("output")), os.Stdout), nil
	}

	return &urfave.Command{
		Name:  "tools",
		Usage: "Run the MCP tools directly without a server",
		Flags: []urfave.Flag{outputFlag},
		Commands: []*urfave.Command{
			{
				Name:  "list",
				Usage: "List enabled tools",
				Action: func(ctx context.Context, cmd *urfave.Command) error {
					r, err := runner(cmd)
					if err != nil {
						return err
					}
					return r.ListTools()
				},
			},
			{
				Name:      "help",
				Usage:     "Show a tool's parameters",
				ArgsUsage: "TOOL",
				Action: func(ctx context.Context, cmd *urfave.Command) error {
					r, err := runner(cmd)
					if err != nil {
						return err
					}
					return r.HelpTool(cmd.Args().First())
				},
			},
			{
				Name:            "run",
				Usage:           "Run a tool with --key=value arguments or a JSON object",
				ArgsUsage:       "TOOL [ARGS...]",
				SkipFlagParsing: true,
				Action: func(ctx context.Context, cmd *urfave.Command) error {
					r, err := runner(cmd)
					if err != nil {
						return err
					}
					args := cmd.Args().Slice()
					if len(args) == 0 {
						return errors.New("a tool name is required")
					}
					return r.RunTool(ctx, args[0], args[1:])
				},
			},
		},
	}
}

// configureLogging routes logs for long-running server commands.
// stdio mode always logs to a file (or nowhere) so the protocol stream stays clean.
func configureLogging(logger *logrus.Logger, stdio bool) {
	isStdioMode.Store(stdio)

	level := parseLogLevel()
	if stdio && level < logrus.WarnLevel {
		level = logrus.WarnLevel
	}
	logger.SetLevel(level)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		setFallbackOutput(logger, stdio)
		return
	}
	logDir := filepath.Join(homeDir, ".fileqa", "logs")
	if err := os.MkdirAll(logDir, 0700); err != nil {
		setFallbackOutput(logger, stdio)
		return
	}
	file, err := os.OpenFile(filepath.Join(logDir, "fileqa.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		setFallbackOutput(logger, stdio)
		return
	}

	debugLogFile.Store(file)
	if stdio {
		logger.SetOutput(file)
	} else {
		logger.SetOutput(io.MultiWriter(os.Stderr, file))
	}
	logger.WithField("level", level.String()).Debug("Logging configured")
}

func setFallbackOutput(logger *logrus.Logger, stdio bool) {
	if stdio {
		logger.SetOutput(io.Discard)
		return
	}
	logger.SetOutput(os.Stderr)
}

// serveUntilDone runs server until it fails or ctx is cancelled, then shuts it down gracefully
func serveUntilDone(ctx context.Context, server *http.Server, logger *logrus.Logger) error {
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
		return err
	}

	logger.Info("HTTP server stopped gracefully")
	return nil
}

// performCleanup closes the log file if one was opened
func performCleanup() {
	if file := debugLogFile.Load(); file != nil {
		_ = file.Close()
	}
}

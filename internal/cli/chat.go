package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/google/shlex"
	"github.com/sammcj/fileqa/internal/extract"
	"github.com/sammcj/fileqa/internal/qa"
	"github.com/sammcj/fileqa/internal/session"
	"github.com/sirupsen/logrus"
)

const chatHelp = `Commands:
  /key [KEY]            set a new API key (prompts when KEY is omitted)
  /files [PATH...]      replace the selected files (globs allowed), or list them
  /individual [on|off]  answer each file separately, or show the current mode
  /history              show the questions and answers so far
  /help                 show this help
  /quit                 leave the session
Anything else is asked as a question about the selected files.`

// Chat is an interactive terminal session over one credential and one transcript
type Chat struct {
	session *session.Session
	handler *qa.Handler
	logger  *logrus.Logger

	in  *bufio.Scanner
	out io.Writer

	files        []extract.UploadedFile
	individually bool
	transcript   qa.Transcript

	heading func(a ...any) string
	success func(a ...any) string
	warning func(a ...any) string
}

// NewChat creates a chat reading commands from in and writing to out
func NewChat(sess *session.Session, handler *qa.Handler, logger *logrus.Logger, in io.Reader, out io.Writer) *Chat {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &Chat{
		session: sess,
		handler: handler,
		logger:  logger,
		in:      scanner,
		out:     out,
		heading: color.New(color.FgCyan, color.Bold).SprintFunc(),
		success: color.New(color.FgGreen).SprintFunc(),
		warning: color.New(color.FgYellow).SprintFunc(),
	}
}

// Run reads lines until /quit, end of input or ctx is cancelled
func (c *Chat) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, c.heading("File Q&A"), "- type /help for commands")

	for ctx.Err() == nil {
		if c.session.NeedsCredential() {
			fmt.Fprintln(c.out, c.warning("An OpenAI API key is required."))
			key, ok := c.readLine("API key> ")
			if !ok || key == "/quit" {
				return nil
			}
			c.setKey(ctx, key)
			continue
		}

		line, ok := c.readLine("> ")
		if !ok {
			return nil
		}
		if c.HandleLine(ctx, line) {
			return nil
		}
	}
	return nil
}

// HandleLine processes one line of input and reports whether the session should end
func (c *Chat) HandleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.ask(ctx, line)
		return false
	}

	fields, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintln(c.out, c.warning(fmt.Sprintf("Could not parse command: %v", err)))
		return false
	}

	command, args := fields[0], fields[1:]
	switch command {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(c.out, chatHelp)
	case "/key":
		if len(args) == 0 {
			// Run prompts for a key once the client is gone
			c.session.Clear()
			return false
		}
		c.setKey(ctx, args[0])
	case "/files":
		if len(args) > 0 {
			c.files = extract.FromPaths(expandPaths(args))
		}
		c.listFiles()
	case "/individual":
		c.setIndividual(args)
	case "/history":
		c.printHistory()
	default:
		fmt.Fprintln(c.out, c.warning("Unknown command "+command+", type /help for commands"))
	}
	return false
}

// Transcript returns the exchanges so far
func (c *Chat) Transcript() qa.Transcript {
	return c.transcript
}

func (c *Chat) readLine(prompt string) (string, bool) {
	fmt.Fprint(c.out, prompt)
	if !c.in.Scan() {
		fmt.Fprintln(c.out)
		return "", false
	}
	return strings.TrimSpace(c.in.Text()), true
}

func (c *Chat) setKey(ctx context.Context, key string) {
	err := c.session.SetCredential(ctx, key)
	status := session.CredentialStatusMessage(err)
	if err != nil {
		fmt.Fprintln(c.out, c.warning(status))
		return
	}
	fmt.Fprintln(c.out, c.success(status))
}

func (c *Chat) ask(ctx context.Context, question string) {
	transcript, result := c.handler.Handle(ctx, c.transcript, qa.Request{
		Question:        question,
		Files:           c.files,
		AskIndividually: c.individually,
	})
	c.transcript = transcript

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, result.Message)
	fmt.Fprintln(c.out)

	if result.AuthFailed {
		c.logger.Warn("Answer failed authentication, prompting for a new API key")
		c.session.Clear()
	}
}

func (c *Chat) listFiles() {
	if len(c.files) == 0 {
		fmt.Fprintln(c.out, "No files selected. Use /files PATH... to choose some.")
		return
	}
	fmt.Fprintln(c.out, c.heading(fmt.Sprintf("%d file(s) selected:", len(c.files))))
	for _, file := range c.files {
		fmt.Fprintf(c.out, "  %s (%s)\n", file.Path, extract.KindOf(file.Name))
	}
}

func (c *Chat) setIndividual(args []string) {
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "on", "true", "yes":
			c.individually = true
		case "off", "false", "no":
			c.individually = false
		default:
			fmt.Fprintln(c.out, c.warning("Usage: /individual on|off"))
			return
		}
	}
	mode := "combined"
	if c.individually {
		mode = "individual"
	}
	fmt.Fprintf(c.out, "Answer mode: %s\n", mode)
}

func (c *Chat) printHistory() {
	if len(c.transcript) == 0 {
		fmt.Fprintln(c.out, "No questions asked yet.")
		return
	}
	for i, exchange := range c.transcript {
		fmt.Fprintln(c.out, c.heading(fmt.Sprintf("Q%d: %s", i+1, exchange.Question)))
		fmt.Fprintln(c.out, exchange.Message)
		fmt.Fprintln(c.out)
	}
}

// expandPaths expands glob patterns; patterns without matches are kept so extraction reports them
func expandPaths(args []string) []string {
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[") {
			paths = append(paths, arg)
			continue
		}
		matches, err := filepath.Glob(arg)
		if err != nil || len(matches) == 0 {
			paths = append(paths, arg)
			continue
		}
		paths = append(paths, matches...)
	}
	return paths
}

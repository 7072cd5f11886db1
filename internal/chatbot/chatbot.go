package chatbot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"ChatWidget/internal/backend"
	"ChatWidget/internal/config"
	"ChatWidget/internal/diag"
	"ChatWidget/internal/session"
	"ChatWidget/internal/telemetry"
	"ChatWidget/internal/tui"
	"ChatWidget/internal/widget"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ChatBot wires the widget to its backend, diagnostics and telemetry.
type ChatBot struct {
	config     *config.Config
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
	client     *backend.Client
	journal    *diag.Journal
	controller *widget.Controller
	avatars    widget.Avatars

	closers []func() error
}

// NewChatBot creates a new ChatBot instance
func NewChatBot(cfg *config.Config) (*ChatBot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closeLog, err := telemetry.InitLogger(cfg.Log.Dir, cfg.Log.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cb := &ChatBot{
		config: cfg,
		logger: logger,
		avatars: widget.Avatars{
			User: cfg.Widget.UserAvatar,
			Bot:  cfg.Widget.BotAvatar,
		},
		closers: []func() error{closeLog},
	}

	tracer, meter, cleanup, err := telemetry.InitTelemetry(context.Background(), cfg.Log.Dir)
	if err != nil {
		cb.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	cb.tracer = tracer
	cb.meter = meter
	cb.closers = append(cb.closers, func() error {
		cleanup()
		return nil
	})

	if cfg.Log.Debug {
		logger.Debug("debug mode enabled")
	}

	reporters := diag.Multi{diag.NewLogReporter(logger)}
	if cfg.Diagnostics.Enabled {
		journal, err := diag.OpenJournal(cfg.JournalPath(), logger)
		if err != nil {
			cb.Close()
			return nil, fmt.Errorf("failed to open diagnostics journal: %w", err)
		}
		cb.journal = journal
		cb.closers = append(cb.closers, journal.Close)
		reporters = append(reporters, journal)
	}

	client, err := backend.NewClient(cfg.Endpoint.URL, cfg.Endpoint.RequestTimeout.Duration, logger, tracer, meter)
	if err != nil {
		cb.Close()
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	cb.client = client

	sess := session.New()
	controller, err := widget.New(sess, client, widget.NewMessageList(), reporters, logger, meter, widget.Options{
		SerializeSubmissions: cfg.Widget.SerializeSubmissions,
	})
	if err != nil {
		cb.Close()
		return nil, fmt.Errorf("failed to create widget: %w", err)
	}
	cb.controller = controller

	logger.Info("created new session",
		"session_id", sess.ID(),
		"started_at", sess.StartTime(),
		"endpoint", client.Endpoint(),
	)
	return cb, nil
}

// Controller exposes the widget controller.
func (cb *ChatBot) Controller() *widget.Controller {
	return cb.controller
}

// Run starts the terminal widget, or the line-mode prompt when configured.
func (cb *ChatBot) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	if cb.config.Widget.Plain {
		return cb.RunPlain(ctx, in, out)
	}
	return tui.Run(tui.New(ctx, cb.controller, cb.avatars, cb.client.Endpoint(), cb.logger))
}

// RunPlain runs the widget as a line-oriented prompt on in/out.
func (cb *ChatBot) RunPlain(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "=== Chat Widget ===")
	fmt.Fprintf(out, "Session: %s\n", cb.controller.Session().ID())
	fmt.Fprintf(out, "Endpoint: %s\n", cb.client.Endpoint())
	fmt.Fprintln(out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(in)
	printed := 0

	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			break
		}

		input, ok := widget.PrepareInput(scanner.Text())
		if !ok {
			continue
		}

		if isCommand(input) {
			if cb.handleCommand(input, out) {
				break
			}
			continue
		}

		sub, err := cb.controller.Begin(input)
		if err != nil {
			cb.logger.Warn("submission rejected", "error", err)
			continue
		}
		// The user line is already on screen, so skip it.
		printed = cb.controller.List().Len() - 1
		fmt.Fprintf(out, "%s is typing...\n", cb.avatars.Bot)

		cb.controller.Finish(ctx, sub.Send(ctx))
		printed = cb.printNew(out, printed)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read input: %w", err)
	}

	fmt.Fprintln(out, "Goodbye!")
	return nil
}

func (cb *ChatBot) printNew(out io.Writer, from int) int {
	entries := cb.controller.List().Entries()
	if from > len(entries) {
		from = len(entries)
	}
	for _, e := range entries[from:] {
		if e.Kind != widget.EntryMessage || e.Message.Role == widget.RoleUser {
			continue
		}
		fmt.Fprintf(out, "%s: %s\n\n", cb.avatars.For(e.Message.Role), widget.PlainText(e.Message.Text))
	}
	return len(entries)
}

// commands are the only lines line mode keeps for itself. Anything else,
// including other text starting with "/", is sent to the backend.
var commands = map[string]bool{
	"/quit":    true,
	"/exit":    true,
	"/session": true,
	"/help":    true,
}

func isCommand(input string) bool {
	return commands[input]
}

// handleCommand handles special commands and reports whether to quit.
func (cb *ChatBot) handleCommand(cmd string, out io.Writer) bool {
	switch cmd {
	case "/quit", "/exit":
		return true

	case "/session":
		sess := cb.controller.Session()
		fmt.Fprintf(out, "Session: %s (started %s)\n", sess.ID(), sess.StartTime().Format(time.RFC3339))

	case "/help":
		fmt.Fprintln(out, "Available commands:")
		fmt.Fprintln(out, "  /quit, /exit  - Exit the widget")
		fmt.Fprintln(out, "  /session      - Show the session id")
		fmt.Fprintln(out, "  /help         - Show this help message")
		fmt.Fprintln(out, "Any other line is sent as a message.")
	}
	return false
}

// Close flushes telemetry and releases the journal and log file.
func (cb *ChatBot) Close() error {
	var errs []error
	for i := len(cb.closers) - 1; i >= 0; i-- {
		if err := cb.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	cb.closers = nil
	return errors.Join(errs...)
}

// Package widget implements the chat widget controller: it owns the message
// list and drives one submission from user text to the rendered reply.
//
// A submission runs in three steps so it can be split across an event loop:
// Begin renders the user message and the loading placeholder, Send performs
// the request without touching the list, and Finish removes the placeholder
// and renders the reply or the failure notice. Submit runs all three in order.
package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ChatWidget/internal/backend"
	"ChatWidget/internal/diag"
	"ChatWidget/internal/session"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrEmptyInput is returned for input that is empty after trimming.
	ErrEmptyInput = errors.New("empty input")
	// ErrBusy is returned while a request is outstanding and submissions are serialized.
	ErrBusy = errors.New("a request is already in flight")
)

// Transport sends one prompt to the chat backend.
type Transport interface {
	Send(ctx context.Context, req backend.ChatbotRequest) (string, error)
}

// Options tune controller behaviour.
type Options struct {
	// SerializeSubmissions rejects new submissions while one is in flight.
	// When false, overlapping submissions each add a placeholder and replies
	// render in arrival order.
	SerializeSubmissions bool
}

// Controller drives the submit, request, render cycle.
type Controller struct {
	session   session.Session
	transport Transport
	list      *MessageList
	reporter  diag.Reporter
	logger    *slog.Logger
	opts      Options

	submissions metric.Int64Counter
	inFlight    int
}

// New creates a controller. Every collaborator is required.
func New(sess session.Session, transport Transport, list *MessageList, reporter diag.Reporter, logger *slog.Logger, meter metric.Meter, opts Options) (*Controller, error) {
	if sess.ID() == "" {
		return nil, fmt.Errorf("session cannot be empty")
	}
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if list == nil {
		return nil, fmt.Errorf("message list cannot be nil")
	}
	if reporter == nil {
		return nil, fmt.Errorf("reporter cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if meter == nil {
		return nil, fmt.Errorf("meter cannot be nil")
	}

	counter, err := meter.Int64Counter(
		"chatwidget.submissions",
		metric.WithDescription("Completed chat submissions by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create submissions counter: %w", err)
	}

	return &Controller{
		session:     sess,
		transport:   transport,
		list:        list,
		reporter:    reporter,
		logger:      logger,
		opts:        opts,
		submissions: counter,
	}, nil
}

// Session returns the session every request is sent with.
func (c *Controller) Session() session.Session {
	return c.session
}

// List returns the message list the controller renders into.
func (c *Controller) List() *MessageList {
	return c.list
}

// Busy reports whether a request is outstanding.
func (c *Controller) Busy() bool {
	return c.inFlight > 0
}

// Submission is a request that has been rendered but not yet sent.
type Submission struct {
	Prompt    string
	sessionID string
	transport Transport
}

// Result is the outcome of Send, handed back to Finish.
type Result struct {
	Prompt string
	Reply  string
	Err    error
}

// Begin renders text as a user message followed by the loading placeholder.
// text is expected to be trimmed by the caller.
func (c *Controller) Begin(text string) (*Submission, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if c.opts.SerializeSubmissions && c.inFlight > 0 {
		return nil, ErrBusy
	}

	c.list.Append(Message{Text: text, Role: RoleUser})
	c.list.ShowLoading()
	c.inFlight++

	c.logger.Info("submitting message", "session_id", c.session.ID(), "length", len(text))

	return &Submission{
		Prompt:    text,
		sessionID: c.session.ID(),
		transport: c.transport,
	}, nil
}

// Send performs the outbound request. It does not touch the message list and
// may run off the event loop.
func (s *Submission) Send(ctx context.Context) Result {
	reply, err := s.transport.Send(ctx, backend.ChatbotRequest{
		Prompt:    s.Prompt,
		SessionID: s.sessionID,
	})
	return Result{Prompt: s.Prompt, Reply: reply, Err: err}
}

// Finish removes the placeholder and renders the reply, or the failure notice
// when the request failed. The failure detail goes to the reporter only.
func (c *Controller) Finish(ctx context.Context, res Result) {
	if c.inFlight > 0 {
		c.inFlight--
	}
	c.list.HideLoading()

	if res.Err != nil {
		c.reportFailure(ctx, res)
		c.list.Append(Message{Text: FailureNotice, Role: RoleError})
		c.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(RoleError))))
		return
	}

	c.list.Append(Message{Text: res.Reply, Role: RoleAssistant})
	c.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(RoleAssistant))))
}

func (c *Controller) reportFailure(ctx context.Context, res Result) {
	f := diag.Failure{
		SessionID: c.session.ID(),
		Prompt:    res.Prompt,
		Kind:      string(backend.Classify(res.Err)),
		Detail:    res.Err.Error(),
		Time:      time.Now(),
	}
	var statusErr *backend.StatusError
	if errors.As(res.Err, &statusErr) {
		f.StatusCode = statusErr.StatusCode
	}
	c.reporter.Report(ctx, f)
}

// Submit runs Begin, Send and Finish in order. Only ErrEmptyInput and ErrBusy
// are returned; request failures are rendered as the failure notice.
func (c *Controller) Submit(ctx context.Context, text string) error {
	sub, err := c.Begin(text)
	if err != nil {
		return err
	}
	c.Finish(ctx, sub.Send(ctx))
	return nil
}

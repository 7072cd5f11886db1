package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ChatbotRequest represents the request body for the /chatbot endpoint
type ChatbotRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`
}

// FailureKind classifies why a request did not produce a reply.
type FailureKind string

const (
	FailureTransport FailureKind = "transport"
	FailureStatus    FailureKind = "status"
	FailureRead      FailureKind = "read"
)

// StatusError is returned when the backend answers outside the 2xx range.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error! Status: %d", e.StatusCode)
}

// ReadError is returned when the response body could not be read.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read response: %v", e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Classify maps an error returned by Client.Send to its FailureKind.
func Classify(err error) FailureKind {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return FailureStatus
	}
	var readErr *ReadError
	if errors.As(err, &readErr) {
		return FailureRead
	}
	return FailureTransport
}

// Client posts prompts to a fixed chat endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	duration   metric.Float64Histogram
}

// NewClient creates a client for endpoint. A zero timeout leaves requests unbounded.
func NewClient(endpoint string, timeout time.Duration, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if tracer == nil {
		return nil, fmt.Errorf("tracer cannot be nil")
	}
	if meter == nil {
		return nil, fmt.Errorf("meter cannot be nil")
	}

	histogram, err := meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		tracer:     tracer,
		duration:   histogram,
	}, nil
}

// Endpoint returns the URL requests are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Send posts one prompt and returns the response body as plain text.
func (c *Client) Send(ctx context.Context, req ChatbotRequest) (string, error) {
	ctx, span := c.tracer.Start(ctx, "chatbot_request")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", req.SessionID))

	start := time.Now()
	reply, status, err := c.do(ctx, req)

	c.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.Int("http.response.status_code", status)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("chatbot request failed", "session_id", req.SessionID, "error", err)
		return "", err
	}

	c.logger.Debug("chatbot request completed", "session_id", req.SessionID, "status", status, "bytes", len(reply))
	return reply, nil
}

func (c *Client) do(ctx context.Context, req ChatbotRequest) (string, int, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", resp.StatusCode, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, &ReadError{Err: err}
	}

	return string(body), resp.StatusCode, nil
}

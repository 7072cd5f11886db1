package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func newTestClient(t *testing.T, endpoint string, timeout time.Duration) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := NewClient(endpoint, timeout, logger, tracenoop.NewTracerProvider().Tracer("test"), metricnoop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return c
}

func TestSendPostsJSON(t *testing.T) {
	var got ChatbotRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		// The reply is plain text even when the backend claims otherwise.
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, "Hello!")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/chatbot", 0)
	reply, err := c.Send(context.Background(), ChatbotRequest{Prompt: "hi there", SessionID: "session_1_abc"})
	require.NoError(t, err)

	assert.Equal(t, "Hello!", reply)
	assert.Equal(t, ChatbotRequest{Prompt: "hi there", SessionID: "session_1_abc"}, got)
}

func TestSendStatusCodes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "created", status: http.StatusCreated},
		{name: "bad request", status: http.StatusBadRequest, wantErr: true},
		{name: "internal error", status: http.StatusInternalServerError, wantErr: true},
		{name: "redirect without location", status: http.StatusMultipleChoices, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error": "An internal server error occurred."}`)
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL, 0)
			_, err := c.Send(context.Background(), ChatbotRequest{Prompt: "x", SessionID: "s"})
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Contains(t, statusErr.Body, "internal server error")
			assert.Equal(t, FailureStatus, Classify(err))
		})
	}
}

func TestSendTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	c := newTestClient(t, endpoint, 0)
	_, err := c.Send(context.Background(), ChatbotRequest{Prompt: "x", SessionID: "s"})
	require.Error(t, err)
	assert.Equal(t, FailureTransport, Classify(err))
}

func TestSendReadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = io.WriteString(w, "short")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	_, err := c.Send(context.Background(), ChatbotRequest{Prompt: "x", SessionID: "s"})
	require.Error(t, err)
	assert.Equal(t, FailureRead, Classify(err))
}

func TestSendTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL, 50*time.Millisecond)
	_, err := c.Send(context.Background(), ChatbotRequest{Prompt: "x", SessionID: "s"})
	require.Error(t, err)
	assert.Equal(t, FailureTransport, Classify(err))
}

func TestNewClientRequiresCollaborators(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracer := tracenoop.NewTracerProvider().Tracer("test")
	meter := metricnoop.NewMeterProvider().Meter("test")

	_, err := NewClient("http://localhost/chatbot", 0, nil, tracer, meter)
	assert.EqualError(t, err, "logger cannot be nil")
	_, err = NewClient("http://localhost/chatbot", 0, logger, nil, meter)
	assert.EqualError(t, err, "tracer cannot be nil")
	_, err = NewClient("http://localhost/chatbot", 0, logger, tracer, nil)
	assert.EqualError(t, err, "meter cannot be nil")
}

func TestEndpoint(t *testing.T) {
	c := newTestClient(t, "http://localhost:5000/chatbot", 0)
	assert.Equal(t, "http://localhost:5000/chatbot", c.Endpoint())
}

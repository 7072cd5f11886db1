package widget

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"ChatWidget/internal/backend"
	"ChatWidget/internal/diag"
	"ChatWidget/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

type fakeTransport struct {
	calls []backend.ChatbotRequest
	send  func(req backend.ChatbotRequest) (string, error)
}

func (f *fakeTransport) Send(_ context.Context, req backend.ChatbotRequest) (string, error) {
	f.calls = append(f.calls, req)
	if f.send == nil {
		return "", nil
	}
	return f.send(req)
}

type recordingReporter struct {
	failures []diag.Failure
}

func (r *recordingReporter) Report(_ context.Context, f diag.Failure) {
	r.failures = append(r.failures, f)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newController(t *testing.T, tr Transport, opts Options) (*Controller, *recordingReporter) {
	t.Helper()
	rep := &recordingReporter{}
	c, err := New(session.New(), tr, NewMessageList(), rep, discardLogger(), metricnoop.NewMeterProvider().Meter("test"), opts)
	require.NoError(t, err)
	return c, rep
}

func newHTTPTransport(t *testing.T, endpoint string) *backend.Client {
	t.Helper()
	client, err := backend.NewClient(endpoint, 0, discardLogger(), tracenoop.NewTracerProvider().Tracer("test"), metricnoop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return client
}

func TestSubmitSuccess(t *testing.T) {
	tr := &fakeTransport{}
	c, rep := newController(t, tr, Options{SerializeSubmissions: true})

	tr.send = func(req backend.ChatbotRequest) (string, error) {
		// The user message and the placeholder are on screen before the request goes out.
		assert.Equal(t, []Message{{Text: "hi", Role: RoleUser}}, c.List().Messages())
		assert.Equal(t, 1, c.List().Placeholders())
		return "Hello!", nil
	}

	require.NoError(t, c.Submit(context.Background(), "hi"))

	assert.Equal(t, []Message{
		{Text: "hi", Role: RoleUser},
		{Text: "Hello!", Role: RoleAssistant},
	}, c.List().Messages())
	assert.Zero(t, c.List().Placeholders())
	assert.Empty(t, rep.failures)
	assert.False(t, c.Busy())

	require.Len(t, tr.calls, 1)
	assert.Equal(t, "hi", tr.calls[0].Prompt)
	assert.Equal(t, c.Session().ID(), tr.calls[0].SessionID)
}

func TestSubmitEmptyInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t "} {
		tr := &fakeTransport{}
		c, _ := newController(t, tr, Options{})

		err := c.Submit(context.Background(), input)
		assert.ErrorIs(t, err, ErrEmptyInput)
		assert.Zero(t, c.List().Len())
		assert.Empty(t, tr.calls)
	}
}

func TestSubmitFailuresRenderNotice(t *testing.T) {
	tests := []struct {
		name     string
		endpoint func(t *testing.T) string
		wantKind string
		wantCode int
	}{
		{
			name: "network failure",
			endpoint: func(t *testing.T) string {
				srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
				srv.Close()
				return srv.URL
			},
			wantKind: "transport",
		},
		{
			name: "http 500",
			endpoint: func(t *testing.T) string {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					http.Error(w, `{"error": "An internal server error occurred."}`, http.StatusInternalServerError)
				}))
				t.Cleanup(srv.Close)
				return srv.URL
			},
			wantKind: "status",
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rep := newController(t, newHTTPTransport(t, tt.endpoint(t)), Options{SerializeSubmissions: true})

			require.NoError(t, c.Submit(context.Background(), "hello"))

			assert.Equal(t, []Message{
				{Text: "hello", Role: RoleUser},
				{Text: "Sorry, something went wrong. Please check the console for details.", Role: RoleError},
			}, c.List().Messages())
			assert.Zero(t, c.List().Placeholders())

			require.Len(t, rep.failures, 1)
			f := rep.failures[0]
			assert.Equal(t, tt.wantKind, f.Kind)
			assert.Equal(t, tt.wantCode, f.StatusCode)
			assert.Equal(t, "hello", f.Prompt)
			assert.Equal(t, c.Session().ID(), f.SessionID)
			assert.NotEmpty(t, f.Detail)
			assert.NotContains(t, c.List().Messages()[1].Text, f.Detail)
		})
	}
}

func TestSubmitReadFailure(t *testing.T) {
	tr := &fakeTransport{send: func(backend.ChatbotRequest) (string, error) {
		return "", &backend.ReadError{Err: io.ErrUnexpectedEOF}
	}}
	c, rep := newController(t, tr, Options{})

	require.NoError(t, c.Submit(context.Background(), "hello"))

	msgs := c.List().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, Message{Text: FailureNotice, Role: RoleError}, msgs[1])
	require.Len(t, rep.failures, 1)
	assert.Equal(t, "read", rep.failures[0].Kind)
}

func TestBeginSerialized(t *testing.T) {
	tr := &fakeTransport{send: func(req backend.ChatbotRequest) (string, error) {
		return "re: " + req.Prompt, nil
	}}
	c, _ := newController(t, tr, Options{SerializeSubmissions: true})
	ctx := context.Background()

	first, err := c.Begin("one")
	require.NoError(t, err)
	assert.True(t, c.Busy())

	_, err = c.Begin("two")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 1, c.List().Placeholders())
	assert.Len(t, c.List().Messages(), 1)

	c.Finish(ctx, first.Send(ctx))
	assert.False(t, c.Busy())

	second, err := c.Begin("two")
	require.NoError(t, err)
	c.Finish(ctx, second.Send(ctx))

	assert.Equal(t, []Message{
		{Text: "one", Role: RoleUser},
		{Text: "re: one", Role: RoleAssistant},
		{Text: "two", Role: RoleUser},
		{Text: "re: two", Role: RoleAssistant},
	}, c.List().Messages())
	assert.Zero(t, c.List().Placeholders())
}

func TestBeginUnserializedOverlap(t *testing.T) {
	tr := &fakeTransport{send: func(req backend.ChatbotRequest) (string, error) {
		if req.Prompt == "one" {
			return "", errors.New("connection reset")
		}
		return "re: " + req.Prompt, nil
	}}
	c, _ := newController(t, tr, Options{SerializeSubmissions: false})
	ctx := context.Background()

	first, err := c.Begin("one")
	require.NoError(t, err)
	second, err := c.Begin("two")
	require.NoError(t, err)
	assert.Equal(t, 2, c.List().Placeholders())

	// Replies render in arrival order, not submission order.
	c.Finish(ctx, second.Send(ctx))
	assert.Equal(t, 1, c.List().Placeholders())
	c.Finish(ctx, first.Send(ctx))
	assert.Zero(t, c.List().Placeholders())

	assert.Equal(t, []Message{
		{Text: "one", Role: RoleUser},
		{Text: "two", Role: RoleUser},
		{Text: "re: two", Role: RoleAssistant},
		{Text: FailureNotice, Role: RoleError},
	}, c.List().Messages())
}

func TestNewRequiresCollaborators(t *testing.T) {
	meter := metricnoop.NewMeterProvider().Meter("test")
	tr := &fakeTransport{}
	rep := &recordingReporter{}

	_, err := New(session.Session{}, tr, NewMessageList(), rep, discardLogger(), meter, Options{})
	assert.Error(t, err)
	_, err = New(session.New(), nil, NewMessageList(), rep, discardLogger(), meter, Options{})
	assert.Error(t, err)
	_, err = New(session.New(), tr, nil, rep, discardLogger(), meter, Options{})
	assert.Error(t, err)
	_, err = New(session.New(), tr, NewMessageList(), nil, discardLogger(), meter, Options{})
	assert.Error(t, err)
	_, err = New(session.New(), tr, NewMessageList(), rep, nil, meter, Options{})
	assert.Error(t, err)
	_, err = New(session.New(), tr, NewMessageList(), rep, discardLogger(), nil, Options{})
	assert.EqualError(t, err, "meter cannot be nil")
}

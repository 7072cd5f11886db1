// Package diag is the developer-facing diagnostics channel. Failure details
// go here and never to the rendered message list.
package diag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
	"unicode/utf8"
)

// Failure describes one submission that ended in an error message.
type Failure struct {
	SessionID string
	// Prompt is only held in memory. Stored failures carry PromptLen and
	// PromptDigest instead.
	Prompt       string
	PromptLen    int
	PromptDigest string
	Kind         string
	StatusCode int
	Detail     string
	Time       time.Time
}

// Fingerprint fills PromptLen and PromptDigest from Prompt.
func (f Failure) Fingerprint() Failure {
	if f.Prompt == "" {
		return f
	}
	sum := sha256.Sum256([]byte(f.Prompt))
	f.PromptLen = utf8.RuneCountInString(f.Prompt)
	f.PromptDigest = hex.EncodeToString(sum[:])[:16]
	return f
}

// Reporter receives failure details.
type Reporter interface {
	Report(ctx context.Context, f Failure)
}

// LogReporter writes failures to a structured logger.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter returns a reporter that logs each failure at error level.
func NewLogReporter(logger *slog.Logger) LogReporter {
	return LogReporter{logger: logger}
}

func (r LogReporter) Report(ctx context.Context, f Failure) {
	f = f.Fingerprint()
	r.logger.ErrorContext(ctx, "chat request failed",
		"session_id", f.SessionID,
		"prompt_len", f.PromptLen,
		"prompt_digest", f.PromptDigest,
		"kind", f.Kind,
		"status_code", f.StatusCode,
		"error", f.Detail,
	)
}

// Multi fans a failure out to every reporter in order.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, f Failure) {
	for _, r := range m {
		r.Report(ctx, f)
	}
}

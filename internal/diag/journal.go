package diag

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal keeps failure reports in a SQLite database so they can be inspected
// after the widget exits. Prompts are stored as length and digest only.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenJournal opens (and if needed creates) the journal database at path.
func OpenJournal(path string, logger *slog.Logger) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createFailuresTable := `
	CREATE TABLE IF NOT EXISTS failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		prompt_len INTEGER,
		prompt_digest TEXT,
		kind TEXT,
		status_code INTEGER,
		detail TEXT,
		timestamp DATETIME
	);`

	if _, err := db.Exec(createFailuresTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create failures table: %w", err)
	}

	return &Journal{db: db, logger: logger}, nil
}

// Report stores f. Storage errors are logged, not returned: the widget must
// keep running when the journal is unavailable.
func (j *Journal) Report(ctx context.Context, f Failure) {
	if f.Time.IsZero() {
		f.Time = time.Now()
	}
	f = f.Fingerprint()
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO failures (session_id, prompt_len, prompt_digest, kind, status_code, detail, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)",
		f.SessionID, f.PromptLen, f.PromptDigest, f.Kind, f.StatusCode, f.Detail, f.Time,
	)
	if err != nil {
		j.logger.Warn("failed to record failure", "error", err)
	}
}

// Recent returns up to limit failures, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Failure, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.QueryContext(ctx,
		"SELECT session_id, prompt_len, prompt_digest, kind, status_code, detail, timestamp FROM failures ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	failures := []Failure{}
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.SessionID, &f.PromptLen, &f.PromptDigest, &f.Kind, &f.StatusCode, &f.Detail, &f.Time); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read failures: %w", err)
	}

	return failures, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

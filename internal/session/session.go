package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const suffixLen = 9

// Session identifies one run of the widget to the chat backend.
// It is created once at startup and never changes.
type Session struct {
	id        string
	startTime time.Time
}

// New creates a session whose ID is "session_<unix millis>_<random suffix>".
// Uniqueness is best effort.
func New() Session {
	return newAt(time.Now())
}

func newAt(now time.Time) Session {
	return Session{
		id:        fmt.Sprintf("session_%d_%s", now.UnixMilli(), randomSuffix()),
		startTime: now,
	}
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLen]
}

// ID returns the opaque identifier sent with every request.
func (s Session) ID() string {
	return s.id
}

// StartTime returns when the session was created.
func (s Session) StartTime() time.Time {
	return s.startTime
}

func (s Session) String() string {
	return s.id
}

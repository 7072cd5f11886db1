package widget

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/x/ansi"
)

// Role classifies who a Message came from.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// FailureNotice is the only text an end user sees when a request fails.
const FailureNotice = "Sorry, something went wrong. Please check the console for details."

// Message is a displayed chat entry. It is never changed after it is appended.
type Message struct {
	Text string
	Role Role
}

// EntryKind tells messages and loading placeholders apart in the list.
type EntryKind int

const (
	EntryMessage EntryKind = iota
	EntryPlaceholder
)

// Entry is one visual element of the message list.
type Entry struct {
	Kind    EntryKind
	Message Message
}

// Avatars maps roles to the avatar shown beside their messages.
type Avatars struct {
	User string
	Bot  string
}

// For returns the user avatar for user messages and the bot avatar otherwise.
func (a Avatars) For(role Role) string {
	if role == RoleUser {
		return a.User
	}
	return a.Bot
}

// MessageList is the append-only list of rendered entries. It is owned by a
// single event loop and is not safe for concurrent use.
type MessageList struct {
	entries []Entry
	// index of the entry scrolled into view; -1 when empty
	scroll int
}

// NewMessageList returns an empty list.
func NewMessageList() *MessageList {
	return &MessageList{scroll: -1}
}

// Append adds m at the end and scrolls to it.
func (l *MessageList) Append(m Message) {
	l.entries = append(l.entries, Entry{Kind: EntryMessage, Message: m})
	l.scrollToEnd()
}

// ShowLoading appends a loading placeholder. Calling it twice without a
// HideLoading in between leaves two placeholders.
func (l *MessageList) ShowLoading() {
	l.entries = append(l.entries, Entry{Kind: EntryPlaceholder})
	l.scrollToEnd()
}

// HideLoading removes the first placeholder, if any.
func (l *MessageList) HideLoading() bool {
	for i, e := range l.entries {
		if e.Kind != EntryPlaceholder {
			continue
		}
		l.entries = append(l.entries[:i], l.entries[i+1:]...)
		if l.scroll >= len(l.entries) {
			l.scroll = len(l.entries) - 1
		}
		return true
	}
	return false
}

func (l *MessageList) scrollToEnd() {
	l.scroll = len(l.entries) - 1
}

// ScrollPosition is the index of the entry currently scrolled into view.
func (l *MessageList) ScrollPosition() int {
	return l.scroll
}

// Len counts all entries, placeholders included.
func (l *MessageList) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the entries in display order.
func (l *MessageList) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Messages returns only the messages, in display order.
func (l *MessageList) Messages() []Message {
	var out []Message
	for _, e := range l.entries {
		if e.Kind == EntryMessage {
			out = append(out, e.Message)
		}
	}
	return out
}

// Placeholders counts the loading placeholders currently shown.
func (l *MessageList) Placeholders() int {
	n := 0
	for _, e := range l.entries {
		if e.Kind == EntryPlaceholder {
			n++
		}
	}
	return n
}

// PlainText strips terminal control sequences so message text is shown
// literally and cannot drive the terminal.
func PlainText(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, ansi.Strip(s))
}

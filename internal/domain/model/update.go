package model

import (
	"strings"
	"time"
)

// Update is one inbound event from a user: a command, a free-text message, or
// a callback press. Updates are immutable once created; the dispatcher only
// reads them.
type Update struct {
	ID         int64 // monotonic per source, never reused
	UserID     int64 // sender identity; also the lane key
	ChatID     int64
	Username   string
	Command    string // without leading slash; empty for free text
	Args       string
	Text       string // raw text for free-form messages
	ReceivedAt time.Time

	// TraceID is stamped by the dispatcher before processing.
	TraceID string
}

// IsCommand reports whether the update carries a command.
func (u *Update) IsCommand() bool { return u.Command != "" }

// ParseCommand splits a raw "/cmd args" text into command name and arguments.
// Returns empty command for free-form text.
func ParseCommand(text string) (cmd, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	body := strings.TrimPrefix(text, "/")
	if i := strings.IndexAny(body, " \t"); i >= 0 {
		cmd, args = body[:i], strings.TrimSpace(body[i+1:])
	} else {
		cmd = body
	}
	// /cmd@BotName form
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return cmd, args
}

// Package logging constructs the single *slog.Logger threaded explicitly
// through the broker; business logic never calls the package-level
// slog.Default().
package logging

import (
	"log/slog"
	"os"
)

// Format selects the slog handler.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// New builds a logger writing to stderr. JSON is the production default;
// text is for local development.
func New(format Format, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == FormatText {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// WithSession returns a logger with the session_id attribute attached.
func WithSession(l *slog.Logger, sessionID string) *slog.Logger {
	return l.With("session_id", sessionID)
}

// WithParticipant further attaches participant_id.
func WithParticipant(l *slog.Logger, participantID string) *slog.Logger {
	return l.With("participant_id", participantID)
}

// Package logging provides the structured, subsystem-tagged logging used
// across mcprefd: the JSON-RPC dispatcher, transport, session manager, and
// the OAuth authorization server and client all log through here rather
// than calling slog directly, so every line carries a consistent
// subsystem tag and audit events get a dedicated, greppable shape.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Level is the severity of a log entry.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var defaultLogger *slog.Logger

// Init initializes the package-level logger. Call once at process startup,
// before Serve or any subcommand logs anything.
func Init(level Level, output io.Writer) {
	handler := slog.NewTextHandler(output, &slog.HandlerOptions{Level: level.SlogLevel()})
	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

func logInternal(level Level, subsystem string, err error, messageFmt string, args ...interface{}) {
	if defaultLogger == nil || !defaultLogger.Enabled(context.Background(), level.SlogLevel()) {
		return
	}

	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	attrs := make([]slog.Attr, 0, 2)
	attrs = append(attrs, slog.String("subsystem", subsystem))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	defaultLogger.LogAttrs(context.Background(), level.SlogLevel(), msg, attrs...)
}

func Debug(subsystem, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, messageFmt, args...)
}

func Info(subsystem, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, messageFmt, args...)
}

func Warn(subsystem, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, messageFmt, args...)
}

func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, messageFmt, args...)
}

// TruncateSessionID returns a truncated session ID safe for logging:
// the full ID is a bearer-adjacent secret and must never appear whole
// in a log line.
func TruncateSessionID(sessionID string) string {
	if len(sessionID) <= 8 {
		return sessionID
	}
	return sessionID[:8] + "..."
}

// AuditEvent is a structured record of a security-sensitive operation
// (token issuance, scope denial, session revocation) suitable for
// collection by an external audit pipeline.
type AuditEvent struct {
	Action    string
	Outcome   string // "success" or "failure"
	SessionID string
	Subject   string
	Target    string
	Details   string
	Error     string
}

// Audit logs a structured audit event at INFO level with an [AUDIT]
// prefix so log aggregation can filter on it independent of subsystem.
func Audit(event AuditEvent) {
	parts := make([]string, 0, 7)
	parts = append(parts, "action="+event.Action)
	parts = append(parts, "outcome="+event.Outcome)
	if event.SessionID != "" {
		parts = append(parts, "session="+event.SessionID)
	}
	if event.Subject != "" {
		parts = append(parts, "subject="+event.Subject)
	}
	if event.Target != "" {
		parts = append(parts, "target="+event.Target)
	}
	if event.Details != "" {
		parts = append(parts, "details="+event.Details)
	}
	if event.Error != "" {
		parts = append(parts, "error="+event.Error)
	}

	logInternal(LevelInfo, "audit", nil, "[AUDIT] %s", strings.Join(parts, " "))
}

// Fallback is used before Init has run, or when a log call happens on a
// shutdown path after logging has been torn down.
func Fallback(level Level, subsystem, message string) {
	fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", time.Now().Format(time.RFC3339), level, message)
	_ = subsystem
}

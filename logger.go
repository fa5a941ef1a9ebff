package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger adapts a *slog.Logger to Logger. Messages are formatted
// printf style before they reach the handler.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return slogLogger{l: l}
}

func (s slogLogger) Debug(format string, args ...any) {
	s.log(slog.LevelDebug, format, args...)
}

func (s slogLogger) Info(format string, args ...any) {
	s.log(slog.LevelInfo, format, args...)
}

func (s slogLogger) Warn(format string, args ...any) {
	s.log(slog.LevelWarn, format, args...)
}

func (s slogLogger) Error(format string, args ...any) {
	s.log(slog.LevelError, format, args...)
}

func (s slogLogger) log(level slog.Level, format string, args ...any) {
	ctx := context.Background()
	if !s.l.Enabled(ctx, level) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	s.l.Log(ctx, level, msg, slog.String("component", "auth"))
}

// RedactIdentifier keeps the first two characters of the local part and the domain
func RedactIdentifier(identifier string) string {
	parts := strings.Split(identifier, "@")
	if len(parts) != 2 {
		return "***"
	}

	local, domain := parts[0], parts[1]
	if len(local) > 2 {
		local = local[:2] + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

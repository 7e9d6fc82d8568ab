package main

import (
	"context"
	"log/slog"
	"time"
)

// logMailer stands in for real delivery. The token is only logged when
// showToken is set, which main does for the local environment.
type logMailer struct {
	log       *slog.Logger
	showToken bool
}

func newLogMailer(log *slog.Logger, showToken bool) *logMailer {
	return &logMailer{log: log.With(slog.String("component", "mailer")), showToken: showToken}
}

func (m *logMailer) SendPasswordReset(ctx context.Context, to, token string, expiresAt time.Time) error {
	attrs := []slog.Attr{
		slog.String("to", to),
		slog.Time("expires_at", expiresAt),
	}
	if m.showToken {
		attrs = append(attrs, slog.String("token", token))
	}
	m.log.LogAttrs(ctx, slog.LevelInfo, "password reset mail", attrs...)
	return nil
}

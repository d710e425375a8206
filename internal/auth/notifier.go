package auth

import (
	"context"
	"log/slog"
	"strings"
)

// ResetNotifier delivers password reset tokens to account owners
type ResetNotifier interface {
	SendResetNotification(ctx context.Context, email, token string) error
}

// LogNotifier implements ResetNotifier by writing to the log. With exposeToken set (development
// only) the token itself is logged so a reset can be completed without a mail server.
type LogNotifier struct {
	logger      *slog.Logger
	exposeToken bool
}

// NewLogNotifier creates a new log-backed notifier
func NewLogNotifier(logger *slog.Logger, exposeToken bool) *LogNotifier {
	return &LogNotifier{logger: logger, exposeToken: exposeToken}
}

// SendResetNotification logs the reset request. Never logs the token outside development.
func (n *LogNotifier) SendResetNotification(ctx context.Context, email, token string) error {
	if n.exposeToken {
		n.logger.InfoContext(ctx, "password reset requested", "email", email, "token", token)
		return nil
	}
	n.logger.InfoContext(ctx, "password reset requested", "email", maskEmail(email))
	return nil
}

// maskEmail masks the local part of an email for logging (e.g., jo******@example.com)
func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return "****"
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return "**" + domain
	}
	return local[:2] + strings.Repeat("*", len(local)-2) + domain
}

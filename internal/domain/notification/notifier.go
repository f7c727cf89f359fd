package notification

import (
	"context"
	"log/slog"
	"strings"

	"brokerlink/internal/domain/connection"
	"brokerlink/internal/shared/messages"
)

// Notifier turns connection and credential events into user notifications.
// It satisfies connection.Notifier and refresh.RotationNotifier.
type Notifier struct {
	service *Service
	msgs    *messages.Messages
	logger  *slog.Logger
}

// NewNotifier creates a notifier using the given message texts.
func NewNotifier(service *Service, msgs *messages.Messages, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if msgs == nil {
		msgs = messages.Defaults()
	}
	return &Notifier{service: service, msgs: msgs, logger: logger.With("component", "notifier")}
}

// ConnectionBroken tells the owner the connection needs to be reconnected.
func (n *Notifier) ConnectionBroken(ctx context.Context, c *connection.Connection) {
	n.send(ctx, c.UserID, n.msgs.ConnectionBroken, CategoryConnections, institution(c), map[string]string{
		"connectionId": c.ID,
		"status":       string(c.Status),
	})
}

// ConnectionRestored tells the owner syncing has resumed.
func (n *Notifier) ConnectionRestored(ctx context.Context, c *connection.Connection) {
	n.send(ctx, c.UserID, n.msgs.ConnectionRestored, CategoryConnections, institution(c), map[string]string{
		"connectionId": c.ID,
		"status":       string(c.Status),
	})
}

// CredentialRotated asks the user to link the provider again.
func (n *Notifier) CredentialRotated(ctx context.Context, userID int64, provider string) {
	n.send(ctx, userID, n.msgs.CredentialRotated, CategoryCredentials, provider, map[string]string{
		"provider": provider,
	})
}

func (n *Notifier) send(ctx context.Context, userID int64, text messages.MessageText, category, name string, data map[string]string) {
	r := strings.NewReplacer("{name}", name)
	if err := n.service.SendToUser(ctx, userID, r.Replace(text.Title), r.Replace(text.Body), category, data); err != nil {
		n.logger.WarnContext(ctx, "failed to notify user", "user_id", userID, "category", category, "error", err)
	}
}

func institution(c *connection.Connection) string {
	if c.InstitutionName != "" {
		return c.InstitutionName
	}
	if c.Provider != "" {
		return c.Provider
	}
	return "your institution"
}

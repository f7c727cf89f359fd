package listener

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

const (
	channelName       = "credential_replaced"
	reconnectInterval = 5 * time.Second
	pingInterval      = 90 * time.Second
)

var errMissingUser = errors.New("notification has no user_id")

// CredentialNotification is the payload of the credential_replaced NOTIFY.
type CredentialNotification struct {
	CredentialID int64  `json:"credential_id"`
	UserID       int64  `json:"user_id"`
	Provider     string `json:"provider"`
}

// RelinkHandler is told when a user stores a new credential.
type RelinkHandler interface {
	CredentialReplaced(ctx context.Context, userID int64, provider string)
}

// CredentialListener turns credential_replaced notifications into prompt
// single-user refreshes.
type CredentialListener struct {
	connStr    string
	handler    RelinkHandler
	logger     *slog.Logger
	shutdownCh chan struct{}
	done       chan struct{}
}

func NewCredentialListener(connStr string, handler RelinkHandler, logger *slog.Logger) *CredentialListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialListener{
		connStr:    connStr,
		handler:    handler,
		logger:     logger.With("component", "credential_listener"),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins listening in a background goroutine.
func (l *CredentialListener) Start(ctx context.Context) {
	go l.listen(ctx)
	l.logger.Info("credential listener started", "channel", channelName)
}

// Stop shuts the listener down and waits for it to exit.
func (l *CredentialListener) Stop() {
	close(l.shutdownCh)
	<-l.done
	l.logger.Info("credential listener stopped")
}

func (l *CredentialListener) listen(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		default:
			l.connectAndListen(ctx)
		}

		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
			l.logger.Info("reconnecting to PostgreSQL for notifications")
		}
	}
}

func (l *CredentialListener) connectAndListen(ctx context.Context) {
	listener := pq.NewListener(l.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			l.logger.Info("connected to notification channel")
		case pq.ListenerEventDisconnected:
			l.logger.Warn("disconnected from notification channel", "error", err)
		case pq.ListenerEventReconnected:
			l.logger.Info("reconnected to notification channel")
		case pq.ListenerEventConnectionAttemptFailed:
			l.logger.Warn("notification connection attempt failed", "error", err)
		}
	})
	defer listener.Close()

	if err := listener.Listen(channelName); err != nil {
		l.logger.Error("failed to listen", "channel", channelName, "error", err)
		return
	}

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case n := <-listener.Notify:
			if n == nil {
				// connection lost; reconnect
				return
			}
			l.handleNotification(ctx, n.Extra)
		case <-time.After(pingInterval):
			go func() {
				if err := listener.Ping(); err != nil {
					l.logger.Warn("listener ping failed", "error", err)
				}
			}()
		}
	}
}

func (l *CredentialListener) handleNotification(ctx context.Context, extra string) {
	payload, err := parseNotification(extra)
	if err != nil {
		l.logger.Warn("failed to parse notification payload", "error", err)
		return
	}

	l.logger.InfoContext(ctx, "credential replaced",
		"user_id", payload.UserID,
		"provider", payload.Provider,
		"credential_id", payload.CredentialID,
	)
	l.handler.CredentialReplaced(ctx, payload.UserID, payload.Provider)
}

func parseNotification(extra string) (CredentialNotification, error) {
	var payload CredentialNotification
	if err := json.Unmarshal([]byte(extra), &payload); err != nil {
		return payload, err
	}
	if payload.UserID <= 0 {
		return payload, errMissingUser
	}
	return payload, nil
}

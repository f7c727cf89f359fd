package firebase

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"brokerlink/internal/domain/notification"
)

const fcmBatchLimit = 500

// TokenDeactivator marks an invalid FCM token inactive.
type TokenDeactivator func(ctx context.Context, token string) error

// Client implements notification.Messenger on Firebase Cloud Messaging.
type Client struct {
	msgClient   *messaging.Client
	deactivator TokenDeactivator
	logger      *slog.Logger
}

// NewClient initializes a Firebase app and returns an FCM client.
// deactivator is called when an invalid/unregistered token is detected; may be nil.
func NewClient(ctx context.Context, credentialsFile string, deactivator TokenDeactivator, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging client: %w", err)
	}

	return &Client{msgClient: msgClient, deactivator: deactivator, logger: logger.With("component", "fcm")}, nil
}

// Deliver fans a push out to tokens in batches of fcmBatchLimit. Tokens FCM
// reports as unregistered or malformed are deactivated.
func (c *Client) Deliver(ctx context.Context, tokens []string, push notification.Push) (int, error) {
	if len(tokens) == 0 {
		return 0, nil
	}

	var delivered, failed int
	for _, batch := range chunkTokens(tokens, fcmBatchLimit) {
		resp, err := c.msgClient.SendEachForMulticast(ctx, multicastMessage(batch, push))
		if err != nil {
			return delivered, fmt.Errorf("failed to send FCM multicast: %w", err)
		}

		delivered += resp.SuccessCount
		failed += resp.FailureCount
		if resp.FailureCount > 0 {
			c.handleMulticastFailures(ctx, batch, resp)
		}
	}

	c.logger.InfoContext(ctx, "FCM multicast sent", "delivered", delivered, "failed", failed)
	return delivered, nil
}

func multicastMessage(tokens []string, push notification.Push) *messaging.MulticastMessage {
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: push.Title,
			Body:  push.Body,
		},
		Data: push.Data,
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{Aps: &messaging.Aps{Sound: "default"}},
		},
	}
}

func (c *Client) handleMulticastFailures(ctx context.Context, tokens []string, resp *messaging.BatchResponse) {
	for i, sendResp := range resp.Responses {
		if sendResp.Error == nil {
			continue
		}
		if messaging.IsUnregistered(sendResp.Error) || messaging.IsInvalidArgument(sendResp.Error) {
			c.logger.WarnContext(ctx, "invalid FCM token, deactivating", "index", i, "token", tokens[i], "error", sendResp.Error)
			c.deactivateToken(ctx, tokens[i])
		} else {
			c.logger.WarnContext(ctx, "FCM send error", "index", i, "error", sendResp.Error)
		}
	}
}

func (c *Client) deactivateToken(ctx context.Context, token string) {
	if c.deactivator == nil {
		return
	}
	if err := c.deactivator(ctx, token); err != nil {
		c.logger.ErrorContext(ctx, "failed to deactivate FCM token", "token", token, "error", err)
	}
}

func chunkTokens(tokens []string, size int) [][]string {
	var chunks [][]string
	for i := 0; i < len(tokens); i += size {
		end := i + size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, tokens[i:end])
	}
	return chunks
}

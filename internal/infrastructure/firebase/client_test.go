package firebase

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"brokerlink/internal/domain/notification"
)

func TestChunkTokens(t *testing.T) {
	tokens := make([]string, 1201)
	for i := range tokens {
		tokens[i] = "t"
	}

	chunks := chunkTokens(tokens, fcmBatchLimit)
	assert.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 500)
	assert.Len(t, chunks[1], 500)
	assert.Len(t, chunks[2], 201)

	assert.Empty(t, chunkTokens(nil, fcmBatchLimit))
}

func TestDeactivateToken(t *testing.T) {
	var got []string
	c := &Client{
		logger: slog.New(slog.DiscardHandler),
		deactivator: func(ctx context.Context, token string) error {
			got = append(got, token)
			return errors.New("db down")
		},
	}

	c.deactivateToken(context.Background(), "tok-1")
	assert.Equal(t, []string{"tok-1"}, got)

	// nil deactivator is a no-op
	(&Client{logger: slog.New(slog.DiscardHandler)}).deactivateToken(context.Background(), "tok-2")
}

func TestMulticastMessage(t *testing.T) {
	push := notification.Push{
		Title: "Connection needs attention",
		Body:  "Reconnect Brokerage X",
		Data:  map[string]string{"route": "connections"},
	}

	msg := multicastMessage([]string{"a", "b"}, push)
	assert.Equal(t, []string{"a", "b"}, msg.Tokens)
	assert.Equal(t, push.Title, msg.Notification.Title)
	assert.Equal(t, push.Body, msg.Notification.Body)
	assert.Equal(t, "connections", msg.Data["route"])
	assert.Equal(t, "default", msg.APNS.Payload.Aps.Sound)
}

func TestDeliver_NoTokens(t *testing.T) {
	c := &Client{logger: slog.New(slog.DiscardHandler)}

	delivered, err := c.Deliver(context.Background(), nil, notification.Push{Title: "x"})
	assert.NoError(t, err)
	assert.Zero(t, delivered)
}

package provider

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"brokerlink/internal/domain/providererr"
)

// RateLimitedClient bounds the request rate to a provider. One limiter is
// shared by every worker calling the same provider.
type RateLimitedClient struct {
	next    ClientInterface
	limiter *rate.Limiter
}

var _ ClientInterface = (*RateLimitedClient)(nil)

// NewRateLimitedClient wraps next with a token bucket of perSecond requests
// and the given burst. A non-positive perSecond disables limiting.
func NewRateLimitedClient(next ClientInterface, perSecond float64, burst int) *RateLimitedClient {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (c *RateLimitedClient) Name() string {
	return c.next.Name()
}

func (c *RateLimitedClient) ListAccounts(ctx context.Context, creds Credentials) ([]Account, error) {
	if err := c.wait(ctx, "list accounts"); err != nil {
		return nil, err
	}
	return c.next.ListAccounts(ctx, creds)
}

func (c *RateLimitedClient) GetBalance(ctx context.Context, creds Credentials, accountID string) (*Balance, error) {
	if err := c.wait(ctx, "get balance"); err != nil {
		return nil, err
	}
	return c.next.GetBalance(ctx, creds, accountID)
}

func (c *RateLimitedClient) GetPositions(ctx context.Context, creds Credentials, accountID string) ([]Position, error) {
	if err := c.wait(ctx, "get positions"); err != nil {
		return nil, err
	}
	return c.next.GetPositions(ctx, creds, accountID)
}

func (c *RateLimitedClient) GetInstrument(ctx context.Context, symbol string) (*Instrument, error) {
	if err := c.wait(ctx, "get instrument"); err != nil {
		return nil, err
	}
	return c.next.GetInstrument(ctx, symbol)
}

func (c *RateLimitedClient) wait(ctx context.Context, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return newProviderError(op, providererr.RawError{Provider: c.next.Name(), Transport: true}, fmt.Errorf("rate limiter: %w", err))
	}
	return nil
}

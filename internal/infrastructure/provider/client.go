package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"brokerlink/internal/domain/providererr"
)

const (
	defaultTimeout   = 60 * time.Second
	maxResponseBytes = 10 << 20
	accountsPath     = "/accounts"
	instrumentsPath  = "/instruments"
)

var providerTracer = otel.Tracer("brokerlink/provider")

// Config holds the connection settings for one provider.
type Config struct {
	Name        string
	BaseURL     string
	ClientID    string
	ConsumerKey string
	Timeout     time.Duration
}

// Client handles communication with one aggregation provider's HTTP API.
// It is the only place provider payloads are parsed.
type Client struct {
	httpClient *http.Client
	cfg        Config
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new provider API client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cfg: cfg,
	}
}

// Name returns the provider name used in credentials and webhooks.
func (c *Client) Name() string {
	return c.cfg.Name
}

// ListAccounts fetches every account visible to the user's credentials.
func (c *Client) ListAccounts(ctx context.Context, creds Credentials) ([]Account, error) {
	var resp envelope[[]Account]
	if err := c.do(ctx, "list accounts", accountsPath, &creds, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetBalance fetches the current balance of one account.
func (c *Client) GetBalance(ctx context.Context, creds Credentials, accountID string) (*Balance, error) {
	var resp envelope[Balance]
	path := accountsPath + "/" + url.PathEscape(accountID) + "/balance"
	if err := c.do(ctx, "get balance", path, &creds, &resp); err != nil {
		return nil, err
	}
	if resp.Data.AccountID == "" {
		resp.Data.AccountID = accountID
	}
	return &resp.Data, nil
}

// GetPositions fetches the holdings of one account.
func (c *Client) GetPositions(ctx context.Context, creds Credentials, accountID string) ([]Position, error) {
	var resp envelope[[]Position]
	path := accountsPath + "/" + url.PathEscape(accountID) + "/positions"
	if err := c.do(ctx, "get positions", path, &creds, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetInstrument fetches reference data for a symbol. No user credential is needed.
func (c *Client) GetInstrument(ctx context.Context, symbol string) (*Instrument, error) {
	var resp envelope[Instrument]
	path := instrumentsPath + "/" + url.PathEscape(strings.ToUpper(symbol))
	if err := c.do(ctx, "get instrument", path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (c *Client) do(ctx context.Context, op, path string, creds *Credentials, out any) (err error) {
	ctx, span := providerTracer.Start(ctx, "provider."+strings.ReplaceAll(op, " ", "_"),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("provider.name", c.cfg.Name),
			attribute.String("provider.operation", op),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return newProviderError(op, providererr.RawError{Provider: c.cfg.Name}, fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Client-Id", c.cfg.ClientID)
	if c.cfg.ConsumerKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.ConsumerKey)
	}
	if creds != nil {
		req.Header.Set("X-User-Id", creds.Identity)
		req.Header.Set("X-User-Secret", creds.Secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newProviderError(op, providererr.RawError{Provider: c.cfg.Name, Transport: true}, fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return newProviderError(op, providererr.RawError{Provider: c.cfg.Name, Status: resp.StatusCode, Transport: true}, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newProviderError(op, parseError(c.cfg.Name, resp.StatusCode, body), nil)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return newProviderError(op, providererr.RawError{Provider: c.cfg.Name, Status: resp.StatusCode, Message: "malformed response"}, fmt.Errorf("failed to unmarshal response: %w", err))
	}

	if s, ok := out.(interface{ succeeded() bool }); ok && !s.succeeded() {
		raw := parseError(c.cfg.Name, resp.StatusCode, body)
		if raw.Message == "" && raw.Code == "" {
			raw.Message = "provider returned success=false"
		}
		return newProviderError(op, raw, errors.New("success=false"))
	}

	return nil
}

func (e *envelope[T]) succeeded() bool {
	return e.Success
}

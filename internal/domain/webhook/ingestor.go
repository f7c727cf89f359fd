package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"brokerlink/internal/domain/connection"
	"brokerlink/internal/domain/credential"
)

var (
	tracer         = otel.Tracer("brokerlink/webhook")
	meter          = otel.Meter("brokerlink/webhook")
	eventsTotal, _ = meter.Int64Counter("webhook.events.total",
		metric.WithDescription("Webhook deliveries by provider, canonical type and outcome"),
	)
)

// UserResolver maps a provider identity to a local user.
type UserResolver interface {
	ResolveUser(ctx context.Context, provider, identity string) (int64, error)
}

// ConnectionWriter is the subset of the state machine the webhook path drives.
type ConnectionWriter interface {
	Apply(ctx context.Context, ref connection.Ref, e connection.Event) (connection.Transition, error)
	Touch(ctx context.Context, id string) error
}

// Ingestor verifies, normalizes, logs and applies provider notifications.
// It never returns an error to the HTTP layer; outcomes are reported in Result.
type Ingestor struct {
	mu        sync.RWMutex
	verifiers map[string]Verifier
	events    Repository
	users     UserResolver
	conns     ConnectionWriter
	logger    *slog.Logger
	now       func() time.Time
}

// NewIngestor creates a new webhook ingestor.
func NewIngestor(events Repository, users UserResolver, conns ConnectionWriter, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		verifiers: make(map[string]Verifier),
		events:    events,
		users:     users,
		conns:     conns,
		logger:    logger.With("component", "webhook_ingestor"),
		now:       time.Now,
	}
}

// RegisterVerifier sets the signature verifier for a provider.
func (in *Ingestor) RegisterVerifier(provider string, v Verifier) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.verifiers[strings.ToLower(strings.TrimSpace(provider))] = v
}

// RecentEvents returns the provider's latest logged deliveries, newest first.
func (in *Ingestor) RecentEvents(ctx context.Context, provider string, limit int) ([]*Record, error) {
	return in.events.ListRecent(ctx, strings.ToLower(strings.TrimSpace(provider)), limit)
}

func (in *Ingestor) verifierFor(provider string) (Verifier, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	v, ok := in.verifiers[provider]
	return v, ok
}

// Ingest handles one raw delivery end to end.
func (in *Ingestor) Ingest(ctx context.Context, provider string, header http.Header, body []byte) Result {
	provider = strings.ToLower(strings.TrimSpace(provider))

	ctx, span := tracer.Start(ctx, "webhook.ingest")
	defer span.End()
	span.SetAttributes(attribute.String("webhook.provider", provider))

	res := in.ingest(ctx, provider, header, body)

	typ := string(TypeUnknown)
	if res.Event != nil {
		typ = string(res.Event.Type)
		span.SetAttributes(
			attribute.String("webhook.event_id", res.Event.EventID),
			attribute.String("webhook.type", typ),
		)
	}
	span.SetAttributes(attribute.String("webhook.outcome", string(res.Outcome)))
	eventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("type", typ),
		attribute.String("outcome", string(res.Outcome)),
	))

	switch res.Outcome {
	case OutcomeFailed:
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		in.logger.ErrorContext(ctx, "webhook processing failed", "provider", provider, "error", res.Err)
	case OutcomeRejected, OutcomeIgnored:
		in.logger.WarnContext(ctx, "webhook not applied", "provider", provider, "outcome", res.Outcome, "reason", res.Err)
	default:
		in.logger.InfoContext(ctx, "webhook processed", "provider", provider, "outcome", res.Outcome, "type", typ)
	}

	return res
}

func (in *Ingestor) ingest(ctx context.Context, provider string, header http.Header, body []byte) Result {
	v, ok := in.verifierFor(provider)
	if !ok {
		return Result{Outcome: OutcomeRejected, Err: ErrNoVerifier}
	}
	if err := v.Verify(header, body); err != nil {
		return Result{Outcome: OutcomeRejected, Err: err}
	}

	ev, err := Parse(provider, body)
	if err != nil {
		return Result{Outcome: OutcomeRejected, Err: err}
	}

	id, inserted, err := in.events.Record(ctx, Record{
		Provider:       provider,
		EventID:        ev.EventID,
		ProviderType:   ev.ProviderType,
		CanonicalType:  ev.Type,
		Payload:        body,
		SignatureValid: true,
		ReceivedAt:     in.now(),
	})
	if err != nil {
		return Result{Outcome: OutcomeFailed, Event: ev, Err: fmt.Errorf("failed to log webhook event: %w", err)}
	}
	if !inserted {
		return Result{Outcome: OutcomeDuplicate, Event: ev}
	}

	res := in.apply(ctx, ev)
	res.Event = ev

	var procErr string
	if res.Err != nil {
		procErr = res.Err.Error()
	}
	if err := in.events.MarkProcessed(ctx, id, res.Outcome, procErr); err != nil {
		in.logger.WarnContext(ctx, "failed to mark webhook processed", "event_id", ev.EventID, "error", err)
	}

	return res
}

func (in *Ingestor) apply(ctx context.Context, ev *CanonicalEvent) Result {
	if ev.Type == TypeUnknown {
		return Result{Outcome: OutcomeIgnored, Err: fmt.Errorf("%w: %q", ErrUnmappedEventType, ev.ProviderType)}
	}

	userID, err := in.users.ResolveUser(ctx, ev.Provider, ev.ProviderUserID)
	if err != nil {
		if errors.Is(err, credential.ErrCredentialNotFound) {
			return Result{Outcome: OutcomeIgnored, Err: ErrUnknownUser}
		}
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("failed to resolve webhook user: %w", err)}
	}
	ev.UserID = userID

	if ev.Type == TypeAttempted {
		return Result{Outcome: OutcomeRecorded}
	}
	if ev.AuthorizationID == "" {
		return Result{Outcome: OutcomeIgnored}
	}

	ref := connection.Ref{
		ID:              ev.AuthorizationID,
		UserID:          userID,
		Provider:        ev.Provider,
		InstitutionName: ev.InstitutionName,
	}

	switch ev.Type {
	case TypeUpdated:
		err = in.conns.Touch(ctx, ref.ID)
	case TypeAdded:
		_, err = in.conns.Apply(ctx, ref, connection.EventAdded)
	case TypeBroken:
		_, err = in.conns.Apply(ctx, ref, connection.EventBroken)
	case TypeFixed:
		_, err = in.conns.Apply(ctx, ref, connection.EventFixed)
	case TypeDeleted:
		_, err = in.conns.Apply(ctx, ref, connection.EventDeleted)
	}

	switch {
	case err == nil:
		return Result{Outcome: OutcomeApplied}
	case errors.Is(err, connection.ErrConnectionNotFound):
		return Result{Outcome: OutcomeIgnored, Err: err}
	default:
		return Result{Outcome: OutcomeFailed, Err: err}
	}
}

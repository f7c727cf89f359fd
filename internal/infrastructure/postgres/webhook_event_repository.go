package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"brokerlink/internal/domain/webhook"
)

type WebhookEventRepository struct {
	db *DB
}

func NewWebhookEventRepository(db *DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Record logs the event. A second delivery of (provider, event_id) inserts
// nothing and reports inserted=false.
func (r *WebhookEventRepository) Record(ctx context.Context, rec webhook.Record) (int64, bool, error) {
	query := `
		INSERT INTO webhook_events (provider, event_id, provider_type, canonical_type, payload, signature_valid, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider, event_id) DO NOTHING
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		rec.Provider, rec.EventID, rec.ProviderType, string(rec.CanonicalType),
		string(rec.Payload), rec.SignatureValid, rec.ReceivedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to record webhook event: %w", err)
	}
	return id, true, nil
}

func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id int64, outcome webhook.Outcome, procErr string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET processed_at = NOW(), outcome = $1, processing_error = $2
		WHERE id = $3
	`, string(outcome), procErr, id)
	if err != nil {
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	return nil
}

func (r *WebhookEventRepository) ListRecent(ctx context.Context, provider string, limit int) ([]*webhook.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, provider, event_id, provider_type, canonical_type, payload, signature_valid,
		       received_at, processed_at, outcome, processing_error
		FROM webhook_events
		WHERE provider = $1
		ORDER BY received_at DESC
		LIMIT $2
	`, provider, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook events: %w", err)
	}
	defer rows.Close()

	var records []*webhook.Record
	for rows.Next() {
		var rec webhook.Record
		var canonical, outcome string
		var processedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Provider, &rec.EventID, &rec.ProviderType, &canonical, &rec.Payload,
			&rec.SignatureValid, &rec.ReceivedAt, &processedAt, &outcome, &rec.Error); err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}
		rec.CanonicalType = webhook.CanonicalType(canonical)
		rec.Outcome = webhook.Outcome(outcome)
		if processedAt.Valid {
			rec.ProcessedAt = &processedAt.Time
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating webhook events: %w", err)
	}
	return records, nil
}

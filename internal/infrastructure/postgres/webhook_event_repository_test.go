package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"brokerlink/internal/domain/webhook"
)

func TestWebhookEventRepository_Record(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWebhookEventRepository(db)
	at := time.Now()
	rec := webhook.Record{
		Provider:       "brokeragex",
		EventID:        "evt-1",
		ProviderType:   "CONNECTION_BROKEN",
		CanonicalType:  webhook.TypeBroken,
		Payload:        []byte(`{"id":"evt-1"}`),
		SignatureValid: true,
		ReceivedAt:     at,
	}

	q := `(?s)INSERT\s+INTO\s+webhook_events.*ON CONFLICT \(provider, event_id\) DO NOTHING\s+RETURNING id`
	mock.ExpectQuery(q).
		WithArgs("brokeragex", "evt-1", "CONNECTION_BROKEN", "connection.broken", `{"id":"evt-1"}`, true, at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectQuery(q).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	id, inserted, err := repo.Record(context.Background(), rec)
	if err != nil || !inserted || id != 5 {
		t.Fatalf("first Record = %d, %v, %v", id, inserted, err)
	}

	_, inserted, err = repo.Record(context.Background(), rec)
	if err != nil || inserted {
		t.Fatalf("duplicate Record = %v, %v; want false, nil", inserted, err)
	}
}

func TestWebhookEventRepository_MarkProcessed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWebhookEventRepository(db)

	mock.ExpectExec(`(?s)UPDATE\s+webhook_events\s+SET\s+processed_at = NOW\(\)`).
		WithArgs("ignored", "unknown user", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkProcessed(context.Background(), 5, webhook.OutcomeIgnored, "unknown user"); err != nil {
		t.Fatalf("MarkProcessed error: %v", err)
	}
}

func TestWebhookEventRepository_ListRecent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWebhookEventRepository(db)
	now := time.Now()

	cols := []string{"id", "provider", "event_id", "provider_type", "canonical_type", "payload", "signature_valid",
		"received_at", "processed_at", "outcome", "processing_error"}
	mock.ExpectQuery(`(?s)FROM\s+webhook_events\s+WHERE\s+provider = \$1.*LIMIT \$2`).
		WithArgs("brokeragex", 10).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(5), "brokeragex", "evt-1", "CONNECTION_BROKEN", "connection.broken", []byte(`{}`), true, now, now, "applied", ""))

	recs, err := repo.ListRecent(context.Background(), "brokeragex", 10)
	if err != nil {
		t.Fatalf("ListRecent error: %v", err)
	}
	if len(recs) != 1 || recs[0].CanonicalType != webhook.TypeBroken || recs[0].Outcome != webhook.OutcomeApplied || recs[0].ProcessedAt == nil {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

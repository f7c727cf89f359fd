package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"brokerlink/internal/domain/webhook"
)

type MockIngestor struct {
	IngestFunc       func(ctx context.Context, provider string, header http.Header, body []byte) webhook.Result
	RecentEventsFunc func(ctx context.Context, provider string, limit int) ([]*webhook.Record, error)
	calls            int
}

func (m *MockIngestor) RecentEvents(ctx context.Context, provider string, limit int) ([]*webhook.Record, error) {
	if m.RecentEventsFunc != nil {
		return m.RecentEventsFunc(ctx, provider, limit)
	}
	return nil, nil
}

func (m *MockIngestor) Ingest(ctx context.Context, provider string, header http.Header, body []byte) webhook.Result {
	m.calls++
	if m.IngestFunc != nil {
		return m.IngestFunc(ctx, provider, header, body)
	}
	return webhook.Result{Outcome: webhook.OutcomeApplied}
}

func newWebhookMux(h *WebhookHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/webhooks/{provider}", h.HandleWebhook)
	return mux
}

func TestHandleWebhook_PassesDeliveryThrough(t *testing.T) {
	var gotProvider, gotBody, gotSig string
	ingestor := &MockIngestor{
		IngestFunc: func(ctx context.Context, provider string, header http.Header, body []byte) webhook.Result {
			gotProvider = provider
			gotBody = string(body)
			gotSig = header.Get("X-Signature")
			return webhook.Result{Outcome: webhook.OutcomeApplied}
		},
	}
	mux := newWebhookMux(NewWebhookHandler(ingestor, 0, discardLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/acme", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("X-Signature", "abc")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != `{"ok":true}` {
		t.Errorf("unexpected body %q", w.Body.String())
	}
	if gotProvider != "acme" || gotBody != `{"id":"evt_1"}` || gotSig != "abc" {
		t.Errorf("unexpected delivery: provider=%q body=%q sig=%q", gotProvider, gotBody, gotSig)
	}
}

func TestHandleWebhook_AlwaysAcknowledges(t *testing.T) {
	outcomes := []webhook.Outcome{
		webhook.OutcomeRejected,
		webhook.OutcomeFailed,
		webhook.OutcomeDuplicate,
		webhook.OutcomeIgnored,
	}

	for _, outcome := range outcomes {
		t.Run(string(outcome), func(t *testing.T) {
			ingestor := &MockIngestor{
				IngestFunc: func(context.Context, string, http.Header, []byte) webhook.Result {
					return webhook.Result{Outcome: outcome}
				},
			}
			mux := newWebhookMux(NewWebhookHandler(ingestor, 0, discardLogger()))

			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/webhooks/acme", strings.NewReader("{}")))

			if w.Code != http.StatusOK {
				t.Errorf("expected status 200, got %d", w.Code)
			}
		})
	}
}

func TestHandleWebhook_OversizedBodyIsNotIngested(t *testing.T) {
	ingestor := &MockIngestor{}
	mux := newWebhookMux(NewWebhookHandler(ingestor, 8, discardLogger()))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/webhooks/acme", strings.NewReader(`{"id":"much too long"}`)))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if ingestor.calls != 0 {
		t.Errorf("expected no ingestion, got %d calls", ingestor.calls)
	}
}

func TestHandleWebhook_MethodNotAllowed(t *testing.T) {
	h := NewWebhookHandler(&MockIngestor{}, 0, discardLogger())

	w := httptest.NewRecorder()
	h.HandleWebhook(w, httptest.NewRequest(http.MethodGet, "/api/webhooks/acme", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}

func TestHandleListEvents(t *testing.T) {
	received := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	var gotProvider string
	var gotLimit int
	ingestor := &MockIngestor{
		RecentEventsFunc: func(ctx context.Context, provider string, limit int) ([]*webhook.Record, error) {
			gotProvider, gotLimit = provider, limit
			if provider == "broken" {
				return nil, errors.New("db down")
			}
			return []*webhook.Record{{
				ID:             4,
				Provider:       provider,
				EventID:        "evt_9",
				ProviderType:   "connection.broken",
				CanonicalType:  webhook.TypeBroken,
				Payload:        []byte(`{"secret":"x"}`),
				SignatureValid: true,
				ReceivedAt:     received,
				Outcome:        webhook.OutcomeApplied,
			}}, nil
		},
	}
	h := NewWebhookHandler(ingestor, 0, discardLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("/api/admin/webhooks/{provider}", h.HandleListEvents)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/webhooks/acme", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if gotProvider != "acme" || gotLimit != defaultEventLimit {
		t.Errorf("unexpected query provider=%q limit=%d", gotProvider, gotLimit)
	}
	var events []WebhookEventResponse
	if err := json.NewDecoder(w.Body).Decode(&events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 || events[0].EventID != "evt_9" || events[0].Outcome != string(webhook.OutcomeApplied) {
		t.Fatalf("unexpected events %+v", events)
	}
	if strings.Contains(w.Body.String(), "secret") {
		t.Error("payload must not be exposed")
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/webhooks/acme?limit=5", nil))
	if w.Code != http.StatusOK || gotLimit != 5 {
		t.Errorf("limit=5: status %d, limit %d", w.Code, gotLimit)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/webhooks/acme?limit=0", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("limit=0: expected 400, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/webhooks/broken", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("store error: expected 500, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/admin/webhooks/acme", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST: expected 405, got %d", w.Code)
	}
}

package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"brokerlink/internal/domain/webhook"
)

const (
	defaultMaxWebhookBody = 1 << 20
	defaultEventLimit     = 50
)

// WebhookIngestor processes raw provider deliveries and exposes the event log.
type WebhookIngestor interface {
	Ingest(ctx context.Context, provider string, header http.Header, body []byte) webhook.Result
	RecentEvents(ctx context.Context, provider string, limit int) ([]*webhook.Record, error)
}

// WebhookEventResponse is one logged delivery. The raw payload is not exposed.
type WebhookEventResponse struct {
	ID             int64      `json:"id"`
	EventID        string     `json:"eventId"`
	ProviderType   string     `json:"providerType"`
	CanonicalType  string     `json:"canonicalType"`
	SignatureValid bool       `json:"signatureValid"`
	ReceivedAt     time.Time  `json:"receivedAt"`
	ProcessedAt    *time.Time `json:"processedAt,omitempty"`
	Outcome        string     `json:"outcome"`
	Error          string     `json:"error,omitempty"`
}

// WebhookHandler receives provider push notifications.
type WebhookHandler struct {
	ingestor WebhookIngestor
	maxBody  int64
	logger   *slog.Logger
}

func NewWebhookHandler(ingestor WebhookIngestor, maxBody int64, logger *slog.Logger) *WebhookHandler {
	if maxBody <= 0 {
		maxBody = defaultMaxWebhookBody
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		ingestor: ingestor,
		maxBody:  maxBody,
		logger:   logger.With("component", "webhook_handler"),
	}
}

// HandleWebhook always acknowledges with 200 so providers do not retry
// deliveries that will never succeed. Outcomes are logged by the ingestor.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	provider := r.PathValue("provider")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "provider", provider, "error", err)
	} else {
		h.ingestor.Ingest(r.Context(), provider, r.Header, body)
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleListEvents returns the provider's latest logged deliveries for audit.
func (h *WebhookHandler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	provider := r.PathValue("provider")
	if provider == "" {
		http.Error(w, "Provider is required", http.StatusBadRequest)
		return
	}
	limit, ok := parseLimit(r, defaultEventLimit)
	if !ok {
		http.Error(w, "Invalid limit", http.StatusBadRequest)
		return
	}

	records, err := h.ingestor.RecentEvents(r.Context(), provider, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list webhook events", "provider", provider, "error", err)
		http.Error(w, "Failed to list events", http.StatusInternalServerError)
		return
	}

	out := make([]WebhookEventResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, WebhookEventResponse{
			ID:             rec.ID,
			EventID:        rec.EventID,
			ProviderType:   rec.ProviderType,
			CanonicalType:  string(rec.CanonicalType),
			SignatureValid: rec.SignatureValid,
			ReceivedAt:     rec.ReceivedAt,
			ProcessedAt:    rec.ProcessedAt,
			Outcome:        string(rec.Outcome),
			Error:          rec.Error,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

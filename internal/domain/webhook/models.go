package webhook

import (
	"errors"
	"time"
)

// CanonicalType is the provider-independent event vocabulary.
type CanonicalType string

const (
	TypeAttempted CanonicalType = "connection.attempted"
	TypeAdded     CanonicalType = "connection.added"
	TypeUpdated   CanonicalType = "connection.updated"
	TypeBroken    CanonicalType = "connection.broken"
	TypeFixed     CanonicalType = "connection.fixed"
	TypeDeleted   CanonicalType = "connection.deleted"
	TypeUnknown   CanonicalType = "unknown"
)

// Structural failures of the webhook path. None of them reach the caller.
var (
	ErrUnmappedEventType = errors.New("webhook event type is not mapped")
	ErrUnknownUser       = errors.New("webhook user does not match any credential")
	ErrInvalidSignature  = errors.New("webhook signature is missing or invalid")
	ErrMalformedPayload  = errors.New("webhook payload is malformed")
	ErrNoVerifier        = errors.New("no signature verifier configured for provider")
)

// Outcome summarizes what ingestion did with a delivery.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeRecorded  Outcome = "recorded"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// CanonicalEvent is a provider notification after normalization.
type CanonicalEvent struct {
	EventID         string         `json:"eventId"`
	Provider        string         `json:"provider"`
	Type            CanonicalType  `json:"type"`
	ProviderType    string         `json:"providerType"`
	CreatedAt       time.Time      `json:"createdAt"`
	ProviderUserID  string         `json:"providerUserId"`
	UserID          int64          `json:"userId,omitempty"`
	AuthorizationID string         `json:"authorizationId,omitempty"`
	InstitutionName string         `json:"institutionName,omitempty"`
	Details         map[string]any `json:"details,omitempty"`
}

// Record is one row of the durable event log.
type Record struct {
	ID             int64
	Provider       string
	EventID        string
	ProviderType   string
	CanonicalType  CanonicalType
	Payload        []byte
	SignatureValid bool
	ReceivedAt     time.Time
	ProcessedAt    *time.Time
	Outcome        Outcome
	Error          string
}

// Result is returned by Ingest for logging and tests.
type Result struct {
	Outcome Outcome
	Event   *CanonicalEvent
	Err     error
}

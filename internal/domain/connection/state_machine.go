package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	connMeter          = otel.Meter("brokerlink/connection")
	transitionTotal, _ = connMeter.Int64Counter("connection.transition.total",
		metric.WithDescription("Connection state transitions by event and resulting status"),
	)
)

// Event is anything that moves a connection to a new state.
type Event string

const (
	EventAdded   Event = "added"
	EventSynced  Event = "synced"
	EventFixed   Event = "fixed"
	EventBroken  Event = "broken"
	EventDeleted Event = "deleted"
)

// Target is the absolute state an event writes.
type Target struct {
	Status   Status
	Disabled bool
}

// TargetFor returns the state an event sets regardless of the current state,
// so replaying an event is idempotent.
func TargetFor(e Event) (Target, error) {
	switch e {
	case EventAdded, EventSynced, EventFixed:
		return Target{Status: StatusActive, Disabled: false}, nil
	case EventBroken:
		return Target{Status: StatusBroken, Disabled: true}, nil
	case EventDeleted:
		return Target{Status: StatusDeleted}, nil
	}
	return Target{}, ErrUnknownEvent
}

// Notifier is told about status changes users should hear about.
type Notifier interface {
	ConnectionBroken(ctx context.Context, c *Connection)
	ConnectionRestored(ctx context.Context, c *Connection)
}

// Transition describes the outcome of applying an event.
type Transition struct {
	ConnectionID string
	Event        Event
	From         Status
	To           Status
}

// Changed reports whether the status moved.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Option customizes the state machine.
type Option func(*StateMachine)

// WithClock injects a custom clock.
func WithClock(now func() time.Time) Option {
	return func(sm *StateMachine) {
		if now != nil {
			sm.now = now
		}
	}
}

// WithNotifier sets the notifier for broken/restored transitions.
func WithNotifier(n Notifier) Option {
	return func(sm *StateMachine) {
		sm.notifier = n
	}
}

// StateMachine is the single writer of connection status and disabled flag.
type StateMachine struct {
	repo     Repository
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewStateMachine creates a new connection state machine.
func NewStateMachine(repo Repository, logger *slog.Logger, opts ...Option) *StateMachine {
	if logger == nil {
		logger = slog.Default()
	}
	sm := &StateMachine{
		repo:   repo,
		logger: logger.With("component", "connection_state_machine"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// Get returns a connection by authorization id.
func (sm *StateMachine) Get(ctx context.Context, id string) (*Connection, error) {
	return sm.repo.GetByID(ctx, id)
}

// ListByUser returns the user's connections.
func (sm *StateMachine) ListByUser(ctx context.Context, userID int64) ([]*Connection, error) {
	return sm.repo.ListByUser(ctx, userID)
}

// ListAll returns every connection.
func (sm *StateMachine) ListAll(ctx context.Context) ([]*Connection, error) {
	return sm.repo.ListAll(ctx)
}

// Register records a connection the linking flow has started but not yet
// confirmed. An existing row is left as is.
func (sm *StateMachine) Register(ctx context.Context, ref Ref) (*Connection, error) {
	if ref.ID == "" || ref.UserID <= 0 {
		return nil, ErrInvalidRef
	}
	return sm.repo.InsertPending(ctx, ref)
}

// Apply moves the connection to the event's target state, creating the row
// when it does not exist yet.
func (sm *StateMachine) Apply(ctx context.Context, ref Ref, e Event) (Transition, error) {
	target, err := TargetFor(e)
	if err != nil {
		return Transition{}, err
	}
	if e == EventDeleted {
		return sm.delete(ctx, ref.UserID, ref.ID)
	}

	from := StatusDeleted
	var prevConn *Connection
	existing, err := sm.repo.GetByID(ctx, ref.ID)
	switch {
	case err == nil:
		from = existing.Status
		prevConn = existing
	case errors.Is(err, ErrConnectionNotFound):
	default:
		return Transition{}, fmt.Errorf("failed to load connection %s: %w", ref.ID, err)
	}

	if prevConn != nil && ref.UserID != 0 && prevConn.UserID != ref.UserID {
		return Transition{}, ErrOwnerMismatch
	}
	if ref.UserID == 0 && prevConn != nil {
		ref.UserID = prevConn.UserID
	}
	if ref.Provider == "" && prevConn != nil {
		ref.Provider = prevConn.Provider
	}

	params := UpsertParams{
		ID:              ref.ID,
		UserID:          ref.UserID,
		Provider:        ref.Provider,
		InstitutionName: ref.InstitutionName,
		Status:          target.Status,
		Disabled:        target.Disabled,
	}
	if e == EventSynced {
		at := sm.now()
		params.SyncedAt = &at
	}
	if err := params.Validate(); err != nil {
		return Transition{}, fmt.Errorf("connection %s: %w", ref.ID, err)
	}

	conn, err := sm.repo.Upsert(ctx, params)
	if err != nil {
		return Transition{}, fmt.Errorf("failed to apply %s to connection %s: %w", e, ref.ID, err)
	}

	t := Transition{ConnectionID: ref.ID, Event: e, From: from, To: conn.Status}
	sm.record(ctx, t)

	if t.Changed() && sm.notifier != nil {
		switch {
		case conn.Status == StatusBroken:
			sm.notifier.ConnectionBroken(ctx, conn)
		case conn.Status == StatusActive && from == StatusBroken:
			sm.notifier.ConnectionRestored(ctx, conn)
		}
	}

	return t, nil
}

// MarkBroken sets status=broken, disabled=true.
func (sm *StateMachine) MarkBroken(ctx context.Context, ref Ref) (Transition, error) {
	return sm.Apply(ctx, ref, EventBroken)
}

// RecordSuccessfulSync marks the connection active and stamps last_synced_at.
// A broken connection heals here.
func (sm *StateMachine) RecordSuccessfulSync(ctx context.Context, ref Ref) (Transition, error) {
	return sm.Apply(ctx, ref, EventSynced)
}

// Touch refreshes last_synced_at without changing status.
func (sm *StateMachine) Touch(ctx context.Context, id string) error {
	if err := sm.repo.Touch(ctx, id, sm.now()); err != nil {
		return fmt.Errorf("failed to touch connection %s: %w", id, err)
	}
	return nil
}

// Disconnect deletes a connection on the owner's request.
func (sm *StateMachine) Disconnect(ctx context.Context, userID int64, id string) error {
	if userID <= 0 {
		return ErrInvalidRef
	}
	_, err := sm.delete(ctx, userID, id)
	return err
}

// delete removes the row. A non-zero owner must match the stored one.
func (sm *StateMachine) delete(ctx context.Context, owner int64, id string) (Transition, error) {
	existing, err := sm.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrConnectionNotFound) {
			return Transition{}, err
		}
		return Transition{}, fmt.Errorf("failed to load connection %s: %w", id, err)
	}
	if owner != 0 && existing.UserID != owner {
		return Transition{}, ErrOwnerMismatch
	}

	if err := sm.repo.Delete(ctx, id); err != nil {
		return Transition{}, err
	}

	t := Transition{ConnectionID: id, Event: EventDeleted, From: existing.Status, To: StatusDeleted}
	sm.record(ctx, t)
	return t, nil
}

func (sm *StateMachine) record(ctx context.Context, t Transition) {
	transitionTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", string(t.Event)),
		attribute.String("status", string(t.To)),
	))
	sm.logger.InfoContext(ctx, "connection transition",
		"connection_id", t.ConnectionID,
		"event", t.Event,
		"from", t.From,
		"to", t.To,
	)
}

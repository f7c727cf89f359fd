package refresh

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"brokerlink/internal/domain/providererr"
)

// Trigger names what started a refresh.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
	TriggerStartup  Trigger = "startup"
	TriggerRelink   Trigger = "relink"
)

var ErrNoLiveCredentials = errors.New("user has no live provider credentials")

// UserResult is the outcome of refreshing one (user, provider) credential.
type UserResult struct {
	UserID   int64
	Provider string
	Accounts int
	Synced   int
	Errors   []string
	// Kind is set when the credential failed as a whole.
	Kind    providererr.Kind
	Rotated bool
	Err     error
}

// Failed reports whether the listing failed for this credential.
func (r *UserResult) Failed() bool {
	return r.Err != nil
}

// Failure is one entry of a run's failure list.
type Failure struct {
	UserID   int64            `json:"userId"`
	Provider string           `json:"provider"`
	Kind     providererr.Kind `json:"kind"`
	Message  string           `json:"message,omitempty"`
}

// Run summarizes one full-refresh batch.
type Run struct {
	ID         uuid.UUID  `json:"id"`
	Trigger    Trigger    `json:"trigger"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Attempted  int        `json:"attempted"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Rotated    int        `json:"rotated"`
	Cancelled  bool       `json:"cancelled"`
	Failures   []Failure  `json:"failures"`

	mu sync.Mutex
}

// NewRun starts a run summary.
func NewRun(trigger Trigger, startedAt time.Time) *Run {
	return &Run{
		ID:        uuid.New(),
		Trigger:   trigger,
		StartedAt: startedAt,
		Failures:  []Failure{},
	}
}

// Add folds one credential result into the summary. Safe for concurrent use.
func (r *Run) Add(res *UserResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Attempted++
	if res.Rotated {
		r.Rotated++
	}
	if !res.Failed() {
		r.Succeeded++
		return
	}
	r.Failed++
	r.Failures = append(r.Failures, Failure{
		UserID:   res.UserID,
		Provider: res.Provider,
		Kind:     res.Kind,
		Message:  res.Err.Error(),
	})
}

// Finish stamps the end of the run.
func (r *Run) Finish(at time.Time, cancelled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = &at
	r.Cancelled = cancelled
}

// Duration is zero until the run finishes.
func (r *Run) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outcome is the synchronous answer to a single-user manual refresh.
type Outcome struct {
	Success bool                        `json:"success"`
	Message string                      `json:"message"`
	Error   *providererr.Classification `json:"error,omitempty"`
}

package connection

import (
	"errors"
	"time"
)

// Status is the usability state of an external connection.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusBroken  Status = "broken"
	// StatusDisabled is reserved. Provider-side disablement is recorded as
	// broken with Disabled set, so no transition writes this value.
	StatusDisabled Status = "disabled"
	StatusDeleted  Status = "deleted"
)

// Domain errors
var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrOwnerMismatch      = errors.New("connection belongs to another user")
	ErrInvalidState       = errors.New("disabled connections must be broken or deleted")
	ErrUnknownEvent       = errors.New("unknown connection event")
	ErrInvalidRef         = errors.New("authorization id and user id are required")
)

// Connection is one provider authorization linking a user to an institution.
// ID is the provider's authorization id.
type Connection struct {
	ID              string     `json:"id"`
	UserID          int64      `json:"userId"`
	Provider        string     `json:"provider"`
	InstitutionName string     `json:"institutionName"`
	Status          Status     `json:"status"`
	Disabled        bool       `json:"disabled"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	LastSyncedAt    *time.Time `json:"lastSyncedAt,omitempty"`
}

// Usable reports whether refreshes can be expected to succeed.
func (c *Connection) Usable() bool {
	return c.Status == StatusActive && !c.Disabled
}

// Ref identifies a connection and the owner it must belong to.
type Ref struct {
	ID              string
	UserID          int64
	Provider        string
	InstitutionName string
}

// UpsertParams is an absolute write of the state columns.
type UpsertParams struct {
	ID              string
	UserID          int64
	Provider        string
	InstitutionName string
	Status          Status
	Disabled        bool
	SyncedAt        *time.Time
}

func (p UpsertParams) Validate() error {
	if p.ID == "" {
		return errors.New("authorization id is required")
	}
	if p.UserID <= 0 {
		return errors.New("valid user ID is required")
	}
	return validState(p.Status, p.Disabled)
}

func validState(status Status, disabled bool) error {
	switch status {
	case StatusPending, StatusActive, StatusBroken:
	default:
		return ErrInvalidState
	}
	if disabled && status != StatusBroken {
		return ErrInvalidState
	}
	return nil
}

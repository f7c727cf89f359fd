package credential

import (
	"errors"
	"strings"
	"time"
)

// Domain errors
var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrInvalidCredential  = errors.New("provider, identity and secret are required")
	ErrSecretUnreadable   = errors.New("stored provider secret could not be decrypted")
)

// Credential is the provider identity/secret pair stored for one local user.
// A credential with RotatedAt set is retired and kept only for audit.
type Credential struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"userId"`
	Provider  string     `json:"provider"`
	Identity  string     `json:"identity"`
	Secret    string     `json:"-"`
	CreatedAt time.Time  `json:"createdAt"`
	RotatedAt *time.Time `json:"rotatedAt,omitempty"`

	// SecretErr is set on listed rows whose secret could not be opened. Such a
	// credential is reported as a failure instead of being refreshed.
	SecretErr error `json:"-"`
}

// IsLive reports whether the credential is eligible for refreshes.
func (c *Credential) IsLive() bool {
	return c.RotatedAt == nil
}

// Usable reports whether the secret was opened.
func (c *Credential) Usable() bool {
	return c.SecretErr == nil
}

// PutParams contains the fields for storing a new live credential.
type PutParams struct {
	UserID   int64
	Provider string
	Identity string
	Secret   string
}

func (p PutParams) Validate() error {
	if p.UserID <= 0 {
		return errors.New("valid user ID is required")
	}
	if strings.TrimSpace(p.Provider) == "" || strings.TrimSpace(p.Identity) == "" || p.Secret == "" {
		return ErrInvalidCredential
	}
	return nil
}

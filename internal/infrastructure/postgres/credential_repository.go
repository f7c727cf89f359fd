package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"brokerlink/internal/domain/credential"
)

// SecretCipher seals credential secrets before they reach the table.
type SecretCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
}

type CredentialRepository struct {
	db     *DB
	cipher SecretCipher
}

func NewCredentialRepository(db *DB, cipher SecretCipher) *CredentialRepository {
	return &CredentialRepository{db: db, cipher: cipher}
}

const credentialColumns = `id, user_id, provider, identity, secret_enc, created_at, rotated_at`

func (r *CredentialRepository) GetLive(ctx context.Context, userID int64, provider string) (*credential.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM user_provider_credentials
		WHERE user_id = $1 AND provider = $2 AND rotated_at IS NULL
	`

	var enc string
	var rotatedAt sql.NullTime
	var c credential.Credential
	err := r.db.QueryRowContext(ctx, query, userID, provider).Scan(
		&c.ID, &c.UserID, &c.Provider, &c.Identity, &enc, &c.CreatedAt, &rotatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, credential.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	if err := r.open(&c, enc, rotatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// Replace retires the live row and inserts the new one in one transaction.
func (r *CredentialRepository) Replace(ctx context.Context, params credential.PutParams) (*credential.Credential, error) {
	enc, err := r.cipher.Encrypt(params.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt secret: %w", err)
	}

	c := &credential.Credential{
		UserID:   params.UserID,
		Provider: params.Provider,
		Identity: params.Identity,
		Secret:   params.Secret,
	}

	err = r.db.withTx(ctx, "credential.replace", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE user_provider_credentials
			SET rotated_at = NOW()
			WHERE user_id = $1 AND provider = $2 AND rotated_at IS NULL
		`, params.UserID, params.Provider); err != nil {
			return fmt.Errorf("failed to retire credential: %w", err)
		}

		err := tx.QueryRowContext(ctx, `
			INSERT INTO user_provider_credentials (user_id, provider, identity, secret_enc)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at
		`, params.UserID, params.Provider, params.Identity, enc).Scan(&c.ID, &c.CreatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("concurrent credential write for user %d: %w", params.UserID, ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("failed to insert credential: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CredentialRepository) MarkRotated(ctx context.Context, userID int64, provider string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE user_provider_credentials
		SET rotated_at = NOW()
		WHERE user_id = $1 AND provider = $2 AND rotated_at IS NULL
	`, userID, provider)
	if err != nil {
		return false, fmt.Errorf("failed to mark credential rotated: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *CredentialRepository) FindUserByIdentity(ctx context.Context, provider, identity string) (int64, error) {
	query := `
		SELECT user_id
		FROM user_provider_credentials
		WHERE provider = $1 AND identity = $2
		ORDER BY rotated_at IS NULL DESC, rotated_at DESC
		LIMIT 1
	`

	var userID int64
	err := r.db.QueryRowContext(ctx, query, provider, identity).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, credential.ErrCredentialNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve identity: %w", err)
	}
	return userID, nil
}

func (r *CredentialRepository) ListLive(ctx context.Context) ([]*credential.Credential, error) {
	return r.list(ctx, `
		SELECT `+credentialColumns+`
		FROM user_provider_credentials
		WHERE rotated_at IS NULL
		ORDER BY user_id, provider
	`)
}

func (r *CredentialRepository) ListLiveByUser(ctx context.Context, userID int64) ([]*credential.Credential, error) {
	return r.list(ctx, `
		SELECT `+credentialColumns+`
		FROM user_provider_credentials
		WHERE user_id = $1 AND rotated_at IS NULL
		ORDER BY provider
	`, userID)
}

func (r *CredentialRepository) list(ctx context.Context, query string, args ...any) ([]*credential.Credential, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*credential.Credential
	for rows.Next() {
		var enc string
		var rotatedAt sql.NullTime
		var c credential.Credential
		if err := rows.Scan(&c.ID, &c.UserID, &c.Provider, &c.Identity, &enc, &c.CreatedAt, &rotatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		// One unreadable row must not hide the others from a refresh run.
		if err := r.open(&c, enc, rotatedAt); err != nil {
			c.SecretErr = err
		}
		creds = append(creds, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credentials: %w", err)
	}
	return creds, nil
}

func (r *CredentialRepository) open(c *credential.Credential, enc string, rotatedAt sql.NullTime) error {
	if rotatedAt.Valid {
		c.RotatedAt = &rotatedAt.Time
	}
	secret, err := r.cipher.Decrypt(enc)
	if err != nil {
		return fmt.Errorf("credential %d: %w: %w", c.ID, credential.ErrSecretUnreadable, err)
	}
	c.Secret = secret
	return nil
}

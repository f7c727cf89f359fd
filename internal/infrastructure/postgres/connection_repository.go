package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"brokerlink/internal/domain/connection"
)

type ConnectionRepository struct {
	db *DB
}

func NewConnectionRepository(db *DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

const connectionColumns = `id, user_id, provider, institution_name, status, disabled, created_at, updated_at, last_synced_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*connection.Connection, error) {
	var c connection.Connection
	var lastSynced sql.NullTime
	if err := row.Scan(&c.ID, &c.UserID, &c.Provider, &c.InstitutionName, &c.Status, &c.Disabled,
		&c.CreatedAt, &c.UpdatedAt, &lastSynced); err != nil {
		return nil, err
	}
	if lastSynced.Valid {
		c.LastSyncedAt = &lastSynced.Time
	}
	return &c, nil
}

func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*connection.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`

	c, err := scanConnection(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, connection.ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return c, nil
}

func (r *ConnectionRepository) ListByUser(ctx context.Context, userID int64) ([]*connection.Connection, error) {
	return r.list(ctx, `SELECT `+connectionColumns+` FROM connections WHERE user_id = $1 ORDER BY created_at`, userID)
}

func (r *ConnectionRepository) ListAll(ctx context.Context) ([]*connection.Connection, error) {
	return r.list(ctx, `SELECT `+connectionColumns+` FROM connections ORDER BY user_id, created_at`)
}

func (r *ConnectionRepository) list(ctx context.Context, query string, args ...any) ([]*connection.Connection, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []*connection.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}
	return conns, nil
}

// Upsert writes status and disabled as absolute values. The conflict branch
// only fires for the owning user; anything else surfaces as ErrOwnerMismatch.
func (r *ConnectionRepository) Upsert(ctx context.Context, params connection.UpsertParams) (*connection.Connection, error) {
	query := `
		INSERT INTO connections (id, user_id, provider, institution_name, status, disabled, last_synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
			SET status = EXCLUDED.status,
			    disabled = EXCLUDED.disabled,
			    provider = COALESCE(NULLIF(EXCLUDED.provider, ''), connections.provider),
			    institution_name = COALESCE(NULLIF(EXCLUDED.institution_name, ''), connections.institution_name),
			    last_synced_at = COALESCE(EXCLUDED.last_synced_at, connections.last_synced_at),
			    updated_at = NOW()
			WHERE connections.user_id = EXCLUDED.user_id
		RETURNING ` + connectionColumns

	var syncedAt any
	if params.SyncedAt != nil {
		syncedAt = *params.SyncedAt
	}

	c, err := scanConnection(r.db.QueryRowContext(ctx, query,
		params.ID, params.UserID, params.Provider, params.InstitutionName,
		params.Status, params.Disabled, syncedAt,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, connection.ErrOwnerMismatch
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert connection: %w", err)
	}
	return c, nil
}

func (r *ConnectionRepository) InsertPending(ctx context.Context, ref connection.Ref) (*connection.Connection, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO connections (id, user_id, provider, institution_name, status)
		VALUES ($1, $2, $3, $4, 'pending')
		ON CONFLICT (id) DO NOTHING
	`, ref.ID, ref.UserID, ref.Provider, ref.InstitutionName)
	if err != nil {
		return nil, fmt.Errorf("failed to insert pending connection: %w", err)
	}

	c, err := r.GetByID(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	if c.UserID != ref.UserID {
		return nil, connection.ErrOwnerMismatch
	}
	return c, nil
}

func (r *ConnectionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE connections SET last_synced_at = $1, updated_at = NOW() WHERE id = $2`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("failed to touch connection: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return connection.ErrConnectionNotFound
	}
	return nil
}

func (r *ConnectionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM connections WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LeaseRepository hands out named job leases so only one process runs a job
// at a time. A lease whose holder crashed expires after its TTL.
type LeaseRepository struct {
	db     *DB
	holder string
}

func NewLeaseRepository(db *DB) *LeaseRepository {
	return &LeaseRepository{db: db, holder: uuid.NewString()}
}

// Holder identifies this process in job_leases.
func (r *LeaseRepository) Holder() string {
	return r.holder
}

// Acquire takes the lease when it is free, expired or already ours.
func (r *LeaseRepository) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	query := `
		INSERT INTO job_leases (name, holder, expires_at)
		VALUES ($1, $2, NOW() + make_interval(secs => $3))
		ON CONFLICT (name) DO UPDATE
			SET holder = EXCLUDED.holder,
			    expires_at = EXCLUDED.expires_at
			WHERE job_leases.expires_at < NOW() OR job_leases.holder = EXCLUDED.holder
		RETURNING holder
	`

	var holder string
	err := r.db.QueryRowContext(ctx, query, name, r.holder, ttl.Seconds()).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	return true, nil
}

func (r *LeaseRepository) Release(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM job_leases WHERE name = $1 AND holder = $2`,
		name, r.holder,
	)
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}

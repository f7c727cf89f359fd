package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"brokerlink/internal/domain/refresh"
)

type SyncRunRepository struct {
	db *DB
}

func NewSyncRunRepository(db *DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

func (r *SyncRunRepository) Save(ctx context.Context, run *refresh.Run) error {
	failures, err := json.Marshal(run.Failures)
	if err != nil {
		return fmt.Errorf("failed to marshal run failures: %w", err)
	}

	var finishedAt any
	if run.FinishedAt != nil {
		finishedAt = *run.FinishedAt
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, trigger, started_at, finished_at, attempted, succeeded, failed, rotated, cancelled, failures)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
			SET finished_at = EXCLUDED.finished_at,
			    attempted = EXCLUDED.attempted,
			    succeeded = EXCLUDED.succeeded,
			    failed = EXCLUDED.failed,
			    rotated = EXCLUDED.rotated,
			    cancelled = EXCLUDED.cancelled,
			    failures = EXCLUDED.failures
	`, run.ID.String(), string(run.Trigger), run.StartedAt, finishedAt,
		run.Attempted, run.Succeeded, run.Failed, run.Rotated, run.Cancelled, string(failures))
	if err != nil {
		return fmt.Errorf("failed to save sync run: %w", err)
	}
	return nil
}

func (r *SyncRunRepository) ListRecent(ctx context.Context, limit int) ([]*refresh.Run, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, trigger, started_at, finished_at, attempted, succeeded, failed, rotated, cancelled, failures
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*refresh.Run
	for rows.Next() {
		run := &refresh.Run{}
		var trigger string
		var finishedAt sql.NullTime
		var failures []byte
		if err := rows.Scan(&run.ID, &trigger, &run.StartedAt, &finishedAt, &run.Attempted, &run.Succeeded,
			&run.Failed, &run.Rotated, &run.Cancelled, &failures); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		run.Trigger = refresh.Trigger(trigger)
		if finishedAt.Valid {
			run.FinishedAt = &finishedAt.Time
		}
		if len(failures) > 0 {
			if err := json.Unmarshal(failures, &run.Failures); err != nil {
				return nil, fmt.Errorf("failed to unmarshal run failures: %w", err)
			}
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}
	return runs, nil
}

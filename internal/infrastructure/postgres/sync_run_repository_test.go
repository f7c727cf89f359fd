package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"brokerlink/internal/domain/providererr"
	"brokerlink/internal/domain/refresh"
)

func TestSyncRunRepository_Save(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSyncRunRepository(db)

	start := time.Date(2026, 1, 2, 2, 0, 0, 0, time.UTC)
	run := refresh.NewRun(refresh.TriggerSchedule, start)
	run.Add(&refresh.UserResult{UserID: 3, Provider: "brokeragex", Kind: providererr.KindProviderUnavailable, Err: errors.New("503 from provider")})
	run.Finish(start.Add(time.Minute), false)

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+sync_runs.*ON CONFLICT \(id\) DO UPDATE`).
		WithArgs(run.ID.String(), "schedule", start, start.Add(time.Minute), 1, 0, 1, 0, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Save(context.Background(), run); err != nil {
		t.Fatalf("Save error: %v", err)
	}
}

func TestSyncRunRepository_ListRecent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSyncRunRepository(db)
	start := time.Now()

	cols := []string{"id", "trigger", "started_at", "finished_at", "attempted", "succeeded", "failed", "rotated", "cancelled", "failures"}
	mock.ExpectQuery(`(?s)FROM\s+sync_runs\s+ORDER BY started_at DESC\s+LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("6f1c2e8a-6d0b-4a4e-9a55-2b1f7c3d9e10", "manual", start, nil, 2, 1, 1, 0, false,
				[]byte(`[{"userId":3,"provider":"brokeragex","kind":"provider_unavailable"}]`)))

	runs, err := repo.ListRecent(context.Background(), 5)
	if err != nil {
		t.Fatalf("ListRecent error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	got := runs[0]
	if got.Trigger != refresh.TriggerManual || got.FinishedAt != nil || len(got.Failures) != 1 || got.Failures[0].UserID != 3 {
		t.Fatalf("unexpected run: %+v", got)
	}
}

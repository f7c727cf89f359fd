package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"brokerlink/internal/domain/credential"
	"brokerlink/internal/domain/refdata"
	"brokerlink/internal/domain/refresh"
)

const (
	JobFullRefresh = "full-refresh"
	JobRefData     = "refdata-refresh"
)

// RefreshService is the part of refresh.Service the jobs drive.
type RefreshService interface {
	ListLive(ctx context.Context) ([]*credential.Credential, error)
	RefreshCredential(ctx context.Context, cred *credential.Credential) *refresh.UserResult
	RefreshUser(ctx context.Context, userID int64) (refresh.Outcome, error)
	Begin(trigger refresh.Trigger) *refresh.Run
	Complete(ctx context.Context, run *refresh.Run, cancelled bool)
}

// refreshJob refreshes one live credential and folds the result into a run.
type refreshJob struct {
	service RefreshService
	cred    *credential.Credential
	run     *refresh.Run
}

func (j *refreshJob) Execute(ctx context.Context) error {
	res := j.service.RefreshCredential(ctx, j.cred)
	j.run.Add(res)
	return res.Err
}

func (j *refreshJob) UserID() int64 {
	return j.cred.UserID
}

func (j *refreshJob) Description() string {
	return fmt.Sprintf("refresh %s credentials of user %d", j.cred.Provider, j.cred.UserID)
}

// FullRefresh refreshes every live credential through the worker pool.
// One user's failure never stops the others.
type FullRefresh struct {
	service RefreshService
	pool    *WorkerPool
	logger  *slog.Logger
}

func NewFullRefresh(service RefreshService, pool *WorkerPool, logger *slog.Logger) *FullRefresh {
	if logger == nil {
		logger = slog.Default()
	}
	return &FullRefresh{
		service: service,
		pool:    pool,
		logger:  logger.With("component", "full_refresh"),
	}
}

// Run executes one batch. Cancelling ctx stops new users from starting; the
// run is still completed and persisted.
func (f *FullRefresh) Run(ctx context.Context, trigger refresh.Trigger) (*refresh.Run, error) {
	creds, err := f.service.ListLive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list live credentials: %w", err)
	}

	run := f.service.Begin(trigger)
	f.logger.InfoContext(ctx, "refresh run started", "run_id", run.ID, "trigger", trigger, "credentials", len(creds))

	jobs := make([]Job, 0, len(creds))
	for _, cred := range creds {
		jobs = append(jobs, &refreshJob{service: f.service, cred: cred, run: run})
	}

	executed := f.pool.RunBatch(ctx, jobs)
	cancelled := ctx.Err() != nil || executed < len(jobs)
	f.service.Complete(ctx, run, cancelled)
	return run, nil
}

// Task adapts the batch to a scheduler RunFunc.
func (f *FullRefresh) Task(trigger refresh.Trigger) RunFunc {
	return func(ctx context.Context) error {
		_, err := f.Run(ctx, trigger)
		return err
	}
}

// relinkJob refreshes a user right after their credentials were replaced.
type relinkJob struct {
	service  RefreshService
	userID   int64
	provider string
}

func (j *relinkJob) Execute(ctx context.Context) error {
	out, err := j.service.RefreshUser(ctx, j.userID)
	if err != nil {
		return err
	}
	if !out.Success {
		return errors.New(out.Message)
	}
	return nil
}

func (j *relinkJob) UserID() int64 {
	return j.userID
}

func (j *relinkJob) Description() string {
	return fmt.Sprintf("relink refresh of user %d after %s credential change", j.userID, j.provider)
}

// Relinker queues a refresh whenever a credential is replaced.
type Relinker struct {
	service RefreshService
	pool    *WorkerPool
	logger  *slog.Logger
}

func NewRelinker(service RefreshService, pool *WorkerPool, logger *slog.Logger) *Relinker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relinker{
		service: service,
		pool:    pool,
		logger:  logger.With("component", "relinker"),
	}
}

// CredentialReplaced queues the user. A full queue drops the request; the
// next scheduled refresh picks the user up.
func (r *Relinker) CredentialReplaced(ctx context.Context, userID int64, provider string) {
	err := r.pool.Submit(&relinkJob{service: r.service, userID: userID, provider: provider})
	if err != nil {
		r.logger.WarnContext(ctx, "relink refresh not queued", "user_id", userID, "provider", provider, "error", err)
		return
	}
	r.logger.InfoContext(ctx, "relink refresh queued", "user_id", userID, "provider", provider)
}

// RefDataRefresher is the part of refdata.Service the cache job drives.
type RefDataRefresher interface {
	Refresh(ctx context.Context) (*refdata.Result, error)
}

// RefDataTask refreshes the reference-data cache.
func RefDataTask(svc RefDataRefresher, logger *slog.Logger) RunFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) error {
		res, err := svc.Refresh(ctx)
		if err != nil {
			return err
		}
		if len(res.Failed) > 0 {
			logger.WarnContext(ctx, "reference data partially refreshed", "refreshed", res.Refreshed, "failed", len(res.Failed))
		}
		return nil
	}
}

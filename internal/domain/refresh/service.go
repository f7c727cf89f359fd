// Package refresh reconciles the local account mirror with each provider.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"brokerlink/internal/domain/account"
	"brokerlink/internal/domain/connection"
	"brokerlink/internal/domain/credential"
	"brokerlink/internal/domain/providererr"
	"brokerlink/internal/infrastructure/provider"
)

var (
	refreshMeter       = otel.Meter("brokerlink/refresh")
	credentialTotal, _ = refreshMeter.Int64Counter("refresh.credential.total",
		metric.WithDescription("Credential refreshes by outcome and error kind"),
	)
	runDuration, _     = refreshMeter.Float64Histogram("refresh.run.duration",
		metric.WithDescription("Full refresh run duration in seconds"),
		metric.WithUnit("s"),
	)
)

// CredentialSource is the credential store as seen by the refresher.
type CredentialSource interface {
	ListLive(ctx context.Context) ([]*credential.Credential, error)
	ListLiveForUser(ctx context.Context, userID int64) ([]*credential.Credential, error)
	MarkRotated(ctx context.Context, userID int64, provider string) error
}

// ConnectionWriter is the subset of the state machine the refresher drives.
type ConnectionWriter interface {
	Register(ctx context.Context, ref connection.Ref) (*connection.Connection, error)
	MarkBroken(ctx context.Context, ref connection.Ref) (connection.Transition, error)
	RecordSuccessfulSync(ctx context.Context, ref connection.Ref) (connection.Transition, error)
}

// AccountWriter stores what the provider reported.
type AccountWriter interface {
	Observe(ctx context.Context, params account.UpsertParams) (*account.ExternalAccount, error)
	RecordBalance(ctx context.Context, accountID string, amount decimal.Decimal, currency string) error
	RecordPositions(ctx context.Context, accountID string, positions []account.Position) error
}

// ClientSource looks up the provider client for a credential.
type ClientSource interface {
	Get(name string) (provider.ClientInterface, error)
}

// RotationNotifier is told when a credential is retired after a mismatch.
type RotationNotifier interface {
	CredentialRotated(ctx context.Context, userID int64, provider string)
}

// Service refreshes one credential at a time. Batch iteration lives in the
// scheduler so that pacing and cancellation stay in one place.
type Service struct {
	credentials CredentialSource
	connections ConnectionWriter
	accounts    AccountWriter
	clients     ClientSource
	runs        RunRepository
	notifier    RotationNotifier
	logger      *slog.Logger
	now         func() time.Time

	accountConcurrency int
}

// Option customizes the service.
type Option func(*Service)

// WithRotationNotifier sets who hears about rotated credentials.
func WithRotationNotifier(n RotationNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithRunRepository persists run summaries.
func WithRunRepository(r RunRepository) Option {
	return func(s *Service) { s.runs = r }
}

// WithAccountConcurrency bounds parallel per-account fetches for one user.
func WithAccountConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.accountConcurrency = n
		}
	}
}

// WithClock injects a custom clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a new refresh service.
func NewService(
	credentials CredentialSource,
	connections ConnectionWriter,
	accounts AccountWriter,
	clients ClientSource,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		credentials:        credentials,
		connections:        connections,
		accounts:           accounts,
		clients:            clients,
		logger:             logger.With("component", "refresh"),
		now:                time.Now,
		accountConcurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListLive returns the credentials a full run should visit.
func (s *Service) ListLive(ctx context.Context) ([]*credential.Credential, error) {
	return s.credentials.ListLive(ctx)
}

// RefreshCredential pulls accounts, balances and positions for one credential.
// Failures are reported in the result, never returned.
func (s *Service) RefreshCredential(ctx context.Context, cred *credential.Credential) *UserResult {
	res := &UserResult{UserID: cred.UserID, Provider: cred.Provider, Errors: []string{}}
	defer s.recordMetric(ctx, res)

	if !cred.Usable() {
		res.Kind = providererr.KindAuthConfigError
		res.Err = cred.SecretErr
		s.logger.ErrorContext(ctx, "credential skipped", "user_id", cred.UserID, "provider", cred.Provider, "error", cred.SecretErr)
		return res
	}

	client, err := s.clients.Get(cred.Provider)
	if err != nil {
		res.Kind = providererr.KindClientRequestError
		res.Err = err
		return res
	}
	creds := provider.Credentials{Identity: cred.Identity, Secret: cred.Secret}

	listed, err := client.ListAccounts(ctx, creds)
	if err != nil {
		s.handleListingFailure(ctx, cred, res, err)
		return res
	}
	res.Accounts = len(listed)

	conns := s.registerConnections(ctx, cred, listed, res)

	var (
		mu       sync.Mutex
		broken   = make(map[string]bool)
		mismatch error
		g        errgroup.Group
	)
	g.SetLimit(s.accountConcurrency)

	for _, acc := range listed {
		ref, ok := conns[acc.AuthorizationID]
		if !ok {
			continue
		}
		if _, err := s.accounts.Observe(ctx, account.UpsertParams{
			ID:           acc.ID,
			ConnectionID: acc.AuthorizationID,
			UserID:       cred.UserID,
			Name:         acc.Name,
			AccountType:  acc.Type,
			Currency:     acc.Currency,
		}); err != nil {
			mu.Lock()
			res.Errors = append(res.Errors, fmt.Sprintf("account %s: %v", acc.ID, err))
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			out := s.refreshAccount(ctx, client, creds, acc, ref)
			mu.Lock()
			defer mu.Unlock()
			res.Errors = append(res.Errors, out.errs...)
			if len(out.errs) == 0 {
				res.Synced++
			}
			if out.breaking != "" {
				broken[out.breaking] = true
			}
			if out.mismatch != nil && mismatch == nil {
				mismatch = out.mismatch
			}
			return nil
		})
	}
	_ = g.Wait()

	// The identity now belongs to someone else: retire it and leave the
	// connections as they are.
	if mismatch != nil {
		res.Kind = providererr.KindUserMismatch
		res.Err = mismatch
		s.rotate(ctx, cred, res)
		return res
	}

	for id, ref := range conns {
		if broken[id] {
			if _, err := s.connections.MarkBroken(ctx, ref); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("connection %s: %v", id, err))
			}
			continue
		}
		if _, err := s.connections.RecordSuccessfulSync(ctx, ref); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("connection %s: %v", id, err))
		}
	}

	s.logger.InfoContext(ctx, "credential refreshed",
		"user_id", cred.UserID,
		"provider", cred.Provider,
		"accounts", res.Accounts,
		"synced", res.Synced,
		"errors", len(res.Errors),
	)
	return res
}

func (s *Service) handleListingFailure(ctx context.Context, cred *credential.Credential, res *UserResult, err error) {
	kind := providererr.KindOf(err)
	res.Kind = kind
	res.Err = err

	logger := s.logger.With("user_id", cred.UserID, "provider", cred.Provider, "kind", kind)

	switch {
	case kind == providererr.KindUserMismatch:
		s.rotate(ctx, cred, res)

	case kind.BreaksConnection():
		authID := providererr.AuthorizationIDOf(err)
		if authID == "" {
			logger.WarnContext(ctx, "account listing failed", "error", err)
			return
		}
		ref := connection.Ref{ID: authID, UserID: cred.UserID, Provider: cred.Provider}
		if _, tErr := s.connections.MarkBroken(ctx, ref); tErr != nil {
			logger.ErrorContext(ctx, "failed to mark connection broken", "connection_id", authID, "error", tErr)
		}

	default:
		logger.WarnContext(ctx, "account listing failed", "error", err)
	}
}

// rotate retires a credential whose provider identity now maps to another user.
func (s *Service) rotate(ctx context.Context, cred *credential.Credential, res *UserResult) {
	logger := s.logger.With("user_id", cred.UserID, "provider", cred.Provider)
	if err := s.credentials.MarkRotated(ctx, cred.UserID, cred.Provider); err != nil && !errors.Is(err, credential.ErrCredentialNotFound) {
		logger.ErrorContext(ctx, "failed to rotate mismatched credential", "error", err)
		return
	}
	res.Rotated = true
	if s.notifier != nil {
		s.notifier.CredentialRotated(ctx, cred.UserID, cred.Provider)
	}
	logger.WarnContext(ctx, "credential rotated after user mismatch")
}

// registerConnections makes sure every listed authorization has a parent row
// before accounts are written under it.
func (s *Service) registerConnections(ctx context.Context, cred *credential.Credential, listed []provider.Account, res *UserResult) map[string]connection.Ref {
	conns := make(map[string]connection.Ref)
	failed := make(map[string]bool)

	for _, acc := range listed {
		id := acc.AuthorizationID
		if id == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("account %s: missing authorization id", acc.ID))
			continue
		}
		if _, ok := conns[id]; ok || failed[id] {
			continue
		}

		ref := connection.Ref{ID: id, UserID: cred.UserID, Provider: cred.Provider, InstitutionName: acc.InstitutionName}
		if _, err := s.connections.Register(ctx, ref); err != nil {
			failed[id] = true
			res.Errors = append(res.Errors, fmt.Sprintf("connection %s: %v", id, err))
			continue
		}
		conns[id] = ref
	}
	return conns
}

// accountOutcome is what one account fetch reports back to its credential.
type accountOutcome struct {
	errs     []string
	breaking string
	mismatch error
}

// refreshAccount fetches balance and positions for one account.
func (s *Service) refreshAccount(ctx context.Context, client provider.ClientInterface, creds provider.Credentials, acc provider.Account, ref connection.Ref) accountOutcome {
	var out accountOutcome
	fail := func(what string, err error) {
		out.errs = append(out.errs, fmt.Sprintf("account %s %s: %v", acc.ID, what, err))
		switch kind := providererr.KindOf(err); {
		case kind == providererr.KindUserMismatch:
			if out.mismatch == nil {
				out.mismatch = err
			}
		case kind.BreaksConnection():
			out.breaking = ref.ID
		}
	}

	if bal, err := client.GetBalance(ctx, creds, acc.ID); err != nil {
		fail("balance", err)
	} else {
		currency := bal.Currency
		if currency == "" {
			currency = acc.Currency
		}
		if err := s.accounts.RecordBalance(ctx, acc.ID, bal.Amount, currency); err != nil {
			out.errs = append(out.errs, fmt.Sprintf("account %s balance: %v", acc.ID, err))
		}
	}

	if positions, err := client.GetPositions(ctx, creds, acc.ID); err != nil {
		fail("positions", err)
	} else {
		mirrored := make([]account.Position, 0, len(positions))
		for _, p := range positions {
			mirrored = append(mirrored, account.Position{
				Symbol:      p.Symbol,
				Description: p.Description,
				Quantity:    p.Quantity,
				Price:       p.Price,
				Currency:    p.Currency,
			})
		}
		if err := s.accounts.RecordPositions(ctx, acc.ID, mirrored); err != nil {
			out.errs = append(out.errs, fmt.Sprintf("account %s positions: %v", acc.ID, err))
		}
	}

	return out
}

// RefreshUser refreshes every live credential of one user synchronously. A
// failing provider does not stop the others; the outcome describes the first
// failure.
func (s *Service) RefreshUser(ctx context.Context, userID int64) (Outcome, error) {
	creds, err := s.credentials.ListLiveForUser(ctx, userID)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to load credentials: %w", err)
	}
	if len(creds) == 0 {
		return Outcome{Success: false, Message: ErrNoLiveCredentials.Error()}, nil
	}

	var (
		accounts, synced int
		first            *UserResult
	)
	for _, cred := range creds {
		res := s.RefreshCredential(ctx, cred)
		accounts += res.Accounts
		synced += res.Synced
		if res.Failed() && first == nil {
			first = res
		}
	}

	if first != nil {
		c := providererr.Describe(first.Kind)
		return Outcome{Success: false, Message: c.Message, Error: &c}, nil
	}
	return Outcome{
		Success: true,
		Message: fmt.Sprintf("Refreshed %d of %d accounts", synced, accounts),
	}, nil
}

// Complete finishes a run, logs its summary and persists it when a
// repository is configured.
func (s *Service) Complete(ctx context.Context, run *Run, cancelled bool) {
	run.Finish(s.now(), cancelled)
	runDuration.Record(ctx, run.Duration().Seconds(), metric.WithAttributes(
		attribute.String("trigger", string(run.Trigger)),
	))

	s.logger.InfoContext(ctx, "refresh run finished",
		"run_id", run.ID,
		"trigger", run.Trigger,
		"attempted", run.Attempted,
		"succeeded", run.Succeeded,
		"failed", run.Failed,
		"rotated", run.Rotated,
		"cancelled", cancelled,
		"duration", run.Duration(),
	)
	for _, f := range run.Failures {
		s.logger.InfoContext(ctx, "refresh run failure", "run_id", run.ID, "user_id", f.UserID, "provider", f.Provider, "kind", f.Kind)
	}

	if s.runs == nil {
		return
	}
	// The run's own context may already be cancelled.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.runs.Save(saveCtx, run); err != nil {
		s.logger.ErrorContext(ctx, "failed to save refresh run", "run_id", run.ID, "error", err)
	}
}

// Begin starts a run summary.
func (s *Service) Begin(trigger Trigger) *Run {
	return NewRun(trigger, s.now())
}

// RecentRuns returns the latest persisted run summaries.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	if s.runs == nil {
		return []*Run{}, nil
	}
	return s.runs.ListRecent(ctx, limit)
}

func (s *Service) recordMetric(ctx context.Context, res *UserResult) {
	outcome := "success"
	switch {
	case res.Rotated:
		outcome = "rotated"
	case res.Failed():
		outcome = "failed"
	case len(res.Errors) > 0:
		outcome = "partial"
	}
	credentialTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", res.Provider),
		attribute.String("outcome", outcome),
		attribute.String("kind", string(res.Kind)),
	))
}

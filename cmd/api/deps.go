package main

import (
	"context"
	"fmt"
	"log/slog"

	"brokerlink/internal/domain/account"
	"brokerlink/internal/domain/connection"
	"brokerlink/internal/domain/credential"
	"brokerlink/internal/domain/notification"
	"brokerlink/internal/domain/refdata"
	"brokerlink/internal/domain/refresh"
	"brokerlink/internal/domain/webhook"
	"brokerlink/internal/infrastructure/cache"
	"brokerlink/internal/infrastructure/crypto"
	"brokerlink/internal/infrastructure/firebase"
	"brokerlink/internal/infrastructure/postgres"
	"brokerlink/internal/infrastructure/postgres/listener"
	"brokerlink/internal/infrastructure/provider"
	httphandlers "brokerlink/internal/interfaces/http"
	"brokerlink/internal/interfaces/scheduler"
	"brokerlink/internal/shared/auth"
	"brokerlink/internal/shared/config"
	"brokerlink/internal/shared/messages"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	// Handlers
	HealthHandler     *httphandlers.HealthHandler
	WebhookHandler    *httphandlers.WebhookHandler
	AdminHandler      *httphandlers.AdminHandler
	AccountHandler    *httphandlers.AccountHandler
	InstrumentHandler *httphandlers.InstrumentHandler

	// Auth
	JWT *auth.JWT

	// Background work
	Pool        *scheduler.WorkerPool
	Scheduler   *scheduler.Scheduler
	FullRefresh *scheduler.FullRefresh
	Listener    *listener.CredentialListener
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	db, err := postgres.New(ctx, cfg.Database.ConnectionString(), poolOptions(cfg.Database))
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.DBName)

	if err := postgres.Migrate(ctx, db.DB); err != nil {
		db.Close()
		return nil, err
	}

	deps, err := wire(ctx, db, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return deps, nil
}

func wire(ctx context.Context, db *postgres.DB, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		return nil, err
	}

	// Repositories
	credentialRepo := postgres.NewCredentialRepository(db, encryptor)
	connectionRepo := postgres.NewConnectionRepository(db)
	accountRepo := postgres.NewAccountRepository(db)
	webhookRepo := postgres.NewWebhookEventRepository(db)
	runRepo := postgres.NewSyncRunRepository(db)
	leaseRepo := postgres.NewLeaseRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)

	// Notifications
	msgs, err := messages.Load(cfg.Messages.File)
	if err != nil {
		return nil, err
	}
	var messenger notification.Messenger
	if cfg.Firebase.CredentialsFile != "" {
		fcm, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile, notificationRepo.DeactivateToken, logger)
		if err != nil {
			return nil, err
		}
		messenger = fcm
		logger.Info("firebase messaging enabled")
	} else {
		logger.Info("firebase not configured, notifications are stored only")
	}
	notifier := notification.NewNotifier(notification.NewService(notificationRepo, messenger, logger), msgs, logger)

	// Domain services
	credentials := credential.NewStore(credentialRepo, logger)
	connections := connection.NewStateMachine(connectionRepo, logger, connection.WithNotifier(notifier))
	accounts := account.NewService(accountRepo)

	registry := provider.NewRegistry()
	ingestor := webhook.NewIngestor(webhookRepo, credentials, connections, logger)
	for _, pc := range cfg.Providers {
		client := provider.NewClient(provider.Config{
			Name:        pc.Name,
			BaseURL:     pc.BaseURL,
			ClientID:    pc.ClientID,
			ConsumerKey: pc.ConsumerKey,
			Timeout:     pc.Timeout,
		})
		registry.Register(provider.NewRateLimitedClient(client, pc.RateLimit, pc.Burst))

		verifier, err := webhook.NewVerifier(pc.WebhookScheme, pc.WebhookSecret, pc.WebhookHeader, cfg.Webhook.AllowUnsigned)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
		ingestor.RegisterVerifier(pc.Name, verifier)
	}
	logger.Info("providers registered", "providers", registry.Names())

	refresher := refresh.NewService(credentials, connections, accounts, registry, logger,
		refresh.WithRotationNotifier(notifier),
		refresh.WithRunRepository(runRepo),
	)

	// Reference data
	var refData *refdata.Service
	if cfg.RefData.Provider != "" {
		source, err := registry.Get(cfg.RefData.Provider)
		if err != nil {
			return nil, fmt.Errorf("reference data provider %s: %w", cfg.RefData.Provider, err)
		}
		refData = refdata.NewService(source, cache.NewInstrumentCache(cfg.RefData.CacheSize, cfg.RefData.TTL), cfg.RefData.Symbols, logger)
	}

	// Background work
	sc := cfg.Scheduler
	pool := scheduler.NewWorkerPool(sc.WorkerCount, sc.JobDelay, sc.JobTimeout, sc.QueueSize, logger)
	sched := scheduler.NewScheduler(scheduler.Config{Locker: leaseRepo, LeaseTTL: sc.LeaseTTL}, logger)

	fullRefresh := scheduler.NewFullRefresh(refresher, pool, logger)
	specs, err := scheduler.Specs(sc.FullRefreshTimes, sc.FullRefreshCron)
	if err != nil {
		return nil, err
	}
	if err := sched.Register(scheduler.JobFullRefresh, specs, fullRefresh.Task(refresh.TriggerSchedule)); err != nil {
		return nil, err
	}
	if refData != nil {
		var refSpecs []string
		if sc.RefDataCron != "" {
			refSpecs = []string{sc.RefDataCron}
		}
		if err := sched.Register(scheduler.JobRefData, refSpecs, scheduler.RefDataTask(refData, logger)); err != nil {
			return nil, err
		}
	}

	relinker := scheduler.NewRelinker(refresher, pool, logger)
	credListener := listener.NewCredentialListener(cfg.Database.ConnectionString(), relinker, logger)

	triggerFull := func() error {
		return sched.TriggerWith(scheduler.JobFullRefresh, fullRefresh.Task(refresh.TriggerManual))
	}

	var instrumentHandler *httphandlers.InstrumentHandler
	if refData != nil {
		instrumentHandler = httphandlers.NewInstrumentHandler(refData, logger)
	}

	return &Dependencies{
		DB:                db,
		HealthHandler:     httphandlers.NewHealthHandler(db, logger),
		WebhookHandler:    httphandlers.NewWebhookHandler(ingestor, cfg.Webhook.MaxBodyBytes, logger),
		AdminHandler:      httphandlers.NewAdminHandler(refresher, connections, triggerFull, logger),
		AccountHandler:    httphandlers.NewAccountHandler(accounts, logger),
		InstrumentHandler: instrumentHandler,
		JWT:               auth.NewJWT(cfg.JWT.Secret),
		Pool:              pool,
		Scheduler:         sched,
		FullRefresh:       fullRefresh,
		Listener:          credListener,
	}, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}

func poolOptions(c config.DatabaseConfig) postgres.PoolOptions {
	return postgres.PoolOptions{
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

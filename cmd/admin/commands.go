package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"brokerlink/internal/domain/account"
	"brokerlink/internal/domain/connection"
	"brokerlink/internal/domain/credential"
	"brokerlink/internal/domain/notification"
	"brokerlink/internal/domain/providererr"
	"brokerlink/internal/domain/refresh"
	"brokerlink/internal/infrastructure/crypto"
	"brokerlink/internal/infrastructure/postgres"
	"brokerlink/internal/infrastructure/provider"
	"brokerlink/internal/interfaces/scheduler"
	"brokerlink/internal/shared/auth"
	"brokerlink/internal/shared/config"
)

func connect(logger *slog.Logger) (*config.Config, *postgres.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	db, err := postgres.New(context.Background(), cfg.Database.ConnectionString(), poolOptions(cfg.Database))
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.DBName)
	return cfg, db, nil
}

func credentialStore(cfg *config.Config, db *postgres.DB, logger *slog.Logger) (*credential.Store, error) {
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		return nil, err
	}
	return credential.NewStore(postgres.NewCredentialRepository(db, encryptor), logger), nil
}

func runRefresh(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)

	userIDStr := fs.String("user-id", "", "User ID(s) to refresh (comma-separated for multiple)")
	allUsers := fs.Bool("all", false, "Refresh every live credential")
	workers := fs.Int("workers", 1, "Number of concurrent workers for --all")
	timeout := fs.Duration("timeout", 30*time.Minute, "Timeout for the operation (e.g., 5m, 1h)")

	fs.Usage = func() {
		fmt.Println("Usage: admin refresh [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userIDStr == "" && !*allUsers {
		fs.Usage()
		return errors.New("must specify --user-id or --all")
	}

	userIDs, err := parseUserIDs(*userIDStr)
	if err != nil {
		return err
	}

	cfg, db, err := connect(logger)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := credentialStore(cfg, db, logger)
	if err != nil {
		return err
	}
	registry := provider.NewRegistry()
	for _, pc := range cfg.Providers {
		client := provider.NewClient(provider.Config{
			Name:        pc.Name,
			BaseURL:     pc.BaseURL,
			ClientID:    pc.ClientID,
			ConsumerKey: pc.ConsumerKey,
			Timeout:     pc.Timeout,
		})
		registry.Register(provider.NewRateLimitedClient(client, pc.RateLimit, pc.Burst))
	}
	connections := connection.NewStateMachine(postgres.NewConnectionRepository(db), logger)
	refresher := refresh.NewService(store, connections, account.NewService(postgres.NewAccountRepository(db)), registry, logger,
		refresh.WithRunRepository(postgres.NewSyncRunRepository(db)),
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	start := time.Now()

	if *allUsers {
		pool := scheduler.NewWorkerPool(*workers, 0, cfg.Scheduler.JobTimeout, cfg.Scheduler.QueueSize, logger)
		pool.Start()
		defer pool.Shutdown(time.Minute)

		run, err := scheduler.NewFullRefresh(refresher, pool, logger).Run(ctx, refresh.TriggerManual)
		if err != nil {
			return err
		}
		printRun(run)
	} else {
		for _, id := range userIDs {
			out, err := refresher.RefreshUser(ctx, id)
			if err != nil {
				return fmt.Errorf("refresh of user %d failed: %w", id, err)
			}
			fmt.Printf("User %d: success=%v %s\n", id, out.Success, out.Message)
		}
	}

	logger.Info("refresh completed", "elapsed", time.Since(start))
	return nil
}

func printRun(run *refresh.Run) {
	fmt.Printf("\n=== Run %s ===\n", run.ID)
	fmt.Printf("  Attempted:  %d\n", run.Attempted)
	fmt.Printf("  Succeeded:  %d\n", run.Succeeded)
	fmt.Printf("  Failed:     %d\n", run.Failed)
	fmt.Printf("  Rotated:    %d\n", run.Rotated)
	fmt.Printf("  Cancelled:  %v\n", run.Cancelled)

	for i, f := range run.Failures {
		if i >= 5 {
			fmt.Printf("    ... and %d more failures\n", len(run.Failures)-5)
			break
		}
		fmt.Printf("    - user %d %s: %s\n", f.UserID, f.Provider, f.Kind)
	}
}

func runMigrate(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	timeout := fs.Duration("timeout", 5*time.Minute, "Timeout for the migration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, db, err := connect(logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := postgres.Migrate(ctx, db.DB); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}

func runClassify(args []string) error {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	status := fs.Int("status", 0, "HTTP status returned by the provider")
	code := fs.String("code", "", "Provider error code")
	message := fs.String("message", "", "Provider error message")
	transport := fs.Bool("transport", false, "The request failed before a response arrived")
	if err := fs.Parse(args); err != nil {
		return err
	}

	kind := providererr.Classify(providererr.RawError{
		Status:    *status,
		Code:      *code,
		Message:   *message,
		Transport: *transport,
	})
	c := providererr.Describe(kind)

	fmt.Printf("Kind:               %s\n", c.Kind)
	fmt.Printf("Action:             %s\n", c.Action)
	fmt.Printf("Breaks connection:  %v\n", kind.BreaksConnection())
	fmt.Printf("Message:            %s\n", c.Message)
	return nil
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	subject := fs.String("subject", "", "Who the token is issued to")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	token, err := auth.NewJWT(secret).Generate(*subject, auth.RoleAdmin, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runCredential(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("credential", flag.ExitOnError)
	userID := fs.Int64("user-id", 0, "Local user ID")
	providerName := fs.String("provider", "", "Provider name")
	identity := fs.String("identity", "", "Provider-side user identity")
	secret := fs.String("secret", "", "Provider secret (read from BROKERLINK_SECRET when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		*secret = os.Getenv("BROKERLINK_SECRET")
	}

	cfg, db, err := connect(logger)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := credentialStore(cfg, db, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cred, err := store.Put(ctx, *userID, *providerName, *identity, *secret)
	if err != nil {
		return err
	}
	fmt.Printf("Stored credential %d for user %d (%s)\n", cred.ID, cred.UserID, cred.Provider)
	return nil
}

func runDevice(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("device", flag.ExitOnError)
	userID := fs.Int64("user-id", 0, "Local user ID")
	token := fs.String("token", "", "FCM device token")
	deviceType := fs.String("type", "android", "Device type (ios or android)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, db, err := connect(logger)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := notification.NewService(postgres.NewNotificationRepository(db), nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	dt, err := svc.RegisterDevice(ctx, notification.CreateDeviceTokenParams{
		UserID:     *userID,
		Token:      *token,
		DeviceType: *deviceType,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Registered %s device %s for user %d\n", dt.DeviceType, dt.ID, dt.UserID)
	return nil
}

func poolOptions(c config.DatabaseConfig) postgres.PoolOptions {
	return postgres.PoolOptions{
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

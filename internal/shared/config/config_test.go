package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-jwt-secret-key")
	t.Setenv("ENCRYPTION_KEY", "01234567890123456789012345678901") // 32 bytes
}

func TestLoad_Success(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.JWT.Secret != "test-jwt-secret-key" {
		t.Errorf("JWT.Secret = %q, want %q", cfg.JWT.Secret, "test-jwt-secret-key")
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "8080")
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, 5432)
	}
	if cfg.Database.MaxOpenConns != 25 || cfg.Database.MaxIdleConns != 5 {
		t.Errorf("Database pool = %d/%d, want 25/5", cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	}
}

func TestLoad_DatabasePool(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("DB_MAX_OPEN_CONNS", "40")
	t.Setenv("DB_CONN_MAX_LIFETIME", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Database.MaxOpenConns != 40 {
		t.Errorf("MaxOpenConns = %d, want 40", cfg.Database.MaxOpenConns)
	}
	if cfg.Database.ConnMaxLifetime != 90*time.Second {
		t.Errorf("ConnMaxLifetime = %v, want 90s", cfg.Database.ConnMaxLifetime)
	}

	t.Setenv("DB_MAX_IDLE_CONNS", "many")
	if _, err := Load(); err == nil {
		t.Error("Load() expected error for invalid DB_MAX_IDLE_CONNS")
	}
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ENCRYPTION_KEY", "01234567890123456789012345678901")
	os.Unsetenv("JWT_SECRET")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for missing JWT_SECRET, got nil")
	}
}

func TestLoad_InvalidEncryptionKeyLength(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ENCRYPTION_KEY", "too-short")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for invalid ENCRYPTION_KEY length, got nil")
	}
}

func TestLoad_MissingEncryptionKey(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ENCRYPTION_KEY", "")
	os.Unsetenv("ENCRYPTION_KEY")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for missing ENCRYPTION_KEY, got nil")
	}
}

func TestLoad_InvalidDBPort(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("DB_PORT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for invalid DB_PORT, got nil")
	}
}

func TestLoad_TLSValidation(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("TLS_ENABLED", "true")
	t.Setenv("TLS_CERT_PATH", "")
	t.Setenv("TLS_KEY_PATH", "")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for TLS enabled without cert path, got nil")
	}
}

func TestLoad_TLSValidation_MissingKeyPath(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("TLS_ENABLED", "true")
	t.Setenv("TLS_CERT_PATH", "/path/to/cert")
	t.Setenv("TLS_KEY_PATH", "")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for TLS enabled without key path, got nil")
	}
}

func TestLoad_AllowedHosts(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("ALLOWED_HOSTS", "example.com, api.example.com, localhost:3000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(cfg.Server.AllowedHosts) != 3 {
		t.Errorf("AllowedHosts length = %d, want 3", len(cfg.Server.AllowedHosts))
	}
}

func TestLoad_SchedulerConfig(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("SCHEDULER_WORKERS", "10")
	t.Setenv("SCHEDULER_RUN_ON_STARTUP", "true")
	t.Setenv("FULL_REFRESH_SCHEDULE", "0 3 * * *")
	t.Setenv("SCHEDULER_JOB_TIMEOUT", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Scheduler.Enabled != false {
		t.Error("Scheduler.Enabled should be false")
	}
	if cfg.Scheduler.WorkerCount != 10 {
		t.Errorf("Scheduler.WorkerCount = %d, want 10", cfg.Scheduler.WorkerCount)
	}
	if cfg.Scheduler.RunOnStartup != true {
		t.Error("Scheduler.RunOnStartup should be true")
	}
	if cfg.Scheduler.FullRefreshCron != "0 3 * * *" {
		t.Errorf("Scheduler.FullRefreshCron = %q", cfg.Scheduler.FullRefreshCron)
	}
	if cfg.Scheduler.JobTimeout != 5*time.Minute {
		t.Errorf("Scheduler.JobTimeout = %v, want 5m", cfg.Scheduler.JobTimeout)
	}
}

func TestLoad_SchedulerDefaults(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Scheduler.WorkerCount != 1 {
		t.Errorf("Scheduler.WorkerCount = %d, want 1 (sequential)", cfg.Scheduler.WorkerCount)
	}
	if len(cfg.Scheduler.FullRefreshTimes) != 1 || cfg.Scheduler.FullRefreshTimes[0] != "02:00" {
		t.Errorf("Scheduler.FullRefreshTimes = %v", cfg.Scheduler.FullRefreshTimes)
	}
	if len(cfg.RefData.Symbols) != 5 {
		t.Errorf("RefData.Symbols = %v", cfg.RefData.Symbols)
	}
	if cfg.Webhook.AllowUnsigned {
		t.Error("Webhook.AllowUnsigned should default to false")
	}
}

func TestLoad_InvalidWorkerCount(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SCHEDULER_WORKERS", "0")

	if _, err := Load(); err == nil {
		t.Error("Load() expected error for SCHEDULER_WORKERS=0, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SCHEDULER_JOB_DELAY", "soon")

	if _, err := Load(); err == nil {
		t.Error("Load() expected error for invalid SCHEDULER_JOB_DELAY, got nil")
	}
}

func TestLoad_Providers(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("PROVIDER_NAMES", "BrokerageX, bank-co")
	t.Setenv("PROVIDER_BROKERAGEX_BASE_URL", "https://api.brokeragex.test")
	t.Setenv("PROVIDER_BROKERAGEX_WEBHOOK_SECRET", "whsec")
	t.Setenv("PROVIDER_BROKERAGEX_RATE_LIMIT", "2.5")
	t.Setenv("PROVIDER_BANK_CO_BASE_URL", "https://bank.test")
	t.Setenv("PROVIDER_BANK_CO_WEBHOOK_SCHEME", "none")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(cfg.Providers) != 2 {
		t.Fatalf("Providers length = %d, want 2", len(cfg.Providers))
	}
	bx, ok := cfg.Provider("brokeragex")
	if !ok {
		t.Fatal("provider brokeragex not found")
	}
	if bx.RateLimit != 2.5 || bx.Burst != 5 || bx.WebhookScheme != "hmac-sha256" || bx.WebhookSecret != "whsec" {
		t.Errorf("unexpected brokeragex config: %+v", bx)
	}
	bank, _ := cfg.Provider("bank-co")
	if bank.WebhookScheme != "none" {
		t.Errorf("bank-co WebhookScheme = %q, want none", bank.WebhookScheme)
	}
	if cfg.RefData.Provider != "brokeragex" {
		t.Errorf("RefData.Provider = %q, want first provider", cfg.RefData.Provider)
	}
}

func TestLoad_ProviderMissingBaseURL(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("PROVIDER_NAMES", "brokeragex")

	if _, err := Load(); err == nil {
		t.Error("Load() expected error for provider without base URL, got nil")
	}
}

func TestGetBoolEnv(t *testing.T) {
	tests := []struct {
		value    string
		defVal   bool
		expected bool
	}{
		{"true", false, true},
		{"TRUE", false, true},
		{"True", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"YES", false, true},
		{"false", true, false},
		{"FALSE", true, false},
		{"0", true, false},
		{"no", true, false},
		{"NO", true, false},
		{"invalid", true, true},   // returns default
		{"invalid", false, false}, // returns default
		{"", true, true},          // empty returns default
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			key := "TEST_BOOL_ENV"
			if tt.value == "" {
				os.Unsetenv(key)
			} else {
				t.Setenv(key, tt.value)
			}

			got := getBoolEnv(key, tt.defVal)
			if got != tt.expected {
				t.Errorf("getBoolEnv(%q, %v) = %v, want %v", tt.value, tt.defVal, got, tt.expected)
			}
		})
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	got := cfg.ConnectionString()
	if got != expected {
		t.Errorf("ConnectionString() = %q, want %q", got, expected)
	}
}

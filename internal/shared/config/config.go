package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	Scheduler  SchedulerConfig
	TLS        TLSConfig
	Providers  []ProviderConfig
	Webhook    WebhookConfig
	RefData    RefDataConfig
	Firebase   FirebaseConfig
	Telemetry  TelemetryConfig
	Logging    LoggingConfig
	Messages   MessagesConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	AllowedHosts []string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	Secret string
}

type EncryptionConfig struct {
	Key string
}

type SchedulerConfig struct {
	Enabled bool
	// FullRefreshTimes are HH:MM wall-clock times. FullRefreshCron, when set,
	// replaces them.
	FullRefreshTimes []string
	FullRefreshCron  string
	RefDataCron      string
	WorkerCount      int
	JobDelay         time.Duration
	JobTimeout       time.Duration
	QueueSize        int
	LeaseTTL         time.Duration
	RunOnStartup     bool
}

type TLSConfig struct {
	Enabled      bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
}

// ProviderConfig is read from PROVIDER_<NAME>_* variables for every name in
// PROVIDER_NAMES.
type ProviderConfig struct {
	Name          string
	BaseURL       string
	ClientID      string
	ConsumerKey   string
	Timeout       time.Duration
	RateLimit     float64
	Burst         int
	WebhookScheme string
	WebhookSecret string
	WebhookHeader string
}

type WebhookConfig struct {
	AllowUnsigned bool
	MaxBodyBytes  int64
}

type RefDataConfig struct {
	Provider  string
	Symbols   []string
	TTL       time.Duration
	CacheSize int
}

type FirebaseConfig struct {
	CredentialsFile string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	MetricsPort  string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type MessagesConfig struct {
	File string
}

func Load() (*Config, error) {

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	maxOpen, err := getIntEnv("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, err
	}
	maxIdle, err := getIntEnv("DB_MAX_IDLE_CONNS", 5)
	if err != nil {
		return nil, err
	}
	connLifetime, err := getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	// Parse scheduler configuration
	schedulerWorkers, err := getIntEnv("SCHEDULER_WORKERS", 1)
	if err != nil {
		return nil, err
	}
	schedulerJobDelay, err := getDurationEnv("SCHEDULER_JOB_DELAY", time.Second)
	if err != nil {
		return nil, err
	}
	schedulerJobTimeout, err := getDurationEnv("SCHEDULER_JOB_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, err
	}
	schedulerQueueSize, err := getIntEnv("SCHEDULER_QUEUE_SIZE", 100)
	if err != nil {
		return nil, err
	}
	schedulerLeaseTTL, err := getDurationEnv("SCHEDULER_LEASE_TTL", 2*time.Hour)
	if err != nil {
		return nil, err
	}

	providers, err := loadProviders()
	if err != nil {
		return nil, err
	}

	maxBody, err := getIntEnv("WEBHOOK_MAX_BODY_BYTES", 1<<20)
	if err != nil {
		return nil, err
	}

	refTTL, err := getDurationEnv("REFDATA_TTL", 4*time.Hour)
	if err != nil {
		return nil, err
	}
	refCacheSize, err := getIntEnv("REFDATA_CACHE_SIZE", 256)
	if err != nil {
		return nil, err
	}
	refProvider := getEnv("REFDATA_PROVIDER", "")
	if refProvider == "" && len(providers) > 0 {
		refProvider = providers[0].Name
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "0.0.0.0"),
			AllowedHosts: splitList(getEnv("ALLOWED_HOSTS", "")),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "brokerlink"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "brokerlink"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxOpenConns:    maxOpen,
			MaxIdleConns:    maxIdle,
			ConnMaxLifetime: connLifetime,
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Encryption: EncryptionConfig{
			Key: getEnv("ENCRYPTION_KEY", ""),
		},
		Scheduler: SchedulerConfig{
			Enabled:          getBoolEnv("SCHEDULER_ENABLED", true),
			FullRefreshTimes: splitList(getEnv("SCHEDULER_TIMES", "02:00")),
			FullRefreshCron:  getEnv("FULL_REFRESH_SCHEDULE", ""),
			RefDataCron:      getEnv("REFDATA_SCHEDULE", "0 9-16/2 * * 1-5"),
			WorkerCount:      schedulerWorkers,
			JobDelay:         schedulerJobDelay,
			JobTimeout:       schedulerJobTimeout,
			QueueSize:        schedulerQueueSize,
			LeaseTTL:         schedulerLeaseTTL,
			RunOnStartup:     getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false),
		},
		TLS: TLSConfig{
			Enabled:      getBoolEnv("TLS_ENABLED", false),
			CertPath:     getEnv("TLS_CERT_PATH", ""),
			KeyPath:      getEnv("TLS_KEY_PATH", ""),
			RedirectHTTP: getBoolEnv("TLS_REDIRECT_HTTP", false),
		},
		Providers: providers,
		Webhook: WebhookConfig{
			AllowUnsigned: getBoolEnv("WEBHOOK_ALLOW_UNSIGNED", false),
			MaxBodyBytes:  int64(maxBody),
		},
		RefData: RefDataConfig{
			Provider:  strings.ToLower(refProvider),
			Symbols:   splitList(getEnv("REFDATA_SYMBOLS", "SPY,QQQ,AAPL,MSFT,VTI")),
			TTL:       refTTL,
			CacheSize: refCacheSize,
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "brokerlink-api"),
			Environment:  getEnv("OTEL_ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9090"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		Messages: MessagesConfig{
			File: getEnv("MESSAGES_FILE", ""),
		},
	}

	// Validate required fields
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Encryption.Key == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(cfg.Encryption.Key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}
	if cfg.Scheduler.WorkerCount < 1 {
		return nil, fmt.Errorf("SCHEDULER_WORKERS must be at least 1")
	}

	// Validate TLS configuration
	if cfg.TLS.Enabled {
		if cfg.TLS.CertPath == "" {
			return nil, fmt.Errorf("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if cfg.TLS.KeyPath == "" {
			return nil, fmt.Errorf("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}

	return cfg, nil
}

func loadProviders() ([]ProviderConfig, error) {
	var out []ProviderConfig
	for _, name := range splitList(getEnv("PROVIDER_NAMES", "")) {
		name = strings.ToLower(name)
		prefix := "PROVIDER_" + envKey(name) + "_"

		p := ProviderConfig{
			Name:          name,
			BaseURL:       getEnv(prefix+"BASE_URL", ""),
			ClientID:      getEnv(prefix+"CLIENT_ID", ""),
			ConsumerKey:   getEnv(prefix+"CONSUMER_KEY", ""),
			WebhookScheme: getEnv(prefix+"WEBHOOK_SCHEME", "hmac-sha256"),
			WebhookSecret: getEnv(prefix+"WEBHOOK_SECRET", ""),
			WebhookHeader: getEnv(prefix+"WEBHOOK_HEADER", ""),
		}
		if p.BaseURL == "" {
			return nil, fmt.Errorf("%sBASE_URL is required", prefix)
		}

		var err error
		if p.Timeout, err = getDurationEnv(prefix+"TIMEOUT", 30*time.Second); err != nil {
			return nil, err
		}
		if p.Burst, err = getIntEnv(prefix+"BURST", 5); err != nil {
			return nil, err
		}
		rate := getEnv(prefix+"RATE_LIMIT", "5")
		if p.RateLimit, err = strconv.ParseFloat(rate, 64); err != nil {
			return nil, fmt.Errorf("invalid %sRATE_LIMIT: %w", prefix, err)
		}

		out = append(out, p)
	}
	return out, nil
}

// Provider returns the named provider configuration.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == strings.ToLower(name) {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func envKey(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

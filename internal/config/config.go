package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string

	// AdminAPIToken guards /api/v1/admin with a bearer token.
	AdminAPIToken      string
	CORSAllowedOrigins []string
	TenantHeader       string
	TenantRootDomain   string
	DefaultTenant      string
	RunMigrations      bool
	BodyLimitBytes     int64
	ShutdownTimeout    time.Duration

	FormulaCacheTTL    time.Duration
	EvaluateRateLimit  int
	EvaluateRateWindow time.Duration
	SubmitRateLimit    int
	SubmitRateWindow   time.Duration
	IdempotencyTTL     time.Duration
	EvalParallelism    int

	BusinessName   string
	CurrencySymbol string
	ExportMaxRows  int

	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	SMTPFrom          string
	SMTPFromName      string
	OwnerEmail        string
	NotifyCustomer    bool
	NotifyEmailEnable bool

	WebhookDeliveryEnabled bool
	WebhookRequestTimeout  time.Duration
	WebhookMaxAttempts     int
	WebhookReplayTTL       time.Duration
	WorkerConcurrency      int
	WorkerVisibility       time.Duration
	QueuePrefix            string

	HealthDBTimeout    time.Duration
	HealthRedisTimeout time.Duration
	PprofEnabled       bool
	PprofUser          string
	PprofPass          string
	EnableHSTS         bool
	AuditEnabled       bool
	AuditSamplingRate  float64

	AnalyticsCacheTTL     time.Duration
	AnalyticsDefaultRange int

	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	TracingSampling  float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		AdminAPIToken:      strings.TrimSpace(k.String("ADMIN_API_TOKEN")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		TenantHeader:       valueOrDefault(k.String("TENANT_HEADER"), "X-Tenant-ID"),
		TenantRootDomain:   strings.TrimSpace(k.String("TENANT_ROOT_DOMAIN")),
		DefaultTenant:      strings.TrimSpace(k.String("DEFAULT_TENANT")),
		RunMigrations:      parseBool(k.String("RUN_MIGRATIONS"), true),
		BodyLimitBytes:     int64(parseInt(k.String("HTTP_BODY_LIMIT_BYTES"), 1<<20)),
		ShutdownTimeout:    parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),

		FormulaCacheTTL:    parseDuration(k.String("FORMULA_CACHE_TTL"), "5m"),
		EvaluateRateLimit:  parseInt(k.String("RATE_LIMIT_EVALUATE"), 120),
		EvaluateRateWindow: parseDuration(k.String("RATE_LIMIT_EVALUATE_WINDOW"), "1m"),
		SubmitRateLimit:    parseInt(k.String("RATE_LIMIT_SUBMIT"), 10),
		SubmitRateWindow:   parseDuration(k.String("RATE_LIMIT_SUBMIT_WINDOW"), "1h"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		EvalParallelism:    parseInt(k.String("EVAL_PARALLELISM"), 8),

		BusinessName:   strings.TrimSpace(k.String("BUSINESS_NAME")),
		CurrencySymbol: valueOrDefault(k.String("CURRENCY_SYMBOL"), "$"),
		ExportMaxRows:  parseInt(k.String("EXPORT_MAX_ROWS"), 5000),

		SMTPHost:          strings.TrimSpace(k.String("SMTP_HOST")),
		SMTPPort:          parseInt(k.String("SMTP_PORT"), 587),
		SMTPUsername:      k.String("SMTP_USERNAME"),
		SMTPPassword:      k.String("SMTP_PASSWORD"),
		SMTPFrom:          strings.TrimSpace(k.String("SMTP_FROM")),
		SMTPFromName:      strings.TrimSpace(k.String("SMTP_FROM_NAME")),
		OwnerEmail:        strings.TrimSpace(k.String("OWNER_EMAIL")),
		NotifyCustomer:    parseBool(k.String("NOTIFY_CUSTOMER_EMAIL"), true),
		NotifyEmailEnable: parseBool(k.String("NOTIFY_EMAIL_ENABLED"), true),

		WebhookDeliveryEnabled: parseBool(k.String("WEBHOOK_DELIVERY_ENABLED"), true),
		WebhookRequestTimeout:  parseDuration(k.String("WEBHOOK_REQUEST_TIMEOUT"), "10s"),
		WebhookMaxAttempts:     parseInt(k.String("WEBHOOK_MAX_ATTEMPTS"), 8),
		WebhookReplayTTL:       parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "72h"),
		WorkerConcurrency:      parseInt(k.String("WORKER_CONCURRENCY"), 4),
		WorkerVisibility:       parseDuration(k.String("WORKER_VISIBILITY_TIMEOUT"), "30s"),
		QueuePrefix:            valueOrDefault(k.String("QUEUE_REDIS_PREFIX"), "autobidder"),

		HealthDBTimeout:    parseDuration(k.String("HEALTH_READY_DB_TIMEOUT"), "500ms"),
		HealthRedisTimeout: parseDuration(k.String("HEALTH_READY_REDIS_TIMEOUT"), "300ms"),
		PprofEnabled:       parseBool(k.String("OBS_ENABLE_PPROF"), false),
		PprofUser:          strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
		PprofPass:          strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
		EnableHSTS:         parseBool(k.String("SECURE_ENABLE_HSTS"), false),
		AuditEnabled:       parseBool(k.String("AUDIT_ENABLED"), true),
		AuditSamplingRate:  parseFloat(k.String("AUDIT_SAMPLING_RATE"), 1.0),

		AnalyticsCacheTTL:     parseDuration(k.String("ANALYTICS_CACHE_TTL"), "5m"),
		AnalyticsDefaultRange: parseInt(k.String("ANALYTICS_DEFAULT_RANGE_DAYS"), 30),

		LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsEnabled:   parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
		MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "autobidder"),
		MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
		TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING"), false),
		TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSampling:  parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.AdminAPIToken == "" {
		return nil, errors.New("ADMIN_API_TOKEN is required")
	}
	if len(cfg.AdminAPIToken) < 16 {
		return nil, errors.New("ADMIN_API_TOKEN must be at least 16 characters")
	}
	if cfg.TracingSampling < 0 || cfg.TracingSampling > 1 {
		return nil, fmt.Errorf("OBS_TRACING_SAMPLING_RATIO must be within [0,1], got %v", cfg.TracingSampling)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// SMTPConfigured reports whether outbound mail can be sent.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// CORSOrigins returns the configured origins, defaulting to any origin for the embeddable widget.
func (c *Config) CORSOrigins() string {
	if len(c.CORSAllowedOrigins) == 0 {
		return "*"
	}
	return strings.Join(c.CORSAllowedOrigins, ",")
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}

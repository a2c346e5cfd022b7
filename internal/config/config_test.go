package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autobidder/internal/config"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":    "postgres://localhost/autobidder",
		"REDIS_URL":       "redis://localhost:6379/0",
		"ADMIN_API_TOKEN": "0123456789abcdef0123",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, 5*time.Minute, cfg.FormulaCacheTTL)
	require.Equal(t, 10, cfg.SubmitRateLimit)
	require.Equal(t, time.Hour, cfg.SubmitRateWindow)
	require.Equal(t, "$", cfg.CurrencySymbol)
	require.Equal(t, "X-Tenant-ID", cfg.TenantHeader)
	require.Equal(t, "*", cfg.CORSOrigins())
	require.True(t, cfg.RunMigrations)
	require.False(t, cfg.SMTPConfigured())
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["PORT"] = ":9090"
	env["FORMULA_CACHE_TTL"] = "30s"
	env["RATE_LIMIT_SUBMIT"] = "3"
	env["CORS_ALLOWED_ORIGINS"] = "https://sparkle.example, https://shop.example"
	env["SMTP_HOST"] = "smtp.example.com"
	env["SMTP_FROM"] = "quotes@sparkle.example"
	env["NOTIFY_CUSTOMER_EMAIL"] = "false"
	env["WEBHOOK_REQUEST_TIMEOUT"] = "not-a-duration"

	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, 30*time.Second, cfg.FormulaCacheTTL)
	require.Equal(t, 3, cfg.SubmitRateLimit)
	require.Equal(t, "https://sparkle.example,https://shop.example", cfg.CORSOrigins())
	require.True(t, cfg.SMTPConfigured())
	require.False(t, cfg.NotifyCustomer)
	require.Equal(t, 10*time.Second, cfg.WebhookRequestTimeout)
}

func TestLoadRequiresSecrets(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "ADMIN_API_TOKEN"} {
		env := baseEnv()
		env[key] = ""
		_, err := config.LoadForTests(env)
		require.ErrorContains(t, err, key)
	}

	env := baseEnv()
	env["ADMIN_API_TOKEN"] = "short"
	_, err := config.LoadForTests(env)
	require.ErrorContains(t, err, "at least 16")

	env = baseEnv()
	env["OBS_TRACING_SAMPLING_RATIO"] = "1.5"
	_, err = config.LoadForTests(env)
	require.Error(t, err)
}

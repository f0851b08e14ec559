package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "studio")
	t.Setenv("DB_USER", "dispatch")
	t.Setenv("JWT_SECRET_KEY", strings.Repeat("k", 32))
	t.Setenv("APP_BASE_URL", "https://lotus.example")
}

func TestParseConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := ParseConfig()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 50, cfg.Dispatch.BatchSize)
	assert.Equal(t, 3, cfg.Dispatch.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Dispatch.LeaseTTL)
	assert.Equal(t, 100*time.Millisecond, cfg.Email.SendDelay)
	assert.Equal(t, "outbound", cfg.Email.MessageStream)
	assert.Equal(t, "https://lotus.example", cfg.App.APIBaseURL, "API base falls back to the app base")

	assert.False(t, cfg.Push.Enabled())
	assert.False(t, cfg.Email.Enabled())
	assert.False(t, cfg.Storage.Enabled())
	assert.NoError(t, ValidateProductionConfig(cfg))
}

func TestParseConfig_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("QUEUE_BATCH_SIZE", "10")
	t.Setenv("EMAIL_SEND_DELAY", "250ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("POSTMARK_SERVER_TOKEN", "server-token")
	t.Setenv("EMAIL_FROM", "hello@lotus.example")

	cfg, err := ParseConfig()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Dispatch.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Email.SendDelay)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.AllowedOrigins)
	assert.True(t, cfg.Email.Enabled())
}

func TestParseConfig_BadValue(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("QUEUE_MAX_ATTEMPTS", "many")

	_, err := ParseConfig()
	assert.Error(t, err)
}

func TestValidateProductionConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ProductionConfig)
		want   string
	}{
		{"missing db name", func(c *ProductionConfig) { c.Database.Name = "" }, "DB_NAME is required"},
		{"short jwt secret", func(c *ProductionConfig) { c.JWT.SecretKey = "short" }, "JWT_SECRET_KEY"},
		{"rsa without keys", func(c *ProductionConfig) { c.JWT.UseRSAKeys = true }, "JWT_PRIVATE_KEY"},
		{"bad log level", func(c *ProductionConfig) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"cache without url", func(c *ProductionConfig) { c.Cache.Enabled = true }, "CACHE_REDIS_URL"},
		{"vapid without subject", func(c *ProductionConfig) {
			c.Push.VAPIDPublicKey, c.Push.VAPIDPrivateKey = "pub", "priv"
		}, "VAPID_SUBJECT"},
		{"postmark without sender", func(c *ProductionConfig) { c.Email.ServerToken = "tok" }, "EMAIL_FROM"},
		{"zero batch", func(c *ProductionConfig) { c.Dispatch.BatchSize = 0 }, "QUEUE_BATCH_SIZE"},
		{"ticker without interval", func(c *ProductionConfig) {
			c.Dispatch.TickerEnabled = true
			c.Dispatch.QueueInterval = 0
		}, "SCHEDULER_*_INTERVAL"},
		{"unsubscribe without base url", func(c *ProductionConfig) {
			c.App.UnsubscribeSecret = "s"
			c.App.APIBaseURL = ""
		}, "API_BASE_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			cfg, err := ParseConfig()
			require.NoError(t, err)

			tt.mutate(cfg)
			err = ValidateProductionConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateProductionConfig_ReportsAllProblems(t *testing.T) {
	err := ValidateProductionConfig(&ProductionConfig{})
	require.Error(t, err)
	for _, want := range []string{"DB_HOST", "DB_NAME", "DB_USER", "SERVER_PORT", "LOG_LEVEL"} {
		assert.Contains(t, err.Error(), want)
	}
}

// Package config provides configuration management and environment variable handling for the application
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ProductionConfig holds all configuration for production environment. It is built once in
// main and passed to every component; nothing else reads the environment.
type ProductionConfig struct {
	Database DatabaseConfig `json:"database"`
	Server   ServerConfig   `json:"server"`
	Security SecurityConfig `json:"security"`
	JWT      JWTConfig      `json:"jwt"`
	Logging  LoggingConfig  `json:"logging"`
	Metrics  MetricsConfig  `json:"metrics"`
	Cache    CacheConfig    `json:"cache"`
	Push     PushConfig     `json:"push"`
	Email    EmailConfig    `json:"email"`
	Social   SocialConfig   `json:"social"`
	Storage  StorageConfig  `json:"storage"`
	App      AppConfig      `json:"app"`
	Dispatch DispatchConfig `json:"dispatch"`
}

type DatabaseConfig struct {
	Host            string        `json:"host" env:"DB_HOST" envDefault:"localhost"`
	Port            int           `json:"port" env:"DB_PORT" envDefault:"5432"`
	Name            string        `json:"name" env:"DB_NAME"`
	User            string        `json:"user" env:"DB_USER"`
	Password        string        `json:"-" env:"DB_PASSWORD"`
	SSLMode         string        `json:"ssl_mode" env:"DB_SSL_MODE" envDefault:"disable"`
	MaxOpenConns    int           `json:"max_open_conns" env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" env:"DB_CONN_MAX_IDLE_TIME" envDefault:"5m"`
	SlowQueryTime   time.Duration `json:"slow_query_time" env:"DB_SLOW_QUERY_TIME" envDefault:"500ms"`
}

type ServerConfig struct {
	Host            string        `json:"host" env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            int           `json:"port" env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `json:"read_timeout" env:"SERVER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `json:"write_timeout" env:"SERVER_WRITE_TIMEOUT" envDefault:"6m"`
	IdleTimeout     time.Duration `json:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	BodyLimit       int           `json:"body_limit" env:"SERVER_BODY_LIMIT" envDefault:"4194304"`
}

type SecurityConfig struct {
	AllowedOrigins  []string      `json:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSMaxAge      int           `json:"cors_max_age" env:"CORS_MAX_AGE" envDefault:"86400"`
	GlobalRateLimit int           `json:"global_rate_limit" env:"GLOBAL_RATE_LIMIT" envDefault:"2000"`
	RateLimitWindow time.Duration `json:"rate_limit_window" env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	// Basic auth the email provider sends with webhooks. Empty disables the check.
	WebhookUsername string `json:"-" env:"EMAIL_WEBHOOK_USERNAME"`
	WebhookPassword string `json:"-" env:"EMAIL_WEBHOOK_PASSWORD"`
}

type JWTConfig struct {
	SecretKey      string        `json:"-" env:"JWT_SECRET_KEY"`
	PrivateKey     string        `json:"-" env:"JWT_PRIVATE_KEY"`
	PublicKey      string        `json:"-" env:"JWT_PUBLIC_KEY"`
	UseRSAKeys     bool          `json:"use_rsa_keys" env:"JWT_USE_RSA_KEYS" envDefault:"false"`
	AccessTokenTTL time.Duration `json:"access_token_ttl" env:"JWT_ACCESS_TOKEN_TTL" envDefault:"24h"`
	Issuer         string        `json:"issuer" env:"JWT_ISSUER" envDefault:"tamamo-no-mae"`
	Audience       string        `json:"audience" env:"JWT_AUDIENCE" envDefault:"tamamo-no-mae-api"`
}

type LoggingConfig struct {
	Level        string `json:"level" env:"LOG_LEVEL" envDefault:"info"`
	Format       string `json:"format" env:"LOG_FORMAT" envDefault:"json"`
	Output       string `json:"output" env:"LOG_OUTPUT" envDefault:"stdout"`
	FilePath     string `json:"file_path" env:"LOG_FILE_PATH" envDefault:"logs/app.log"`
	MaxSize      int    `json:"max_size" env:"LOG_MAX_SIZE" envDefault:"100"`
	MaxBackups   int    `json:"max_backups" env:"LOG_MAX_BACKUPS" envDefault:"10"`
	MaxAge       int    `json:"max_age" env:"LOG_MAX_AGE" envDefault:"30"`
	Compress     bool   `json:"compress" env:"LOG_COMPRESS" envDefault:"true"`
	EnableCaller bool   `json:"enable_caller" env:"LOG_ENABLE_CALLER" envDefault:"true"`
	AccessLog    bool   `json:"access_log" env:"LOG_ACCESS" envDefault:"true"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" env:"METRICS_ENABLED" envDefault:"true"`
	Path    string `json:"path" env:"METRICS_PATH" envDefault:"/metrics"`
}

type CacheConfig struct {
	Enabled     bool          `json:"enabled" env:"CACHE_ENABLED" envDefault:"false"`
	RedisURL    string        `json:"-" env:"CACHE_REDIS_URL"`
	RedisPrefix string        `json:"redis_prefix" env:"CACHE_REDIS_PREFIX" envDefault:"tamamo"`
	PingTimeout time.Duration `json:"ping_timeout" env:"CACHE_PING_TIMEOUT" envDefault:"5s"`
}

type PushConfig struct {
	VAPIDPublicKey  string        `json:"vapid_public_key" env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string        `json:"-" env:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string        `json:"vapid_subject" env:"VAPID_SUBJECT"`
	TTL             int           `json:"ttl" env:"PUSH_TTL" envDefault:"86400"`
	Icon            string        `json:"icon" env:"PUSH_ICON"`
	Badge           string        `json:"badge" env:"PUSH_BADGE"`
	Timeout         time.Duration `json:"timeout" env:"PUSH_TIMEOUT" envDefault:"15s"`
}

// Enabled reports whether the push channel has signing credentials
func (p PushConfig) Enabled() bool {
	return p.VAPIDPublicKey != "" && p.VAPIDPrivateKey != ""
}

type EmailConfig struct {
	ServerToken   string        `json:"-" env:"POSTMARK_SERVER_TOKEN"`
	AccountToken  string        `json:"-" env:"POSTMARK_ACCOUNT_TOKEN"`
	FromEmail     string        `json:"from_email" env:"EMAIL_FROM"`
	ReplyTo       string        `json:"reply_to" env:"EMAIL_REPLY_TO"`
	MessageStream string        `json:"message_stream" env:"EMAIL_MESSAGE_STREAM" envDefault:"outbound"`
	TrackOpens    bool          `json:"track_opens" env:"EMAIL_TRACK_OPENS" envDefault:"true"`
	SendDelay     time.Duration `json:"send_delay" env:"EMAIL_SEND_DELAY" envDefault:"100ms"`
}

// Enabled reports whether the email channel has provider credentials
func (e EmailConfig) Enabled() bool {
	return e.ServerToken != "" && e.FromEmail != ""
}

type SocialConfig struct {
	GraphBaseURL string        `json:"graph_base_url" env:"GRAPH_API_BASE_URL" envDefault:"https://graph.facebook.com"`
	GraphVersion string        `json:"graph_version" env:"GRAPH_API_VERSION" envDefault:"v21.0"`
	Timeout      time.Duration `json:"timeout" env:"GRAPH_API_TIMEOUT" envDefault:"30s"`
}

type StorageConfig struct {
	Endpoint   string        `json:"endpoint" env:"STORAGE_ENDPOINT"`
	AccessKey  string        `json:"-" env:"STORAGE_ACCESS_KEY"`
	SecretKey  string        `json:"-" env:"STORAGE_SECRET_KEY"`
	Bucket     string        `json:"bucket" env:"STORAGE_BUCKET" envDefault:"media"`
	Region     string        `json:"region" env:"STORAGE_REGION"`
	UseSSL     bool          `json:"use_ssl" env:"STORAGE_USE_SSL" envDefault:"true"`
	PresignTTL time.Duration `json:"presign_ttl" env:"STORAGE_PRESIGN_TTL" envDefault:"24h"`
}

// Enabled reports whether media references can be presigned from object storage
func (s StorageConfig) Enabled() bool {
	return s.Endpoint != "" && s.AccessKey != "" && s.SecretKey != ""
}

type AppConfig struct {
	Environment       string `json:"environment" env:"APP_ENV" envDefault:"production"`
	BaseURL           string `json:"base_url" env:"APP_BASE_URL"`
	APIBaseURL        string `json:"api_base_url" env:"API_BASE_URL"`
	StudioName        string `json:"studio_name" env:"STUDIO_NAME" envDefault:"Studio"`
	UnsubscribeSecret string `json:"-" env:"UNSUBSCRIBE_SECRET"`
	// Recognized for the content generation collaborator, not used by the dispatch core
	AIAPIKey string `json:"-" env:"AI_API_KEY"`
	// Mock channels record messages instead of calling providers
	MockChannels bool `json:"mock_channels" env:"MOCK_CHANNELS" envDefault:"false"`
}

type DispatchConfig struct {
	BatchSize          int           `json:"batch_size" env:"QUEUE_BATCH_SIZE" envDefault:"50"`
	MaxAttempts        int           `json:"max_attempts" env:"QUEUE_MAX_ATTEMPTS" envDefault:"3"`
	LeaseTTL           time.Duration `json:"lease_ttl" env:"QUEUE_LEASE_TTL" envDefault:"5m"`
	CampaignLockTTL    time.Duration `json:"campaign_lock_ttl" env:"CAMPAIGN_LOCK_TTL" envDefault:"30m"`
	TickerEnabled      bool          `json:"ticker_enabled" env:"SCHEDULER_ENABLED" envDefault:"false"`
	QueueInterval      time.Duration `json:"queue_interval" env:"SCHEDULER_QUEUE_INTERVAL" envDefault:"1m"`
	CampaignInterval   time.Duration `json:"campaign_interval" env:"SCHEDULER_CAMPAIGN_INTERVAL" envDefault:"5m"`
	SocialInterval     time.Duration `json:"social_interval" env:"SCHEDULER_SOCIAL_INTERVAL" envDefault:"5m"`
	TickerRunTimeout   time.Duration `json:"ticker_run_timeout" env:"SCHEDULER_RUN_TIMEOUT" envDefault:"10m"`
	VideoPollInterval  time.Duration `json:"video_poll_interval" env:"SOCIAL_VIDEO_POLL_INTERVAL" envDefault:"3s"`
	VideoPollAttempts  int           `json:"video_poll_attempts" env:"SOCIAL_VIDEO_POLL_ATTEMPTS" envDefault:"10"`
	SocialPublishBatch int           `json:"social_publish_batch" env:"SOCIAL_PUBLISH_BATCH" envDefault:"50"`
}

// LoadProductionConfig loads an optional .env file, parses the environment and validates the result
func LoadProductionConfig() (*ProductionConfig, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg, err := ParseConfig()
	if err != nil {
		return nil, err
	}

	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfig reads the process environment into a ProductionConfig without validating it
func ParseConfig() (*ProductionConfig, error) {
	var cfg ProductionConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if cfg.App.APIBaseURL == "" {
		cfg.App.APIBaseURL = cfg.App.BaseURL
	}
	return &cfg, nil
}

// ValidateProductionConfig collects every problem and reports them together.
// Missing channel credentials are not errors: the channel is disabled instead.
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errs []string

	if cfg.Database.Host == "" {
		errs = append(errs, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errs = append(errs, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errs = append(errs, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errs = append(errs, "DB_USER is required")
	}

	if cfg.JWT.UseRSAKeys {
		if cfg.JWT.PrivateKey == "" || cfg.JWT.PublicKey == "" {
			errs = append(errs, "JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required when JWT_USE_RSA_KEYS is set")
		}
	} else if len(cfg.JWT.SecretKey) < 32 {
		errs = append(errs, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.AccessTokenTTL <= 0 {
		errs = append(errs, "JWT_ACCESS_TOKEN_TTL must be positive")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errs = append(errs, "SERVER_WRITE_TIMEOUT must be positive")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, cfg.Logging.Level) {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		errs = append(errs, "LOG_FORMAT must be json or console")
	}
	validOutputs := []string{"stdout", "file", "both"}
	if !slices.Contains(validOutputs, cfg.Logging.Output) {
		errs = append(errs, fmt.Sprintf("LOG_OUTPUT must be one of: %v", validOutputs))
	}

	if cfg.Cache.Enabled && cfg.Cache.RedisURL == "" {
		errs = append(errs, "CACHE_REDIS_URL is required when cache is enabled")
	}

	if cfg.Push.Enabled() && cfg.Push.VAPIDSubject == "" {
		errs = append(errs, "VAPID_SUBJECT is required when VAPID keys are set")
	}
	if cfg.Email.ServerToken != "" && cfg.Email.FromEmail == "" {
		errs = append(errs, "EMAIL_FROM is required when POSTMARK_SERVER_TOKEN is set")
	}
	if cfg.Email.SendDelay < 0 {
		errs = append(errs, "EMAIL_SEND_DELAY must not be negative")
	}

	if cfg.Dispatch.BatchSize <= 0 {
		errs = append(errs, "QUEUE_BATCH_SIZE must be positive")
	}
	if cfg.Dispatch.MaxAttempts <= 0 {
		errs = append(errs, "QUEUE_MAX_ATTEMPTS must be positive")
	}
	if cfg.Dispatch.TickerEnabled {
		if cfg.Dispatch.QueueInterval <= 0 || cfg.Dispatch.CampaignInterval <= 0 || cfg.Dispatch.SocialInterval <= 0 {
			errs = append(errs, "SCHEDULER_*_INTERVAL must be positive when the scheduler is enabled")
		}
	}

	if cfg.App.UnsubscribeSecret != "" && cfg.App.APIBaseURL == "" {
		errs = append(errs, "API_BASE_URL or APP_BASE_URL is required for unsubscribe links")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

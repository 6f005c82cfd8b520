// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override, secrets)
//  2. Config file (~/.answerbot/config.yaml or ./config.yaml)
//  3. Default values
//
// Sensitive values (Slack credentials, database password) are bound from the
// environment only and never logged.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrMissingSlackToken indicates SLACK_BOT_TOKEN is not set.
	ErrMissingSlackToken = errors.New("missing Slack bot token")

	// ErrMissingSigningSecret indicates SLACK_SIGNING_SECRET is not set.
	ErrMissingSigningSecret = errors.New("missing Slack signing secret")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidWorkerCount indicates the worker count is out of range.
	ErrInvalidWorkerCount = errors.New("invalid worker count")

	// ErrInvalidAnswerTimeout indicates the answer timeout is out of range.
	ErrInvalidAnswerTimeout = errors.New("invalid answer timeout")
)

// Defaults for the Gemini provider.
const (
	DefaultModelName     = "googleai/gemini-2.5-flash"
	DefaultEmbedderModel = "gemini-embedding-001"
)

// Config stores application configuration for both the event server and the
// worker pool.
type Config struct {
	// AI model configuration
	ModelName     string  `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens" json:"max_tokens"`

	// AnswerTimeoutSeconds bounds a single model call. Exceeding it is
	// treated as a failed answer, not a crash.
	AnswerTimeoutSeconds int `mapstructure:"answer_timeout_seconds" json:"answer_timeout_seconds"`

	// Retrieval grounding (optional)
	RAGEnabled bool `mapstructure:"rag_enabled" json:"rag_enabled"`
	RAGTopK    int  `mapstructure:"rag_top_k" json:"rag_top_k"`

	// Slack credentials (env only, masked in JSON)
	SlackBotToken      string `mapstructure:"slack_bot_token" json:"-"`
	SlackSigningSecret string `mapstructure:"slack_signing_secret" json:"-"`

	// Event server
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	TrustProxy bool   `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst  int    `mapstructure:"rate_burst" json:"rate_burst"`

	// PostgreSQL (request log, settings, documents)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"`
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Redis work queue
	RedisURL      string `mapstructure:"redis_url" json:"redis_url"`
	QueueName     string `mapstructure:"queue_name" json:"queue_name"`
	ConsumerGroup string `mapstructure:"consumer_group" json:"consumer_group"`

	// Worker pool
	WorkerCount int `mapstructure:"worker_count" json:"worker_count"`

	// Admission policy when the ledger read fails: false (default) rejects
	// the request, true admits it. See DESIGN.md.
	AdmissionFailOpen bool `mapstructure:"admission_fail_open" json:"admission_fail_open"`

	// SettingsRefreshSeconds is the interval between settings cache
	// refreshes from the database.
	SettingsRefreshSeconds int `mapstructure:"settings_refresh_seconds" json:"settings_refresh_seconds"`

	// ModelRequestsPerMinute throttles model API calls per process.
	// 0 disables the throttle.
	ModelRequestsPerMinute int `mapstructure:"model_requests_per_minute" json:"model_requests_per_minute"`

	// Tracing (optional; disabled when agent host is empty)
	OTLPAgentHost string `mapstructure:"otlp_agent_host" json:"otlp_agent_host"`
	ServiceName   string `mapstructure:"service_name" json:"service_name"`
	Environment   string `mapstructure:"environment" json:"environment"`
}

// Load reads configuration from defaults, config file, and environment.
// Validation is fail-fast: an invalid configuration never leaves this
// function.
func Load() (*Config, error) {
	setDefaults()
	bindEnvVariables()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".answerbot"))
	}
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine; defaults plus env cover everything.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("temperature", 0.3)
	viper.SetDefault("max_tokens", 2048)
	viper.SetDefault("answer_timeout_seconds", 120)
	viper.SetDefault("rag_enabled", false)
	viper.SetDefault("rag_top_k", 4)

	// Event server defaults
	viper.SetDefault("listen_addr", ":8000")
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 60)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "answerbot")
	viper.SetDefault("postgres_password", "answerbot_dev_password")
	viper.SetDefault("postgres_db_name", "answerbot")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Queue defaults
	viper.SetDefault("redis_url", "redis://localhost:6379/0")
	viper.SetDefault("queue_name", "answerbot:jobs")
	viper.SetDefault("consumer_group", "answerbot-workers")

	// Worker defaults
	viper.SetDefault("worker_count", 4)
	viper.SetDefault("admission_fail_open", false)
	viper.SetDefault("settings_refresh_seconds", 60)
	viper.SetDefault("model_requests_per_minute", 30)

	// Tracing defaults (off unless otlp_agent_host is set)
	viper.SetDefault("otlp_agent_host", "")
	viper.SetDefault("service_name", "answerbot")
	viper.SetDefault("environment", "dev")
}

// bindEnvVariables binds environment variables explicitly. Secrets come only
// from the environment; the rest are overridable for deployment convenience.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("slack_bot_token", "SLACK_BOT_TOKEN")
	mustBind("slack_signing_secret", "SLACK_SIGNING_SECRET")

	mustBind("redis_url", "REDIS_URL")
	mustBind("listen_addr", "ANSWERBOT_LISTEN_ADDR")
	mustBind("trust_proxy", "ANSWERBOT_TRUST_PROXY")
	mustBind("model_name", "ANSWERBOT_MODEL_NAME")
	mustBind("worker_count", "ANSWERBOT_WORKER_COUNT")
	mustBind("rag_enabled", "ANSWERBOT_RAG_ENABLED")
	mustBind("otlp_agent_host", "OTLP_AGENT_HOST")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper.
}

// Validate checks structural invariants shared by all commands.
func (c *Config) Validate() error {
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.WorkerCount < 1 || c.WorkerCount > 256 {
		return fmt.Errorf("%w: %d (must be 1-256)", ErrInvalidWorkerCount, c.WorkerCount)
	}
	if c.AnswerTimeoutSeconds < 1 || c.AnswerTimeoutSeconds > 600 {
		return fmt.Errorf("%w: %d (must be 1-600 seconds)", ErrInvalidAnswerTimeout, c.AnswerTimeoutSeconds)
	}
	return nil
}

// ValidateServe checks requirements specific to the event server:
// the Slack credentials must be present to verify and answer webhooks.
func (c *Config) ValidateServe() error {
	if c.SlackBotToken == "" {
		return ErrMissingSlackToken
	}
	if c.SlackSigningSecret == "" {
		return ErrMissingSigningSecret
	}
	return nil
}

// ValidateWork checks requirements specific to the worker pool.
// Workers post answers back to Slack, so the bot token is required.
func (c *Config) ValidateWork() error {
	if c.SlackBotToken == "" {
		return ErrMissingSlackToken
	}
	return nil
}

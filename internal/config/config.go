package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/cvtailor/cvtailor/internal/crypto"
	"github.com/cvtailor/cvtailor/internal/formscan"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// LLM providers
const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
)

// Config holds all application configuration
type Config struct {
	// Environment
	Env      Environment `envconfig:"ENV" default:"development"`
	LogLevel string      `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool        `envconfig:"DEBUG" default:"false"`

	// Application
	App AppConfig

	// Server
	Server ServerConfig

	// Database (scan history)
	Database DatabaseConfig

	// Redis (scan cache, resume store, rate limits)
	Redis RedisConfig

	// Temporal (batch scans)
	Temporal TemporalConfig

	// LLM provider selection
	LLM LLMConfig

	// Claude AI
	Claude ClaudeConfig

	// OpenAI
	OpenAI OpenAIConfig

	// S3/MinIO (snapshot archive)
	S3 S3Config

	// Headless browser
	Browser BrowserConfig

	// Form discovery
	Scan ScanConfig

	// Rate Limits
	RateLimits RateLimitConfig

	// Security
	Security SecurityConfig
}

// AppConfig holds application metadata
type AppConfig struct {
	Name    string `envconfig:"APP_NAME" default:"cvtailor"`
	Version string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	MaxRequestSize  int64         `envconfig:"SERVER_MAX_REQUEST_SIZE" default:"10485760"` // 10MB
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	Enabled         bool          `envconfig:"DB_ENABLED" default:"false"`
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"cvtailor"`
	Password        string        `envconfig:"DB_PASSWORD" default:""`
	Database        string        `envconfig:"DB_NAME" default:"cvtailor"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	ConnMaxIdleTime time.Duration `envconfig:"DB_CONN_MAX_IDLE_TIME" default:"1m"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	Host         string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port         int           `envconfig:"REDIS_PORT" default:"6379"`
	Password     string        `envconfig:"REDIS_PASSWORD" default:""`
	DB           int           `envconfig:"REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REDIS_MIN_IDLE_CONNS" default:"5"`
	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
	ScanCacheTTL time.Duration `envconfig:"REDIS_SCAN_CACHE_TTL" default:"10m"`
	ResumeKey    string        `envconfig:"RESUME_ENCRYPTION_KEY" default:""`
}

// Addr returns Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TemporalConfig holds Temporal settings
type TemporalConfig struct {
	Enabled     bool   `envconfig:"TEMPORAL_ENABLED" default:"false"`
	Host        string `envconfig:"TEMPORAL_HOST" default:"localhost"`
	Port        int    `envconfig:"TEMPORAL_PORT" default:"7233"`
	Namespace   string `envconfig:"TEMPORAL_NAMESPACE" default:"cvtailor"`
	TaskQueue   string `envconfig:"TEMPORAL_TASK_QUEUE" default:"cvtailor-scans"`
	WorkerCount int    `envconfig:"TEMPORAL_WORKER_COUNT" default:"2"`
}

// Addr returns Temporal address
func (c TemporalConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Address returns Temporal address (alias for Addr)
func (c TemporalConfig) Address() string {
	return c.Addr()
}

// LLMConfig selects the provider used for CV tailoring
type LLMConfig struct {
	Provider string `envconfig:"LLM_PROVIDER" default:"claude"` // claude, openai

	// Circuit breaker around the provider. Zero MinRequests disables it.
	BreakerMinRequests  uint32        `envconfig:"LLM_BREAKER_MIN_REQUESTS" default:"5"`
	BreakerFailureRatio float64       `envconfig:"LLM_BREAKER_FAILURE_RATIO" default:"0.6"`
	BreakerCooldown     time.Duration `envconfig:"LLM_BREAKER_COOLDOWN" default:"30s"`

	// Spend in USD after which only cached tailoring answers are served.
	// Zero disables the limit.
	DailyBudget float64 `envconfig:"LLM_DAILY_BUDGET" default:"100"`
}

// ClaudeConfig holds Claude AI settings
type ClaudeConfig struct {
	APIKey        string        `envconfig:"ANTHROPIC_API_KEY" default:""`
	BaseURL       string        `envconfig:"CLAUDE_BASE_URL" default:"https://api.anthropic.com/v1"`
	Model         string        `envconfig:"CLAUDE_MODEL" default:"claude-sonnet-4-20250514"`
	MaxTokens     int           `envconfig:"CLAUDE_MAX_TOKENS" default:"4096"`
	Timeout       time.Duration `envconfig:"CLAUDE_TIMEOUT" default:"120s"`
	RateLimitRPM  int           `envconfig:"CLAUDE_RATE_LIMIT_RPM" default:"50"`
	CacheTTL      time.Duration `envconfig:"CLAUDE_CACHE_TTL" default:"1h"`
	MaxRetries    int           `envconfig:"CLAUDE_MAX_RETRIES" default:"3"`
	EnableCaching bool          `envconfig:"CLAUDE_ENABLE_CACHING" default:"true"`
}

// OpenAIConfig holds OpenAI settings
type OpenAIConfig struct {
	APIKey    string        `envconfig:"OPENAI_API_KEY" default:""`
	BaseURL   string        `envconfig:"OPENAI_BASE_URL" default:""`
	Model     string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	MaxTokens int           `envconfig:"OPENAI_MAX_TOKENS" default:"4096"`
	Timeout   time.Duration `envconfig:"OPENAI_TIMEOUT" default:"120s"`
}

// S3Config holds S3/MinIO settings
type S3Config struct {
	Enabled         bool   `envconfig:"S3_ENABLED" default:"false"`
	Endpoint        string `envconfig:"S3_ENDPOINT" default:"localhost:9000"`
	AccessKeyID     string `envconfig:"S3_ACCESS_KEY_ID" default:"minioadmin"`
	SecretAccessKey string `envconfig:"S3_SECRET_ACCESS_KEY" default:"minioadmin"`
	Bucket          string `envconfig:"S3_BUCKET" default:"cvtailor-snapshots"`
	Region          string `envconfig:"S3_REGION" default:"us-east-1"`
	UseSSL          bool   `envconfig:"S3_USE_SSL" default:"false"`
}

// BrowserConfig holds headless browser settings
type BrowserConfig struct {
	Headless       bool          `envconfig:"BROWSER_HEADLESS" default:"true"`
	NavTimeout     time.Duration `envconfig:"BROWSER_NAV_TIMEOUT" default:"30s"`
	UserAgent      string        `envconfig:"BROWSER_USER_AGENT" default:""`
	ViewportWidth  int           `envconfig:"BROWSER_VIEWPORT_WIDTH" default:"1280"`
	ViewportHeight int           `envconfig:"BROWSER_VIEWPORT_HEIGHT" default:"800"`
	PollInterval   time.Duration `envconfig:"BROWSER_POLL_INTERVAL" default:"2s"`
}

// ScanConfig holds form discovery settings
type ScanConfig struct {
	MinFieldCount int           `envconfig:"SCAN_MIN_FIELD_COUNT" default:"4"`
	FieldsetDepth int           `envconfig:"SCAN_FIELDSET_DEPTH" default:"1"`
	ClickSettle   time.Duration `envconfig:"SCAN_CLICK_SETTLE" default:"300ms"`
	Timeout       time.Duration `envconfig:"SCAN_TIMEOUT" default:"60s"`
	MaxBatchURLs  int           `envconfig:"SCAN_MAX_BATCH_URLS" default:"50"`
}

// Options converts the settings into scanner options
func (c ScanConfig) Options() formscan.Options {
	opts := formscan.DefaultOptions()
	opts.MinFieldCount = c.MinFieldCount
	opts.FieldsetDepth = c.FieldsetDepth
	opts.ClickSettle = c.ClickSettle
	return opts
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMin int  `envconfig:"RATE_LIMIT_REQUESTS_PER_MIN" default:"60"`
	BurstSize      int  `envconfig:"RATE_LIMIT_BURST_SIZE" default:"10"`
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	// CORS
	CORSEnabled        bool     `envconfig:"CORS_ENABLED" default:"true"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// TLS
	TLSEnabled  bool   `envconfig:"TLS_ENABLED" default:"false"`
	TLSCertFile string `envconfig:"TLS_CERT_FILE" default:""`
	TLSKeyFile  string `envconfig:"TLS_KEY_FILE" default:""`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config without validation (for CLI tools that
// only scan and never call an LLM)
func LoadWithDefaults() (*Config, error) {
	var cfg Config

	// Try to load from env, but don't fail on bad values
	envconfig.Process("", &cfg)

	if cfg.Claude.APIKey == "" {
		cfg.Claude.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.Scan.MinFieldCount <= 0 {
		cfg.Scan.MinFieldCount = formscan.DefaultOptions().MinFieldCount
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errors []string

	switch c.LLM.Provider {
	case ProviderClaude, "":
		if c.Claude.APIKey == "" {
			errors = append(errors, "ANTHROPIC_API_KEY is required for the claude provider")
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			errors = append(errors, "OPENAI_API_KEY is required for the openai provider")
		}
	default:
		errors = append(errors, fmt.Sprintf("unknown LLM_PROVIDER %q", c.LLM.Provider))
	}

	if c.Scan.MinFieldCount < 1 {
		errors = append(errors, "SCAN_MIN_FIELD_COUNT must be at least 1")
	}
	if c.Scan.FieldsetDepth < 0 {
		errors = append(errors, "SCAN_FIELDSET_DEPTH must not be negative")
	}

	if _, err := crypto.ParseKey(c.Redis.ResumeKey); err != nil {
		errors = append(errors, "RESUME_ENCRYPTION_KEY: "+err.Error())
	}

	// Validate database in non-development mode
	if c.Env != EnvDevelopment && c.Database.Enabled {
		if c.Database.Password == "" {
			errors = append(errors, "DB_PASSWORD is required in non-development mode")
		}
	}

	// Validate TLS in production
	if c.Env == EnvProduction {
		if c.Security.TLSEnabled && (c.Security.TLSCertFile == "" || c.Security.TLSKeyFile == "") {
			errors = append(errors, "TLS_CERT_FILE and TLS_KEY_FILE are required when TLS is enabled")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// GetLogLevel returns the appropriate zap log level
func (c *Config) GetLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}

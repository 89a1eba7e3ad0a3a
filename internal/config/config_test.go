package config

import (
	"os"
	"testing"
	"time"
)

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		Database: "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	if got := cfg.DSN(); got != expected {
		t.Errorf("DSN() = %v, want %v", got, expected)
	}
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{
		Host: "redis.example.com",
		Port: 6380,
	}

	if got := cfg.Addr(); got != "redis.example.com:6380" {
		t.Errorf("Addr() = %v, want redis.example.com:6380", got)
	}
}

func TestTemporalConfig_Addr(t *testing.T) {
	cfg := TemporalConfig{
		Host: "temporal.example.com",
		Port: 7234,
	}

	if got := cfg.Addr(); got != "temporal.example.com:7234" {
		t.Errorf("Addr() = %v, want temporal.example.com:7234", got)
	}

	if got := cfg.Address(); got != cfg.Addr() {
		t.Errorf("Address() = %v, want %v", got, cfg.Addr())
	}
}

func TestServerConfig_Addr(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", Port: 9090}

	if got := cfg.Addr(); got != "127.0.0.1:9090" {
		t.Errorf("Addr() = %v, want 127.0.0.1:9090", got)
	}
}

func TestScanConfig_Options(t *testing.T) {
	cfg := ScanConfig{
		MinFieldCount: 6,
		FieldsetDepth: 2,
		ClickSettle:   50 * time.Millisecond,
	}

	opts := cfg.Options()

	if opts.MinFieldCount != 6 {
		t.Errorf("MinFieldCount = %d, want 6", opts.MinFieldCount)
	}
	if opts.FieldsetDepth != 2 {
		t.Errorf("FieldsetDepth = %d, want 2", opts.FieldsetDepth)
	}
	if opts.ClickSettle != 50*time.Millisecond {
		t.Errorf("ClickSettle = %v, want 50ms", opts.ClickSettle)
	}
	if len(opts.ContainerSelectors) == 0 {
		t.Error("ContainerSelectors should keep the defaults")
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		name     string
		env      Environment
		expected bool
	}{
		{
			name:     "development",
			env:      EnvDevelopment,
			expected: true,
		},
		{
			name:     "staging",
			env:      EnvStaging,
			expected: false,
		},
		{
			name:     "production",
			env:      EnvProduction,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Env: tt.env}
			if got := cfg.IsDevelopment(); got != tt.expected {
				t.Errorf("IsDevelopment() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	cfg := &Config{Env: EnvProduction}
	if !cfg.IsProduction() {
		t.Error("IsProduction() = false, want true")
	}

	cfg.Env = EnvStaging
	if cfg.IsProduction() {
		t.Error("IsProduction() = true for staging")
	}
}

func TestConfig_GetLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		debug    bool
		logLevel string
		expected string
	}{
		{
			name:     "debug mode overrides",
			debug:    true,
			logLevel: "info",
			expected: "debug",
		},
		{
			name:     "normal mode uses log level",
			debug:    false,
			logLevel: "warn",
			expected: "warn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Debug: tt.debug, LogLevel: tt.logLevel}
			if got := cfg.GetLogLevel(); got != tt.expected {
				t.Errorf("GetLogLevel() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func validScan() ScanConfig {
	return ScanConfig{MinFieldCount: 4, FieldsetDepth: 1}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name: "valid development config",
			config: &Config{
				Env:    EnvDevelopment,
				LLM:    LLMConfig{Provider: ProviderClaude},
				Claude: ClaudeConfig{APIKey: "test-key"},
				Scan:   validScan(),
			},
			wantErr: false,
		},
		{
			name: "malformed resume key",
			config: &Config{
				Env:    EnvDevelopment,
				LLM:    LLMConfig{Provider: ProviderClaude},
				Claude: ClaudeConfig{APIKey: "test-key"},
				Redis:  RedisConfig{ResumeKey: "too-short"},
				Scan:   validScan(),
			},
			wantErr: true,
		},
		{
			name: "base64 resume key",
			config: &Config{
				Env:    EnvDevelopment,
				LLM:    LLMConfig{Provider: ProviderClaude},
				Claude: ClaudeConfig{APIKey: "test-key"},
				Redis:  RedisConfig{ResumeKey: "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="},
				Scan:   validScan(),
			},
			wantErr: false,
		},
		{
			name: "missing claude API key",
			config: &Config{
				Env:  EnvDevelopment,
				LLM:  LLMConfig{Provider: ProviderClaude},
				Scan: validScan(),
			},
			wantErr: true,
		},
		{
			name: "openai provider needs its own key",
			config: &Config{
				Env:    EnvDevelopment,
				LLM:    LLMConfig{Provider: ProviderOpenAI},
				Claude: ClaudeConfig{APIKey: "test-key"},
				Scan:   validScan(),
			},
			wantErr: true,
		},
		{
			name: "openai provider with key",
			config: &Config{
				Env:    EnvDevelopment,
				LLM:    LLMConfig{Provider: ProviderOpenAI},
				OpenAI: OpenAIConfig{APIKey: "sk-test"},
				Scan:   validScan(),
			},
			wantErr: false,
		},
		{
			name: "unknown provider",
			config: &Config{
				Env:  EnvDevelopment,
				LLM:  LLMConfig{Provider: "mistral"},
				Scan: validScan(),
			},
			wantErr: true,
		},
		{
			name: "zero field threshold",
			config: &Config{
				Env:    EnvDevelopment,
				Claude: ClaudeConfig{APIKey: "test-key"},
				Scan:   ScanConfig{MinFieldCount: 0},
			},
			wantErr: true,
		},
		{
			name: "production with database but no password",
			config: &Config{
				Env:      EnvProduction,
				Claude:   ClaudeConfig{APIKey: "test-key"},
				Database: DatabaseConfig{Enabled: true},
				Scan:     validScan(),
			},
			wantErr: true,
		},
		{
			name: "production without database needs no password",
			config: &Config{
				Env:    EnvProduction,
				Claude: ClaudeConfig{APIKey: "test-key"},
				Scan:   validScan(),
			},
			wantErr: false,
		},
		{
			name: "production with TLS but no cert",
			config: &Config{
				Env:      EnvProduction,
				Claude:   ClaudeConfig{APIKey: "test-key"},
				Security: SecurityConfig{TLSEnabled: true},
				Scan:     validScan(),
			},
			wantErr: true,
		},
		{
			name: "production with proper TLS",
			config: &Config{
				Env:    EnvProduction,
				Claude: ClaudeConfig{APIKey: "test-key"},
				Security: SecurityConfig{
					TLSEnabled:  true,
					TLSCertFile: "/path/to/cert",
					TLSKeyFile:  "/path/to/key",
				},
				Scan: validScan(),
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("SCAN_MIN_FIELD_COUNT", "5")
	t.Setenv("SCAN_CLICK_SETTLE", "150ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "chrome-extension://abc,https://example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Scan.MinFieldCount != 5 {
		t.Errorf("Scan.MinFieldCount = %d, want 5", cfg.Scan.MinFieldCount)
	}
	if cfg.Scan.ClickSettle != 150*time.Millisecond {
		t.Errorf("Scan.ClickSettle = %v, want 150ms", cfg.Scan.ClickSettle)
	}
	if cfg.Scan.FieldsetDepth != 1 {
		t.Errorf("Scan.FieldsetDepth = %d, want default 1", cfg.Scan.FieldsetDepth)
	}
	if len(cfg.Security.CORSAllowedOrigins) != 2 {
		t.Errorf("CORSAllowedOrigins = %v, want 2 entries", cfg.Security.CORSAllowedOrigins)
	}
	if cfg.LLM.Provider != ProviderClaude {
		t.Errorf("LLM.Provider = %q, want claude", cfg.LLM.Provider)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	t.Run("does not require an API key", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		cfg, err := LoadWithDefaults()
		if err != nil {
			t.Fatalf("LoadWithDefaults() error = %v", err)
		}
		if cfg.Scan.MinFieldCount != 4 {
			t.Errorf("Scan.MinFieldCount = %d, want 4", cfg.Scan.MinFieldCount)
		}
	})

	t.Run("uses env var when set", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "custom-api-key")

		cfg, err := LoadWithDefaults()
		if err != nil {
			t.Fatalf("LoadWithDefaults() error = %v", err)
		}
		if cfg.Claude.APIKey != "custom-api-key" {
			t.Errorf("Claude.APIKey = %v, want custom-api-key", cfg.Claude.APIKey)
		}
	})
}

func TestEnvironmentConstants(t *testing.T) {
	if EnvDevelopment != "development" {
		t.Errorf("EnvDevelopment = %v, want development", EnvDevelopment)
	}
	if EnvStaging != "staging" {
		t.Errorf("EnvStaging = %v, want staging", EnvStaging)
	}
	if EnvProduction != "production" {
		t.Errorf("EnvProduction = %v, want production", EnvProduction)
	}
}

func TestRateLimitConfig_Defaults(t *testing.T) {
	cfg := RateLimitConfig{}

	if cfg.Enabled != false {
		t.Error("RateLimitConfig.Enabled should be false by default")
	}
	if cfg.RequestsPerMin != 0 {
		t.Error("RateLimitConfig.RequestsPerMin should be 0 by default")
	}
}

func TestMain(m *testing.M) {
	os.Unsetenv("LLM_PROVIDER")
	os.Exit(m.Run())
}

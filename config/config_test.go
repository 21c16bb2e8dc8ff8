package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default configuration",
			envVars: map[string]string{
				"ENVIRONMENT": "development",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.False(t, cfg.Server.TLS.Enabled)
				assert.Nil(t, cfg.Database)
				assert.False(t, cfg.AuditEnabled())

				assert.Equal(t, 3, cfg.Router.MaxAttempts)
				assert.Equal(t, time.Second, cfg.Router.BaseDelay)
				assert.Equal(t, 30*time.Second, cfg.Router.AttemptTimeout)
				assert.Equal(t, time.Second, cfg.Router.MaxJitter)
				assert.Equal(t, 3, cfg.Router.MaxOuterRetries)
				assert.Equal(t, time.Second, cfg.Router.OuterBackoff)
				assert.False(t, cfg.Router.DeprioritizeUnhealthy)
				assert.Equal(t, "google__gemini-flash", cfg.Router.DefaultModel)
				assert.Empty(t, cfg.Router.RegistryFile)
				assert.False(t, cfg.Router.IncludeTrail)

				assert.Equal(t, 60*time.Second, cfg.Providers.HTTPTimeout)
				assert.Empty(t, cfg.Providers.OpenRouter.Headers)
			},
		},
		{
			name: "router overrides",
			envVars: map[string]string{
				"ROUTER_MAX_ATTEMPTS":           "5",
				"ROUTER_BASE_DELAY":             "250ms",
				"ROUTER_ATTEMPT_TIMEOUT":        "10s",
				"ROUTER_MAX_JITTER":             "0s",
				"ROUTER_MAX_OUTER_RETRIES":      "1",
				"ROUTER_OUTER_BACKOFF":          "2s",
				"ROUTER_DEPRIORITIZE_UNHEALTHY": "true",
				"DEFAULT_MODEL":                 "openai__gpt-4",
				"MODEL_REGISTRY_FILE":           "/etc/router/models.yaml",
				"ROUTER_INCLUDE_TRAIL":          "true",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 5, cfg.Router.MaxAttempts)
				assert.Equal(t, 250*time.Millisecond, cfg.Router.BaseDelay)
				assert.Equal(t, 10*time.Second, cfg.Router.AttemptTimeout)
				assert.Equal(t, time.Duration(0), cfg.Router.MaxJitter)
				assert.Equal(t, 1, cfg.Router.MaxOuterRetries)
				assert.Equal(t, 2*time.Second, cfg.Router.OuterBackoff)
				assert.True(t, cfg.Router.DeprioritizeUnhealthy)
				assert.Equal(t, "openai__gpt-4", cfg.Router.DefaultModel)
				assert.Equal(t, "/etc/router/models.yaml", cfg.Router.RegistryFile)
				assert.True(t, cfg.Router.IncludeTrail)
			},
		},
		{
			name: "provider endpoints",
			envVars: map[string]string{
				"OLLAMA_BASE_URL":       "http://ollama:11434/v1",
				"OPENROUTER_SITE_URL":   "https://example.com",
				"OPENROUTER_APP_NAME":   "model-router",
				"PROVIDER_HTTP_TIMEOUT": "15s",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "http://ollama:11434/v1", cfg.Providers.Ollama.BaseURL)
				assert.Equal(t, "https://example.com", cfg.Providers.OpenRouter.Headers["HTTP-Referer"])
				assert.Equal(t, "model-router", cfg.Providers.OpenRouter.Headers["X-Title"])
				assert.Equal(t, 15*time.Second, cfg.Providers.HTTPTimeout)
			},
		},
		{
			name: "database from DB_HOST",
			envVars: map[string]string{
				"DB_HOST":           "db.example.com",
				"DB_PORT":           "5433",
				"DB_MAX_OPEN_CONNS": "50",
				"DB_MAX_IDLE_CONNS": "10",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				require.NotNil(t, cfg.Database)
				assert.True(t, cfg.AuditEnabled())
				assert.Equal(t, "db.example.com", cfg.Database.Host)
				assert.Equal(t, 5433, cfg.Database.Port)
				assert.Equal(t, "router", cfg.Database.User)
				assert.Equal(t, 50, cfg.Database.MaxOpenConns)
				assert.Equal(t, 10, cfg.Database.MaxIdleConns)
			},
		},
		{
			name: "database from DATABASE_URL",
			envVars: map[string]string{
				"DATABASE_URL": "postgres://u:p@pg:5432/router?sslmode=disable",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				require.NotNil(t, cfg.Database)
				assert.Equal(t, "postgres://u:p@pg:5432/router?sslmode=disable", cfg.Database.DSN())
				assert.Equal(t, "host=pg port=5432 database=router", cfg.Database.LogString())
			},
		},
		{
			name: "observability configuration",
			envVars: map[string]string{
				"LOG_LEVEL":         "debug",
				"LOG_FORMAT":        "text",
				"METRICS_ENABLED":   "false",
				"METRICS_NAMESPACE": "router",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Observability.LogLevel)
				assert.Equal(t, "text", cfg.Observability.LogFormat)
				assert.False(t, cfg.Observability.MetricsEnabled)
				assert.Equal(t, "router", cfg.Observability.MetricsNamespace)
			},
		},
		{
			name: "PORT env var takes precedence over SERVER_PORT",
			envVars: map[string]string{
				"PORT":        "9443",
				"SERVER_PORT": "9000",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9443, cfg.Server.Port)
			},
		},
		{
			name: "SERVER_PORT env var when PORT not set",
			envVars: map[string]string{
				"SERVER_PORT": "9000",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9000, cfg.Server.Port)
			},
		},
		{
			name: "zero attempts rejected",
			envVars: map[string]string{
				"ROUTER_MAX_ATTEMPTS": "0",
			},
			wantErr: true,
		},
		{
			name: "bad log format rejected",
			envVars: map[string]string{
				"LOG_FORMAT": "xml",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			// Set test environment variables
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			// Create config
			cfg, err := New(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Router: RouterConfig{
			MaxAttempts:     3,
			AttemptTimeout:  time.Second,
			MaxOuterRetries: 3,
			DefaultModel:    "google__gemini-flash",
		},
		Audit: AuditConfig{Workers: 1},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config without database",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "database host without user",
			mutate: func(c *Config) {
				c.Database = &DatabaseConfig{Host: "localhost", Database: "db"}
			},
			wantErr: true,
			errMsg:  "database user is required",
		},
		{
			name: "database host without name",
			mutate: func(c *Config) {
				c.Database = &DatabaseConfig{Host: "localhost", User: "u"}
			},
			wantErr: true,
			errMsg:  "database name is required",
		},
		{
			name: "database url needs nothing else",
			mutate: func(c *Config) {
				c.Database = &DatabaseConfig{ConnectionString: "postgres://x"}
			},
			wantErr: false,
		},
		{
			name:    "zero outer retries",
			mutate:  func(c *Config) { c.Router.MaxOuterRetries = 0 },
			wantErr: true,
			errMsg:  "max outer retries",
		},
		{
			name:    "zero attempt timeout",
			mutate:  func(c *Config) { c.Router.AttemptTimeout = 0 },
			wantErr: true,
			errMsg:  "attempt timeout",
		},
		{
			name:    "negative backoff",
			mutate:  func(c *Config) { c.Router.OuterBackoff = -time.Second },
			wantErr: true,
			errMsg:  "must not be negative",
		},
		{
			name:    "missing default model",
			mutate:  func(c *Config) { c.Router.DefaultModel = "" },
			wantErr: true,
			errMsg:  "default model",
		},
		{
			name:    "missing log level",
			mutate:  func(c *Config) { c.Observability.LogLevel = "" },
			wantErr: true,
			errMsg:  "log level is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		want        bool
	}{
		{"production", "production", true},
		{"prod", "prod", true},
		{"development", "development", false},
		{"dev", "dev", false},
		{"staging", "staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.want, cfg.IsProduction())
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Environment: "dev"}
	assert.True(t, cfg.IsDevelopment())

	cfg.Environment = "staging"
	assert.False(t, cfg.IsDevelopment())
}

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
	assert.Equal(t, expected, cfg.DSN())
	assert.Equal(t, "host=localhost port=5432 database=testdb", cfg.LogString())
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{
		Host: "0.0.0.0",
		Port: 8080,
	}

	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue int
		want         int
	}{
		{"valid int", "TEST_INT", "42", 10, 42},
		{"empty value", "TEST_INT", "", 10, 10},
		{"invalid int", "TEST_INT", "not-a-number", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv(tt.key, tt.value)
			}
			got := getEnvAsInt(tt.key, tt.defaultValue)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue time.Duration
		want         time.Duration
	}{
		{"valid duration", "1500ms", time.Second, 1500 * time.Millisecond},
		{"empty value", "", time.Second, time.Second},
		{"invalid duration", "soon", time.Second, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv("TEST_DURATION", tt.value)
			}
			assert.Equal(t, tt.want, getEnvAsDuration("TEST_DURATION", tt.defaultValue))
		})
	}
}

func TestGetEnvAsBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", "TEST_BOOL", "true", false, true},
		{"false", "TEST_BOOL", "false", true, false},
		{"empty value", "TEST_BOOL", "", true, true},
		{"invalid bool", "TEST_BOOL", "not-a-bool", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv(tt.key, tt.value)
			}
			got := getEnvAsBool(tt.key, tt.defaultValue)
			assert.Equal(t, tt.want, got)
		})
	}
}

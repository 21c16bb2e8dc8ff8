package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Router        RouterConfig
	Providers     ProvidersConfig
	Database      *DatabaseConfig // Optional: generation audit trail. When nil, auditing is disabled.
	Audit         AuditConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// RouterConfig holds retry, timeout and fallback settings
type RouterConfig struct {
	MaxAttempts           int
	BaseDelay             time.Duration
	AttemptTimeout        time.Duration
	MaxJitter             time.Duration
	MaxOuterRetries       int
	OuterBackoff          time.Duration
	DeprioritizeUnhealthy bool
	DefaultModel          string
	RegistryFile          string // Empty means the embedded model table
	IncludeTrail          bool   // Return the per-model attempt log to clients
}

// ProvidersConfig holds provider endpoints. API keys are not captured here;
// they are read from the environment on every call.
type ProvidersConfig struct {
	OpenAI      ProviderEndpoint
	Anthropic   ProviderEndpoint
	Gemini      ProviderEndpoint
	DeepSeek    ProviderEndpoint
	OpenRouter  ProviderEndpoint
	Ollama      ProviderEndpoint
	HTTPTimeout time.Duration
}

// ProviderEndpoint holds per-provider HTTP settings
type ProviderEndpoint struct {
	BaseURL string
	Headers map[string]string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuditConfig holds the async generation audit settings
type AuditConfig struct {
	Workers    int
	BufferSize int
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel         string
	LogFormat        string // json or text
	MetricsEnabled   bool
	MetricsNamespace string
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 5*time.Minute),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 5*time.Minute),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Router: RouterConfig{
			MaxAttempts:           getEnvAsInt("ROUTER_MAX_ATTEMPTS", 3),
			BaseDelay:             getEnvAsDuration("ROUTER_BASE_DELAY", 1*time.Second),
			AttemptTimeout:        getEnvAsDuration("ROUTER_ATTEMPT_TIMEOUT", 30*time.Second),
			MaxJitter:             getEnvAsDuration("ROUTER_MAX_JITTER", 1*time.Second),
			MaxOuterRetries:       getEnvAsInt("ROUTER_MAX_OUTER_RETRIES", 3),
			OuterBackoff:          getEnvAsDuration("ROUTER_OUTER_BACKOFF", 1*time.Second),
			DeprioritizeUnhealthy: getEnvAsBool("ROUTER_DEPRIORITIZE_UNHEALTHY", false),
			DefaultModel:          getEnv("DEFAULT_MODEL", "google__gemini-flash"),
			RegistryFile:          getEnv("MODEL_REGISTRY_FILE", ""),
			IncludeTrail:          getEnvAsBool("ROUTER_INCLUDE_TRAIL", false),
		},
		Providers: ProvidersConfig{
			OpenAI:    ProviderEndpoint{BaseURL: getEnv("OPENAI_BASE_URL", "")},
			Anthropic: ProviderEndpoint{BaseURL: getEnv("ANTHROPIC_BASE_URL", "")},
			Gemini:    ProviderEndpoint{BaseURL: getEnv("GEMINI_BASE_URL", "")},
			DeepSeek:  ProviderEndpoint{BaseURL: getEnv("DEEPSEEK_BASE_URL", "")},
			OpenRouter: ProviderEndpoint{
				BaseURL: getEnv("OPENROUTER_BASE_URL", ""),
				Headers: openRouterHeaders(),
			},
			Ollama:      ProviderEndpoint{BaseURL: getEnv("OLLAMA_BASE_URL", "")},
			HTTPTimeout: getEnvAsDuration("PROVIDER_HTTP_TIMEOUT", 60*time.Second),
		},
		Database: loadDatabaseConfig(),
		Audit: AuditConfig{
			Workers:    getEnvAsInt("AUDIT_WORKERS", 2),
			BufferSize: getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
		},
		Observability: ObservabilityConfig{
			LogLevel:         getEnv("LOG_LEVEL", "info"),
			LogFormat:        getEnv("LOG_FORMAT", "json"),
			MetricsEnabled:   getEnvAsBool("METRICS_ENABLED", true),
			MetricsNamespace: getEnv("METRICS_NAMESPACE", "model_router"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Database validation (optional; when DB_HOST is used the credentials must be complete)
	if c.Database != nil && c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	// Router validation
	if c.Router.MaxAttempts < 1 {
		return fmt.Errorf("router max attempts must be at least 1")
	}
	if c.Router.MaxOuterRetries < 1 {
		return fmt.Errorf("router max outer retries must be at least 1")
	}
	if c.Router.AttemptTimeout <= 0 {
		return fmt.Errorf("router attempt timeout must be positive")
	}
	if c.Router.BaseDelay < 0 || c.Router.MaxJitter < 0 || c.Router.OuterBackoff < 0 {
		return fmt.Errorf("router delays must not be negative")
	}
	if c.Router.DefaultModel == "" {
		return fmt.Errorf("default model is required")
	}

	if c.Audit.Workers < 1 {
		return fmt.Errorf("audit workers must be at least 1")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	switch c.Observability.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log format must be json or text, got %q", c.Observability.LogFormat)
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// AuditEnabled reports whether a database is configured for the audit trail
func (c *Config) AuditEnabled() bool {
	return c.Database != nil
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars.
// Returns nil when neither DATABASE_URL nor DB_HOST is set.
func loadDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return &DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	if getEnv("DB_HOST", "") == "" {
		return nil
	}
	return &DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "router"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "model_router"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// openRouterHeaders returns the optional attribution headers OpenRouter accepts
func openRouterHeaders() map[string]string {
	headers := make(map[string]string)
	if site := getEnv("OPENROUTER_SITE_URL", ""); site != "" {
		headers["HTTP-Referer"] = site
	}
	if name := getEnv("OPENROUTER_APP_NAME", ""); name != "" {
		headers["X-Title"] = name
	}
	return headers
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

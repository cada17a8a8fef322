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

	"github.com/upb/omniagent/internal/health"
	"github.com/upb/omniagent/internal/router"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Backends      BackendsConfig
	Health        HealthConfig
	Session       SessionConfig
	Database      DatabaseConfig
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
}

// BackendsConfig holds the local runtime and cloud endpoints the router
// chooses between.
type BackendsConfig struct {
	// APIKey is the single cloud credential; its prefix selects OpenAI or OpenRouter.
	APIKey string

	OllamaBaseURL     string
	OpenAIBaseURL     string
	OpenRouterBaseURL string

	LocalTextModel   string
	LocalVisionModel string
	OpenAIModel      string
	OpenRouterModel  string

	// Timeout bounds each backend attempt.
	Timeout time.Duration
}

// HealthConfig holds availability probing configuration
type HealthConfig struct {
	CacheTTL     time.Duration
	ProbeTimeout time.Duration
}

// SessionConfig holds defaults for new sessions
type SessionConfig struct {
	PrivacyDefault string
}

// DatabaseConfig holds the optional PostgreSQL routing-event log configuration.
// The log is disabled when ConnectionString is empty.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	AuditBufferSize  int
	AuditWorkers     int
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or text
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := Load()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Load reads the environment without validating it
func Load() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 150*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Backends: BackendsConfig{
			APIKey:            strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			LocalTextModel:    getEnv("LOCAL_TEXT_MODEL", "llama3:8b"),
			LocalVisionModel:  getEnv("LOCAL_VISION_MODEL", "llava"),
			OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o"),
			OpenRouterModel:   getEnv("OPENROUTER_MODEL", "anthropic/claude-3.5-sonnet"),
			Timeout:           getBackendTimeout(),
		},
		Health: HealthConfig{
			CacheTTL:     getEnvAsDuration("HEALTH_CACHE_TTL", health.DefaultTTL),
			ProbeTimeout: getEnvAsDuration("HEALTH_PROBE_TIMEOUT", health.DefaultProbeTimeout),
		},
		Session: SessionConfig{
			PrivacyDefault: getEnv("PRIVACY_DEFAULT", string(router.PrivacyNormal)),
		},
		Database: DatabaseConfig{
			ConnectionString: getEnv("DATABASE_URL", ""),
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			AuditBufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			AuditWorkers:     getEnvAsInt("AUDIT_WORKERS", 2),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	if _, err := router.ParsePrivacyMode(c.Session.PrivacyDefault); err != nil {
		return fmt.Errorf("PRIVACY_DEFAULT: %w", err)
	}

	if c.Backends.Timeout <= 0 {
		return fmt.Errorf("backend timeout must be positive")
	}
	u, err := url.Parse(c.Backends.OllamaBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid OLLAMA_BASE_URL %q", c.Backends.OllamaBaseURL)
	}

	if c.Health.CacheTTL <= 0 {
		return fmt.Errorf("health cache TTL must be positive")
	}
	if c.Health.ProbeTimeout <= 0 {
		return fmt.Errorf("health probe timeout must be positive")
	}

	if c.Database.Enabled() {
		if c.Database.AuditBufferSize <= 0 || c.Database.AuditWorkers <= 0 {
			return fmt.Errorf("audit buffer size and worker count must be positive")
		}
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
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

// Mode returns the parsed default privacy mode. Validate has already
// rejected unknown values.
func (c *SessionConfig) Mode() router.PrivacyMode {
	mode, err := router.ParsePrivacyMode(c.PrivacyDefault)
	if err != nil {
		return router.PrivacyNormal
	}
	return mode
}

// Catalog returns the backend identifiers for the configured models.
func (c *BackendsConfig) Catalog() router.Catalog {
	return router.Catalog{
		LocalText:   "ollama/" + c.LocalTextModel,
		LocalVision: "ollama/" + c.LocalVisionModel,
		OpenAI:      "openai/" + c.OpenAIModel,
		OpenRouter:  "openrouter/" + c.OpenRouterModel,
	}
}

// KeyHint returns a redacted form of the cloud credential for diagnostics.
func (c *BackendsConfig) KeyHint() string {
	return health.KeyHint(c.APIKey)
}

// Enabled reports whether the routing-event log is configured
func (c *DatabaseConfig) Enabled() bool {
	return c.ConnectionString != ""
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return c.ConnectionString
}

// LogString returns a safe string for logging (no password).
func (c *DatabaseConfig) LogString() string {
	u, err := url.Parse(c.ConnectionString)
	if err != nil || u.Host == "" {
		return "host=<from DATABASE_URL>"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	db := strings.TrimPrefix(u.Path, "/")
	return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, db)
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

// getBackendTimeout reads BACKEND_TIMEOUT, then the LITELLM_TIMEOUT alias.
func getBackendTimeout() time.Duration {
	if os.Getenv("BACKEND_TIMEOUT") != "" {
		return getEnvAsSeconds("BACKEND_TIMEOUT", router.DefaultAttemptTimeout)
	}
	return getEnvAsSeconds("LITELLM_TIMEOUT", router.DefaultAttemptTimeout)
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

// getEnvAsSeconds accepts a bare number of seconds ("60") or a duration ("60s").
func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	if secs, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return getEnvAsDuration(key, defaultValue)
}

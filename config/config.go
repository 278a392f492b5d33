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
	"github.com/upb/llm-failover/models"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	AuditDatabase *DatabaseConfig // Optional: separate DB for switch events. When nil, the main DB is used.
	Connectivity  ConnectivityConfig
	Settings      SettingsConfig
	Auth          AuthConfig
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
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
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

// ConnectivityConfig holds probe and sweep tuning
type ConnectivityConfig struct {
	ProbeTimeout         time.Duration
	SlowLatencyThreshold time.Duration
	SweepInterval        time.Duration
	MaxConcurrency       int
	BodySampleBytes      int64
	HistorySize          int
	ProvidersFile        string // JSON seed of provider reference data
	AnthropicVersion     string
}

// SettingsConfig holds the initial runtime settings
type SettingsConfig struct {
	AutoConnectivityTest bool
	EnableSwitchNotify   bool
	EnableRoundRobin     bool
	ProxyAddress         string
	ProxyType            string
	ProxyClaude          bool
	ProxyCodex           bool
	ProxyGemini          bool
	ProxyCustom          bool
}

// AuthConfig holds bearer token configuration for mutating endpoints
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// AuditConfig holds switch event recorder configuration
type AuditConfig struct {
	BufferSize  int
	WorkerCount int
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
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
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*"}),
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
		Database:      loadDatabaseConfig(),
		AuditDatabase: loadAuditDatabaseConfig(),
		Connectivity: ConnectivityConfig{
			ProbeTimeout:         getEnvAsDuration("PROBE_TIMEOUT", 10*time.Second),
			SlowLatencyThreshold: getEnvAsDuration("SLOW_LATENCY_THRESHOLD", 5*time.Second),
			SweepInterval:        getEnvAsDuration("SWEEP_INTERVAL", 60*time.Second),
			MaxConcurrency:       getEnvAsInt("SWEEP_MAX_CONCURRENCY", 0),
			BodySampleBytes:      int64(getEnvAsInt("PROBE_BODY_SAMPLE_BYTES", 4096)),
			HistorySize:          getEnvAsInt("RESULT_HISTORY_SIZE", 0),
			ProvidersFile:        getEnv("PROVIDERS_FILE", ""),
			AnthropicVersion:     getEnv("ANTHROPIC_API_VERSION", ""),
		},
		Settings: SettingsConfig{
			AutoConnectivityTest: getEnvAsBool("AUTO_CONNECTIVITY_TEST", false),
			EnableSwitchNotify:   getEnvAsBool("ENABLE_SWITCH_NOTIFY", true),
			EnableRoundRobin:     getEnvAsBool("ENABLE_ROUND_ROBIN", false),
			ProxyAddress:         getEnv("PROXY_ADDRESS", ""),
			ProxyType:            strings.ToLower(getEnv("PROXY_TYPE", "http")),
			ProxyClaude:          getEnvAsBool("PROXY_CLAUDE", false),
			ProxyCodex:           getEnvAsBool("PROXY_CODEX", false),
			ProxyGemini:          getEnvAsBool("PROXY_GEMINI", false),
			ProxyCustom:          getEnvAsBool("PROXY_CUSTOM", false),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_JWT_ISSUER", ""),
		},
		Audit: AuditConfig{
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			WorkerCount: getEnvAsInt("AUDIT_WORKER_COUNT", 2),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
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
	// Database is optional; when configured by fields it must be complete
	if c.Database.Enabled() && c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}
	if c.AuditDatabase != nil && !c.Database.Enabled() {
		return fmt.Errorf("audit database requires the main database to be configured")
	}

	// Connectivity validation
	if c.Connectivity.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive")
	}
	if c.Connectivity.SlowLatencyThreshold < 0 {
		return fmt.Errorf("slow latency threshold must not be negative")
	}
	if c.Connectivity.SlowLatencyThreshold >= c.Connectivity.ProbeTimeout {
		return fmt.Errorf("slow latency threshold (%v) must be below the probe timeout (%v)",
			c.Connectivity.SlowLatencyThreshold, c.Connectivity.ProbeTimeout)
	}
	if c.Connectivity.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if c.Connectivity.MaxConcurrency < 0 {
		return fmt.Errorf("sweep max concurrency cannot be negative")
	}
	if c.Connectivity.BodySampleBytes <= 0 {
		return fmt.Errorf("probe body sample size must be positive")
	}
	if c.Connectivity.HistorySize < 0 {
		return fmt.Errorf("result history size must not be negative")
	}

	// Proxy validation
	switch c.Settings.ProxyType {
	case "", "http", "https", "socks5":
	default:
		return fmt.Errorf("unknown proxy type %q", c.Settings.ProxyType)
	}

	// Auth validation (required in production)
	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth JWT secret is required in production")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// AppSettings converts the configured initial settings into the runtime settings document
func (s SettingsConfig) AppSettings() models.AppSettings {
	return models.AppSettings{
		AutoConnectivityTest: s.AutoConnectivityTest,
		EnableSwitchNotify:   s.EnableSwitchNotify,
		EnableRoundRobin:     s.EnableRoundRobin,
		ProxyAddress:         s.ProxyAddress,
		ProxyType:            s.ProxyType,
		ProxyClaude:          s.ProxyClaude,
		ProxyCodex:           s.ProxyCodex,
		ProxyGemini:          s.ProxyGemini,
		ProxyCustom:          s.ProxyCustom,
	}.Normalized()
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Enabled reports whether a database was configured at all
func (c *DatabaseConfig) Enabled() bool {
	return c.ConnectionString != "" || c.Host != ""
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
// Without DATABASE_URL or DB_HOST the database stays disabled.
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", ""),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", ""),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "failover"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// loadAuditDatabaseConfig loads audit DB config from DATABASE_URL_AUDIT.
// Returns nil when not set (switch events use the main DB).
func loadAuditDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("DATABASE_URL_AUDIT", "")
	if dbURL == "" {
		return nil
	}
	return &DatabaseConfig{
		ConnectionString: dbURL,
		MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
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

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

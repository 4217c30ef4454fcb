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

// Storage backends
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config represents the complete application configuration
type Config struct {
	Server         ServerConfig
	StorageBackend string // postgres or memory
	Database       DatabaseConfig
	AuditDatabase  *DatabaseConfig // Optional: separate DB for audit logs. When nil, audit uses main DB.
	Redis          RedisConfig
	Oracle         OracleConfig
	Kafka          KafkaConfig
	Rules          RulesConfig
	Actions        ActionsConfig
	Auth           AuthConfig
	Audit          AuditConfig
	Observability  ObservabilityConfig
	Environment    string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	TLS             TLSConfig
}

// TLSConfig enables HTTPS on the API listener
type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
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

// RedisConfig holds Redis configuration for the retry counter backend
type RedisConfig struct {
	RetryBackend string // postgres, redis or memory
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string
}

// OracleConfig holds decision oracle configuration.
// The oracle speaks the OpenAI chat completions protocol.
type OracleConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Timeout        time.Duration
	Timezone       string
	MaxConcurrency int
}

// KafkaConfig holds escalation notification configuration.
// Notifications are logged only when no brokers are configured.
type KafkaConfig struct {
	Brokers         []string
	EscalationTopic string
}

// RulesConfig holds rule lookup caching configuration.
// A zero CacheTTL disables the cache.
type RulesConfig struct {
	CacheTTL  time.Duration
	CacheSize int
}

// ActionsConfig holds configuration for the built-in actions
type ActionsConfig struct {
	WeatherURL     string
	WeatherTimeout time.Duration
}

// AuthConfig holds bearer token configuration
type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration
}

// AuditConfig holds async audit worker configuration
type AuditConfig struct {
	BufferSize  int
	WorkerCount int
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console

	ServiceName string
	// OTLPEndpoint is the OTLP/HTTP collector (host:port); empty keeps spans in-process
	OTLPEndpoint string
	OTLPInsecure bool
	TraceSampler string
	TraceRatio   float64
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
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
			TLS: TLSConfig{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", BackendPostgres)),
		Database:       loadDatabaseConfig(),
		AuditDatabase:  loadAuditDatabaseConfig(),
		Redis: RedisConfig{
			RetryBackend: strings.ToLower(getEnv("RETRY_BACKEND", "")),
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			KeyPrefix:    getEnv("REDIS_KEY_PREFIX", "gate:retries"),
		},
		Oracle: OracleConfig{
			BaseURL:        getEnv("ORACLE_BASE_URL", "http://localhost:11434/v1"),
			APIKey:         getEnv("ORACLE_API_KEY", ""),
			Model:          getEnv("ORACLE_MODEL", "llama3"),
			Timeout:        getEnvAsDuration("ORACLE_TIMEOUT", 30*time.Second),
			Timezone:       getEnv("ORACLE_TIMEZONE", "UTC"),
			MaxConcurrency: getEnvAsInt("ORACLE_MAX_CONCURRENCY", 8),
		},
		Kafka: KafkaConfig{
			Brokers:         getEnvAsList("KAFKA_BROKERS", nil),
			EscalationTopic: getEnv("KAFKA_ESCALATION_TOPIC", "gate.escalations"),
		},
		Rules: RulesConfig{
			CacheTTL:  getEnvAsDuration("RULE_CACHE_TTL", 0),
			CacheSize: getEnvAsInt("RULE_CACHE_SIZE", 1000),
		},
		Actions: ActionsConfig{
			WeatherURL:     getEnv("WEATHER_URL", "https://wttr.in"),
			WeatherTimeout: getEnvAsDuration("WEATHER_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:      getEnv("JWT_SECRET", ""),
			JWTIssuer:      getEnv("JWT_ISSUER", "action-gate"),
			AccessTokenTTL: getEnvAsDuration("ACCESS_TOKEN_TTL", time.Hour),
		},
		Audit: AuditConfig{
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 10000),
			WorkerCount: getEnvAsInt("AUDIT_WORKER_COUNT", 5),
		},
		Observability: ObservabilityConfig{
			LogLevel:     getEnv("LOG_LEVEL", "info"),
			LogFormat:    getEnv("LOG_FORMAT", "json"),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "action-gate"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPInsecure: getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			TraceSampler: getEnv("OTEL_TRACES_SAMPLER", "parentbased"),
			TraceRatio:   getEnvAsFloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// Retry counters follow the main store unless overridden
	if cfg.Redis.RetryBackend == "" {
		cfg.Redis.RetryBackend = cfg.StorageBackend
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unsupported storage backend %q", c.StorageBackend)
	}

	switch c.Redis.RetryBackend {
	case BackendPostgres, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unsupported retry backend %q", c.Redis.RetryBackend)
	}
	if c.Redis.RetryBackend == BackendPostgres && c.StorageBackend != BackendPostgres {
		return fmt.Errorf("postgres retry backend requires STORAGE_BACKEND=postgres")
	}
	if c.Redis.RetryBackend == BackendRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required for the redis retry backend")
	}

	// Database validation (DATABASE_URL or DB_* vars)
	if c.StorageBackend == BackendPostgres {
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	}

	if c.Oracle.BaseURL == "" {
		return fmt.Errorf("oracle base URL is required")
	}
	if c.Oracle.Model == "" {
		return fmt.Errorf("oracle model is required")
	}
	if c.Oracle.MaxConcurrency < 1 {
		return fmt.Errorf("oracle max concurrency must be at least 1")
	}
	if _, err := time.LoadLocation(c.Oracle.Timezone); err != nil {
		return fmt.Errorf("invalid oracle timezone %q: %w", c.Oracle.Timezone, err)
	}

	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("TLS requires both a certificate and a key file")
	}

	// Auth validation (required in production)
	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required in production")
	}

	if c.Rules.CacheTTL > 0 && c.Rules.CacheSize < 1 {
		return fmt.Errorf("rule cache size must be at least 1")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	if c.Observability.TraceRatio < 0 || c.Observability.TraceRatio > 1 {
		return fmt.Errorf("trace sampling ratio must be between 0 and 1")
	}

	return nil
}

// OracleLocation returns the timezone embedded in oracle prompts
func (c *OracleConfig) OracleLocation() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
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

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
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
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "gate"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "action_gate"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// loadAuditDatabaseConfig loads audit DB config from DATABASE_URL_AUDIT.
// Returns nil when not set (audit uses main DB).
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

// getPort prefers PORT (set by most PaaS runtimes) over SERVER_PORT
func getPort() int {
	if p := getEnvAsInt("PORT", 0); p > 0 {
		return p
	}
	return getEnvAsInt("SERVER_PORT", 8080)
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// parseEnv reads key with parse, falling back to defaultValue when the
// variable is unset or malformed
func parseEnv[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	value, err := parse(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	return parseEnv(key, defaultValue, strconv.Atoi)
}

func getEnvAsBool(key string, defaultValue bool) bool {
	return parseEnv(key, defaultValue, strconv.ParseBool)
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	return parseEnv(key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	return parseEnv(key, defaultValue, time.ParseDuration)
}

// getEnvAsList splits a comma-separated variable, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	return parseEnv(key, defaultValue, func(s string) ([]string, error) {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	})
}

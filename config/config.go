package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"badgekit/adapters/redis"
	"badgekit/adapters/sqlx"
	"badgekit/core"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration
type Config struct {
	Environment Environment `json:"environment" env:"BADGEKIT_ENV"`
	Profile     string      `json:"profile" env:"BADGEKIT_PROFILE"`

	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
	Engine   EngineConfig   `json:"engine"`
	Webhook  WebhookConfig  `json:"webhook"`
	Security SecurityConfig `json:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" env:"BADGEKIT_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" env:"BADGEKIT_SERVER_PATH_PREFIX"`
	CORSOrigins       []string      `json:"cors_origins,omitempty" env:"BADGEKIT_SERVER_CORS_ORIGINS"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"BADGEKIT_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"BADGEKIT_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"BADGEKIT_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"BADGEKIT_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"BADGEKIT_SERVER_SHUTDOWN_TIMEOUT"`
}

// StorageConfig selects and configures the persistence adapter.
type StorageConfig struct {
	Adapter string      `json:"adapter" env:"BADGEKIT_STORAGE_ADAPTER"`
	Redis   RedisConfig `json:"redis,omitempty"`
	SQL     SQLConfig   `json:"sql,omitempty"`
	File    FileConfig  `json:"file,omitempty"`
}

type RedisConfig struct {
	Addr           string        `json:"addr" env:"BADGEKIT_REDIS_ADDR"`
	Password       string        `json:"password,omitempty" env:"BADGEKIT_REDIS_PASSWORD"`
	DB             int           `json:"db" env:"BADGEKIT_REDIS_DB"`
	PoolSize       int           `json:"pool_size" env:"BADGEKIT_REDIS_POOL_SIZE"`
	DialTimeout    time.Duration `json:"dial_timeout" env:"BADGEKIT_REDIS_DIAL_TIMEOUT"`
	ConnectRetries int           `json:"connect_retries" env:"BADGEKIT_REDIS_CONNECT_RETRIES"`
}

// Adapter converts to the redis adapter's own config, keeping its defaults
// for anything left unset here.
func (r RedisConfig) Adapter() redis.Config {
	c := redis.DefaultConfig()
	c.Addr = r.Addr
	c.Password = r.Password
	c.DB = r.DB
	if r.PoolSize > 0 {
		c.PoolSize = r.PoolSize
	}
	if r.DialTimeout > 0 {
		c.DialTimeout = r.DialTimeout
	}
	if r.ConnectRetries > 0 {
		c.ConnectRetries = r.ConnectRetries
	}
	return c
}

type SQLConfig struct {
	Driver          string        `json:"driver" env:"BADGEKIT_SQL_DRIVER"`
	DSN             string        `json:"dsn,omitempty" env:"BADGEKIT_SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" env:"BADGEKIT_SQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"BADGEKIT_SQL_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"BADGEKIT_SQL_CONN_MAX_LIFETIME"`
	AutoMigrate     bool          `json:"auto_migrate" env:"BADGEKIT_SQL_AUTO_MIGRATE"`
}

// Adapter converts to the sqlx adapter's config.
func (s SQLConfig) Adapter() sqlx.Config {
	c := sqlx.DefaultConfig(sqlx.Driver(s.Driver))
	c.DSN = s.DSN
	c.AutoMigrate = s.AutoMigrate
	if s.MaxOpenConns > 0 {
		c.MaxOpenConns = s.MaxOpenConns
	}
	if s.MaxIdleConns > 0 {
		c.MaxIdleConns = s.MaxIdleConns
	}
	if s.ConnMaxLifetime > 0 {
		c.ConnMaxLifetime = s.ConnMaxLifetime
	}
	return c
}

// FileConfig holds JSON file storage configuration
type FileConfig struct {
	Path string `json:"path" env:"BADGEKIT_STORAGE_FILE_PATH"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" env:"BADGEKIT_LOG_LEVEL"`
	Format     string            `json:"format" env:"BADGEKIT_LOG_FORMAT"`
	Output     string            `json:"output" env:"BADGEKIT_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty" env:"BADGEKIT_LOG_ATTRIBUTES"`
}

// EngineConfig tunes evaluation scheduling.
type EngineConfig struct {
	// CatalogPath points at the JSON badge catalog.
	CatalogPath     string        `json:"catalog_path" env:"BADGEKIT_CATALOG_PATH"`
	DebounceWindow  time.Duration `json:"debounce_window" env:"BADGEKIT_DEBOUNCE_WINDOW"`
	RolloverEnabled bool          `json:"rollover_enabled" env:"BADGEKIT_ROLLOVER_ENABLED"`
	// RolloverHour is the UTC hour the daily rollover fires at.
	RolloverHour int  `json:"rollover_hour" env:"BADGEKIT_ROLLOVER_HOUR"`
	AsyncEvents  bool `json:"async_events" env:"BADGEKIT_ASYNC_EVENTS"`
}

// WebhookConfig lists outbound event endpoints.
type WebhookConfig struct {
	Endpoints []string         `json:"endpoints,omitempty" env:"BADGEKIT_WEBHOOK_ENDPOINTS"`
	Retries   int              `json:"retries" env:"BADGEKIT_WEBHOOK_RETRIES"`
	Timeout   time.Duration    `json:"timeout" env:"BADGEKIT_WEBHOOK_TIMEOUT"`
	Types     []core.EventType `json:"types,omitempty" env:"BADGEKIT_WEBHOOK_TYPES"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" env:"BADGEKIT_SECURITY_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty"`
	APIKeys         []string        `json:"api_keys,omitempty" env:"BADGEKIT_SECURITY_API_KEYS"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" env:"BADGEKIT_SECURITY_RATE_LIMIT_RPM"`
	BurstSize         int `json:"burst_size" env:"BADGEKIT_SECURITY_RATE_LIMIT_BURST"`
}

// loadDotEnv pulls BADGEKIT_ENV_FILE, or ./.env, into the process
// environment. Variables already set win.
func loadDotEnv() error {
	if path := os.Getenv("BADGEKIT_ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load()
	}
	return nil
}

// Load loads configuration from environment variables and validates it
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if p := os.Getenv("BADGEKIT_PROFILE"); p != "" {
		prof, err := LoadProfile(p)
		if err != nil {
			return nil, err
		}
		cfg = prof
	}
	return finish(cfg)
}

// LoadFromFile loads configuration from a JSON file. Environment variables
// override file values.
func LoadFromFile(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	file, err := os.Open(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}
	cleanPath := filepath.Clean(path)
	if strings.Contains(path, "..") {
		return errors.New("config file path must not traverse directories")
	}
	if !strings.HasSuffix(strings.ToLower(cleanPath), ".json") {
		return errors.New("config file must have .json extension")
	}
	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}
	return nil
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigins:       []string{"*"},
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: "memory",
			Redis: RedisConfig{
				Addr:           "localhost:6379",
				PoolSize:       10,
				DialTimeout:    5 * time.Second,
				ConnectRetries: 3,
			},
			SQL: SQLConfig{
				Driver:          string(sqlx.DriverPostgres),
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 30 * time.Minute,
				AutoMigrate:     true,
			},
			File: FileConfig{Path: "./data/badgekit.json"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Engine: EngineConfig{
			DebounceWindow:  3 * time.Second,
			RolloverEnabled: true,
			RolloverHour:    0,
			AsyncEvents:     true,
		},
		Webhook: WebhookConfig{
			Retries: 3,
			Timeout: 2 * time.Second,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
			},
			APIKeys: []string{},
		},
	}
}

// LoadProfile returns the defaults for a named deployment profile.
func LoadProfile(name string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Profile = name
	switch name {
	case "development", "default":
		cfg.Environment = EnvDevelopment
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	case "testing":
		cfg.Environment = EnvTesting
		cfg.Engine.DebounceWindow = 50 * time.Millisecond
		cfg.Engine.RolloverEnabled = false
		cfg.Engine.AsyncEvents = false
	case "staging":
		cfg.Environment = EnvStaging
		cfg.Storage.Adapter = "redis"
		cfg.Security.EnableRateLimit = true
	case "production":
		cfg.Environment = EnvProduction
		cfg.Storage.Adapter = "sql"
		cfg.Server.CORSOrigins = nil
		cfg.Security.EnableRateLimit = true
		cfg.Security.RateLimit = RateLimitConfig{RequestsPerMinute: 600, BurstSize: 50}
	default:
		return nil, fmt.Errorf("unknown profile %q", name)
	}
	return cfg, nil
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	switch c.Environment {
	case EnvDevelopment, EnvTesting, EnvStaging, EnvProduction:
	case "":
		errs = append(errs, "environment cannot be empty")
	default:
		errs = append(errs, fmt.Sprintf("unknown environment %q", c.Environment))
	}

	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"server", &c.Server},
		{"storage", &c.Storage},
		{"logging", &c.Logging},
		{"engine", &c.Engine},
		{"webhook", &c.Webhook},
		{"security", c.Security},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("%s config: %v", s.name, err))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	cfg := *c
	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = "[REDACTED]"
	}
	if cfg.Storage.Redis.Password != "" {
		cfg.Storage.Redis.Password = "[REDACTED]"
	}
	if len(cfg.Security.APIKeys) > 0 {
		cfg.Security.APIKeys = []string{"[REDACTED]"}
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}

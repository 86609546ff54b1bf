package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"badgekit/adapters/sqlx"
	"badgekit/core"
)

var validate = validator.New()

func joinErrs(errs []string) error {
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func oneOf(field, value string, valid ...string) string {
	if slices.Contains(valid, value) {
		return ""
	}
	return fmt.Sprintf("%s must be one of: %s", field, strings.Join(valid, ", "))
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	var errs []string
	if s.Address == "" {
		errs = append(errs, "address cannot be empty")
	}
	for name, d := range map[string]int64{
		"read_timeout":        int64(s.ReadTimeout),
		"write_timeout":       int64(s.WriteTimeout),
		"idle_timeout":        int64(s.IdleTimeout),
		"read_header_timeout": int64(s.ReadHeaderTimeout),
		"shutdown_timeout":    int64(s.ShutdownTimeout),
	} {
		if d <= 0 {
			errs = append(errs, name+" must be positive")
		}
	}
	slices.Sort(errs)
	return joinErrs(errs)
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	var errs []string
	if msg := oneOf("adapter", s.Adapter, "memory", "redis", "sql", "file"); msg != "" {
		errs = append(errs, msg)
	}

	switch s.Adapter {
	case "redis":
		if s.Redis.Addr == "" {
			errs = append(errs, "redis config: addr cannot be empty")
		}
		if err := validate.Var(s.Redis.Addr, "omitempty,hostname_port"); err != nil {
			errs = append(errs, fmt.Sprintf("redis config: invalid addr %q", s.Redis.Addr))
		}
	case "sql":
		if msg := oneOf("sql config: driver", s.SQL.Driver,
			string(sqlx.DriverPostgres), string(sqlx.DriverMySQL), string(sqlx.DriverSQLite)); msg != "" {
			errs = append(errs, msg)
		}
		if s.SQL.DSN == "" {
			errs = append(errs, "sql config: dsn cannot be empty")
		}
	case "file":
		if err := s.File.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("file config: %v", err))
		}
	}
	return joinErrs(errs)
}

// Validate validates file storage configuration
func (f *FileConfig) Validate() error {
	if f.Path == "" {
		return errors.New("path cannot be empty")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	var errs []string
	if msg := oneOf("level", l.Level, "debug", "info", "warn", "error"); msg != "" {
		errs = append(errs, msg)
	}
	if msg := oneOf("format", l.Format, "json", "text"); msg != "" {
		errs = append(errs, msg)
	}
	if msg := oneOf("output", l.Output, "stdout", "stderr"); msg != "" {
		errs = append(errs, msg)
	}
	return joinErrs(errs)
}

// Validate validates engine configuration
func (e *EngineConfig) Validate() error {
	var errs []string
	if e.DebounceWindow <= 0 {
		errs = append(errs, "debounce_window must be positive")
	}
	if e.RolloverHour < 0 || e.RolloverHour > 23 {
		errs = append(errs, "rollover_hour must be between 0 and 23")
	}
	return joinErrs(errs)
}

// Validate validates webhook configuration
func (w *WebhookConfig) Validate() error {
	var errs []string
	for i, ep := range w.Endpoints {
		if err := validate.Var(ep, "required,http_url"); err != nil {
			errs = append(errs, fmt.Sprintf("endpoints[%d] is not an http url", i))
		}
	}
	if w.Retries < 0 {
		errs = append(errs, "retries cannot be negative")
	}
	if len(w.Endpoints) > 0 && w.Timeout <= 0 {
		errs = append(errs, "timeout must be positive")
	}
	for _, t := range w.Types {
		if _, err := core.ParseEventType(string(t)); err != nil {
			errs = append(errs, fmt.Sprintf("types: %v", err))
			break
		}
	}
	return joinErrs(errs)
}

// Validate validates security settings.
func (s SecurityConfig) Validate() error {
	var errs []string
	if s.EnableRateLimit {
		if s.RateLimit.RequestsPerMinute <= 0 {
			errs = append(errs, "rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
		}
		if s.RateLimit.BurstSize <= 0 {
			errs = append(errs, "rate_limit.burst_size must be > 0 when rate limiting is enabled")
		}
	}
	for i, key := range s.APIKeys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Sprintf("api_keys[%d] is empty", i))
		}
	}
	return joinErrs(errs)
}

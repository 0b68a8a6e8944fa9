// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port            int           `env:"BEACON_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"BEACON_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"BEACON_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"BEACON_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Store settings.
	StoreDriver string `env:"BEACON_STORE" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"BEACON_SQLITE_PATH" envDefault:"beacon.db"`
	DBMaxConns  int    `env:"BEACON_DB_MAX_CONNS" envDefault:"4"`

	// Execution engine settings.
	EngineURL       string        `env:"BEACON_ENGINE_URL"`
	ContractTimeout time.Duration `env:"BEACON_CONTRACT_TIMEOUT" envDefault:"5s"`
	EngineTimeout   time.Duration `env:"BEACON_ENGINE_TIMEOUT" envDefault:"10s"`

	// Stage configuration file; empty uses the embedded default.
	StagesFile string `env:"BEACON_STAGES_FILE"`

	// OTEL settings.
	OTELEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"beacon"`
	OTELInsecure bool   `env:"BEACON_OTEL_INSECURE" envDefault:"false"`

	// Ingest rate limiting. RedisURL switches the limiter from in-process
	// buckets to a shared Redis bucket.
	IngestRPS   float64 `env:"BEACON_INGEST_RPS" envDefault:"50"`
	IngestBurst int     `env:"BEACON_INGEST_BURST" envDefault:"100"`
	RedisURL    string  `env:"BEACON_REDIS_URL"`

	// Operational settings.
	LogLevel            string `env:"BEACON_LOG_LEVEL" envDefault:"info"`
	MaxRequestBodyBytes int64  `env:"BEACON_MAX_REQUEST_BODY_BYTES" envDefault:"1048576"` // 1 MB
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable. Every problem is reported.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("config: DATABASE_URL is required when BEACON_STORE=postgres"))
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("config: BEACON_SQLITE_PATH is required when BEACON_STORE=sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: BEACON_STORE must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.StoreDriver))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: BEACON_PORT %d out of range", c.Port))
	}
	if c.DBMaxConns <= 0 {
		errs = append(errs, errors.New("config: BEACON_DB_MAX_CONNS must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"BEACON_READ_TIMEOUT":     c.ReadTimeout,
		"BEACON_WRITE_TIMEOUT":    c.WriteTimeout,
		"BEACON_CONTRACT_TIMEOUT": c.ContractTimeout,
		"BEACON_ENGINE_TIMEOUT":   c.EngineTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("config: %s must be positive", name))
		}
	}
	if c.IngestRPS <= 0 || c.IngestBurst <= 0 {
		errs = append(errs, errors.New("config: BEACON_INGEST_RPS and BEACON_INGEST_BURST must be positive"))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, errors.New("config: BEACON_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLogLevel maps BEACON_LOG_LEVEL onto a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: BEACON_LOG_LEVEL %q is not a valid level", s)
	}
	return level, nil
}

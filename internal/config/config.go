// Package config loads the connection manager's settings from an optional
// YAML file and PLACON_* environment variables, applying sane defaults for
// anything unset.
//
// Precedence (highest first): environment variables, config file, defaults.
//
// Example config file:
//
//	catalog_dsn: "postgres://coordinator/postgres"
//	max_conns_per_worker: 4
//	connect_timeout: 5s
//	acquire_timeout: 30s
//	log_level: info
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds every tunable of the module.
//
// Zero values are never used directly; construct via Default or Load so the
// defaults are applied.
type Settings struct {
	// CatalogDSN is the connection string for the coordinator's catalog
	// database, used by the pgx-backed catalog implementation.
	CatalogDSN string `mapstructure:"catalog_dsn"`

	// LogLevel selects the zap level: debug, info, warn, or error.
	LogLevel string `mapstructure:"log_level"`

	// MaxConnsPerWorker caps how many connections the pool keeps open to a
	// single (worker, user) pair. A StartConnection call that needs a new
	// connection once the cap is reached fails rather than queues.
	MaxConnsPerWorker int `mapstructure:"max_conns_per_worker"`

	// ConnectTimeout bounds a single dial attempt to a worker.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// AcquireTimeout is the time budget for a full AcquireConnection call,
	// including any dial it triggers. Neither the placement manager nor the
	// pool reads it; AcquireConnection is bounded only by the context it is
	// given.
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`

	// MaxNodeFailures is how many consecutive dial failures mark a worker
	// unhealthy in the pool's health tracking.
	MaxNodeFailures int `mapstructure:"max_node_failures"`
}

// Default returns the settings used when no file or environment overrides
// are present.
func Default() *Settings {
	return &Settings{
		CatalogDSN:        "postgres://localhost:5432/postgres",
		LogLevel:          "info",
		MaxConnsPerWorker: 4,
		ConnectTimeout:    5 * time.Second,
		AcquireTimeout:    30 * time.Second,
		MaxNodeFailures:   3,
	}
}

// Load reads settings from the given file path (optional; pass "" for
// defaults plus environment only) and from PLACON_* environment variables.
//
// Parameters:
//   - path: Path to a YAML config file, or "" to skip file loading
//
// Returns:
//   - Populated, validated Settings
//   - Error if the file is unreadable, malformed, or values are invalid
//
// Example:
//
//	settings, err := config.Load("/etc/placon/config.yaml")
//	if err != nil {
//	    log.Fatalf("config: %v", err)
//	}
func Load(path string) (*Settings, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("catalog_dsn", def.CatalogDSN)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("max_conns_per_worker", def.MaxConnsPerWorker)
	v.SetDefault("connect_timeout", def.ConnectTimeout)
	v.SetDefault("acquire_timeout", def.AcquireTimeout)
	v.SetDefault("max_node_failures", def.MaxNodeFailures)

	v.SetEnvPrefix("PLACON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that every setting is inside its legal range.
func (s *Settings) Validate() error {
	if s.MaxConnsPerWorker <= 0 {
		return fmt.Errorf("max_conns_per_worker must be positive, got %d", s.MaxConnsPerWorker)
	}
	if s.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive, got %v", s.ConnectTimeout)
	}
	if s.AcquireTimeout <= 0 {
		return fmt.Errorf("acquire_timeout must be positive, got %v", s.AcquireTimeout)
	}
	if s.MaxNodeFailures <= 0 {
		return fmt.Errorf("max_node_failures must be positive, got %d", s.MaxNodeFailures)
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", s.LogLevel)
	}
	return nil
}

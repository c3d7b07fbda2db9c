// Package config loads engine settings from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the runtime settings of the weft process. Flags override
// these where the CLI defines them.
type Config struct {
	// DBPath is the SQLite ledger location. ":memory:" keeps the ledger
	// in process, which forfeits at-most-once firing across restarts.
	DBPath string `env:"WEFT_DB" envDefault:"weft.db"`

	// MatchTTL is the partial-match inactivity window.
	MatchTTL time.Duration `env:"WEFT_MATCH_TTL" envDefault:"10m"`

	// QueryTimeout bounds each where-clause query call.
	QueryTimeout time.Duration `env:"WEFT_QUERY_TIMEOUT" envDefault:"5s"`

	// MaxSteps is the per-flow firing quota.
	MaxSteps int `env:"WEFT_MAX_STEPS" envDefault:"1000"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.MaxSteps <= 0 {
		return nil, fmt.Errorf("WEFT_MAX_STEPS must be positive, got %d", cfg.MaxSteps)
	}
	if cfg.MatchTTL <= 0 {
		return nil, fmt.Errorf("WEFT_MATCH_TTL must be positive, got %s", cfg.MatchTTL)
	}
	if cfg.QueryTimeout <= 0 {
		return nil, fmt.Errorf("WEFT_QUERY_TIMEOUT must be positive, got %s", cfg.QueryTimeout)
	}
	return cfg, nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all environment backed configuration for keygate.
type Config struct {
	// HTTP Server
	HTTPPort    int `env:"HTTP_PORT" envDefault:"8080"`
	MetricsPort int `env:"METRICS_PORT" envDefault:"9091"`

	// Key pools
	KeysFile string `env:"KEYGATE_KEYS_FILE" envDefault:"config/keys.yml"`

	// Dispatch behaviour
	FailureThreshold  int           `env:"KEY_FAILURE_THRESHOLD" envDefault:"3"`
	KeyCooldown       time.Duration `env:"KEY_COOLDOWN" envDefault:"5m"`
	RetryMaxAttempts  int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryInitialDelay time.Duration `env:"RETRY_INITIAL_DELAY" envDefault:"500ms"`
	RetryMaxDelay     time.Duration `env:"RETRY_MAX_DELAY" envDefault:"10s"`
	RetryJitter       float64       `env:"RETRY_JITTER" envDefault:"0.2"`

	// Upstream
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"120s"`

	// Observability / Logging
	ServiceName string `env:"SERVICE_NAME" envDefault:"keygate"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"console"`
}

// Load parses environment variables into Config and performs minimal validation.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.FailureThreshold <= 0 {
		return nil, fmt.Errorf("KEY_FAILURE_THRESHOLD must be positive, got %d", cfg.FailureThreshold)
	}
	if cfg.RetryMaxAttempts <= 0 {
		return nil, fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.RetryJitter < 0 || cfg.RetryJitter > 1 {
		return nil, fmt.Errorf("RETRY_JITTER must be within [0,1], got %f", cfg.RetryJitter)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	return cfg, nil
}

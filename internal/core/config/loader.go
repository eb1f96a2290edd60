package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/custody/internal/core/domain"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${VAR} references from the
// environment, then applies defaults and validates the result.
func Parse(data []byte) (*AppConfig, error) {
	cfg := AppConfig{Policy: domain.DefaultPolicy()}
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	if (cfg.Fees.Registration > 0 || cfg.Fees.Transfer > 0) && cfg.Fees.Treasury == "" {
		return nil, fmt.Errorf("invalid fees: %w", domain.ErrTreasuryNotConfigured)
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Identity.Timeout == 0 {
		cfg.Identity.Timeout = 5 * time.Second
	}
	if cfg.Clock.Unit == 0 {
		cfg.Clock.Unit = 10 * time.Minute
	}
	if cfg.Clock.Genesis.IsZero() {
		cfg.Clock.Genesis = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	if cfg.Relay.Interval == 0 {
		cfg.Relay.Interval = 5 * time.Second
	}
	if cfg.Relay.BatchSize == 0 {
		cfg.Relay.BatchSize = 100
	}
}

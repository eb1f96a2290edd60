package config

import (
	"time"

	"github.com/vietddude/custody/internal/core/domain"
	"github.com/vietddude/custody/internal/core/fee"
	"github.com/vietddude/custody/internal/core/worker"
	"github.com/vietddude/custody/internal/identity"
	redisclient "github.com/vietddude/custody/internal/infra/redis"
	"github.com/vietddude/custody/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	Identity IdentityConfig     `yaml:"identity"`
	Fees     fee.Config         `yaml:"fees"`
	Policy   domain.Policy      `yaml:"policy"`
	Clock    ClockConfig        `yaml:"clock"`
	Relay    worker.RelayConfig `yaml:"relay"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port       int                `yaml:"port"`
	Depositors []domain.Principal `yaml:"depositors"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// IdentityConfig selects the credential registry. With an empty URL the
// static credentials below are served from memory.
type IdentityConfig struct {
	URL         string                 `yaml:"url"`
	Timeout     time.Duration          `yaml:"timeout"`
	Breaker     identity.BreakerConfig `yaml:"breaker"`
	Credentials []identity.Credential  `yaml:"credentials"`
}

// ClockConfig maps wall time onto logical units: one unit per Unit elapsed
// since Genesis.
type ClockConfig struct {
	Genesis time.Time     `yaml:"genesis"`
	Unit    time.Duration `yaml:"unit"`
}

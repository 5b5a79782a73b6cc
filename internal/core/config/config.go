package config

import (
	"time"

	"github.com/vietddude/costwatch/internal/infra/broadcast"
	"github.com/vietddude/costwatch/internal/infra/notify"
	"github.com/vietddude/costwatch/internal/infra/resilience"
	"github.com/vietddude/costwatch/internal/infra/storage/postgres"
	"github.com/vietddude/costwatch/internal/infra/vector"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig     `yaml:"server"`
	Agent    AgentConfig      `yaml:"agent"`
	Database postgres.Config  `yaml:"database"`
	Redis    broadcast.Config `yaml:"redis"`
	Vector   vector.Config    `yaml:"vector"`
	Notify   notify.Config    `yaml:"notify"`
	Logging  LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// AgentConfig holds the optimization loop settings shared by all tenants.
type AgentConfig struct {
	Tenants       []string      `yaml:"tenants"`
	CycleInterval time.Duration `yaml:"cycle_interval"`
	// MinBatch/MaxBatch bound how many wasteful resources one cycle may
	// turn into recommendations.
	MinBatch int `yaml:"min_batch"`
	MaxBatch int `yaml:"max_batch"`
	// PendingTTL auto-rejects pending recommendations older than this.
	// 0 disables expiry.
	PendingTTL time.Duration        `yaml:"pending_ttl"`
	Retry      postgres.RetryConfig `yaml:"retry"`
	Breaker    resilience.Config    `yaml:"breaker"`
}

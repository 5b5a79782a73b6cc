package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if cfg.Agent.MinBatch > cfg.Agent.MaxBatch {
		return nil, fmt.Errorf("min_batch %d exceeds max_batch %d", cfg.Agent.MinBatch, cfg.Agent.MaxBatch)
	}

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if len(cfg.Agent.Tenants) == 0 {
		cfg.Agent.Tenants = []string{"default"}
	}
	if cfg.Agent.CycleInterval == 0 {
		cfg.Agent.CycleInterval = time.Minute
	}
	if cfg.Agent.MinBatch == 0 {
		cfg.Agent.MinBatch = 2
	}
	if cfg.Agent.MaxBatch == 0 {
		cfg.Agent.MaxBatch = 5
	}
	if cfg.Agent.Retry.MaxRetries == 0 {
		cfg.Agent.Retry.MaxRetries = 3
	}
	if cfg.Agent.Retry.BaseDelay == 0 {
		cfg.Agent.Retry.BaseDelay = 100 * time.Millisecond
	}
}

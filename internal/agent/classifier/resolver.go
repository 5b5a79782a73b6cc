package classifier

import (
	"context"
	"sync"

	"github.com/vietddude/costwatch/internal/core/domain"
)

// ResolveMode decides whether a candidate executes autonomously or waits for
// approval. Autonomous requires all of: the global toggle enabled, risk at or
// below the configured maximum, projected annual savings at or below the
// approval ceiling, and the type on the allow-list. The function depends only
// on its two inputs.
func ResolveMode(c *Candidate, cfg *domain.AgentConfiguration) domain.ExecutionMode {
	if cfg == nil || !cfg.AutonomousEnabled {
		return domain.ModeHITL
	}
	if c.RiskLevel > cfg.MaxAutonomousRisk {
		return domain.ModeHITL
	}
	if c.ProjectedAnnualSavings() > cfg.ApprovalCeiling {
		return domain.ModeHITL
	}
	if !cfg.Allows(c.Type) {
		return domain.ModeHITL
	}
	return domain.ModeAutonomous
}

// ConfigSource loads agent configuration from persistent storage.
type ConfigSource interface {
	GetAgentConfig(ctx context.Context, tenantID string) (*domain.AgentConfiguration, error)
}

// ConfigStore caches agent configuration per tenant. There is no time-based
// refresh; administrative updates call Invalidate so the next read reloads.
type ConfigStore struct {
	source ConfigSource

	mu     sync.RWMutex
	cached map[string]*domain.AgentConfiguration
}

// NewConfigStore creates an empty cache over the given source.
func NewConfigStore(source ConfigSource) *ConfigStore {
	return &ConfigStore{
		source: source,
		cached: make(map[string]*domain.AgentConfiguration),
	}
}

// Get returns the tenant's configuration, loading it on a cache miss. A
// tenant with no stored configuration gets the conservative default.
func (s *ConfigStore) Get(ctx context.Context, tenantID string) (*domain.AgentConfiguration, error) {
	s.mu.RLock()
	cfg, ok := s.cached[tenantID]
	s.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	loaded, err := s.source.GetAgentConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if loaded == nil {
		loaded = domain.DefaultAgentConfiguration(tenantID)
	}

	s.mu.Lock()
	s.cached[tenantID] = loaded
	s.mu.Unlock()
	return loaded, nil
}

// Invalidate drops the cached entry for a tenant, or every entry when
// tenantID is empty.
func (s *ConfigStore) Invalidate(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tenantID == "" {
		s.cached = make(map[string]*domain.AgentConfiguration)
		return
	}
	delete(s.cached, tenantID)
}

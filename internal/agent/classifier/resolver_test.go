package classifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vietddude/costwatch/internal/core/domain"
)

func allowAll() *domain.AgentConfiguration {
	return &domain.AgentConfiguration{
		TenantID:          "default",
		AutonomousEnabled: true,
		MaxAutonomousRisk: 5,
		ApprovalCeiling:   10000,
		AllowedTypes:      []domain.RecommendationType{domain.RecDeleteUnattached},
	}
}

func TestResolveMode(t *testing.T) {
	base := &Candidate{
		Type:                    domain.RecDeleteUnattached,
		RiskLevel:               2,
		ProjectedMonthlySavings: 40,
	}

	tests := []struct {
		name   string
		mutate func(c *Candidate, cfg *domain.AgentConfiguration)
		want   domain.ExecutionMode
	}{
		{
			name:   "all gates pass",
			mutate: func(c *Candidate, cfg *domain.AgentConfiguration) {},
			want:   domain.ModeAutonomous,
		},
		{
			name: "toggle disabled",
			mutate: func(c *Candidate, cfg *domain.AgentConfiguration) {
				cfg.AutonomousEnabled = false
			},
			want: domain.ModeHITL,
		},
		{
			name: "risk above maximum",
			mutate: func(c *Candidate, cfg *domain.AgentConfiguration) {
				c.RiskLevel = 6
			},
			want: domain.ModeHITL,
		},
		{
			name: "ceiling breach overrides low risk",
			mutate: func(c *Candidate, cfg *domain.AgentConfiguration) {
				c.ProjectedMonthlySavings = 20000
			},
			want: domain.ModeHITL,
		},
		{
			name: "type not allow-listed",
			mutate: func(c *Candidate, cfg *domain.AgentConfiguration) {
				c.Type = domain.RecRightsizing
			},
			want: domain.ModeHITL,
		},
		{
			name: "zero-value config is HITL",
			mutate: func(c *Candidate, cfg *domain.AgentConfiguration) {
				*cfg = domain.AgentConfiguration{}
			},
			want: domain.ModeHITL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cand := *base
			cfg := allowAll()
			tt.mutate(&cand, cfg)
			if got := ResolveMode(&cand, cfg); got != tt.want {
				t.Errorf("ResolveMode() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResolveMode_Pure(t *testing.T) {
	cand := &Candidate{Type: domain.RecDeleteUnattached, RiskLevel: 2, ProjectedMonthlySavings: 40}
	cfg := allowAll()

	first := ResolveMode(cand, cfg)
	for i := 0; i < 100; i++ {
		if got := ResolveMode(cand, cfg); got != first {
			t.Fatalf("ResolveMode is not deterministic: %s then %s", first, got)
		}
	}
}

type fakeConfigSource struct {
	mu    sync.Mutex
	cfg   *domain.AgentConfiguration
	loads int
	err   error
}

func (s *fakeConfigSource) GetAgentConfig(ctx context.Context, tenantID string) (*domain.AgentConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return s.cfg, nil
}

func TestConfigStore_CachesUntilInvalidated(t *testing.T) {
	source := &fakeConfigSource{cfg: allowAll()}
	store := NewConfigStore(source)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Get(ctx, "default"); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}
	if source.loads != 1 {
		t.Errorf("loads = %d, want 1 (cached after first read)", source.loads)
	}

	store.Invalidate("default")
	if _, err := store.Get(ctx, "default"); err != nil {
		t.Fatalf("Get after invalidate failed: %v", err)
	}
	if source.loads != 2 {
		t.Errorf("loads = %d, want 2 (reloaded after invalidation)", source.loads)
	}
}

func TestConfigStore_DefaultsWhenUnconfigured(t *testing.T) {
	store := NewConfigStore(&fakeConfigSource{cfg: nil})
	cfg, err := store.Get(context.Background(), "tenant-x")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cfg.AutonomousEnabled {
		t.Errorf("default configuration must keep autonomous execution disabled")
	}
	if cfg.TenantID != "tenant-x" {
		t.Errorf("tenant = %q, want tenant-x", cfg.TenantID)
	}
}

func TestConfigStore_PropagatesSourceError(t *testing.T) {
	wantErr := errors.New("connection refused")
	store := NewConfigStore(&fakeConfigSource{err: wantErr})
	if _, err := store.Get(context.Background(), "default"); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}

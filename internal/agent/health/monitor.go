package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/costwatch/internal/agent/scheduler"
	"github.com/vietddude/costwatch/internal/core/domain"
	"github.com/vietddude/costwatch/internal/infra/resilience"
	"github.com/vietddude/costwatch/internal/infra/storage"
)

// Pinger is a dependency that can report its own liveness.
type Pinger interface {
	Health(ctx context.Context) error
}

// StatsSource exposes the cycle runner's last-cycle snapshot.
type StatsSource interface {
	Stats() scheduler.CycleStats
}

// probeTimeout bounds every liveness probe so a hung dependency cannot stall
// the health endpoint.
const probeTimeout = 2 * time.Second

// Monitor aggregates health status from storage, broadcast, the vector-store
// breaker, and each tenant's cycle runner.
type Monitor struct {
	storage       Pinger // nil when running on memory storage
	broadcast     Pinger // nil when redis is not configured
	breaker       *resilience.Breaker
	runners       map[string]StatsSource
	recs          storage.RecommendationRepository
	cycleInterval time.Duration

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport Report
}

// NewMonitor creates a health monitor.
func NewMonitor(
	storagePinger Pinger,
	broadcastPinger Pinger,
	breaker *resilience.Breaker,
	runners map[string]StatsSource,
	recs storage.RecommendationRepository,
	cycleInterval time.Duration,
) *Monitor {
	return &Monitor{
		storage:       storagePinger,
		broadcast:     broadcastPinger,
		breaker:       breaker,
		runners:       runners,
		recs:          recs,
		cycleInterval: cycleInterval,
	}
}

// CheckHealth probes every dependency and builds the report. Checks are rate
// limited to avoid hammering storage from aggressive orchestrator probes.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 10*time.Second && m.lastReport.Tenants != nil {
		return m.lastReport
	}

	report := Report{
		SystemStatus: StatusHealthy,
		Storage:      m.probe(ctx, m.storage),
		Broadcast:    m.probe(ctx, m.broadcast),
		Tenants:      make(map[string]TenantHealth),
	}
	if m.breaker != nil {
		report.VectorStore = string(m.breaker.State())
	}

	for tenantID, runner := range m.runners {
		report.Tenants[tenantID] = m.tenantHealth(ctx, tenantID, runner)
	}

	// Storage down means no record keeping at all; that outranks everything.
	if report.Storage == StatusCritical {
		report.SystemStatus = StatusCritical
	} else {
		for _, t := range report.Tenants {
			if t.Status == StatusCritical {
				report.SystemStatus = StatusCritical
				break
			}
			if t.Status == StatusDegraded {
				report.SystemStatus = StatusDegraded
			}
		}
		if report.SystemStatus == StatusHealthy && report.Broadcast == StatusCritical {
			// Broadcast loss degrades real-time consumers but the agent
			// still operates from the tables.
			report.SystemStatus = StatusDegraded
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func (m *Monitor) probe(ctx context.Context, p Pinger) SystemStatus {
	if p == nil {
		return StatusHealthy
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := p.Health(ctx); err != nil {
		return StatusCritical
	}
	return StatusHealthy
}

func (m *Monitor) tenantHealth(ctx context.Context, tenantID string, runner StatsSource) TenantHealth {
	stats := runner.Stats()

	health := TenantHealth{
		TenantID:   tenantID,
		Status:     StatusHealthy,
		CycleCount: stats.CycleCount,
	}
	if !stats.LastCycleAt.IsZero() {
		health.LastCycleAt = stats.LastCycleAt.Format(time.RFC3339)
		health.CycleLagSeconds = time.Since(stats.LastCycleAt).Seconds()
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if counts, err := m.recs.CountByStatus(probeCtx, tenantID); err == nil {
		health.PendingApprovals = counts[domain.StatusPending]
	}

	// A runner that has not completed a cycle within three intervals is
	// stuck or crash-looping.
	switch {
	case stats.CycleCount == 0:
		health.Status = StatusDegraded
	case time.Since(stats.LastCycleAt) > 3*m.cycleInterval:
		health.Status = StatusCritical
	}
	return health
}

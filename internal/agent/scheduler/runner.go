// Package scheduler runs the periodic optimization cycle: execute the
// approved backlog, scan the fleet, detect waste, and drive a bounded batch
// of candidates into recommendations.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/costwatch/internal/agent/classifier"
	"github.com/vietddude/costwatch/internal/agent/detector"
	"github.com/vietddude/costwatch/internal/agent/metrics"
	"github.com/vietddude/costwatch/internal/agent/recommender"
	"github.com/vietddude/costwatch/internal/core/domain"
	"github.com/vietddude/costwatch/internal/infra/cloud"
	"github.com/vietddude/costwatch/internal/infra/resilience"
	"github.com/vietddude/costwatch/internal/infra/storage"
	"github.com/vietddude/costwatch/internal/infra/vector"
)

// Config holds cycle runner configuration for one tenant.
type Config struct {
	TenantID string        `yaml:"tenant_id"`
	Interval time.Duration `yaml:"interval"`
	// MinBatch/MaxBatch bound how many wasteful resources one cycle turns
	// into recommendations. The batch size is drawn uniformly per cycle.
	MinBatch int `yaml:"min_batch"`
	MaxBatch int `yaml:"max_batch"`
}

// CycleStats is a snapshot of the runner's last completed cycle, consumed by
// the health monitor.
type CycleStats struct {
	LastCycleAt time.Time
	LastLatency time.Duration
	Scanned     int
	Wasteful    int
	Created     int
	Executed    int
	CycleCount  uint64
}

// Runner drives the optimization loop for one tenant.
type Runner struct {
	cfg      Config
	lister   cloud.ResourceLister
	class    *classifier.Classifier
	configs  *classifier.ConfigStore
	machine  *recommender.Machine
	recs     storage.RecommendationRepository
	contexts vector.ContextStore
	breaker  *resilience.Breaker
	log      *slog.Logger

	rng   *rand.Rand
	rngMu sync.Mutex

	running atomic.Bool
	inCycle atomic.Bool
	stop    chan struct{}

	statsMu sync.RWMutex
	stats   CycleStats
}

// NewRunner creates a cycle runner. contexts may be nil when no vector store
// is configured; enrichment then degrades to empty context.
func NewRunner(
	cfg Config,
	lister cloud.ResourceLister,
	class *classifier.Classifier,
	configs *classifier.ConfigStore,
	machine *recommender.Machine,
	recs storage.RecommendationRepository,
	contexts vector.ContextStore,
	breaker *resilience.Breaker,
	src rand.Source,
	log *slog.Logger,
) *Runner {
	if cfg.MinBatch <= 0 {
		cfg.MinBatch = 2
	}
	if cfg.MaxBatch < cfg.MinBatch {
		cfg.MaxBatch = cfg.MinBatch + 3
	}
	return &Runner{
		cfg:      cfg,
		lister:   lister,
		class:    class,
		configs:  configs,
		machine:  machine,
		recs:     recs,
		contexts: contexts,
		breaker:  breaker,
		rng:      rand.New(src),
		log:      log.With("tenant", cfg.TenantID),
		stop:     make(chan struct{}),
	}
}

// Start begins the cycle loop. It runs one cycle immediately, then on every
// tick until the context is cancelled or Stop is called.
func (r *Runner) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("runner already running")
	}
	defer r.running.Store(false)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.stop:
			return nil
		case <-ticker.C:
			r.RunCycle(ctx)
		}
	}
}

// Stop stops the loop.
func (r *Runner) Stop() {
	if r.running.Load() {
		close(r.stop)
	}
}

// Stats returns a snapshot of the last completed cycle.
func (r *Runner) Stats() CycleStats {
	r.statsMu.RLock()
	defer r.statsMu.RUnlock()
	return r.stats
}

// RunCycle executes one full optimization cycle. If the previous cycle is
// still in flight the tick is dropped rather than queued; overlapping cycles
// would race on the same resources.
func (r *Runner) RunCycle(ctx context.Context) {
	if !r.inCycle.CompareAndSwap(false, true) {
		metrics.CyclesSkipped.WithLabelValues(r.cfg.TenantID).Inc()
		r.log.Warn("cycle still in flight, skipping tick")
		return
	}
	defer r.inCycle.Store(false)

	started := time.Now()
	var stats CycleStats

	stats.Executed += r.executeApprovedBacklog(ctx)

	cfg, err := r.configs.Get(ctx, r.cfg.TenantID)
	if err != nil {
		r.log.Error("failed to load agent configuration", "error", err)
		return
	}

	fleet, err := r.lister.ListResources(ctx, r.cfg.TenantID)
	if err != nil {
		r.log.Error("fleet scan failed", "error", err)
		return
	}
	stats.Scanned = len(fleet)
	metrics.ResourcesScanned.WithLabelValues(r.cfg.TenantID).Add(float64(len(fleet)))

	wasteful := r.detectWasteful(ctx, fleet)
	stats.Wasteful = len(wasteful)

	for _, item := range r.pickBatch(wasteful) {
		created, executed := r.processCandidate(ctx, item.snap, item.verdict, cfg)
		if created {
			stats.Created++
		}
		if executed {
			stats.Executed++
		}
	}

	elapsed := time.Since(started)
	metrics.CyclesTotal.WithLabelValues(r.cfg.TenantID).Inc()
	metrics.CycleDuration.WithLabelValues(r.cfg.TenantID).Observe(elapsed.Seconds())

	r.statsMu.Lock()
	stats.LastCycleAt = started
	stats.LastLatency = elapsed
	stats.CycleCount = r.stats.CycleCount + 1
	r.stats = stats
	r.statsMu.Unlock()

	r.log.Info("cycle complete",
		"scanned", stats.Scanned,
		"wasteful", stats.Wasteful,
		"created", stats.Created,
		"executed", stats.Executed,
		"elapsed", elapsed)
}

type flagged struct {
	snap    *domain.ResourceSnapshot
	verdict detector.Verdict
}

// detectWasteful classifies the fleet and drops resources that already carry
// an active recommendation before batch selection, so the bounded batch is
// not wasted on known duplicates.
func (r *Runner) detectWasteful(ctx context.Context, fleet []*domain.ResourceSnapshot) []flagged {
	var out []flagged
	for _, snap := range fleet {
		verdict := detector.Detect(snap)
		if !verdict.Wasteful {
			continue
		}
		metrics.WastefulDetected.WithLabelValues(r.cfg.TenantID, string(snap.Type)).Inc()

		existing, err := r.recs.FindActiveByResource(ctx, snap.TenantID, snap.ResourceID)
		if err != nil {
			r.log.Warn("dedupe lookup failed", "resource", snap.ResourceID, "error", err)
			continue
		}
		if existing != nil {
			continue
		}
		out = append(out, flagged{snap: snap, verdict: verdict})
	}
	return out
}

// pickBatch draws the cycle's batch size and samples that many flagged
// resources uniformly.
func (r *Runner) pickBatch(wasteful []flagged) []flagged {
	if len(wasteful) == 0 {
		return nil
	}

	r.rngMu.Lock()
	defer r.rngMu.Unlock()

	n := r.cfg.MinBatch + r.rng.Intn(r.cfg.MaxBatch-r.cfg.MinBatch+1)
	if n > len(wasteful) {
		n = len(wasteful)
	}
	r.rng.Shuffle(len(wasteful), func(i, j int) {
		wasteful[i], wasteful[j] = wasteful[j], wasteful[i]
	})
	return wasteful[:n]
}

// processCandidate turns one flagged resource into a recommendation and, on
// the autonomous path, executes it in the same cycle. Failures are isolated
// per resource.
func (r *Runner) processCandidate(ctx context.Context, snap *domain.ResourceSnapshot, verdict detector.Verdict, cfg *domain.AgentConfiguration) (created, executed bool) {
	cand, ok := r.class.Build(snap, verdict)
	if !ok {
		return false, false
	}

	mode := classifier.ResolveMode(cand, cfg)
	rec, err := r.machine.Create(ctx, cand, mode)
	if err != nil {
		if recommender.IsDuplicate(err) {
			// Lost the race against a concurrent writer; next cycle moves on.
			return false, false
		}
		r.log.Error("failed to create recommendation", "resource", snap.ResourceID, "error", err)
		return false, false
	}

	metrics.RecommendationsCreated.WithLabelValues(r.cfg.TenantID, string(mode)).Inc()
	metrics.ProjectedSavings.WithLabelValues(r.cfg.TenantID).Add(rec.ProjectedMonthlySavings)

	if mode == domain.ModeAutonomous {
		status, err := r.machine.Execute(ctx, rec, "agent")
		if err != nil {
			r.log.Error("failed to execute recommendation", "id", rec.ID, "error", err)
			return true, false
		}
		metrics.ExecutionsTotal.WithLabelValues(r.cfg.TenantID, string(status)).Inc()
		return true, true
	}

	r.machine.RequestApproval(ctx, rec, r.enrich(ctx, rec))
	return true, false
}

// executeApprovedBacklog runs remediations approved since the last cycle.
func (r *Runner) executeApprovedBacklog(ctx context.Context) int {
	approved, err := r.recs.ListByStatus(ctx, r.cfg.TenantID, domain.StatusApproved)
	if err != nil {
		r.log.Error("failed to list approved recommendations", "error", err)
		return 0
	}

	executed := 0
	for _, rec := range approved {
		status, err := r.machine.Execute(ctx, rec, "agent")
		if err != nil {
			r.log.Error("failed to execute approved recommendation", "id", rec.ID, "error", err)
			continue
		}
		metrics.ExecutionsTotal.WithLabelValues(r.cfg.TenantID, string(status)).Inc()
		executed++
	}
	return executed
}

// enrich retrieves similar historical context for an approval request. The
// vector store is non-critical: calls go through the circuit breaker and
// degrade to no context.
func (r *Runner) enrich(ctx context.Context, rec *domain.Recommendation) []string {
	if r.contexts == nil || r.breaker == nil {
		return nil
	}

	query := fmt.Sprintf("%s %s %s", rec.ResourceType, rec.Type, rec.Reason)
	items := resilience.ExecuteWithFallback(r.breaker, func() ([]vector.ContextItem, error) {
		return r.contexts.RetrieveContext(ctx, query, 3)
	}, nil)

	r.observeBreaker()

	notes := make([]string, 0, len(items))
	for _, item := range items {
		notes = append(notes, item.Content)
	}
	return notes
}

func (r *Runner) observeBreaker() {
	switch r.breaker.State() {
	case resilience.StateClosed:
		metrics.BreakerState.Set(0)
	case resilience.StateOpen:
		metrics.BreakerState.Set(1)
	case resilience.StateHalfOpen:
		metrics.BreakerState.Set(2)
	}
}

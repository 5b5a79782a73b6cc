package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/vietddude/costwatch/internal/agent/classifier"
	"github.com/vietddude/costwatch/internal/agent/recommender"
	"github.com/vietddude/costwatch/internal/core/domain"
	"github.com/vietddude/costwatch/internal/infra/notify"
	"github.com/vietddude/costwatch/internal/infra/resilience"
	"github.com/vietddude/costwatch/internal/infra/storage/memory"
	"github.com/vietddude/costwatch/internal/infra/vector"
)

func f(v float64) *float64 { return &v }

type fakeLister struct {
	fleet []*domain.ResourceSnapshot
	err   error
}

func (l *fakeLister) ListResources(ctx context.Context, tenantID string) ([]*domain.ResourceSnapshot, error) {
	if l.err != nil {
		return nil, l.err
	}
	for _, snap := range l.fleet {
		snap.TenantID = tenantID
	}
	return l.fleet, nil
}

type fakeMutator struct {
	err   error
	calls int
}

func (m *fakeMutator) Apply(ctx context.Context, rec *domain.Recommendation) (*domain.MutationResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &domain.MutationResult{Applied: true, ActualMonthlySavings: rec.ProjectedMonthlySavings}, nil
}

type captureNotifier struct {
	events []notify.Event
}

func (n *captureNotifier) Notify(ctx context.Context, event notify.Event) {
	n.events = append(n.events, event)
}

type fakeContextStore struct {
	items []vector.ContextItem
	err   error
	calls int
}

func (s *fakeContextStore) RetrieveContext(ctx context.Context, query string, k int) ([]vector.ContextItem, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

func idleInstance(id string) *domain.ResourceSnapshot {
	return &domain.ResourceSnapshot{
		ResourceID:  id,
		Type:        domain.ResourceEC2Instance,
		Config:      map[string]any{"environment": "prod"},
		Metrics:     &domain.ResourceMetrics{Compute: &domain.ComputeMetrics{CPUPercent: f(5), MemoryPercent: f(10)}},
		MonthlyCost: 100,
	}
}

func unattachedVolume(id string) *domain.ResourceSnapshot {
	return &domain.ResourceSnapshot{
		ResourceID:  id,
		Type:        domain.ResourceEBSVolume,
		Config:      map[string]any{"size_gb": 100},
		Metrics:     &domain.ResourceMetrics{Volume: &domain.VolumeMetrics{AttachmentID: "", VolumeClass: "gp3"}},
		MonthlyCost: 8,
	}
}

func healthyInstance(id string) *domain.ResourceSnapshot {
	return &domain.ResourceSnapshot{
		ResourceID:  id,
		Type:        domain.ResourceEC2Instance,
		Config:      map[string]any{"environment": "prod"},
		Metrics:     &domain.ResourceMetrics{Compute: &domain.ComputeMetrics{CPUPercent: f(70), MemoryPercent: f(60)}},
		MonthlyCost: 100,
	}
}

type env struct {
	runner   *Runner
	store    *memory.MemoryStorage
	recs     *memory.RecommendationRepo
	configs  *memory.ConfigRepo
	machine  *recommender.Machine
	mutator  *fakeMutator
	notifier *captureNotifier
	contexts *fakeContextStore
	breaker  *resilience.Breaker
}

func newEnv(t *testing.T, fleet []*domain.ResourceSnapshot) *env {
	t.Helper()
	store := memory.NewMemoryStorage()
	recs := memory.NewRecommendationRepo(store)
	configs := memory.NewConfigRepo(store)
	mutator := &fakeMutator{}
	notifier := &captureNotifier{}
	contexts := &fakeContextStore{items: []vector.ContextItem{{ID: "h1", Content: "similar case", Score: 0.9}}}
	breaker := resilience.NewBreaker("vector", resilience.DefaultConfig())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	machine := recommender.New(recs, memory.NewTxRunner(store), mutator, broadcastNop{}, notifier, log)
	runner := NewRunner(
		Config{TenantID: "acme", Interval: time.Minute, MinBatch: 2, MaxBatch: 5},
		&fakeLister{fleet: fleet},
		classifier.New(rand.NewSource(1)),
		classifier.NewConfigStore(configs),
		machine,
		recs,
		contexts,
		breaker,
		rand.NewSource(1),
		log,
	)

	return &env{
		runner:   runner,
		store:    store,
		recs:     recs,
		configs:  configs,
		machine:  machine,
		mutator:  mutator,
		notifier: notifier,
		contexts: contexts,
		breaker:  breaker,
	}
}

func (e *env) enableAutonomous(t *testing.T, maxRisk int, types ...domain.RecommendationType) {
	t.Helper()
	err := e.configs.SaveAgentConfig(context.Background(), &domain.AgentConfiguration{
		TenantID:          "acme",
		AutonomousEnabled: true,
		MaxAutonomousRisk: maxRisk,
		ApprovalCeiling:   100000,
		AllowedTypes:      types,
	})
	if err != nil {
		t.Fatalf("SaveAgentConfig() error = %v", err)
	}
}

func countByStatus(t *testing.T, e *env) map[domain.RecommendationStatus]int {
	t.Helper()
	counts, err := e.recs.CountByStatus(context.Background(), "acme")
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	return counts
}

func TestRunCycle_DefaultConfigIsHITL(t *testing.T) {
	e := newEnv(t, []*domain.ResourceSnapshot{
		idleInstance("i-1"),
		unattachedVolume("vol-1"),
		healthyInstance("i-healthy"),
	})

	e.runner.RunCycle(context.Background())

	counts := countByStatus(t, e)
	if counts[domain.StatusPending] != 2 {
		t.Errorf("pending = %d, want 2 (both wasteful resources, HITL)", counts[domain.StatusPending])
	}
	if e.mutator.calls != 0 {
		t.Errorf("mutator calls = %d, want 0 under the default policy", e.mutator.calls)
	}

	// Each HITL recommendation sends an approval request.
	approvals := 0
	for _, ev := range e.notifier.events {
		if ev.Kind == "approval_request" {
			approvals++
		}
	}
	if approvals != 2 {
		t.Errorf("approval requests = %d, want 2", approvals)
	}
}

func TestRunCycle_AutonomousExecutesInSameCycle(t *testing.T) {
	e := newEnv(t, []*domain.ResourceSnapshot{unattachedVolume("vol-1")})
	e.enableAutonomous(t, 3, domain.RecDeleteUnattached)

	e.runner.RunCycle(context.Background())

	counts := countByStatus(t, e)
	if counts[domain.StatusExecuted] != 1 {
		t.Errorf("executed = %d, want 1", counts[domain.StatusExecuted])
	}
	if e.mutator.calls != 1 {
		t.Errorf("mutator calls = %d, want 1", e.mutator.calls)
	}
}

func TestRunCycle_SkipsHealthyResources(t *testing.T) {
	e := newEnv(t, []*domain.ResourceSnapshot{healthyInstance("i-1"), healthyInstance("i-2")})

	e.runner.RunCycle(context.Background())

	counts := countByStatus(t, e)
	if len(counts) != 0 {
		t.Errorf("recommendations created for healthy fleet: %v", counts)
	}
}

func TestRunCycle_DedupeAcrossCycles(t *testing.T) {
	e := newEnv(t, []*domain.ResourceSnapshot{unattachedVolume("vol-1")})

	e.runner.RunCycle(context.Background())
	e.runner.RunCycle(context.Background())

	counts := countByStatus(t, e)
	if counts[domain.StatusPending] != 1 {
		t.Errorf("pending = %d, want 1 after two cycles over the same resource", counts[domain.StatusPending])
	}
}

func TestRunCycle_BatchIsBounded(t *testing.T) {
	var fleet []*domain.ResourceSnapshot
	for i := 0; i < 20; i++ {
		fleet = append(fleet, idleInstance("i-"+string(rune('a'+i))))
	}
	e := newEnv(t, fleet)

	e.runner.RunCycle(context.Background())

	counts := countByStatus(t, e)
	created := counts[domain.StatusPending]
	if created < 2 || created > 5 {
		t.Errorf("created = %d, want within [2, 5]", created)
	}
}

func TestRunCycle_ExecutesApprovedBacklog(t *testing.T) {
	e := newEnv(t, nil)

	rec, err := e.machine.Create(context.Background(), &classifier.Candidate{
		Resource: &domain.ResourceSnapshot{
			ResourceID: "vol-9", TenantID: "acme", Type: domain.ResourceEBSVolume,
		},
		Type:                    domain.RecDeleteUnattached,
		RiskLevel:               2,
		Priority:                3,
		ProjectedMonthlySavings: 8,
		Reason:                  "volume has no attachment",
	}, domain.ModeHITL)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := e.machine.Approve(context.Background(), rec.ID, "ops@example.com"); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	e.runner.RunCycle(context.Background())

	counts := countByStatus(t, e)
	if counts[domain.StatusExecuted] != 1 {
		t.Errorf("executed = %d, want 1 from the approved backlog", counts[domain.StatusExecuted])
	}
	if stats := e.runner.Stats(); stats.Executed != 1 {
		t.Errorf("stats.Executed = %d, want 1", stats.Executed)
	}
}

func TestRunCycle_ReentrancyGuard(t *testing.T) {
	e := newEnv(t, []*domain.ResourceSnapshot{unattachedVolume("vol-1")})

	e.runner.inCycle.Store(true)
	e.runner.RunCycle(context.Background())

	counts := countByStatus(t, e)
	if len(counts) != 0 {
		t.Errorf("recommendations created by a skipped cycle: %v", counts)
	}

	e.runner.inCycle.Store(false)
	e.runner.RunCycle(context.Background())
	counts = countByStatus(t, e)
	if counts[domain.StatusPending] != 1 {
		t.Errorf("pending = %d, want 1 once the guard clears", counts[domain.StatusPending])
	}
}

func TestRunCycle_ScanFailureAbortsQuietly(t *testing.T) {
	e := newEnv(t, nil)
	e.runner.lister = &fakeLister{err: errors.New("provider throttled")}

	e.runner.RunCycle(context.Background())

	if stats := e.runner.Stats(); stats.CycleCount != 0 {
		t.Errorf("cycle count = %d, want 0 for an aborted cycle", stats.CycleCount)
	}
}

func TestRunCycle_EnrichmentDegradesWhenStoreFails(t *testing.T) {
	e := newEnv(t, []*domain.ResourceSnapshot{unattachedVolume("vol-1")})
	e.contexts.err = errors.New("vector store down")

	e.runner.RunCycle(context.Background())

	// The approval request still goes out, just without context.
	var approval *notify.Event
	for i := range e.notifier.events {
		if e.notifier.events[i].Kind == "approval_request" {
			approval = &e.notifier.events[i]
		}
	}
	if approval == nil {
		t.Fatal("expected approval request despite enrichment failure")
	}
	if len(approval.Context) != 0 {
		t.Errorf("context notes = %v, want none", approval.Context)
	}
}

func TestRunCycle_EnrichmentAttachesContext(t *testing.T) {
	e := newEnv(t, []*domain.ResourceSnapshot{unattachedVolume("vol-1")})

	e.runner.RunCycle(context.Background())

	var approval *notify.Event
	for i := range e.notifier.events {
		if e.notifier.events[i].Kind == "approval_request" {
			approval = &e.notifier.events[i]
		}
	}
	if approval == nil {
		t.Fatal("expected approval request")
	}
	if len(approval.Context) != 1 || approval.Context[0] != "similar case" {
		t.Errorf("context notes = %v, want [similar case]", approval.Context)
	}
}

func TestRunCycle_StatsReflectLastCycle(t *testing.T) {
	e := newEnv(t, []*domain.ResourceSnapshot{
		idleInstance("i-1"),
		healthyInstance("i-2"),
	})

	e.runner.RunCycle(context.Background())

	stats := e.runner.Stats()
	if stats.Scanned != 2 {
		t.Errorf("scanned = %d, want 2", stats.Scanned)
	}
	if stats.Wasteful != 1 {
		t.Errorf("wasteful = %d, want 1", stats.Wasteful)
	}
	if stats.Created != 1 {
		t.Errorf("created = %d, want 1", stats.Created)
	}
	if stats.LastCycleAt.IsZero() {
		t.Error("expected LastCycleAt to be set")
	}
	if stats.CycleCount != 1 {
		t.Errorf("cycle count = %d, want 1", stats.CycleCount)
	}
}

func TestStartStop(t *testing.T) {
	e := newEnv(t, nil)
	e.runner.cfg.Interval = 10 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- e.runner.Start(context.Background()) }()

	time.Sleep(30 * time.Millisecond)
	e.runner.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}

	if stats := e.runner.Stats(); stats.CycleCount == 0 {
		t.Error("expected at least one completed cycle")
	}
}

func TestStart_RejectsDoubleStart(t *testing.T) {
	e := newEnv(t, nil)
	e.runner.cfg.Interval = 10 * time.Millisecond

	go e.runner.Start(context.Background())
	time.Sleep(20 * time.Millisecond)

	if err := e.runner.Start(context.Background()); err == nil {
		t.Error("expected error from second Start()")
	}
	e.runner.Stop()
}

// broadcastNop satisfies the publisher without a redis connection.
type broadcastNop struct{}

func (broadcastNop) Publish(ctx context.Context, event domain.TransitionEvent) error { return nil }
func (broadcastNop) Close() error                                                    { return nil }

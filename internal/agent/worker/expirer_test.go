package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/vietddude/costwatch/internal/agent/classifier"
	"github.com/vietddude/costwatch/internal/agent/recommender"
	"github.com/vietddude/costwatch/internal/core/domain"
	"github.com/vietddude/costwatch/internal/infra/notify"
	"github.com/vietddude/costwatch/internal/infra/storage/memory"
)

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, event domain.TransitionEvent) error { return nil }
func (nopPublisher) Close() error                                                    { return nil }

type nopMutator struct{}

func (nopMutator) Apply(ctx context.Context, rec *domain.Recommendation) (*domain.MutationResult, error) {
	return &domain.MutationResult{Applied: true}, nil
}

func newTestMachine(store *memory.MemoryStorage) (*recommender.Machine, *memory.RecommendationRepo) {
	recs := memory.NewRecommendationRepo(store)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	machine := recommender.New(recs, memory.NewTxRunner(store), nopMutator{}, nopPublisher{}, notify.NopNotifier{}, log)
	return machine, recs
}

func createPending(t *testing.T, machine *recommender.Machine, resourceID string, createdAt time.Time) *domain.Recommendation {
	t.Helper()
	machine.WithClock(func() time.Time { return createdAt })
	rec, err := machine.Create(context.Background(), &classifier.Candidate{
		Resource: &domain.ResourceSnapshot{
			ResourceID: resourceID,
			TenantID:   "acme",
			Type:       domain.ResourceEBSVolume,
		},
		Type:                    domain.RecDeleteUnattached,
		RiskLevel:               2,
		Priority:                3,
		ProjectedMonthlySavings: 8,
	}, domain.ModeHITL)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return rec
}

func TestSweep(t *testing.T) {
	store := memory.NewMemoryStorage()
	machine, recs := newTestMachine(store)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stale := createPending(t, machine, "vol-stale", now.Add(-72*time.Hour))
	fresh := createPending(t, machine, "vol-fresh", now.Add(-1*time.Hour))
	machine.WithClock(func() time.Time { return now })

	expirer := NewExpirer(48*time.Hour, recs, machine, log)
	expirer.now = func() time.Time { return now }

	expirer.Sweep(context.Background())

	got, err := recs.GetByID(context.Background(), stale.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != domain.StatusRejected {
		t.Errorf("stale status = %s, want rejected", got.Status)
	}

	got, err = recs.GetByID(context.Background(), fresh.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != domain.StatusPending {
		t.Errorf("fresh status = %s, want pending", got.Status)
	}
}

func TestSweep_IgnoresNonPending(t *testing.T) {
	store := memory.NewMemoryStorage()
	machine, recs := newTestMachine(store)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := createPending(t, machine, "vol-1", now.Add(-72*time.Hour))
	machine.WithClock(func() time.Time { return now })
	if _, err := machine.Approve(context.Background(), rec.ID, "ops@example.com"); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	expirer := NewExpirer(48*time.Hour, recs, machine, log)
	expirer.now = func() time.Time { return now }

	expirer.Sweep(context.Background())

	got, _ := recs.GetByID(context.Background(), rec.ID)
	if got.Status != domain.StatusApproved {
		t.Errorf("status = %s, approved records must not expire", got.Status)
	}
}

func TestStart_DisabledWithZeroTTL(t *testing.T) {
	store := memory.NewMemoryStorage()
	machine, recs := newTestMachine(store)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	expirer := NewExpirer(0, recs, machine, log)

	done := make(chan struct{})
	go func() {
		expirer.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start() with zero TTL should return immediately")
	}
}

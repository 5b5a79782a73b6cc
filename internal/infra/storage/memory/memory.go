// Package memory provides in-memory repositories for tests and for running
// the agent without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/costwatch/internal/core/domain"
	"github.com/vietddude/costwatch/internal/infra/storage"
)

type MemoryStorage struct {
	recs    map[string]*domain.Recommendation
	history []*domain.OptimizationHistoryEntry
	configs map[string]*domain.AgentConfiguration
	mu      sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		recs:    make(map[string]*domain.Recommendation),
		configs: make(map[string]*domain.AgentConfiguration),
	}
}

// -----------------------------------------------------------------------------
// Recommendation Repository
// -----------------------------------------------------------------------------

type RecommendationRepo struct {
	store *MemoryStorage
}

func NewRecommendationRepo(store *MemoryStorage) *RecommendationRepo {
	return &RecommendationRepo{store: store}
}

func (r *RecommendationRepo) Create(ctx context.Context, rec *domain.Recommendation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	// The check-then-insert is atomic under the storage lock, mirroring the
	// partial unique index the postgres implementation relies on.
	for _, existing := range r.store.recs {
		if existing.TenantID == rec.TenantID &&
			existing.ResourceID == rec.ResourceID &&
			existing.Status.Active() {
			return storage.ErrDuplicateActive
		}
	}

	clone := *rec
	r.store.recs[rec.ID] = &clone
	return nil
}

func (r *RecommendationRepo) GetByID(ctx context.Context, id string) (*domain.Recommendation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.recs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (r *RecommendationRepo) FindActiveByResource(ctx context.Context, tenantID, resourceID string) (*domain.Recommendation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, rec := range r.store.recs {
		if rec.TenantID == tenantID && rec.ResourceID == resourceID && rec.Status.Active() {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *RecommendationRepo) ListByStatus(ctx context.Context, tenantID string, status domain.RecommendationStatus) ([]*domain.Recommendation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Recommendation
	for _, rec := range r.store.recs {
		if rec.TenantID == tenantID && rec.Status == status {
			clone := *rec
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *RecommendationRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*domain.Recommendation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Recommendation
	for _, rec := range r.store.recs {
		if rec.Status == domain.StatusPending && rec.CreatedAt.Before(cutoff) {
			clone := *rec
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *RecommendationRepo) UpdateStatus(ctx context.Context, id string, status domain.RecommendationStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.updateStatusLocked(id, status)
}

func (r *RecommendationRepo) CountByStatus(ctx context.Context, tenantID string) (map[domain.RecommendationStatus]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	counts := make(map[domain.RecommendationStatus]int)
	for _, rec := range r.store.recs {
		if rec.TenantID == tenantID {
			counts[rec.Status]++
		}
	}
	return counts, nil
}

func (s *MemoryStorage) updateStatusLocked(id string, status domain.RecommendationStatus) error {
	rec, ok := s.recs[id]
	if !ok {
		return storage.ErrNotFound
	}
	if !domain.CanTransition(rec.Status, status) {
		return storage.ErrInvalidTransition
	}
	rec.Status = status
	rec.UpdatedAt = time.Now()
	return nil
}

// -----------------------------------------------------------------------------
// History Repository
// -----------------------------------------------------------------------------

type HistoryRepo struct {
	store *MemoryStorage
}

func NewHistoryRepo(store *MemoryStorage) *HistoryRepo {
	return &HistoryRepo{store: store}
}

func (r *HistoryRepo) Append(ctx context.Context, entry *domain.OptimizationHistoryEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	clone := *entry
	r.store.history = append(r.store.history, &clone)
	return nil
}

func (r *HistoryRepo) ListByRecommendation(ctx context.Context, recommendationID string) ([]*domain.OptimizationHistoryEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.OptimizationHistoryEntry
	for _, e := range r.store.history {
		if e.RecommendationID == recommendationID {
			clone := *e
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *HistoryRepo) TotalActualSavings(ctx context.Context, tenantID string) (float64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var total float64
	for _, e := range r.store.history {
		if e.TenantID == tenantID && e.Success {
			total += e.ActualSavings
		}
	}
	return total, nil
}

// -----------------------------------------------------------------------------
// Agent Config Repository
// -----------------------------------------------------------------------------

type ConfigRepo struct {
	store *MemoryStorage
}

func NewConfigRepo(store *MemoryStorage) *ConfigRepo {
	return &ConfigRepo{store: store}
}

func (r *ConfigRepo) GetAgentConfig(ctx context.Context, tenantID string) (*domain.AgentConfiguration, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	cfg, ok := r.store.configs[tenantID]
	if !ok {
		return nil, nil
	}
	clone := *cfg
	return &clone, nil
}

func (r *ConfigRepo) SaveAgentConfig(ctx context.Context, cfg *domain.AgentConfiguration) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	clone := *cfg
	clone.UpdatedAt = time.Now()
	r.store.configs[cfg.TenantID] = &clone
	return nil
}

// -----------------------------------------------------------------------------
// Transaction Runner
// -----------------------------------------------------------------------------

// TxRunner applies a unit of work under the storage lock and rolls back all
// mutations when the work fails, matching the atomicity the postgres
// implementation gets from a real transaction.
type TxRunner struct {
	store *MemoryStorage
}

func NewTxRunner(store *MemoryStorage) *TxRunner {
	return &TxRunner{store: store}
}

type memUnitOfWork struct {
	store *MemoryStorage
}

func (u *memUnitOfWork) UpdateStatus(ctx context.Context, id string, status domain.RecommendationStatus) error {
	return u.store.updateStatusLocked(id, status)
}

func (u *memUnitOfWork) AppendHistory(ctx context.Context, entry *domain.OptimizationHistoryEntry) error {
	clone := *entry
	u.store.history = append(u.store.history, &clone)
	return nil
}

func (t *TxRunner) InTx(ctx context.Context, fn func(storage.UnitOfWork) error) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	// Snapshot for rollback.
	savedRecs := make(map[string]domain.Recommendation, len(t.store.recs))
	for id, rec := range t.store.recs {
		savedRecs[id] = *rec
	}
	savedHistoryLen := len(t.store.history)

	if err := fn(&memUnitOfWork{store: t.store}); err != nil {
		for id := range t.store.recs {
			saved := savedRecs[id]
			*t.store.recs[id] = saved
		}
		t.store.history = t.store.history[:savedHistoryLen]
		return err
	}
	return nil
}

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/costwatch/internal/core/domain"
)

var (
	// ErrNotFound is returned when a record doesn't exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateActive is returned when creating a recommendation for a
	// resource that already has a pending or approved one. The storage
	// layer's uniqueness constraint is the authoritative guard.
	ErrDuplicateActive = errors.New("resource already has an active recommendation")

	// ErrInvalidTransition is returned when a status change is not a legal
	// lifecycle edge.
	ErrInvalidTransition = errors.New("illegal status transition")
)

// RecommendationRepository handles recommendation storage operations.
type RecommendationRepository interface {
	// Create inserts a new recommendation. Returns ErrDuplicateActive when
	// the resource already has an active record.
	Create(ctx context.Context, rec *domain.Recommendation) error

	// GetByID retrieves a recommendation by ID.
	GetByID(ctx context.Context, id string) (*domain.Recommendation, error)

	// FindActiveByResource returns the pending or approved recommendation
	// for a resource, or nil when none exists.
	FindActiveByResource(ctx context.Context, tenantID, resourceID string) (*domain.Recommendation, error)

	// ListByStatus returns all recommendations in the given status.
	ListByStatus(ctx context.Context, tenantID string, status domain.RecommendationStatus) ([]*domain.Recommendation, error)

	// ListPendingOlderThan returns pending recommendations created before
	// the cutoff.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*domain.Recommendation, error)

	// UpdateStatus transitions a recommendation outside a unit of work
	// (approved/rejected paths, which carry no history entry).
	UpdateStatus(ctx context.Context, id string, status domain.RecommendationStatus) error

	// CountByStatus returns recommendation counts grouped by status.
	CountByStatus(ctx context.Context, tenantID string) (map[domain.RecommendationStatus]int, error)
}

// HistoryRepository handles the append-only execution ledger.
type HistoryRepository interface {
	// Append stores one execution attempt. Entries are never updated.
	Append(ctx context.Context, entry *domain.OptimizationHistoryEntry) error

	// ListByRecommendation returns entries for one recommendation.
	ListByRecommendation(ctx context.Context, recommendationID string) ([]*domain.OptimizationHistoryEntry, error)

	// TotalActualSavings sums realized savings for a tenant.
	TotalActualSavings(ctx context.Context, tenantID string) (float64, error)
}

// AgentConfigRepository handles runtime agent configuration.
type AgentConfigRepository interface {
	// GetAgentConfig returns the tenant's configuration, or nil when the
	// tenant has never been configured.
	GetAgentConfig(ctx context.Context, tenantID string) (*domain.AgentConfiguration, error)

	// SaveAgentConfig upserts the tenant's configuration.
	SaveAgentConfig(ctx context.Context, cfg *domain.AgentConfiguration) error
}

// UnitOfWork groups a status flip with its matching history append so both
// land in one transaction or neither does.
type UnitOfWork interface {
	UpdateStatus(ctx context.Context, id string, status domain.RecommendationStatus) error
	AppendHistory(ctx context.Context, entry *domain.OptimizationHistoryEntry) error
}

// TxRunner executes a unit of work atomically. Implementations retry
// transient contention errors (deadlock, serialization conflict) up to a
// bound before surfacing the last error.
type TxRunner interface {
	InTx(ctx context.Context, fn func(UnitOfWork) error) error
}

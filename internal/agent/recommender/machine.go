// Package recommender owns the recommendation lifecycle: creation with the
// dedupe guard, approval/rejection, and execution with its audit entry.
package recommender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/costwatch/internal/agent/classifier"
	"github.com/vietddude/costwatch/internal/core/domain"
	"github.com/vietddude/costwatch/internal/infra/broadcast"
	"github.com/vietddude/costwatch/internal/infra/cloud"
	"github.com/vietddude/costwatch/internal/infra/notify"
	"github.com/vietddude/costwatch/internal/infra/storage"
)

// Machine drives recommendations through their lifecycle. It is the only
// component that mutates recommendation records.
type Machine struct {
	recs      storage.RecommendationRepository
	tx        storage.TxRunner
	mutator   cloud.MutationExecutor
	publisher broadcast.Publisher
	notifier  notify.Notifier
	log       *slog.Logger
	now       func() time.Time
}

// New creates a state machine over the given collaborators.
func New(
	recs storage.RecommendationRepository,
	tx storage.TxRunner,
	mutator cloud.MutationExecutor,
	publisher broadcast.Publisher,
	notifier notify.Notifier,
	log *slog.Logger,
) *Machine {
	return &Machine{
		recs:      recs,
		tx:        tx,
		mutator:   mutator,
		publisher: publisher,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
	}
}

// WithClock replaces the machine's clock. Intended for tests.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// Create inserts a pending recommendation for a classified candidate. The
// in-memory dedupe check is a fast path; the storage layer's uniqueness
// constraint is the authoritative guard, so a concurrent duplicate still
// surfaces as storage.ErrDuplicateActive.
func (m *Machine) Create(ctx context.Context, cand *classifier.Candidate, mode domain.ExecutionMode) (*domain.Recommendation, error) {
	snap := cand.Resource

	existing, err := m.recs.FindActiveByResource(ctx, snap.TenantID, snap.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("dedupe lookup failed: %w", err)
	}
	if existing != nil {
		return nil, storage.ErrDuplicateActive
	}

	now := m.now()
	rec := &domain.Recommendation{
		ID:                      uuid.NewString(),
		TenantID:                snap.TenantID,
		ResourceID:              snap.ResourceID,
		ResourceType:            snap.Type,
		Type:                    cand.Type,
		Priority:                cand.Priority,
		RiskLevel:               cand.RiskLevel,
		Mode:                    mode,
		Status:                  domain.StatusPending,
		ProjectedMonthlySavings: cand.ProjectedMonthlySavings,
		Reason:                  cand.Reason,
		BeforeConfig:            snap.Config,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if err := m.recs.Create(ctx, rec); err != nil {
		return nil, err
	}

	m.broadcast(ctx, domain.TransitionEvent{
		Type:             domain.EventRecommendationCreated,
		TenantID:         rec.TenantID,
		RecommendationID: rec.ID,
		ResourceID:       rec.ResourceID,
		Status:           rec.Status,
		Mode:             rec.Mode,
	})
	return rec, nil
}

// Approve transitions a pending recommendation to approved. Execution is
// picked up by the next cycle.
func (m *Machine) Approve(ctx context.Context, id, actor string) (*domain.Recommendation, error) {
	return m.transition(ctx, id, domain.StatusApproved, actor)
}

// Reject transitions a pending recommendation to rejected, a terminal state.
func (m *Machine) Reject(ctx context.Context, id, actor string) (*domain.Recommendation, error) {
	return m.transition(ctx, id, domain.StatusRejected, actor)
}

func (m *Machine) transition(ctx context.Context, id string, to domain.RecommendationStatus, actor string) (*domain.Recommendation, error) {
	rec, err := m.recs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(rec.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", storage.ErrInvalidTransition, rec.Status, to)
	}

	if err := m.recs.UpdateStatus(ctx, id, to); err != nil {
		return nil, err
	}
	rec.Status = to
	rec.UpdatedAt = m.now()

	m.log.Info("recommendation transitioned",
		"id", id, "status", to, "actor", actor, "resource", rec.ResourceID)

	m.broadcast(ctx, domain.TransitionEvent{
		Type:             domain.EventStatusChanged,
		TenantID:         rec.TenantID,
		RecommendationID: rec.ID,
		ResourceID:       rec.ResourceID,
		Status:           to,
		Mode:             rec.Mode,
	})
	return rec, nil
}

// Execute applies the remediation and records the outcome. The status flip
// and the history entry land in one unit of work so a crash between them
// cannot leave the ledger inconsistent. A mutation failure is recorded as
// failed and is not an error; only storage problems propagate.
func (m *Machine) Execute(ctx context.Context, rec *domain.Recommendation, executedBy string) (domain.RecommendationStatus, error) {
	switch {
	case rec.Status == domain.StatusApproved:
	case rec.Status == domain.StatusPending && rec.Mode == domain.ModeAutonomous:
	default:
		return rec.Status, fmt.Errorf("%w: cannot execute from %s/%s", storage.ErrInvalidTransition, rec.Status, rec.Mode)
	}

	result, applyErr := m.mutator.Apply(ctx, rec)

	entry := &domain.OptimizationHistoryEntry{
		ID:               uuid.NewString(),
		RecommendationID: rec.ID,
		TenantID:         rec.TenantID,
		ResourceID:       rec.ResourceID,
		ExecutedBy:       executedBy,
		BeforeConfig:     rec.BeforeConfig,
		ExecutedAt:       m.now(),
	}

	finalStatus := domain.StatusExecuted
	if applyErr != nil {
		finalStatus = domain.StatusFailed
		entry.Success = false
		entry.Error = applyErr.Error()
	} else {
		entry.Success = true
		entry.ActualSavings = result.ActualMonthlySavings
		entry.AfterConfig = result.AfterConfig
	}

	err := m.tx.InTx(ctx, func(uow storage.UnitOfWork) error {
		if err := uow.UpdateStatus(ctx, rec.ID, finalStatus); err != nil {
			return err
		}
		return uow.AppendHistory(ctx, entry)
	})
	if err != nil {
		return rec.Status, fmt.Errorf("failed to record execution: %w", err)
	}
	rec.Status = finalStatus

	if applyErr != nil {
		m.log.Warn("remediation failed",
			"id", rec.ID, "resource", rec.ResourceID, "type", rec.Type, "error", applyErr)
	} else {
		m.log.Info("remediation executed",
			"id", rec.ID, "resource", rec.ResourceID, "type", rec.Type,
			"actual_savings", entry.ActualSavings)
	}

	m.broadcast(ctx, domain.TransitionEvent{
		Type:             domain.EventStatusChanged,
		TenantID:         rec.TenantID,
		RecommendationID: rec.ID,
		ResourceID:       rec.ResourceID,
		Status:           finalStatus,
		Mode:             rec.Mode,
	})

	detail := "remediation applied"
	if applyErr != nil {
		detail = "remediation failed: " + applyErr.Error()
	}
	m.notifier.Notify(ctx, notify.ExecutionResult(rec, applyErr == nil, detail))

	return finalStatus, nil
}

// RequestApproval notifies the approval channel about a pending HITL
// recommendation.
func (m *Machine) RequestApproval(ctx context.Context, rec *domain.Recommendation, contextNotes []string) {
	m.notifier.Notify(ctx, notify.ApprovalRequest(rec, contextNotes))
}

func (m *Machine) broadcast(ctx context.Context, event domain.TransitionEvent) {
	event.EmittedAt = m.now()
	if err := m.publisher.Publish(ctx, event); err != nil {
		// Broadcast is best-effort; subscribers reconcile from the tables.
		m.log.Warn("failed to broadcast event", "type", event.Type, "error", err)
	}
}

// IsDuplicate reports whether err is the dedupe guard firing.
func IsDuplicate(err error) bool {
	return errors.Is(err, storage.ErrDuplicateActive)
}

// Package worker holds background maintenance loops that run beside the
// optimization cycle.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/costwatch/internal/agent/metrics"
	"github.com/vietddude/costwatch/internal/agent/recommender"
	"github.com/vietddude/costwatch/internal/infra/storage"
)

// Expirer auto-rejects pending recommendations that sat unreviewed past the
// configured TTL, so stale approvals never execute against a fleet that has
// since changed.
type Expirer struct {
	ttl     time.Duration
	recs    storage.RecommendationRepository
	machine *recommender.Machine
	log     *slog.Logger
	now     func() time.Time
}

// NewExpirer creates an Expirer. A TTL of zero disables expiry.
func NewExpirer(ttl time.Duration, recs storage.RecommendationRepository, machine *recommender.Machine, log *slog.Logger) *Expirer {
	return &Expirer{
		ttl:     ttl,
		recs:    recs,
		machine: machine,
		log:     log,
		now:     time.Now,
	}
}

// Start runs the expiry loop until the context is cancelled.
func (e *Expirer) Start(ctx context.Context) {
	if e.ttl <= 0 {
		return // Expiry disabled
	}

	interval := min(e.ttl/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// Sweep rejects every pending recommendation older than the TTL. Each record
// fails independently.
func (e *Expirer) Sweep(ctx context.Context) {
	cutoff := e.now().Add(-e.ttl)

	stale, err := e.recs.ListPendingOlderThan(ctx, cutoff)
	if err != nil {
		e.log.Error("failed to list stale recommendations", "error", err)
		return
	}

	for _, rec := range stale {
		if _, err := e.machine.Reject(ctx, rec.ID, "agent:expirer"); err != nil {
			e.log.Warn("failed to expire recommendation", "id", rec.ID, "error", err)
			continue
		}
		metrics.PendingExpired.WithLabelValues(rec.TenantID).Inc()
		e.log.Info("expired stale recommendation",
			"id", rec.ID, "resource", rec.ResourceID, "age", e.now().Sub(rec.CreatedAt))
	}
}

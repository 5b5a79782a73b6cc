// Package cloud defines the ingestion and mutation boundaries to the cloud
// provider. The agent only decides whether and when to mutate; the actual
// SDK calls live behind these interfaces.
package cloud

import (
	"context"

	"github.com/vietddude/costwatch/internal/core/domain"
)

// ResourceLister supplies resource snapshots for a tenant.
type ResourceLister interface {
	ListResources(ctx context.Context, tenantID string) ([]*domain.ResourceSnapshot, error)
}

// MutationExecutor applies an approved recommendation to the cloud.
type MutationExecutor interface {
	Apply(ctx context.Context, rec *domain.Recommendation) (*domain.MutationResult, error)
}

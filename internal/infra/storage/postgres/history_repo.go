package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vietddude/costwatch/internal/core/domain"
)

// HistoryRepo implements storage.HistoryRepository using PostgreSQL.
type HistoryRepo struct {
	db *DB
}

// NewHistoryRepo creates a new PostgreSQL history repository.
func NewHistoryRepo(db *DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

type historyRow struct {
	ID               string    `db:"id"`
	RecommendationID string    `db:"recommendation_id"`
	TenantID         string    `db:"tenant_id"`
	ResourceID       string    `db:"resource_id"`
	ExecutedBy       string    `db:"executed_by"`
	BeforeConfig     []byte    `db:"before_config"`
	AfterConfig      []byte    `db:"after_config"`
	ActualSavings    float64   `db:"actual_savings"`
	Success          bool      `db:"success"`
	Error            string    `db:"error"`
	ExecutedAt       time.Time `db:"executed_at"`
}

func (r *historyRow) toDomain() (*domain.OptimizationHistoryEntry, error) {
	entry := &domain.OptimizationHistoryEntry{
		ID:               r.ID,
		RecommendationID: r.RecommendationID,
		TenantID:         r.TenantID,
		ResourceID:       r.ResourceID,
		ExecutedBy:       r.ExecutedBy,
		ActualSavings:    r.ActualSavings,
		Success:          r.Success,
		Error:            r.Error,
		ExecutedAt:       r.ExecutedAt,
	}
	if len(r.BeforeConfig) > 0 {
		if err := json.Unmarshal(r.BeforeConfig, &entry.BeforeConfig); err != nil {
			return nil, fmt.Errorf("failed to decode before_config: %w", err)
		}
	}
	if len(r.AfterConfig) > 0 {
		if err := json.Unmarshal(r.AfterConfig, &entry.AfterConfig); err != nil {
			return nil, fmt.Errorf("failed to decode after_config: %w", err)
		}
	}
	return entry, nil
}

// Append stores one execution attempt. There is no update path; the table
// is the immutable ledger.
func (r *HistoryRepo) Append(ctx context.Context, entry *domain.OptimizationHistoryEntry) error {
	return appendHistory(ctx, r.db, entry)
}

func appendHistory(ctx context.Context, db execer, entry *domain.OptimizationHistoryEntry) error {
	before, err := marshalConfig(entry.BeforeConfig)
	if err != nil {
		return fmt.Errorf("failed to encode before_config: %w", err)
	}
	after, err := marshalConfig(entry.AfterConfig)
	if err != nil {
		return fmt.Errorf("failed to encode after_config: %w", err)
	}

	query := `
		INSERT INTO optimization_history (
			id, recommendation_id, tenant_id, resource_id, executed_by,
			before_config, after_config, actual_savings, success, error, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = db.ExecContext(ctx, query,
		entry.ID,
		entry.RecommendationID,
		entry.TenantID,
		entry.ResourceID,
		entry.ExecutedBy,
		before,
		after,
		entry.ActualSavings,
		entry.Success,
		entry.Error,
		entry.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

// ListByRecommendation returns entries for one recommendation, oldest first.
func (r *HistoryRepo) ListByRecommendation(ctx context.Context, recommendationID string) ([]*domain.OptimizationHistoryEntry, error) {
	var rows []historyRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, recommendation_id, tenant_id, resource_id, executed_by,
		       before_config, after_config, actual_savings, success, error, executed_at
		FROM optimization_history
		WHERE recommendation_id = $1
		ORDER BY executed_at
	`, recommendationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	out := make([]*domain.OptimizationHistoryEntry, 0, len(rows))
	for i := range rows {
		entry, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// TotalActualSavings sums realized savings for a tenant.
func (r *HistoryRepo) TotalActualSavings(ctx context.Context, tenantID string) (float64, error) {
	var total sql.NullFloat64
	err := r.db.GetContext(ctx, &total,
		`SELECT SUM(actual_savings) FROM optimization_history WHERE tenant_id = $1 AND success`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum savings: %w", err)
	}
	return total.Float64, nil
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vietddude/costwatch/internal/core/domain"
	"github.com/vietddude/costwatch/internal/infra/storage"
)

// RecommendationRepo implements storage.RecommendationRepository using PostgreSQL.
type RecommendationRepo struct {
	db *DB
}

// NewRecommendationRepo creates a new PostgreSQL recommendation repository.
func NewRecommendationRepo(db *DB) *RecommendationRepo {
	return &RecommendationRepo{db: db}
}

type recommendationRow struct {
	ID             string    `db:"id"`
	TenantID       string    `db:"tenant_id"`
	ResourceID     string    `db:"resource_id"`
	ResourceType   string    `db:"resource_type"`
	RecType        string    `db:"rec_type"`
	Priority       int       `db:"priority"`
	RiskLevel      int       `db:"risk_level"`
	Mode           string    `db:"mode"`
	Status         string    `db:"status"`
	MonthlySavings float64   `db:"monthly_savings"`
	Reason         string    `db:"reason"`
	BeforeConfig   []byte    `db:"before_config"`
	AfterConfig    []byte    `db:"after_config"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r *recommendationRow) toDomain() (*domain.Recommendation, error) {
	rec := &domain.Recommendation{
		ID:                      r.ID,
		TenantID:                r.TenantID,
		ResourceID:              r.ResourceID,
		ResourceType:            domain.ResourceType(r.ResourceType),
		Type:                    domain.RecommendationType(r.RecType),
		Priority:                r.Priority,
		RiskLevel:               r.RiskLevel,
		Mode:                    domain.ExecutionMode(r.Mode),
		Status:                  domain.RecommendationStatus(r.Status),
		ProjectedMonthlySavings: r.MonthlySavings,
		Reason:                  r.Reason,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}
	if len(r.BeforeConfig) > 0 {
		if err := json.Unmarshal(r.BeforeConfig, &rec.BeforeConfig); err != nil {
			return nil, fmt.Errorf("failed to decode before_config: %w", err)
		}
	}
	if len(r.AfterConfig) > 0 {
		if err := json.Unmarshal(r.AfterConfig, &rec.AfterConfig); err != nil {
			return nil, fmt.Errorf("failed to decode after_config: %w", err)
		}
	}
	return rec, nil
}

func marshalConfig(cfg map[string]any) ([]byte, error) {
	if cfg == nil {
		return nil, nil
	}
	return json.Marshal(cfg)
}

const selectRecommendation = `
	SELECT id, tenant_id, resource_id, resource_type, rec_type, priority,
	       risk_level, mode, status, monthly_savings, reason,
	       before_config, after_config, created_at, updated_at
	FROM recommendations
`

// Create inserts a new recommendation. The partial unique index on active
// rows turns a concurrent duplicate into ErrDuplicateActive.
func (r *RecommendationRepo) Create(ctx context.Context, rec *domain.Recommendation) error {
	before, err := marshalConfig(rec.BeforeConfig)
	if err != nil {
		return fmt.Errorf("failed to encode before_config: %w", err)
	}
	after, err := marshalConfig(rec.AfterConfig)
	if err != nil {
		return fmt.Errorf("failed to encode after_config: %w", err)
	}

	query := `
		INSERT INTO recommendations (
			id, tenant_id, resource_id, resource_type, rec_type, priority,
			risk_level, mode, status, monthly_savings, reason,
			before_config, after_config, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID,
		rec.TenantID,
		rec.ResourceID,
		string(rec.ResourceType),
		string(rec.Type),
		rec.Priority,
		rec.RiskLevel,
		string(rec.Mode),
		string(rec.Status),
		rec.ProjectedMonthlySavings,
		rec.Reason,
		before,
		after,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return storage.ErrDuplicateActive
		}
		return fmt.Errorf("failed to create recommendation: %w", err)
	}
	return nil
}

// GetByID retrieves a recommendation by ID.
func (r *RecommendationRepo) GetByID(ctx context.Context, id string) (*domain.Recommendation, error) {
	var row recommendationRow
	err := r.db.GetContext(ctx, &row, selectRecommendation+` WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendation: %w", err)
	}
	return row.toDomain()
}

// FindActiveByResource returns the pending or approved recommendation for a
// resource, or nil.
func (r *RecommendationRepo) FindActiveByResource(ctx context.Context, tenantID, resourceID string) (*domain.Recommendation, error) {
	var row recommendationRow
	err := r.db.GetContext(ctx, &row,
		selectRecommendation+` WHERE tenant_id = $1 AND resource_id = $2 AND status IN ('pending', 'approved')`,
		tenantID, resourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active recommendation: %w", err)
	}
	return row.toDomain()
}

// ListByStatus returns all recommendations in the given status, oldest first.
func (r *RecommendationRepo) ListByStatus(ctx context.Context, tenantID string, status domain.RecommendationStatus) ([]*domain.Recommendation, error) {
	var rows []recommendationRow
	err := r.db.SelectContext(ctx, &rows,
		selectRecommendation+` WHERE tenant_id = $1 AND status = $2 ORDER BY created_at`,
		tenantID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}
	return rowsToDomain(rows)
}

// ListPendingOlderThan returns pending recommendations created before cutoff.
func (r *RecommendationRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*domain.Recommendation, error) {
	var rows []recommendationRow
	err := r.db.SelectContext(ctx, &rows,
		selectRecommendation+` WHERE status = 'pending' AND created_at < $1 ORDER BY created_at`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale recommendations: %w", err)
	}
	return rowsToDomain(rows)
}

// UpdateStatus transitions a recommendation, validating the edge in SQL so
// concurrent updaters cannot race past the lifecycle rules.
func (r *RecommendationRepo) UpdateStatus(ctx context.Context, id string, status domain.RecommendationStatus) error {
	return updateStatus(ctx, r.db, id, status)
}

// CountByStatus returns recommendation counts grouped by status.
func (r *RecommendationRepo) CountByStatus(ctx context.Context, tenantID string) (map[domain.RecommendationStatus]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM recommendations WHERE tenant_id = $1 GROUP BY status`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count recommendations: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.RecommendationStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[domain.RecommendationStatus(status)] = count
	}
	return counts, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// updateStatus is shared by the repository and the unit of work. The legal
// transitions are enforced in the WHERE clause; zero rows affected means the
// record is missing or the edge is illegal.
func updateStatus(ctx context.Context, db execer, id string, status domain.RecommendationStatus) error {
	query := `
		UPDATE recommendations
		SET status = $2, updated_at = now()
		WHERE id = $1
		  AND (
			(status = 'pending'  AND $2 IN ('approved', 'rejected', 'executed', 'failed')) OR
			(status = 'approved' AND $2 IN ('executed', 'failed'))
		  )
	`
	res, err := db.ExecContext(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrInvalidTransition
	}
	return nil
}

func rowsToDomain(rows []recommendationRow) ([]*domain.Recommendation, error) {
	out := make([]*domain.Recommendation, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

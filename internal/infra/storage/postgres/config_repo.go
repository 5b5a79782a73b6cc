package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/costwatch/internal/core/domain"
)

// ConfigRepo implements storage.AgentConfigRepository using PostgreSQL.
type ConfigRepo struct {
	db *DB
}

// NewConfigRepo creates a new PostgreSQL agent-config repository.
func NewConfigRepo(db *DB) *ConfigRepo {
	return &ConfigRepo{db: db}
}

type configRow struct {
	TenantID          string    `db:"tenant_id"`
	AutonomousEnabled bool      `db:"autonomous_enabled"`
	MaxAutonomousRisk int       `db:"max_autonomous_risk"`
	ApprovalCeiling   float64   `db:"approval_ceiling"`
	AllowedTypes      []byte    `db:"allowed_types"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// GetAgentConfig returns the tenant's configuration, or nil when the tenant
// has never been configured.
func (r *ConfigRepo) GetAgentConfig(ctx context.Context, tenantID string) (*domain.AgentConfiguration, error) {
	var row configRow
	err := r.db.GetContext(ctx, &row, `
		SELECT tenant_id, autonomous_enabled, max_autonomous_risk,
		       approval_ceiling, allowed_types, updated_at
		FROM agent_configurations
		WHERE tenant_id = $1
	`, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent config: %w", err)
	}

	cfg := &domain.AgentConfiguration{
		TenantID:          row.TenantID,
		AutonomousEnabled: row.AutonomousEnabled,
		MaxAutonomousRisk: row.MaxAutonomousRisk,
		ApprovalCeiling:   row.ApprovalCeiling,
		UpdatedAt:         row.UpdatedAt,
	}
	if len(row.AllowedTypes) > 0 {
		if err := json.Unmarshal(row.AllowedTypes, &cfg.AllowedTypes); err != nil {
			return nil, fmt.Errorf("failed to decode allowed_types: %w", err)
		}
	}
	return cfg, nil
}

// SaveAgentConfig upserts the tenant's configuration.
func (r *ConfigRepo) SaveAgentConfig(ctx context.Context, cfg *domain.AgentConfiguration) error {
	allowed, err := json.Marshal(cfg.AllowedTypes)
	if err != nil {
		return fmt.Errorf("failed to encode allowed_types: %w", err)
	}

	query := `
		INSERT INTO agent_configurations (
			tenant_id, autonomous_enabled, max_autonomous_risk,
			approval_ceiling, allowed_types, updated_at
		) VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (tenant_id) DO UPDATE SET
			autonomous_enabled = EXCLUDED.autonomous_enabled,
			max_autonomous_risk = EXCLUDED.max_autonomous_risk,
			approval_ceiling = EXCLUDED.approval_ceiling,
			allowed_types = EXCLUDED.allowed_types,
			updated_at = now()
	`
	if _, err := r.db.ExecContext(ctx, query,
		cfg.TenantID,
		cfg.AutonomousEnabled,
		cfg.MaxAutonomousRisk,
		cfg.ApprovalCeiling,
		allowed,
	); err != nil {
		return fmt.Errorf("failed to save agent config: %w", err)
	}
	return nil
}

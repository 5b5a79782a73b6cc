package domain

import "time"

// AgentConfiguration is the runtime policy governing autonomous execution.
// It is mutated only through the admin surface; the agent caches it in
// memory and reloads on an explicit invalidation signal.
type AgentConfiguration struct {
	TenantID          string
	AutonomousEnabled bool
	MaxAutonomousRisk int
	// ApprovalCeiling is an annualized savings amount. Candidates whose
	// projected annual savings exceed it are forced to HITL regardless of
	// risk.
	ApprovalCeiling float64
	AllowedTypes    []RecommendationType
	UpdatedAt       time.Time
}

// Allows reports whether the type is on the autonomous allow-list.
func (c *AgentConfiguration) Allows(t RecommendationType) bool {
	for _, allowed := range c.AllowedTypes {
		if allowed == t {
			return true
		}
	}
	return false
}

// DefaultAgentConfiguration returns the conservative starting policy:
// autonomous execution disabled, nothing allow-listed.
func DefaultAgentConfiguration(tenantID string) *AgentConfiguration {
	return &AgentConfiguration{
		TenantID:          tenantID,
		AutonomousEnabled: false,
		MaxAutonomousRisk: 3,
		ApprovalCeiling:   10000,
		AllowedTypes:      nil,
	}
}

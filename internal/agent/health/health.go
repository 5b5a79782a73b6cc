// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// TenantHealth contains health metrics for a single tenant's agent.
type TenantHealth struct {
	TenantID         string       `json:"tenant_id"`
	Status           SystemStatus `json:"status"`
	LastCycleAt      string       `json:"last_cycle_at,omitempty"`
	CycleLagSeconds  float64      `json:"cycle_lag_seconds"`
	PendingApprovals int          `json:"pending_approvals"`
	CycleCount       uint64       `json:"cycle_count"`
}

// Report contains the full health report.
type Report struct {
	SystemStatus SystemStatus            `json:"system_status"`
	Storage      SystemStatus            `json:"storage"`
	Broadcast    SystemStatus            `json:"broadcast"`
	VectorStore  string                  `json:"vector_store"`
	Tenants      map[string]TenantHealth `json:"tenants"`
}

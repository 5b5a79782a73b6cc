package domain

import "time"

// OptimizationHistoryEntry records one execution attempt. Entries are
// append-only and never mutated.
type OptimizationHistoryEntry struct {
	ID               string
	RecommendationID string
	TenantID         string
	ResourceID       string
	ExecutedBy       string
	BeforeConfig     map[string]any
	AfterConfig      map[string]any
	ActualSavings    float64
	Success          bool
	Error            string
	ExecutedAt       time.Time
}

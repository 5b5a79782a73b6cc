package domain

import "time"

// RecommendationType identifies the remediation a recommendation proposes.
type RecommendationType string

const (
	RecDeleteUnattached     RecommendationType = "delete-unattached"
	RecReleaseAddress       RecommendationType = "release-address"
	RecDeleteOrphaned       RecommendationType = "delete-orphaned"
	RecDeleteUnused         RecommendationType = "delete-unused"
	RecSnapshotCleanup      RecommendationType = "snapshot-cleanup"
	RecVolumeRightsizing    RecommendationType = "volume-rightsizing"
	RecStorageTiering       RecommendationType = "storage-tiering"
	RecLambdaRightsizing    RecommendationType = "lambda-rightsizing"
	RecGatewayConsolidation RecommendationType = "gateway-consolidation"
	RecLBConsolidation      RecommendationType = "lb-consolidation"
	RecRightsizing          RecommendationType = "rightsizing"
	RecScheduling           RecommendationType = "scheduling"
)

// ExecutionMode determines whether a recommendation executes without human
// approval.
type ExecutionMode string

const (
	ModeAutonomous ExecutionMode = "autonomous"
	ModeHITL       ExecutionMode = "hitl"
)

// RecommendationStatus is the lifecycle state of a recommendation.
type RecommendationStatus string

const (
	StatusPending  RecommendationStatus = "pending"
	StatusApproved RecommendationStatus = "approved"
	StatusRejected RecommendationStatus = "rejected"
	StatusExecuted RecommendationStatus = "executed"
	StatusFailed   RecommendationStatus = "failed"
)

// Active reports whether the status still blocks new recommendations for
// the same resource.
func (s RecommendationStatus) Active() bool {
	return s == StatusPending || s == StatusApproved
}

// Terminal reports whether the status permits no further transitions.
func (s RecommendationStatus) Terminal() bool {
	return s == StatusRejected || s == StatusExecuted || s == StatusFailed
}

// legalTransitions lists the allowed status edges. Executed, rejected and
// failed are terminal; pending may go straight to executed/failed on the
// autonomous path.
var legalTransitions = map[RecommendationStatus][]RecommendationStatus{
	StatusPending:  {StatusApproved, StatusRejected, StatusExecuted, StatusFailed},
	StatusApproved: {StatusExecuted, StatusFailed},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to RecommendationStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Recommendation is a single remediation opportunity. Records are never
// deleted, only status-transitioned; together with history entries they form
// the audit trail.
type Recommendation struct {
	ID                      string
	TenantID                string
	ResourceID              string
	ResourceType            ResourceType
	Type                    RecommendationType
	Priority                int
	RiskLevel               int // 0-10
	Mode                    ExecutionMode
	Status                  RecommendationStatus
	ProjectedMonthlySavings float64
	Reason                  string
	BeforeConfig            map[string]any
	AfterConfig             map[string]any
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// ProjectedAnnualSavings is the figure compared against the approval ceiling.
func (r *Recommendation) ProjectedAnnualSavings() float64 {
	return r.ProjectedMonthlySavings * 12
}

package domain

import "time"

// TransitionEventType classifies broadcast events.
type TransitionEventType string

const (
	EventRecommendationCreated TransitionEventType = "recommendation_created"
	EventStatusChanged         TransitionEventType = "status_changed"
	EventConfigUpdated         TransitionEventType = "config_updated"
)

// TransitionEvent is emitted on every recommendation state change and on
// configuration updates, for real-time subscribers.
type TransitionEvent struct {
	Type             TransitionEventType  `json:"type"`
	TenantID         string               `json:"tenant_id"`
	RecommendationID string               `json:"recommendation_id,omitempty"`
	ResourceID       string               `json:"resource_id,omitempty"`
	Status           RecommendationStatus `json:"status,omitempty"`
	Mode             ExecutionMode        `json:"mode,omitempty"`
	EmittedAt        time.Time            `json:"emitted_at"`
}

// Package notify delivers approval-request and execution-result messages to
// the chat channel. Delivery is fire-and-forget: failures are logged, never
// propagated.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/costwatch/internal/core/domain"
)

// Event is one notification payload.
type Event struct {
	Kind             string                      `json:"kind"` // approval_request, execution_result
	TenantID         string                      `json:"tenant_id"`
	RecommendationID string                      `json:"recommendation_id"`
	ResourceID       string                      `json:"resource_id"`
	Type             domain.RecommendationType   `json:"type"`
	RiskLevel        int                         `json:"risk_level"`
	MonthlySavings   float64                     `json:"monthly_savings"`
	Status           domain.RecommendationStatus `json:"status,omitempty"`
	Message          string                      `json:"message"`
	Context          []string                    `json:"context,omitempty"`
}

// Notifier sends events to the notification channel.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Config holds webhook notifier configuration.
type Config struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// WebhookNotifier posts events to a chat webhook.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
	log        *slog.Logger
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(cfg Config, log *slog.Logger) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:        cfg.WebhookURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Notify posts the event. Errors are logged and swallowed; notification
// failures must never fail the cycle.
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) {
	if n.url == "" {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		n.log.Warn("failed to encode notification", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.log.Warn("failed to build notification request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.log.Warn("notification delivery failed", "kind", event.Kind, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.log.Warn("notification rejected", "kind", event.Kind, "status", resp.StatusCode)
	}
}

// NopNotifier drops all events. Used when no webhook is configured and in
// tests.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, event Event) {}

// ApprovalRequest builds the approval-request event for a pending
// recommendation.
func ApprovalRequest(rec *domain.Recommendation, contextNotes []string) Event {
	return Event{
		Kind:             "approval_request",
		TenantID:         rec.TenantID,
		RecommendationID: rec.ID,
		ResourceID:       rec.ResourceID,
		Type:             rec.Type,
		RiskLevel:        rec.RiskLevel,
		MonthlySavings:   rec.ProjectedMonthlySavings,
		Message: fmt.Sprintf("approval needed: %s on %s (risk %d, est. $%.2f/mo)",
			rec.Type, rec.ResourceID, rec.RiskLevel, rec.ProjectedMonthlySavings),
		Context: contextNotes,
	}
}

// ExecutionResult builds the post-execution event.
func ExecutionResult(rec *domain.Recommendation, success bool, detail string) Event {
	status := domain.StatusExecuted
	if !success {
		status = domain.StatusFailed
	}
	return Event{
		Kind:             "execution_result",
		TenantID:         rec.TenantID,
		RecommendationID: rec.ID,
		ResourceID:       rec.ResourceID,
		Type:             rec.Type,
		RiskLevel:        rec.RiskLevel,
		MonthlySavings:   rec.ProjectedMonthlySavings,
		Status:           status,
		Message:          detail,
	}
}

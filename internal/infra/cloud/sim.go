package cloud

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/vietddude/costwatch/internal/core/domain"
)

// SimProvider is a simulated fleet for local runs and tests, the counterpart
// of running against memory storage. It produces a stable set of resources
// with a mix of healthy and wasteful patterns and pretends to apply
// mutations.
type SimProvider struct {
	rng *rand.Rand
	mu  sync.Mutex
}

// NewSimProvider creates a simulated provider from a random source.
func NewSimProvider(src rand.Source) *SimProvider {
	return &SimProvider{rng: rand.New(src)}
}

func f(v float64) *float64 { return &v }
func b(v bool) *bool       { return &v }

// ListResources returns a synthetic fleet for the tenant.
func (p *SimProvider) ListResources(ctx context.Context, tenantID string) ([]*domain.ResourceSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	fleet := []*domain.ResourceSnapshot{
		{
			ResourceID:  "i-0a1b2c3d4e5f6a7b8",
			Type:        domain.ResourceEC2Instance,
			Region:      "us-east-1",
			Name:        "api-server-1",
			Config:      map[string]any{"instance_type": "m5.2xlarge", "environment": "prod"},
			Metrics:     &domain.ResourceMetrics{Compute: &domain.ComputeMetrics{CPUPercent: f(p.pct(2, 18)), MemoryPercent: f(p.pct(4, 16))}},
			MonthlyCost: 276.48,
		},
		{
			ResourceID:  "i-0f9e8d7c6b5a4f3e2",
			Type:        domain.ResourceEC2Instance,
			Region:      "us-east-1",
			Name:        "batch-worker",
			Config:      map[string]any{"instance_type": "c5.xlarge", "environment": "dev"},
			Metrics:     &domain.ResourceMetrics{Compute: &domain.ComputeMetrics{CPUPercent: f(p.pct(5, 15)), MemoryPercent: f(p.pct(5, 15))}},
			MonthlyCost: 124.1,
		},
		{
			ResourceID:  "i-0c0ffee0c0ffee000",
			Type:        domain.ResourceEC2Instance,
			Region:      "us-east-1",
			Name:        "web-frontend",
			Config:      map[string]any{"instance_type": "m5.large", "environment": "prod"},
			Metrics:     &domain.ResourceMetrics{Compute: &domain.ComputeMetrics{CPUPercent: f(p.pct(45, 85)), MemoryPercent: f(p.pct(50, 90))}},
			MonthlyCost: 69.12,
		},
		{
			ResourceID:  "vol-0123456789abcdef0",
			Type:        domain.ResourceEBSVolume,
			Region:      "us-east-1",
			Name:        "detached-data-vol",
			Config:      map[string]any{"size_gb": 500, "volume_type": "gp3"},
			Metrics:     &domain.ResourceMetrics{Volume: &domain.VolumeMetrics{AttachmentID: "", VolumeClass: "gp3"}},
			MonthlyCost: 40,
		},
		{
			ResourceID:  "snap-00aa11bb22cc33dd4",
			Type:        domain.ResourceEBSSnapshot,
			Region:      "us-east-1",
			Name:        "old-backup",
			Config:      map[string]any{"size_gb": 200},
			Metrics:     &domain.ResourceMetrics{Snapshot: &domain.SnapshotMetrics{SourceVolumeExists: b(true), AgeDays: f(180)}},
			MonthlyCost: 10,
		},
		{
			ResourceID:  "eipalloc-0aabbccddeeff0011",
			Type:        domain.ResourceElasticIP,
			Region:      "us-east-1",
			Name:        "unused-eip",
			Config:      map[string]any{},
			Metrics:     &domain.ResourceMetrics{Address: &domain.AddressMetrics{Associated: b(false)}},
			MonthlyCost: 3.6,
		},
		{
			ResourceID:  "nat-0aa11bb22cc33dd44",
			Type:        domain.ResourceNATGateway,
			Region:      "us-east-1",
			Name:        "idle-nat",
			Config:      map[string]any{},
			Metrics:     &domain.ResourceMetrics{Gateway: &domain.GatewayMetrics{BytesProcessed: f(12 * 1024 * 1024)}},
			MonthlyCost: 32.85,
		},
		{
			ResourceID:  "arn:aws:lambda:us-east-1:000000000000:function:etl-nightly",
			Type:        domain.ResourceLambda,
			Region:      "us-east-1",
			Name:        "etl-nightly",
			Config:      map[string]any{"memory_mb": 1024},
			Metrics:     &domain.ResourceMetrics{Function: &domain.FunctionMetrics{MemoryUtilization: f(p.pct(20, 45)), Invocations: f(900)}},
			MonthlyCost: 18.2,
		},
		{
			ResourceID:  "logs-archive-bucket",
			Type:        domain.ResourceS3Bucket,
			Region:      "us-east-1",
			Name:        "logs-archive-bucket",
			Config:      map[string]any{"storage_class": "STANDARD"},
			Metrics:     &domain.ResourceMetrics{Bucket: &domain.BucketMetrics{HasLifecyclePolicy: b(false)}},
			MonthlyCost: 55,
		},
	}

	for _, snap := range fleet {
		snap.TenantID = tenantID
		snap.ScannedAt = now
	}
	return fleet, nil
}

// Apply pretends to execute the remediation. Realized savings land close to
// the projection.
func (p *SimProvider) Apply(ctx context.Context, rec *domain.Recommendation) (*domain.MutationResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Jitter realized savings within ±10% of the projection.
	jitter := 0.9 + p.rng.Float64()*0.2
	return &domain.MutationResult{
		Applied:              true,
		ActualMonthlySavings: rec.ProjectedMonthlySavings * jitter,
		AfterConfig:          map[string]any{"remediation": string(rec.Type)},
		Details:              fmt.Sprintf("simulated %s on %s", rec.Type, rec.ResourceID),
	}, nil
}

func (p *SimProvider) pct(low, high float64) float64 {
	return low + p.rng.Float64()*(high-low)
}

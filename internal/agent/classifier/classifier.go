// Package classifier maps wasteful resources to remediation candidates and
// decides whether they may execute autonomously.
package classifier

import (
	"math/rand"

	"github.com/vietddude/costwatch/internal/agent/detector"
	"github.com/vietddude/costwatch/internal/core/domain"
)

// riskTable is the fixed risk score per recommendation type. Deletion-style
// remediations score 2-4, configuration changes 4-6, routing/traffic-affecting
// changes 7-8, resize and scheduling 6.
var riskTable = map[domain.RecommendationType]int{
	domain.RecDeleteUnattached:     2,
	domain.RecReleaseAddress:       2,
	domain.RecDeleteOrphaned:       3,
	domain.RecSnapshotCleanup:      3,
	domain.RecDeleteUnused:         4,
	domain.RecVolumeRightsizing:    4,
	domain.RecLambdaRightsizing:    5,
	domain.RecStorageTiering:       5,
	domain.RecRightsizing:          6,
	domain.RecScheduling:           6,
	domain.RecGatewayConsolidation: 7,
	domain.RecLBConsolidation:      8,
}

// savingsBand is the fraction of monthly cost a remediation is projected to
// recover, as an inclusive [low, high] range.
type savingsBand struct {
	low  float64
	high float64
}

var savingsBands = map[domain.RecommendationType]savingsBand{
	domain.RecDeleteUnattached:     {1.0, 1.0},
	domain.RecReleaseAddress:       {1.0, 1.0},
	domain.RecDeleteOrphaned:       {1.0, 1.0},
	domain.RecDeleteUnused:         {1.0, 1.0},
	domain.RecSnapshotCleanup:      {1.0, 1.0},
	domain.RecRightsizing:          {0.3, 0.6},
	domain.RecScheduling:           {0.5, 0.7},
	domain.RecStorageTiering:       {0.6, 0.8},
	domain.RecVolumeRightsizing:    {0.2, 0.5},
	domain.RecLambdaRightsizing:    {0.2, 0.5},
	domain.RecGatewayConsolidation: {0.4, 0.6},
	domain.RecLBConsolidation:      {0.4, 0.6},
}

// RiskOf returns the fixed risk score (0-10) for a recommendation type.
// Unknown types score the most cautious value.
func RiskOf(t domain.RecommendationType) int {
	if risk, ok := riskTable[t]; ok {
		return risk
	}
	return 10
}

// Candidate is a classified remediation opportunity, ready for the state
// machine.
type Candidate struct {
	Resource                *domain.ResourceSnapshot
	Type                    domain.RecommendationType
	RiskLevel               int
	Priority                int
	ProjectedMonthlySavings float64
	Reason                  string
}

// ProjectedAnnualSavings is the figure compared against the approval ceiling.
func (c *Candidate) ProjectedAnnualSavings() float64 {
	return c.ProjectedMonthlySavings * 12
}

// Classifier turns wasteful snapshots into candidates. The random source is
// injected so tests can pin the savings draw.
type Classifier struct {
	rng *rand.Rand
}

// New creates a classifier backed by the given random source.
func New(src rand.Source) *Classifier {
	return &Classifier{rng: rand.New(src)}
}

// Classify maps a resource snapshot to the remediation type that addresses
// its waste pattern.
func Classify(snap *domain.ResourceSnapshot) domain.RecommendationType {
	m := snap.Metrics
	switch snap.Type {
	case domain.ResourceEBSVolume:
		if m != nil && m.Volume != nil && m.Volume.AttachmentID == "" {
			return domain.RecDeleteUnattached
		}
		return domain.RecVolumeRightsizing
	case domain.ResourceElasticIP:
		return domain.RecReleaseAddress
	case domain.ResourceEBSSnapshot:
		if m != nil && m.Snapshot != nil && m.Snapshot.SourceVolumeExists != nil && !*m.Snapshot.SourceVolumeExists {
			return domain.RecDeleteOrphaned
		}
		return domain.RecSnapshotCleanup
	case domain.ResourceNATGateway:
		return domain.RecGatewayConsolidation
	case domain.ResourceLoadBalancer:
		return domain.RecLBConsolidation
	case domain.ResourceS3Bucket:
		return domain.RecStorageTiering
	case domain.ResourceLambda:
		if m != nil && m.Function != nil && m.Function.Invocations != nil && *m.Function.Invocations == 0 {
			return domain.RecDeleteUnused
		}
		return domain.RecLambdaRightsizing
	case domain.ResourceRedshift:
		return domain.RecScheduling
	default:
		// EC2, RDS and unknown compute-like types.
		if env, ok := snap.Config["environment"].(string); ok && (env == "dev" || env == "staging") {
			return domain.RecScheduling
		}
		return domain.RecRightsizing
	}
}

// Build produces a candidate for a wasteful snapshot, or false when the
// resource cannot yield meaningful savings (zero or negative monthly cost).
func (c *Classifier) Build(snap *domain.ResourceSnapshot, verdict detector.Verdict) (*Candidate, bool) {
	if snap.MonthlyCost <= 0 {
		return nil, false
	}

	recType := Classify(snap)
	savings := c.estimateSavings(recType, snap.MonthlyCost)

	return &Candidate{
		Resource:                snap,
		Type:                    recType,
		RiskLevel:               RiskOf(recType),
		Priority:                priorityFor(savings),
		ProjectedMonthlySavings: savings,
		Reason:                  verdict.Reason,
	}, true
}

// estimateSavings draws a fraction within the type's band. The draw never
// exceeds the band's upper bound and never goes negative.
func (c *Classifier) estimateSavings(t domain.RecommendationType, monthlyCost float64) float64 {
	band, ok := savingsBands[t]
	if !ok {
		band = savingsBand{0.1, 0.3}
	}
	pct := band.low + c.rng.Float64()*(band.high-band.low)
	savings := monthlyCost * pct
	if savings < 0 {
		savings = 0
	}
	return savings
}

func priorityFor(monthlySavings float64) int {
	switch {
	case monthlySavings >= 500:
		return 1
	case monthlySavings >= 100:
		return 2
	default:
		return 3
	}
}

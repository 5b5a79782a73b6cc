// Package detector implements the per-resource-type waste heuristics.
package detector

import (
	"fmt"
	"math"

	"github.com/vietddude/costwatch/internal/core/domain"
)

// Thresholds for the fixed detection rules. Comparisons are strict: a
// reading exactly at the threshold is healthy.
const (
	cpuThreshold      = 20.0
	memoryThreshold   = 20.0
	lambdaMemThreshold = 50.0
	snapshotMaxAgeDays = 90.0
	gatewayMinBytes    = 1 << 30 // 1 GiB over the measurement window
)

// Verdict is the outcome of a waste check.
type Verdict struct {
	Wasteful bool
	Reason   string
}

// Detect maps a resource snapshot to a wasteful/healthy verdict. It never
// returns an error; a snapshot without metrics is always healthy with
// reason "no metrics".
func Detect(snap *domain.ResourceSnapshot) Verdict {
	if snap == nil || snap.Metrics == nil {
		return Verdict{Wasteful: false, Reason: "no metrics"}
	}

	m := snap.Metrics
	switch snap.Type {
	case domain.ResourceEC2Instance:
		return detectCompute(m.Compute)
	case domain.ResourceRDSInstance, domain.ResourceRedshift:
		return detectDatabase(m.Database)
	case domain.ResourceEBSVolume:
		return detectVolume(m.Volume)
	case domain.ResourceEBSSnapshot:
		return detectSnapshot(m.Snapshot)
	case domain.ResourceElasticIP:
		return detectAddress(m.Address)
	case domain.ResourceNATGateway:
		return detectGateway(m.Gateway)
	case domain.ResourceLoadBalancer:
		return detectLoadBalancer(m.LoadBalancer)
	case domain.ResourceS3Bucket:
		return detectBucket(m.Bucket)
	case domain.ResourceLambda:
		return detectFunction(m.Function)
	default:
		// Unknown types fall back to the compute AND rule, which only
		// flags when both readings are present and low.
		return detectCompute(m.Compute)
	}
}

func detectCompute(m *domain.ComputeMetrics) Verdict {
	if m == nil {
		return Verdict{Reason: "no metrics"}
	}
	// CPU assumes the wasteful bias when absent; memory assumes healthy.
	cpu := orDefault(m.CPUPercent, 0)
	mem := orDefault(m.MemoryPercent, 100)
	if strictlyBelow(cpu, cpuThreshold) && strictlyBelow(mem, memoryThreshold) {
		return Verdict{
			Wasteful: true,
			Reason:   fmt.Sprintf("low CPU utilization (%.1f%%) and low memory utilization (%.1f%%)", cpu, mem),
		}
	}
	return Verdict{Reason: "utilization within normal range"}
}

func detectDatabase(m *domain.DatabaseMetrics) Verdict {
	if m == nil {
		return Verdict{Reason: "no metrics"}
	}
	cpu := orDefault(m.CPUPercent, 0)
	if strictlyBelow(cpu, cpuThreshold) {
		return Verdict{Wasteful: true, Reason: fmt.Sprintf("low CPU utilization (%.1f%%)", cpu)}
	}
	return Verdict{Reason: "utilization within normal range"}
}

func detectVolume(m *domain.VolumeMetrics) Verdict {
	if m == nil {
		return Verdict{Reason: "no metrics"}
	}
	if m.AttachmentID == "" {
		return Verdict{Wasteful: true, Reason: "volume is not attached to any instance"}
	}
	if m.VolumeClass == "standard" {
		return Verdict{Wasteful: true, Reason: "volume uses the legacy magnetic class"}
	}
	return Verdict{Reason: "volume attached and on a current class"}
}

func detectSnapshot(m *domain.SnapshotMetrics) Verdict {
	if m == nil {
		return Verdict{Reason: "no metrics"}
	}
	if !orDefaultBool(m.SourceVolumeExists, true) {
		return Verdict{Wasteful: true, Reason: "source volume no longer exists"}
	}
	age := orDefault(m.AgeDays, 0)
	if strictlyAbove(age, snapshotMaxAgeDays) {
		return Verdict{Wasteful: true, Reason: fmt.Sprintf("snapshot is %.0f days old", age)}
	}
	return Verdict{Reason: "snapshot recent and source volume present"}
}

func detectAddress(m *domain.AddressMetrics) Verdict {
	if m == nil {
		return Verdict{Reason: "no metrics"}
	}
	if !orDefaultBool(m.Associated, true) {
		return Verdict{Wasteful: true, Reason: "address is not associated with any attachment"}
	}
	return Verdict{Reason: "address in use"}
}

func detectGateway(m *domain.GatewayMetrics) Verdict {
	if m == nil {
		return Verdict{Reason: "no metrics"}
	}
	bytes := orDefault(m.BytesProcessed, 0)
	if strictlyBelow(bytes, gatewayMinBytes) {
		return Verdict{Wasteful: true, Reason: fmt.Sprintf("gateway processed only %.0f bytes in the window", bytes)}
	}
	return Verdict{Reason: "gateway carrying traffic"}
}

func detectLoadBalancer(m *domain.LoadBalancerMetrics) Verdict {
	if m == nil {
		return Verdict{Reason: "no metrics"}
	}
	requests := orDefault(m.RequestCount, 0)
	if !finite(requests) {
		return Verdict{Reason: "request count unreadable"}
	}
	if requests == 0 {
		return Verdict{Wasteful: true, Reason: "load balancer received no requests in the window"}
	}
	return Verdict{Reason: "load balancer serving traffic"}
}

func detectBucket(m *domain.BucketMetrics) Verdict {
	if m == nil {
		return Verdict{Reason: "no metrics"}
	}
	// Absence of the flag assumes a policy exists (the healthy value).
	if !orDefaultBool(m.HasLifecyclePolicy, true) {
		return Verdict{Wasteful: true, Reason: "bucket has no lifecycle policy configured"}
	}
	return Verdict{Reason: "lifecycle policy configured"}
}

func detectFunction(m *domain.FunctionMetrics) Verdict {
	if m == nil {
		return Verdict{Reason: "no metrics"}
	}
	memUtil := orDefault(m.MemoryUtilization, 100)
	invocations := orDefault(m.Invocations, 0)
	if strictlyBelow(memUtil, lambdaMemThreshold) {
		return Verdict{Wasteful: true, Reason: fmt.Sprintf("memory utilization at %.1f%%", memUtil)}
	}
	if finite(invocations) && invocations == 0 {
		return Verdict{Wasteful: true, Reason: "function had zero invocations in the window"}
	}
	return Verdict{Reason: "function actively used"}
}

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func orDefaultBool(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// strictlyBelow guards every low-utilization comparison. Malformed readings
// (NaN, ±Inf) always evaluate healthy so bad data cannot produce a false
// positive.
func strictlyBelow(v, threshold float64) bool {
	return finite(v) && v < threshold
}

func strictlyAbove(v, threshold float64) bool {
	return finite(v) && v > threshold
}

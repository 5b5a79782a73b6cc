package domain

import "time"

// ResourceType identifies the kind of cloud resource a snapshot describes.
type ResourceType string

const (
	ResourceEC2Instance  ResourceType = "ec2_instance"
	ResourceRDSInstance  ResourceType = "rds_instance"
	ResourceRedshift     ResourceType = "redshift_cluster"
	ResourceEBSVolume    ResourceType = "ebs_volume"
	ResourceEBSSnapshot  ResourceType = "ebs_snapshot"
	ResourceElasticIP    ResourceType = "elastic_ip"
	ResourceNATGateway   ResourceType = "nat_gateway"
	ResourceLoadBalancer ResourceType = "load_balancer"
	ResourceS3Bucket     ResourceType = "s3_bucket"
	ResourceLambda       ResourceType = "lambda_function"
)

// ResourceSnapshot is a point-in-time view of a single cloud resource as
// reported by the ingestion side. The agent never mutates snapshots.
type ResourceSnapshot struct {
	ResourceID  string
	TenantID    string
	Type        ResourceType
	Region      string
	Name        string
	Config      map[string]any
	Metrics     *ResourceMetrics // nil means metrics are unavailable
	MonthlyCost float64
	ScannedAt   time.Time
}

// ResourceMetrics is a tagged union of per-type utilization readings.
// Exactly one variant is set, matching the snapshot's resource type.
// Individual fields are pointers so an absent reading is distinguishable
// from a zero reading.
type ResourceMetrics struct {
	Compute      *ComputeMetrics
	Database     *DatabaseMetrics
	Volume       *VolumeMetrics
	Snapshot     *SnapshotMetrics
	Address      *AddressMetrics
	Gateway      *GatewayMetrics
	LoadBalancer *LoadBalancerMetrics
	Bucket       *BucketMetrics
	Function     *FunctionMetrics
}

// ComputeMetrics covers EC2 instances (and unknown types, as the
// conservative fallback).
type ComputeMetrics struct {
	CPUPercent    *float64
	MemoryPercent *float64
}

// DatabaseMetrics covers RDS instances and Redshift clusters.
type DatabaseMetrics struct {
	CPUPercent *float64
}

// VolumeMetrics covers EBS volumes.
type VolumeMetrics struct {
	AttachmentID string // empty means unattached
	VolumeClass  string // "standard" is the legacy magnetic class
}

// SnapshotMetrics covers EBS snapshots.
type SnapshotMetrics struct {
	SourceVolumeExists *bool
	AgeDays            *float64
}

// AddressMetrics covers Elastic IPs.
type AddressMetrics struct {
	Associated *bool
}

// GatewayMetrics covers NAT gateways.
type GatewayMetrics struct {
	BytesProcessed *float64
}

// LoadBalancerMetrics covers load balancers.
type LoadBalancerMetrics struct {
	RequestCount *float64
}

// BucketMetrics covers S3 buckets.
type BucketMetrics struct {
	HasLifecyclePolicy *bool
}

// FunctionMetrics covers Lambda functions.
type FunctionMetrics struct {
	MemoryUtilization *float64
	Invocations       *float64
}

// MutationResult is returned by the cloud mutation executor after applying
// a recommendation.
type MutationResult struct {
	Applied              bool
	ActualMonthlySavings float64
	AfterConfig          map[string]any
	Details              string
}

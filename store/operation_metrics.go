package store

import "time"

// OperationMetrics represents hourly aggregated metrics for an operation or command.
type OperationMetrics struct {
	ID           int64
	HourBucket   time.Time
	Kind         string // "operation" or "command"
	Name         string
	RequestCount int64
	SuccessCount int64
	LatencySumMs int64
	LatencyP50Ms int32
	LatencyP95Ms int32
}

// UpsertOperationMetrics accumulates counts into the (hour, kind, name) row.
type UpsertOperationMetrics struct {
	HourBucket   time.Time
	Kind         string
	Name         string
	RequestCount int64
	SuccessCount int64
	LatencySumMs int64
	LatencyP50Ms int32
	LatencyP95Ms int32
}

// FindOperationMetrics specifies the conditions for finding operation metrics.
type FindOperationMetrics struct {
	Kind      *string
	Name      *string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
}

// DeleteOperationMetrics specifies the conditions for deleting operation metrics.
type DeleteOperationMetrics struct {
	BeforeTime *time.Time // Delete records older than this time
}

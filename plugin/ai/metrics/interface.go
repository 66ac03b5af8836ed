// Package metrics collects latency and outcome samples per operation and per command.
package metrics

import (
	"context"
	"time"
)

// Sample kinds.
const (
	KindOperation = "operation"
	KindCommand   = "command"
)

// MetricsService records samples and reports aggregated statistics.
type MetricsService interface {
	// RecordOperation records one internal operation (context load, booking call, ...).
	RecordOperation(ctx context.Context, name string, latency time.Duration, success bool)

	// RecordCommand records one executed command.
	RecordCommand(ctx context.Context, command string, latency time.Duration, success bool)

	// GetStats retrieves statistics for the given time range.
	GetStats(ctx context.Context, timeRange TimeRange) (*Stats, error)
}

// TimeRange represents a time range for querying metrics.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// LastHours returns the range ending at now.
func LastHours(now time.Time, hours int) TimeRange {
	return TimeRange{Start: now.Add(-time.Duration(hours) * time.Hour), End: now}
}

// Stats is the aggregated view over all samples.
type Stats struct {
	RequestCount int64                `json:"request_count"`
	SuccessCount int64                `json:"success_count"`
	SuccessRate  float64              `json:"success_rate"`
	LatencyP50   time.Duration        `json:"latency_p50"`
	LatencyP95   time.Duration        `json:"latency_p95"`
	Operations   map[string]*NameStat `json:"operations"`
	Commands     map[string]*NameStat `json:"commands"`
	ErrorsByName map[string]int64     `json:"errors_by_name"`
}

// NameStat represents statistics for a single operation or command name.
type NameStat struct {
	Count       int64         `json:"count"`
	Failures    int64         `json:"failures"`
	SuccessRate float32       `json:"success_rate"`
	AvgLatency  time.Duration `json:"avg_latency"`
	P95Latency  time.Duration `json:"p95_latency"`
}

func newStats() *Stats {
	return &Stats{
		Operations:   make(map[string]*NameStat),
		Commands:     make(map[string]*NameStat),
		ErrorsByName: make(map[string]int64),
	}
}

func (s *Stats) byKind(kind string) map[string]*NameStat {
	if kind == KindCommand {
		return s.Commands
	}
	return s.Operations
}

func (s *Stats) finish() {
	if s.RequestCount > 0 {
		s.SuccessRate = float64(s.SuccessCount) / float64(s.RequestCount)
	}
	for _, m := range []map[string]*NameStat{s.Operations, s.Commands} {
		for _, st := range m {
			if st.Count > 0 {
				st.SuccessRate = float32(st.Count-st.Failures) / float32(st.Count)
			}
		}
	}
}

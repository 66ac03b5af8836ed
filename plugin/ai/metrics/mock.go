package metrics

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockMetricsService is a mock implementation of MetricsService for testing.
type MockMetricsService struct {
	mu      sync.RWMutex
	samples []Sample
}

// Sample is one recorded call on the mock.
type Sample struct {
	Kind      string
	Name      string
	Latency   time.Duration
	Success   bool
	Timestamp time.Time
}

// NewMockMetricsService creates a new MockMetricsService.
func NewMockMetricsService() *MockMetricsService {
	return &MockMetricsService{}
}

// RecordOperation records an operation sample.
func (m *MockMetricsService) RecordOperation(_ context.Context, name string, latency time.Duration, success bool) {
	m.add(KindOperation, name, latency, success)
}

// RecordCommand records a command sample.
func (m *MockMetricsService) RecordCommand(_ context.Context, command string, latency time.Duration, success bool) {
	m.add(KindCommand, command, latency, success)
}

func (m *MockMetricsService) add(kind, name string, latency time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, Sample{
		Kind:      kind,
		Name:      name,
		Latency:   latency,
		Success:   success,
		Timestamp: time.Now(),
	})
}

// Samples returns a copy of the recorded samples, optionally filtered by kind.
func (m *MockMetricsService) Samples(kind string) []Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Sample, 0, len(m.samples))
	for _, s := range m.samples {
		if kind == "" || s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// GetStats computes statistics over the recorded samples.
func (m *MockMetricsService) GetStats(_ context.Context, timeRange TimeRange) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := newStats()
	var latencies []time.Duration
	sums := make(map[string]time.Duration)

	for _, s := range m.samples {
		if (!timeRange.Start.IsZero() && s.Timestamp.Before(timeRange.Start)) ||
			(!timeRange.End.IsZero() && s.Timestamp.After(timeRange.End)) {
			continue
		}
		stats.RequestCount++
		latencies = append(latencies, s.Latency)

		byKind := stats.byKind(s.Kind)
		st, ok := byKind[s.Name]
		if !ok {
			st = &NameStat{}
			byKind[s.Name] = st
		}
		st.Count++
		sums[s.Kind+"|"+s.Name] += s.Latency
		if s.Success {
			stats.SuccessCount++
		} else {
			st.Failures++
			stats.ErrorsByName[s.Name]++
		}
	}

	for _, kind := range []string{KindOperation, KindCommand} {
		for name, st := range stats.byKind(kind) {
			st.AvgLatency = sums[kind+"|"+name] / time.Duration(st.Count)
		}
	}

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		stats.LatencyP50 = latencies[(len(latencies)-1)*50/100]
		stats.LatencyP95 = latencies[(len(latencies)-1)*95/100]
	}
	stats.finish()
	return stats, nil
}

// Clear removes all recorded samples.
func (m *MockMetricsService) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = nil
}

var _ MetricsService = (*MockMetricsService)(nil)

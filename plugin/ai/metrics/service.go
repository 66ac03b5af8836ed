package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/vosarsen/ai-admin-v2-sub004/store"
)

// ErrMetricsNotConfigured is returned when metrics persistence is not configured.
var ErrMetricsNotConfigured = errors.New("metrics persistence not configured")

// Service implements the MetricsService interface with optional persistence and export.
type Service struct {
	store      Store
	aggregator *Aggregator
	persister  *Persister
	exporter   *Exporter
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithExporter mirrors every sample into Prometheus collectors.
func WithExporter(e *Exporter) Option {
	return func(s *Service) { s.exporter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces the time source of the aggregator and persister.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.aggregator.WithClock(now) }
}

// NewService creates a new metrics service.
// If s is nil, metrics are only aggregated in memory (no persistence).
// The persister loops are not started; call Start.
func NewService(s Store, cfg PersisterConfig, opts ...Option) *Service {
	svc := &Service{
		store:      s,
		aggregator: NewAggregator(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}

	if s != nil {
		svc.persister = NewPersister(s, svc.aggregator, cfg, svc.logger)
		svc.persister.now = svc.aggregator.now
	} else {
		svc.logger.Warn("metrics service initialized without store (persistence disabled)")
	}
	return svc
}

// Start launches the background flush and cleanup loops.
func (s *Service) Start() {
	if s.persister != nil {
		s.persister.Start()
	}
}

// Close stops the metrics service and flushes remaining data.
func (s *Service) Close() {
	if s.persister != nil {
		s.persister.Close()
	}
}

// Exporter returns the attached Prometheus exporter, or nil.
func (s *Service) Exporter() *Exporter {
	return s.exporter
}

// RecordOperation records an internal operation sample.
func (s *Service) RecordOperation(_ context.Context, name string, latency time.Duration, success bool) {
	s.record(KindOperation, name, latency, success)
}

// RecordCommand records an executed command sample.
func (s *Service) RecordCommand(_ context.Context, command string, latency time.Duration, success bool) {
	s.record(KindCommand, command, latency, success)
}

func (s *Service) record(kind, name string, latency time.Duration, success bool) {
	s.aggregator.Record(kind, name, latency, success)
	if s.exporter != nil {
		s.exporter.Observe(kind, name, latency, success)
	}
}

// GetStats merges in-memory buckets with persisted rows for the given time range.
func (s *Service) GetStats(ctx context.Context, timeRange TimeRange) (*Stats, error) {
	stats := s.aggregator.CurrentStats(timeRange)
	if s.store == nil {
		return stats, nil
	}

	find := &store.FindOperationMetrics{Limit: 5000}
	if !timeRange.Start.IsZero() {
		start := truncateToHour(timeRange.Start)
		find.StartTime = &start
	}
	if !timeRange.End.IsZero() {
		find.EndTime = &timeRange.End
	}
	rows, err := s.store.ListOperationMetrics(ctx, find)
	if err != nil {
		// Persisted history is optional for a stats view.
		s.logger.Warn("failed to query persisted operation metrics", "error", err)
		return stats, nil
	}

	mergeRows(stats, rows)
	return stats, nil
}

// mergeRows folds persisted hour rows into stats.
// Per-name averages are recomputed from latency sums; p95 keeps the worst bucket
// and the overall p50 is request-weighted across buckets.
func mergeRows(stats *Stats, rows []*store.OperationMetrics) {
	if len(rows) == 0 {
		return
	}

	memCount := stats.RequestCount
	weightedP50 := float64(stats.LatencyP50.Milliseconds()) * float64(memCount)
	for _, row := range rows {
		stats.RequestCount += row.RequestCount
		stats.SuccessCount += row.SuccessCount
		weightedP50 += float64(row.LatencyP50Ms) * float64(row.RequestCount)
		if p95 := time.Duration(row.LatencyP95Ms) * time.Millisecond; p95 > stats.LatencyP95 {
			stats.LatencyP95 = p95
		}

		m := stats.byKind(row.Kind)
		st, ok := m[row.Name]
		if !ok {
			st = &NameStat{}
			m[row.Name] = st
		}
		sumMs := st.AvgLatency.Milliseconds()*st.Count + row.LatencySumMs
		failures := row.RequestCount - row.SuccessCount
		st.Count += row.RequestCount
		st.Failures += failures
		if st.Count > 0 {
			st.AvgLatency = time.Duration(sumMs/st.Count) * time.Millisecond
		}
		if p95 := time.Duration(row.LatencyP95Ms) * time.Millisecond; p95 > st.P95Latency {
			st.P95Latency = p95
		}
		if failures > 0 {
			stats.ErrorsByName[row.Name] += failures
		}
	}
	if stats.RequestCount > 0 {
		stats.LatencyP50 = time.Duration(weightedP50/float64(stats.RequestCount)) * time.Millisecond
	}
	stats.finish()
}

// Flush forces an immediate flush of completed hours to the database.
func (s *Service) Flush(ctx context.Context) error {
	if s.persister == nil {
		return ErrMetricsNotConfigured
	}
	return s.persister.Flush(ctx)
}

// HasPersistence returns true if metrics persistence is enabled.
func (s *Service) HasPersistence() bool {
	return s.persister != nil
}

// Track starts a timer and returns a function that records the sample.
//
//	done := metrics.Track(ctx, m, metrics.KindOperation, "context.load")
//	err := load()
//	done(err)
func Track(ctx context.Context, m MetricsService, kind, name string) func(err error) {
	start := time.Now()
	return func(err error) {
		if m == nil {
			return
		}
		latency := time.Since(start)
		if kind == KindCommand {
			m.RecordCommand(ctx, name, latency, err == nil)
			return
		}
		m.RecordOperation(ctx, name, latency, err == nil)
	}
}

var _ MetricsService = (*Service)(nil)

package metrics

import (
	"sort"
	"sync"
	"time"
)

// Aggregator aggregates samples in memory before persisting to database.
type Aggregator struct {
	mu  sync.RWMutex
	now func() time.Time

	// key = "kind|hourBucket|name"
	buckets map[string]*bucket
}

type bucket struct {
	hourBucket   time.Time
	kind         string
	name         string
	requestCount int64
	successCount int64
	latencies    []int64 // in milliseconds
}

// Snapshot is one completed hour bucket ready for persistence.
type Snapshot struct {
	HourBucket   time.Time
	Kind         string
	Name         string
	RequestCount int64
	SuccessCount int64
	LatencySumMs int64
	LatencyP50Ms int32
	LatencyP95Ms int32
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// WithClock replaces the time source.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.mu.Lock()
	a.now = now
	a.mu.Unlock()
	return a
}

// Record adds a single sample.
func (a *Aggregator) Record(kind, name string, latency time.Duration, success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	hourBucket := truncateToHour(a.now())
	key := makeKey(kind, hourBucket, name)

	b, ok := a.buckets[key]
	if !ok {
		b = &bucket{
			hourBucket: hourBucket,
			kind:       kind,
			name:       name,
			latencies:  make([]int64, 0, 16),
		}
		a.buckets[key] = b
	}

	b.requestCount++
	if success {
		b.successCount++
	}
	b.latencies = append(b.latencies, latency.Milliseconds())
}

// Flush returns and clears all buckets for hours before beforeHour.
func (a *Aggregator) Flush(beforeHour time.Time) []*Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	var snapshots []*Snapshot
	for key, b := range a.buckets {
		if !b.hourBucket.Before(beforeHour) {
			continue
		}
		snapshots = append(snapshots, &Snapshot{
			HourBucket:   b.hourBucket,
			Kind:         b.kind,
			Name:         b.name,
			RequestCount: b.requestCount,
			SuccessCount: b.successCount,
			LatencySumMs: sumLatencies(b.latencies),
			LatencyP50Ms: int32(percentile(b.latencies, 50)),
			LatencyP95Ms: int32(percentile(b.latencies, 95)),
		})
		delete(a.buckets, key)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].HourBucket.Before(snapshots[j].HourBucket)
	})
	return snapshots
}

// CurrentStats returns aggregated stats for the samples still held in memory.
func (a *Aggregator) CurrentStats(timeRange TimeRange) *Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := newStats()
	all := make([]int64, 0)
	perName := make(map[string][]int64)

	for _, b := range a.buckets {
		if !inRange(b.hourBucket, timeRange) {
			continue
		}
		stats.RequestCount += b.requestCount
		stats.SuccessCount += b.successCount
		all = append(all, b.latencies...)

		m := stats.byKind(b.kind)
		st, ok := m[b.name]
		if !ok {
			st = &NameStat{}
			m[b.name] = st
		}
		failures := b.requestCount - b.successCount
		st.Count += b.requestCount
		st.Failures += failures
		if failures > 0 {
			stats.ErrorsByName[b.name] += failures
		}

		k := b.kind + "|" + b.name
		perName[k] = append(perName[k], b.latencies...)
	}

	for _, kind := range []string{KindOperation, KindCommand} {
		for name, st := range stats.byKind(kind) {
			lat := perName[kind+"|"+name]
			if len(lat) > 0 {
				st.AvgLatency = time.Duration(sumLatencies(lat)/int64(len(lat))) * time.Millisecond
				st.P95Latency = time.Duration(percentile(lat, 95)) * time.Millisecond
			}
		}
	}

	stats.LatencyP50 = time.Duration(percentile(all, 50)) * time.Millisecond
	stats.LatencyP95 = time.Duration(percentile(all, 95)) * time.Millisecond
	stats.finish()
	return stats
}

func inRange(hour time.Time, r TimeRange) bool {
	// A bucket overlaps the range when its hour is not entirely outside it.
	if !r.Start.IsZero() && hour.Add(time.Hour).Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && hour.After(r.End) {
		return false
	}
	return true
}

func truncateToHour(t time.Time) time.Time {
	return t.Truncate(time.Hour)
}

func makeKey(kind string, hourBucket time.Time, name string) string {
	return kind + "|" + hourBucket.Format(time.RFC3339) + "|" + name
}

func sumLatencies(latencies []int64) int64 {
	var sum int64
	for _, l := range latencies {
		sum += l
	}
	return sum
}

func percentile(latencies []int64, p int) int64 {
	if len(latencies) == 0 {
		return 0
	}

	sorted := make([]int64, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := (len(sorted) - 1) * p / 100
	return sorted[idx]
}

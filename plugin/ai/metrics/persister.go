package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/vosarsen/ai-admin-v2-sub004/store"
)

// Store is the persistence surface used by the metrics service.
type Store interface {
	UpsertOperationMetrics(ctx context.Context, upsert *store.UpsertOperationMetrics) (*store.OperationMetrics, error)
	ListOperationMetrics(ctx context.Context, find *store.FindOperationMetrics) ([]*store.OperationMetrics, error)
	DeleteOperationMetrics(ctx context.Context, delete *store.DeleteOperationMetrics) error
}

// Persister handles periodic persistence of aggregated metrics to the database.
type Persister struct {
	store      Store
	aggregator *Aggregator
	logger     *slog.Logger
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	flushInterval   time.Duration
	retentionPeriod time.Duration
	cleanupInterval time.Duration
}

// PersisterConfig configures the metrics persister.
type PersisterConfig struct {
	FlushInterval   time.Duration // How often to flush metrics to DB (default: 5 minutes)
	RetentionPeriod time.Duration // How long to keep metrics (default: 30 days)
	CleanupInterval time.Duration // How often to run cleanup (default: 24 hours)
}

// DefaultPersisterConfig returns default persister configuration.
func DefaultPersisterConfig() PersisterConfig {
	return PersisterConfig{
		FlushInterval:   5 * time.Minute,
		RetentionPeriod: 30 * 24 * time.Hour,
		CleanupInterval: 24 * time.Hour,
	}
}

// NewPersister creates a new metrics persister.
func NewPersister(s Store, agg *Aggregator, cfg PersisterConfig, logger *slog.Logger) *Persister {
	def := DefaultPersisterConfig()
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.RetentionPeriod <= 0 {
		cfg.RetentionPeriod = def.RetentionPeriod
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Persister{
		store:           s,
		aggregator:      agg,
		logger:          logger,
		now:             time.Now,
		ctx:             ctx,
		cancel:          cancel,
		flushInterval:   cfg.FlushInterval,
		retentionPeriod: cfg.RetentionPeriod,
		cleanupInterval: cfg.CleanupInterval,
	}
}

// Start begins the background persistence and cleanup tasks.
func (p *Persister) Start() {
	p.wg.Add(2)
	go p.flushLoop()
	go p.cleanupLoop()
}

// Close stops the persister and waits for goroutines to finish.
func (p *Persister) Close() {
	p.cancel()
	p.wg.Wait()
}

// Flush immediately persists all completed hour buckets to the database.
// Failed snapshots are logged and dropped; the first error is returned.
func (p *Persister) Flush(ctx context.Context) error {
	return p.flushBefore(ctx, truncateToHour(p.now()))
}

// FlushAll persists every bucket including the current hour. Used on shutdown.
func (p *Persister) FlushAll(ctx context.Context) error {
	return p.flushBefore(ctx, truncateToHour(p.now()).Add(time.Hour))
}

func (p *Persister) flushBefore(ctx context.Context, before time.Time) error {
	var firstErr error
	for _, snapshot := range p.aggregator.Flush(before) {
		_, err := p.store.UpsertOperationMetrics(ctx, &store.UpsertOperationMetrics{
			HourBucket:   snapshot.HourBucket,
			Kind:         snapshot.Kind,
			Name:         snapshot.Name,
			RequestCount: snapshot.RequestCount,
			SuccessCount: snapshot.SuccessCount,
			LatencySumMs: snapshot.LatencySumMs,
			LatencyP50Ms: snapshot.LatencyP50Ms,
			LatencyP95Ms: snapshot.LatencyP95Ms,
		})
		if err != nil {
			p.logger.Error("failed to persist operation metrics",
				"kind", snapshot.Kind,
				"name", snapshot.Name,
				"hour", snapshot.HourBucket,
				"error", err,
			)
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "persist %s/%s", snapshot.Kind, snapshot.Name)
			}
		}
	}
	return firstErr
}

func (p *Persister) flushLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			// Final flush before shutdown
			_ = p.FlushAll(context.Background())
			return
		case <-ticker.C:
			if err := p.Flush(p.ctx); err != nil {
				p.logger.Error("periodic metrics flush failed", "error", err)
			}
		}
	}
}

func (p *Persister) cleanupLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.cleanup(p.ctx)
		}
	}
}

func (p *Persister) cleanup(ctx context.Context) {
	cutoff := p.now().Add(-p.retentionPeriod)

	if err := p.store.DeleteOperationMetrics(ctx, &store.DeleteOperationMetrics{
		BeforeTime: &cutoff,
	}); err != nil {
		p.logger.Error("failed to cleanup old operation metrics", "error", err)
		return
	}

	p.logger.Debug("metrics cleanup completed", "cutoff", cutoff)
}

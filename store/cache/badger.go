package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// BadgerConfig configures the badger-backed shared cache.
type BadgerConfig struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in RAM; contents are lost on Close.
	InMemory bool
	// DefaultTTL applies when Set is called with a non-positive TTL.
	DefaultTTL time.Duration
	// GCInterval controls value log garbage collection for on-disk databases.
	GCInterval time.Duration
	Logger     *slog.Logger
}

// BadgerCache implements SharedCache on top of an embedded badger database.
// Expiry is delegated to badger entry TTLs.
type BadgerCache struct {
	db         *badger.DB
	defaultTTL time.Duration
	logger     *slog.Logger

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// OpenBadgerCache opens the database and starts value log GC when on disk.
func OpenBadgerCache(cfg BadgerConfig) (*BadgerCache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent shared cache")
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 30 * time.Minute
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, errors.Wrapf(err, "create shared cache directory %s", cfg.Path)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger shared cache")
	}

	c := &BadgerCache{
		db:         db,
		defaultTTL: cfg.DefaultTTL,
		logger:     cfg.Logger,
		stop:       make(chan struct{}),
	}
	if !cfg.InMemory {
		c.wg.Add(1)
		go c.gcLoop(cfg.GCInterval)
	}
	return c, nil
}

// Get returns the value if present and not expired.
func (c *BadgerCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if ctx.Err() != nil {
		return nil, false
	}

	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Warn("shared cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	return value, true
}

// Set stores value with ttl.
func (c *BadgerCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), value).WithTTL(ttl))
	})
	return errors.Wrapf(err, "shared cache set %s", key)
}

// Delete removes a single key. Missing keys are not an error.
func (c *BadgerCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	return errors.Wrapf(err, "shared cache delete %s", key)
}

// Invalidate removes keys matching pattern. A trailing * matches a prefix.
func (c *BadgerCache) Invalidate(ctx context.Context, pattern string) error {
	if !strings.HasSuffix(pattern, "*") {
		return c.Delete(ctx, pattern)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	prefix := []byte(strings.TrimSuffix(pattern, "*"))
	var keys [][]byte
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "shared cache scan %s", pattern)
	}
	if len(keys) == 0 {
		return nil
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return errors.Wrapf(err, "shared cache invalidate %s", pattern)
		}
	}
	return errors.Wrapf(wb.Flush(), "shared cache invalidate %s", pattern)
}

// Close stops GC and closes the database.
// Close stops GC and closes the database. Safe to call more than once.
func (c *BadgerCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()
		c.closeErr = c.db.Close()
	})
	return c.closeErr
}

func (c *BadgerCache) gcLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			// Rewrite until there is nothing left to collect.
			for {
				if err := c.db.RunValueLogGC(0.5); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						c.logger.Warn("shared cache value log gc failed", "error", err)
					}
					break
				}
			}
		}
	}
}

// badgerLogger routes badger's internal logging to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

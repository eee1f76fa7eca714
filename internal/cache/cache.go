// Package cache stores detection results keyed by model and audio digest, so a
// re-upload of the same clip skips the extractor.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"spad-go/internal/logger"
	"spad-go/internal/metrics"
	"spad-go/internal/types"
)

const DefaultTTL = 24 * time.Hour

type Options struct {
	// Dir holds the badger files. Empty means in-memory.
	Dir string
	TTL time.Duration
}

type Cache struct {
	db  *badger.DB
	ttl time.Duration
	log *logrus.Entry
}

func Open(opts Options, log *logger.Logger) (*Cache, error) {
	if log == nil {
		log = logger.New()
	}
	entry := log.WithComponent("cache")

	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.Dir == "" {
		dbOpts = dbOpts.WithInMemory(true)
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{entry})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("cache: open: %w", err)
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	entry.WithFields(logrus.Fields{"dir": opts.Dir, "ttl": opts.TTL.String()}).Info("result cache ready")
	return &Cache{db: db, ttl: opts.TTL, log: entry}, nil
}

// Key scopes a content digest to the model that produced the label.
func Key(modelID, sha256 string) string {
	return "detect:" + modelID + ":" + sha256
}

// Get returns the cached result and whether there was one.
func (c *Cache) Get(_ context.Context, key string) (types.DetectionResult, bool, error) {
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return types.DetectionResult{}, false, nil
	}
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return types.DetectionResult{}, false, fmt.Errorf("cache: get: %w", err)
	}

	var res types.DetectionResult
	if err := json.Unmarshal(val, &res); err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return types.DetectionResult{}, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return res, true, nil
}

func (c *Cache) Set(_ context.Context, key string, res types.DetectionResult) error {
	val, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), val).WithTTL(c.ttl))
	})
}

func (c *Cache) Close() error { return c.db.Close() }

// badgerLogger routes badger's chatter through logrus, one level quieter.
type badgerLogger struct{ e *logrus.Entry }

func (l badgerLogger) Errorf(f string, args ...any)   { l.e.Errorf(f, args...) }
func (l badgerLogger) Warningf(f string, args ...any) { l.e.Warnf(f, args...) }
func (l badgerLogger) Infof(f string, args ...any)    { l.e.Debugf(f, args...) }
func (l badgerLogger) Debugf(f string, args ...any)   { l.e.Tracef(f, args...) }

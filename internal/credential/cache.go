package credential

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Cache holds at most one credential. Writes replace the whole value, so
// readers never observe a partially updated credential.
type Cache struct {
	mu       sync.RWMutex
	current  *Credential
	closed   bool
	snapshot *FileStore
	logger   zerolog.Logger
	now      func() time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithSnapshot persists every stored credential to store and seeds the cache
// from it on construction when the stored credential is still valid.
func WithSnapshot(store *FileStore) CacheOption {
	return func(c *Cache) {
		c.snapshot = store
	}
}

// WithCacheLogger sets the logger used for snapshot failures.
func WithCacheLogger(logger zerolog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithClock overrides the time source used for validity checks.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCache creates an empty cache, seeded from the snapshot if one is configured.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.snapshot != nil {
		stored, err := c.snapshot.Load()
		switch {
		case errors.Is(err, ErrCorruptSnapshot):
			c.logger.Warn().Err(err).Str("path", c.snapshot.Path()).Msg("discarding corrupt credential snapshot")
			c.dropSnapshot()
		case err != nil:
			c.logger.Warn().Err(err).Str("path", c.snapshot.Path()).Msg("ignoring unreadable credential snapshot")
		case stored == nil:
		case stored.Valid(c.now()):
			c.current = stored
			c.logger.Debug().Str("source", stored.Source).Time("expires_at", stored.ExpiresAt).Msg("credential cache seeded from snapshot")
		default:
			c.logger.Debug().Time("expires_at", stored.ExpiresAt).Msg("discarding expired credential snapshot")
			c.dropSnapshot()
		}
	}

	return c
}

func (c *Cache) dropSnapshot() {
	if err := c.snapshot.Delete(); err != nil {
		c.logger.Warn().Err(err).Str("path", c.snapshot.Path()).Msg("failed to remove credential snapshot")
	}
}

// Get returns the cached credential if it is still valid.
func (c *Cache) Get() (Credential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil || !c.current.Valid(c.now()) {
		return Credential{}, false
	}
	return *c.current, true
}

// Put replaces the cached credential. It is a no-op after Close.
func (c *Cache) Put(cred Credential) {
	stored := cred

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.current = &stored
	c.mu.Unlock()

	if c.snapshot != nil {
		if err := c.snapshot.Save(&stored); err != nil {
			c.logger.Warn().Err(err).Str("path", c.snapshot.Path()).Msg("failed to persist credential snapshot")
		}
	}
}

// Close drops the cached credential and rejects further writes.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = nil
	c.closed = true
}

// Package cache implements the Discussion Cache (spec §4.4): a key→Discussion
// map with soft TTL eviction, write-through to the store. It is authoritative
// for the active-set snapshot during a single command; the store remains
// authoritative across restarts.
package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/discussord/internal/clock"
	"github.com/kandev/discussord/internal/logger"
	"github.com/kandev/discussord/internal/storage"
	v1 "github.com/kandev/discussord/pkg/api/v1"
)

type entry struct {
	discussion   *v1.Discussion
	lastAccessed time.Time
}

// Config controls the Discussion Cache's TTL eviction sweep.
type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// DefaultConfig returns the spec's default (1 hour soft TTL).
func DefaultConfig() Config {
	return Config{TTL: time.Hour, SweepInterval: 5 * time.Minute}
}

// Cache is a concurrency-safe, TTL-evicted snapshot of active discussions.
// Entries are value-copies, never shared pointers to hot state.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	store   storage.Port
	timers  *clock.Registry
	logger  *logger.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Cache backed by store, evicting entries idle longer
// than ttl. timers is the shared Clock & Timer Registry; on eviction any
// outstanding timer for that discussion is cancelled.
func New(store storage.Port, timers *clock.Registry, ttl time.Duration, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.Default()
	}
	return &Cache{
		entries: make(map[string]*entry),
		ttl:     ttl,
		store:   store,
		timers:  timers,
		logger:  log.WithFields(),
	}
}

func copyDiscussion(d *v1.Discussion) *v1.Discussion {
	cp := *d
	if d.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(d.Metadata))
		for k, v := range d.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// Get returns the cached discussion, loading from the store on a miss or
// when forceRefresh is set.
func (c *Cache) Get(ctx context.Context, id string, forceRefresh bool) (*v1.Discussion, error) {
	if !forceRefresh {
		c.mu.RLock()
		e, ok := c.entries[id]
		c.mu.RUnlock()
		if ok {
			c.touch(id)
			return copyDiscussion(e.discussion), nil
		}
	}

	d, err := c.store.GetDiscussion(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Put(d)
	return copyDiscussion(d), nil
}

// Put inserts or replaces the cached copy of d.
func (c *Cache) Put(d *v1.Discussion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[d.ID] = &entry{discussion: copyDiscussion(d), lastAccessed: time.Now()}
}

// Invalidate drops id from the cache without touching the store.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

func (c *Cache) touch(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		e.lastAccessed = time.Now()
	}
}

// Start begins the periodic TTL eviction sweep. Stop must be called to
// release the background goroutine.
func (c *Cache) Start(ctx context.Context, sweepInterval time.Duration) {
	c.stopCh = make(chan struct{})
	c.wg.Add(1)
	go c.sweepLoop(ctx, sweepInterval)
}

// Stop halts the eviction sweep and waits for it to exit.
func (c *Cache) Stop() {
	if c.stopCh != nil {
		close(c.stopCh)
	}
	c.wg.Wait()
}

func (c *Cache) sweepLoop(ctx context.Context, interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Cache) evictExpired() {
	cutoff := time.Now().Add(-c.ttl)
	var expired []string

	c.mu.Lock()
	for id, e := range c.entries {
		if e.lastAccessed.Before(cutoff) {
			expired = append(expired, id)
			delete(c.entries, id)
		}
	}
	c.mu.Unlock()

	for _, id := range expired {
		c.timers.Cancel(id)
		c.logger.Debug("evicted idle discussion from cache", zap.String("discussion_id", id))
	}
}

// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

// Package cache provides a thread-safe in-memory TTL cache with
// single-flight fetch coalescing, used to front catalog lookups
// (artist ids, top tracks, recent albums).
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/storybeats/storybeats/internal/metrics"
)

// entry is a cached value with its expiration.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Stats tracks cache performance counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	TotalKeys   int64
	LastCleanup time.Time
}

// Cache is a thread-safe in-memory cache with per-entry TTL and
// automatic background cleanup. The zero value is not usable; use New.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	ttl     time.Duration
	name    string

	statsMu sync.Mutex
	stats   Stats

	// inflight coalesces concurrent GetOrFetch calls per key so a
	// stampede on a cold key fans in to one upstream fetch.
	inflightMu sync.Mutex
	inflight   map[string]*fetchCall[V]

	stop chan struct{}
	once sync.Once
}

type fetchCall[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// Option configures a cache at construction.
type Option func(*settings)

type settings struct {
	name string
}

// WithName labels the cache in exported hit/miss counters. Unnamed
// caches keep local stats only.
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

// New creates a cache with the given default TTL and starts the
// cleanup goroutine. Call Close when the cache is no longer needed.
func New[V any](ttl time.Duration, opts ...Option) *Cache[V] {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	c := &Cache[V]{
		entries:  make(map[string]entry[V]),
		ttl:      ttl,
		name:     s.name,
		inflight: make(map[string]*fetchCall[V]),
		stats:    Stats{LastCleanup: time.Now()},
		stop:     make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Close stops the background cleanup goroutine.
func (c *Cache[V]) Close() {
	c.once.Do(func() { close(c.stop) })
}

// Get retrieves a value by key. Expired entries are removed and
// reported as misses.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, exists := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !exists {
		c.bump(func(s *Stats) { s.Misses++ })
		c.observe(false)
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		c.bump(func(s *Stats) { s.Misses++; s.Evictions++ })
		c.observe(false)
		return zero, false
	}
	c.bump(func(s *Stats) { s.Hits++ })
	c.observe(true)
	return e.value, true
}

func (c *Cache[V]) observe(hit bool) {
	if c.name == "" {
		return
	}
	if hit {
		metrics.CatalogCacheHits.WithLabelValues(c.name).Inc()
	} else {
		metrics.CatalogCacheMisses.WithLabelValues(c.name).Inc()
	}
}

// Set stores a value with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with a custom TTL.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expiresAt: time.Now().Add(ttl)}
	total := int64(len(c.entries))
	c.mu.Unlock()
	c.bump(func(s *Stats) { s.TotalKeys = total })
}

// GetOrFetch returns the cached value for key, or runs fetch to
// populate it. Concurrent callers for the same cold key share one
// fetch; callers for distinct keys never block each other. Fetch
// errors are not cached.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	c.inflightMu.Lock()
	if call, ok := c.inflight[key]; ok {
		c.inflightMu.Unlock()
		var zero V
		select {
		case <-call.done:
			return call.value, call.err
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	call := &fetchCall[V]{done: make(chan struct{})}
	c.inflight[key] = call
	c.inflightMu.Unlock()

	// Double-check after winning the flight: another caller may have
	// populated the entry between our miss and the lock.
	if v, ok := c.Get(key); ok {
		call.value, call.err = v, nil
	} else {
		call.value, call.err = fetch(ctx)
		if call.err == nil {
			c.Set(key, call.value)
		}
	}

	c.inflightMu.Lock()
	delete(c.inflight, key)
	c.inflightMu.Unlock()
	close(call.done)

	return call.value, call.err
}

// Delete removes a key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.bump(func(s *Stats) { s.Evictions++ })
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	evicted := int64(len(c.entries))
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()
	c.bump(func(s *Stats) { s.Evictions += evicted; s.TotalKeys = 0 })
}

// GetStats returns a snapshot of the counters.
func (c *Cache[V]) GetStats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// HitRate returns the hit percentage.
func (c *Cache[V]) HitRate() float64 {
	s := c.GetStats()
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

func (c *Cache[V]) bump(fn func(*Stats)) {
	c.statsMu.Lock()
	fn(&c.stats)
	c.statsMu.Unlock()
}

func (c *Cache[V]) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache[V]) cleanup() {
	now := time.Now()
	c.mu.Lock()
	evicted := int64(0)
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	total := int64(len(c.entries))
	c.mu.Unlock()
	c.bump(func(s *Stats) {
		s.Evictions += evicted
		s.TotalKeys = total
		s.LastCleanup = now
	})
}

// GenerateKey builds a compact, deterministic cache key from a method
// name and its parameters.
func GenerateKey(method string, params interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%v", method, params)
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", method, hash[:16])
}

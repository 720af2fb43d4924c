// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

// Package cache provides a small bounded TTL cache.
//
// It backs the per-connector memos (campaign metadata, login tokens) that
// the Python predecessors kept in module-global dicts; here every cache is
// an explicit object owned by its connector instance, with a capacity
// bound and lazy expiry, so unrelated instances never share state.
package cache

import (
	"sync"
	"time"
)

// Entry is one cached item with its expiry.
type entry struct {
	data      interface{}
	expiresAt time.Time
}

// Stats tracks cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Keys      int
}

// TTL is a thread-safe in-memory cache with per-entry expiry and a hard
// capacity bound. Expired entries are dropped lazily on read; when an
// insert would exceed capacity, the entry closest to expiry is evicted.
type TTL struct {
	mu       sync.RWMutex
	entries  map[string]entry
	ttl      time.Duration
	capacity int

	hits      int64
	misses    int64
	evictions int64
}

// NewTTL creates a cache with the given default TTL and capacity.
// Non-positive values fall back to 5 minutes and 1024 entries.
func NewTTL(ttl time.Duration, capacity int) *TTL {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if capacity <= 0 {
		capacity = 1024
	}
	return &TTL{
		entries:  make(map[string]entry, capacity),
		ttl:      ttl,
		capacity: capacity,
	}
}

// Get returns the cached value for key, or (nil, false) when absent or
// expired. Expired entries are removed on access.
func (c *TTL) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		c.evictions++
		c.misses++
		return nil, false
	}
	c.hits++
	return e.data, true
}

// Set stores value under key with the default TTL.
func (c *TTL) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key with a custom TTL, evicting the entry
// closest to expiry if the capacity bound would be exceeded.
func (c *TTL) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictSoonestLocked()
	}
	c.entries[key] = entry{data: value, expiresAt: time.Now().Add(ttl)}
}

// evictSoonestLocked removes the entry with the nearest expiry.
// Must be called with mu held.
func (c *TTL) evictSoonestLocked() {
	var victim string
	var soonest time.Time
	for k, e := range c.entries {
		if victim == "" || e.expiresAt.Before(soonest) {
			victim = k
			soonest = e.expiresAt
		}
	}
	if victim != "" {
		delete(c.entries, victim)
		c.evictions++
	}
}

// Delete removes key from the cache.
func (c *TTL) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries.
func (c *TTL) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry, c.capacity)
}

// GetStats returns a snapshot of the cache counters.
func (c *TTL) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Keys:      len(c.entries),
	}
}

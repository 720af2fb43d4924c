// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestTTL_GetSet(t *testing.T) {
	c := NewTTL(time.Minute, 10)

	t.Run("miss on absent key", func(t *testing.T) {
		if _, ok := c.Get("missing"); ok {
			t.Error("expected miss for absent key")
		}
	})

	t.Run("hit after set", func(t *testing.T) {
		c.Set("k", "v")
		got, ok := c.Get("k")
		if !ok {
			t.Fatal("expected hit after Set")
		}
		if got.(string) != "v" {
			t.Errorf("Get = %v, want v", got)
		}
	})

	t.Run("expired entry misses", func(t *testing.T) {
		c.SetWithTTL("short", 1, -time.Second)
		if _, ok := c.Get("short"); ok {
			t.Error("expected expired entry to miss")
		}
	})

	t.Run("delete removes", func(t *testing.T) {
		c.Set("gone", 1)
		c.Delete("gone")
		if _, ok := c.Get("gone"); ok {
			t.Error("expected miss after Delete")
		}
	})
}

func TestTTL_CapacityBound(t *testing.T) {
	c := NewTTL(time.Minute, 3)
	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i)
	}
	stats := c.GetStats()
	if stats.Keys > 3 {
		t.Errorf("cache holds %d keys, capacity is 3", stats.Keys)
	}
	if stats.Evictions == 0 {
		t.Error("expected evictions when exceeding capacity")
	}
}

func TestTTL_EvictsSoonestExpiry(t *testing.T) {
	c := NewTTL(time.Minute, 2)
	c.SetWithTTL("soon", 1, time.Second)
	c.SetWithTTL("later", 2, time.Hour)
	c.Set("third", 3)

	if _, ok := c.Get("soon"); ok {
		t.Error("expected the entry closest to expiry to be evicted")
	}
	if _, ok := c.Get("later"); !ok {
		t.Error("expected long-lived entry to survive eviction")
	}
}

func TestTTL_ConcurrentAccess(t *testing.T) {
	c := NewTTL(time.Minute, 100)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("key-%d", j%50)
				c.Set(key, n)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	stats := c.GetStats()
	if stats.Keys == 0 {
		t.Error("expected entries to remain after concurrent writes")
	}
}

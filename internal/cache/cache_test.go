package cache

import (
	"context"
	"testing"
	"time"
)

type testClock struct{ at time.Time }

func (c *testClock) now() time.Time { return c.at }

func newTestCache(size int, ttl time.Duration) (*LRUCache[string], *testClock) {
	clock := &testClock{at: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](size, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to be cached")
	}
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, key := range []string{"a", "c"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("expected %s to be cached", key)
		}
	}
	stats := c.Stats()
	if stats.Evictions != 1 || stats.Misses != 1 || stats.Hits != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	c.Set("nudge", "pay rent")

	clock.at = clock.at.Add(30 * time.Second)
	if v, ok := c.Get("nudge"); !ok || v != "pay rent" {
		t.Fatalf("Get() = %q, %v", v, ok)
	}

	clock.at = clock.at.Add(2 * time.Minute)
	if _, ok := c.Get("nudge"); ok {
		t.Error("expired entry returned")
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestJanitorCleansExpiredEntries(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	clock.at = clock.at.Add(2 * time.Minute)
	c.Set("c", "3")

	j := NewJanitor()
	j.Register("advisor", c)
	if n := j.CleanOnce(context.Background()); n != 2 {
		t.Errorf("CleanOnce() = %d, want 2", n)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
}

func TestJanitorRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewJanitor().Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

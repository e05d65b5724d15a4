package cache

import (
	"context"
	"log/slog"
	"time"
)

// Cache is the read-through store used for advisor responses.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	Size() int
}

// Cleaner is a cache that can drop its expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically cleans the registered caches until its context ends.
type Janitor struct {
	caches map[string]Cleaner
}

func NewJanitor() *Janitor {
	return &Janitor{caches: make(map[string]Cleaner)}
}

// Register adds a cache under a name used in logs.
func (j *Janitor) Register(name string, c Cleaner) {
	j.caches[name] = c
}

// Run blocks, cleaning every interval, and returns when ctx is done.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.CleanOnce(ctx)
		}
	}
}

// CleanOnce cleans every registered cache and returns the number of dropped entries.
func (j *Janitor) CleanOnce(ctx context.Context) int {
	total := 0
	for name, c := range j.caches {
		if n := c.CleanExpired(); n > 0 {
			slog.DebugContext(ctx, "Cache entries expired", "cache", name, "removed", n)
			total += n
		}
	}
	return total
}

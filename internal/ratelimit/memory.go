package ratelimit

import (
	"context"
	"sync"
	"time"
)

type MemoryCounter struct {
	mu        sync.Mutex
	opts      Options
	windows   map[string]window
	lastSweep time.Time
}

type window struct {
	start time.Time
	count int
}

func NewMemory(opts Options) *MemoryCounter {
	opts = opts.withDefaults()
	return &MemoryCounter{
		opts:      opts,
		windows:   make(map[string]window),
		lastSweep: opts.Now().UTC(),
	}
}

// size is the number of scopes currently held.
func (c *MemoryCounter) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

func (c *MemoryCounter) CheckAndIncrement(_ context.Context, scopeKey string) (Decision, error) {
	now := c.opts.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweep(now)

	curr, ok := c.windows[scopeKey]
	if !ok || now.Sub(curr.start) >= c.opts.Window {
		curr = window{start: now}
	}

	if curr.count >= c.opts.Max {
		c.windows[scopeKey] = curr
		return decide(false, curr.count, c.opts.Max, curr.start, c.opts.Window), nil
	}

	curr.count++
	c.windows[scopeKey] = curr

	return decide(true, curr.count, c.opts.Max, curr.start, c.opts.Window), nil
}

// sweep drops expired windows at most once per window length.
func (c *MemoryCounter) sweep(now time.Time) {
	if now.Sub(c.lastSweep) < c.opts.Window {
		return
	}
	c.lastSweep = now

	for key, w := range c.windows {
		if now.Sub(w.start) >= c.opts.Window {
			delete(c.windows, key)
		}
	}
}

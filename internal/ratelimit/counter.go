// Package ratelimit implements fixed-window write counters keyed by an
// explicit scope such as "student:42" or "ip:10.0.0.1".
package ratelimit

import (
	"context"
	"time"
)

const (
	DefaultWindow = time.Hour
	DefaultMax    = 1000
)

type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the window resets, never
// less than one.
func (d Decision) RetryAfter(now time.Time) int {
	wait := d.ResetAt.Sub(now)
	secs := int((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}

	return secs
}

// Counter checks and increments in one atomic step. A denied call does not
// increment. The window restarts once now - window_start >= window.
type Counter interface {
	CheckAndIncrement(ctx context.Context, scopeKey string) (Decision, error)
}

type Options struct {
	Window time.Duration
	Max    int
	Now    func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.Max <= 0 {
		o.Max = DefaultMax
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	return o
}

func decide(allowed bool, count int, max int, windowStart time.Time, window time.Duration) Decision {
	remaining := max - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   allowed,
		Count:     count,
		Limit:     max,
		Remaining: remaining,
		ResetAt:   windowStart.Add(window),
	}
}

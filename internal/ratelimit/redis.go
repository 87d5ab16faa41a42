package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS[1] scope key, ARGV[1] max, ARGV[2] window in milliseconds.
var checkAndIncrementScript = redis.NewScript(`
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
if count >= tonumber(ARGV[1]) then
  return {0, count, redis.call("PTTL", KEYS[1])}
end
count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {1, count, redis.call("PTTL", KEYS[1])}
`)

// RedisCounter lets key expiry end the window: the first increment sets a
// TTL equal to the window and the key vanishes when it runs out.
type RedisCounter struct {
	client redis.Scripter
	opts   Options
	prefix string
}

func NewRedis(client redis.Scripter, opts Options) *RedisCounter {
	return &RedisCounter{client: client, opts: opts.withDefaults(), prefix: "rl:"}
}

func (c *RedisCounter) CheckAndIncrement(ctx context.Context, scopeKey string) (Decision, error) {
	now := c.opts.Now().UTC()

	res, err := checkAndIncrementScript.Run(ctx, c.client,
		[]string{c.prefix + scopeKey}, c.opts.Max, c.opts.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("run rate window script: %w", err)
	}
	if len(res) < 3 {
		return Decision{}, fmt.Errorf("unexpected rate window script reply: %v", res)
	}

	ttl := time.Duration(res[2]) * time.Millisecond
	if ttl < 0 {
		ttl = c.opts.Window
	}
	windowStart := now.Add(ttl - c.opts.Window)

	return decide(res[0] == 1, int(res[1]), c.opts.Max, windowStart, c.opts.Window), nil
}

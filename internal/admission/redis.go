package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "ratelimit:leads:"

// INCR and PEXPIRE run as one script so concurrent instances never observe
// a counter without its window TTL.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisLimiter keeps fixed-window counters in Redis so several API
// instances share one budget per client.
type RedisLimiter struct {
	client redis.Scripter
	limit  int
	period time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLimiter builds a Redis-backed limiter. An empty prefix uses the
// default key namespace.
func NewRedisLimiter(client redis.Scripter, limit int, period time.Duration, prefix string) (*RedisLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("admission: redis client required")
	}
	if err := validate(limit, period); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisLimiter{
		client: client,
		limit:  limit,
		period: period,
		prefix: prefix,
		now:    time.Now,
	}, nil
}

// Allow increments the key's counter in Redis.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := fixedWindowScript.Run(ctx, l.client, []string{l.prefix + key}, l.period.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("admission: redis window update: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("admission: unexpected script reply %v", res)
	}
	count := int(res[0])
	return Decision{
		Allowed: count <= l.limit,
		Count:   count,
		Limit:   l.limit,
		ResetAt: l.now().Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}

var _ Limiter = (*RedisLimiter)(nil)

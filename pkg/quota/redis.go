package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// counterTTL keeps a day's counter around long enough for every timezone to roll over
const counterTTL = 48 * time.Hour

// acquireScript increments the counter only while it is below the limit.
// KEYS[1] = counter key
// ARGV[1] = limit
// ARGV[2] = ttl seconds
var acquireScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local limit = tonumber(ARGV[1])
if current >= limit then
    return 0
end
redis.call("INCR", KEYS[1])
redis.call("EXPIRE", KEYS[1], tonumber(ARGV[2]))
return 1
`)

// releaseScript decrements without going below zero
var releaseScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current > 0 then
    redis.call("DECR", KEYS[1])
end
return 1
`)

// RedisCounter per-org daily purchase counter shared by every worker process
type RedisCounter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCounter client from address, password and db
func NewRedisCounter(addr, password string, db int) *RedisCounter {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisCounterWithClient(rdb)
}

func NewRedisCounterWithClient(client redis.UniversalClient) *RedisCounter {
	return &RedisCounter{client: client, prefix: "shoppilot:quota"}
}

func (r *RedisCounter) key(orgID, day string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, orgID, day)
}

func (r *RedisCounter) DailyCount(ctx context.Context, orgID, day string) (int, error) {
	n, err := r.client.Get(ctx, r.key(orgID, day)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read daily quota: %w", err)
	}
	return n, nil
}

// TryAcquireSlot atomic compare-and-increment
func (r *RedisCounter) TryAcquireSlot(ctx context.Context, orgID, day string, limit int) (bool, error) {
	if limit < 1 {
		return false, nil
	}
	res, err := acquireScript.Run(ctx, r.client, []string{r.key(orgID, day)}, limit, int(counterTTL.Seconds())).Int64()
	if err != nil {
		return false, fmt.Errorf("acquire daily quota: %w", err)
	}
	return res == 1, nil
}

func (r *RedisCounter) ReleaseSlot(ctx context.Context, orgID, day string) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.key(orgID, day)}).Err(); err != nil {
		return fmt.Errorf("release daily quota: %w", err)
	}
	return nil
}

// Ping readiness probe
func (r *RedisCounter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCounter) Close() error {
	return r.client.Close()
}

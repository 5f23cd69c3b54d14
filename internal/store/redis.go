package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"log/slog"
	"score-rooms/internal/app"
)

// Counter scripts run server-side so the read-modify-write is one step.
// EVALSHA is used after first run; go-redis handles the fallback.
var incrRefreshScript = redis.NewScript(`
local key = KEYS[1]
local ttl = tonumber(ARGV[1])
local num = tonumber(redis.call('get', key)) or 0
num = num + 1
redis.call('setex', key, ttl, num)
return num
`)

var decrSaturateRefreshScript = redis.NewScript(`
local key = KEYS[1]
local ttl = tonumber(ARGV[1])
local num = tonumber(redis.call('get', key)) or 0
if num > 0 then
	num = num - 1
end
redis.call('setex', key, ttl, num)
return num
`)

type Redis struct {
	rdb *redis.Client
	log *slog.Logger
}

// NewRedis connects to redis and verifies connectivity
func NewRedis(ctx context.Context, cfg app.Config, log *slog.Logger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Redis{rdb: rdb, log: log}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}
	return v, true, nil
}

// GetMulti batches reads into a single MGET.
func (r *Redis) GetMulti(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: mget: %v", ErrUnavailable, err)
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

func (r *Redis) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.rdb.SetEx(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: setex %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (r *Redis) SetNXEx(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: setnx %s: %v", ErrUnavailable, key, err)
	}
	return ok, nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: exists %s: %v", ErrUnavailable, key, err)
	}
	return n > 0, nil
}

func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("%w: expire %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Scan walks the keyspace with cursor-based SCAN so the server is never
// blocked the way KEYS would.
func (r *Redis) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan %s: %v", ErrUnavailable, pattern, err)
	}
	return keys, nil
}

func (r *Redis) IncrRefresh(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := incrRefreshScript.Run(ctx, r.rdb, []string{key}, int(ttl.Seconds())).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: incr %s: %v", ErrUnavailable, key, err)
	}
	return n, nil
}

func (r *Redis) DecrSaturateRefresh(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := decrSaturateRefreshScript.Run(ctx, r.rdb, []string{key}, int(ttl.Seconds())).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: decr %s: %v", ErrUnavailable, key, err)
	}
	return n, nil
}

// Close shuts down the redis connection
func (r *Redis) Close() { _ = r.rdb.Close() }

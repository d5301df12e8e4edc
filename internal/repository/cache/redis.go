package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jaennil/guide_helper/backend/tilecache/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// Each mutation runs as one script so the payload, the timestamp index, the size hash and
// the total counter change together.
var (
	putScript = redis.NewScript(`
local old = redis.call('HGET', KEYS[3], ARGV[1])
redis.call('SET', KEYS[1], ARGV[2])
redis.call('HSET', KEYS[3], ARGV[1], ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[4], ARGV[1])
local delta = tonumber(ARGV[3]) - (tonumber(old) or 0)
return redis.call('INCRBY', KEYS[4], delta)
`)

	deleteScript = redis.NewScript(`
local old = redis.call('HGET', KEYS[3], ARGV[1])
if not old then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('HDEL', KEYS[3], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('DECRBY', KEYS[4], tonumber(old))
return 1
`)

	clearScript = redis.NewScript(`
local members = redis.call('ZRANGE', KEYS[1], 0, -1)
for _, m in ipairs(members) do
	redis.call('DEL', ARGV[1] .. m)
end
redis.call('DEL', KEYS[1], KEYS[2], KEYS[3])
return #members
`)
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type RedisStore struct {
	cfg    RedisConfig
	client *redis.Client
	guard  openGuard
	opts   options
	logger logger.Logger
}

var _ TileStore = (*RedisStore)(nil)

func NewRedisStore(cfg RedisConfig, l logger.Logger, opts ...Option) *RedisStore {
	if cfg.Prefix == "" {
		cfg.Prefix = "tilecache:"
	}

	return &RedisStore{
		cfg:    cfg,
		opts:   newOptions(opts),
		logger: l,
	}
}

func (c *RedisStore) Open(ctx context.Context) error {
	return c.guard.open(func() (io.Closer, error) {
		client := redis.NewClient(&redis.Options{
			Addr:     c.cfg.Addr,
			Password: c.cfg.Password,
			DB:       c.cfg.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		c.client = client
		c.logger.Info("redis tile store initialized", "addr", c.cfg.Addr, "prefix", c.cfg.Prefix)
		return client, nil
	})
}

func (c *RedisStore) Close() error {
	if !c.guard.close() {
		return nil
	}
	return c.client.Close()
}

func (c *RedisStore) dataPrefix() string {
	return c.cfg.Prefix + "tile:"
}

func (c *RedisStore) dataKey(k string) string {
	return c.dataPrefix() + k
}

func (c *RedisStore) indexKey() string {
	return c.cfg.Prefix + "index"
}

func (c *RedisStore) sizesKey() string {
	return c.cfg.Prefix + "sizes"
}

func (c *RedisStore) totalKey() string {
	return c.cfg.Prefix + "total"
}

func observe(op string, start time.Time, err error) {
	metrics.RedisOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RedisErrors.WithLabelValues(op).Inc()
	}
}

func (c *RedisStore) Get(ctx context.Context, k string) (entry Entry, exists bool, err error) {
	if err := c.Open(ctx); err != nil {
		return Entry{}, false, err
	}
	defer func(start time.Time) { observe("get", start, err) }(time.Now())

	pipe := c.client.Pipeline()
	dataCmd := pipe.Get(ctx, c.dataKey(k))
	scoreCmd := pipe.ZScore(ctx, c.indexKey(), k)
	_, err = pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return Entry{}, false, fmt.Errorf("redis get error: %w", err)
	}

	data, err := dataCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("redis get error: %w", err)
	}

	var ts time.Time
	if score, err := scoreCmd.Result(); err == nil {
		ts = time.UnixMicro(int64(score))
	}

	return Entry{
		Key:       k,
		Data:      data,
		Size:      int64(len(data)),
		Timestamp: ts,
	}, true, nil
}

func (c *RedisStore) Put(ctx context.Context, k string, v []byte) (err error) {
	if err := c.Open(ctx); err != nil {
		return err
	}
	defer func(start time.Time) { observe("put", start, err) }(time.Now())

	keys := []string{c.dataKey(k), c.indexKey(), c.sizesKey(), c.totalKey()}
	err = putScript.Run(ctx, c.client, keys, k, v, len(v), c.opts.now().UnixMicro()).Err()
	if err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}

	return nil
}

func (c *RedisStore) Delete(ctx context.Context, k string) (err error) {
	if err := c.Open(ctx); err != nil {
		return err
	}
	defer func(start time.Time) { observe("delete", start, err) }(time.Now())

	keys := []string{c.dataKey(k), c.indexKey(), c.sizesKey(), c.totalKey()}
	if err = deleteScript.Run(ctx, c.client, keys, k).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

func (c *RedisStore) Clear(ctx context.Context) (err error) {
	if err := c.Open(ctx); err != nil {
		return err
	}
	defer func(start time.Time) { observe("clear", start, err) }(time.Now())

	keys := []string{c.indexKey(), c.sizesKey(), c.totalKey()}
	if err = clearScript.Run(ctx, c.client, keys, c.dataPrefix()).Err(); err != nil {
		return fmt.Errorf("redis clear error: %w", err)
	}
	return nil
}

func (c *RedisStore) TotalSize(ctx context.Context) (total int64, err error) {
	if err := c.Open(ctx); err != nil {
		return 0, err
	}
	defer func(start time.Time) { observe("total_size", start, err) }(time.Now())

	total, err = c.client.Get(ctx, c.totalKey()).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis total size error: %w", err)
	}
	return total, nil
}

func (c *RedisStore) EntriesByTimestamp(ctx context.Context, limit int) (entries []EntryMeta, err error) {
	if err := c.Open(ctx); err != nil {
		return nil, err
	}
	defer func(start time.Time) { observe("entries", start, err) }(time.Now())

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	members, err := c.client.ZRangeWithScores(ctx, c.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis index range error: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = fmt.Sprint(m.Member)
	}

	sizes, err := c.client.HMGet(ctx, c.sizesKey(), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis sizes error: %w", err)
	}

	entries = make([]EntryMeta, 0, len(members))
	for i, m := range members {
		var size int64
		if s, ok := sizes[i].(string); ok {
			size, _ = strconv.ParseInt(s, 10, 64)
		}
		entries = append(entries, EntryMeta{
			Key:       keys[i],
			Size:      size,
			Timestamp: time.UnixMicro(int64(m.Score)),
		})
	}
	return entries, nil
}

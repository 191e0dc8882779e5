package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"task-collab/entity"
)

type RedisClientInterface interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// setIfNewer writes the task body and its version unless the stored version
// is greater. KEYS: body, version. ARGV: body, version, ttl in ms.
const setIfNewer = `
local cur = redis.call('GET', KEYS[2])
if cur and tonumber(cur) > tonumber(ARGV[2]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`

// tombstone drops the body and pins the version so no earlier read can
// repopulate it. KEYS: body, version. ARGV: version, ttl in ms.
const tombstone = `
redis.call('DEL', KEYS[1])
redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
return 1
`

const deletedVersion = int64(math.MaxInt64)

func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// Cache holds single task rows keyed by id, each guarded by a version
// (the row's updatedAt in ms) so a slow reader never overwrites a newer
// write. A nil *Cache or one without a client is a valid no-op cache.
// Cache errors never fail requests.
type Cache struct {
	client RedisClientInterface
	ttl    time.Duration
	log    *zap.Logger
}

func New(client RedisClientInterface, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl, log: logger}
}

func TaskKey(id string) string {
	return "task:" + id
}

func TaskVersionKey(id string) string {
	return "task:" + id + ":v"
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// GetTask returns the cached task and whether it was found.
func (c *Cache) GetTask(ctx context.Context, id string) (entity.Task, bool) {
	if !c.enabled() {
		return entity.Task{}, false
	}
	raw, err := c.client.Get(ctx, TaskKey(id)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("cache get failed", zap.String("key", TaskKey(id)), zap.Error(err))
		}
		return entity.Task{}, false
	}
	var t entity.Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		c.log.Warn("cache entry corrupt", zap.String("key", TaskKey(id)), zap.Error(err))
		return entity.Task{}, false
	}
	return t, true
}

// SetTask stores t unless the cache already holds a newer version of it or
// the task was deleted within the ttl.
func (c *Cache) SetTask(ctx context.Context, t entity.Task) {
	if !c.enabled() {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	keys := []string{TaskKey(t.ID), TaskVersionKey(t.ID)}
	stored, err := c.client.Eval(ctx, setIfNewer, keys, string(data), t.UpdatedAt.UnixMilli(), c.ttl.Milliseconds()).Int64()
	if err != nil {
		c.log.Warn("cache set failed", zap.String("key", TaskKey(t.ID)), zap.Error(err))
		return
	}
	if stored == 0 {
		c.log.Debug("cache set skipped, newer entry present", zap.String("key", TaskKey(t.ID)))
	}
}

// InvalidateTask drops a deleted task and blocks reads that started before
// the delete from caching it again.
func (c *Cache) InvalidateTask(ctx context.Context, id string) {
	if !c.enabled() {
		return
	}
	keys := []string{TaskKey(id), TaskVersionKey(id)}
	if err := c.client.Eval(ctx, tombstone, keys, deletedVersion, c.ttl.Milliseconds()).Err(); err != nil {
		c.log.Warn("cache delete failed", zap.String("key", TaskKey(id)), zap.Error(err))
	}
}

// Package cache provides a Redis read-through cache for the ledger's detail
// projections. Entries are invalidated by change notifications and expire
// after a TTL as a backstop.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/fund-ledger/internal/model"
	"github.com/atmx/fund-ledger/internal/notify"
)

// fillLua stores a detail only if the key's generation is still the one the
// reader saw before loading it from the store.
const fillLua = `
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
    return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`

// invalidateLua takes (detail key, generation key) pairs, bumps each
// generation and drops each detail.
const invalidateLua = `
for i = 1, #KEYS, 2 do
    redis.call('INCR', KEYS[i + 1])
    redis.call('DEL', KEYS[i])
end
return #KEYS / 2
`

// invalidateTimeout bounds an invalidation that outlives its request.
const invalidateTimeout = 5 * time.Second

// RedisCache caches fund and event details in Redis. It implements
// query.Cache for reads and notify.Notifier for invalidation.
//
// Each detail key has a generation counter. Invalidation increments it, and a
// fill carries the generation read on the miss, so a fill that raced with a
// commit is discarded instead of overwriting the newer state. Generation keys
// do not expire.
//
// Event details embed fund rows, so a balance change on a fund that does not
// touch the event may be visible there only after the TTL.
type RedisCache struct {
	rdb          *redis.Client
	ttl          time.Duration
	fillSc       *redis.Script
	invalidateSc *redis.Script
}

// NewRedisCache creates a cache over rdb.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		rdb:          rdb,
		ttl:          ttl,
		fillSc:       redis.NewScript(fillLua),
		invalidateSc: redis.NewScript(invalidateLua),
	}
}

// --- Read-through (query.Cache) ---

func (c *RedisCache) GetFundDetail(ctx context.Context, id model.FundID) (*model.FundDetail, int64, bool) {
	var d model.FundDetail
	gen, ok := c.get(ctx, fundKey(id), &d)
	if !ok {
		return nil, gen, false
	}
	return &d, gen, true
}

func (c *RedisCache) PutFundDetail(ctx context.Context, d *model.FundDetail, gen int64) {
	c.put(ctx, fundKey(d.Fund.ID), gen, d)
}

func (c *RedisCache) GetEventDetail(ctx context.Context, id model.EventID) (*model.EventDetail, int64, bool) {
	var d model.EventDetail
	gen, ok := c.get(ctx, eventKey(id), &d)
	if !ok {
		return nil, gen, false
	}
	return &d, gen, true
}

func (c *RedisCache) PutEventDetail(ctx context.Context, d *model.EventDetail, gen int64) {
	c.put(ctx, eventKey(d.Event.ID), gen, d)
}

// --- Invalidation (notify.Notifier) ---

// Notify drops the cached details of every fund and event in the change.
// It runs after the command committed, so it does not inherit the request's
// cancellation.
func (c *RedisCache) Notify(ctx context.Context, ch notify.Change) {
	keys := invalidationKeys(ch)
	if len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, genKey(k))
	}
	if err := c.invalidateSc.Run(ctx, c.rdb, pairs).Err(); err != nil {
		slog.Warn("cache invalidation failed", "kind", ch.Kind, "keys", keys, "err", err)
	}
}

// --- Cache helpers ---

// get returns the key's generation and whether v was filled from the cache.
// A generation of -1 means Redis could not be read and the result must not
// be stored.
func (c *RedisCache) get(ctx context.Context, key string, v any) (int64, bool) {
	vals, err := c.rdb.MGet(ctx, key, genKey(key)).Result()
	if err != nil || len(vals) != 2 {
		return -1, false
	}
	gen := int64(0)
	if s, ok := vals[1].(string); ok {
		if gen, err = strconv.ParseInt(s, 10, 64); err != nil {
			return -1, false
		}
	}
	data, ok := vals[0].(string)
	if !ok {
		return gen, false
	}
	if json.Unmarshal([]byte(data), v) != nil {
		return gen, false
	}
	return gen, true
}

func (c *RedisCache) put(ctx context.Context, key string, gen int64, v any) {
	if gen < 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	ttl := c.ttl.Milliseconds()
	if ttl < 1 {
		ttl = 1
	}
	stored, err := c.fillSc.Run(ctx, c.rdb, []string{key, genKey(key)}, gen, data, ttl).Int()
	if err != nil {
		slog.Debug("cache write failed", "key", key, "err", err)
		return
	}
	if stored == 0 {
		slog.Debug("cache fill skipped, key invalidated during load", "key", key)
	}
}

func invalidationKeys(ch notify.Change) []string {
	keys := make([]string, 0, len(ch.FundIDs)+len(ch.EventIDs))
	for _, id := range ch.FundIDs {
		keys = append(keys, fundKey(id))
	}
	for _, id := range ch.EventIDs {
		keys = append(keys, eventKey(id))
	}
	return keys
}

func fundKey(id model.FundID) string   { return fmt.Sprintf("fundledger:fund:%d", id) }
func eventKey(id model.EventID) string { return fmt.Sprintf("fundledger:event:%d", id) }
func genKey(key string) string         { return key + ":gen" }

package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/fund-ledger/internal/model"
	"github.com/atmx/fund-ledger/internal/notify"
)

func TestInvalidationKeys(t *testing.T) {
	keys := invalidationKeys(notify.Change{
		Kind:     notify.BetPlaced,
		FundIDs:  []model.FundID{3},
		EventIDs: []model.EventID{7},
	})
	want := []string{"fundledger:fund:3", "fundledger:event:7"}
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d: expected %s, got %s", i, want[i], keys[i])
		}
	}

	if keys := invalidationKeys(notify.Change{Kind: notify.ProposalCreated}); len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
}

// An unreachable Redis must degrade to cache misses, never errors.
func TestUnavailableRedisIsMiss(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	c := NewRedisCache(rdb, time.Second)
	ctx := context.Background()

	_, gen, ok := c.GetFundDetail(ctx, 1)
	if ok || gen != -1 {
		t.Errorf("expected unreadable miss, got ok=%v gen=%d", ok, gen)
	}
	c.PutFundDetail(ctx, &model.FundDetail{Fund: model.Fund{ID: 1}}, 0)
	if _, _, ok := c.GetEventDetail(ctx, 1); ok {
		t.Error("expected miss from unreachable redis")
	}
	c.Notify(ctx, notify.Change{Kind: notify.FundCreated, FundIDs: []model.FundID{1}})
}

// memRedis answers the commands RedisCache issues from an in-process map,
// running the Lua scripts' logic in Go. It is installed as a go-redis hook so
// no connection is ever dialed.
type memRedis struct {
	mu      sync.Mutex
	data    map[string]string
	ctxErrs []error
}

func newMemRedis() *memRedis { return &memRedis{data: make(map[string]string)} }

func (m *memRedis) DialHook(next redis.DialHook) redis.DialHook { return next }

func (m *memRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (m *memRedis) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.ctxErrs = append(m.ctxErrs, ctx.Err())
		if ctx.Err() != nil {
			cmd.SetErr(ctx.Err())
			return ctx.Err()
		}

		args := cmd.Args()
		switch c := cmd.(type) {
		case *redis.SliceCmd: // MGET
			vals := make([]interface{}, 0, len(args)-1)
			for _, k := range args[1:] {
				if v, ok := m.data[k.(string)]; ok {
					vals = append(vals, v)
				} else {
					vals = append(vals, nil)
				}
			}
			c.SetVal(vals)
		case *redis.Cmd: // EVALSHA sha numkeys keys... args...
			n := int(toInt(args[2]))
			keys := make([]string, n)
			for i := range keys {
				keys[i] = args[3+i].(string)
			}
			c.SetVal(m.eval(args[1].(string), keys, args[3+n:]))
		default:
			cmd.SetErr(errors.New("memRedis: unsupported command " + cmd.Name()))
		}
		return cmd.Err()
	}
}

func (m *memRedis) eval(sha string, keys []string, argv []interface{}) int64 {
	switch sha {
	case redis.NewScript(fillLua).Hash():
		gen := m.data[keys[1]]
		if gen == "" {
			gen = "0"
		}
		if gen != strconv.FormatInt(toInt(argv[0]), 10) {
			return 0
		}
		m.data[keys[0]] = string(argv[1].([]byte))
		return 1
	case redis.NewScript(invalidateLua).Hash():
		for i := 0; i < len(keys); i += 2 {
			n, _ := strconv.ParseInt(m.data[keys[i+1]], 10, 64)
			m.data[keys[i+1]] = strconv.FormatInt(n+1, 10)
			delete(m.data, keys[i])
		}
		return int64(len(keys) / 2)
	}
	panic("memRedis: unknown script " + sha)
}

func toInt(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	panic("memRedis: not an integer")
}

func newMemCache(t *testing.T) (*RedisCache, *memRedis) {
	t.Helper()
	mem := newMemRedis()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	rdb.AddHook(mem)
	t.Cleanup(func() { rdb.Close() })
	return NewRedisCache(rdb, time.Minute), mem
}

func TestReadThroughRoundTrip(t *testing.T) {
	c, _ := newMemCache(t)
	ctx := context.Background()

	_, gen, ok := c.GetFundDetail(ctx, 4)
	if ok || gen != 0 {
		t.Fatalf("expected miss at generation 0, got ok=%v gen=%d", ok, gen)
	}
	c.PutFundDetail(ctx, &model.FundDetail{Fund: model.Fund{ID: 4, TotalShare: 9}}, gen)
	d, _, ok := c.GetFundDetail(ctx, 4)
	if !ok || d.Fund.TotalShare != 9 {
		t.Fatalf("expected cached detail, got %+v, %v", d, ok)
	}
}

// A commit that invalidates between a miss and its fill wins over the fill.
func TestFillAfterInvalidationIsDropped(t *testing.T) {
	c, mem := newMemCache(t)
	ctx := context.Background()

	_, gen, _ := c.GetEventDetail(ctx, 7)
	c.Notify(ctx, notify.Change{Kind: notify.BetPlaced, EventIDs: []model.EventID{7}})
	c.PutEventDetail(ctx, &model.EventDetail{Event: model.Event{ID: 7}}, gen)

	if _, ok := mem.data["fundledger:event:7"]; ok {
		t.Fatal("stale fill overwrote an invalidation")
	}
	if mem.data["fundledger:event:7:gen"] != "1" {
		t.Errorf("expected generation 1, got %q", mem.data["fundledger:event:7:gen"])
	}

	_, gen, _ = c.GetEventDetail(ctx, 7)
	c.PutEventDetail(ctx, &model.EventDetail{Event: model.Event{ID: 7}}, gen)
	if _, _, ok := c.GetEventDetail(ctx, 7); !ok {
		t.Error("fill at the current generation should be stored")
	}
}

// Invalidation runs after the command committed, so a request context that
// is already cancelled must not stop it.
func TestNotifyIgnoresRequestCancellation(t *testing.T) {
	c, mem := newMemCache(t)
	ctx := context.Background()

	_, gen, _ := c.GetFundDetail(ctx, 2)
	c.PutFundDetail(ctx, &model.FundDetail{Fund: model.Fund{ID: 2}}, gen)

	reqCtx, cancel := context.WithCancel(ctx)
	cancel()
	c.Notify(reqCtx, notify.Change{Kind: notify.ProposalAccepted, FundIDs: []model.FundID{2}})

	if err := mem.ctxErrs[len(mem.ctxErrs)-1]; err != nil {
		t.Fatalf("invalidation ran on a cancelled context: %v", err)
	}
	if _, _, ok := c.GetFundDetail(ctx, 2); ok {
		t.Error("detail still cached after invalidation")
	}
}

// A miss that could not read Redis disables the fill.
func TestUnreadableGenerationSkipsFill(t *testing.T) {
	c, mem := newMemCache(t)
	c.PutFundDetail(context.Background(), &model.FundDetail{Fund: model.Fund{ID: 3}}, -1)
	if len(mem.ctxErrs) != 0 {
		t.Errorf("expected no redis commands, got %d", len(mem.ctxErrs))
	}
}

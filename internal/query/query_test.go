package query_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/atmx/fund-ledger/internal/fund"
	"github.com/atmx/fund-ledger/internal/market"
	"github.com/atmx/fund-ledger/internal/model"
	"github.com/atmx/fund-ledger/internal/notify"
	"github.com/atmx/fund-ledger/internal/proposal"
	"github.com/atmx/fund-ledger/internal/query"
	"github.com/atmx/fund-ledger/internal/store"
)

var now = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type fixture struct {
	store     *store.MemoryStore
	funds     *fund.Manager
	proposals *proposal.Engine
	markets   *market.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ms := store.NewMemoryStore()
	return &fixture{
		store:     ms,
		funds:     fund.NewManager(ms, fund.Config{MinDeposit: model.Units(1), Now: clock}, nil),
		proposals: proposal.NewEngine(ms, clock, nil),
		markets: market.NewEngine(ms, market.Config{
			MinEventDeposit:        model.Units(1),
			CloseBetsAtResolveDate: true,
			Now:                    clock,
		}, nil),
	}
}

func (f *fixture) must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
}

// seed builds two funds, a proposal and an event with bets on both outcomes.
func (f *fixture) seed(t *testing.T) (fa, fb model.FundID, ev market.CreatedEvent) {
	t.Helper()
	ctx := context.Background()
	var err error
	fa, err = f.funds.CreateFund(ctx, "alice", 100, model.Units(10), model.FundMetadata{})
	f.must(t, err)
	fb, err = f.funds.CreateFund(ctx, "bob", 200, model.Units(10), model.FundMetadata{})
	f.must(t, err)
	f.must(t, f.funds.TransferShare(ctx, "alice", fa, "carol", 25))

	_, err = f.proposals.CreateProposal(ctx, "alice", proposal.CreateRequest{FundID: fa, Share: 10, Price: model.Units(1)})
	f.must(t, err)
	_, err = f.proposals.CreateProposal(ctx, "carol", proposal.CreateRequest{FundID: fa, Share: 5, Price: model.Units(1)})
	f.must(t, err)

	ev, err = f.markets.CreateEvent(ctx, "owner", market.CreateEventRequest{
		Question:    "Q?",
		ResolveDate: now.Add(time.Hour),
		Outcomes: []market.OutcomeSpec{
			{Description: "yes", TotalSupply: 10, DepositPerSupply: model.Units(1)},
			{Description: "no", TotalSupply: 5, DepositPerSupply: model.Units(1)},
		},
		Deposit: model.Units(1),
	})
	f.must(t, err)
	_, err = f.markets.Bet(ctx, "alice", market.BetRequest{OutcomeID: ev.OutcomeIDs[0], FundID: fa, Supply: 3, Deposit: model.Units(3)})
	f.must(t, err)
	_, err = f.markets.Bet(ctx, "bob", market.BetRequest{OutcomeID: ev.OutcomeIDs[0], FundID: fb, Supply: 2, Deposit: model.Units(2)})
	f.must(t, err)
	return fa, fb, ev
}

func TestGetFunds(t *testing.T) {
	f := newFixture(t)
	fa, fb, ev := f.seed(t)
	svc := query.NewService(f.store, nil)

	all, err := svc.GetFunds(context.Background(), nil)
	if err != nil {
		t.Fatalf("get funds: %v", err)
	}
	if len(all) != 2 || all[0].Fund.ID != fa || all[1].Fund.ID != fb {
		t.Fatalf("unexpected funds: %+v", all)
	}
	if all[0].OwnerShare != nil {
		t.Error("owner share should be unset without a filter")
	}
	if len(all[0].Outcomes) != 1 || all[0].Outcomes[0].Outcome.ID != ev.OutcomeIDs[0] || all[0].Outcomes[0].Supply != 3 {
		t.Errorf("fund outcomes: %+v", all[0].Outcomes)
	}

	carol := model.AccountID("carol")
	owned, err := svc.GetFunds(context.Background(), &carol)
	if err != nil {
		t.Fatalf("get funds by owner: %v", err)
	}
	if len(owned) != 1 || owned[0].Fund.ID != fa || owned[0].OwnerShare == nil || *owned[0].OwnerShare != 25 {
		t.Errorf("carol's funds: %+v", owned)
	}

	nobody := model.AccountID("nobody")
	none, err := svc.GetFunds(context.Background(), &nobody)
	if err != nil || len(none) != 0 {
		t.Errorf("expected empty list, got %+v, %v", none, err)
	}
}

func TestGetFund(t *testing.T) {
	f := newFixture(t)
	fa, _, _ := f.seed(t)
	svc := query.NewService(f.store, nil)

	d, err := svc.GetFund(context.Background(), fa)
	if err != nil {
		t.Fatalf("get fund: %v", err)
	}
	if len(d.Holders) != 2 {
		t.Errorf("expected 2 holders, got %+v", d.Holders)
	}
	var sum int64
	for _, h := range d.Holders {
		sum += h.Shares
	}
	if sum != d.Fund.TotalShare {
		t.Errorf("holders sum to %d, total share %d", sum, d.Fund.TotalShare)
	}
	if !d.Fund.Balance.Equal(model.Units(7)) {
		t.Errorf("balance: expected 7 units, got %s", d.Fund.Balance)
	}

	if _, err := svc.GetFund(context.Background(), 999); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetFundProposals_AndGetProposals(t *testing.T) {
	f := newFixture(t)
	fa, fb, _ := f.seed(t)
	svc := query.NewService(f.store, nil)

	fp, err := svc.GetFundProposals(context.Background(), fa)
	if err != nil {
		t.Fatalf("get fund proposals: %v", err)
	}
	if fp.Fund.ID != fa || len(fp.Proposals) != 2 {
		t.Errorf("unexpected fund proposals: %+v", fp)
	}

	empty, err := svc.GetFundProposals(context.Background(), fb)
	if err != nil || empty.Proposals == nil || len(empty.Proposals) != 0 {
		t.Errorf("expected empty non-nil list, got %+v, %v", empty, err)
	}

	all, err := svc.GetProposals(context.Background(), nil)
	if err != nil || len(all) != 2 {
		t.Fatalf("get proposals: %+v, %v", all, err)
	}
	carol := model.AccountID("carol")
	mine, err := svc.GetProposals(context.Background(), &carol)
	if err != nil || len(mine) != 1 || mine[0].Proposal.Proponent != "carol" || mine[0].Fund.ID != fa {
		t.Errorf("carol's proposals: %+v, %v", mine, err)
	}

	if _, err := svc.GetFundProposals(context.Background(), 999); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetEvents(t *testing.T) {
	f := newFixture(t)
	_, _, ev := f.seed(t)
	svc := query.NewService(f.store, nil)

	events, err := svc.GetEvents(context.Background())
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	if len(events) != 1 || events[0].Event.ID != ev.EventID {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].TotalSupply != 15 {
		t.Errorf("total supply: expected 15, got %d", events[0].TotalSupply)
	}
	if !events[0].Market.Pool.Equal(model.Units(6)) {
		t.Errorf("pool: expected 6 units, got %s", events[0].Market.Pool)
	}
}

func TestGetEventDetail(t *testing.T) {
	f := newFixture(t)
	fa, fb, ev := f.seed(t)
	svc := query.NewService(f.store, nil)

	d, err := svc.GetEventDetail(context.Background(), ev.EventID)
	if err != nil {
		t.Fatalf("get event detail: %v", err)
	}
	if d.TotalSupply != 15 || len(d.Outcomes) != 2 {
		t.Fatalf("unexpected detail: %+v", d)
	}
	yes := d.Outcomes[0]
	if yes.Outcome.AvailableSupply != 5 || len(yes.Funds) != 2 {
		t.Errorf("yes outcome: %+v", yes)
	}
	if yes.Funds[0].Fund.ID != fa || yes.Funds[0].Supply != 3 || yes.Funds[1].Fund.ID != fb || yes.Funds[1].Supply != 2 {
		t.Errorf("yes stakes: %+v", yes.Funds)
	}
	if len(d.Outcomes[1].Funds) != 0 {
		t.Errorf("no outcome should have no stakes: %+v", d.Outcomes[1].Funds)
	}

	if _, err := svc.GetEventDetail(context.Background(), 999); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetEventBets(t *testing.T) {
	f := newFixture(t)
	_, _, ev := f.seed(t)
	svc := query.NewService(f.store, nil)

	bets, err := svc.GetEventBets(context.Background(), ev.EventID)
	if err != nil {
		t.Fatalf("get event bets: %v", err)
	}
	if len(bets) != 2 || bets[0].Placer != "alice" || bets[1].Placer != "bob" {
		t.Errorf("unexpected journal: %+v", bets)
	}
}

func TestGetOwnerShare(t *testing.T) {
	f := newFixture(t)
	fa, _, _ := f.seed(t)
	svc := query.NewService(f.store, nil)

	if n, err := svc.GetOwnerShare(context.Background(), fa, "alice"); err != nil || n != 75 {
		t.Errorf("alice: got %d, %v", n, err)
	}
	if n, err := svc.GetOwnerShare(context.Background(), fa, "zed"); err != nil || n != 0 {
		t.Errorf("zed: got %d, %v", n, err)
	}
}

// mapCache is an in-process Cache used to observe read-through behavior.
// It follows the generation contract of query.Cache and invalidates on
// notifications like the Redis cache does.
type mapCache struct {
	mu     sync.Mutex
	funds  map[model.FundID]*model.FundDetail
	events map[model.EventID]*model.EventDetail
	gens   map[string]int64
	hits   int
}

func newMapCache() *mapCache {
	return &mapCache{
		funds:  make(map[model.FundID]*model.FundDetail),
		events: make(map[model.EventID]*model.EventDetail),
		gens:   make(map[string]int64),
	}
}

func fundGen(id model.FundID) string   { return "fund:" + strconv.FormatInt(int64(id), 10) }
func eventGen(id model.EventID) string { return "event:" + strconv.FormatInt(int64(id), 10) }

func (c *mapCache) GetFundDetail(_ context.Context, id model.FundID) (*model.FundDetail, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.funds[id]
	if ok {
		c.hits++
	}
	return d, c.gens[fundGen(id)], ok
}

func (c *mapCache) PutFundDetail(_ context.Context, d *model.FundDetail, gen int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gens[fundGen(d.Fund.ID)] {
		return
	}
	c.funds[d.Fund.ID] = d
}

func (c *mapCache) GetEventDetail(_ context.Context, id model.EventID) (*model.EventDetail, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.events[id]
	if ok {
		c.hits++
	}
	return d, c.gens[eventGen(id)], ok
}

func (c *mapCache) PutEventDetail(_ context.Context, d *model.EventDetail, gen int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gens[eventGen(d.Event.ID)] {
		return
	}
	c.events[d.Event.ID] = d
}

func (c *mapCache) Notify(_ context.Context, ch notify.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ch.FundIDs {
		c.gens[fundGen(id)]++
		delete(c.funds, id)
	}
	for _, id := range ch.EventIDs {
		c.gens[eventGen(id)]++
		delete(c.events, id)
	}
}

// hookStore runs afterView once, right after the next read transaction
// returns, to interleave a commit between a cache miss and its fill.
type hookStore struct {
	store.Store
	afterView func()
}

func (s *hookStore) View(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.Store.View(ctx, fn)
	if hook := s.afterView; hook != nil {
		s.afterView = nil
		hook()
	}
	return err
}

func TestReadThroughCache(t *testing.T) {
	f := newFixture(t)
	fa, _, ev := f.seed(t)
	cache := newMapCache()
	svc := query.NewService(f.store, cache)

	for i := 0; i < 3; i++ {
		if _, err := svc.GetFund(context.Background(), fa); err != nil {
			t.Fatalf("get fund: %v", err)
		}
		if _, err := svc.GetEventDetail(context.Background(), ev.EventID); err != nil {
			t.Fatalf("get event detail: %v", err)
		}
	}
	if cache.hits != 4 {
		t.Errorf("expected 4 cache hits after the first miss of each, got %d", cache.hits)
	}

	// Misses for unknown entities are not cached.
	_, _ = svc.GetFund(context.Background(), 999)
	if _, ok := cache.funds[999]; ok {
		t.Error("not-found result was cached")
	}
}

func TestCacheFillDroppedAfterConcurrentCommit(t *testing.T) {
	f := newFixture(t)
	fa, _, _ := f.seed(t)
	ctx := context.Background()
	cache := newMapCache()
	funds := fund.NewManager(f.store, fund.Config{MinDeposit: model.Units(1), Now: clock}, cache)
	hs := &hookStore{Store: f.store}
	svc := query.NewService(hs, cache)

	before, err := svc.GetFund(ctx, fa)
	if err != nil {
		t.Fatalf("get fund: %v", err)
	}
	f.must(t, funds.DepositToFund(ctx, fa, model.Units(1)))

	// The deposit commits and invalidates after the read, before the fill.
	hs.afterView = func() {
		f.must(t, funds.DepositToFund(ctx, fa, model.Units(2)))
	}
	if _, err := svc.GetFund(ctx, fa); err != nil {
		t.Fatalf("get fund: %v", err)
	}
	if _, ok := cache.funds[fa]; ok {
		t.Fatal("stale detail was stored after a concurrent invalidation")
	}

	got, err := svc.GetFund(ctx, fa)
	if err != nil {
		t.Fatalf("get fund: %v", err)
	}
	want := before.Fund.Balance.Add(model.Units(3))
	if !got.Fund.Balance.Equal(want) {
		t.Errorf("expected balance %s, got %s", want, got.Fund.Balance)
	}
	if _, ok := cache.funds[fa]; !ok {
		t.Error("fresh detail should be cached once no invalidation races the fill")
	}
}

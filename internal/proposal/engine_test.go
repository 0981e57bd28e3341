package proposal_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/fund-ledger/internal/fund"
	"github.com/atmx/fund-ledger/internal/model"
	"github.com/atmx/fund-ledger/internal/notify"
	"github.com/atmx/fund-ledger/internal/proposal"
	"github.com/atmx/fund-ledger/internal/store"
)

// clock is a settable test clock.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	store  *store.MemoryStore
	funds  *fund.Manager
	engine *proposal.Engine
	clock  *clock
	rec    *notify.Recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ms := store.NewMemoryStore()
	clk := &clock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	rec := &notify.Recorder{}
	return &testEnv{
		store:  ms,
		funds:  fund.NewManager(ms, fund.Config{MinDeposit: model.Units(1), Now: clk.Now}, nil),
		engine: proposal.NewEngine(ms, clk.Now, rec),
		clock:  clk,
		rec:    rec,
	}
}

// seedFund creates a fund of 100 shares and 1 unit owned by alice.
func (e *testEnv) seedFund(t *testing.T) model.FundID {
	t.Helper()
	id, err := e.funds.CreateFund(context.Background(), "alice", 100, model.Units(1), model.FundMetadata{})
	if err != nil {
		t.Fatalf("create fund: %v", err)
	}
	return id
}

func (e *testEnv) propose(t *testing.T, proponent model.AccountID, req proposal.CreateRequest) model.ProposalID {
	t.Helper()
	id, err := e.engine.CreateProposal(context.Background(), proponent, req)
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	return id
}

func (e *testEnv) share(t *testing.T, id model.FundID, acct model.AccountID) int64 {
	t.Helper()
	n, err := e.funds.GetOwnerShare(context.Background(), id, acct)
	if err != nil {
		t.Fatalf("owner share: %v", err)
	}
	return n
}

func (e *testEnv) balance(t *testing.T, id model.FundID) decimal.Decimal {
	t.Helper()
	var bal decimal.Decimal
	err := e.store.View(context.Background(), func(tx store.Tx) error {
		f, err := tx.GetFund(context.Background(), id)
		if err != nil {
			return err
		}
		bal = f.Balance
		return nil
	})
	if err != nil {
		t.Fatalf("load fund: %v", err)
	}
	return bal
}

func ptr[T any](v T) *T { return &v }

// --- CreateProposal ---

func TestCreateProposal(t *testing.T) {
	env := newTestEnv(t)
	fid := env.seedFund(t)

	id := env.propose(t, "alice", proposal.CreateRequest{
		FundID:   fid,
		Share:    40,
		Price:    model.Units(5),
		Duration: ptr(time.Hour),
	})

	_ = env.store.View(context.Background(), func(tx store.Tx) error {
		p, err := tx.GetProposal(context.Background(), id)
		if err != nil {
			t.Fatalf("get proposal: %v", err)
		}
		if p.IsCompleted || p.Acceptor != nil {
			t.Errorf("new proposal should be open: %+v", p)
		}
		want := env.clock.Now().Add(time.Hour)
		if p.CloseTime == nil || !p.CloseTime.Equal(want) {
			t.Errorf("close time = %v, want %v", p.CloseTime, want)
		}
		return nil
	})

	// Creating a proposal moves nothing.
	if got := env.share(t, fid, "alice"); got != 100 {
		t.Errorf("alice should still hold 100, got %d", got)
	}
	if kinds := env.rec.Kinds(); len(kinds) != 1 || kinds[0] != notify.ProposalCreated {
		t.Errorf("unexpected changes: %v", kinds)
	}
}

func TestCreateProposal_NoDurationNeverExpires(t *testing.T) {
	env := newTestEnv(t)
	fid := env.seedFund(t)
	id := env.propose(t, "alice", proposal.CreateRequest{FundID: fid, Share: 10, Price: model.Units(1)})

	env.clock.Advance(24 * 365 * time.Hour)
	if _, err := env.engine.AcceptProposal(context.Background(), "bob", id, model.Units(1)); err != nil {
		t.Fatalf("unbounded proposal should stay open: %v", err)
	}
}

func TestCreateProposal_Errors(t *testing.T) {
	env := newTestEnv(t)
	fid := env.seedFund(t)

	tests := []struct {
		name      string
		proponent model.AccountID
		req       proposal.CreateRequest
		want      error
	}{
		{"unknown fund", "alice", proposal.CreateRequest{FundID: 99, Share: 1, Price: model.Units(1)}, model.ErrNotFound},
		{"zero share", "alice", proposal.CreateRequest{FundID: fid, Share: 0, Price: model.Units(1)}, model.ErrInvalidShare},
		{"negative share", "alice", proposal.CreateRequest{FundID: fid, Share: -1, Price: model.Units(1)}, model.ErrInvalidShare},
		{"more than held", "alice", proposal.CreateRequest{FundID: fid, Share: 101, Price: model.Units(1)}, model.ErrInsufficientShare},
		{"non-holder", "bob", proposal.CreateRequest{FundID: fid, Share: 1, Price: model.Units(1)}, model.ErrInsufficientShare},
		{"negative price", "alice", proposal.CreateRequest{FundID: fid, Share: 1, Price: decimal.NewFromInt(-1)}, model.ErrInvalidInput},
		{"zero duration", "alice", proposal.CreateRequest{FundID: fid, Share: 1, Price: model.Units(1), Duration: ptr(time.Duration(0))}, model.ErrInvalidInput},
		{"proposed to self", "alice", proposal.CreateRequest{FundID: fid, Share: 1, Price: model.Units(1), ProposedPerson: ptr(model.AccountID("alice"))}, model.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.CreateProposal(context.Background(), tt.proponent, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateProposal_ZeroPriceAllowed(t *testing.T) {
	env := newTestEnv(t)
	fid := env.seedFund(t)
	id := env.propose(t, "alice", proposal.CreateRequest{FundID: fid, Share: 5, Price: decimal.Zero})

	res, err := env.engine.AcceptProposal(context.Background(), "bob", id, decimal.Zero)
	if err != nil {
		t.Fatalf("accept free proposal: %v", err)
	}
	if !res.Refund.IsZero() {
		t.Errorf("expected zero refund, got %s", res.Refund)
	}
}

// --- AcceptProposal ---

func TestAcceptProposal(t *testing.T) {
	env := newTestEnv(t)
	fid := env.seedFund(t)
	id := env.propose(t, "alice", proposal.CreateRequest{FundID: fid, Share: 40, Price: model.Units(5)})

	res, err := env.engine.AcceptProposal(context.Background(), "bob", id, model.Units(5))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	if got := env.share(t, fid, "alice"); got != 60 {
		t.Errorf("alice: expected 60, got %d", got)
	}
	if got := env.share(t, fid, "bob"); got != 40 {
		t.Errorf("bob: expected 40, got %d", got)
	}
	if got := env.balance(t, fid); !got.Equal(model.Units(6)) {
		t.Errorf("fund balance: expected 6 units, got %s", got)
	}
	if !res.Proposal.IsCompleted || res.Proposal.Acceptor == nil || *res.Proposal.Acceptor != "bob" {
		t.Errorf("proposal not completed by bob: %+v", res.Proposal)
	}
	if res.Proposal.CompletedAt == nil || !res.Proposal.CompletedAt.Equal(env.clock.Now()) {
		t.Errorf("completed_at = %v", res.Proposal.CompletedAt)
	}
	if !res.Refund.IsZero() {
		t.Errorf("exact payment should leave no refund, got %s", res.Refund)
	}

	// A completed proposal cannot be accepted again.
	_, err = env.engine.AcceptProposal(context.Background(), "carol", id, model.Units(5))
	if !errors.Is(err, model.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	if got := env.share(t, fid, "carol"); got != 0 {
		t.Errorf("carol should hold nothing, got %d", got)
	}
}

func TestAcceptProposal_Overpayment(t *testing.T) {
	env := newTestEnv(t)
	fid := env.seedFund(t)
	id := env.propose(t, "alice", proposal.CreateRequest{FundID: fid, Share: 10, Price: model.Units(2)})

	res, err := env.engine.AcceptProposal(context.Background(), "bob", id, model.Units(3))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !res.Refund.Equal(model.Units(1)) {
		t.Errorf("expected refund of 1 unit, got %s", res.Refund)
	}
	if got := env.balance(t, fid); !got.Equal(model.Units(3)) {
		t.Errorf("only the price enters the fund: balance %s", got)
	}
}

func TestAcceptProposal_Expired(t *testing.T) {
	env := newTestEnv(t)
	fid := env.seedFund(t)
	id := env.propose(t, "alice", proposal.CreateRequest{FundID: fid, Share: 10, Price: model.Units(1), Duration: ptr(time.Minute)})

	env.clock.Advance(time.Minute + time.Second)
	_, err := env.engine.AcceptProposal(context.Background(), "bob", id, model.Units(1))
	if !errors.Is(err, model.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if got := env.share(t, fid, "alice"); got != 100 {
		t.Errorf("expired accept moved shares: alice has %d", got)
	}
}

func TestAcceptProposal_AtCloseTimeStillOpen(t *testing.T) {
	env := newTestEnv(t)
	fid := env.seedFund(t)
	id := env.propose(t, "alice", proposal.CreateRequest{FundID: fid, Share: 10, Price: model.Units(1), Duration: ptr(time.Minute)})

	env.clock.Advance(time.Minute)
	if _, err := env.engine.AcceptProposal(context.Background(), "bob", id, model.Units(1)); err != nil {
		t.Fatalf("accept at close time: %v", err)
	}
}

func TestAcceptProposal_Errors(t *testing.T) {
	env := newTestEnv(t)
	fid := env.seedFund(t)
	reserved := env.propose(t, "alice", proposal.CreateRequest{
		FundID: fid, Share: 10, Price: model.Units(2), ProposedPerson: ptr(model.AccountID("bob")),
	})
	open := env.propose(t, "alice", proposal.CreateRequest{FundID: fid, Share: 10, Price: model.Units(2)})

	tests := []struct {
		name     string
		acceptor model.AccountID
		id       model.ProposalID
		payment  decimal.Decimal
		want     error
	}{
		{"unknown proposal", "bob", 999, model.Units(2), model.ErrNotFound},
		{"wrong counterparty", "carol", reserved, model.Units(2), model.ErrNotAuthorized},
		{"proponent accepts own", "alice", open, model.Units(2), model.ErrNotAuthorized},
		{"underpayment", "bob", open, model.Units(1), model.ErrInsufficientPayment},
		{"negative payment", "bob", open, decimal.NewFromInt(-1), model.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.AcceptProposal(context.Background(), tt.acceptor, tt.id, tt.payment)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if got := env.balance(t, fid); !got.Equal(model.Units(1)) {
		t.Errorf("failed accepts changed the balance: %s", got)
	}
	if _, err := env.engine.AcceptProposal(context.Background(), "bob", reserved, model.Units(2)); err != nil {
		t.Errorf("proposed person should be able to accept: %v", err)
	}
}

func TestAcceptProposal_OvercommittedFailsAtomically(t *testing.T) {
	env := newTestEnv(t)
	fid := env.seedFund(t)
	first := env.propose(t, "alice", proposal.CreateRequest{FundID: fid, Share: 70, Price: model.Units(1)})
	second := env.propose(t, "alice", proposal.CreateRequest{FundID: fid, Share: 70, Price: model.Units(1)})

	if _, err := env.engine.AcceptProposal(context.Background(), "bob", first, model.Units(1)); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	_, err := env.engine.AcceptProposal(context.Background(), "carol", second, model.Units(1))
	if !errors.Is(err, model.ErrInsufficientShare) {
		t.Fatalf("expected ErrInsufficientShare, got %v", err)
	}

	// Nothing from the failed acceptance is visible.
	if got := env.share(t, fid, "carol"); got != 0 {
		t.Errorf("carol got %d shares", got)
	}
	if got := env.balance(t, fid); !got.Equal(model.Units(2)) {
		t.Errorf("balance: expected 2 units, got %s", got)
	}
	_ = env.store.View(context.Background(), func(tx store.Tx) error {
		p, _ := tx.GetProposal(context.Background(), second)
		if p.IsCompleted {
			t.Error("failed proposal marked completed")
		}
		return nil
	})
}

func TestAcceptProposal_ConcurrentAcceptsCompleteOnce(t *testing.T) {
	env := newTestEnv(t)
	fid := env.seedFund(t)
	id := env.propose(t, "alice", proposal.CreateRequest{FundID: fid, Share: 50, Price: model.Units(1)})

	acceptors := []model.AccountID{"b1", "b2", "b3", "b4", "b5", "b6", "b7", "b8"}
	var wg sync.WaitGroup
	errs := make([]error, len(acceptors))
	for i, a := range acceptors {
		wg.Add(1)
		go func(i int, a model.AccountID) {
			defer wg.Done()
			_, errs[i] = env.engine.AcceptProposal(context.Background(), a, id, model.Units(1))
		}(i, a)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, model.ErrAlreadyCompleted), errors.Is(err, model.ErrConflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one acceptance, got %d", wins)
	}
	if got := env.share(t, fid, "alice"); got != 50 {
		t.Errorf("alice: expected 50, got %d", got)
	}
	if got := env.balance(t, fid); !got.Equal(model.Units(2)) {
		t.Errorf("balance: expected 2 units, got %s", got)
	}
}

package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/atmx/fund-ledger/internal/model"
)

var errReadOnly = errors.New("store: write in read-only transaction")

type holdingKey struct {
	fund    model.FundID
	account model.AccountID
}

type positionKey struct {
	outcome model.OutcomeID
	fund    model.FundID
}

// memState is one immutable generation of the ledger. Transactions work on
// clones of it; commits publish a new generation.
type memState struct {
	funds     *table[model.FundID, model.Fund]
	holdings  *table[holdingKey, int64]
	proposals *table[model.ProposalID, model.Proposal]
	events    *table[model.EventID, model.Event]
	markets   *table[model.EventID, model.Market]
	outcomes  *table[model.OutcomeID, model.Outcome]
	positions *table[positionKey, model.Position]
	bets      *table[int64, model.BetEntry]
}

func newMemState() *memState {
	return &memState{
		funds: newTable[model.FundID, model.Fund](cmp.Less[model.FundID]),
		holdings: newTable[holdingKey, int64](func(a, b holdingKey) bool {
			if a.fund != b.fund {
				return a.fund < b.fund
			}
			return a.account < b.account
		}),
		proposals: newTable[model.ProposalID, model.Proposal](cmp.Less[model.ProposalID]),
		events:    newTable[model.EventID, model.Event](cmp.Less[model.EventID]),
		markets:   newTable[model.EventID, model.Market](cmp.Less[model.EventID]),
		outcomes:  newTable[model.OutcomeID, model.Outcome](cmp.Less[model.OutcomeID]),
		positions: newTable[positionKey, model.Position](func(a, b positionKey) bool {
			if a.outcome != b.outcome {
				return a.outcome < b.outcome
			}
			return a.fund < b.fund
		}),
		bets: newTable[int64, model.BetEntry](cmp.Less[int64]),
	}
}

func (s *memState) clone() *memState {
	return &memState{
		funds:     s.funds.clone(),
		holdings:  s.holdings.clone(),
		proposals: s.proposals.clone(),
		events:    s.events.clone(),
		markets:   s.markets.clone(),
		outcomes:  s.outcomes.clone(),
		positions: s.positions.clone(),
		bets:      s.bets.clone(),
	}
}

// MemoryStore implements Store with in-memory B-trees and optimistic
// concurrency control. Used for testing and development. Not suitable for
// production (no persistence).
//
// Each transaction runs against a private copy-on-write clone and records
// the version of every row it reads. Commit re-checks those versions under
// the store lock; if any changed the transaction is discarded with
// model.ErrConflict. Transactions over disjoint rows never conflict.
type MemoryStore struct {
	mu      sync.Mutex
	state   *memState
	version uint64

	nextFund     atomic.Int64
	nextProposal atomic.Int64
	nextEvent    atomic.Int64
	nextOutcome  atomic.Int64
	nextBet      atomic.Int64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func (s *MemoryStore) begin(writable bool) *memTx {
	s.mu.Lock()
	st := s.state.clone()
	s.mu.Unlock()

	return &memTx{
		store:     s,
		writable:  writable,
		funds:     track(st.funds),
		holdings:  track(st.holdings),
		proposals: track(st.proposals),
		events:    track(st.events),
		markets:   track(st.markets),
		outcomes:  track(st.outcomes),
		positions: track(st.positions),
		bets:      track(st.bets),
	}
}

func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s.begin(false))
}

func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := s.begin(true)
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state
	if !tx.funds.valid(cur.funds) ||
		!tx.holdings.valid(cur.holdings) ||
		!tx.proposals.valid(cur.proposals) ||
		!tx.events.valid(cur.events) ||
		!tx.markets.valid(cur.markets) ||
		!tx.outcomes.valid(cur.outcomes) ||
		!tx.positions.valid(cur.positions) ||
		!tx.bets.valid(cur.bets) {
		return fmt.Errorf("store: commit: %w", model.ErrConflict)
	}

	s.version++
	next := cur.clone()
	tx.funds.apply(next.funds, s.version)
	tx.holdings.apply(next.holdings, s.version)
	tx.proposals.apply(next.proposals, s.version)
	tx.events.apply(next.events, s.version)
	tx.markets.apply(next.markets, s.version)
	tx.outcomes.apply(next.outcomes, s.version)
	tx.positions.apply(next.positions, s.version)
	tx.bets.apply(next.bets, s.version)
	s.state = next
	return nil
}

// memTx is a single transaction over a MemoryStore. Not safe for concurrent
// use by multiple goroutines.
type memTx struct {
	store    *MemoryStore
	writable bool

	funds     *tracked[model.FundID, model.Fund]
	holdings  *tracked[holdingKey, int64]
	proposals *tracked[model.ProposalID, model.Proposal]
	events    *tracked[model.EventID, model.Event]
	markets   *tracked[model.EventID, model.Market]
	outcomes  *tracked[model.OutcomeID, model.Outcome]
	positions *tracked[positionKey, model.Position]
	bets      *tracked[int64, model.BetEntry]
}

func (tx *memTx) checkWritable() error {
	if !tx.writable {
		return errReadOnly
	}
	return nil
}

// --- Identifiers ---

func (tx *memTx) NextFundID(_ context.Context) (model.FundID, error) {
	if err := tx.checkWritable(); err != nil {
		return 0, err
	}
	return model.FundID(tx.store.nextFund.Add(1)), nil
}

func (tx *memTx) NextProposalID(_ context.Context) (model.ProposalID, error) {
	if err := tx.checkWritable(); err != nil {
		return 0, err
	}
	return model.ProposalID(tx.store.nextProposal.Add(1)), nil
}

func (tx *memTx) NextEventID(_ context.Context) (model.EventID, error) {
	if err := tx.checkWritable(); err != nil {
		return 0, err
	}
	return model.EventID(tx.store.nextEvent.Add(1)), nil
}

func (tx *memTx) NextOutcomeID(_ context.Context) (model.OutcomeID, error) {
	if err := tx.checkWritable(); err != nil {
		return 0, err
	}
	return model.OutcomeID(tx.store.nextOutcome.Add(1)), nil
}

// --- Funds and share holdings ---

func (tx *memTx) GetFund(_ context.Context, id model.FundID) (*model.Fund, error) {
	f, ok := tx.funds.get(id)
	if !ok {
		return nil, fmt.Errorf("fund %d: %w", id, model.ErrNotFound)
	}
	return &f, nil
}

func (tx *memTx) PutFund(_ context.Context, f *model.Fund) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	tx.funds.put(f.ID, *f)
	return nil
}

func (tx *memTx) ListFunds(_ context.Context) ([]model.Fund, error) {
	var funds []model.Fund
	tx.funds.scan(nil, func(_ model.FundID, f model.Fund) bool {
		funds = append(funds, f)
		return true
	})
	return funds, nil
}

func (tx *memTx) GetHolding(_ context.Context, fundID model.FundID, account model.AccountID) (int64, error) {
	shares, _ := tx.holdings.get(holdingKey{fund: fundID, account: account})
	return shares, nil
}

func (tx *memTx) PutHolding(_ context.Context, h model.Holding) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if h.Shares < 0 {
		return fmt.Errorf("store: negative holding for fund %d", h.FundID)
	}
	k := holdingKey{fund: h.FundID, account: h.Account}
	if h.Shares == 0 {
		tx.holdings.del(k)
		return nil
	}
	tx.holdings.put(k, h.Shares)
	return nil
}

func (tx *memTx) ListHoldings(_ context.Context, fundID model.FundID) ([]model.Holding, error) {
	var holdings []model.Holding
	from := holdingKey{fund: fundID}
	tx.holdings.scan(&from, func(k holdingKey, shares int64) bool {
		if k.fund != fundID {
			return false
		}
		holdings = append(holdings, model.Holding{FundID: k.fund, Account: k.account, Shares: shares})
		return true
	})
	return holdings, nil
}

// --- Trade proposals ---

func (tx *memTx) GetProposal(_ context.Context, id model.ProposalID) (*model.Proposal, error) {
	p, ok := tx.proposals.get(id)
	if !ok {
		return nil, fmt.Errorf("proposal %d: %w", id, model.ErrNotFound)
	}
	return &p, nil
}

func (tx *memTx) PutProposal(_ context.Context, p *model.Proposal) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	tx.proposals.put(p.ID, *p)
	return nil
}

func (tx *memTx) ListProposals(_ context.Context) ([]model.Proposal, error) {
	var proposals []model.Proposal
	tx.proposals.scan(nil, func(_ model.ProposalID, p model.Proposal) bool {
		proposals = append(proposals, p)
		return true
	})
	return proposals, nil
}

func (tx *memTx) ListProposalsByFund(_ context.Context, fundID model.FundID) ([]model.Proposal, error) {
	var proposals []model.Proposal
	tx.proposals.scan(nil, func(_ model.ProposalID, p model.Proposal) bool {
		if p.FundID == fundID {
			proposals = append(proposals, p)
		}
		return true
	})
	return proposals, nil
}

// --- Events, markets and outcomes ---

func (tx *memTx) GetEvent(_ context.Context, id model.EventID) (*model.Event, error) {
	e, ok := tx.events.get(id)
	if !ok {
		return nil, fmt.Errorf("event %d: %w", id, model.ErrNotFound)
	}
	return &e, nil
}

func (tx *memTx) PutEvent(_ context.Context, e *model.Event) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	tx.events.put(e.ID, *e)
	return nil
}

func (tx *memTx) ListEvents(_ context.Context) ([]model.Event, error) {
	var events []model.Event
	tx.events.scan(nil, func(_ model.EventID, e model.Event) bool {
		events = append(events, e)
		return true
	})
	return events, nil
}

func (tx *memTx) GetMarket(_ context.Context, eventID model.EventID) (*model.Market, error) {
	m, ok := tx.markets.get(eventID)
	if !ok {
		return nil, fmt.Errorf("market for event %d: %w", eventID, model.ErrNotFound)
	}
	return &m, nil
}

func (tx *memTx) PutMarket(_ context.Context, m *model.Market) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	tx.markets.put(m.EventID, *m)
	return nil
}

func (tx *memTx) GetOutcome(_ context.Context, id model.OutcomeID) (*model.Outcome, error) {
	o, ok := tx.outcomes.get(id)
	if !ok {
		return nil, fmt.Errorf("outcome %d: %w", id, model.ErrNotFound)
	}
	return &o, nil
}

func (tx *memTx) PutOutcome(_ context.Context, o *model.Outcome) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	tx.outcomes.put(o.ID, *o)
	return nil
}

func (tx *memTx) ListOutcomes(_ context.Context, eventID model.EventID) ([]model.Outcome, error) {
	var outcomes []model.Outcome
	tx.outcomes.scan(nil, func(_ model.OutcomeID, o model.Outcome) bool {
		if o.EventID == eventID {
			outcomes = append(outcomes, o)
		}
		return true
	})
	return outcomes, nil
}

// --- Bets ---

func (tx *memTx) GetPosition(_ context.Context, outcomeID model.OutcomeID, fundID model.FundID) (*model.Position, error) {
	p, ok := tx.positions.get(positionKey{outcome: outcomeID, fund: fundID})
	if !ok {
		return nil, fmt.Errorf("position of fund %d on outcome %d: %w", fundID, outcomeID, model.ErrNotFound)
	}
	return &p, nil
}

func (tx *memTx) PutPosition(_ context.Context, p *model.Position) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	tx.positions.put(positionKey{outcome: p.OutcomeID, fund: p.FundID}, *p)
	return nil
}

func (tx *memTx) ListPositionsByOutcome(_ context.Context, outcomeID model.OutcomeID) ([]model.Position, error) {
	var positions []model.Position
	from := positionKey{outcome: outcomeID}
	tx.positions.scan(&from, func(k positionKey, p model.Position) bool {
		if k.outcome != outcomeID {
			return false
		}
		positions = append(positions, p)
		return true
	})
	return positions, nil
}

func (tx *memTx) ListPositionsByFund(_ context.Context, fundID model.FundID) ([]model.Position, error) {
	var positions []model.Position
	tx.positions.scan(nil, func(_ positionKey, p model.Position) bool {
		if p.FundID == fundID {
			positions = append(positions, p)
		}
		return true
	})
	return positions, nil
}

func (tx *memTx) InsertBetEntry(_ context.Context, e *model.BetEntry) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	tx.bets.put(tx.store.nextBet.Add(1), *e)
	return nil
}

func (tx *memTx) ListBetEntriesByEvent(_ context.Context, eventID model.EventID) ([]model.BetEntry, error) {
	var entries []model.BetEntry
	tx.bets.scan(nil, func(_ int64, e model.BetEntry) bool {
		if e.EventID == eventID {
			entries = append(entries, e)
		}
		return true
	})
	return entries, nil
}

// Package store defines the transactional persistence interface for the fund
// ledger. Implementations include PostgreSQL (source of truth) and in-memory
// (for testing and development). Every mutating engine operation runs inside
// a single Update transaction, so it either commits entirely or leaves no
// trace.
package store

import (
	"context"

	"github.com/atmx/fund-ledger/internal/model"
)

// Store opens transactions over the ledger.
type Store interface {
	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Update runs fn in a serializable read-write transaction. If fn returns
	// an error nothing is written and that error is returned unchanged.
	// A commit that loses a race with a concurrent transaction returns an
	// error matching model.ErrConflict.
	Update(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of reads and writes available inside a transaction.
// Getters return model.ErrNotFound (possibly wrapped) for absent rows.
// Writes inside a View transaction fail.
type Tx interface {
	// --- Identifiers ---

	NextFundID(ctx context.Context) (model.FundID, error)
	NextProposalID(ctx context.Context) (model.ProposalID, error)
	NextEventID(ctx context.Context) (model.EventID, error)
	NextOutcomeID(ctx context.Context) (model.OutcomeID, error)

	// --- Funds and share holdings ---

	GetFund(ctx context.Context, id model.FundID) (*model.Fund, error)
	PutFund(ctx context.Context, f *model.Fund) error
	ListFunds(ctx context.Context) ([]model.Fund, error)

	// GetHolding returns 0 when the account holds no shares of the fund.
	GetHolding(ctx context.Context, fundID model.FundID, account model.AccountID) (int64, error)
	// PutHolding stores the share count; a count of zero removes the holding.
	PutHolding(ctx context.Context, h model.Holding) error
	ListHoldings(ctx context.Context, fundID model.FundID) ([]model.Holding, error)

	// --- Trade proposals ---

	GetProposal(ctx context.Context, id model.ProposalID) (*model.Proposal, error)
	PutProposal(ctx context.Context, p *model.Proposal) error
	ListProposals(ctx context.Context) ([]model.Proposal, error)
	ListProposalsByFund(ctx context.Context, fundID model.FundID) ([]model.Proposal, error)

	// --- Events, markets and outcomes ---

	GetEvent(ctx context.Context, id model.EventID) (*model.Event, error)
	PutEvent(ctx context.Context, e *model.Event) error
	ListEvents(ctx context.Context) ([]model.Event, error)

	GetMarket(ctx context.Context, eventID model.EventID) (*model.Market, error)
	PutMarket(ctx context.Context, m *model.Market) error

	GetOutcome(ctx context.Context, id model.OutcomeID) (*model.Outcome, error)
	PutOutcome(ctx context.Context, o *model.Outcome) error
	ListOutcomes(ctx context.Context, eventID model.EventID) ([]model.Outcome, error)

	// --- Bets ---

	GetPosition(ctx context.Context, outcomeID model.OutcomeID, fundID model.FundID) (*model.Position, error)
	PutPosition(ctx context.Context, p *model.Position) error
	ListPositionsByOutcome(ctx context.Context, outcomeID model.OutcomeID) ([]model.Position, error)
	ListPositionsByFund(ctx context.Context, fundID model.FundID) ([]model.Position, error)

	// InsertBetEntry appends an immutable bet record.
	InsertBetEntry(ctx context.Context, e *model.BetEntry) error
	ListBetEntriesByEvent(ctx context.Context, eventID model.EventID) ([]model.BetEntry, error)
}

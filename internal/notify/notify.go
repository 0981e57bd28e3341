// Package notify carries post-commit change records from the ledger engines
// to interested consumers (websocket clients, caches, metrics).
//
// Notifications are best effort. They are emitted only after a transaction
// commits, and a consumer that fails never affects the committed command.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/fund-ledger/internal/model"
)

// Kind names what happened.
type Kind string

const (
	FundCreated       Kind = "fund_created"
	SharesTransferred Kind = "shares_transferred"
	FundDeposited     Kind = "fund_deposited"
	FundWithdrawn     Kind = "fund_withdrawn"
	ProposalCreated   Kind = "proposal_created"
	ProposalAccepted  Kind = "proposal_accepted"
	EventCreated      Kind = "event_created"
	BetPlaced         Kind = "bet_placed"
	EventResolved     Kind = "event_resolved"
)

// Change describes one committed command. FundIDs and EventIDs list every
// entity whose projected state changed.
type Change struct {
	Kind       Kind             `json:"type"`
	FundIDs    []model.FundID   `json:"fund_ids,omitempty"`
	EventIDs   []model.EventID  `json:"event_ids,omitempty"`
	ProposalID model.ProposalID `json:"proposal_id,omitempty"`
	OutcomeID  model.OutcomeID  `json:"outcome_id,omitempty"`
	Account    model.AccountID  `json:"account,omitempty"`
	Shares     int64            `json:"shares,omitempty"`
	Amount     decimal.Decimal  `json:"amount"`
	At         time.Time        `json:"at"`
}

// Notifier receives committed changes. Implementations must not block for
// long; they run on the request path.
type Notifier interface {
	Notify(ctx context.Context, c Change)
}

// Fanout delivers every change to each notifier in order. Nil entries are
// skipped.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, c Change) {
	for _, n := range f {
		if n != nil {
			n.Notify(ctx, c)
		}
	}
}

// Nop discards changes.
type Nop struct{}

func (Nop) Notify(context.Context, Change) {}

// OrNop returns n, or Nop when n is nil.
func OrNop(n Notifier) Notifier {
	if n == nil {
		return Nop{}
	}
	return n
}

// Recorder keeps every change it receives. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *Recorder) Notify(_ context.Context, c Change) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

// Changes returns a copy of the recorded changes.
func (r *Recorder) Changes() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Change(nil), r.changes...)
}

// Kinds returns the kinds of the recorded changes in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, len(r.changes))
	for i, c := range r.changes {
		kinds[i] = c.Kind
	}
	return kinds
}

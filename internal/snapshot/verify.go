package snapshot

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/atmx/fund-ledger/internal/model"
)

// Violation is one broken invariant.
type Violation struct {
	Entity  string `json:"entity"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s: %s", v.Entity, v.ID, v.Message)
}

type positionKey struct {
	outcome model.OutcomeID
	fund    model.FundID
}

// Verify checks every conservation and ownership invariant of the ledger
// and returns the violations found, in a stable order. An empty result
// means the snapshot is consistent.
func (s *Snapshot) Verify() []Violation {
	var out []Violation
	add := func(entity string, id any, format string, args ...any) {
		out = append(out, Violation{Entity: entity, ID: fmt.Sprint(id), Message: fmt.Sprintf(format, args...)})
	}

	// Funds and holdings.
	held := make(map[model.FundID]int64)
	for _, h := range s.Holdings {
		if h.Shares <= 0 {
			add("holding", fmt.Sprintf("%d/%s", h.FundID, h.Account), "stored holding of %d shares", h.Shares)
		}
		held[h.FundID] += h.Shares
	}
	funds := make(map[model.FundID]bool, len(s.Funds))
	for _, f := range s.Funds {
		funds[f.ID] = true
		if f.TotalShare < model.MinFundShare || f.TotalShare%model.MinFundShare != 0 {
			add("fund", f.ID, "total share %d is not a positive multiple of %d", f.TotalShare, model.MinFundShare)
		}
		if held[f.ID] != f.TotalShare {
			add("fund", f.ID, "holdings sum to %d, total share is %d", held[f.ID], f.TotalShare)
		}
		if f.Balance.IsNegative() || !f.Balance.IsInteger() {
			add("fund", f.ID, "balance %s is not a non-negative integer amount", f.Balance)
		}
	}
	for _, h := range s.Holdings {
		if !funds[h.FundID] {
			add("holding", fmt.Sprintf("%d/%s", h.FundID, h.Account), "fund does not exist")
		}
	}

	// Proposals.
	for _, p := range s.Proposals {
		if !funds[p.FundID] {
			add("proposal", p.ID, "fund %d does not exist", p.FundID)
		}
		if p.IsCompleted != (p.Acceptor != nil) {
			add("proposal", p.ID, "completed=%t but acceptor set=%t", p.IsCompleted, p.Acceptor != nil)
		}
	}

	// Bets against positions and supply.
	betSupply := make(map[positionKey]int64)
	betDeposit := make(map[positionKey]decimal.Decimal)
	eventBets := make(map[model.EventID]decimal.Decimal)
	for _, b := range s.Bets {
		k := positionKey{b.OutcomeID, b.FundID}
		betSupply[k] += b.Supply
		betDeposit[k] = betDeposit[k].Add(b.Deposit)
		eventBets[b.EventID] = eventBets[b.EventID].Add(b.Deposit)
	}
	committed := make(map[model.OutcomeID]int64)
	for _, p := range s.Positions {
		k := positionKey{p.OutcomeID, p.FundID}
		committed[p.OutcomeID] += p.Supply
		id := fmt.Sprintf("%d/%d", p.OutcomeID, p.FundID)
		if p.Supply != betSupply[k] {
			add("position", id, "supply %d, bets record %d", p.Supply, betSupply[k])
		}
		if !p.Deposited.Equal(betDeposit[k]) {
			add("position", id, "deposited %s, bets record %s", p.Deposited, betDeposit[k])
		}
		delete(betSupply, k)
	}
	orphans := make([]positionKey, 0, len(betSupply))
	for k := range betSupply {
		orphans = append(orphans, k)
	}
	slices.SortFunc(orphans, func(a, b positionKey) int {
		if c := cmp.Compare(a.outcome, b.outcome); c != 0 {
			return c
		}
		return cmp.Compare(a.fund, b.fund)
	})
	for _, k := range orphans {
		add("position", fmt.Sprintf("%d/%d", k.outcome, k.fund), "bets record %d supply but no position exists", betSupply[k])
	}

	outcomesByEvent := make(map[model.EventID]map[model.OutcomeID]bool)
	for _, o := range s.Outcomes {
		if o.AvailableSupply < 0 || o.AvailableSupply > o.TotalSupply {
			add("outcome", o.ID, "available supply %d outside [0, %d]", o.AvailableSupply, o.TotalSupply)
		}
		if got := committed[o.ID]; got != o.CommittedSupply() {
			add("outcome", o.ID, "positions hold %d supply, outcome has %d committed", got, o.CommittedSupply())
		}
		if outcomesByEvent[o.EventID] == nil {
			outcomesByEvent[o.EventID] = make(map[model.OutcomeID]bool)
		}
		outcomesByEvent[o.EventID][o.ID] = true
	}

	// Markets.
	deposits := make(map[model.EventID]decimal.Decimal, len(s.Events))
	for _, ev := range s.Events {
		deposits[ev.ID] = ev.CreationDeposit
	}
	for _, m := range s.Markets {
		want := deposits[m.EventID].Add(eventBets[m.EventID])
		if !m.Pool.Equal(want) {
			add("market", m.EventID, "pool %s, creation deposit plus bets is %s", m.Pool, want)
		}
		if m.PaidOut.IsNegative() || m.PaidOut.GreaterThan(m.Pool) {
			add("market", m.EventID, "paid out %s outside [0, pool %s]", m.PaidOut, m.Pool)
		}
		switch {
		case m.IsResolved && m.WinningOutcome == nil:
			add("market", m.EventID, "resolved without a winning outcome")
		case !m.IsResolved && m.WinningOutcome != nil:
			add("market", m.EventID, "winning outcome set on an open market")
		case !m.IsResolved && !m.PaidOut.IsZero():
			add("market", m.EventID, "open market has paid out %s", m.PaidOut)
		case m.WinningOutcome != nil && !outcomesByEvent[m.EventID][*m.WinningOutcome]:
			add("market", m.EventID, "winning outcome %d does not belong to the event", *m.WinningOutcome)
		}
	}
	return out
}

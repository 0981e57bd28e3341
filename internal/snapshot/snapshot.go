// Package snapshot captures the whole ledger at one instant, checks its
// conservation invariants, and moves snapshots in and out of blob storage.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/atmx/fund-ledger/internal/model"
	"github.com/atmx/fund-ledger/internal/store"
)

// Snapshot is every ledger row read inside one View transaction.
type Snapshot struct {
	TakenAt   time.Time        `json:"taken_at"`
	Funds     []model.Fund     `json:"funds"`
	Holdings  []model.Holding  `json:"holdings"`
	Proposals []model.Proposal `json:"proposals"`
	Events    []model.Event    `json:"events"`
	Markets   []model.Market   `json:"markets"`
	Outcomes  []model.Outcome  `json:"outcomes"`
	Positions []model.Position `json:"positions"`
	Bets      []model.BetEntry `json:"bets"`
}

// Build reads the ledger from st.
func Build(ctx context.Context, st store.Store, now time.Time) (*Snapshot, error) {
	s := &Snapshot{TakenAt: now}
	err := st.View(ctx, func(tx store.Tx) error {
		funds, err := tx.ListFunds(ctx)
		if err != nil {
			return fmt.Errorf("list funds: %w", err)
		}
		s.Funds = funds
		for _, f := range funds {
			hs, err := tx.ListHoldings(ctx, f.ID)
			if err != nil {
				return fmt.Errorf("list holdings of fund %d: %w", f.ID, err)
			}
			s.Holdings = append(s.Holdings, hs...)
		}

		if s.Proposals, err = tx.ListProposals(ctx); err != nil {
			return fmt.Errorf("list proposals: %w", err)
		}

		events, err := tx.ListEvents(ctx)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		s.Events = events
		for _, ev := range events {
			m, err := tx.GetMarket(ctx, ev.ID)
			if err != nil {
				return err
			}
			s.Markets = append(s.Markets, *m)

			outcomes, err := tx.ListOutcomes(ctx, ev.ID)
			if err != nil {
				return fmt.Errorf("list outcomes of event %d: %w", ev.ID, err)
			}
			s.Outcomes = append(s.Outcomes, outcomes...)
			for _, o := range outcomes {
				ps, err := tx.ListPositionsByOutcome(ctx, o.ID)
				if err != nil {
					return fmt.Errorf("list positions of outcome %d: %w", o.ID, err)
				}
				s.Positions = append(s.Positions, ps...)
			}

			bets, err := tx.ListBetEntriesByEvent(ctx, ev.ID)
			if err != nil {
				return fmt.Errorf("list bets of event %d: %w", ev.ID, err)
			}
			s.Bets = append(s.Bets, bets...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// WriteJSON encodes s to w.
func (s *Snapshot) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// ReadJSON decodes a snapshot written by WriteJSON.
func ReadJSON(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}

// Key returns the object key a snapshot taken at t is stored under.
func Key(prefix string, t time.Time) string {
	return fmt.Sprintf("%sledger-%s.json", prefix, t.UTC().Format("20060102T150405Z"))
}

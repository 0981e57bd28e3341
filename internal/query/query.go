// Package query serves the read side of the ledger: named projections over
// funds, proposals and events, each assembled from one consistent store
// snapshot.
package query

import (
	"context"
	"log/slog"

	"github.com/atmx/fund-ledger/internal/model"
	"github.com/atmx/fund-ledger/internal/store"
)

// Cache is an optional read-through cache for the detail projections.
// Implementations treat every failure as a miss.
//
// A Get returns the entry's generation even on a miss. The Put that follows
// passes it back, and the cache drops the value if the entry was invalidated
// in between. A negative generation disables the fill.
type Cache interface {
	GetFundDetail(ctx context.Context, id model.FundID) (d *model.FundDetail, gen int64, ok bool)
	PutFundDetail(ctx context.Context, d *model.FundDetail, gen int64)
	GetEventDetail(ctx context.Context, id model.EventID) (d *model.EventDetail, gen int64, ok bool)
	PutEventDetail(ctx context.Context, d *model.EventDetail, gen int64)
}

// Service answers ledger queries.
type Service struct {
	store store.Store
	cache Cache
}

// NewService creates a query service. Pass nil for cache to always read
// from the store.
func NewService(st store.Store, cache Cache) *Service {
	return &Service{store: st, cache: cache}
}

// GetFunds lists every fund with its outcome positions. When owner is set,
// only funds in which owner holds shares are returned, with OwnerShare
// filled in.
func (s *Service) GetFunds(ctx context.Context, owner *model.AccountID) ([]model.FundView, error) {
	views := []model.FundView{}
	err := s.store.View(ctx, func(tx store.Tx) error {
		funds, err := tx.ListFunds(ctx)
		if err != nil {
			return err
		}
		for _, f := range funds {
			view := model.FundView{Fund: f}
			if owner != nil {
				shares, err := tx.GetHolding(ctx, f.ID, *owner)
				if err != nil {
					return err
				}
				if shares == 0 {
					continue
				}
				view.OwnerShare = &shares
			}
			if view.Outcomes, err = fundOutcomes(ctx, tx, f.ID); err != nil {
				return err
			}
			views = append(views, view)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// GetFund returns the full state of one fund.
func (s *Service) GetFund(ctx context.Context, id model.FundID) (*model.FundDetail, error) {
	gen := int64(-1)
	if s.cache != nil {
		d, g, ok := s.cache.GetFundDetail(ctx, id)
		if ok {
			return d, nil
		}
		gen = g
	}

	var detail model.FundDetail
	err := s.store.View(ctx, func(tx store.Tx) error {
		f, err := tx.GetFund(ctx, id)
		if err != nil {
			return err
		}
		detail.Fund = *f
		if detail.Holders, err = tx.ListHoldings(ctx, id); err != nil {
			return err
		}
		if detail.Holders == nil {
			detail.Holders = []model.Holding{}
		}
		detail.Outcomes, err = fundOutcomes(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.PutFundDetail(ctx, &detail, gen)
	}
	return &detail, nil
}

// GetOwnerShare returns account's holding in fundID, zero when absent.
func (s *Service) GetOwnerShare(ctx context.Context, fundID model.FundID, account model.AccountID) (int64, error) {
	var shares int64
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		shares, err = tx.GetHolding(ctx, fundID, account)
		return err
	})
	return shares, err
}

// GetFundProposals returns a fund with every proposal made on it, oldest
// first.
func (s *Service) GetFundProposals(ctx context.Context, fundID model.FundID) (*model.FundProposals, error) {
	var res model.FundProposals
	err := s.store.View(ctx, func(tx store.Tx) error {
		f, err := tx.GetFund(ctx, fundID)
		if err != nil {
			return err
		}
		res.Fund = *f
		if res.Proposals, err = tx.ListProposalsByFund(ctx, fundID); err != nil {
			return err
		}
		if res.Proposals == nil {
			res.Proposals = []model.Proposal{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// GetProposals lists proposals with their funds, optionally only those made
// by proponent.
func (s *Service) GetProposals(ctx context.Context, proponent *model.AccountID) ([]model.ProposalView, error) {
	views := []model.ProposalView{}
	err := s.store.View(ctx, func(tx store.Tx) error {
		proposals, err := tx.ListProposals(ctx)
		if err != nil {
			return err
		}
		funds := make(map[model.FundID]model.Fund)
		for _, p := range proposals {
			if proponent != nil && p.Proponent != *proponent {
				continue
			}
			f, ok := funds[p.FundID]
			if !ok {
				loaded, err := tx.GetFund(ctx, p.FundID)
				if err != nil {
					return err
				}
				f = *loaded
				funds[p.FundID] = f
			}
			views = append(views, model.ProposalView{Fund: f, Proposal: p})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// GetEvents lists every event with its market and the sum of its outcomes'
// total supply.
func (s *Service) GetEvents(ctx context.Context) ([]model.EventSummary, error) {
	summaries := []model.EventSummary{}
	err := s.store.View(ctx, func(tx store.Tx) error {
		events, err := tx.ListEvents(ctx)
		if err != nil {
			return err
		}
		for _, ev := range events {
			m, err := tx.GetMarket(ctx, ev.ID)
			if err != nil {
				return err
			}
			outcomes, err := tx.ListOutcomes(ctx, ev.ID)
			if err != nil {
				return err
			}
			summaries = append(summaries, model.EventSummary{
				Event:       ev,
				Market:      *m,
				TotalSupply: totalSupply(outcomes),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// GetEventDetail returns an event, its market and every outcome with the
// funds that bet on it.
func (s *Service) GetEventDetail(ctx context.Context, id model.EventID) (*model.EventDetail, error) {
	gen := int64(-1)
	if s.cache != nil {
		d, g, ok := s.cache.GetEventDetail(ctx, id)
		if ok {
			return d, nil
		}
		gen = g
	}

	var detail model.EventDetail
	err := s.store.View(ctx, func(tx store.Tx) error {
		ev, err := tx.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		m, err := tx.GetMarket(ctx, id)
		if err != nil {
			return err
		}
		outcomes, err := tx.ListOutcomes(ctx, id)
		if err != nil {
			return err
		}
		detail = model.EventDetail{
			Event:       *ev,
			Market:      *m,
			TotalSupply: totalSupply(outcomes),
			Outcomes:    make([]model.OutcomeDetail, 0, len(outcomes)),
		}
		for _, o := range outcomes {
			positions, err := tx.ListPositionsByOutcome(ctx, o.ID)
			if err != nil {
				return err
			}
			od := model.OutcomeDetail{Outcome: o, Funds: make([]model.FundStake, 0, len(positions))}
			for _, p := range positions {
				f, err := tx.GetFund(ctx, p.FundID)
				if err != nil {
					return err
				}
				od.Funds = append(od.Funds, model.FundStake{Fund: *f, Supply: p.Supply})
			}
			detail.Outcomes = append(detail.Outcomes, od)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.PutEventDetail(ctx, &detail, gen)
	}
	return &detail, nil
}

// GetEventBets returns the bet journal of an event in placement order.
func (s *Service) GetEventBets(ctx context.Context, id model.EventID) ([]model.BetEntry, error) {
	entries := []model.BetEntry{}
	err := s.store.View(ctx, func(tx store.Tx) error {
		if _, err := tx.GetEvent(ctx, id); err != nil {
			return err
		}
		list, err := tx.ListBetEntriesByEvent(ctx, id)
		if err != nil {
			return err
		}
		entries = append(entries, list...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// fundOutcomes pairs each of a fund's positions with its outcome.
func fundOutcomes(ctx context.Context, tx store.Tx, fundID model.FundID) ([]model.FundOutcome, error) {
	positions, err := tx.ListPositionsByFund(ctx, fundID)
	if err != nil {
		return nil, err
	}
	out := make([]model.FundOutcome, 0, len(positions))
	for _, p := range positions {
		o, err := tx.GetOutcome(ctx, p.OutcomeID)
		if err != nil {
			slog.Warn("position references missing outcome", "fund_id", fundID, "outcome_id", p.OutcomeID)
			return nil, err
		}
		out = append(out, model.FundOutcome{Outcome: *o, Supply: p.Supply})
	}
	return out, nil
}

func totalSupply(outcomes []model.Outcome) int64 {
	var total int64
	for _, o := range outcomes {
		total += o.TotalSupply
	}
	return total
}

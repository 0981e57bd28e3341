// Package proposal implements trade proposals: offers by a shareholder to
// sell fund shares for a price, optionally restricted to one counterparty
// and optionally closing at a deadline.
//
// Shares are not escrowed when a proposal is created. The proponent's
// holding is checked again when the proposal is accepted, so proposals that
// together exceed the holding fail at acceptance.
package proposal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/fund-ledger/internal/fund"
	"github.com/atmx/fund-ledger/internal/model"
	"github.com/atmx/fund-ledger/internal/notify"
	"github.com/atmx/fund-ledger/internal/store"
)

// CreateRequest describes a new proposal.
type CreateRequest struct {
	FundID model.FundID
	Share  int64
	Price  decimal.Decimal
	// Duration bounds how long the proposal stays open. Nil leaves it open
	// until accepted.
	Duration *time.Duration
	// ProposedPerson restricts acceptance to one account. Nil lets anyone
	// but the proponent accept.
	ProposedPerson *model.AccountID
}

// AcceptResult reports a completed acceptance.
type AcceptResult struct {
	Proposal model.Proposal
	// Refund is the part of the payment above the price. It is not
	// recorded in the ledger; the caller returns it to the acceptor.
	Refund decimal.Decimal
}

// Engine executes proposal commands.
type Engine struct {
	store    store.Store
	now      func() time.Time
	notifier notify.Notifier
}

// NewEngine creates a proposal engine. now may be nil to use the wall
// clock; n may be nil to disable change notifications.
func NewEngine(st store.Store, now func() time.Time, n notify.Notifier) *Engine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{store: st, now: now, notifier: notify.OrNop(n)}
}

// CreateProposal records an offer by proponent and returns its ID.
func (e *Engine) CreateProposal(ctx context.Context, proponent model.AccountID, req CreateRequest) (model.ProposalID, error) {
	if req.Share <= 0 {
		return 0, fmt.Errorf("%w: share %d must be positive", model.ErrInvalidShare, req.Share)
	}
	if err := model.CheckAmount(req.Price); err != nil {
		return 0, err
	}
	if req.Duration != nil && *req.Duration <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", model.ErrInvalidDuration, *req.Duration)
	}
	if req.ProposedPerson != nil {
		switch *req.ProposedPerson {
		case "":
			return 0, fmt.Errorf("%w: proposed person is empty", model.ErrInvalidInput)
		case proponent:
			return 0, fmt.Errorf("%w: cannot propose a trade to oneself", model.ErrInvalidInput)
		}
	}

	now := e.now()
	p := model.Proposal{
		FundID:         req.FundID,
		Proponent:      proponent,
		Share:          req.Share,
		Price:          req.Price,
		ProposedPerson: req.ProposedPerson,
		CreatedAt:      now,
	}
	if req.Duration != nil {
		closeTime := now.Add(*req.Duration)
		p.CloseTime = &closeTime
	}

	err := e.store.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.GetFund(ctx, req.FundID); err != nil {
			return err
		}
		have, err := tx.GetHolding(ctx, req.FundID, proponent)
		if err != nil {
			return err
		}
		if have < req.Share {
			return fmt.Errorf("%w: %s holds %d of fund %d, offers %d",
				model.ErrInsufficientShare, proponent, have, req.FundID, req.Share)
		}
		if p.ID, err = tx.NextProposalID(ctx); err != nil {
			return err
		}
		return tx.PutProposal(ctx, &p)
	})
	if err != nil {
		return 0, err
	}

	slog.Info("proposal created",
		"proposal_id", p.ID,
		"fund_id", p.FundID,
		"proponent", proponent,
		"share", p.Share,
		"price", p.Price.String(),
	)
	e.notifier.Notify(ctx, notify.Change{
		Kind:       notify.ProposalCreated,
		FundIDs:    []model.FundID{p.FundID},
		ProposalID: p.ID,
		Account:    proponent,
		Shares:     p.Share,
		Amount:     p.Price,
		At:         now,
	})
	return p.ID, nil
}

// AcceptProposal completes a proposal for acceptor, who has deposited
// payment. The shares move to the acceptor and the price is credited to the
// traded fund's balance in one transaction.
func (e *Engine) AcceptProposal(ctx context.Context, acceptor model.AccountID, id model.ProposalID, payment decimal.Decimal) (AcceptResult, error) {
	if acceptor == "" {
		return AcceptResult{}, fmt.Errorf("%w: acceptor is required", model.ErrInvalidInput)
	}
	if err := model.CheckAmount(payment); err != nil {
		return AcceptResult{}, err
	}

	now := e.now()
	var p *model.Proposal
	err := e.store.Update(ctx, func(tx store.Tx) error {
		var err error
		if p, err = tx.GetProposal(ctx, id); err != nil {
			return err
		}
		if err := checkAcceptable(p, acceptor, payment, now); err != nil {
			return err
		}
		if err := fund.Transfer(ctx, tx, p.FundID, p.Proponent, acceptor, p.Share); err != nil {
			return err
		}
		if _, err := fund.Credit(ctx, tx, p.FundID, p.Price); err != nil {
			return err
		}

		p.IsCompleted = true
		p.Acceptor = &acceptor
		p.CompletedAt = &now
		return tx.PutProposal(ctx, p)
	})
	if err != nil {
		return AcceptResult{}, err
	}

	refund := payment.Sub(p.Price)
	slog.Info("proposal accepted",
		"proposal_id", p.ID,
		"fund_id", p.FundID,
		"proponent", p.Proponent,
		"acceptor", acceptor,
		"share", p.Share,
		"price", p.Price.String(),
		"refund", refund.String(),
	)
	e.notifier.Notify(ctx, notify.Change{
		Kind:       notify.ProposalAccepted,
		FundIDs:    []model.FundID{p.FundID},
		ProposalID: p.ID,
		Account:    acceptor,
		Shares:     p.Share,
		Amount:     p.Price,
		At:         now,
	})
	return AcceptResult{Proposal: *p, Refund: refund}, nil
}

// checkAcceptable applies the acceptance rules in order: completed,
// expired, counterparty, payment.
func checkAcceptable(p *model.Proposal, acceptor model.AccountID, payment decimal.Decimal, now time.Time) error {
	if p.IsCompleted {
		return fmt.Errorf("proposal %d: %w", p.ID, model.ErrAlreadyCompleted)
	}
	if p.Expired(now) {
		return fmt.Errorf("proposal %d closed at %s: %w", p.ID, p.CloseTime.Format(time.RFC3339), model.ErrExpired)
	}
	if p.ProposedPerson != nil && *p.ProposedPerson != acceptor {
		return fmt.Errorf("%w: proposal %d is reserved for %s", model.ErrNotAuthorized, p.ID, *p.ProposedPerson)
	}
	if acceptor == p.Proponent {
		return fmt.Errorf("%w: proponent cannot accept own proposal", model.ErrNotAuthorized)
	}
	if payment.LessThan(p.Price) {
		return fmt.Errorf("%w: paid %s, price %s", model.ErrInsufficientPayment, payment, p.Price)
	}
	return nil
}

// Package market implements betting events: creation with a fixed set of
// outcomes, bets placed by funds against outcome supply, and resolution with
// a proportional payout of the pool to the winning funds.
//
// A market moves one way, from open to resolved. Outcome supply only ever
// decreases, positions only ever grow, and the pool is credited out at most
// once.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/fund-ledger/internal/fund"
	"github.com/atmx/fund-ledger/internal/model"
	"github.com/atmx/fund-ledger/internal/notify"
	"github.com/atmx/fund-ledger/internal/payout"
	"github.com/atmx/fund-ledger/internal/store"
)

// Config holds the market rules that are deployment-specific.
type Config struct {
	// MinEventDeposit is the smallest creation deposit an event accepts.
	MinEventDeposit decimal.Decimal
	// AllowEarlyResolve lets an owner resolve before the resolve date.
	AllowEarlyResolve bool
	// CloseBetsAtResolveDate rejects bets once the resolve date is reached.
	CloseBetsAtResolveDate bool
	// Now overrides the clock. Defaults to time.Now in UTC.
	Now func() time.Time
}

// OutcomeSpec describes one outcome of a new event.
type OutcomeSpec struct {
	Description      string
	TotalSupply      int64
	DepositPerSupply decimal.Decimal
}

// CreateEventRequest describes a new event.
type CreateEventRequest struct {
	Question    string
	ResolveDate time.Time
	Outcomes    []OutcomeSpec
	Metadata    model.EventMetadata
	// Deposit seeds the pool.
	Deposit decimal.Decimal
}

// CreatedEvent holds the identifiers allocated for a new event, with
// OutcomeIDs in request order.
type CreatedEvent struct {
	EventID    model.EventID     `json:"event_id"`
	OutcomeIDs []model.OutcomeID `json:"outcome_ids"`
}

// BetRequest describes a bet placed with a fund's balance.
type BetRequest struct {
	OutcomeID model.OutcomeID
	FundID    model.FundID
	Supply    int64
	Deposit   decimal.Decimal
}

// BetResult reports a placed bet.
type BetResult struct {
	Entry           model.BetEntry `json:"entry"`
	Position        model.Position `json:"position"`
	AvailableSupply int64          `json:"available_supply"`
}

// FundPayout is what one winning fund received.
type FundPayout struct {
	FundID model.FundID    `json:"fund_id"`
	Supply int64           `json:"supply"`
	Amount decimal.Decimal `json:"amount"`
}

// Resolution reports a resolved market.
type Resolution struct {
	Market   model.Market    `json:"market"`
	Payouts  []FundPayout    `json:"payouts"`
	Retained decimal.Decimal `json:"retained"`
}

// Engine executes market commands.
type Engine struct {
	store    store.Store
	cfg      Config
	now      func() time.Time
	notifier notify.Notifier
}

// NewEngine creates a market engine. Pass nil for n if change
// notifications are not needed.
func NewEngine(st store.Store, cfg Config, n notify.Notifier) *Engine {
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{store: st, cfg: cfg, now: now, notifier: notify.OrNop(n)}
}

// CreateEvent opens a market for owner. Zero outcomes are allowed; such a
// market can never be resolved.
func (e *Engine) CreateEvent(ctx context.Context, owner model.AccountID, req CreateEventRequest) (CreatedEvent, error) {
	now := e.now()
	if err := e.validateEvent(owner, req, now); err != nil {
		return CreatedEvent{}, err
	}

	var created CreatedEvent
	err := e.store.Update(ctx, func(tx store.Tx) error {
		id, err := tx.NextEventID(ctx)
		if err != nil {
			return err
		}
		created = CreatedEvent{EventID: id, OutcomeIDs: make([]model.OutcomeID, 0, len(req.Outcomes))}

		ev := &model.Event{
			ID:              id,
			Owner:           owner,
			Question:        req.Question,
			Metadata:        req.Metadata,
			CreationDeposit: req.Deposit,
			CreatedAt:       now,
		}
		if err := tx.PutEvent(ctx, ev); err != nil {
			return err
		}
		m := &model.Market{
			EventID:     id,
			Pool:        req.Deposit,
			PaidOut:     decimal.Zero,
			ResolveDate: req.ResolveDate,
		}
		if err := tx.PutMarket(ctx, m); err != nil {
			return err
		}

		for _, oc := range req.Outcomes {
			oid, err := tx.NextOutcomeID(ctx)
			if err != nil {
				return err
			}
			o := &model.Outcome{
				ID:               oid,
				EventID:          id,
				Description:      oc.Description,
				DepositPerSupply: oc.DepositPerSupply,
				TotalSupply:      oc.TotalSupply,
				AvailableSupply:  oc.TotalSupply,
			}
			if err := tx.PutOutcome(ctx, o); err != nil {
				return err
			}
			created.OutcomeIDs = append(created.OutcomeIDs, oid)
		}
		return nil
	})
	if err != nil {
		return CreatedEvent{}, err
	}

	slog.Info("event created",
		"event_id", created.EventID,
		"owner", owner,
		"outcomes", len(created.OutcomeIDs),
		"deposit", req.Deposit.String(),
		"resolve_date", req.ResolveDate,
	)
	e.notifier.Notify(ctx, notify.Change{
		Kind:     notify.EventCreated,
		EventIDs: []model.EventID{created.EventID},
		Account:  owner,
		Amount:   req.Deposit,
		At:       now,
	})
	return created, nil
}

func (e *Engine) validateEvent(owner model.AccountID, req CreateEventRequest, now time.Time) error {
	if owner == "" {
		return fmt.Errorf("%w: owner is required", model.ErrInvalidInput)
	}
	if req.Question == "" {
		return fmt.Errorf("%w: question is required", model.ErrInvalidInput)
	}
	if !req.ResolveDate.After(now) {
		return fmt.Errorf("%w: %s", model.ErrInvalidResolveDate, req.ResolveDate.Format(time.RFC3339))
	}
	for i, o := range req.Outcomes {
		if o.TotalSupply <= 0 {
			return fmt.Errorf("%w: outcome %d total supply must be positive", model.ErrInvalidOutcome, i)
		}
		if !o.DepositPerSupply.IsPositive() || !o.DepositPerSupply.IsInteger() {
			return fmt.Errorf("%w: outcome %d deposit per supply must be a positive integer amount", model.ErrInvalidOutcome, i)
		}
	}
	if err := model.CheckAmount(req.Deposit); err != nil {
		return err
	}
	if req.Deposit.LessThan(e.cfg.MinEventDeposit) {
		return fmt.Errorf("%w: deposit %s below minimum %s",
			model.ErrInsufficientDeposit, req.Deposit, e.cfg.MinEventDeposit)
	}
	return nil
}

// Bet commits supply units of an outcome to a fund, paid from the fund's
// balance. Only the fund's trader may bet with it. Repeated bets by the same
// fund on the same outcome accumulate.
func (e *Engine) Bet(ctx context.Context, caller model.AccountID, req BetRequest) (BetResult, error) {
	if req.Supply <= 0 {
		return BetResult{}, fmt.Errorf("%w: supply %d must be positive", model.ErrInvalidInput, req.Supply)
	}
	if err := model.CheckAmount(req.Deposit); err != nil {
		return BetResult{}, err
	}

	now := e.now()
	var res BetResult
	err := e.store.Update(ctx, func(tx store.Tx) error {
		o, err := tx.GetOutcome(ctx, req.OutcomeID)
		if err != nil {
			return err
		}
		f, err := tx.GetFund(ctx, req.FundID)
		if err != nil {
			return err
		}
		if f.Trader != caller {
			return fmt.Errorf("%w: only the trader of fund %d may bet with it", model.ErrNotAuthorized, f.ID)
		}
		m, err := tx.GetMarket(ctx, o.EventID)
		if err != nil {
			return err
		}
		if m.IsResolved {
			return fmt.Errorf("event %d: %w", o.EventID, model.ErrMarketResolved)
		}
		if e.cfg.CloseBetsAtResolveDate && !now.Before(m.ResolveDate) {
			return fmt.Errorf("event %d: %w", o.EventID, model.ErrMarketClosed)
		}
		if o.AvailableSupply < req.Supply {
			return fmt.Errorf("%w: outcome %d has %d available, requested %d",
				model.ErrInsufficientSupply, o.ID, o.AvailableSupply, req.Supply)
		}
		required := payout.RequiredDeposit(req.Supply, o.DepositPerSupply)
		if req.Deposit.LessThan(required) {
			return fmt.Errorf("%w: deposit %s, required %s",
				model.ErrInsufficientDeposit, req.Deposit, required)
		}
		if _, err := fund.Debit(ctx, tx, f.ID, req.Deposit); err != nil {
			return err
		}

		o.AvailableSupply -= req.Supply
		if err := tx.PutOutcome(ctx, o); err != nil {
			return err
		}

		pos, err := tx.GetPosition(ctx, o.ID, f.ID)
		if err != nil {
			if !errors.Is(err, model.ErrNotFound) {
				return err
			}
			pos = &model.Position{OutcomeID: o.ID, FundID: f.ID, Deposited: decimal.Zero}
		}
		pos.Supply += req.Supply
		pos.Deposited = pos.Deposited.Add(req.Deposit)
		if err := tx.PutPosition(ctx, pos); err != nil {
			return err
		}

		entry := &model.BetEntry{
			ID:        uuid.New().String(),
			EventID:   o.EventID,
			OutcomeID: o.ID,
			FundID:    f.ID,
			Placer:    caller,
			Supply:    req.Supply,
			Deposit:   req.Deposit,
			Timestamp: now,
		}
		if err := tx.InsertBetEntry(ctx, entry); err != nil {
			return err
		}

		m.Pool = m.Pool.Add(req.Deposit)
		if err := tx.PutMarket(ctx, m); err != nil {
			return err
		}

		res = BetResult{Entry: *entry, Position: *pos, AvailableSupply: o.AvailableSupply}
		return nil
	})
	if err != nil {
		return BetResult{}, err
	}

	slog.Info("bet placed",
		"bet_id", res.Entry.ID,
		"event_id", res.Entry.EventID,
		"outcome_id", req.OutcomeID,
		"fund_id", req.FundID,
		"supply", req.Supply,
		"deposit", req.Deposit.String(),
		"available_supply", res.AvailableSupply,
	)
	e.notifier.Notify(ctx, notify.Change{
		Kind:      notify.BetPlaced,
		FundIDs:   []model.FundID{req.FundID},
		EventIDs:  []model.EventID{res.Entry.EventID},
		OutcomeID: req.OutcomeID,
		Account:   caller,
		Shares:    req.Supply,
		Amount:    req.Deposit,
		At:        now,
	})
	return res, nil
}

// ResolveEvent declares winner the winning outcome of eventID and pays the
// pool out to the funds holding positions on it.
func (e *Engine) ResolveEvent(ctx context.Context, caller model.AccountID, eventID model.EventID, winner model.OutcomeID) (Resolution, error) {
	now := e.now()
	var res Resolution
	err := e.store.Update(ctx, func(tx store.Tx) error {
		ev, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if ev.Owner != caller {
			return fmt.Errorf("event %d: %w", eventID, model.ErrNotOwner)
		}
		o, err := tx.GetOutcome(ctx, winner)
		if err != nil {
			return err
		}
		if o.EventID != eventID {
			return fmt.Errorf("%w: outcome %d belongs to event %d", model.ErrInvalidOutcome, winner, o.EventID)
		}
		m, err := tx.GetMarket(ctx, eventID)
		if err != nil {
			return err
		}
		if m.IsResolved {
			return fmt.Errorf("event %d: %w", eventID, model.ErrMarketResolved)
		}
		if !e.cfg.AllowEarlyResolve && now.Before(m.ResolveDate) {
			return fmt.Errorf("event %d resolves at %s: %w",
				eventID, m.ResolveDate.Format(time.RFC3339), model.ErrTooEarly)
		}

		positions, err := tx.ListPositionsByOutcome(ctx, winner)
		if err != nil {
			return err
		}
		weights := make([]int64, len(positions))
		for i, p := range positions {
			weights[i] = p.Supply
		}
		amounts, remainder, err := payout.Proportional(m.Pool, weights)
		if err != nil {
			return err
		}

		res.Payouts = make([]FundPayout, 0, len(positions))
		paid := decimal.Zero
		for i, p := range positions {
			if amounts[i].IsPositive() {
				if _, err := fund.Credit(ctx, tx, p.FundID, amounts[i]); err != nil {
					return err
				}
			}
			paid = paid.Add(amounts[i])
			res.Payouts = append(res.Payouts, FundPayout{FundID: p.FundID, Supply: p.Supply, Amount: amounts[i]})
		}

		m.IsResolved = true
		m.WinningOutcome = &winner
		m.ResolvedAt = &now
		m.PaidOut = paid
		if err := tx.PutMarket(ctx, m); err != nil {
			return err
		}
		res.Market = *m
		res.Retained = remainder
		return nil
	})
	if err != nil {
		return Resolution{}, err
	}

	fundIDs := make([]model.FundID, len(res.Payouts))
	for i, p := range res.Payouts {
		fundIDs[i] = p.FundID
	}
	slog.Info("event resolved",
		"event_id", eventID,
		"winner", winner,
		"pool", res.Market.Pool.String(),
		"paid_out", res.Market.PaidOut.String(),
		"retained", res.Retained.String(),
		"winning_funds", len(res.Payouts),
	)
	e.notifier.Notify(ctx, notify.Change{
		Kind:      notify.EventResolved,
		FundIDs:   fundIDs,
		EventIDs:  []model.EventID{eventID},
		OutcomeID: winner,
		Account:   caller,
		Amount:    res.Market.PaidOut,
		At:        now,
	})
	return res, nil
}

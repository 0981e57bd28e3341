// Package fund owns fund creation, share ownership and fund balances.
//
// The package-level helpers (Transfer, Credit, Debit) operate inside a
// caller's transaction so the proposal and market engines can compose them
// with their own writes atomically. Manager wraps each command in its own
// transaction.
package fund

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/fund-ledger/internal/model"
	"github.com/atmx/fund-ledger/internal/notify"
	"github.com/atmx/fund-ledger/internal/store"
)

// Config holds the fund rules that are deployment-specific.
type Config struct {
	// MinDeposit is the smallest initial balance a fund may be created with.
	MinDeposit decimal.Decimal
	// Now overrides the clock. Defaults to time.Now in UTC.
	Now func() time.Time
}

// Manager executes fund commands against a store.
type Manager struct {
	store      store.Store
	minDeposit decimal.Decimal
	now        func() time.Time
	notifier   notify.Notifier
}

// NewManager creates a fund manager. Pass nil for n if change notifications
// are not needed.
func NewManager(st store.Store, cfg Config, n notify.Notifier) *Manager {
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Manager{
		store:      st,
		minDeposit: cfg.MinDeposit,
		now:        now,
		notifier:   notify.OrNop(n),
	}
}

// CreateFund creates a fund owned entirely by creator and returns its ID.
// totalShare must be a positive multiple of model.MinFundShare.
func (m *Manager) CreateFund(ctx context.Context, creator model.AccountID, totalShare int64, deposit decimal.Decimal, meta model.FundMetadata) (model.FundID, error) {
	if creator == "" {
		return 0, fmt.Errorf("%w: creator is required", model.ErrInvalidInput)
	}
	if totalShare < model.MinFundShare || totalShare%model.MinFundShare != 0 {
		return 0, fmt.Errorf("%w: total share %d must be a positive multiple of %d",
			model.ErrInvalidShare, totalShare, model.MinFundShare)
	}
	if err := model.CheckAmount(deposit); err != nil {
		return 0, err
	}
	if deposit.LessThan(m.minDeposit) {
		return 0, fmt.Errorf("%w: deposit %s below minimum %s",
			model.ErrInsufficientDeposit, deposit, m.minDeposit)
	}

	now := m.now()
	var id model.FundID
	err := m.store.Update(ctx, func(tx store.Tx) error {
		var err error
		if id, err = tx.NextFundID(ctx); err != nil {
			return err
		}
		f := &model.Fund{
			ID:         id,
			Trader:     creator,
			TotalShare: totalShare,
			Balance:    deposit,
			Metadata:   meta,
			CreatedAt:  now,
		}
		if err := tx.PutFund(ctx, f); err != nil {
			return err
		}
		return tx.PutHolding(ctx, model.Holding{FundID: id, Account: creator, Shares: totalShare})
	})
	if err != nil {
		return 0, err
	}

	slog.Info("fund created",
		"fund_id", id,
		"trader", creator,
		"total_share", totalShare,
		"deposit", deposit.String(),
	)
	m.notifier.Notify(ctx, notify.Change{
		Kind:    notify.FundCreated,
		FundIDs: []model.FundID{id},
		Account: creator,
		Shares:  totalShare,
		Amount:  deposit,
		At:      now,
	})
	return id, nil
}

// TransferShare moves amount shares of fundID from caller to to.
// A transfer to oneself succeeds without changing anything.
func (m *Manager) TransferShare(ctx context.Context, caller model.AccountID, fundID model.FundID, to model.AccountID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: transfer amount %d must be positive", model.ErrInvalidShare, amount)
	}
	if to == "" {
		return fmt.Errorf("%w: recipient is required", model.ErrInvalidInput)
	}

	err := m.store.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.GetFund(ctx, fundID); err != nil {
			return err
		}
		return Transfer(ctx, tx, fundID, caller, to, amount)
	})
	if err != nil {
		return err
	}

	slog.Info("shares transferred",
		"fund_id", fundID,
		"from", caller,
		"to", to,
		"amount", amount,
	)
	m.notifier.Notify(ctx, notify.Change{
		Kind:    notify.SharesTransferred,
		FundIDs: []model.FundID{fundID},
		Account: to,
		Shares:  amount,
		At:      m.now(),
	})
	return nil
}

// GetOwnerShare returns how many shares of fundID account holds. Unknown
// funds and accounts hold zero.
func (m *Manager) GetOwnerShare(ctx context.Context, fundID model.FundID, account model.AccountID) (int64, error) {
	var shares int64
	err := m.store.View(ctx, func(tx store.Tx) error {
		var err error
		shares, err = tx.GetHolding(ctx, fundID, account)
		return err
	})
	return shares, err
}

// DepositToFund adds amount to the fund's balance.
func (m *Manager) DepositToFund(ctx context.Context, fundID model.FundID, amount decimal.Decimal) error {
	if err := checkPositive(amount); err != nil {
		return err
	}
	var balance decimal.Decimal
	err := m.store.Update(ctx, func(tx store.Tx) error {
		f, err := Credit(ctx, tx, fundID, amount)
		if err != nil {
			return err
		}
		balance = f.Balance
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("fund deposit", "fund_id", fundID, "amount", amount.String(), "balance", balance.String())
	m.notifier.Notify(ctx, notify.Change{
		Kind:    notify.FundDeposited,
		FundIDs: []model.FundID{fundID},
		Amount:  amount,
		At:      m.now(),
	})
	return nil
}

// WithdrawFromFund removes amount from the fund's balance. Only the fund's
// trader may withdraw.
func (m *Manager) WithdrawFromFund(ctx context.Context, caller model.AccountID, fundID model.FundID, amount decimal.Decimal) error {
	if err := checkPositive(amount); err != nil {
		return err
	}
	var balance decimal.Decimal
	err := m.store.Update(ctx, func(tx store.Tx) error {
		f, err := tx.GetFund(ctx, fundID)
		if err != nil {
			return err
		}
		if f.Trader != caller {
			return fmt.Errorf("%w: only the trader of fund %d may withdraw", model.ErrNotAuthorized, fundID)
		}
		f, err = Debit(ctx, tx, fundID, amount)
		if err != nil {
			return err
		}
		balance = f.Balance
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("fund withdrawal", "fund_id", fundID, "trader", caller, "amount", amount.String(), "balance", balance.String())
	m.notifier.Notify(ctx, notify.Change{
		Kind:    notify.FundWithdrawn,
		FundIDs: []model.FundID{fundID},
		Account: caller,
		Amount:  amount,
		At:      m.now(),
	})
	return nil
}

func checkPositive(amount decimal.Decimal) error {
	if err := model.CheckAmount(amount); err != nil {
		return err
	}
	if amount.IsZero() {
		return fmt.Errorf("%w: amount must be positive", model.ErrInvalidInput)
	}
	return nil
}

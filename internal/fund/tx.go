package fund

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/fund-ledger/internal/model"
	"github.com/atmx/fund-ledger/internal/store"
)

// Transfer moves amount shares of fundID from one account to another within
// tx. It does not check that the fund exists.
func Transfer(ctx context.Context, tx store.Tx, fundID model.FundID, from, to model.AccountID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: transfer amount %d must be positive", model.ErrInvalidShare, amount)
	}
	if from == to {
		return nil
	}
	have, err := tx.GetHolding(ctx, fundID, from)
	if err != nil {
		return err
	}
	if have < amount {
		return fmt.Errorf("%w: %s holds %d of fund %d, needs %d",
			model.ErrInsufficientShare, from, have, fundID, amount)
	}

	dest, err := tx.GetHolding(ctx, fundID, to)
	if err != nil {
		return err
	}
	if err := tx.PutHolding(ctx, model.Holding{FundID: fundID, Account: from, Shares: have - amount}); err != nil {
		return err
	}
	return tx.PutHolding(ctx, model.Holding{FundID: fundID, Account: to, Shares: dest + amount})
}

// Credit adds amount to the fund's balance within tx and returns the
// updated fund.
func Credit(ctx context.Context, tx store.Tx, fundID model.FundID, amount decimal.Decimal) (*model.Fund, error) {
	if err := model.CheckAmount(amount); err != nil {
		return nil, err
	}
	f, err := tx.GetFund(ctx, fundID)
	if err != nil {
		return nil, err
	}
	f.Balance = f.Balance.Add(amount)
	if err := tx.PutFund(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// Debit removes amount from the fund's balance within tx and returns the
// updated fund. The balance never goes negative.
func Debit(ctx context.Context, tx store.Tx, fundID model.FundID, amount decimal.Decimal) (*model.Fund, error) {
	if err := model.CheckAmount(amount); err != nil {
		return nil, err
	}
	f, err := tx.GetFund(ctx, fundID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(f.Balance) {
		return nil, fmt.Errorf("%w: fund %d balance %s, needs %s",
			model.ErrOverdraft, fundID, f.Balance, amount)
	}
	f.Balance = f.Balance.Sub(amount)
	if err := tx.PutFund(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

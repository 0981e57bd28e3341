// Package model defines the core domain types shared across the fund ledger.
// All monetary values use shopspring/decimal holding integer minor units
// (12 implied decimals). Never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountID is an opaque, already-authenticated caller identifier.
type AccountID string

type (
	FundID     int64
	ProposalID int64
	EventID    int64
	OutcomeID  int64
)

// MinorUnitsPerUnit is the number of minor units in one whole currency unit.
const MinorUnitsPerUnit int64 = 1_000_000_000_000

// MinFundShare is the smallest share count a fund may be created with.
// Share totals must also be a multiple of it.
const MinFundShare int64 = 100

// FundMetadata is display-only information attached to a fund.
type FundMetadata struct {
	Name     *string `json:"name,omitempty"`
	ImageURL *string `json:"image_url,omitempty"`
}

// Fund is a pooled balance co-owned by its shareholders.
type Fund struct {
	ID         FundID          `json:"id" db:"id"`
	Trader     AccountID       `json:"trader" db:"trader"`
	TotalShare int64           `json:"total_share" db:"total_share"`
	Balance    decimal.Decimal `json:"total_fund_balance" db:"balance"`
	Metadata   FundMetadata    `json:"metadata"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// Holding is the number of shares of one fund owned by one account.
// Holdings with zero shares are not stored.
type Holding struct {
	FundID  FundID    `json:"fund_id" db:"fund_id"`
	Account AccountID `json:"account" db:"account"`
	Shares  int64     `json:"shares" db:"shares"`
}

// Proposal is an offer to sell Share units of a fund for Price.
// Once IsCompleted is set the proposal never changes again.
type Proposal struct {
	ID             ProposalID      `json:"id" db:"id"`
	FundID         FundID          `json:"fund_id" db:"fund_id"`
	Proponent      AccountID       `json:"proponent" db:"proponent"`
	Share          int64           `json:"share" db:"share"`
	Price          decimal.Decimal `json:"price" db:"price"`
	CloseTime      *time.Time      `json:"close_time,omitempty" db:"close_time"`           // nil: never expires
	ProposedPerson *AccountID      `json:"proposed_person,omitempty" db:"proposed_person"` // nil: anyone may accept
	IsCompleted    bool            `json:"is_completed" db:"is_completed"`
	Acceptor       *AccountID      `json:"acceptor,omitempty" db:"acceptor"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// Expired reports whether the proposal's close time has passed at now.
func (p *Proposal) Expired(now time.Time) bool {
	return p.CloseTime != nil && now.After(*p.CloseTime)
}

// EventMetadata is display-only information attached to an event.
type EventMetadata struct {
	Name        *string `json:"name,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Event is a question with mutually exclusive outcomes. Its mutable state
// lives in the associated Market.
type Event struct {
	ID              EventID         `json:"id" db:"id"`
	Owner           AccountID       `json:"owner" db:"owner"`
	Question        string          `json:"question" db:"question"`
	Metadata        EventMetadata   `json:"metadata"`
	CreationDeposit decimal.Decimal `json:"creation_deposit" db:"creation_deposit"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// Market is the betting state of an Event, one-to-one by EventID.
type Market struct {
	EventID        EventID         `json:"event_id" db:"event_id"`
	Pool           decimal.Decimal `json:"pool" db:"pool"`         // creation deposit + every bet deposit
	PaidOut        decimal.Decimal `json:"paid_out" db:"paid_out"` // credited to funds at resolution
	IsResolved     bool            `json:"is_resolved" db:"is_resolved"`
	ResolveDate    time.Time       `json:"resolve_date" db:"resolve_date"`
	WinningOutcome *OutcomeID      `json:"winning_outcome,omitempty" db:"winning_outcome"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
}

// Retained is the part of the pool kept by the market after resolution.
func (m *Market) Retained() decimal.Decimal {
	return m.Pool.Sub(m.PaidOut)
}

// Outcome is one possible answer to an event's question.
// Invariant: 0 <= AvailableSupply <= TotalSupply.
type Outcome struct {
	ID               OutcomeID       `json:"id" db:"id"`
	EventID          EventID         `json:"event_id" db:"event_id"`
	Description      string          `json:"description" db:"description"`
	DepositPerSupply decimal.Decimal `json:"deposit_per_supply" db:"deposit_per_supply"`
	TotalSupply      int64           `json:"total_supply" db:"total_supply"`
	AvailableSupply  int64           `json:"available_supply" db:"available_supply"`
}

// CommittedSupply is the supply consumed by bets so far.
func (o *Outcome) CommittedSupply() int64 {
	return o.TotalSupply - o.AvailableSupply
}

// Position aggregates every bet one fund placed on one outcome.
// It only ever grows.
type Position struct {
	OutcomeID OutcomeID       `json:"outcome_id" db:"outcome_id"`
	FundID    FundID          `json:"fund_id" db:"fund_id"`
	Supply    int64           `json:"supply" db:"supply"`
	Deposited decimal.Decimal `json:"deposited" db:"deposited"`
}

// BetEntry is an immutable record of a single bet.
// Once created, these are never modified or deleted.
type BetEntry struct {
	ID        string          `json:"id" db:"id"`
	EventID   EventID         `json:"event_id" db:"event_id"`
	OutcomeID OutcomeID       `json:"outcome_id" db:"outcome_id"`
	FundID    FundID          `json:"fund_id" db:"fund_id"`
	Placer    AccountID       `json:"placer" db:"placer"`
	Supply    int64           `json:"supply" db:"supply"`
	Deposit   decimal.Decimal `json:"deposit" db:"deposit"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

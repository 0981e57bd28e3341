package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/fund-ledger/internal/model"
)

// Amounts are integer minor units. They are encoded as JSON strings so no
// client decodes them through a float.

// CreateFundRequest is the JSON body for POST /api/v1/funds.
type CreateFundRequest struct {
	TotalShare int64           `json:"total_share"`
	Deposit    decimal.Decimal `json:"deposit"`
	Name       *string         `json:"name,omitempty"`
	ImageURL   *string         `json:"image_url,omitempty"`
}

// TransferRequest is the JSON body for POST /api/v1/funds/{fundID}/transfers.
type TransferRequest struct {
	To     model.AccountID `json:"to"`
	Amount int64           `json:"amount"`
}

// AmountRequest is the JSON body for fund deposits and withdrawals.
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// CreateProposalRequest is the JSON body for POST /api/v1/funds/{fundID}/proposals.
type CreateProposalRequest struct {
	Share           int64            `json:"share"`
	Price           decimal.Decimal  `json:"price"`
	DurationSeconds *int64           `json:"duration_seconds,omitempty"`
	ProposedPerson  *model.AccountID `json:"proposed_person,omitempty"`
}

// AcceptProposalRequest is the JSON body for POST /api/v1/proposals/{proposalID}/accept.
type AcceptProposalRequest struct {
	Payment decimal.Decimal `json:"payment"`
}

// AcceptProposalResponse is returned from a successful acceptance.
type AcceptProposalResponse struct {
	Proposal model.Proposal  `json:"proposal"`
	Refund   decimal.Decimal `json:"refund"`
}

// OutcomeRequest is one outcome of a new event.
type OutcomeRequest struct {
	Description      string          `json:"description"`
	TotalSupply      int64           `json:"total_supply"`
	DepositPerSupply decimal.Decimal `json:"deposit_per_supply"`
}

// CreateEventRequest is the JSON body for POST /api/v1/events.
type CreateEventRequest struct {
	Question    string           `json:"question"`
	ResolveDate time.Time        `json:"resolve_date"`
	Outcomes    []OutcomeRequest `json:"outcomes"`
	Deposit     decimal.Decimal  `json:"deposit"`
	Name        *string          `json:"name,omitempty"`
	ImageURL    *string          `json:"image_url,omitempty"`
	Description *string          `json:"description,omitempty"`
}

// BetRequest is the JSON body for POST /api/v1/bets.
type BetRequest struct {
	OutcomeID model.OutcomeID `json:"outcome_id"`
	FundID    model.FundID    `json:"fund_id"`
	Supply    int64           `json:"supply"`
	Deposit   decimal.Decimal `json:"deposit"`
}

// ResolveRequest is the JSON body for POST /api/v1/events/{eventID}/resolve.
type ResolveRequest struct {
	WinningOutcome model.OutcomeID `json:"winning_outcome"`
}

// ownerShareResponse is returned from GET /api/v1/funds/{fundID}/shares/{account}.
type ownerShareResponse struct {
	FundID  model.FundID    `json:"fund_id"`
	Account model.AccountID `json:"account"`
	Shares  int64           `json:"shares"`
}

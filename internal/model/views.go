package model

// Read-only projections returned by the query layer. Field order is part of
// the contract: clients decode by name, never by position.

// FundOutcome is a fund's committed supply on one outcome.
type FundOutcome struct {
	Outcome Outcome `json:"outcome"`
	Supply  int64   `json:"supply"`
}

// FundView is one entry of the fund listing. OwnerShare is set only when the
// listing was filtered by owner.
type FundView struct {
	Fund       Fund          `json:"fund"`
	Outcomes   []FundOutcome `json:"outcomes"`
	OwnerShare *int64        `json:"owner_share,omitempty"`
}

// FundDetail is the full state of one fund.
type FundDetail struct {
	Fund     Fund          `json:"fund"`
	Holders  []Holding     `json:"holders"`
	Outcomes []FundOutcome `json:"outcomes"`
}

// FundProposals lists every proposal made on a fund.
type FundProposals struct {
	Fund      Fund       `json:"fund"`
	Proposals []Proposal `json:"proposals"`
}

// ProposalView pairs a proposal with the fund it trades.
type ProposalView struct {
	Fund     Fund     `json:"fund"`
	Proposal Proposal `json:"proposal"`
}

// EventSummary is one entry of the event listing.
type EventSummary struct {
	Event       Event  `json:"event"`
	Market      Market `json:"market"`
	TotalSupply int64  `json:"total_supply"`
}

// FundStake is one fund's committed supply on an outcome.
type FundStake struct {
	Fund   Fund  `json:"fund"`
	Supply int64 `json:"supply"`
}

// OutcomeDetail is an outcome with every fund that bet on it.
type OutcomeDetail struct {
	Outcome Outcome     `json:"outcome"`
	Funds   []FundStake `json:"funds"`
}

// EventDetail is the full state of one event and its market.
type EventDetail struct {
	Event       Event           `json:"event"`
	Market      Market          `json:"market"`
	TotalSupply int64           `json:"total_supply"`
	Outcomes    []OutcomeDetail `json:"outcomes"`
}

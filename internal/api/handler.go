// Package api exposes the fund ledger over HTTP and WebSocket.
//
// Callers are authenticated upstream; the gateway forwards the account in
// the X-Account-ID header. Amounts in requests and responses are strings of
// integer minor units.
package api

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/fund-ledger/internal/fund"
	"github.com/atmx/fund-ledger/internal/market"
	"github.com/atmx/fund-ledger/internal/model"
	"github.com/atmx/fund-ledger/internal/proposal"
	"github.com/atmx/fund-ledger/internal/query"
)

// AccountHeader carries the authenticated caller.
const AccountHeader = "X-Account-ID"

const maxBodyBytes = 1 << 20

// maxDurationSeconds is the longest proposal duration a time.Duration holds.
const maxDurationSeconds = math.MaxInt64 / int64(time.Second)

// Handler serves the ledger commands and queries.
type Handler struct {
	funds     *fund.Manager
	proposals *proposal.Engine
	markets   *market.Engine
	queries   *query.Service
	hub       *WSHub
}

// NewHandler creates a handler. Pass nil for hub to disable the WebSocket
// endpoint.
func NewHandler(funds *fund.Manager, proposals *proposal.Engine, markets *market.Engine, queries *query.Service, hub *WSHub) *Handler {
	return &Handler{
		funds:     funds,
		proposals: proposals,
		markets:   markets,
		queries:   queries,
		hub:       hub,
	}
}

// Routes mounts the API under r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		if h.hub != nil {
			r.Get("/ws", h.hub.HandleWS)
		}

		r.Get("/funds", h.ListFunds)
		r.Post("/funds", h.CreateFund)
		r.Get("/funds/{fundID}", h.GetFund)
		r.Get("/funds/{fundID}/shares/{account}", h.GetOwnerShare)
		r.Post("/funds/{fundID}/transfers", h.TransferShare)
		r.Post("/funds/{fundID}/deposits", h.DepositToFund)
		r.Post("/funds/{fundID}/withdrawals", h.WithdrawFromFund)
		r.Get("/funds/{fundID}/proposals", h.GetFundProposals)
		r.Post("/funds/{fundID}/proposals", h.CreateProposal)

		r.Get("/proposals", h.ListProposals)
		r.Post("/proposals/{proposalID}/accept", h.AcceptProposal)

		r.Get("/events", h.ListEvents)
		r.Post("/events", h.CreateEvent)
		r.Get("/events/{eventID}", h.GetEvent)
		r.Get("/events/{eventID}/bets", h.GetEventBets)
		r.Post("/events/{eventID}/resolve", h.ResolveEvent)

		r.Post("/bets", h.Bet)
	})
}

// --- Funds ---

// CreateFund handles POST /api/v1/funds.
func (h *Handler) CreateFund(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req CreateFundRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.funds.CreateFund(r.Context(), caller, req.TotalShare, req.Deposit, model.FundMetadata{
		Name:     req.Name,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		writeCommandError(w, "create_fund", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]model.FundID{"fund_id": id})
}

// TransferShare handles POST /api/v1/funds/{fundID}/transfers.
func (h *Handler) TransferShare(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	fundID, ok := pathID[model.FundID](w, r, "fundID")
	if !ok {
		return
	}
	var req TransferRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.funds.TransferShare(r.Context(), caller, fundID, req.To, req.Amount); err != nil {
		writeCommandError(w, "transfer_share", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DepositToFund handles POST /api/v1/funds/{fundID}/deposits.
func (h *Handler) DepositToFund(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireCaller(w, r); !ok {
		return
	}
	fundID, ok := pathID[model.FundID](w, r, "fundID")
	if !ok {
		return
	}
	var req AmountRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.funds.DepositToFund(r.Context(), fundID, req.Amount); err != nil {
		writeCommandError(w, "deposit_to_fund", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WithdrawFromFund handles POST /api/v1/funds/{fundID}/withdrawals.
func (h *Handler) WithdrawFromFund(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	fundID, ok := pathID[model.FundID](w, r, "fundID")
	if !ok {
		return
	}
	var req AmountRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.funds.WithdrawFromFund(r.Context(), caller, fundID, req.Amount); err != nil {
		writeCommandError(w, "withdraw_from_fund", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFunds handles GET /api/v1/funds. The optional owner query parameter
// restricts the list to funds that account holds shares in.
func (h *Handler) ListFunds(w http.ResponseWriter, r *http.Request) {
	var owner *model.AccountID
	if v := r.URL.Query().Get("owner"); v != "" {
		a := model.AccountID(v)
		owner = &a
	}
	funds, err := h.queries.GetFunds(r.Context(), owner)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, funds)
}

// GetFund handles GET /api/v1/funds/{fundID}.
func (h *Handler) GetFund(w http.ResponseWriter, r *http.Request) {
	fundID, ok := pathID[model.FundID](w, r, "fundID")
	if !ok {
		return
	}
	detail, err := h.queries.GetFund(r.Context(), fundID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// GetOwnerShare handles GET /api/v1/funds/{fundID}/shares/{account}.
func (h *Handler) GetOwnerShare(w http.ResponseWriter, r *http.Request) {
	fundID, ok := pathID[model.FundID](w, r, "fundID")
	if !ok {
		return
	}
	account := model.AccountID(chi.URLParam(r, "account"))
	shares, err := h.queries.GetOwnerShare(r.Context(), fundID, account)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ownerShareResponse{FundID: fundID, Account: account, Shares: shares})
}

// --- Proposals ---

// CreateProposal handles POST /api/v1/funds/{fundID}/proposals.
func (h *Handler) CreateProposal(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	fundID, ok := pathID[model.FundID](w, r, "fundID")
	if !ok {
		return
	}
	var req CreateProposalRequest
	if !decode(w, r, &req) {
		return
	}
	cr := proposal.CreateRequest{
		FundID:         fundID,
		Share:          req.Share,
		Price:          req.Price,
		ProposedPerson: req.ProposedPerson,
	}
	if req.DurationSeconds != nil {
		secs := *req.DurationSeconds
		if secs <= 0 || secs > maxDurationSeconds {
			writeCommandError(w, "create_proposal", fmt.Errorf(
				"%w: duration_seconds must be between 1 and %d", model.ErrInvalidDuration, maxDurationSeconds))
			return
		}
		d := time.Duration(secs) * time.Second
		cr.Duration = &d
	}
	id, err := h.proposals.CreateProposal(r.Context(), caller, cr)
	if err != nil {
		writeCommandError(w, "create_proposal", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]model.ProposalID{"proposal_id": id})
}

// AcceptProposal handles POST /api/v1/proposals/{proposalID}/accept.
func (h *Handler) AcceptProposal(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathID[model.ProposalID](w, r, "proposalID")
	if !ok {
		return
	}
	var req AcceptProposalRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.proposals.AcceptProposal(r.Context(), caller, id, req.Payment)
	if err != nil {
		writeCommandError(w, "accept_proposal", err)
		return
	}
	writeJSON(w, http.StatusOK, AcceptProposalResponse{Proposal: res.Proposal, Refund: res.Refund})
}

// GetFundProposals handles GET /api/v1/funds/{fundID}/proposals.
func (h *Handler) GetFundProposals(w http.ResponseWriter, r *http.Request) {
	fundID, ok := pathID[model.FundID](w, r, "fundID")
	if !ok {
		return
	}
	fp, err := h.queries.GetFundProposals(r.Context(), fundID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fp)
}

// ListProposals handles GET /api/v1/proposals?proponent=.
func (h *Handler) ListProposals(w http.ResponseWriter, r *http.Request) {
	var proponent *model.AccountID
	if v := r.URL.Query().Get("proponent"); v != "" {
		a := model.AccountID(v)
		proponent = &a
	}
	ps, err := h.queries.GetProposals(r.Context(), proponent)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// --- Events ---

// CreateEvent handles POST /api/v1/events.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req CreateEventRequest
	if !decode(w, r, &req) {
		return
	}
	outcomes := make([]market.OutcomeSpec, len(req.Outcomes))
	for i, o := range req.Outcomes {
		outcomes[i] = market.OutcomeSpec{
			Description:      o.Description,
			TotalSupply:      o.TotalSupply,
			DepositPerSupply: o.DepositPerSupply,
		}
	}
	created, err := h.markets.CreateEvent(r.Context(), caller, market.CreateEventRequest{
		Question:    req.Question,
		ResolveDate: req.ResolveDate,
		Outcomes:    outcomes,
		Deposit:     req.Deposit,
		Metadata: model.EventMetadata{
			Name:        req.Name,
			ImageURL:    req.ImageURL,
			Description: req.Description,
		},
	})
	if err != nil {
		writeCommandError(w, "create_event", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Bet handles POST /api/v1/bets.
func (h *Handler) Bet(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req BetRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.markets.Bet(r.Context(), caller, market.BetRequest{
		OutcomeID: req.OutcomeID,
		FundID:    req.FundID,
		Supply:    req.Supply,
		Deposit:   req.Deposit,
	})
	if err != nil {
		writeCommandError(w, "bet", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ResolveEvent handles POST /api/v1/events/{eventID}/resolve.
func (h *Handler) ResolveEvent(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID[model.EventID](w, r, "eventID")
	if !ok {
		return
	}
	var req ResolveRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.markets.ResolveEvent(r.Context(), caller, eventID, req.WinningOutcome)
	if err != nil {
		writeCommandError(w, "resolve_event", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListEvents handles GET /api/v1/events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.queries.GetEvents(r.Context())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /api/v1/events/{eventID}.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID[model.EventID](w, r, "eventID")
	if !ok {
		return
	}
	detail, err := h.queries.GetEventDetail(r.Context(), eventID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// GetEventBets handles GET /api/v1/events/{eventID}/bets.
func (h *Handler) GetEventBets(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID[model.EventID](w, r, "eventID")
	if !ok {
		return
	}
	bets, err := h.queries.GetEventBets(r.Context(), eventID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bets)
}

// --- helpers ---

func requireCaller(w http.ResponseWriter, r *http.Request) (model.AccountID, bool) {
	caller := r.Header.Get(AccountHeader)
	if caller == "" {
		writeError(w, AccountHeader+" header is required", "unauthenticated", http.StatusUnauthorized)
		return "", false
	}
	return model.AccountID(caller), true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, "invalid request body: "+err.Error(), "invalid_input", http.StatusBadRequest)
		return false
	}
	return true
}

func pathID[T ~int64](w http.ResponseWriter, r *http.Request, param string) (T, bool) {
	raw := chi.URLParam(r, param)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, "invalid "+param+": "+raw, "invalid_input", http.StatusBadRequest)
		return 0, false
	}
	return T(n), true
}

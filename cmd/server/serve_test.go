package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atmx/fund-ledger/internal/api"
	"github.com/atmx/fund-ledger/internal/fund"
	"github.com/atmx/fund-ledger/internal/market"
	"github.com/atmx/fund-ledger/internal/proposal"
	"github.com/atmx/fund-ledger/internal/query"
	"github.com/atmx/fund-ledger/internal/store"
)

func testRouter() http.Handler {
	ms := store.NewMemoryStore()
	h := api.NewHandler(
		fund.NewManager(ms, fund.Config{}, nil),
		proposal.NewEngine(ms, nil, nil),
		market.NewEngine(ms, market.Config{}, nil),
		query.NewService(ms, nil),
		nil,
	)
	return newRouter(h, 5*time.Second)
}

func TestRouter_Health(t *testing.T) {
	w := httptest.NewRecorder()
	testRouter().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRouter_CORSPreflightAllowsAccountHeader(t *testing.T) {
	w := httptest.NewRecorder()
	testRouter().ServeHTTP(w, httptest.NewRequest("OPTIONS", "/api/v1/funds", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, Authorization, "+api.AccountHeader {
		t.Errorf("unexpected allowed headers %q", got)
	}
}

func TestRouter_MountsAPI(t *testing.T) {
	w := httptest.NewRecorder()
	testRouter().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/funds", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "migrate", "audit", "snapshot"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("missing subcommand %s: %v", name, err)
		}
	}
}

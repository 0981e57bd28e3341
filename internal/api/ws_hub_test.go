package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atmx/fund-ledger/internal/model"
	"github.com/atmx/fund-ledger/internal/notify"
)

func startHub(t *testing.T) (*WSHub, *httptest.Server, context.CancelFunc, <-chan struct{}) {
	t.Helper()
	hub := NewWSHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv, cancel, stopped
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *WSHub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.mu.RLock()
		got := len(hub.clients)
		hub.mu.RUnlock()
		if got == n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, got)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWSHub_BroadcastsChanges(t *testing.T) {
	hub, srv, _, _ := startHub(t)
	a := dialHub(t, srv)
	b := dialHub(t, srv)
	waitForClients(t, hub, 2)

	hub.Notify(context.Background(), notify.Change{
		Kind:    notify.FundDeposited,
		FundIDs: []model.FundID{3},
	})

	for name, conn := range map[string]*websocket.Conn{"a": a, "b": b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("client %s: read: %v", name, err)
		}
		var got notify.Change
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("client %s: decode %s: %v", name, data, err)
		}
		if got.Kind != notify.FundDeposited || len(got.FundIDs) != 1 || got.FundIDs[0] != 3 {
			t.Errorf("client %s: unexpected change %+v", name, got)
		}
	}
}

func TestWSHub_ShutdownClosesClients(t *testing.T) {
	hub, srv, cancel, stopped := startHub(t)
	conn := dialHub(t, srv)
	waitForClients(t, hub, 1)

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to be closed")
	}
	waitForClients(t, hub, 0)

	// Upgrades after shutdown are closed instead of blocking on registration.
	late := dialHub(t, srv)
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := late.ReadMessage(); err == nil {
		t.Error("expected a connection opened after shutdown to be closed")
	}
}

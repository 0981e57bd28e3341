// Package metrics provides Prometheus instrumentation for the fund ledger.
package metrics

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/atmx/fund-ledger/internal/model"
	"github.com/atmx/fund-ledger/internal/notify"
)

var (
	// ChangesTotal counts committed commands, partitioned by change kind.
	ChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundledger_changes_total",
		Help: "Total number of committed ledger commands",
	}, []string{"kind"})

	// CommandFailures counts rejected commands by operation and error code.
	CommandFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundledger_command_failures_total",
		Help: "Ledger commands rejected, by operation and error code",
	}, []string{"operation", "code"})

	// SharesTransferred tracks cumulative shares moved between accounts,
	// by transfers and accepted proposals.
	SharesTransferred = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fundledger_shares_transferred_total",
		Help: "Cumulative fund shares moved between accounts",
	})

	// BetSupply tracks cumulative outcome supply committed by bets.
	BetSupply = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fundledger_bet_supply_total",
		Help: "Cumulative outcome supply committed by bets",
	})

	// AmountVolume tracks cumulative value moved, in whole units, by kind.
	// Approximate; the ledger itself never uses floating point.
	AmountVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundledger_amount_volume_units_total",
		Help: "Cumulative value moved in whole currency units",
	}, []string{"kind"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fundledger_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fundledger_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

var unit = decimal.NewFromInt(model.MinorUnitsPerUnit)

// Notifier records committed changes as metrics.
type Notifier struct{}

func (Notifier) Notify(_ context.Context, c notify.Change) {
	ChangesTotal.WithLabelValues(string(c.Kind)).Inc()
	switch c.Kind {
	case notify.SharesTransferred, notify.ProposalAccepted:
		SharesTransferred.Add(float64(c.Shares))
	case notify.BetPlaced:
		BetSupply.Add(float64(c.Shares))
	}
	if c.Amount.IsPositive() {
		AmountVolume.WithLabelValues(string(c.Kind)).Add(c.Amount.Div(unit).InexactFloat64())
	}
}

// RecordFailure counts a rejected command.
func RecordFailure(operation string, err error) {
	CommandFailures.WithLabelValues(operation, model.Code(err)).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades through the wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: %T does not support hijacking", w.ResponseWriter)
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

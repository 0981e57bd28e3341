package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/fund-ledger/internal/api"
	"github.com/atmx/fund-ledger/internal/config"
	"github.com/atmx/fund-ledger/internal/fund"
	"github.com/atmx/fund-ledger/internal/market"
	"github.com/atmx/fund-ledger/internal/metrics"
	"github.com/atmx/fund-ledger/internal/notify"
	"github.com/atmx/fund-ledger/internal/proposal"
	"github.com/atmx/fund-ledger/internal/query"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	st, closeStore, err := openStore(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer closeStore()

	redisCache, closeCache, err := openCache(cfg.Redis)
	if err != nil {
		return err
	}
	defer closeCache()

	wsHub := api.NewWSHub()
	notifiers := notify.Fanout{wsHub, metrics.Notifier{}}
	var queryCache query.Cache
	if redisCache != nil {
		notifiers = append(notifiers, redisCache)
		queryCache = redisCache
	}

	funds := fund.NewManager(st, fund.Config{MinDeposit: cfg.Ledger.MinFundDepositMinor()}, notifiers)
	proposals := proposal.NewEngine(st, nil, notifiers)
	markets := market.NewEngine(st, market.Config{
		MinEventDeposit:        cfg.Ledger.MinEventDepositMinor(),
		AllowEarlyResolve:      cfg.Ledger.AllowEarlyResolve,
		CloseBetsAtResolveDate: cfg.Ledger.CloseBetsAtResolveDate,
	}, notifiers)
	handler := api.NewHandler(funds, proposals, markets, query.NewService(st, queryCache), wsHub)

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      newRouter(handler, cfg.Server.RequestTimeout.Duration),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		wsHub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("fund-ledger listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		slog.Info("shutting down fund-ledger...")
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	slog.Info("fund-ledger stopped")
	return err
}

func newRouter(h *api.Handler, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+api.AccountHeader)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"fund-ledger"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	h.Routes(r)
	return r
}

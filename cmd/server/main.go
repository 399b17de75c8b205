package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/clearing"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/config"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/ledger"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/liquidity"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/margin"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/metrics"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/oracle"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/registry"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/store"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/vault"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configPath := flag.String("config", "", "path to YAML config (empty = defaults)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadWithEnvOverrides(*configPath)
		if err != nil {
			slog.Error("config load failed", "path", *configPath, "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid redis url", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("databaseURL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Core engine wiring ---
	accounts := ledger.New("USDC")
	v, err := vault.New(accounts, cfg.SettlementDecimals)
	if err != nil {
		slog.Error("vault init failed", "err", err)
		os.Exit(1)
	}
	markets := registry.New()
	feed := oracle.NewStaticFeed()
	calc := margin.NewCalculator(accounts, markets, feed, v,
		cfg.Parsed.IMRatio, cfg.Parsed.MMRatio, cfg.TwapInterval())
	v.BindChecker(calc)
	makers := liquidity.NewManager(accounts)

	// --- WebSocket hub ---
	wsHub := clearing.NewWSHub()
	go wsHub.Run()

	// --- Clearing service ---
	svc := clearing.NewService(clearing.Deps{
		Cfg:     cfg,
		Markets: markets,
		Ledger:  accounts,
		Liq:     makers,
		Margin:  calc,
		Vault:   v,
		Feed:    feed,
		Store:   st,
		Hub:     wsHub,
	})

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"clearing-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time market updates.
		r.Get("/ws", wsHub.HandleWS)

		// Market management.
		r.Get("/markets", svc.HandleListMarkets)
		r.Post("/markets", svc.HandleCreateMarket)
		r.Get("/markets/{symbol}", svc.HandleGetMarket)

		// Synthetic token lifecycle.
		r.Post("/mint", svc.HandleMint)
		r.Post("/burn", svc.HandleBurn)

		// Trading.
		r.Post("/swap", svc.HandleSwap)
		r.Post("/positions/open", svc.HandleOpenPosition)
		r.Post("/positions/close", svc.HandleClosePosition)

		// Maker liquidity.
		r.Post("/liquidity/add", svc.HandleAddLiquidity)
		r.Post("/liquidity/remove", svc.HandleRemoveLiquidity)
		r.Post("/orders/cancel-excess", svc.HandleCancelExcessOrders)

		// Funding.
		r.Post("/funding/update", svc.HandleUpdateFunding)
		r.Post("/funding/settle", svc.HandleSettleFunding)

		// Liquidation.
		r.Post("/liquidate", svc.HandleLiquidate)

		// Collateral custody.
		r.Post("/collateral/deposit", svc.HandleDeposit)
		r.Post("/collateral/withdraw", svc.HandleWithdraw)

		// Account queries.
		r.Get("/accounts/{trader}", svc.HandleAccount)
		r.Get("/accounts/{trader}/positions/{symbol}", svc.HandlePosition)
		r.Get("/journal/{trader}", svc.HandleJournal)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("clearing-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down clearing-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("clearing-engine stopped")
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/spinhall/roulette/internal/auth"
	"github.com/spinhall/roulette/internal/guard"
	"github.com/spinhall/roulette/internal/handler"
	"github.com/spinhall/roulette/internal/infra"
	"github.com/spinhall/roulette/internal/ledger"
	"github.com/spinhall/roulette/internal/repository"
	"github.com/spinhall/roulette/internal/repository/memory"
	"github.com/spinhall/roulette/internal/rng"
	"github.com/spinhall/roulette/internal/scheduler"
	"github.com/spinhall/roulette/internal/stream"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	playerExpiry, err := time.ParseDuration(cfg.JWTPlayerExpiry)
	if err != nil {
		return fmt.Errorf("parse player JWT expiry: %w", err)
	}
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, playerExpiry)

	// Stores: Postgres in production, in-memory for local play.
	var (
		pool        *pgxpool.Pool
		ledgerStore repository.LedgerStore
		auditStore  repository.AuditStore
		outboxRepo  repository.OutboxRepository
	)
	if cfg.MemoryStore {
		logger.Info("using in-memory stores")
		ledgerStore = memory.NewLedgerStore(cfg.InitialBalance)
		auditStore = memory.NewAuditStore()
	} else {
		if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		pool, err = infra.NewPostgresPool(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		logger.Info("connected to postgres")

		outboxRepo = repository.NewOutboxRepository()
		ledgerStore = repository.NewPgLedgerStore(pool, outboxRepo, cfg.InitialBalance)
		auditStore = repository.NewPgAuditStore(pool, outboxRepo)
	}

	ledgerEngine := ledger.NewEngine(ledgerStore, logger)
	hub := stream.NewHub(cfg.SubscriberQueueDepth, logger)

	engine := scheduler.New(scheduler.Config{
		BettingDuration:  cfg.BettingDuration(),
		SpinningDuration: cfg.SpinningDuration(),
		ResultsDuration:  cfg.ResultsDuration(),
		MinStake:         cfg.MinStake,
		MaxStake:         cfg.MaxStake,
	}, ledgerEngine, auditStore, hub, rng.NewSource(), scheduler.SystemClock{}, logger)

	limiter := guard.NewRateLimiter(cfg.BetRateLimitPerSecond, time.Second)

	roundHandler := handler.NewRoundHandler(engine, hub, limiter, cfg.BetRequestDeadline(), cfg.Heartbeat(), logger)
	walletHandler := handler.NewWalletHandler(ledgerEngine)
	guestHandler := handler.NewGuestHandler(jwtMgr)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORS)

	r.Group(func(r chi.Router) {
		r.Use(handler.JSONContentType)

		r.Get("/health", handler.HealthHandler(pool, engine))
		r.Post("/auth/guest", guestHandler.CreateGuest)
		r.Get("/round/current", roundHandler.GetCurrent)

		r.Group(func(r chi.Router) {
			r.Use(auth.AuthenticatePlayer(jwtMgr))

			r.Post("/round/bet", roundHandler.PlaceBet)
			r.Post("/round/spin", roundHandler.TriggerSpin)
			r.Post("/round/seed", roundHandler.SetSeed)
			r.Get("/round/{roundNumber}/results", roundHandler.GetResults)

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/balance", walletHandler.GetBalance)
				r.Get("/transactions", walletHandler.GetTransactions)
			})
		})
	})

	// The stream sets its own content type and serves anonymous subscribers.
	r.Group(func(r chi.Router) {
		r.Use(auth.IdentifyPlayer(jwtMgr))
		r.Get("/round/stream", roundHandler.Stream)
	})

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// No write timeout: the stream endpoint holds connections open.
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Runs until gctx is cancelled; completes the current round through
		// results before returning.
		return engine.Run(gctx)
	})

	if pool != nil && cfg.KafkaEnabled {
		producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
		defer producer.Close()
		poller := infra.NewOutboxPoller(pool, outboxRepo, producer, logger)
		g.Go(func() error { return poller.Run(gctx) })
	}

	g.Go(func() error {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		hub.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped gracefully")
	return nil
}

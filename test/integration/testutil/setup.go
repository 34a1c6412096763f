//go:build integration

package testutil

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spinhall/roulette/internal/auth"
	"github.com/spinhall/roulette/internal/guard"
	"github.com/spinhall/roulette/internal/handler"
	"github.com/spinhall/roulette/internal/ledger"
	"github.com/spinhall/roulette/internal/repository/memory"
	"github.com/spinhall/roulette/internal/rng"
	"github.com/spinhall/roulette/internal/scheduler"
	"github.com/spinhall/roulette/internal/stream"
)

const (
	TestJWTSecret      = "integration-test-secret"
	TestInitialBalance = 1000
	TestMinStake       = 10
	TestMaxStake       = 10000
)

// TestEnv runs the full API in-process against in-memory stores with short
// round phases, so a complete round settles within a couple of seconds.
type TestEnv struct {
	Server *httptest.Server
	Ledger *memory.LedgerStore
	Audit  *memory.AuditStore
	JWTMgr *auth.JWTManager
	Engine *scheduler.Engine
	t      *testing.T
}

// NewTestEnv builds and starts a test environment. Everything is torn down
// via t.Cleanup.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := memory.NewLedgerStore(TestInitialBalance)
	audit := memory.NewAuditStore()
	hub := stream.NewHub(64, logger)
	ledgerEngine := ledger.NewEngine(store, logger)

	engine := scheduler.New(scheduler.Config{
		BettingDuration:  2 * time.Second,
		SpinningDuration: 100 * time.Millisecond,
		ResultsDuration:  100 * time.Millisecond,
		MinStake:         TestMinStake,
		MaxStake:         TestMaxStake,
	}, ledgerEngine, audit, hub, rng.NewSource(), scheduler.SystemClock{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(done)
	}()

	jwtMgr := auth.NewJWTManager(TestJWTSecret, time.Hour)
	limiter := guard.NewRateLimiter(1000, time.Second)
	roundHandler := handler.NewRoundHandler(engine, hub, limiter, 5*time.Second, 15*time.Second, logger)
	walletHandler := handler.NewWalletHandler(ledgerEngine)
	guestHandler := handler.NewGuestHandler(jwtMgr)

	r := chi.NewRouter()
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)

	r.Group(func(r chi.Router) {
		r.Use(handler.JSONContentType)
		r.Get("/health", handler.HealthHandler(nil, engine))
		r.Post("/auth/guest", guestHandler.CreateGuest)
		r.Get("/round/current", roundHandler.GetCurrent)

		r.Group(func(r chi.Router) {
			r.Use(auth.AuthenticatePlayer(jwtMgr))
			r.Post("/round/bet", roundHandler.PlaceBet)
			r.Post("/round/spin", roundHandler.TriggerSpin)
			r.Post("/round/seed", roundHandler.SetSeed)
			r.Get("/round/{roundNumber}/results", roundHandler.GetResults)
			r.Get("/wallet/balance", walletHandler.GetBalance)
			r.Get("/wallet/transactions", walletHandler.GetTransactions)
		})
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.IdentifyPlayer(jwtMgr))
		r.Get("/round/stream", roundHandler.Stream)
	})

	server := httptest.NewServer(r)
	t.Cleanup(func() {
		server.Close()
		hub.Shutdown()
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("scheduler did not stop")
		}
	})

	env := &TestEnv{
		Server: server,
		Ledger: store,
		Audit:  audit,
		JWTMgr: jwtMgr,
		Engine: engine,
		t:      t,
	}
	env.WaitForRound()
	return env
}

// WaitForRound blocks until the engine has an open round.
func (env *TestEnv) WaitForRound() {
	env.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if env.Engine.Snapshot().RoundNumber > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	env.t.Fatal("round engine never opened a round")
}

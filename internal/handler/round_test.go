package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spinhall/roulette/internal/auth"
	"github.com/spinhall/roulette/internal/domain"
	"github.com/spinhall/roulette/internal/guard"
	"github.com/spinhall/roulette/internal/ledger"
	"github.com/spinhall/roulette/internal/repository/memory"
	"github.com/spinhall/roulette/internal/rng"
	"github.com/spinhall/roulette/internal/scheduler"
	"github.com/spinhall/roulette/internal/stream"
)

// frozenClock keeps the engine parked in whatever phase it is in: timers are
// created but never fire, so tests drive transitions through the API alone.
type frozenClock struct{ base time.Time }

func (c frozenClock) Now() time.Time { return c.base }
func (c frozenClock) NewTimer(time.Duration) scheduler.Timer {
	return frozenTimer{make(chan time.Time)}
}

type frozenTimer struct{ ch chan time.Time }

func (t frozenTimer) C() <-chan time.Time { return t.ch }
func (t frozenTimer) Stop() bool          { return true }

type apiFixture struct {
	router *chi.Mux
	engine *scheduler.Engine
	jwtMgr *auth.JWTManager
}

func newAPIFixture(t *testing.T) *apiFixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewLedgerStore(1000)
	audit := memory.NewAuditStore()
	hub := stream.NewHub(64, logger)

	ledgerEngine := ledger.NewEngineWithPolicy(store, logger, 2, time.Millisecond)
	engine := scheduler.New(scheduler.Config{
		BettingDuration:  15 * time.Second,
		SpinningDuration: 5 * time.Second,
		ResultsDuration:  3 * time.Second,
		MinStake:         10,
		MaxStake:         10000,
	}, ledgerEngine, audit, hub, rng.NewSource(), frozenClock{base: time.Unix(1700000000, 0)}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("scheduler did not stop")
		}
	})

	// Wait for round 1 to open before serving requests.
	deadline := time.Now().Add(2 * time.Second)
	for engine.Snapshot().RoundNumber == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, uint64(1), engine.Snapshot().RoundNumber)

	jwtMgr := auth.NewJWTManager("test-secret", time.Hour)
	limiter := guard.NewRateLimiter(100, time.Second)
	roundHandler := NewRoundHandler(engine, hub, limiter, 5*time.Second, 15*time.Second, logger)
	walletHandler := NewWalletHandler(ledgerEngine)

	r := chi.NewRouter()
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

	return &apiFixture{router: r, engine: engine, jwtMgr: jwtMgr}
}

func (fx *apiFixture) token(t *testing.T, playerID string) string {
	t.Helper()
	token, err := fx.jwtMgr.GenerateToken(playerID, "tester")
	require.NoError(t, err)
	return token
}

func (fx *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["code"]
}

// --- PlaceBet Tests ---

func TestPlaceBetEndpoint(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.token(t, "p1")

	t.Run("unauthenticated", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/round/bet", "", map[string]interface{}{})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("numeric selection", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/round/bet", token, map[string]interface{}{
			"round_number": 1, "kind": "SINGLE_NUMBER", "selection": 17, "stake": 100,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Success    bool   `json:"success"`
			BetID      string `json:"bet_id"`
			NewBalance int64  `json:"new_balance"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.NotEmpty(t, resp.BetID)
		assert.Equal(t, int64(900), resp.NewBalance)
	})

	t.Run("string selection", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/round/bet", token, map[string]interface{}{
			"round_number": 1, "kind": "COLOR", "selection": "red", "stake": 50,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("bad selection", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/round/bet", token, map[string]interface{}{
			"round_number": 1, "kind": "COLOR", "selection": "teal", "stake": 50,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "BAD_SELECTION", errCode(t, rec))
	})

	t.Run("stake out of range", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/round/bet", token, map[string]interface{}{
			"round_number": 1, "kind": "COLOR", "selection": "red", "stake": 5,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "OUT_OF_RANGE", errCode(t, rec))
	})

	t.Run("wrong round", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/round/bet", token, map[string]interface{}{
			"round_number": 42, "kind": "COLOR", "selection": "red", "stake": 50,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "UNKNOWN_ROUND", errCode(t, rec))
	})

	t.Run("insufficient funds", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/round/bet", token, map[string]interface{}{
			"round_number": 1, "kind": "COLOR", "selection": "red", "stake": 5000,
		})
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
		assert.Equal(t, "INSUFFICIENT_FUNDS", errCode(t, rec))
	})
}

func TestPlaceBetRateLimited(t *testing.T) {
	fx := newAPIFixture(t)

	// Rebuild the route with a tight limiter.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := guard.NewRateLimiter(2, time.Minute)
	hub := stream.NewHub(4, logger)
	handler := NewRoundHandler(fx.engine, hub, limiter, 5*time.Second, 15*time.Second, logger)

	r := chi.NewRouter()
	r.Use(auth.AuthenticatePlayer(fx.jwtMgr))
	r.Post("/round/bet", handler.PlaceBet)
	fx.router = r

	token := fx.token(t, "p1")
	body := map[string]interface{}{"round_number": 1, "kind": "COLOR", "selection": "red", "stake": 10}

	assert.Equal(t, http.StatusOK, fx.do(t, http.MethodPost, "/round/bet", token, body).Code)
	assert.Equal(t, http.StatusOK, fx.do(t, http.MethodPost, "/round/bet", token, body).Code)

	rec := fx.do(t, http.MethodPost, "/round/bet", token, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", errCode(t, rec))
}

// --- Spin / Snapshot Tests ---

func TestSpinAndSnapshot(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.token(t, "p1")

	t.Run("snapshot shape during betting", func(t *testing.T) {
		rec := fx.do(t, http.MethodGet, "/round/current", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var snap map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
		assert.Equal(t, float64(1), snap["round_number"])
		assert.Equal(t, "betting", snap["phase"])
		assert.Len(t, snap["commitment"], 64)
		assert.Nil(t, snap["outcome_number"])
		assert.Nil(t, snap["server_seed_revealed"])
		assert.Equal(t, float64(15), snap["betting_duration"])
	})

	t.Run("spin closes betting", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/round/spin", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		// The worker transitions asynchronously.
		deadline := time.Now().Add(2 * time.Second)
		for fx.engine.Snapshot().Phase != domain.PhaseSpinning && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		require.Equal(t, domain.PhaseSpinning, fx.engine.Snapshot().Phase)

		bet := fx.do(t, http.MethodPost, "/round/bet", token, map[string]interface{}{
			"round_number": 1, "kind": "COLOR", "selection": "red", "stake": 50,
		})
		assert.Equal(t, http.StatusConflict, bet.Code)
		assert.Equal(t, "BETTING_CLOSED", errCode(t, bet))

		spin := fx.do(t, http.MethodPost, "/round/spin", token, nil)
		assert.Equal(t, http.StatusConflict, spin.Code)
	})

	t.Run("snapshot exposes outcome during spinning", func(t *testing.T) {
		rec := fx.do(t, http.MethodGet, "/round/current", "", nil)
		var snap map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
		assert.Equal(t, "spinning", snap["phase"])
		assert.NotNil(t, snap["outcome_number"])
		assert.NotNil(t, snap["outcome_color"])
		assert.Nil(t, snap["server_seed_revealed"])
	})
}

// --- Seed / Results Tests ---

func TestSeedAndResultsEndpoints(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.token(t, "p1")

	t.Run("set seed", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/round/seed", token, map[string]string{"client_seed": "my-seed"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, float64(2), resp["applies_to_round"])
	})

	t.Run("invalid seed", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/round/seed", token, map[string]string{"client_seed": ""})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("results empty before settlement", func(t *testing.T) {
		rec := fx.do(t, http.MethodGet, "/round/1/results", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			RoundNumber uint64                 `json:"round_number"`
			Settlements []domain.BetSettlement `json:"settlements"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, uint64(1), resp.RoundNumber)
		assert.Empty(t, resp.Settlements)
	})

	t.Run("non-numeric round number", func(t *testing.T) {
		rec := fx.do(t, http.MethodGet, "/round/latest/results", token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// --- Wallet Tests ---

func TestWalletEndpoints(t *testing.T) {
	fx := newAPIFixture(t)
	token := fx.token(t, "p1")

	t.Run("balance seeds on first touch", func(t *testing.T) {
		rec := fx.do(t, http.MethodGet, "/wallet/balance", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			PlayerID string `json:"player_id"`
			Balance  int64  `json:"balance"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "p1", resp.PlayerID)
		assert.Equal(t, int64(1000), resp.Balance)
	})

	t.Run("transactions paginate", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			rec := fx.do(t, http.MethodPost, "/round/bet", token, map[string]interface{}{
				"round_number": 1, "kind": "COLOR", "selection": "red", "stake": 10,
			})
			require.Equal(t, http.StatusOK, rec.Code)
		}

		rec := fx.do(t, http.MethodGet, "/wallet/transactions?limit=2", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Transactions []domain.Transaction `json:"transactions"`
			NextCursor   *string              `json:"next_cursor"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Transactions, 2)
		require.NotNil(t, resp.NextCursor)

		rec = fx.do(t, http.MethodGet, fmt.Sprintf("/wallet/transactions?limit=2&cursor=%s", *resp.NextCursor), token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Transactions, 1)
	})
}

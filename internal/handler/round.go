package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spinhall/roulette/internal/auth"
	"github.com/spinhall/roulette/internal/domain"
	"github.com/spinhall/roulette/internal/guard"
	"github.com/spinhall/roulette/internal/scheduler"
	"github.com/spinhall/roulette/internal/stream"
)

// RoundHandler exposes the round engine at the HTTP boundary.
type RoundHandler struct {
	engine      *scheduler.Engine
	hub         *stream.Hub
	limiter     *guard.RateLimiter
	betDeadline time.Duration
	heartbeat   time.Duration
	logger      *slog.Logger
}

// NewRoundHandler creates a RoundHandler.
func NewRoundHandler(engine *scheduler.Engine, hub *stream.Hub, limiter *guard.RateLimiter, betDeadline, heartbeat time.Duration, logger *slog.Logger) *RoundHandler {
	return &RoundHandler{
		engine:      engine,
		hub:         hub,
		limiter:     limiter,
		betDeadline: betDeadline,
		heartbeat:   heartbeat,
		logger:      logger,
	}
}

type placeBetRequest struct {
	RoundNumber uint64          `json:"round_number"`
	Kind        domain.BetKind  `json:"kind"`
	Selection   json.RawMessage `json:"selection"`
	Stake       int64           `json:"stake"`
}

type placeBetResponse struct {
	Success    bool   `json:"success"`
	BetID      string `json:"bet_id"`
	NewBalance int64  `json:"new_balance"`
}

// PlaceBet handles POST /round/bet.
func (h *RoundHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerFromContext(r.Context())
	if playerID == "" {
		RespondError(w, domain.ErrUnauthenticated("no player in context"))
		return
	}

	if !h.limiter.Allow(playerID) {
		RespondError(w, domain.ErrRateLimited("too many bets, slow down"))
		return
	}

	var req placeBetRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrBadSelection("malformed request body"))
		return
	}

	// Selection arrives as either a JSON number (single-number bets) or a
	// JSON string (named choices); normalize to the wire string form.
	selection := strings.Trim(strings.TrimSpace(string(req.Selection)), `"`)

	ctx, cancel := context.WithTimeout(r.Context(), h.betDeadline)
	defer cancel()

	bet, newBalance, err := h.engine.PlaceBet(ctx, playerID, req.RoundNumber, req.Kind, selection, req.Stake)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, placeBetResponse{
		Success:    true,
		BetID:      bet.ID,
		NewBalance: newBalance,
	})
}

// TriggerSpin handles POST /round/spin. The first caller in a round ends the
// betting phase early; later callers succeed without effect.
func (h *RoundHandler) TriggerSpin(w http.ResponseWriter, r *http.Request) {
	if auth.PlayerFromContext(r.Context()) == "" {
		RespondError(w, domain.ErrUnauthenticated("no player in context"))
		return
	}

	if err := h.engine.TriggerSpin(); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetCurrent handles GET /round/current, the polling fallback for clients
// that cannot hold a stream. The body is exactly the round_current snapshot.
func (h *RoundHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.engine.Snapshot())
}

type setSeedRequest struct {
	ClientSeed string `json:"client_seed"`
}

// SetSeed handles POST /round/seed: stores a player-supplied client seed for
// the next round. Seeds cannot change once a round's betting has started.
func (h *RoundHandler) SetSeed(w http.ResponseWriter, r *http.Request) {
	if auth.PlayerFromContext(r.Context()) == "" {
		RespondError(w, domain.ErrUnauthenticated("no player in context"))
		return
	}

	var req setSeedRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrBadSelection("malformed request body"))
		return
	}

	appliesTo, err := h.engine.SetClientSeed(req.ClientSeed)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"applies_to_round": appliesTo,
	})
}

// GetResults handles GET /round/{roundNumber}/results, returning the
// caller's settlements. Empty until the round reaches results.
func (h *RoundHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerFromContext(r.Context())
	if playerID == "" {
		RespondError(w, domain.ErrUnauthenticated("no player in context"))
		return
	}

	roundNumber, err := strconv.ParseUint(chi.URLParam(r, "roundNumber"), 10, 64)
	if err != nil {
		RespondError(w, domain.ErrBadSelection("round number must be an integer"))
		return
	}

	results, err := h.engine.Results(r.Context(), roundNumber, playerID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, results)
}

// Stream handles GET /round/stream as server-sent events. The first event is
// always round_current; delivery is ordered and at-most-once, and a
// subscriber that falls behind is disconnected and must resubscribe.
func (h *RoundHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		RespondError(w, domain.ErrInternal("streaming unsupported by transport", nil))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := h.hub.Subscribe(auth.PlayerFromContext(r.Context()), h.engine.SnapshotEvent)
	defer h.hub.Unsubscribe(sub.ID)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, open := <-sub.Events():
			if !open {
				// Disconnected by the hub (queue overflow or shutdown).
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/spinhall/roulette/internal/auth"
	"github.com/spinhall/roulette/internal/domain"
)

// GuestHandler issues demo session tokens. Production deployments resolve
// tokens from the external auth service instead; the engine only needs a
// bearer token that maps to a stable player id.
type GuestHandler struct {
	jwtMgr *auth.JWTManager
}

// NewGuestHandler creates a GuestHandler.
func NewGuestHandler(jwtMgr *auth.JWTManager) *GuestHandler {
	return &GuestHandler{jwtMgr: jwtMgr}
}

type guestResponse struct {
	PlayerID string `json:"player_id"`
	Token    string `json:"token"`
}

// CreateGuest handles POST /auth/guest: mints a fresh player id and a token
// for it. The player's ledger balance starts at the configured initial
// balance on first touch.
func (h *GuestHandler) CreateGuest(w http.ResponseWriter, r *http.Request) {
	playerID := uuid.New().String()
	token, err := h.jwtMgr.GenerateToken(playerID, "guest")
	if err != nil {
		RespondError(w, domain.ErrInternal("generate token", err))
		return
	}

	RespondJSON(w, http.StatusOK, guestResponse{PlayerID: playerID, Token: token})
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/spinhall/roulette/internal/auth"
	"github.com/spinhall/roulette/internal/domain"
	"github.com/spinhall/roulette/internal/ledger"
)

// WalletHandler handles GEM balance and transaction history endpoints.
type WalletHandler struct {
	ledger *ledger.Engine
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(lg *ledger.Engine) *WalletHandler {
	return &WalletHandler{ledger: lg}
}

type balanceResponse struct {
	PlayerID string `json:"player_id"`
	Balance  int64  `json:"balance"`
}

// GetBalance handles GET /wallet/balance.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerFromContext(r.Context())
	if playerID == "" {
		RespondError(w, domain.ErrUnauthenticated("no player in context"))
		return
	}

	balance, err := h.ledger.Balance(r.Context(), playerID)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, balanceResponse{PlayerID: playerID, Balance: balance})
}

type txListResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
	NextCursor   *string              `json:"next_cursor,omitempty"`
}

// GetTransactions handles GET /wallet/transactions with cursor-based pagination.
func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerFromContext(r.Context())
	if playerID == "" {
		RespondError(w, domain.ErrUnauthenticated("no player in context"))
		return
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}

	txs, err := h.ledger.ListByPlayer(r.Context(), playerID, cursor, limit+1)
	if err != nil {
		RespondError(w, domain.ErrInternal("list transactions", err))
		return
	}

	resp := txListResponse{Transactions: txs}
	if len(txs) > limit {
		resp.Transactions = txs[:limit]
		next := string(txs[limit-1].Key)
		resp.NextCursor = &next
	}

	RespondJSON(w, http.StatusOK, resp)
}

package domain

import (
	"fmt"
	"time"
)

// TxnReason enumerates ledger transaction reasons.
type TxnReason string

const (
	TxnBet    TxnReason = "bet"
	TxnPayout TxnReason = "payout"
	TxnRefund TxnReason = "refund"
	TxnSeed   TxnReason = "initial_seed"
)

// TxnKey is the mandatory idempotency key for every ledger write. It is a
// distinct type so that omitting it is a compile error rather than a silent
// empty string.
type TxnKey string

// BetTxnKey is the debit key for a bet: round:player:sequence.
func BetTxnKey(roundNumber uint64, playerID string, seq uint64) TxnKey {
	return TxnKey(fmt.Sprintf("%d:%s:%d", roundNumber, playerID, seq))
}

// PayoutTxnKey is the credit key for a winning bet: round:bet:payout.
func PayoutTxnKey(roundNumber uint64, betID string) TxnKey {
	return TxnKey(fmt.Sprintf("%d:%s:payout", roundNumber, betID))
}

// RefundTxnKey is the reversing key used when a round is aborted: round:bet:refund.
func RefundTxnKey(roundNumber uint64, betID string) TxnKey {
	return TxnKey(fmt.Sprintf("%d:%s:refund", roundNumber, betID))
}

// Transaction is one append-only ledger entry.
type Transaction struct {
	Key          TxnKey    `json:"key"`
	PlayerID     string    `json:"player_id"`
	Delta        int64     `json:"delta"`
	Reason       TxnReason `json:"reason"`
	RoundNumber  *uint64   `json:"round_number,omitempty"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

// BatchEntry is one debit/credit inside an all-or-nothing batch.
type BatchEntry struct {
	Key         TxnKey
	PlayerID    string
	Delta       int64
	Reason      TxnReason
	RoundNumber uint64
}

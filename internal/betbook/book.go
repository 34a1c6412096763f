// Package betbook holds the per-round, in-memory collection of accepted bets
// and the pure settlement function over a frozen book.
package betbook

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spinhall/roulette/internal/domain"
)

// Book is one round's bet collection. Acceptance is concurrent across
// callers; once frozen the book is read-only and settlement becomes a pure
// function of (book, outcome).
type Book struct {
	mu          sync.Mutex
	roundNumber uint64
	minStake    int64
	maxStake    int64
	frozen      bool
	seq         uint64
	bets        []*domain.Bet
	now         func() time.Time
}

// Reservation is a claimed bet slot: sequence assigned, ledger debit key
// derived, record not yet inserted. The debit happens between Reserve and
// Commit so that a frozen book never contains an undebited bet.
type Reservation struct {
	RoundNumber uint64
	PlayerID    string
	Selection   domain.Selection
	Stake       int64
	Sequence    uint64
	DebitKey    domain.TxnKey
}

// New creates an open book for the given round.
func New(roundNumber uint64, minStake, maxStake int64, now func() time.Time) *Book {
	if now == nil {
		now = time.Now
	}
	return &Book{
		roundNumber: roundNumber,
		minStake:    minStake,
		maxStake:    maxStake,
		now:         now,
	}
}

// RoundNumber returns the round this book belongs to.
func (b *Book) RoundNumber() uint64 { return b.roundNumber }

// Reserve validates the bet and claims the next sequence number while the
// book is open. The caller must debit the ledger with the reservation's
// DebitKey before calling Commit.
func (b *Book) Reserve(playerID string, kind domain.BetKind, selection string, stake int64) (Reservation, error) {
	sel, err := domain.ParseSelection(kind, selection)
	if err != nil {
		return Reservation{}, err
	}
	if err := domain.ValidateStake(stake, b.minStake, b.maxStake); err != nil {
		return Reservation{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return Reservation{}, domain.ErrBettingClosed()
	}

	b.seq++
	return Reservation{
		RoundNumber: b.roundNumber,
		PlayerID:    playerID,
		Selection:   sel,
		Stake:       stake,
		Sequence:    b.seq,
		DebitKey:    domain.BetTxnKey(b.roundNumber, playerID, b.seq),
	}, nil
}

// Commit records a reserved, debited bet. If the book froze between Reserve
// and Commit the bet is rejected and the caller must refund the debit.
func (b *Book) Commit(res Reservation) (*domain.Bet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return nil, domain.ErrBettingClosed()
	}

	bet := &domain.Bet{
		ID:          uuid.New().String(),
		RoundNumber: b.roundNumber,
		PlayerID:    res.PlayerID,
		Kind:        res.Selection.Kind,
		Selection:   res.Selection.String(),
		Stake:       res.Stake,
		Sequence:    res.Sequence,
		AcceptedAt:  b.now(),
		Settlement:  domain.SettlementPending,
	}
	b.bets = append(b.bets, bet)
	return bet, nil
}

// Accept reserves and commits in one step. Callers that debit a ledger
// between the two phases use Reserve/Commit directly.
func (b *Book) Accept(playerID string, kind domain.BetKind, selection string, stake int64) (*domain.Bet, error) {
	res, err := b.Reserve(playerID, kind, selection, stake)
	if err != nil {
		return nil, err
	}
	return b.Commit(res)
}

// Freeze transitions the book to read-only. Idempotent.
func (b *Book) Freeze() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frozen = true
}

// Frozen reports whether the book has been frozen.
func (b *Book) Frozen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frozen
}

// Bets returns a copy of the accepted bets in acceptance order.
func (b *Book) Bets() []domain.Bet {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Bet, len(b.bets))
	for i, bet := range b.bets {
		out[i] = *bet
	}
	return out
}

// TotalStaked returns the sum of accepted stakes.
func (b *Book) TotalStaked() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var total int64
	for _, bet := range b.bets {
		total += bet.Stake
	}
	return total
}

// Settle computes every bet's settlement against the outcome. It requires a
// frozen book and has no side effects: re-running it yields bit-identical
// records. Winners are paid stake × multiplier via a credit keyed
// round:bet:payout, so crediting is idempotent.
func (b *Book) Settle(outcome int) ([]domain.BetSettlement, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.frozen {
		return nil, domain.ErrInternal("settle called on open book", nil)
	}

	out := make([]domain.BetSettlement, 0, len(b.bets))
	for _, bet := range b.bets {
		sel, err := domain.ParseSelection(bet.Kind, bet.Selection)
		if err != nil {
			return nil, err
		}

		s := domain.BetSettlement{
			BetID:    bet.ID,
			PlayerID: bet.PlayerID,
			Stake:    bet.Stake,
			TxnKey:   domain.PayoutTxnKey(b.roundNumber, bet.ID),
		}
		if sel.Wins(outcome) {
			s.State = domain.SettlementWon
			s.Payout = bet.Stake * sel.Multiplier()
			s.NetChange = s.Payout - bet.Stake
		} else {
			s.State = domain.SettlementLost
			s.NetChange = -bet.Stake
		}
		out = append(out, s)
	}
	return out, nil
}

// RefundEntries builds the reversing ledger batch for an aborted round, one
// credit per accepted bet keyed round:bet:refund.
func (b *Book) RefundEntries() []domain.BatchEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := make([]domain.BatchEntry, 0, len(b.bets))
	for _, bet := range b.bets {
		entries = append(entries, domain.BatchEntry{
			Key:         domain.RefundTxnKey(b.roundNumber, bet.ID),
			PlayerID:    bet.PlayerID,
			Delta:       bet.Stake,
			Reason:      domain.TxnRefund,
			RoundNumber: b.roundNumber,
		})
	}
	return entries
}

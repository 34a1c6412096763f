// Package memory provides in-memory store implementations used by tests and
// by MEMORY_STORE mode. Semantics match the Postgres stores: idempotent keys,
// no overdrafts, all-or-nothing batches.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spinhall/roulette/internal/domain"
)

// LedgerStore is an in-memory repository.LedgerStore.
type LedgerStore struct {
	mu             sync.Mutex
	balances       map[string]int64
	byKey          map[domain.TxnKey]*domain.Transaction
	byPlayer       map[string][]*domain.Transaction
	initialBalance int64

	// FailNext makes the next n writes fail with a transient error. Used by
	// tests to exercise retry and stall paths.
	FailNext int
}

// NewLedgerStore creates an in-memory ledger store.
func NewLedgerStore(initialBalance int64) *LedgerStore {
	return &LedgerStore{
		balances:       make(map[string]int64),
		byKey:          make(map[domain.TxnKey]*domain.Transaction),
		byPlayer:       make(map[string][]*domain.Transaction),
		initialBalance: initialBalance,
	}
}

func (s *LedgerStore) Balance(_ context.Context, playerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seed(playerID)
	return s.balances[playerID], nil
}

func (s *LedgerStore) Apply(_ context.Context, entry domain.BatchEntry) (*domain.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNext > 0 {
		s.FailNext--
		return nil, false, fmt.Errorf("ledger store unavailable (injected)")
	}

	if existing, ok := s.byKey[entry.Key]; ok {
		if err := matchExisting(existing, entry); err != nil {
			return nil, false, err
		}
		return existing, true, nil
	}

	s.seed(entry.PlayerID)
	if s.balances[entry.PlayerID]+entry.Delta < 0 {
		return nil, false, domain.ErrInsufficientFunds()
	}

	return s.post(entry), false, nil
}

func (s *LedgerStore) BatchApply(_ context.Context, entries []domain.BatchEntry) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNext > 0 {
		s.FailNext--
		return nil, fmt.Errorf("ledger store unavailable (injected)")
	}

	var results []domain.Transaction
	var fresh []domain.BatchEntry
	projected := make(map[string]int64)

	for _, e := range entries {
		if existing, ok := s.byKey[e.Key]; ok {
			if err := matchExisting(existing, e); err != nil {
				return nil, err
			}
			results = append(results, *existing)
			continue
		}
		s.seed(e.PlayerID)
		if _, ok := projected[e.PlayerID]; !ok {
			projected[e.PlayerID] = s.balances[e.PlayerID]
		}
		projected[e.PlayerID] += e.Delta
		if projected[e.PlayerID] < 0 {
			return nil, domain.ErrInsufficientFunds()
		}
		fresh = append(fresh, e)
	}

	for _, e := range fresh {
		results = append(results, *s.post(e))
	}
	return results, nil
}

func (s *LedgerStore) ListByPlayer(_ context.Context, playerID string, cursor *string, limit int) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	history := s.byPlayer[playerID]
	out := make([]domain.Transaction, 0, limit)
	emit := cursor == nil
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		if !emit {
			if string(history[i].Key) == *cursor {
				emit = true
			}
			continue
		}
		out = append(out, *history[i])
	}
	return out, nil
}

// TransactionCount reports the number of ledger entries, for test assertions.
func (s *LedgerStore) TransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}

func (s *LedgerStore) seed(playerID string) {
	if _, ok := s.balances[playerID]; !ok {
		s.balances[playerID] = s.initialBalance
	}
}

func (s *LedgerStore) post(e domain.BatchEntry) *domain.Transaction {
	s.balances[e.PlayerID] += e.Delta

	var roundNumber *uint64
	if e.RoundNumber != 0 {
		n := e.RoundNumber
		roundNumber = &n
	}
	tx := &domain.Transaction{
		Key:          e.Key,
		PlayerID:     e.PlayerID,
		Delta:        e.Delta,
		Reason:       e.Reason,
		RoundNumber:  roundNumber,
		BalanceAfter: s.balances[e.PlayerID],
		CreatedAt:    time.Now(),
	}
	s.byKey[e.Key] = tx
	s.byPlayer[e.PlayerID] = append(s.byPlayer[e.PlayerID], tx)
	return tx
}

func matchExisting(existing *domain.Transaction, e domain.BatchEntry) error {
	sameRound := (existing.RoundNumber == nil && e.RoundNumber == 0) ||
		(existing.RoundNumber != nil && *existing.RoundNumber == e.RoundNumber)
	if existing.PlayerID != e.PlayerID || existing.Delta != e.Delta ||
		existing.Reason != e.Reason || !sameRound {
		return domain.ErrConflict(fmt.Sprintf("transaction key %s reused with different parameters", e.Key))
	}
	return nil
}

// AuditStore is an in-memory repository.AuditStore.
type AuditStore struct {
	mu     sync.Mutex
	rounds map[uint64]*domain.AuditRecord
	last   uint64
}

// NewAuditStore creates an in-memory round audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{rounds: make(map[uint64]*domain.AuditRecord)}
}

func (s *AuditStore) LastRoundNumber(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, nil
}

func (s *AuditStore) InsertRound(_ context.Context, rec *domain.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rounds[rec.RoundNumber]; ok {
		return domain.ErrConflict(fmt.Sprintf("round %d already recorded", rec.RoundNumber))
	}
	clone := *rec
	clone.CreatedAt = time.Now()
	s.rounds[rec.RoundNumber] = &clone
	if rec.RoundNumber > s.last {
		s.last = rec.RoundNumber
	}
	return nil
}

func (s *AuditStore) FindRound(_ context.Context, roundNumber uint64) (*domain.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rounds[roundNumber]
	if !ok {
		return nil, nil
	}
	clone := *rec
	return &clone, nil
}

// RoundNumbers returns all recorded round numbers in ascending order, for
// test assertions.
func (s *AuditStore) RoundNumbers() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	nums := make([]uint64, 0, len(s.rounds))
	for n := range s.rounds {
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums
}

package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spinhall/roulette/internal/domain"
)

func entry(key domain.TxnKey, player string, delta int64) domain.BatchEntry {
	return domain.BatchEntry{
		Key:         key,
		PlayerID:    player,
		Delta:       delta,
		Reason:      domain.TxnBet,
		RoundNumber: 1,
	}
}

// --- Apply Tests ---

func TestApply(t *testing.T) {
	ctx := context.Background()

	t.Run("debit and credit update balance", func(t *testing.T) {
		store := NewLedgerStore(1000)
		tx, replayed, err := store.Apply(ctx, entry("k1", "p1", -100))
		require.NoError(t, err)
		assert.False(t, replayed)
		assert.Equal(t, int64(900), tx.BalanceAfter)

		balance, err := store.Balance(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(900), balance)
	})

	t.Run("unknown player reads initial balance", func(t *testing.T) {
		store := NewLedgerStore(5000)
		balance, err := store.Balance(ctx, "never-seen")
		require.NoError(t, err)
		assert.Equal(t, int64(5000), balance)
	})

	t.Run("replay returns original without double-applying", func(t *testing.T) {
		store := NewLedgerStore(1000)
		first, _, err := store.Apply(ctx, entry("k1", "p1", -100))
		require.NoError(t, err)

		second, replayed, err := store.Apply(ctx, entry("k1", "p1", -100))
		require.NoError(t, err)
		assert.True(t, replayed)
		assert.Equal(t, first, second)

		balance, err := store.Balance(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(900), balance)
		assert.Equal(t, 1, store.TransactionCount())
	})

	t.Run("key reuse with different params is a conflict", func(t *testing.T) {
		store := NewLedgerStore(1000)
		_, _, err := store.Apply(ctx, entry("k1", "p1", -100))
		require.NoError(t, err)

		_, _, err = store.Apply(ctx, entry("k1", "p1", -200))
		requireCode(t, err, "CONFLICT")

		_, _, err = store.Apply(ctx, entry("k1", "p2", -100))
		requireCode(t, err, "CONFLICT")
	})

	t.Run("overdraft rejected before mutation", func(t *testing.T) {
		store := NewLedgerStore(100)
		_, _, err := store.Apply(ctx, entry("k1", "p1", -101))
		requireCode(t, err, "INSUFFICIENT_FUNDS")

		balance, err := store.Balance(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(100), balance)
		assert.Equal(t, 0, store.TransactionCount())
	})

	t.Run("exact balance to zero allowed", func(t *testing.T) {
		store := NewLedgerStore(100)
		tx, _, err := store.Apply(ctx, entry("k1", "p1", -100))
		require.NoError(t, err)
		assert.Equal(t, int64(0), tx.BalanceAfter)
	})
}

// --- BatchApply Tests ---

func TestBatchApply(t *testing.T) {
	ctx := context.Background()

	t.Run("all entries applied atomically", func(t *testing.T) {
		store := NewLedgerStore(1000)
		txs, err := store.BatchApply(ctx, []domain.BatchEntry{
			entry("k1", "p1", -100),
			entry("k2", "p2", -200),
		})
		require.NoError(t, err)
		assert.Len(t, txs, 2)
	})

	t.Run("one failing entry rolls back the batch", func(t *testing.T) {
		store := NewLedgerStore(100)
		_, err := store.BatchApply(ctx, []domain.BatchEntry{
			entry("k1", "p1", -50),
			entry("k2", "p1", -60), // would overdraw after the first
		})
		requireCode(t, err, "INSUFFICIENT_FUNDS")

		balance, err := store.Balance(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(100), balance)
		assert.Equal(t, 0, store.TransactionCount())
	})

	t.Run("replayed keys are skipped", func(t *testing.T) {
		store := NewLedgerStore(1000)
		_, _, err := store.Apply(ctx, entry("k1", "p1", -100))
		require.NoError(t, err)

		txs, err := store.BatchApply(ctx, []domain.BatchEntry{
			entry("k1", "p1", -100), // replay
			entry("k2", "p1", -50),  // fresh
		})
		require.NoError(t, err)
		assert.Len(t, txs, 2)

		balance, err := store.Balance(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(850), balance)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		store := NewLedgerStore(1000)
		txs, err := store.BatchApply(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, txs)
	})
}

// --- ListByPlayer Tests ---

func TestListByPlayer(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore(10000)

	keys := []domain.TxnKey{"k1", "k2", "k3", "k4", "k5"}
	for _, k := range keys {
		_, _, err := store.Apply(ctx, entry(k, "p1", -10))
		require.NoError(t, err)
	}

	t.Run("newest first", func(t *testing.T) {
		txs, err := store.ListByPlayer(ctx, "p1", nil, 10)
		require.NoError(t, err)
		require.Len(t, txs, 5)
		assert.Equal(t, domain.TxnKey("k5"), txs[0].Key)
		assert.Equal(t, domain.TxnKey("k1"), txs[4].Key)
	})

	t.Run("cursor resumes after key", func(t *testing.T) {
		first, err := store.ListByPlayer(ctx, "p1", nil, 2)
		require.NoError(t, err)
		require.Len(t, first, 2)

		cursor := string(first[1].Key)
		rest, err := store.ListByPlayer(ctx, "p1", &cursor, 10)
		require.NoError(t, err)
		require.Len(t, rest, 3)
		assert.Equal(t, domain.TxnKey("k3"), rest[0].Key)
	})

	t.Run("unknown player empty", func(t *testing.T) {
		txs, err := store.ListByPlayer(ctx, "nobody", nil, 10)
		require.NoError(t, err)
		assert.Empty(t, txs)
	})
}

// --- AuditStore Tests ---

func TestAuditStore(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		store := NewAuditStore()
		outcome := 17
		color := domain.ColorRed
		rec := &domain.AuditRecord{
			RoundNumber:   3,
			Commitment:    "c",
			ServerSeed:    "s",
			ClientSeed:    "cs",
			Nonce:         3,
			OutcomeNumber: &outcome,
			OutcomeColor:  &color,
			Status:        domain.RoundSettled,
		}
		require.NoError(t, store.InsertRound(ctx, rec))

		got, err := store.FindRound(ctx, 3)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, uint64(3), got.RoundNumber)
		assert.Equal(t, 17, *got.OutcomeNumber)

		last, err := store.LastRoundNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), last)
	})

	t.Run("duplicate round rejected", func(t *testing.T) {
		store := NewAuditStore()
		rec := &domain.AuditRecord{RoundNumber: 1, Status: domain.RoundSettled}
		require.NoError(t, store.InsertRound(ctx, rec))
		requireCode(t, store.InsertRound(ctx, rec), "CONFLICT")
	})

	t.Run("missing round is nil", func(t *testing.T) {
		store := NewAuditStore()
		got, err := store.FindRound(ctx, 99)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *domain.AppError
	require.Error(t, err)
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T", err)
	assert.Equal(t, code, appErr.Code)
}

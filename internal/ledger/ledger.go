// Package ledger provides the virtual-currency engine. All mutations go
// through an idempotency-keyed store; the engine adds bounded-backoff retry
// for transient store failures and surfaces LEDGER_UNAVAILABLE on exhaustion.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spinhall/roulette/internal/domain"
	"github.com/spinhall/roulette/internal/repository"
)

const (
	defaultMaxAttempts = 5
	defaultBaseBackoff = 200 * time.Millisecond
)

// Engine is the ledger facade used by the round engine and the HTTP layer.
type Engine struct {
	store       repository.LedgerStore
	logger      *slog.Logger
	maxAttempts int
	baseBackoff time.Duration
}

// NewEngine creates a ledger engine over the given store.
func NewEngine(store repository.LedgerStore, logger *slog.Logger) *Engine {
	return &Engine{
		store:       store,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
	}
}

// NewEngineWithPolicy creates a ledger engine with an explicit retry policy.
func NewEngineWithPolicy(store repository.LedgerStore, logger *slog.Logger, maxAttempts int, baseBackoff time.Duration) *Engine {
	return &Engine{
		store:       store,
		logger:      logger,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
	}
}

// Balance returns the player's current balance. Unknown players read as the
// store's configured initial balance.
func (e *Engine) Balance(ctx context.Context, playerID string) (int64, error) {
	var balance int64
	err := e.retry(ctx, "balance", func() error {
		var err error
		balance, err = e.store.Balance(ctx, playerID)
		return err
	})
	return balance, err
}

// Apply posts a single debit or credit. Idempotent on the entry key: a replay
// with identical parameters returns the original transaction and replayed =
// true; a key reused with different parameters fails with CONFLICT. A debit
// that would leave the balance negative fails with INSUFFICIENT_FUNDS before
// any mutation.
func (e *Engine) Apply(ctx context.Context, entry domain.BatchEntry) (*domain.Transaction, bool, error) {
	var tx *domain.Transaction
	var replayed bool
	err := e.retry(ctx, "apply", func() error {
		var err error
		tx, replayed, err = e.store.Apply(ctx, entry)
		return err
	})
	return tx, replayed, err
}

// BatchApply posts a vector of entries as a single atomic unit. If any entry
// would violate the non-negative invariant, none are applied. Already-applied
// keys are skipped, so retries after partial failure are safe.
func (e *Engine) BatchApply(ctx context.Context, entries []domain.BatchEntry) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	err := e.retry(ctx, "batch apply", func() error {
		var err error
		txs, err = e.store.BatchApply(ctx, entries)
		return err
	})
	return txs, err
}

// ListByPlayer returns a player's transaction history, newest first.
func (e *Engine) ListByPlayer(ctx context.Context, playerID string, cursor *string, limit int) ([]domain.Transaction, error) {
	return e.store.ListByPlayer(ctx, playerID, cursor, limit)
}

// retry runs op, retrying transient failures with doubling backoff. Domain
// errors (insufficient funds, conflicts) are terminal and returned as-is;
// exhausted retries surface as LEDGER_UNAVAILABLE.
func (e *Engine) retry(ctx context.Context, op string, fn func() error) error {
	backoff := e.baseBackoff
	var lastErr error

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var appErr *domain.AppError
		if errors.As(lastErr, &appErr) {
			return lastErr
		}

		if attempt == e.maxAttempts {
			break
		}
		e.logger.Warn("ledger op failed, retrying",
			"op", op, "attempt", attempt, "backoff", backoff, "error", lastErr)

		select {
		case <-ctx.Done():
			return domain.ErrLedgerUnavailable(ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return domain.ErrLedgerUnavailable(lastErr)
}

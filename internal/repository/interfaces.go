package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spinhall/roulette/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// LedgerStore persists player balances and the append-only transaction log.
//
// All writes serialize per player and are idempotent on the transaction key:
// replaying a key with identical parameters returns the stored entry, a key
// reused with different parameters fails with CONFLICT, and a debit that
// would leave a balance negative fails with INSUFFICIENT_FUNDS before any
// mutation. Unknown players read as the configured initial balance on first
// touch.
type LedgerStore interface {
	// Balance returns the player's current balance, seeding unknown players.
	Balance(ctx context.Context, playerID string) (int64, error)

	// Apply atomically applies one entry. The bool is true when the entry was
	// a replay of an identical prior transaction.
	Apply(ctx context.Context, entry domain.BatchEntry) (*domain.Transaction, bool, error)

	// BatchApply applies a vector of entries as a single atomic unit; if any
	// entry would violate the non-negative invariant, none are applied.
	// Entries whose keys were already applied with identical parameters are
	// skipped, so retries after partial failure are safe.
	BatchApply(ctx context.Context, entries []domain.BatchEntry) ([]domain.Transaction, error)

	// ListByPlayer returns transactions for a player, newest first, with
	// cursor-based pagination.
	ListByPlayer(ctx context.Context, playerID string, cursor *string, limit int) ([]domain.Transaction, error)
}

// AuditStore persists one record per terminated round and supplies the
// round counter on restart.
type AuditStore interface {
	// LastRoundNumber returns the highest recorded round number, 0 if none.
	LastRoundNumber(ctx context.Context) (uint64, error)

	// InsertRound writes the audit record for a terminated round.
	InsertRound(ctx context.Context, rec *domain.AuditRecord) error

	// FindRound returns the audit record for a round, nil if not recorded.
	FindRound(ctx context.Context, roundNumber uint64) (*domain.AuditRecord, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the write
	// that produced it).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events for the outbox poller.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxDraft, error)

	// MarkPublished stamps events as published.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}

package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spinhall/roulette/internal/domain"
)

// PgLedgerStore is the pgx-backed LedgerStore. Per-player serialization comes
// from row-level locks on the players table; every write also stages a
// transaction_posted outbox event in the same database transaction.
type PgLedgerStore struct {
	pool           *pgxpool.Pool
	outbox         OutboxRepository
	initialBalance int64
}

// NewPgLedgerStore creates a Postgres-backed ledger store.
func NewPgLedgerStore(pool *pgxpool.Pool, outbox OutboxRepository, initialBalance int64) *PgLedgerStore {
	return &PgLedgerStore{pool: pool, outbox: outbox, initialBalance: initialBalance}
}

func (s *PgLedgerStore) Balance(ctx context.Context, playerID string) (int64, error) {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO players (id, balance) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`, playerID, s.initialBalance); err != nil {
		return 0, fmt.Errorf("seed player: %w", err)
	}

	var balance int64
	if err := s.pool.QueryRow(ctx,
		`SELECT balance FROM players WHERE id = $1`, playerID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	return balance, nil
}

func (s *PgLedgerStore) Apply(ctx context.Context, entry domain.BatchEntry) (*domain.Transaction, bool, error) {
	var result *domain.Transaction
	var replayed bool

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		result, replayed, err = s.applyInTx(ctx, tx, entry)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return result, replayed, nil
}

func (s *PgLedgerStore) BatchApply(ctx context.Context, entries []domain.BatchEntry) ([]domain.Transaction, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	var results []domain.Transaction
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Lock all touched players in a stable order to avoid deadlocks.
		players := distinctPlayers(entries)
		for _, p := range players {
			if err := s.lockPlayer(ctx, tx, p); err != nil {
				return err
			}
		}

		// Partition into fresh entries and replays, rejecting key conflicts.
		balances := make(map[string]int64, len(players))
		for _, p := range players {
			var b int64
			if err := tx.QueryRow(ctx, `SELECT balance FROM players WHERE id = $1`, p).Scan(&b); err != nil {
				return fmt.Errorf("read balance: %w", err)
			}
			balances[p] = b
		}

		var fresh []domain.BatchEntry
		for _, e := range entries {
			existing, err := s.findExisting(ctx, tx, e.Key)
			if err != nil {
				return err
			}
			if existing != nil {
				if err := matchExisting(existing, e); err != nil {
					return err
				}
				results = append(results, *existing)
				continue
			}
			fresh = append(fresh, e)
		}

		// All-or-nothing: validate every fresh entry before any mutation.
		for _, e := range fresh {
			balances[e.PlayerID] += e.Delta
			if balances[e.PlayerID] < 0 {
				return domain.ErrInsufficientFunds()
			}
		}

		for _, e := range fresh {
			entry, err := s.post(ctx, tx, e)
			if err != nil {
				return err
			}
			results = append(results, *entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *PgLedgerStore) ListByPlayer(ctx context.Context, playerID string, cursor *string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = s.pool.Query(ctx, `
			SELECT txn_key, player_id, delta, reason, round_number, balance_after, created_at
			FROM transactions
			WHERE player_id = $1
			  AND (created_at, txn_key) < ((SELECT created_at, txn_key FROM transactions WHERE txn_key = $2))
			ORDER BY created_at DESC, txn_key DESC
			LIMIT $3`, playerID, *cursor, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT txn_key, player_id, delta, reason, round_number, balance_after, created_at
			FROM transactions
			WHERE player_id = $1
			ORDER BY created_at DESC, txn_key DESC
			LIMIT $2`, playerID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.Key, &t.PlayerID, &t.Delta, &t.Reason, &t.RoundNumber, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (s *PgLedgerStore) applyInTx(ctx context.Context, tx pgx.Tx, entry domain.BatchEntry) (*domain.Transaction, bool, error) {
	if err := s.lockPlayer(ctx, tx, entry.PlayerID); err != nil {
		return nil, false, err
	}

	existing, err := s.findExisting(ctx, tx, entry.Key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if err := matchExisting(existing, entry); err != nil {
			return nil, false, err
		}
		return existing, true, nil
	}

	var balance int64
	if err := tx.QueryRow(ctx, `SELECT balance FROM players WHERE id = $1`, entry.PlayerID).Scan(&balance); err != nil {
		return nil, false, fmt.Errorf("read balance: %w", err)
	}
	if balance+entry.Delta < 0 {
		return nil, false, domain.ErrInsufficientFunds()
	}

	posted, err := s.post(ctx, tx, entry)
	if err != nil {
		return nil, false, err
	}
	return posted, false, nil
}

// lockPlayer seeds the player row if absent and acquires a row-level lock.
func (s *PgLedgerStore) lockPlayer(ctx context.Context, tx pgx.Tx, playerID string) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO players (id, balance) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`, playerID, s.initialBalance); err != nil {
		return fmt.Errorf("seed player: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT id FROM players WHERE id = $1 FOR UPDATE`, playerID); err != nil {
		return fmt.Errorf("lock player: %w", err)
	}
	return nil
}

func (s *PgLedgerStore) findExisting(ctx context.Context, tx pgx.Tx, key domain.TxnKey) (*domain.Transaction, error) {
	var t domain.Transaction
	err := tx.QueryRow(ctx, `
		SELECT txn_key, player_id, delta, reason, round_number, balance_after, created_at
		FROM transactions WHERE txn_key = $1`, key).
		Scan(&t.Key, &t.PlayerID, &t.Delta, &t.Reason, &t.RoundNumber, &t.BalanceAfter, &t.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find existing transaction: %w", err)
	}
	return &t, nil
}

// post performs the balance update, ledger insert and outbox insert as one unit.
func (s *PgLedgerStore) post(ctx context.Context, tx pgx.Tx, e domain.BatchEntry) (*domain.Transaction, error) {
	var balanceAfter int64
	err := tx.QueryRow(ctx, `
		UPDATE players SET balance = balance + $2 WHERE id = $1
		RETURNING balance`, e.PlayerID, e.Delta).Scan(&balanceAfter)
	if err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	var roundNumber *uint64
	if e.RoundNumber != 0 {
		n := e.RoundNumber
		roundNumber = &n
	}

	var entry domain.Transaction
	err = tx.QueryRow(ctx, `
		INSERT INTO transactions (txn_key, player_id, delta, reason, round_number, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING txn_key, player_id, delta, reason, round_number, balance_after, created_at`,
		e.Key, e.PlayerID, e.Delta, string(e.Reason), roundNumber, balanceAfter).
		Scan(&entry.Key, &entry.PlayerID, &entry.Delta, &entry.Reason, &entry.RoundNumber, &entry.BalanceAfter, &entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	if err := s.outbox.Insert(ctx, tx, domain.NewTransactionPostedEvent(&entry)); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}

	return &entry, nil
}

// matchExisting enforces idempotency semantics: a replayed key must carry
// identical parameters, otherwise the call is a CONFLICT.
func matchExisting(existing *domain.Transaction, e domain.BatchEntry) error {
	sameRound := (existing.RoundNumber == nil && e.RoundNumber == 0) ||
		(existing.RoundNumber != nil && *existing.RoundNumber == e.RoundNumber)
	if existing.PlayerID != e.PlayerID || existing.Delta != e.Delta ||
		existing.Reason != e.Reason || !sameRound {
		return domain.ErrConflict(fmt.Sprintf("transaction key %s reused with different parameters", e.Key))
	}
	return nil
}

func distinctPlayers(entries []domain.BatchEntry) []string {
	seen := make(map[string]bool, len(entries))
	var players []string
	for _, e := range entries {
		if !seen[e.PlayerID] {
			seen[e.PlayerID] = true
			players = append(players, e.PlayerID)
		}
	}
	sort.Strings(players)
	return players
}

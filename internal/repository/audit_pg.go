package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spinhall/roulette/internal/domain"
)

// PgAuditStore is the pgx-backed AuditStore. The round terminated event is
// staged in the outbox within the same transaction as the audit insert.
type PgAuditStore struct {
	pool   *pgxpool.Pool
	outbox OutboxRepository
}

// NewPgAuditStore creates a Postgres-backed round audit store.
func NewPgAuditStore(pool *pgxpool.Pool, outbox OutboxRepository) *PgAuditStore {
	return &PgAuditStore{pool: pool, outbox: outbox}
}

func (s *PgAuditStore) LastRoundNumber(ctx context.Context) (uint64, error) {
	var last uint64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(round_number), 0) FROM rounds`).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("query last round: %w", err)
	}
	return last, nil
}

func (s *PgAuditStore) InsertRound(ctx context.Context, rec *domain.AuditRecord) error {
	bets, err := json.Marshal(rec.Bets)
	if err != nil {
		return fmt.Errorf("marshal bets: %w", err)
	}
	settlements, err := json.Marshal(rec.Settlements)
	if err != nil {
		return fmt.Errorf("marshal settlements: %w", err)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO rounds
			  (round_number, commitment, server_seed, client_seed, nonce,
			   outcome_number, outcome_color, drawn_at, total_staked, total_paid_out,
			   bets, settlements, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			rec.RoundNumber, rec.Commitment, rec.ServerSeed, rec.ClientSeed, rec.Nonce,
			rec.OutcomeNumber, rec.OutcomeColor, rec.DrawnAt, rec.TotalStaked, rec.TotalPaidOut,
			bets, settlements, string(rec.Status))
		if err != nil {
			return fmt.Errorf("insert round: %w", err)
		}

		if err := s.outbox.Insert(ctx, tx, domain.NewRoundTerminatedEvent(rec)); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		return nil
	})
}

func (s *PgAuditStore) FindRound(ctx context.Context, roundNumber uint64) (*domain.AuditRecord, error) {
	var rec domain.AuditRecord
	var bets, settlements []byte
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT round_number, commitment, server_seed, client_seed, nonce,
		       outcome_number, outcome_color, drawn_at, total_staked, total_paid_out,
		       bets, settlements, status, created_at
		FROM rounds WHERE round_number = $1`, roundNumber).
		Scan(&rec.RoundNumber, &rec.Commitment, &rec.ServerSeed, &rec.ClientSeed, &rec.Nonce,
			&rec.OutcomeNumber, &rec.OutcomeColor, &rec.DrawnAt, &rec.TotalStaked, &rec.TotalPaidOut,
			&bets, &settlements, &status, &rec.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query round: %w", err)
	}

	if err := json.Unmarshal(bets, &rec.Bets); err != nil {
		return nil, fmt.Errorf("unmarshal bets: %w", err)
	}
	if err := json.Unmarshal(settlements, &rec.Settlements); err != nil {
		return nil, fmt.Errorf("unmarshal settlements: %w", err)
	}
	rec.Status = domain.RoundStatus(status)
	return &rec, nil
}

package domain

import "time"

// Phase is the lifecycle phase of a round.
type Phase string

const (
	PhaseBetting  Phase = "betting"
	PhaseSpinning Phase = "spinning"
	PhaseResults  Phase = "results"
	PhaseEnded    Phase = "ended"
)

// Round is the authoritative state of one wheel round. Phase transitions are
// monotonic and irreversible within a round number; the outcome is set exactly
// once, on entry to spinning.
type Round struct {
	Number        uint64
	Phase         Phase
	Commitment    string // sha256(server seed), 64 hex chars
	ClientSeed    string
	Nonce         uint64 // equals Number
	StartedAt     time.Time
	EndsAt        time.Time
	OutcomeNumber *int
	OutcomeColor  *Color
	DrawnAt       *time.Time // set with the outcome; every accepted bet precedes it
	ServerSeed    *string    // revealed no earlier than results
}

// Snapshot is the full client-facing representation of the current round.
// The JSON shape is part of the external contract.
type Snapshot struct {
	RoundNumber     uint64  `json:"round_number"`
	Phase           Phase   `json:"phase"`
	Commitment      string  `json:"commitment"`
	StartedAt       string  `json:"started_at"`
	EndsAt          string  `json:"ends_at"`
	BettingDuration int     `json:"betting_duration"`
	TimeRemaining   float64 `json:"time_remaining"`
	OutcomeNumber   *int    `json:"outcome_number"`
	OutcomeColor    *Color  `json:"outcome_color"`
	ServerSeed      *string `json:"server_seed_revealed"`
}

// RoundStatus is the terminal status recorded in the audit log.
type RoundStatus string

const (
	RoundSettled RoundStatus = "settled"
	RoundAborted RoundStatus = "aborted"
)

// AuditRecord is the per-round row persisted when a round terminates. It is
// sufficient for independent fairness verification and for restoring the
// round counter after a restart.
type AuditRecord struct {
	RoundNumber   uint64      `json:"round_number"`
	Commitment    string      `json:"commitment"`
	ServerSeed    string      `json:"server_seed"`
	ClientSeed    string      `json:"client_seed"`
	Nonce         uint64      `json:"nonce"`
	OutcomeNumber *int        `json:"outcome_number"`
	OutcomeColor  *Color      `json:"outcome_color"`
	DrawnAt       *time.Time  `json:"drawn_at"`
	TotalStaked   int64       `json:"total_staked"`
	TotalPaidOut  int64       `json:"total_paid_out"`
	Bets          []Bet       `json:"bets"`
	Settlements   []BetSettlement `json:"settlements"`
	Status        RoundStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
}

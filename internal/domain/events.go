package domain

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// EventType names the round stream events. The lowercase values double as
// SSE event names on the wire.
type EventType string

const (
	EventRoundStarted EventType = "round_started"
	EventPhaseChanged EventType = "phase_changed"
	EventRoundResults EventType = "round_results"
	EventRoundEnded   EventType = "round_ended"
	EventRoundAborted EventType = "round_aborted"
	EventRoundStalled EventType = "round_stalled"
	EventRoundCurrent EventType = "round_current"
)

// Event is one message on the round stream. Data is the JSON body delivered
// to subscribers unchanged.
type Event struct {
	Type        EventType       `json:"type"`
	RoundNumber uint64          `json:"round_number"`
	Data        json.RawMessage `json:"data"`
}

// RoundStartedData is the body of a round_started event.
type RoundStartedData struct {
	RoundNumber     uint64 `json:"round_number"`
	Phase           Phase  `json:"phase"`
	Commitment      string `json:"commitment"`
	Nonce           uint64 `json:"nonce"`
	StartedAt       string `json:"started_at"`
	EndsAt          string `json:"ends_at"`
	BettingDuration int    `json:"betting_duration"`
}

// PhaseChangedData is the body of a phase_changed event. Outcome fields are
// present from spinning onwards so clients can synchronize wheel animations.
type PhaseChangedData struct {
	RoundNumber   uint64  `json:"round_number"`
	Phase         Phase   `json:"phase"`
	OutcomeNumber *int    `json:"outcome_number,omitempty"`
	OutcomeColor  *Color  `json:"outcome_color,omitempty"`
	TimeRemaining float64 `json:"time_remaining"`
}

// RoundResultsData is the body of a round_results event, carrying the reveal
// and every bet's settlement.
type RoundResultsData struct {
	RoundNumber   uint64          `json:"round_number"`
	OutcomeNumber int             `json:"outcome_number"`
	OutcomeColor  Color           `json:"outcome_color"`
	ServerSeed    string          `json:"server_seed_revealed"`
	Settlements   []BetSettlement `json:"settlements"`
}

// RoundTerminalData is the body of round_ended, round_aborted and
// round_stalled events.
type RoundTerminalData struct {
	RoundNumber uint64 `json:"round_number"`
	Reason      string `json:"reason,omitempty"`
}

// NewEvent marshals data into a stream event. Marshal failures cannot occur
// for the closed set of body types above.
func NewEvent(t EventType, roundNumber uint64, data interface{}) Event {
	payload, _ := json.Marshal(data)
	return Event{Type: t, RoundNumber: roundNumber, Data: payload}
}

// Aggregate types for outbox events.
const (
	AggregateWallet = "wallet"
	AggregateRound  = "round"
)

// Outbox event types.
const (
	OutboxTransactionPosted = "transaction_posted"
	OutboxRoundSettled      = "round_settled"
	OutboxRoundAborted      = "round_aborted"
)

// OutboxDraft is an event staged in the transactional outbox.
type OutboxDraft struct {
	SeqID         int64           `json:"seq_id,omitempty"`
	EventID       uuid.UUID       `json:"event_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// NewTransactionPostedEvent creates the standard wallet event for a ledger entry.
func NewTransactionPostedEvent(tx *Transaction) OutboxDraft {
	payload, _ := json.Marshal(tx)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateWallet,
		AggregateID:   tx.PlayerID,
		EventType:     OutboxTransactionPosted,
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewRoundTerminatedEvent creates the audit event for a settled or aborted round.
func NewRoundTerminatedEvent(rec *AuditRecord) OutboxDraft {
	evtType := OutboxRoundSettled
	if rec.Status == RoundAborted {
		evtType = OutboxRoundAborted
	}
	payload, _ := json.Marshal(rec)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateRound,
		AggregateID:   strconv.FormatUint(rec.RoundNumber, 10),
		EventType:     evtType,
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

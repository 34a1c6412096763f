package domain

import (
	"fmt"
	"strconv"
	"time"
)

// BetKind enumerates the bet types the wheel engine accepts.
type BetKind string

const (
	BetSingleNumber BetKind = "SINGLE_NUMBER"
	BetColor        BetKind = "COLOR"
	BetParity       BetKind = "PARITY"
	BetRange        BetKind = "RANGE"
)

// Selection values for the non-numeric bet kinds.
const (
	SelectRed   = "red"
	SelectBlack = "black"
	SelectGreen = "green"
	SelectEven  = "even"
	SelectOdd   = "odd"
	SelectLow   = "low"
	SelectHigh  = "high"
)

// Selection is a validated (kind, choice) pair. Number is meaningful only for
// SINGLE_NUMBER; Choice only for the other kinds. Construct via ParseSelection
// so invalid combinations are unrepresentable downstream.
type Selection struct {
	Kind   BetKind
	Number int
	Choice string
}

// ParseSelection validates a raw kind/selection pair from the wire.
// For SINGLE_NUMBER the selection is the decimal number; for the other kinds
// it is one of the named choices.
func ParseSelection(kind BetKind, raw string) (Selection, error) {
	switch kind {
	case BetSingleNumber:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Selection{}, ErrBadSelection(fmt.Sprintf("selection %q is not a number", raw))
		}
		if !ValidIndex(n) {
			return Selection{}, ErrBadSelection(fmt.Sprintf("number %d out of wheel range", n))
		}
		return Selection{Kind: kind, Number: n}, nil
	case BetColor:
		switch raw {
		case SelectRed, SelectBlack, SelectGreen:
			return Selection{Kind: kind, Choice: raw}, nil
		}
		return Selection{}, ErrBadSelection(fmt.Sprintf("unknown color %q", raw))
	case BetParity:
		switch raw {
		case SelectEven, SelectOdd:
			return Selection{Kind: kind, Choice: raw}, nil
		}
		return Selection{}, ErrBadSelection(fmt.Sprintf("unknown parity %q", raw))
	case BetRange:
		switch raw {
		case SelectLow, SelectHigh:
			return Selection{Kind: kind, Choice: raw}, nil
		}
		return Selection{}, ErrBadSelection(fmt.Sprintf("unknown range %q", raw))
	}
	return Selection{}, ErrBadSelection(fmt.Sprintf("unknown bet kind %q", kind))
}

// String renders the selection in the wire format accepted by ParseSelection.
func (s Selection) String() string {
	if s.Kind == BetSingleNumber {
		return fmt.Sprintf("%d", s.Number)
	}
	return s.Choice
}

// Multiplier returns the total-return multiplier for a winning bet.
// A winning bet returns stake × multiplier; these values are part of the
// external contract.
func (s Selection) Multiplier() int64 {
	switch s.Kind {
	case BetSingleNumber:
		return 35
	case BetColor:
		if s.Choice == SelectGreen {
			return 14
		}
		return 2
	case BetParity, BetRange:
		return 2
	}
	return 0
}

// Wins reports whether the selection wins against the given outcome index.
// Zero is neither even nor odd and belongs to no range.
func (s Selection) Wins(outcome int) bool {
	switch s.Kind {
	case BetSingleNumber:
		return outcome == s.Number
	case BetColor:
		return ColorOf(outcome) == Color(s.Choice)
	case BetParity:
		if outcome == 0 {
			return false
		}
		if s.Choice == SelectEven {
			return outcome%2 == 0
		}
		return outcome%2 == 1
	case BetRange:
		if s.Choice == SelectLow {
			return outcome >= 1 && outcome <= 18
		}
		return outcome >= 19 && outcome <= 36
	}
	return false
}

// SettlementState is the lifecycle state of a bet's settlement.
type SettlementState string

const (
	SettlementPending SettlementState = "pending"
	SettlementWon     SettlementState = "won"
	SettlementLost    SettlementState = "lost"
)

// Bet is an accepted wager in a round's book.
type Bet struct {
	ID          string          `json:"id"`
	RoundNumber uint64          `json:"round_number"`
	PlayerID    string          `json:"player_id"`
	Kind        BetKind         `json:"kind"`
	Selection   string          `json:"selection"`
	Stake       int64           `json:"stake"`
	Sequence    uint64          `json:"sequence"`
	AcceptedAt  time.Time       `json:"accepted_at"`
	Settlement  SettlementState `json:"settlement"`
	Payout      int64           `json:"payout"`
}

// BetSettlement is one row of the pure settlement output.
type BetSettlement struct {
	BetID     string          `json:"bet_id"`
	PlayerID  string          `json:"player_id"`
	State     SettlementState `json:"settlement"`
	Stake     int64           `json:"stake"`
	Payout    int64           `json:"payout"`
	NetChange int64           `json:"net_change"`
	TxnKey    TxnKey          `json:"txn_key"`
}

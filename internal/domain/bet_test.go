package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- ParseSelection Tests ---

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name    string
		kind    BetKind
		raw     string
		wantErr bool
	}{
		{"single number valid", BetSingleNumber, "17", false},
		{"single number zero", BetSingleNumber, "0", false},
		{"single number max", BetSingleNumber, "36", false},
		{"single number over wheel", BetSingleNumber, "37", true},
		{"single number negative", BetSingleNumber, "-1", true},
		{"single number not a number", BetSingleNumber, "red", true},
		{"single number trailing garbage", BetSingleNumber, "7abc", true},
		{"single number embedded space", BetSingleNumber, " 7", true},
		{"color red", BetColor, "red", false},
		{"color black", BetColor, "black", false},
		{"color green", BetColor, "green", false},
		{"color unknown", BetColor, "blue", true},
		{"parity even", BetParity, "even", false},
		{"parity odd", BetParity, "odd", false},
		{"parity unknown", BetParity, "17", true},
		{"range low", BetRange, "low", false},
		{"range high", BetRange, "high", false},
		{"range unknown", BetRange, "middle", true},
		{"unknown kind", BetKind("STREET"), "1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := ParseSelection(tt.kind, tt.raw)
			if tt.wantErr {
				var appErr *AppError
				require.Error(t, err)
				require.True(t, errors.As(err, &appErr))
				assert.Equal(t, "BAD_SELECTION", appErr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.raw, sel.String())
		})
	}
}

// --- Multiplier Tests ---

func TestMultiplier(t *testing.T) {
	tests := []struct {
		name string
		kind BetKind
		raw  string
		want int64
	}{
		{"single number pays 35x", BetSingleNumber, "7", 35},
		{"red pays 2x", BetColor, "red", 2},
		{"black pays 2x", BetColor, "black", 2},
		{"green pays 14x", BetColor, "green", 14},
		{"even pays 2x", BetParity, "even", 2},
		{"odd pays 2x", BetParity, "odd", 2},
		{"low pays 2x", BetRange, "low", 2},
		{"high pays 2x", BetRange, "high", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := ParseSelection(tt.kind, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sel.Multiplier())
		})
	}
}

// --- Wins Tests ---

func TestWins(t *testing.T) {
	tests := []struct {
		name    string
		kind    BetKind
		raw     string
		outcome int
		want    bool
	}{
		{"single number hit", BetSingleNumber, "17", 17, true},
		{"single number miss", BetSingleNumber, "17", 18, false},
		{"single number zero hit", BetSingleNumber, "0", 0, true},
		{"red wins on odd", BetColor, "red", 5, true},
		{"red loses on even", BetColor, "red", 6, false},
		{"black wins on even non-zero", BetColor, "black", 12, true},
		{"black loses on zero", BetColor, "black", 0, false},
		{"green wins on zero", BetColor, "green", 0, true},
		{"green loses elsewhere", BetColor, "green", 1, false},
		{"even wins", BetParity, "even", 8, true},
		{"even loses on zero", BetParity, "even", 0, false},
		{"odd wins", BetParity, "odd", 9, true},
		{"odd loses on zero", BetParity, "odd", 0, false},
		{"low wins at 1", BetRange, "low", 1, true},
		{"low wins at 18", BetRange, "low", 18, true},
		{"low loses at 19", BetRange, "low", 19, false},
		{"low loses on zero", BetRange, "low", 0, false},
		{"high wins at 19", BetRange, "high", 19, true},
		{"high wins at 36", BetRange, "high", 36, true},
		{"high loses at 18", BetRange, "high", 18, false},
		{"high loses on zero", BetRange, "high", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := ParseSelection(tt.kind, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sel.Wins(tt.outcome))
		})
	}
}

func TestZeroLosesEverythingExceptGreenAndItself(t *testing.T) {
	// Zero pays only SINGLE_NUMBER 0 and COLOR green.
	winners := []struct {
		kind BetKind
		raw  string
	}{
		{BetSingleNumber, "0"},
		{BetColor, "green"},
	}
	losers := []struct {
		kind BetKind
		raw  string
	}{
		{BetColor, "red"}, {BetColor, "black"},
		{BetParity, "even"}, {BetParity, "odd"},
		{BetRange, "low"}, {BetRange, "high"},
		{BetSingleNumber, "1"},
	}

	for _, w := range winners {
		sel, err := ParseSelection(w.kind, w.raw)
		require.NoError(t, err)
		assert.True(t, sel.Wins(0), "%s %s should win on zero", w.kind, w.raw)
	}
	for _, l := range losers {
		sel, err := ParseSelection(l.kind, l.raw)
		require.NoError(t, err)
		assert.False(t, sel.Wins(0), "%s %s should lose on zero", l.kind, l.raw)
	}
}

// --- Validator Tests ---

func TestValidateStake(t *testing.T) {
	assert.NoError(t, ValidateStake(10, 10, 10000))
	assert.NoError(t, ValidateStake(10000, 10, 10000))
	assert.Error(t, ValidateStake(9, 10, 10000))
	assert.Error(t, ValidateStake(10001, 10, 10000))
	assert.Error(t, ValidateStake(0, 10, 10000))
	assert.Error(t, ValidateStake(-100, 10, 10000))
}

func TestValidateClientSeed(t *testing.T) {
	assert.NoError(t, ValidateClientSeed("my-lucky-seed"))
	assert.NoError(t, ValidateClientSeed("x"))
	assert.Error(t, ValidateClientSeed(""))
	assert.Error(t, ValidateClientSeed(string(make([]byte, 65))))
	assert.Error(t, ValidateClientSeed("has space"))
	assert.Error(t, ValidateClientSeed("non-ascii-é"))
}

// --- TxnKey Tests ---

func TestTxnKeys(t *testing.T) {
	assert.Equal(t, TxnKey("12:player-1:3"), BetTxnKey(12, "player-1", 3))
	assert.Equal(t, TxnKey("12:bet-a:payout"), PayoutTxnKey(12, "bet-a"))
	assert.Equal(t, TxnKey("12:bet-a:refund"), RefundTxnKey(12, "bet-a"))
}

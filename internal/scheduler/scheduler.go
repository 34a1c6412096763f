// Package scheduler drives the authoritative round state machine. All phase
// transitions run on a single worker goroutine consuming timer expiries and
// spin commands, so exactly one transition is in flight at a time. Bet
// acceptance is concurrent but gated by the book's freeze flag: a bet is
// wholly before the freeze or wholly after.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spinhall/roulette/internal/betbook"
	"github.com/spinhall/roulette/internal/domain"
	"github.com/spinhall/roulette/internal/ledger"
	"github.com/spinhall/roulette/internal/repository"
	"github.com/spinhall/roulette/internal/rng"
	"github.com/spinhall/roulette/internal/stream"
)

// Config is the closed set of round engine parameters.
type Config struct {
	BettingDuration  time.Duration
	SpinningDuration time.Duration
	ResultsDuration  time.Duration
	MinStake         int64
	MaxStake         int64
	// StallRetryInterval is the pause between settlement retries after the
	// ledger's own bounded backoff is exhausted.
	StallRetryInterval time.Duration
}

type command int

const cmdSpin command = iota

// Engine is the round scheduler. Construct with New, then call Run on a
// dedicated goroutine; it runs until the context is cancelled and completes
// the current round through results before returning.
type Engine struct {
	cfg    Config
	ledger *ledger.Engine
	audit  repository.AuditStore
	hub    *stream.Hub
	source *rng.Source
	clock  Clock
	logger *slog.Logger

	// draw is the outcome function, injectable for failure testing.
	draw func(serverSeedHex, clientSeed string, nonce uint64) (int, error)

	// guards the fields below against concurrent readers (bet submissions,
	// snapshots). The worker is the only writer.
	mu sync.Mutex

	round       *domain.Round
	book        *betbook.Book
	commitment  rng.Commitment
	pendingSeed string
	spinDone    bool // a spin trigger already consumed this round
	stalled     bool
	settlements []domain.BetSettlement // current round, set at results entry

	cmds chan command
}

// New creates a scheduler engine.
func New(cfg Config, lg *ledger.Engine, audit repository.AuditStore, hub *stream.Hub, source *rng.Source, clock Clock, logger *slog.Logger) *Engine {
	if cfg.StallRetryInterval <= 0 {
		cfg.StallRetryInterval = 5 * time.Second
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{
		cfg:    cfg,
		ledger: lg,
		audit:  audit,
		hub:    hub,
		source: source,
		clock:  clock,
		logger: logger,
		draw:   rng.Draw,
		cmds:   make(chan command, 1),
	}
}

// Run executes the state machine until ctx is cancelled. The round counter is
// restored from the audit store, so round numbers stay gap-free across
// restarts.
func (e *Engine) Run(ctx context.Context) error {
	last, err := e.audit.LastRoundNumber(ctx)
	if err != nil {
		return fmt.Errorf("restore round counter: %w", err)
	}
	next := last + 1

	for {
		if err := e.openRound(next); err != nil {
			// Entropy exhaustion is the only cause; wait and retry rather
			// than spinning a round without a commitment.
			e.logger.Error("open round failed", "round", next, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-e.clock.NewTimer(time.Second).C():
			}
			continue
		}

		terminated := e.runRound(ctx)
		if !terminated {
			// Shutdown requested mid-round: finish through results, then exit.
			e.completeForShutdown()
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		next = e.round.Number + 1
	}
}

// --- worker-side phase transitions ---

func (e *Engine) openRound(number uint64) error {
	commitment, err := e.source.NewCommitment()
	if err != nil {
		return fmt.Errorf("new commitment: %w", err)
	}

	now := e.clock.Now()

	e.mu.Lock()
	clientSeed := e.pendingSeed
	if clientSeed == "" {
		clientSeed = rng.DefaultClientSeed
	}
	e.pendingSeed = ""
	e.commitment = commitment
	e.round = &domain.Round{
		Number:     number,
		Phase:      domain.PhaseBetting,
		Commitment: commitment.Hash,
		ClientSeed: clientSeed,
		Nonce:      number,
		StartedAt:  now,
		EndsAt:     now.Add(e.cfg.BettingDuration),
	}
	e.book = betbook.New(number, e.cfg.MinStake, e.cfg.MaxStake, e.clock.Now)
	e.spinDone = false
	e.stalled = false
	e.settlements = nil
	e.mu.Unlock()

	// Drain a spin command left over from the previous round.
	select {
	case <-e.cmds:
	default:
	}

	e.logger.Info("round started", "round", number, "commitment", commitment.Hash)
	e.hub.Publish(domain.NewEvent(domain.EventRoundStarted, number, domain.RoundStartedData{
		RoundNumber:     number,
		Phase:           domain.PhaseBetting,
		Commitment:      commitment.Hash,
		Nonce:           number,
		StartedAt:       now.Format(time.RFC3339),
		EndsAt:          now.Add(e.cfg.BettingDuration).Format(time.RFC3339),
		BettingDuration: int(e.cfg.BettingDuration / time.Second),
	}))
	return nil
}

// runRound drives one round from betting through ended. Returns false when
// the context was cancelled before the round terminated.
func (e *Engine) runRound(ctx context.Context) bool {
	// BETTING: ends on timer expiry or the first spin trigger.
	timer := e.clock.NewTimer(e.cfg.BettingDuration)
	select {
	case <-ctx.Done():
		timer.Stop()
		return false
	case <-timer.C():
	case <-e.cmds:
		timer.Stop()
	}

	aborted := !e.enterSpinning()
	if aborted {
		e.abortRound(ctx)
		return ctx.Err() == nil
	}

	// SPINNING: fixed visual duration; clients animate to the published index.
	timer = e.clock.NewTimer(e.cfg.SpinningDuration)
	select {
	case <-ctx.Done():
		timer.Stop()
		return false
	case <-timer.C():
	}

	if !e.enterResults(ctx) {
		return false
	}

	// RESULTS: reveal window, then the round ends and the next one opens.
	timer = e.clock.NewTimer(e.cfg.ResultsDuration)
	select {
	case <-ctx.Done():
		timer.Stop()
		// Settlement is already durable; the round has reached results.
		e.endRound()
		return true
	case <-timer.C():
	}

	e.endRound()
	return true
}

// enterSpinning freezes the book and draws the outcome. Returns false on
// draw failure, which aborts the round. The freeze happens-before the draw.
func (e *Engine) enterSpinning() bool {
	e.book.Freeze()

	e.mu.Lock()
	round := e.round
	serverSeed := e.commitment.ServerSeed
	clientSeed := round.ClientSeed
	nonce := round.Nonce
	e.mu.Unlock()

	outcome, err := e.draw(serverSeed, clientSeed, nonce)
	if err != nil {
		e.logger.Error("outcome draw failed", "round", round.Number, "error", err)
		return false
	}
	color := domain.ColorOf(outcome)
	now := e.clock.Now()

	e.mu.Lock()
	round.Phase = domain.PhaseSpinning
	round.OutcomeNumber = &outcome
	round.OutcomeColor = &color
	round.DrawnAt = &now
	round.StartedAt = now
	round.EndsAt = now.Add(e.cfg.SpinningDuration)
	e.mu.Unlock()

	e.logger.Info("round spinning", "round", round.Number, "outcome", outcome, "color", color)
	e.hub.Publish(domain.NewEvent(domain.EventPhaseChanged, round.Number, domain.PhaseChangedData{
		RoundNumber:   round.Number,
		Phase:         domain.PhaseSpinning,
		OutcomeNumber: &outcome,
		OutcomeColor:  &color,
		TimeRemaining: e.cfg.SpinningDuration.Seconds(),
	}))
	return true
}

// enterResults reveals the seed, settles the book, credits winners and writes
// the audit record. On persistent ledger failure the round stalls: the engine
// publishes round_stalled and keeps retrying without advancing. Returns false
// only when cancelled while stalled.
func (e *Engine) enterResults(ctx context.Context) bool {
	e.mu.Lock()
	round := e.round
	book := e.book
	serverSeed := e.commitment.ServerSeed
	e.mu.Unlock()

	settlements, err := book.Settle(*round.OutcomeNumber)
	if err != nil {
		// Unreachable: the book froze at spinning entry.
		e.logger.Error("settle failed", "round", round.Number, "error", err)
		return false
	}

	var credits []domain.BatchEntry
	for _, s := range settlements {
		if s.State != domain.SettlementWon {
			continue
		}
		credits = append(credits, domain.BatchEntry{
			Key:         s.TxnKey,
			PlayerID:    s.PlayerID,
			Delta:       s.Payout,
			Reason:      domain.TxnPayout,
			RoundNumber: round.Number,
		})
	}

	// Credits are submitted exactly once as a batch; per-bet keys make
	// retries after partial failure safe.
	if !e.applyUntilSettled(ctx, round.Number, credits) {
		return false
	}

	now := e.clock.Now()
	e.mu.Lock()
	round.Phase = domain.PhaseResults
	round.ServerSeed = &serverSeed
	round.StartedAt = now
	round.EndsAt = now.Add(e.cfg.ResultsDuration)
	e.settlements = settlements
	e.stalled = false
	e.mu.Unlock()

	e.writeAudit(ctx, round, book, settlements, domain.RoundSettled)

	e.logger.Info("round results", "round", round.Number,
		"outcome", *round.OutcomeNumber, "bets", len(settlements), "credits", len(credits))
	e.hub.Publish(domain.NewEvent(domain.EventRoundResults, round.Number, domain.RoundResultsData{
		RoundNumber:   round.Number,
		OutcomeNumber: *round.OutcomeNumber,
		OutcomeColor:  *round.OutcomeColor,
		ServerSeed:    serverSeed,
		Settlements:   settlements,
	}))
	return true
}

// applyUntilSettled applies the credit batch, entering the stalled state on
// persistent failure and retrying until success or cancellation.
func (e *Engine) applyUntilSettled(ctx context.Context, roundNumber uint64, credits []domain.BatchEntry) bool {
	for {
		_, err := e.ledger.BatchApply(ctx, credits)
		if err == nil {
			return true
		}

		e.logger.Error("settlement batch failed, round stalled", "round", roundNumber, "error", err)
		e.mu.Lock()
		firstStall := !e.stalled
		e.stalled = true
		e.mu.Unlock()
		if firstStall {
			e.hub.Publish(domain.NewEvent(domain.EventRoundStalled, roundNumber, domain.RoundTerminalData{
				RoundNumber: roundNumber,
				Reason:      "LEDGER_UNAVAILABLE",
			}))
		}

		timer := e.clock.NewTimer(e.cfg.StallRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			// Keep trying once more with a background deadline so shutdown
			// does not strand won bets; then give up to the operator.
			bg, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_, err := e.ledger.BatchApply(bg, credits)
			cancel()
			if err != nil {
				e.logger.Error("settlement unresolved at shutdown", "round", roundNumber, "error", err)
				return false
			}
			return true
		case <-timer.C():
		}
	}
}

func (e *Engine) endRound() {
	e.mu.Lock()
	round := e.round
	round.Phase = domain.PhaseEnded
	e.mu.Unlock()

	e.hub.Publish(domain.NewEvent(domain.EventRoundEnded, round.Number, domain.RoundTerminalData{
		RoundNumber: round.Number,
	}))
}

// abortRound refunds every accepted bet and records the round as aborted.
// The outcome was never drawn, so no payout can exist.
func (e *Engine) abortRound(ctx context.Context) {
	e.mu.Lock()
	round := e.round
	book := e.book
	e.mu.Unlock()

	refunds := book.RefundEntries()
	if !e.applyUntilSettled(ctx, round.Number, refunds) {
		return
	}

	e.writeAudit(ctx, round, book, nil, domain.RoundAborted)

	e.logger.Warn("round aborted", "round", round.Number, "refunds", len(refunds))
	e.hub.Publish(domain.NewEvent(domain.EventRoundAborted, round.Number, domain.RoundTerminalData{
		RoundNumber: round.Number,
		Reason:      "RNG_FAILURE",
	}))
}

func (e *Engine) writeAudit(ctx context.Context, round *domain.Round, book *betbook.Book, settlements []domain.BetSettlement, status domain.RoundStatus) {
	var paidOut int64
	for _, s := range settlements {
		paidOut += s.Payout
	}

	rec := &domain.AuditRecord{
		RoundNumber:   round.Number,
		Commitment:    round.Commitment,
		ServerSeed:    e.commitment.ServerSeed,
		ClientSeed:    round.ClientSeed,
		Nonce:         round.Nonce,
		OutcomeNumber: round.OutcomeNumber,
		OutcomeColor:  round.OutcomeColor,
		DrawnAt:       round.DrawnAt,
		TotalStaked:   book.TotalStaked(),
		TotalPaidOut:  paidOut,
		Bets:          book.Bets(),
		Settlements:   settlements,
		Status:        status,
	}
	if err := e.audit.InsertRound(ctx, rec); err != nil {
		// The ledger is already consistent; losing the audit row is operator
		// visible but must not stall play.
		e.logger.Error("audit insert failed", "round", round.Number, "error", err)
	}
}

// completeForShutdown finishes the current round through results when
// shutdown interrupts betting or spinning.
func (e *Engine) completeForShutdown() {
	e.mu.Lock()
	phase := e.round.Phase
	e.mu.Unlock()

	switch phase {
	case domain.PhaseBetting:
		if !e.enterSpinning() {
			e.abortRound(context.Background())
			return
		}
		fallthrough
	case domain.PhaseSpinning:
		e.enterResults(context.Background())
	}
	e.logger.Info("scheduler stopped", "round", e.round.Number, "phase", e.round.Phase)
}

// --- caller-side operations (any goroutine) ---

// PlaceBet validates, debits and records a bet for the current round. The
// sequence is reserved before the debit and the record inserted after it, so
// a frozen book never holds an undebited bet; if the freeze lands between
// debit and insert the stake is auto-refunded.
func (e *Engine) PlaceBet(ctx context.Context, playerID string, roundNumber uint64, kind domain.BetKind, selection string, stake int64) (*domain.Bet, int64, error) {
	// Phase and round are worker-written under e.mu, so admission checks stay
	// inside the critical section. A transition racing past the unlock is
	// still caught by the book's freeze gate below.
	e.mu.Lock()
	round := e.round
	book := e.book
	if round == nil || book == nil {
		e.mu.Unlock()
		return nil, 0, domain.ErrInternal("round engine not started", nil)
	}
	if roundNumber != round.Number {
		e.mu.Unlock()
		return nil, 0, domain.ErrUnknownRound(roundNumber)
	}
	if round.Phase != domain.PhaseBetting {
		e.mu.Unlock()
		return nil, 0, domain.ErrBettingClosed()
	}
	number := round.Number
	e.mu.Unlock()

	res, err := book.Reserve(playerID, kind, selection, stake)
	if err != nil {
		return nil, 0, err
	}

	debit, _, err := e.ledger.Apply(ctx, domain.BatchEntry{
		Key:         res.DebitKey,
		PlayerID:    playerID,
		Delta:       -stake,
		Reason:      domain.TxnBet,
		RoundNumber: number,
	})
	if err != nil {
		return nil, 0, err
	}

	bet, err := book.Commit(res)
	if err != nil {
		// Book froze after the debit landed: reverse it.
		refundKey := domain.TxnKey(string(res.DebitKey) + ":refund")
		if _, _, rerr := e.ledger.Apply(ctx, domain.BatchEntry{
			Key:         refundKey,
			PlayerID:    playerID,
			Delta:       stake,
			Reason:      domain.TxnRefund,
			RoundNumber: number,
		}); rerr != nil {
			e.logger.Error("late-bet refund failed", "key", refundKey, "error", rerr)
		}
		return nil, 0, err
	}

	return bet, debit.BalanceAfter, nil
}

// TriggerSpin requests an early end to the betting phase. The first trigger
// wins; subsequent triggers in the same round succeed without side effect.
func (e *Engine) TriggerSpin() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round == nil || e.round.Phase != domain.PhaseBetting {
		return domain.ErrBettingClosed()
	}
	if e.spinDone {
		return nil
	}
	e.spinDone = true

	select {
	case e.cmds <- cmdSpin:
	default:
	}
	return nil
}

// SetClientSeed stores a player-supplied client seed for the next round.
// Seeds cannot change once betting for a round has started, so the pending
// value is snapshotted when the round opens.
func (e *Engine) SetClientSeed(seed string) (uint64, error) {
	if err := domain.ValidateClientSeed(seed); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.round == nil {
		return 0, domain.ErrInternal("round engine not started", nil)
	}
	e.pendingSeed = seed
	return e.round.Number + 1, nil
}

// Snapshot returns the client-facing view of the current round.
func (e *Engine) Snapshot() domain.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round == nil {
		return domain.Snapshot{Phase: domain.PhaseEnded}
	}
	r := e.round
	remaining := r.EndsAt.Sub(e.clock.Now()).Seconds()
	if remaining < 0 {
		remaining = 0
	}
	return domain.Snapshot{
		RoundNumber:     r.Number,
		Phase:           r.Phase,
		Commitment:      r.Commitment,
		StartedAt:       r.StartedAt.Format(time.RFC3339),
		EndsAt:          r.EndsAt.Format(time.RFC3339),
		BettingDuration: int(e.cfg.BettingDuration / time.Second),
		TimeRemaining:   remaining,
		OutcomeNumber:   r.OutcomeNumber,
		OutcomeColor:    r.OutcomeColor,
		ServerSeed:      r.ServerSeed,
	}
}

// SnapshotEvent wraps the snapshot as the round_current stream event.
func (e *Engine) SnapshotEvent() domain.Event {
	snap := e.Snapshot()
	return domain.NewEvent(domain.EventRoundCurrent, snap.RoundNumber, snap)
}

// RoundResults is the per-player settlement view of a round.
type RoundResults struct {
	RoundNumber   uint64                 `json:"round_number"`
	OutcomeNumber *int                   `json:"outcome_number"`
	OutcomeColor  *domain.Color          `json:"outcome_color"`
	ServerSeed    *string                `json:"server_seed_revealed"`
	Settlements   []domain.BetSettlement `json:"settlements"`
}

// Results returns the caller's settlements for a round. Empty until the
// round reaches results; terminated rounds are served from the audit log.
func (e *Engine) Results(ctx context.Context, roundNumber uint64, playerID string) (*RoundResults, error) {
	e.mu.Lock()
	current := e.round
	var currentSettlements []domain.BetSettlement
	if current != nil && current.Number == roundNumber {
		if current.Phase != domain.PhaseResults && current.Phase != domain.PhaseEnded {
			e.mu.Unlock()
			return &RoundResults{RoundNumber: roundNumber}, nil
		}
		currentSettlements = e.settlements
		out := &RoundResults{
			RoundNumber:   roundNumber,
			OutcomeNumber: current.OutcomeNumber,
			OutcomeColor:  current.OutcomeColor,
			ServerSeed:    current.ServerSeed,
			Settlements:   filterByPlayer(currentSettlements, playerID),
		}
		e.mu.Unlock()
		return out, nil
	}
	e.mu.Unlock()

	rec, err := e.audit.FindRound(ctx, roundNumber)
	if err != nil {
		return nil, domain.ErrInternal("load round audit", err)
	}
	if rec == nil {
		return &RoundResults{RoundNumber: roundNumber}, nil
	}
	seed := rec.ServerSeed
	return &RoundResults{
		RoundNumber:   roundNumber,
		OutcomeNumber: rec.OutcomeNumber,
		OutcomeColor:  rec.OutcomeColor,
		ServerSeed:    &seed,
		Settlements:   filterByPlayer(rec.Settlements, playerID),
	}, nil
}

// Stalled reports whether settlement is currently blocked on the ledger.
func (e *Engine) Stalled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stalled
}

func filterByPlayer(settlements []domain.BetSettlement, playerID string) []domain.BetSettlement {
	out := make([]domain.BetSettlement, 0, len(settlements))
	for _, s := range settlements {
		if s.PlayerID == playerID {
			out = append(out, s)
		}
	}
	return out
}

// SetDrawFunc overrides the outcome function. Test hook.
func (e *Engine) SetDrawFunc(fn func(serverSeedHex, clientSeed string, nonce uint64) (int, error)) {
	e.draw = fn
}

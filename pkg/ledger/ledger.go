// Package ledger defines the bet record and its lifecycle. A bet is created
// PENDING at placement, transitions exactly once to a terminal status with a
// final PnL when the fixture result is known, and is marked learned exactly
// once after the outcome has been fed back into the predictor.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oddsbreaker/engine/pkg/match"
)

// Status is the bet lifecycle state.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusWon     Status = "WON"
	StatusLost    Status = "LOST"
	StatusVoid    Status = "VOID"
)

// Terminal reports whether the status ends the bet lifecycle.
func (s Status) Terminal() bool {
	return s == StatusWon || s == StatusLost || s == StatusVoid
}

var (
	// ErrAlreadyResolved reports a second resolution attempt.
	ErrAlreadyResolved = errors.New("ledger: bet already resolved")
	// ErrAlreadyLearned reports a second learn-marking attempt.
	ErrAlreadyLearned = errors.New("ledger: bet already learned")
	// ErrInvalidBet reports a malformed bet at placement.
	ErrInvalidBet = errors.New("ledger: invalid bet")
)

// Bet is a single placed wager on one 1X2 outcome.
type Bet struct {
	ID            string          `json:"id"`
	FixtureID     string          `json:"fixture_id"`
	Selection     match.Outcome   `json:"selection"`
	Odds          float64         `json:"odds"`
	Stake         decimal.Decimal `json:"stake"`
	ExpectedValue float64         `json:"expected_value"`
	Status        Status          `json:"status"`
	PnL           decimal.Decimal `json:"pnl"`
	PlacedAt      time.Time       `json:"placed_at"`
	Learned       bool            `json:"learned"`
}

// New creates a PENDING bet with zero PnL.
func New(fixtureID string, selection match.Outcome, odds float64, stake decimal.Decimal, ev float64) (*Bet, error) {
	if fixtureID == "" {
		return nil, fmt.Errorf("%w: missing fixture id", ErrInvalidBet)
	}
	if selection.Index() < 0 {
		return nil, fmt.Errorf("%w: unknown selection %q", ErrInvalidBet, selection)
	}
	if odds <= 1 {
		return nil, fmt.Errorf("%w: decimal odds must be > 1, got %v", ErrInvalidBet, odds)
	}
	if stake.IsNegative() {
		return nil, fmt.Errorf("%w: negative stake %s", ErrInvalidBet, stake)
	}
	return &Bet{
		ID:            uuid.New().String(),
		FixtureID:     fixtureID,
		Selection:     selection,
		Odds:          odds,
		Stake:         stake,
		ExpectedValue: ev,
		Status:        StatusPending,
		PnL:           decimal.Zero,
		PlacedAt:      time.Now().UTC(),
	}, nil
}

// Resolve settles the bet against the fixture result: stake*(odds-1) on a
// win, -stake on a loss. Resolution happens exactly once.
func (b *Bet) Resolve(result match.Outcome) error {
	if b.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, b.ID, b.Status)
	}
	if result == b.Selection {
		b.Status = StatusWon
		b.PnL = b.Stake.Mul(decimal.NewFromFloat(b.Odds - 1)).Round(2)
	} else {
		b.Status = StatusLost
		b.PnL = b.Stake.Neg()
	}
	return nil
}

// Void cancels the bet with zero PnL (abandoned fixture and the like).
func (b *Bet) Void() error {
	if b.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, b.ID, b.Status)
	}
	b.Status = StatusVoid
	b.PnL = decimal.Zero
	return nil
}

// MarkLearned flips the learned flag exactly once, after the outcome has
// been fed back into the predictor.
func (b *Bet) MarkLearned() error {
	if b.Learned {
		return fmt.Errorf("%w: %s", ErrAlreadyLearned, b.ID)
	}
	if !b.Status.Terminal() {
		return fmt.Errorf("ledger: cannot learn from unresolved bet %s", b.ID)
	}
	b.Learned = true
	return nil
}

// Package bankroll sizes stakes with the Kelly criterion under fractional
// dampening and a hard per-bet exposure cap.
package bankroll

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Defaults: half-Kelly for variance control, 5% of bankroll cap per bet.
const (
	DefaultKellyMultiplier = 0.5
	DefaultMaxStakePct     = 0.05
)

// StakeRecommendation is a freshly computed stake for one bet.
// Invariant: 0 <= Fraction <= the configured max stake percentage.
type StakeRecommendation struct {
	Fraction float64         `json:"fraction_of_bankroll"`
	Amount   decimal.Decimal `json:"amount"`
	RawKelly float64         `json:"raw_kelly_fraction"`
}

// KellyFraction computes the raw Kelly fraction f* = (b*p - q) / b with
// b = odds - 1. Odds at or below 1 are a degenerate non-bet and return 0
// rather than an error; a negative fraction means no edge.
func KellyFraction(odds, winProb float64) float64 {
	if odds <= 1 {
		return 0
	}
	b := odds - 1
	return (b*winProb - (1 - winProb)) / b
}

// Stake applies the fractional-Kelly dampener and clamps to
// [0, maxStakePct]. The result is never negative: no edge means no bet.
func Stake(odds, winProb, kellyMultiplier, maxStakePct float64) (fraction, rawKelly float64) {
	rawKelly = KellyFraction(odds, winProb)
	fraction = rawKelly * kellyMultiplier
	if fraction < 0 {
		fraction = 0
	}
	if fraction > maxStakePct {
		fraction = maxStakePct
	}
	return fraction, rawKelly
}

// Manager tracks a running bankroll and produces Kelly stake recommendations
// against it.
type Manager struct {
	mu              sync.Mutex
	bankroll        decimal.Decimal
	kellyMultiplier float64
	maxStakePct     float64
}

// NewManager creates a manager. Non-positive multiplier or cap fall back to
// the defaults.
func NewManager(initial decimal.Decimal, kellyMultiplier, maxStakePct float64) *Manager {
	if kellyMultiplier <= 0 || kellyMultiplier > 1 {
		kellyMultiplier = DefaultKellyMultiplier
	}
	if maxStakePct <= 0 || maxStakePct > 1 {
		maxStakePct = DefaultMaxStakePct
	}
	return &Manager{
		bankroll:        initial,
		kellyMultiplier: kellyMultiplier,
		maxStakePct:     maxStakePct,
	}
}

// KellyStake sizes a bet against the current bankroll.
func (m *Manager) KellyStake(odds, winProb float64) StakeRecommendation {
	m.mu.Lock()
	defer m.mu.Unlock()

	fraction, raw := Stake(odds, winProb, m.kellyMultiplier, m.maxStakePct)
	return StakeRecommendation{
		Fraction: fraction,
		Amount:   m.bankroll.Mul(decimal.NewFromFloat(fraction)).Round(2),
		RawKelly: raw,
	}
}

// ApplyPnL settles a resolved bet against the bankroll.
func (m *Manager) ApplyPnL(pnl decimal.Decimal) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bankroll = m.bankroll.Add(pnl)
	return m.bankroll
}

// Bankroll returns the current bankroll.
func (m *Manager) Bankroll() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bankroll
}

// Package valuedetect compares model probabilities against market odds,
// computes expected value, and classifies each outcome into an actionable
// market status.
package valuedetect

import (
	"errors"
	"fmt"
	"math"

	"github.com/oddsbreaker/engine/pkg/match"
)

// MarketStatus classifies a model-vs-market pair.
type MarketStatus string

const (
	// StatusNormal: no actionable discrepancy.
	StatusNormal MarketStatus = "NORMAL"
	// StatusValue: standard positive-EV bet.
	StatusValue MarketStatus = "VALUE"
	// StatusGoldGlitch: large, well-supported mispricing (market failure).
	StatusGoldGlitch MarketStatus = "GOLD_GLITCH"
	// StatusRedTrap: the market prices near-certainty the model's own
	// confidence does not justify at the quoted payout. Signals avoid, not bet.
	StatusRedTrap MarketStatus = "RED_TRAP"
)

// ErrInvalidInput reports out-of-domain probability or odds inputs.
var ErrInvalidInput = errors.New("valuedetect: invalid input")

// Assessment is the per-outcome verdict.
type Assessment struct {
	Outcome       match.Outcome `json:"outcome"`
	ModelProb     float64       `json:"model_prob"`
	MarketOdds    float64       `json:"market_odds"`
	ImpliedProb   float64       `json:"implied_prob"`
	ExpectedValue float64       `json:"expected_value"`
	IsValue       bool          `json:"is_value"`
	Status        MarketStatus  `json:"market_status"`
}

// Config holds the classification thresholds. They are policy constants, not
// structural: tune them freely, but the trap check always runs before the
// gold and value checks so boundary ties favor safety.
type Config struct {
	ValueEV float64 // minimum EV for a standard value bet

	GoldEV   float64 // minimum EV for a market failure
	GoldProb float64 // minimum model probability backing it

	TrapProb float64 // model probability above which a favorite can be a trap
	TrapOdds float64 // odds below which the payout is suspect
	TrapEV   float64 // EV below which the price is outright bad
}

// DefaultConfig returns the calibrated production thresholds.
func DefaultConfig() Config {
	return Config{
		ValueEV:  0.05,
		GoldEV:   0.20,
		GoldProb: 0.40,
		TrapProb: 0.65,
		TrapOdds: 1.25,
		TrapEV:   -0.10,
	}
}

// Detector classifies model-probability-vs-market-odds pairs.
type Detector struct {
	cfg Config
}

// New creates a detector; a zero Config falls back to the defaults.
func New(cfg Config) *Detector {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Detector{cfg: cfg}
}

// ExpectedValue is the core edge formula: p*odds - 1. Positive EV implies a
// statistically favorable bet over infinite repetition.
func ExpectedValue(modelProb, odds float64) float64 {
	return modelProb*odds - 1
}

// Margin returns the bookmaker's overround: (1/h + 1/d + 1/a) - 1.
func Margin(odds match.Odds) (float64, error) {
	if !odds.Complete() {
		return 0, fmt.Errorf("%w: margin needs all three quotes", ErrInvalidInput)
	}
	return 1/odds.Home + 1/odds.Draw + 1/odds.Away - 1, nil
}

// ImpliedProbability converts decimal odds to the fair implied probability,
// with the bookmaker margin removed proportionally.
func ImpliedProbability(odds, margin float64) float64 {
	if odds <= 1 {
		return 0
	}
	return (1 / odds) / (1 + margin)
}

// Analyze classifies a single outcome. Classification priority is fixed:
// trap first, then gold, then value, then normal.
func (d *Detector) Analyze(outcome match.Outcome, modelProb, marketOdds float64) (Assessment, error) {
	if modelProb < 0 || modelProb > 1 || math.IsNaN(modelProb) {
		return Assessment{}, fmt.Errorf("%w: model probability %v outside [0,1]", ErrInvalidInput, modelProb)
	}
	if marketOdds <= 1 || math.IsNaN(marketOdds) || math.IsInf(marketOdds, 0) {
		return Assessment{}, fmt.Errorf("%w: decimal odds must be > 1, got %v", ErrInvalidInput, marketOdds)
	}

	ev := ExpectedValue(modelProb, marketOdds)
	a := Assessment{
		Outcome:       outcome,
		ModelProb:     modelProb,
		MarketOdds:    marketOdds,
		ImpliedProb:   1 / marketOdds,
		ExpectedValue: ev,
		IsValue:       ev > d.cfg.ValueEV,
		Status:        StatusNormal,
	}

	switch {
	case modelProb > d.cfg.TrapProb && marketOdds < d.cfg.TrapOdds && ev < d.cfg.TrapEV:
		a.Status = StatusRedTrap
		a.IsValue = false
	case ev > d.cfg.GoldEV && modelProb > d.cfg.GoldProb:
		a.Status = StatusGoldGlitch
	case ev > d.cfg.ValueEV:
		a.Status = StatusValue
	}
	return a, nil
}

// DetectEdge assesses every quoted 1X2 outcome. Outcomes without a usable
// quote are absent from the result: no data means no opinion, not zero.
func (d *Detector) DetectEdge(probs match.Probabilities, odds match.Odds) (map[match.Outcome]Assessment, error) {
	if err := probs.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	out := make(map[match.Outcome]Assessment, 3)
	for _, o := range match.Outcomes() {
		quote, ok := odds.For(o)
		if !ok {
			continue
		}
		a, err := d.Analyze(o, probs.For(o), quote)
		if err != nil {
			return nil, err
		}
		out[o] = a
	}
	return out, nil
}

// Package match defines the shared domain types for the 1X2 football market:
// outcomes, probability triples, decimal market odds, and fixture records.
package match

import (
	"fmt"
	"math"
	"time"
)

// Outcome identifies one leg of the three-way match-result market.
type Outcome string

const (
	OutcomeHome Outcome = "1"
	OutcomeDraw Outcome = "X"
	OutcomeAway Outcome = "2"
)

// Outcomes returns the three 1X2 outcomes in canonical order.
func Outcomes() [3]Outcome {
	return [3]Outcome{OutcomeHome, OutcomeDraw, OutcomeAway}
}

// Index returns the training target index for the outcome
// (0=home, 1=draw, 2=away), or -1 for an unknown outcome.
func (o Outcome) Index() int {
	switch o {
	case OutcomeHome:
		return 0
	case OutcomeDraw:
		return 1
	case OutcomeAway:
		return 2
	default:
		return -1
	}
}

// OutcomeFromIndex is the inverse of Index.
func OutcomeFromIndex(i int) (Outcome, error) {
	switch i {
	case 0:
		return OutcomeHome, nil
	case 1:
		return OutcomeDraw, nil
	case 2:
		return OutcomeAway, nil
	default:
		return "", fmt.Errorf("outcome index out of range: %d", i)
	}
}

// ResultFromScore maps a final score to its 1X2 outcome.
func ResultFromScore(homeGoals, awayGoals int) Outcome {
	switch {
	case homeGoals > awayGoals:
		return OutcomeHome
	case homeGoals < awayGoals:
		return OutcomeAway
	default:
		return OutcomeDraw
	}
}

// ProbabilityTolerance is the accepted deviation of a probability triple
// from summing to exactly 1.
const ProbabilityTolerance = 1e-6

// Probabilities is a 1X2 outcome probability triple.
// Invariant: each component in [0,1] and Home+Draw+Away ~= 1.
type Probabilities struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

// For returns the probability assigned to the given outcome.
func (p Probabilities) For(o Outcome) float64 {
	switch o {
	case OutcomeHome:
		return p.Home
	case OutcomeDraw:
		return p.Draw
	default:
		return p.Away
	}
}

// Slice returns the triple in target-index order.
func (p Probabilities) Slice() [3]float64 {
	return [3]float64{p.Home, p.Draw, p.Away}
}

// Sum returns Home+Draw+Away.
func (p Probabilities) Sum() float64 {
	return p.Home + p.Draw + p.Away
}

// Validate checks the probability invariants. A triple that fails here is a
// logic error in the producer and must be surfaced, never silently used.
func (p Probabilities) Validate() error {
	for _, v := range p.Slice() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("probability is not finite: %v", v)
		}
		if v < -ProbabilityTolerance || v > 1+ProbabilityTolerance {
			return fmt.Errorf("probability out of [0,1]: %v", v)
		}
	}
	if d := math.Abs(p.Sum() - 1); d > ProbabilityTolerance {
		return fmt.Errorf("probabilities sum to %v, want 1 within %v", p.Sum(), ProbabilityTolerance)
	}
	return nil
}

// Odds holds decimal 1X2 market odds. A component <= 1 means the market is
// not quoted for that outcome: absent data is distinguishable from a computed
// value and must be skipped, not treated as zero probability.
type Odds struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

// For returns the decimal odds quoted for an outcome and whether the market
// carries a usable quote for it.
func (o Odds) For(out Outcome) (float64, bool) {
	var v float64
	switch out {
	case OutcomeHome:
		v = o.Home
	case OutcomeDraw:
		v = o.Draw
	default:
		v = o.Away
	}
	if v <= 1 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Complete reports whether all three outcomes are quoted.
func (o Odds) Complete() bool {
	for _, out := range Outcomes() {
		if _, ok := o.For(out); !ok {
			return false
		}
	}
	return true
}

// Fixture is a single scheduled match as supplied by the data-acquisition
// collaborator. Team names are opaque labels for reporting only; they are
// never model features.
type Fixture struct {
	ID       string    `json:"id"`
	League   string    `json:"league"`
	HomeTeam string    `json:"home_team"`
	AwayTeam string    `json:"away_team"`
	Kickoff  time.Time `json:"kickoff"`
	Odds     Odds      `json:"odds"`
}

// Resolved is a fixture with its recorded final score.
type Resolved struct {
	Fixture
	HomeGoals int     `json:"home_goals"`
	AwayGoals int     `json:"away_goals"`
	Result    Outcome `json:"result"`
}

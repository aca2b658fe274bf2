// Package feature builds the anonymized fixed-width feature encoding consumed
// by the predictor. The vector deliberately carries no team identity, directly
// or through lookups: the model sees numbers only, so it cannot learn
// reputation bias toward big clubs.
package feature

import (
	"errors"
	"fmt"
	"math"
)

// Size is the fixed width of a feature vector.
const Size = 14

// Slot indices into a Vector, in wire order.
const (
	HomeAttack = iota
	AwayAttack
	HomeDefense
	AwayDefense
	HomeForm
	AwayForm
	HomeFatigue
	AwayFatigue
	HomeMotivation
	AwayMotivation
	HomeRest
	AwayRest
	WindFactor
	RainFactor
)

// ColumnNames are the canonical slot names in wire order. The CSV history
// loader and the features table both key on these.
var ColumnNames = [Size]string{
	"home_attack", "away_attack",
	"home_defense", "away_defense",
	"home_form", "away_form",
	"home_fatigue", "away_fatigue",
	"home_motivation", "away_motivation",
	"home_rest", "away_rest",
	"wind_factor", "rain_factor",
}

// unitSlots are the slots constrained to [0,1].
var unitSlots = [...]int{
	HomeFatigue, AwayFatigue,
	HomeMotivation, AwayMotivation,
	HomeRest, AwayRest,
	WindFactor, RainFactor,
}

// ErrInvalidVector reports a malformed feature vector. A silently-wrong
// vector would poison a training step, so validation never coerces.
var ErrInvalidVector = errors.New("feature: invalid vector")

// Vector is an immutable 14-wide anonymized fixture encoding. It is a value
// type: constructed fresh per prediction or training call, never mutated.
type Vector [Size]float64

// Validate rejects non-finite components and out-of-range unit slots.
func (v Vector) Validate() error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: slot %d is not finite", ErrInvalidVector, i)
		}
	}
	for _, i := range unitSlots {
		if v[i] < 0 || v[i] > 1 {
			return fmt.Errorf("%w: slot %d = %v outside [0,1]", ErrInvalidVector, i, v[i])
		}
	}
	return nil
}

// RawStats are the per-fixture statistics delivered by the upstream data
// collaborator, before boundary normalization. Defaults for missing data are
// applied here, at the ingestion boundary, not inside core logic.
type RawStats struct {
	HomeGoalsScored   float64 // avg goals scored, last 5
	AwayGoalsScored   float64
	HomeGoalsConceded float64 // avg goals conceded, last 5
	AwayGoalsConceded float64
	HomeForm          float64 // points last 5 / 15
	AwayForm          float64
	HomeMinutesLoad   float64 // squad minutes played, last 7 days
	AwayMinutesLoad   float64
	HomeMotivation    float64 // 0-1 (derby, final, relegation)
	AwayMotivation    float64
	HomeDaysRest      float64 // days since last match
	AwayDaysRest      float64
	WindFactor        float64 // 0-1
	RainFactor        float64 // 0-1
}

// Normalization constants for the raw boundary inputs.
const (
	maxMinutesLoad = 900.0 // ~85 min/player over a congested week
	maxDaysRest    = 7.0
)

// Build normalizes raw stats into a validated feature vector. Minutes load is
// scaled by 900 and rest by 7 days, both capped at 1.
func Build(s RawStats) (Vector, error) {
	v := Vector{
		HomeAttack:     s.HomeGoalsScored,
		AwayAttack:     s.AwayGoalsScored,
		HomeDefense:    s.HomeGoalsConceded,
		AwayDefense:    s.AwayGoalsConceded,
		HomeForm:       s.HomeForm,
		AwayForm:       s.AwayForm,
		HomeFatigue:    unitCap(s.HomeMinutesLoad / maxMinutesLoad),
		AwayFatigue:    unitCap(s.AwayMinutesLoad / maxMinutesLoad),
		HomeMotivation: s.HomeMotivation,
		AwayMotivation: s.AwayMotivation,
		HomeRest:       unitCap(s.HomeDaysRest / maxDaysRest),
		AwayRest:       unitCap(s.AwayDaysRest / maxDaysRest),
		WindFactor:     s.WindFactor,
		RainFactor:     s.RainFactor,
	}
	if err := v.Validate(); err != nil {
		return Vector{}, err
	}
	return v, nil
}

// FromSlice converts a raw slice into a validated Vector.
func FromSlice(xs []float64) (Vector, error) {
	if len(xs) != Size {
		return Vector{}, fmt.Errorf("%w: length %d, want %d", ErrInvalidVector, len(xs), Size)
	}
	var v Vector
	copy(v[:], xs)
	if err := v.Validate(); err != nil {
		return Vector{}, err
	}
	return v, nil
}

func unitCap(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

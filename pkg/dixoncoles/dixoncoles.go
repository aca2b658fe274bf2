// Package dixoncoles converts expected-goal rates into scoreline and 1X2
// probabilities using a bi-Poisson model with the Dixon-Coles low-score
// correction, which fixes the independent model's systematic under-prediction
// of low-scoring draws.
package dixoncoles

import (
	"errors"
	"fmt"
	"math"

	"github.com/oddsbreaker/engine/pkg/match"
)

// DefaultMaxGoals bounds the scoreline grid. Mass beyond 10 goals a side is
// negligible at football expected-goal rates.
const DefaultMaxGoals = 10

// ErrInvalidInput reports out-of-domain model inputs.
var ErrInvalidInput = errors.New("dixoncoles: invalid input")

// Tau is the Dixon-Coles adjustment for the four low-score cells.
// Rho is typically negative (around -0.1): fewer low-scoring draws occur than
// independent Poisson predicts.
func Tau(homeGoals, awayGoals int, homeLambda, awayLambda, rho float64) float64 {
	switch {
	case homeGoals == 0 && awayGoals == 0:
		return 1 - homeLambda*awayLambda*rho
	case homeGoals == 0 && awayGoals == 1:
		return 1 + homeLambda*rho
	case homeGoals == 1 && awayGoals == 0:
		return 1 + awayLambda*rho
	case homeGoals == 1 && awayGoals == 1:
		return 1 - rho
	default:
		return 1
	}
}

// PoissonPMF calculates P(X = k) for X ~ Poisson(lambda), in log space for
// numerical stability. A zero lambda degenerates to a point mass at 0.
func PoissonPMF(lambda float64, k int) float64 {
	if k < 0 {
		return 0
	}
	if lambda <= 0 {
		if k == 0 {
			return 1
		}
		return 0
	}
	logProb := float64(k)*math.Log(lambda) - lambda - logFactorial(k)
	return math.Exp(logProb)
}

func logFactorial(n int) float64 {
	if n <= 1 {
		return 0
	}
	sum := 0.0
	for i := 2; i <= n; i++ {
		sum += math.Log(float64(i))
	}
	return sum
}

// ScoreMatrix is a normalized joint scoreline distribution: cell [x][y] holds
// P(home scores x, away scores y).
type ScoreMatrix struct {
	MaxGoals int
	Cells    [][]float64
}

// NewScoreMatrix builds the adjusted joint distribution for the given
// expected-goal rates. Cells driven negative by tau at extreme rho are
// clamped to zero before normalization, so no negative probability leaks out.
func NewScoreMatrix(homeLambda, awayLambda, rho float64, maxGoals int) (*ScoreMatrix, error) {
	if homeLambda < 0 || awayLambda < 0 || math.IsNaN(homeLambda) || math.IsNaN(awayLambda) {
		return nil, fmt.Errorf("%w: expected goals must be >= 0, got home=%v away=%v",
			ErrInvalidInput, homeLambda, awayLambda)
	}
	if rho < -0.5 || rho > 0.5 || math.IsNaN(rho) {
		return nil, fmt.Errorf("%w: rho %v outside [-0.5, 0.5]", ErrInvalidInput, rho)
	}
	if maxGoals <= 0 {
		maxGoals = DefaultMaxGoals
	}

	cells := make([][]float64, maxGoals)
	total := 0.0
	for x := 0; x < maxGoals; x++ {
		cells[x] = make([]float64, maxGoals)
		px := PoissonPMF(homeLambda, x)
		for y := 0; y < maxGoals; y++ {
			p := px * PoissonPMF(awayLambda, y) * Tau(x, y, homeLambda, awayLambda, rho)
			if p < 0 {
				p = 0
			}
			cells[x][y] = p
			total += p
		}
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: degenerate scoreline distribution", ErrInvalidInput)
	}
	for x := range cells {
		for y := range cells[x] {
			cells[x][y] /= total
		}
	}
	return &ScoreMatrix{MaxGoals: maxGoals, Cells: cells}, nil
}

// MatchProbabilities folds the matrix into the 1X2 triple: strictly-lower
// triangle (home scored more) is the home win, the trace is the draw, and the
// strictly-upper triangle is the away win.
func (m *ScoreMatrix) MatchProbabilities() match.Probabilities {
	var p match.Probabilities
	for x := 0; x < m.MaxGoals; x++ {
		for y := 0; y < m.MaxGoals; y++ {
			switch {
			case x > y:
				p.Home += m.Cells[x][y]
			case x == y:
				p.Draw += m.Cells[x][y]
			default:
				p.Away += m.Cells[x][y]
			}
		}
	}
	return p
}

// OverUnder returns the probability of total goals strictly over the
// threshold, and its complement.
func (m *ScoreMatrix) OverUnder(threshold int) (over, under float64) {
	for x := 0; x < m.MaxGoals; x++ {
		for y := 0; y < m.MaxGoals; y++ {
			if x+y > threshold {
				over += m.Cells[x][y]
			} else {
				under += m.Cells[x][y]
			}
		}
	}
	return over, under
}

// BothTeamsToScore returns P(both score) and its complement.
func (m *ScoreMatrix) BothTeamsToScore() (both, notBoth float64) {
	for x := 0; x < m.MaxGoals; x++ {
		for y := 0; y < m.MaxGoals; y++ {
			if x > 0 && y > 0 {
				both += m.Cells[x][y]
			} else {
				notBoth += m.Cells[x][y]
			}
		}
	}
	return both, notBoth
}

// Probabilities is the one-call 1X2 contract: expected goals in, normalized
// probability triple out.
func Probabilities(homeLambda, awayLambda, rho float64, maxGoals int) (match.Probabilities, error) {
	m, err := NewScoreMatrix(homeLambda, awayLambda, rho, maxGoals)
	if err != nil {
		return match.Probabilities{}, err
	}
	p := m.MatchProbabilities()
	if err := p.Validate(); err != nil {
		return match.Probabilities{}, fmt.Errorf("dixoncoles: %w", err)
	}
	return p, nil
}

package dixoncoles

import (
	"errors"
	"math"
	"testing"
)

func TestTauLowScoreCells(t *testing.T) {
	lh, la, rho := 1.4, 1.1, -0.1

	cases := []struct {
		h, w int
		want float64
	}{
		{0, 0, 1 - lh*la*rho},
		{0, 1, 1 + lh*rho},
		{1, 0, 1 + la*rho},
		{1, 1, 1 - rho},
		{2, 0, 1},
		{0, 2, 1},
		{3, 3, 1},
	}
	for _, c := range cases {
		got := Tau(c.h, c.w, lh, la, rho)
		if math.Abs(got-c.want) > 1e-12 {
			t.Errorf("Tau(%d,%d) = %v, want %v", c.h, c.w, got, c.want)
		}
	}
}

func TestPoissonPMF(t *testing.T) {
	// P(X=2) for lambda=1.5: e^-1.5 * 1.5^2 / 2
	want := math.Exp(-1.5) * 1.5 * 1.5 / 2
	if got := PoissonPMF(1.5, 2); math.Abs(got-want) > 1e-12 {
		t.Errorf("PoissonPMF(1.5, 2) = %v, want %v", got, want)
	}
}

func TestPoissonPMFZeroLambda(t *testing.T) {
	if got := PoissonPMF(0, 0); got != 1 {
		t.Errorf("PoissonPMF(0, 0) = %v, want 1", got)
	}
	if got := PoissonPMF(0, 3); got != 0 {
		t.Errorf("PoissonPMF(0, 3) = %v, want 0", got)
	}
}

func TestScoreMatrixSumsToOne(t *testing.T) {
	lambdas := []struct{ h, a, rho float64 }{
		{1.45, 1.15, -0.1},
		{0.8, 2.3, 0.05},
		{2.0, 2.0, 0},
		{0.3, 0.4, -0.3},
	}
	for _, c := range lambdas {
		m, err := NewScoreMatrix(c.h, c.a, c.rho, DefaultMaxGoals)
		if err != nil {
			t.Fatalf("NewScoreMatrix(%v): %v", c, err)
		}
		p := m.MatchProbabilities()
		if err := p.Validate(); err != nil {
			t.Errorf("probabilities for %v invalid: %v", c, err)
		}
	}
}

func TestZeroRhoMatchesIndependentPoisson(t *testing.T) {
	lh, la := 1.6, 0.9
	m, err := NewScoreMatrix(lh, la, 0, DefaultMaxGoals)
	if err != nil {
		t.Fatal(err)
	}
	got := m.MatchProbabilities()

	// Brute-force independent bi-Poisson over the same grid.
	var home, draw, away, total float64
	for h := 0; h < DefaultMaxGoals; h++ {
		for a := 0; a < DefaultMaxGoals; a++ {
			p := PoissonPMF(lh, h) * PoissonPMF(la, a)
			total += p
			switch {
			case h > a:
				home += p
			case h == a:
				draw += p
			default:
				away += p
			}
		}
	}
	home, draw, away = home/total, draw/total, away/total

	if math.Abs(got.Home-home) > 1e-9 || math.Abs(got.Draw-draw) > 1e-9 || math.Abs(got.Away-away) > 1e-9 {
		t.Errorf("rho=0 probabilities %+v, want {%v %v %v}", got, home, draw, away)
	}
}

func TestTypicalFixturePricing(t *testing.T) {
	// A mild home favorite: 1.45 vs 1.15 expected goals with the usual
	// low-score correlation.
	p, err := Probabilities(1.45, 1.15, -0.1, DefaultMaxGoals)
	if err != nil {
		t.Fatal(err)
	}
	// Golden baseline, fixed to four decimals.
	const tol = 5e-4
	if math.Abs(p.Home-0.4274) > tol {
		t.Errorf("home probability %v, want 0.4274", p.Home)
	}
	if math.Abs(p.Draw-0.2852) > tol {
		t.Errorf("draw probability %v, want 0.2852", p.Draw)
	}
	if math.Abs(p.Away-0.2874) > tol {
		t.Errorf("away probability %v, want 0.2874", p.Away)
	}
	if p.Home <= p.Away {
		t.Errorf("expected home favorite, got home %v <= away %v", p.Home, p.Away)
	}
}

func TestNegativeRhoCellsAreClamped(t *testing.T) {
	// Extreme inputs push tau adjustments negative; cells must clamp at
	// zero, not go negative, and the matrix must still normalize.
	m, err := NewScoreMatrix(3.0, 3.0, -0.5, DefaultMaxGoals)
	if err != nil {
		t.Fatal(err)
	}
	p := m.MatchProbabilities()
	if err := p.Validate(); err != nil {
		t.Errorf("clamped matrix produced invalid probabilities: %v", err)
	}
}

func TestOverUnderAndBTTSAreComplementary(t *testing.T) {
	m, err := NewScoreMatrix(1.3, 1.2, -0.08, DefaultMaxGoals)
	if err != nil {
		t.Fatal(err)
	}

	over, under := m.OverUnder(2)
	if math.Abs(over+under-1) > 1e-9 {
		t.Errorf("over %v + under %v != 1", over, under)
	}

	both, notBoth := m.BothTeamsToScore()
	if math.Abs(both+notBoth-1) > 1e-9 {
		t.Errorf("btts %v + no-btts %v != 1", both, notBoth)
	}
}

func TestInvalidInputs(t *testing.T) {
	cases := []struct{ h, a, rho float64 }{
		{-1, 1, 0},
		{1, -1, 0},
		{1, 1, 0.6},
		{1, 1, -0.6},
		{math.NaN(), 1, 0},
	}
	for _, c := range cases {
		if _, err := NewScoreMatrix(c.h, c.a, c.rho, DefaultMaxGoals); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("NewScoreMatrix(%v, %v, %v): expected ErrInvalidInput, got %v", c.h, c.a, c.rho, err)
		}
	}
}

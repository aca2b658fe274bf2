package predictor

import (
	"errors"
	"math"
	"testing"

	"github.com/oddsbreaker/engine/pkg/feature"
)

func testWindow(seed float64) []feature.Vector {
	var v feature.Vector
	for i := range v {
		v[i] = math.Mod(seed*float64(i+1)*0.37, 1)
	}
	return []feature.Vector{v}
}

func TestPredictSumsToOne(t *testing.T) {
	p := New(Config{})

	for _, steps := range []int{1, 3, 10} {
		window := make([]feature.Vector, 0, steps)
		for i := 0; i < steps; i++ {
			window = append(window, testWindow(float64(i) + 0.5)[0])
		}
		probs, err := p.Predict(window)
		if err != nil {
			t.Fatalf("Predict with %d steps: %v", steps, err)
		}
		if err := probs.Validate(); err != nil {
			t.Errorf("%d steps: %v", steps, err)
		}
	}
}

func TestPredictRejectsEmptyWindow(t *testing.T) {
	p := New(Config{})
	if _, err := p.Predict(nil); !errors.Is(err, ErrEmptyWindow) {
		t.Errorf("expected ErrEmptyWindow, got %v", err)
	}
}

func TestTrainStepRejectsInvalidTarget(t *testing.T) {
	p := New(Config{})
	if _, err := p.TrainStep(testWindow(1), 3); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("target 3: got %v", err)
	}
	if _, err := p.TrainStep(testWindow(1), -1); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("target -1: got %v", err)
	}
}

func TestTrainStepLearnsSingleExample(t *testing.T) {
	p := New(Config{Seed: 7})
	window := testWindow(2)

	first, err := p.TrainStep(window, 0)
	if err != nil {
		t.Fatal(err)
	}
	var last float64
	for i := 0; i < 300; i++ {
		last, err = p.TrainStep(window, 0)
		if err != nil {
			t.Fatal(err)
		}
	}
	if last >= first {
		t.Errorf("loss did not decrease: first %v, last %v", first, last)
	}

	probs, err := p.Predict(window)
	if err != nil {
		t.Fatal(err)
	}
	if probs.Home <= probs.Draw || probs.Home <= probs.Away {
		t.Errorf("after training on home wins, home should dominate: %+v", probs)
	}
}

func TestTrainOnBatchShapeMismatch(t *testing.T) {
	p := New(Config{})
	_, err := p.TrainOnBatch([][]feature.Vector{testWindow(1)}, []int{0, 1})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
	if _, err := p.TrainOnBatch(nil, nil); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("empty batch: got %v", err)
	}
}

func TestExperienceReplayNeedsFullBuffer(t *testing.T) {
	p := New(Config{Seed: 3})

	if _, ok, err := p.ExperienceReplay(4); err != nil || ok {
		t.Errorf("empty buffer: ok=%v err=%v, want false, nil", ok, err)
	}

	for i := 0; i < 4; i++ {
		if _, err := p.TrainStep(testWindow(float64(i)+1), i%3); err != nil {
			t.Fatal(err)
		}
	}
	if _, ok, err := p.ExperienceReplay(4); err != nil || !ok {
		t.Errorf("full buffer: ok=%v err=%v, want true, nil", ok, err)
	}
}

func TestMetricsTracksProgress(t *testing.T) {
	p := New(Config{Seed: 5})

	m := p.Metrics()
	if m.Trend != TrendNA || m.TotalSteps != 0 {
		t.Errorf("fresh metrics = %+v", m)
	}

	window := testWindow(1.5)
	for i := 0; i < 120; i++ {
		if _, err := p.TrainStep(window, 1); err != nil {
			t.Fatal(err)
		}
	}

	m = p.Metrics()
	if m.TotalSteps != 120 {
		t.Errorf("TotalSteps = %d, want 120", m.TotalSteps)
	}
	if m.Trend != TrendImproving {
		t.Errorf("trend after 120 identical steps = %s, want IMPROVING", m.Trend)
	}
	if m.LearningRate <= 0 {
		t.Errorf("learning rate = %v", m.LearningRate)
	}
}

func TestDeterministicWithSameSeed(t *testing.T) {
	a := New(Config{Seed: 42})
	b := New(Config{Seed: 42})

	window := testWindow(3)
	pa, err := a.Predict(window)
	if err != nil {
		t.Fatal(err)
	}
	pb, err := b.Predict(window)
	if err != nil {
		t.Fatal(err)
	}
	if pa != pb {
		t.Errorf("same seed diverged: %+v vs %+v", pa, pb)
	}
}

func TestRegretLossPenalizesConfidentWrongness(t *testing.T) {
	l := RegretLoss{PenaltyFactor: DefaultPenaltyFactor}

	// Same probability on the true class, increasing mass on one wrong
	// class: total loss must be strictly increasing.
	meek, _ := l.Loss([]float64{0.2, 0.4, 0.4}, 0)
	confident, _ := l.Loss([]float64{0.2, 0.7, 0.1}, 0)
	if confident <= meek {
		t.Errorf("confident wrongness %v should cost more than spread wrongness %v", confident, meek)
	}

	total, base := l.Loss([]float64{0.2, 0.7, 0.1}, 0)
	wantPenalty := 0.7 * 0.7 * DefaultPenaltyFactor
	if math.Abs((total-base)-wantPenalty) > 1e-12 {
		t.Errorf("penalty = %v, want %v", total-base, wantPenalty)
	}
	if math.Abs(base-(-math.Log(0.2))) > 1e-12 {
		t.Errorf("base = %v, want %v", base, -math.Log(0.2))
	}
}

func TestRegretLossFloorsLogArgument(t *testing.T) {
	l := RegretLoss{PenaltyFactor: DefaultPenaltyFactor}
	total, _ := l.Loss([]float64{0, 0.5, 0.5}, 0)
	if math.IsInf(total, 0) || math.IsNaN(total) {
		t.Errorf("zero probability produced non-finite loss %v", total)
	}
}

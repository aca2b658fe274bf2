package feature

import (
	"errors"
	"math"
	"testing"
)

func validStats() RawStats {
	return RawStats{
		HomeGoalsScored:   1.8,
		AwayGoalsScored:   1.2,
		HomeGoalsConceded: 0.9,
		AwayGoalsConceded: 1.4,
		HomeForm:          0.7,
		AwayForm:          0.4,
		HomeMinutesLoad:   450,
		AwayMinutesLoad:   900,
		HomeMotivation:    0.8,
		AwayMotivation:    0.5,
		HomeDaysRest:      3,
		AwayDaysRest:      14,
		WindFactor:        0.2,
		RainFactor:        0,
	}
}

func TestBuildNormalization(t *testing.T) {
	v, err := Build(validStats())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if v[HomeFatigue] != 0.5 {
		t.Errorf("HomeFatigue = %v, want 0.5 (450/900)", v[HomeFatigue])
	}
	if v[AwayFatigue] != 1.0 {
		t.Errorf("AwayFatigue = %v, want 1.0", v[AwayFatigue])
	}
	if got := v[HomeRest]; math.Abs(got-3.0/7.0) > 1e-12 {
		t.Errorf("HomeRest = %v, want %v", got, 3.0/7.0)
	}
	if v[AwayRest] != 1.0 {
		t.Errorf("AwayRest = %v, want 1.0 (14 days capped)", v[AwayRest])
	}
	if v[HomeAttack] != 1.8 {
		t.Errorf("HomeAttack = %v, want raw 1.8", v[HomeAttack])
	}
}

func TestBuildOverloadedMinutesCapped(t *testing.T) {
	s := validStats()
	s.HomeMinutesLoad = 2000
	v, err := Build(s)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if v[HomeFatigue] != 1.0 {
		t.Errorf("HomeFatigue = %v, want capped 1.0", v[HomeFatigue])
	}
}

func TestValidateRejectsNonFinite(t *testing.T) {
	var v Vector
	v[HomeAttack] = math.NaN()
	if err := v.Validate(); !errors.Is(err, ErrInvalidVector) {
		t.Errorf("expected ErrInvalidVector for NaN, got %v", err)
	}

	v = Vector{}
	v[AwayDefense] = math.Inf(1)
	if err := v.Validate(); !errors.Is(err, ErrInvalidVector) {
		t.Errorf("expected ErrInvalidVector for Inf, got %v", err)
	}
}

func TestValidateRejectsOutOfRangeUnitSlots(t *testing.T) {
	var v Vector
	v[HomeMotivation] = 1.2
	if err := v.Validate(); !errors.Is(err, ErrInvalidVector) {
		t.Errorf("expected ErrInvalidVector for motivation 1.2, got %v", err)
	}

	v = Vector{}
	v[RainFactor] = -0.1
	if err := v.Validate(); !errors.Is(err, ErrInvalidVector) {
		t.Errorf("expected ErrInvalidVector for rain -0.1, got %v", err)
	}

	// Non-unit slots may exceed 1 freely.
	v = Vector{}
	v[HomeAttack] = 4.5
	if err := v.Validate(); err != nil {
		t.Errorf("attack 4.5 should be valid, got %v", err)
	}
}

func TestFromSlice(t *testing.T) {
	if _, err := FromSlice(make([]float64, Size-1)); !errors.Is(err, ErrInvalidVector) {
		t.Errorf("expected length error, got %v", err)
	}

	xs := make([]float64, Size)
	xs[HomeAttack] = 2.1
	v, err := FromSlice(xs)
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	if v[HomeAttack] != 2.1 {
		t.Errorf("slot not copied: %v", v[HomeAttack])
	}
}

func TestColumnNamesCoverEverySlot(t *testing.T) {
	seen := map[string]bool{}
	for i, name := range ColumnNames {
		if name == "" {
			t.Errorf("slot %d has no column name", i)
		}
		if seen[name] {
			t.Errorf("duplicate column name %q", name)
		}
		seen[name] = true
	}
}

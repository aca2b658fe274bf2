package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsbreaker/engine/pkg/feature"
	"github.com/oddsbreaker/engine/pkg/ledger"
	"github.com/oddsbreaker/engine/pkg/match"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testFixture(id string) match.Fixture {
	return match.Fixture{
		ID:       id,
		League:   "EPL",
		HomeTeam: "Team A",
		AwayTeam: "Team B",
		Kickoff:  time.Date(2026, 8, 22, 15, 0, 0, 0, time.UTC),
		Odds:     match.Odds{Home: 2.1, Draw: 3.4, Away: 3.6},
	}
}

func testVector() feature.Vector {
	var v feature.Vector
	v[feature.HomeAttack] = 1.8
	v[feature.AwayAttack] = 1.1
	v[feature.HomeForm] = 0.7
	v[feature.HomeRest] = 0.43
	v[feature.RainFactor] = 0.2
	return v
}

func TestFixtureRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f := testFixture("fix-1")
	require.NoError(t, s.UpsertFixture(ctx, f))

	got, err := s.Fixture(ctx, "fix-1")
	require.NoError(t, err)
	assert.Equal(t, f, got)

	// Upsert refreshes odds in place.
	f.Odds.Home = 1.95
	require.NoError(t, s.UpsertFixture(ctx, f))
	got, err = s.Fixture(ctx, "fix-1")
	require.NoError(t, err)
	assert.Equal(t, 1.95, got.Odds.Home)

	_, err = s.Fixture(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFeaturesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertFixture(ctx, testFixture("fix-1")))
	v := testVector()
	require.NoError(t, s.SaveFeatures(ctx, "fix-1", v))

	got, err := s.FeaturesFor(ctx, "fix-1")
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = s.FeaturesFor(ctx, "fix-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordResult(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertFixture(ctx, testFixture("fix-1")))

	_, err := s.Result(ctx, "fix-1")
	assert.ErrorIs(t, err, ErrNotFound, "unresolved fixture must read as not found")

	require.NoError(t, s.RecordResult(ctx, "fix-1", 2, 1))
	result, err := s.Result(ctx, "fix-1")
	require.NoError(t, err)
	assert.Equal(t, match.OutcomeHome, result)

	assert.ErrorIs(t, s.RecordResult(ctx, "ghost", 1, 0), ErrNotFound)
}

func TestTrainingExamples(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Two resolved with features, one unresolved, one resolved without
	// features: only the first two qualify.
	for i, id := range []string{"a", "b", "c", "d"} {
		f := testFixture(id)
		f.Kickoff = f.Kickoff.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.UpsertFixture(ctx, f))
	}
	require.NoError(t, s.SaveFeatures(ctx, "a", testVector()))
	require.NoError(t, s.SaveFeatures(ctx, "b", testVector()))
	require.NoError(t, s.SaveFeatures(ctx, "c", testVector()))
	require.NoError(t, s.RecordResult(ctx, "a", 0, 0))
	require.NoError(t, s.RecordResult(ctx, "b", 1, 2))
	require.NoError(t, s.RecordResult(ctx, "d", 3, 0))

	examples, err := s.TrainingExamples(ctx, 0)
	require.NoError(t, err)
	require.Len(t, examples, 2)
	assert.Equal(t, "a", examples[0].FixtureID)
	assert.Equal(t, match.OutcomeDraw.Index(), examples[0].Target)
	assert.Equal(t, "b", examples[1].FixtureID)
	assert.Equal(t, match.OutcomeAway.Index(), examples[1].Target)

	limited, err := s.TrainingExamples(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestBetLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertFixture(ctx, testFixture("fix-1")))

	bet, err := ledger.New("fix-1", match.OutcomeHome, 2.1, decimal.NewFromInt(50), 0.155)
	require.NoError(t, err)
	require.NoError(t, s.SaveBet(ctx, bet))

	pending, err := s.PendingBets(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, bet.ID, pending[0].ID)
	assert.True(t, pending[0].Stake.Equal(decimal.NewFromInt(50)))

	// Resolve and persist: the bet leaves the pending set and enters the
	// unlearned set.
	require.NoError(t, bet.Resolve(match.OutcomeHome))
	require.NoError(t, s.SaveBet(ctx, bet))

	pending, err = s.PendingBets(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	unlearned, err := s.UnlearnedBets(ctx)
	require.NoError(t, err)
	require.Len(t, unlearned, 1)
	assert.Equal(t, ledger.StatusWon, unlearned[0].Status)
	assert.True(t, unlearned[0].PnL.Equal(decimal.NewFromInt(55)))

	// Mark learned: the unlearned set drains.
	require.NoError(t, bet.MarkLearned())
	require.NoError(t, s.SaveBet(ctx, bet))

	unlearned, err = s.UnlearnedBets(ctx)
	require.NoError(t, err)
	assert.Empty(t, unlearned)

	all, err := s.BetsForFixture(ctx, "fix-1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Learned)
}

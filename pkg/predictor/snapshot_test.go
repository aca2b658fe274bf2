package predictor

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsbreaker/engine/pkg/feature"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store := FileStore{Path: filepath.Join(t.TempDir(), "model.json")}

	_, err := store.Load()
	require.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, store.Save([]byte(`{"v":1}`)))
	data, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":1}`), data)

	// Overwrite is atomic: the second save fully replaces the first.
	require.NoError(t, store.Save([]byte(`{"v":2}`)))
	data, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":2}`), data)
}

func TestSaveLoadStateRestoresModel(t *testing.T) {
	store := FileStore{Path: filepath.Join(t.TempDir(), "model.json")}

	trained := New(Config{Seed: 11})
	window := []feature.Vector{{0.5, 1.2, 0.8, 1.0, 0.6, 0.4, 0.3, 0.7, 0.9, 0.2, 0.5, 0.5, 0.1, 0}}
	for i := 0; i < 60; i++ {
		_, err := trained.TrainStep(window, 2)
		require.NoError(t, err)
	}
	require.NoError(t, trained.SaveState(store))

	restored := New(Config{Seed: 99}) // different init, must not matter
	require.NoError(t, restored.LoadState(store))

	want, err := trained.Predict(window)
	require.NoError(t, err)
	got, err := restored.Predict(window)
	require.NoError(t, err)
	assert.InDelta(t, want.Home, got.Home, 1e-12)
	assert.InDelta(t, want.Draw, got.Draw, 1e-12)
	assert.InDelta(t, want.Away, got.Away, 1e-12)

	assert.Equal(t, trained.Steps(), restored.Steps())
}

func TestLoadStateRejectsShapeMismatch(t *testing.T) {
	store := FileStore{Path: filepath.Join(t.TempDir(), "model.json")}

	big := New(Config{HiddenSize: 64, Seed: 1})
	require.NoError(t, big.SaveState(store))

	small := New(Config{HiddenSize: 8, Seed: 1})
	err := small.LoadState(store)
	require.Error(t, err)

	// Failed load leaves the fresh model usable.
	window := []feature.Vector{{}}
	probs, err := small.Predict(window)
	require.NoError(t, err)
	assert.NoError(t, probs.Validate())
}

func TestLoadStateMissingSnapshotKeepsFreshState(t *testing.T) {
	store := FileStore{Path: filepath.Join(t.TempDir(), "missing.json")}

	p := New(Config{Seed: 1})
	err := p.LoadState(store)
	require.ErrorIs(t, err, ErrNoSnapshot)
	assert.EqualValues(t, 0, p.Steps())
}

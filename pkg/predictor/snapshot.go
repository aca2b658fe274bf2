package predictor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoSnapshot reports that no persisted model state exists. Callers treat
// this as "start fresh", never as fatal: the system must always be able to
// start cold.
var ErrNoSnapshot = errors.New("predictor: no snapshot")

// StateStore is the persistence port for model snapshots. Save must be
// all-or-nothing: a snapshot is either fully written or not written at all.
type StateStore interface {
	Save(data []byte) error
	Load() ([]byte, error)
}

// FileStore persists snapshots to a single file, using a temp-file write and
// atomic rename so a crash mid-save never leaves a half-written snapshot.
type FileStore struct {
	Path string
}

func (s FileStore) Save(data []byte) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("predictor: create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("predictor: create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("predictor: write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("predictor: sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("predictor: close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("predictor: commit snapshot: %w", err)
	}
	return nil
}

func (s FileStore) Load() ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("predictor: read snapshot: %w", err)
	}
	return data, nil
}

const snapshotVersion = 1

// snapshot is the persisted model state: weights, optimizer moments, the
// step counter, rolling loss history and learning-rate schedule state.
// Save/Load round-trips losslessly.
type snapshot struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`

	In     int `json:"in"`
	Hidden int `json:"hidden"`
	Head   int `json:"head"`
	Out    int `json:"out"`

	Params []float64 `json:"params"`
	AdamM  []float64 `json:"adam_m"`
	AdamV  []float64 `json:"adam_v"`
	AdamT  int64     `json:"adam_t"`

	LearningRate float64   `json:"learning_rate"`
	Steps        int64     `json:"steps"`
	LossHistory  []float64 `json:"loss_history"`
	BestLoss     float64   `json:"best_loss"`
	BadBatches   int       `json:"bad_batches"`
}

// SaveState writes the current model state through the store. A failed save
// is surfaced to the caller: a silently-lost model update is a correctness
// bug, not a recoverable condition.
func (p *Predictor) SaveState(store StateStore) error {
	p.mu.RLock()
	snap := snapshot{
		Version:      snapshotVersion,
		SavedAt:      time.Now().UTC(),
		In:           p.net.in,
		Hidden:       p.net.hidden,
		Head:         p.net.hidden2,
		Out:          p.net.out,
		Params:       append([]float64(nil), p.net.params...),
		AdamM:        append([]float64(nil), p.opt.m...),
		AdamV:        append([]float64(nil), p.opt.v...),
		AdamT:        p.opt.step,
		LearningRate: p.opt.lr,
		Steps:        p.steps,
		LossHistory:  append([]float64(nil), p.lossHistory...),
		BestLoss:     p.bestLoss,
		BadBatches:   p.badBatches,
	}
	p.mu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("predictor: encode snapshot: %w", err)
	}
	return store.Save(data)
}

// LoadState restores persisted model state. On any failure, including
// ErrNoSnapshot, the in-memory state is left untouched so the predictor keeps
// its fresh initialization.
func (p *Predictor) LoadState(store StateStore) error {
	data, err := store.Load()
	if err != nil {
		return err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("predictor: decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("predictor: unsupported snapshot version %d", snap.Version)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if snap.In != p.net.in || snap.Hidden != p.net.hidden || snap.Head != p.net.hidden2 || snap.Out != p.net.out {
		return fmt.Errorf("predictor: snapshot shape %d/%d/%d/%d does not match model %d/%d/%d/%d",
			snap.In, snap.Hidden, snap.Head, snap.Out, p.net.in, p.net.hidden, p.net.hidden2, p.net.out)
	}
	if len(snap.Params) != p.net.size() || len(snap.AdamM) != p.net.size() || len(snap.AdamV) != p.net.size() {
		return fmt.Errorf("predictor: snapshot parameter count %d does not match model %d",
			len(snap.Params), p.net.size())
	}

	copy(p.net.params, snap.Params)
	copy(p.opt.m, snap.AdamM)
	copy(p.opt.v, snap.AdamV)
	p.opt.step = snap.AdamT
	p.opt.lr = snap.LearningRate
	p.steps = snap.Steps
	p.lossHistory = append(p.lossHistory[:0], snap.LossHistory...)
	p.bestLoss = snap.BestLoss
	p.badBatches = snap.BadBatches
	return nil
}

// Package predictor implements the stateful online-learning core: a small
// attention-pooled neural model mapping anonymized feature windows to 1X2
// probabilities, trainable one result at a time.
//
// Designed for continuous lifelong learning: there is no terminal state, the
// model always accepts more updates. Prediction is a concurrent-safe read;
// training steps are serialized because gradient updates are not commutative.
package predictor

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/oddsbreaker/engine/pkg/feature"
	"github.com/oddsbreaker/engine/pkg/match"
)

var (
	// ErrInvalidTarget reports a training target outside {0,1,2}.
	ErrInvalidTarget = errors.New("predictor: target index must be 0, 1 or 2")
	// ErrShapeMismatch reports batch inputs of unequal or zero length.
	ErrShapeMismatch = errors.New("predictor: batch features and targets must have equal length > 0")
	// ErrEmptyWindow reports a prediction or training call with no features.
	ErrEmptyWindow = errors.New("predictor: feature window is empty")
)

// Config holds the model hyperparameters. Zero values fall back to defaults.
type Config struct {
	HiddenSize      int // per-timestep encoder width
	HeadSize        int // classification head width
	LearningRate    float64
	WeightDecay     float64
	PenaltyFactor   float64 // regret penalty scale
	ClipNorm        float64 // global gradient norm cap
	ReplaySize      int     // bounded replay buffer capacity
	LossHistorySize int     // bounded rolling loss history
	PlateauPatience int     // batches without improvement before LR halves
	MinLearningRate float64
	Seed            int64 // 0 means a fixed default seed
}

// DefaultConfig returns the production hyperparameters.
func DefaultConfig() Config {
	return Config{
		HiddenSize:      32,
		HeadSize:        16,
		LearningRate:    5e-4,
		WeightDecay:     1e-4,
		PenaltyFactor:   DefaultPenaltyFactor,
		ClipNorm:        1.0,
		ReplaySize:      512,
		LossHistorySize: 1000,
		PlateauPatience: 5,
		MinLearningRate: 1e-6,
		Seed:            1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HiddenSize <= 0 {
		c.HiddenSize = d.HiddenSize
	}
	if c.HeadSize <= 0 {
		c.HeadSize = d.HeadSize
	}
	if c.LearningRate <= 0 {
		c.LearningRate = d.LearningRate
	}
	if c.WeightDecay < 0 {
		c.WeightDecay = d.WeightDecay
	}
	if c.PenaltyFactor <= 0 {
		c.PenaltyFactor = d.PenaltyFactor
	}
	if c.ClipNorm <= 0 {
		c.ClipNorm = d.ClipNorm
	}
	if c.ReplaySize <= 0 {
		c.ReplaySize = d.ReplaySize
	}
	if c.LossHistorySize <= 0 {
		c.LossHistorySize = d.LossHistorySize
	}
	if c.PlateauPatience <= 0 {
		c.PlateauPatience = d.PlateauPatience
	}
	if c.MinLearningRate <= 0 {
		c.MinLearningRate = d.MinLearningRate
	}
	if c.Seed == 0 {
		c.Seed = d.Seed
	}
	return c
}

// Example is one labeled training sample retained in the replay buffer.
type Example struct {
	Window []feature.Vector
	Target int
}

// Trend direction of the rolling loss, for operational reporting.
const (
	TrendNA        = "N/A"
	TrendImproving = "IMPROVING"
	TrendStable    = "STABLE"
)

// Metrics is the model health summary exposed to reporting collaborators.
type Metrics struct {
	AvgLoss      float64 `json:"avg_loss"`
	PrevAvgLoss  float64 `json:"avg_loss_prev"`
	TotalSteps   int64   `json:"total_steps"`
	Trend        string  `json:"trend"`
	LearningRate float64 `json:"lr"`
}

// Predictor is the online-learning model. All mutating operations take the
// write lock; Predict takes the read lock and may run concurrently with
// other predictions.
type Predictor struct {
	mu  sync.RWMutex
	cfg Config

	net  *network
	opt  *adam
	loss RegretLoss
	rng  *rand.Rand

	steps       int64
	lossHistory []float64
	replay      []Example

	// Plateau LR schedule state, advanced by batch training.
	bestLoss   float64
	badBatches int
}

// New creates a fresh predictor. Call LoadState afterwards to restore a
// persisted snapshot; a failed load leaves the fresh state intact.
func New(cfg Config) *Predictor {
	cfg = cfg.withDefaults()
	rng := rand.New(rand.NewSource(cfg.Seed))
	net := newNetwork(feature.Size, cfg.HiddenSize, cfg.HeadSize, 3, rng)
	return &Predictor{
		cfg:      cfg,
		net:      net,
		opt:      newAdam(net.size(), cfg.LearningRate, cfg.WeightDecay),
		loss:     RegretLoss{PenaltyFactor: cfg.PenaltyFactor},
		rng:      rng,
		bestLoss: -1,
	}
}

// Predict maps a feature window (most recent step last) to outcome
// probabilities. It is a pure function of the current weights and input.
func (p *Predictor) Predict(window []feature.Vector) (match.Probabilities, error) {
	xs, err := windowInputs(window)
	if err != nil {
		return match.Probabilities{}, err
	}

	p.mu.RLock()
	cache := p.net.forward(xs)
	p.mu.RUnlock()

	probs := match.Probabilities{Home: cache.probs[0], Draw: cache.probs[1], Away: cache.probs[2]}
	if err := probs.Validate(); err != nil {
		return match.Probabilities{}, fmt.Errorf("predictor: %w", err)
	}
	return probs, nil
}

// TrainStep performs exactly one gradient update from a single labeled
// example and returns its loss. The example is retained in the replay buffer.
func (p *Predictor) TrainStep(window []feature.Vector, target int) (float64, error) {
	xs, err := windowInputs(window)
	if err != nil {
		return 0, err
	}
	if target < 0 || target > 2 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidTarget, target)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	grads := make([]float64, p.net.size())
	cache := p.net.forward(xs)
	total, _ := p.loss.Loss(cache.probs, target)
	p.net.backward(cache, target, grads)

	clipGradients(grads, p.cfg.ClipNorm)
	p.opt.update(p.net.params, grads)

	p.steps++
	p.recordLoss(total)
	p.remember(Example{Window: window, Target: target})
	return total, nil
}

// TrainOnBatch performs one gradient update from the mean gradient of a
// batch and returns the mean loss. The learning-rate plateau schedule
// advances once per batch.
func (p *Predictor) TrainOnBatch(windows [][]feature.Vector, targets []int) (float64, error) {
	if len(windows) == 0 || len(windows) != len(targets) {
		return 0, fmt.Errorf("%w: %d features, %d targets", ErrShapeMismatch, len(windows), len(targets))
	}
	batch := make([][][]float64, len(windows))
	for i, w := range windows {
		xs, err := windowInputs(w)
		if err != nil {
			return 0, err
		}
		if targets[i] < 0 || targets[i] > 2 {
			return 0, fmt.Errorf("%w: got %d at index %d", ErrInvalidTarget, targets[i], i)
		}
		batch[i] = xs
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	grads := make([]float64, p.net.size())
	totalLoss := 0.0
	for i, xs := range batch {
		cache := p.net.forward(xs)
		total, _ := p.loss.Loss(cache.probs, targets[i])
		totalLoss += total
		p.net.backward(cache, targets[i], grads)
	}
	inv := 1 / float64(len(batch))
	for i := range grads {
		grads[i] *= inv
	}
	meanLoss := totalLoss * inv

	clipGradients(grads, p.cfg.ClipNorm)
	p.opt.update(p.net.params, grads)

	p.steps++
	p.recordLoss(meanLoss)
	p.schedulerStep(meanLoss)
	return meanLoss, nil
}

// ExperienceReplay retrains on a random sample of past examples. It reports
// false when the buffer does not yet hold batchSize examples.
func (p *Predictor) ExperienceReplay(batchSize int) (float64, bool, error) {
	p.mu.Lock()
	if batchSize <= 0 || len(p.replay) < batchSize {
		p.mu.Unlock()
		return 0, false, nil
	}
	idx := p.rng.Perm(len(p.replay))[:batchSize]
	windows := make([][]feature.Vector, batchSize)
	targets := make([]int, batchSize)
	for i, j := range idx {
		windows[i] = p.replay[j].Window
		targets[i] = p.replay[j].Target
	}
	p.mu.Unlock()

	loss, err := p.TrainOnBatch(windows, targets)
	if err != nil {
		return 0, false, err
	}
	return loss, true, nil
}

// Metrics summarizes model health: rolling average loss over the last 50
// steps against the 50 before, total steps, and the current learning rate.
func (p *Predictor) Metrics() Metrics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.lossHistory) == 0 {
		return Metrics{Trend: TrendNA, TotalSteps: p.steps, LearningRate: p.opt.lr}
	}
	recent := tail(p.lossHistory, 50)
	older := recent
	if len(p.lossHistory) > 50 {
		older = tail(p.lossHistory[:len(p.lossHistory)-50], 50)
	}
	recentAvg := mean(recent)
	olderAvg := mean(older)
	trend := TrendStable
	if recentAvg < olderAvg {
		trend = TrendImproving
	}
	return Metrics{
		AvgLoss:      recentAvg,
		PrevAvgLoss:  olderAvg,
		TotalSteps:   p.steps,
		Trend:        trend,
		LearningRate: p.opt.lr,
	}
}

// Steps returns the monotonically growing training-step counter.
func (p *Predictor) Steps() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.steps
}

// schedulerStep halves the learning rate when batch loss stops improving,
// mirroring reduce-on-plateau scheduling. Caller holds the write lock.
func (p *Predictor) schedulerStep(loss float64) {
	const improvementEps = 1e-4
	if p.bestLoss < 0 || loss < p.bestLoss-improvementEps {
		p.bestLoss = loss
		p.badBatches = 0
		return
	}
	p.badBatches++
	if p.badBatches > p.cfg.PlateauPatience {
		p.badBatches = 0
		lr := p.opt.lr * 0.5
		if lr < p.cfg.MinLearningRate {
			lr = p.cfg.MinLearningRate
		}
		p.opt.lr = lr
	}
}

func (p *Predictor) recordLoss(loss float64) {
	p.lossHistory = append(p.lossHistory, loss)
	if len(p.lossHistory) > p.cfg.LossHistorySize {
		p.lossHistory = p.lossHistory[len(p.lossHistory)-p.cfg.LossHistorySize:]
	}
}

func (p *Predictor) remember(ex Example) {
	p.replay = append(p.replay, ex)
	if len(p.replay) > p.cfg.ReplaySize {
		p.replay = p.replay[len(p.replay)-p.cfg.ReplaySize:]
	}
}

func windowInputs(window []feature.Vector) ([][]float64, error) {
	if len(window) == 0 {
		return nil, ErrEmptyWindow
	}
	xs := make([][]float64, len(window))
	for t, v := range window {
		if err := v.Validate(); err != nil {
			return nil, err
		}
		x := make([]float64, feature.Size)
		copy(x, v[:])
		xs[t] = x
	}
	return xs, nil
}

func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

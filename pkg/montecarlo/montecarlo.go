// Package montecarlo stress-tests a betting strategy by simulating thousands
// of independent bankroll paths under fixed win probability, odds and flat
// percentage staking.
package montecarlo

import (
	"context"
	"errors"
	"math/rand"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/oddsbreaker/engine/pkg/stats"
)

// RuinFloor is the bankroll level below which a path counts as ruined. One
// currency unit rather than zero: below that no meaningful stake can be
// placed.
const RuinFloor = 1.0

// ViabilitySharpeBar is the minimum simulated Sharpe for a strategy to be
// declared viable.
const ViabilitySharpeBar = 2.0

// ErrInvalidConfig reports simulation parameters outside their valid domain.
var ErrInvalidConfig = errors.New("montecarlo: invalid config")

// Config holds the simulation parameters.
type Config struct {
	Paths           int     // independent bankroll paths
	BetsPerPath     int     // sequential bets per path
	WinProb         float64 // per-bet win probability
	Odds            float64 // decimal odds applied to every bet
	StakePct        float64 // fraction of current bankroll staked per bet
	InitialBankroll float64
	RiskFreeRate    float64
	Workers         int   // 0 means GOMAXPROCS
	Seed            int64 // base seed, each worker derives its own stream
}

// DefaultConfig returns the standard stress-test setup: 10000 paths of 500
// bets each.
func DefaultConfig() Config {
	return Config{
		Paths:           10000,
		BetsPerPath:     500,
		StakePct:        0.02,
		InitialBankroll: 1000,
		Seed:            1,
	}
}

func (c Config) validate() error {
	switch {
	case c.Paths <= 0:
		return errors.New("paths must be positive")
	case c.BetsPerPath <= 0:
		return errors.New("bets per path must be positive")
	case c.WinProb < 0 || c.WinProb > 1:
		return errors.New("win probability outside [0,1]")
	case c.Odds <= 1:
		return errors.New("odds must exceed 1")
	case c.StakePct <= 0 || c.StakePct > 1:
		return errors.New("stake pct outside (0,1]")
	case c.InitialBankroll <= 0:
		return errors.New("initial bankroll must be positive")
	}
	return nil
}

// Result aggregates the simulated paths.
type Result struct {
	Paths           int     `json:"paths"`
	RuinProbability float64 `json:"ruin_probability"`
	MedianFinal     float64 `json:"median_final_bankroll"`
	MeanFinal       float64 `json:"mean_final_bankroll"`
	P5              float64 `json:"p5"`
	P25             float64 `json:"p25"`
	P75             float64 `json:"p75"`
	P95             float64 `json:"p95"`
	AvgMaxDrawdown  float64 `json:"avg_max_drawdown_pct"`
	Sharpe          float64 `json:"sharpe_ratio"`
	IsViable        bool    `json:"is_viable"`
}

// Simulator runs Monte Carlo bankroll simulations.
type Simulator struct {
	cfg Config
}

// New creates a simulator. Zero Workers resolves to GOMAXPROCS.
func New(cfg Config) (*Simulator, error) {
	if err := cfg.validate(); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Simulator{cfg: cfg}, nil
}

// pathOutcome is one path's summary: its final bankroll and whether it hit
// the ruin floor.
type pathOutcome struct {
	final  float64
	ruined bool
}

// Run simulates all paths across a worker pool. Per-bet returns feed
// streaming moment accumulators rather than a stored series, so memory stays
// proportional to the number of paths, not paths times bets.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	cfg := s.cfg

	finals := make([]pathOutcome, cfg.Paths)

	var (
		mu        sync.Mutex
		retN      int64
		retSum    float64
		retSumSq  float64
		perWorker = (cfg.Paths + cfg.Workers - 1) / cfg.Workers
	)

	g, ctx := errgroup.WithContext(ctx)
	for worker := 0; worker < cfg.Workers; worker++ {
		lo := worker * perWorker
		hi := min(lo+perWorker, cfg.Paths)
		if lo >= hi {
			break
		}
		rng := rand.New(rand.NewSource(cfg.Seed + int64(worker)))
		g.Go(func() error {
			var n int64
			var sum, sumSq float64
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				finals[i] = simulatePath(cfg, rng, func(r float64) {
					n++
					sum += r
					sumSq += r * r
				})
			}
			mu.Lock()
			retN += n
			retSum += sum
			retSumSq += sumSq
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.aggregate(finals, retN, retSum, retSumSq), nil
}

// simulatePath walks one bankroll path, invoking observe with each bet's
// percentage return.
func simulatePath(cfg Config, rng *rand.Rand, observe func(float64)) pathOutcome {
	bankroll := cfg.InitialBankroll
	for b := 0; b < cfg.BetsPerPath; b++ {
		if bankroll < RuinFloor {
			return pathOutcome{final: bankroll, ruined: true}
		}
		stake := bankroll * cfg.StakePct
		before := bankroll
		if rng.Float64() < cfg.WinProb {
			bankroll += stake * (cfg.Odds - 1)
		} else {
			bankroll -= stake
		}
		observe((bankroll - before) / before)
	}
	return pathOutcome{final: bankroll, ruined: bankroll < RuinFloor}
}

func (s *Simulator) aggregate(outcomes []pathOutcome, retN int64, retSum, retSumSq float64) *Result {
	cfg := s.cfg

	finals := make([]float64, len(outcomes))
	var ruined int
	var sum float64
	var lossPcts []float64
	for i, o := range outcomes {
		finals[i] = o.final
		sum += o.final
		if o.ruined {
			ruined++
		}
		if o.final < cfg.InitialBankroll {
			lossPcts = append(lossPcts, (cfg.InitialBankroll-o.final)/cfg.InitialBankroll*100)
		}
	}
	sharpe := stats.SharpeFromMoments(retN, retSum, retSumSq, cfg.RiskFreeRate)
	return &Result{
		Paths:           len(outcomes),
		RuinProbability: float64(ruined) / float64(len(outcomes)),
		MedianFinal:     stats.Median(finals),
		MeanFinal:       sum / float64(len(outcomes)),
		P5:              stats.Percentile(finals, 5),
		P25:             stats.Percentile(finals, 25),
		P75:             stats.Percentile(finals, 75),
		P95:             stats.Percentile(finals, 95),
		AvgMaxDrawdown:  stats.Mean(lossPcts),
		Sharpe:          sharpe,
		IsViable:        sharpe > ViabilitySharpeBar,
	}
}

// Package backtest replays resolved fixture history through the predictor,
// value detector and Kelly sizing on a rolling train/test window, tracking a
// running bankroll and per-market Sharpe ratios.
package backtest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/oddsbreaker/engine/pkg/bankroll"
	"github.com/oddsbreaker/engine/pkg/feature"
	"github.com/oddsbreaker/engine/pkg/match"
	"github.com/oddsbreaker/engine/pkg/predictor"
	"github.com/oddsbreaker/engine/pkg/stats"
	"github.com/oddsbreaker/engine/pkg/valuedetect"
)

// ErrInsufficientHistory reports too little history for one full
// train+test window.
var ErrInsufficientHistory = errors.New("backtest: not enough history for one window")

// SharpeApprovalBar is the hard go/no-go gate: a market is promoted to live
// betting only if its annualized Sharpe exceeds this.
const SharpeApprovalBar = 2.0

// Record is one resolved historical fixture together with the anonymized
// features it presented before kickoff.
type Record struct {
	match.Resolved
	Features feature.Vector
}

// Config holds the rolling-window parameters.
type Config struct {
	WindowSize int // fixtures to train on per window
	TestSize   int // fixtures to evaluate before re-training

	InitialBankroll decimal.Decimal
	KellyMultiplier float64
	MaxStakePct     float64
	RiskFreeRate    float64

	TrainEpochs int // passes over each training window

	Detector  valuedetect.Config
	Predictor predictor.Config
}

// DefaultConfig mirrors the production calibration: train on 100, test on
// the next 20, $1000 bankroll, half-Kelly capped at 5%.
func DefaultConfig() Config {
	return Config{
		WindowSize:      100,
		TestSize:        20,
		InitialBankroll: decimal.NewFromInt(1000),
		KellyMultiplier: bankroll.DefaultKellyMultiplier,
		MaxStakePct:     bankroll.DefaultMaxStakePct,
		TrainEpochs:     3,
		Detector:        valuedetect.DefaultConfig(),
		Predictor:       predictor.DefaultConfig(),
	}
}

// BetRecord is one simulated bet in the backtest ledger.
type BetRecord struct {
	Window        int             `json:"window"`
	FixtureID     string          `json:"fixture_id"`
	Label         string          `json:"label"`
	Market        match.Outcome   `json:"market"`
	Odds          float64         `json:"odds"`
	ModelProb     float64         `json:"model_prob"`
	ExpectedValue float64         `json:"expected_value"`
	Stake         decimal.Decimal `json:"stake"`
	Won           bool            `json:"won"`
	Profit        decimal.Decimal `json:"profit"`
	Bankroll      decimal.Decimal `json:"bankroll"`
}

// MarketReport is the per-market verdict.
type MarketReport struct {
	Sharpe       float64 `json:"sharpe_ratio"`
	TotalBets    int     `json:"total_bets"`
	AvgReturnPct float64 `json:"avg_return_pct"`
	Approved     bool    `json:"is_approved"`
}

// Result is the full backtest outcome.
type Result struct {
	Bets            []BetRecord                    `json:"bets"`
	InitialBankroll decimal.Decimal                `json:"initial_bankroll"`
	FinalBankroll   decimal.Decimal                `json:"final_bankroll"`
	ROIPct          float64                        `json:"roi_pct"`
	OverallSharpe   float64                        `json:"overall_sharpe"`
	Markets         map[match.Outcome]MarketReport `json:"markets"`
	ApprovedMarkets []match.Outcome                `json:"approved_markets"`
	Windows         int                            `json:"windows"`
}

// Backtester runs rolling-window validations.
type Backtester struct {
	cfg Config
	log zerolog.Logger
}

// New creates a backtester. A zero-valued Config falls back to defaults
// field by field.
func New(cfg Config, log zerolog.Logger) *Backtester {
	d := DefaultConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = d.WindowSize
	}
	if cfg.TestSize <= 0 {
		cfg.TestSize = d.TestSize
	}
	if cfg.InitialBankroll.LessThanOrEqual(decimal.Zero) {
		cfg.InitialBankroll = d.InitialBankroll
	}
	if cfg.KellyMultiplier <= 0 {
		cfg.KellyMultiplier = d.KellyMultiplier
	}
	if cfg.MaxStakePct <= 0 {
		cfg.MaxStakePct = d.MaxStakePct
	}
	if cfg.TrainEpochs <= 0 {
		cfg.TrainEpochs = d.TrainEpochs
	}
	if cfg.Detector == (valuedetect.Config{}) {
		cfg.Detector = d.Detector
	}
	return &Backtester{cfg: cfg, log: log}
}

// Run replays history in consecutive rolling windows. For window w the
// predictor is trained on indices [w*testSize, w*testSize+windowSize) only,
// then evaluated strictly on the following testSize fixtures; nothing at or
// beyond the test-window start ever influences the weights scoring it.
// The bankroll carries across windows, it is never reset.
func (b *Backtester) Run(ctx context.Context, history []Record) (*Result, error) {
	if len(history) < b.cfg.WindowSize+b.cfg.TestSize {
		return nil, fmt.Errorf("%w: have %d fixtures, need %d",
			ErrInsufficientHistory, len(history), b.cfg.WindowSize+b.cfg.TestSize)
	}

	detector := valuedetect.New(b.cfg.Detector)
	manager := bankroll.NewManager(b.cfg.InitialBankroll, b.cfg.KellyMultiplier, b.cfg.MaxStakePct)

	var (
		bets          []BetRecord
		returns       []float64
		marketReturns = map[match.Outcome][]float64{}
	)

	totalWindows := (len(history) - b.cfg.WindowSize) / b.cfg.TestSize
	for w := 0; w < totalWindows; w++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := w * b.cfg.TestSize
		trainEnd := start + b.cfg.WindowSize
		testEnd := trainEnd + b.cfg.TestSize
		if testEnd > len(history) {
			break
		}

		model, err := b.trainWindow(history[start:trainEnd])
		if err != nil {
			b.log.Warn().Err(err).Int("window", w).Msg("window training failed, skipping")
			continue
		}

		for _, rec := range history[trainEnd:testEnd] {
			probs, err := model.Predict([]feature.Vector{rec.Features})
			if err != nil {
				b.log.Warn().Err(err).Str("fixture", rec.ID).Msg("prediction failed, skipping fixture")
				continue
			}

			assessments, err := detector.DetectEdge(probs, rec.Odds)
			if err != nil {
				b.log.Warn().Err(err).Str("fixture", rec.ID).Msg("edge detection failed, skipping fixture")
				continue
			}

			for _, o := range match.Outcomes() {
				a, ok := assessments[o]
				if !ok || !a.IsValue {
					continue
				}

				sized := manager.KellyStake(a.MarketOdds, a.ModelProb)
				if sized.Amount.LessThan(decimal.NewFromFloat(0.01)) {
					continue
				}

				before := manager.Bankroll()
				won := rec.Result == o
				var profit decimal.Decimal
				if won {
					profit = sized.Amount.Mul(decimal.NewFromFloat(a.MarketOdds - 1)).Round(2)
				} else {
					profit = sized.Amount.Neg()
				}
				after := manager.ApplyPnL(profit)

				pctReturn := pctOf(profit, before)
				returns = append(returns, pctReturn)
				marketReturns[o] = append(marketReturns[o], pctReturn)

				bets = append(bets, BetRecord{
					Window:        w,
					FixtureID:     rec.ID,
					Label:         rec.HomeTeam + " vs " + rec.AwayTeam,
					Market:        o,
					Odds:          a.MarketOdds,
					ModelProb:     a.ModelProb,
					ExpectedValue: a.ExpectedValue,
					Stake:         sized.Amount,
					Won:           won,
					Profit:        profit,
					Bankroll:      after,
				})
			}
		}
	}

	result := &Result{
		Bets:            bets,
		InitialBankroll: b.cfg.InitialBankroll,
		FinalBankroll:   manager.Bankroll(),
		OverallSharpe:   stats.Sharpe(returns, b.cfg.RiskFreeRate),
		Markets:         make(map[match.Outcome]MarketReport, 3),
		Windows:         totalWindows,
	}
	roi := manager.Bankroll().Sub(b.cfg.InitialBankroll).
		Div(b.cfg.InitialBankroll).Mul(decimal.NewFromInt(100))
	result.ROIPct = roi.InexactFloat64()

	for _, o := range match.Outcomes() {
		rets := marketReturns[o]
		sharpe := stats.Sharpe(rets, b.cfg.RiskFreeRate)
		report := MarketReport{
			Sharpe:       sharpe,
			TotalBets:    len(rets),
			AvgReturnPct: stats.Mean(rets) * 100,
			Approved:     sharpe > SharpeApprovalBar,
		}
		result.Markets[o] = report
		if report.Approved {
			result.ApprovedMarkets = append(result.ApprovedMarkets, o)
		}
	}
	return result, nil
}

// trainWindow fits a fresh predictor on the training slice only.
func (b *Backtester) trainWindow(train []Record) (*predictor.Predictor, error) {
	windows := make([][]feature.Vector, 0, len(train))
	targets := make([]int, 0, len(train))
	for _, rec := range train {
		idx := rec.Result.Index()
		if idx < 0 {
			continue
		}
		windows = append(windows, []feature.Vector{rec.Features})
		targets = append(targets, idx)
	}
	if len(windows) < 10 {
		return nil, fmt.Errorf("backtest: only %d labeled fixtures in window", len(windows))
	}

	model := predictor.New(b.cfg.Predictor)
	for epoch := 0; epoch < b.cfg.TrainEpochs; epoch++ {
		if _, err := model.TrainOnBatch(windows, targets); err != nil {
			return nil, err
		}
	}
	return model, nil
}

// pctOf is the per-bet percentage return: profit over the bankroll the bet
// was sized against, floored at 1 unit to keep the series finite.
func pctOf(profit, bankrollBefore decimal.Decimal) float64 {
	den := bankrollBefore
	if den.LessThan(decimal.NewFromInt(1)) {
		den = decimal.NewFromInt(1)
	}
	return profit.Div(den).InexactFloat64()
}

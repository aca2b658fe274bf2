// Package engine orchestrates one betting cycle: score upcoming fixtures,
// detect value against market odds, size and place bets, then settle results
// and feed outcomes back into the model.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/oddsbreaker/engine/pkg/bankroll"
	"github.com/oddsbreaker/engine/pkg/feature"
	"github.com/oddsbreaker/engine/pkg/ledger"
	"github.com/oddsbreaker/engine/pkg/match"
	"github.com/oddsbreaker/engine/pkg/metrics"
	"github.com/oddsbreaker/engine/pkg/predictor"
	"github.com/oddsbreaker/engine/pkg/storage"
	"github.com/oddsbreaker/engine/pkg/streaming"
	"github.com/oddsbreaker/engine/pkg/valuedetect"
)

// Store is the persistence surface the engine needs. *storage.Store
// implements it.
type Store interface {
	UpsertFixture(ctx context.Context, f match.Fixture) error
	SaveFeatures(ctx context.Context, fixtureID string, v feature.Vector) error
	FeaturesFor(ctx context.Context, fixtureID string) (feature.Vector, error)
	Result(ctx context.Context, fixtureID string) (match.Outcome, error)
	SaveBet(ctx context.Context, b *ledger.Bet) error
	PendingBets(ctx context.Context) ([]*ledger.Bet, error)
	UnlearnedBets(ctx context.Context) ([]*ledger.Bet, error)
}

// Candidate is an upcoming fixture with its pre-kickoff feature vector.
type Candidate struct {
	Fixture  match.Fixture
	Features feature.Vector
}

// Config holds engine cycle parameters.
type Config struct {
	MaxBetsPerCycle int
	ReplayBatchSize int
	MinStake        decimal.Decimal
}

// DefaultConfig caps each cycle at 5 bets and replays 32 past examples after
// each learning pass.
func DefaultConfig() Config {
	return Config{
		MaxBetsPerCycle: 5,
		ReplayBatchSize: 32,
		MinStake:        decimal.NewFromFloat(0.01),
	}
}

// Engine wires the model, detector, bankroll and store into one cycle.
type Engine struct {
	cfg       Config
	store     Store
	model     *predictor.Predictor
	detector  *valuedetect.Detector
	bank      *bankroll.Manager
	snapshots predictor.StateStore
	hub       *streaming.Hub // optional
	met       *metrics.EngineMetrics
	log       zerolog.Logger
}

// New assembles an engine. hub may be nil when streaming is disabled.
func New(cfg Config, store Store, model *predictor.Predictor, detector *valuedetect.Detector,
	bank *bankroll.Manager, snapshots predictor.StateStore, hub *streaming.Hub,
	met *metrics.EngineMetrics, log zerolog.Logger) *Engine {

	d := DefaultConfig()
	if cfg.MaxBetsPerCycle <= 0 {
		cfg.MaxBetsPerCycle = d.MaxBetsPerCycle
	}
	if cfg.ReplayBatchSize <= 0 {
		cfg.ReplayBatchSize = d.ReplayBatchSize
	}
	if cfg.MinStake.LessThanOrEqual(decimal.Zero) {
		cfg.MinStake = d.MinStake
	}
	if met == nil {
		met = metrics.Default()
	}
	return &Engine{
		cfg:       cfg,
		store:     store,
		model:     model,
		detector:  detector,
		bank:      bank,
		snapshots: snapshots,
		hub:       hub,
		met:       met,
		log:       log.With().Str("component", "engine").Logger(),
	}
}

// candidateBet is a scored opportunity before placement ranking.
type candidateBet struct {
	fixture    match.Fixture
	assessment valuedetect.Assessment
	stake      decimal.Decimal
}

// GenerateBets scores the candidates, keeps the value opportunities, ranks
// them by expected value and places at most maxBets of them. maxBets <= 0
// falls back to the configured per-cycle cap. Fixtures whose prediction or
// market data fails are skipped, never guessed at.
func (e *Engine) GenerateBets(ctx context.Context, candidates []Candidate, maxBets int) ([]*ledger.Bet, error) {
	if maxBets <= 0 {
		maxBets = e.cfg.MaxBetsPerCycle
	}

	var opportunities []candidateBet
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := e.store.UpsertFixture(ctx, c.Fixture); err != nil {
			return nil, err
		}
		if err := e.store.SaveFeatures(ctx, c.Fixture.ID, c.Features); err != nil {
			return nil, err
		}

		probs, err := e.model.Predict([]feature.Vector{c.Features})
		if err != nil {
			e.met.RecordPrediction("error")
			e.log.Warn().Err(err).Str("fixture", c.Fixture.ID).Msg("prediction failed, skipping")
			continue
		}
		e.met.RecordPrediction("ok")
		if e.hub != nil {
			e.hub.BroadcastPrediction(c.Fixture.ID, probs)
		}

		assessments, err := e.detector.DetectEdge(probs, c.Fixture.Odds)
		if err != nil {
			e.log.Warn().Err(err).Str("fixture", c.Fixture.ID).Msg("edge detection failed, skipping")
			continue
		}

		for _, a := range assessments {
			e.met.RecordEdge(string(a.Status), string(a.Outcome), a.ExpectedValue)
			if e.hub != nil {
				e.hub.BroadcastEdge(c.Fixture.ID, a)
			}
			if !a.IsValue {
				continue
			}
			sized := e.bank.KellyStake(a.MarketOdds, a.ModelProb)
			if sized.Amount.LessThan(e.cfg.MinStake) {
				continue
			}
			opportunities = append(opportunities, candidateBet{
				fixture:    c.Fixture,
				assessment: a,
				stake:      sized.Amount,
			})
		}
	}

	// Best expected value first, at most one bet per fixture.
	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].assessment.ExpectedValue > opportunities[j].assessment.ExpectedValue
	})

	var placed []*ledger.Bet
	taken := make(map[string]bool)
	for _, opp := range opportunities {
		if len(placed) >= maxBets {
			break
		}
		if taken[opp.fixture.ID] {
			continue
		}

		bet, err := ledger.New(opp.fixture.ID, opp.assessment.Outcome,
			opp.assessment.MarketOdds, opp.stake, opp.assessment.ExpectedValue)
		if err != nil {
			return placed, err
		}
		if err := e.store.SaveBet(ctx, bet); err != nil {
			return placed, err
		}
		taken[opp.fixture.ID] = true
		placed = append(placed, bet)

		e.met.RecordBetPlaced(string(bet.Selection), metrics.DecimalToFloat64(bet.Stake))
		if e.hub != nil {
			e.hub.BroadcastBetPlaced(bet)
		}
		e.log.Info().
			Str("fixture", bet.FixtureID).
			Str("selection", string(bet.Selection)).
			Float64("odds", bet.Odds).
			Str("stake", bet.Stake.String()).
			Float64("ev", bet.ExpectedValue).
			Msg("bet placed")
	}
	return placed, nil
}

// ResolveAndLearn settles pending bets whose fixture result has been
// recorded, applies PnL to the bankroll, then trains the model on every
// newly resolved outcome. The model snapshot is persisted once per cycle,
// after all learning, and a failed save is surfaced.
func (e *Engine) ResolveAndLearn(ctx context.Context) error {
	pending, err := e.store.PendingBets(ctx)
	if err != nil {
		return err
	}

	for _, bet := range pending {
		result, err := e.store.Result(ctx, bet.FixtureID)
		if errors.Is(err, storage.ErrNotFound) {
			continue // fixture not played yet
		}
		if err != nil {
			return err
		}

		if err := bet.Resolve(result); err != nil {
			return err
		}
		if err := e.store.SaveBet(ctx, bet); err != nil {
			return err
		}

		balance := e.bank.ApplyPnL(bet.PnL)
		e.met.RecordBetResolved(string(bet.Selection), string(bet.Status),
			metrics.DecimalToFloat64(bet.PnL))
		e.met.UpdateBankroll(metrics.DecimalToFloat64(balance))
		if e.hub != nil {
			e.hub.BroadcastBetResolved(bet)
		}
		e.log.Info().
			Str("fixture", bet.FixtureID).
			Str("status", string(bet.Status)).
			Str("pnl", bet.PnL.String()).
			Str("bankroll", balance.String()).
			Msg("bet resolved")
	}

	return e.learn(ctx)
}

// learn feeds resolved outcomes back into the model exactly once per bet.
func (e *Engine) learn(ctx context.Context) error {
	unlearned, err := e.store.UnlearnedBets(ctx)
	if err != nil {
		return err
	}
	if len(unlearned) == 0 {
		return nil
	}

	var trained bool
	for _, bet := range unlearned {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := e.store.Result(ctx, bet.FixtureID)
		if err != nil {
			return err
		}
		features, err := e.store.FeaturesFor(ctx, bet.FixtureID)
		if errors.Is(err, storage.ErrNotFound) {
			// No features means nothing to learn from; retire the bet
			// so it does not block the queue forever.
			e.log.Warn().Str("fixture", bet.FixtureID).Msg("no stored features, skipping learn")
			if err := bet.MarkLearned(); err != nil {
				return err
			}
			if err := e.store.SaveBet(ctx, bet); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}

		loss, err := e.model.TrainStep([]feature.Vector{features}, result.Index())
		if err != nil {
			return fmt.Errorf("train on fixture %s: %w", bet.FixtureID, err)
		}
		trained = true

		m := e.model.Metrics()
		e.met.RecordTrainingStep(loss, m.LearningRate)
		if e.hub != nil {
			e.hub.BroadcastModelUpdate(m)
		}

		if err := bet.MarkLearned(); err != nil {
			return err
		}
		if err := e.store.SaveBet(ctx, bet); err != nil {
			return err
		}
	}

	if trained {
		if loss, ok, err := e.model.ExperienceReplay(e.cfg.ReplayBatchSize); err != nil {
			return err
		} else if ok {
			e.log.Debug().Float64("loss", loss).Msg("experience replay")
		}

		if e.snapshots != nil {
			if err := e.model.SaveState(e.snapshots); err != nil {
				return fmt.Errorf("persist model snapshot: %w", err)
			}
		}
	}
	return nil
}

// Bankroll exposes the current balance for reporting.
func (e *Engine) Bankroll() decimal.Decimal {
	return e.bank.Bankroll()
}

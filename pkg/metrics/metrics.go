// Package metrics provides Prometheus metrics for the betting engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// EngineMetrics collects and exposes engine-related Prometheus metrics.
type EngineMetrics struct {
	registry *prometheus.Registry

	// Model metrics
	TrainingSteps *prometheus.CounterVec
	TrainingLoss  *prometheus.GaugeVec
	LearningRate  *prometheus.GaugeVec
	Predictions   *prometheus.CounterVec

	// Edge detection metrics
	EdgesTotal *prometheus.CounterVec
	EdgeEV     *prometheus.HistogramVec

	// Bet metrics
	BetsPlaced   *prometheus.CounterVec
	BetsResolved *prometheus.CounterVec
	StakeSize    *prometheus.HistogramVec
	RealizedPnL  *prometheus.GaugeVec

	// Bankroll metrics
	Bankroll *prometheus.GaugeVec

	// Validation metrics
	BacktestSharpe *prometheus.GaugeVec
}

// NewEngineMetrics creates a new engine metrics collector.
func NewEngineMetrics() *EngineMetrics {
	registry := prometheus.NewRegistry()

	em := &EngineMetrics{
		registry: registry,

		TrainingSteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oddsbreaker_training_steps_total",
				Help: "Total number of online training steps",
			},
			[]string{},
		),
		TrainingLoss: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oddsbreaker_training_loss",
				Help: "Most recent training loss",
			},
			[]string{},
		),
		LearningRate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oddsbreaker_learning_rate",
				Help: "Current optimizer learning rate",
			},
			[]string{},
		),
		Predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oddsbreaker_predictions_total",
				Help: "Total number of fixture predictions",
			},
			[]string{"status"},
		),

		EdgesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oddsbreaker_edges_total",
				Help: "Market assessments by detected status",
			},
			[]string{"status", "market"},
		),
		EdgeEV: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oddsbreaker_edge_expected_value",
				Help:    "Expected value of assessed markets",
				Buckets: prometheus.LinearBuckets(-0.5, 0.1, 11), // -0.5 to 0.5
			},
			[]string{"market"},
		),

		BetsPlaced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oddsbreaker_bets_placed_total",
				Help: "Total number of bets placed",
			},
			[]string{"market"},
		),
		BetsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oddsbreaker_bets_resolved_total",
				Help: "Total number of bets resolved",
			},
			[]string{"market", "status"},
		),
		StakeSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oddsbreaker_stake_size_usd",
				Help:    "Stake size in USD",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
			},
			[]string{"market"},
		),
		RealizedPnL: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oddsbreaker_realized_pnl_usd",
				Help: "Cumulative realized P&L in USD (can be negative)",
			},
			[]string{"market"},
		),

		Bankroll: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oddsbreaker_bankroll_usd",
				Help: "Current bankroll in USD",
			},
			[]string{},
		),

		BacktestSharpe: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oddsbreaker_backtest_sharpe",
				Help: "Annualized Sharpe from the most recent backtest",
			},
			[]string{"market"},
		),
	}

	em.registerAll()

	return em
}

func (em *EngineMetrics) registerAll() {
	em.registry.MustRegister(
		em.TrainingSteps,
		em.TrainingLoss,
		em.LearningRate,
		em.Predictions,
		em.EdgesTotal,
		em.EdgeEV,
		em.BetsPlaced,
		em.BetsResolved,
		em.StakeSize,
		em.RealizedPnL,
		em.Bankroll,
		em.BacktestSharpe,
	)
}

// Registry returns the prometheus registry.
func (em *EngineMetrics) Registry() *prometheus.Registry {
	return em.registry
}

// --- Helper methods for recording metrics ---

// RecordTrainingStep records one online training step.
func (em *EngineMetrics) RecordTrainingStep(loss, learningRate float64) {
	em.TrainingSteps.WithLabelValues().Inc()
	em.TrainingLoss.WithLabelValues().Set(loss)
	em.LearningRate.WithLabelValues().Set(learningRate)
}

// RecordPrediction records a fixture prediction attempt.
func (em *EngineMetrics) RecordPrediction(status string) {
	em.Predictions.WithLabelValues(status).Inc()
}

// RecordEdge records a market assessment.
func (em *EngineMetrics) RecordEdge(status, market string, expectedValue float64) {
	em.EdgesTotal.WithLabelValues(status, market).Inc()
	em.EdgeEV.WithLabelValues(market).Observe(expectedValue)
}

// RecordBetPlaced records a placed bet.
func (em *EngineMetrics) RecordBetPlaced(market string, stakeUSD float64) {
	em.BetsPlaced.WithLabelValues(market).Inc()
	em.StakeSize.WithLabelValues(market).Observe(stakeUSD)
}

// RecordBetResolved records a settled bet.
func (em *EngineMetrics) RecordBetResolved(market, status string, pnlUSD float64) {
	em.BetsResolved.WithLabelValues(market, status).Inc()
	em.RealizedPnL.WithLabelValues(market).Add(pnlUSD)
}

// UpdateBankroll updates the bankroll gauge.
func (em *EngineMetrics) UpdateBankroll(balanceUSD float64) {
	em.Bankroll.WithLabelValues().Set(balanceUSD)
}

// UpdateBacktestSharpe publishes a per-market backtest Sharpe.
func (em *EngineMetrics) UpdateBacktestSharpe(market string, sharpe float64) {
	em.BacktestSharpe.WithLabelValues(market).Set(sharpe)
}

// DecimalToFloat64 safely converts decimal.Decimal to float64 for metrics.
func DecimalToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// Global instance for convenience
var defaultMetrics *EngineMetrics
var once sync.Once

// Default returns the default global metrics instance.
func Default() *EngineMetrics {
	once.Do(func() {
		defaultMetrics = NewEngineMetrics()
	})
	return defaultMetrics
}

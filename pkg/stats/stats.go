// Package stats provides the return-series statistics shared by the
// backtester and the Monte Carlo simulator.
package stats

import (
	"math"
	"sort"
)

// TradingDaysPerYear annualizes Sharpe under the assumption that bets land
// roughly daily.
const TradingDaysPerYear = 365

// Mean returns the arithmetic mean, or 0 for an empty series.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the population standard deviation, or 0 for fewer than two
// samples.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// Sharpe returns the annualized Sharpe ratio of a per-bet return series:
// (mean - riskFree) / std * sqrt(365). Degenerate series (fewer than two
// returns, or zero variance) resolve to exactly 0, never NaN or Inf.
func Sharpe(returns []float64, riskFree float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	std := StdDev(returns)
	if std == 0 {
		return 0
	}
	return (Mean(returns) - riskFree) / std * math.Sqrt(TradingDaysPerYear)
}

// SharpeFromMoments computes the same annualized Sharpe from streaming
// accumulators, for series too large to hold in memory.
func SharpeFromMoments(n int64, sum, sumSq, riskFree float64) float64 {
	if n < 2 {
		return 0
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance <= 0 {
		return 0
	}
	return (mean - riskFree) / math.Sqrt(variance) * math.Sqrt(TradingDaysPerYear)
}

// Median returns the middle value of the series, or 0 when empty.
func Median(xs []float64) float64 {
	return Percentile(xs, 50)
}

// Percentile returns the p-th percentile (0-100) with linear interpolation
// between ranks, or 0 when the series is empty.
func Percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// oddsbreaker-backtest replays resolved fixture history through the engine's
// model and staking policy, reports per-market Sharpe verdicts and stress
// tests the surviving strategy with Monte Carlo simulation.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/oddsbreaker/engine/pkg/backtest"
	"github.com/oddsbreaker/engine/pkg/match"
	"github.com/oddsbreaker/engine/pkg/metrics"
	"github.com/oddsbreaker/engine/pkg/montecarlo"
)

var (
	// Input flags
	dataFile   = flag.String("data", "", "Path to historical fixtures CSV (required)")
	outputFile = flag.String("output", "", "Output file for JSON results (default stdout)")

	// Backtest flags
	windowSize = flag.Int("window", 100, "Training window size in fixtures")
	testSize   = flag.Int("test", 20, "Test window size in fixtures")
	epochs     = flag.Int("epochs", 3, "Training passes per window")
	balance    = flag.Float64("balance", 1000, "Initial bankroll")
	kelly      = flag.Float64("kelly", 0.5, "Kelly multiplier")
	maxStake   = flag.Float64("max-stake", 0.05, "Maximum stake as fraction of bankroll")
	riskFree   = flag.Float64("risk-free", 0, "Per-bet risk-free rate")
	verbose    = flag.Bool("verbose", false, "Verbose output")

	// Monte Carlo flags
	mcPaths = flag.Int("mc-paths", 10000, "Monte Carlo paths (0 disables the stress test)")
	mcBets  = flag.Int("mc-bets", 500, "Bets per Monte Carlo path")
	mcStake = flag.Float64("mc-stake", 0.02, "Flat stake fraction per Monte Carlo bet")
)

// report is the combined JSON output.
type report struct {
	Backtest   *backtest.Result   `json:"backtest"`
	MonteCarlo *montecarlo.Result `json:"monte_carlo,omitempty"`
}

func main() {
	flag.Parse()

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	if *dataFile == "" {
		fmt.Fprintln(os.Stderr, "missing -data: path to historical fixtures CSV")
		flag.Usage()
		os.Exit(2)
	}

	history, err := backtest.LoadHistoryFromCSV(*dataFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load history")
	}
	log.Info().Int("fixtures", len(history)).Msg("history loaded")

	cfg := backtest.DefaultConfig()
	cfg.WindowSize = *windowSize
	cfg.TestSize = *testSize
	cfg.TrainEpochs = *epochs
	cfg.InitialBankroll = decimal.NewFromFloat(*balance)
	cfg.KellyMultiplier = *kelly
	cfg.MaxStakePct = *maxStake
	cfg.RiskFreeRate = *riskFree

	bt := backtest.New(cfg, log)
	result, err := bt.Run(context.Background(), history)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}

	printSummary(result)

	met := metrics.Default()
	for o, m := range result.Markets {
		met.UpdateBacktestSharpe(string(o), m.Sharpe)
	}

	out := report{Backtest: result}
	if *mcPaths > 0 && len(result.Bets) > 0 {
		mc, err := stressTest(result)
		if err != nil {
			log.Fatal().Err(err).Msg("monte carlo failed")
		}
		out.MonteCarlo = mc
		printStress(mc)
	}

	if err := writeReport(out, *outputFile); err != nil {
		log.Fatal().Err(err).Msg("failed to write results")
	}
}

// stressTest feeds the backtest's empirical win rate and average odds into
// the Monte Carlo simulator.
func stressTest(r *backtest.Result) (*montecarlo.Result, error) {
	var wins int
	var oddsSum float64
	for _, b := range r.Bets {
		if b.Won {
			wins++
		}
		oddsSum += b.Odds
	}

	cfg := montecarlo.DefaultConfig()
	cfg.Paths = *mcPaths
	cfg.BetsPerPath = *mcBets
	cfg.StakePct = *mcStake
	cfg.InitialBankroll = *balance
	cfg.WinProb = float64(wins) / float64(len(r.Bets))
	cfg.Odds = oddsSum / float64(len(r.Bets))
	cfg.RiskFreeRate = *riskFree

	sim, err := montecarlo.New(cfg)
	if err != nil {
		return nil, err
	}
	return sim.Run(context.Background())
}

func printSummary(r *backtest.Result) {
	fmt.Println("=== Backtest Results ===")
	fmt.Printf("Windows:          %d\n", r.Windows)
	fmt.Printf("Total bets:       %d\n", len(r.Bets))
	fmt.Printf("Initial bankroll: $%s\n", r.InitialBankroll.StringFixed(2))
	fmt.Printf("Final bankroll:   $%s\n", r.FinalBankroll.StringFixed(2))
	fmt.Printf("ROI:              %.2f%%\n", r.ROIPct)
	fmt.Printf("Overall Sharpe:   %.2f\n", r.OverallSharpe)
	fmt.Println()
	fmt.Println("Per-market verdicts:")
	for _, o := range match.Outcomes() {
		m := r.Markets[o]
		verdict := "REJECTED"
		if m.Approved {
			verdict = "APPROVED"
		}
		fmt.Printf("  %s: sharpe=%.2f bets=%d avg_return=%.2f%% -> %s\n",
			o, m.Sharpe, m.TotalBets, m.AvgReturnPct, verdict)
	}
	fmt.Println()
}

func printStress(mc *montecarlo.Result) {
	fmt.Println("=== Monte Carlo Stress Test ===")
	fmt.Printf("Paths:            %d\n", mc.Paths)
	fmt.Printf("Ruin probability: %.2f%%\n", mc.RuinProbability*100)
	fmt.Printf("Median final:     $%.2f\n", mc.MedianFinal)
	fmt.Printf("P5/P95:           $%.2f / $%.2f\n", mc.P5, mc.P95)
	fmt.Printf("Avg max drawdown: %.2f%%\n", mc.AvgMaxDrawdown)
	fmt.Printf("Sharpe:           %.2f\n", mc.Sharpe)
	fmt.Printf("Viable:           %v\n", mc.IsViable)
	fmt.Println()
}

func writeReport(out report, path string) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return err
	}
	fmt.Printf("Results written to %s\n", path)
	return nil
}

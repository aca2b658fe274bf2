// Package config loads the YAML configuration for the engine binaries,
// applying struct defaults and validating the result.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/oddsbreaker/engine/pkg/logging"
)

var validate = validator.New()

// Config is the root configuration document.
type Config struct {
	Logging logging.Config `yaml:"logging"`

	Server struct {
		MetricsAddr     string        `yaml:"metrics_addr" default:":9090"`
		StreamAddr      string        `yaml:"stream_addr" default:":8080"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`

	Store struct {
		Path         string `yaml:"path" default:"oddsbreaker.db"`
		SnapshotPath string `yaml:"snapshot_path" default:"predictor.json"`
	} `yaml:"store"`

	Model struct {
		HiddenSize      int     `yaml:"hidden_size" default:"32" validate:"gt=0"`
		HeadSize        int     `yaml:"head_size" default:"16" validate:"gt=0"`
		LearningRate    float64 `yaml:"learning_rate" default:"0.0005" validate:"gt=0"`
		WeightDecay     float64 `yaml:"weight_decay" default:"0.0001" validate:"gte=0"`
		PenaltyFactor   float64 `yaml:"penalty_factor" default:"5.0" validate:"gte=0"`
		ClipNorm        float64 `yaml:"clip_norm" default:"1.0" validate:"gt=0"`
		ReplaySize      int     `yaml:"replay_size" default:"512" validate:"gt=0"`
		PlateauPatience int     `yaml:"plateau_patience" default:"5" validate:"gt=0"`
		Seed            int64   `yaml:"seed" default:"1"`
	} `yaml:"model"`

	Detector struct {
		ValueEV  float64 `yaml:"value_ev" default:"0.05"`
		GoldEV   float64 `yaml:"gold_ev" default:"0.20"`
		GoldProb float64 `yaml:"gold_prob" default:"0.40" validate:"gte=0,lte=1"`
		TrapProb float64 `yaml:"trap_prob" default:"0.65" validate:"gte=0,lte=1"`
		TrapOdds float64 `yaml:"trap_odds" default:"1.25" validate:"gt=1"`
		TrapEV   float64 `yaml:"trap_ev" default:"-0.10"`
	} `yaml:"detector"`

	Bankroll struct {
		Initial         float64 `yaml:"initial" default:"1000" validate:"gt=0"`
		KellyMultiplier float64 `yaml:"kelly_multiplier" default:"0.5" validate:"gt=0,lte=1"`
		MaxStakePct     float64 `yaml:"max_stake_pct" default:"0.05" validate:"gt=0,lte=1"`
	} `yaml:"bankroll"`

	Engine struct {
		TickInterval    time.Duration `yaml:"tick_interval" default:"5m"`
		MaxBetsPerCycle int           `yaml:"max_bets_per_cycle" default:"5" validate:"gt=0"`
		ReplayBatchSize int           `yaml:"replay_batch_size" default:"32" validate:"gt=0"`
	} `yaml:"engine"`

	Backtest struct {
		WindowSize   int     `yaml:"window_size" default:"100" validate:"gt=0"`
		TestSize     int     `yaml:"test_size" default:"20" validate:"gt=0"`
		TrainEpochs  int     `yaml:"train_epochs" default:"3" validate:"gt=0"`
		RiskFreeRate float64 `yaml:"risk_free_rate" default:"0"`
	} `yaml:"backtest"`

	MonteCarlo struct {
		Paths       int     `yaml:"paths" default:"10000" validate:"gt=0"`
		BetsPerPath int     `yaml:"bets_per_path" default:"500" validate:"gt=0"`
		StakePct    float64 `yaml:"stake_pct" default:"0.02" validate:"gt=0,lte=1"`
	} `yaml:"monte_carlo"`
}

// Load reads a YAML config file, fills defaults and validates it. An empty
// path yields the pure-defaults configuration.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

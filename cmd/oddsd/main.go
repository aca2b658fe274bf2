// oddsd is the betting engine daemon. It ingests fixtures and results over
// HTTP, scores fixtures on a fixed cadence, places value bets and learns
// online from settled outcomes.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/oddsbreaker/engine/pkg/bankroll"
	"github.com/oddsbreaker/engine/pkg/config"
	"github.com/oddsbreaker/engine/pkg/dixoncoles"
	"github.com/oddsbreaker/engine/pkg/engine"
	"github.com/oddsbreaker/engine/pkg/feature"
	"github.com/oddsbreaker/engine/pkg/ledger"
	"github.com/oddsbreaker/engine/pkg/logging"
	"github.com/oddsbreaker/engine/pkg/match"
	"github.com/oddsbreaker/engine/pkg/metrics"
	"github.com/oddsbreaker/engine/pkg/predictor"
	"github.com/oddsbreaker/engine/pkg/storage"
	"github.com/oddsbreaker/engine/pkg/streaming"
	"github.com/oddsbreaker/engine/pkg/valuedetect"
)

var configPath = flag.String("config", "", "Path to YAML config (empty = defaults)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("daemon failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	store, err := storage.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	model := predictor.New(predictor.Config{
		HiddenSize:      cfg.Model.HiddenSize,
		HeadSize:        cfg.Model.HeadSize,
		LearningRate:    cfg.Model.LearningRate,
		WeightDecay:     cfg.Model.WeightDecay,
		PenaltyFactor:   cfg.Model.PenaltyFactor,
		ClipNorm:        cfg.Model.ClipNorm,
		ReplaySize:      cfg.Model.ReplaySize,
		PlateauPatience: cfg.Model.PlateauPatience,
		Seed:            cfg.Model.Seed,
	})
	snapshots := &predictor.FileStore{Path: cfg.Store.SnapshotPath}
	switch err := model.LoadState(snapshots); {
	case errors.Is(err, predictor.ErrNoSnapshot):
		log.Info().Msg("no model snapshot, starting fresh")
	case err != nil:
		return fmt.Errorf("load model snapshot: %w", err)
	default:
		log.Info().Int64("steps", model.Steps()).Msg("model snapshot restored")
	}

	detector := valuedetect.New(valuedetect.Config{
		ValueEV:  cfg.Detector.ValueEV,
		GoldEV:   cfg.Detector.GoldEV,
		GoldProb: cfg.Detector.GoldProb,
		TrapProb: cfg.Detector.TrapProb,
		TrapOdds: cfg.Detector.TrapOdds,
		TrapEV:   cfg.Detector.TrapEV,
	})
	bank := bankroll.NewManager(decimal.NewFromFloat(cfg.Bankroll.Initial),
		cfg.Bankroll.KellyMultiplier, cfg.Bankroll.MaxStakePct)

	met := metrics.Default()
	met.UpdateBankroll(cfg.Bankroll.Initial)

	hub := streaming.NewHub(log)
	go hub.Run(ctx)

	eng := engine.New(engine.Config{
		MaxBetsPerCycle: cfg.Engine.MaxBetsPerCycle,
		ReplayBatchSize: cfg.Engine.ReplayBatchSize,
	}, store, model, detector, bank, snapshots, hub, met, log)

	app := &app{
		store: store,
		eng:   eng,
		log:   log,
	}

	metricsSrv := serveHTTP(cfg.Server.MetricsAddr, metricsMux(met), log)
	streamSrv := serveHTTP(cfg.Server.StreamAddr, app.apiMux(hub), log)

	ticker := time.NewTicker(cfg.Engine.TickInterval)
	defer ticker.Stop()

	log.Info().
		Str("metrics", cfg.Server.MetricsAddr).
		Str("stream", cfg.Server.StreamAddr).
		Dur("tick", cfg.Engine.TickInterval).
		Msg("oddsd started")

	for {
		select {
		case <-sigCh:
			log.Info().Msg("shutting down")
			cancel()
			shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer done()
			metricsSrv.Shutdown(shutdownCtx)
			streamSrv.Shutdown(shutdownCtx)
			return nil

		case <-ticker.C:
			app.tick(ctx)
		}
	}
}

// app holds the daemon's mutable state: the candidate queue filled by the
// ingest endpoint and drained each tick.
type app struct {
	store *storage.Store
	eng   *engine.Engine
	log   zerolog.Logger

	mu    sync.Mutex
	queue []engine.Candidate
}

// tick runs one full engine cycle.
func (a *app) tick(ctx context.Context) {
	a.mu.Lock()
	candidates := a.queue
	a.queue = nil
	a.mu.Unlock()

	if len(candidates) > 0 {
		placed, err := a.eng.GenerateBets(ctx, candidates, 0)
		if err != nil {
			a.log.Error().Err(err).Msg("bet generation failed")
		} else {
			a.log.Info().Int("candidates", len(candidates)).Int("placed", len(placed)).Msg("cycle: bets generated")
		}
	}

	if err := a.eng.ResolveAndLearn(ctx); err != nil {
		a.log.Error().Err(err).Msg("resolve and learn failed")
	}
}

// fixtureRequest is the ingest payload: a fixture plus its raw pre-kickoff
// stats.
type fixtureRequest struct {
	Fixture match.Fixture    `json:"fixture"`
	Stats   feature.RawStats `json:"stats"`
}

// priceRequest asks for Dixon-Coles pricing of a fixture from its expected
// goal rates.
type priceRequest struct {
	HomeLambda float64 `json:"home_lambda"`
	AwayLambda float64 `json:"away_lambda"`
	Rho        float64 `json:"rho"`
	Line       float64 `json:"line"` // over/under goal line, 0 = 2.5
}

// resultRequest records a final score.
type resultRequest struct {
	FixtureID string `json:"fixture_id"`
	HomeGoals int    `json:"home_goals"`
	AwayGoals int    `json:"away_goals"`
}

func (a *app) apiMux(hub *streaming.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/fixtures", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req fixtureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		vec, err := feature.Build(req.Stats)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		a.mu.Lock()
		a.queue = append(a.queue, engine.Candidate{Fixture: req.Fixture, Features: vec})
		queued := len(a.queue)
		a.mu.Unlock()

		writeJSON(w, http.StatusAccepted, map[string]any{"queued": queued})
	})

	mux.HandleFunc("/price", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req priceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Line == 0 {
			req.Line = 2.5
		}
		matrix, err := dixoncoles.NewScoreMatrix(req.HomeLambda, req.AwayLambda, req.Rho, dixoncoles.DefaultMaxGoals)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		over, under := matrix.OverUnder(int(req.Line))
		btts, noBtts := matrix.BothTeamsToScore()
		writeJSON(w, http.StatusOK, map[string]any{
			"match":    matrix.MatchProbabilities(),
			"over":     over,
			"under":    under,
			"btts_yes": btts,
			"btts_no":  noBtts,
			"line":     req.Line,
		})
	})

	mux.HandleFunc("/results", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req resultRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := a.store.RecordResult(r.Context(), req.FixtureID, req.HomeGoals, req.AwayGoals); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, storage.ErrNotFound) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"fixture_id": req.FixtureID,
			"result":     match.ResultFromScore(req.HomeGoals, req.AwayGoals),
		})
	})

	mux.HandleFunc("/bets", func(w http.ResponseWriter, r *http.Request) {
		bets, err := a.store.PendingBets(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if bets == nil {
			bets = []*ledger.Bet{}
		}
		writeJSON(w, http.StatusOK, bets)
	})

	mux.HandleFunc("/bankroll", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"bankroll": a.eng.Bankroll()})
	})

	return mux
}

func metricsMux(met *metrics.EngineMetrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(met.Registry(), promhttp.HandlerOpts{}))
	return mux
}

func serveHTTP(addr string, mux *http.ServeMux, log zerolog.Logger) *http.Server {
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("http server failed")
		}
	}()
	return srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

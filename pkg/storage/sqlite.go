// Package storage persists fixtures, their feature vectors and the bet
// ledger in a single SQLite database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/oddsbreaker/engine/pkg/feature"
	"github.com/oddsbreaker/engine/pkg/ledger"
	"github.com/oddsbreaker/engine/pkg/match"
)

// ErrNotFound reports a missing row.
var ErrNotFound = errors.New("storage: not found")

// TrainingExample is one resolved fixture in model input form.
type TrainingExample struct {
	FixtureID string
	Features  feature.Vector
	Target    int // 0=home, 1=draw, 2=away
}

// Store is the SQLite-backed persistence layer. A single connection with WAL
// journaling keeps writers serialized without busy-loop retries.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	featureCols := make([]string, feature.Size)
	for i, name := range feature.ColumnNames {
		featureCols[i] = name + " REAL NOT NULL"
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS fixtures (
			id         TEXT PRIMARY KEY,
			league     TEXT,
			home_team  TEXT,
			away_team  TEXT,
			kickoff    TEXT NOT NULL,
			odds_home  REAL,
			odds_draw  REAL,
			odds_away  REAL,
			home_goals INTEGER,
			away_goals INTEGER,
			result     TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS fixture_features (
			fixture_id TEXT PRIMARY KEY REFERENCES fixtures(id),
			` + strings.Join(featureCols, ",\n\t\t\t") + `
		)`,
		`CREATE TABLE IF NOT EXISTS bets (
			id             TEXT PRIMARY KEY,
			fixture_id     TEXT NOT NULL REFERENCES fixtures(id),
			selection      TEXT NOT NULL,
			odds           REAL NOT NULL,
			stake          TEXT NOT NULL,
			expected_value REAL NOT NULL,
			status         TEXT NOT NULL,
			pnl            TEXT NOT NULL,
			placed_at      TEXT NOT NULL,
			learned        INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bets_status ON bets(status)`,
		`CREATE INDEX IF NOT EXISTS idx_fixtures_kickoff ON fixtures(kickoff)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- fixtures ---

// UpsertFixture inserts or refreshes a fixture. Recorded results are never
// overwritten by an upsert.
func (s *Store) UpsertFixture(ctx context.Context, f match.Fixture) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fixtures (id, league, home_team, away_team, kickoff, odds_home, odds_draw, odds_away)
		 VALUES (?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
			league = excluded.league,
			home_team = excluded.home_team,
			away_team = excluded.away_team,
			kickoff = excluded.kickoff,
			odds_home = excluded.odds_home,
			odds_draw = excluded.odds_draw,
			odds_away = excluded.odds_away`,
		f.ID, f.League, f.HomeTeam, f.AwayTeam,
		f.Kickoff.UTC().Format(time.RFC3339Nano),
		f.Odds.Home, f.Odds.Draw, f.Odds.Away,
	)
	if err != nil {
		return fmt.Errorf("upsert fixture %s: %w", f.ID, err)
	}
	return nil
}

// SaveFeatures stores the pre-kickoff feature vector for a fixture.
func (s *Store) SaveFeatures(ctx context.Context, fixtureID string, v feature.Vector) error {
	if err := v.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", feature.Size), ",")
	updates := make([]string, feature.Size)
	args := make([]any, 0, feature.Size+1)
	args = append(args, fixtureID)
	for i, name := range feature.ColumnNames {
		updates[i] = name + " = excluded." + name
		args = append(args, v[i])
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fixture_features (fixture_id, `+strings.Join(feature.ColumnNames[:], ", ")+`)
		 VALUES (?, `+placeholders+`)
		 ON CONFLICT(fixture_id) DO UPDATE SET `+strings.Join(updates, ", "),
		args...,
	)
	if err != nil {
		return fmt.Errorf("save features for %s: %w", fixtureID, err)
	}
	return nil
}

// RecordResult writes the final score and derived 1X2 result.
func (s *Store) RecordResult(ctx context.Context, fixtureID string, homeGoals, awayGoals int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE fixtures SET home_goals = ?, away_goals = ?, result = ? WHERE id = ?`,
		homeGoals, awayGoals, string(match.ResultFromScore(homeGoals, awayGoals)), fixtureID,
	)
	if err != nil {
		return fmt.Errorf("record result for %s: %w", fixtureID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: fixture %s", ErrNotFound, fixtureID)
	}
	return nil
}

// Fixture loads a single fixture by id.
func (s *Store) Fixture(ctx context.Context, id string) (match.Fixture, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, league, home_team, away_team, kickoff, odds_home, odds_draw, odds_away
		 FROM fixtures WHERE id = ?`, id)

	var f match.Fixture
	var kickoff string
	err := row.Scan(&f.ID, &f.League, &f.HomeTeam, &f.AwayTeam, &kickoff,
		&f.Odds.Home, &f.Odds.Draw, &f.Odds.Away)
	if errors.Is(err, sql.ErrNoRows) {
		return match.Fixture{}, fmt.Errorf("%w: fixture %s", ErrNotFound, id)
	}
	if err != nil {
		return match.Fixture{}, fmt.Errorf("load fixture %s: %w", id, err)
	}
	f.Kickoff, _ = time.Parse(time.RFC3339Nano, kickoff)
	return f, nil
}

// Result returns the recorded 1X2 result for a fixture, or ErrNotFound when
// the fixture is unknown or not yet resolved.
func (s *Store) Result(ctx context.Context, fixtureID string) (match.Outcome, error) {
	var result sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM fixtures WHERE id = ?`, fixtureID).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !result.Valid) {
		return "", fmt.Errorf("%w: result for fixture %s", ErrNotFound, fixtureID)
	}
	if err != nil {
		return "", fmt.Errorf("load result for %s: %w", fixtureID, err)
	}
	return match.Outcome(result.String), nil
}

// FeaturesFor loads the stored feature vector for a fixture.
func (s *Store) FeaturesFor(ctx context.Context, fixtureID string) (feature.Vector, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+strings.Join(feature.ColumnNames[:], ", ")+
			` FROM fixture_features WHERE fixture_id = ?`, fixtureID)

	var v feature.Vector
	dest := make([]any, feature.Size)
	for i := range v {
		dest[i] = &v[i]
	}
	err := row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return feature.Vector{}, fmt.Errorf("%w: features for fixture %s", ErrNotFound, fixtureID)
	}
	if err != nil {
		return feature.Vector{}, fmt.Errorf("load features for %s: %w", fixtureID, err)
	}
	return v, nil
}

// TrainingExamples returns up to limit resolved fixtures with stored
// features, oldest first. limit <= 0 means no limit.
func (s *Store) TrainingExamples(ctx context.Context, limit int) ([]TrainingExample, error) {
	q := `SELECT f.id, f.result, ` + prefixed("ff.", feature.ColumnNames[:]) + `
		FROM fixtures f
		JOIN fixture_features ff ON ff.fixture_id = f.id
		WHERE f.result IS NOT NULL
		ORDER BY f.kickoff ASC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("load training examples: %w", err)
	}
	defer rows.Close()

	var out []TrainingExample
	for rows.Next() {
		var ex TrainingExample
		var result string
		dest := make([]any, 0, feature.Size+2)
		dest = append(dest, &ex.FixtureID, &result)
		for i := range ex.Features {
			dest = append(dest, &ex.Features[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan training example: %w", err)
		}
		ex.Target = match.Outcome(result).Index()
		if ex.Target < 0 {
			continue
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// --- bets ---

// SaveBet inserts a bet or overwrites its mutable lifecycle fields.
func (s *Store) SaveBet(ctx context.Context, b *ledger.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bets (id, fixture_id, selection, odds, stake, expected_value, status, pnl, placed_at, learned)
		 VALUES (?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			pnl = excluded.pnl,
			learned = excluded.learned`,
		b.ID, b.FixtureID, string(b.Selection), b.Odds, b.Stake.String(),
		b.ExpectedValue, string(b.Status), b.PnL.String(),
		b.PlacedAt.UTC().Format(time.RFC3339Nano), boolToInt(b.Learned),
	)
	if err != nil {
		return fmt.Errorf("save bet %s: %w", b.ID, err)
	}
	return nil
}

// PendingBets returns all unresolved bets, oldest first.
func (s *Store) PendingBets(ctx context.Context) ([]*ledger.Bet, error) {
	return s.queryBets(ctx, `status = ?`, string(ledger.StatusPending))
}

// UnlearnedBets returns resolved bets whose outcome has not yet been fed
// back into the model.
func (s *Store) UnlearnedBets(ctx context.Context) ([]*ledger.Bet, error) {
	return s.queryBets(ctx, `learned = 0 AND status IN (?, ?)`,
		string(ledger.StatusWon), string(ledger.StatusLost))
}

// BetsForFixture returns every bet placed on a fixture.
func (s *Store) BetsForFixture(ctx context.Context, fixtureID string) ([]*ledger.Bet, error) {
	return s.queryBets(ctx, `fixture_id = ?`, fixtureID)
}

func (s *Store) queryBets(ctx context.Context, where string, args ...any) ([]*ledger.Bet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fixture_id, selection, odds, stake, expected_value, status, pnl, placed_at, learned
		 FROM bets WHERE `+where+` ORDER BY placed_at ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query bets: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBet(rows *sql.Rows) (*ledger.Bet, error) {
	var (
		b                    ledger.Bet
		selection, status    string
		stake, pnl, placedAt string
		learned              int
	)
	if err := rows.Scan(&b.ID, &b.FixtureID, &selection, &b.Odds, &stake,
		&b.ExpectedValue, &status, &pnl, &placedAt, &learned); err != nil {
		return nil, fmt.Errorf("scan bet: %w", err)
	}

	b.Selection = match.Outcome(selection)
	b.Status = ledger.Status(status)
	b.Learned = learned != 0

	var err error
	if b.Stake, err = decimal.NewFromString(stake); err != nil {
		return nil, fmt.Errorf("bet %s: bad stake %q: %w", b.ID, stake, err)
	}
	if b.PnL, err = decimal.NewFromString(pnl); err != nil {
		return nil, fmt.Errorf("bet %s: bad pnl %q: %w", b.ID, pnl, err)
	}
	if b.PlacedAt, err = time.Parse(time.RFC3339Nano, placedAt); err != nil {
		return nil, fmt.Errorf("bet %s: bad placed_at %q: %w", b.ID, placedAt, err)
	}
	return &b, nil
}

func prefixed(prefix string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + c
	}
	return strings.Join(out, ", ")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

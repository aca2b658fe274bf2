package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/oddsbreaker/engine/pkg/feature"
	"github.com/oddsbreaker/engine/pkg/match"
)

// LoadHistoryFromCSV loads resolved fixture history from a CSV file.
// Expected columns: fixture_id, kickoff, league, home_team, away_team,
// home_goals, away_goals, odds_home, odds_draw, odds_away, plus the 14
// feature columns named in feature.ColumnNames. Rows missing goals or any
// feature column are rejected; odds columns may be empty (unquoted market).
func LoadHistoryFromCSV(filename string) ([]Record, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[col] = i
	}
	for _, required := range append([]string{"fixture_id", "home_goals", "away_goals"}, feature.ColumnNames[:]...) {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	var history []Record
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		line++

		rec := Record{}
		rec.ID = row[colIndex["fixture_id"]]
		if idx, ok := colIndex["league"]; ok {
			rec.League = row[idx]
		}
		if idx, ok := colIndex["home_team"]; ok {
			rec.HomeTeam = row[idx]
		}
		if idx, ok := colIndex["away_team"]; ok {
			rec.AwayTeam = row[idx]
		}
		if idx, ok := colIndex["kickoff"]; ok {
			if t, err := time.Parse(time.RFC3339, row[idx]); err == nil {
				rec.Kickoff = t
			} else if ts, err := strconv.ParseInt(row[idx], 10, 64); err == nil {
				rec.Kickoff = time.Unix(ts, 0).UTC()
			}
		}

		rec.HomeGoals, err = strconv.Atoi(row[colIndex["home_goals"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad home_goals: %w", line, err)
		}
		rec.AwayGoals, err = strconv.Atoi(row[colIndex["away_goals"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad away_goals: %w", line, err)
		}
		rec.Result = match.ResultFromScore(rec.HomeGoals, rec.AwayGoals)

		// Empty or unparsable odds stay zero, which Odds.For treats as
		// an unquoted market.
		if idx, ok := colIndex["odds_home"]; ok {
			rec.Odds.Home, _ = strconv.ParseFloat(row[idx], 64)
		}
		if idx, ok := colIndex["odds_draw"]; ok {
			rec.Odds.Draw, _ = strconv.ParseFloat(row[idx], 64)
		}
		if idx, ok := colIndex["odds_away"]; ok {
			rec.Odds.Away, _ = strconv.ParseFloat(row[idx], 64)
		}

		raw := make([]float64, feature.Size)
		for i, name := range feature.ColumnNames {
			raw[i], err = strconv.ParseFloat(row[colIndex[name]], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad %s: %w", line, name, err)
			}
		}
		rec.Features, err = feature.FromSlice(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		history = append(history, rec)
	}

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Kickoff.Before(history[j].Kickoff)
	})
	return history, nil
}

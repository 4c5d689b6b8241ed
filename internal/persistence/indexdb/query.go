package indexdb

import (
	"context"
	"database/sql"
)

// Episodes returns the most recently started episodes first.
func (s *SQLiteIndex) Episodes(ctx context.Context, limit int) ([]EpisodeRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, scenario, scenario_digest, seed, started_at, finished_at, legs, completed, steps, delivered
		FROM episodes ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EpisodeRow
	for rows.Next() {
		var (
			e        EpisodeRow
			finished sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Scenario, &e.ScenarioDigest, &e.Seed, &e.StartedAt, &finished, &e.Legs, &e.Completed, &e.Steps, &e.Delivered); err != nil {
			return nil, err
		}
		e.FinishedAt = finished.String
		out = append(out, e)
	}
	return out, rows.Err()
}

type LegRow struct {
	Leg       int    `json:"leg"`
	Room      string `json:"room"`
	Outcome   string `json:"outcome"`
	Steps     int    `json:"steps"`
	Delivered int    `json:"delivered"`
	Loaded    bool   `json:"loaded"`
	Reason    string `json:"reason,omitempty"`
}

func (s *SQLiteIndex) Legs(ctx context.Context, episodeID string) ([]LegRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT leg, room, outcome, steps, delivered, loaded, COALESCE(reason,'')
		FROM legs WHERE episode_id = ? ORDER BY leg`, episodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LegRow
	for rows.Next() {
		var (
			l      LegRow
			loaded int
		)
		if err := rows.Scan(&l.Leg, &l.Room, &l.Outcome, &l.Steps, &l.Delivered, &loaded, &l.Reason); err != nil {
			return nil, err
		}
		l.Loaded = loaded != 0
		out = append(out, l)
	}
	return out, rows.Err()
}

// PredictionErrorCounts groups an episode's prediction errors by kind.
func (s *SQLiteIndex) PredictionErrorCounts(ctx context.Context, episodeID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM prediction_errors WHERE episode_id = ? GROUP BY kind`, episodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		out[kind] = n
	}
	return out, rows.Err()
}

// TickCount returns how many ticks of episodeID are indexed.
func (s *SQLiteIndex) TickCount(ctx context.Context, episodeID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ticks WHERE episode_id = ?`, episodeID).Scan(&n)
	return n, err
}

// StateHistogram counts ticks per controller state.
func (s *SQLiteIndex) StateHistogram(ctx context.Context, episodeID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM ticks WHERE episode_id = ? GROUP BY state`, episodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		out[state] = n
	}
	return out, rows.Err()
}

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RenderRecord is one row of the render log.
type RenderRecord struct {
	ID                string        `json:"id"`
	ScenarioType      string        `json:"scenario_type"`
	LogName           string        `json:"log_name"`
	ScenarioName      string        `json:"scenario_name"`
	ScoreFigures      int           `json:"score_figures"`
	TimeSeriesFigures int           `json:"time_series_figures"`
	Tiles             int           `json:"tiles"`
	Elapsed           time.Duration `json:"elapsed_ns"`
	RenderedAt        time.Time     `json:"rendered_at"`
}

// InsertRender appends r to the render log, assigning an ID when empty.
func (db *DB) InsertRender(ctx context.Context, r *RenderRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO render_log (
			render_id, scenario_type, log_name, scenario_name,
			score_figures, time_series_figures, tiles, elapsed_ns, rendered_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ScenarioType, r.LogName, r.ScenarioName,
		r.ScoreFigures, r.TimeSeriesFigures, r.Tiles, int64(r.Elapsed), r.RenderedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert render record: %w", err)
	}
	return nil
}

// RecentRenders returns up to limit render records, newest first.
func (db *DB) RecentRenders(ctx context.Context, limit int) ([]RenderRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT render_id, scenario_type, log_name, scenario_name,
			score_figures, time_series_figures, tiles, elapsed_ns, rendered_at_ns
		FROM render_log ORDER BY rendered_at_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RenderRecord
	for rows.Next() {
		var (
			r                     RenderRecord
			elapsedNs, renderedNs int64
		)
		if err := rows.Scan(&r.ID, &r.ScenarioType, &r.LogName, &r.ScenarioName,
			&r.ScoreFigures, &r.TimeSeriesFigures, &r.Tiles, &elapsedNs, &renderedNs); err != nil {
			return nil, err
		}
		r.Elapsed = time.Duration(elapsedNs)
		r.RenderedAt = time.Unix(0, renderedNs)
		out = append(out, r)
	}
	return out, rows.Err()
}

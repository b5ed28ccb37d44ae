package board

import (
	"context"

	"github.com/banshee-data/scenario.board/internal/db"
	"github.com/banshee-data/scenario.board/internal/tab"
)

// RenderLog stores controller render events in the board database.
type RenderLog struct {
	db *db.DB
}

var _ tab.RenderRecorder = (*RenderLog)(nil)

// NewRenderLog creates a recorder backed by d.
func NewRenderLog(d *db.DB) *RenderLog {
	return &RenderLog{db: d}
}

// RecordRender inserts ev into the render log.
func (l *RenderLog) RecordRender(ctx context.Context, ev tab.RenderEvent) error {
	return l.db.InsertRender(ctx, &db.RenderRecord{
		ScenarioType:      ev.ScenarioType,
		LogName:           ev.LogName,
		ScenarioName:      ev.ScenarioName,
		ScoreFigures:      ev.ScoreFigures,
		TimeSeriesFigures: ev.TimeSeriesFigures,
		Tiles:             ev.Tiles,
		Elapsed:           ev.Elapsed,
		RenderedAt:        ev.RenderedAt,
	})
}

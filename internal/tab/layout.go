package tab

import (
	"github.com/banshee-data/scenario.board/internal/experiment"
	"github.com/banshee-data/scenario.board/internal/render"
	"github.com/banshee-data/scenario.board/internal/scenario"
	"github.com/banshee-data/scenario.board/internal/simulation"
)

// Slot names one independently swapped region of the layout.
type Slot string

const (
	SlotScores     Slot = "scores"
	SlotTimeSeries Slot = "time_series"
	SlotSimulation Slot = "simulation"
)

// Placeholder messages shown when a slot has nothing to draw.
const (
	NoScoresMessage     = "No scenario score results, please add more experiments or adjust the search filter."
	NoTimeSeriesMessage = "No time series results, please add more experiments or adjust the search filter."
	NoSimulationMessage = "No simulation data, please add more experiments or adjust the search filter."
)

// FigureSlot holds the figures of one slot, or a placeholder when empty.
type FigureSlot struct {
	Figures     []render.Figure `json:"figures"`
	Placeholder string          `json:"placeholder,omitempty"`
	Columns     int             `json:"columns"`
	Revision    uint64          `json:"revision"`
}

// TileSlot holds the simulation tiles. Pending is set between the metric
// figures being applied and the deferred tile swap.
type TileSlot struct {
	Tiles       []simulation.Tile `json:"tiles"`
	Placeholder string            `json:"placeholder,omitempty"`
	Error       string            `json:"error,omitempty"`
	Pending     bool              `json:"pending"`
	Revision    uint64            `json:"revision"`
}

// Layout is the published state of the tab. Revision increases on every
// slot update; each slot carries the revision it was last changed at.
type Layout struct {
	Revision   uint64             `json:"revision"`
	Active     experiment.Indices `json:"active"`
	Selection  scenario.Selection `json:"selection"`
	Options    scenario.Options   `json:"options"`
	Stage      string             `json:"stage"`
	Scores     FigureSlot         `json:"scores"`
	TimeSeries FigureSlot         `json:"time_series"`
	Simulation TileSlot           `json:"simulation"`
}

// Figure finds a figure by key in either figure slot.
func (l Layout) Figure(key string) (render.Figure, bool) {
	for _, slot := range []FigureSlot{l.Scores, l.TimeSeries} {
		for _, f := range slot.Figures {
			if f.Key == key {
				return f, true
			}
		}
	}
	return render.Figure{}, false
}

func figureSlot(figures []render.Figure, placeholder string, windowWidth, figureWidth int) FigureSlot {
	slot := FigureSlot{Figures: figures, Columns: render.Columns(windowWidth, figureWidth)}
	if len(figures) == 0 {
		slot.Figures = []render.Figure{}
		slot.Placeholder = placeholder
	}
	return slot
}

func tileSlot(tiles []simulation.Tile) TileSlot {
	slot := TileSlot{Tiles: tiles}
	if len(tiles) == 0 {
		slot.Tiles = []simulation.Tile{}
		slot.Placeholder = NoSimulationMessage
	}
	return slot
}

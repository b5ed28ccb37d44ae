// Package render turns aggregated scenario scores and time series into
// chart-library-neutral figure descriptors.
package render

import (
	"github.com/banshee-data/scenario.board/internal/palette"
)

// Kind distinguishes the two figure families.
type Kind string

const (
	KindScores     Kind = "scores"
	KindTimeSeries Kind = "time_series"
)

// TooltipField is one labelled line of a point tooltip.
type TooltipField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Point is one plotted value. Score figures place points on the category
// axis (X is the category index); time-series figures use the frame index.
type Point struct {
	X        float64        `json:"x"`
	Category string         `json:"category,omitempty"`
	Y        float64        `json:"y"`
	Tooltip  []TooltipField `json:"tooltip"`
}

// Series is one legend entry of a figure.
type Series struct {
	Legend          string         `json:"legend"`
	Color           string         `json:"color"`
	Marker          palette.Marker `json:"marker"`
	Line            bool           `json:"line"`
	PlannerName     string         `json:"planner_name"`
	ExperimentIndex int            `json:"experiment_index"`
	// AggregatorFileIndex is -1 for time-series series.
	AggregatorFileIndex int     `json:"aggregator_file_index"`
	Points              []Point `json:"points"`
}

// Figure is a rendered chart, independent of the library that draws it.
type Figure struct {
	Key        string   `json:"key"`
	Kind       Kind     `json:"kind"`
	Title      string   `json:"title"`
	XLabel     string   `json:"x_label"`
	YLabel     string   `json:"y_label"`
	Categories []string `json:"categories,omitempty"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	Series     []Series `json:"series"`
}

// Columns is the number of figures of width figureWidth that fit a row of
// windowWidth, at least one.
func Columns(windowWidth, figureWidth int) int {
	if figureWidth <= 0 || windowWidth < figureWidth {
		return 1
	}
	return windowWidth / figureWidth
}

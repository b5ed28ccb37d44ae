package board

import (
	"github.com/banshee-data/scenario.board/internal/config"
	"github.com/banshee-data/scenario.board/internal/render"
	"github.com/banshee-data/scenario.board/internal/tab"
)

// RenderOptions returns the figure options of cfg.
func RenderOptions(cfg *config.BoardConfig) render.Options {
	sw, sh := cfg.GetScoreFigureSize()
	pw, ph := cfg.GetPlotSize()
	return render.Options{
		MetricsPerFigure: cfg.GetMetricsPerFigure(),
		ScoreSize:        [2]int{sw, sh},
		PlotSize:         [2]int{pw, ph},
		TimeSeriesXLabel: cfg.GetTimeSeriesXLabel(),
	}
}

// ControllerConfig wires a controller to cfg and loop. Without a loop, tile
// swaps run on their own goroutine; recorder may be nil.
func ControllerConfig(cfg *config.BoardConfig, loop *tab.Loop, recorder tab.RenderRecorder) tab.Config {
	c := tab.Config{
		Render:      RenderOptions(cfg),
		PaletteSize: cfg.GetPaletteSize(),
		WindowWidth: cfg.GetWindowWidth(),
		Recorder:    recorder,
	}
	if loop != nil {
		c.Scheduler = loop
	}
	return c
}

package main

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/scenario.board/internal/chart"
	"github.com/banshee-data/scenario.board/internal/experiment"
	"github.com/banshee-data/scenario.board/internal/fsutil"
	"github.com/banshee-data/scenario.board/internal/render"
	"github.com/banshee-data/scenario.board/internal/scenario"
	"github.com/banshee-data/scenario.board/internal/security"
	"github.com/banshee-data/scenario.board/internal/tab"
)

// Output formats.
const (
	FormatHTML = "html"
	FormatPNG  = "png"
	FormatXLSX = "xlsx"
)

// exportOptions selects one scenario and the files written for it.
type exportOptions struct {
	Controller tab.Config
	AssetsHost string
	Selection  scenario.Selection
	// Planners restricts the drawn planners; nil keeps all of them.
	Planners []string
	OutDir   string
	Formats  []string
}

// selectScenario drives a controller through the selection cascade and
// returns the settled layout.
func selectScenario(data *experiment.FileData, opts exportOptions) (tab.Layout, error) {
	loop := tab.NewLoop()
	cfg := opts.Controller
	cfg.Scheduler = loop
	c := tab.NewController(cfg)
	c.SetFileData(data)

	ctx := context.Background()
	sel := opts.Selection
	if sel.ScenarioType == "" {
		sel.ScenarioType = c.Selection().ScenarioType
	}
	for _, f := range []scenario.Field{scenario.FieldScenarioType, scenario.FieldLogName, scenario.FieldScenarioName} {
		if err := c.Select(ctx, f, sel.Value(f)); err != nil {
			return tab.Layout{}, fmt.Errorf("select %s: %w", f, err)
		}
	}
	if opts.Planners != nil {
		if err := c.SetEnabledPlanners(ctx, opts.Planners); err != nil {
			return tab.Layout{}, fmt.Errorf("select planners: %w", err)
		}
	}
	loop.RunPending()
	return c.Layout(), nil
}

// export writes the requested formats for the selected scenario and returns
// the written file names.
func export(fsys fsutil.FileSystem, data *experiment.FileData, opts exportOptions) ([]string, error) {
	if opts.Selection.ScenarioName == "" {
		return nil, fmt.Errorf("a scenario name is required")
	}
	layout, err := selectScenario(data, opts)
	if err != nil {
		return nil, err
	}
	sel := layout.Selection
	base := filepath.Join(opts.OutDir, security.SanitizeFilename(sel.ScenarioName))

	var written []string

	for _, format := range opts.Formats {
		switch strings.ToLower(strings.TrimSpace(format)) {
		case FormatHTML:
			var buf bytes.Buffer
			err := chart.RenderPage(&buf, chart.PageInput{
				Title:                 sel.ScenarioName,
				Subtitle:              sel.ScenarioType + " / " + sel.LogName,
				AssetsHost:            opts.AssetsHost,
				Scores:                layout.Scores.Figures,
				TimeSeries:            layout.TimeSeries.Figures,
				ScoresPlaceholder:     layout.Scores.Placeholder,
				TimeSeriesPlaceholder: layout.TimeSeries.Placeholder,
			})
			if err != nil {
				return written, fmt.Errorf("render html: %w", err)
			}
			name := base + ".html"
			if err := fsutil.WriteTo(fsys, name, &buf); err != nil {
				return written, err
			}
			written = append(written, name)

		case FormatPNG:
			for _, fig := range append(append([]render.Figure(nil), layout.Scores.Figures...), layout.TimeSeries.Figures...) {
				img, err := chart.PNG(fig)
				if err != nil {
					return written, fmt.Errorf("render %s: %w", fig.Key, err)
				}
				name := base + "_" + security.SanitizeFilename(fig.Key) + ".png"
				if err := fsutil.WriteTo(fsys, name, img); err != nil {
					return written, err
				}
				written = append(written, name)
			}

		case FormatXLSX:
			var buf bytes.Buffer
			err := chart.WriteWorkbook(&buf, chart.WorkbookInput{
				Title:      sel.ScenarioName,
				Scores:     layout.Scores.Figures,
				TimeSeries: layout.TimeSeries.Figures,
				Selection: [][2]string{
					{string(scenario.FieldScenarioType), sel.ScenarioType},
					{string(scenario.FieldLogName), sel.LogName},
					{string(scenario.FieldScenarioName), sel.ScenarioName},
					{"enabled_planners", strings.Join(sel.EnabledPlanners, ",")},
				},
			})
			if err != nil {
				return written, fmt.Errorf("render xlsx: %w", err)
			}
			name := base + ".xlsx"
			if err := fsutil.WriteTo(fsys, name, &buf); err != nil {
				return written, err
			}
			written = append(written, name)

		default:
			return written, fmt.Errorf("unknown format %q (want html, png or xlsx)", format)
		}
	}
	return written, nil
}

// Package chart draws render figures with the charting libraries: echarts
// HTML pages, gonum PNG plots and excelize workbooks.
package chart

import (
	"fmt"
	"hash/fnv"
	"html"
	"io"
	"strconv"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/scenario.board/internal/render"
)

// DefaultAssetsHost serves the echarts javascript.
const DefaultAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

const tooltipFormatter = `function (p) { return p.name; }`

// PageInput is everything drawn on one scenario page.
type PageInput struct {
	Title      string
	Subtitle   string
	AssetsHost string
	Scores     []render.Figure
	TimeSeries []render.Figure
	// Placeholders are shown as empty titled charts when a section has no figures.
	ScoresPlaceholder     string
	TimeSeriesPlaceholder string
}

// RenderPage writes an HTML page with one chart per figure, score figures
// first.
func RenderPage(w io.Writer, in PageInput) error {
	host := in.AssetsHost
	if host == "" {
		host = DefaultAssetsHost
	}
	page := components.NewPage()
	page.SetPageTitle(in.Title)
	page.SetAssetsHost(host)
	page.SetLayout(components.PageFlexLayout)

	if len(in.Scores) == 0 && in.ScoresPlaceholder != "" {
		page.AddCharts(placeholder(in.Subtitle, in.ScoresPlaceholder, host))
	}
	for _, f := range in.Scores {
		page.AddCharts(Scatter(f, host))
	}
	if len(in.TimeSeries) == 0 && in.TimeSeriesPlaceholder != "" {
		page.AddCharts(placeholder(in.Subtitle, in.TimeSeriesPlaceholder, host))
	}
	for _, f := range in.TimeSeries {
		page.AddCharts(Line(f, host))
	}
	return page.Render(w)
}

func px(n int) string {
	return strconv.Itoa(n) + "px"
}

func initOpts(f render.Figure, host string) opts.Initialization {
	return opts.Initialization{
		PageTitle:  f.Title,
		Width:      px(f.Width),
		Height:     px(f.Height),
		AssetsHost: host,
		ChartID:    chartID(f.Key),
	}
}

// chartID is a DOM id for a figure key. The hash suffix keeps keys that
// sanitise to the same text apart.
func chartID(key string) string {
	h := fnv.New32a()
	h.Write([]byte(key))
	return fmt.Sprintf("chart_%s_%08x", sanitizeID(key), h.Sum32())
}

func sanitizeID(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, key)
}

// TooltipText joins tooltip fields as "Name: value" lines. Names and values
// are HTML-escaped; the tooltip is rendered as markup.
func TooltipText(fields []render.TooltipField) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteString("<br/>")
		}
		fmt.Fprintf(&b, "%s: %s", html.EscapeString(f.Name), html.EscapeString(f.Value))
	}
	return b.String()
}

// Scatter draws a score figure: metrics on a category axis, one series per
// planner, experiment and aggregator file.
func Scatter(f render.Figure, host string) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(f, host)),
		charts.WithTitleOpts(opts.Title{Title: f.Title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Formatter: opts.FuncOpts(tooltipFormatter)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Type: "scroll", Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: f.XLabel, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: f.YLabel, NameLocation: "middle", NameGap: 35}),
	)
	scatter.SetXAxis(f.Categories)
	for _, s := range f.Series {
		data := make([]opts.ScatterData, 0, len(s.Points))
		for _, p := range s.Points {
			data = append(data, opts.ScatterData{
				Name:  TooltipText(p.Tooltip),
				Value: []interface{}{p.Category, p.Y},
			})
		}
		scatter.AddSeries(s.Legend, data,
			charts.WithScatterChartOpts(opts.ScatterChart{Symbol: s.Marker.Symbol(), SymbolSize: 10}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: s.Color}),
		)
	}
	return scatter
}

// Line draws a time-series figure with frame indices on the x axis.
func Line(f render.Figure, host string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(f, host)),
		charts.WithTitleOpts(opts.Title{Title: f.Title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Formatter: opts.FuncOpts(tooltipFormatter)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Type: "scroll", Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: f.XLabel, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: f.YLabel, NameLocation: "middle", NameGap: 40}),
	)
	frames := 0
	for _, s := range f.Series {
		if len(s.Points) > frames {
			frames = len(s.Points)
		}
	}
	x := make([]int, frames)
	for i := range x {
		x[i] = i
	}
	line.SetXAxis(x)
	for _, s := range f.Series {
		data := make([]opts.LineData, 0, len(s.Points))
		for _, p := range s.Points {
			data = append(data, opts.LineData{Name: TooltipText(p.Tooltip), Value: p.Y})
		}
		line.AddSeries(s.Legend, data,
			charts.WithLineChartOpts(opts.LineChart{Symbol: s.Marker.Symbol(), ShowSymbol: opts.Bool(true)}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: s.Color}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: s.Color, Width: 2}),
		)
	}
	return line
}

func placeholder(title, message, host string) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "800px", Height: "120px", AssetsHost: host}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: message}),
	)
	return scatter
}

package render

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/banshee-data/scenario.board/internal/palette"
	"github.com/banshee-data/scenario.board/internal/scenario"
)

// OverallScoreMetric is always placed after the other metrics.
const OverallScoreMetric = "score"

// ColorAssigner returns the series color of a planner in an experiment.
type ColorAssigner interface {
	Color(experimentIndex int, plannerName string) string
}

// ExperimentNamer returns the display name of an experiment.
type ExperimentNamer interface {
	DisplayName(experimentIndex int) string
}

// PlannerFilter reports whether a planner's series should be drawn.
type PlannerFilter interface {
	PlannerEnabled(plannerName string) bool
}

// Options controls figure sizing and chunking.
type Options struct {
	MetricsPerFigure int
	ScoreSize        [2]int
	PlotSize         [2]int
	TimeSeriesXLabel string
}

// Pipeline renders figures for the scenario tab.
type Pipeline struct {
	colors ColorAssigner
	names  ExperimentNamer
	opts   Options
}

// NewPipeline creates a pipeline. Zero option values fall back to 4 metrics
// per figure and a "frame" x label.
func NewPipeline(colors ColorAssigner, names ExperimentNamer, opts Options) *Pipeline {
	if opts.MetricsPerFigure < 1 {
		opts.MetricsPerFigure = 4
	}
	if opts.TimeSeriesXLabel == "" {
		opts.TimeSeriesXLabel = "frame"
	}
	return &Pipeline{colors: colors, names: names, opts: opts}
}

// SortMetricNames sorts names lexicographically and moves OverallScoreMetric
// to the end. The input is not modified.
func SortMetricNames(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	for i, n := range out {
		if n == OverallScoreMetric {
			copy(out[i:], out[i+1:])
			out[len(out)-1] = OverallScoreMetric
			break
		}
	}
	return out
}

// Chunk splits names into consecutive groups of at most size.
func Chunk(names []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var out [][]string
	for start := 0; start < len(names); start += size {
		end := start + size
		if end > len(names) {
			end = len(names)
		}
		out = append(out, names[start:end])
	}
	return out
}

// Legend formats the legend label of a planner in an experiment.
func (p *Pipeline) Legend(experimentIndex int, plannerName string) string {
	return fmt.Sprintf("%s (%s)", plannerName, p.names.DisplayName(experimentIndex))
}

type seriesKey struct {
	planner    string
	experiment int
	fileIndex  int
}

// Scores renders the scores of one scenario, restricted to enabled planners,
// as one figure per chunk of metric names.
func (p *Pipeline) Scores(scores []scenario.MetricScore, enabled PlannerFilter) []Figure {
	byMetric := make(map[string][]scenario.MetricScore)
	for _, s := range scores {
		if !enabled.PlannerEnabled(s.PlannerName) {
			continue
		}
		byMetric[s.MetricName] = append(byMetric[s.MetricName], s)
	}
	if len(byMetric) == 0 {
		return nil
	}
	names := make([]string, 0, len(byMetric))
	for n := range byMetric {
		names = append(names, n)
	}

	chunks := Chunk(SortMetricNames(names), p.opts.MetricsPerFigure)
	figures := make([]Figure, 0, len(chunks))
	for ci, chunk := range chunks {
		fig := Figure{
			Key:        "scores_" + strconv.Itoa(ci),
			Kind:       KindScores,
			Title:      fmt.Sprintf("Metric scores %d/%d", ci+1, len(chunks)),
			XLabel:     "metric",
			YLabel:     "score",
			Categories: chunk,
			Width:      p.opts.ScoreSize[0],
			Height:     p.opts.ScoreSize[1],
		}
		index := make(map[seriesKey]int)
		for mi, metric := range chunk {
			for _, s := range byMetric[metric] {
				k := seriesKey{s.PlannerName, s.ExperimentIndex, s.AggregatorFileIndex}
				si, ok := index[k]
				if !ok {
					si = len(fig.Series)
					index[k] = si
					fig.Series = append(fig.Series, Series{
						Legend:              p.Legend(s.ExperimentIndex, s.PlannerName),
						Color:               p.colors.Color(s.ExperimentIndex, s.PlannerName),
						Marker:              palette.MarkerFor(s.AggregatorFileIndex),
						PlannerName:         s.PlannerName,
						ExperimentIndex:     s.ExperimentIndex,
						AggregatorFileIndex: s.AggregatorFileIndex,
					})
				}
				fig.Series[si].Points = append(fig.Series[si].Points, Point{
					X:        float64(mi),
					Category: metric,
					Y:        s.Score,
					Tooltip: []TooltipField{
						{"Metric", metric},
						{"Score", strconv.FormatFloat(s.Score, 'f', -1, 64)},
						{"Planner", s.PlannerName},
						{"Experiment", p.names.DisplayName(s.ExperimentIndex)},
						{"Aggregator", s.AggregatorFileName},
					},
				})
			}
		}
		figures = append(figures, fig)
	}
	return figures
}

// TimeSeriesKey is the figure key of a metric's time-series figure. The
// prefix keeps it apart from score figure keys.
func TimeSeriesKey(metric string) string {
	return "ts_" + metric
}

// TimeSeries renders one figure per metric that has at least one non-empty
// sample from an enabled planner. Figures are ordered by metric name.
func (p *Pipeline) TimeSeries(ts scenario.TimeSeriesIndex, enabled PlannerFilter) []Figure {
	names := make([]string, 0, len(ts))
	for n := range ts {
		names = append(names, n)
	}
	sort.Strings(names)

	var figures []Figure
	for _, metric := range names {
		fig := Figure{
			Key:    TimeSeriesKey(metric),
			Kind:   KindTimeSeries,
			Title:  metric,
			XLabel: p.opts.TimeSeriesXLabel,
			Width:  p.opts.PlotSize[0],
			Height: p.opts.PlotSize[1],
		}
		for _, sample := range ts[metric] {
			if len(sample.Values) == 0 || !enabled.PlannerEnabled(sample.PlannerName) {
				continue
			}
			if len(fig.Series) == 0 {
				fig.YLabel = sample.Unit
			}
			series := Series{
				Legend:              p.Legend(sample.ExperimentIndex, sample.PlannerName),
				Color:               p.colors.Color(sample.ExperimentIndex, sample.PlannerName),
				Marker:              palette.MarkerCircle,
				Line:                true,
				PlannerName:         sample.PlannerName,
				ExperimentIndex:     sample.ExperimentIndex,
				AggregatorFileIndex: -1,
				Points:              make([]Point, len(sample.Values)),
			}
			for i, v := range sample.Values {
				var stamp string
				if i < len(sample.Timestamps) {
					stamp = strconv.FormatInt(sample.Timestamps[i], 10)
				}
				series.Points[i] = Point{
					X: float64(i),
					Y: v,
					Tooltip: []TooltipField{
						{"Frame", strconv.Itoa(i)},
						{"Value", strconv.FormatFloat(v, 'f', -1, 64)},
						{"Time_us", stamp},
						{"Planner", sample.PlannerName},
					},
				}
			}
			fig.Series = append(fig.Series, series)
		}
		if len(fig.Series) > 0 {
			figures = append(figures, fig)
		}
	}
	return figures
}

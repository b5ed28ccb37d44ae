package tab

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/scenario.board/internal/experiment"
	"github.com/banshee-data/scenario.board/internal/monitoring"
	"github.com/banshee-data/scenario.board/internal/palette"
	"github.com/banshee-data/scenario.board/internal/render"
	"github.com/banshee-data/scenario.board/internal/scenario"
	"github.com/banshee-data/scenario.board/internal/simulation"
	"github.com/banshee-data/scenario.board/internal/timeutil"
)

// ErrUnknownExperiment is returned when an active index names no loaded experiment.
var ErrUnknownExperiment = errors.New("unknown experiment index")

// Scheduler defers a task to the next loop iteration.
type Scheduler interface {
	NextTick(fn func())
}

// RenderEvent describes one completed scenario render pass.
type RenderEvent struct {
	ScenarioType      string
	LogName           string
	ScenarioName      string
	ScoreFigures      int
	TimeSeriesFigures int
	Tiles             int
	Elapsed           time.Duration
	RenderedAt        time.Time
}

// RenderRecorder stores render events.
type RenderRecorder interface {
	RecordRender(ctx context.Context, ev RenderEvent) error
}

// Config wires the controller to its collaborators.
type Config struct {
	Render      render.Options
	PaletteSize int
	WindowWidth int
	Scenes      simulation.SceneRenderer
	Scheduler   Scheduler
	Clock       timeutil.Clock
	// Recorder is optional.
	Recorder RenderRecorder
}

// Stats counts the work the controller has done.
type Stats struct {
	ScoreRebuilds          uint64 `json:"score_rebuilds"`
	TimeSeriesAggregations uint64 `json:"time_series_aggregations"`
	Renders                uint64 `json:"renders"`
	TileRenders            uint64 `json:"tile_renders"`
	DroppedSwaps           uint64 `json:"dropped_swaps"`
}

type notification struct {
	slot   Slot
	layout Layout
}

// Controller owns the selection and the layout of the scenario tab. Mutating
// methods are expected to run on one goroutine (see Loop); readers may call
// Layout, Selection, Options and Stats from anywhere.
type Controller struct {
	cfg    Config
	colors *palette.Assigner

	mu         sync.RWMutex
	data       *experiment.FileData
	pipeline   *render.Pipeline
	active     experiment.Indices
	sel        scenario.Selection
	opts       scenario.Options
	scores     scenario.ScoreIndex
	series     scenario.TimeSeriesIndex
	tiles      []simulation.Tile
	generation uint64
	layout     Layout
	stats      Stats
	pending    []notification
	listeners  []func(Slot, Layout)
}

// NewController creates a controller with no experiments loaded.
func NewController(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.PaletteSize < 1 {
		cfg.PaletteSize = 12
	}
	if cfg.Scenes == nil {
		cfg.Scenes = simulation.NewFileRenderer(nil)
	}
	c := &Controller{cfg: cfg, colors: palette.NewAssigner(cfg.PaletteSize)}
	c.data = experiment.NewFileData()
	c.pipeline = render.NewPipeline(c.colors, c.data, cfg.Render)
	c.scores = make(scenario.ScoreIndex)
	c.series = make(scenario.TimeSeriesIndex)
	c.placeholders()
	return c
}

// AddListener registers fn to be called after every slot update. Listeners
// run outside the controller lock, in update order.
func (c *Controller) AddListener(fn func(Slot, Layout)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Colors returns the color assigner used for series.
func (c *Controller) Colors() *palette.Assigner {
	return c.colors
}

// Data returns the loaded experiments.
func (c *Controller) Data() *experiment.FileData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data
}

// Active returns the active experiment indices.
func (c *Controller) Active() experiment.Indices {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append(experiment.Indices(nil), c.active...)
}

// Layout returns the current layout.
func (c *Controller) Layout() Layout {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.layout
}

// Selection returns the current selection.
func (c *Controller) Selection() scenario.Selection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sel
}

// Options returns the values each selector currently offers.
func (c *Controller) Options() scenario.Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opts
}

// Stats returns the work counters.
func (c *Controller) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Scores returns the cached scores of the selected scenario, unfiltered.
func (c *Controller) Scores() []scenario.MetricScore {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scores.Scenario(c.sel.LogName, c.sel.ScenarioName)
}

func (c *Controller) update(fn func() error) error {
	c.mu.Lock()
	err := fn()
	notes := c.pending
	c.pending = nil
	listeners := c.listeners
	c.mu.Unlock()

	for _, n := range notes {
		for _, l := range listeners {
			l(n.slot, n.layout)
		}
	}
	return err
}

// SetFileData replaces the loaded experiments and activates all of them.
func (c *Controller) SetFileData(data *experiment.FileData) {
	if data == nil {
		data = experiment.NewFileData()
	}
	_ = c.update(func() error {
		c.data = data
		c.pipeline = render.NewPipeline(c.colors, data, c.cfg.Render)
		c.colors.Reset(colorPairs(data))
		if fr, ok := c.cfg.Scenes.(*simulation.FileRenderer); ok {
			fr.SetData(data)
		}
		c.active = data.AllIndices()
		c.reset()
		return nil
	})
}

// SetActive changes the active experiment subset. The selection is reset and
// the score store rebuilt.
func (c *Controller) SetActive(active []int) error {
	return c.update(func() error {
		normalised, err := c.checkActive(active)
		if err != nil {
			return err
		}
		c.active = normalised
		c.reset()
		return nil
	})
}

func (c *Controller) checkActive(active []int) (experiment.Indices, error) {
	seen := make(map[int]bool, len(active))
	out := make(experiment.Indices, 0, len(active))
	for _, i := range active {
		if c.data.Experiment(i) == nil {
			return nil, fmt.Errorf("%w: %d", ErrUnknownExperiment, i)
		}
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out, nil
}

// reset rebuilds the score store and selects the first scenario type.
func (c *Controller) reset() {
	c.scores = scenario.BuildScoreIndex(c.data, c.active)
	c.stats.ScoreRebuilds++
	monitoring.Logf("[scenario] rebuilt score store: %d scores from %d active experiments", c.scores.Len(), len(c.active))

	c.sel = scenario.Selection{}
	if types := c.data.ScenarioTypes(c.active); len(types) > 0 {
		c.sel = c.sel.WithScenarioType(types[0])
	}
	c.series = make(scenario.TimeSeriesIndex)
	c.tiles = nil
	c.generation++
	c.opts = c.options(c.sel)
	c.placeholders()
}

func (c *Controller) options(sel scenario.Selection) scenario.Options {
	return scenario.Options{
		ScenarioTypes: c.data.ScenarioTypes(c.active),
		LogNames:      c.data.LogNames(c.active, sel.ScenarioType),
		ScenarioNames: c.data.ScenarioNames(c.active, sel.ScenarioType, sel.LogName),
		PlannerNames:  c.data.PlannerNames(c.active, sel.ScenarioType, sel.LogName, sel.ScenarioName),
	}
}

// placeholders puts every slot into its empty state.
func (c *Controller) placeholders() {
	ww := c.cfg.WindowWidth
	c.apply(SlotScores, func(l *Layout) {
		l.Scores = figureSlot(nil, NoScoresMessage, ww, c.cfg.Render.ScoreSize[0])
	})
	c.apply(SlotTimeSeries, func(l *Layout) {
		l.TimeSeries = figureSlot(nil, NoTimeSeriesMessage, ww, c.cfg.Render.PlotSize[0])
	})
	c.apply(SlotSimulation, func(l *Layout) {
		l.Simulation = tileSlot(nil)
	})
}

// apply mutates one slot, refreshes the selection fields and queues a
// notification. Callers hold c.mu.
func (c *Controller) apply(slot Slot, fn func(*Layout)) {
	fn(&c.layout)
	c.layout.Revision++
	switch slot {
	case SlotScores:
		c.layout.Scores.Revision = c.layout.Revision
	case SlotTimeSeries:
		c.layout.TimeSeries.Revision = c.layout.Revision
	case SlotSimulation:
		c.layout.Simulation.Revision = c.layout.Revision
	}
	c.layout.Active = append(experiment.Indices(nil), c.active...)
	c.layout.Selection = c.sel
	c.layout.Options = c.opts
	c.layout.Stage = c.sel.Stage().String()
	c.pending = append(c.pending, notification{slot: slot, layout: c.layout})
}

// Select changes one cascading selector. Fields below it are cleared. Once a
// scenario name is set the scenario is aggregated and rendered; the metric
// figures are applied at once and the simulation tiles on the next tick.
func (c *Controller) Select(ctx context.Context, field scenario.Field, value string) error {
	return c.update(func() error {
		if err := c.opts.Check(field, value); err != nil {
			return err
		}
		if c.sel.Value(field) == value {
			return nil
		}
		c.sel = c.sel.With(field, value)
		c.opts = c.options(c.sel)
		if c.sel.ScenarioName == "" {
			c.series = make(scenario.TimeSeriesIndex)
			c.tiles = nil
			c.generation++
			c.placeholders()
			return nil
		}
		c.renderScenario(ctx)
		return nil
	})
}

// SetEnabledPlanners changes which planners are drawn. Cached scores, time
// series and tiles are re-filtered; nothing is re-aggregated.
func (c *Controller) SetEnabledPlanners(ctx context.Context, planners []string) error {
	return c.update(func() error {
		if err := c.opts.CheckPlanners(planners); err != nil {
			return err
		}
		c.sel = c.sel.WithPlanners(planners)
		if c.sel.ScenarioName == "" {
			return nil
		}
		c.renderFigures()
		if !c.layout.Simulation.Pending {
			c.apply(SlotSimulation, func(l *Layout) {
				l.Simulation = tileSlot(simulation.FilterPlanners(c.tiles, c.sel.PlannerEnabled))
			})
		}
		return nil
	})
}

// Restore replays a saved selection: active experiments, then each selector
// in cascade order, then the planner set. It stops at the first value that is
// no longer available.
func (c *Controller) Restore(ctx context.Context, sel scenario.Selection, active []int) error {
	if active != nil {
		if err := c.SetActive(active); err != nil {
			return err
		}
	}
	for _, f := range []scenario.Field{scenario.FieldScenarioType, scenario.FieldLogName, scenario.FieldScenarioName} {
		v := sel.Value(f)
		if v == "" {
			break
		}
		if err := c.Select(ctx, f, v); err != nil {
			return err
		}
	}
	if sel.ScenarioName != "" && sel.EnabledPlanners != nil {
		return c.SetEnabledPlanners(ctx, sel.EnabledPlanners)
	}
	return nil
}

// renderScenario runs the time-series aggregation and both figure renders for
// the selected scenario, then defers the tile swap. Callers hold c.mu.
func (c *Controller) renderScenario(ctx context.Context) {
	start := c.cfg.Clock.Now()
	c.sel = c.sel.WithPlanners(c.opts.PlannerNames)
	c.series = scenario.AggregateTimeSeries(c.data, c.sel, c.active)
	c.stats.TimeSeriesAggregations++
	c.renderFigures()
	c.scheduleTiles(ctx, start)
	monitoring.Logf("[scenario] rendering scenario plot took %.4f seconds", c.cfg.Clock.Since(start).Seconds())
}

// renderFigures re-renders both figure slots from the cached aggregates.
func (c *Controller) renderFigures() {
	scoreFigs := c.pipeline.Scores(c.scores.Scenario(c.sel.LogName, c.sel.ScenarioName), c.sel)
	seriesFigs := c.pipeline.TimeSeries(c.series, c.sel)
	c.stats.Renders++
	ww := c.cfg.WindowWidth
	c.apply(SlotScores, func(l *Layout) {
		l.Scores = figureSlot(scoreFigs, NoScoresMessage, ww, c.cfg.Render.ScoreSize[0])
	})
	c.apply(SlotTimeSeries, func(l *Layout) {
		l.TimeSeries = figureSlot(seriesFigs, NoTimeSeriesMessage, ww, c.cfg.Render.PlotSize[0])
	})
}

func (c *Controller) scheduleTiles(ctx context.Context, start time.Time) {
	c.generation++
	gen := c.generation
	req := simulation.Request{
		ScenarioType: c.sel.ScenarioType,
		LogName:      c.sel.LogName,
		ScenarioName: c.sel.ScenarioName,
		Active:       append(experiment.Indices(nil), c.active...),
	}
	c.apply(SlotSimulation, func(l *Layout) {
		l.Simulation.Pending = true
		l.Simulation.Error = ""
	})
	if c.cfg.Scheduler == nil {
		// Without a loop the swap has to wait until the caller releases c.mu.
		go c.swapTiles(ctx, gen, req, start)
		return
	}
	c.cfg.Scheduler.NextTick(func() { c.swapTiles(ctx, gen, req, start) })
}

// swapTiles renders the scene tiles of req and applies them unless a later
// selection has superseded gen.
func (c *Controller) swapTiles(ctx context.Context, gen uint64, req simulation.Request, start time.Time) {
	c.mu.RLock()
	current := c.generation == gen
	c.mu.RUnlock()
	if !current {
		c.dropSwap(gen)
		return
	}

	tiles, err := c.cfg.Scenes.RenderTiles(context.WithoutCancel(ctx), req)

	var ev *RenderEvent
	_ = c.update(func() error {
		if c.generation != gen {
			c.stats.DroppedSwaps++
			return nil
		}
		c.stats.TileRenders++
		if err != nil {
			monitoring.Logf("[scenario] scene render for %s failed: %v", req.ScenarioName, err)
			c.tiles = nil
			c.apply(SlotSimulation, func(l *Layout) {
				l.Simulation = tileSlot(nil)
				l.Simulation.Error = err.Error()
			})
			return nil
		}
		c.tiles = tiles
		c.apply(SlotSimulation, func(l *Layout) {
			l.Simulation = tileSlot(simulation.FilterPlanners(tiles, c.sel.PlannerEnabled))
		})
		ev = &RenderEvent{
			ScenarioType:      req.ScenarioType,
			LogName:           req.LogName,
			ScenarioName:      req.ScenarioName,
			ScoreFigures:      len(c.layout.Scores.Figures),
			TimeSeriesFigures: len(c.layout.TimeSeries.Figures),
			Tiles:             len(c.layout.Simulation.Tiles),
			Elapsed:           c.cfg.Clock.Since(start),
			RenderedAt:        c.cfg.Clock.Now(),
		}
		return nil
	})

	if ev != nil && c.cfg.Recorder != nil {
		if err := c.cfg.Recorder.RecordRender(context.WithoutCancel(ctx), *ev); err != nil {
			monitoring.Logf("[scenario] failed to record render of %s: %v", ev.ScenarioName, err)
		}
	}
}

func (c *Controller) dropSwap(gen uint64) {
	c.mu.Lock()
	c.stats.DroppedSwaps++
	c.mu.Unlock()
	monitoring.Logf("[scenario] dropped superseded tile swap %d", gen)
}

// colorPairs lists every (experiment, planner) pair that can appear in a figure.
func colorPairs(data *experiment.FileData) []palette.Pair {
	seen := make(map[palette.Pair]bool)
	var out []palette.Pair
	add := func(exp int, planner string) {
		p := palette.Pair{ExperimentIndex: exp, PlannerName: planner}
		if planner != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, e := range data.Experiments {
		for _, k := range e.ScenarioKeys {
			add(e.Index, k.PlannerName)
		}
		for _, t := range e.AggregatorTables {
			for _, r := range t.Rows {
				add(e.Index, r.PlannerName)
			}
		}
		for _, t := range e.StatisticsTables {
			for _, p := range t.PlannerNames() {
				add(e.Index, p)
			}
		}
	}
	return out
}

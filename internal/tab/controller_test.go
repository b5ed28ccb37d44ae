package tab

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scenario.board/internal/monitoring"
	"github.com/banshee-data/scenario.board/internal/render"
	"github.com/banshee-data/scenario.board/internal/scenario"
	"github.com/banshee-data/scenario.board/internal/simulation"
	"github.com/banshee-data/scenario.board/internal/testutil"
	"github.com/banshee-data/scenario.board/internal/timeutil"
)

type eventLog struct {
	mu     sync.Mutex
	events []RenderEvent
}

func (r *eventLog) RecordRender(_ context.Context, ev RenderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type failingScenes struct{}

func (failingScenes) RenderTiles(context.Context, simulation.Request) ([]simulation.Tile, error) {
	return nil, errors.New("scene builder unavailable")
}

type harness struct {
	c     *Controller
	loop  *Loop
	rec   *eventLog
	slots []Slot
}

func newHarness(t *testing.T, scenes simulation.SceneRenderer) *harness {
	t.Helper()
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	clock := timeutil.NewMockClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	clock.SetStep(250 * time.Millisecond)
	h := &harness{loop: NewLoop(), rec: &eventLog{}}
	h.c = NewController(Config{
		Render: render.Options{
			MetricsPerFigure: 4,
			ScoreSize:        [2]int{400, 300},
			PlotSize:         [2]int{800, 400},
		},
		WindowWidth: 1600,
		Scenes:      scenes,
		Scheduler:   h.loop,
		Clock:       clock,
		Recorder:    h.rec,
	})
	h.c.AddListener(func(s Slot, _ Layout) { h.slots = append(h.slots, s) })
	h.c.SetFileData(testutil.StandardFileData(t))
	return h
}

func (h *harness) selectScenario(t *testing.T, scenarioType, logName, name string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.c.Select(ctx, scenario.FieldScenarioType, scenarioType))
	require.NoError(t, h.c.Select(ctx, scenario.FieldLogName, logName))
	require.NoError(t, h.c.Select(ctx, scenario.FieldScenarioName, name))
}

func TestController_SetFileDataSelectsFirstType(t *testing.T) {
	h := newHarness(t, nil)

	sel := h.c.Selection()
	assert.Equal(t, testutil.ScenarioType, sel.ScenarioType)
	assert.Empty(t, sel.LogName)
	assert.Equal(t, scenario.StageTypeSelected, sel.Stage())

	opts := h.c.Options()
	assert.Equal(t, []string{testutil.ScenarioType, testutil.OtherType}, opts.ScenarioTypes)
	assert.Equal(t, []string{testutil.LogName}, opts.LogNames)
	assert.Nil(t, opts.ScenarioNames)

	l := h.c.Layout()
	assert.Equal(t, "type_selected", l.Stage)
	assert.Equal(t, NoScoresMessage, l.Scores.Placeholder)
	assert.Equal(t, NoTimeSeriesMessage, l.TimeSeries.Placeholder)
	assert.Equal(t, NoSimulationMessage, l.Simulation.Placeholder)
	assert.Equal(t, 4, l.Scores.Columns)
	assert.Equal(t, 2, l.TimeSeries.Columns)

	st := h.c.Stats()
	assert.Equal(t, uint64(1), st.ScoreRebuilds)
	assert.Zero(t, st.TimeSeriesAggregations)
}

func TestController_MetricFiguresBeforeTiles(t *testing.T) {
	h := newHarness(t, nil)
	rec, restore := monitoring.Capture()
	defer restore()

	ctx := context.Background()
	require.NoError(t, h.c.Select(ctx, scenario.FieldLogName, testutil.LogName))
	h.slots = nil
	require.NoError(t, h.c.Select(ctx, scenario.FieldScenarioName, testutil.ScenarioName))

	l := h.c.Layout()
	assert.Equal(t, "scenario_selected", l.Stage)
	assert.Equal(t, testutil.Planners, l.Selection.EnabledPlanners)
	require.Len(t, l.Scores.Figures, 2)
	assert.Len(t, l.Scores.Figures[0].Series, 4)
	assert.Equal(t, []string{"score"}, l.Scores.Figures[1].Categories)
	require.Len(t, l.TimeSeries.Figures, 2)
	assert.Equal(t, "ts_ego_acceleration", l.TimeSeries.Figures[0].Key)
	assert.True(t, l.Simulation.Pending, "tiles wait for the next tick")
	assert.Empty(t, l.Simulation.Tiles)
	assert.Equal(t, []Slot{SlotScores, SlotTimeSeries, SlotSimulation}, h.slots)

	assert.Equal(t, 1, h.loop.RunPending())

	l = h.c.Layout()
	assert.False(t, l.Simulation.Pending)
	assert.Len(t, l.Simulation.Tiles, 4)
	assert.Empty(t, l.Simulation.Placeholder)
	assert.Equal(t, []Slot{SlotScores, SlotTimeSeries, SlotSimulation, SlotSimulation}, h.slots)
	assert.Greater(t, l.Simulation.Revision, l.Scores.Revision)

	st := h.c.Stats()
	assert.Equal(t, uint64(1), st.TimeSeriesAggregations)
	assert.Equal(t, uint64(1), st.Renders)
	assert.Equal(t, uint64(1), st.TileRenders)

	found := false
	for _, line := range rec.Lines() {
		if strings.Contains(line, "rendering scenario plot took 0.2500 seconds") {
			found = true
		}
	}
	assert.True(t, found, "render timing is logged: %v", rec.Lines())

	require.Len(t, h.rec.events, 1)
	ev := h.rec.events[0]
	assert.Equal(t, testutil.ScenarioName, ev.ScenarioName)
	assert.Equal(t, 2, ev.ScoreFigures)
	assert.Equal(t, 2, ev.TimeSeriesFigures)
	assert.Equal(t, 4, ev.Tiles)
	assert.Equal(t, 500*time.Millisecond, ev.Elapsed)
}

func TestController_PlannerToggleDoesNotReaggregate(t *testing.T) {
	h := newHarness(t, nil)
	h.selectScenario(t, testutil.ScenarioType, testutil.LogName, testutil.ScenarioName)
	h.loop.RunPending()

	ctx := context.Background()
	require.NoError(t, h.c.SetEnabledPlanners(ctx, []string{"ml_planner"}))

	st := h.c.Stats()
	assert.Equal(t, uint64(1), st.ScoreRebuilds)
	assert.Equal(t, uint64(1), st.TimeSeriesAggregations)
	assert.Equal(t, uint64(2), st.Renders)
	assert.Equal(t, uint64(1), st.TileRenders)

	l := h.c.Layout()
	for _, f := range append(l.Scores.Figures, l.TimeSeries.Figures...) {
		require.Len(t, f.Series, 2, f.Key)
		for _, s := range f.Series {
			assert.Equal(t, "ml_planner", s.PlannerName)
		}
	}
	require.Len(t, l.Simulation.Tiles, 2)
	assert.Equal(t, "ml_planner", l.Simulation.Tiles[0].PlannerName)
	assert.Len(t, h.c.Scores(), 20, "cached scores stay unfiltered")

	require.NoError(t, h.c.SetEnabledPlanners(ctx, nil))
	l = h.c.Layout()
	assert.Equal(t, NoScoresMessage, l.Scores.Placeholder)
	assert.Equal(t, NoTimeSeriesMessage, l.TimeSeries.Placeholder)
	assert.Equal(t, NoSimulationMessage, l.Simulation.Placeholder)

	err := h.c.SetEnabledPlanners(ctx, []string{"rule_planner"})
	assert.ErrorIs(t, err, scenario.ErrUnknownOption)
}

func TestController_LaterSelectionSupersedesSwap(t *testing.T) {
	h := newHarness(t, nil)
	h.selectScenario(t, testutil.ScenarioType, testutil.LogName, testutil.ScenarioName)
	h.selectScenario(t, testutil.OtherType, testutil.OtherLog, testutil.OtherName)

	assert.Equal(t, 2, h.loop.RunPending())

	st := h.c.Stats()
	assert.Equal(t, uint64(1), st.DroppedSwaps)
	assert.Equal(t, uint64(1), st.TileRenders)

	l := h.c.Layout()
	require.Len(t, l.Simulation.Tiles, 4)
	for _, tile := range l.Simulation.Tiles {
		assert.Equal(t, testutil.OtherName, tile.ScenarioName)
	}
	require.Len(t, l.Scores.Figures, 1)
	assert.Equal(t, []string{"score"}, l.Scores.Figures[0].Categories)
	assert.Empty(t, l.TimeSeries.Figures)
	assert.Equal(t, NoTimeSeriesMessage, l.TimeSeries.Placeholder)
}

func TestController_ClearingScenarioShowsPlaceholders(t *testing.T) {
	h := newHarness(t, nil)
	h.selectScenario(t, testutil.ScenarioType, testutil.LogName, testutil.ScenarioName)
	require.NoError(t, h.c.Select(context.Background(), scenario.FieldScenarioName, ""))

	h.loop.RunPending()
	l := h.c.Layout()
	assert.Equal(t, "log_selected", l.Stage)
	assert.Empty(t, l.Scores.Figures)
	assert.Equal(t, NoSimulationMessage, l.Simulation.Placeholder)
	assert.False(t, l.Simulation.Pending)
	assert.Equal(t, uint64(1), h.c.Stats().DroppedSwaps)
}

func TestController_SelectValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	before := h.c.Layout()

	err := h.c.Select(ctx, scenario.FieldLogName, "2020.01.01.unknown")
	assert.ErrorIs(t, err, scenario.ErrUnknownOption)
	err = h.c.Select(ctx, scenario.FieldScenarioName, testutil.ScenarioName)
	assert.ErrorIs(t, err, scenario.ErrUnknownOption, "scenario names are offered only after a log is chosen")

	require.NoError(t, h.c.Select(ctx, scenario.FieldScenarioType, testutil.ScenarioType))
	assert.Equal(t, before.Revision, h.c.Layout().Revision, "reselecting the current value is a no-op")
	assert.Equal(t, before.Selection, h.c.Selection())
}

func TestController_SetActive(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.c.SetActive([]int{1, 1}))
	assert.Equal(t, uint64(2), h.c.Stats().ScoreRebuilds)

	h.selectScenario(t, testutil.ScenarioType, testutil.LogName, testutil.ScenarioName)
	h.loop.RunPending()

	l := h.c.Layout()
	assert.Equal(t, []int{1}, []int(l.Active))
	for _, f := range l.Scores.Figures {
		for _, s := range f.Series {
			assert.Equal(t, 1, s.ExperimentIndex)
			assert.Equal(t, s.PlannerName+" (2024.05.02.closed_loop)", s.Legend)
		}
	}
	assert.Len(t, l.Simulation.Tiles, 2)

	err := h.c.SetActive([]int{0, 5})
	assert.ErrorIs(t, err, ErrUnknownExperiment)
	assert.Equal(t, []int{1}, []int(h.c.Active()))
}

func TestController_ColorsStableAcrossActiveChanges(t *testing.T) {
	h := newHarness(t, nil)
	before := h.c.Colors().Color(1, "simple_planner")
	require.NoError(t, h.c.SetActive([]int{1}))
	assert.Equal(t, before, h.c.Colors().Color(1, "simple_planner"))
	assert.NotEqual(t, h.c.Colors().Color(0, "simple_planner"), before)
}

func TestController_SceneRendererErrorIsShown(t *testing.T) {
	h := newHarness(t, failingScenes{})
	h.selectScenario(t, testutil.ScenarioType, testutil.LogName, testutil.ScenarioName)
	h.loop.RunPending()

	l := h.c.Layout()
	assert.Equal(t, "scene builder unavailable", l.Simulation.Error)
	assert.Equal(t, NoSimulationMessage, l.Simulation.Placeholder)
	assert.Len(t, l.Scores.Figures, 2, "metric figures survive a scene failure")
	assert.Empty(t, h.rec.events)
}

func TestController_Restore(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	saved := scenario.Selection{
		ScenarioType:    testutil.ScenarioType,
		LogName:         testutil.LogName,
		ScenarioName:    testutil.ScenarioName,
		EnabledPlanners: []string{"simple_planner"},
	}
	require.NoError(t, h.c.Restore(ctx, saved, []int{0}))
	h.loop.RunPending()

	assert.Equal(t, saved, h.c.Selection())
	l := h.c.Layout()
	assert.Len(t, l.Simulation.Tiles, 1)
	assert.Equal(t, []int{0}, []int(l.Active))

	stale := saved
	stale.LogName = "2019.01.01.gone"
	assert.ErrorIs(t, h.c.Restore(ctx, stale, nil), scenario.ErrUnknownOption)
}

func TestLayout_Figure(t *testing.T) {
	h := newHarness(t, nil)
	h.selectScenario(t, testutil.ScenarioType, testutil.LogName, testutil.ScenarioName)

	l := h.c.Layout()
	f, ok := l.Figure("ts_ego_speed")
	require.True(t, ok)
	assert.Equal(t, "meters_per_second", f.YLabel)
	_, ok = l.Figure("scores_1")
	assert.True(t, ok)
	_, ok = l.Figure("missing")
	assert.False(t, ok)
}

func TestLayout_FigureKeysDoNotCollide(t *testing.T) {
	l := Layout{
		Scores:     FigureSlot{Figures: []render.Figure{{Key: "scores_0", Kind: render.KindScores}}},
		TimeSeries: FigureSlot{Figures: []render.Figure{{Key: render.TimeSeriesKey("scores_0"), Kind: render.KindTimeSeries}}},
	}
	f, ok := l.Figure("scores_0")
	require.True(t, ok)
	assert.Equal(t, render.KindScores, f.Kind)

	f, ok = l.Figure(render.TimeSeriesKey("scores_0"))
	require.True(t, ok)
	assert.Equal(t, render.KindTimeSeries, f.Kind)
}

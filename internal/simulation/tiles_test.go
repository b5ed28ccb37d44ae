package simulation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scenario.board/internal/experiment"
	"github.com/banshee-data/scenario.board/internal/testutil"
)

func TestFileRenderer_RenderTiles(t *testing.T) {
	data := testutil.StandardFileData(t)
	r := NewFileRenderer(data)

	tiles, err := r.RenderTiles(context.Background(), Request{
		ScenarioType: testutil.ScenarioType,
		LogName:      testutil.LogName,
		ScenarioName: testutil.ScenarioName,
		Active:       data.AllIndices(),
	})
	require.NoError(t, err)
	require.Len(t, tiles, 4)
	assert.Equal(t, 0, tiles[0].ExperimentIndex)
	assert.Equal(t, "ml_planner", tiles[0].PlannerName)
	assert.Equal(t, "2024.05.01.open_loop", tiles[0].ExperimentName)
	assert.Equal(t, "simple_planner", tiles[1].PlannerName)
	assert.Equal(t, 1, tiles[3].ExperimentIndex)
	assert.NotEmpty(t, tiles[0].Files)

	tiles, err = r.RenderTiles(context.Background(), Request{
		ScenarioType: testutil.ScenarioType,
		LogName:      testutil.LogName,
		ScenarioName: testutil.ScenarioName,
		Active:       experiment.Indices{1},
	})
	require.NoError(t, err)
	assert.Len(t, tiles, 2)
}

func TestFileRenderer_NoScenario(t *testing.T) {
	r := NewFileRenderer(testutil.StandardFileData(t))
	tiles, err := r.RenderTiles(context.Background(), Request{ScenarioType: testutil.ScenarioType})
	require.NoError(t, err)
	assert.Empty(t, tiles)

	r.SetData(nil)
	tiles, err = r.RenderTiles(context.Background(), Request{ScenarioName: testutil.ScenarioName})
	require.NoError(t, err)
	assert.Empty(t, tiles)
}

func TestFileRenderer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFileRenderer(nil).RenderTiles(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFilterPlanners(t *testing.T) {
	tiles := []Tile{{PlannerName: "a"}, {PlannerName: "b"}, {PlannerName: "a"}}
	got := FilterPlanners(tiles, func(p string) bool { return p == "a" })
	assert.Len(t, got, 2)
	assert.Empty(t, FilterPlanners(tiles, func(string) bool { return false }))
}

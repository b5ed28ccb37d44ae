package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSavedViews_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &SavedView{
		Name:         "left turns, ml only",
		ScenarioType: "starting_left_turn",
		LogName:      "2021.07.16.20.45.29_veh-35_01095_01486",
		ScenarioName: "a1b2c3d4e5f60718",
		Planners:     []string{"ml_planner"},
		Active:       []int{0, 1},
		CreatedAt:    time.Unix(1714564800, 0),
	}
	require.NoError(t, db.CreateView(ctx, first))
	assert.Len(t, first.ID, 36, "IDs are UUIDs")

	second := &SavedView{Name: "just a type", ScenarioType: "stationary_in_traffic", CreatedAt: time.Unix(1714568400, 0)}
	require.NoError(t, db.CreateView(ctx, second))

	got, err := db.GetView(ctx, first.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(*first, got); diff != "" {
		t.Errorf("GetView mismatch (-want +got):\n%s", diff)
	}

	views, err := db.ListViews(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, second.ID, views[0].ID, "newest first")
	assert.Equal(t, []string{}, views[0].Planners)
	assert.Equal(t, []int{}, views[0].Active)

	require.NoError(t, db.DeleteView(ctx, first.ID))
	_, err = db.GetView(ctx, first.ID)
	assert.True(t, errors.Is(err, ErrViewNotFound))
	assert.ErrorIs(t, db.DeleteView(ctx, first.ID), ErrViewNotFound)
}

func TestSavedViews_Validation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	assert.Error(t, db.CreateView(ctx, &SavedView{}), "name is required")

	v := &SavedView{ID: "fixed", Name: "a"}
	require.NoError(t, db.CreateView(ctx, v))
	assert.Error(t, db.CreateView(ctx, &SavedView{ID: "fixed", Name: "b"}), "IDs are unique")

	views, err := db.ListViews(ctx)
	require.NoError(t, err)
	assert.Len(t, views, 1)
}

func TestRenderLog(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Unix(1714564800, 0)
	for i := 0; i < 3; i++ {
		r := &RenderRecord{
			ScenarioType:      "starting_left_turn",
			LogName:           "log",
			ScenarioName:      "scenario",
			ScoreFigures:      2,
			TimeSeriesFigures: i,
			Tiles:             4,
			Elapsed:           time.Duration(i+1) * 100 * time.Millisecond,
			RenderedAt:        base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.InsertRender(ctx, r))
		assert.NotEmpty(t, r.ID)
	}

	recent, err := db.RecentRenders(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 2, recent[0].TimeSeriesFigures)
	assert.Equal(t, 300*time.Millisecond, recent[0].Elapsed)
	assert.True(t, recent[0].RenderedAt.Equal(base.Add(2*time.Minute)))
	assert.Equal(t, 1, recent[1].TimeSeriesFigures)
}

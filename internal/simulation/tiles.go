// Package simulation produces the per-planner scene tiles shown beside the
// scenario metric figures.
package simulation

import (
	"context"
	"sort"

	"github.com/banshee-data/scenario.board/internal/experiment"
)

// Request is the final selection a scene render is asked for.
type Request struct {
	ScenarioType string
	LogName      string
	ScenarioName string
	Active       experiment.Indices
}

// Tile describes one renderable scene: one planner's simulation of the
// selected scenario in one experiment.
type Tile struct {
	ExperimentIndex int      `json:"experiment_index"`
	ExperimentName  string   `json:"experiment_name"`
	PlannerName     string   `json:"planner_name"`
	ScenarioType    string   `json:"scenario_type"`
	LogName         string   `json:"log_name"`
	ScenarioName    string   `json:"scenario_name"`
	Files           []string `json:"files,omitempty"`
}

// SceneRenderer builds the scene tiles of a selection.
type SceneRenderer interface {
	RenderTiles(ctx context.Context, req Request) ([]Tile, error)
}

// FileRenderer builds tiles from the simulation keys of loaded experiments.
type FileRenderer struct {
	data *experiment.FileData
}

// NewFileRenderer creates a FileRenderer over data.
func NewFileRenderer(data *experiment.FileData) *FileRenderer {
	return &FileRenderer{data: data}
}

// SetData swaps the experiments tiles are built from.
func (r *FileRenderer) SetData(data *experiment.FileData) {
	r.data = data
}

// RenderTiles returns one tile per matching simulation key, ordered by
// experiment then planner.
func (r *FileRenderer) RenderTiles(ctx context.Context, req Request) ([]Tile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.data == nil || req.ScenarioName == "" {
		return nil, nil
	}
	keys := r.data.Keys(req.Active, req.ScenarioType, req.LogName, req.ScenarioName)
	tiles := make([]Tile, 0, len(keys))
	for _, k := range keys {
		tiles = append(tiles, Tile{
			ExperimentIndex: k.ExperimentIndex,
			ExperimentName:  r.data.DisplayName(k.ExperimentIndex),
			PlannerName:     k.PlannerName,
			ScenarioType:    k.ScenarioType,
			LogName:         k.LogName,
			ScenarioName:    k.ScenarioName,
			Files:           k.Files,
		})
	}
	sort.SliceStable(tiles, func(i, j int) bool {
		if tiles[i].ExperimentIndex != tiles[j].ExperimentIndex {
			return tiles[i].ExperimentIndex < tiles[j].ExperimentIndex
		}
		return tiles[i].PlannerName < tiles[j].PlannerName
	})
	return tiles, nil
}

// FilterPlanners keeps the tiles whose planner is enabled.
func FilterPlanners(tiles []Tile, enabled func(string) bool) []Tile {
	out := make([]Tile, 0, len(tiles))
	for _, t := range tiles {
		if enabled(t.PlannerName) {
			out = append(out, t)
		}
	}
	return out
}

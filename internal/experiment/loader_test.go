package experiment

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aggregatorJSONFixture = `{
  "columns": ["scenario", "log_name", "scenario_type", "num_scenarios", "planner_name", "aggregator_type", "score", "ego_jerk"],
  "rows": [
    {"scenario": "s1", "log_name": "log_a", "scenario_type": "lane_change", "num_scenarios": null, "planner_name": "simple", "aggregator_type": "weighted_average", "score": 0.81234, "ego_jerk": 1},
    {"scenario": "s1", "log_name": "log_a", "scenario_type": "lane_change", "planner_name": "ml", "aggregator_type": "weighted_average", "score": null, "ego_jerk": 0.5},
    {"scenario": "final_score", "log_name": null, "scenario_type": "final_score", "num_scenarios": 2, "planner_name": "simple", "aggregator_type": "weighted_average", "score": 0.7, "ego_jerk": 0.9}
  ]
}`

const statisticsJSONFixture = `{
  "metric_statistic_name": "ego_acceleration",
  "rows": [
    {"scenario_name": "s1", "scenario_type": "lane_change", "log_name": "log_a", "planner_name": "simple",
     "time_series_values": [[0.1, 0.2], [0.3]], "time_series_timestamps": [100, 200, 300], "time_series_unit": "meters_per_second_squared"},
    {"scenario_name": "s1", "scenario_type": "lane_change", "log_name": "log_a", "planner_name": "ml",
     "time_series_values": null, "time_series_timestamps": null, "time_series_unit": null}
  ]
}`

func experimentFS() fstest.MapFS {
	return fstest.MapFS{
		"aggregator_metric/weighted_average.json":                          {Data: []byte(aggregatorJSONFixture)},
		"aggregator_metric/notes.txt":                                      {Data: []byte("ignored")},
		"metrics/ego_acceleration.json":                                    {Data: []byte(statisticsJSONFixture)},
		"simulation_log/simple/lane_change/log_a/s1/s1.msgpack.xz":         {Data: []byte("x")},
		"simulation_log/ml/lane_change/log_a/s1/s1.msgpack.xz":             {Data: []byte("x")},
		"simulation_log/simple/stationary/log_b/s2/s2.msgpack.xz":          {Data: []byte("x")},
		"simulation_log/simple/stationary/log_b/s2/nested/deep.msgpack.xz": {Data: []byte("x")},
	}
}

func TestLoad_JSONExperiment(t *testing.T) {
	exp, err := Load(experimentFS(), 0, "/data/exp/2024.05.01.planner_run")
	require.NoError(t, err)

	assert.Equal(t, "2024.05.01.planner_run", exp.DisplayName())

	require.Len(t, exp.AggregatorTables, 1)
	agg := exp.AggregatorTables[0]
	assert.Equal(t, "weighted_average", agg.Name)
	assert.Equal(t, []string{"ego_jerk", "score"}, agg.MetricColumns)
	require.Len(t, agg.Rows, 3)
	assert.Nil(t, agg.Rows[0].NumScenarios)
	assert.Nil(t, agg.Rows[1].NumScenarios, "missing key is null")
	require.NotNil(t, agg.Rows[2].NumScenarios)
	assert.Equal(t, 2.0, *agg.Rows[2].NumScenarios)
	assert.InDelta(t, 0.81234, *agg.Rows[0].Metrics["score"], 1e-12)
	assert.Nil(t, agg.Rows[1].Metrics["score"])
	assert.Equal(t, 1.0, *agg.Rows[0].Metrics["ego_jerk"])

	require.Len(t, exp.StatisticsTables, 1)
	st := exp.StatisticsTables[0]
	assert.Equal(t, "ego_acceleration", st.MetricStatisticName)
	assert.Equal(t, []string{"ml", "simple"}, st.PlannerNames())
	require.NotNil(t, st.Rows[0].TimeSeries)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, st.Rows[0].TimeSeries.Values)
	assert.Equal(t, []int64{100, 200, 300}, st.Rows[0].TimeSeries.Timestamps)
	assert.Equal(t, "meters_per_second_squared", st.Rows[0].TimeSeries.Unit)
	assert.Nil(t, st.Rows[1].TimeSeries)

	require.Len(t, exp.ScenarioKeys, 3)
	var s2 *SimulationScenarioKey
	for i := range exp.ScenarioKeys {
		if exp.ScenarioKeys[i].ScenarioName == "s2" {
			s2 = &exp.ScenarioKeys[i]
		}
	}
	require.NotNil(t, s2)
	assert.Equal(t, "stationary", s2.ScenarioType)
	assert.Equal(t, "log_b", s2.LogName)
	assert.Equal(t, []string{"simulation_log/simple/stationary/log_b/s2/s2.msgpack.xz"}, s2.Files)
}

func TestLoad_KeysFromStatisticsWithoutSimulationLog(t *testing.T) {
	fsys := experimentFS()
	for name := range fsys {
		if strings.HasPrefix(name, SimulationLogFolder+"/") {
			delete(fsys, name)
		}
	}
	exp, err := Load(fsys, 3, "exp")
	require.NoError(t, err)
	require.Len(t, exp.ScenarioKeys, 2)
	for _, k := range exp.ScenarioKeys {
		assert.Equal(t, 3, k.ExperimentIndex)
		assert.Equal(t, "s1", k.ScenarioName)
	}
}

func TestLoad_EmptyExperiment(t *testing.T) {
	exp, err := Load(fstest.MapFS{}, 0, "empty")
	require.NoError(t, err)
	assert.Empty(t, exp.AggregatorTables)
	assert.Empty(t, exp.StatisticsTables)
	assert.Empty(t, exp.ScenarioKeys)
}

func TestLoad_SchemaErrors(t *testing.T) {
	tests := map[string]string{
		"missing planner column": `{"columns": ["scenario", "log_name", "num_scenarios"], "rows": []}`,
		"no columns":             `{"columns": [], "rows": []}`,
		"string metric":          `{"columns": ["scenario", "log_name", "num_scenarios", "planner_name", "score"], "rows": [{"score": "high"}]}`,
		"numeric planner":        `{"columns": ["scenario", "log_name", "num_scenarios", "planner_name"], "rows": [{"planner_name": 3}]}`,
		"malformed":              `{"columns": [`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			fsys := fstest.MapFS{"aggregator_metric/a.json": {Data: []byte(body)}}
			_, err := Load(fsys, 0, "bad")
			assert.Error(t, err)
		})
	}
}

func TestLoad_BadStatistics(t *testing.T) {
	fsys := fstest.MapFS{"metrics/m.json": {Data: []byte(`{"rows": [{"time_series_values": ["a"]}]}`)}}
	_, err := Load(fsys, 0, "bad")
	assert.Error(t, err)
}

type aggregatorRecord struct {
	Scenario       string   `parquet:"scenario"`
	LogName        string   `parquet:"log_name"`
	ScenarioType   string   `parquet:"scenario_type"`
	PlannerName    string   `parquet:"planner_name"`
	AggregatorType string   `parquet:"aggregator_type"`
	NumScenarios   *float64 `parquet:"num_scenarios,optional"`
	EgoJerk        *float64 `parquet:"ego_jerk,optional"`
	Score          *float64 `parquet:"score,optional"`
}

func f64(v float64) *float64 { return &v }

func TestLoad_ParquetAggregator(t *testing.T) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[aggregatorRecord](&buf)
	_, err := w.Write([]aggregatorRecord{
		{Scenario: "s1", LogName: "log_a", ScenarioType: "lane_change", PlannerName: "simple", AggregatorType: "weighted_average", EgoJerk: f64(0.25), Score: f64(0.9)},
		{Scenario: "s1", LogName: "log_a", ScenarioType: "lane_change", PlannerName: "ml", AggregatorType: "weighted_average", EgoJerk: nil, Score: f64(math.NaN())},
		{Scenario: "final_score", PlannerName: "simple", AggregatorType: "weighted_average", NumScenarios: f64(1), Score: f64(0.9)},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	fsys := fstest.MapFS{
		"aggregator_metric/b_closed_loop.parquet": {Data: buf.Bytes()},
		"aggregator_metric/a_open_loop.json":      {Data: []byte(aggregatorJSONFixture)},
	}
	exp, err := Load(fsys, 0, "mixed")
	require.NoError(t, err)
	require.Len(t, exp.AggregatorTables, 2)
	assert.Equal(t, "a_open_loop", exp.AggregatorTables[0].Name, "files are ordered by name")

	pt := exp.AggregatorTables[1]
	assert.Equal(t, "b_closed_loop", pt.Name)
	assert.Equal(t, []string{"ego_jerk", "score"}, pt.MetricColumns)
	require.Len(t, pt.Rows, 3)
	assert.Equal(t, "simple", pt.Rows[0].PlannerName)
	assert.Equal(t, 0.25, *pt.Rows[0].Metrics["ego_jerk"])
	assert.Nil(t, pt.Rows[0].NumScenarios)
	assert.Nil(t, pt.Rows[1].Metrics["ego_jerk"])
	assert.Nil(t, pt.Rows[1].Metrics["score"], "NaN is null")
	require.NotNil(t, pt.Rows[2].NumScenarios)
	assert.Equal(t, 1.0, *pt.Rows[2].NumScenarios)
}

func TestLoadAll(t *testing.T) {
	root := t.TempDir()
	var dirs []string
	for _, name := range []string{"exp_a", "exp_b"} {
		dir := filepath.Join(root, name)
		for rel, f := range experimentFS() {
			p := filepath.Join(dir, filepath.FromSlash(rel))
			require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
			require.NoError(t, os.WriteFile(p, f.Data, 0o644))
		}
		dirs = append(dirs, dir)
	}

	data, err := LoadAll(dirs, []string{root})
	require.NoError(t, err)
	require.Len(t, data.Experiments, 2)
	assert.Equal(t, "exp_b", data.DisplayName(1))
	for _, k := range data.Experiments[1].ScenarioKeys {
		assert.Equal(t, 1, k.ExperimentIndex)
	}

	_, err = LoadAll(dirs, []string{t.TempDir()})
	assert.Error(t, err, "dirs outside the allowed roots are rejected")
}

// Package testutil provides shared test helpers and experiment fixtures.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/scenario.board/internal/experiment"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string, body io.Reader) *http.Request {
	return httptest.NewRequest(method, path, body)
}

// ScoreRow describes one aggregator row. Metrics missing from Scores are null.
type ScoreRow struct {
	Scenario     string
	LogName      string
	ScenarioType string
	Planner      string
	NumScenarios *float64
	Scores       map[string]float64
}

// AggregatorTable builds an aggregator table through the ingestion schema
// check, so fixtures obey the same rules as loaded files.
func AggregatorTable(t testing.TB, name string, metrics []string, rows ...ScoreRow) *experiment.AggregatorTable {
	t.Helper()
	columns := append([]string{
		experiment.ColScenario, experiment.ColLogName, experiment.ColScenarioType,
		experiment.ColNumScenarios, experiment.ColPlannerName, experiment.ColAggregatorType,
	}, metrics...)
	records := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		rec := map[string]any{
			experiment.ColScenario:       r.Scenario,
			experiment.ColLogName:        r.LogName,
			experiment.ColScenarioType:   r.ScenarioType,
			experiment.ColPlannerName:    r.Planner,
			experiment.ColAggregatorType: name,
		}
		if r.NumScenarios != nil {
			rec[experiment.ColNumScenarios] = *r.NumScenarios
		}
		for m, v := range r.Scores {
			rec[m] = v
		}
		records = append(records, rec)
	}
	table, err := experiment.NewAggregatorTable(name, columns, records)
	if err != nil {
		t.Fatalf("fixture aggregator table %s: %v", name, err)
	}
	return table
}

// SeriesRow describes one metric statistics row. A nil Values slice means
// the row carries no time series.
type SeriesRow struct {
	Scenario     string
	ScenarioType string
	LogName      string
	Planner      string
	Values       []float64
	Timestamps   []int64
	Unit         string
}

// StatisticsTable builds a metric statistics table.
func StatisticsTable(name string, rows ...SeriesRow) *experiment.MetricStatisticsTable {
	t := &experiment.MetricStatisticsTable{MetricStatisticName: name}
	for _, r := range rows {
		row := experiment.StatisticsRow{
			ScenarioName: r.Scenario,
			ScenarioType: r.ScenarioType,
			LogName:      r.LogName,
			PlannerName:  r.Planner,
		}
		if r.Values != nil {
			row.TimeSeries = &experiment.TimeSeries{Values: r.Values, Timestamps: r.Timestamps, Unit: r.Unit}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Key builds a simulation scenario key.
func Key(planner, scenarioType, logName, scenario string) experiment.SimulationScenarioKey {
	return experiment.SimulationScenarioKey{
		PlannerName:  planner,
		ScenarioType: scenarioType,
		LogName:      logName,
		ScenarioName: scenario,
		Files:        []string{scenario + ".msgpack.xz"},
	}
}

// Fixture names shared by the standard file data.
const (
	ScenarioType = "starting_left_turn"
	LogName      = "2021.07.16.20.45.29_veh-35_01095_01486"
	ScenarioName = "a1b2c3d4e5f60718"
	OtherType    = "stationary_in_traffic"
	OtherLog     = "2021.08.17.18.54.02_veh-45_00665_01065"
	OtherName    = "ffee00112233aabb"
)

// Planners of the standard file data.
var Planners = []string{"ml_planner", "simple_planner"}

// Metrics are the five metric columns of the standard aggregator tables,
// including the overall "score" column.
var Metrics = []string{"drivable_area_compliance", "ego_is_comfortable", "ego_jerk", "no_ego_at_fault_collisions", "score"}

// StandardFileData builds two experiments, each with both Planners scored on
// all Metrics for the fixture scenario, plus a summary row, and two metric
// statistics tables with time series for the fixture scenario.
func StandardFileData(t testing.TB) *experiment.FileData {
	t.Helper()
	summaryCount := 2.0
	exps := make([]*experiment.Experiment, 2)
	for e := range exps {
		var rows []ScoreRow
		var keys []experiment.SimulationScenarioKey
		var accel, speed []SeriesRow
		for p, planner := range Planners {
			scores := make(map[string]float64, len(Metrics))
			for m, metric := range Metrics {
				scores[metric] = 0.5 + float64(e)/10 + float64(p)/100 + float64(m)/1000 + 0.00004
			}
			rows = append(rows,
				ScoreRow{Scenario: ScenarioName, LogName: LogName, ScenarioType: ScenarioType, Planner: planner, Scores: scores},
				ScoreRow{Scenario: OtherName, LogName: OtherLog, ScenarioType: OtherType, Planner: planner, Scores: map[string]float64{"score": 1}},
				ScoreRow{Scenario: "final_score", ScenarioType: "final_score", Planner: planner, NumScenarios: &summaryCount, Scores: scores},
			)
			keys = append(keys,
				Key(planner, ScenarioType, LogName, ScenarioName),
				Key(planner, OtherType, OtherLog, OtherName),
			)
			accel = append(accel, SeriesRow{
				Scenario: ScenarioName, ScenarioType: ScenarioType, LogName: LogName, Planner: planner,
				Values:     []float64{0.123456, 0.2, 0.3 + float64(e)},
				Timestamps: []int64{1000000, 1100000, 1200000},
				Unit:       "meters_per_second_squared",
			})
			speed = append(speed, SeriesRow{
				Scenario: ScenarioName, ScenarioType: ScenarioType, LogName: LogName, Planner: planner,
				Values:     []float64{5, 6},
				Timestamps: []int64{1000000, 1100000},
				Unit:       "meters_per_second",
			})
		}
		exps[e] = &experiment.Experiment{
			Path:             []string{"/runs/2024.05.01.open_loop", "/runs/2024.05.02.closed_loop"}[e],
			AggregatorTables: []*experiment.AggregatorTable{AggregatorTable(t, "weighted_average_metric_aggregator", Metrics, rows...)},
			StatisticsTables: []*experiment.MetricStatisticsTable{
				StatisticsTable("ego_acceleration", accel...),
				StatisticsTable("ego_speed", speed...),
			},
			ScenarioKeys: keys,
		}
	}
	return experiment.NewFileData(exps...)
}

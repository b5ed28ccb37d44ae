// Package experiment holds the typed tables loaded from one experiment run
// directory and the option queries derived from them.
package experiment

import (
	"fmt"
	"math"
	"sort"
)

// Reserved aggregator columns. Every other column of an aggregator table is a
// metric column.
const (
	ColScenario       = "scenario"
	ColLogName        = "log_name"
	ColScenarioType   = "scenario_type"
	ColNumScenarios   = "num_scenarios"
	ColPlannerName    = "planner_name"
	ColAggregatorType = "aggregator_type"
)

var reservedColumns = map[string]bool{
	ColScenario:       true,
	ColLogName:        true,
	ColScenarioType:   true,
	ColNumScenarios:   true,
	ColPlannerName:    true,
	ColAggregatorType: true,
}

var requiredColumns = []string{ColPlannerName, ColScenario, ColLogName, ColNumScenarios}

// IsReserved reports whether col is one of the non-metric aggregator columns.
func IsReserved(col string) bool {
	return reservedColumns[col]
}

// AggregatorRow is one row of an aggregator table. Summary rows carry a
// NumScenarios value; per-scenario rows leave it nil.
type AggregatorRow struct {
	Scenario       string
	LogName        string
	ScenarioType   string
	PlannerName    string
	AggregatorType string
	NumScenarios   *float64
	// Metrics maps metric column to score; nil means null.
	Metrics map[string]*float64
}

// AggregatorTable is one aggregator output file.
type AggregatorTable struct {
	Name string
	// MetricColumns is the sorted set of non-reserved columns.
	MetricColumns []string
	Rows          []AggregatorRow
}

// NewAggregatorTable validates a generic record set against the aggregator
// schema and converts it to typed rows. Missing keys in a record are nulls.
func NewAggregatorTable(name string, columns []string, records []map[string]any) (*AggregatorTable, error) {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}
	for _, c := range requiredColumns {
		if !present[c] {
			return nil, fmt.Errorf("aggregator table %s: missing required column %q", name, c)
		}
	}

	t := &AggregatorTable{Name: name}
	for c := range present {
		if !IsReserved(c) {
			t.MetricColumns = append(t.MetricColumns, c)
		}
	}
	sort.Strings(t.MetricColumns)

	t.Rows = make([]AggregatorRow, 0, len(records))
	for i, rec := range records {
		row := AggregatorRow{Metrics: make(map[string]*float64, len(t.MetricColumns))}
		var err error
		strs := []struct {
			col string
			dst *string
		}{
			{ColScenario, &row.Scenario},
			{ColLogName, &row.LogName},
			{ColScenarioType, &row.ScenarioType},
			{ColPlannerName, &row.PlannerName},
			{ColAggregatorType, &row.AggregatorType},
		}
		for _, s := range strs {
			if *s.dst, err = stringCell(rec[s.col]); err != nil {
				return nil, fmt.Errorf("aggregator table %s row %d column %s: %w", name, i, s.col, err)
			}
		}
		if row.NumScenarios, err = floatCell(rec[ColNumScenarios]); err != nil {
			return nil, fmt.Errorf("aggregator table %s row %d column %s: %w", name, i, ColNumScenarios, err)
		}
		for _, c := range t.MetricColumns {
			v, err := floatCell(rec[c])
			if err != nil {
				return nil, fmt.Errorf("aggregator table %s row %d column %s: %w", name, i, c, err)
			}
			row.Metrics[c] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func stringCell(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

// floatCell converts a numeric cell. NaN is a null, the way dataframes encode
// missing floats.
func floatCell(v any) (*float64, error) {
	var f float64
	switch x := v.(type) {
	case nil:
		return nil, nil
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case interface{ Float64() (float64, error) }:
		var err error
		if f, err = x.Float64(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("expected number, got %T", v)
	}
	if math.IsNaN(f) {
		return nil, nil
	}
	return &f, nil
}

// TimeSeries is the time-series cell of a statistics row.
type TimeSeries struct {
	Values     []float64
	Timestamps []int64
	Unit       string
}

// StatisticsRow is one per-scenario, per-planner row of a metric statistics table.
type StatisticsRow struct {
	ScenarioName string
	ScenarioType string
	LogName      string
	PlannerName  string
	// TimeSeries is nil when the metric produced no time series for the row.
	TimeSeries *TimeSeries
}

// MetricStatisticsTable holds the per-scenario statistics of one metric.
type MetricStatisticsTable struct {
	MetricStatisticName string
	Rows                []StatisticsRow
}

// PlannerNames returns the distinct planner names of the table, sorted.
func (t *MetricStatisticsTable) PlannerNames() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range t.Rows {
		if !seen[r.PlannerName] {
			seen[r.PlannerName] = true
			out = append(out, r.PlannerName)
		}
	}
	sort.Strings(out)
	return out
}

// Query returns the rows matching scenarioName and plannerName exactly.
// scenarioType and logName filter only when non-empty.
func (t *MetricStatisticsTable) Query(scenarioName, scenarioType, logName, plannerName string) []StatisticsRow {
	var out []StatisticsRow
	for _, r := range t.Rows {
		if r.ScenarioName != scenarioName || r.PlannerName != plannerName {
			continue
		}
		if scenarioType != "" && r.ScenarioType != scenarioType {
			continue
		}
		if logName != "" && r.LogName != logName {
			continue
		}
		out = append(out, r)
	}
	return out
}

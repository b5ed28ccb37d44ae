package scenario

import (
	"github.com/banshee-data/scenario.board/internal/experiment"
)

// TimeSeriesSample is one planner's time series for one metric of the
// selected scenario.
type TimeSeriesSample struct {
	ExperimentIndex int       `json:"experiment_index"`
	PlannerName     string    `json:"planner_name"`
	Values          []float64 `json:"values"`
	Timestamps      []int64   `json:"timestamps"`
	Unit            string    `json:"unit"`
}

// TimeSeriesIndex maps metric statistic name to its samples, in aggregation order.
type TimeSeriesIndex map[string][]TimeSeriesSample

// AggregateTimeSeries collects the time series of the selected scenario from
// the active experiments. It returns an empty index until a scenario name is
// selected.
func AggregateTimeSeries(data *experiment.FileData, sel Selection, active experiment.Indices) TimeSeriesIndex {
	out := make(TimeSeriesIndex)
	if data == nil || sel.ScenarioName == "" {
		return out
	}
	for _, exp := range data.Experiments {
		if !active.Has(exp.Index) {
			continue
		}
		for _, table := range exp.StatisticsTables {
			for _, planner := range table.PlannerNames() {
				rows := table.Query(sel.ScenarioName, sel.ScenarioType, sel.LogName, planner)
				if len(rows) == 0 || rows[0].TimeSeries == nil {
					continue
				}
				sample := TimeSeriesSample{
					ExperimentIndex: exp.Index,
					PlannerName:     planner,
					Values:          []float64{},
					Timestamps:      []int64{},
					Unit:            rows[0].TimeSeries.Unit,
				}
				for _, r := range rows {
					if r.TimeSeries == nil {
						continue
					}
					for _, v := range r.TimeSeries.Values {
						sample.Values = append(sample.Values, Round(v))
					}
					sample.Timestamps = append(sample.Timestamps, r.TimeSeries.Timestamps...)
				}
				out[table.MetricStatisticName] = append(out[table.MetricStatisticName], sample)
			}
		}
	}
	return out
}

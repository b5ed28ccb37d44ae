package scenario

import (
	"github.com/banshee-data/scenario.board/internal/experiment"
)

// MetricScore is one planner's score on one metric for one scenario, as
// reported by one aggregator file of one experiment.
type MetricScore struct {
	ExperimentIndex     int     `json:"experiment_index"`
	AggregatorFileName  string  `json:"aggregator_file_name"`
	AggregatorFileIndex int     `json:"aggregator_file_index"`
	PlannerName         string  `json:"planner_name"`
	MetricName          string  `json:"metric_name"`
	Score               float64 `json:"score"`
}

// ScoreIndex buckets scores by log name, then scenario name.
type ScoreIndex map[string]map[string][]MetricScore

// Scenario returns the scores of one scenario, or nil.
func (idx ScoreIndex) Scenario(logName, scenarioName string) []MetricScore {
	return idx[logName][scenarioName]
}

// Len counts the scores across all buckets.
func (idx ScoreIndex) Len() int {
	n := 0
	for _, byScenario := range idx {
		for _, scores := range byScenario {
			n += len(scores)
		}
	}
	return n
}

// BuildScoreIndex collects the per-scenario scores of the active experiments.
// Summary rows (num_scenarios set) and null scores contribute nothing.
func BuildScoreIndex(data *experiment.FileData, active experiment.Indices) ScoreIndex {
	idx := make(ScoreIndex)
	if data == nil {
		return idx
	}
	for _, exp := range data.Experiments {
		if !active.Has(exp.Index) {
			continue
		}
		for fileIndex, table := range exp.AggregatorTables {
			for _, row := range table.Rows {
				if row.NumScenarios != nil {
					continue
				}
				for _, metric := range table.MetricColumns {
					v := row.Metrics[metric]
					if v == nil {
						continue
					}
					byScenario, ok := idx[row.LogName]
					if !ok {
						byScenario = make(map[string][]MetricScore)
						idx[row.LogName] = byScenario
					}
					byScenario[row.Scenario] = append(byScenario[row.Scenario], MetricScore{
						ExperimentIndex:     exp.Index,
						AggregatorFileName:  table.Name,
						AggregatorFileIndex: fileIndex,
						PlannerName:         row.PlannerName,
						MetricName:          metric,
						Score:               Round(*v),
					})
				}
			}
		}
	}
	return idx
}

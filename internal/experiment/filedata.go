package experiment

import (
	"path/filepath"
	"sort"
)

// Experiment is one loaded experiment run.
type Experiment struct {
	Index int
	Path  string
	// AggregatorTables are ordered by file name; the position is the
	// aggregator file index.
	AggregatorTables []*AggregatorTable
	StatisticsTables []*MetricStatisticsTable
	ScenarioKeys     []SimulationScenarioKey
}

// DisplayName is the last path element of the experiment directory.
func (e *Experiment) DisplayName() string {
	return filepath.Base(filepath.Clean(e.Path))
}

// SimulationScenarioKey identifies the simulation output of one planner on
// one scenario.
type SimulationScenarioKey struct {
	ExperimentIndex int      `json:"experiment_index"`
	PlannerName     string   `json:"planner_name"`
	ScenarioType    string   `json:"scenario_type"`
	LogName         string   `json:"log_name"`
	ScenarioName    string   `json:"scenario_name"`
	Files           []string `json:"files,omitempty"`
}

// Indices is a set of experiment indices, kept as a slice for stable output.
type Indices []int

// Has reports whether i is in the set.
func (s Indices) Has(i int) bool {
	for _, v := range s {
		if v == i {
			return true
		}
	}
	return false
}

// FileData is the set of loaded experiments. It is read-only once built.
type FileData struct {
	Experiments []*Experiment
}

// NewFileData indexes experiments by position.
func NewFileData(exps ...*Experiment) *FileData {
	for i, e := range exps {
		e.Index = i
		for k := range e.ScenarioKeys {
			e.ScenarioKeys[k].ExperimentIndex = i
		}
	}
	return &FileData{Experiments: exps}
}

// AllIndices returns every loaded experiment index.
func (d *FileData) AllIndices() Indices {
	out := make(Indices, len(d.Experiments))
	for i := range d.Experiments {
		out[i] = i
	}
	return out
}

// Experiment returns the experiment at index i, or nil.
func (d *FileData) Experiment(i int) *Experiment {
	if i < 0 || i >= len(d.Experiments) {
		return nil
	}
	return d.Experiments[i]
}

// DisplayName returns the display name of experiment i, or "" when unknown.
func (d *FileData) DisplayName(i int) string {
	if e := d.Experiment(i); e != nil {
		return e.DisplayName()
	}
	return ""
}

// Keys returns the simulation keys of the active experiments that match the
// non-empty filters.
func (d *FileData) Keys(active Indices, scenarioType, logName, scenarioName string) []SimulationScenarioKey {
	var out []SimulationScenarioKey
	for _, e := range d.Experiments {
		if !active.Has(e.Index) {
			continue
		}
		for _, k := range e.ScenarioKeys {
			if scenarioType != "" && k.ScenarioType != scenarioType {
				continue
			}
			if logName != "" && k.LogName != logName {
				continue
			}
			if scenarioName != "" && k.ScenarioName != scenarioName {
				continue
			}
			out = append(out, k)
		}
	}
	return out
}

// ScenarioTypes lists the scenario types available in the active experiments.
func (d *FileData) ScenarioTypes(active Indices) []string {
	return distinct(d.Keys(active, "", "", ""), func(k SimulationScenarioKey) string { return k.ScenarioType })
}

// LogNames lists the log names available for a scenario type.
func (d *FileData) LogNames(active Indices, scenarioType string) []string {
	if scenarioType == "" {
		return nil
	}
	return distinct(d.Keys(active, scenarioType, "", ""), func(k SimulationScenarioKey) string { return k.LogName })
}

// ScenarioNames lists the scenario names available for a scenario type and log.
func (d *FileData) ScenarioNames(active Indices, scenarioType, logName string) []string {
	if scenarioType == "" || logName == "" {
		return nil
	}
	return distinct(d.Keys(active, scenarioType, logName, ""), func(k SimulationScenarioKey) string { return k.ScenarioName })
}

// PlannerNames lists the planners that simulated the selected scenario.
func (d *FileData) PlannerNames(active Indices, scenarioType, logName, scenarioName string) []string {
	if scenarioName == "" {
		return nil
	}
	return distinct(d.Keys(active, scenarioType, logName, scenarioName), func(k SimulationScenarioKey) string { return k.PlannerName })
}

func distinct(keys []SimulationScenarioKey, field func(SimulationScenarioKey) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, k := range keys {
		v := field(k)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

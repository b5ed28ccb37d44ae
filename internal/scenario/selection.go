package scenario

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownField is returned for a selector name that is not a Field.
	ErrUnknownField = errors.New("unknown selection field")
	// ErrUnknownOption is returned when a selected value is not among the
	// current options of its selector.
	ErrUnknownOption = errors.New("value is not an available option")
)

// Stage is how far down the scenario type -> log -> scenario cascade a
// selection has progressed.
type Stage int

const (
	StageNone Stage = iota
	StageTypeSelected
	StageLogSelected
	StageScenarioSelected
)

func (s Stage) String() string {
	switch s {
	case StageTypeSelected:
		return "type_selected"
	case StageLogSelected:
		return "log_selected"
	case StageScenarioSelected:
		return "scenario_selected"
	default:
		return "none"
	}
}

// Field names one of the cascading selectors.
type Field string

const (
	FieldScenarioType Field = "scenario_type"
	FieldLogName      Field = "log_name"
	FieldScenarioName Field = "scenario_name"
)

// ParseField validates a selector name.
func ParseField(s string) (Field, error) {
	switch f := Field(s); f {
	case FieldScenarioType, FieldLogName, FieldScenarioName:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
}

// Selection is the scenario tab's current choice. It is a value: every
// transition returns a new Selection and clears the fields below the one
// that changed.
type Selection struct {
	ScenarioType    string   `json:"scenario_type"`
	LogName         string   `json:"log_name"`
	ScenarioName    string   `json:"scenario_name"`
	EnabledPlanners []string `json:"enabled_planners"`
}

// Stage reports the deepest level of the cascade that is set.
func (s Selection) Stage() Stage {
	switch {
	case s.ScenarioType == "":
		return StageNone
	case s.LogName == "":
		return StageTypeSelected
	case s.ScenarioName == "":
		return StageLogSelected
	default:
		return StageScenarioSelected
	}
}

// WithScenarioType selects a scenario type and clears everything below it.
func (s Selection) WithScenarioType(v string) Selection {
	return Selection{ScenarioType: v}
}

// WithLogName selects a log and clears the scenario name and planners.
func (s Selection) WithLogName(v string) Selection {
	return Selection{ScenarioType: s.ScenarioType, LogName: v}
}

// WithScenarioName selects a scenario and clears the planners.
func (s Selection) WithScenarioName(v string) Selection {
	return Selection{ScenarioType: s.ScenarioType, LogName: s.LogName, ScenarioName: v}
}

// With applies the transition of field f.
func (s Selection) With(f Field, v string) Selection {
	switch f {
	case FieldScenarioType:
		return s.WithScenarioType(v)
	case FieldLogName:
		return s.WithLogName(v)
	case FieldScenarioName:
		return s.WithScenarioName(v)
	}
	return s
}

// Value returns the current value of field f.
func (s Selection) Value(f Field) string {
	switch f {
	case FieldScenarioType:
		return s.ScenarioType
	case FieldLogName:
		return s.LogName
	case FieldScenarioName:
		return s.ScenarioName
	}
	return ""
}

// WithPlanners replaces the enabled planner set.
func (s Selection) WithPlanners(planners []string) Selection {
	s.EnabledPlanners = normalise(planners)
	return s
}

// PlannerEnabled reports whether name is in the enabled set.
func (s Selection) PlannerEnabled(name string) bool {
	i := sort.SearchStrings(s.EnabledPlanners, name)
	return i < len(s.EnabledPlanners) && s.EnabledPlanners[i] == name
}

// normalise returns a sorted, de-duplicated, non-nil copy.
func normalise(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// Options are the values each selector currently offers.
type Options struct {
	ScenarioTypes []string `json:"scenario_types"`
	LogNames      []string `json:"log_names"`
	ScenarioNames []string `json:"scenario_names"`
	PlannerNames  []string `json:"planner_names"`
}

// For returns the options of field f.
func (o Options) For(f Field) []string {
	switch f {
	case FieldScenarioType:
		return o.ScenarioTypes
	case FieldLogName:
		return o.LogNames
	case FieldScenarioName:
		return o.ScenarioNames
	}
	return nil
}

// Check returns ErrUnknownOption unless v is empty or one of the options of f.
func (o Options) Check(f Field, v string) error {
	if v == "" {
		return nil
	}
	for _, opt := range o.For(f) {
		if opt == v {
			return nil
		}
	}
	return fmt.Errorf("%w: %s=%q", ErrUnknownOption, f, v)
}

// CheckPlanners returns ErrUnknownOption for any planner not offered.
func (o Options) CheckPlanners(planners []string) error {
	offered := make(map[string]bool, len(o.PlannerNames))
	for _, p := range o.PlannerNames {
		offered[p] = true
	}
	for _, p := range planners {
		if !offered[p] {
			return fmt.Errorf("%w: planner %q", ErrUnknownOption, p)
		}
	}
	return nil
}

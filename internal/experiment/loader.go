package experiment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/banshee-data/scenario.board/internal/monitoring"
	"github.com/banshee-data/scenario.board/internal/security"
)

// Folder names inside an experiment directory.
const (
	AggregatorFolder    = "aggregator_metric"
	MetricFolder        = "metrics"
	SimulationLogFolder = "simulation_log"
)

// LoadAll loads every directory in dirs, in order, after checking each lies
// under one of roots (any location is accepted when roots is empty).
func LoadAll(dirs []string, roots []string) (*FileData, error) {
	exps := make([]*Experiment, 0, len(dirs))
	for i, dir := range dirs {
		if err := security.ValidateExperimentDir(dir, roots); err != nil {
			return nil, err
		}
		exp, err := Load(os.DirFS(dir), i, dir)
		if err != nil {
			return nil, err
		}
		exps = append(exps, exp)
	}
	return NewFileData(exps...), nil
}

// Load reads one experiment from fsys, which is rooted at the experiment
// directory. dir is recorded as the experiment path.
func Load(fsys fs.FS, index int, dir string) (*Experiment, error) {
	exp := &Experiment{Index: index, Path: dir}

	aggFiles, err := listFiles(fsys, AggregatorFolder, ".parquet", ".json")
	if err != nil {
		return nil, fmt.Errorf("experiment %s: %w", dir, err)
	}
	for _, name := range aggFiles {
		t, err := loadAggregatorFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("experiment %s: %w", dir, err)
		}
		exp.AggregatorTables = append(exp.AggregatorTables, t)
	}

	statFiles, err := listFiles(fsys, MetricFolder, ".json")
	if err != nil {
		return nil, fmt.Errorf("experiment %s: %w", dir, err)
	}
	for _, name := range statFiles {
		t, err := loadStatisticsFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("experiment %s: %w", dir, err)
		}
		exp.StatisticsTables = append(exp.StatisticsTables, t)
	}
	sort.SliceStable(exp.StatisticsTables, func(i, j int) bool {
		return exp.StatisticsTables[i].MetricStatisticName < exp.StatisticsTables[j].MetricStatisticName
	})

	exp.ScenarioKeys, err = scanSimulationLog(fsys, index)
	if err != nil {
		return nil, fmt.Errorf("experiment %s: %w", dir, err)
	}
	if len(exp.ScenarioKeys) == 0 {
		exp.ScenarioKeys = keysFromStatistics(exp.StatisticsTables, index)
	}

	monitoring.Logf("[experiment] loaded %s: %d aggregator files, %d metric tables, %d scenario keys",
		dir, len(exp.AggregatorTables), len(exp.StatisticsTables), len(exp.ScenarioKeys))
	return exp, nil
}

// listFiles returns the sorted files of folder with one of exts. A missing
// folder yields no files.
func listFiles(fsys fs.FS, folder string, exts ...string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, folder)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", folder, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		for _, ext := range exts {
			if strings.HasSuffix(e.Name(), ext) {
				out = append(out, path.Join(folder, e.Name()))
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func tableName(name string) string {
	base := path.Base(name)
	return strings.TrimSuffix(base, path.Ext(base))
}

func loadAggregatorFile(fsys fs.FS, name string) (*AggregatorTable, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	var columns []string
	var records []map[string]any
	if strings.HasSuffix(name, ".parquet") {
		columns, records, err = readParquetRecords(data)
	} else {
		columns, records, err = readJSONRecords(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return NewAggregatorTable(tableName(name), columns, records)
}

// readParquetRecords reads a flat parquet file into generic records keyed by
// top-level column name.
func readParquetRecords(data []byte) ([]string, []map[string]any, error) {
	pf, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("open parquet: %w", err)
	}

	paths := pf.Schema().Columns()
	columns := make([]string, len(paths))
	for i, p := range paths {
		if len(p) != 1 {
			return nil, nil, fmt.Errorf("nested column %s not supported", strings.Join(p, "."))
		}
		columns[i] = p[0]
	}

	var records []map[string]any
	buf := make([]parquet.Row, 128)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				rec := make(map[string]any, len(columns))
				for _, v := range row {
					col := v.Column()
					if col < 0 || col >= len(columns) {
						continue
					}
					cell, err := parquetCell(v)
					if err != nil {
						rows.Close()
						return nil, nil, fmt.Errorf("column %s: %w", columns[col], err)
					}
					rec[columns[col]] = cell
				}
				records = append(records, rec)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				rows.Close()
				return nil, nil, fmt.Errorf("read rows: %w", err)
			}
		}
		rows.Close()
	}
	return columns, records, nil
}

func parquetCell(v parquet.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	switch v.Kind() {
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray()), nil
	case parquet.Double:
		return v.Double(), nil
	case parquet.Float:
		return float64(v.Float()), nil
	case parquet.Int32:
		return int64(v.Int32()), nil
	case parquet.Int64:
		return v.Int64(), nil
	default:
		return nil, fmt.Errorf("unsupported parquet kind %s", v.Kind())
	}
}

type aggregatorJSON struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

func readJSONRecords(data []byte) ([]string, []map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc aggregatorJSON
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, err
	}
	if len(doc.Columns) == 0 {
		return nil, nil, fmt.Errorf("no columns declared")
	}
	return doc.Columns, doc.Rows, nil
}

type statisticsJSON struct {
	MetricStatisticName string              `json:"metric_statistic_name"`
	Rows                []statisticsJSONRow `json:"rows"`
}

type statisticsJSONRow struct {
	ScenarioName string          `json:"scenario_name"`
	ScenarioType string          `json:"scenario_type"`
	LogName      string          `json:"log_name"`
	PlannerName  string          `json:"planner_name"`
	Values       json.RawMessage `json:"time_series_values"`
	Timestamps   json.RawMessage `json:"time_series_timestamps"`
	Unit         *string         `json:"time_series_unit"`
}

func loadStatisticsFile(fsys fs.FS, name string) (*MetricStatisticsTable, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	var doc statisticsJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	t := &MetricStatisticsTable{MetricStatisticName: doc.MetricStatisticName}
	if t.MetricStatisticName == "" {
		t.MetricStatisticName = tableName(name)
	}
	for i, r := range doc.Rows {
		row := StatisticsRow{
			ScenarioName: r.ScenarioName,
			ScenarioType: r.ScenarioType,
			LogName:      r.LogName,
			PlannerName:  r.PlannerName,
		}
		values, ok, err := flattenNumbers(r.Values)
		if err != nil {
			return nil, fmt.Errorf("%s row %d time_series_values: %w", name, i, err)
		}
		if ok {
			ts := &TimeSeries{Values: values}
			stamps, _, err := flattenNumbers(r.Timestamps)
			if err != nil {
				return nil, fmt.Errorf("%s row %d time_series_timestamps: %w", name, i, err)
			}
			ts.Timestamps = make([]int64, len(stamps))
			for j, s := range stamps {
				ts.Timestamps[j] = int64(s)
			}
			if r.Unit != nil {
				ts.Unit = *r.Unit
			}
			row.TimeSeries = ts
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// flattenNumbers decodes a possibly nested JSON array of numbers into a flat
// slice. ok is false when the cell is absent or null.
func flattenNumbers(raw json.RawMessage) (values []float64, ok bool, err error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false, err
	}
	values = []float64{}
	var walk func(any) error
	walk = func(x any) error {
		switch t := x.(type) {
		case json.Number:
			f, err := t.Float64()
			if err != nil {
				return err
			}
			values = append(values, f)
		case []any:
			for _, e := range t {
				if err := walk(e); err != nil {
					return err
				}
			}
		case nil:
		default:
			return fmt.Errorf("unexpected %T in numeric sequence", x)
		}
		return nil
	}
	if err := walk(v); err != nil {
		return nil, false, err
	}
	return values, true, nil
}

// scanSimulationLog walks simulation_log/<planner>/<type>/<log>/<scenario>/.
func scanSimulationLog(fsys fs.FS, index int) ([]SimulationScenarioKey, error) {
	byDir := make(map[string]*SimulationScenarioKey)
	var order []string
	err := fs.WalkDir(fsys, SimulationLogFolder, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == SimulationLogFolder && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return err
		}
		parts := strings.Split(p, "/")
		switch {
		case d.IsDir() && len(parts) == 5:
			key := &SimulationScenarioKey{
				ExperimentIndex: index,
				PlannerName:     parts[1],
				ScenarioType:    parts[2],
				LogName:         parts[3],
				ScenarioName:    parts[4],
			}
			byDir[p] = key
			order = append(order, p)
		case d.IsDir() && len(parts) > 5:
			return fs.SkipDir
		case !d.IsDir() && len(parts) == 6:
			if key, ok := byDir[path.Dir(p)]; ok {
				key.Files = append(key.Files, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", SimulationLogFolder, err)
	}
	keys := make([]SimulationScenarioKey, 0, len(order))
	for _, p := range order {
		keys = append(keys, *byDir[p])
	}
	return keys, nil
}

// keysFromStatistics derives scenario keys from metric statistics rows for
// experiments that were run without simulation logs.
func keysFromStatistics(tables []*MetricStatisticsTable, index int) []SimulationScenarioKey {
	type ident struct{ planner, scenarioType, logName, scenarioName string }
	seen := make(map[ident]bool)
	var keys []SimulationScenarioKey
	for _, t := range tables {
		for _, r := range t.Rows {
			id := ident{r.PlannerName, r.ScenarioType, r.LogName, r.ScenarioName}
			if seen[id] {
				continue
			}
			seen[id] = true
			keys = append(keys, SimulationScenarioKey{
				ExperimentIndex: index,
				PlannerName:     r.PlannerName,
				ScenarioType:    r.ScenarioType,
				LogName:         r.LogName,
				ScenarioName:    r.ScenarioName,
			})
		}
	}
	return keys
}

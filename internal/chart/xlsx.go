package chart

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/banshee-data/scenario.board/internal/render"
)

// Sheet names of the exported workbook.
const (
	SheetSelection  = "Selection"
	SheetScores     = "Scores"
	SheetTimeSeries = "Time series"
)

var (
	scoreHeader  = []interface{}{"Metric", "Planner", "Experiment", "Aggregator", "Score"}
	seriesHeader = []interface{}{"Metric", "Series", "Planner", "Frame", "Time_us", "Value"}
)

// WorkbookInput is the content of an exported workbook.
type WorkbookInput struct {
	Title string
	// Selection rows are written as name/value pairs.
	Selection  [][2]string
	Scores     []render.Figure
	TimeSeries []render.Figure
}

func tooltipValue(fields []render.TooltipField, name string) string {
	for _, f := range fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Workbook builds the spreadsheet of one rendered scenario.
func Workbook(in WorkbookInput) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSelection); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetDocProps(&excelize.DocProperties{Title: in.Title, Creator: "scenario.board"}); err != nil {
		f.Close()
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}

	w := &sheetWriter{f: f, bold: bold}
	w.sheet(SheetSelection, []interface{}{"Field", "Value"})
	for _, kv := range in.Selection {
		w.row(kv[0], kv[1])
	}

	w.sheet(SheetScores, scoreHeader)
	for _, fig := range in.Scores {
		for _, s := range fig.Series {
			for _, p := range s.Points {
				w.row(p.Category, s.PlannerName, tooltipValue(p.Tooltip, "Experiment"), tooltipValue(p.Tooltip, "Aggregator"), p.Y)
			}
		}
	}

	w.sheet(SheetTimeSeries, seriesHeader)
	for _, fig := range in.TimeSeries {
		for _, s := range fig.Series {
			for _, p := range s.Points {
				var stamp interface{} = tooltipValue(p.Tooltip, "Time_us")
				if v, err := strconv.ParseInt(stamp.(string), 10, 64); err == nil {
					stamp = v
				}
				w.row(fig.Title, s.Legend, s.PlannerName, int(p.X), stamp, p.Y)
			}
		}
	}

	if w.err != nil {
		f.Close()
		return nil, w.err
	}
	return f, nil
}

// WriteWorkbook writes the workbook of in to w.
func WriteWorkbook(w io.Writer, in WorkbookInput) error {
	f, err := Workbook(in)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteTo(w)
	return err
}

// sheetWriter appends rows to the current sheet and keeps the first error.
type sheetWriter struct {
	f    *excelize.File
	bold int
	name string
	next int
	err  error
}

func (w *sheetWriter) sheet(name string, header []interface{}) {
	if w.err != nil {
		return
	}
	if name != SheetSelection {
		if _, w.err = w.f.NewSheet(name); w.err != nil {
			return
		}
	}
	w.name, w.next = name, 1
	w.row(header...)
	if w.err != nil {
		return
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		w.err = err
		return
	}
	if w.err = w.f.SetCellStyle(name, "A1", last, w.bold); w.err != nil {
		return
	}
	col, _ := excelize.ColumnNumberToName(len(header))
	if w.err = w.f.SetColWidth(name, "A", col, 22); w.err != nil {
		return
	}
	w.err = w.f.SetPanes(name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func (w *sheetWriter) row(values ...interface{}) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, w.next)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetSheetRow(w.name, cell, &values); err != nil {
		w.err = fmt.Errorf("sheet %s row %d: %w", w.name, w.next, err)
		return
	}
	w.next++
}

package recorder

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"simcore/internal/engine/timestep"
)

// XLSXSink writes one workbook with a single "Run" sheet: a bold header row
// (timestep, date, one column per scenario/metric pair) followed by one
// spreadsheet row per recorded step, styled the way the teacher's report
// generator styles its header rows
// (services/report-svc/internal/generator/excel.go).
type XLSXSink struct {
	w io.Writer
	f *excelize.File

	sheet        string
	headerStyle  int
	steps        []timestep.Timestep
	metricNames  []string
	numScenarios int
	nextRow      int

	rowBuf  [][]float64
	curStep int
	started bool
}

// NewXLSXSink writes the finished workbook to w on Close.
func NewXLSXSink(w io.Writer) *XLSXSink { return &XLSXSink{w: w} }

func (x *XLSXSink) Setup(metricNames []string, steps []timestep.Timestep, scenarios []timestep.Scenario) error {
	x.metricNames = metricNames
	x.steps = steps
	x.numScenarios = len(scenarios)
	x.f = excelize.NewFile()
	x.sheet = "Run"

	if _, err := x.f.NewSheet(x.sheet); err != nil {
		return err
	}
	if err := x.f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	style, err := x.f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}
	x.headerStyle = style

	header := []string{"timestep", "date"}
	for s := 0; s < x.numScenarios; s++ {
		if len(metricNames) <= 1 {
			header = append(header, fmt.Sprintf("scenario_%d", s))
			continue
		}
		for _, name := range metricNames {
			header = append(header, fmt.Sprintf("scenario_%d_%s", s, name))
		}
	}
	for i, h := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := x.f.SetCellValue(x.sheet, cell, h); err != nil {
			return err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := x.f.SetCellStyle(x.sheet, "A1", last, x.headerStyle); err != nil {
		return err
	}

	x.nextRow = 2
	return nil
}

func (x *XLSXSink) WriteRow(step, scenario int, values []float64) error {
	if !x.started || x.curStep != step {
		x.rowBuf = make([][]float64, x.numScenarios)
		x.curStep = step
		x.started = true
	}
	row := make([]float64, len(values))
	copy(row, values)
	x.rowBuf[scenario] = row
	return nil
}

func (x *XLSXSink) Flush(step int) error {
	if !x.started || x.curStep != step {
		return nil
	}

	row := x.nextRow
	x.nextRow++

	col := 1
	set := func(v any) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		col++
		return x.f.SetCellValue(x.sheet, cell, v)
	}

	if err := set(step); err != nil {
		return err
	}
	if err := set(x.steps[step].Date.Format("2006-01-02")); err != nil {
		return err
	}
	numMetrics := len(x.metricNames)
	if numMetrics == 0 {
		numMetrics = 1
	}
	for _, r := range x.rowBuf {
		if r == nil {
			for i := 0; i < numMetrics; i++ {
				if err := set(nil); err != nil {
					return err
				}
			}
			continue
		}
		for _, v := range r {
			if err := set(v); err != nil {
				return err
			}
		}
	}

	x.started = false
	return nil
}

func (x *XLSXSink) Close() error {
	if err := x.f.Write(x.w); err != nil {
		return err
	}
	return x.f.Close()
}

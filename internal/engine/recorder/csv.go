package recorder

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"simcore/internal/engine/timestep"
)

// csvWriter wraps encoding/csv.Writer to accumulate the first write error
// instead of surfacing it at every call site, mirroring the teacher's
// report generator (services/report-svc/internal/generator/csv.go).
type csvWriter struct {
	w   *csv.Writer
	err error
}

func (cw *csvWriter) Write(record []string) {
	if cw.err != nil {
		return
	}
	cw.err = cw.w.Write(record)
}

func (cw *csvWriter) Flush() {
	if cw.err != nil {
		return
	}
	cw.w.Flush()
	cw.err = cw.w.Error()
}

func (cw *csvWriter) Error() error { return cw.err }

// CSVSink writes one row per step: timestep, date, then one column per
// scenario (or, for multi-metric sets, one column per scenario per metric),
// per spec §6's literal CSV output contract.
type CSVSink struct {
	out *csvWriter
	c   io.Closer

	metricNames  []string
	steps        []timestep.Timestep
	numScenarios int

	rowBuf  [][]float64 // rowBuf[scenario], current step being assembled
	curStep int
	started bool
}

// NewCSVSink writes to w. If w also implements io.Closer, Close closes it.
func NewCSVSink(w io.Writer) *CSVSink {
	sink := &CSVSink{out: &csvWriter{w: csv.NewWriter(w)}}
	if c, ok := w.(io.Closer); ok {
		sink.c = c
	}
	return sink
}

func (c *CSVSink) Setup(metricNames []string, steps []timestep.Timestep, scenarios []timestep.Scenario) error {
	c.metricNames = metricNames
	c.steps = steps
	c.numScenarios = len(scenarios)

	header := []string{"timestep", "date"}
	for s := 0; s < c.numScenarios; s++ {
		if len(metricNames) <= 1 {
			header = append(header, fmt.Sprintf("scenario_%d", s))
			continue
		}
		for _, name := range metricNames {
			header = append(header, fmt.Sprintf("scenario_%d_%s", s, name))
		}
	}
	c.out.Write(header)
	return c.out.Error()
}

func (c *CSVSink) WriteRow(step, scenario int, values []float64) error {
	if !c.started || c.curStep != step {
		c.rowBuf = make([][]float64, c.numScenarios)
		c.curStep = step
		c.started = true
	}
	row := make([]float64, len(values))
	copy(row, values)
	c.rowBuf[scenario] = row
	return nil
}

func (c *CSVSink) Flush(step int) error {
	if !c.started || c.curStep != step {
		return c.out.Error()
	}

	record := []string{strconv.Itoa(step), c.steps[step].Date.Format("2006-01-02")}
	numMetrics := len(c.metricNames)
	if numMetrics == 0 {
		numMetrics = 1
	}
	for _, row := range c.rowBuf {
		if row == nil {
			for i := 0; i < numMetrics; i++ {
				record = append(record, "")
			}
			continue
		}
		for _, v := range row {
			record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	c.out.Write(record)
	c.out.Flush()
	c.started = false
	return c.out.Error()
}

func (c *CSVSink) Close() error {
	c.out.Flush()
	if err := c.out.Error(); err != nil {
		return err
	}
	if c.c != nil {
		return c.c.Close()
	}
	return nil
}

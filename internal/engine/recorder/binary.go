package recorder

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"math"

	"simcore/internal/engine/timestep"
)

// BinarySink writes the run's full metric array as a flat, row-major,
// little-endian float64 buffer shaped (steps, scenarios, metrics), with a
// separate sidecar document naming the metric columns in order (spec §6).
// Rows must arrive in (step, scenario) traversal order — the order the
// scheduler dispatches them in — since the sink appends sequentially rather
// than seeking; a period-aggregated MetricSet, which writes fewer than
// steps*scenarios rows, is not a fit for this sink.
type BinarySink struct {
	data    io.Writer
	sidecar io.Writer

	numMetrics int
	buf        []byte
}

// NewBinarySink writes the array to data and the metric-name sidecar (JSON)
// to sidecar.
func NewBinarySink(data, sidecar io.Writer) *BinarySink {
	return &BinarySink{data: data, sidecar: sidecar}
}

func (b *BinarySink) Setup(metricNames []string, steps []timestep.Timestep, scenarios []timestep.Scenario) error {
	b.numMetrics = len(metricNames)
	b.buf = make([]byte, 8*b.numMetrics)
	return json.NewEncoder(b.sidecar).Encode(struct {
		Metrics      []string `json:"metrics"`
		NumSteps     int      `json:"num_steps"`
		NumScenarios int      `json:"num_scenarios"`
	}{metricNames, len(steps), len(scenarios)})
}

func (b *BinarySink) WriteRow(step, scenario int, values []float64) error {
	for i, v := range values {
		binary.LittleEndian.PutUint64(b.buf[8*i:8*i+8], math.Float64bits(v))
	}
	_, err := b.data.Write(b.buf)
	return err
}

func (b *BinarySink) Flush(int) error {
	if f, ok := b.data.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (b *BinarySink) Close() error {
	if c, ok := b.data.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return err
		}
	}
	if c, ok := b.sidecar.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

package recorder

import (
	"fmt"
	"io"
	"math"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/border"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"simcore/internal/engine/timestep"
)

var (
	pdfHeaderColor = &props.Color{Red: 44, Green: 62, Blue: 80}
	pdfAccentColor = &props.Color{Red: 52, Green: 152, Blue: 219}
	pdfGrayColor   = &props.Color{Red: 127, Green: 140, Blue: 141}
	pdfLightColor  = &props.Color{Red: 236, Green: 240, Blue: 241}

	pdfTitleStyle = props.Text{Size: 20, Style: fontstyle.Bold, Align: align.Center, Color: pdfHeaderColor}
	pdfSmallStyle = props.Text{Size: 8, Color: pdfGrayColor}

	pdfTableHeaderCell = &props.Cell{BackgroundColor: pdfAccentColor}
	pdfTableHeaderText = props.Text{Size: 9, Style: fontstyle.Bold, Color: &props.Color{Red: 255, Green: 255, Blue: 255}, Align: align.Center}
	pdfTableCell       = &props.Cell{BorderType: border.Bottom, BorderColor: pdfLightColor}
	pdfTableCellText   = props.Text{Size: 9, Align: align.Center}
)

// PDFSink renders a one-page run summary — run size plus per-metric
// min/max/mean across every recorded row — in the style of the teacher's
// report generator (services/report-svc/internal/generator/pdf.go), but
// built from accumulated statistics rather than a pre-assembled report
// object, since maroto renders its whole document in one Generate call at
// the end rather than streaming rows.
type PDFSink struct {
	w io.Writer

	metricNames  []string
	numSteps     int
	numScenarios int

	count []int
	sum   []float64
	min   []float64
	max   []float64
}

// NewPDFSink writes the finished PDF to w on Close.
func NewPDFSink(w io.Writer) *PDFSink { return &PDFSink{w: w} }

func (p *PDFSink) Setup(metricNames []string, steps []timestep.Timestep, scenarios []timestep.Scenario) error {
	p.metricNames = metricNames
	p.numSteps = len(steps)
	p.numScenarios = len(scenarios)

	n := len(metricNames)
	p.count = make([]int, n)
	p.sum = make([]float64, n)
	p.min = make([]float64, n)
	p.max = make([]float64, n)
	for i := range p.min {
		p.min[i] = math.Inf(1)
		p.max[i] = math.Inf(-1)
	}
	return nil
}

func (p *PDFSink) WriteRow(step, scenario int, values []float64) error {
	for i, v := range values {
		p.count[i]++
		p.sum[i] += v
		if v < p.min[i] {
			p.min[i] = v
		}
		if v > p.max[i] {
			p.max[i] = v
		}
	}
	return nil
}

func (p *PDFSink) Flush(int) error { return nil }

func (p *PDFSink) Close() error {
	cfg := config.NewBuilder().
		WithPageNumber().
		WithLeftMargin(15).
		WithTopMargin(15).
		WithRightMargin(15).
		Build()

	m := maroto.New(cfg)

	m.AddRow(15, text.NewCol(12, "Run Summary", pdfTitleStyle))
	m.AddRow(5, line.NewCol(12, props.Line{Color: pdfAccentColor}))
	m.AddRow(6,
		text.NewCol(6, fmt.Sprintf("Steps: %d", p.numSteps), pdfSmallStyle),
		text.NewCol(6, fmt.Sprintf("Scenarios: %d", p.numScenarios), props.Text{Size: 8, Color: pdfGrayColor, Align: align.Right}),
	)
	m.AddRow(8)

	m.AddRow(8,
		text.NewCol(4, "Metric", pdfTableHeaderText).WithStyle(pdfTableHeaderCell),
		text.NewCol(3, "Min", pdfTableHeaderText).WithStyle(pdfTableHeaderCell),
		text.NewCol(3, "Max", pdfTableHeaderText).WithStyle(pdfTableHeaderCell),
		text.NewCol(2, "Mean", pdfTableHeaderText).WithStyle(pdfTableHeaderCell),
	)
	for i, name := range p.metricNames {
		mean := 0.0
		if p.count[i] > 0 {
			mean = p.sum[i] / float64(p.count[i])
		}
		m.AddRow(6,
			text.NewCol(4, name, pdfTableCellText).WithStyle(pdfTableCell),
			text.NewCol(3, fmt.Sprintf("%.4f", p.min[i]), pdfTableCellText).WithStyle(pdfTableCell),
			text.NewCol(3, fmt.Sprintf("%.4f", p.max[i]), pdfTableCellText).WithStyle(pdfTableCell),
			text.NewCol(2, fmt.Sprintf("%.4f", mean), pdfTableCellText).WithStyle(pdfTableCell),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return err
	}
	_, err = p.w.Write(doc.GetBytes())
	return err
}

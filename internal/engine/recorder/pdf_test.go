package recorder

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"simcore/internal/engine/timestep"
)

func TestPDFSink_WritesNonEmptyDocumentWithSummaryStats(t *testing.T) {
	var buf bytes.Buffer
	sink := NewPDFSink(&buf)

	steps := []timestep.Timestep{day(0), day(1)}
	scenarios := []timestep.Scenario{{Flat: 0}}
	require.NoError(t, sink.Setup([]string{"flow"}, steps, scenarios))

	require.NoError(t, sink.WriteRow(0, 0, []float64{2}))
	require.NoError(t, sink.WriteRow(1, 0, []float64{8}))
	require.NoError(t, sink.Close())

	require.NotEmpty(t, buf.Bytes())
	// PDF files begin with the "%PDF-" magic header.
	require.Equal(t, "%PDF-", string(buf.Bytes()[:5]))
}

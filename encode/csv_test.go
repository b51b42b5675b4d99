package encode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	atlastt "github.com/icesat2-gsp/atlas-timetag"
)

func TestHeaderIsInDeclaredColumnOrder(t *testing.T) {
	header := Header()
	require.Len(t, header, 33)
	assert.Equal(t, "GPS", header[0])
	assert.Equal(t, "MFC", header[1])
	assert.Equal(t, "PCE", header[2])
	assert.Equal(t, "TYPE", header[3])
	assert.Equal(t, "DLBS4", header[len(header)-1])
}

func TestBuildRowMapsHistogramFields(t *testing.T) {
	h := &atlastt.Histogram{
		Type:              atlastt.HistStrongTimeTag,
		PCE:               atlastt.PCE2,
		MajorFrameCounter: 77,
		GpsAtMajorFrame:   12345.5,
		RangeWindowStart:  10,
		RangeWindowWidth:  20,
		IntegrationPeriod: 50,
		TransmitCount:     1000,
		PktBytes:          125000, // 1 Mbit over the 50*0.02s == 1s period -> 1 Mbps
	}
	h.Sum = 42
	h.PktStats.MfcErr = 1
	h.PktStats.HdrErr = 2

	row := BuildRow(h)
	assert.Equal(t, 12345.5, row.GPS)
	assert.Equal(t, int64(77), row.MFC)
	assert.Equal(t, int(atlastt.PCE2), row.PCE)
	assert.Equal(t, atlastt.HistogramTypeNames[atlastt.HistStrongTimeTag], row.Type)
	assert.Equal(t, 42, row.HistSum)
	assert.Equal(t, 1000, row.TxCnt)
	assert.InDelta(t, 1.0, row.Mbps, 1e-9)
	assert.Equal(t, int64(1), row.MfcErr)
	assert.Equal(t, int64(2), row.HdrErr)
}

func TestBuildRowMapsDownlinkBandsByPosition(t *testing.T) {
	h := &atlastt.Histogram{
		DownlinkBands: []atlastt.DownlinkBand{
			{Start: 1, Width: 2},
			{Start: 3, Width: 4},
		},
	}
	row := BuildRow(h)
	assert.Equal(t, 2.0, row.DLBW1)
	assert.Equal(t, 1.0, row.Dlbs1)
	assert.Equal(t, 4.0, row.DLBW2)
	assert.Equal(t, 3.0, row.Dlbs2)
	assert.Equal(t, 0.0, row.DLBW3)
}

func TestBuildRowSkipsMajorFrameFieldsWhenAbsent(t *testing.T) {
	h := &atlastt.Histogram{MajorFramePresent: false}
	row := BuildRow(h)
	assert.Equal(t, 0, row.TxErr)
	assert.Equal(t, 0, row.StTdc)
}

func TestBuildRowZeroPeriodLeavesMbpsZero(t *testing.T) {
	h := &atlastt.Histogram{IntegrationPeriod: 0, PktBytes: 1000}
	row := BuildRow(h)
	assert.Equal(t, 0.0, row.Mbps)
}

func TestWriterWriteProducesHeaderAndAccumulatedRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	w := NewWriter(path)

	require.NoError(t, w.Write(Row{GPS: 1, MFC: 1}))
	require.NoError(t, w.Write(Row{GPS: 2, MFC: 2}))

	assert.Len(t, w.Rows(), 2)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "GPS,MFC,PCE")
	assert.Contains(t, string(contents), "1,1,0")
	assert.Contains(t, string(contents), "2,2,0")
}

package atlastt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSummaryUpdateTracksFirstAndLastMFC(t *testing.T) {
	rs := NewRunSummary(PCE1)

	rs.Update(&Histogram{MajorFrameCounter: 10, SignalEnergy: 1})
	rs.Update(&Histogram{MajorFrameCounter: 5, SignalEnergy: 2})
	rs.Update(&Histogram{MajorFrameCounter: 20, SignalEnergy: 3})

	assert.Equal(t, int64(5), rs.FirstMFC)
	assert.Equal(t, int64(20), rs.LastMFC)
	assert.Equal(t, int64(3), rs.PeriodCount)
}

func TestRunSummaryUpdateAccumulatesErrorRollups(t *testing.T) {
	rs := NewRunSummary(PCE1)
	h := &Histogram{MajorFrameCounter: 1}
	h.PktStats.MfcErr = 2
	h.PktStats.HdrErr = 3
	rs.Update(h)

	assert.Equal(t, int64(2), rs.TotalMfcErr)
	assert.Equal(t, int64(3), rs.TotalHdrErr)
}

func TestRunSummaryUpdateTracksSignalEnergyBounds(t *testing.T) {
	rs := NewRunSummary(PCE1)
	rs.Update(&Histogram{MajorFrameCounter: 1, SignalEnergy: 5})
	rs.Update(&Histogram{MajorFrameCounter: 2, SignalEnergy: 1})
	rs.Update(&Histogram{MajorFrameCounter: 3, SignalEnergy: 9})

	assert.Equal(t, 1.0, rs.MinSignalEnergy)
	assert.Equal(t, 9.0, rs.MaxSignalEnergy)
	assert.InDelta(t, 5.0, rs.AvgSignalEnergy, 1e-9)
}

func TestGpsToTimeZeroIsZeroTime(t *testing.T) {
	tm := gpsToTime(0)
	assert.True(t, tm.IsZero())
}

func TestGpsToTimeNonZeroConverts(t *testing.T) {
	tm := gpsToTime(1000.5)
	require.False(t, tm.IsZero())
	assert.Equal(t, int64(1000), tm.Unix())
}

package atlastt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistogramSetBinTracksSumAndSize(t *testing.T) {
	h := NewHistogram(HistStrongTimeTag, 50, 0.225, PCE1, 10, 0, 0, 0)

	require.True(t, h.SetBin(5, 3))
	assert.Equal(t, 3, h.GetSum())
	assert.Equal(t, 6, h.GetSize())

	require.True(t, h.SetBin(5, 7))
	assert.Equal(t, 7, h.GetSum(), "overwriting a bin should update sum by the delta, not add")

	require.True(t, h.AddBin(2, 4))
	assert.Equal(t, 11, h.GetSum())

	require.True(t, h.IncBin(2))
	assert.Equal(t, 5, h.Bins[2])
	assert.Equal(t, 12, h.GetSum())
}

func TestHistogramBinOutOfRangeIsNoOp(t *testing.T) {
	h := NewHistogram(HistStrongTimeTag, 50, 0.225, PCE1, 10, 0, 0, 0)

	assert.False(t, h.SetBin(-1, 5))
	assert.False(t, h.SetBin(MaxHistSize, 5))
	assert.Equal(t, 0, h.GetSum())
	assert.Equal(t, 0, h.GetSize())
}

func TestHistogramGetSumEqualsSumOfBins(t *testing.T) {
	h := NewHistogram(HistStrongTimeTag, 50, 0.225, PCE1, 10, 0, 0, 0)
	values := []int{2, 0, 5, 1, 9}
	for i, v := range values {
		h.SetBin(i, v)
	}

	manual := 0
	for _, v := range values {
		manual += v
	}
	assert.Equal(t, manual, h.GetSum())
}

func TestHistogramGetMinMaxSumRange(t *testing.T) {
	h := NewHistogram(HistStrongTimeTag, 50, 0.225, PCE1, 10, 0, 0, 0)
	for i, v := range []int{4, 1, 9, 2, 6} {
		h.SetBin(i, v)
	}

	assert.Equal(t, 1, h.GetMin(0, -1))
	assert.Equal(t, 9, h.GetMax(0, -1))
	assert.Equal(t, 22, h.GetSumRange(0, -1))

	// restricted, inclusive range [1,3] -> values 1,9,2
	assert.Equal(t, 1, h.GetMin(1, 3))
	assert.Equal(t, 9, h.GetMax(1, 3))
	assert.Equal(t, 12, h.GetSumRange(1, 3))
}

func TestHistogramSetIgnoreBoundsRespected(t *testing.T) {
	h := NewHistogram(HistStrongTimeTag, 50, 0.225, PCE1, 10, 0, 0, 0)
	h.SetIgnore(3, 6)
	assert.LessOrEqual(t, h.IgnoreStartBin, h.IgnoreStopBin)
	assert.Equal(t, 3, h.IgnoreStartBin)
	assert.Equal(t, 6, h.IgnoreStopBin)
}

func TestHistogramScaleAndAddScalar(t *testing.T) {
	h := NewHistogram(HistStrongTimeTag, 50, 0.225, PCE1, 10, 0, 0, 0)
	for i, v := range []int{2, 4, 6} {
		h.SetBin(i, v)
	}

	h.Scale(0.5)
	assert.Equal(t, []int{1, 2, 3}, h.Bins[:3])
	assert.Equal(t, 6, h.Sum)

	h.AddScalar(1)
	assert.Equal(t, []int{2, 3, 4}, h.Bins[:3])
	assert.Equal(t, 9, h.Sum)
}

func TestCalcAttributesFindsSignalAboveNoise(t *testing.T) {
	h := NewHistogram(HistStrongAltimetric, 50, 0.225, PCE1, 10, 0, 0, 0)
	h.TransmitCount = 200
	// flat background of 1 with a tall spike.
	for i := 0; i < 100; i++ {
		h.SetBin(i, 1)
	}
	h.SetBin(50, 400)

	found := h.CalcAttributes(0, 10.0)
	assert.True(t, found, "a strong spike over a flat background should be detected as signal")
	assert.GreaterOrEqual(t, h.BeginSigBin, 0)
	assert.LessOrEqual(t, h.EndSigBin, h.Size-1)
	assert.LessOrEqual(t, h.BeginSigBin, h.EndSigBin)
}

func TestSetChannelBiasAveragesOffsetFromSignalRange(t *testing.T) {
	h := NewHistogram(HistStrongTimeTag, 50, 0.225, PCE1, 10, 0, 0, 0)
	h.SignalRange = 1000.0

	bias, ok := h.SetChannelBias(3, []float64{1010.0, 1020.0})
	require.True(t, ok)
	assert.InDelta(t, 15.0, bias, 1e-9)
	assert.InDelta(t, 15.0, h.ChannelBiases[3], 1e-9)
	assert.True(t, h.ChannelBiasSet[3])
}

func TestSetChannelBiasLeavesUnsetWhenChannelHasNoRanges(t *testing.T) {
	h := NewHistogram(HistStrongTimeTag, 50, 0.225, PCE1, 10, 0, 0, 0)

	_, ok := h.SetChannelBias(3, nil)
	assert.False(t, ok)
	assert.False(t, h.ChannelBiasSet[3])
}

func TestCalcAttributesAppliesToTimeTagHistograms(t *testing.T) {
	// TimeTagHistogram overrides calcAttributes the same way
	// AltimetryHistogram does in the source instrument software - the
	// integrator only ever emits HistStrongTimeTag/HistWeakTimeTag, so
	// the noise/signal/energy derivation must not be altimetric-only.
	h := NewHistogram(HistStrongTimeTag, 50, 0.225, PCE1, 10, 0, 0, 0)
	h.TransmitCount = 200
	for i := 0; i < 100; i++ {
		h.SetBin(i, 1)
	}
	h.SetBin(50, 400)

	found := h.CalcAttributes(0, 10.0)
	assert.True(t, found)
	assert.NotZero(t, h.SignalEnergy, "time-tag SignalEnergy must be derived, not left at 0")
	assert.NotZero(t, h.SignalRange, "time-tag SignalRange must be derived, not left at 0")
	assert.NotZero(t, h.NoiseFloor, "time-tag NoiseFloor must be derived, not left at 0")
}

package atlastt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelatorRecomputesUsoFreqOverFullRing(t *testing.T) {
	c := NewCorrelator(10.0)

	// 16 ground (ASC 1PPS) samples, one GPS second and 100M AMET ticks apart -
	// the nominal 10ns ruler-clock period.
	const amet0 = uint64(1_000_000_000)
	for i := 0; i < ringBufferLen; i++ {
		amet := amet0 + uint64(i)*100_000_000
		gps := 1000.0 + float64(i)
		c.IngestSample(SourceGround, 0, amet, gps, 0, amet)
	}

	mapping := c.GetAmetToGpsMapping()
	require.True(t, mapping.UsoFreqCalcValid)
	assert.InDelta(t, 10.0, c.TrueRulerClkPeriod(), 1e-9)
}

func TestCorrelatorRejectsImplausibleGpsDelta(t *testing.T) {
	c := NewCorrelator(10.0)

	const amet0 = uint64(1_000_000_000)
	for i := 0; i < ringBufferLen; i++ {
		amet := amet0 + uint64(i)*100_000_000
		// GPS time barely advances across the whole ring - gpsDelta fails
		// the 0.5*len..1.5*len plausibility bound.
		gps := 1000.0 + float64(i)*0.01
		c.IngestSample(SourceGround, 0, amet, gps, 0, amet)
	}

	mapping := c.GetAmetToGpsMapping()
	assert.False(t, mapping.UsoFreqCalcValid)
}

func TestCorrelatorIngestSampleCountsZeroedFields(t *testing.T) {
	c := NewCorrelator(10.0)
	c.IngestSample(SourceGround, 0, 0, 100.0, 0, 0)
	assert.Equal(t, 1, c.ErrorCount())

	c.IngestSample(SourceGround, 0, 100, 0, 0, 100)
	assert.Equal(t, 2, c.ErrorCount())
}

func TestCorrelatorPerPceMajorFrameFreq(t *testing.T) {
	c := NewCorrelator(10.0)

	_, ok := c.PerPCEMajorFrameFreq(PCE1)
	assert.False(t, ok, "no samples ingested yet")

	c.IngestSample(SourcePCE, PCE1, 1000, 1.0, 0, 1000)
	c.IngestSample(SourcePCE, PCE1, 2000, 1.2, 0, 2000)

	freq, ok := c.PerPCEMajorFrameFreq(PCE1)
	require.True(t, ok)
	assert.InDelta(t, 1000.0/0.2, freq, 1e-6)
}

func TestReconstructSC1PPSAmet(t *testing.T) {
	current := uint64(0x2_0000_1234)
	// low32 that sits below current within the same high word should not wrap.
	got := reconstructSC1PPSAmet(0x0000_1000, current)
	assert.Equal(t, uint64(0x2_0000_1000), got)
}

func TestAmetToGps(t *testing.T) {
	mapping := AmetToGpsMapping{
		Asc1PpsGps:         1000.0,
		Asc1PpsAmet:        1_000_000_000,
		TrueRulerClkPeriod: 10.0,
		UsoFreqCalcValid:   true,
	}
	gps := AmetToGps(mapping, 1_000_000_000+100_000_000)
	assert.InDelta(t, 1001.0, gps, 1e-9)
}

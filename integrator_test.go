package atlastt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icesat2-gsp/atlas-timetag/decode"
)

// buildStartSegment assembles a minimal start-header payload with one
// downlink band covering every channel (mask=0), zero range-window start,
// and the given raw N_DLB byte.
func buildStartSegment(numDLBRaw byte, numDLBs int) []byte {
	const (
		offCalRising  = 12
		offCalFalling = 14
		offNumDLB     = 26
		offDLBs       = 27
		dlbEntryLen   = 7
	)
	data := make([]byte, offDLBs+numDLBs*dlbEntryLen)
	data[3] = 1 // MFC == 1
	data[offCalRising+1] = 128
	data[offCalFalling+1] = 128
	data[offNumDLB] = numDLBRaw

	for i := 0; i < numDLBs; i++ {
		off := offDLBs + i*dlbEntryLen
		// mask=0 (every channel enabled), start=0
		data[off+5] = 0x03 // width = 1000
		data[off+6] = 0xE8
	}
	return data
}

func TestIntegratorNominalSingleShotSingleReturnBinsCorrectly(t *testing.T) {
	in := NewIntegrator(PCE1, DefaultConfig(), NewMajorFrameCache(), NewCorrelator(10.0), NewGranuleHistogram(), 8)

	in.Process(decode.Segment{Flag: decode.SegmentStart, Data: buildStartSegment(0, 1)})

	// transmit tag (channel 24): Width=0, TrailingFine=0, LeadingCoarse=0, LeadingFine=0
	transmit := []byte{0xC0, 0x00, 0x00, 0x80}
	// return tag (channel 1): Rising=1, BandLow=0, Coarse=10, Fine=0
	ret := []byte{0x0C, 0x05, 0x80}

	body := make([]byte, 12+len(transmit)+len(ret))
	copy(body[12:], transmit)
	copy(body[16:], ret)

	in.Process(decode.Segment{Flag: decode.SegmentEnd, Data: body})

	strong := <-in.Emitted()
	weak := <-in.Emitted()
	require.NotNil(t, strong)
	require.NotNil(t, weak)
	assert.Equal(t, HistStrongTimeTag, strong.Type)
	assert.Equal(t, HistWeakTimeTag, weak.Type)

	assert.Equal(t, 1, strong.Bins[66], "range 100ns at bin size 0.225m should land in bin 66")
	assert.Equal(t, 1, strong.GetSum())
	assert.Equal(t, 0, weak.GetSum(), "no return landed on a weak-spot channel")
}

func TestIntegratorClampsExcessiveNumDLBAndCountsHdrErr(t *testing.T) {
	in := NewIntegrator(PCE1, DefaultConfig(), NewMajorFrameCache(), NewCorrelator(10.0), NewGranuleHistogram(), 8)

	// raw=10 -> NumDLB would be 11, clamped to decode.MaxNumDLBs (4).
	in.Process(decode.Segment{Flag: decode.SegmentStart, Data: buildStartSegment(10, decode.MaxNumDLBs)})
	in.Cancel()

	h := <-in.Emitted()
	require.NotNil(t, h)
	assert.Equal(t, int64(1), h.PktStats.HdrErr)
}

func TestIntegratorCancelEmitsBothSpotsAndReturnsToIdle(t *testing.T) {
	in := NewIntegrator(PCE2, DefaultConfig(), NewMajorFrameCache(), NewCorrelator(10.0), NewGranuleHistogram(), 8)
	in.Process(decode.Segment{Flag: decode.SegmentStart, Data: buildStartSegment(0, 1)})
	in.Cancel()

	assert.Equal(t, stateIdle, in.state)
	first := <-in.Emitted()
	second := <-in.Emitted()
	assert.NotEqual(t, first.Type, second.Type)
}

func TestComputeTepIgnoreReturnsBlockingRegionWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	start, stop, ok := computeTepIgnore(0, cfg, cfg.TimeTagBinSize)
	assert.True(t, ok)
	assert.LessOrEqual(t, start, stop)
}

func TestComputeTepIgnoreDisabledReturnsFalse(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlockTep = false
	_, _, ok := computeTepIgnore(0, cfg, cfg.TimeTagBinSize)
	assert.False(t, ok)
}

func TestCheckDeadTimeDuplicateFlagsAdjacentCoarseChain(t *testing.T) {
	in := &Integrator{channels: &ChannelStats{}}
	in.cur = &period{trueRulerClkPeriod: 10.0}

	tag := &Tag{Coarse: 11, Fine: 5, CalValue: 20}
	retained := []*Tag{{Coarse: 10, Fine: 0, CalValue: 20}}

	in.checkDeadTimeDuplicate(tag, retained, EdgeRising, 1)
	assert.True(t, tag.Duplicate)
}

func TestCheckDeadTimeDuplicateNonAdjacentCoarseIsNotAChain(t *testing.T) {
	in := &Integrator{channels: &ChannelStats{}}
	in.cur = &period{trueRulerClkPeriod: 10.0}

	tag := &Tag{Coarse: 50, Fine: 5, CalValue: 20}
	retained := []*Tag{{Coarse: 10, Fine: 0, CalValue: 20}}

	in.checkDeadTimeDuplicate(tag, retained, EdgeRising, 1)
	assert.False(t, tag.Duplicate)
}

func TestUpdateChannelBiasFoldsSignalWindowReturnsIntoChannelStats(t *testing.T) {
	cfg := DefaultConfig()
	in := &Integrator{cfg: cfg, channels: &ChannelStats{}}

	h := NewHistogram(HistStrongTimeTag, 50, cfg.TimeTagBinSize, PCE1, 1, 0, 0, 0)
	h.BeginSigBin = 0
	h.EndSigBin = 1000
	h.SignalRange = 100.0

	p := &period{trueRulerClkPeriod: 10.0, rws: [2]float64{0, 0}}
	in.cur = p

	shot := &Shot{}
	shot.Returns[edgeIdx(EdgeRising)][1] = []*Tag{
		{Channel: 1, Edge: EdgeRising, RangeNs: 110.0, RangeOK: true},
		{Channel: 1, Edge: EdgeRising, RangeNs: 120.0, RangeOK: true},
	}
	p.shots = []*Shot{shot}

	in.updateChannelBias(p, SpotStrong, h)

	assert.True(t, h.ChannelBiasSet[1])
	assert.InDelta(t, 15.0, h.ChannelBiases[1], 1e-9)
	assert.InDelta(t, 15.0, in.channels.Bias[1], 1e-9)
}

func TestSelectBandUnambiguousMatch(t *testing.T) {
	in := &Integrator{}
	in.cur = &period{dlbs: []DownlinkBand{
		{Mask: 0},        // band 0: every channel enabled
		{Mask: 0xFFFFFF}, // band 1: nothing enabled
	}}

	idx, ok := in.selectBand(0, 5)
	require.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestSelectBandNoMatchReturnsFalse(t *testing.T) {
	in := &Integrator{}
	in.cur = &period{dlbs: []DownlinkBand{
		{Mask: 0xFFFFFF},
	}}

	_, ok := in.selectBand(0, 5)
	assert.False(t, ok)
}

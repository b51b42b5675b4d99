package atlastt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunningAvgMatchesIncrementalFormula(t *testing.T) {
	avg := 0.0
	for n, x := range []float64{2, 4, 6, 8} {
		avg = runningAvg(int64(n), avg, x)
	}
	assert.InDelta(t, 5.0, avg, 1e-9)
}

func TestMergeAvgWeightsByCount(t *testing.T) {
	got := mergeAvg(3, 10.0, 1, 30.0)
	assert.InDelta(t, 15.0, got, 1e-9)
}

func TestMergeAvgBothEmptyIsZero(t *testing.T) {
	assert.Equal(t, 0.0, mergeAvg(0, 5.0, 0, 5.0))
}

func TestPacketStatsUpdateSumTagsTracksMinMaxAvg(t *testing.T) {
	s := &PacketStats{}
	s.Lock()
	s.UpdateSumTags(10)
	s.UpdateSumTags(4)
	s.UpdateSumTags(20)
	s.Unlock()

	assert.Equal(t, int64(3), s.StatCnt)
	assert.Equal(t, 4.0, s.MinSumTags)
	assert.Equal(t, 20.0, s.MaxSumTags)
	assert.InDelta(t, (10.0+4.0+20.0)/3.0, s.SumTags, 1e-9)
}

func TestPacketStatsIncrementersAreIndependent(t *testing.T) {
	s := &PacketStats{}
	s.IncMfcErr()
	s.IncHdrErr()
	s.IncHdrErr()
	s.IncWarning()

	snap := s.Snapshot()
	assert.Equal(t, int64(1), snap.MfcErr)
	assert.Equal(t, int64(2), snap.HdrErr)
	assert.Equal(t, int64(1), snap.Warnings)
	assert.Equal(t, int64(0), snap.DlbErr)
}

func TestChannelStatsUpdateCalibrationTracksRisingAndFallingSeparately(t *testing.T) {
	s := &ChannelStats{}
	s.Lock()
	s.UpdateCalibration(1, EdgeRising, 100.0, 1)
	s.UpdateCalibration(1, EdgeRising, 200.0, 1)
	s.UpdateCalibration(1, EdgeFalling, 50.0, 1)
	s.Unlock()

	assert.Equal(t, 100.0, s.RisingMinCal[1])
	assert.Equal(t, 200.0, s.RisingMaxCal[1])
	assert.InDelta(t, 150.0, s.RisingAvgCal[1], 1e-9)
	assert.Equal(t, 50.0, s.FallingMinCal[1])
	assert.Equal(t, 50.0, s.FallingMaxCal[1])
}

func TestChannelStatsUpdateDeadTimeMinTracksFloor(t *testing.T) {
	s := &ChannelStats{}
	s.Lock()
	s.UpdateDeadTimeMin(2, 5.0)
	s.AddRxCount(2, 1)
	s.UpdateDeadTimeMin(2, 3.0)
	s.AddRxCount(2, 1)
	s.UpdateDeadTimeMin(2, 9.0)
	s.Unlock()

	assert.Equal(t, 3.0, s.DeadTimeMin[2])
	assert.Equal(t, int64(2), s.RxCount[2])
}

func TestTransmitStatsUpdateReturnCountIgnoresTruncatedForMin(t *testing.T) {
	s := &TransmitStats{}
	s.Lock()
	s.UpdateReturnCount(10, false)
	s.UpdateReturnCount(2, true) // truncated: must not pull the minimum down
	s.UpdateReturnCount(20, false)
	s.Unlock()

	assert.Equal(t, 10.0, s.MinReturns)
	assert.Equal(t, 20.0, s.MaxReturns)
}

func TestShotDeltaTimeNsWrapsOnLargeCoarseJump(t *testing.T) {
	// no wrap: small forward delta
	got := shotDeltaTimeNs(100, 110, 1.0)
	assert.InDelta(t, 10.0, got, 1e-9)

	// coarse counter wrapped from near-top back to near-zero
	const coarseModulus = 1 << 14
	got = shotDeltaTimeNs(coarseModulus-5, 5, 1.0)
	assert.InDelta(t, 10.0, got, 1e-9)
}

func TestTransmitStatsIncSlipped(t *testing.T) {
	s := &TransmitStats{}
	s.IncSlipped()
	s.IncSlipped()
	assert.Equal(t, int64(2), s.SlippedCount)
}

func TestSignalStatsUpdateTracksRunningAverages(t *testing.T) {
	s := &SignalStats{}
	s.Lock()
	s.Update(&Histogram{NoiseFloor: 1, SignalRange: 2, SignalWidth: 3, SignalEnergy: 4, TepEnergy: 5})
	s.Update(&Histogram{NoiseFloor: 3, SignalRange: 4, SignalWidth: 5, SignalEnergy: 6, TepEnergy: 7})
	s.Unlock()

	assert.InDelta(t, 2.0, s.AvgNoiseFloor, 1e-9)
	assert.InDelta(t, 3.0, s.AvgSignalRange, 1e-9)
	assert.Equal(t, int64(2), s.StatCnt)
}

func TestGranuleHistogramAddClampsToBounds(t *testing.T) {
	g := NewGranuleHistogram()
	g.Add(100, 0)    // offset 100
	g.Add(5000, 0)   // clamps to +1000
	g.Add(-5000, 0)  // clamps to -1000
	g.Add(0.4, 0)    // rounds to 0

	snap := g.Snapshot()
	assert.Equal(t, int64(1), snap[1000+100])
	assert.Equal(t, int64(1), snap[2000])
	assert.Equal(t, int64(1), snap[0])
	assert.Equal(t, int64(1), snap[1000])
}

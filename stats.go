package atlastt

import (
	"math"
	"sync"
)

// runningAvg implements the running-average update avg_n+1 = (n*avg_n + x)
// / (n+1) used throughout C5 (§4.5).
func runningAvg(n int64, avg, x float64) float64 {
	return (float64(n)*avg + x) / float64(n+1)
}

// mergeAvg combines two sub-batch averages weighted by their sample counts
// (§4.5 "a weighted variant when merging sub-batch averages").
func mergeAvg(n1 int64, avg1 float64, n2 int64, avg2 float64) float64 {
	if n1+n2 == 0 {
		return 0
	}
	return (float64(n1)*avg1 + float64(n2)*avg2) / float64(n1+n2)
}

// PacketStats is the per-packet error taxonomy record (§4.4.5, §4.5). One
// instance is owned per (PCE, spot) integration period and copied into the
// emitted Histogram; lock/unlock bracket every mutation so C6 can snapshot
// consistently.
type PacketStats struct {
	mu sync.Mutex

	StatCnt    int64
	SumTags    float64
	MinSumTags float64
	MaxSumTags float64

	MfcErr   int64
	HdrErr   int64
	FmtErr   int64
	DlbErr   int64
	TagErr   int64
	PktErr   int64
	Warnings int64
}

func (s *PacketStats) Lock()   { s.mu.Lock() }
func (s *PacketStats) Unlock() { s.mu.Unlock() }

// UpdateSumTags folds one packet's tag count into the running min/max/avg.
// Caller must hold the lock.
func (s *PacketStats) UpdateSumTags(sumTags float64) {
	if s.StatCnt == 0 {
		s.MinSumTags = sumTags
		s.MaxSumTags = sumTags
	} else {
		if sumTags < s.MinSumTags {
			s.MinSumTags = sumTags
		}
		if sumTags > s.MaxSumTags {
			s.MaxSumTags = sumTags
		}
	}
	s.SumTags = runningAvg(s.StatCnt, s.SumTags, sumTags)
	s.StatCnt++
}

func (s *PacketStats) IncMfcErr()   { s.mu.Lock(); s.MfcErr++; s.mu.Unlock() }
func (s *PacketStats) IncHdrErr()   { s.mu.Lock(); s.HdrErr++; s.mu.Unlock() }
func (s *PacketStats) IncFmtErr()   { s.mu.Lock(); s.FmtErr++; s.mu.Unlock() }
func (s *PacketStats) IncDlbErr()   { s.mu.Lock(); s.DlbErr++; s.mu.Unlock() }
func (s *PacketStats) IncTagErr()   { s.mu.Lock(); s.TagErr++; s.mu.Unlock() }
func (s *PacketStats) IncPktErr()   { s.mu.Lock(); s.PktErr++; s.mu.Unlock() }
func (s *PacketStats) IncWarning()  { s.mu.Lock(); s.Warnings++; s.mu.Unlock() }

// Snapshot returns a lock-free copy for embedding into an emitted Histogram.
func (s *PacketStats) Snapshot() PacketStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s
	cp.mu = sync.Mutex{}
	return cp
}

// ChannelStats accumulates per-channel calibration and occupancy running
// statistics across periods (§4.4.3 "Channel stats update").
type ChannelStats struct {
	mu sync.Mutex

	StatCnt [NumChannels + 1]int64

	Bias [NumChannels + 1]float64

	TdcCalR [NumChannels + 1]float64
	TdcCalF [NumChannels + 1]float64

	RisingAvgCal [NumChannels + 1]float64
	RisingMinCal [NumChannels + 1]float64
	RisingMaxCal [NumChannels + 1]float64

	FallingAvgCal [NumChannels + 1]float64
	FallingMinCal [NumChannels + 1]float64
	FallingMaxCal [NumChannels + 1]float64

	RisingCalCnt  [NumChannels + 1]int64
	FallingCalCnt [NumChannels + 1]int64

	DeadTimeMin [NumChannels + 1]float64
	RxCount     [NumChannels + 1]int64
}

func (s *ChannelStats) Lock()   { s.mu.Lock() }
func (s *ChannelStats) Unlock() { s.mu.Unlock() }

// UpdateBias folds one period's histogram-derived per-channel bias into the
// running average. Caller must hold the lock.
func (s *ChannelStats) UpdateBias(ch int, bias float64) {
	s.Bias[ch] = runningAvg(s.StatCnt[ch], s.Bias[ch], bias)
}

// UpdateCalibration folds one duplicate-chain observation's calibration
// value into the rising or falling running avg/min/max, weighted by
// duplicate count (§4.4.3). Caller must hold the lock.
func (s *ChannelStats) UpdateCalibration(ch int, edge Edge, calval float64, dupCount int64) {
	if edge == EdgeRising {
		n := s.RisingCalCnt[ch]
		if n == 0 {
			s.RisingMinCal[ch] = calval
			s.RisingMaxCal[ch] = calval
		} else {
			s.RisingMinCal[ch] = math.Min(s.RisingMinCal[ch], calval)
			s.RisingMaxCal[ch] = math.Max(s.RisingMaxCal[ch], calval)
		}
		s.RisingAvgCal[ch] = mergeAvg(n, s.RisingAvgCal[ch], dupCount, calval)
		s.RisingCalCnt[ch] += dupCount
	} else {
		n := s.FallingCalCnt[ch]
		if n == 0 {
			s.FallingMinCal[ch] = calval
			s.FallingMaxCal[ch] = calval
		} else {
			s.FallingMinCal[ch] = math.Min(s.FallingMinCal[ch], calval)
			s.FallingMaxCal[ch] = math.Max(s.FallingMaxCal[ch], calval)
		}
		s.FallingAvgCal[ch] = mergeAvg(n, s.FallingAvgCal[ch], dupCount, calval)
		s.FallingCalCnt[ch] += dupCount
	}
	s.StatCnt[ch] += dupCount
}

// UpdateTdcCal folds the period's cvr/cvf TDC calibration into the running
// average TDC calibration (§4.4.3 "tdc_calr/tdc_calf"). Caller must hold the
// lock.
func (s *ChannelStats) UpdateTdcCal(ch int, cvr, cvf float64, n int64) {
	s.TdcCalR[ch] = runningAvg(n, s.TdcCalR[ch], cvr)
	s.TdcCalF[ch] = runningAvg(n, s.TdcCalF[ch], cvf)
}

// UpdateDeadTimeMin folds a new minimum opposite-edge |Δrange| observation
// into the channel's dead-time floor. Caller must hold the lock.
func (s *ChannelStats) UpdateDeadTimeMin(ch int, deltaRange float64) {
	if s.RxCount[ch] == 0 || deltaRange < s.DeadTimeMin[ch] {
		s.DeadTimeMin[ch] = deltaRange
	}
}

// AddRxCount bumps the channel's retained-return counter. Caller must hold
// the lock.
func (s *ChannelStats) AddRxCount(ch int, n int64) {
	s.RxCount[ch] += n
}

// TransmitStats accumulates per-spot shot-level statistics across a period
// (§4.4.3 "Transmit stats").
type TransmitStats struct {
	mu sync.Mutex

	StatCnt int64

	MinReturns float64
	MaxReturns float64
	AvgReturns float64
	StdReturns float64

	AvgDeltaTimeNs float64

	SlippedCount int64
}

func (s *TransmitStats) Lock()   { s.mu.Lock() }
func (s *TransmitStats) Unlock() { s.mu.Unlock() }

// UpdateReturnCount folds one shot's return count into min/max/avg. Truncated
// shots do not contribute to the minimum (§4.4.3). Caller must hold the lock.
func (s *TransmitStats) UpdateReturnCount(count int, truncated bool) {
	x := float64(count)
	if s.StatCnt == 0 {
		s.MaxReturns = x
		if !truncated {
			s.MinReturns = x
		}
	} else {
		if x > s.MaxReturns {
			s.MaxReturns = x
		}
		if !truncated && x < s.MinReturns {
			s.MinReturns = x
		}
	}
	s.AvgReturns = runningAvg(s.StatCnt, s.AvgReturns, x)
	s.StatCnt++
}

// shotDeltaTimeNs computes the Δtime between consecutive shots' coarse
// transmit time, applying the period-wraparound rule |Δcoarse|>5000 implies
// wrap (§4.4.3).
func shotDeltaTimeNs(prevCoarse, curCoarse int, trueRulerClkPeriod float64) float64 {
	delta := curCoarse - prevCoarse
	if delta < -5000 || delta > 5000 {
		const coarseModulus = 1 << 14
		if delta < 0 {
			delta += coarseModulus
		} else {
			delta -= coarseModulus
		}
	}
	return float64(delta) * trueRulerClkPeriod
}

// UpdateDeltaTime folds one consecutive-shot Δtime sample into the running
// average. Caller must hold the lock.
func (s *TransmitStats) UpdateDeltaTime(deltaNs float64) {
	s.AvgDeltaTimeNs = runningAvg(s.StatCnt, s.AvgDeltaTimeNs, deltaNs)
}

// IncSlipped counts one "slipped" return per §4.4.3's slip-detection rule.
func (s *TransmitStats) IncSlipped() {
	s.mu.Lock()
	s.SlippedCount++
	s.mu.Unlock()
}

// SignalStats trends a spot's derived signal attributes across periods, for
// run-level QA (supplements §4.4.3's per-period calcAttributes output).
type SignalStats struct {
	mu sync.Mutex

	StatCnt int64

	AvgNoiseFloor   float64
	AvgSignalRange  float64
	AvgSignalWidth  float64
	AvgSignalEnergy float64
	AvgTepEnergy    float64
}

func (s *SignalStats) Lock()   { s.mu.Lock() }
func (s *SignalStats) Unlock() { s.mu.Unlock() }

// Update folds one period's calcAttributes output into the running averages.
// Caller must hold the lock.
func (s *SignalStats) Update(h *Histogram) {
	s.AvgNoiseFloor = runningAvg(s.StatCnt, s.AvgNoiseFloor, h.NoiseFloor)
	s.AvgSignalRange = runningAvg(s.StatCnt, s.AvgSignalRange, h.SignalRange)
	s.AvgSignalWidth = runningAvg(s.StatCnt, s.AvgSignalWidth, h.SignalWidth)
	s.AvgSignalEnergy = runningAvg(s.StatCnt, s.AvgSignalEnergy, h.SignalEnergy)
	s.AvgTepEnergy = runningAvg(s.StatCnt, s.AvgTepEnergy, h.TepEnergy)
	s.StatCnt++
}

// GranuleHistogram is the process-wide ±1000-bin histogram of (signalRange -
// range) observations across all periods and PCEs, shared and
// mutex-protected (§4.4.3, §9 "Global mutable state").
type GranuleHistogram struct {
	mu   sync.Mutex
	bins [2001]int64 // index 1000 == offset 0
}

// NewGranuleHistogram returns an empty granule histogram.
func NewGranuleHistogram() *GranuleHistogram {
	return &GranuleHistogram{}
}

// Add bins one rounded (signalRange - range) observation, clamping to
// ±1000.
func (g *GranuleHistogram) Add(signalRange, rangeNs float64) {
	offset := int(math.Round(signalRange - rangeNs))
	if offset < -1000 {
		offset = -1000
	}
	if offset > 1000 {
		offset = 1000
	}
	g.mu.Lock()
	g.bins[offset+1000]++
	g.mu.Unlock()
}

// Snapshot returns a copy of the granule histogram's bins.
func (g *GranuleHistogram) Snapshot() [2001]int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bins
}

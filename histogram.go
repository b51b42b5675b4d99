package atlastt

import "math"

// Histogram is the tagged-variant record described in §3/§4.1 (C1). A
// single type collapses the source software's AtlasHistogram /
// TimeTagHistogram / AltimetryHistogram class hierarchy: Type selects which
// of the optional sections below are meaningful, and Type.IsTimeTag /
// Type.IsAltimetric report which applies.
//
// A Histogram is created inside one integration period and owned
// exclusively by the integrator goroutine that built it until it is handed
// to the emission queue (§5) - no internal locking is required.
type Histogram struct {
	Type              HistogramType
	IntegrationPeriod int
	BinSize           float64 // meters

	PCE                PCE
	MajorFrameCounter  int64
	MajorFramePresent  bool
	MajorFrame         *MajorFrameSnapshot

	GpsAtMajorFrame  float64
	RangeWindowStart float64
	RangeWindowWidth float64

	TransmitCount int
	NoiseFloor    float64
	NoiseBin      float64
	SignalRange   float64
	SignalWidth   float64
	SignalEnergy  float64
	TepEnergy     float64

	PktBytes  int
	PktErrors int

	IgnoreStartBin int // inclusive
	IgnoreStopBin  int // exclusive

	MaxVal [NumMaxBins]int
	MaxBin [NumMaxBins]int

	BeginSigBin int
	EndSigBin   int

	Size int
	Sum  int
	Bins [MaxHistSize]int

	// Time-tag-only extensions (§3 "Time-tag histograms additionally
	// carry..."). Zero-valued and ignored when !Type.IsTimeTag().
	ChannelCounts  [NumChannels + 1]int32
	ChannelBiases  [NumChannels + 1]float64
	ChannelBiasSet [NumChannels + 1]bool
	DownlinkBands  []DownlinkBand
	DownlinkTagCnt []int32
	PktStats       PacketStats
}

// NewHistogram constructs an empty Histogram for one spot of one
// integration period.
func NewHistogram(typ HistogramType, intPeriod int, binSize float64, pce PCE, mfc int64, gps, rws, rww float64) *Histogram {
	return &Histogram{
		Type:              typ,
		IntegrationPeriod: intPeriod,
		BinSize:           binSize,
		PCE:               pce,
		MajorFrameCounter: mfc,
		GpsAtMajorFrame:   gps,
		RangeWindowStart:  rws,
		RangeWindowWidth:  rww,
	}
}

// SetBin sets bins[bin]=val. Returns false (a no-op) if bin is out of range
// - out-of-range access is never fatal (§4.1, §4.4.5).
func (h *Histogram) SetBin(bin, val int) bool {
	if bin < 0 || bin >= MaxHistSize {
		return false
	}
	old := 0
	if bin < h.Size {
		old = h.Bins[bin]
	}
	h.Bins[bin] = val
	h.growTo(bin)
	h.Sum += val - old
	return true
}

// AddBin adds val to bins[bin].
func (h *Histogram) AddBin(bin, val int) bool {
	if bin < 0 || bin >= MaxHistSize {
		return false
	}
	h.Bins[bin] += val
	h.growTo(bin)
	h.Sum += val
	return true
}

// IncBin increments bins[bin] by one.
func (h *Histogram) IncBin(bin int) bool {
	return h.AddBin(bin, 1)
}

func (h *Histogram) growTo(bin int) {
	if bin+1 > h.Size {
		h.Size = bin + 1
	}
}

// GetSum returns the running total of all filled bins.
func (h *Histogram) GetSum() int { return h.Sum }

// GetMean returns the mean bin value over [0, Size).
func (h *Histogram) GetMean() float64 {
	if h.Size == 0 {
		return 0
	}
	return float64(h.Sum) / float64(h.Size)
}

// GetStdev returns the population standard deviation of bins over [0, Size).
func (h *Histogram) GetStdev() float64 {
	if h.Size == 0 {
		return 0
	}
	mean := h.GetMean()
	var acc float64
	for i := 0; i < h.Size; i++ {
		d := float64(h.Bins[i]) - mean
		acc += d * d
	}
	return math.Sqrt(acc / float64(h.Size))
}

func (h *Histogram) clampRange(start, stop int) (int, int, bool) {
	if stop < 0 {
		stop = h.Size
	} else {
		stop++ // interface is inclusive; internal iteration is exclusive
	}
	if start < 0 {
		start = 0
	}
	if stop > h.Size {
		stop = h.Size
	}
	if start >= stop {
		return 0, 0, false
	}
	return start, stop, true
}

// GetMin returns the minimum bin value over [start, stop] (stop is
// inclusive at the interface; -1 means "to the end").
func (h *Histogram) GetMin(start, stop int) int {
	a, b, ok := h.clampRange(start, stop)
	if !ok {
		return 0
	}
	m := h.Bins[a]
	for i := a + 1; i < b; i++ {
		if h.Bins[i] < m {
			m = h.Bins[i]
		}
	}
	return m
}

// GetMax returns the maximum bin value over [start, stop] (stop inclusive).
func (h *Histogram) GetMax(start, stop int) int {
	a, b, ok := h.clampRange(start, stop)
	if !ok {
		return 0
	}
	m := h.Bins[a]
	for i := a + 1; i < b; i++ {
		if h.Bins[i] > m {
			m = h.Bins[i]
		}
	}
	return m
}

// GetSumRange returns the sum of bins over [start, stop] (stop inclusive at
// the interface, exclusive internally after clamping).
func (h *Histogram) GetSumRange(start, stop int) int {
	a, b, ok := h.clampRange(start, stop)
	if !ok {
		return 0
	}
	sum := 0
	for i := a; i < b; i++ {
		sum += h.Bins[i]
	}
	return sum
}

// Scale multiplies every filled bin by factor, truncating to int. This is
// non-reversible (§4.1).
func (h *Histogram) Scale(factor float64) {
	sum := 0
	for i := 0; i < h.Size; i++ {
		h.Bins[i] = int(float64(h.Bins[i]) * factor)
		sum += h.Bins[i]
	}
	h.Sum = sum
}

// AddScalar adds k to every filled bin.
func (h *Histogram) AddScalar(k int) {
	for i := 0; i < h.Size; i++ {
		h.Bins[i] += k
	}
	h.Sum += k * h.Size
}

// GetSize returns the current (monotonically grown) histogram size.
func (h *Histogram) GetSize() int { return h.Size }

// SetIgnore marks the TEP exclusion band [start, stop) (half-open).
func (h *Histogram) SetIgnore(start, stop int) {
	h.IgnoreStartBin = start
	h.IgnoreStopBin = stop
}

// SetChannelBias is the per-channel-bias extractor of §4.4.3, grounded on
// TimeTagHistogram::getChBiases: channel ch's bias is the offset of its
// in-signal-window returns from the period's overall SignalRange. The
// caller (the integrator, which alone knows which retained return ranges
// belong to which channel) supplies ranges already filtered to
// [BeginSigBin, EndSigBin]; ok is false - and the stored bias left
// untouched - when the channel had no returns in the signal window this
// period.
func (h *Histogram) SetChannelBias(ch int, ranges []float64) (bias float64, ok bool) {
	if ch < 1 || ch > NumChannels || len(ranges) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, r := range ranges {
		sum += r
	}
	bias = sum/float64(len(ranges)) - h.SignalRange
	h.ChannelBiases[ch] = bias
	h.ChannelBiasSet[ch] = true
	return bias, true
}

func (h *Histogram) SetPktBytes(n int)  { h.PktBytes = n }
func (h *Histogram) AddPktBytes(n int) int {
	h.PktBytes += n
	return h.PktBytes
}
func (h *Histogram) SetPktErrors(n int) { h.PktErrors = n }
func (h *Histogram) AddPktErrors(n int) int {
	h.PktErrors += n
	return h.PktErrors
}
func (h *Histogram) SetTransmitCount(n int) { h.TransmitCount = n }
func (h *Histogram) AddTransmitCount(n int) int {
	h.TransmitCount += n
	return h.TransmitCount
}
func (h *Histogram) SetTepEnergy(e float64) { h.TepEnergy = e }

// histogramDefaultFilterWidthNs is HISTOGRAM_DEFAULT_FILTER_WIDTH from the
// source instrument software: used when no explicit signal width is given.
const histogramDefaultFilterWidthNs = 1.5

// CalcAttributes implements the 9-step signal-attribute derivation of
// §4.1. sigWidthNs == 0 means "auto" (derive the filter width from the
// default); true10ns is the true ruler-clock period in ns used to convert
// bin-space quantities back to physical units. Returns true if a signal was
// found.
func (h *Histogram) CalcAttributes(sigWidthNs, true10ns float64) bool {
	h.rankMaxima()

	filterWidthBins := h.filterWidthBins(sigWidthNs)

	maxVal, maxBin := h.slidingWindowMax(filterWidthBins)

	beginSigBin := maxBin
	endSigBin := maxBin + filterWidthBins
	savedBegin, savedEnd := beginSigBin, endSigBin

	edgeThresh := h.edgeThreshold(filterWidthBins, maxVal)

	// Search for new max bin within the initial window.
	maxVal = h.Bins[beginSigBin]
	maxBin = beginSigBin
	for i := beginSigBin; i < endSigBin; i++ {
		if h.Bins[i] > maxVal {
			maxVal = h.Bins[i]
			maxBin = i
		}
	}

	widthBins := 1.0

	begin := maxBin
	for begin > 0 && float64(h.Bins[begin]) > edgeThresh {
		begin--
		widthBins++
	}
	if begin > 0 {
		begin--
	}

	end := maxBin
	for end < h.Size && float64(h.Bins[end]) > edgeThresh {
		end++
		widthBins++
	}
	if end < h.Size-1 {
		end++
	}

	h.SignalWidth = widthBins * h.BinSize * 20.0 / 3.0

	if sigWidthNs != 0.0 {
		begin, end = savedBegin, savedEnd
	}

	if begin < 0 {
		begin = 0
	}
	if end > h.Size-1 {
		end = h.Size - 1
	}
	h.BeginSigBin = begin
	h.EndSigBin = end

	if h.Type.IsAltimetric() || h.Type.IsTimeTag() {
		return h.calcAltimetricAttributes(true10ns)
	}

	return h.MaxVal[0] > h.NoiseBin+3*math.Sqrt(h.NoiseBin)
}

// rankMaxima finds the top NumMaxBins (value, bin) pairs by insertion rank,
// ties broken by bin index (§4.1 step 1).
func (h *Histogram) rankMaxima() {
	for i := range h.MaxVal {
		h.MaxVal[i] = 0
		h.MaxBin[i] = 0
	}
	for i := 0; i < h.Size; i++ {
		rank := NumMaxBins
		for j := 0; j < NumMaxBins; j++ {
			if h.Bins[i] > h.MaxVal[(NumMaxBins-1)-j] {
				rank--
			} else {
				break
			}
		}
		if rank < NumMaxBins {
			for k := NumMaxBins - 1; k > rank; k-- {
				h.MaxVal[k] = h.MaxVal[k-1]
				h.MaxBin[k] = h.MaxBin[k-1]
			}
			h.MaxVal[rank] = h.Bins[i]
			h.MaxBin[rank] = i
		}
	}
}

// filterWidthBins implements step 2.
func (h *Histogram) filterWidthBins(sigWidthNs float64) int {
	if sigWidthNs == 0.0 {
		return int(math.Ceil(histogramDefaultFilterWidthNs / h.BinSize))
	}
	return int(math.Round(sigWidthNs * (3.0 / 20.0) / h.BinSize))
}

// slidingWindowMax implements step 3: slide a window of width filterWidthBins
// across the non-TEP bins and find the position with the maximum windowed
// sum.
func (h *Histogram) slidingWindowMax(filterWidthBins int) (maxVal, maxBin int) {
	n := h.Size - filterWidthBins + 1
	if n < 1 {
		n = 1
	}
	for start := 0; start < n; start++ {
		sum := 0
		for m := 0; m < filterWidthBins; m++ {
			b := start + m
			if b < h.IgnoreStartBin || b >= h.IgnoreStopBin {
				if b >= 0 && b < h.Size {
					sum += h.Bins[b]
				}
			}
		}
		if sum > maxVal {
			maxVal = sum
			maxBin = start
		}
	}
	return maxVal, maxBin
}

// edgeThreshold implements step 4.
func (h *Histogram) edgeThreshold(filterWidthBins, windowMax int) float64 {
	threshBins := float64(h.Size - filterWidthBins)
	threshPerBin := 0.0
	if threshBins > 0 {
		threshPerBin = float64(h.Sum-windowMax) / threshBins
	}
	return threshPerBin + math.Sqrt(threshPerBin)
}

// calcAltimetricAttributes implements §4.1 step 8, the noise/signal/energy
// derivation shared by AltimetryHistogram and TimeTagHistogram's overrides
// of calcAttributes in the source instrument software - both subtypes
// compute noise floor and signal range/energy the same way, keyed off
// BeginSigBin/EndSigBin rather than the histogram's own type. TEP energy is
// not computed here; the integrator's reduceSpot computes it.
func (h *Histogram) calcAltimetricAttributes(true10ns float64) bool {
	backgroundBins := float64(h.Size - (h.EndSigBin - h.BeginSigBin + 1) - (h.IgnoreStopBin - h.IgnoreStartBin))

	sigSum := 0.0
	for i := h.BeginSigBin; i <= h.EndSigBin; i++ {
		sigSum += float64(h.Bins[i])
	}
	ignoreSum := 0.0
	for i := h.IgnoreStartBin; i < h.IgnoreStopBin; i++ {
		ignoreSum += float64(h.Bins[i])
	}

	h.NoiseBin = 0.0
	if backgroundBins > 0 {
		h.NoiseBin = (float64(h.Sum) - sigSum - ignoreSum) / backgroundBins
	}
	h.NoiseFloor = ((15000.0 / h.BinSize) * (50.0 / float64(h.IntegrationPeriod))) * h.NoiseBin / 1e6
	if h.TransmitCount != 0 {
		h.NoiseFloor *= (float64(h.IntegrationPeriod) * 200.0) / float64(h.TransmitCount)
	}

	sigLoc := 0.0
	retCount := 0.0
	binCount := 0.0
	for bin := h.BeginSigBin; bin <= h.EndSigBin; bin++ {
		sigLoc += float64(bin) * float64(h.Bins[bin])
		retCount += float64(h.Bins[bin]) - h.NoiseBin
		binCount += float64(h.Bins[bin])
	}
	if binCount != 0 {
		sigLoc /= binCount
	}

	h.SignalRange = (sigLoc * h.BinSize * (true10ns / 1.5)) + h.RangeWindowStart
	h.SignalEnergy = retCount / (200.0 * float64(h.IntegrationPeriod))

	return h.MaxVal[0] > h.NoiseBin+math.Sqrt(h.NoiseBin)*3
}

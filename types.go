package atlastt

import (
	"github.com/samber/lo"
)

// PCE identifies one of the three independent Photon Counting Electronics
// processing chains.
type PCE int

const (
	PCE1 PCE = 1 + iota
	PCE2
	PCE3
)

// Spot distinguishes the strong and weak return paths within a PCE.
type Spot int

const (
	SpotStrong Spot = iota
	SpotWeak
)

var SpotNames = map[Spot]string{
	SpotStrong: "strong",
	SpotWeak:   "weak",
}

// HistogramType enumerates the science-data subtypes a Histogram can carry.
// Mirrors the AtlasHistogram::type_t enumeration of the source instrument
// software: altimetric and atmospheric histograms are hardware pre-binned,
// time-tag histograms are built up one decoded return at a time by the
// integrator, and the remaining subtypes are ground-test variants retained
// for completeness but not produced by this module's pipeline.
type HistogramType int

const (
	HistNotApplicable HistogramType = iota - 1
	HistStrongAltimetric
	HistWeakAltimetric
	HistStrongAtmospheric
	HistWeakAtmospheric
	HistStrongTimeTag
	HistWeakTimeTag
	HistGroundLoopback
	HistStrongSimulated
	HistWeakSimulated
)

var HistogramTypeNames = map[HistogramType]string{
	HistNotApplicable:     "NAS",
	HistStrongAltimetric:  "SAL",
	HistWeakAltimetric:    "WAL",
	HistStrongAtmospheric: "SAM",
	HistWeakAtmospheric:   "WAM",
	HistStrongTimeTag:     "STT",
	HistWeakTimeTag:       "WTT",
	HistGroundLoopback:    "GRL",
	HistStrongSimulated:   "SHS",
	HistWeakSimulated:     "WHS",
}

var NameToHistogramType = lo.Invert(HistogramTypeNames)

func (t HistogramType) String() string {
	if name, ok := HistogramTypeNames[t]; ok {
		return name
	}
	return "NAS"
}

// IsTimeTag reports whether this subtype carries the channel/DLB/packet-stats
// extensions unique to time-tag histograms (§3 Histogram (C1)).
func (t HistogramType) IsTimeTag() bool {
	return t == HistStrongTimeTag || t == HistWeakTimeTag
}

// IsAltimetric reports whether this subtype is a strong or weak altimetric
// histogram. CalcAttributes applies the noise/signal-range derivation
// (§4.1 step 8) to these and to the time-tag subtypes.
func (t HistogramType) IsAltimetric() bool {
	return t == HistStrongAltimetric || t == HistWeakAltimetric
}

// Correction selects the per-shot transmit-delay compensation strategy
// (§4.4.1).
type Correction int

const (
	CorrectionUncorrected Correction = iota
	CorrectionLoopback
)

// Edge is the rising/falling toggle recorded on both transmit and return
// tags.
type Edge int

const (
	EdgeFalling Edge = iota
	EdgeRising
)

const (
	// NumChannels is the number of physical receive channels (1..20); index 0
	// is unused so that Channel values can index directly.
	NumChannels = 20

	// MaxNumDLBs is the maximum number of downlink bands describable in one
	// shot header (§4.4.2 Phase B).
	MaxNumDLBs = 4

	// MaxHistSize is the maximum number of bins a Histogram can hold (§4.1).
	MaxHistSize = 10000

	// MaxNumShots bounds the shots captured in a single integration period
	// (§4.4.5); each transmit beyond this cap counts a pkt_error, and the
	// shot is still recorded.
	MaxNumShots = 201

	// MaxRxPerShot bounds the returns retained per shot; beyond this the last
	// slot is reused and a critical log is emitted (§4.4.5).
	MaxRxPerShot = 1000

	// NumMaxBins is the width of the top-N maxima tracked by calcAttributes.
	NumMaxBins = 3

	// DetectorDeadTimeNs is the fixed dead-time subtracted in the
	// chain-span duplicate test (§4.4.2 Phase C, step "Duplicate by
	// dead-time").
	DetectorDeadTimeNs = 1.0

	// MinFineTimeCal / MaxFineTimeCal bound the running-average fine-time
	// calibration accepted in place of the per-segment cvr/cvf (§4.4.2).
	MinFineTimeCal = 0.1
	MaxFineTimeCal = 0.3
)

// DownlinkBand describes one programmable per-shot range window (§3).
type DownlinkBand struct {
	Mask  uint32 // 24-bit channel enable mask; bit (ch-1); a zero bit means enabled
	Start uint32 // 100 MHz clocks from range-window start
	Width uint32 // 100 MHz clocks
}

// Enabled reports whether channel ch (1..20) is enabled on this band - the
// ICD convention is inverted: a zero bit means the channel is enabled.
func (d DownlinkBand) Enabled(ch int) bool {
	return d.Mask&(1<<uint(ch-1)) == 0
}

// Tag is one decoded return pulse (§3 Tag).
type Tag struct {
	Raw       uint32
	Edge      Edge
	Band      int // 0..1 at decode time, resolved to 0..3 (DLB index) post-selection
	Coarse    int // 10-bit count (tag bits 7..16), -1 bias already applied
	Fine      int // 0..74
	Channel   int // 1..20
	Duplicate bool
	CalValue  float64 // chosen TDC calibration, ns
	RangeNs   float64
	RangeOK   bool // false if the loopback-window correction invalidated the range
}

// TransmitPulse is the decoded transmit tag for one shot (§3).
type TransmitPulse struct {
	Raw           uint32
	Width         bool
	TrailingFine  int
	LeadingCoarse int // 14-bit, -1 bias applied
	LeadingFine   int
	ReturnCount   int
	TimeNs        float64
}

// Shot is one transmit pulse plus its ordered returns, keyed by (edge,
// channel) (§3).
type Shot struct {
	Transmit   TransmitPulse
	Returns    [2][NumChannels + 1][]*Tag // [edge][channel]
	Truncated  bool
	ShotIndex  int
}

// AllReturns flattens Returns in (edge, channel, insertion) order - used by
// post-period reductions that don't care about the (edge, channel) keying.
func (s *Shot) AllReturns() []*Tag {
	out := make([]*Tag, 0, 8)
	for e := 0; e < 2; e++ {
		for ch := 1; ch <= NumChannels; ch++ {
			out = append(out, s.Returns[e][ch]...)
		}
	}
	return out
}

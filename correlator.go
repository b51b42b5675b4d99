package atlastt

import (
	"log"
	"sync"
)

// TimeSource names one of the four sample streams the correlator tracks
// (§4.3).
type TimeSource int

const (
	SourceSpacecraft TimeSource = iota // SC 1PPS
	SourceGround                       // ASC 1PPS
	SourceSXP                          // SXP housekeeping (TQ time)
	SourcePCE                          // per-PCE major-frame timekeeping
	numTimeSources
)

const ringBufferLen = 16

// ametGpsSample is one (amet, gps) pair deposited into a source's ring
// buffer.
type ametGpsSample struct {
	amet uint64
	gps  float64
}

// ametGpsRing is a length-16 ring buffer of (AMET, GPS) pairs (§4.3).
type ametGpsRing struct {
	samples [ringBufferLen]ametGpsSample
	count   int
	next    int
}

func (r *ametGpsRing) push(s ametGpsSample) {
	r.samples[r.next] = s
	r.next = (r.next + 1) % ringBufferLen
	if r.count < ringBufferLen {
		r.count++
	}
}

func (r *ametGpsRing) full() bool { return r.count == ringBufferLen }

// oldest returns the sample written ringBufferLen pushes ago - i.e. the
// slot about to be overwritten, which equals the current write position
// when the ring is full.
func (r *ametGpsRing) oldest() ametGpsSample { return r.samples[r.next] }

// newest returns the most recently pushed sample.
func (r *ametGpsRing) newest() ametGpsSample {
	idx := (r.next - 1 + ringBufferLen) % ringBufferLen
	return r.samples[idx]
}

// AmetToGpsMapping is the contract C3 exposes to C4 (§4.3
// getAmetToGpsMapping()).
type AmetToGpsMapping struct {
	Asc1PpsGps        float64
	Asc1PpsAmet       uint64
	TrueRulerClkPeriod float64
	UsoFreqCalcValid  bool
}

// Correlator is C3: the timekeeping correlator. It consumes 1PPS/housekeeping
// samples from up to four independent sources, derives oscillator frequency
// and the AMET<->GPS mapping, and exposes them to the time-tag integrator.
// One goroutine owns Ingest*; Snapshot/GetAmetToGpsMapping may be called
// concurrently by any number of integrator goroutines.
type Correlator struct {
	mu sync.RWMutex

	rings [numTimeSources]ametGpsRing

	lastAmetHigh uint32 // last value passed to SetAmetHigh; not read by IngestSample

	mapping AmetToGpsMapping

	usoFreq            float64
	trueRulerClkPeriod float64

	tqFreq float64

	perPceFreq map[PCE]float64

	errorCount int
}

// NewCorrelator returns a Correlator with the default (nominal) ruler-clock
// period and no valid mapping yet.
func NewCorrelator(defaultRulerClkPeriod float64) *Correlator {
	return &Correlator{
		trueRulerClkPeriod: defaultRulerClkPeriod,
		perPceFreq:         make(map[PCE]float64),
	}
}

// SetAmetHigh stores the current AMET high word. SC 1PPS 32-bit
// reconstruction does not use it: IngestSample widens that field from its
// own currentAmet argument (see reconstructSC1PPSAmet).
func (c *Correlator) SetAmetHigh(high uint32) {
	c.mu.Lock()
	c.lastAmetHigh = high
	c.mu.Unlock()
}

// reconstructSC1PPSAmet widens a 32-bit SC 1PPS AMET field using the current
// AMET high word, choosing the candidate that is <= currentAmet.
func reconstructSC1PPSAmet(low32 uint32, currentAmet uint64) uint64 {
	high := currentAmet &^ 0xffffffff
	candidate := high | uint64(low32)
	if candidate > currentAmet {
		candidate -= 1 << 32
	}
	return candidate
}

// IngestSample deposits one (amet, gps) sample from source into its ring
// buffer and, once the ASC 1PPS ring is full, recomputes usoFreq and
// trueRulerClkPeriod (§4.3). currentAmet is used only to reconstruct SC
// 1PPS's 32-bit field.
func (c *Correlator) IngestSample(source TimeSource, pce PCE, amet uint64, gps float64, rawAmet32 uint32, currentAmet uint64) {
	if amet == 0 || gps == 0 {
		c.mu.Lock()
		c.errorCount++
		c.mu.Unlock()
		log.Printf("atlastt: correlator: zeroed mandatory field from source %d, not updating mapping", source)
		return
	}

	if source == SourceSpacecraft {
		amet = reconstructSC1PPSAmet(rawAmet32, currentAmet)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ring := &c.rings[source]
	ring.push(ametGpsSample{amet: amet, gps: gps})

	switch source {
	case SourceGround:
		c.recomputeUso(ring)
	case SourceSXP:
		c.recomputeTq(ring)
	case SourcePCE:
		c.recomputePceFreq(ring, pce)
	}
}

// recomputeUso implements §4.3's "Over one full buffer" USO frequency and
// true-ruler-clock-period derivation. Must be called with c.mu held.
func (c *Correlator) recomputeUso(ring *ametGpsRing) {
	if !ring.full() {
		return
	}
	oldest, newest := ring.oldest(), ring.newest()

	gpsDelta := newest.gps - oldest.gps
	if gpsDelta < 0.5*ringBufferLen || gpsDelta > 1.5*ringBufferLen {
		c.mapping.UsoFreqCalcValid = false
		return
	}

	ametDelta := float64(newest.amet - oldest.amet)
	if ametDelta <= 0 {
		c.mapping.UsoFreqCalcValid = false
		return
	}

	c.usoFreq = ametDelta / gpsDelta
	c.trueRulerClkPeriod = 1e9 / c.usoFreq

	c.mapping = AmetToGpsMapping{
		Asc1PpsGps:         newest.gps,
		Asc1PpsAmet:        newest.amet,
		TrueRulerClkPeriod: c.trueRulerClkPeriod,
		UsoFreqCalcValid:   true,
	}
}

// recomputeTq derives the TQ frequency from consecutive SXP housekeeping
// samples. Must be called with c.mu held.
func (c *Correlator) recomputeTq(ring *ametGpsRing) {
	if ring.count < 2 {
		return
	}
	newest := ring.newest()
	prevIdx := (ring.next - 2 + ringBufferLen) % ringBufferLen
	prev := ring.samples[prevIdx]
	gpsDelta := newest.gps - prev.gps
	ametDelta := float64(newest.amet - prev.amet)
	if gpsDelta > 0 && ametDelta > 0 {
		c.tqFreq = ametDelta / gpsDelta
	}
}

// recomputePceFreq derives the per-PCE major-frame frequency from
// consecutive (gps, counter) pairs, where "counter" is carried in the amet
// field of the sample (§4.3). Must be called with c.mu held.
func (c *Correlator) recomputePceFreq(ring *ametGpsRing, pce PCE) {
	if ring.count < 2 {
		return
	}
	newest := ring.newest()
	prevIdx := (ring.next - 2 + ringBufferLen) % ringBufferLen
	prev := ring.samples[prevIdx]
	gpsDelta := newest.gps - prev.gps
	counterDelta := float64(newest.amet - prev.amet)
	if gpsDelta > 0 {
		c.perPceFreq[pce] = counterDelta / gpsDelta
	}
}

// PerPCEMajorFrameFreq returns the last-derived major-frame frequency for
// pce, or (0, false) if not yet established.
func (c *Correlator) PerPCEMajorFrameFreq(pce PCE) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.perPceFreq[pce]
	return f, ok
}

// GetAmetToGpsMapping is the contract to C4 (§4.3). When UsoFreqCalcValid is
// false the caller must leave gps=0 and skip GPS-based cross-checks.
func (c *Correlator) GetAmetToGpsMapping() AmetToGpsMapping {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mapping
}

// TrueRulerClkPeriod returns the current shared ruler-clock period (ns),
// consumed by C4 when autoSetRulerClk is enabled (§3 "Ruler-clock period").
func (c *Correlator) TrueRulerClkPeriod() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trueRulerClkPeriod
}

// ErrorCount returns the number of zeroed-mandatory-field events observed.
func (c *Correlator) ErrorCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errorCount
}

// CorrelatorSnapshot is an archival copy of the correlator's current state
// (§4.7 C7 archive sink).
type CorrelatorSnapshot struct {
	Mapping            AmetToGpsMapping
	UsoFreq            float64
	TrueRulerClkPeriod float64
	TqFreq             float64
	ErrorCount         int
}

// Snapshot returns a point-in-time copy suitable for archival.
func (c *Correlator) Snapshot() CorrelatorSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CorrelatorSnapshot{
		Mapping:            c.mapping,
		UsoFreq:            c.usoFreq,
		TrueRulerClkPeriod: c.trueRulerClkPeriod,
		TqFreq:             c.tqFreq,
		ErrorCount:         c.errorCount,
	}
}

// AmetToGps computes gps = asc_1pps_gps + (amet - asc_1pps_amet) *
// trueRulerClkPeriod / 1e9, per the §4.3 contract. Callers must first check
// mapping.UsoFreqCalcValid.
func AmetToGps(mapping AmetToGpsMapping, amet uint64) float64 {
	return mapping.Asc1PpsGps + float64(amet-mapping.Asc1PpsAmet)*mapping.TrueRulerClkPeriod/1e9
}

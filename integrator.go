package atlastt

import (
	"log"
	"math"

	"github.com/icesat2-gsp/atlas-timetag/decode"
)

// integratorState is the per-PCE state machine of §4.4.4.
type integratorState int

const (
	stateIdle integratorState = iota
	stateAwaitStart
	stateInPeriod
	stateEmit
)

const (
	defaultTimeTagBinSize = 1.5 * 3.0 / 20.0 // m, the "1.5-default" referenced by §4.4.2 binning
	tenMeterPerNs         = 0.15             // range(ns) * 0.15 -> meters
)

// period holds everything owned exclusively by one integration period for
// one PCE (§3 "Shot", §9 "cyclic ownership").
type period struct {
	mfc       int64
	intPeriod int

	hdr  decode.StartHeader
	dlbs []DownlinkBand

	cvr, cvf           float64
	trueRulerClkPeriod float64

	rws [2]float64 // [spot] ns
	rww [2]float64

	gps float64

	histograms [2]*Histogram // [spot]

	shots       []*Shot
	currentShot *Shot

	// Phase A harvest: transmit time per shot index, used by the loopback
	// lookahead correction (§4.4.2).
	txLoopbackArray []float64

	prevTagRaw       uint32
	prevTagStickyRaw uint32

	truncated bool
	aborted   bool
}

// Integrator is C4: the per-PCE time-tag integration state machine.
type Integrator struct {
	pce PCE
	cfg Config

	cache       *MajorFrameCache
	correlator  *Correlator
	granule     *GranuleHistogram
	channels    *ChannelStats
	transmit    [2]*TransmitStats
	signal      [2]*SignalStats
	packets     *PacketStats

	emit chan *Histogram
	drop *autoflushCounter

	state integratorState
	cur   *period

	lastGps    float64
	lastGpsMfc int64
}

// autoflushCounter counts dropped emissions on a full bounded queue (§5).
type autoflushCounter struct {
	n int64
}

func (a *autoflushCounter) inc() { a.n++ }
func (a *autoflushCounter) Count() int64 { return a.n }

// NewIntegrator builds an Integrator for one PCE, sharing the process-wide
// major-frame cache, correlator, and granule histogram.
func NewIntegrator(pce PCE, cfg Config, cache *MajorFrameCache, correlator *Correlator, granule *GranuleHistogram, queueDepth int) *Integrator {
	return &Integrator{
		pce:        pce,
		cfg:        cfg,
		cache:      cache,
		correlator: correlator,
		granule:    granule,
		channels:   &ChannelStats{},
		transmit:   [2]*TransmitStats{{}, {}},
		signal:     [2]*SignalStats{{}, {}},
		packets:    &PacketStats{},
		emit:       make(chan *Histogram, queueDepth),
		drop:       &autoflushCounter{},
		state:      stateIdle,
	}
}

// Emitted exposes the emission queue to the writer/archive consumer (C6/C7).
func (in *Integrator) Emitted() <-chan *Histogram { return in.emit }

// DroppedCount returns the number of histograms dropped by autoflush.
func (in *Integrator) DroppedCount() int64 { return in.drop.Count() }

func (in *Integrator) tryEmit(h *Histogram) {
	select {
	case in.emit <- h:
	default:
		in.drop.inc()
		log.Printf("atlastt: pce %d: emission queue full, autoflush-dropping mfc=%d spot=%d", in.pce, h.MajorFrameCounter, h.Type)
	}
}

// Process feeds one reassembled segment into the state machine (§4.4.4).
// Callers own the upstream segment queue; Process never blocks.
func (in *Integrator) Process(seg decode.Segment) {
	switch seg.Flag {
	case decode.SegmentStart:
		in.onStart(seg.Data)
	case decode.SegmentContinuation:
		in.onBody(seg.Data, false)
	case decode.SegmentEnd:
		in.onBody(seg.Data, true)
	default:
		in.packets.IncWarning()
	}
}

// Cancel drains and emits any partial period, then returns to idle (§5
// "Cancellation").
func (in *Integrator) Cancel() {
	if in.cur != nil {
		in.finishPeriod()
	}
	in.state = stateIdle
}

func (in *Integrator) onStart(data []byte) {
	if in.state == stateInPeriod {
		// A new start segment while mid-period: emit what has been
		// collected and begin a fresh period (§4.4.4 overflow/abort rules
		// generalize to "unexpected start").
		in.finishPeriod()
	}

	hdr, err := decode.DecodeStartHeader(data)
	if err != nil {
		in.packets.IncHdrErr()
		in.state = stateIdle
		return
	}

	p := &period{
		mfc:       hdr.MFC,
		intPeriod: in.currentIntPeriod(),
		hdr:       hdr,
	}
	if hdr.NumDLBClamped {
		in.packets.IncHdrErr()
	}

	trueRulerClkPeriod := in.cfg.TrueRulerClkPeriod
	if in.cfg.AutoSetRulerClk {
		if v := in.correlator.TrueRulerClkPeriod(); v > 0 {
			trueRulerClkPeriod = v
		} else {
			in.cfg.AutoSetRulerClk = false
			log.Printf("atlastt: pce %d: autoSetRulerClk retrieval failed, self-disabling", in.pce)
		}
	}
	p.trueRulerClkPeriod = trueRulerClkPeriod

	p.cvr = trueRulerClkPeriod / (float64(hdr.CalRisingRaw) / 256.0)
	p.cvf = trueRulerClkPeriod / (float64(hdr.CalFallingRaw) / 256.0)

	p.rws[SpotStrong] = float64(hdr.StrongRWS) * trueRulerClkPeriod
	p.rww[SpotStrong] = float64(hdr.StrongRWW) * trueRulerClkPeriod
	p.rws[SpotWeak] = float64(hdr.WeakRWS) * trueRulerClkPeriod
	p.rww[SpotWeak] = float64(hdr.WeakRWW) * trueRulerClkPeriod

	p.dlbs = make([]DownlinkBand, len(hdr.DLBs))
	for i, d := range hdr.DLBs {
		p.dlbs[i] = DownlinkBand{Mask: d.Mask, Start: d.Start, Width: d.Width}
	}

	// Major-frame cross-check and snapshot embedding (§3, §4.2).
	var snap *MajorFrameSnapshot
	if snap, _ = in.cache.Get(in.pce, hdr.MFC); snap == nil {
		in.packets.IncWarning()
		if p.intPeriod == 1 {
			in.packets.IncMfcErr()
		}
	}

	// GPS assignment (§4.4.2 "GPS assignment").
	mapping := in.correlator.GetAmetToGpsMapping()
	if mapping.UsoFreqCalcValid {
		p.gps = AmetToGps(mapping, hdr.AMET)
		if in.lastGps != 0 && in.lastGpsMfc != 0 && hdr.MFC > in.lastGpsMfc {
			expected := in.lastGps + float64(hdr.MFC-in.lastGpsMfc)*0.020*float64(p.intPeriod)
			tolerance := in.cfg.GpsAccuracyTolerance * float64(p.intPeriod)
			if math.Abs(p.gps-expected) > tolerance {
				in.packets.IncWarning()
			}
		}
		in.lastGps = p.gps
		in.lastGpsMfc = hdr.MFC
	}

	for s := 0; s < 2; s++ {
		typ := HistStrongTimeTag
		if s == SpotWeak {
			typ = HistWeakTimeTag
		}
		h := NewHistogram(typ, p.intPeriod, in.cfg.TimeTagBinSize, in.pce, hdr.MFC, p.gps, p.rws[s], p.rww[s])
		h.MajorFrame = snap
		h.MajorFramePresent = snap != nil
		if start, stop, ok := computeTepIgnore(p.rws[s], in.cfg, in.cfg.TimeTagBinSize); ok {
			h.SetIgnore(start, stop)
		}
		h.DownlinkBands = append([]DownlinkBand(nil), p.dlbs...)
		h.DownlinkTagCnt = make([]int32, len(p.dlbs))
		p.histograms[s] = h
	}

	in.cur = p
	in.state = stateInPeriod
}

// currentIntPeriod returns the configured integration period length. A
// future extension point for per-run overrides; fixed at 50 for this core.
func (in *Integrator) currentIntPeriod() int { return 50 }

func computeTepIgnore(rwsNs float64, cfg Config, binSize float64) (start, stop int, ok bool) {
	if !cfg.BlockTep {
		return 0, 0, false
	}
	nsPerBin := binSize * 20.0 / 3.0
	offset := math.Mod(rwsNs, 100000)
	if offset < 0 {
		offset += 100000
	}
	effective := offset
	if offset >= cfg.TepLocation {
		effective = offset - 100000
	}
	s := int(math.Floor((cfg.TepLocation - effective - cfg.TepWidth) / nsPerBin))
	e := int(math.Ceil((cfg.TepLocation - effective + cfg.TepWidth) / nsPerBin))
	if s < 0 {
		s = 0
	}
	if s >= e || s < 0 || e > MaxHistSize {
		return 0, 0, false
	}
	return s, e, true
}

// onBody processes one continuation or end segment: the Phase A loopback
// prepass and the Phase C per-return decode run over the same bytes.
func (in *Integrator) onBody(data []byte, isEnd bool) {
	if in.state != stateInPeriod {
		in.packets.IncWarning()
		return
	}
	in.prepassLoopback(data)
	in.decodeReturns(data, isEnd)
	for s := 0; s < 2; s++ {
		in.cur.histograms[s].AddPktBytes(len(data))
	}
	if isEnd {
		in.finishPeriod()
	}
}

// prepassLoopback implements Phase A: harvest every transmit tag's decoded
// time into in.cur.txLoopbackArray, without mutating any shot/statistics
// state (§4.4.2 Phase A).
func (in *Integrator) prepassLoopback(data []byte) {
	p := in.cur
	for i := 12; i < len(data); {
		id := data[i]
		ch := decode.ChannelID(id)
		switch {
		case ch >= 24 && ch <= 27:
			if i+4 > len(data) {
				return
			}
			raw := decode.U32(data[i : i+4])
			tf := decode.DecodeTransmitTag(raw)
			txTime := float64(tf.LeadingCoarse)*p.trueRulerClkPeriod - float64(tf.LeadingFine)*p.cvr
			if len(p.txLoopbackArray) < in.maxLoopbackCapacity() {
				p.txLoopbackArray = append(p.txLoopbackArray, txTime)
			} else {
				return
			}
			i += 4
		case ch >= 1 && ch <= 20:
			i += 3
		case ch == 28:
			i += 1
		default:
			i += 1
		}
	}
}

// maxLoopbackCapacity bounds Phase A's harvested-transmit array (§4.4.2
// Phase A: "array of size up to intPeriod*MAX_NUM_SHOTS"): one period holds
// up to MaxNumShots shots per major frame, for intPeriod major frames.
func (in *Integrator) maxLoopbackCapacity() int { return in.cur.intPeriod * MaxNumShots }

// decodeReturns implements Phase C: iterate the segment body byte-by-byte
// starting at offset 12, dispatching on the channel id.
func (in *Integrator) decodeReturns(data []byte, isEnd bool) {
	p := in.cur
	for i := 12; i < len(data); {
		if p.aborted {
			return
		}
		id := data[i]

		if id == 0xED {
			in.packets.IncWarning()
			i++
			continue
		}

		ch := decode.ChannelID(id)
		switch {
		case ch >= 24 && ch <= 27:
			if i+4 > len(data) {
				p.aborted = true
				return
			}
			raw := decode.U32(data[i : i+4])
			in.onTransmit(raw)
			i += 4
		case ch >= 1 && ch <= 20:
			if i+3 > len(data) {
				p.aborted = true
				return
			}
			raw := decode.U24(data[i : i+3])
			in.onReturn(raw, ch)
			i += 3
		case ch == 28:
			if p.currentShot != nil {
				p.currentShot.Truncated = true
			}
			p.truncated = true
			in.packets.IncWarning()
			i += 3
		default:
			in.packets.IncPktErr()
			i++
		}
	}
}

func (in *Integrator) onTransmit(raw uint32) {
	p := in.cur
	tf := decode.DecodeTransmitTag(raw)

	if p.currentShot != nil {
		p.shots = append(p.shots, p.currentShot)
	}
	if len(p.shots) >= MaxNumShots {
		in.packets.IncPktErr()
	}

	txTime := float64(tf.LeadingCoarse)*p.trueRulerClkPeriod - float64(tf.LeadingFine)*p.cvr
	p.currentShot = &Shot{
		Transmit: TransmitPulse{
			Raw:           raw,
			Width:         tf.Width,
			TrailingFine:  tf.TrailingFine,
			LeadingCoarse: tf.LeadingCoarse,
			LeadingFine:   tf.LeadingFine,
			TimeNs:        txTime,
		},
		ShotIndex: len(p.shots),
	}
	p.prevTagRaw = 0
}

func (in *Integrator) onReturn(raw uint32, ch int) {
	p := in.cur
	rf := decode.DecodeReturnTag(raw)

	if rf.Fine >= 75 {
		in.packets.IncFmtErr()
		p.aborted = true
		return
	}
	if p.currentShot == nil {
		in.packets.IncFmtErr()
		return
	}

	spot := SpotStrong
	if ch > 16 {
		spot = SpotWeak
	}
	edge := EdgeFalling
	if rf.Rising {
		edge = EdgeRising
	}

	if !in.cfg.ChannelDisable[ch] {
		p.histograms[spot].ChannelCounts[ch]++
	}

	in.checkStuckTag(raw)

	tag := &Tag{
		Raw:     raw,
		Edge:    edge,
		Coarse:  rf.Coarse,
		Fine:    rf.Fine,
		Channel: ch,
	}

	// Band selection (§4.4.2 Phase C "Band selection").
	dlbIdx, ok := in.selectBand(rf.BandLow, ch)
	if !ok {
		in.packets.IncDlbErr()
		return
	}
	dlb := p.dlbs[dlbIdx]
	if rf.Coarse > int(dlb.Width) {
		in.packets.IncTagErr()
		return
	}
	tag.Band = dlbIdx

	// Fine-time calibration selection.
	in.channels.Lock()
	var avgCal float64
	if edge == EdgeRising {
		avgCal = in.channels.RisingAvgCal[ch]
	} else {
		avgCal = in.channels.FallingAvgCal[ch]
	}
	channelBias := in.channels.Bias[ch]
	in.channels.Unlock()

	calVal := p.cvf
	if edge == EdgeRising {
		calVal = p.cvr
	}
	if avgCal >= MinFineTimeCal && avgCal <= MaxFineTimeCal {
		calVal = avgCal
	}
	tag.CalValue = calVal

	// Range computation (§4.4.2 Phase C "Range computation").
	coarseTime := (float64(dlb.Start) + float64(rf.Coarse)) * p.trueRulerClkPeriod
	rangeNs := coarseTime - float64(rf.Fine)*calVal + p.rws[spot]*(10.0/p.trueRulerClkPeriod) - channelBias + float64(p.currentShot.Transmit.LeadingFine)*p.cvr
	tag.RangeNs = rangeNs
	tag.RangeOK = true

	if in.cfg.Correction == CorrectionLoopback {
		rangeNs, tag.RangeOK = in.applyLoopbackCorrection(rangeNs, p.currentShot)
		tag.RangeNs = rangeNs
	}

	// Dead-time duplicate chain test (§4.4.2, invariant 6, S2).
	retained := p.currentShot.Returns[edgeIdx(edge)][ch]
	in.checkDeadTimeDuplicate(tag, retained, edge, ch)

	// Opposite-edge dead-time stats.
	in.updateOppositeEdgeDeadTime(tag, p.currentShot, edge, ch)

	if (!tag.Duplicate || !in.cfg.RemoveDuplicates) && !in.cfg.ChannelDisable[ch] {
		in.channels.Lock()
		in.channels.AddRxCount(ch, 1)
		in.channels.Unlock()

		if tag.RangeOK {
			bin := in.binOf(tag.RangeNs, p.rws[spot], spot)
			p.histograms[spot].IncBin(bin)
		}
		p.currentShot.Returns[edgeIdx(edge)][ch] = append(retained, tag)
		if len(p.currentShot.Returns[edgeIdx(edge)][ch]) > MaxRxPerShot {
			log.Printf("atlastt: pce %d: channel %d exceeds MAX_RX_PER_SHOT, reusing last slot", in.pce, ch)
			s := p.currentShot.Returns[edgeIdx(edge)][ch]
			s[len(s)-1] = tag
		}
	}

	p.currentShot.Transmit.ReturnCount++
}

func edgeIdx(e Edge) int {
	if e == EdgeRising {
		return 1
	}
	return 0
}

// checkStuckTag implements the exact-raw-equality prevtag/prevtag_sticky
// diagnostic (§4.4.2 "Duplicate detection against prevtag").
func (in *Integrator) checkStuckTag(raw uint32) {
	p := in.cur
	if raw == p.prevTagRaw || raw == p.prevTagStickyRaw {
		if p.histograms[SpotStrong].MajorFrame != nil && p.histograms[SpotStrong].MajorFrame.StrongPathError {
			in.packets.IncWarning()
		} else {
			in.packets.IncTagErr()
		}
	}
	p.prevTagRaw = raw
	p.prevTagStickyRaw = raw
}

// selectBand implements §4.4.2's band-selection rule: exactly one of the two
// candidate DLBs (indices b and 2+b) must admit the channel.
func (in *Integrator) selectBand(bandLow, ch int) (int, bool) {
	p := in.cur
	candidates := []int{bandLow, 2 + bandLow}
	matched := -1
	for _, idx := range candidates {
		if idx < 0 || idx >= len(p.dlbs) {
			continue
		}
		if p.dlbs[idx].Enabled(ch) {
			if matched != -1 {
				return 0, false // ambiguous
			}
			matched = idx
		}
	}
	if matched == -1 {
		return 0, false
	}
	return matched, true
}

// applyLoopbackCorrection implements §4.4.2's transmit-delay lookahead
// correction; see S5.
func (in *Integrator) applyLoopbackCorrection(rangeNs float64, shot *Shot) (float64, bool) {
	p := in.cur
	period := 10000.0 * p.trueRulerClkPeriod

	rangeFromTx := normalizeHalfPeriod(math.Mod(rangeNs, period), period)
	if math.Abs(rangeFromTx-in.cfg.LoopbackLocation) >= in.cfg.LoopbackWidth {
		return rangeNs, true
	}

	lookahead := int(math.Ceil(rangeNs / period))
	targetIdx := shot.ShotIndex + lookahead // ShotIndex is 0-based, matching txLoopbackArray
	if targetIdx < 0 || targetIdx >= len(p.txLoopbackArray) {
		return rangeNs, false
	}

	correction := shot.Transmit.TimeNs - p.txLoopbackArray[targetIdx]
	corrected := rangeNs - correction
	correctedFromTx := normalizeHalfPeriod(math.Mod(corrected, period), period)
	if math.Abs(correctedFromTx-in.cfg.LoopbackLocation) < in.cfg.LoopbackWidth {
		return corrected, true
	}
	return rangeNs, false
}

func normalizeHalfPeriod(v, period float64) float64 {
	if v > period/2 {
		return v - period
	}
	if v < -period/2 {
		return v + period
	}
	return v
}

// binOf implements §4.4.2's three binning modes.
func (in *Integrator) binOf(rangeNs, rws float64, spot Spot) int {
	binSize := in.cfg.TimeTagBinSize
	if in.cfg.FullColumnIntegration {
		bin := int(rangeNs*tenMeterPerNs/binSize) % MaxHistSize
		if bin < 0 {
			bin += MaxHistSize
		}
		return bin
	}
	p := in.cur
	if binSize >= defaultTimeTagBinSize {
		rwsAdj := rws * 10.0 / p.trueRulerClkPeriod
		return int((rangeNs - rwsAdj) * tenMeterPerNs / binSize)
	}
	return int((rangeNs - (rws + in.cfg.TimeTagZoomOffset)) * tenMeterPerNs / binSize)
}

// checkDeadTimeDuplicate implements invariant 6 / S2: adjacent-coarse
// same-channel, same-edge chain span test.
func (in *Integrator) checkDeadTimeDuplicate(tag *Tag, retained []*Tag, edge Edge, ch int) {
	p := in.cur
	for _, rx := range retained {
		deltaCoarse := tag.Coarse - rx.Coarse
		if deltaCoarse != 1 && deltaCoarse != -1 {
			continue
		}
		chainSpan := float64(deltaCoarse) * float64(tag.Fine-rx.Fine)
		if math.Abs(chainSpan*tag.CalValue) >= p.trueRulerClkPeriod-DetectorDeadTimeNs {
			tag.Duplicate = true
			if chainSpan != 0 {
				derivedCal := p.trueRulerClkPeriod / math.Abs(chainSpan)
				in.channels.Lock()
				in.channels.UpdateCalibration(ch, edge, derivedCal, 1)
				in.channels.Unlock()
			}
			return
		}
	}
}

// updateOppositeEdgeDeadTime folds the minimum |Δrange| to any opposite-edge
// return on the same channel into the channel's dead-time floor (§4.4.2
// "Dead-time stats (opposite edge)").
func (in *Integrator) updateOppositeEdgeDeadTime(tag *Tag, shot *Shot, edge Edge, ch int) {
	opposite := EdgeFalling
	if edge == EdgeFalling {
		opposite = EdgeRising
	}
	for _, rx := range shot.Returns[edgeIdx(opposite)][ch] {
		d := math.Abs(tag.RangeNs - rx.RangeNs)
		in.channels.Lock()
		in.channels.UpdateDeadTimeMin(ch, d)
		in.channels.Unlock()
	}
}

// finishPeriod implements §4.4.3's post-period reductions and §4.4.4's
// IN_PERIOD -> EMIT transition.
func (in *Integrator) finishPeriod() {
	p := in.cur
	if p == nil {
		return
	}
	if p.currentShot != nil {
		p.shots = append(p.shots, p.currentShot)
		p.currentShot = nil
	}

	for s := 0; s < 2; s++ {
		in.reduceSpot(p, Spot(s))
	}

	in.packets.Lock()
	in.packets.UpdateSumTags(sumShotTags(p.shots))
	in.packets.Unlock()
	snap := in.packets.Snapshot()
	for s := 0; s < 2; s++ {
		h := p.histograms[s]
		h.PktStats = snap
		h.SetPktErrors(int(snap.MfcErr + snap.HdrErr + snap.FmtErr + snap.DlbErr + snap.TagErr + snap.PktErr))
		in.tryEmit(h)
	}

	in.cur = nil
	in.state = stateIdle
}

func sumShotTags(shots []*Shot) float64 {
	sum := 0.0
	for _, sh := range shots {
		sum += float64(len(sh.AllReturns()))
	}
	return sum
}

// reduceSpot implements the per-spot post-period reductions: transmit
// stats, calcAttributes, TEP energy, slip detection, granule histogram
// (§4.4.3).
func (in *Integrator) reduceSpot(p *period, spot Spot) {
	h := p.histograms[spot]

	ts := in.transmit[spot]
	ts.Lock()
	var prevCoarse int
	havePrev := false
	for _, sh := range p.shots {
		retCount := 0
		for ch := 1; ch <= NumChannels; ch++ {
			if channelSpot(ch) != spot {
				continue
			}
			retCount += len(sh.Returns[0][ch]) + len(sh.Returns[1][ch])
		}
		ts.UpdateReturnCount(retCount, sh.Truncated)
		if havePrev {
			ts.UpdateDeltaTime(shotDeltaTimeNs(prevCoarse, sh.Transmit.LeadingCoarse, p.trueRulerClkPeriod))
		}
		prevCoarse = sh.Transmit.LeadingCoarse
		havePrev = true
	}
	ts.Unlock()

	h.CalcAttributes(in.cfg.SignalWidth, p.trueRulerClkPeriod)

	numShots := len(p.shots)
	if numShots > 0 {
		tepSum := h.GetSumRange(h.IgnoreStartBin, h.IgnoreStopBin-1)
		tepEnergy := (float64(tepSum) - float64(h.IgnoreStopBin-h.IgnoreStartBin)*h.NoiseBin) / float64(numShots)
		h.SetTepEnergy(tepEnergy)
	}

	in.signal[spot].Lock()
	in.signal[spot].Update(h)
	in.signal[spot].Unlock()

	in.updateSlipAndGranule(p, spot, h)

	in.updateChannelBias(p, spot, h)

	in.channels.Lock()
	for ch := 1; ch <= NumChannels; ch++ {
		if channelSpot(ch) != spot {
			continue
		}
		in.channels.UpdateTdcCal(ch, p.cvr, p.cvf, int64(numShots))
	}
	in.channels.Unlock()
}

// updateChannelBias implements §4.4.3 "accumulate bias (from
// histogram-derived per-channel bias extractor, exposed by C1)": for each
// channel, collect this period's retained return ranges that fall inside
// the histogram's just-computed signal window, hand them to
// Histogram.SetChannelBias, and fold any derived bias into the running
// per-channel average (§4.4.3 "Channel stats update").
func (in *Integrator) updateChannelBias(p *period, spot Spot, h *Histogram) {
	var inWindow [NumChannels + 1][]float64
	for _, sh := range p.shots {
		for _, tag := range sh.AllReturns() {
			if !tag.RangeOK || channelSpot(tag.Channel) != spot {
				continue
			}
			bin := in.binOf(tag.RangeNs, p.rws[spot], spot)
			if bin < h.BeginSigBin || bin > h.EndSigBin {
				continue
			}
			inWindow[tag.Channel] = append(inWindow[tag.Channel], tag.RangeNs)
		}
	}

	in.channels.Lock()
	for ch := 1; ch <= NumChannels; ch++ {
		if channelSpot(ch) != spot {
			continue
		}
		if bias, ok := h.SetChannelBias(ch, inWindow[ch]); ok {
			in.channels.UpdateBias(ch, bias)
		}
	}
	in.channels.Unlock()
}

func channelSpot(ch int) Spot {
	if ch > 16 {
		return SpotWeak
	}
	return SpotStrong
}

// updateSlipAndGranule implements §4.4.3's slip detection and the shared
// granule histogram update.
func (in *Integrator) updateSlipAndGranule(p *period, spot Spot, h *Histogram) {
	if h.SignalEnergy <= 0.5 {
		return
	}
	for i := 1; i < len(p.shots); i++ {
		deltaTx := p.shots[i].Transmit.TimeNs - p.shots[i-1].Transmit.TimeNs
		if math.Abs(deltaTx) <= 20 {
			continue
		}
		for _, r := range p.shots[i].AllReturns() {
			if channelSpot(r.Channel) != spot {
				continue
			}
			if math.Abs(r.RangeNs-h.SignalRange-deltaTx) < 1.0 {
				in.transmit[spot].IncSlipped()
			}
			in.granule.Add(h.SignalRange, r.RangeNs)
		}
	}
}

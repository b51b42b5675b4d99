package atlastt

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

// MajorFrameSnapshot is the dense diagnostic record produced by the
// major-frame processor from one 116-byte major-frame payload (§3, §6).
type MajorFrameSnapshot struct {
	PCE               PCE
	MajorFrameCounter int64

	OnePPSCount   uint32
	IMETAtOnePPS  uint64 // 48-bit field, widened
	IMETAtFirstT0 uint64 // 48-bit field, widened
	T0Counter     uint16

	BackgroundCounts [8]uint16

	CalibrationValueRising  uint16
	CalibrationValueFalling uint16

	StrongAltimetricRWS  uint32 // 100 MHz ticks, 24-bit field
	StrongAltimetricRWW  uint16
	StrongAtmosphericRWS uint32
	StrongAtmosphericRWW uint16
	WeakAltimetricRWS    uint32
	WeakAltimetricRWW    uint16
	WeakAtmosphericRWS   uint32
	WeakAtmosphericRWW   uint16

	EDACStatusBits uint32
	EDACSingleBitError bool
	EDACDoubleBitError bool
	StrongTDCPathError bool // STTDC
	WeakTDCPathError   bool // WKTDC

	DFCHousekeepingBits uint32
	StrongPathError     bool
	WeakPathError       bool
	TDCFifoFull         bool
	EventTagFifoFull    bool
	StartTagFifoFull    bool
	TDCFifoEmpty        bool
	EventTagFifoEmpty   bool
	StartTagFifoEmpty   bool

	// DFCHousekeepingStatusBits is the OR of StrongPathError, WeakPathError,
	// TDCFifoFull, EventTagFifoFull, StartTagFifoFull - it overrides the raw
	// hardware bitfield after decomposition (§6).
	DFCHousekeepingStatusBits bool

	DFCStatusBits        uint8
	DidNotFinishTransfer bool
	SDRAMMismatch        bool // SDRMERR
	RangeWindowDropout   bool // RWDERR
}

// RangeWindow returns the hardware-reported RWS/RWW for an altimetric or
// atmospheric histogram type; any other type gets (0, 0).
func (s *MajorFrameSnapshot) RangeWindow(typ HistogramType) (rws uint32, rww uint16) {
	switch typ {
	case HistStrongAltimetric:
		return s.StrongAltimetricRWS, s.StrongAltimetricRWW
	case HistStrongAtmospheric:
		return s.StrongAtmosphericRWS, s.StrongAtmosphericRWW
	case HistWeakAltimetric:
		return s.WeakAltimetricRWS, s.WeakAltimetricRWW
	case HistWeakAtmospheric:
		return s.WeakAtmosphericRWS, s.WeakAtmosphericRWW
	default:
		return 0, 0
	}
}

const majorFramePayloadLen = 116

func u24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func u48(b []byte) uint64 {
	var v uint64
	for _, x := range b[:6] {
		v = v<<8 | uint64(x)
	}
	return v
}

// DecodeMajorFrame decodes one 116-byte major-frame payload into a
// MajorFrameSnapshot, at the fixed offsets given in §6. Offsets not named in
// the table (e.g. the gap between T0Counter and MajorFrameCount, and between
// the background counts and the calibration values) are reserved/unused in
// this core and skipped.
func DecodeMajorFrame(pce PCE, payload []byte) (*MajorFrameSnapshot, error) {
	if len(payload) < majorFramePayloadLen {
		return nil, fmt.Errorf("major-frame payload too short: got %d bytes, want %d", len(payload), majorFramePayloadLen)
	}

	s := &MajorFrameSnapshot{PCE: pce}

	s.OnePPSCount = binary.BigEndian.Uint32(payload[12:16])
	s.IMETAtOnePPS = u48(payload[16:22])
	s.IMETAtFirstT0 = u48(payload[22:28])
	s.T0Counter = binary.BigEndian.Uint16(payload[28:30])
	s.MajorFrameCounter = int64(binary.BigEndian.Uint32(payload[30:34]))

	for i := 0; i < 8; i++ {
		off := 34 + i*2
		s.BackgroundCounts[i] = binary.BigEndian.Uint16(payload[off : off+2])
	}

	s.CalibrationValueRising = binary.BigEndian.Uint16(payload[50:52])
	s.CalibrationValueFalling = binary.BigEndian.Uint16(payload[52:54])

	s.StrongAltimetricRWS = u24(payload[76:79])
	s.StrongAltimetricRWW = binary.BigEndian.Uint16(payload[79:81])
	s.StrongAtmosphericRWS = u24(payload[81:84])
	s.StrongAtmosphericRWW = binary.BigEndian.Uint16(payload[84:86])
	s.WeakAltimetricRWS = u24(payload[86:89])
	s.WeakAltimetricRWW = binary.BigEndian.Uint16(payload[89:91])
	s.WeakAtmosphericRWS = u24(payload[91:94])
	s.WeakAtmosphericRWW = binary.BigEndian.Uint16(payload[94:96])

	s.EDACStatusBits = binary.BigEndian.Uint32(payload[102:106])
	s.EDACSingleBitError = s.EDACStatusBits&0x1 != 0
	s.EDACDoubleBitError = s.EDACStatusBits&0x2 != 0
	s.StrongTDCPathError = s.EDACStatusBits&0x4 != 0
	s.WeakTDCPathError = s.EDACStatusBits&0x8 != 0

	s.DFCHousekeepingBits = binary.BigEndian.Uint32(payload[106:110])
	s.StrongPathError = s.DFCHousekeepingBits&0x01 != 0
	s.WeakPathError = s.DFCHousekeepingBits&0x02 != 0
	s.TDCFifoFull = s.DFCHousekeepingBits&0x04 != 0
	s.EventTagFifoFull = s.DFCHousekeepingBits&0x08 != 0
	s.StartTagFifoFull = s.DFCHousekeepingBits&0x10 != 0
	s.TDCFifoEmpty = s.DFCHousekeepingBits&0x20 != 0
	s.EventTagFifoEmpty = s.DFCHousekeepingBits&0x40 != 0
	s.StartTagFifoEmpty = s.DFCHousekeepingBits&0x80 != 0
	s.DFCHousekeepingStatusBits = s.StrongPathError || s.WeakPathError ||
		s.TDCFifoFull || s.EventTagFifoFull || s.StartTagFifoFull

	s.DFCStatusBits = payload[111]
	s.DidNotFinishTransfer = s.DFCStatusBits&0x01 != 0
	s.SDRAMMismatch = s.DFCStatusBits&0x02 != 0
	s.RangeWindowDropout = s.DFCStatusBits&0x04 != 0

	return s, nil
}

// MajorFrameCache is C2: the 256-slot-per-PCE write-through cache keyed by
// (pce, mfc mod 256). One writer per PCE slot (the major-frame processor),
// many readers (integrator goroutines). Per-slot atomic pointers make the
// invariant read-after-verify rather than read-under-lock (§4.3/§5).
type MajorFrameCache struct {
	slots [len(pceOrder)][256]atomic.Pointer[MajorFrameSnapshot]
}

var pceOrder = [3]PCE{PCE1, PCE2, PCE3}

func pceIndex(pce PCE) int {
	switch pce {
	case PCE1:
		return 0
	case PCE2:
		return 1
	case PCE3:
		return 2
	default:
		return -1
	}
}

// NewMajorFrameCache returns an empty cache.
func NewMajorFrameCache() *MajorFrameCache {
	return &MajorFrameCache{}
}

// Put installs snap as the current snapshot for its PCE/slot. Called only by
// the major-frame processor goroutine for that PCE.
func (c *MajorFrameCache) Put(snap *MajorFrameSnapshot) {
	idx := pceIndex(snap.PCE)
	if idx < 0 {
		return
	}
	slot := snap.MajorFrameCounter & 0xff
	c.slots[idx][slot].Store(snap)
}

// Get returns the snapshot slotted for (pce, mfc mod 256) only if its
// embedded MFC equals mfc exactly; otherwise it returns (nil, false) and the
// caller must treat the snapshot as "not associated" (§3, §5).
func (c *MajorFrameCache) Get(pce PCE, mfc int64) (*MajorFrameSnapshot, bool) {
	idx := pceIndex(pce)
	if idx < 0 {
		return nil, false
	}
	slot := mfc & 0xff
	snap := c.slots[idx][slot].Load()
	if snap == nil || snap.MajorFrameCounter != mfc {
		return nil, false
	}
	return snap, true
}

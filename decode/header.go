package decode

import "fmt"

// MaxNumDLBs is the hard cap on downlink bands describable in one start
// header (§4.4.2 Phase B).
const MaxNumDLBs = 4

// DlbRaw is one undecoded downlink-band entry as read from the start
// header: a 24-bit channel-enable mask, start and width in 100 MHz ticks.
type DlbRaw struct {
	Mask  uint32
	Start uint32
	Width uint32
}

// StartHeader is the fixed-offset layout of a time-tag start segment
// (§4.4.2 Phase B). Offsets follow the field order given in the spec: MFC,
// AMET, rising/falling calibration raw values, per-spot RWS/RWW, N_DLB,
// then N_DLB downlink-band entries.
type StartHeader struct {
	MFC              int64
	AMET             uint64
	CalRisingRaw     uint16
	CalFallingRaw    uint16
	StrongRWS        uint32 // 100 MHz ticks
	StrongRWW        uint16
	WeakRWS          uint32
	WeakRWW          uint16
	NumDLBRaw        uint8
	NumDLB           int // raw+1, clamped to MaxNumDLBs
	NumDLBClamped    bool
	DLBs             []DlbRaw
	HeaderLen        int // bytes consumed by the header
}

const (
	offMFC           = 0
	offAMET          = 4
	offCalRising     = 12
	offCalFalling    = 14
	offStrongRWS     = 16
	offWeakRWS       = 21
	offNumDLB        = 26
	offDLBs          = 27
	dlbEntryLen      = 7 // mask(3) + start(2) + width(2)
	minStartHdrBytes = offDLBs
)

// DecodeStartHeader parses a start segment's fixed-offset header. Returns an
// error only if the buffer is too short to hold the fixed prefix; a
// too-large N_DLB is clamped rather than rejected (hdr_error, caller's
// responsibility to count it via NumDLBClamped).
func DecodeStartHeader(data []byte) (StartHeader, error) {
	if len(data) < minStartHdrBytes {
		return StartHeader{}, fmt.Errorf("decode: start header too short: got %d bytes, want >= %d", len(data), minStartHdrBytes)
	}

	h := StartHeader{
		MFC:           int64(U32(data[offMFC : offMFC+4])),
		AMET:          U64(data[offAMET : offAMET+8]),
		CalRisingRaw:  U16(data[offCalRising : offCalRising+2]),
		CalFallingRaw: U16(data[offCalFalling : offCalFalling+2]),
		StrongRWS:     U24(data[offStrongRWS : offStrongRWS+3]),
		StrongRWW:     U16(data[offStrongRWS+3 : offStrongRWS+5]),
		WeakRWS:       U24(data[offWeakRWS : offWeakRWS+3]),
		WeakRWW:       U16(data[offWeakRWS+3 : offWeakRWS+5]),
		NumDLBRaw:     data[offNumDLB],
	}

	n := int(h.NumDLBRaw) + 1
	if n > MaxNumDLBs {
		h.NumDLBClamped = true
		n = MaxNumDLBs
	}
	h.NumDLB = n

	need := offDLBs + n*dlbEntryLen
	if len(data) < need {
		return StartHeader{}, fmt.Errorf("decode: start header truncated: got %d bytes, want >= %d for %d DLBs", len(data), need, n)
	}

	h.DLBs = make([]DlbRaw, n)
	for i := 0; i < n; i++ {
		off := offDLBs + i*dlbEntryLen
		h.DLBs[i] = DlbRaw{
			Mask:  U24(data[off : off+3]),
			Start: U16AsU32(data[off+3 : off+5]),
			Width: U16AsU32(data[off+5 : off+7]),
		}
	}
	h.HeaderLen = need

	return h, nil
}

// U64 reads a big-endian 64-bit unsigned value from the first 8 bytes of b.
func U64(b []byte) uint64 {
	var v uint64
	for _, x := range b[:8] {
		v = v<<8 | uint64(x)
	}
	return v
}

// U16AsU32 reads a big-endian 16-bit value widened to uint32, for fields
// that are conceptually tick counts.
func U16AsU32(b []byte) uint32 {
	return uint32(U16(b))
}

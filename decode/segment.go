// Package decode holds the low-level, stateless pieces of time-tag segment
// decoding: the segment framing abstraction and the bitfield extraction
// helpers used by the integrator. It has no knowledge of integration
// periods, histograms, or statistics - those live in the root package.
package decode

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// SegmentFlag tags one byte buffer in a per-PCE segment stream (§6 "Segment
// input").
type SegmentFlag int

const (
	SegmentStart SegmentFlag = iota
	SegmentContinuation
	SegmentEnd
)

func (f SegmentFlag) String() string {
	switch f {
	case SegmentStart:
		return "start"
	case SegmentContinuation:
		return "continuation"
	case SegmentEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Segment is one reassembled CCSDS segment payload for a single PCE.
type Segment struct {
	Flag SegmentFlag
	Data []byte
}

// Stream caters for a generic reader so that segment sources can come from
// a file on disk, an object store, or an in-memory byte buffer - the
// decoder only ever needs Read and Seek.
type Stream interface {
	Read(p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
}

// GenericStream wraps a raw Stream into an in-memory *bytes.Reader when
// inmem is true (so repeated Seeks don't hit the underlying source), or
// passes it through unchanged otherwise.
func GenericStream(stream Stream, size uint64, inmem bool) (Stream, error) {
	if !inmem {
		return stream, nil
	}
	buffer := make([]byte, size)
	if err := binary.Read(stream, binary.BigEndian, &buffer); err != nil {
		return nil, err
	}
	return bytes.NewReader(buffer), nil
}

// frameHeaderLen is the on-disk framing this module uses to persist/replay a
// segment stream: 1 flag byte + 4-byte big-endian payload length.
const frameHeaderLen = 5

// ReadFrame reads one length-framed segment from r. Returns io.EOF when the
// stream is exhausted at a frame boundary.
func ReadFrame(r Stream) (Segment, error) {
	hdr := make([]byte, frameHeaderLen)
	if _, err := fullRead(r, hdr); err != nil {
		return Segment{}, err
	}
	flag := SegmentFlag(hdr[0])
	n := binary.BigEndian.Uint32(hdr[1:5])
	data := make([]byte, n)
	if _, err := fullRead(r, data); err != nil {
		return Segment{}, fmt.Errorf("short segment frame: %w", err)
	}
	return Segment{Flag: flag, Data: data}, nil
}

// WriteFrame appends one length-framed segment's bytes to buf; the tests use
// it to build segment streams.
func WriteFrame(buf *bytes.Buffer, seg Segment) {
	var hdr [frameHeaderLen]byte
	hdr[0] = byte(seg.Flag)
	binary.BigEndian.PutUint32(hdr[1:5], uint32(len(seg.Data)))
	buf.Write(hdr[:])
	buf.Write(seg.Data)
}

func fullRead(r Stream, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, fmt.Errorf("decode: zero-byte read")
		}
	}
	return total, nil
}

package decode

// ChannelID extracts the 5-bit channel/id field common to every tag shape:
// the top 5 bits of the tag's leading byte (§4.4.2 Phase C step 1).
func ChannelID(leadingByte byte) int {
	return int((leadingByte >> 3) & 0x1F)
}

// TransmitFields holds the bitfields of a decoded 32-bit transmit tag
// (§4.4.2 Phase C step 2).
type TransmitFields struct {
	Width         bool
	TrailingFine  int
	LeadingCoarse int // -1 bias already applied
	LeadingFine   int
}

// DecodeTransmitTag unpacks a 32-bit transmit tag (channels 24..27).
func DecodeTransmitTag(raw uint32) TransmitFields {
	return TransmitFields{
		Width:         (raw>>28)&0x1 != 0,
		TrailingFine:  int((raw >> 21) & 0x7F),
		LeadingCoarse: int((raw>>7)&0x3FFF) - 1,
		LeadingFine:   int(raw & 0x7F),
	}
}

// ReturnFields holds the bitfields of a decoded 24-bit return tag (§4.4.2
// Phase C step 3).
type ReturnFields struct {
	Rising  bool // bit 18: 0=falling, 1=rising
	BandLow int  // bit 17
	Coarse  int  // bits 7..16, -1 bias already applied
	Fine    int  // bits 0..6
}

// DecodeReturnTag unpacks a 24-bit return tag (channels 1..20), widened into
// a uint32 with the tag's 3 bytes in its low 24 bits.
func DecodeReturnTag(raw uint32) ReturnFields {
	return ReturnFields{
		Rising:  (raw>>18)&0x1 != 0,
		BandLow: int((raw >> 17) & 0x1),
		Coarse:  int((raw>>7)&0x3FF) - 1,
		Fine:    int(raw & 0x7F),
	}
}

// U24 reads a big-endian 24-bit unsigned value from the first 3 bytes of b.
func U24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// U32 reads a big-endian 32-bit unsigned value from the first 4 bytes of b.
func U32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// U16 reads a big-endian 16-bit unsigned value from the first 2 bytes of b.
func U16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

// U48 reads a big-endian 48-bit unsigned value from the first 6 bytes of b.
func U48(b []byte) uint64 {
	var v uint64
	for _, x := range b[:6] {
		v = v<<8 | uint64(x)
	}
	return v
}

package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelIDExtractsTop5Bits(t *testing.T) {
	// channel 24 == 0b11000, packed into the top 5 bits of the byte.
	assert.Equal(t, 24, ChannelID(24<<3))
	assert.Equal(t, 1, ChannelID(1<<3))
}

func TestDecodeTransmitTagUnpacksFieldsWithCoarseBias(t *testing.T) {
	var raw uint32
	raw |= 1 << 28       // Width
	raw |= 5 << 21       // TrailingFine
	raw |= 10 << 7        // LeadingCoarse raw (decoded value is raw-1)
	raw |= 3              // LeadingFine

	got := DecodeTransmitTag(raw)
	assert.True(t, got.Width)
	assert.Equal(t, 5, got.TrailingFine)
	assert.Equal(t, 9, got.LeadingCoarse)
	assert.Equal(t, 3, got.LeadingFine)
}

func TestDecodeReturnTagUnpacksFieldsWithCoarseBias(t *testing.T) {
	var raw uint32
	raw |= 1 << 18 // Rising
	raw |= 1 << 17 // BandLow
	raw |= 20 << 7  // Coarse raw (decoded value is raw-1)
	raw |= 42       // Fine

	got := DecodeReturnTag(raw)
	assert.True(t, got.Rising)
	assert.Equal(t, 1, got.BandLow)
	assert.Equal(t, 19, got.Coarse)
	assert.Equal(t, 42, got.Fine)
}

func TestDecodeReturnTagFallingEdge(t *testing.T) {
	got := DecodeReturnTag(0)
	assert.False(t, got.Rising)
}

func TestU16U24U32U48U64BigEndian(t *testing.T) {
	assert.Equal(t, uint16(0x0102), U16([]byte{0x01, 0x02}))
	assert.Equal(t, uint32(0x010203), U24([]byte{0x01, 0x02, 0x03}))
	assert.Equal(t, uint32(0x01020304), U32([]byte{0x01, 0x02, 0x03, 0x04}))
	assert.Equal(t, uint64(0x010203040506), U48([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}))
	assert.Equal(t, uint64(0x0102030405060708), U64([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}))
}

package atlastt

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildMajorFramePayload(mfc uint32) []byte {
	payload := make([]byte, majorFramePayloadLen)
	binary.BigEndian.PutUint32(payload[12:16], 42)        // OnePPSCount
	binary.BigEndian.PutUint32(payload[30:34], mfc)         // MajorFrameCounter
	binary.BigEndian.PutUint16(payload[50:52], 100)         // CalibrationValueRising
	binary.BigEndian.PutUint16(payload[52:54], 110)         // CalibrationValueFalling
	payload[106] = 0
	payload[107] = 0
	payload[108] = 0
	payload[109] = 0x04 // TDCFifoFull bit in DFCHousekeepingBits
	return payload
}

func TestDecodeMajorFrameFieldsAtFixedOffsets(t *testing.T) {
	payload := buildMajorFramePayload(99)

	snap, err := DecodeMajorFrame(PCE2, payload)
	require.NoError(t, err)
	assert.Equal(t, PCE2, snap.PCE)
	assert.Equal(t, int64(99), snap.MajorFrameCounter)
	assert.Equal(t, uint32(42), snap.OnePPSCount)
	assert.Equal(t, uint16(100), snap.CalibrationValueRising)
	assert.Equal(t, uint16(110), snap.CalibrationValueFalling)
	assert.True(t, snap.TDCFifoFull)
	assert.True(t, snap.DFCHousekeepingStatusBits, "TDCFifoFull should OR into the overriding status bit")
}

func TestDecodeMajorFrameRejectsShortPayload(t *testing.T) {
	_, err := DecodeMajorFrame(PCE1, make([]byte, majorFramePayloadLen-1))
	assert.Error(t, err)
}

func TestMajorFrameCachePutGetReadAfterVerify(t *testing.T) {
	cache := NewMajorFrameCache()

	snap, err := DecodeMajorFrame(PCE1, buildMajorFramePayload(500))
	require.NoError(t, err)
	cache.Put(snap)

	got, ok := cache.Get(PCE1, 500)
	require.True(t, ok)
	assert.Same(t, snap, got)

	// Slot 500 mod 256 == 244; a different MFC hashing to the same slot
	// must not pass the read-after-verify check.
	_, ok = cache.Get(PCE1, 500+256)
	assert.False(t, ok, "a stale slot must fail the exact-MFC verification")

	_, ok = cache.Get(PCE2, 500)
	assert.False(t, ok, "a different PCE must never see another PCE's snapshot")
}

func TestMajorFrameCacheMissReturnsFalse(t *testing.T) {
	cache := NewMajorFrameCache()
	_, ok := cache.Get(PCE3, 1)
	assert.False(t, ok)
}

package decode

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentFlagString(t *testing.T) {
	assert.Equal(t, "start", SegmentStart.String())
	assert.Equal(t, "continuation", SegmentContinuation.String())
	assert.Equal(t, "end", SegmentEnd.String())
	assert.Equal(t, "unknown", SegmentFlag(99).String())
}

func TestWriteFrameThenReadFrameRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	WriteFrame(&buf, Segment{Flag: SegmentStart, Data: []byte{1, 2, 3}})
	WriteFrame(&buf, Segment{Flag: SegmentEnd, Data: []byte{4, 5}})

	r := bytes.NewReader(buf.Bytes())

	first, err := ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, SegmentStart, first.Flag)
	assert.Equal(t, []byte{1, 2, 3}, first.Data)

	second, err := ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, SegmentEnd, second.Flag)
	assert.Equal(t, []byte{4, 5}, second.Data)

	_, err = ReadFrame(r)
	assert.True(t, errors.Is(err, io.EOF), "stream exhausted at a frame boundary must surface io.EOF")
}

func TestReadFrameShortFrameIsAnError(t *testing.T) {
	var buf bytes.Buffer
	WriteFrame(&buf, Segment{Flag: SegmentStart, Data: []byte{1, 2, 3, 4}})
	truncated := buf.Bytes()[:len(buf.Bytes())-2] // drop the last 2 payload bytes

	_, err := ReadFrame(bytes.NewReader(truncated))
	assert.Error(t, err)
}

func TestGenericStreamPassthroughWhenNotInMemory(t *testing.T) {
	r := bytes.NewReader([]byte{1, 2, 3})
	s, err := GenericStream(r, 3, false)
	require.NoError(t, err)
	assert.Same(t, Stream(r), s)
}

func TestGenericStreamBuffersWhenInMemory(t *testing.T) {
	r := bytes.NewReader([]byte{1, 2, 3, 4})
	s, err := GenericStream(r, 4, true)
	require.NoError(t, err)

	got := make([]byte, 4)
	n, err := s.Read(got)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
}

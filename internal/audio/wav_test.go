package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWAVHeader(t *testing.T) {
	pcm := make([]byte, 8820)
	out, err := EncodeWAV(pcm, 22050, 1)
	require.NoError(t, err)

	assert.Len(t, out, 8864)
	assert.Equal(t, "RIFF", string(out[0:4]))
	// RIFF size counts everything after the first 8 bytes: 36 + len(pcm).
	assert.Equal(t, uint32(8856), binary.LittleEndian.Uint32(out[4:8]))
	assert.Equal(t, "WAVE", string(out[8:12]))
	assert.Equal(t, "fmt ", string(out[12:16]))
	assert.Equal(t, uint32(16), binary.LittleEndian.Uint32(out[16:20]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(out[20:22]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(out[22:24]))
	assert.Equal(t, uint32(22050), binary.LittleEndian.Uint32(out[24:28]))
	assert.Equal(t, uint32(44100), binary.LittleEndian.Uint32(out[28:32]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(out[32:34]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(out[34:36]))
	assert.Equal(t, "data", string(out[36:40]))
	assert.Equal(t, uint32(8820), binary.LittleEndian.Uint32(out[40:44]))
}

func TestEncodeWAVCopiesPayload(t *testing.T) {
	pcm := Int16ToBytes([]int16{1, -1, 32767, -32767})
	out, err := EncodeWAV(pcm, 22050, 1)
	require.NoError(t, err)
	assert.Equal(t, pcm, out[HeaderSize:])

	// mutating the source afterwards must not leak into the container
	pcm[0] = 0xFF
	assert.Equal(t, byte(1), out[HeaderSize])
}

func TestEncodeWAVStereoRates(t *testing.T) {
	out, err := EncodeWAV(make([]byte, 4), 48000, 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(192000), binary.LittleEndian.Uint32(out[28:32]))
	assert.Equal(t, uint16(4), binary.LittleEndian.Uint16(out[32:34]))
}

func TestEncodeWAVEmpty(t *testing.T) {
	out, err := EncodeWAV(nil, 22050, 1)
	require.NoError(t, err)
	assert.Len(t, out, HeaderSize)
	assert.Equal(t, uint32(36), binary.LittleEndian.Uint32(out[4:8]))
	assert.Zero(t, binary.LittleEndian.Uint32(out[40:44]))
}

func TestEncodeWAVRejectsInvalidInput(t *testing.T) {
	cases := map[string]struct {
		pcm        []byte
		sampleRate int
		channels   int
	}{
		"odd length":    {pcm: make([]byte, 3), sampleRate: 22050, channels: 1},
		"zero rate":     {pcm: make([]byte, 2), sampleRate: 0, channels: 1},
		"zero channels": {pcm: make([]byte, 2), sampleRate: 22050, channels: 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := EncodeWAV(tc.pcm, tc.sampleRate, tc.channels)
			assert.ErrorIs(t, err, ErrInvalidPCM)
			assert.Nil(t, out)
		})
	}
}

func TestEncodeWAVDeterministic(t *testing.T) {
	pcm := Int16ToBytes([]int16{100, -200, 300, -400, 500})
	first, err := EncodeWAV(pcm, 22050, 1)
	require.NoError(t, err)
	second, err := EncodeWAV(pcm, 22050, 1)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, second))
}

func TestDecodeEncodedContainer(t *testing.T) {
	samples := make([]int16, 2205)
	for i := range samples {
		samples[i] = int16(i*7) - 5000
	}
	out, err := EncodeWAV(Int16ToBytes(samples), 22050, 1)
	require.NoError(t, err)

	info, decoded, err := Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, uint16(FormatPCM), info.Format)
	assert.Equal(t, 22050, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, 16, info.BitDepth)
	assert.Equal(t, len(samples), info.Samples)
	assert.Equal(t, 100*time.Millisecond, info.Duration)
	assert.Equal(t, samples, decoded)
}

func TestInspectRejectsGarbage(t *testing.T) {
	_, err := Inspect(bytes.NewReader([]byte("definitely not a riff container")))
	assert.Error(t, err)
}

// Package audio packs 16-bit PCM and wraps it in RIFF/WAVE containers.
package audio

import (
	"errors"
	"fmt"
)

const (
	// HeaderSize is the size of the canonical PCM WAV header.
	HeaderSize = 44
	// FormatPCM is the WAVE format tag for linear PCM.
	FormatPCM = 1
	// BitsPerSample is the only bit depth this package writes.
	BitsPerSample = 16
	// MIMEType is the content type served for encoded containers.
	MIMEType = "audio/wav"

	bytesPerSample = BitsPerSample / 8
	fmtChunkSize   = 16
)

// ErrInvalidPCM reports a buffer or format that cannot be wrapped.
var ErrInvalidPCM = errors.New("invalid pcm")

// EncodeWAV returns a 44-byte RIFF/WAVE header followed by a verbatim copy of pcm.
// pcm must hold whole 16-bit samples.
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if len(pcm)%bytesPerSample != 0 {
		return nil, fmt.Errorf("%w: odd byte length %d", ErrInvalidPCM, len(pcm))
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidPCM, sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channel count %d", ErrInvalidPCM, channels)
	}

	dataSize := len(pcm)
	blockAlign := channels * bytesPerSample
	byteRate := sampleRate * blockAlign

	out := make([]byte, HeaderSize+dataSize)

	copy(out[0:4], "RIFF")
	putLE32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	putLE32(out[16:20], fmtChunkSize)
	putLE16(out[20:22], FormatPCM)
	putLE16(out[22:24], uint16(channels))
	putLE32(out[24:28], uint32(sampleRate))
	putLE32(out[28:32], uint32(byteRate))
	putLE16(out[32:34], uint16(blockAlign))
	putLE16(out[34:36], BitsPerSample)

	copy(out[36:40], "data")
	putLE32(out[40:44], uint32(dataSize))

	copy(out[HeaderSize:], pcm)
	return out, nil
}

func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

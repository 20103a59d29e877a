package audio

import "math"

// MaxSample is the largest magnitude a generated sample may carry. The
// negative bound is symmetric, so -32768 is never produced.
const MaxSample = math.MaxInt16

// ClampSample rounds v to the nearest integer and clamps it to
// [-MaxSample, MaxSample] before the conversion to int16.
func ClampSample(v float64) int16 {
	r := math.Round(v)
	if r > MaxSample {
		return MaxSample
	}
	if r < -MaxSample {
		return -MaxSample
	}
	return int16(r)
}

// Int16ToBytes packs samples as little-endian 16-bit PCM.
func Int16ToBytes(in []int16) []byte {
	out := make([]byte, len(in)*2)
	for i, s := range in {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

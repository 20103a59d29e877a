package audio

import (
	"math"
	"testing"
)

func TestClampSample(t *testing.T) {
	cases := []struct {
		in   float64
		want int16
	}{
		{0, 0},
		{0.4, 0},
		{0.5, 1},
		{-0.5, -1},
		{9830.1, 9830},
		{32767, 32767},
		{40000, 32767},
		{-32767.4, -32767},
		{-32768, -32767},
		{-1e9, -32767},
	}
	for _, tc := range cases {
		if got := ClampSample(tc.in); got != tc.want {
			t.Errorf("ClampSample(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestInt16ToBytesLittleEndian(t *testing.T) {
	out := Int16ToBytes([]int16{0x0102})
	if len(out) != 2 || out[0] != 0x02 || out[1] != 0x01 {
		t.Fatalf("expected [0x02, 0x01], got %v", out)
	}
}

func TestInt16ToBytesNegativeBounds(t *testing.T) {
	out := Int16ToBytes([]int16{-1, math.MinInt16, math.MaxInt16})
	want := []byte{0xff, 0xff, 0x00, 0x80, 0xff, 0x7f}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("byte %d: expected %#x, got %#x", i, want[i], out[i])
		}
	}
}

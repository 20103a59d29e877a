package audio

import (
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Info describes a decoded container.
type Info struct {
	Format     uint16        `json:"format"`
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	BitDepth   int           `json:"bit_depth"`
	Samples    int           `json:"samples"`
	Duration   time.Duration `json:"duration"`
}

// Decode parses a WAV container and returns its format and 16-bit samples.
func Decode(r io.ReadSeeker) (Info, []int16, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Info{}, nil, errors.New("not a valid wav file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Info{}, nil, fmt.Errorf("read pcm: %w", err)
	}

	info := Info{
		Format:     d.WavAudioFormat,
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}
	samples := intBufferToInt16(buf)
	if info.Channels > 0 {
		info.Samples = len(samples) / info.Channels
	}
	if info.SampleRate > 0 {
		info.Duration = time.Duration(float64(info.Samples) / float64(info.SampleRate) * float64(time.Second))
	}
	return info, samples, nil
}

// Inspect is Decode without the sample payload.
func Inspect(r io.ReadSeeker) (Info, error) {
	info, _, err := Decode(r)
	return info, err
}

func intBufferToInt16(buf *goaudio.IntBuffer) []int16 {
	if buf == nil {
		return nil
	}
	out := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = int16(v)
	}
	return out
}

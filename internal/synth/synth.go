// Package synth generates placeholder speech waveforms as 16-bit mono PCM.
//
// Two modes exist. Basic emits a fixed 440 Hz tone whose length follows the
// text. Enhanced layers a fundamental, two formants, vibrato and a syllable
// envelope chosen from the voice name, plus a small amount of noise.
package synth

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf16"

	"github.com/loqalabs/loqa-tts/internal/audio"
)

// Mode selects the waveform generator.
type Mode int

const (
	Basic Mode = iota
	Enhanced
)

func (m Mode) String() string {
	switch m {
	case Basic:
		return "basic"
	case Enhanced:
		return "enhanced"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts the names returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic":
		return Basic, nil
	case "enhanced":
		return Enhanced, nil
	default:
		return Basic, fmt.Errorf("unknown synthesis mode %q", s)
	}
}

const (
	DefaultSampleRate     = 22050
	DefaultMaxDuration    = 30.0
	DefaultSecondsPerChar = 0.1

	basicToneHz   = 440.0
	basicGain     = 0.3
	enhancedGain  = 0.3
	formant1Gain  = 0.3
	formant2Gain  = 0.2
	formant2Ratio = 1.5
)

// Config holds the timing constants. Zero fields fall back to the defaults.
type Config struct {
	SampleRate     int
	MaxDuration    float64
	SecondsPerChar float64
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	if c.SecondsPerChar <= 0 {
		c.SecondsPerChar = DefaultSecondsPerChar
	}
	return c
}

// Synthesizer is stateless apart from its noise source and may be shared
// when that source is goroutine-safe (RandomNoise is).
type Synthesizer struct {
	cfg   Config
	noise NoiseSource
}

type Option func(*Synthesizer)

// WithNoise replaces the enhanced-mode noise source.
func WithNoise(n NoiseSource) Option {
	return func(s *Synthesizer) {
		if n != nil {
			s.noise = n
		}
	}
}

func New(cfg Config, opts ...Option) *Synthesizer {
	s := &Synthesizer{cfg: cfg.withDefaults(), noise: RandomNoise()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SampleRate returns the output rate in Hz.
func (s *Synthesizer) SampleRate() int { return s.cfg.SampleRate }

// TextLength counts UTF-16 code units, matching what a browser reports as the
// length of the same string.
func TextLength(text string) int {
	n := 0
	for _, r := range text {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// Duration is min(len(text) * secondsPerChar, maxDuration) in seconds.
func (s *Synthesizer) Duration(text string) float64 {
	return math.Min(float64(TextLength(text))*s.cfg.SecondsPerChar, s.cfg.MaxDuration)
}

// SampleCount is round(sampleRate * duration).
func (s *Synthesizer) SampleCount(text string) int {
	return int(math.Round(float64(s.cfg.SampleRate) * s.Duration(text)))
}

// Synthesize dispatches on mode. Basic ignores voiceName.
func (s *Synthesizer) Synthesize(text, voiceName string, mode Mode) []int16 {
	if mode == Enhanced {
		return s.Enhanced(text, voiceName)
	}
	return s.Basic(text)
}

// Basic emits round(32767 * 0.3 * sin(2π·440·i/sampleRate)) per sample.
func (s *Synthesizer) Basic(text string) []int16 {
	n := s.SampleCount(text)
	rate := float64(s.cfg.SampleRate)
	out := make([]int16, n)
	for i := range out {
		out[i] = audio.ClampSample(audio.MaxSample * basicGain * math.Sin(2*math.Pi*basicToneHz*float64(i)/rate))
	}
	return out
}

// Enhanced emits the voice-shaped waveform with injected noise.
func (s *Synthesizer) Enhanced(text, voiceName string) []int16 {
	p := ClassifyVoice(voiceName)
	n := s.SampleCount(text)
	rate := float64(s.cfg.SampleRate)
	out := make([]int16, n)
	for i := range out {
		t := float64(i) / rate
		out[i] = audio.ClampSample((enhancedSignal(p, t) + s.noise.Next()) * audio.MaxSample)
	}
	return out
}

func enhancedSignal(p VoiceParams, t float64) float64 {
	fundamental := math.Sin(2 * math.Pi * p.BaseFreq * t)
	formant1 := math.Sin(2*math.Pi*p.FormantFreq*t) * formant1Gain
	formant2 := math.Sin(2*math.Pi*(p.FormantFreq*formant2Ratio)*t) * formant2Gain
	vibrato := math.Sin(2*math.Pi*p.VibratoRate*t) * p.VibratoDepth
	syllableRate := 2 + math.Sin(t*0.5)*0.5
	amplitude := (math.Sin(2*math.Pi*syllableRate*t)*0.5 + 0.5) * 0.8
	return (fundamental + formant1 + formant2) * (1 + vibrato) * amplitude * enhancedGain
}

package tts

import (
	"context"
	"errors"
	"time"

	"github.com/loqalabs/loqa-tts/internal/synth"
)

// ErrInvalidInput marks requests rejected before any audio is computed.
var ErrInvalidInput = errors.New("invalid input")

// Request contains parameters to synthesize speech.
type Request struct {
	SessionID string
	Text      string
	VoiceID   string
	VoiceName string
	// Mode overrides prefix-based selection when set ("basic" or "enhanced").
	Mode string
}

// Result is a finished container plus the facts needed to serve it.
// WAV may be shared with the cache and must be treated as read-only.
type Result struct {
	RequestID  string
	Mode       synth.Mode
	Voice      VoiceProfile
	SampleRate int
	Channels   int
	Samples    int
	Duration   time.Duration
	WAV        []byte
	Filename   string
	Cached     bool
}

// Generator is the contract for producing audio.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

package tts

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/eventstore"
	"github.com/loqalabs/loqa-tts/internal/synth"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, store *eventstore.Store) *Engine {
	t.Helper()
	cfg := config.Default()
	catalog := NewCatalog(cfg.Voices, cfg.TTS.OnlinePrefix)
	return NewEngine(cfg.TTS, catalog, store, testLogger(), synth.WithNoise(synth.ZeroNoise()))
}

func TestGenerateBasicHi(t *testing.T) {
	e := newTestEngine(t, nil)

	res, err := e.Generate(context.Background(), Request{Text: "Hi", VoiceID: "local-default"})
	require.NoError(t, err)

	assert.Equal(t, synth.Basic, res.Mode)
	assert.Equal(t, 4410, res.Samples)
	assert.Equal(t, 22050, res.SampleRate)
	assert.Equal(t, 1, res.Channels)
	assert.Len(t, res.WAV, 8864)
	assert.Equal(t, "RIFF", string(res.WAV[0:4]))
	assert.Equal(t, uint32(8856), binary.LittleEndian.Uint32(res.WAV[4:8]))
	assert.Equal(t, "WAVE", string(res.WAV[8:12]))
	assert.Equal(t, uint32(8820), binary.LittleEndian.Uint32(res.WAV[40:44]))
	assert.Equal(t, "System Default", res.Voice.DisplayName)
	assert.NotEmpty(t, res.RequestID)
	assert.True(t, strings.HasPrefix(res.Filename, "tts-"))
	assert.True(t, strings.HasSuffix(res.Filename, ".wav"))
	assert.InDelta(t, 0.2, res.Duration.Seconds(), 1e-9)
}

func TestGenerateEnhancedClampsDuration(t *testing.T) {
	e := newTestEngine(t, nil)

	res, err := e.Generate(context.Background(), Request{Text: strings.Repeat("a", 500), VoiceID: "online-oliver"})
	require.NoError(t, err)
	assert.Equal(t, synth.Enhanced, res.Mode)
	assert.Equal(t, 661500, res.Samples)
	assert.Len(t, res.WAV, 44+2*661500)
	assert.Equal(t, uint32(36+2*661500), binary.LittleEndian.Uint32(res.WAV[4:8]))
	assert.Equal(t, uint32(2*661500), binary.LittleEndian.Uint32(res.WAV[40:44]))
}

func TestGenerateValidation(t *testing.T) {
	e := newTestEngine(t, nil)

	cases := []Request{
		{Text: "", VoiceID: "local-default"},
		{Text: "hello", VoiceID: ""},
		{Text: strings.Repeat("a", 10001), VoiceID: "local-default"},
	}
	for _, req := range cases {
		_, err := e.Generate(context.Background(), req)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidInput), "got %v", err)
	}
}

func TestGenerateModeSelection(t *testing.T) {
	e := newTestEngine(t, nil)

	assert.Equal(t, synth.Basic, e.ModeFor("local-default"))
	assert.Equal(t, synth.Basic, e.ModeFor("custom"))
	assert.Equal(t, synth.Enhanced, e.ModeFor("online-emma"))
	assert.Equal(t, synth.Enhanced, e.ModeFor("online-unknown"))

	res, err := e.Generate(context.Background(), Request{Text: "Hello", VoiceID: "online-james"})
	require.NoError(t, err)
	assert.Equal(t, synth.Enhanced, res.Mode)
	assert.Equal(t, "James (Online)", res.Voice.DisplayName)
	assert.Equal(t, SourceOnline, res.Voice.Source)
}

func TestGenerateModeOverride(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	res, err := e.Generate(ctx, Request{Text: "Hello", VoiceID: "local-default", Mode: "enhanced"})
	require.NoError(t, err)
	assert.Equal(t, synth.Enhanced, res.Mode)

	res, err = e.Generate(ctx, Request{Text: "Hello", VoiceID: "online-emma", Mode: "Basic"})
	require.NoError(t, err)
	assert.Equal(t, synth.Basic, res.Mode)
	assert.Equal(t, 1, e.CacheEntries())

	_, err = e.Generate(ctx, Request{Text: "Hello", VoiceID: "local-default", Mode: "whisper"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestGenerateCallerNameWins(t *testing.T) {
	e := newTestEngine(t, nil)

	res, err := e.Generate(context.Background(), Request{Text: "Hello", VoiceID: "online-emma", VoiceName: "Deep Male"})
	require.NoError(t, err)
	assert.Equal(t, "Deep Male", res.Voice.DisplayName)
}

func TestGenerateCachesBasicOnly(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	first, err := e.Generate(ctx, Request{Text: "abc", VoiceID: "local-default"})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	// Same length, different text: basic output is identical.
	second, err := e.Generate(ctx, Request{Text: "xyz", VoiceID: "local-default"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.WAV, second.WAV)
	assert.NotEqual(t, first.RequestID, second.RequestID)

	for i := 0; i < 2; i++ {
		res, err := e.Generate(ctx, Request{Text: "abc", VoiceID: "online-ava"})
		require.NoError(t, err)
		assert.False(t, res.Cached)
	}
	assert.Equal(t, 1, e.CacheEntries())
}

func TestGenerateCancelled(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Generate(ctx, Request{Text: "Hi", VoiceID: "local-default"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestGenerateRecordsHistory(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default().EventStore
	cfg.Path = filepath.Join(t.TempDir(), "history.db")
	store, err := eventstore.Open(ctx, cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	e := newTestEngine(t, store)
	res, err := e.Generate(ctx, Request{SessionID: "sess-1", Text: "Hi", VoiceID: "local-default"})
	require.NoError(t, err)

	events, err := store.ListRecent(ctx, EventGenerateComplete, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "sess-1", events[0].SessionID)
	assert.Equal(t, res.RequestID, events[0].TraceID)
	assert.Equal(t, "internal", events[0].Privacy)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "basic", payload["mode"])
	assert.EqualValues(t, 2, payload["text_length"])
	assert.EqualValues(t, 8864, payload["bytes"])
}

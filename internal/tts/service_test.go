package tts

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-tts/internal/bus"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/natsserver"
	"github.com/loqalabs/loqa-tts/internal/protocol"
)

func startBus(t *testing.T) *bus.Client {
	t.Helper()
	busCfg := config.BusConfig{
		Enabled:  true,
		Embedded: true,
		Port:     server.RANDOM_PORT,
		StoreDir: t.TempDir(),
	}
	srv, err := natsserver.Start(busCfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	busCfg.Servers = []string{srv.ClientURL()}
	client, err := bus.Connect(context.Background(), "tts-test", busCfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func startService(t *testing.T, client *bus.Client) *Service {
	t.Helper()
	cfg := config.Default()
	svc := NewService(context.Background(), cfg.TTS, client, newTestEngine(t, nil), testLogger())
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Close)
	return svc
}

func TestServiceRequestReply(t *testing.T) {
	client := startBus(t)
	svc := startService(t, client)
	assert.True(t, svc.Healthy())

	done := make(chan *nats.Msg, 1)
	sub, err := client.Conn().ChanSubscribe(protocol.SubjectTTSDone, done)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	data, err := json.Marshal(protocol.TTSRequest{SessionID: "s1", Text: "Hi", VoiceID: "local-default"})
	require.NoError(t, err)
	msg, err := client.Conn().Request(protocol.SubjectTTSRequest, data, 5*time.Second)
	require.NoError(t, err)

	var audio protocol.TTSAudio
	require.NoError(t, json.Unmarshal(msg.Data, &audio))
	assert.Equal(t, "s1", audio.SessionID)
	assert.Equal(t, "basic", audio.Mode)
	assert.Equal(t, 22050, audio.SampleRate)
	assert.Equal(t, 1, audio.Channels)
	assert.True(t, audio.Final)
	assert.Len(t, audio.WAV, 8864)

	select {
	case m := <-done:
		var status protocol.TTSStatus
		require.NoError(t, json.Unmarshal(m.Data, &status))
		assert.True(t, status.Completed)
		assert.Equal(t, audio.RequestID, status.RequestID)
		assert.Empty(t, status.Error)
	case <-time.After(5 * time.Second):
		t.Fatal("no completion status published")
	}
}

func TestServicePublishesWithoutReply(t *testing.T) {
	client := startBus(t)
	startService(t, client)

	audioCh := make(chan *nats.Msg, 1)
	sub, err := client.Conn().ChanSubscribe(protocol.SubjectTTSAudio, audioCh)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, client.Conn().Flush())

	data, err := json.Marshal(protocol.TTSRequest{SessionID: "s2", Text: "Hello", VoiceID: "online-emma"})
	require.NoError(t, err)
	require.NoError(t, client.Conn().Publish(protocol.SubjectTTSRequest, data))

	select {
	case m := <-audioCh:
		var audio protocol.TTSAudio
		require.NoError(t, json.Unmarshal(m.Data, &audio))
		assert.Equal(t, "enhanced", audio.Mode)
		assert.Len(t, audio.WAV, 44+2*11025)
	case <-time.After(5 * time.Second):
		t.Fatal("no audio published")
	}
}

func TestServiceReportsFailure(t *testing.T) {
	client := startBus(t)
	startService(t, client)

	data, err := json.Marshal(protocol.TTSRequest{SessionID: "s3", VoiceID: "local-default"})
	require.NoError(t, err)
	msg, err := client.Conn().Request(protocol.SubjectTTSRequest, data, 5*time.Second)
	require.NoError(t, err)

	var status protocol.TTSStatus
	require.NoError(t, json.Unmarshal(msg.Data, &status))
	assert.False(t, status.Completed)
	assert.Equal(t, "s3", status.SessionID)
	assert.Contains(t, status.Error, "text is required")
}

func TestServiceDisabled(t *testing.T) {
	cfg := config.Default().TTS
	cfg.Enabled = false
	svc := NewService(context.Background(), cfg, nil, nil, testLogger())
	require.NoError(t, svc.Start())
	assert.True(t, svc.Healthy())
	svc.Close()
}

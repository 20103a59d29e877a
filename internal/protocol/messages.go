package protocol

import "time"

// TTSRequest asks the runtime to generate audio for text.
type TTSRequest struct {
	SessionID string `json:"session_id"`
	Target    string `json:"target,omitempty"`
	Text      string `json:"text"`
	VoiceID   string `json:"voice_id"`
	VoiceName string `json:"voice_name,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

// TTSAudio carries a complete WAV container. Audio is never split across messages.
type TTSAudio struct {
	SessionID  string `json:"session_id"`
	Target     string `json:"target,omitempty"`
	RequestID  string `json:"request_id"`
	Mode       string `json:"mode"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	WAV        []byte `json:"wav"`
	Final      bool   `json:"final"`
}

// TTSStatus reports completion or failure of a request.
type TTSStatus struct {
	SessionID string    `json:"session_id"`
	Target    string    `json:"target,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Completed bool      `json:"completed"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectTTSRequest = "tts.request"
	SubjectTTSAudio   = "tts.audio"
	SubjectTTSDone    = "tts.done"
)

// VoiceAdvert describes one voice a node can serve.
type VoiceAdvert struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Mode string `json:"mode"`
}

// NodeAnnouncement advertises a node and its voices to peers.
type NodeAnnouncement struct {
	NodeID     string        `json:"node_id"`
	SampleRate int           `json:"sample_rate"`
	Voices     []VoiceAdvert `json:"voices"`
	Timestamp  time.Time     `json:"timestamp"`
}

// NodeHeartbeat keeps a previously announced node marked healthy.
type NodeHeartbeat struct {
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectNodeAnnounce        = "tts.node.announce"
	SubjectNodeHeartbeatPrefix = "tts.node.heartbeat."
)

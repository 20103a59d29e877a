package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/loqalabs/loqa-tts/internal/audio"
	"github.com/loqalabs/loqa-tts/internal/capability"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/eventstore"
	"github.com/loqalabs/loqa-tts/internal/library"
	"github.com/loqalabs/loqa-tts/internal/tts"
)

const (
	headerRequestID  = "X-Loqa-Request-Id"
	maxHistoryLimit  = 500
	errMissingFields = "Text and voice ID are required"
)

type apiDeps struct {
	cfg     config.HTTPConfig
	gen     tts.Generator
	voices  *tts.Catalog
	library *library.Library
	store   *eventstore.Store
	nodes   *capability.Registry
	ready   func() bool
	logger  *slog.Logger
}

type api struct {
	apiDeps
	limiter *rate.Limiter
}

func newAPI(deps apiDeps) *api {
	a := &api{apiDeps: deps}
	a.logger = deps.logger.With(slog.String("component", "http"))
	if deps.cfg.RateLimitRPS > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(deps.cfg.RateLimitRPS), deps.cfg.RateLimitBurst)
	}
	return a
}

func (a *api) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("GET /readyz", a.handleReady)
	mux.Handle("POST /api/tts", a.limit(http.HandlerFunc(a.handleTTS)))
	mux.Handle("GET /api/voices", a.limit(http.HandlerFunc(a.handleVoices)))
	mux.Handle("GET /api/ebooks", a.limit(http.HandlerFunc(a.handleEbooks)))
	mux.Handle("GET /api/history", a.limit(http.HandlerFunc(a.handleHistory)))
	mux.Handle("GET /api/nodes", a.limit(http.HandlerFunc(a.handleNodes)))
	return mux
}

func (a *api) limit(next http.Handler) http.Handler {
	if a.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "Too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Error string `json:"error"`
}

type dataBody struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type ttsRequestBody struct {
	Text      string `json:"text"`
	VoiceID   string `json:"voiceId"`
	VoiceName string `json:"voiceName"`
}

func (a *api) handleTTS(w http.ResponseWriter, r *http.Request) {
	if a.cfg.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxBodyBytes)
	}
	var body ttsRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "Request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
		return
	}
	if body.Text == "" || body.VoiceID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errMissingFields})
		return
	}

	ctx := r.Context()
	if a.cfg.RequestTimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(a.cfg.RequestTimeoutMS)*time.Millisecond)
		defer cancel()
	}

	res, err := a.gen.Generate(ctx, tts.Request{
		Text:      body.Text,
		VoiceID:   body.VoiceID,
		VoiceName: body.VoiceName,
	})
	if err != nil {
		switch {
		case errors.Is(err, tts.ErrInvalidInput), errors.Is(err, audio.ErrInvalidPCM):
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		default:
			a.logger.Error("speech generation failed", slog.String("error", err.Error()), slog.String("voice_id", body.VoiceID))
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to generate speech: " + err.Error()})
		}
		return
	}

	h := w.Header()
	h.Set("Content-Type", audio.MIMEType)
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	h.Set("Content-Length", strconv.Itoa(len(res.WAV)))
	h.Set(headerRequestID, res.RequestID)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.WAV); err != nil {
		a.logger.Warn("failed to write audio response", slog.String("error", err.Error()))
	}
}

func (a *api) handleVoices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, dataBody{Success: true, Data: a.voices.List()})
}

func (a *api) handleEbooks(w http.ResponseWriter, _ *http.Request) {
	h := w.Header()
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	writeJSON(w, http.StatusOK, dataBody{Success: true, Data: a.library.List()})
}

type historyEntry struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	RequestID string          `json:"request_id,omitempty"`
	VoiceID   string          `json:"voice_id,omitempty"`
	Type      string          `json:"type"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (a *api) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	// A session query returns that session's events oldest first.
	var events []eventstore.Event
	var err error
	if session := r.URL.Query().Get("session"); session != "" {
		events, err = a.store.ListSessionEvents(r.Context(), session, limit)
	} else {
		events, err = a.store.ListRecent(r.Context(), r.URL.Query().Get("type"), limit)
	}
	if err != nil {
		a.logger.Error("failed to list history", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to read history"})
		return
	}
	entries := make([]historyEntry, 0, len(events))
	for _, e := range events {
		entries = append(entries, historyEntry{
			ID:        e.ID,
			SessionID: e.SessionID,
			RequestID: e.TraceID,
			VoiceID:   e.ActorID,
			Type:      e.Type,
			Details:   json.RawMessage(e.Payload),
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, dataBody{Success: true, Data: entries})
}

// handleNodes lists runtimes discovered on the bus; empty when the bus is off.
func (a *api) handleNodes(w http.ResponseWriter, r *http.Request) {
	var filter func(capability.NodeInfo) bool
	if voiceID := r.URL.Query().Get("voice"); voiceID != "" {
		filter = capability.ServesVoice(voiceID)
	}
	nodes := a.nodes.Nodes(filter)
	if nodes == nil {
		nodes = []capability.NodeInfo{}
	}
	writeJSON(w, http.StatusOK, dataBody{Success: true, Data: nodes})
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *api) handleReady(w http.ResponseWriter, _ *http.Request) {
	if a.ready != nil && a.ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

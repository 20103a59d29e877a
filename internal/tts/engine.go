package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-tts/internal/audio"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/eventstore"
	"github.com/loqalabs/loqa-tts/internal/synth"
)

const (
	instrumentationName = "github.com/loqalabs/loqa-tts/tts"

	EventGenerateComplete = "tts.generate.complete"
	EventGenerateError    = "tts.generate.error"
)

// Engine turns requests into WAV containers (validate, synthesize, encode).
// It holds no per-request state and is safe for concurrent use.
type Engine struct {
	cfg    config.TTSConfig
	synth  *synth.Synthesizer
	voices *Catalog
	cache  *Cache
	store  *eventstore.Store
	log    *slog.Logger
	clock  func() time.Time
	tracer trace.Tracer

	requests  metric.Int64Counter
	cacheHits metric.Int64Counter
	latency   metric.Float64Histogram
}

func NewEngine(cfg config.TTSConfig, voices *Catalog, store *eventstore.Store, log *slog.Logger, opts ...synth.Option) *Engine {
	if voices == nil {
		voices = NewCatalog(nil, cfg.OnlinePrefix)
	}
	e := &Engine{
		cfg: cfg,
		synth: synth.New(synth.Config{
			SampleRate:     cfg.SampleRate,
			MaxDuration:    cfg.MaxDurationSeconds,
			SecondsPerChar: cfg.SecondsPerChar,
		}, opts...),
		voices: voices,
		cache:  NewCache(cfg.CacheSize, time.Duration(cfg.CacheTTLSeconds)*time.Second),
		store:  store,
		log:    log.With(slog.String("component", "tts-engine")),
		clock:  time.Now,
		tracer: otel.Tracer(instrumentationName),
	}
	if err := e.initMetrics(); err != nil {
		e.log.Warn("failed to initialize metrics", slogError(err))
	}
	return e
}

func (e *Engine) initMetrics() error {
	meter := otel.Meter(instrumentationName)
	var err error
	if e.requests, err = meter.Int64Counter("loqa.tts.requests",
		metric.WithDescription("Generation requests by mode and outcome")); err != nil {
		return err
	}
	if e.cacheHits, err = meter.Int64Counter("loqa.tts.cache.hits",
		metric.WithDescription("Generations served from the container cache")); err != nil {
		return err
	}
	if e.latency, err = meter.Float64Histogram("loqa.tts.generate.duration",
		metric.WithDescription("Time spent producing a container"), metric.WithUnit("ms")); err != nil {
		return err
	}
	entries, err := meter.Int64ObservableGauge("loqa.tts.cache.entries",
		metric.WithDescription("Containers currently held in the basic-mode cache"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(entries, int64(e.CacheEntries()))
		return nil
	}, entries)
	return err
}

// CacheEntries reports how many basic-mode containers are cached.
func (e *Engine) CacheEntries() int { return e.cache.Len() }

// Voices exposes the catalog the engine resolves names against.
func (e *Engine) Voices() *Catalog { return e.voices }

// ModeFor selects enhanced synthesis for ids carrying the online prefix.
func (e *Engine) ModeFor(voiceID string) synth.Mode {
	if e.cfg.OnlinePrefix != "" && strings.HasPrefix(voiceID, e.cfg.OnlinePrefix) {
		return synth.Enhanced
	}
	return synth.Basic
}

func (e *Engine) resolveMode(req Request) (synth.Mode, error) {
	if req.Mode == "" {
		return e.ModeFor(req.VoiceID), nil
	}
	m, err := synth.ParseMode(req.Mode)
	if err != nil {
		return synth.Basic, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return m, nil
}

func (e *Engine) validate(req Request) error {
	if req.Text == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidInput)
	}
	if req.VoiceID == "" {
		return fmt.Errorf("%w: voice id is required", ErrInvalidInput)
	}
	if e.cfg.MaxTextChars > 0 {
		if n := synth.TextLength(req.Text); n > e.cfg.MaxTextChars {
			return fmt.Errorf("%w: text has %d characters, limit is %d", ErrInvalidInput, n, e.cfg.MaxTextChars)
		}
	}
	return nil
}

// Generate produces a WAV container for req. Cancellation is honoured before
// synthesis starts and checked again once it finishes; the computation itself
// always runs to completion.
func (e *Engine) Generate(ctx context.Context, req Request) (*Result, error) {
	start := e.clock()
	mode, err := e.resolveMode(req)
	if err != nil {
		e.observe(ctx, mode, "invalid", start)
		return nil, err
	}

	if err := e.validate(req); err != nil {
		e.observe(ctx, mode, "invalid", start)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		e.observe(ctx, mode, "cancelled", start)
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "tts.generate", trace.WithAttributes(
		attribute.String("tts.mode", mode.String()),
		attribute.String("tts.voice_id", req.VoiceID),
	))
	defer span.End()

	res := &Result{
		RequestID:  uuid.NewString(),
		Mode:       mode,
		Voice:      e.voices.Resolve(req.VoiceID, req.VoiceName),
		SampleRate: e.synth.SampleRate(),
		Channels:   1,
		Samples:    e.synth.SampleCount(req.Text),
		Filename:   fmt.Sprintf("tts-%d.wav", start.UnixMilli()),
	}
	res.Duration = time.Duration(float64(res.Samples) / float64(res.SampleRate) * float64(time.Second))
	span.SetAttributes(attribute.String("tts.request_id", res.RequestID))

	key := basicKey(res.SampleRate, synth.TextLength(req.Text))
	if mode == synth.Basic {
		if wav, ok := e.cache.Get(key); ok {
			res.WAV = wav
			res.Cached = true
			if e.cacheHits != nil {
				e.cacheHits.Add(ctx, 1)
			}
		}
	}

	if res.WAV == nil {
		samples := e.synth.Synthesize(req.Text, res.Voice.DisplayName, mode)
		wav, err := audio.EncodeWAV(audio.Int16ToBytes(samples), res.SampleRate, res.Channels)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.observe(ctx, mode, "error", start)
			e.record(req, res, EventGenerateError, err)
			return nil, fmt.Errorf("encode container: %w", err)
		}
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			e.observe(ctx, mode, "cancelled", start)
			return nil, err
		}
		res.WAV = wav
		if mode == synth.Basic {
			e.cache.Add(key, wav)
		}
	}

	e.observe(ctx, mode, "ok", start)
	e.record(req, res, EventGenerateComplete, nil)
	e.log.Debug("generated audio",
		slog.String("request_id", res.RequestID),
		slog.String("mode", mode.String()),
		slog.String("voice_id", req.VoiceID),
		slog.Int("samples", res.Samples),
		slog.Bool("cached", res.Cached))
	return res, nil
}

func (e *Engine) observe(ctx context.Context, mode synth.Mode, outcome string, start time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("mode", mode.String()),
		attribute.String("outcome", outcome),
	)
	if e.requests != nil {
		e.requests.Add(ctx, 1, attrs)
	}
	if e.latency != nil {
		e.latency.Record(ctx, float64(e.clock().Sub(start).Microseconds())/1000, attrs)
	}
}

func (e *Engine) record(req Request, res *Result, eventType string, cause error) {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = res.RequestID
	}
	privacy := e.store.Privacy()
	if err := e.store.AppendSession(ctx, sessionID, req.VoiceID, privacy); err != nil {
		e.log.Warn("failed to append session", slogError(err))
		return
	}

	payload := map[string]any{
		"request_id":  res.RequestID,
		"mode":        res.Mode.String(),
		"voice_name":  res.Voice.DisplayName,
		"text_length": synth.TextLength(req.Text),
		"samples":     res.Samples,
		"bytes":       len(res.WAV),
		"cached":      res.Cached,
	}
	if cause != nil {
		payload["error"] = cause.Error()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		e.log.Warn("failed to marshal generation event", slogError(err))
		return
	}
	evt := eventstore.Event{
		SessionID: sessionID,
		TraceID:   res.RequestID,
		ActorID:   req.VoiceID,
		Type:      eventType,
		Payload:   data,
		Privacy:   privacy,
	}
	if err := e.store.AppendEvent(ctx, evt); err != nil {
		e.log.Warn("failed to append generation event", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

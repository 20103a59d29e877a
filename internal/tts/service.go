package tts

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-tts/internal/bus"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service answers generation requests arriving on the bus.
type Service struct {
	cfg    config.TTSConfig
	bus    *bus.Client
	gen    Generator
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewService(parent context.Context, cfg config.TTSConfig, busClient *bus.Client, gen Generator, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:    cfg,
		bus:    busClient,
		gen:    gen,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "tts-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled || s.bus == nil {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectTTSRequest, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("listening for tts requests", slog.String("subject", protocol.SubjectTTSRequest))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.bus == nil || s.sub != nil }

func (s *Service) timeout() time.Duration {
	if s.cfg.TimeoutMS <= 0 {
		return 45 * time.Second
	}
	return time.Duration(s.cfg.TimeoutMS) * time.Millisecond
}

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.TTSRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode tts request", slogError(err))
		s.publishStatus(msg.Reply, protocol.TTSStatus{Error: "malformed request: " + err.Error()})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, s.timeout())
		defer cancel()

		res, err := s.gen.Generate(ctx, Request{
			SessionID: req.SessionID,
			Text:      req.Text,
			VoiceID:   req.VoiceID,
			VoiceName: req.VoiceName,
			Mode:      req.Mode,
		})
		if err != nil {
			s.logger.Warn("tts generation failed", slogError(err), slog.String("session_id", req.SessionID))
			s.publishStatus(msg.Reply, protocol.TTSStatus{
				SessionID: req.SessionID,
				Target:    req.Target,
				Error:     err.Error(),
			})
			return
		}
		s.publishAudio(msg.Reply, req, res)
	}()
}

func (s *Service) publishAudio(reply string, req protocol.TTSRequest, res *Result) {
	packet := protocol.TTSAudio{
		SessionID:  req.SessionID,
		Target:     req.Target,
		RequestID:  res.RequestID,
		Mode:       res.Mode.String(),
		SampleRate: res.SampleRate,
		Channels:   res.Channels,
		WAV:        res.WAV,
		Final:      true,
	}
	data, err := json.Marshal(packet)
	if err != nil {
		s.logger.Warn("failed to marshal tts audio", slogError(err))
		return
	}
	subject := protocol.SubjectTTSAudio
	if reply != "" {
		subject = reply
	}
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish tts audio", slogError(err))
	}

	s.publishStatus("", protocol.TTSStatus{
		SessionID: req.SessionID,
		Target:    req.Target,
		RequestID: res.RequestID,
		Completed: true,
	})
}

// publishStatus always announces on the done subject and, when reply is set,
// answers the requester with the same status.
func (s *Service) publishStatus(reply string, status protocol.TTSStatus) {
	status.Timestamp = time.Now().UTC()
	data, err := json.Marshal(status)
	if err != nil {
		s.logger.Warn("failed to marshal tts status", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectTTSDone, data); err != nil {
		s.logger.Warn("failed to publish tts status", slogError(err))
	}
	if reply != "" {
		_ = s.bus.Conn().Publish(reply, data)
	}
}

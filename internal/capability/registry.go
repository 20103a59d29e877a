// Package capability tracks which runtimes on the bus serve which voices.
package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/loqalabs/loqa-tts/internal/bus"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/protocol"
)

// NodeInfo is the registry's view of one runtime.
type NodeInfo struct {
	ID         string                 `json:"id"`
	SampleRate int                    `json:"sample_rate"`
	Voices     []protocol.VoiceAdvert `json:"voices"`
	LastSeen   time.Time              `json:"last_seen"`
	Healthy    bool                   `json:"healthy"`
}

// Local is what this runtime advertises about itself.
type Local struct {
	SampleRate int
	Voices     []protocol.VoiceAdvert
}

type Registry struct {
	cfg   config.NodeConfig
	local Local
	log   *slog.Logger
	bus   *bus.Client
	clock func() time.Time

	mu     sync.RWMutex
	nodes  map[string]*NodeInfo
	cancel context.CancelFunc
	wg     sync.WaitGroup
	subs   []*nats.Subscription
}

func NewRegistry(ctx context.Context, cfg config.NodeConfig, local Local, busClient *bus.Client, log *slog.Logger) (*Registry, error) {
	ctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		cfg:    cfg,
		local:  local,
		log:    log.With(slog.String("component", "capability-registry")),
		bus:    busClient,
		clock:  time.Now,
		nodes:  make(map[string]*NodeInfo),
		cancel: cancel,
	}

	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	if err := r.subscribe(); err != nil {
		r.Close()
		return nil, err
	}

	r.wg.Add(1)
	go r.run(ctx)

	if err := r.announce(); err != nil {
		r.log.Warn("failed to announce node", slog.String("error", err.Error()))
	}
	return r, nil
}

func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	for _, sub := range r.subs {
		_ = sub.Drain()
	}
	r.wg.Wait()
}

func (r *Registry) subscribe() error {
	conn := r.bus.Conn()
	announceSub, err := conn.Subscribe(protocol.SubjectNodeAnnounce, r.handleAnnounce)
	if err != nil {
		return fmt.Errorf("subscribe announce: %w", err)
	}
	r.subs = append(r.subs, announceSub)

	heartbeatSub, err := conn.Subscribe(protocol.SubjectNodeHeartbeatPrefix+"*", r.handleHeartbeat)
	if err != nil {
		return fmt.Errorf("subscribe heartbeat: %w", err)
	}
	r.subs = append(r.subs, heartbeatSub)
	return nil
}

// run publishes heartbeats and marks silent peers unhealthy.
func (r *Registry) run(ctx context.Context) {
	defer r.wg.Done()
	heartbeat := time.NewTicker(time.Duration(r.cfg.HeartbeatInterval) * time.Millisecond)
	defer heartbeat.Stop()
	health := time.NewTicker(time.Second)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := r.publishHeartbeat(); err != nil {
				r.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
		case <-health.C:
			r.evaluateHealth()
		}
	}
}

func (r *Registry) announce() error {
	msg := protocol.NodeAnnouncement{
		NodeID:     r.cfg.ID,
		SampleRate: r.local.SampleRate,
		Voices:     r.local.Voices,
		Timestamp:  r.clock().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	r.updateNode(msg)
	return r.bus.Conn().Publish(protocol.SubjectNodeAnnounce, payload)
}

func (r *Registry) publishHeartbeat() error {
	payload, err := json.Marshal(protocol.NodeHeartbeat{NodeID: r.cfg.ID, Timestamp: r.clock().UTC()})
	if err != nil {
		return err
	}
	return r.bus.Conn().Publish(protocol.SubjectNodeHeartbeatPrefix+r.cfg.ID, payload)
}

func (r *Registry) handleAnnounce(msg *nats.Msg) {
	var ann protocol.NodeAnnouncement
	if err := json.Unmarshal(msg.Data, &ann); err != nil || ann.NodeID == "" {
		r.log.Warn("invalid announce message")
		return
	}
	if ann.NodeID == r.cfg.ID {
		return
	}
	if ann.Timestamp.IsZero() {
		ann.Timestamp = r.clock().UTC()
	}
	// A peer we have not seen yet needs our announcement too.
	if isNew := r.updateNode(ann); isNew {
		if err := r.announce(); err != nil {
			r.log.Warn("failed to re-announce node", slog.String("error", err.Error()))
		}
	}
}

func (r *Registry) handleHeartbeat(msg *nats.Msg) {
	var hb protocol.NodeHeartbeat
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		r.log.Warn("invalid heartbeat message", slog.String("error", err.Error()))
		return
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = r.clock().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if node, ok := r.nodes[hb.NodeID]; ok {
		node.LastSeen = hb.Timestamp
		node.Healthy = true
	}
}

// updateNode records an announcement and reports whether the node was unknown.
func (r *Registry) updateNode(ann protocol.NodeAnnouncement) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[ann.NodeID]
	if !ok {
		node = &NodeInfo{ID: ann.NodeID}
		r.nodes[ann.NodeID] = node
	}
	node.SampleRate = ann.SampleRate
	node.Voices = append([]protocol.VoiceAdvert(nil), ann.Voices...)
	node.LastSeen = ann.Timestamp
	node.Healthy = true
	return !ok
}

func (r *Registry) evaluateHealth() {
	r.mu.Lock()
	defer r.mu.Unlock()

	timeout := time.Duration(r.cfg.HeartbeatTimeout) * time.Millisecond
	now := r.clock()
	for id, node := range r.nodes {
		if id == r.cfg.ID {
			continue
		}
		if now.Sub(node.LastSeen) > timeout {
			node.Healthy = false
		}
	}
}

func (r *Registry) Healthy() bool {
	if r == nil {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.nodes[r.cfg.ID]
	return ok
}

// Nodes returns a snapshot sorted by node id, filtered when filter is non-nil.
func (r *Registry) Nodes(filter func(NodeInfo) bool) []NodeInfo {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]NodeInfo, 0, len(r.nodes))
	for _, node := range r.nodes {
		n := *node
		n.Voices = append([]protocol.VoiceAdvert(nil), node.Voices...)
		if filter == nil || filter(n) {
			results = append(results, n)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results
}

// ServesVoice matches healthy nodes advertising voiceID.
func ServesVoice(voiceID string) func(NodeInfo) bool {
	return func(node NodeInfo) bool {
		if !node.Healthy {
			return false
		}
		for _, v := range node.Voices {
			if v.ID == voiceID {
				return true
			}
		}
		return false
	}
}

func (r *Registry) initMetrics() error {
	meter := otel.Meter("github.com/loqalabs/loqa-tts/capability")
	nodeGauge, err := meter.Int64ObservableGauge("loqa.tts.nodes", metric.WithDescription("Healthy runtimes known on the bus"))
	if err != nil {
		return err
	}
	voiceGauge, err := meter.Int64ObservableGauge("loqa.tts.voices.advertised", metric.WithDescription("Voices advertised by healthy runtimes"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		nodes, voices := r.snapshotCounts()
		obs.ObserveInt64(nodeGauge, nodes)
		obs.ObserveInt64(voiceGauge, voices)
		return nil
	}, nodeGauge, voiceGauge)
	return err
}

func (r *Registry) snapshotCounts() (nodes, voices int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, node := range r.nodes {
		if !node.Healthy {
			continue
		}
		nodes++
		voices += int64(len(node.Voices))
	}
	return nodes, voices
}

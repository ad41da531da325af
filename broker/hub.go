// Package broker is the realtime relay: conversation rooms, the global presence registry, and
// re-emission of client events to the other live connections. It never touches message storage.
package broker

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"marketplace-chat/config/logger"
	"marketplace-chat/dto"
)

const userRoomPrefix = "user:"

type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[Peer]struct{}
	joined   map[Peer]map[string]struct{}
	global   map[Peer]struct{}
	registry Registry
	metrics  *Metrics
	log      *logger.AppLogger

	onlineMu   sync.Mutex
	lastOnline string
}

func NewHub(registry Registry, metrics *Metrics, log *logger.AppLogger) *Hub {
	if registry == nil {
		registry = NewMemoryRegistry()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		rooms:    make(map[string]map[Peer]struct{}),
		joined:   make(map[Peer]map[string]struct{}),
		global:   make(map[Peer]struct{}),
		registry: registry,
		metrics:  metrics,
		log:      log,
	}
}

func UserRoom(userID string) string {
	return userRoomPrefix + userID
}

func (h *Hub) Connect(p Peer) {
	h.mu.Lock()
	h.joined[p] = make(map[string]struct{})
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Connections.Inc()
	}
	h.log.WS.Info.Info().Str("conn", p.ID()).Str("userId", p.UserID()).Msg("peer connected")
}

// Disconnect drops every membership of the peer and, if it owned the user's presence entry,
// broadcasts the new online set.
func (h *Hub) Disconnect(ctx context.Context, p Peer) {
	h.mu.Lock()
	_, known := h.joined[p]
	for room := range h.joined[p] {
		h.leaveLocked(room, p)
	}
	delete(h.joined, p)
	_, wasGlobal := h.global[p]
	delete(h.global, p)
	h.mu.Unlock()

	if !known {
		return
	}
	if h.metrics != nil {
		h.metrics.Connections.Dec()
	}
	h.log.WS.Info.Info().Str("conn", p.ID()).Str("userId", p.UserID()).Msg("peer disconnected")

	if wasGlobal {
		h.removePresence(ctx, p)
	}
}

// Handle decodes one inbound frame and relays it. Malformed or unauthenticated events are dropped
// silently; there is no error channel back to the sender.
func (h *Hub) Handle(ctx context.Context, p Peer, raw []byte) {
	var env dto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		h.drop("malformed", p, env.Event)
		return
	}

	switch env.Event {
	case dto.EventChatJoin, dto.EventChatLeave:
		var payload dto.RoomPayload
		if !h.decode(p, env, &payload) || payload.ConversationID == "" || !h.owns(p, env.Event, payload.UserID) {
			return
		}
		if env.Event == dto.EventChatJoin {
			h.Join(payload.ConversationID, p)
		} else {
			h.Leave(payload.ConversationID, p)
		}

	case dto.EventMessageNew, dto.EventMessageUpdate:
		var payload dto.Message
		if !h.decode(p, env, &payload) || payload.ChatID == "" || !h.owns(p, env.Event, payload.SenderID) {
			return
		}
		rooms := []string{payload.ChatID}
		if payload.ReceiverID != "" {
			rooms = append(rooms, UserRoom(payload.ReceiverID))
		}
		h.relay(p, env, rooms...)

	case dto.EventMessageDelete:
		var payload dto.DeletePayload
		if !h.decode(p, env, &payload) || payload.ChatID == "" || payload.MessageID == "" {
			return
		}
		if !h.isMember(payload.ChatID, p) {
			h.drop("not_in_room", p, env.Event)
			return
		}
		h.relay(p, env, payload.ChatID)

	case dto.EventMessageSeen:
		var payload dto.SeenPayload
		if !h.decode(p, env, &payload) || payload.ChatID == "" || !h.owns(p, env.Event, payload.UserID) {
			return
		}
		h.relay(p, env, payload.ChatID)

	case dto.EventTyping, dto.EventStopTyping:
		var payload dto.TypingPayload
		if !h.decode(p, env, &payload) || payload.ChatID == "" || !h.owns(p, env.Event, payload.UserID) {
			return
		}
		h.relay(p, env, payload.ChatID)

	case dto.EventUserJoinGlobal:
		var payload dto.GlobalPayload
		if !h.decode(p, env, &payload) || !h.owns(p, env.Event, payload.UserID) {
			return
		}
		h.JoinGlobal(ctx, p)

	case dto.EventUserLeave:
		var payload dto.GlobalPayload
		if !h.decode(p, env, &payload) || !h.owns(p, env.Event, payload.UserID) {
			return
		}
		h.LeaveGlobal(ctx, p)

	default:
		h.drop("unknown_event", p, env.Event)
	}
}

func (h *Hub) Join(room string, p Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(room, p)
	h.log.WS.Trace.Trace().Str("room", room).Str("conn", p.ID()).Int("members", len(h.rooms[room])).Msg("joined room")
}

func (h *Hub) Leave(room string, p Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, p)
}

func (h *Hub) JoinGlobal(ctx context.Context, p Peer) {
	h.mu.Lock()
	h.global[p] = struct{}{}
	h.joinLocked(UserRoom(p.UserID()), p)
	h.mu.Unlock()

	if err := h.registry.Set(ctx, p.UserID(), p.ID()); err != nil {
		h.log.WS.Error.Error().Err(err).Str("userId", p.UserID()).Msg("failed to register presence")
		return
	}
	h.broadcastOnline(ctx)
}

func (h *Hub) LeaveGlobal(ctx context.Context, p Peer) {
	h.mu.Lock()
	_, wasGlobal := h.global[p]
	delete(h.global, p)
	h.leaveLocked(UserRoom(p.UserID()), p)
	h.mu.Unlock()

	if wasGlobal {
		h.removePresence(ctx, p)
	}
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) removePresence(ctx context.Context, p Peer) {
	removed, err := h.registry.Remove(ctx, p.UserID(), p.ID())
	if err != nil {
		h.log.WS.Error.Error().Err(err).Str("userId", p.UserID()).Msg("failed to remove presence")
		return
	}
	if removed {
		h.broadcastOnline(ctx)
	}
}

func (h *Hub) broadcastOnline(ctx context.Context) {
	online, err := h.registry.Online(ctx)
	if err != nil {
		h.log.WS.Error.Error().Err(err).Msg("failed to read presence registry")
		return
	}
	h.rememberOnline(online)
	if h.metrics != nil {
		h.metrics.OnlineUsers.Set(float64(len(online)))
	}
	env, err := dto.NewEnvelope(dto.EventUsersOnline, online)
	if err != nil {
		return
	}

	h.mu.RLock()
	targets := make([]Peer, 0, len(h.global))
	for peer := range h.global {
		targets = append(targets, peer)
	}
	h.mu.RUnlock()

	h.deliver(env, targets)
}

// RunHeartbeat renews the presence entries of every global peer when the registry expires them,
// and rebroadcasts the online set when an entry owned elsewhere has expired. It returns when ctx
// is done, or at once for registries that never expire.
func (h *Hub) RunHeartbeat(ctx context.Context, interval time.Duration) {
	refresher, ok := h.registry.(Refresher)
	if !ok {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.heartbeat(ctx, refresher)
		}
	}
}

func (h *Hub) heartbeat(ctx context.Context, refresher Refresher) {
	h.mu.RLock()
	peers := make([]Peer, 0, len(h.global))
	for peer := range h.global {
		peers = append(peers, peer)
	}
	h.mu.RUnlock()

	for _, peer := range peers {
		if err := refresher.Refresh(ctx, peer.UserID(), peer.ID()); err != nil {
			h.log.WS.Error.Error().Err(err).Str("userId", peer.UserID()).Msg("failed to refresh presence")
		}
	}

	online, err := h.registry.Online(ctx)
	if err != nil {
		h.log.WS.Error.Error().Err(err).Msg("failed to read presence registry")
		return
	}
	h.onlineMu.Lock()
	changed := h.lastOnline != strings.Join(online, ",")
	h.onlineMu.Unlock()
	if changed {
		h.broadcastOnline(ctx)
	}
}

func (h *Hub) rememberOnline(online []string) {
	h.onlineMu.Lock()
	h.lastOnline = strings.Join(online, ",")
	h.onlineMu.Unlock()
}

// relay copies the member list under the read lock and sends after releasing it, so a slow or
// concurrent join/leave never blocks delivery. The origin peer is excluded.
func (h *Hub) relay(origin Peer, env dto.Envelope, rooms ...string) {
	h.mu.RLock()
	seen := make(map[Peer]struct{})
	targets := make([]Peer, 0)
	for _, room := range rooms {
		for peer := range h.rooms[room] {
			if peer == origin {
				continue
			}
			if _, dup := seen[peer]; dup {
				continue
			}
			seen[peer] = struct{}{}
			targets = append(targets, peer)
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	h.deliver(env, targets)
	if h.metrics != nil {
		h.metrics.Relayed.WithLabelValues(env.Event).Inc()
	}
}

func (h *Hub) deliver(env dto.Envelope, targets []Peer) {
	for _, peer := range targets {
		if !peer.Send(env) {
			h.log.WS.Warning.Warn().Str("conn", peer.ID()).Str("event", env.Event).Msg("peer queue full, closing")
			peer.Close()
		}
	}
}

func (h *Hub) decode(p Peer, env dto.Envelope, into any) bool {
	if len(env.Data) == 0 || json.Unmarshal(env.Data, into) != nil {
		h.drop("malformed", p, env.Event)
		return false
	}
	return true
}

func (h *Hub) owns(p Peer, event, userID string) bool {
	if userID == "" || userID != p.UserID() {
		h.drop("identity_mismatch", p, event)
		return false
	}
	return true
}

func (h *Hub) isMember(room string, p Peer) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][p]
	return ok
}

func (h *Hub) drop(reason string, p Peer, event string) {
	if h.metrics != nil {
		h.metrics.Dropped.WithLabelValues(reason).Inc()
	}
	h.log.WS.Warning.Warn().Str("reason", reason).Str("event", event).Str("conn", p.ID()).Msg("event dropped")
}

func (h *Hub) joinLocked(room string, p Peer) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[Peer]struct{})
	}
	h.rooms[room][p] = struct{}{}
	if rooms, ok := h.joined[p]; ok {
		rooms[room] = struct{}{}
	}
}

func (h *Hub) leaveLocked(room string, p Peer) {
	if members, ok := h.rooms[room]; ok {
		delete(members, p)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.joined[p]; ok {
		delete(rooms, room)
	}
}

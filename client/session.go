package client

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"marketplace-chat/apperror"
	"marketplace-chat/dto"
	"marketplace-chat/engine"
	"marketplace-chat/presence"
)

const writeWait = 10 * time.Second

// Session is the realtime connection of one signed-in user. It relays the engine's events and
// the typing emitter's signals, and routes everything it reads back into both.
type Session struct {
	userID   string
	conn     *websocket.Conn
	engine   *engine.Engine
	presence *presence.Coordinator
	log      *logrus.Logger

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once

	listenMu    sync.RWMutex
	listeners   []func(dto.Envelope)
	dispatching atomic.Bool
}

type SessionConfig struct {
	URL    string
	Token  string
	Engine *engine.Engine
	Clock  presence.Clock
	Logger *logrus.Logger
	Dialer *websocket.Dialer
}

// Dial opens the websocket, wires the session into the engine and announces global presence.
func Dial(ctx context.Context, cfg SessionConfig) (*Session, error) {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	target, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, apperror.Validation("invalid websocket url: %v", err)
	}
	query := target.Query()
	query.Set("token", cfg.Token)
	target.RawQuery = query.Encode()

	conn, _, err := dialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return nil, apperror.Transport("dial realtime broker", err)
	}

	s := &Session{
		userID: cfg.Engine.UserID(),
		conn:   conn,
		engine: cfg.Engine,
		log:    log,
		done:   make(chan struct{}),
	}
	s.presence = presence.NewCoordinator(s.userID, s, cfg.Clock, log)
	cfg.Engine.SetRelay(s)
	cfg.Engine.SetTyping(s.presence)

	go s.readLoop()

	if err := s.Emit(dto.EventUserJoinGlobal, dto.GlobalPayload{UserID: s.userID}); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) Presence() *presence.Coordinator { return s.presence }

// Done is closed when the connection is gone.
func (s *Session) Done() <-chan struct{} { return s.done }

// OnEvent registers a listener called for every inbound event after engine and presence applied it.
// Listeners run on the read goroutine and may call Close.
func (s *Session) OnEvent(fn func(dto.Envelope)) {
	s.listenMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenMu.Unlock()
}

func (s *Session) Emit(event string, payload any) error {
	env, err := dto.NewEnvelope(event, payload)
	if err != nil {
		return apperror.Validation("encode %s: %v", event, err)
	}
	select {
	case <-s.done:
		return apperror.Transport("send "+event, websocket.ErrCloseSent)
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(env); err != nil {
		return apperror.Transport("send "+event, err)
	}
	return nil
}

func (s *Session) Join(chatID string) error {
	return s.Emit(dto.EventChatJoin, dto.RoomPayload{ConversationID: chatID, UserID: s.userID})
}

// Leave leaves the room and drops any typing signal for it.
func (s *Session) Leave(chatID string) error {
	s.presence.Typing.Leave(chatID)
	return s.Emit(dto.EventChatLeave, dto.RoomPayload{ConversationID: chatID, UserID: s.userID})
}

func (s *Session) Keystroke(chatID string) {
	s.presence.Typing.Keystroke(chatID)
}

// Close leaves global presence and closes the socket. It waits for the read loop to finish unless a
// listener is being dispatched, since that listener may be the caller.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.presence.Close()
		_ = s.Emit(dto.EventUserLeave, dto.GlobalPayload{UserID: s.userID})
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	if s.dispatching.Load() {
		return
	}
	<-s.done
}

func (s *Session) readLoop() {
	defer close(s.done)
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.WithError(err).Warn("Realtime connection lost")
			}
			return
		}
		var env dto.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.log.WithError(err).Warn("Dropping malformed frame")
			continue
		}
		s.presence.Handle(env)
		s.engine.HandleEvent(env)

		s.listenMu.RLock()
		listeners := s.listeners
		s.listenMu.RUnlock()
		s.dispatching.Store(true)
		for _, fn := range listeners {
			fn(env)
		}
		s.dispatching.Store(false)
	}
}

// Package presence derives the ephemeral signals a client shows next to a conversation:
// who is online and who is typing.
package presence

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"marketplace-chat/dto"
)

const (
	DefaultThrottle = 300 * time.Millisecond
	DefaultIdle     = 1000 * time.Millisecond
)

// Emitter publishes an event on the realtime connection.
type Emitter interface {
	Emit(event string, payload any) error
}

type typingSignal struct {
	limiter *rate.Limiter
	stop    Timer
	active  bool
	gen     uint64
}

// TypingEmitter turns raw keystrokes into throttled typing / stop-typing events, one signal per chat.
type TypingEmitter struct {
	mu       sync.Mutex
	userID   string
	out      Emitter
	clock    Clock
	throttle time.Duration
	idle     time.Duration
	chats    map[string]*typingSignal
	log      *logrus.Logger
}

func NewTypingEmitter(userID string, out Emitter, clock Clock, log *logrus.Logger) *TypingEmitter {
	if clock == nil {
		clock = RealClock()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TypingEmitter{
		userID:   userID,
		out:      out,
		clock:    clock,
		throttle: DefaultThrottle,
		idle:     DefaultIdle,
		chats:    make(map[string]*typingSignal),
		log:      log,
	}
}

func (t *TypingEmitter) signal(chatID string) *typingSignal {
	s, ok := t.chats[chatID]
	if !ok {
		s = &typingSignal{limiter: rate.NewLimiter(rate.Every(t.throttle), 1)}
		t.chats[chatID] = s
	}
	return s
}

// Keystroke records input in chatID. It emits typing at most once per throttle interval and
// (re)schedules stop-typing for idle after this keystroke.
func (t *TypingEmitter) Keystroke(chatID string) {
	t.mu.Lock()
	s := t.signal(chatID)
	emit := s.limiter.AllowN(t.clock.Now(), 1)
	s.active = true
	if s.stop != nil {
		s.stop.Stop()
	}
	s.gen++
	gen := s.gen
	s.stop = t.clock.AfterFunc(t.idle, func() { t.expire(chatID, gen) })
	t.mu.Unlock()

	if emit {
		t.emit(dto.EventTyping, chatID)
	}
}

// Stop ends the signal in chatID right away, emitting stop-typing if one was active.
func (t *TypingEmitter) Stop(chatID string) {
	if t.cancel(chatID, false) {
		t.emit(dto.EventStopTyping, chatID)
	}
}

// Leave is Stop plus forgetting the chat entirely.
func (t *TypingEmitter) Leave(chatID string) {
	if t.cancel(chatID, true) {
		t.emit(dto.EventStopTyping, chatID)
	}
}

// Close cancels every pending timer without emitting anything.
func (t *TypingEmitter) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for chatID, s := range t.chats {
		if s.stop != nil {
			s.stop.Stop()
		}
		delete(t.chats, chatID)
	}
}

// Active reports whether a typing signal is currently up for chatID.
func (t *TypingEmitter) Active(chatID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.chats[chatID]
	return ok && s.active
}

func (t *TypingEmitter) cancel(chatID string, forget bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.chats[chatID]
	if !ok {
		return false
	}
	if s.stop != nil {
		s.stop.Stop()
		s.stop = nil
	}
	s.gen++
	wasActive := s.active
	s.active = false
	// the next keystroke after an explicit stop announces typing immediately
	s.limiter = rate.NewLimiter(rate.Every(t.throttle), 1)
	if forget {
		delete(t.chats, chatID)
	}
	return wasActive
}

func (t *TypingEmitter) expire(chatID string, gen uint64) {
	t.mu.Lock()
	s, ok := t.chats[chatID]
	if !ok || s.gen != gen || !s.active {
		t.mu.Unlock()
		return
	}
	s.active = false
	s.stop = nil
	t.mu.Unlock()

	t.emit(dto.EventStopTyping, chatID)
}

func (t *TypingEmitter) emit(event, chatID string) {
	if t.out == nil {
		return
	}
	if err := t.out.Emit(event, dto.TypingPayload{ChatID: chatID, UserID: t.userID}); err != nil {
		t.log.WithError(err).Warnf("Failed to emit %s for chat %s", event, chatID)
	}
}

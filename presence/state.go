package presence

import (
	"sort"
	"sync"
	"time"
)

// TypingState is the receiving side: which remote users are typing in which chat.
// A signal is a level, so repeated typing events replace rather than accumulate. Each signal
// expires after the idle timeout unless renewed, so a lost stop-typing or a dropped typist
// never leaves the indicator on.
type TypingState struct {
	mu       sync.RWMutex
	clock    Clock
	idle     time.Duration
	chats    map[string]map[string]*remoteSignal
	onExpire func(chatID, userID string)
}

type remoteSignal struct {
	expiry Timer
	gen    uint64
}

func NewTypingState(clock Clock, idle time.Duration) *TypingState {
	if clock == nil {
		clock = RealClock()
	}
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &TypingState{
		clock: clock,
		idle:  idle,
		chats: make(map[string]map[string]*remoteSignal),
	}
}

// OnExpire registers a callback run when a signal times out. It runs on the timer goroutine.
func (s *TypingState) OnExpire(fn func(chatID, userID string)) {
	s.mu.Lock()
	s.onExpire = fn
	s.mu.Unlock()
}

// Start raises the signal or renews its expiry.
func (s *TypingState) Start(chatID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chats[chatID] == nil {
		s.chats[chatID] = make(map[string]*remoteSignal)
	}
	sig, ok := s.chats[chatID][userID]
	if !ok {
		sig = &remoteSignal{}
		s.chats[chatID][userID] = sig
	}
	if sig.expiry != nil {
		sig.expiry.Stop()
	}
	sig.gen++
	gen := sig.gen
	sig.expiry = s.clock.AfterFunc(s.idle, func() { s.expire(chatID, userID, gen) })
}

func (s *TypingState) Clear(chatID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked(chatID, userID)
}

// Close cancels every pending expiry and forgets all signals.
func (s *TypingState) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for chatID, users := range s.chats {
		for userID := range users {
			s.clearLocked(chatID, userID)
		}
	}
}

func (s *TypingState) expire(chatID, userID string, gen uint64) {
	s.mu.Lock()
	sig, ok := s.chats[chatID][userID]
	if !ok || sig.gen != gen {
		s.mu.Unlock()
		return
	}
	s.clearLocked(chatID, userID)
	notify := s.onExpire
	s.mu.Unlock()

	if notify != nil {
		notify(chatID, userID)
	}
}

func (s *TypingState) clearLocked(chatID, userID string) {
	users, ok := s.chats[chatID]
	if !ok {
		return
	}
	if sig, ok := users[userID]; ok && sig.expiry != nil {
		sig.expiry.Stop()
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(s.chats, chatID)
	}
}

func (s *TypingState) IsTyping(chatID, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.chats[chatID][userID]
	return ok
}

func (s *TypingState) Typing(chatID string) []string {
	s.mu.RLock()
	users := make([]string, 0, len(s.chats[chatID]))
	for userID := range s.chats[chatID] {
		users = append(users, userID)
	}
	s.mu.RUnlock()
	sort.Strings(users)
	return users
}

// OnlineSet holds the last users:online snapshot.
type OnlineSet struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

func NewOnlineSet() *OnlineSet {
	return &OnlineSet{users: make(map[string]struct{})}
}

func (o *OnlineSet) Replace(userIDs []string) {
	users := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		users[id] = struct{}{}
	}
	o.mu.Lock()
	o.users = users
	o.mu.Unlock()
}

func (o *OnlineSet) IsOnline(userID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.users[userID]
	return ok
}

func (o *OnlineSet) Snapshot() []string {
	o.mu.RLock()
	users := make([]string, 0, len(o.users))
	for id := range o.users {
		users = append(users, id)
	}
	o.mu.RUnlock()
	sort.Strings(users)
	return users
}

package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"marketplace-chat/apperror"
	"marketplace-chat/dto"
	"marketplace-chat/engine"
	"marketplace-chat/enum"
)

// fakeBroker accepts one connection, records inbound frames and answers join-global with a
// presence snapshot, a typing signal and a message from u2.
type fakeBroker struct {
	server *httptest.Server
	frames chan dto.Envelope
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	b := &fakeBroker{frames: make(chan dto.Envelope, 32)}
	upgrader := websocket.Upgrader{}

	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != testToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var env dto.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			b.frames <- env
			if env.Event != dto.EventUserJoinGlobal {
				continue
			}
			for _, out := range []struct {
				event   string
				payload any
			}{
				{dto.EventUsersOnline, []string{"u1", "u2"}},
				{dto.EventTyping, dto.TypingPayload{ChatID: "chat-1", UserID: "u2"}},
				{dto.EventMessageNew, dto.Message{ID: "srv-7", ChatID: "chat-1", SenderID: "u2", ReceiverID: "u1", Type: enum.MessageTypeText, Text: "Hi there"}},
			} {
				frame, _ := dto.NewEnvelope(out.event, out.payload)
				if err := conn.WriteJSON(frame); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBroker) url() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http") + "/ws"
}

func (b *fakeBroker) next(t *testing.T) dto.Envelope {
	t.Helper()
	select {
	case env := <-b.frames:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return dto.Envelope{}
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSessionRoutesEventsIntoEngineAndPresence(t *testing.T) {
	broker := newFakeBroker(t)
	eng := engine.New(engine.Config{UserID: "u1"})

	session, err := Dial(context.Background(), SessionConfig{URL: broker.url(), Token: testToken, Engine: eng})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	if first := broker.next(t); first.Event != dto.EventUserJoinGlobal || !strings.Contains(string(first.Data), `"userId":"u1"`) {
		t.Fatalf("expected join-global first, got %s %s", first.Event, first.Data)
	}

	eventually(t, func() bool { return len(eng.Messages("chat-1")) == 1 }, "message:new never reached the engine")
	eventually(t, func() bool { return session.Presence().Online.IsOnline("u2") }, "users:online never applied")
	if session.Presence().Remote.IsTyping("chat-1", "u2") {
		t.Errorf("message:new from u2 must clear its typing signal")
	}

	session.Keystroke("chat-1")
	if env := broker.next(t); env.Event != dto.EventTyping {
		t.Fatalf("expected typing frame, got %s", env.Event)
	}
	if err := session.Join("chat-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	// Leave stops the active typing signal before leaving the room
	if err := session.Leave("chat-1"); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	for _, want := range []string{dto.EventChatJoin, dto.EventStopTyping, dto.EventChatLeave} {
		if env := broker.next(t); env.Event != want {
			t.Fatalf("expected %s, got %s", want, env.Event)
		}
	}

	session.Close()
	if env := broker.next(t); env.Event != dto.EventUserLeave {
		t.Errorf("expected leave-global on close, got %s", env.Event)
	}
	select {
	case <-session.Done():
	default:
		t.Errorf("Done must be closed after Close")
	}
	if err := session.Emit(dto.EventTyping, dto.TypingPayload{}); !errors.Is(err, apperror.ErrTransport) {
		t.Errorf("emit after close must be TransportFailure, got %v", err)
	}
}

func TestDialRejectedIsTransportFailure(t *testing.T) {
	broker := newFakeBroker(t)
	eng := engine.New(engine.Config{UserID: "u1"})

	_, err := Dial(context.Background(), SessionConfig{URL: broker.url(), Token: "wrong", Engine: eng})
	if !errors.Is(err, apperror.ErrTransport) {
		t.Fatalf("expected TransportFailure, got %v", err)
	}
}

func TestConnectResolvesUserAndOpensSession(t *testing.T) {
	ln := newFakeAPI(t)
	broker := newFakeBroker(t)

	c, err := Connect(context.Background(), Config{
		BaseURL: "http://chat.test",
		WSURL:   broker.url(),
		Token:   testToken,
		Gateway: []GatewayOption{WithDialer(func(string) (net.Conn, error) { return ln.Dial() })},
	})
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer c.Close()

	if c.Engine.UserID() != "u1" {
		t.Fatalf("expected engine for u1, got %s", c.Engine.UserID())
	}
	if first := broker.next(t); first.Event != dto.EventUserJoinGlobal {
		t.Fatalf("expected join-global, got %s", first.Event)
	}
	eventually(t, func() bool { return len(c.Engine.Messages("chat-1")) == 1 }, "relay not wired into the engine")
}

func TestListenerCanCloseSession(t *testing.T) {
	broker := newFakeBroker(t)
	eng := engine.New(engine.Config{UserID: "u1"})

	session, err := Dial(context.Background(), SessionConfig{URL: broker.url(), Token: testToken, Engine: eng})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	broker.next(t)

	returned := make(chan struct{})
	session.OnEvent(func(env dto.Envelope) {
		if env.Event == dto.EventMessageNew {
			session.Close()
			close(returned)
		}
	})
	// a second join-global makes the broker replay its snapshot, message:new included; the first
	// replay may already have closed the session, so the emit error is not checked
	_ = session.Emit(dto.EventUserJoinGlobal, dto.GlobalPayload{UserID: "u1"})

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Close called from a listener never returned")
	}
	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop after Close")
	}
}

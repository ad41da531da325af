package broker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"marketplace-chat/dto"
)

type fakeConn struct {
	mu      sync.Mutex
	written []any
	fail    bool
	closed  int
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.written = append(c.written, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) count() (written, closed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written), c.closed
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestConnPeerWritesQueuedEnvelopes(t *testing.T) {
	conn := &fakeConn{}
	peer := NewConnPeer("c1", "u1", conn, 4)
	go peer.WritePump()
	defer peer.Close()

	for i := 0; i < 3; i++ {
		if !peer.Send(dto.Envelope{Event: dto.EventTyping}) {
			t.Fatalf("send %d rejected", i)
		}
	}
	waitFor(t, func() bool { n, _ := conn.count(); return n == 3 })
}

func TestConnPeerRejectsWhenQueueIsFull(t *testing.T) {
	peer := NewConnPeer("c1", "u1", &fakeConn{}, 1)

	if !peer.Send(dto.Envelope{Event: dto.EventTyping}) {
		t.Fatal("first send must fit the queue")
	}
	if peer.Send(dto.Envelope{Event: dto.EventTyping}) {
		t.Fatal("second send must be rejected without a writer draining the queue")
	}
}

func TestConnPeerClosesOnceAndStopsAcceptingAfterWriteFailure(t *testing.T) {
	conn := &fakeConn{fail: true}
	peer := NewConnPeer("c1", "u1", conn, 4)
	done := make(chan struct{})
	go func() {
		peer.WritePump()
		close(done)
	}()

	peer.Send(dto.Envelope{Event: dto.EventTyping})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("write pump did not stop after a failed write")
	}

	peer.Close()
	if _, closed := conn.count(); closed != 1 {
		t.Errorf("expected conn closed exactly once, got %d", closed)
	}
	if peer.Send(dto.Envelope{Event: dto.EventTyping}) {
		t.Errorf("closed peer must reject sends")
	}
}

package broker

import (
	"sync"

	"marketplace-chat/dto"
)

// Peer is one live connection as seen by the hub.
type Peer interface {
	ID() string
	UserID() string
	// Send queues an envelope without blocking; false means the peer cannot keep up or is closed.
	Send(env dto.Envelope) bool
	Close()
}

// JSONConn is satisfied by both the fiber and the gorilla websocket connections.
type JSONConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// ConnPeer owns a websocket and a bounded outbound queue drained by its own writer goroutine.
type ConnPeer struct {
	id     string
	userID string
	conn   JSONConn
	queue  chan dto.Envelope
	done   chan struct{}
	once   sync.Once
}

func NewConnPeer(id, userID string, conn JSONConn, buffer int) *ConnPeer {
	if buffer <= 0 {
		buffer = 64
	}
	return &ConnPeer{
		id:     id,
		userID: userID,
		conn:   conn,
		queue:  make(chan dto.Envelope, buffer),
		done:   make(chan struct{}),
	}
}

func (p *ConnPeer) ID() string     { return p.id }
func (p *ConnPeer) UserID() string { return p.userID }

func (p *ConnPeer) Send(env dto.Envelope) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.queue <- env:
		return true
	default:
		return false
	}
}

// WritePump blocks until the peer is closed or a write fails.
func (p *ConnPeer) WritePump() {
	for {
		select {
		case <-p.done:
			return
		case env := <-p.queue:
			if err := p.conn.WriteJSON(env); err != nil {
				p.Close()
				return
			}
		}
	}
}

func (p *ConnPeer) Close() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

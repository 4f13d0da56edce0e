// Package connection wraps one physical transport endpoint per game client:
// the send queue, close lifecycle, and the metadata derived from the remote
// address.
package connection

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sessamekesh/rts-relay-hub/pkg/packet"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("connection is closed")

// Transport is the abstract bidirectional byte-packet channel the hub core
// consumes. TLS termination and HTTP upgrades happen before a Transport is
// handed to an Agreement.
type Transport interface {
	WritePacket(p packet.Packet) error
	Close() error
	RemoteAddr() string
	Label() string
}

// Agreement is one live connection. Exactly one Agreement maps to one
// protocol state machine instance; the state machine owns the Agreement.
//
// All sends go through a single writer goroutine, so packets sent by any
// number of callers leave the socket in FIFO order per connection.
type Agreement struct {
	ID       string
	IP       string
	IP24     string
	Country  string
	Protocol string

	transport Transport
	log       *zap.Logger

	sendCh     chan packet.Packet
	done       chan struct{}
	writerDone chan struct{}

	mu         sync.Mutex
	closed     bool
	closeHooks []func(*Agreement)
}

const defaultSendQueue = 64

// NewAgreement starts the writer goroutine for the given transport.
func NewAgreement(t Transport, log *zap.Logger) *Agreement {
	ip := hostOnly(t.RemoteAddr())
	a := &Agreement{
		ID:        uuid.NewString(),
		IP:        ip,
		IP24:      Bucket24(ip),
		Country:   CountryOf(ip),
		Protocol:  t.Label(),
		transport: t,
		sendCh:     make(chan packet.Packet, defaultSendQueue),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	a.log = log.With(zap.String("connId", a.ID), zap.String("ip", ip), zap.String("protocol", a.Protocol))

	go a.writeLoop()
	return a
}

func (a *Agreement) writeLoop() {
	defer close(a.writerDone)
	for {
		select {
		case <-a.done:
			// Drain what was already queued before the close. A kick
			// reason queued just before the close still reaches the peer.
			for {
				select {
				case p := <-a.sendCh:
					if err := a.transport.WritePacket(p); err != nil {
						return
					}
				default:
					return
				}
			}
		case p := <-a.sendCh:
			if err := a.transport.WritePacket(p); err != nil {
				a.log.Debug("Write failed, closing connection", zap.Error(err))
				// Close waits on writerDone, so it must not run on this
				// goroutine.
				go a.Close(nil)
				return
			}
		}
	}
}

// Send enqueues a packet on this connection's write path. It blocks only on
// this connection's own backpressure and fails once the connection is gone.
func (a *Agreement) Send(p packet.Packet) error {
	select {
	case <-a.done:
		return ErrClosed
	default:
	}

	select {
	case a.sendCh <- p:
		return nil
	case <-a.done:
		return ErrClosed
	}
}

// OnClose registers a hook fired exactly once when the connection closes.
// Room cleanup attaches here.
func (a *Agreement) OnClose(hook func(*Agreement)) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		hook(a)
		return
	}
	a.closeHooks = append(a.closeHooks, hook)
	a.mu.Unlock()
}

// Close tears the connection down: close hooks fire, the connection leaves
// the given multicast group, then the transport is released. Closing twice
// is a no-op.
func (a *Agreement) Close(group *Group) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	hooks := a.closeHooks
	a.closeHooks = nil
	a.mu.Unlock()

	for _, hook := range hooks {
		hook(a)
	}

	if group != nil {
		group.Remove(a)
	}

	close(a.done)

	// Let the writer flush what was queued before releasing the transport;
	// a wedged transport only delays, never blocks, the close.
	select {
	case <-a.writerDone:
	case <-time.After(time.Second):
	}

	if err := a.transport.Close(); err != nil {
		a.log.Debug("Transport close", zap.Error(err))
	}
}

// IsClosed reports whether the connection is gone, whether by local Close or
// by the peer resetting the transport underneath us.
func (a *Agreement) IsClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// MarkPeerClosed records a close observed on the read path (peer reset)
// without re-releasing the transport.
func (a *Agreement) MarkPeerClosed() {
	a.Close(nil)
}

func (a *Agreement) Logger() *zap.Logger {
	return a.log
}

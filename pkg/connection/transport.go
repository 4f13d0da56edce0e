package connection

import (
	"net"
	"sync"

	"github.com/sessamekesh/rts-relay-hub/pkg/packet"
)

// TCPTransport frames packets straight onto a net.Conn.
type TCPTransport struct {
	conn net.Conn

	writeMu sync.Mutex
}

func NewTCPTransport(conn net.Conn) *TCPTransport {
	return &TCPTransport{conn: conn}
}

func (t *TCPTransport) WritePacket(p packet.Packet) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return packet.Encode(t.conn, p)
}

func (t *TCPTransport) Close() error {
	return t.conn.Close()
}

func (t *TCPTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

func (t *TCPTransport) Label() string {
	return "TCP"
}

// Loopback is an in-process transport used by headless AI players and by
// tests. Packets written to it land on the Outgoing channel.
type Loopback struct {
	Outgoing chan packet.Packet

	mu     sync.Mutex
	closed bool
}

func NewLoopback(buffer int) *Loopback {
	if buffer <= 0 {
		buffer = 64
	}
	return &Loopback{Outgoing: make(chan packet.Packet, buffer)}
}

func (l *Loopback) WritePacket(p packet.Packet) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	select {
	case l.Outgoing <- p:
		return nil
	default:
		// A full loopback mailbox drops rather than deadlocking the
		// writer goroutine against a test that stopped reading.
		return nil
	}
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *Loopback) RemoteAddr() string {
	return "127.0.0.1:0"
}

func (l *Loopback) Label() string {
	return "Loopback"
}

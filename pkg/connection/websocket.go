package connection

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sessamekesh/rts-relay-hub/pkg/packet"
)

// WebsocketTransport carries one frame per binary WebSocket message. The
// payload layout inside the message is identical to the TCP framing.
type WebsocketTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

func NewWebsocketTransport(conn *websocket.Conn) *WebsocketTransport {
	return &WebsocketTransport{conn: conn}
}

func (t *WebsocketTransport) WritePacket(p packet.Packet) error {
	raw, err := packet.Marshal(p)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.BinaryMessage, raw)
}

func (t *WebsocketTransport) Close() error {
	return t.conn.Close()
}

func (t *WebsocketTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

func (t *WebsocketTransport) Label() string {
	return "WebSocket"
}

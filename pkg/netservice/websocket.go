package netservice

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sessamekesh/rts-relay-hub/pkg/connection"
	"github.com/sessamekesh/rts-relay-hub/pkg/packet"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebsocketHandler upgrades HTTP requests and feeds each socket's binary
// frames into the same processor pipeline the TCP ports use. One frame
// carries exactly one length-prefixed packet.
type WebsocketHandler struct {
	factory ProcessorFactory
	cfg     Config
	log     *zap.Logger
}

func NewWebsocketHandler(factory ProcessorFactory, cfg Config, log *zap.Logger) *WebsocketHandler {
	return &WebsocketHandler{factory: factory, cfg: cfg, log: log}
}

func (h *WebsocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	agreement := connection.NewAgreement(connection.NewWebsocketTransport(ws), h.log)
	processor := h.factory(agreement)

	log := agreement.Logger()
	log.Info("Websocket connection accepted")

	idle := h.cfg.idleTimeout()
	for {
		if err := ws.SetReadDeadline(time.Now().Add(idle)); err != nil {
			agreement.MarkPeerClosed()
			return
		}

		msgType, data, err := ws.ReadMessage()
		if err != nil {
			log.Debug("Websocket read path closed", zap.Error(err))
			agreement.MarkPeerClosed()
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		p, err := packet.Unmarshal(data)
		if err != nil {
			log.Warn("Malformed websocket frame, forcing disconnect", zap.Error(err))
			agreement.Close(nil)
			return
		}
		processor.ProcessPacket(p)

		if agreement.IsClosed() {
			return
		}
	}
}

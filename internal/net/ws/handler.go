package ws

import (
	"log"
	nethttp "net/http"

	"github.com/gorilla/websocket"

	"tvc-hud/watcher/internal/net/proto"
)

type HandlerConfig struct {
	Logger *log.Logger
}

type Handler struct {
	hub      *Hub
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:      hub,
		logger:   logger,
		upgrader: upgrader,
	}
}

// Handle upgrades the request, greets the subscriber and then drains its
// inbound messages until the connection closes.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed: %v", err)
		return
	}

	id, sub, hello, err := h.hub.subscribe(conn)
	if err != nil {
		h.logger.Printf("failed to subscribe: %v", err)
		conn.Close()
		return
	}

	if err := sub.WriteMessage(websocket.TextMessage, hello); err != nil {
		h.hub.Disconnect(id)
		return
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.hub.Disconnect(id)
			return
		}
		msg, err := proto.DecodeClient(payload)
		if err != nil {
			h.logger.Printf("discarding malformed message from %s: %v", id, err)
			continue
		}
		if msg.Type != proto.TypePing {
			h.logger.Printf("ignoring %q message from %s", msg.Type, id)
		}
	}
}

package ws

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The server sits on a LAN behind the owner's firewall.
		return true
	},
}

// Handler upgrades HTTP requests to WebSocket subscriptions.
// URL formats: /ws/events for all cameras, /ws/events/{camera_id} for one.
type Handler struct {
	hub *Hub
}

// NewHandler creates a WebSocket handler backed by the hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cameraID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/events"), "/")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	log.Printf("[WS] New connection for camera %q from %s", cameraID, r.RemoteAddr)
	h.hub.Register(cameraID, conn)
	go h.readPump(cameraID, conn)
}

// readPump keeps the connection alive and detects disconnects; clients
// are not expected to send anything meaningful.
func (h *Handler) readPump(cameraID string, conn *websocket.Conn) {
	defer func() {
		h.hub.Unregister(cameraID, conn)
		conn.Close()
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for range ticker.C {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Read error for camera %q: %v", cameraID, err)
			}
			break
		}
	}
}

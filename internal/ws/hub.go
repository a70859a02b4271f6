package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Vivek9454/FalconEye/internal/alert"
	"github.com/Vivek9454/FalconEye/internal/detect"
)

// Hub fans live detection and alert events out to WebSocket clients.
// Detection messages go only to clients watching that camera; alerts go
// to everyone.
type Hub struct {
	mu sync.RWMutex
	// clients maps camera_id -> connections; the "" key holds clients
	// subscribed to all cameras.
	clients map[string]map[*websocket.Conn]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*websocket.Conn]bool)}
}

// Register adds a connection; cameraID "" subscribes to all cameras.
func (h *Hub) Register(cameraID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[cameraID] == nil {
		h.clients[cameraID] = make(map[*websocket.Conn]bool)
	}
	h.clients[cameraID][conn] = true
	log.Printf("[WS] Client registered for camera %q (total: %d)", cameraID, len(h.clients[cameraID]))
}

// Unregister removes a connection.
func (h *Hub) Unregister(cameraID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[cameraID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, cameraID)
		}
	}
}

// HasClients reports whether anyone is watching the camera.
func (h *Hub) HasClients(cameraID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[cameraID]) > 0 || len(h.clients[""]) > 0
}

// ClientCount returns the total number of connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.clients {
		count += len(conns)
	}
	return count
}

// BroadcastDetections sends the per-frame detection result to clients
// watching the camera.
func (h *Hub) BroadcastDetections(cameraID string, detections []detect.Detection, names []string) {
	if !h.HasClients(cameraID) {
		return
	}

	msg := NewDetectionMessage(cameraID)
	for _, d := range detections {
		msg.AddObject(d)
	}
	msg.Identities = names

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] Failed to marshal detection message: %v", err)
		return
	}
	h.send(cameraID, data)
}

// BroadcastAlert pushes an alert event to every connected client.
func (h *Hub) BroadcastAlert(event alert.Event) {
	data, err := json.Marshal(NewAlertMessage(event))
	if err != nil {
		log.Printf("[WS] Failed to marshal alert message: %v", err)
		return
	}

	h.mu.RLock()
	targets := make([]target, 0)
	for cameraID, conns := range h.clients {
		for conn := range conns {
			targets = append(targets, target{cameraID, conn})
		}
	}
	h.mu.RUnlock()

	for _, t := range targets {
		h.write(t.cameraID, t.conn, data)
	}
}

type target struct {
	cameraID string
	conn     *websocket.Conn
}

// send delivers a payload to the camera's subscribers and the
// all-cameras subscribers.
func (h *Hub) send(cameraID string, data []byte) {
	h.mu.RLock()
	targets := make([]target, 0)
	for conn := range h.clients[cameraID] {
		targets = append(targets, target{cameraID, conn})
	}
	for conn := range h.clients[""] {
		targets = append(targets, target{"", conn})
	}
	h.mu.RUnlock()

	for _, t := range targets {
		h.write(t.cameraID, t.conn, data)
	}
}

func (h *Hub) write(cameraID string, conn *websocket.Conn, data []byte) {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[WS] Dropping client: %v", err)
		h.Unregister(cameraID, conn)
		conn.Close()
	}
}

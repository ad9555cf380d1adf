package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tearncolour/SharkRadio/protocol"
)

func newUpgrader(allowCrossOrigin bool) websocket.Upgrader {
	up := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 65536,
	}
	if allowCrossOrigin {
		up.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return up
}

// WSMessage is the envelope for everything pushed to UI clients
type WSMessage struct {
	Type      string      `json:"type"` // "frame" or "spectrum"
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// wsClient is one connected UI with a bounded outbound queue. A slow
// client loses messages, it never stalls the pipeline.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// WSHub fans decoded frames and spectrum previews out to all
// connected WebSocket clients
type WSHub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*wsClient
}

// NewWSHub returns an empty hub
func NewWSHub(allowCrossOrigin bool) *WSHub {
	return &WSHub{
		upgrader: newUpgrader(allowCrossOrigin),
		clients:  make(map[string]*wsClient),
	}
}

// HandleWS upgrades an HTTP request and attaches the client to the hub
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 64),
	}

	h.mu.Lock()
	h.clients[client.id] = client
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("[WS] Client %s connected (%d total)", client.id, count)

	go h.writePump(client)
	go h.readPump(client)
}

// writePump drains the client's send queue onto the socket
func (h *WSHub) writePump(client *wsClient) {
	defer h.drop(client)
	for msg := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readPump discards inbound messages and notices disconnects
func (h *WSHub) readPump(client *wsClient) {
	defer h.drop(client)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// drop detaches a client; safe to call from both pumps
func (h *WSHub) drop(client *wsClient) {
	h.mu.Lock()
	_, present := h.clients[client.id]
	delete(h.clients, client.id)
	count := len(h.clients)
	h.mu.Unlock()

	if present {
		close(client.send)
		client.conn.Close()
		log.Printf("[WS] Client %s disconnected (%d total)", client.id, count)
	}
}

// BroadcastFrame pushes one decoded frame to all clients
func (h *WSHub) BroadcastFrame(channelID string, frame *protocol.Frame) {
	h.broadcast(WSMessage{
		Type:      "frame",
		Timestamp: frame.Time.Unix(),
		Data: map[string]interface{}{
			"channel":     channelID,
			"type":        string(frame.Type),
			"command_id":  uint16(frame.CommandID),
			"seq":         frame.Seq,
			"data_length": frame.DataLength,
			"raw":         frame.Hex(),
		},
	})
}

// BroadcastSpectrum pushes a spectrum preview to all clients
func (h *WSHub) BroadcastSpectrum(preview *SpectrumPreview) {
	if preview == nil {
		return
	}
	h.broadcast(WSMessage{
		Type:      "spectrum",
		Timestamp: time.Now().Unix(),
		Data:      preview,
	})
}

func (h *WSHub) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] Marshal failed: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Queue full; this client misses the message.
		}
	}
}

// Close disconnects all clients
func (h *WSHub) Close() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.drop(c)
	}
}

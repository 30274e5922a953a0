package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mnohosten/pkto/pkg/stm"
)

// upgrader upgrades the /events endpoint to a WebSocket connection.
// Origins are unrestricted here the same way the teacher's change
// stream upgrader left it open, deferring origin policy to whatever
// reverse proxy sits in front of the control plane.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventType identifies which protocol outcome a TxEvent reports.
type EventType string

const (
	EventCommit EventType = "commit"
	EventAbort  EventType = "abort"
	EventVictim EventType = "victim"
)

// TxEvent is one commit or abort notification broadcast to every
// subscriber of /_events. EventVictim is defined but no handler sends
// it: TryCommit does not report which readers it doomed.
type TxEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	TxID      stm.TxID  `json:"txId"`
	GITS      stm.TxID  `json:"gits"`
	GCTS      stm.TxID  `json:"gcts"`
	Status    string    `json:"status,omitempty"`
	AbortClass string   `json:"abortClass,omitempty"`
}

// Hub fans TxEvents out to every connected websocket client, the same
// register/unregister/broadcast shape the teacher's change stream
// manager used for oplog subscribers, generalized from one oplog
// source to direct commit/abort notifications pushed by pkg/server's
// transaction handlers.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan TxEvent
}

// NewHub creates an empty event hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Broadcast pushes event to every currently connected client. A client
// whose send buffer is full is dropped rather than allowed to stall
// the broadcaster — the event stream is best-effort, not a durable log.
func (h *Hub) Broadcast(event TxEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- event:
		default:
			log.Printf("events: dropping slow subscriber")
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// ServeEvents upgrades the request to a websocket and streams every
// subsequent TxEvent the hub broadcasts until the client disconnects.
func (h *Hub) ServeEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("events: upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan TxEvent, 32)}
	h.register(c)
	defer func() {
		h.unregister(c)
		conn.Close()
	}()

	// Drain and discard anything the client sends; this is a
	// push-only stream, but reading keeps the connection's close
	// frame and pings flowing.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.unregister(c)
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

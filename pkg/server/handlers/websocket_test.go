package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

func TestEventHubConnectionAndBroadcast(t *testing.T) {
	hub := NewHub()

	r := chi.NewRouter()
	r.Get("/_events", hub.ServeEvents)

	server := httptest.NewServer(r)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/_events"

	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer ws.Close()

	// Give the server a moment to register the client before
	// broadcasting, since registration happens asynchronously relative
	// to the dial completing.
	time.Sleep(50 * time.Millisecond)

	hub.Broadcast(TxEvent{
		Type:   EventCommit,
		TxID:   7,
		GITS:   7,
		GCTS:   7,
		Status: "OK",
	})

	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var event TxEvent
	if err := ws.ReadJSON(&event); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}

	if event.Type != EventCommit {
		t.Errorf("expected type commit, got %s", event.Type)
	}
	if event.TxID != 7 {
		t.Errorf("expected txId 7, got %d", event.TxID)
	}
}

func TestEventHubMultipleSubscribers(t *testing.T) {
	hub := NewHub()

	r := chi.NewRouter()
	r.Get("/_events", hub.ServeEvents)

	server := httptest.NewServer(r)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/_events"

	numClients := 3
	conns := make([]*websocket.Conn, numClients)
	for i := 0; i < numClients; i++ {
		ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("Failed to connect client %d: %v", i, err)
		}
		defer ws.Close()
		conns[i] = ws
	}

	time.Sleep(50 * time.Millisecond)

	hub.mu.RLock()
	clientCount := len(hub.clients)
	hub.mu.RUnlock()
	if clientCount != numClients {
		t.Fatalf("expected %d registered clients, got %d", numClients, clientCount)
	}

	hub.Broadcast(TxEvent{Type: EventAbort, TxID: 1, Status: "ABORTED", AbortClass: "priority_loss"})

	for i, ws := range conns {
		ws.SetReadDeadline(time.Now().Add(5 * time.Second))
		var event TxEvent
		if err := ws.ReadJSON(&event); err != nil {
			t.Fatalf("client %d failed to read event: %v", i, err)
		}
		if event.Type != EventAbort || event.AbortClass != "priority_loss" {
			t.Errorf("client %d got unexpected event: %+v", i, event)
		}
	}
}

func TestEventHubUnregisterOnDisconnect(t *testing.T) {
	hub := NewHub()

	r := chi.NewRouter()
	r.Get("/_events", hub.ServeEvents)

	server := httptest.NewServer(r)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/_events"

	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	ws.Close()
	time.Sleep(50 * time.Millisecond)

	hub.mu.RLock()
	clientCount := len(hub.clients)
	hub.mu.RUnlock()
	if clientCount != 0 {
		t.Errorf("expected 0 clients after disconnect, got %d", clientCount)
	}
}

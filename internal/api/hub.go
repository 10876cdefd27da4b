package api

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds every data write so one client with a full TCP buffer
// cannot pin a writer goroutine forever.
const writeWait = 10 * time.Second

// wsSink serializes writes to one websocket connection. gorilla/websocket
// allows only one concurrent writer, and both the session reader and the
// snapshot pump write to the same socket.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) writeJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *wsSink) writeClose(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	s.conn.WriteControl(websocket.CloseMessage, msg, writeControlDeadline())
}

// ConnectionHub indexes live game sockets by world and player so out-of-band
// senders (elimination events, config broadcasts) can reach them. Sessions
// register on join and unregister on any exit path.
type ConnectionHub struct {
	mu     sync.RWMutex
	worlds map[string]map[string]*wsSink
}

func NewConnectionHub() *ConnectionHub {
	return &ConnectionHub{worlds: make(map[string]map[string]*wsSink)}
}

// Register binds a connection to (worldID, playerID) and returns the sink
// the session should write through.
func (h *ConnectionHub) Register(worldID, playerID string, conn *websocket.Conn) *wsSink {
	sink := &wsSink{conn: conn}
	h.mu.Lock()
	players, ok := h.worlds[worldID]
	if !ok {
		players = make(map[string]*wsSink)
		h.worlds[worldID] = players
	}
	players[playerID] = sink
	h.mu.Unlock()

	UpdateWSConnections(h.count())
	return sink
}

// Unregister detaches a connection. Safe to call twice.
func (h *ConnectionHub) Unregister(worldID, playerID string) {
	h.mu.Lock()
	if players, ok := h.worlds[worldID]; ok {
		delete(players, playerID)
		if len(players) == 0 {
			delete(h.worlds, worldID)
		}
	}
	h.mu.Unlock()

	UpdateWSConnections(h.count())
}

// SendTo delivers a message to one player. A write failure drops the
// connection from the hub; the session's read loop notices the broken
// socket and finishes cleanup.
func (h *ConnectionHub) SendTo(worldID, playerID string, message any) {
	h.mu.RLock()
	sink := h.worlds[worldID][playerID]
	h.mu.RUnlock()
	if sink == nil {
		return
	}
	if err := sink.writeJSON(message); err != nil {
		log.Printf("⚠️ Send to %s/%s failed: %v", worldID, playerID, err)
		h.Unregister(worldID, playerID)
		return
	}
	IncrementWSMessages()
}

// CloseWithCode sends a close frame to one player and drops the connection.
func (h *ConnectionHub) CloseWithCode(worldID, playerID string, code int, reason string) {
	h.mu.RLock()
	sink := h.worlds[worldID][playerID]
	h.mu.RUnlock()
	if sink == nil {
		return
	}
	sink.writeClose(code, reason)
	sink.conn.Close()
	h.Unregister(worldID, playerID)
}

// Broadcast sends a message to every player in one world.
func (h *ConnectionHub) Broadcast(worldID string, message any) {
	h.sendAll(h.sinksFor(worldID), message)
}

// BroadcastGlobal sends a message to every connected player in every world.
func (h *ConnectionHub) BroadcastGlobal(message any) {
	h.mu.RLock()
	var targets []hubTarget
	for worldID, players := range h.worlds {
		for playerID, sink := range players {
			targets = append(targets, hubTarget{worldID, playerID, sink})
		}
	}
	h.mu.RUnlock()
	h.sendAll(targets, message)
}

type hubTarget struct {
	worldID  string
	playerID string
	sink     *wsSink
}

func (h *ConnectionHub) sinksFor(worldID string) []hubTarget {
	h.mu.RLock()
	defer h.mu.RUnlock()
	targets := make([]hubTarget, 0, len(h.worlds[worldID]))
	for playerID, sink := range h.worlds[worldID] {
		targets = append(targets, hubTarget{worldID, playerID, sink})
	}
	return targets
}

func (h *ConnectionHub) sendAll(targets []hubTarget, message any) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	for _, t := range targets {
		t.sink.mu.Lock()
		t.sink.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := t.sink.conn.WriteMessage(websocket.TextMessage, data)
		t.sink.mu.Unlock()
		if err != nil {
			h.Unregister(t.worldID, t.playerID)
			continue
		}
		IncrementWSMessages()
	}
}

func (h *ConnectionHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, players := range h.worlds {
		n += len(players)
	}
	return n
}

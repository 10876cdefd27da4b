package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"cellworlds/internal/account"
	"cellworlds/internal/game"
	"cellworlds/internal/stats"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	// MaxWSConnectionsPerIP is the maximum game sockets per IP.
	MaxWSConnectionsPerIP = 10

	// maxClientFrameSize bounds inbound frames; client messages are tiny.
	maxClientFrameSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Tokens gate the session; the socket itself is open to any origin
		// so native desktop clients can connect without an Origin header.
		return true
	},
}

func writeControlDeadline() time.Time {
	return time.Now().Add(5 * time.Second)
}

// ConfigProvider supplies the current gameplay config for join messages.
type ConfigProvider interface {
	Snapshot() account.GameplayConfig
}

// GameSocket runs authenticated game sessions over websockets.
type GameSocket struct {
	manager   *game.Manager
	hub       *ConnectionHub
	tokens    *TokenStore
	stats     *stats.Service
	config    ConfigProvider
	wsLimiter *WebSocketRateLimiter
}

func NewGameSocket(manager *game.Manager, hub *ConnectionHub, tokens *TokenStore, statsService *stats.Service, config ConfigProvider) *GameSocket {
	return &GameSocket{
		manager:   manager,
		hub:       hub,
		tokens:    tokens,
		stats:     statsService,
		config:    config,
		wsLimiter: NewWebSocketRateLimiter(MaxWSConnectionsPerIP),
	}
}

// Handle is the session entry point for GET /ws/world/{world_id}?token=...&player_name=...
//
// The upgrade happens before token validation on purpose: a close code can
// only reach the client over an established websocket.
func (g *GameSocket) Handle(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)
	if !g.wsLimiter.Allow(ip) {
		log.Printf("⚠️ Game socket rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}
	defer g.wsLimiter.Release(ip)

	worldID := chi.URLParam(r, "world_id")
	token := r.URL.Query().Get("token")
	playerName := r.URL.Query().Get("player_name")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	conn.SetReadLimit(maxClientFrameSize)

	identity, ok := g.tokens.Resolve(token)
	if !ok {
		closeConn(conn, CloseInvalidToken, "Invalid token")
		return
	}
	if playerName == "" {
		playerName = identity.Username
	}

	if !g.manager.WorldExists(worldID) {
		sink := &wsSink{conn: conn}
		sink.writeJSON(ErrorMessage{Type: MsgError, Message: "World not found"})
		closeConn(conn, websocket.CloseNormalClosure, "")
		return
	}

	g.runSession(conn, worldID, token, playerName, identity)
}

// runSession drives one player's lifecycle: join, pump snapshots, relay
// inputs, and on any exit leave the world and flush progress to stats.
func (g *GameSocket) runSession(conn *websocket.Conn, worldID, token, playerName string, identity Identity) {
	player := game.NewPlayer(playerName, token)
	cell, err := g.manager.AddPlayer(worldID, player)
	if err != nil {
		sink := &wsSink{conn: conn}
		sink.writeJSON(ErrorMessage{Type: MsgError, Message: "World not found"})
		closeConn(conn, websocket.CloseNormalClosure, "")
		return
	}

	sub, err := g.manager.Subscribe(worldID)
	if err != nil {
		g.manager.RemovePlayer(worldID, player.ID)
		closeConn(conn, websocket.CloseNormalClosure, "")
		return
	}

	sink := g.hub.Register(worldID, player.ID, conn)
	log.Printf("🎮 %s joined world %s as %s", identity.Username, worldID, player.ID)

	// Joining counts toward the account's lifetime stats; fired off the
	// session goroutine so a slow store never delays the joined frame.
	go g.stats.AddProgress(identity.Username, account.ProgressDelta{
		SessionsPlayed: 1,
		WorldsExplored: 1,
	})

	if err := sink.writeJSON(JoinedMessage{
		Type:   MsgJoined,
		Player: player.View(),
		Cell:   cell.View(),
		Config: g.config.Snapshot(),
	}); err != nil {
		g.finishSession(conn, sub, worldID, player, identity)
		return
	}

	// Snapshot pump: ends when the subscription closes, either because the
	// session closed it or because the world died.
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for snap := range sub.C {
			if err := sink.writeJSON(WorldMessage{Type: MsgWorld, State: snap}); err != nil {
				return
			}
			IncrementWSMessages()
		}
	}()

	g.readLoop(conn, worldID, player.ID)

	g.finishSession(conn, sub, worldID, player, identity)
	<-pumpDone
}

// readLoop relays client inputs until the socket breaks. Malformed frames
// and unknown types are ignored rather than punished.
func (g *GameSocket) readLoop(conn *websocket.Conn, worldID, playerID string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case MsgSetTarget:
			if msg.Target == nil {
				continue
			}
			if err := g.manager.SetTarget(worldID, playerID, *msg.Target); err != nil {
				return
			}
		case MsgSplit:
			if err := g.manager.SplitPlayer(worldID, playerID); err != nil {
				return
			}
		}
	}
}

// finishSession tears the session down in an order that makes the final
// counter read safe: the synchronous RemovePlayer round-trip guarantees the
// runner is done mutating the player before stats are flushed.
func (g *GameSocket) finishSession(conn *websocket.Conn, sub *game.Subscription, worldID string, player *game.Player, identity Identity) {
	sub.Close()
	g.hub.Unregister(worldID, player.ID)
	g.manager.RemovePlayer(worldID, player.ID)
	conn.Close()

	delta := account.ProgressDelta{
		Score:      player.Score,
		FoodEaten:  player.FoodEaten,
		CellsEaten: player.CellsEaten,
	}
	if err := g.stats.AddProgress(identity.Username, delta); err == nil && !delta.IsZero() {
		log.Printf("📊 %s session: %.0f score, %d food, %d cells", identity.Username, delta.Score, delta.FoodEaten, delta.CellsEaten)
	}
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	conn.WriteControl(websocket.CloseMessage, msg, writeControlDeadline())
	conn.Close()
}

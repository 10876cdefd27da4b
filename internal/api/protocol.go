package api

import (
	"cellworlds/internal/account"
	"cellworlds/internal/game"
)

// WebSocket close codes beyond the RFC set.
const (
	// CloseInvalidToken rejects a connection whose token is unknown.
	CloseInvalidToken = 4401

	// CloseEliminated ends the session of a player who lost their last cell.
	CloseEliminated = 4404
)

// Server-to-client message types.
const (
	MsgJoined       = "joined"
	MsgWorld        = "world"
	MsgConfigUpdate = "config_update"
	MsgEliminated   = "eliminated"
	MsgError        = "error"
)

// Client-to-server message types.
const (
	MsgSetTarget = "set_target"
	MsgSplit     = "split"
)

// ClientMessage is the envelope for everything a client sends over the game
// socket. Unknown or malformed frames are ignored.
type ClientMessage struct {
	Type   string     `json:"type"`
	Target *game.Vec2 `json:"target,omitempty"`
}

// JoinedMessage confirms a join and carries the initial state the client
// needs before the first snapshot arrives: the player's public record, their
// starting cell, and the gameplay config.
type JoinedMessage struct {
	Type   string                 `json:"type"`
	Player game.PlayerView        `json:"player"`
	Cell   game.CellView          `json:"cell"`
	Config account.GameplayConfig `json:"config"`
}

// WorldMessage wraps a per-tick snapshot.
type WorldMessage struct {
	Type  string        `json:"type"`
	State game.Snapshot `json:"state"`
}

// ConfigUpdateMessage announces a live gameplay config change.
type ConfigUpdateMessage struct {
	Type   string                 `json:"type"`
	Config account.GameplayConfig `json:"config"`
}

// EliminatedMessage tells a player who ate them and in which world, right
// before the socket closes with 4404.
type EliminatedMessage struct {
	Type  string `json:"type"`
	By    string `json:"by"`
	World string `json:"world"`
}

// ErrorMessage reports a recoverable session error.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

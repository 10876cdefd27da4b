package game

import (
	"crypto/rand"
	"encoding/hex"
	"hash/fnv"
)

// Color is an RGB triple serialized as [r, g, b].
type Color [3]int

// Player is a participant inside one world. Score and the eaten counters are
// mutated only by the world runner; sessions read them after the player has
// been removed from the world.
type Player struct {
	ID         string
	Name       string
	Token      string
	Color      Color
	Score      float64
	FoodEaten  int
	CellsEaten int
}

// NewPlayer creates a player with a fresh opaque id and a color derived
// deterministically from that id.
func NewPlayer(name, token string) *Player {
	id := newID()
	return &Player{
		ID:    id,
		Name:  name,
		Token: token,
		Color: colorForID(id),
	}
}

// PlayerView is the public wire representation of a player.
type PlayerView struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Color Color   `json:"color"`
	Score float64 `json:"score"`
}

func (p *Player) View() PlayerView {
	return PlayerView{ID: p.ID, Name: p.Name, Color: p.Color, Score: p.Score}
}

// newID returns a 128-bit random hex identifier.
func newID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// colorForID hashes the player id into an RGB triple. The same id always
// yields the same color, so reconnecting clients keep their hue.
func colorForID(id string) Color {
	h := fnv.New32a()
	h.Write([]byte(id))
	sum := h.Sum32()
	return Color{int(sum>>16) & 0xFF, int(sum>>8) & 0xFF, int(sum) & 0xFF}
}

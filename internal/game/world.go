package game

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"
)

// Gameplay constants governing split, merge and absorption.
const (
	SplitMinRadius      = 30.0
	SplitCooldown       = 2 * time.Second
	MergeDelay          = 3 * time.Second
	MergeDistanceFactor = 0.9
	AbsorbRatio         = 1.02
	MaxCellsPerPlayer   = 8

	StartRadius    = 25.0
	FoodValue      = 5.0
	FoodGrowth     = 0.1
	FoodEatPadding = 3.0
)

// Cell is a physical disc owned by a player. A player's first cell reuses the
// player id, so a solo cell stays addressable by its owner.
type Cell struct {
	ID           string
	PlayerID     string
	Position     Vec2
	Radius       float64
	Velocity     Vec2
	MergeReadyAt time.Time
}

func (c *Cell) Area() float64 {
	return math.Pi * c.Radius * c.Radius
}

// CellView is the wire representation of a cell.
type CellView struct {
	ID       string  `json:"id"`
	PlayerID string  `json:"player_id"`
	Position Vec2    `json:"position"`
	Radius   float64 `json:"radius"`
}

func (c *Cell) View() CellView {
	return CellView{ID: c.ID, PlayerID: c.PlayerID, Position: c.Position, Radius: c.Radius}
}

// Food is a consumable pellet. Its value converts to radius growth when a
// cell eats it.
type Food struct {
	ID       string  `json:"id"`
	Position Vec2    `json:"position"`
	Value    float64 `json:"value"`
}

// WorldConfig is the per-world gameplay configuration.
type WorldConfig struct {
	Name             string  `json:"name"`
	Width            float64 `json:"width"`
	Height           float64 `json:"height"`
	TickRate         float64 `json:"tick_rate"`
	FoodCount        int     `json:"food_count"`
	SnapshotInterval float64 `json:"snapshot_interval"`
}

// Snapshot is the full observable state of a world at the end of a tick.
type Snapshot struct {
	Config   WorldConfig  `json:"config"`
	Players  []PlayerView `json:"players"`
	Cells    []CellView   `json:"cells"`
	Foods    []Food       `json:"foods"`
	TickTime float64      `json:"tick_time"`
}

// Event is a domain event produced during a tick and drained by the runner.
type Event struct {
	Type       string `json:"type"`
	WinnerID   string `json:"winner_id,omitempty"`
	WinnerName string `json:"winner_name,omitempty"`
	LoserID    string `json:"loser_id,omitempty"`
	LoserName  string `json:"loser_name,omitempty"`
}

// EventPlayerEliminated is emitted when a player loses their last cell.
const EventPlayerEliminated = "player_eliminated"

// WorldState owns everything inside one world. It is not safe for concurrent
// use: the world runner is its sole mutator, and external callers reach it
// only through commands the runner applies between ticks.
type WorldState struct {
	Config WorldConfig

	players        map[string]*Player
	cells          map[string]*Cell
	playerCells    map[string][]string
	foods          map[string]*Food
	targets        map[string]Vec2
	splitCooldowns map[string]time.Time
	events         []Event

	engine *PhysicsEngine
	rng    *rand.Rand

	simTime      float64
	splitCounter int
	foodCounter  int

	// clock is swappable so tests can drive cooldown and merge timers.
	clock func() time.Time
}

func NewWorldState(config WorldConfig) *WorldState {
	return &WorldState{
		Config:         config,
		players:        make(map[string]*Player),
		cells:          make(map[string]*Cell),
		playerCells:    make(map[string][]string),
		foods:          make(map[string]*Food),
		targets:        make(map[string]Vec2),
		splitCooldowns: make(map[string]time.Time),
		engine:         NewPhysicsEngine(config.Width, config.Height),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		clock:          time.Now,
	}
}

// AddPlayer spawns the player's first cell at a random free position. The
// cell id equals the player id.
func (w *WorldState) AddPlayer(player *Player) *Cell {
	spawn := w.randomPosition()
	cell := &Cell{
		ID:       player.ID,
		PlayerID: player.ID,
		Position: spawn,
		Radius:   StartRadius,
	}
	w.players[player.ID] = player
	w.cells[cell.ID] = cell
	w.playerCells[player.ID] = []string{cell.ID}
	w.targets[player.ID] = spawn
	w.engine.AddCell(cell, player.ID)
	return cell
}

// RemovePlayer drops the player and every cell they own.
func (w *WorldState) RemovePlayer(playerID string) {
	for _, cellID := range append([]string(nil), w.playerCells[playerID]...) {
		w.removeCell(cellID)
	}
	delete(w.players, playerID)
	delete(w.playerCells, playerID)
	delete(w.targets, playerID)
	delete(w.splitCooldowns, playerID)
}

// SetTarget updates the steering target for all of a player's cells. The
// target is clamped to the world rectangle.
func (w *WorldState) SetTarget(playerID string, target Vec2) {
	if _, ok := w.targets[playerID]; !ok {
		return
	}
	clamped := w.clampPosition(target)
	w.targets[playerID] = clamped
	for _, cellID := range w.playerCells[playerID] {
		w.engine.SetTarget(cellID, clamped)
	}
}

// PlayerCount reports the number of live players.
func (w *WorldState) PlayerCount() int {
	return len(w.players)
}

// PopEvents drains the events produced since the previous drain.
func (w *WorldState) PopEvents() []Event {
	events := w.events
	w.events = nil
	return events
}

// PopulateFood trims or refills the pellet set to the configured count.
func (w *WorldState) PopulateFood() {
	target := w.Config.FoodCount
	if target < 0 {
		target = 0
	}
	for id := range w.foods {
		if len(w.foods) <= target {
			break
		}
		delete(w.foods, id)
	}
	for len(w.foods) < target {
		w.foodCounter++
		id := fmt.Sprintf("food-%d", w.foodCounter)
		w.foods[id] = &Food{ID: id, Position: w.randomPosition(), Value: FoodValue}
	}
}

// Tick advances the world by dt seconds: steering targets, physics, food,
// absorption, then same-owner merges. Invariants from the data model hold
// when it returns.
func (w *WorldState) Tick(dt float64) {
	dt = math.Min(math.Max(dt, 1e-4), MaxDeltaTime)
	w.simTime += dt

	for _, cell := range w.cells {
		target, ok := w.targets[cell.PlayerID]
		if !ok {
			target = cell.Position
		}
		w.engine.SetTarget(cell.ID, target)
	}

	collisions := w.engine.Step(dt)

	w.handleFoodCollisions()
	w.handleCellCollisions(collisions)
	w.handleSelfMerges()
}

// handleFoodCollisions feeds overlapping cells, removes consumed pellets and
// refills the supply.
func (w *WorldState) handleFoodCollisions() {
	var consumed []string
	for _, food := range w.foods {
		for _, cell := range w.cells {
			if !collides(cell.Position, cell.Radius, food.Position, FoodEatPadding) {
				continue
			}
			consumed = append(consumed, food.ID)
			cell.Radius += food.Value * FoodGrowth
			if player := w.players[cell.PlayerID]; player != nil {
				player.Score += food.Value
				player.FoodEaten++
			}
			break
		}
	}
	for _, id := range consumed {
		delete(w.foods, id)
	}
	w.PopulateFood()
}

// handleCellCollisions applies absorption for every reported collision, then
// sweeps all remaining opposing pairs to catch slow contacts the relaxation
// passes resolved without flagging.
func (w *WorldState) handleCellCollisions(collisions []CollisionEvent) {
	for _, event := range collisions {
		cell := w.cells[event.FirstID]
		other := w.cells[event.SecondID]
		if cell == nil || other == nil || cell.PlayerID == other.PlayerID {
			continue
		}
		w.tryAbsorb(cell, other)
	}

	ordered := w.orderedCells()
	for i, cell := range ordered {
		if _, ok := w.cells[cell.ID]; !ok {
			continue
		}
		for _, other := range ordered[i+1:] {
			if _, ok := w.cells[other.ID]; !ok {
				continue
			}
			if _, ok := w.cells[cell.ID]; !ok {
				break
			}
			if cell.PlayerID == other.PlayerID {
				continue
			}
			if collides(cell.Position, cell.Radius, other.Position, other.Radius) {
				w.tryAbsorb(cell, other)
			}
		}
	}
}

func (w *WorldState) tryAbsorb(a, b *Cell) {
	switch {
	case a.Radius >= b.Radius*AbsorbRatio:
		w.absorb(a, b)
	case b.Radius >= a.Radius*AbsorbRatio:
		w.absorb(b, a)
	}
}

// handleSelfMerges coalesces same-owner pairs whose merge timers expired and
// whose discs overlap with the second radius scaled down.
func (w *WorldState) handleSelfMerges() {
	now := w.clock()
	for _, playerID := range w.orderedPlayerIDs() {
		ids := w.playerCells[playerID]
		if len(ids) < 2 {
			continue
		}
		i := 0
		for i < len(ids) {
			a := w.cells[ids[i]]
			if a == nil {
				i++
				continue
			}
			j := i + 1
			for j < len(ids) {
				b := w.cells[ids[j]]
				if b == nil {
					j++
					continue
				}
				if now.Before(a.MergeReadyAt) || now.Before(b.MergeReadyAt) {
					j++
					continue
				}
				if collides(a.Position, a.Radius, b.Position, b.Radius*MergeDistanceFactor) {
					w.merge(a, b)
					ids = w.playerCells[playerID]
					continue
				}
				j++
			}
			i++
		}
	}
}

// merge coalesces two same-owner cells: areas add exactly, the survivor sits
// at the area-weighted centroid and its merge timer restarts.
func (w *WorldState) merge(primary, secondary *Cell) {
	areaA := primary.Area()
	areaB := secondary.Area()
	total := areaA + areaB
	if total > 0 {
		primary.Position = w.clampPosition(Vec2{
			(primary.Position[0]*areaA + secondary.Position[0]*areaB) / total,
			(primary.Position[1]*areaA + secondary.Position[1]*areaB) / total,
		})
	}
	primary.Radius = math.Sqrt(total / math.Pi)
	primary.MergeReadyAt = w.clock().Add(MergeDelay)
	w.removeCell(secondary.ID)
}

// absorb consumes the loser into the winner at 80% area efficiency. Removing
// an owner's last cell eliminates the player and queues the event.
func (w *WorldState) absorb(winner, loser *Cell) {
	winnerArea := winner.Area()
	loserArea := loser.Area() * 0.8
	total := winnerArea + loserArea
	if total > 0 {
		weightWinner := winnerArea / total
		weightLoser := loserArea / total
		winner.Position = w.clampPosition(Vec2{
			winner.Position[0]*weightWinner + loser.Position[0]*weightLoser,
			winner.Position[1]*weightWinner + loser.Position[1]*weightLoser,
		})
	}
	winner.Radius = math.Sqrt(total / math.Pi)
	winner.MergeReadyAt = w.clock().Add(MergeDelay)

	winnerPlayer := w.players[winner.PlayerID]
	loserPlayer := w.players[loser.PlayerID]
	if winnerPlayer != nil {
		winnerPlayer.CellsEaten++
	}

	loserID := loser.PlayerID
	w.removeCell(loser.ID)
	if len(w.playerCells[loserID]) == 0 {
		if loserPlayer != nil {
			event := Event{
				Type:     EventPlayerEliminated,
				WinnerID: winner.PlayerID,
				LoserID:  loserID,
			}
			if winnerPlayer != nil {
				event.WinnerName = winnerPlayer.Name
			}
			event.LoserName = loserPlayer.Name
			w.events = append(w.events, event)
		}
		delete(w.players, loserID)
		delete(w.playerCells, loserID)
		delete(w.targets, loserID)
		delete(w.splitCooldowns, loserID)
	}
}

// SplitPlayer halves the player's largest cell and launches the new half
// toward the current target. Rejected while the cooldown runs, at the cell
// cap, or when the result would be too small to survive.
func (w *WorldState) SplitPlayer(playerID string) {
	now := w.clock()
	if until, ok := w.splitCooldowns[playerID]; ok && now.Before(until) {
		return
	}
	cellIDs := w.playerCells[playerID]
	if len(cellIDs) == 0 || len(cellIDs) >= MaxCellsPerPlayer {
		return
	}

	var cell *Cell
	for _, id := range cellIDs {
		c := w.cells[id]
		if c != nil && (cell == nil || c.Radius > cell.Radius) {
			cell = c
		}
	}
	if cell == nil || cell.Radius < SplitMinRadius {
		return
	}

	newArea := cell.Area() / 2
	newRadius := math.Sqrt(newArea / math.Pi)
	if newRadius < SplitMinRadius/2 {
		return
	}

	origin := cell.Position
	target, ok := w.targets[playerID]
	if !ok {
		target = origin
	}
	direction := w.splitDirection(origin, target)

	// The original cell retreats slightly and shrinks; both halves share the
	// pre-split area exactly.
	cell.Position = w.clampPosition(origin.Sub(direction.Scale(newRadius * 0.8)))
	cell.Radius = newRadius
	cell.MergeReadyAt = now.Add(MergeDelay)

	mass := math.Max(newRadius*newRadius, 1.0)
	speed := math.Max(MinTargetSpeed, BaseTargetSpeed/math.Pow(mass, MassSpeedExponent))
	boost := direction.Scale(speed * BoostMultiplier)
	w.engine.ApplyImpulse(cell.ID, boost.Scale(-1))

	newCell := &Cell{
		ID:           newID(),
		PlayerID:     playerID,
		Position:     w.clampPosition(origin.Add(direction.Scale(newRadius * 2.4))),
		Radius:       newRadius,
		MergeReadyAt: now.Add(MergeDelay),
	}
	w.cells[newCell.ID] = newCell
	w.playerCells[playerID] = append(w.playerCells[playerID], newCell.ID)
	w.engine.AddCell(newCell, playerID)
	w.engine.ApplyImpulse(newCell.ID, boost)
	w.engine.SetTarget(cell.ID, target)
	w.engine.SetTarget(newCell.ID, target)

	w.splitCooldowns[playerID] = now.Add(SplitCooldown)
}

// splitDirection aims at the target; when the target sits on the cell it
// falls back to an angle stepped from a per-world counter so repeated splits
// fan out deterministically.
func (w *WorldState) splitDirection(origin, target Vec2) Vec2 {
	delta := target.Sub(origin)
	if dist := delta.Len(); dist >= 1e-3 {
		return delta.Scale(1 / dist)
	}
	w.splitCounter++
	angle := float64(w.splitCounter) * math.Pi / 4
	return Vec2{math.Cos(angle), math.Sin(angle)}
}

// ApplyConfig mutates the world configuration in place and reconciles the
// dependent state (engine bounds, pellet count). The runner calls this
// between ticks so a tick never observes half-applied values.
func (w *WorldState) ApplyConfig(width, height, tickRate float64, foodCount int, snapshotInterval float64) {
	w.Config.Width = width
	w.Config.Height = height
	w.Config.TickRate = tickRate
	w.Config.FoodCount = foodCount
	w.Config.SnapshotInterval = snapshotInterval
	w.engine.Resize(width, height)
	w.PopulateFood()
}

// Snapshot builds the wire state for this tick. Slices are sorted by id so
// output is deterministic.
func (w *WorldState) Snapshot() Snapshot {
	snap := Snapshot{
		Config:   w.Config,
		Players:  make([]PlayerView, 0, len(w.players)),
		Cells:    make([]CellView, 0, len(w.cells)),
		Foods:    make([]Food, 0, len(w.foods)),
		TickTime: w.simTime,
	}
	for _, player := range w.players {
		snap.Players = append(snap.Players, player.View())
	}
	for _, cell := range w.cells {
		snap.Cells = append(snap.Cells, cell.View())
	}
	for _, food := range w.foods {
		snap.Foods = append(snap.Foods, *food)
	}
	sort.Slice(snap.Players, func(i, j int) bool { return snap.Players[i].ID < snap.Players[j].ID })
	sort.Slice(snap.Cells, func(i, j int) bool { return snap.Cells[i].ID < snap.Cells[j].ID })
	sort.Slice(snap.Foods, func(i, j int) bool { return snap.Foods[i].ID < snap.Foods[j].ID })
	return snap
}

func (w *WorldState) removeCell(cellID string) {
	cell, ok := w.cells[cellID]
	if !ok {
		return
	}
	delete(w.cells, cellID)
	ids := w.playerCells[cell.PlayerID]
	for i, id := range ids {
		if id == cellID {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(w.playerCells, cell.PlayerID)
	} else {
		w.playerCells[cell.PlayerID] = ids
	}
	w.engine.RemoveCell(cellID)
}

func (w *WorldState) clampPosition(p Vec2) Vec2 {
	return Vec2{
		math.Max(0, math.Min(w.Config.Width, p[0])),
		math.Max(0, math.Min(w.Config.Height, p[1])),
	}
}

func (w *WorldState) randomPosition() Vec2 {
	return Vec2{w.rng.Float64() * w.Config.Width, w.rng.Float64() * w.Config.Height}
}

// orderedCells returns cells sorted by id for deterministic pair sweeps.
func (w *WorldState) orderedCells() []*Cell {
	cells := make([]*Cell, 0, len(w.cells))
	for _, cell := range w.cells {
		cells = append(cells, cell)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].ID < cells[j].ID })
	return cells
}

func (w *WorldState) orderedPlayerIDs() []string {
	ids := make([]string, 0, len(w.playerCells))
	for id := range w.playerCells {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func collides(posA Vec2, radiusA float64, posB Vec2, radiusB float64) bool {
	return posA.Sub(posB).Len() <= radiusA+radiusB
}

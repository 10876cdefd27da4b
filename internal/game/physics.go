package game

import (
	"hash/fnv"
	"math"
)

// Tunable physics constants. The integrator is steering-based: every cell
// chases its owner's target with a mass-dependent speed, split impulses decay
// exponentially, and a handful of relaxation passes keep same-owner cells
// spaced while separating opposing cells.
const (
	// MaxDeltaTime clamps integration steps so the simulation stays stable
	// when the scheduler hiccups for a frame.
	MaxDeltaTime = 1.0 / 30.0

	BaseTargetSpeed   = 520.0
	MinTargetSpeed    = 48.0
	MassSpeedExponent = 0.42

	BoostMultiplier = 2.3
	ImpulseDecay    = 6.0

	RelaxationPasses   = 4
	OwnerSpacingFactor = 0.95
)

// Vec2 is a 2D vector serialized as a [x, y] JSON array.
type Vec2 [2]float64

func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v[0] - o[0], v[1] - o[1]} }
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v[0] + o[0], v[1] + o[1]} }
func (v Vec2) Scale(s float64) Vec2 { return Vec2{v[0] * s, v[1] * s} }
func (v Vec2) Len() float64 { return math.Hypot(v[0], v[1]) }
func (v Vec2) Dot(o Vec2) float64 { return v[0]*o[0] + v[1]*o[1] }

// CollisionEvent reports an overlap between two cells owned by different
// players, detected while relaxing positions. FirstID < SecondID always
// holds so events are addressable by unordered pair.
type CollisionEvent struct {
	FirstID     string
	SecondID    string
	Penetration float64
	Normal      Vec2
}

// body is the physical mirror of a Cell inside the engine. The engine owns
// target and impulse; position, velocity and radius live on the Cell itself
// so world-level mutations (growth, teleports) are picked up immediately.
type body struct {
	cell    *Cell
	ownerID string
	target  Vec2
	impulse Vec2
}

func (b *body) mass() float64 {
	return math.Max(b.cell.Radius*b.cell.Radius, 1.0)
}

// targetSpeed is the cruising speed for the body's current mass. Heavier
// cells crawl; the floor keeps even huge cells controllable.
func (b *body) targetSpeed() float64 {
	return math.Max(MinTargetSpeed, BaseTargetSpeed/math.Pow(b.mass(), MassSpeedExponent))
}

// PhysicsEngine advances cell positions for a single world. It never removes
// cells and never touches ownership; resolving absorption is the world's job.
// Iteration follows insertion order so a given sequence of operations always
// produces the same result.
type PhysicsEngine struct {
	width  float64
	height float64
	bodies map[string]*body
	order  []string
}

func NewPhysicsEngine(width, height float64) *PhysicsEngine {
	return &PhysicsEngine{
		width:  width,
		height: height,
		bodies: make(map[string]*body),
	}
}

// Resize updates the world rectangle used for position clamping.
func (e *PhysicsEngine) Resize(width, height float64) {
	e.width = width
	e.height = height
}

// AddCell registers a cell with the engine. The initial target is the cell's
// own position so it idles until the owner steers.
func (e *PhysicsEngine) AddCell(cell *Cell, ownerID string) {
	if _, ok := e.bodies[cell.ID]; ok {
		return
	}
	cell.Position = e.clamp(cell.Position)
	e.bodies[cell.ID] = &body{cell: cell, ownerID: ownerID, target: cell.Position}
	e.order = append(e.order, cell.ID)
}

func (e *PhysicsEngine) RemoveCell(cellID string) {
	if _, ok := e.bodies[cellID]; !ok {
		return
	}
	delete(e.bodies, cellID)
	for i, id := range e.order {
		if id == cellID {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// SetTarget points a cell at a steering target. Targets are clamped to the
// world rectangle.
func (e *PhysicsEngine) SetTarget(cellID string, target Vec2) {
	if b, ok := e.bodies[cellID]; ok {
		b.target = e.clamp(target)
	}
}

// ApplyImpulse adds a transient velocity that decays exponentially over the
// following steps. Splits use this for the launch boost.
func (e *PhysicsEngine) ApplyImpulse(cellID string, impulse Vec2) {
	if b, ok := e.bodies[cellID]; ok {
		b.impulse = b.impulse.Add(impulse)
	}
}

// Impulse returns the current impulse carried by a cell.
func (e *PhysicsEngine) Impulse(cellID string) Vec2 {
	if b, ok := e.bodies[cellID]; ok {
		return b.impulse
	}
	return Vec2{}
}

// Step advances all bodies by dt seconds and returns the opposing-cell
// collisions that were resolved during relaxation, deduplicated by unordered
// pair keeping the deepest penetration.
func (e *PhysicsEngine) Step(dt float64) []CollisionEvent {
	dt = math.Min(math.Max(dt, 1e-4), MaxDeltaTime)

	if len(e.bodies) == 0 {
		return nil
	}

	decay := math.Exp(-ImpulseDecay * dt)
	for _, id := range e.order {
		b := e.bodies[id]
		e.integrate(b, dt)
		b.impulse = b.impulse.Scale(decay)
	}

	collisions := make(map[[2]string]CollisionEvent)
	var keys [][2]string
	for pass := 0; pass < RelaxationPasses; pass++ {
		keys = e.relax(collisions, keys)
	}

	events := make([]CollisionEvent, 0, len(keys))
	for _, key := range keys {
		events = append(events, collisions[key])
	}
	return events
}

// integrate computes the velocity toward the target, layers the impulse on
// top, clamps the result to the boost ceiling and advances the position.
func (e *PhysicsEngine) integrate(b *body, dt float64) {
	speed := b.targetSpeed()

	var desired Vec2
	delta := b.target.Sub(b.cell.Position)
	if dist := delta.Len(); dist > 1e-6 {
		desired = delta.Scale(speed / dist)
	}

	velocity := desired.Add(b.impulse)
	limit := speed * BoostMultiplier
	if mag := velocity.Len(); mag > limit {
		velocity = velocity.Scale(limit / mag)
	}

	b.cell.Velocity = velocity
	b.cell.Position = e.clamp(b.cell.Position.Add(velocity.Scale(dt)))
}

// relax runs one pass of same-owner spacing and opponent separation over all
// pairs, recording opposing overlaps into collisions.
func (e *PhysicsEngine) relax(collisions map[[2]string]CollisionEvent, keys [][2]string) [][2]string {
	for i := 0; i < len(e.order); i++ {
		first := e.bodies[e.order[i]]
		for j := i + 1; j < len(e.order); j++ {
			second := e.bodies[e.order[j]]
			if first.ownerID == second.ownerID {
				e.spaceSameOwner(first, second)
				continue
			}
			keys = e.separateOpponents(first, second, collisions, keys)
		}
	}
	return keys
}

// spaceSameOwner keeps cells of one player in a loose ring: if two siblings
// are closer than the spacing distance they are pushed apart by the other's
// mass share and the approaching half of their relative velocity is damped.
func (e *PhysicsEngine) spaceSameOwner(first, second *body) {
	spacing := (first.cell.Radius + second.cell.Radius) * OwnerSpacingFactor
	delta := second.cell.Position.Sub(first.cell.Position)
	dist := delta.Len()
	if dist >= spacing {
		return
	}

	normal := pairNormal(delta, dist, first.cell.ID, second.cell.ID)
	overlap := spacing - dist

	totalMass := first.mass() + second.mass()
	shareFirst := second.mass() / totalMass
	shareSecond := first.mass() / totalMass

	first.cell.Position = e.clamp(first.cell.Position.Sub(normal.Scale(overlap * shareFirst)))
	second.cell.Position = e.clamp(second.cell.Position.Add(normal.Scale(overlap * shareSecond)))

	// Halve the inward component of the relative velocity so siblings stop
	// grinding into each other without killing lateral motion.
	relative := second.cell.Velocity.Sub(first.cell.Velocity)
	if approach := relative.Dot(normal); approach < 0 {
		adjust := normal.Scale(-approach * 0.25)
		first.cell.Velocity = first.cell.Velocity.Sub(adjust)
		second.cell.Velocity = second.cell.Velocity.Add(adjust)
	}
}

// separateOpponents resolves an overlap between cells of different owners by
// pushing them fully apart along the normal, and records the collision.
func (e *PhysicsEngine) separateOpponents(first, second *body, collisions map[[2]string]CollisionEvent, keys [][2]string) [][2]string {
	minDist := first.cell.Radius + second.cell.Radius
	delta := second.cell.Position.Sub(first.cell.Position)
	dist := delta.Len()
	if dist >= minDist {
		return keys
	}

	normal := pairNormal(delta, dist, first.cell.ID, second.cell.ID)
	penetration := minDist - dist

	totalMass := first.mass() + second.mass()
	shareFirst := second.mass() / totalMass
	shareSecond := first.mass() / totalMass

	first.cell.Position = e.clamp(first.cell.Position.Sub(normal.Scale(penetration * shareFirst)))
	second.cell.Position = e.clamp(second.cell.Position.Add(normal.Scale(penetration * shareSecond)))

	event := CollisionEvent{
		FirstID:     first.cell.ID,
		SecondID:    second.cell.ID,
		Penetration: penetration,
		Normal:      normal,
	}
	if event.FirstID > event.SecondID {
		event.FirstID, event.SecondID = event.SecondID, event.FirstID
		event.Normal = event.Normal.Scale(-1)
	}

	key := [2]string{event.FirstID, event.SecondID}
	existing, seen := collisions[key]
	if !seen {
		keys = append(keys, key)
	}
	if !seen || event.Penetration > existing.Penetration {
		collisions[key] = event
	}
	return keys
}

func (e *PhysicsEngine) clamp(p Vec2) Vec2 {
	return Vec2{
		math.Max(0, math.Min(e.width, p[0])),
		math.Max(0, math.Min(e.height, p[1])),
	}
}

// pairNormal returns the unit separation normal for a pair. Coincident
// centres fall back to an angle hashed from the concatenated ids, so the
// direction is stable across runs without any randomness.
func pairNormal(delta Vec2, dist float64, firstID, secondID string) Vec2 {
	if dist > 1e-9 {
		return delta.Scale(1 / dist)
	}
	h := fnv.New32a()
	h.Write([]byte(firstID))
	h.Write([]byte(secondID))
	angle := float64(h.Sum32()%360) * math.Pi / 180.0
	return Vec2{math.Cos(angle), math.Sin(angle)}
}

package game

import (
	"math"
	"testing"
)

func TestIntegrationMovesTowardTarget(t *testing.T) {
	engine := NewPhysicsEngine(1000, 1000)
	cell := &Cell{ID: "a", PlayerID: "p1", Position: Vec2{100, 100}, Radius: 25}
	engine.AddCell(cell, "p1")
	engine.SetTarget("a", Vec2{900, 100})

	engine.Step(1.0 / 30.0)

	if cell.Position[0] <= 100 {
		t.Errorf("expected movement toward target, x = %f", cell.Position[0])
	}
	if cell.Position[1] != 100 {
		t.Errorf("expected straight-line movement, y = %f", cell.Position[1])
	}
}

func TestIdleWithoutTarget(t *testing.T) {
	engine := NewPhysicsEngine(1000, 1000)
	cell := &Cell{ID: "a", PlayerID: "p1", Position: Vec2{100, 100}, Radius: 25}
	engine.AddCell(cell, "p1")

	engine.Step(1.0 / 30.0)

	if cell.Position != (Vec2{100, 100}) {
		t.Errorf("cell drifted without a target: %v", cell.Position)
	}
}

func TestHeavierCellsMoveSlower(t *testing.T) {
	engine := NewPhysicsEngine(10000, 10000)
	small := &Cell{ID: "a", PlayerID: "p1", Position: Vec2{100, 100}, Radius: 20}
	big := &Cell{ID: "b", PlayerID: "p2", Position: Vec2{100, 5000}, Radius: 80}
	engine.AddCell(small, "p1")
	engine.AddCell(big, "p2")
	engine.SetTarget("a", Vec2{9000, 100})
	engine.SetTarget("b", Vec2{9000, 5000})

	engine.Step(1.0 / 30.0)

	smallDist := small.Position[0] - 100
	bigDist := big.Position[0] - 100
	if bigDist >= smallDist {
		t.Errorf("big cell (%f) should be slower than small cell (%f)", bigDist, smallDist)
	}
	if bigDist <= 0 {
		t.Errorf("big cell should still move, got %f", bigDist)
	}
}

func TestSpeedFloor(t *testing.T) {
	b := &body{cell: &Cell{Radius: 10000}}
	if got := b.targetSpeed(); got != MinTargetSpeed {
		t.Errorf("expected speed floor %f for huge cell, got %f", MinTargetSpeed, got)
	}
}

func TestPositionsClampedToBounds(t *testing.T) {
	engine := NewPhysicsEngine(500, 500)
	cell := &Cell{ID: "a", PlayerID: "p1", Position: Vec2{490, 490}, Radius: 25}
	engine.AddCell(cell, "p1")
	engine.SetTarget("a", Vec2{499, 499})
	engine.ApplyImpulse("a", Vec2{5000, 5000})

	for i := 0; i < 10; i++ {
		engine.Step(1.0 / 30.0)
	}

	if cell.Position[0] > 500 || cell.Position[1] > 500 {
		t.Errorf("cell escaped bounds: %v", cell.Position)
	}
}

func TestImpulseDecays(t *testing.T) {
	engine := NewPhysicsEngine(10000, 10000)
	cell := &Cell{ID: "a", PlayerID: "p1", Position: Vec2{5000, 5000}, Radius: 25}
	engine.AddCell(cell, "p1")
	engine.ApplyImpulse("a", Vec2{1000, 0})

	before := engine.Impulse("a").Len()
	engine.Step(1.0 / 30.0)
	after := engine.Impulse("a").Len()

	if after >= before {
		t.Errorf("impulse did not decay: %f -> %f", before, after)
	}
	want := before * math.Exp(-ImpulseDecay/30.0)
	if math.Abs(after-want) > 1e-9 {
		t.Errorf("decay mismatch: got %f, want %f", after, want)
	}
}

func TestDeltaTimeClamped(t *testing.T) {
	engine := NewPhysicsEngine(10000, 10000)
	cell := &Cell{ID: "a", PlayerID: "p1", Position: Vec2{100, 100}, Radius: 25}
	engine.AddCell(cell, "p1")
	engine.SetTarget("a", Vec2{9000, 100})

	engine.Step(5.0) // scheduler hiccup

	moved := cell.Position[0] - 100
	speed := math.Max(MinTargetSpeed, BaseTargetSpeed/math.Pow(625, MassSpeedExponent))
	maxStep := speed * MaxDeltaTime
	if moved > maxStep+1e-6 {
		t.Errorf("dt clamp failed: moved %f, max %f", moved, maxStep)
	}
}

func TestOpponentSeparationReportsCollision(t *testing.T) {
	engine := NewPhysicsEngine(1000, 1000)
	a := &Cell{ID: "a", PlayerID: "p1", Position: Vec2{500, 500}, Radius: 30}
	b := &Cell{ID: "b", PlayerID: "p2", Position: Vec2{510, 500}, Radius: 30}
	engine.AddCell(a, "p1")
	engine.AddCell(b, "p2")

	events := engine.Step(1.0 / 30.0)

	if len(events) != 1 {
		t.Fatalf("expected 1 collision event, got %d", len(events))
	}
	ev := events[0]
	if ev.FirstID != "a" || ev.SecondID != "b" {
		t.Errorf("event ids not ordered: %s, %s", ev.FirstID, ev.SecondID)
	}
	if ev.Penetration <= 0 {
		t.Errorf("expected positive penetration, got %f", ev.Penetration)
	}

	dist := a.Position.Sub(b.Position).Len()
	if dist < a.Radius+b.Radius-1e-6 {
		t.Errorf("opponents still overlap after relaxation: dist %f", dist)
	}
}

func TestCollisionDedupKeepsDeepestPenetration(t *testing.T) {
	engine := NewPhysicsEngine(1000, 1000)
	// Heavy overlap: the first relaxation pass resolves most of it, so
	// later passes would report shallower penetrations if kept.
	a := &Cell{ID: "a", PlayerID: "p1", Position: Vec2{500, 500}, Radius: 40}
	b := &Cell{ID: "b", PlayerID: "p2", Position: Vec2{505, 500}, Radius: 40}
	engine.AddCell(a, "p1")
	engine.AddCell(b, "p2")

	events := engine.Step(1.0 / 30.0)

	if len(events) != 1 {
		t.Fatalf("expected deduplicated event, got %d", len(events))
	}
	if events[0].Penetration < 70 {
		t.Errorf("expected deepest penetration (~75), got %f", events[0].Penetration)
	}
}

func TestCoincidentFallbackDeterministic(t *testing.T) {
	n1 := pairNormal(Vec2{}, 0, "cell-a", "cell-b")
	n2 := pairNormal(Vec2{}, 0, "cell-a", "cell-b")
	if n1 != n2 {
		t.Errorf("fallback normal not deterministic: %v vs %v", n1, n2)
	}
	if math.Abs(n1.Len()-1) > 1e-9 {
		t.Errorf("fallback normal not unit length: %f", n1.Len())
	}

	other := pairNormal(Vec2{}, 0, "cell-b", "cell-c")
	if n1 == other {
		t.Errorf("different pairs produced identical fallback normals")
	}
}

func TestSameOwnerSpacing(t *testing.T) {
	engine := NewPhysicsEngine(1000, 1000)
	a := &Cell{ID: "a", PlayerID: "p1", Position: Vec2{500, 500}, Radius: 30}
	b := &Cell{ID: "b", PlayerID: "p1", Position: Vec2{505, 500}, Radius: 30}
	engine.AddCell(a, "p1")
	engine.AddCell(b, "p1")

	events := engine.Step(1.0 / 30.0)

	if len(events) != 0 {
		t.Errorf("same-owner overlap must not produce collision events, got %d", len(events))
	}

	spacing := (a.Radius + b.Radius) * OwnerSpacingFactor
	dist := a.Position.Sub(b.Position).Len()
	if dist < spacing-1e-6 {
		t.Errorf("siblings closer than spacing: %f < %f", dist, spacing)
	}
}

func TestRemoveCellStopsTracking(t *testing.T) {
	engine := NewPhysicsEngine(1000, 1000)
	a := &Cell{ID: "a", PlayerID: "p1", Position: Vec2{500, 500}, Radius: 30}
	engine.AddCell(a, "p1")
	engine.RemoveCell("a")

	engine.SetTarget("a", Vec2{900, 900})
	engine.Step(1.0 / 30.0)

	if a.Position != (Vec2{500, 500}) {
		t.Errorf("removed cell still integrated: %v", a.Position)
	}
	if engine.Impulse("a") != (Vec2{}) {
		t.Errorf("removed cell still has engine state")
	}
}

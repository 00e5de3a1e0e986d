package world

import (
	"math"
	"testing"

	"lockstep.rts/internal/protocol"
	"lockstep.rts/internal/sim/world/logic/mathx"
)

func TestStep_MoveArrivesAfterTwentyTicks(t *testing.T) {
	e := testEngine(t)
	s := bareState(0)
	u := addUnit(t, e, s, "U-1", "self", "crusader", Vec2{X: 0, Y: 0})
	if u.Stats.Speed != 5 {
		t.Fatalf("crusader speed=%v", u.Stats.Speed)
	}

	s = run(e, s, 19, map[uint64][]protocol.Command{
		1: {protocol.MoveUnits("self", []string{"U-1"}, 100, 0)},
	})
	got := s.Unit("U-1")
	if got.Status != UnitMoving || math.Abs(got.Pos.X-95) > 1e-9 {
		t.Fatalf("after 19 ticks: status=%s pos=%+v", got.Status, got.Pos)
	}

	s = run(e, s, 1, nil)
	got = s.Unit("U-1")
	if got.Status != UnitIdle || got.Path != nil {
		t.Fatalf("after 20 ticks: status=%s path=%v", got.Status, got.Path)
	}
	if got.Pos != (Vec2{X: 100, Y: 0}) {
		t.Fatalf("pos=%+v", got.Pos)
	}
}

func TestStep_DoesNotMutatePrevious(t *testing.T) {
	e := testEngine(t)
	s := bareState(1000)
	addUnit(t, e, s, "U-1", "self", "ranger", Vec2{X: 200, Y: 200})
	before := Digest(s)

	next := e.Step(s, []protocol.Command{protocol.MoveUnits("self", []string{"U-1"}, 400, 200)}, 1)
	if Digest(s) != before {
		t.Fatalf("previous state changed")
	}
	if s.Unit("U-1").Path != nil || next.Unit("U-1").Path == nil {
		t.Fatalf("path leaked between states")
	}
	if next.Tick != 1 {
		t.Fatalf("tick=%d", next.Tick)
	}
}

func TestStep_EmptyCommandsOnlyAdvanceTime(t *testing.T) {
	e := testEngine(t)
	s, err := e.NewMatch()
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	next := e.Step(s, nil, 1)
	if next.Tick != 1 || next.Status != StatusPlaying {
		t.Fatalf("tick=%d status=%s", next.Tick, next.Status)
	}
	for i, p := range next.Players {
		if p.Money != s.Players[i].Money {
			t.Fatalf("money changed for %s", p.ID)
		}
	}
	for i, u := range next.Units {
		if u.Pos != s.Units[i].Pos || u.Status != UnitIdle {
			t.Fatalf("unit %s changed: %+v", u.ID, u)
		}
	}
	if len(next.Effects) != 0 {
		t.Fatalf("effects=%v", next.Effects)
	}
}

func TestStep_CombatKillsTargetAndIdles(t *testing.T) {
	e := testEngine(t)
	s := bareState(0)
	addUnit(t, e, s, "U-a", "self", "crusader", Vec2{X: 100, Y: 100})
	target := addUnit(t, e, s, "U-t", "enemy", "ranger", Vec2{X: 120, Y: 100})
	target.Health = 9

	s = run(e, s, 1, map[uint64][]protocol.Command{
		1: {protocol.MoveUnitsTo("self", []string{"U-a"}, protocol.TargetUnit, "U-t")},
	})
	if a := s.Unit("U-a"); a.Status != UnitAttacking {
		t.Fatalf("attacker status=%s", a.Status)
	}
	if h := s.Unit("U-t").Health; h != 6 {
		t.Fatalf("health after 1 tick=%v", h)
	}

	s = run(e, s, 2, nil)
	if s.Unit("U-t") != nil {
		t.Fatalf("target should be removed")
	}
	if a := s.Unit("U-a"); a.Status != UnitAttacking {
		t.Fatalf("attacker status=%s before noticing", a.Status)
	}
	s = run(e, s, 1, nil)
	if a := s.Unit("U-a"); a.Status != UnitIdle || a.Target != nil {
		t.Fatalf("attacker should idle: %+v", a)
	}
}

func TestStep_CombatChasesAndEmitsTracers(t *testing.T) {
	e := testEngine(t)
	s := bareState(0)
	addUnit(t, e, s, "U-a", "self", "crusader", Vec2{X: 100, Y: 300})
	b := addBuilding(t, e, s, "B-w", "enemy", "war_factory", Vec2{X: 300, Y: 275}, BuildingReady)
	centre := Vec2{X: 325, Y: 300}

	// 225 away with range 120: the crusader closes in for about 21 ticks.
	s = run(e, s, 1, map[uint64][]protocol.Command{
		1: {protocol.MoveUnitsTo("self", []string{"U-a"}, protocol.TargetBuilding, "B-w")},
	})
	if a := s.Unit("U-a"); math.Abs(a.Pos.X-105) > 1e-9 || s.Building("B-w").Health != b.MaxHealth {
		t.Fatalf("expected chase without damage: pos=%+v health=%v", a.Pos, s.Building("B-w").Health)
	}

	for s.Tick < 40 {
		s = run(e, s, 1, nil)
		if s.Unit("U-a").Status != UnitAttacking {
			t.Fatalf("tick %d: attacker stopped", s.Tick)
		}
		wantTracer := s.Tick%5 == 0 && s.Tick >= 25
		if !wantTracer {
			if len(s.Effects) != 0 {
				t.Fatalf("tick %d: unexpected effects %v", s.Tick, s.Effects)
			}
			continue
		}
		if len(s.Effects) != 1 {
			t.Fatalf("tick %d: effects=%v", s.Tick, s.Effects)
		}
		fx := s.Effects[0]
		if fx.Kind != EffectTracer || fx.ColorHint != "#ffcc00" || fx.To != centre {
			t.Fatalf("tracer=%+v", fx)
		}
	}

	if d := mathx.Dist(s.Unit("U-a").Pos, centre); d > 120 {
		t.Fatalf("attacker never reached range: %v", d)
	}
	// In range from tick 22 or 23 onwards, 3 damage per tick.
	got := s.Building("B-w").Health
	if got != b.MaxHealth-3*19 && got != b.MaxHealth-3*18 {
		t.Fatalf("building health=%v", got)
	}
}

func TestStep_PlaceBuildingCompletesReady(t *testing.T) {
	e := testEngine(t)
	s := bareState(500)
	addUnit(t, e, s, "U-b", "self", "builder", Vec2{X: 300, Y: 300})

	s = run(e, s, 1, map[uint64][]protocol.Command{
		1: {protocol.PlaceBuilding("self", "power_generator", 400, 300)},
	})
	if len(s.Buildings) != 1 {
		t.Fatalf("buildings=%d", len(s.Buildings))
	}
	b := s.Buildings[0]
	if b.ID != "B1.1" || b.Status != BuildingConstructing || b.Health != 10 {
		t.Fatalf("building=%+v", b)
	}
	if s.Player("self").Money != 0 {
		t.Fatalf("money=%d", s.Player("self").Money)
	}
	if u := s.Unit("U-b"); u.Status != UnitMovingToBuild || u.Target == nil || u.Target.ID != b.ID {
		t.Fatalf("builder=%+v", u)
	}

	for i := 0; i < 200 && s.Building(b.ID).Status != BuildingReady; i++ {
		s = run(e, s, 1, nil)
		checkInvariants(t, s)
		if bb := s.Building(b.ID); bb.Status == BuildingConstructing && bb.Progress > 0 {
			if s.Unit("U-b").Status != UnitConstructing {
				t.Fatalf("tick %d: progress without builder on site", s.Tick)
			}
		}
	}
	done := s.Building(b.ID)
	if done.Status != BuildingReady || done.Health != done.MaxHealth {
		t.Fatalf("building not completed: %+v", done)
	}
	u := s.Unit("U-b")
	if u.Status != UnitIdle || u.Pos.Y != 365 {
		t.Fatalf("builder after completion: %+v", u)
	}
	// Power is recomputed by the economy stage of the following tick.
	s = run(e, s, 1, nil)
	if p := s.Player("self"); p.Power != 100 || p.Money != 0 {
		t.Fatalf("player=%+v", p)
	}
}

func TestStep_ConstructionWaitsForBuilder(t *testing.T) {
	e := testEngine(t)
	s := bareState(1000)
	b := addBuilding(t, e, s, "B-s", "self", "supply_center", Vec2{X: 600, Y: 300}, BuildingConstructing)
	s = run(e, s, 30, nil)
	if got := s.Building(b.ID); got.Progress != 0 || got.Health != 10 {
		t.Fatalf("site advanced without builder: %+v", got)
	}
}

func TestStep_ProductionSpawnsAtRally(t *testing.T) {
	e := testEngine(t)
	s := bareState(1000)
	addBuilding(t, e, s, "B-r", "self", "barracks", Vec2{X: 200, Y: 200}, BuildingReady)

	s = run(e, s, 1, map[uint64][]protocol.Command{
		1: {
			protocol.BuildUnit("self", "B-r", "ranger"),
			protocol.BuildUnit("self", "B-r", "ranger"),
			protocol.BuildUnit("self", "B-r", "crusader"),
		},
	})
	b := s.Building("B-r")
	if len(b.Queue) != 2 || s.Player("self").Money != 600 {
		t.Fatalf("queue=%v money=%d", b.Queue, s.Player("self").Money)
	}
	if b.Queue[0].Progress != 1 || b.Queue[1].Progress != 0 {
		t.Fatalf("only the head advances: %+v", b.Queue)
	}

	s = run(e, s, 99, nil)
	if len(s.Units) != 1 {
		t.Fatalf("units=%d", len(s.Units))
	}
	u := s.Units[0]
	if u.ID != "U100.1" || u.Owner != "self" || u.Type != "ranger" || u.Health != u.MaxHealth {
		t.Fatalf("spawned=%+v", u)
	}
	if u.Status != UnitMoving || u.Path.Dest != (Vec2{X: 225, Y: 280}) {
		t.Fatalf("spawned unit should head to rally: %+v", u)
	}
	if u.GraceTicks == 0 {
		t.Fatalf("spawn grace not set")
	}
	if len(s.Building("B-r").Queue) != 1 {
		t.Fatalf("queue not popped")
	}
}

func TestStep_CollisionSeparatesExactOverlap(t *testing.T) {
	e := testEngine(t)
	s := bareState(0)
	addUnit(t, e, s, "U-1", "self", "ranger", Vec2{X: 500, Y: 500})
	addUnit(t, e, s, "U-2", "self", "ranger", Vec2{X: 500, Y: 500})

	s = run(e, s, 1, nil)
	a, b := s.Unit("U-1"), s.Unit("U-2")
	if a.Pos != (Vec2{X: 490, Y: 500}) || b.Pos != (Vec2{X: 510, Y: 500}) {
		t.Fatalf("a=%+v b=%+v", a.Pos, b.Pos)
	}
}

func TestStep_CollisionKeepsUnitsOnMap(t *testing.T) {
	e := testEngine(t)
	s := bareState(0)
	addUnit(t, e, s, "U-1", "self", "ranger", Vec2{X: 0, Y: 0})
	addUnit(t, e, s, "U-2", "self", "ranger", Vec2{X: 0, Y: 0})
	addUnit(t, e, s, "U-3", "enemy", "ranger", Vec2{X: 1280, Y: 720})
	addUnit(t, e, s, "U-4", "enemy", "ranger", Vec2{X: 1280, Y: 720})

	s = run(e, s, 1, nil)
	want := map[string]Vec2{
		"U-1": {X: 0, Y: 0},
		"U-2": {X: 10, Y: 0},
		"U-3": {X: 1270, Y: 720},
		"U-4": {X: 1280, Y: 720},
	}
	for id, p := range want {
		if got := s.Unit(id).Pos; got != p {
			t.Fatalf("%s at %+v, want %+v", id, got, p)
		}
	}
}

func TestStep_BottomEdgeProducerSpawnsOnMap(t *testing.T) {
	e := testEngine(t)
	s := bareState(0)
	b := addBuilding(t, e, s, "B-r", "self", "barracks", Vec2{X: 600, Y: 670}, BuildingReady)
	b.Rally = e.defaultRally(b.Pos)
	b.Queue = []QueueItem{{UnitType: "ranger", Total: 1}}

	for i := 0; i < 20; i++ {
		s = run(e, s, 1, nil)
		checkInvariants(t, s)
		for _, u := range s.Units {
			if u.Pos.X < 0 || u.Pos.X > 1280 || u.Pos.Y < 0 || u.Pos.Y > 720 {
				t.Fatalf("tick %d: unit %s off map at %+v", s.Tick, u.ID, u.Pos)
			}
		}
	}
	if len(s.Units) != 1 {
		t.Fatalf("units=%d", len(s.Units))
	}
}

func TestStep_UnitsPushedOffReadyBuildings(t *testing.T) {
	e := testEngine(t)
	s := bareState(0)
	addBuilding(t, e, s, "B-1", "self", "barracks", Vec2{X: 200, Y: 200}, BuildingReady)
	addUnit(t, e, s, "U-1", "self", "ranger", Vec2{X: 205, Y: 230})
	g := addUnit(t, e, s, "U-2", "self", "ranger", Vec2{X: 240, Y: 210})
	g.GraceTicks = 5

	s = run(e, s, 1, nil)
	if p := s.Unit("U-1").Pos; p != (Vec2{X: 200, Y: 230}) {
		t.Fatalf("pushed to %+v", p)
	}
	if p := s.Unit("U-2").Pos; p != (Vec2{X: 240, Y: 210}) {
		t.Fatalf("unit in grace moved to %+v", p)
	}
}

func TestStep_VictoryAndDefeatPersist(t *testing.T) {
	e := testEngine(t)

	s := bareState(0)
	addBuilding(t, e, s, "B-1", "self", "barracks", Vec2{X: 200, Y: 200}, BuildingReady)
	s.Tick = 50
	s = run(e, s, 1, nil)
	if s.Status != StatusPlaying {
		t.Fatalf("decided during grace: %s", s.Status)
	}

	s.Tick = 100
	s = run(e, s, 1, nil)
	if s.Status != StatusVictory || s.Winner != "self" {
		t.Fatalf("status=%s winner=%q", s.Status, s.Winner)
	}
	addUnit(t, e, s, "U-e", "enemy", "ranger", Vec2{X: 900, Y: 500})
	s = run(e, s, 5, nil)
	if s.Status != StatusVictory {
		t.Fatalf("terminal status reverted: %s", s.Status)
	}

	d := bareState(0)
	addUnit(t, e, d, "U-e", "enemy", "ranger", Vec2{X: 900, Y: 500})
	d.Tick = 100
	d = run(e, d, 1, nil)
	if d.Status != StatusDefeat || d.Winner != "enemy" {
		t.Fatalf("status=%s winner=%q", d.Status, d.Winner)
	}
}

func TestStep_IncomeEveryTwentyTicks(t *testing.T) {
	e := testEngine(t)
	s := bareState(0)
	addBuilding(t, e, s, "B-1", "self", "supply_center", Vec2{X: 200, Y: 200}, BuildingReady)
	addBuilding(t, e, s, "B-2", "self", "supply_center", Vec2{X: 300, Y: 200}, BuildingReady)
	addBuilding(t, e, s, "B-3", "self", "supply_center", Vec2{X: 400, Y: 200}, BuildingConstructing)

	s = run(e, s, 19, nil)
	if p := s.Player("self"); p.Money != 0 || p.IncomeRate != 100 || p.Power != -20 {
		t.Fatalf("before income tick: %+v", p)
	}
	s = run(e, s, 1, nil)
	if p := s.Player("self"); p.Money != 100 {
		t.Fatalf("after income tick: %+v", p)
	}
	if s.Player("enemy").Money != 0 {
		t.Fatalf("enemy earned money")
	}
}

func TestStep_MoveAroundBuilding(t *testing.T) {
	e := testEngine(t)
	s := bareState(0)
	for i := 0; i < 6; i++ {
		addBuilding(t, e, s, "B-w"+string(rune('0'+i)), "self", "power_generator", Vec2{X: 300, Y: float64(200 + i*50)}, BuildingReady)
	}
	addUnit(t, e, s, "U-1", "self", "ranger", Vec2{X: 250, Y: 350})

	s = run(e, s, 1, map[uint64][]protocol.Command{
		1: {protocol.MoveUnits("self", []string{"U-1"}, 420, 350)},
	})
	u := s.Unit("U-1")
	if u.Status != UnitMoving || len(u.Path.Waypoints) < 2 {
		t.Fatalf("expected detour path: %+v", u.Path)
	}
	lastCursor := 0
	for i := 0; i < 300 && s.Unit("U-1").Status == UnitMoving; i++ {
		s = run(e, s, 1, nil)
		checkInvariants(t, s)
		if p := s.Unit("U-1").Path; p != nil {
			if p.Cursor < lastCursor {
				t.Fatalf("cursor went back: %d -> %d", lastCursor, p.Cursor)
			}
			lastCursor = p.Cursor
		}
	}
	if got := s.Unit("U-1"); got.Status != UnitIdle || got.Pos != (Vec2{X: 420, Y: 350}) {
		t.Fatalf("unit did not arrive: %+v", got)
	}
}

package world

import (
	"fmt"
	"testing"

	"lockstep.rts/internal/protocol"
)

func TestBuildUnit_InsufficientFundsIsNoop(t *testing.T) {
	e := testEngine(t)
	s := bareState(100)
	addBuilding(t, e, s, "B-r", "self", "barracks", Vec2{X: 200, Y: 200}, BuildingReady)

	next := e.Step(s, []protocol.Command{protocol.BuildUnit("self", "B-r", "ranger")}, 1)
	if len(next.Building("B-r").Queue) != 0 || next.Player("self").Money != 100 {
		t.Fatalf("queue=%v money=%d", next.Building("B-r").Queue, next.Player("self").Money)
	}
}

func TestBuildUnit_RequiresOwnedReadyProducer(t *testing.T) {
	e := testEngine(t)
	s := bareState(5000)
	addBuilding(t, e, s, "B-r", "self", "barracks", Vec2{X: 200, Y: 200}, BuildingReady)
	addBuilding(t, e, s, "B-c", "self", "barracks", Vec2{X: 400, Y: 200}, BuildingConstructing)
	addBuilding(t, e, s, "B-p", "self", "power_generator", Vec2{X: 600, Y: 200}, BuildingReady)

	next := e.Step(s, []protocol.Command{
		protocol.BuildUnit("enemy", "B-r", "ranger"),
		protocol.BuildUnit("self", "B-c", "ranger"),
		protocol.BuildUnit("self", "B-p", "ranger"),
		protocol.BuildUnit("self", "B-r", "builder"),
		protocol.BuildUnit("self", "B-missing", "ranger"),
		protocol.BuildUnit("nobody", "B-r", "ranger"),
	}, 1)
	for _, b := range next.Buildings {
		if len(b.Queue) != 0 {
			t.Fatalf("building %s queued %v", b.ID, b.Queue)
		}
	}
	if next.Player("self").Money != 5000 || next.Player("enemy").Money != 5000 {
		t.Fatalf("money charged")
	}
}

func TestPlaceBuilding_Rejections(t *testing.T) {
	e := testEngine(t)
	s := bareState(5000)
	addBuilding(t, e, s, "B-1", "enemy", "barracks", Vec2{X: 200, Y: 200}, BuildingReady)
	addUnit(t, e, s, "U-1", "enemy", "ranger", Vec2{X: 620, Y: 420})

	cases := []struct {
		name string
		typ  string
		pos  Vec2
	}{
		{"unknown type", "castle", Vec2{X: 500, Y: 500}},
		{"overlaps building", "barracks", Vec2{X: 230, Y: 230}},
		{"inside clearance margin", "barracks", Vec2{X: 251, Y: 200}},
		{"covers a unit", "barracks", Vec2{X: 600, Y: 400}},
		{"outside map", "barracks", Vec2{X: 1250, Y: 100}},
		{"negative position", "barracks", Vec2{X: -10, Y: 100}},
	}
	for _, tc := range cases {
		if e.CanPlace(s, "self", tc.typ, tc.pos) {
			t.Fatalf("%s: expected rejection", tc.name)
		}
		next := e.Step(s, []protocol.Command{protocol.PlaceBuilding("self", tc.typ, tc.pos.X, tc.pos.Y)}, 1)
		if len(next.Buildings) != 1 || next.Player("self").Money != 5000 {
			t.Fatalf("%s: state changed", tc.name)
		}
	}
	if !e.CanPlace(s, "self", "barracks", Vec2{X: 253, Y: 200}) {
		t.Fatalf("expected placement just outside the margin to pass")
	}
	poor := bareState(599)
	if e.CanPlace(poor, "self", "barracks", Vec2{X: 500, Y: 500}) {
		t.Fatalf("expected rejection without funds")
	}
}

func TestPlaceBuilding_PicksNearestFreeBuilder(t *testing.T) {
	e := testEngine(t)
	s := bareState(5000)
	addUnit(t, e, s, "U-far", "self", "builder", Vec2{X: 100, Y: 600})
	addUnit(t, e, s, "U-busy", "self", "builder", Vec2{X: 525, Y: 360})
	addUnit(t, e, s, "U-near", "self", "builder", Vec2{X: 450, Y: 400})
	addUnit(t, e, s, "U-tie", "self", "builder", Vec2{X: 600, Y: 400})
	addUnit(t, e, s, "U-ranger", "self", "ranger", Vec2{X: 525, Y: 400})
	addUnit(t, e, s, "U-enemy", "enemy", "builder", Vec2{X: 525, Y: 390})
	site := addBuilding(t, e, s, "B-site", "self", "barracks", Vec2{X: 900, Y: 100}, BuildingConstructing)
	s.Unit("U-busy").setMovingToBuild(EntityRef{Kind: KindBuilding, ID: site.ID}, &Path{Dest: Vec2{X: 925, Y: 125}, Waypoints: []Vec2{{X: 925, Y: 125}}})

	// Centre (525, 325): U-near and U-tie are both 75*sqrt(2) away.
	next := e.Step(s, []protocol.Command{protocol.PlaceBuilding("self", "power_generator", 500, 300)}, 1)
	near := next.Unit("U-near")
	if near.Status != UnitMovingToBuild || near.Target.ID != "B1.1" {
		t.Fatalf("nearest builder not assigned: %+v", near)
	}
	if next.Unit("U-tie").Status != UnitIdle || next.Unit("U-far").Status != UnitIdle {
		t.Fatalf("other builders assigned")
	}
	if next.Unit("U-busy").Target.ID != site.ID {
		t.Fatalf("busy builder reassigned")
	}
}

func TestMoveUnits_Ownership(t *testing.T) {
	e := testEngine(t)
	s := bareState(0)
	addUnit(t, e, s, "U-1", "self", "ranger", Vec2{X: 100, Y: 100})

	next := e.Step(s, []protocol.Command{protocol.MoveUnits("enemy", []string{"U-1", "U-none"}, 300, 300)}, 1)
	if u := next.Unit("U-1"); u.Status != UnitIdle || u.Pos != (Vec2{X: 100, Y: 100}) {
		t.Fatalf("enemy moved our unit: %+v", u)
	}
}

func TestMoveUnits_TargetResolution(t *testing.T) {
	e := testEngine(t)
	s := bareState(0)
	addUnit(t, e, s, "U-r", "self", "ranger", Vec2{X: 100, Y: 100})
	addUnit(t, e, s, "U-b", "self", "builder", Vec2{X: 100, Y: 200})
	addUnit(t, e, s, "U-own", "self", "ranger", Vec2{X: 300, Y: 100})
	addUnit(t, e, s, "U-foe", "enemy", "ranger", Vec2{X: 600, Y: 100})
	addBuilding(t, e, s, "B-site", "self", "barracks", Vec2{X: 400, Y: 400}, BuildingConstructing)
	addBuilding(t, e, s, "B-foe", "enemy", "barracks", Vec2{X: 800, Y: 400}, BuildingReady)

	next := e.Step(s, []protocol.Command{
		protocol.MoveUnitsTo("self", []string{"U-r"}, protocol.TargetUnit, "U-foe"),
		protocol.MoveUnitsTo("self", []string{"U-b"}, protocol.TargetBuilding, "B-site"),
		protocol.MoveUnitsTo("self", []string{"U-own"}, protocol.TargetBuilding, "B-site"),
	}, 1)
	if u := next.Unit("U-r"); u.Status != UnitAttacking || *u.Target != (EntityRef{Kind: KindUnit, ID: "U-foe"}) {
		t.Fatalf("ranger should attack: %+v", u)
	}
	if u := next.Unit("U-b"); u.Status != UnitMovingToBuild || u.Target.ID != "B-site" || u.Path.Dest != (Vec2{X: 425, Y: 425}) {
		t.Fatalf("builder should head to site: %+v", u)
	}
	if u := next.Unit("U-own"); u.Status != UnitMoving || u.Path.Dest != (Vec2{X: 425, Y: 425}) {
		t.Fatalf("non-builder should just walk to the site: %+v", u)
	}

	next = e.Step(next, []protocol.Command{
		protocol.MoveUnitsTo("self", []string{"U-r"}, protocol.TargetUnit, "U-own"),
		protocol.MoveUnitsTo("self", []string{"U-b"}, protocol.TargetBuilding, "B-foe"),
		protocol.MoveUnitsTo("self", []string{"U-own"}, protocol.TargetUnit, "U-gone"),
	}, 2)
	if u := next.Unit("U-r"); u.Status != UnitMoving || u.Target != nil {
		t.Fatalf("targeting an own unit should move: %+v", u)
	}
	if u := next.Unit("U-b"); u.Status != UnitMoving || u.Path.Dest != (Vec2{X: 825, Y: 465}) {
		t.Fatalf("builder has no damage, should walk below the enemy building: %+v", u)
	}
	if u := next.Unit("U-own"); u.Status != UnitMoving || u.Path.Dest != (Vec2{X: 425, Y: 425}) {
		t.Fatalf("unknown target should leave the order unchanged: %+v", u)
	}
}

func TestMoveUnits_UnreachableStops(t *testing.T) {
	e := testEngine(t)
	s := bareState(0)
	addBuilding(t, e, s, "B-1", "self", "barracks", Vec2{X: 400, Y: 400}, BuildingReady)
	u := addUnit(t, e, s, "U-1", "self", "ranger", Vec2{X: 100, Y: 100})
	u.setMoving(&Path{Dest: Vec2{X: 200, Y: 100}, Waypoints: []Vec2{{X: 200, Y: 100}}})

	next := e.Step(s, []protocol.Command{protocol.MoveUnits("self", []string{"U-1"}, 425, 425)}, 1)
	if got := next.Unit("U-1"); got.Status != UnitIdle || got.Pos != (Vec2{X: 100, Y: 100}) {
		t.Fatalf("unit should stop: %+v", got)
	}
}

func TestMoveUnits_ClampsToMap(t *testing.T) {
	e := testEngine(t)
	s := bareState(0)
	addUnit(t, e, s, "U-1", "self", "ranger", Vec2{X: 1200, Y: 600})

	next := e.Step(s, []protocol.Command{protocol.MoveUnits("self", []string{"U-1"}, 5000, -40)}, 1)
	if d := next.Unit("U-1").Path.Dest; d != (Vec2{X: 1280, Y: 0}) {
		t.Fatalf("dest=%+v", d)
	}
}

func TestSetRallyPoint(t *testing.T) {
	e := testEngine(t)
	s := bareState(0)
	addBuilding(t, e, s, "B-r", "self", "barracks", Vec2{X: 200, Y: 200}, BuildingReady)
	addBuilding(t, e, s, "B-p", "self", "power_generator", Vec2{X: 400, Y: 200}, BuildingReady)

	next := e.Step(s, []protocol.Command{
		protocol.SetRallyPoint("self", "B-r", 640, 360),
		protocol.SetRallyPoint("self", "B-p", 640, 360),
		protocol.SetRallyPoint("enemy", "B-r", 10, 10),
	}, 1)
	if r := next.Building("B-r").Rally; r != (Vec2{X: 640, Y: 360}) {
		t.Fatalf("rally=%+v", r)
	}
	if r := next.Building("B-p").Rally; r != (Vec2{X: 425, Y: 280}) {
		t.Fatalf("non-producer rally changed: %+v", r)
	}
}

func TestCancelBuilding_RefundsAndReleasesBuilders(t *testing.T) {
	e := testEngine(t)
	s := bareState(600)
	addUnit(t, e, s, "U-b", "self", "builder", Vec2{X: 300, Y: 300})

	s = run(e, s, 1, map[uint64][]protocol.Command{
		1: {protocol.PlaceBuilding("self", "barracks", 400, 300)},
	})
	if s.Player("self").Money != 0 {
		t.Fatalf("money=%d", s.Player("self").Money)
	}
	s = run(e, s, 5, map[uint64][]protocol.Command{
		3: {protocol.CancelBuilding("enemy", "B1.1")},
		4: {protocol.CancelBuilding("self", "B1.1")},
	})
	if len(s.Buildings) != 0 || s.Player("self").Money != 600 {
		t.Fatalf("buildings=%d money=%d", len(s.Buildings), s.Player("self").Money)
	}
	if u := s.Unit("U-b"); u.Status != UnitIdle {
		t.Fatalf("builder not released: %+v", u)
	}
}

func TestSellBuilding_RefundsHalf(t *testing.T) {
	e := testEngine(t)
	s := bareState(0)
	addBuilding(t, e, s, "B-r", "self", "barracks", Vec2{X: 200, Y: 200}, BuildingReady)
	addBuilding(t, e, s, "B-c", "self", "barracks", Vec2{X: 400, Y: 200}, BuildingConstructing)

	next := e.Step(s, []protocol.Command{
		protocol.SellBuilding("enemy", "B-r"),
		protocol.SellBuilding("self", "B-c"),
		protocol.SellBuilding("self", "B-r"),
	}, 1)
	if next.Building("B-r") != nil || next.Building("B-c") == nil {
		t.Fatalf("wrong buildings removed")
	}
	if m := next.Player("self").Money; m != 300 {
		t.Fatalf("money=%d", m)
	}
}

func TestCommands_ApplyInArrivalOrder(t *testing.T) {
	e := testEngine(t)
	s := bareState(600)

	// Both want the last 600: only the first placement succeeds.
	next := e.Step(s, []protocol.Command{
		protocol.PlaceBuilding("self", "barracks", 300, 300),
		protocol.PlaceBuilding("self", "barracks", 600, 300),
	}, 1)
	if len(next.Buildings) != 1 || next.Buildings[0].Pos != (Vec2{X: 300, Y: 300}) {
		t.Fatalf("buildings=%+v", next.Buildings)
	}
}

func TestPlaceBuilding_NoFreeBuilderPausesConstruction(t *testing.T) {
	cases := []struct {
		name  string
		setup func(e *Engine, s *State)
	}{
		{"no units", func(e *Engine, s *State) {}},
		{"only combat units", func(e *Engine, s *State) {
			addUnit(t, e, s, "U-r", "self", "ranger", Vec2{X: 700, Y: 400})
		}},
		{"enemy builder only", func(e *Engine, s *State) {
			addUnit(t, e, s, "U-e", "enemy", "builder", Vec2{X: 700, Y: 400})
		}},
		{"builder already assigned", func(e *Engine, s *State) {
			site := addBuilding(t, e, s, "B-site", "self", "power_generator", Vec2{X: 100, Y: 600}, BuildingConstructing)
			u := addUnit(t, e, s, "U-b", "self", "builder", Vec2{X: 125, Y: 625})
			u.setMovingToBuild(EntityRef{Kind: KindBuilding, ID: site.ID}, nil)
			u.setConstructing()
		}},
		{"builder walled in", func(e *Engine, s *State) {
			for i, p := range []Vec2{
				{X: 250, Y: 250}, {X: 300, Y: 250}, {X: 350, Y: 250},
				{X: 250, Y: 300}, {X: 350, Y: 300},
				{X: 250, Y: 350}, {X: 300, Y: 350}, {X: 350, Y: 350},
			} {
				addBuilding(t, e, s, fmt.Sprintf("B-wall%d", i), "enemy", "power_generator", p, BuildingReady)
			}
			addUnit(t, e, s, "U-b", "self", "builder", Vec2{X: 325, Y: 325})
		}},
	}
	for _, tc := range cases {
		e := testEngine(t)
		s := bareState(600)
		tc.setup(e, s)
		before := map[string]Vec2{}
		for _, u := range s.Units {
			before[u.ID] = u.Pos
		}

		next := e.Step(s, []protocol.Command{protocol.PlaceBuilding("self", "barracks", 800, 300)}, 1)
		b := next.Building("B1.1")
		if b == nil || b.Status != BuildingConstructing || next.Player("self").Money != 0 {
			t.Fatalf("%s: building=%+v money=%d", tc.name, b, next.Player("self").Money)
		}
		for _, u := range next.Units {
			if u.Target != nil && u.Target.ID == b.ID {
				t.Fatalf("%s: unit %s assigned to the new site", tc.name, u.ID)
			}
		}
		checkInvariants(t, next)

		next = run(e, next, 30, nil)
		checkInvariants(t, next)
		if b := next.Building("B1.1"); b.Progress != 0 || b.Status != BuildingConstructing {
			t.Fatalf("%s: construction advanced without a builder: %+v", tc.name, b)
		}
		if u := next.Unit("U-b"); u != nil && tc.name == "builder walled in" && u.Pos != before["U-b"] {
			t.Fatalf("%s: walled-in builder moved to %+v", tc.name, u.Pos)
		}
	}
}

func TestPlaceBuilding_RallyStaysOnMap(t *testing.T) {
	e := testEngine(t)
	s := bareState(5000)

	next := e.Step(s, []protocol.Command{
		protocol.PlaceBuilding("self", "barracks", 600, 670),
		protocol.PlaceBuilding("self", "barracks", 1230, 100),
	}, 1)
	if len(next.Buildings) != 2 {
		t.Fatalf("buildings=%+v", next.Buildings)
	}
	if r := next.Buildings[0].Rally; r != (Vec2{X: 625, Y: 720}) {
		t.Fatalf("bottom-edge rally=%+v", r)
	}
	if r := next.Buildings[1].Rally; r != (Vec2{X: 1255, Y: 180}) {
		t.Fatalf("right-edge rally=%+v", r)
	}
}

func TestCancelBuilding_ReadyIsNoop(t *testing.T) {
	e := testEngine(t)
	s := bareState(100)
	addBuilding(t, e, s, "B-r", "self", "barracks", Vec2{X: 200, Y: 200}, BuildingReady)

	next := e.Step(s, []protocol.Command{protocol.CancelBuilding("self", "B-r")}, 1)
	checkInvariants(t, next)
	if b := next.Building("B-r"); b == nil || b.Status != BuildingReady {
		t.Fatalf("ready building cancelled: %+v", b)
	}
	if m := next.Player("self").Money; m != 100 {
		t.Fatalf("money=%d", m)
	}
}

func TestSellBuilding_RefundFloorsOddCosts(t *testing.T) {
	cases := []struct {
		cost, permille, want int
	}{
		{601, 500, 300},
		{999, 500, 499},
		{1, 500, 0},
		{1000, 333, 333},
		{7, 1000, 7},
	}
	for _, tc := range cases {
		e := testEngine(t)
		def := e.cats.Buildings.Defs["barracks"]
		def.Cost = tc.cost
		e.cats.Buildings.Defs["barracks"] = def
		e.tune.Build.SellRefundPermille = tc.permille

		s := bareState(10)
		addBuilding(t, e, s, "B-r", "self", "barracks", Vec2{X: 200, Y: 200}, BuildingReady)
		next := e.Step(s, []protocol.Command{protocol.SellBuilding("self", "B-r")}, 1)
		checkInvariants(t, next)
		if next.Building("B-r") != nil {
			t.Fatalf("cost %d: building not sold", tc.cost)
		}
		if got := next.Player("self").Money - 10; got != tc.want {
			t.Fatalf("cost %d permille %d: refund=%d want %d", tc.cost, tc.permille, got, tc.want)
		}
	}
}

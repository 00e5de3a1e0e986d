package world

import (
	"testing"

	"lockstep.rts/internal/protocol"
	"lockstep.rts/internal/sim/catalogs"
	"lockstep.rts/internal/sim/tuning"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	tune, err := tuning.Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	return New(tune, cats)
}

// bareState has both scenario players with the given money and nothing else.
func bareState(money int) *State {
	return &State{
		Status:     StatusPlaying,
		Designated: "self",
		Players: []*Player{
			{ID: "self", Name: "Player 1", Money: money},
			{ID: "enemy", Name: "Player 2", Money: money},
		},
		Units:     []*Unit{},
		Buildings: []*Building{},
	}
}

func addUnit(t *testing.T, e *Engine, s *State, id, owner, typ string, pos Vec2) *Unit {
	t.Helper()
	def, ok := e.cats.Units.Defs[typ]
	if !ok {
		t.Fatalf("unknown unit type %q", typ)
	}
	u := newUnit(id, owner, def, pos)
	s.Units = append(s.Units, u)
	return u
}

func addBuilding(t *testing.T, e *Engine, s *State, id, owner, typ string, pos Vec2, status BuildingStatus) *Building {
	t.Helper()
	def, ok := e.cats.Buildings.Defs[typ]
	if !ok {
		t.Fatalf("unknown building type %q", typ)
	}
	b := &Building{
		ID:        id,
		Owner:     owner,
		Type:      typ,
		Pos:       pos,
		Health:    def.MaxHealth,
		MaxHealth: def.MaxHealth,
		Status:    status,
		BuildTime: def.BuildTime,
		Rally:     Vec2{X: pos.X + 25, Y: pos.Y + 80},
	}
	if status == BuildingReady {
		b.Progress = def.BuildTime
	} else {
		b.Health = e.tune.Build.StartHealth
	}
	s.Buildings = append(s.Buildings, b)
	return b
}

// run steps s from its current tick, feeding cmds[tick] when present.
func run(e *Engine, s *State, ticks int, cmds map[uint64][]protocol.Command) *State {
	for i := 0; i < ticks; i++ {
		next := s.Tick + 1
		s = e.Step(s, cmds[next], next)
	}
	return s
}

func checkInvariants(t *testing.T, s *State) {
	t.Helper()
	players := map[string]bool{}
	for _, p := range s.Players {
		players[p.ID] = true
		if p.Money < 0 {
			t.Fatalf("tick %d: player %s money %d", s.Tick, p.ID, p.Money)
		}
	}
	for _, u := range s.Units {
		if !players[u.Owner] {
			t.Fatalf("tick %d: unit %s has unknown owner %q", s.Tick, u.ID, u.Owner)
		}
		if u.Health < 0 || u.Health > u.MaxHealth {
			t.Fatalf("tick %d: unit %s health %v/%v", s.Tick, u.ID, u.Health, u.MaxHealth)
		}
		switch u.Status {
		case UnitIdle:
			if u.Path != nil || u.Target != nil {
				t.Fatalf("tick %d: idle unit %s has path/target", s.Tick, u.ID)
			}
		case UnitMoving:
			if u.Path == nil || u.Target != nil {
				t.Fatalf("tick %d: moving unit %s path=%v target=%v", s.Tick, u.ID, u.Path, u.Target)
			}
		case UnitMovingToBuild:
			if u.Path == nil || u.Target == nil {
				t.Fatalf("tick %d: unit %s moving to build without path/target", s.Tick, u.ID)
			}
		case UnitConstructing, UnitAttacking:
			if u.Path != nil || u.Target == nil {
				t.Fatalf("tick %d: unit %s status %s path=%v target=%v", s.Tick, u.ID, u.Status, u.Path, u.Target)
			}
		default:
			t.Fatalf("tick %d: unit %s bad status %q", s.Tick, u.ID, u.Status)
		}
		if u.Path != nil && (u.Path.Cursor < 0 || u.Path.Cursor >= len(u.Path.Waypoints)) {
			t.Fatalf("tick %d: unit %s cursor %d of %d", s.Tick, u.ID, u.Path.Cursor, len(u.Path.Waypoints))
		}
	}
	for _, b := range s.Buildings {
		if !players[b.Owner] {
			t.Fatalf("tick %d: building %s has unknown owner %q", s.Tick, b.ID, b.Owner)
		}
		if b.Health < 0 || b.Health > b.MaxHealth {
			t.Fatalf("tick %d: building %s health %v/%v", s.Tick, b.ID, b.Health, b.MaxHealth)
		}
	}
}

package bot

import "lockstep.rts/internal/sim/world"

// Env is what rule conditions see. Methods are callable from expr, e.g.
// `Money() >= 600 && BuildingCount("barracks") == 0`.
type Env struct {
	State  *world.State
	Player string

	eng *world.Engine
}

func (e Env) self() *world.Player { return e.State.Player(e.Player) }

func (e Env) Tick() int { return int(e.State.Tick) }

func (e Env) Money() int {
	if p := e.self(); p != nil {
		return p.Money
	}
	return 0
}

func (e Env) Power() int {
	if p := e.self(); p != nil {
		return p.Power
	}
	return 0
}

func (e Env) Income() int {
	if p := e.self(); p != nil {
		return p.IncomeRate
	}
	return 0
}

// BuildingCount counts READY buildings of type t.
func (e Env) BuildingCount(t string) int {
	n := 0
	for _, b := range e.State.Buildings {
		if b.Owner == e.Player && b.Type == t && b.Status == world.BuildingReady {
			n++
		}
	}
	return n
}

// Constructing counts buildings of type t still under construction.
func (e Env) Constructing(t string) int {
	n := 0
	for _, b := range e.State.Buildings {
		if b.Owner == e.Player && b.Type == t && b.Status == world.BuildingConstructing {
			n++
		}
	}
	return n
}

func (e Env) UnitCount(t string) int {
	n := 0
	for _, u := range e.State.Units {
		if u.Owner == e.Player && u.Type == t {
			n++
		}
	}
	return n
}

// QueueLen is the number of queued units across READY buildings of type t.
func (e Env) QueueLen(t string) int {
	n := 0
	for _, b := range e.State.Buildings {
		if b.Owner == e.Player && b.Type == t && b.Status == world.BuildingReady {
			n += len(b.Queue)
		}
	}
	return n
}

func (e Env) IdleBuilders() int { return len(e.idleBuilders()) }

func (e Env) idleBuilders() []*world.Unit {
	var out []*world.Unit
	for _, u := range e.State.Units {
		if u.Owner == e.Player && u.Stats.Builder && u.Status == world.UnitIdle {
			out = append(out, u)
		}
	}
	return out
}

// ArmySize counts units that can fight.
func (e Env) ArmySize() int { return len(e.army(false)) }

func (e Env) IdleArmy() int { return len(e.army(true)) }

func (e Env) army(idleOnly bool) []*world.Unit {
	var out []*world.Unit
	for _, u := range e.State.Units {
		if u.Owner != e.Player || u.Stats.Builder || u.Stats.Damage <= 0 {
			continue
		}
		if idleOnly && u.Status != world.UnitIdle {
			continue
		}
		out = append(out, u)
	}
	return out
}

// CanAfford accepts a unit or building type.
func (e Env) CanAfford(t string) bool {
	cats := e.eng.Catalogs()
	if d, ok := cats.Units.Defs[t]; ok {
		return e.Money() >= d.Cost
	}
	if d, ok := cats.Buildings.Defs[t]; ok {
		return e.Money() >= d.Cost
	}
	return false
}

// EnemyAssets counts units and buildings owned by other players.
func (e Env) EnemyAssets() int {
	n := 0
	for _, u := range e.State.Units {
		if u.Owner != e.Player {
			n++
		}
	}
	for _, b := range e.State.Buildings {
		if b.Owner != e.Player {
			n++
		}
	}
	return n
}

func (e Env) Playing() bool { return e.State.Status == world.StatusPlaying }

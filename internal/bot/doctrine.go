package bot

import (
	"fmt"

	"lockstep.rts/internal/protocol"
	"lockstep.rts/internal/sim/world"
	"lockstep.rts/internal/sim/world/logic/mathx"
)

// DefaultRules is a simple build-up-then-push doctrine: keep power positive,
// get a barracks and income, add a war factory, train continuously and send
// the idle army once it is large enough.
func DefaultRules(attackAt int) []*Rule {
	return []*Rule{
		{
			Name:          "power-first",
			Priority:      900,
			Category:      "construction",
			Exclusive:     true,
			ConditionSrc:  `Power() < 0 && Constructing("power_generator") == 0 && CanAfford("power_generator") && IdleBuilders() > 0`,
			CooldownTicks: 20,
			Action:        place("power_generator"),
		},
		{
			Name:          "build-barracks",
			Priority:      800,
			Category:      "construction",
			Exclusive:     true,
			ConditionSrc:  `BuildingCount("barracks") + Constructing("barracks") == 0 && CanAfford("barracks") && IdleBuilders() > 0`,
			CooldownTicks: 20,
			Action:        place("barracks"),
		},
		{
			Name:          "build-supply",
			Priority:      700,
			Category:      "construction",
			Exclusive:     true,
			ConditionSrc:  `BuildingCount("supply_center") + Constructing("supply_center") < 2 && CanAfford("supply_center") && IdleBuilders() > 0`,
			CooldownTicks: 20,
			Action:        place("supply_center"),
		},
		{
			Name:          "build-war-factory",
			Priority:      600,
			Category:      "construction",
			Exclusive:     true,
			ConditionSrc:  `BuildingCount("barracks") > 0 && BuildingCount("war_factory") + Constructing("war_factory") == 0 && CanAfford("war_factory") && IdleBuilders() > 0`,
			CooldownTicks: 20,
			Action:        place("war_factory"),
		},
		{
			Name:          "train-crusaders",
			Priority:      510,
			Category:      "production",
			ConditionSrc:  `BuildingCount("war_factory") > 0 && QueueLen("war_factory") < 2 && CanAfford("crusader")`,
			CooldownTicks: 5,
			Action:        train("war_factory", "crusader"),
		},
		{
			Name:          "train-rangers",
			Priority:      500,
			Category:      "production",
			ConditionSrc:  `BuildingCount("barracks") > 0 && QueueLen("barracks") < 2 && CanAfford("ranger")`,
			CooldownTicks: 5,
			Action:        train("barracks", "ranger"),
		},
		{
			Name:          "attack",
			Priority:      300,
			Category:      "army",
			Exclusive:     true,
			ConditionSrc:  fmt.Sprintf(`IdleArmy() >= %d && EnemyAssets() > 0`, attackAt),
			CooldownTicks: 50,
			Action:        attackNearest,
		},
	}
}

// place orders a building of type t at the first free site around the
// player's base.
func place(t string) ActionFunc {
	return func(env Env) []protocol.Command {
		pos, ok := findSite(env, t)
		if !ok {
			return nil
		}
		return []protocol.Command{protocol.PlaceBuilding(env.Player, t, pos.X, pos.Y)}
	}
}

// findSite scans rings of candidate corners around the player's first
// building, in a fixed order, and returns the first one CanPlace accepts.
func findSite(env Env, t string) (world.Vec2, bool) {
	var anchor *world.Building
	for _, b := range env.State.Buildings {
		if b.Owner == env.Player {
			anchor = b
			break
		}
	}
	if anchor == nil {
		return world.Vec2{}, false
	}
	step := env.eng.Tuning().Build.Size + 20
	for ring := 1; ring <= 6; ring++ {
		for dy := -ring; dy <= ring; dy++ {
			for dx := -ring; dx <= ring; dx++ {
				if max(mathx.AbsInt(dx), mathx.AbsInt(dy)) != ring {
					continue
				}
				pos := world.Vec2{X: anchor.Pos.X + float64(dx)*step, Y: anchor.Pos.Y + float64(dy)*step}
				if env.eng.CanPlace(env.State, env.Player, t, pos) {
					return pos, true
				}
			}
		}
	}
	return world.Vec2{}, false
}

// train queues unit at the READY building of type producer with the
// shortest queue.
func train(producer, unit string) ActionFunc {
	return func(env Env) []protocol.Command {
		var best *world.Building
		for _, b := range env.State.Buildings {
			if b.Owner != env.Player || b.Type != producer || b.Status != world.BuildingReady {
				continue
			}
			if best == nil || len(b.Queue) < len(best.Queue) {
				best = b
			}
		}
		if best == nil {
			return nil
		}
		return []protocol.Command{protocol.BuildUnit(env.Player, best.ID, unit)}
	}
}

// attackNearest sends every idle fighter at the enemy building closest to
// the army's first unit, or the closest enemy unit when no building is left.
func attackNearest(env Env) []protocol.Command {
	army := env.army(true)
	if len(army) == 0 {
		return nil
	}
	from := army[0].Pos
	kind, id := "", ""
	bestDist := 0.0
	for _, b := range env.State.Buildings {
		if b.Owner == env.Player {
			continue
		}
		if d := mathx.DistSq(from, b.Pos); id == "" || d < bestDist {
			kind, id, bestDist = protocol.TargetBuilding, b.ID, d
		}
	}
	if id == "" {
		for _, u := range env.State.Units {
			if u.Owner == env.Player {
				continue
			}
			if d := mathx.DistSq(from, u.Pos); id == "" || d < bestDist {
				kind, id, bestDist = protocol.TargetUnit, u.ID, d
			}
		}
	}
	if id == "" {
		return nil
	}
	ids := make([]string, len(army))
	for i, u := range army {
		ids[i] = u.ID
	}
	return []protocol.Command{protocol.MoveUnitsTo(env.Player, ids, kind, id)}
}

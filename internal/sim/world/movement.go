package world

import (
	"lockstep.rts/internal/sim/world/logic/mathx"
)

// arriveEpsilon absorbs rounding left over from stepping along a diagonal.
const arriveEpsilon = 1e-9

// movement walks every unit that has a path. A waypoint within the arrival
// tolerance counts as reached; the final one is snapped to exactly.
func (c *stepCtx) movement() {
	tol := c.e.tune.Units.ArrivalTolerance + arriveEpsilon
	for _, u := range c.s.Units {
		p := u.Path
		if p == nil {
			continue
		}
		if len(p.Waypoints) == 0 {
			c.arrive(u)
			continue
		}
		for !p.Last() && mathx.Dist(u.Pos, p.Current()) <= tol {
			p.Cursor++
		}
		if p.Last() && mathx.Dist(u.Pos, p.Current()) <= tol {
			u.Pos = p.Current()
			c.arrive(u)
			continue
		}
		u.Pos, _ = mathx.StepToward(u.Pos, p.Current(), u.Stats.Speed)
	}
}

func (c *stepCtx) arrive(u *Unit) {
	if u.Status == UnitMovingToBuild {
		u.setConstructing()
		return
	}
	u.stop()
}

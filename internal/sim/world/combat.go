package world

import (
	"lockstep.rts/internal/sim/world/logic/mathx"
)

const defaultTracerColor = "#ffffff"

// combat resolves every ATTACKING unit: chase a target out of range, damage
// it once in range. Damage lands immediately, so later attackers in the same
// tick see the reduced health.
func (c *stepCtx) combat() {
	divisor := c.e.tune.Combat.DamageDivisor
	every := uint64(c.e.tune.Combat.TracerEveryTicks)
	for _, u := range c.s.Units {
		if u.Status != UnitAttacking {
			continue
		}
		pos, health := c.resolveTarget(u.Target)
		if health == nil || *health <= 0 {
			u.setIdle()
			continue
		}
		if mathx.Dist(u.Pos, pos) > u.Stats.Range {
			u.Pos, _ = mathx.StepToward(u.Pos, pos, u.Stats.Speed)
			continue
		}
		*health = max(0, *health-u.Stats.Damage/divisor)
		if every > 0 && c.s.Tick%every == 0 {
			color := u.Stats.TracerColor
			if color == "" {
				color = defaultTracerColor
			}
			c.s.Effects = append(c.s.Effects, Effect{Kind: EffectTracer, From: u.Pos, To: pos, ColorHint: color})
		}
	}
}

// resolveTarget returns the aim point and a pointer to the health of the
// referenced entity, or a nil health when it no longer exists.
func (c *stepCtx) resolveTarget(ref *EntityRef) (Vec2, *float64) {
	if ref == nil {
		return Vec2{}, nil
	}
	switch ref.Kind {
	case KindUnit:
		if t := c.s.Unit(ref.ID); t != nil {
			return t.Pos, &t.Health
		}
	case KindBuilding:
		if b := c.s.Building(ref.ID); b != nil {
			return c.buildingCenter(b), &b.Health
		}
	}
	return Vec2{}, nil
}

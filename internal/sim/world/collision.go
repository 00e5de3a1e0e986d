package world

import (
	"lockstep.rts/internal/sim/world/logic/mathx"
)

// collisions separates overlapping units pairwise, then pushes units whose
// spawn grace has run out off READY building footprints. Pushed units stay
// inside the map.
func (c *stepCtx) collisions() {
	units := c.s.Units
	for _, u := range units {
		if u.GraceTicks > 0 {
			u.GraceTicks--
		}
	}

	minDist := 2 * c.e.tune.Units.Radius
	for i := 0; i < len(units); i++ {
		for j := i + 1; j < len(units); j++ {
			a, b := units[i], units[j]
			d := b.Pos.Sub(a.Pos)
			dist := d.Len()
			if dist >= minDist {
				continue
			}
			normal := Vec2{X: 1}
			if dist > 0 {
				normal = d.Scale(1 / dist)
			}
			push := normal.Scale((minDist - dist) / 2)
			a.Pos = c.clampToMap(a.Pos.Sub(push))
			b.Pos = c.clampToMap(b.Pos.Add(push))
		}
	}

	for _, b := range c.s.Buildings {
		if b.Status != BuildingReady {
			continue
		}
		fp := c.e.Footprint(b)
		for _, u := range units {
			if u.GraceTicks == 0 && fp.ContainsOpen(u.Pos) {
				u.Pos = c.clampToMap(nearestEdge(fp, u.Pos))
			}
		}
	}
}

// nearestEdge projects p, which lies inside r, onto the closest border.
// Ties prefer left, right, top, bottom in that order.
func nearestEdge(r mathx.Rect, p Vec2) Vec2 {
	left := p.X - r.Min.X
	right := r.Max.X - p.X
	top := p.Y - r.Min.Y
	bottom := r.Max.Y - p.Y
	best := min(left, right, top, bottom)
	switch best {
	case left:
		return Vec2{X: r.Min.X, Y: p.Y}
	case right:
		return Vec2{X: r.Max.X, Y: p.Y}
	case top:
		return Vec2{X: p.X, Y: r.Min.Y}
	default:
		return Vec2{X: p.X, Y: r.Max.Y}
	}
}

package world

import (
	"lockstep.rts/internal/sim/catalogs"
	"lockstep.rts/internal/sim/world/logic/ids"
)

// construction advances every site that has at least one of its owner's
// builders on it, and completes sites that reached their build time.
func (c *stepCtx) construction() {
	for _, b := range c.s.Buildings {
		if b.Status != BuildingConstructing {
			continue
		}
		if c.builderPresent(b) {
			b.Progress++
			if b.BuildTime > 0 {
				h := float64(b.Progress) / float64(b.BuildTime) * b.MaxHealth
				b.Health = min(b.MaxHealth, h)
			}
		}
		if b.Progress >= b.BuildTime {
			c.completeBuilding(b)
		}
	}
}

func (c *stepCtx) builderPresent(b *Building) bool {
	for _, u := range c.s.Units {
		if u.Owner != b.Owner || u.Status != UnitConstructing || u.Target == nil {
			continue
		}
		if u.Target.Kind == KindBuilding && u.Target.ID == b.ID {
			return true
		}
	}
	return false
}

func (c *stepCtx) completeBuilding(b *Building) {
	b.Status = BuildingReady
	b.Health = b.MaxHealth
	c.releaseBuilders(b.ID)
	c.obstaclesChanged()

	// Anything standing on the new footprint is moved just below it.
	fp := c.e.Footprint(b)
	ejectY := min(fp.Max.Y+c.e.tune.Build.EjectMargin, c.e.tune.Map.Height)
	for _, u := range c.s.Units {
		if !fp.ContainsClosed(u.Pos) {
			continue
		}
		u.Pos.Y = ejectY
		if u.Status != UnitAttacking {
			u.setIdle()
		}
	}
}

// production advances the head of each READY building's queue and spawns
// the unit when it completes.
func (c *stepCtx) production() {
	for _, b := range c.s.Buildings {
		if b.Status != BuildingReady || len(b.Queue) == 0 {
			continue
		}
		head := &b.Queue[0]
		head.Progress++
		if head.Progress < head.Total {
			continue
		}
		unitType := head.UnitType
		b.Queue = b.Queue[1:]
		if len(b.Queue) == 0 {
			b.Queue = nil
		}
		c.spawnUnit(b, unitType)
	}
}

func (c *stepCtx) spawnUnit(b *Building, unitType string) {
	def, ok := c.e.cats.Units.Defs[unitType]
	if !ok {
		return
	}
	size := c.e.tune.Build.Size
	u := newUnit(c.ids.Next(ids.PrefixUnit), b.Owner, def,
		c.clampToMap(Vec2{X: b.Pos.X + size/2, Y: b.Pos.Y + size + c.e.tune.Units.SpawnOffset}))
	u.GraceTicks = c.e.tune.Units.SpawnGraceTicks

	path, ok := c.route(u.Pos, b.Rally)
	if !ok {
		path = &Path{Dest: b.Rally, Waypoints: []Vec2{b.Rally}}
	}
	u.setMoving(path)
	c.s.Units = append(c.s.Units, u)
}

// newUnit creates an idle unit at full health with stats taken from def.
func newUnit(id, owner string, def catalogs.UnitDef, pos Vec2) *Unit {
	return &Unit{
		ID:        id,
		Owner:     owner,
		Type:      def.ID,
		Pos:       pos,
		Health:    def.MaxHealth,
		MaxHealth: def.MaxHealth,
		Stats: UnitStats{
			Speed:       def.Speed,
			Damage:      def.Damage,
			Range:       def.Range,
			MaxHealth:   def.MaxHealth,
			Cost:        def.Cost,
			BuildTime:   def.BuildTime,
			Builder:     def.Builder,
			TracerColor: def.TracerColor,
		},
		Status: UnitIdle,
	}
}

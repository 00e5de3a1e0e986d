package world

import (
	"lockstep.rts/internal/protocol"
	"lockstep.rts/internal/sim/catalogs"
	"lockstep.rts/internal/sim/world/logic/ids"
	"lockstep.rts/internal/sim/world/logic/mathx"
)

// applyCommands applies the batch in order. A command that fails validation
// is dropped without touching the state.
func (c *stepCtx) applyCommands(cmds []protocol.Command) {
	for _, cmd := range cmds {
		p := c.s.Player(cmd.PlayerID)
		if p == nil {
			continue
		}
		switch cmd.Type {
		case protocol.CmdPlaceBuilding:
			c.placeBuilding(p, cmd.Payload)
		case protocol.CmdMoveUnits:
			c.moveUnits(p, cmd.Payload)
		case protocol.CmdBuildUnit:
			c.buildUnit(p, cmd.Payload)
		case protocol.CmdSetRallyPoint:
			c.setRallyPoint(p, cmd.Payload)
		case protocol.CmdCancelBuilding:
			c.cancelBuilding(p, cmd.Payload)
		case protocol.CmdSellBuilding:
			c.sellBuilding(p, cmd.Payload)
		}
	}
}

// CanPlace reports whether player can afford buildingType and its footprint
// at pos lies inside the map, clear of every building (plus the placement
// margin) and every unit.
func (e *Engine) CanPlace(s *State, player, buildingType string, pos Vec2) bool {
	def, ok := e.cats.Buildings.Defs[buildingType]
	if !ok {
		return false
	}
	p := s.Player(player)
	if p == nil || p.Money < def.Cost {
		return false
	}
	size := e.tune.Build.Size
	if pos.X < 0 || pos.Y < 0 || pos.X+size > e.tune.Map.Width || pos.Y+size > e.tune.Map.Height {
		return false
	}
	fp := mathx.Square(pos, size)
	for _, b := range s.Buildings {
		if fp.Overlaps(e.Footprint(b), -e.tune.Build.PlacementMargin) {
			return false
		}
	}
	for _, u := range s.Units {
		if fp.ContainsClosed(u.Pos) {
			return false
		}
	}
	return true
}

func (c *stepCtx) placeBuilding(p *Player, pl protocol.CommandPayload) {
	pos := Vec2{X: pl.X, Y: pl.Y}
	if !c.e.CanPlace(c.s, p.ID, pl.BuildingType, pos) {
		return
	}
	def := c.e.cats.Buildings.Defs[pl.BuildingType]
	p.Money -= def.Cost

	b := &Building{
		ID:        c.ids.Next(ids.PrefixBuilding),
		Owner:     p.ID,
		Type:      def.ID,
		Pos:       pos,
		Health:    min(c.e.tune.Build.StartHealth, def.MaxHealth),
		MaxHealth: def.MaxHealth,
		Status:    BuildingConstructing,
		BuildTime: def.BuildTime,
		Rally:     c.e.defaultRally(pos),
	}
	c.s.Buildings = append(c.s.Buildings, b)

	centre := c.buildingCenter(b)
	builder := c.nearestIdleBuilder(p.ID, centre)
	if builder == nil {
		return
	}
	// An unreachable site leaves the builder where it is; the player can
	// send another one with a targeted move.
	if path, ok := c.route(builder.Pos, centre); ok {
		builder.setMovingToBuild(EntityRef{Kind: KindBuilding, ID: b.ID}, path)
	}
}

// nearestIdleBuilder picks the builder closest to target among the player's
// builders that are not already assigned to a construction. Ties go to the
// earlier unit.
func (c *stepCtx) nearestIdleBuilder(player string, target Vec2) *Unit {
	var best *Unit
	bestDist := 0.0
	for _, u := range c.s.Units {
		if u.Owner != player || !u.Stats.Builder {
			continue
		}
		if u.Status == UnitMovingToBuild || u.Status == UnitConstructing {
			continue
		}
		d := mathx.DistSq(u.Pos, target)
		if best == nil || d < bestDist {
			best, bestDist = u, d
		}
	}
	return best
}

func (c *stepCtx) moveUnits(p *Player, pl protocol.CommandPayload) {
	for _, id := range pl.UnitIDs {
		u := c.s.Unit(id)
		if u == nil || u.Owner != p.ID {
			continue
		}
		if pl.Target == nil {
			c.moveTo(u, c.clampToMap(Vec2{X: pl.X, Y: pl.Y}))
			continue
		}
		switch EntityKind(pl.Target.Kind) {
		case KindBuilding:
			if b := c.s.Building(pl.Target.ID); b != nil {
				c.orderAtBuilding(u, b)
			}
		case KindUnit:
			if t := c.s.Unit(pl.Target.ID); t != nil {
				c.orderAtUnit(u, t)
			}
		}
	}
}

func (c *stepCtx) moveTo(u *Unit, dest Vec2) {
	path, ok := c.route(u.Pos, dest)
	if !ok {
		u.setIdle()
		return
	}
	u.setMoving(path)
}

func (c *stepCtx) orderAtBuilding(u *Unit, b *Building) {
	ref := EntityRef{Kind: KindBuilding, ID: b.ID}
	switch {
	case b.Owner == u.Owner && b.Status == BuildingConstructing && u.Stats.Builder:
		path, ok := c.route(u.Pos, c.buildingCenter(b))
		if !ok {
			u.setIdle()
			return
		}
		u.setMovingToBuild(ref, path)
	case b.Owner != u.Owner && u.Stats.Damage > 0:
		u.setAttacking(ref)
	case b.Status == BuildingConstructing:
		c.moveTo(u, c.buildingCenter(b))
	default:
		// READY footprints are obstacles; walk to the spot just below it.
		size := c.e.tune.Build.Size
		c.moveTo(u, c.clampToMap(Vec2{X: b.Pos.X + size/2, Y: b.Pos.Y + size + c.e.tune.Build.EjectMargin}))
	}
}

func (c *stepCtx) orderAtUnit(u, t *Unit) {
	if t.Owner != u.Owner && u.Stats.Damage > 0 {
		u.setAttacking(EntityRef{Kind: KindUnit, ID: t.ID})
		return
	}
	c.moveTo(u, t.Pos)
}

func (c *stepCtx) buildUnit(p *Player, pl protocol.CommandPayload) {
	b := c.s.Building(pl.BuildingID)
	if b == nil || b.Owner != p.ID || b.Status != BuildingReady {
		return
	}
	if !c.e.cats.Buildings.Defs[b.Type].CanProduce(pl.UnitType) {
		return
	}
	def, ok := c.e.cats.Units.Defs[pl.UnitType]
	if !ok || p.Money < def.Cost {
		return
	}
	p.Money -= def.Cost
	b.Queue = append(b.Queue, QueueItem{UnitType: def.ID, Total: def.BuildTime})
}

func (c *stepCtx) setRallyPoint(p *Player, pl protocol.CommandPayload) {
	b := c.s.Building(pl.BuildingID)
	if b == nil || b.Owner != p.ID || !c.e.cats.Buildings.Defs[b.Type].IsProduction() {
		return
	}
	b.Rally = c.clampToMap(Vec2{X: pl.X, Y: pl.Y})
}

func (c *stepCtx) cancelBuilding(p *Player, pl protocol.CommandPayload) {
	b := c.s.Building(pl.BuildingID)
	if b == nil || b.Owner != p.ID || b.Status != BuildingConstructing {
		return
	}
	p.Money += c.e.cats.Buildings.Defs[b.Type].Cost
	c.releaseBuilders(b.ID)
	c.removeBuilding(b.ID)
}

func (c *stepCtx) sellBuilding(p *Player, pl protocol.CommandPayload) {
	b := c.s.Building(pl.BuildingID)
	if b == nil || b.Owner != p.ID || b.Status != BuildingReady {
		return
	}
	p.Money += sellRefund(c.e.cats.Buildings.Defs[b.Type], c.e.tune.Build.SellRefundPermille)
	c.removeBuilding(b.ID)
}

// sellRefund rounds down.
func sellRefund(def catalogs.BuildingDef, permille int) int {
	return def.Cost * permille / 1000
}

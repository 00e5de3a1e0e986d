package world

// economy recomputes derived power and income from READY buildings and pays
// income on every income tick. Power is informational only.
func (c *stepCtx) economy() {
	defs := c.e.cats.Buildings.Defs
	for _, p := range c.s.Players {
		p.Power = 0
		p.IncomeRate = 0
	}
	for _, b := range c.s.Buildings {
		if b.Status != BuildingReady {
			continue
		}
		p := c.s.Player(b.Owner)
		if p == nil {
			continue
		}
		def := defs[b.Type]
		p.Power += def.Power
		p.IncomeRate += def.Income
	}

	every := uint64(c.e.tune.Economy.IncomeEveryTicks)
	if every == 0 || c.s.Tick%every != 0 {
		return
	}
	for _, p := range c.s.Players {
		p.Money = max(0, p.Money+p.IncomeRate)
	}
}

package world

// cleanup removes destroyed entities and idles builders whose site is gone.
func (c *stepCtx) cleanup() {
	units := c.s.Units[:0]
	for _, u := range c.s.Units {
		if u.Health > 0 {
			units = append(units, u)
		}
	}
	clear(c.s.Units[len(units):])
	c.s.Units = units

	buildings := c.s.Buildings[:0]
	for _, b := range c.s.Buildings {
		if b.Health > 0 {
			buildings = append(buildings, b)
		}
	}
	if len(buildings) != len(c.s.Buildings) {
		c.obstaclesChanged()
	}
	clear(c.s.Buildings[len(buildings):])
	c.s.Buildings = buildings

	for _, u := range c.s.Units {
		if u.Status != UnitMovingToBuild && u.Status != UnitConstructing {
			continue
		}
		if u.Target == nil || c.s.Building(u.Target.ID) == nil {
			u.setIdle()
		}
	}

	if len(c.s.Selection) > 0 {
		sel := c.s.Selection[:0]
		for _, id := range c.s.Selection {
			if c.s.Unit(id) != nil || c.s.Building(id) != nil {
				sel = append(sel, id)
			}
		}
		c.s.Selection = sel
	}
}

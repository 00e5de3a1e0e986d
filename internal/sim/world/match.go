package world

import (
	"fmt"

	"lockstep.rts/internal/sim/world/logic/ids"
)

// NewMatch builds the tick-0 state of the configured scenario: every player
// gets its starting money, a READY headquarters at its base and the starting
// units lined up below it.
func (e *Engine) NewMatch() (*State, error) {
	sc := e.tune.Scenario
	s := &State{
		Status:     StatusPlaying,
		Designated: sc.Designated,
		Players:    []*Player{},
		Units:      []*Unit{},
		Buildings:  []*Building{},
	}
	alloc := ids.NewAllocator(0)

	var hq *Building
	if sc.HQBuilding != "" {
		def, ok := e.cats.Buildings.Defs[sc.HQBuilding]
		if !ok {
			return nil, fmt.Errorf("scenario: unknown hq_building %q", sc.HQBuilding)
		}
		hq = &Building{Type: def.ID, Health: def.MaxHealth, MaxHealth: def.MaxHealth, Status: BuildingReady, BuildTime: def.BuildTime}
		hq.Progress = def.BuildTime
	}
	for _, u := range sc.StartingUnits {
		if _, ok := e.cats.Units.Defs[u]; !ok {
			return nil, fmt.Errorf("scenario: unknown starting unit %q", u)
		}
	}

	size := e.tune.Build.Size
	radius := e.tune.Units.Radius
	for _, sp := range sc.Players {
		money := sp.Money
		if money == 0 {
			money = sc.StartingMoney
		}
		s.Players = append(s.Players, &Player{ID: sp.ID, Name: sp.Name, Money: money})

		base := Vec2{X: sp.Base[0], Y: sp.Base[1]}
		if hq != nil {
			b := *hq
			b.ID = alloc.Next(ids.PrefixBuilding)
			b.Owner = sp.ID
			b.Pos = base
			b.Rally = e.defaultRally(base)
			s.Buildings = append(s.Buildings, &b)
		}
		for i, typ := range sc.StartingUnits {
			pos := Vec2{
				X: base.X + size/2 + float64(i)*(2*radius+1),
				Y: base.Y + size + e.tune.Units.SpawnOffset,
			}
			s.Units = append(s.Units, newUnit(alloc.Next(ids.PrefixUnit), sp.ID, e.cats.Units.Defs[typ], pos))
		}
	}
	return s, nil
}

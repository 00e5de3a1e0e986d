// Package world holds the deterministic match simulation. Engine.Step is a
// pure function of (previous state, ordered commands, tick): it reads no
// clock, draws no random numbers and never iterates a map, so every peer
// that feeds it the same batches reaches byte-identical states.
package world

import (
	"lockstep.rts/internal/protocol"
	"lockstep.rts/internal/sim/catalogs"
	"lockstep.rts/internal/sim/tuning"
	"lockstep.rts/internal/sim/world/logic/ids"
	"lockstep.rts/internal/sim/world/logic/mathx"
	"lockstep.rts/internal/sim/world/logic/pathfind"
)

type Engine struct {
	tune    tuning.Tuning
	cats    *catalogs.Catalogs
	pathCfg pathfind.Config
}

func New(tune tuning.Tuning, cats *catalogs.Catalogs) *Engine {
	return &Engine{
		tune: tune,
		cats: cats,
		pathCfg: pathfind.Config{
			CellSize:      tune.Path.CellSize,
			Padding:       tune.Path.Padding,
			SightStep:     tune.Path.SightStep,
			MaxIterations: tune.Path.MaxIterations,
			Width:         tune.Map.Width,
			Height:        tune.Map.Height,
		},
	}
}

func (e *Engine) Tuning() tuning.Tuning        { return e.tune }
func (e *Engine) Catalogs() *catalogs.Catalogs { return e.cats }

// Footprint is the square a building occupies.
func (e *Engine) Footprint(b *Building) mathx.Rect {
	return mathx.Square(b.Pos, e.tune.Build.Size)
}

// PathGrid returns a pathfinding grid whose obstacles are the READY
// buildings of s.
func (e *Engine) PathGrid(s *State) *pathfind.Grid {
	var obstacles []mathx.Rect
	for _, b := range s.Buildings {
		if b.Status == BuildingReady {
			obstacles = append(obstacles, e.Footprint(b))
		}
	}
	return pathfind.New(e.pathCfg, obstacles)
}

// Step advances prev by one tick. prev is left untouched.
func (e *Engine) Step(prev *State, cmds []protocol.Command, tick uint64) *State {
	s := prev.Clone()
	s.Tick = tick
	s.Effects = nil

	c := &stepCtx{e: e, s: s, ids: ids.NewAllocator(tick)}
	c.applyCommands(cmds)
	c.economy()
	c.construction()
	c.production()
	c.movement()
	c.collisions()
	c.combat()
	c.cleanup()
	c.checkVictory()
	return s
}

// stepCtx carries the per-tick scratch state shared by the pipeline stages.
type stepCtx struct {
	e   *Engine
	s   *State
	ids *ids.Allocator

	grid *pathfind.Grid // nil when READY buildings changed since it was built
}

func (c *stepCtx) pathGrid() *pathfind.Grid {
	if c.grid == nil {
		c.grid = c.e.PathGrid(c.s)
	}
	return c.grid
}

func (c *stepCtx) obstaclesChanged() { c.grid = nil }

// route plans a path from the unit position to dest.
func (c *stepCtx) route(from, dest Vec2) (*Path, bool) {
	wps, ok := c.pathGrid().Find(from, dest)
	if !ok {
		return nil, false
	}
	return &Path{Dest: dest, Waypoints: wps}, true
}

func (e *Engine) clampToMap(p Vec2) Vec2 {
	return Vec2{
		X: mathx.Clamp(p.X, 0, e.tune.Map.Width),
		Y: mathx.Clamp(p.Y, 0, e.tune.Map.Height),
	}
}

func (c *stepCtx) clampToMap(p Vec2) Vec2 { return c.e.clampToMap(p) }

// defaultRally sits in front of a building placed at pos, inside the map.
func (e *Engine) defaultRally(pos Vec2) Vec2 {
	off := e.tune.Build.RallyOffset
	return e.clampToMap(Vec2{X: pos.X + off[0], Y: pos.Y + off[1]})
}

func (c *stepCtx) buildingCenter(b *Building) Vec2 {
	return c.e.Footprint(b).Center()
}

func (c *stepCtx) removeBuilding(id string) {
	out := c.s.Buildings[:0]
	for _, b := range c.s.Buildings {
		if b.ID != id {
			out = append(out, b)
		}
	}
	clear(c.s.Buildings[len(out):])
	c.s.Buildings = out
	c.obstaclesChanged()
}

// releaseBuilders idles every unit still assigned to build buildingID.
func (c *stepCtx) releaseBuilders(buildingID string) {
	for _, u := range c.s.Units {
		if u.Status != UnitMovingToBuild && u.Status != UnitConstructing {
			continue
		}
		if u.Target != nil && u.Target.Kind == KindBuilding && u.Target.ID == buildingID {
			u.setIdle()
		}
	}
}

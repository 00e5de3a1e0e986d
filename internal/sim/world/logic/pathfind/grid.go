// Package pathfind plans unit routes over a uniform grid whose blocked cells
// are derived from building footprints.
//
// Search order is fully fixed (neighbour order, open-set tie-break by
// insertion) so every peer produces the same waypoints for the same input.
package pathfind

import (
	"math"

	"lockstep.rts/internal/sim/world/logic/mathx"
)

type Vec2 = mathx.Vec2

type Config struct {
	CellSize      float64
	Padding       float64 // shrinks each cell before the overlap test so units can thread narrow gaps
	SightStep     float64 // maximum distance between line-of-sight samples
	MaxIterations int

	// Map bounds. Cells outside are never expanded by the search. Zero disables the bound.
	Width  float64
	Height float64
}

type Cell struct {
	Col int
	Row int
}

type Grid struct {
	cfg       Config
	obstacles []mathx.Rect
}

func New(cfg Config, obstacles []mathx.Rect) *Grid {
	if cfg.CellSize <= 0 {
		cfg.CellSize = 25
	}
	if cfg.SightStep <= 0 {
		cfg.SightStep = 10
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 600
	}
	return &Grid{cfg: cfg, obstacles: obstacles}
}

func (g *Grid) CellOf(p Vec2) Cell {
	return Cell{
		Col: int(math.Floor(p.X / g.cfg.CellSize)),
		Row: int(math.Floor(p.Y / g.cfg.CellSize)),
	}
}

func (g *Grid) CellCenter(c Cell) Vec2 {
	half := g.cfg.CellSize / 2
	return Vec2{
		X: float64(float64(c.Col)*g.cfg.CellSize) + half,
		Y: float64(float64(c.Row)*g.cfg.CellSize) + half,
	}
}

func (g *Grid) inBounds(c Cell) bool {
	if c.Col < 0 || c.Row < 0 {
		return false
	}
	if g.cfg.Width > 0 && float64(float64(c.Col)*g.cfg.CellSize) >= g.cfg.Width {
		return false
	}
	if g.cfg.Height > 0 && float64(float64(c.Row)*g.cfg.CellSize) >= g.cfg.Height {
		return false
	}
	return true
}

// Blocked reports whether the cell overlaps an obstacle once shrunk by the padding.
func (g *Grid) Blocked(c Cell) bool {
	min := Vec2{X: float64(float64(c.Col) * g.cfg.CellSize), Y: float64(float64(c.Row) * g.cfg.CellSize)}
	cell := mathx.Square(min, g.cfg.CellSize)
	for _, o := range g.obstacles {
		if cell.Overlaps(o, g.cfg.Padding) {
			return true
		}
	}
	return false
}

// LineOfSight samples the open segment between a and b. Endpoints are not tested.
func (g *Grid) LineOfSight(a, b Vec2) bool {
	dist := mathx.Dist(a, b)
	steps := int(math.Ceil(dist / g.cfg.SightStep))
	for i := 1; i < steps; i++ {
		p := mathx.Lerp(a, b, float64(i)/float64(steps))
		if g.Blocked(g.CellOf(p)) {
			return false
		}
	}
	return true
}

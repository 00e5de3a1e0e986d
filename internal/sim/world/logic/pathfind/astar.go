package pathfind

import (
	"container/heap"

	"lockstep.rts/internal/sim/world/logic/mathx"
)

// Fixed neighbour order: +col, -col, +row, -row.
var neighbours = [4]Cell{{Col: 1}, {Col: -1}, {Row: 1}, {Row: -1}}

type node struct {
	cell   Cell
	g, h   int
	parent *node
	seq    int
	index  int
	closed bool
}

func (n *node) f() int { return n.g + n.h }

type openList []*node

func (ol openList) Len() int { return len(ol) }
func (ol openList) Less(i, j int) bool {
	if fi, fj := ol[i].f(), ol[j].f(); fi != fj {
		return fi < fj
	}
	return ol[i].seq < ol[j].seq
}
func (ol openList) Swap(i, j int) {
	ol[i], ol[j] = ol[j], ol[i]
	ol[i].index = i
	ol[j].index = j
}
func (ol *openList) Push(x any) {
	n := x.(*node)
	n.index = len(*ol)
	*ol = append(*ol, n)
}
func (ol *openList) Pop() any {
	old := *ol
	n := old[len(old)-1]
	old[len(old)-1] = nil
	n.index = -1
	*ol = old[:len(old)-1]
	return n
}

func manhattan(a, b Cell) int {
	return mathx.AbsInt(a.Col-b.Col) + mathx.AbsInt(a.Row-b.Row)
}

// Find returns the waypoints leading from start to goal. The last waypoint is
// always goal itself. ok is false when no route exists or the search hit the
// iteration cap.
func (g *Grid) Find(start, goal Vec2) (path []Vec2, ok bool) {
	if g.LineOfSight(start, goal) {
		return []Vec2{goal}, true
	}

	startCell := g.CellOf(start)
	goalCell := g.CellOf(goal)

	seq := 0
	nodes := make(map[Cell]*node, 256)
	first := &node{cell: startCell, h: manhattan(startCell, goalCell), seq: seq}
	nodes[startCell] = first
	ol := &openList{}
	heap.Push(ol, first)

	for iterations := 1; ol.Len() > 0; iterations++ {
		if iterations > g.cfg.MaxIterations {
			return nil, false
		}
		cur := heap.Pop(ol).(*node)
		if cur.cell == goalCell {
			return g.simplify(start, g.reconstruct(cur, goal)), true
		}
		cur.closed = true

		for _, d := range neighbours {
			nc := Cell{Col: cur.cell.Col + d.Col, Row: cur.cell.Row + d.Row}
			if !g.inBounds(nc) {
				continue
			}
			existing := nodes[nc]
			if existing != nil && existing.closed {
				continue
			}
			if g.Blocked(nc) {
				continue
			}
			gScore := cur.g + 1
			if existing == nil {
				seq++
				n := &node{cell: nc, g: gScore, h: manhattan(nc, goalCell), parent: cur, seq: seq}
				nodes[nc] = n
				heap.Push(ol, n)
				continue
			}
			if gScore < existing.g {
				existing.g = gScore
				existing.parent = cur
				heap.Fix(ol, existing.index)
			}
		}
	}
	return nil, false
}

// reconstruct walks parent links back to (but excluding) the start cell and
// returns cell centres in travel order followed by the exact goal.
func (g *Grid) reconstruct(end *node, goal Vec2) []Vec2 {
	var rev []Vec2
	for n := end; n.parent != nil; n = n.parent {
		rev = append(rev, g.CellCenter(n.cell))
	}
	out := make([]Vec2, 0, len(rev)+1)
	for i := len(rev) - 1; i >= 0; i-- {
		out = append(out, rev[i])
	}
	return append(out, goal)
}

// simplify string-pulls the raw path: from the current anchor (initially the
// start position) it keeps only the furthest waypoint still in line of sight.
func (g *Grid) simplify(start Vec2, path []Vec2) []Vec2 {
	if len(path) <= 1 {
		return path
	}
	pts := make([]Vec2, 0, len(path)+1)
	pts = append(pts, start)
	pts = append(pts, path...)

	out := make([]Vec2, 0, len(path))
	cur := 0
	for cur < len(pts)-1 {
		next := cur + 1
		for i := len(pts) - 1; i > cur+1; i-- {
			if g.LineOfSight(pts[cur], pts[i]) {
				next = i
				break
			}
		}
		out = append(out, pts[next])
		cur = next
	}
	return out
}

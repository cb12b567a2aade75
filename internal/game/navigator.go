package game

import (
	"container/heap"

	"github.com/annel0/iso-game/internal/vec"
)

// Navigator поиск пути на плоскости карты
type Navigator interface {
	// FindPath возвращает точки сетки от from до to включительно или nil
	FindPath(from, to vec.Vec2) []vec.Vec2
}

// StraightNavigator ведёт по прямой без учёта препятствий
type StraightNavigator struct{}

func (StraightNavigator) FindPath(from, to vec.Vec2) []vec.Vec2 {
	if from == to {
		return nil
	}
	return []vec.Vec2{from, to}
}

// GridNavigator ищет путь A* по клеткам, не занятым стенами и объектами
type GridNavigator struct {
	min, max vec.Vec2
	blocked  map[vec.Vec2]bool
}

// NewGridNavigator строит карту проходимости для актёра высотой height на уровне y
func NewGridNavigator(grid *TileGrid, y, height int) *GridNavigator {
	bounds := grid.Bounds().Enclosing()
	n := &GridNavigator{
		min:     vec.Vec2{X: int(bounds.Min[0]), Y: int(bounds.Min[2])},
		max:     vec.Vec2{X: int(bounds.Max[0]), Y: int(bounds.Max[2])},
		blocked: make(map[vec.Vec2]bool),
	}
	for _, t := range grid.Tiles() {
		if !t.Flags().Test(FlagWallTile|FlagObjectTile|FlagColliding) || t.Box.Max[1] <= float32(y) || t.Box.Min[1] >= float32(y+height) {
			continue
		}
		b := t.Box.Enclosing()
		for z := int(b.Min[2]); z < int(b.Max[2]); z++ {
			for x := int(b.Min[0]); x < int(b.Max[0]); x++ {
				n.blocked[vec.Vec2{X: x, Y: z}] = true
			}
		}
	}
	return n
}

// Blocked сообщает, занята ли клетка
func (n *GridNavigator) Blocked(p vec.Vec2) bool {
	return n.blocked[p] || p.X < n.min.X || p.Y < n.min.Y || p.X >= n.max.X || p.Y >= n.max.Y
}

var navDirs = [8]vec.Vec2{
	{X: 1}, {X: -1}, {Y: 1}, {Y: -1},
	{X: 1, Y: 1}, {X: 1, Y: -1}, {X: -1, Y: 1}, {X: -1, Y: -1},
}

type navNode struct {
	pos  vec.Vec2
	cost int
	prio int
	idx  int
}

type navQueue []*navNode

func (q navQueue) Len() int { return len(q) }
func (q navQueue) Less(i, j int) bool {
	if q[i].prio != q[j].prio {
		return q[i].prio < q[j].prio
	}
	if q[i].pos.Y != q[j].pos.Y {
		return q[i].pos.Y < q[j].pos.Y
	}
	return q[i].pos.X < q[j].pos.X
}
func (q navQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].idx, q[j].idx = i, j
}
func (q *navQueue) Push(x interface{}) {
	n := x.(*navNode)
	n.idx = len(*q)
	*q = append(*q, n)
}
func (q *navQueue) Pop() interface{} {
	old := *q
	n := old[len(old)-1]
	*q = old[:len(old)-1]
	return n
}

// Стоимости шагов: 10 по оси, 14 по диагонали
func octile(a, b vec.Vec2) int {
	dx, dz := abs(a.X-b.X), abs(a.Y-b.Y)
	return 10*(dx+dz) - 6*min(dx, dz)
}

// FindPath реализует Navigator
func (n *GridNavigator) FindPath(from, to vec.Vec2) []vec.Vec2 {
	if from == to || n.Blocked(to) {
		return nil
	}

	came := map[vec.Vec2]vec.Vec2{}
	cost := map[vec.Vec2]int{from: 0}
	q := &navQueue{}
	heap.Push(q, &navNode{pos: from, prio: octile(from, to)})

	for q.Len() > 0 {
		cur := heap.Pop(q).(*navNode)
		if cur.pos == to {
			break
		}
		if cur.cost > cost[cur.pos] {
			continue
		}
		for i, d := range navDirs {
			next := cur.pos.Add(d)
			if n.Blocked(next) {
				continue
			}
			// Диагональ не срезает углы
			if i >= 4 && (n.Blocked(vec.Vec2{X: next.X, Y: cur.pos.Y}) || n.Blocked(vec.Vec2{X: cur.pos.X, Y: next.Y})) {
				continue
			}
			step := 10
			if i >= 4 {
				step = 14
			}
			nc := cur.cost + step
			if old, ok := cost[next]; ok && old <= nc {
				continue
			}
			cost[next] = nc
			came[next] = cur.pos
			heap.Push(q, &navNode{pos: next, cost: nc, prio: nc + octile(next, to)})
		}
	}

	if _, ok := came[to]; !ok {
		return nil
	}
	var out []vec.Vec2
	for p := to; p != from; p = came[p] {
		out = append(out, p)
	}
	out = append(out, from)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}


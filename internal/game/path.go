package game

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/iso-game/internal/protocol"
	"github.com/annel0/iso-game/internal/vec"
)

// maxPathRun максимальная длина прямого участка пути в клетках
const maxPathRun = 3

// Path последовательность опорных точек, разбитая на участки по осям и диагоналям
type Path struct {
	points []vec.Vec3
}

// PathPos позиция на пути: номер участка и доля пройденного на нём расстояния
type PathPos struct {
	Node int
	T    float32
}

// NewPath создаёт путь из готовых точек
func NewPath(points []vec.Vec3) Path {
	return Path{points: append([]vec.Vec3(nil), points...)}
}

// BuildPath переводит точки сетки в путь на высоте y. Каждый переход между
// соседними точками раскладывается на участки по X, по Z и по диагонали,
// каждый не длиннее maxPathRun клеток.
func BuildPath(grid []vec.Vec2, y int) Path {
	if len(grid) == 0 {
		return Path{}
	}
	cur := grid[0].AsXZY(y)
	points := []vec.Vec3{cur}

	for n := 1; n < len(grid); n++ {
		diff := grid[n].Sub(grid[n-1])
		if diff == (vec.Vec2{}) {
			continue
		}
		dir := diff.Sign()
		ax, az := abs(diff.X), abs(diff.Y)
		diag := min(ax, az)
		ax -= diag
		az -= diag

		for ax > 0 {
			step := min(ax, maxPathRun)
			cur = cur.Add(vec.Vec3{X: dir.X * step})
			points = append(points, cur)
			ax -= step
		}
		for az > 0 {
			step := min(az, maxPathRun)
			cur = cur.Add(vec.Vec3{Z: dir.Y * step})
			points = append(points, cur)
			az -= step
		}
		for diag > 0 {
			step := min(diag, maxPathRun)
			cur = cur.Add(dir.AsXZY(0).Mul(step))
			points = append(points, cur)
			diag -= step
		}
	}
	return Path{points: points}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (p Path) IsEmpty() bool        { return len(p.points) < 2 }
func (p Path) Len() int             { return len(p.points) }
func (p Path) Points() []vec.Vec3   { return p.points }
func (p Path) Point(i int) vec.Vec3 { return p.points[i] }

// End последняя точка пути
func (p Path) End() vec.Vec3 {
	if len(p.points) == 0 {
		return vec.Vec3{}
	}
	return p.points[len(p.points)-1]
}

// Length полная длина пути
func (p Path) Length() float32 {
	var l float32
	for n := 1; n < len(p.points); n++ {
		l += p.points[n].Float().Sub(p.points[n-1].Float()).Len()
	}
	return l
}

// Pos возвращает точку пути для позиции
func (p Path) Pos(pp PathPos) mgl32.Vec3 {
	if len(p.points) == 0 {
		return mgl32.Vec3{}
	}
	if pp.Node >= len(p.points)-1 {
		return p.End().Float()
	}
	a, b := p.points[pp.Node].Float(), p.points[pp.Node+1].Float()
	return a.Add(b.Sub(a).Mul(pp.T))
}

// Follow сдвигает позицию на step единиц вдоль пути.
// Возвращает true, если достигнут конец пути.
func (p Path) Follow(pp *PathPos, step float32) bool {
	for pp.Node < len(p.points)-1 {
		a, b := p.points[pp.Node].Float(), p.points[pp.Node+1].Float()
		segLen := b.Sub(a).Len()
		if segLen == 0 {
			pp.Node++
			pp.T = 0
			continue
		}

		left := segLen * (1 - pp.T)
		if step < left {
			pp.T += step / segLen
			return false
		}
		step -= left
		pp.Node++
		pp.T = 0
	}
	return true
}

// truncate обрезает путь до следующей опорной точки
func (p *Path) truncate(pp PathPos) {
	end := pp.Node + 2
	if end < len(p.points) {
		p.points = p.points[:end]
	}
}

// encode пишет путь: первую точку целиком, остальные разностями от предыдущей
func (p Path) encode(w *protocol.Writer) {
	w.Uvarint(uint64(len(p.points)))
	var prev vec.Vec3
	for _, pt := range p.points {
		writeVec3(w, pt.Sub(prev))
		prev = pt
	}
}

func decodePath(r *protocol.Reader) Path {
	count := r.Uvarint()
	if count > uint64(r.Remaining()) {
		r.Fail(protocol.ErrShortBuffer)
		return Path{}
	}
	points := make([]vec.Vec3, 0, count)
	var prev vec.Vec3
	for i := uint64(0); i < count && r.Err() == nil; i++ {
		prev = prev.Add(readVec3(r))
		points = append(points, prev)
	}
	return Path{points: points}
}

func writeVec3(w *protocol.Writer, v vec.Vec3) {
	w.Varint(int64(v.X))
	w.Varint(int64(v.Y))
	w.Varint(int64(v.Z))
}

func readVec3(r *protocol.Reader) vec.Vec3 {
	x := r.Varint()
	y := r.Varint()
	z := r.Varint()
	return vec.Vec3{X: int(x), Y: int(y), Z: int(z)}
}

func writeFloat3(w *protocol.Writer, v mgl32.Vec3) {
	w.F32(v[0])
	w.F32(v[1])
	w.F32(v[2])
}

func readFloat3(r *protocol.Reader) mgl32.Vec3 {
	x := r.F32()
	y := r.F32()
	z := r.F32()
	return mgl32.Vec3{x, y, z}
}

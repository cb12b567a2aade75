package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/iso-game/internal/vec"
)

// Box представляет выровненный по осям параллелепипед (AABB) с float координатами
type Box struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// NewBox создаёт коробку по позиции и размеру
func NewBox(pos, size mgl32.Vec3) Box {
	return Box{Min: pos, Max: pos.Add(size)}
}

// IntBox создаёт коробку из целочисленных углов
func IntBox(min, max vec.Vec3) Box {
	return Box{Min: min.Float(), Max: max.Float()}
}

// Size возвращает размеры коробки
func (b Box) Size() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

// Center возвращает центр коробки
func (b Box) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Height возвращает высоту по оси Y
func (b Box) Height() float32 {
	return b.Max[1] - b.Min[1]
}

// Translate сдвигает коробку на вектор
func (b Box) Translate(off mgl32.Vec3) Box {
	return Box{Min: b.Min.Add(off), Max: b.Max.Add(off)}
}

// Shrink уменьшает коробку на eps с каждой стороны
func (b Box) Shrink(eps float32) Box {
	d := mgl32.Vec3{eps, eps, eps}
	return Box{Min: b.Min.Add(d), Max: b.Max.Sub(d)}
}

// Enclosing возвращает минимальную целочисленную коробку, содержащую b
func (b Box) Enclosing() Box {
	return IntBox(vec.Floor(b.Min), vec.Ceil(b.Max))
}

// IsEmpty сообщает, что коробка вырождена хотя бы по одной оси
func (b Box) IsEmpty() bool {
	return b.Max[0] <= b.Min[0] || b.Max[1] < b.Min[1] || b.Max[2] <= b.Min[2]
}

// ClosestPoint возвращает ближайшую к p точку коробки
func (b Box) ClosestPoint(p mgl32.Vec3) mgl32.Vec3 {
	var out mgl32.Vec3
	for i := 0; i < 3; i++ {
		out[i] = mgl32.Clamp(p[i], b.Min[i], b.Max[i])
	}
	return out
}

// Overlaps проверяет строгое пересечение двух коробок (касание пересечением не считается)
func Overlaps(a, b Box) bool {
	return a.Min[0] < b.Max[0] && b.Min[0] < a.Max[0] &&
		a.Min[1] < b.Max[1] && b.Min[1] < a.Max[1] &&
		a.Min[2] < b.Max[2] && b.Min[2] < a.Max[2]
}

// RectDistanceSq возвращает квадрат расстояния между проекциями коробок на плоскость XZ
func RectDistanceSq(a, b Box) float32 {
	dx := axisGap(a.Min[0], a.Max[0], b.Min[0], b.Max[0])
	dz := axisGap(a.Min[2], a.Max[2], b.Min[2], b.Max[2])
	return dx*dx + dz*dz
}

func axisGap(amin, amax, bmin, bmax float32) float32 {
	if amax < bmin {
		return bmin - amax
	}
	if bmax < amin {
		return amin - bmax
	}
	return 0
}

// Segment представляет отрезок луча: Origin + Dir*t, t ∈ [Min, Max]
type Segment struct {
	Origin mgl32.Vec3
	Dir    mgl32.Vec3 // Нормализованное направление
	Min    float32
	Max    float32
}

// NewSegment строит отрезок между двумя точками
func NewSegment(from, to mgl32.Vec3) Segment {
	d := to.Sub(from)
	l := d.Len()
	if l > 0 {
		d = d.Mul(1 / l)
	}
	return Segment{Origin: from, Dir: d, Min: 0, Max: l}
}

// At возвращает точку отрезка для параметра t
func (s Segment) At(t float32) mgl32.Vec3 {
	return s.Origin.Add(s.Dir.Mul(t))
}

// IntersectSegment находит первое пересечение отрезка с коробкой (метод плит).
// Возвращает +Inf, если пересечения нет.
func IntersectSegment(s Segment, b Box) float32 {
	tmin, tmax := s.Min, s.Max

	for i := 0; i < 3; i++ {
		if s.Dir[i] == 0 {
			if s.Origin[i] < b.Min[i] || s.Origin[i] > b.Max[i] {
				return float32(math.Inf(1))
			}
			continue
		}

		inv := 1 / s.Dir[i]
		t0 := (b.Min[i] - s.Origin[i]) * inv
		t1 := (b.Max[i] - s.Origin[i]) * inv
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tmin {
			tmin = t0
		}
		if t1 < tmax {
			tmax = t1
		}
		if tmin > tmax {
			return float32(math.Inf(1))
		}
	}

	return tmin
}

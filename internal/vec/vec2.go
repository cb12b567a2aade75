package vec

import "math"

// Vec2 представляет 2D координаты на плоскости XZ
type Vec2 struct {
	X, Y int
}

// Add складывает два вектора
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

// Sub вычитает вектор
func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{X: v.X - other.X, Y: v.Y - other.Y}
}

// Sign возвращает покомпонентный знак вектора (-1, 0, 1)
func (v Vec2) Sign() Vec2 {
	return Vec2{X: sign(v.X), Y: sign(v.Y)}
}

// DistanceTo вычисляет расстояние до другой точки
func (v Vec2) DistanceTo(other Vec2) float64 {
	dx := float64(v.X - other.X)
	dy := float64(v.Y - other.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// AsXZY поднимает точку плоскости в 3D с заданной высотой
func (v Vec2) AsXZY(y int) Vec3 {
	return Vec3{X: v.X, Y: y, Z: v.Y}
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}

package vec

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Vec3 представляет трехмерный вектор с целочисленными координатами.
// Ось Y направлена вверх, плоскость карты — XZ.
type Vec3 struct {
	X int
	Y int
	Z int
}

// XZ возвращает проекцию на плоскость карты
func (v Vec3) XZ() Vec2 {
	return Vec2{X: v.X, Y: v.Z}
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v == other
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub вычитает вектор
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Mul умножает вектор на скаляр
func (v Vec3) Mul(s int) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// DistanceSq возвращает квадрат расстояния до другого вектора
func (v Vec3) DistanceSq(other Vec3) int {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return dx*dx + dy*dy + dz*dz
}

// Float конвертирует вектор в mgl32.Vec3
func (v Vec3) Float() mgl32.Vec3 {
	return mgl32.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}

// Floor отбрасывает дробную часть (округление вниз)
func Floor(v mgl32.Vec3) Vec3 {
	return Vec3{
		X: int(math.Floor(float64(v[0]))),
		Y: int(math.Floor(float64(v[1]))),
		Z: int(math.Floor(float64(v[2]))),
	}
}

// Round округляет каждую координату к ближайшему целому (половины вверх)
func Round(v mgl32.Vec3) Vec3 {
	return Floor(v.Add(mgl32.Vec3{0.5, 0.5, 0.5}))
}

// Ceil округляет вверх
func Ceil(v mgl32.Vec3) Vec3 {
	return Vec3{
		X: int(math.Ceil(float64(v[0]))),
		Y: int(math.Ceil(float64(v[1]))),
		Z: int(math.Ceil(float64(v[2]))),
	}
}

package vec

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// VectorToAngle переводит направление на плоскости XZ в угол (радианы, [0, 2π))
func VectorToAngle(x, z float32) float32 {
	ang := float32(math.Atan2(float64(z), float64(x)))
	if ang < 0 {
		ang += 2 * math.Pi
	}
	return ang
}

// AngleToVector возвращает единичный вектор (x, z) для угла
func AngleToVector(angle float32) mgl32.Vec2 {
	return mgl32.Vec2{float32(math.Cos(float64(angle))), float32(math.Sin(float64(angle)))}
}

// BlendAngles поворачивает initial в сторону target не более чем на step радиан
func BlendAngles(initial, target, step float32) float32 {
	if initial == target {
		return target
	}

	diff := target - initial
	for diff > math.Pi {
		diff -= 2 * math.Pi
	}
	for diff < -math.Pi {
		diff += 2 * math.Pi
	}

	if float32(math.Abs(float64(diff))) <= step {
		return target
	}

	out := initial + step
	if diff < 0 {
		out = initial - step
	}
	for out < 0 {
		out += 2 * math.Pi
	}
	for out >= 2*math.Pi {
		out -= 2 * math.Pi
	}
	return out
}

// RotateXZ поворачивает точку плоскости на угол
func RotateXZ(x, z, angle float32) (float32, float32) {
	s, c := math.Sincos(float64(angle))
	return x*float32(c) - z*float32(s), x*float32(s) + z*float32(c)
}

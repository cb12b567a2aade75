package vec

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestRoundSnapsHalves(t *testing.T) {
	assert.Equal(t, Vec3{X: 3, Y: 1, Z: -2}, Round(mgl32.Vec3{2.5, 0.6, -2.4}))
	assert.Equal(t, Vec3{X: 2, Y: 0, Z: -3}, Floor(mgl32.Vec3{2.9, 0.1, -2.1}))
}

func TestBlendAnglesStopsAtTarget(t *testing.T) {
	step := float32(math.Pi / 4)

	// Близкая цель достигается за один шаг
	assert.Equal(t, float32(1.0), BlendAngles(0.9, 1.0, step))

	// Поворот через ноль выбирает кратчайшее направление
	out := BlendAngles(0.1, float32(2*math.Pi-0.1), step)
	assert.InDelta(t, 2*math.Pi-0.1, out, 1e-5)

	out = BlendAngles(0, math.Pi, step)
	assert.InDelta(t, math.Pi/4, out, 1e-5)
}

func TestVectorAngleRoundTrip(t *testing.T) {
	for _, ang := range []float32{0, 0.5, 2, 4, 6} {
		v := AngleToVector(ang)
		assert.InDelta(t, ang, VectorToAngle(v[0], v[1]), 1e-4)
	}
}

func TestVec2Sign(t *testing.T) {
	assert.Equal(t, Vec2{X: -1, Y: 1}, Vec2{X: -7, Y: 3}.Sign())
	assert.Equal(t, Vec3{X: 4, Y: 1, Z: 2}, Vec2{X: 4, Y: 2}.AsXZY(1))
}

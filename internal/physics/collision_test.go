package physics

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestOverlapsIsStrict(t *testing.T) {
	a := NewBox(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{2, 2, 2})
	b := NewBox(mgl32.Vec3{2, 0, 0}, mgl32.Vec3{1, 1, 1})
	c := NewBox(mgl32.Vec3{1.5, 1, 1}, mgl32.Vec3{1, 1, 1})

	assert.False(t, Overlaps(a, b), "касающиеся коробки не пересекаются")
	assert.True(t, Overlaps(a, c))
	assert.True(t, Overlaps(c, a))
}

func TestIntersectSegment(t *testing.T) {
	box := NewBox(mgl32.Vec3{5, 0, -1}, mgl32.Vec3{2, 2, 2})

	seg := NewSegment(mgl32.Vec3{0, 1, 0}, mgl32.Vec3{10, 1, 0})
	assert.InDelta(t, 5.0, IntersectSegment(seg, box), 1e-5)

	short := NewSegment(mgl32.Vec3{0, 1, 0}, mgl32.Vec3{4, 1, 0})
	assert.True(t, math.IsInf(float64(IntersectSegment(short, box)), 1))

	miss := NewSegment(mgl32.Vec3{0, 5, 0}, mgl32.Vec3{10, 5, 0})
	assert.True(t, math.IsInf(float64(IntersectSegment(miss, box)), 1))
}

func TestEnclosingAndDistance(t *testing.T) {
	b := Box{Min: mgl32.Vec3{0.2, 0.5, 1.7}, Max: mgl32.Vec3{1.1, 2, 2.2}}
	e := b.Enclosing()
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, e.Min)
	assert.Equal(t, mgl32.Vec3{2, 2, 3}, e.Max)

	a := NewBox(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 1, 1})
	c := NewBox(mgl32.Vec3{2, 0, 0}, mgl32.Vec3{1, 1, 1})
	assert.InDelta(t, 1.0, RectDistanceSq(a, c), 1e-6)
}

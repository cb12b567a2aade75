package game

import (
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"

	"github.com/annel0/iso-game/internal/physics"
	"github.com/annel0/iso-game/internal/vec"
)

// fixedSource источник случайных чисел, всегда возвращающий одно значение
type fixedSource int64

func (s fixedSource) Int63() int64 { return int64(s) }
func (s fixedSource) Seed(int64)   {}

// fixedRand генератор, у которого Float32 всегда равен v
func fixedRand(v float64) *rand.Rand {
	return rand.New(fixedSource(int64(v * (1 << 63))))
}

func newTestWorld(t *testing.T, mode Mode) *World {
	t.Helper()
	return NewWorld(WorldConfig{Mode: mode, Assets: BuiltinRegistry(), Seed: 1})
}

func spawnActor(t *testing.T, w *World, pos vec.Vec3) *Actor {
	t.Helper()
	proto := w.Assets().Actor("male")
	require.NotNil(t, proto)
	a := NewActor(proto, StanceStand)
	a.SetPos(pos.Float())
	w.AddEntity(a)
	return a
}

// simulate прогоняет мир total секунд шагами dt
func simulate(w *World, total, dt float32) {
	for t := float32(0); t < total; t += dt {
		w.Simulate(dt)
	}
}

func countEntities(w *World, typ EntityID) int {
	n := 0
	for _, ref := range w.Entities() {
		if w.Entity(ref).Type() == typ {
			n++
		}
	}
	return n
}

func v3(x, y, z int) vec.Vec3 { return vec.Vec3{X: x, Y: y, Z: z} }

func f3(x, y, z float32) mgl32.Vec3 { return mgl32.Vec3{x, y, z} }

func v2(x, z int) vec.Vec2 { return vec.Vec2{X: x, Y: z} }

func boxAt(x, y, z, sx, sy, sz float32) physics.Box {
	return physics.NewBox(f3(x, y, z), f3(sx, sy, sz))
}

// segmentX отрезок длиной 20 вдоль оси X
func segmentX(x, y, z float32) physics.Segment {
	return physics.NewSegment(f3(x, y, z), f3(x+20, y, z))
}

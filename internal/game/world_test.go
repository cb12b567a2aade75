package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityRefGenerations(t *testing.T) {
	w := newTestWorld(t, ModeServer)
	medkit := w.Assets().Item("medkit")

	first := w.AddEntity(NewItemEntity(medkit, 1, f3(0, 0, 0)))
	require.True(t, first.IsValid())
	assert.Equal(t, 0, first.Index())
	assert.NotNil(t, w.Entity(first))

	w.RemoveEntity(first)
	assert.NotNil(t, w.Entity(first), "removal is applied at the end of the tick")
	w.Simulate(0.01)
	assert.Nil(t, w.Entity(first))

	second := w.AddEntity(NewItemEntity(medkit, 2, f3(1, 0, 0)))
	assert.Equal(t, first.Index(), second.Index(), "slot is reused")
	assert.NotEqual(t, first.Generation(), second.Generation())
	assert.Nil(t, w.Entity(first), "stale reference never resolves to the new entity")
	assert.NotNil(t, w.Entity(second))
	assert.Nil(t, w.Entity(EntityRef{}))
	assert.Nil(t, w.Entity(NewEntityRef(40, 1)))
}

func TestTakeUpdates(t *testing.T) {
	w := newTestWorld(t, ModeServer)
	a := spawnActor(t, w, v3(0, 0, 0))
	item := w.AddEntity(NewItemEntity(w.Assets().Item("ammo"), 5, f3(10, 0, 0)))

	assert.Equal(t, []int{a.Ref().Index(), item.Index()}, w.TakeUpdates())
	assert.Empty(t, w.TakeUpdates())

	w.RemoveEntity(item)
	w.Simulate(0.01)
	updates := w.TakeUpdates()
	assert.Contains(t, updates, item.Index())
	e, _ := w.EntityAt(item.Index())
	assert.Nil(t, e, "deleted slot")
}

func TestReplaceEntityKeepsGeneration(t *testing.T) {
	w := newTestWorld(t, ModeClient)
	ref := NewEntityRef(3, 9)
	item := NewItemEntity(w.Assets().Item("knife"), 1, f3(0, 0, 0))
	w.ReplaceEntity(ref, item)

	assert.Same(t, item, w.Entity(ref))
	assert.Equal(t, ref, item.Ref())
	assert.Equal(t, 4, w.NumSlots())

	// Новая сущность в незанятом слоте получает ссылку с другим поколением
	other := w.AddEntity(NewItemEntity(w.Assets().Item("knife"), 1, f3(0, 0, 0)))
	assert.NotEqual(t, 3, other.Index())

	w.DeleteEntity(3)
	assert.Nil(t, w.Entity(ref))
	assert.Nil(t, item.World())
}

func TestClientDoesNotSpawn(t *testing.T) {
	w := newTestWorld(t, ModeClient)
	a := spawnActor(t, w, v3(0, 0, 0))
	a.fireProjectile(v3(0, 0, 0), f3(10, 0, 0), w.Assets().Weapon("rifle"), 0)
	assert.Zero(t, countEntities(w, EntityProjectile))
}

func TestAnimationLoopsAndFinishes(t *testing.T) {
	w := newTestWorld(t, ModeServer)
	im := NewImpact(w.Assets().Impact("bullet"), f3(0, 0, 0))
	ref := w.AddEntity(im)

	// Три кадра анимации, затем эффект удаляется
	simulate(w, 0.1, 0.01)
	assert.NotNil(t, w.Entity(ref))
	simulate(w, 0.2, 0.01)
	assert.Nil(t, w.Entity(ref))

	a := spawnActor(t, w, v3(0, 0, 0))
	w.Simulate(0.01)
	simulate(w, 2, 0.01)
	assert.False(t, a.IsAnimFinished(), "idle loops")
	assert.Equal(t, ActionIdle, a.Action())
}

func TestTileGridQueries(t *testing.T) {
	g := NewTileGrid()
	floor := g.AddBlock(TileFloor, v3(0, -1, 0), v3(20, 0, 20))
	wall := g.AddBlock(TileWall, v3(10, 0, 0), v3(11, 10, 20))

	assert.Equal(t, wall, g.FindAny(boxAt(9, 0, 5, 3, 3, 3), FlagWallTile|FlagColliding))
	assert.Equal(t, -1, g.FindAny(boxAt(2, 0, 5, 3, 3, 3), FlagTile|FlagColliding), "touching the floor is not overlapping")
	assert.Equal(t, floor, g.FindAny(boxAt(2, -0.5, 5, 3, 3, 3), FlagFloorTile))

	id, dist := g.Trace(segmentX(0, 5, 5), FlagTile|FlagOccluding)
	assert.Equal(t, wall, id)
	assert.InDelta(t, 10, dist, 1e-4)

	id, _ = g.Trace(segmentX(12, 5, 5), FlagTile|FlagOccluding)
	assert.Equal(t, -1, id)

	b := g.Bounds()
	assert.Equal(t, f3(0, -1, 0), b.Min)
	assert.Equal(t, f3(20, 10, 20), b.Max)
}

func TestWorldVisibility(t *testing.T) {
	g := NewTileGrid()
	g.AddBlock(TileWall, v3(10, 0, 0), v3(11, 10, 20))
	w := NewWorld(WorldConfig{Mode: ModeServer, Assets: BuiltinRegistry(), Tiles: g})

	a := spawnActor(t, w, v3(0, 0, 5))
	b := spawnActor(t, w, v3(15, 0, 5))
	c := spawnActor(t, w, v3(5, 0, 5))

	assert.False(t, w.IsVisible(a.BoundingBox(), b.BoundingBox()))
	assert.True(t, w.IsVisible(a.BoundingBox(), c.BoundingBox()))

	hit := w.Trace(segmentX(0, 4, 6), FlagEntity|FlagColliding, a.Ref())
	require.True(t, hit.Ref.IsEntity())
	assert.Equal(t, c.Ref(), hit.Ref.Entity())

	assert.True(t, w.IsColliding(boxAt(6, 0, 6, 1, 1, 1), a.Ref(), FlagEntity|FlagColliding))
	assert.False(t, w.IsColliding(boxAt(1, 0, 6, 1, 1, 1), a.Ref(), FlagEntity|FlagColliding), "own box is ignored")
	assert.Len(t, w.FindAll(boxAt(0, 0, 0, 20, 10, 20), FlagActor, EntityRef{}), 3)
}

func TestGridNavigator(t *testing.T) {
	g := NewTileGrid()
	g.AddBlock(TileFloor, v3(0, -1, 0), v3(10, 0, 10))
	// Стена поперёк карты с проходом у края
	g.AddBlock(TileWall, v3(5, 0, 0), v3(6, 5, 8))

	nav := NewGridNavigator(g, 0, 5)
	assert.True(t, nav.Blocked(v2(5, 3)))
	assert.False(t, nav.Blocked(v2(5, 9)))
	assert.True(t, nav.Blocked(v2(-1, 3)), "outside of the map")

	path := nav.FindPath(v2(1, 1), v2(8, 1))
	require.NotEmpty(t, path)
	assert.Equal(t, v2(1, 1), path[0])
	assert.Equal(t, v2(8, 1), path[len(path)-1])
	for _, p := range path {
		assert.False(t, nav.Blocked(p), "path crosses %v", p)
	}
	for i := 1; i < len(path); i++ {
		d := path[i].Sub(path[i-1])
		assert.LessOrEqual(t, abs(d.X), 1)
		assert.LessOrEqual(t, abs(d.Y), 1)
	}

	assert.Nil(t, nav.FindPath(v2(1, 1), v2(5, 3)), "target is blocked")
}

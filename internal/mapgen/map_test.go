package mapgen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/iso-game/internal/game"
	"github.com/annel0/iso-game/internal/vec"
)

const arenaYAML = `
name: arena
size: [20, 20]
tiles:
  - type: wall
    min: [0, 0, 0]
    max: [1, 3, 20]
  - type: object
    min: [5, 0, 5]
    max: [6, 1, 6]
    occluding: true
spawns:
  - [2, 0, 2]
  - [2, 0, 6]
actors:
  - proto: male
    pos: [10, 0, 10]
    faction: 2
    stance: crouch
    sentry:
      range: 15
      mode: aggressive
items:
  - item: medkit
    pos: [4, 0, 4]
`

func TestParseMap(t *testing.T) {
	m, err := Parse([]byte(arenaYAML))
	require.NoError(t, err)

	assert.Equal(t, "arena", m.Name)
	// пол, стена, объект
	require.Equal(t, 3, m.Tiles.Len())
	assert.Equal(t, game.TileFloor, m.Tiles.Tile(0).Type)
	assert.True(t, m.Tiles.Tile(1).Occluding)
	assert.True(t, m.Tiles.Tile(2).Occluding)
	assert.Equal(t, []vec.Vec3{{X: 2, Z: 2}, {X: 2, Z: 6}}, m.Spawns)

	require.Len(t, m.Actors, 1)
	assert.Equal(t, game.StanceCrouch, m.Actors[0].Stance)
	require.NotNil(t, m.Actors[0].Sentry)
	assert.Equal(t, game.SentryAggressive, m.Actors[0].Sentry.Mode)

	require.Len(t, m.Items, 1)
	assert.Equal(t, 1, m.Items[0].Count)
}

func TestParseMapErrors(t *testing.T) {
	cases := map[string]string{
		"no name":      "size: [4, 4]",
		"empty box":    "name: x\ntiles:\n  - type: wall\n    min: [1, 0, 1]\n    max: [1, 3, 2]",
		"bad tile":     "name: x\ntiles:\n  - type: lava\n    min: [0, 0, 0]\n    max: [1, 1, 1]",
		"actor proto":  "name: x\nactors:\n  - pos: [1, 0, 1]",
		"bad yaml":     "name: [",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadAndPopulate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.yaml")
	require.NoError(t, os.WriteFile(path, []byte(arenaYAML), 0o644))

	m, err := Load(path)
	require.NoError(t, err)

	w := game.NewWorld(game.WorldConfig{Mode: game.ModeServer, MapName: m.Name, Tiles: m.Tiles, Navigator: m.Navigator(5)})
	refs, err := m.Populate(w)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	a := w.Actor(refs[0])
	require.NotNil(t, a)
	assert.Equal(t, "male", a.Proto().ID)
	assert.Equal(t, 2, a.Faction())
	assert.Equal(t, game.StanceCrouch, a.Stance())

	_, ok := w.Entity(refs[1]).(*game.ItemEntity)
	assert.True(t, ok)
}

func TestPopulateUnknownProto(t *testing.T) {
	m, err := Parse([]byte("name: x\nactors:\n  - proto: dragon\n    pos: [1, 0, 1]"))
	require.NoError(t, err)
	_, err = m.Populate(game.NewWorld(game.WorldConfig{Mode: game.ModeServer}))
	assert.Error(t, err)
}

func TestGenerateIsDeterministic(t *testing.T) {
	a, err := NewGenerator(7, 40, 30).Generate()
	require.NoError(t, err)
	b, err := NewGenerator(7, 40, 30).Generate()
	require.NoError(t, err)

	assert.Equal(t, a.Tiles.Tiles(), b.Tiles.Tiles())
	assert.Equal(t, a.Spawns, b.Spawns)
	assert.Equal(t, "generated-7", a.Name)
}

func TestGeneratedMapHasWallsAndFreeSpawns(t *testing.T) {
	g := NewGenerator(3, 32, 32)
	terrain := g.Terrain()
	for i := 0; i < 32; i++ {
		assert.Equal(t, TerrainWall, terrain[0][i])
		assert.Equal(t, TerrainWall, terrain[31][i])
		assert.Equal(t, TerrainWall, terrain[i][0])
		assert.Equal(t, TerrainWall, terrain[i][31])
	}

	m, err := g.Generate()
	require.NoError(t, err)
	require.NotEmpty(t, m.Spawns)
	assert.LessOrEqual(t, len(m.Spawns), g.Spawns)

	nav := m.Navigator(5).(*game.GridNavigator)
	for _, s := range m.Spawns {
		assert.False(t, nav.Blocked(vec.Vec2{X: s.X, Y: s.Z}), "spawn %v", s)
	}
	assert.True(t, nav.Blocked(vec.Vec2{X: 0, Y: 0}))
}

func TestGenerateTooSmall(t *testing.T) {
	_, err := NewGenerator(1, 2, 10).Generate()
	assert.Error(t, err)
}

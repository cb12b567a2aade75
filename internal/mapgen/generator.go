package mapgen

import (
	"fmt"
	"math/rand"

	"github.com/annel0/iso-game/internal/game"
	"github.com/annel0/iso-game/internal/vec"
)

// Terrain тип клетки сгенерированной карты
type Terrain int

const (
	TerrainFloor Terrain = iota
	TerrainWater
	TerrainRubble
	TerrainRock
	TerrainWall
)

// Пороговые значения высоты для генерации
const (
	WaterMax  = 0.30 // Ниже - вода (непроходимый низкий объект)
	RockStart = 0.72 // Выше - скалы (стены)
)

const (
	wallHeight   = 4
	rubbleHeight = 1
)

// Generator генерирует карту по шуму Перлина
type Generator struct {
	Seed          int64   // Сид для генерации шума
	Width, Depth  int     // Размер карты в клетках
	NoiseScale    float64 // Масштаб шума высоты
	RubbleDensity float64 // Плотность обломков на равнине (от 0 до 1)
	Spawns        int     // Количество точек появления
}

// NewGenerator создаёт генератор карты width x depth
func NewGenerator(seed int64, width, depth int) *Generator {
	return &Generator{
		Seed:          seed,
		Width:         width,
		Depth:         depth,
		NoiseScale:    0.08,
		RubbleDensity: 0.03,
		Spawns:        8,
	}
}

// Terrain вычисляет поле клеток без построения тайлов
func (g *Generator) Terrain() [][]Terrain {
	noise := NewNoise(g.Seed)
	rng := rand.New(rand.NewSource(g.Seed))

	out := make([][]Terrain, g.Depth)
	for z := 0; z < g.Depth; z++ {
		out[z] = make([]Terrain, g.Width)
		for x := 0; x < g.Width; x++ {
			if x == 0 || z == 0 || x == g.Width-1 || z == g.Depth-1 {
				out[z][x] = TerrainWall
				continue
			}
			height := noise.At(float64(x)*g.NoiseScale, float64(z)*g.NoiseScale)
			switch {
			case height < WaterMax:
				out[z][x] = TerrainWater
			case height >= RockStart:
				out[z][x] = TerrainRock
			case rng.Float64() < g.RubbleDensity:
				out[z][x] = TerrainRubble
			default:
				out[z][x] = TerrainFloor
			}
		}
	}
	return out
}

// Generate строит карту с тайлами и точками появления
func (g *Generator) Generate() (*Map, error) {
	if g.Width < 3 || g.Depth < 3 {
		return nil, fmt.Errorf("слишком маленькая карта %dx%d", g.Width, g.Depth)
	}
	terrain := g.Terrain()

	m := &Map{
		Name:  fmt.Sprintf("generated-%d", g.Seed),
		Width: g.Width,
		Depth: g.Depth,
		Tiles: game.NewTileGrid(),
	}
	m.Tiles.AddBlock(game.TileFloor, vec.Vec3{Y: -1}, vec.Vec3{X: g.Width, Z: g.Depth})

	for z, row := range terrain {
		// Соседние клетки одного типа в строке объединяются в один тайл
		for x := 0; x < len(row); {
			t := row[x]
			end := x + 1
			for end < len(row) && row[end] == t {
				end++
			}
			if typ, height, ok := tileFor(t); ok {
				m.Tiles.AddBlock(typ, vec.Vec3{X: x, Z: z}, vec.Vec3{X: end, Y: height, Z: z + 1})
			}
			x = end
		}
	}

	m.Spawns = g.pickSpawns(terrain)
	if len(m.Spawns) == 0 {
		return nil, fmt.Errorf("карта %s: нет свободных клеток", m.Name)
	}
	return m, nil
}

func tileFor(t Terrain) (game.TileID, int, bool) {
	switch t {
	case TerrainWall, TerrainRock:
		return game.TileWall, wallHeight, true
	case TerrainWater, TerrainRubble:
		return game.TileObject, rubbleHeight, true
	}
	return 0, 0, false
}

// pickSpawns выбирает свободные клетки, у которых свободны все соседи
func (g *Generator) pickSpawns(terrain [][]Terrain) []vec.Vec3 {
	var free []vec.Vec3
	for z := 1; z < g.Depth-1; z++ {
		for x := 1; x < g.Width-1; x++ {
			if isOpen(terrain, x, z) {
				free = append(free, vec.Vec3{X: x, Z: z})
			}
		}
	}
	rng := rand.New(rand.NewSource(g.Seed + 42))
	rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
	if len(free) > g.Spawns {
		free = free[:g.Spawns]
	}
	return free
}

func isOpen(terrain [][]Terrain, x, z int) bool {
	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			if terrain[z+dz][x+dx] != TerrainFloor {
				return false
			}
		}
	}
	return true
}

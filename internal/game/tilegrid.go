package game

import (
	"math"
	"sort"

	"github.com/annel0/iso-game/internal/physics"
	"github.com/annel0/iso-game/internal/vec"
)

// tileBucketSize размер ячейки пространственного индекса тайлов (в клетках)
const tileBucketSize = 8

// Tile статический объект карты
type Tile struct {
	Type      TileID
	Box       physics.Box
	Occluding bool
}

// Flags флаги тайла для пространственных запросов
func (t Tile) Flags() Flags {
	f := tileIDToFlag(t.Type) | FlagVisible
	if t.Type != TileUnknown {
		f |= FlagColliding
	}
	if t.Occluding {
		f |= FlagOccluding
	}
	return f
}

// TileGrid набор тайлов с индексом по ячейкам плоскости XZ
type TileGrid struct {
	tiles   []Tile
	buckets map[vec.Vec2][]int
}

// NewTileGrid создаёт пустую сетку тайлов
func NewTileGrid() *TileGrid {
	return &TileGrid{buckets: make(map[vec.Vec2][]int)}
}

// Add добавляет тайл и возвращает его индекс
func (g *TileGrid) Add(t Tile) int {
	id := len(g.tiles)
	g.tiles = append(g.tiles, t)
	g.forBuckets(t.Box, func(key vec.Vec2) {
		g.buckets[key] = append(g.buckets[key], id)
	})
	return id
}

// AddBlock добавляет тайл с целочисленными углами
func (g *TileGrid) AddBlock(typ TileID, min, max vec.Vec3) int {
	return g.Add(Tile{Type: typ, Box: physics.IntBox(min, max), Occluding: typ == TileWall})
}

func (g *TileGrid) Len() int          { return len(g.tiles) }
func (g *TileGrid) Tile(id int) Tile  { return g.tiles[id] }
func (g *TileGrid) Tiles() []Tile     { return g.tiles }

func bucketCoord(v float32) int {
	return int(math.Floor(float64(v) / tileBucketSize))
}

func (g *TileGrid) forBuckets(box physics.Box, fn func(vec.Vec2)) {
	x0, x1 := bucketCoord(box.Min[0]), bucketCoord(box.Max[0])
	z0, z1 := bucketCoord(box.Min[2]), bucketCoord(box.Max[2])
	for z := z0; z <= z1; z++ {
		for x := x0; x <= x1; x++ {
			fn(vec.Vec2{X: x, Y: z})
		}
	}
}

// candidates возвращает отсортированные индексы тайлов, которые могут пересекать коробку
func (g *TileGrid) candidates(box physics.Box) []int {
	seen := make(map[int]struct{})
	var out []int
	g.forBuckets(box, func(key vec.Vec2) {
		for _, id := range g.buckets[key] {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	})
	sort.Ints(out)
	return out
}

// FindAny возвращает первый (по индексу) тайл, пересекающий коробку, или -1
func (g *TileGrid) FindAny(box physics.Box, flags Flags) int {
	if g == nil || flags&FlagTile == 0 {
		return -1
	}
	for _, id := range g.candidates(box) {
		t := g.tiles[id]
		if t.Flags().Test(flags) && physics.Overlaps(box, t.Box) {
			return id
		}
	}
	return -1
}

// Trace возвращает ближайший тайл на отрезке
func (g *TileGrid) Trace(seg physics.Segment, flags Flags) (int, float32) {
	best, dist := -1, float32(math.Inf(1))
	if g == nil || flags&FlagTile == 0 {
		return best, dist
	}
	end := seg.At(seg.Max)
	bounds := physics.Box{Min: seg.At(seg.Min), Max: end}
	for i := 0; i < 3; i++ {
		if bounds.Min[i] > bounds.Max[i] {
			bounds.Min[i], bounds.Max[i] = bounds.Max[i], bounds.Min[i]
		}
	}
	for _, id := range g.candidates(bounds) {
		t := g.tiles[id]
		if !t.Flags().Test(flags) {
			continue
		}
		if d := physics.IntersectSegment(seg, t.Box); d < dist {
			best, dist = id, d
		}
	}
	return best, dist
}

// Bounds возвращает коробку, охватывающую все тайлы
func (g *TileGrid) Bounds() physics.Box {
	if len(g.tiles) == 0 {
		return physics.Box{}
	}
	out := g.tiles[0].Box
	for _, t := range g.tiles[1:] {
		for i := 0; i < 3; i++ {
			out.Min[i] = min(out.Min[i], t.Box.Min[i])
			out.Max[i] = max(out.Max[i], t.Box.Max[i])
		}
	}
	return out
}

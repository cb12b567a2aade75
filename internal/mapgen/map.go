package mapgen

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/annel0/iso-game/internal/game"
	"github.com/annel0/iso-game/internal/physics"
	"github.com/annel0/iso-game/internal/vec"
)

// Map карта: тайлы, точки появления игроков и начальные сущности
type Map struct {
	Name   string
	Width  int
	Depth  int
	Tiles  *game.TileGrid
	Spawns []vec.Vec3
	Actors []ActorSpawn
	Items  []ItemSpawn
}

// SentrySpawn параметры охранника
type SentrySpawn struct {
	Range float32         `yaml:"range"`
	Mode  game.SentryMode `yaml:"mode"`
}

// ActorSpawn актёр, размещаемый на карте при старте
type ActorSpawn struct {
	Proto   string
	Pos     vec.Vec3
	Faction int
	Stance  game.Stance
	Sentry  *SentrySpawn
}

// ItemSpawn предмет, лежащий на земле при старте
type ItemSpawn struct {
	Item  string
	Count int
	Pos   vec.Vec3
}

type point [3]int

func (p point) vec() vec.Vec3 { return vec.Vec3{X: p[0], Y: p[1], Z: p[2]} }

type mapFile struct {
	Name  string `yaml:"name"`
	Size  [2]int `yaml:"size"`
	Tiles []struct {
		Type      game.TileID `yaml:"type"`
		Min       point       `yaml:"min"`
		Max       point       `yaml:"max"`
		Occluding *bool       `yaml:"occluding"`
	} `yaml:"tiles"`
	Spawns []point `yaml:"spawns"`
	Actors []struct {
		Proto   string       `yaml:"proto"`
		Pos     point        `yaml:"pos"`
		Faction int          `yaml:"faction"`
		Stance  *game.Stance `yaml:"stance"`
		Sentry  *SentrySpawn `yaml:"sentry"`
	} `yaml:"actors"`
	Items []struct {
		Item  string `yaml:"item"`
		Count int    `yaml:"count"`
		Pos   point  `yaml:"pos"`
	} `yaml:"items"`
}

// Load загружает карту из YAML-файла
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение карты %s: %w", path, err)
	}
	return Parse(data)
}

// Parse разбирает карту из YAML
func Parse(data []byte) (*Map, error) {
	var f mapFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("разбор карты: %w", err)
	}
	if f.Name == "" {
		return nil, fmt.Errorf("карта без имени")
	}

	m := &Map{Name: f.Name, Width: f.Size[0], Depth: f.Size[1], Tiles: game.NewTileGrid()}
	if m.Width > 0 && m.Depth > 0 {
		m.Tiles.AddBlock(game.TileFloor, vec.Vec3{Y: -1}, vec.Vec3{X: m.Width, Z: m.Depth})
	}
	for i, tf := range f.Tiles {
		lo, hi := tf.Min.vec(), tf.Max.vec()
		if hi.X <= lo.X || hi.Y <= lo.Y || hi.Z <= lo.Z {
			return nil, fmt.Errorf("карта %s: тайл %d: пустая коробка %v-%v", f.Name, i, lo, hi)
		}
		occluding := tf.Type == game.TileWall
		if tf.Occluding != nil {
			occluding = *tf.Occluding
		}
		m.Tiles.Add(game.Tile{Type: tf.Type, Box: physics.IntBox(lo, hi), Occluding: occluding})
	}
	for _, p := range f.Spawns {
		m.Spawns = append(m.Spawns, p.vec())
	}
	for i, af := range f.Actors {
		if af.Proto == "" {
			return nil, fmt.Errorf("карта %s: актёр %d без прототипа", f.Name, i)
		}
		stance := game.StanceStand
		if af.Stance != nil {
			stance = *af.Stance
		}
		m.Actors = append(m.Actors, ActorSpawn{
			Proto: af.Proto, Pos: af.Pos.vec(), Faction: af.Faction, Stance: stance, Sentry: af.Sentry,
		})
	}
	for i, it := range f.Items {
		if it.Item == "" {
			return nil, fmt.Errorf("карта %s: предмет %d без прототипа", f.Name, i)
		}
		if it.Count <= 0 {
			it.Count = 1
		}
		m.Items = append(m.Items, ItemSpawn{Item: it.Item, Count: it.Count, Pos: it.Pos.vec()})
	}
	return m, nil
}

// Navigator строит навигатор для актёров высотой height
func (m *Map) Navigator(height int) game.Navigator {
	if m.Tiles.Len() == 0 {
		return game.StraightNavigator{}
	}
	return game.NewGridNavigator(m.Tiles, 0, height)
}

// Populate размещает актёров и предметы карты в мире
func (m *Map) Populate(w *game.World) ([]game.EntityRef, error) {
	reg := w.Assets()
	var refs []game.EntityRef
	for _, as := range m.Actors {
		proto := reg.Actor(as.Proto)
		if proto == nil {
			return refs, fmt.Errorf("карта %s: неизвестный актёр %q", m.Name, as.Proto)
		}
		a := game.NewActor(proto, as.Stance)
		a.SetPos(as.Pos.Float())
		if as.Sentry != nil {
			a.SetAI(game.NewSentryAI(as.Sentry.Range, as.Sentry.Mode))
		}
		ref := w.AddEntity(a)
		a.SetFaction(as.Faction)
		refs = append(refs, ref)
	}
	for _, is := range m.Items {
		item := reg.Item(is.Item)
		if item == nil {
			return refs, fmt.Errorf("карта %s: неизвестный предмет %q", m.Name, is.Item)
		}
		refs = append(refs, w.AddEntity(game.NewItemEntity(item, is.Count, is.Pos.Float())))
	}
	return refs, nil
}

package game

import (
	"math/rand"

	"github.com/annel0/iso-game/internal/logging"
)

// Mode режим работы мира
type Mode uint8

const (
	ModeSingle Mode = iota // Одиночная игра: мир авторитетен и рисуется локально
	ModeServer             // Авторитетный сервер
	ModeClient             // Реплика на клиенте: приказы и урон приходят с сервера
)

// AnimFrameTime длительность кадра анимации
const AnimFrameTime = 1.0 / 15.0

// Hooks обработчики игровых событий мира
type Hooks struct {
	ActorDied   func(a *Actor, death DeathID)
	OrderIssued func(a *Actor, o *Order, force bool)
	Sound       func(ref EntityRef, ev FrameEventKind)
}

// WorldConfig параметры создания мира
type WorldConfig struct {
	Mode      Mode
	MapName   string
	Assets    *Registry
	Tiles     *TileGrid
	Navigator Navigator
	Seed      int64
	Hooks     Hooks
}

type entitySlot struct {
	entity  Entity
	gen     uint32
	dirty   bool
	removed bool
}

// World таблица сущностей, тайлы и шаг симуляции
type World struct {
	mode    Mode
	mapName string
	assets  *Registry
	tiles   *TileGrid
	nav     Navigator
	rand    *rand.Rand
	hooks   Hooks
	log     *logging.Logger

	slots   []entitySlot
	free    []int
	removes []EntityRef
	updates []int

	frame     int
	time      float64
	timeDelta float32
	animTime  float64
}

// NewWorld создаёт мир
func NewWorld(cfg WorldConfig) *World {
	if cfg.Assets == nil {
		cfg.Assets = BuiltinRegistry()
	}
	if cfg.Tiles == nil {
		cfg.Tiles = NewTileGrid()
	}
	if cfg.Navigator == nil {
		cfg.Navigator = StraightNavigator{}
	}
	return &World{
		mode:    cfg.Mode,
		mapName: cfg.MapName,
		assets:  cfg.Assets,
		tiles:   cfg.Tiles,
		nav:     cfg.Navigator,
		rand:    rand.New(rand.NewSource(cfg.Seed)),
		hooks:   cfg.Hooks,
		log:     logging.GetGameLogger(),
	}
}

func (w *World) Mode() Mode            { return w.mode }
func (w *World) IsClient() bool        { return w.mode == ModeClient }
func (w *World) IsServer() bool        { return w.mode == ModeServer }
func (w *World) MapName() string       { return w.mapName }
func (w *World) Assets() *Registry     { return w.assets }
func (w *World) Tiles() *TileGrid      { return w.tiles }
func (w *World) Navigator() Navigator  { return w.nav }
func (w *World) Frame() int            { return w.frame }
func (w *World) Time() float64         { return w.time }
func (w *World) TimeDelta() float32    { return w.timeDelta }
func (w *World) SetHooks(h Hooks)      { w.hooks = h }
func (w *World) SetNavigator(n Navigator) { w.nav = n }

// Rand возвращает равномерное случайное число из [0, 1)
func (w *World) Rand() float32 { return w.rand.Float32() }

// SetRand заменяет генератор случайных чисел (для детерминированных тестов)
func (w *World) SetRand(r *rand.Rand) { w.rand = r }

// AddEntity добавляет сущность в свободный слот
func (w *World) AddEntity(e Entity) EntityRef {
	var index int
	if n := len(w.free); n > 0 {
		index = w.free[n-1]
		w.free = w.free[:n-1]
	} else {
		index = len(w.slots)
		w.slots = append(w.slots, entitySlot{})
	}

	slot := &w.slots[index]
	slot.gen++
	if slot.gen == 0 {
		slot.gen = 1
	}
	slot.entity = e
	slot.removed = false

	ref := EntityRef{index: int32(index), gen: slot.gen}
	w.attach(e, ref)
	return ref
}

// spawn добавляет сущность, порождённую симуляцией. Клиент получает такие сущности от сервера.
func (w *World) spawn(e Entity) EntityRef {
	if w.IsClient() {
		return EntityRef{}
	}
	return w.AddEntity(e)
}

func (w *World) attach(e Entity, ref EntityRef) {
	b := e.Base()
	b.world = w
	b.ref = ref
	w.replicate(ref)
}

// ReplaceEntity ставит сущность в слот с заданным поколением (применение снимков на клиенте)
func (w *World) ReplaceEntity(ref EntityRef, e Entity) {
	index := ref.Index()
	for len(w.slots) <= index {
		w.slots = append(w.slots, entitySlot{})
	}
	w.dropFree(index)
	slot := &w.slots[index]
	if slot.entity != nil {
		slot.entity.Base().world = nil
	}
	slot.entity = e
	slot.gen = ref.gen
	slot.removed = false
	w.attach(e, ref)
}

// DeleteEntity немедленно освобождает слот (применение удалений на клиенте)
func (w *World) DeleteEntity(index int) {
	if index < 0 || index >= len(w.slots) || w.slots[index].entity == nil {
		return
	}
	w.release(index)
}

func (w *World) dropFree(index int) {
	for i, f := range w.free {
		if f == index {
			w.free = append(w.free[:i], w.free[i+1:]...)
			return
		}
	}
}

func (w *World) release(index int) {
	slot := &w.slots[index]
	slot.entity.Base().world = nil
	slot.entity = nil
	slot.removed = false
	w.free = append(w.free, index)
	w.markDirty(index)
}

// RemoveEntity откладывает удаление сущности до конца такта
func (w *World) RemoveEntity(ref EntityRef) {
	if w.Entity(ref) == nil {
		return
	}
	slot := &w.slots[ref.Index()]
	if slot.removed {
		return
	}
	slot.removed = true
	w.removes = append(w.removes, ref)
}

func (w *World) flushRemoves() {
	for _, ref := range w.removes {
		slot := &w.slots[ref.Index()]
		if slot.gen == ref.gen && slot.entity != nil {
			w.release(ref.Index())
		}
	}
	w.removes = w.removes[:0]
}

// Entity разрешает ссылку. Устаревшая ссылка возвращает nil.
func (w *World) Entity(ref EntityRef) Entity {
	if !ref.IsValid() || ref.Index() >= len(w.slots) {
		return nil
	}
	slot := &w.slots[ref.Index()]
	if slot.gen != ref.gen {
		return nil
	}
	return slot.entity
}

// Actor разрешает ссылку на актёра
func (w *World) Actor(ref EntityRef) *Actor {
	a, _ := w.Entity(ref).(*Actor)
	return a
}

// EntityAt возвращает сущность в слоте и её ссылку
func (w *World) EntityAt(index int) (Entity, EntityRef) {
	if index < 0 || index >= len(w.slots) || w.slots[index].entity == nil {
		return nil, EntityRef{}
	}
	slot := &w.slots[index]
	return slot.entity, EntityRef{index: int32(index), gen: slot.gen}
}

// NumSlots размер таблицы сущностей
func (w *World) NumSlots() int { return len(w.slots) }

// Entities возвращает ссылки на все живые сущности в порядке индексов
func (w *World) Entities() []EntityRef {
	var out []EntityRef
	for i := range w.slots {
		if w.slots[i].entity != nil {
			out = append(out, EntityRef{index: int32(i), gen: w.slots[i].gen})
		}
	}
	return out
}

func (w *World) replicate(ref EntityRef) {
	if ref.IsValid() && ref.Index() < len(w.slots) {
		w.markDirty(ref.Index())
	}
}

func (w *World) markDirty(index int) {
	if w.slots[index].dirty {
		return
	}
	w.slots[index].dirty = true
	w.updates = append(w.updates, index)
}

// TakeUpdates забирает список изменённых за такт слотов.
// Слот без сущности означает, что сущность удалена.
func (w *World) TakeUpdates() []int {
	out := w.updates
	for _, idx := range out {
		w.slots[idx].dirty = false
	}
	w.updates = nil
	return out
}

// Simulate продвигает мир на dt секунд
func (w *World) Simulate(dt float32) {
	w.timeDelta = dt
	w.time += float64(dt)

	// Сущности, созданные во время такта, думают начиная со следующего
	count := len(w.slots)
	for i := 0; i < count; i++ {
		slot := &w.slots[i]
		if slot.entity != nil && !slot.removed {
			slot.entity.think()
		}
	}

	w.animTime += float64(dt)
	for w.animTime >= AnimFrameTime {
		w.animTime -= AnimFrameTime
		count = len(w.slots)
		for i := 0; i < count; i++ {
			slot := &w.slots[i]
			if slot.entity != nil && !slot.removed {
				slot.entity.nextFrame()
			}
		}
	}

	w.flushRemoves()
	w.frame++
}

func (w *World) actorDied(a *Actor, death DeathID) {
	w.log.Debug("💀 %s погиб (%s)", a.Ref(), death)
	if w.hooks.ActorDied != nil {
		w.hooks.ActorDied(a, death)
	}
}

func (w *World) orderIssued(a *Actor, o *Order, force bool) {
	if w.hooks.OrderIssued != nil {
		w.hooks.OrderIssued(a, o, force)
	}
}

func (w *World) playSound(ref EntityRef, ev FrameEventKind) {
	if w.hooks.Sound != nil {
		w.hooks.Sound(ref, ev)
	}
}

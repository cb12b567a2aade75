package game

import (
	"github.com/annel0/iso-game/internal/physics"
)

// Пространственные запросы мира. Тайлы проверяются раньше сущностей,
// сущности в порядке индексов, поэтому результат детерминирован.

// FindAny возвращает первый объект, пересекающий коробку и подходящий под флаги
func (w *World) FindAny(box physics.Box, flags Flags, ignore EntityRef) ObjectRef {
	if id := w.tiles.FindAny(box, flags); id != -1 {
		return tileRef(id)
	}
	if flags&FlagEntity == 0 {
		return ObjectRef{}
	}
	for i := range w.slots {
		slot := &w.slots[i]
		if slot.entity == nil || slot.removed || (ignore.IsValid() && ignore.Index() == i) {
			continue
		}
		if slot.entity.Flags().Test(flags) && physics.Overlaps(box, slot.entity.BoundingBox()) {
			return entityObjectRef(EntityRef{index: int32(i), gen: slot.gen})
		}
	}
	return ObjectRef{}
}

// FindAll возвращает все сущности, пересекающие коробку
func (w *World) FindAll(box physics.Box, flags Flags, ignore EntityRef) []EntityRef {
	var out []EntityRef
	for i := range w.slots {
		slot := &w.slots[i]
		if slot.entity == nil || slot.removed || (ignore.IsValid() && ignore.Index() == i) {
			continue
		}
		if slot.entity.Flags().Test(flags) && physics.Overlaps(box, slot.entity.BoundingBox()) {
			out = append(out, EntityRef{index: int32(i), gen: slot.gen})
		}
	}
	return out
}

// Trace возвращает ближайшее пересечение отрезка с объектами мира
func (w *World) Trace(seg physics.Segment, flags Flags, ignore EntityRef) Intersection {
	out := noIntersection()
	if id, dist := w.tiles.Trace(seg, flags); id != -1 {
		out = Intersection{Ref: tileRef(id), Distance: dist}
	}
	if flags&FlagEntity == 0 {
		return out
	}
	for i := range w.slots {
		slot := &w.slots[i]
		if slot.entity == nil || slot.removed || (ignore.IsValid() && ignore.Index() == i) {
			continue
		}
		if !slot.entity.Flags().Test(flags) {
			continue
		}
		if d := physics.IntersectSegment(seg, slot.entity.BoundingBox()); d < out.Distance {
			out = Intersection{Ref: entityObjectRef(EntityRef{index: int32(i), gen: slot.gen}), Distance: d}
		}
	}
	return out
}

// IsColliding проверяет, пересекает ли коробка что-либо твёрдое кроме самого актёра
func (w *World) IsColliding(box physics.Box, actor EntityRef, flags Flags) bool {
	return w.FindAny(box, flags|FlagColliding, actor).IsValid()
}

// RefBBox возвращает коробку объекта
func (w *World) RefBBox(ref ObjectRef) physics.Box {
	switch ref.Kind {
	case ObjectTile:
		return w.tiles.Tile(ref.Index).Box
	case ObjectEntity:
		if e := w.Entity(ref.Entity()); e != nil {
			return e.BoundingBox()
		}
	}
	return physics.Box{}
}

// RefEntity разрешает ссылку на объект в сущность
func (w *World) RefEntity(ref ObjectRef) Entity {
	if !ref.IsEntity() {
		return nil
	}
	return w.Entity(ref.Entity())
}

// IsVisible проверяет прямую видимость между точками (непрозрачные тайлы загораживают)
func (w *World) IsVisible(from, to physics.Box) bool {
	seg := physics.NewSegment(from.Center(), to.Center())
	isect := w.Trace(seg, FlagTile|FlagOccluding, EntityRef{})
	return isect.IsEmpty() || isect.Distance >= seg.Max
}

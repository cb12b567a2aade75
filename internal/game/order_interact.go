package game

import "github.com/annel0/iso-game/internal/vec"

func (a *Actor) handleInteract(o *Order, d *InteractOrder, ev actorEvent) {
	switch ev {
	case evInitOrder:
		target := a.world.Entity(d.Target)
		if target == nil || d.Target == a.ref {
			o.finish()
			return
		}
		if !AreAdjacent(a, target) {
			if d.Approached {
				o.finish()
				return
			}
			// Подходим к цели и повторяем попытку
			approach := NewMoveOrder(vec.Round(target.Base().Pos()), false)
			o.finishWith(approach.WithFollowup(newOrder(&InteractOrder{Target: d.Target, Approached: true})))
			return
		}

		a.lookAt(target.BoundingBox().Center(), true)
		if _, isItem := target.(*ItemEntity); isItem && a.animate(ActionPickup) {
			return
		}
		a.interact(d)
		o.finish()

	case evPickup:
		a.interact(d)

	case evAnimFinished:
		a.interact(d)
		o.finish()
	}
}

// interact выполняет взаимодействие один раз. На клиенте инвентарь
// меняют только снимки сервера.
func (a *Actor) interact(d *InteractOrder) {
	if d.Done || a.IsClient() {
		return
	}
	d.Done = true

	item, ok := a.world.Entity(d.Target).(*ItemEntity)
	if !ok {
		return
	}
	a.inventory.Add(item.item, item.count)
	item.Remove()
	a.replicate()
}

func (a *Actor) handleDropItem(o *Order, d *DropItemOrder, ev actorEvent) {
	if ev != evInitOrder {
		return
	}
	defer o.finish()
	if a.IsClient() {
		return
	}

	if d.Index < 0 || d.Index >= a.inventory.Len() {
		return
	}
	entry := a.inventory.Entry(d.Index)
	count := d.Count
	if count <= 0 || count > entry.Count {
		count = entry.Count
	}
	if !a.inventory.Remove(d.Index, count) {
		return
	}
	a.world.spawn(NewItemEntity(entry.Item, count, vec.Round(a.pos).Float()))
	a.replicate()
}

func (a *Actor) handleEquipItem(o *Order, d *EquipItemOrder, ev actorEvent) {
	if ev != evInitOrder {
		return
	}
	defer o.finish()
	if a.IsClient() {
		return
	}

	if !a.canEquip(d.Index) {
		return
	}
	slot, ok := a.inventory.Equip(d.Index)
	if !ok {
		return
	}
	if slot == SlotArmour {
		a.updateArmour()
	}
	a.replicate()
}

func (a *Actor) handleUnequipItem(o *Order, d *UnequipItemOrder, ev actorEvent) {
	if ev != evInitOrder {
		return
	}
	defer o.finish()
	if a.IsClient() {
		return
	}

	if !a.inventory.Unequip(d.Slot) {
		return
	}
	if d.Slot == SlotArmour {
		a.updateArmour()
	}
	a.replicate()
}

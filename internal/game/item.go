package game

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/iso-game/internal/protocol"
)

// InventorySlot слот экипировки
type InventorySlot uint8

const (
	SlotWeapon InventorySlot = iota
	SlotArmour
)

// InventoryEntry стопка одинаковых предметов
type InventoryEntry struct {
	Item  *ItemProto
	Count int
}

// Inventory предметы актёра и экипированные оружие и броня
type Inventory struct {
	entries []InventoryEntry
	weapon  *ItemProto
	armour  *ItemProto
}

func (inv *Inventory) Len() int                    { return len(inv.entries) }
func (inv *Inventory) Entry(i int) InventoryEntry  { return inv.entries[i] }
func (inv *Inventory) Weapon() *ItemProto          { return inv.weapon }
func (inv *Inventory) Armour() *ItemProto          { return inv.armour }

// Find возвращает индекс стопки предмета или -1
func (inv *Inventory) Find(item *ItemProto) int {
	for i, e := range inv.entries {
		if e.Item == item {
			return i
		}
	}
	return -1
}

// Add добавляет предметы, объединяя их со стопкой того же типа
func (inv *Inventory) Add(item *ItemProto, count int) int {
	if item == nil || count <= 0 {
		return -1
	}
	if i := inv.Find(item); i != -1 {
		inv.entries[i].Count += count
		return i
	}
	inv.entries = append(inv.entries, InventoryEntry{Item: item, Count: count})
	return len(inv.entries) - 1
}

// Remove убирает count предметов из стопки
func (inv *Inventory) Remove(index, count int) bool {
	if index < 0 || index >= len(inv.entries) || count <= 0 || inv.entries[index].Count < count {
		return false
	}
	inv.entries[index].Count -= count
	if inv.entries[index].Count == 0 {
		inv.entries = append(inv.entries[:index], inv.entries[index+1:]...)
	}
	return true
}

// Equip экипирует предмет из стопки. Ранее экипированный предмет возвращается в инвентарь.
func (inv *Inventory) Equip(index int) (InventorySlot, bool) {
	if index < 0 || index >= len(inv.entries) {
		return 0, false
	}
	item := inv.entries[index].Item
	var slot InventorySlot
	switch item.Type {
	case ItemWeapon:
		slot = SlotWeapon
	case ItemArmour:
		slot = SlotArmour
	default:
		return 0, false
	}
	inv.Remove(index, 1)
	inv.Unequip(slot)
	if slot == SlotWeapon {
		inv.weapon = item
	} else {
		inv.armour = item
	}
	return slot, true
}

// Unequip снимает предмет из слота в инвентарь
func (inv *Inventory) Unequip(slot InventorySlot) bool {
	var item *ItemProto
	switch slot {
	case SlotWeapon:
		item, inv.weapon = inv.weapon, nil
	case SlotArmour:
		item, inv.armour = inv.armour, nil
	}
	if item == nil {
		return false
	}
	inv.Add(item, 1)
	return true
}

// WeaponProto возвращает прототип экипированного оружия или fallback
func (inv *Inventory) WeaponProto(fallback *WeaponProto) *WeaponProto {
	if inv.weapon != nil && inv.weapon.Weapon != nil {
		return inv.weapon.Weapon
	}
	return fallback
}

// Weight суммарный вес предметов
func (inv *Inventory) Weight() float32 {
	var w float32
	for _, e := range inv.entries {
		w += e.Item.Weight * float32(e.Count)
	}
	if inv.weapon != nil {
		w += inv.weapon.Weight
	}
	if inv.armour != nil {
		w += inv.armour.Weight
	}
	return w
}

var errBadItem = errors.New("invalid item index")

func writeItem(w *protocol.Writer, item *ItemProto) {
	if item == nil {
		w.Uvarint(0)
		return
	}
	w.Uvarint(uint64(item.Index) + 1)
}

func readItem(r *protocol.Reader, reg *Registry) *ItemProto {
	idx := r.Uvarint()
	if idx == 0 || r.Err() != nil {
		return nil
	}
	item := reg.ItemAt(int(idx - 1))
	if item == nil {
		r.Fail(errBadItem)
	}
	return item
}

func (inv *Inventory) encode(w *protocol.Writer) {
	w.Uvarint(uint64(len(inv.entries)))
	for _, e := range inv.entries {
		writeItem(w, e.Item)
		w.Uvarint(uint64(e.Count))
	}
	writeItem(w, inv.weapon)
	writeItem(w, inv.armour)
}

func (inv *Inventory) decode(r *protocol.Reader, reg *Registry) {
	count := r.Uvarint()
	if count > uint64(r.Remaining()) {
		r.Fail(protocol.ErrShortBuffer)
		return
	}
	inv.entries = inv.entries[:0]
	for i := uint64(0); i < count && r.Err() == nil; i++ {
		item := readItem(r, reg)
		n := int(r.Uvarint())
		if item == nil || n <= 0 {
			r.Fail(errBadItem)
			return
		}
		inv.entries = append(inv.entries, InventoryEntry{Item: item, Count: n})
	}
	inv.weapon = readItem(r, reg)
	inv.armour = readItem(r, reg)
}

// ItemEntity предмет, лежащий на земле
type ItemEntity struct {
	EntityBase
	item  *ItemProto
	count int
}

// NewItemEntity создаёт предмет на земле
func NewItemEntity(item *ItemProto, count int, pos mgl32.Vec3) *ItemEntity {
	e := &ItemEntity{item: item, count: count}
	e.init(e, item.Sprite)
	e.pos = pos
	return e
}

func (e *ItemEntity) Item() *ItemProto { return e.item }
func (e *ItemEntity) Count() int       { return e.count }
func (e *ItemEntity) Type() EntityID   { return EntityItem }
func (e *ItemEntity) Flags() Flags     { return FlagItem | FlagStaticEntity | FlagVisible }
func (e *ItemEntity) protoIndex() int  { return e.item.Index }

func (e *ItemEntity) encode(w *protocol.Writer) {
	e.encodeBase(w)
	w.Uvarint(uint64(e.count))
}

func (e *ItemEntity) decode(r *protocol.Reader, reg *Registry) {
	e.decodeBase(r)
	e.count = int(r.Uvarint())
}

package game

import (
	"errors"
	"fmt"

	"github.com/annel0/iso-game/internal/protocol"
)

// ErrOrderNotRequestable приказ этого вида выдаёт только сервер (смерть, реакция на попадание)
var ErrOrderNotRequestable = errors.New("order kind is not requestable")

// EncodeOrderRequest пишет только параметры выдачи приказа, без состояния
// выполнения и продолжений. Так клиент просит сервер выдать приказ.
func EncodeOrderRequest(w *protocol.Writer, o *Order) {
	w.U8(uint8(o.Kind()))
	switch d := o.Data.(type) {
	case *MoveOrder:
		writeVec3(w, d.Target)
		w.Bool(d.Run)
	case *AttackOrder:
		w.I8(int8(d.Mode))
		writeRef(w, d.Target)
		writeVec3(w, d.TargetPos)
	case *ChangeStanceOrder:
		w.U8(uint8(d.Target))
	case *InteractOrder:
		writeRef(w, d.Target)
	case *DropItemOrder:
		w.Uvarint(uint64(d.Index))
		w.Uvarint(uint64(d.Count))
	case *EquipItemOrder:
		w.Uvarint(uint64(d.Index))
	case *UnequipItemOrder:
		w.U8(uint8(d.Slot))
	case *LookAtOrder:
		writeVec3(w, d.Target)
	}
}

// DecodeOrderRequest создаёт новый приказ по параметрам из EncodeOrderRequest
func DecodeOrderRequest(r *protocol.Reader) (*Order, error) {
	kind := OrderKind(r.U8())
	if r.Err() != nil {
		return nil, r.Err()
	}

	var o *Order
	switch kind {
	case OrderIdle:
		o = NewIdleOrder()
	case OrderMove:
		target := readVec3(r)
		o = NewMoveOrder(target, r.Bool())
	case OrderAttack:
		mode := AttackMode(r.I8())
		target := readRef(r)
		pos := readVec3(r)
		if mode < AttackUndefined || mode >= attackModeCount {
			r.Fail(errBadOrder)
		}
		o = newOrder(&AttackOrder{Mode: mode, Target: target, TargetPos: pos})
	case OrderChangeStance:
		stance := Stance(r.U8())
		if stance >= stanceCount {
			r.Fail(errBadOrder)
		}
		o = NewChangeStanceOrder(stance)
	case OrderInteract:
		o = NewInteractOrder(readRef(r))
	case OrderDropItem:
		index := r.Uvarint()
		count := r.Uvarint()
		if index > maxInventoryIndex || count > maxInventoryIndex {
			r.Fail(errBadOrder)
		}
		o = NewDropItemOrder(int(index), int(count))
	case OrderEquipItem:
		index := r.Uvarint()
		if index > maxInventoryIndex {
			r.Fail(errBadOrder)
		}
		o = NewEquipItemOrder(int(index))
	case OrderUnequipItem:
		slot := InventorySlot(r.U8())
		if slot > SlotArmour {
			r.Fail(errBadOrder)
		}
		o = NewUnequipItemOrder(slot)
	case OrderLookAt:
		o = NewLookAtOrder(readVec3(r))
	case OrderDie, OrderGetHit:
		return nil, fmt.Errorf("%w: %s", ErrOrderNotRequestable, kind)
	default:
		return nil, fmt.Errorf("%w: kind %d", errBadOrder, kind)
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	return o, nil
}

// maxInventoryIndex граница индексов и количеств в запросах клиента
const maxInventoryIndex = 1 << 20

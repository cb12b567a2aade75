package game

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/iso-game/internal/protocol"
	"github.com/annel0/iso-game/internal/vec"
)

// OrderKind тип приказа
type OrderKind uint8

const (
	OrderIdle OrderKind = iota
	OrderMove
	OrderAttack
	OrderChangeStance
	OrderDie
	OrderGetHit
	OrderInteract
	OrderDropItem
	OrderEquipItem
	OrderUnequipItem
	OrderLookAt
	orderKindCount
)

var orderKindNames = enumNames{
	"idle", "move", "attack", "change_stance", "die", "get_hit",
	"interact", "drop_item", "equip_item", "unequip_item", "look_at",
}

func (k OrderKind) String() string { return orderKindNames.name(int(k)) }

// OrderData состояние конкретного вида приказа
type OrderData interface {
	Kind() OrderKind
	encode(w *protocol.Writer)
	decode(r *protocol.Reader)
}

// Order приказ актёру. Завершённый приказ заменяется и больше не используется.
type Order struct {
	Data      OrderData
	finished  bool
	cancelled bool
	followup  *Order
}

func newOrder(data OrderData) *Order { return &Order{Data: data} }

func (o *Order) Kind() OrderKind    { return o.Data.Kind() }
func (o *Order) IsFinished() bool   { return o.finished }
func (o *Order) IsCancelled() bool  { return o.cancelled }
func (o *Order) Followup() *Order   { return o.followup }

func (o *Order) String() string {
	return fmt.Sprintf("%s(finished:%v cancelled:%v)", o.Kind(), o.finished, o.cancelled)
}

func (o *Order) finish() { o.finished = true }

// finishWith завершает приказ и задаёт приказ-продолжение
func (o *Order) finishWith(next *Order) {
	o.finished = true
	o.followup = next
}

// WithFollowup задаёт приказ, который начнётся после естественного завершения этого
func (o *Order) WithFollowup(next *Order) *Order {
	o.followup = next
	return o
}

// Cancel прерывает приказ. Приказ оставляет актёра в согласованном состоянии
// и завершается при ближайшей возможности. Смерть не прерывается.
func (o *Order) Cancel() {
	switch d := o.Data.(type) {
	case *DieOrder:
		return
	case *IdleOrder, *LookAtOrder:
		o.finished = true
	case *MoveOrder:
		d.Path.truncate(d.PathPos)
	}
	o.cancelled = true
	o.followup = nil
}

// IdleOrder ожидание
type IdleOrder struct{}

func NewIdleOrder() *Order { return newOrder(&IdleOrder{}) }

func (*IdleOrder) Kind() OrderKind { return OrderIdle }

// MoveOrder движение к точке по пути
type MoveOrder struct {
	Target   vec.Vec3
	Run      bool
	Path     Path
	PathPos  PathPos
	Collided bool
}

func NewMoveOrder(target vec.Vec3, run bool) *Order {
	return newOrder(&MoveOrder{Target: target, Run: run})
}

func (*MoveOrder) Kind() OrderKind { return OrderMove }

// BurstRounds максимальное количество выстрелов в одной очереди
const BurstRounds = 15

// AttackOrder атака цели или точки
type AttackOrder struct {
	Mode      AttackMode
	Target    EntityRef
	TargetPos vec.Vec3
	Burst     int  // Выпущено снарядов в текущей очереди
	Firing    bool // Очередь идёт
	FireOff   vec.Vec3
}

// NewAttackOrder атака сущности. AttackUndefined выбирает первый режим оружия.
func NewAttackOrder(mode AttackMode, target EntityRef) *Order {
	return newOrder(&AttackOrder{Mode: mode, Target: target})
}

// NewAttackPosOrder атака точки
func NewAttackPosOrder(mode AttackMode, pos vec.Vec3) *Order {
	return newOrder(&AttackOrder{Mode: mode, TargetPos: pos})
}

func (*AttackOrder) Kind() OrderKind { return OrderAttack }

// ChangeStanceOrder смена стойки по одному шагу за анимацию
type ChangeStanceOrder struct {
	Target Stance
}

func NewChangeStanceOrder(target Stance) *Order {
	return newOrder(&ChangeStanceOrder{Target: target})
}

func (*ChangeStanceOrder) Kind() OrderKind { return OrderChangeStance }

// DieOrder смерть актёра. Dead выставляется после окончания анимации.
type DieOrder struct {
	Death DeathID
	Dead  bool
}

func NewDieOrder(death DeathID) *Order { return newOrder(&DieOrder{Death: death}) }

func (*DieOrder) Kind() OrderKind { return OrderDie }

// GetHitMode фаза реакции на попадание
type GetHitMode uint8

const (
	GetHitReact GetHitMode = iota
	GetHitFall
	GetHitFallen
	GetHitGetUp
)

// GetHitOrder реакция на попадание или падение
type GetHitOrder struct {
	Mode     GetHitMode
	Dodge    bool
	Back     bool
	Force    mgl32.Vec3
	FallTime float32
}

// NewGetHitOrder короткая реакция на попадание (или уклонение)
func NewGetHitOrder(dodge bool) *Order {
	return newOrder(&GetHitOrder{Mode: GetHitReact, Dodge: dodge})
}

// NewFallOrder падение от удара: актёр лежит fallTime секунд и встаёт
func NewFallOrder(force mgl32.Vec3, fallTime float32) *Order {
	return newOrder(&GetHitOrder{Mode: GetHitFall, Force: force, FallTime: fallTime})
}

func (*GetHitOrder) Kind() OrderKind { return OrderGetHit }

// IsFallen сообщает, что актёр падает или лежит
func (d *GetHitOrder) IsFallen() bool { return d.Mode == GetHitFall || d.Mode == GetHitFallen }

// InteractOrder взаимодействие с соседней сущностью (подбор предмета)
type InteractOrder struct {
	Target     EntityRef
	Approached bool
	Done       bool
}

func NewInteractOrder(target EntityRef) *Order {
	return newOrder(&InteractOrder{Target: target})
}

func (*InteractOrder) Kind() OrderKind { return OrderInteract }

// DropItemOrder выбросить стопку предметов из инвентаря
type DropItemOrder struct {
	Index int
	Count int
}

func NewDropItemOrder(index, count int) *Order {
	return newOrder(&DropItemOrder{Index: index, Count: count})
}

func (*DropItemOrder) Kind() OrderKind { return OrderDropItem }

// EquipItemOrder экипировать предмет из инвентаря
type EquipItemOrder struct {
	Index int
}

func NewEquipItemOrder(index int) *Order { return newOrder(&EquipItemOrder{Index: index}) }

func (*EquipItemOrder) Kind() OrderKind { return OrderEquipItem }

// UnequipItemOrder снять предмет в инвентарь
type UnequipItemOrder struct {
	Slot InventorySlot
}

func NewUnequipItemOrder(slot InventorySlot) *Order {
	return newOrder(&UnequipItemOrder{Slot: slot})
}

func (*UnequipItemOrder) Kind() OrderKind { return OrderUnequipItem }

// LookAtOrder повернуться к точке
type LookAtOrder struct {
	Target vec.Vec3
}

func NewLookAtOrder(target vec.Vec3) *Order { return newOrder(&LookAtOrder{Target: target}) }

func (*LookAtOrder) Kind() OrderKind { return OrderLookAt }

// Кодирование приказов

var (
	errBadOrder   = errors.New("invalid order")
	errDeepOrders = errors.New("order followup chain too deep")
)

const maxFollowupDepth = 8

const (
	orderFlagFinished  = 1
	orderFlagCancelled = 2
	orderFlagFollowup  = 4
)

// EncodeOrder пишет приказ вместе с цепочкой продолжений
func EncodeOrder(w *protocol.Writer, o *Order) {
	for depth := 0; o != nil; depth++ {
		var flags uint8
		if o.finished {
			flags |= orderFlagFinished
		}
		if o.cancelled {
			flags |= orderFlagCancelled
		}
		if o.followup != nil && depth+1 < maxFollowupDepth {
			flags |= orderFlagFollowup
		}
		w.U8(uint8(o.Kind()))
		w.U8(flags)
		o.Data.encode(w)
		if flags&orderFlagFollowup == 0 {
			return
		}
		o = o.followup
	}
}

// DecodeOrder читает приказ, записанный EncodeOrder
func DecodeOrder(r *protocol.Reader) (*Order, error) {
	var first, prev *Order
	for depth := 0; ; depth++ {
		if depth >= maxFollowupDepth {
			return nil, errDeepOrders
		}
		kind := OrderKind(r.U8())
		flags := r.U8()
		if r.Err() != nil {
			return nil, r.Err()
		}
		data := newOrderData(kind)
		if data == nil {
			return nil, fmt.Errorf("%w: kind %d", errBadOrder, kind)
		}
		data.decode(r)
		if r.Err() != nil {
			return nil, r.Err()
		}

		o := &Order{Data: data, finished: flags&orderFlagFinished != 0, cancelled: flags&orderFlagCancelled != 0}
		if first == nil {
			first = o
		} else {
			prev.followup = o
		}
		prev = o
		if flags&orderFlagFollowup == 0 {
			return first, nil
		}
	}
}

func newOrderData(kind OrderKind) OrderData {
	switch kind {
	case OrderIdle:
		return &IdleOrder{}
	case OrderMove:
		return &MoveOrder{}
	case OrderAttack:
		return &AttackOrder{}
	case OrderChangeStance:
		return &ChangeStanceOrder{}
	case OrderDie:
		return &DieOrder{}
	case OrderGetHit:
		return &GetHitOrder{}
	case OrderInteract:
		return &InteractOrder{}
	case OrderDropItem:
		return &DropItemOrder{}
	case OrderEquipItem:
		return &EquipItemOrder{}
	case OrderUnequipItem:
		return &UnequipItemOrder{}
	case OrderLookAt:
		return &LookAtOrder{}
	}
	return nil
}

func writeRef(w *protocol.Writer, ref EntityRef) {
	if !ref.IsValid() {
		w.Uvarint(0)
		return
	}
	w.Uvarint(uint64(ref.gen))
	w.Uvarint(uint64(ref.index))
}

func readRef(r *protocol.Reader) EntityRef {
	gen := r.Uvarint()
	if gen == 0 {
		return EntityRef{}
	}
	index := r.Uvarint()
	if gen > 0xffffffff || index > 0x7fffffff {
		r.Fail(errBadOrder)
		return EntityRef{}
	}
	return EntityRef{index: int32(index), gen: uint32(gen)}
}

func (*IdleOrder) encode(*protocol.Writer) {}
func (*IdleOrder) decode(*protocol.Reader) {}

func (d *MoveOrder) encode(w *protocol.Writer) {
	writeVec3(w, d.Target)
	w.Bool(d.Run)
	w.Bool(d.Collided)
	d.Path.encode(w)
	w.Uvarint(uint64(d.PathPos.Node))
	w.F32(d.PathPos.T)
}

func (d *MoveOrder) decode(r *protocol.Reader) {
	d.Target = readVec3(r)
	d.Run = r.Bool()
	d.Collided = r.Bool()
	d.Path = decodePath(r)
	d.PathPos.Node = int(r.Uvarint())
	d.PathPos.T = r.F32()
	if r.Err() == nil && (d.PathPos.Node < 0 || (d.Path.Len() > 0 && d.PathPos.Node >= d.Path.Len())) {
		r.Fail(errBadOrder)
	}
}

func (d *AttackOrder) encode(w *protocol.Writer) {
	w.I8(int8(d.Mode))
	writeRef(w, d.Target)
	writeVec3(w, d.TargetPos)
	w.Uvarint(uint64(d.Burst))
	w.Bool(d.Firing)
	writeVec3(w, d.FireOff)
}

func (d *AttackOrder) decode(r *protocol.Reader) {
	d.Mode = AttackMode(r.I8())
	d.Target = readRef(r)
	d.TargetPos = readVec3(r)
	d.Burst = int(r.Uvarint())
	d.Firing = r.Bool()
	d.FireOff = readVec3(r)
	if d.Mode < AttackUndefined || d.Mode >= attackModeCount {
		r.Fail(errBadOrder)
	}
}

func (d *ChangeStanceOrder) encode(w *protocol.Writer) { w.U8(uint8(d.Target)) }

func (d *ChangeStanceOrder) decode(r *protocol.Reader) {
	d.Target = Stance(r.U8())
	if d.Target >= stanceCount {
		r.Fail(errBadOrder)
	}
}

func (d *DieOrder) encode(w *protocol.Writer) {
	w.U8(uint8(d.Death))
	w.Bool(d.Dead)
}

func (d *DieOrder) decode(r *protocol.Reader) {
	d.Death = DeathID(r.U8())
	d.Dead = r.Bool()
	if d.Death >= deathCount {
		r.Fail(errBadOrder)
	}
}

func (d *GetHitOrder) encode(w *protocol.Writer) {
	w.U8(uint8(d.Mode))
	w.Bool(d.Dodge)
	w.Bool(d.Back)
	writeFloat3(w, d.Force)
	w.F32(d.FallTime)
}

func (d *GetHitOrder) decode(r *protocol.Reader) {
	d.Mode = GetHitMode(r.U8())
	d.Dodge = r.Bool()
	d.Back = r.Bool()
	d.Force = readFloat3(r)
	d.FallTime = r.F32()
	if d.Mode > GetHitGetUp {
		r.Fail(errBadOrder)
	}
}

func (d *InteractOrder) encode(w *protocol.Writer) {
	writeRef(w, d.Target)
	w.Bool(d.Approached)
	w.Bool(d.Done)
}

func (d *InteractOrder) decode(r *protocol.Reader) {
	d.Target = readRef(r)
	d.Approached = r.Bool()
	d.Done = r.Bool()
}

func (d *DropItemOrder) encode(w *protocol.Writer) {
	w.Uvarint(uint64(d.Index))
	w.Uvarint(uint64(d.Count))
}

func (d *DropItemOrder) decode(r *protocol.Reader) {
	d.Index = int(r.Uvarint())
	d.Count = int(r.Uvarint())
}

func (d *EquipItemOrder) encode(w *protocol.Writer) { w.Uvarint(uint64(d.Index)) }
func (d *EquipItemOrder) decode(r *protocol.Reader) { d.Index = int(r.Uvarint()) }

func (d *UnequipItemOrder) encode(w *protocol.Writer) { w.U8(uint8(d.Slot)) }

func (d *UnequipItemOrder) decode(r *protocol.Reader) {
	d.Slot = InventorySlot(r.U8())
	if d.Slot > SlotArmour {
		r.Fail(errBadOrder)
	}
}

func (d *LookAtOrder) encode(w *protocol.Writer) { writeVec3(w, d.Target) }
func (d *LookAtOrder) decode(r *protocol.Reader) { d.Target = readVec3(r) }

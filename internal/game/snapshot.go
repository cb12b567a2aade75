package game

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/iso-game/internal/protocol"
)

var (
	errBadAnimState = errors.New("invalid animation state")
	errBadEntity    = errors.New("invalid entity")
)

// maxFollowingOrders ограничение очереди приказов в снимке
const maxFollowingOrders = 16

const (
	actorFlagOrder       = 1
	actorFlagFollowing   = 2
	actorFlagTargetAngle = 4
)

// EncodeEntity пишет полный снимок сущности: тип, индекс прототипа и состояние
func EncodeEntity(w *protocol.Writer, e Entity) {
	w.U8(uint8(e.Type()))
	w.Uvarint(uint64(e.protoIndex()))
	e.encode(w)
}

// DecodeEntity читает снимок, записанный EncodeEntity. Сущность не привязана к миру.
func DecodeEntity(r *protocol.Reader, reg *Registry) (Entity, error) {
	typ := EntityID(r.U8())
	idx := r.Uvarint()
	if r.Err() != nil {
		return nil, r.Err()
	}
	if idx > 1<<20 {
		return nil, fmt.Errorf("%w: proto index %d", errBadEntity, idx)
	}

	var e Entity
	switch typ {
	case EntityActor:
		if p := reg.ActorAt(int(idx)); p != nil {
			e = NewActor(p, StanceStand)
		}
	case EntityProjectile:
		if p := reg.ProjectileAt(int(idx)); p != nil {
			e = NewProjectile(p, mgl32.Vec3{}, 0, mgl32.Vec3{1, 0, 0}, EntityRef{})
		}
	case EntityImpact:
		if p := reg.ImpactAt(int(idx)); p != nil {
			e = NewImpact(p, mgl32.Vec3{})
		}
	case EntityItem:
		if p := reg.ItemAt(int(idx)); p != nil {
			e = NewItemEntity(p, 1, mgl32.Vec3{})
		}
	}
	if e == nil {
		return nil, fmt.Errorf("%w: type %s proto %d", errBadEntity, typ, idx)
	}

	e.decode(r, reg)
	if r.Err() != nil {
		return nil, fmt.Errorf("decode %s: %w", typ, r.Err())
	}
	return e, nil
}

func (a *Actor) encode(w *protocol.Writer) {
	a.encodeBase(w)

	var flags uint8
	if a.order != nil {
		flags |= actorFlagOrder
	}
	if len(a.following) > 0 {
		flags |= actorFlagFollowing
	}
	if a.targetAngle != a.angle {
		flags |= actorFlagTargetAngle
	}

	w.U8(flags)
	w.U8(uint8(a.stance))
	w.U8(uint8(a.action))
	w.F32(a.hitPoints)
	w.Varint(int64(a.soundVariation))
	w.Varint(int64(a.faction))

	if flags&actorFlagOrder != 0 {
		EncodeOrder(w, a.order)
	}
	if flags&actorFlagFollowing != 0 {
		w.Uvarint(uint64(len(a.following)))
		for _, o := range a.following {
			EncodeOrder(w, o)
		}
	}
	if flags&actorFlagTargetAngle != 0 {
		w.F32(a.targetAngle)
	}
	a.inventory.encode(w)
}

func (a *Actor) decode(r *protocol.Reader, reg *Registry) {
	a.decodeBase(r)

	flags := r.U8()
	a.stance = Stance(r.U8())
	a.action = Action(r.U8())
	a.hitPoints = r.F32()
	a.soundVariation = int(r.Varint())
	a.faction = int(r.Varint())
	if r.Err() != nil {
		return
	}
	if a.stance >= stanceCount || a.action >= actionCount {
		r.Fail(errBadEntity)
		return
	}

	a.order, a.following = nil, nil
	if flags&actorFlagOrder != 0 {
		o, err := DecodeOrder(r)
		if err != nil {
			r.Fail(err)
			return
		}
		a.order = o
	}
	if flags&actorFlagFollowing != 0 {
		count := r.Uvarint()
		if count == 0 || count > maxFollowingOrders {
			r.Fail(errBadEntity)
			return
		}
		for i := uint64(0); i < count; i++ {
			o, err := DecodeOrder(r)
			if err != nil {
				r.Fail(err)
				return
			}
			a.following = append(a.following, o)
		}
	}
	a.targetAngle = a.angle
	if flags&actorFlagTargetAngle != 0 {
		a.targetAngle = r.F32()
	}
	a.inventory.decode(r, reg)
	a.diedFired = a.IsDead()
}

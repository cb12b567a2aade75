package game

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/iso-game/internal/physics"
	"github.com/annel0/iso-game/internal/vec"
)

// actorEvent событие, передаваемое текущему приказу
type actorEvent uint8

const (
	evInitOrder actorEvent = iota
	evThink
	evNextFrame
	evAnimFinished
	evFire
	evHit
	evSound
	evStep
	evPickup
)

type eventParams struct {
	offset   vec.Vec3
	leftFoot bool
}

// Actor персонаж: стойка, здоровье, инвентарь и очередь приказов
type Actor struct {
	EntityBase
	proto          *ActorProto
	stance         Stance
	action         Action
	faction        int
	hitPoints      float32
	soundVariation int
	inventory      Inventory
	targetAngle    float32

	order     *Order
	following []*Order
	ai        AI
	diedFired bool
}

// NewActor создаёт актёра в заданной стойке
func NewActor(proto *ActorProto, stance Stance) *Actor {
	a := &Actor{proto: proto, stance: stance, hitPoints: proto.HitPoints}
	a.init(a, proto.Sprite)
	a.mustAnimate(ActionIdle)
	return a
}

func (a *Actor) Type() EntityID            { return EntityActor }
func (a *Actor) Proto() *ActorProto        { return a.proto }
func (a *Actor) Stance() Stance            { return a.stance }
func (a *Actor) Action() Action            { return a.action }
func (a *Actor) Faction() int              { return a.faction }
func (a *Actor) SetFaction(f int)          { a.faction = f; a.replicate() }
func (a *Actor) HitPoints() float32        { return a.hitPoints }
func (a *Actor) SoundVariation() int       { return a.soundVariation }
func (a *Actor) SetSoundVariation(v int)   { a.soundVariation = v }
func (a *Actor) Inventory() *Inventory     { return &a.inventory }
func (a *Actor) TargetAngle() float32      { return a.targetAngle }
func (a *Actor) CurrentOrder() *Order      { return a.order }
func (a *Actor) FollowingOrders() []*Order { return a.following }
func (a *Actor) AI() AI                    { return a.ai }
func (a *Actor) SetAI(ai AI)               { a.ai = ai }
func (a *Actor) protoIndex() int           { return a.proto.Index }

// CurrentOrderKind тип текущего приказа или false, если приказа нет
func (a *Actor) CurrentOrderKind() (OrderKind, bool) {
	if a.order == nil {
		return 0, false
	}
	return a.order.Kind(), true
}

// SetDirAngle поворачивает актёра сразу, без плавного доворота
func (a *Actor) SetDirAngle(angle float32) {
	a.EntityBase.SetDirAngle(angle)
	a.targetAngle = angle
}

// IsDying сообщает, что текущий приказ Die
func (a *Actor) IsDying() bool {
	_, ok := a.orderData().(*DieOrder)
	return ok
}

// IsDead сообщает, что анимация смерти завершилась
func (a *Actor) IsDead() bool {
	d, ok := a.orderData().(*DieOrder)
	return ok && d.Dead
}

func (a *Actor) orderData() OrderData {
	if a.order == nil {
		return nil
	}
	return a.order.Data
}

// Flags реализует Entity
func (a *Actor) Flags() Flags {
	f := FlagActor | FlagDynamicEntity | FlagVisible
	if !a.IsDead() {
		f |= FlagColliding
	}
	return f
}

// BoundingBox зависит от стойки: пригнувшийся ниже, мёртвый плоский
func (a *Actor) BoundingBox() physics.Box {
	size := a.sprite.BBox
	switch a.stance {
	case StanceCrouch:
		size.Y = 5
	case StanceProne:
		size.Y = 2
	}
	if a.IsDead() {
		size.Y = 0
	}
	return physics.NewBox(a.pos, size.Float())
}

// Weapon экипированное оружие (или удар рукой)
func (a *Actor) Weapon() *WeaponProto {
	return a.inventory.WeaponProto(a.proto.Punch)
}

// Speed скорость движения для текущей стойки
func (a *Actor) Speed(run bool) float32 {
	if run && a.stance == StanceStand {
		return a.proto.Speeds[3]
	}
	return a.proto.Speeds[a.stance]
}

// SetOrder выдаёт актёру приказ.
// force = true прерывает текущий приказ, очищает очередь и сразу запускает новый.
// force = false прерывает текущий приказ мягко и оставляет новый единственным в очереди.
func (a *Actor) SetOrder(o *Order, force bool) bool {
	w := a.world
	if w == nil || w.IsClient() || o == nil || a.IsDying() {
		return false
	}
	if o.Kind() == OrderLookAt {
		if (a.order != nil && a.order.Kind() != OrderIdle) || len(a.following) > 0 {
			return false
		}
	}

	if force {
		if a.order != nil {
			a.order.Cancel()
			if _, moving := a.order.Data.(*MoveOrder); moving {
				a.fixPosition()
			}
		}
		a.following = nil
		a.order = o
		a.handleOrder(evInitOrder, eventParams{})
	} else {
		if a.order != nil {
			a.order.Cancel()
		}
		a.following = append(a.following[:0], o)
	}

	w.orderIssued(a, o, force)
	a.replicate()
	return true
}

func (a *Actor) think() {
	if a.world == nil {
		return
	}

	changed := false
	for a.order == nil || a.order.finished {
		switch {
		case a.order != nil && a.order.followup != nil:
			a.order = a.order.followup
		case len(a.following) > 0:
			a.order = a.following[0]
			a.following = a.following[1:]
		default:
			a.order = NewIdleOrder()
		}
		a.handleOrder(evInitOrder, eventParams{})
		changed = true
	}
	if changed {
		a.replicate()
	}

	a.handleOrder(evThink, eventParams{})

	if a.ai != nil && !a.IsClient() {
		a.ai.Think(a)
	}
}

// handleOrder передаёт событие обработчику текущего приказа
func (a *Actor) handleOrder(ev actorEvent, p eventParams) {
	o := a.order
	if o == nil {
		return
	}
	switch d := o.Data.(type) {
	case *IdleOrder:
		a.handleIdle(o, ev)
	case *MoveOrder:
		a.handleMove(o, d, ev)
	case *AttackOrder:
		a.handleAttack(o, d, ev, p)
	case *ChangeStanceOrder:
		a.handleChangeStance(o, d, ev)
	case *DieOrder:
		a.handleDie(o, d, ev)
	case *GetHitOrder:
		a.handleGetHit(o, d, ev)
	case *InteractOrder:
		a.handleInteract(o, d, ev)
	case *DropItemOrder:
		a.handleDropItem(o, d, ev)
	case *EquipItemOrder:
		a.handleEquipItem(o, d, ev)
	case *UnequipItemOrder:
		a.handleUnequipItem(o, d, ev)
	case *LookAtOrder:
		a.handleLookAt(o, d, ev)
	default:
		dataErrorf("unhandled order %T", d)
	}
}

func (a *Actor) handleIdle(o *Order, ev actorEvent) {
	if ev == evInitOrder {
		a.mustAnimate(ActionIdle)
	}
}

func (a *Actor) handleLookAt(o *Order, d *LookAtOrder, ev actorEvent) {
	switch ev {
	case evInitOrder:
		a.mustAnimate(ActionIdle)
		a.lookAt(d.Target.Float(), false)
	case evThink:
		if a.angle == a.targetAngle {
			o.finish()
		}
	}
}

func (a *Actor) nextFrame() {
	a.stepAnimation()
	a.EntityBase.SetDirAngle(vec.BlendAngles(a.angle, a.targetAngle, math.Pi/4))
	a.handleOrder(evNextFrame, eventParams{})
}

func (a *Actor) onAnimFinished() {
	a.handleOrder(evAnimFinished, eventParams{})
}

func (a *Actor) onFrameEvent(fe FrameEvent) {
	switch fe.Kind {
	case EventFire:
		a.handleOrder(evFire, eventParams{offset: fe.Offset})
	case EventHit:
		a.handleOrder(evHit, eventParams{})
	case EventPickup:
		if !a.IsClient() {
			a.handleOrder(evPickup, eventParams{})
		}
	case EventSound:
		if !a.IsServer() {
			a.handleOrder(evSound, eventParams{})
		}
	case EventStepLeft, EventStepRight:
		if !a.IsServer() && a.world != nil {
			a.world.playSound(a.ref, fe.Kind)
		}
	}
}

// animate запускает анимацию действия. Для обычных действий при отсутствии
// анимации с текущим оружием используется анимация без оружия.
func (a *Actor) animate(action Action) bool {
	weapon := a.Weapon().Class
	id := a.proto.AnimID(action, a.stance, weapon)
	if id == -1 && action.IsNormal() {
		id = a.proto.AnimID(action, a.stance, WeaponUnarmed)
	}
	if id == -1 {
		return false
	}
	a.action = action
	a.playSequence(id, true)
	return true
}

// mustAnimate как animate, но отсутствие анимации считается ошибкой данных
func (a *Actor) mustAnimate(action Action) {
	if !a.animate(action) {
		dataErrorf("actor %s: missing animation %s", a.proto.ID,
			AnimationName(a.stance, action, a.Weapon().Class))
	}
}

func (a *Actor) animateDeath(death DeathID) bool {
	id := a.proto.DeathAnimID(death)
	if id == -1 {
		return false
	}
	a.action = ActionDeath
	a.playSequence(id, true)
	return true
}

// lookAt задаёт целевой угол в сторону точки. atOnce поворачивает сразу.
func (a *Actor) lookAt(pos mgl32.Vec3, atOnce bool) {
	angle, ok := lookAtAngle(a.BoundingBox().Center(), pos)
	if !ok {
		return
	}
	a.targetAngle = angle
	if atOnce {
		a.EntityBase.SetDirAngle(angle)
	}
}

type followResult uint8

const (
	followMoved followResult = iota
	followFinished
	followCollided
)

// maxFollowStep максимальный шаг перемещения за одну проверку коллизий
const maxFollowStep = 1.0

// followPath двигает актёра вдоль пути на speed*dt
func (a *Actor) followPath(path Path, pp *PathPos, run bool) followResult {
	dist := a.Speed(run) * a.timeDelta()
	finished := false

	for dist > 0 && !finished {
		step := min(dist, maxFollowStep)
		dist -= step
		if path.Follow(pp, step) {
			finished = true
		}

		newPos := path.Pos(*pp)
		box := a.BoundingBox().Translate(newPos.Sub(a.pos)).Enclosing()

		if tile := a.world.FindAny(box, FlagTile|FlagColliding, EntityRef{}); tile.IsValid() {
			diff := a.world.RefBBox(tile).Max[1] - box.Min[1]
			if diff > 1 {
				a.fixPosition()
				return followCollided
			}
			if diff > 0 {
				newPos[1] += diff
				box = box.Translate(mgl32.Vec3{0, diff, 0})
			}
		}

		if a.world.FindAny(box.Shrink(0.05), FlagDynamicEntity|FlagColliding, a.ref).IsValid() {
			a.fixPosition()
			return followCollided
		}

		a.lookAt(newPos.Add(a.sprite.BBox.Float().Mul(0.5)), false)
		a.SetPos(newPos)
	}

	if finished {
		a.fixPosition()
		return followFinished
	}
	return followMoved
}

// fixPosition округляет позицию до целой и выталкивает актёра из тайлов (не выше двух единиц)
func (a *Actor) fixPosition() {
	a.SetPos(vec.Round(a.pos).Float())
	if a.world == nil {
		return
	}
	for i := 0; i < 2 && a.world.FindAny(a.BoundingBox(), FlagTile|FlagColliding, EntityRef{}).IsValid(); i++ {
		a.SetPos(a.pos.Add(mgl32.Vec3{0, 1, 0}))
	}
}

// fireProjectile выпускает снаряд из точки off (в системе координат спрайта) в сторону target.
// spread задаёт случайное отклонение направления.
func (a *Actor) fireProjectile(off vec.Vec3, target mgl32.Vec3, weapon *WeaponProto, spread float32) {
	if a.IsClient() || weapon.Projectile == nil {
		return
	}

	pos := a.BoundingBox().Center()
	pos[1] = a.pos[1]
	ox, oz := vec.RotateXZ(float32(off.X), float32(off.Z), a.ActualDirAngle()-math.Pi/2)
	pos = pos.Add(mgl32.Vec3{ox, float32(off.Y), oz})

	dir := target.Sub(pos)
	if dir.Len() < 1e-4 {
		return
	}
	dir = dir.Normalize()

	if spread > 0 {
		w := a.world
		h := vec.AngleToVector(vec.VectorToAngle(dir[0], dir[2]) + (w.Rand()*2-1)*math.Pi*spread)
		dir = mgl32.Vec3{h[0], dir[1] + (w.Rand()*2-1)*spread, h[1]}.Normalize()
	}

	p := NewProjectile(weapon.Projectile, pos, a.ActualDirAngle(), dir, a.ref)
	p.damage, p.damageType, p.force = weapon.Damage, weapon.DamageType, weapon.Force
	a.world.spawn(p)
}

// makeImpact наносит удар ближнего боя по цели через эффект попадания
func (a *Actor) makeImpact(target EntityRef, weapon *WeaponProto) {
	if a.IsClient() || weapon.Impact == nil || !target.IsValid() {
		return
	}
	im := NewImpact(weapon.Impact, a.pos)
	im.source, im.target = a.ref, target
	im.damage, im.damageType, im.force = weapon.Damage, weapon.DamageType, weapon.Force
	a.world.spawn(im)
}

// canEquip проверяет, может ли актёр экипировать предмет из стопки
func (a *Actor) canEquip(index int) bool {
	if index < 0 || index >= a.inventory.Len() {
		return false
	}
	item := a.inventory.Entry(index).Item
	switch item.Type {
	case ItemWeapon:
		return item.Weapon != nil && a.proto.CanEquipWeapon(item.Weapon.Class)
	case ItemArmour:
		return a.world != nil && a.world.assets.ArmourVariant(a.proto, item) != nil
	}
	return false
}

// updateArmour меняет прототип актёра под надетую броню. Ссылка на актёра сохраняется.
func (a *Actor) updateArmour() {
	if a.world == nil {
		return
	}
	p := a.world.assets.ArmourVariant(a.proto, a.inventory.Armour())
	if p == nil || p == a.proto {
		return
	}
	a.proto = p
	a.sprite = p.Sprite
	a.seq = -1
	if !a.animate(a.action) {
		a.mustAnimate(ActionIdle)
	}
	a.replicate()
}

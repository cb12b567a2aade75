package game

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/iso-game/internal/physics"
	"github.com/annel0/iso-game/internal/protocol"
	"github.com/annel0/iso-game/internal/vec"
)

// Projectile снаряд. Каждый такт трассирует пройденный отрезок,
// при попадании создаёт эффект, наносит урон и исчезает.
type Projectile struct {
	EntityBase
	proto       *ProjectileProto
	dir         mgl32.Vec3
	targetAngle float32
	spawner     EntityRef
	traveled    float32

	damage     float32
	damageType DamageType
	force      float32
}

// NewProjectile создаёт снаряд, летящий из pos в направлении dir
func NewProjectile(proto *ProjectileProto, pos mgl32.Vec3, initialAngle float32, dir mgl32.Vec3, spawner EntityRef) *Projectile {
	p := &Projectile{proto: proto, dir: dir.Normalize(), spawner: spawner, damageType: DamageUndefined}
	p.init(p, proto.Sprite)
	p.pos = pos
	p.targetAngle = vec.VectorToAngle(p.dir[0], p.dir[2])
	if proto.BlendAngles {
		p.SetDirAngle(initialAngle)
	} else {
		p.SetDirAngle(p.targetAngle)
	}
	return p
}

func (p *Projectile) Type() EntityID       { return EntityProjectile }
func (p *Projectile) Flags() Flags         { return FlagProjectile | FlagDynamicEntity | FlagVisible }
func (p *Projectile) Proto() *ProjectileProto { return p.proto }
func (p *Projectile) Dir() mgl32.Vec3      { return p.dir }
func (p *Projectile) Spawner() EntityRef   { return p.spawner }
func (p *Projectile) protoIndex() int      { return p.proto.Index }

func (p *Projectile) nextFrame() {
	p.stepAnimation()
	p.EntityBase.SetDirAngle(vec.BlendAngles(p.angle, p.targetAngle, math.Pi*0.01))
}

func (p *Projectile) think() {
	step := p.proto.Speed * p.timeDelta()
	if p.proto.MaxDistance > 0 {
		step = min(step, p.proto.MaxDistance-p.traveled)
	}

	seg := physics.Segment{Origin: p.pos, Dir: p.dir, Min: 0, Max: step}
	isect := p.world.Trace(seg, FlagAll|FlagColliding, p.spawner)
	dist := min(isect.Distance, step)
	p.SetPos(seg.At(dist))
	p.traveled += dist

	if !isect.IsEmpty() && isect.Distance <= step {
		p.hit(isect.Ref)
		return
	}
	if p.proto.MaxDistance > 0 && p.traveled >= p.proto.MaxDistance {
		p.Remove()
	}
}

func (p *Projectile) hit(ref ObjectRef) {
	if p.IsClient() {
		return
	}
	if p.proto.Impact != nil {
		p.world.spawn(NewImpact(p.proto.Impact, p.pos))
	}
	if e := p.world.RefEntity(ref); e != nil && p.damageType != DamageUndefined {
		e.OnImpact(p.damageType, p.damage, p.dir.Mul(p.force))
	}
	p.Remove()
}

func (p *Projectile) encode(w *protocol.Writer) {
	p.encodeBase(w)
	writeFloat3(w, p.dir)
	w.F32(p.targetAngle)
	w.F32(p.traveled)
	writeRef(w, p.spawner)
}

func (p *Projectile) decode(r *protocol.Reader, reg *Registry) {
	p.decodeBase(r)
	p.dir = readFloat3(r)
	p.targetAngle = r.F32()
	p.traveled = r.F32()
	p.spawner = readRef(r)
}

// Impact эффект попадания. Удар ближнего боя наносит урон цели в первый такт.
// Исчезает по окончании анимации.
type Impact struct {
	EntityBase
	proto   *ImpactProto
	source  EntityRef
	target  EntityRef
	applied bool

	damage     float32
	damageType DamageType
	force      float32
}

// NewImpact создаёт эффект попадания
func NewImpact(proto *ImpactProto, pos mgl32.Vec3) *Impact {
	im := &Impact{proto: proto, damageType: DamageUndefined}
	im.init(im, proto.Sprite)
	im.pos = pos
	return im
}

func (im *Impact) Type() EntityID      { return EntityImpact }
func (im *Impact) Flags() Flags        { return FlagImpact | FlagDynamicEntity | FlagVisible }
func (im *Impact) Proto() *ImpactProto { return im.proto }
func (im *Impact) protoIndex() int     { return im.proto.Index }

func (im *Impact) think() {
	if im.applied || im.IsClient() || !im.target.IsValid() {
		return
	}
	im.applied = true

	target := im.world.Entity(im.target)
	if target == nil || im.damageType == DamageUndefined {
		return
	}
	var force mgl32.Vec3
	if src := im.world.Entity(im.source); src != nil {
		d := target.BoundingBox().Center().Sub(src.BoundingBox().Center())
		d[1] = 0
		if d.Len() > 0 {
			force = d.Normalize().Mul(im.force)
		}
	}
	target.OnImpact(im.damageType, im.damage, force)
}

func (im *Impact) onAnimFinished() {
	if !im.IsClient() {
		im.Remove()
	}
}

func (im *Impact) encode(w *protocol.Writer) {
	im.encodeBase(w)
}

func (im *Impact) decode(r *protocol.Reader, reg *Registry) {
	im.decodeBase(r)
	im.applied = true
}

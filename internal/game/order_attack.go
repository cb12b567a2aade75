package game

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/iso-game/internal/vec"
)

// burstSpread дополнительный разброс на каждый следующий выстрел очереди
const burstSpread = 0.01

// attackTarget точка прицеливания: центр цели или заданная точка
func (a *Actor) attackTarget(d *AttackOrder) mgl32.Vec3 {
	if e := a.world.Entity(d.Target); e != nil {
		return e.BoundingBox().Center()
	}
	return d.TargetPos.Float()
}

func (a *Actor) handleAttack(o *Order, d *AttackOrder, ev actorEvent, p eventParams) {
	weapon := a.Weapon()

	switch ev {
	case evInitOrder:
		if d.Mode == AttackUndefined {
			d.Mode = weapon.DefaultMode()
		}
		if !weapon.HasMode(d.Mode) {
			o.finish()
			return
		}
		target := a.world.Entity(d.Target)
		if d.Mode.IsMelee() && (target == nil || !AreAdjacent(a, target)) {
			o.finish()
			return
		}
		if target != nil {
			d.TargetPos = vec.Round(target.BoundingBox().Center())
		}
		a.lookAt(a.attackTarget(d), true)
		d.Burst, d.Firing = 0, false
		if !a.animate(attackAction(d.Mode)) {
			o.finish()
		}

	case evFire:
		if !d.Mode.IsRanged() {
			return
		}
		if d.Mode == AttackBurst {
			d.Firing, d.FireOff = true, p.offset
			return
		}
		a.fireProjectile(p.offset, a.attackTarget(d), weapon, weapon.Spread)

	case evThink:
		if d.Firing && d.Burst < BurstRounds {
			a.fireProjectile(d.FireOff, a.attackTarget(d), weapon, weapon.Spread+burstSpread*float32(d.Burst))
			d.Burst++
		}

	case evHit:
		if d.Mode.IsMelee() {
			a.makeImpact(d.Target, weapon)
		}

	case evAnimFinished:
		d.Firing = false
		o.finish()
	}
}

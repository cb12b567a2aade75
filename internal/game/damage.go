package game

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// HitReactionChance вероятность того, что попадание прервёт текущее действие
	// (если актёр не стоит без дела)
	HitReactionChance = 0.5

	// DodgeChance вероятность уклонения от ударов, режущего и колющего урона
	DodgeChance = 0.2

	fallForceScale  = 0.2
	fallForceOffset = 0.5

	// FallForceThreshold сила удара, ниже которой (при стоянии на месте) актёр не падает
	FallForceThreshold = fallForceOffset / fallForceScale
)

// DodgeChanceFor вероятность уклонения от урона данного типа
func DodgeChanceFor(damageType DamageType) float32 {
	switch damageType {
	case DamageBludgeoning, DamageSlashing, DamagePiercing:
		return DodgeChance
	}
	return 0
}

// FallChanceFor вероятность падения от удара силы force. Движущийся актёр падает легче.
func FallChanceFor(damageType DamageType, force float32, action Action) float32 {
	mult := float32(1)
	switch action {
	case ActionWalk:
		mult = 1.25
	case ActionRun:
		mult = 1.5
	}
	x := force*mult*fallForceScale - fallForceOffset
	if damageType == DamageBludgeoning || damageType == DamageExplosive {
		x *= 1.25
	}
	if x <= 0 {
		return 0
	}
	r := x / (x + 1)
	return r * r
}

// DeathTypeFor выбирает вид смерти по типу урона и доле урона от максимального здоровья
func DeathTypeFor(damageType DamageType, damage, maxHitPoints float32) DeathID {
	rate := damage / maxHitPoints

	switch damageType {
	case DamagePlasma, DamageLaser:
		return DeathMelt
	case DamageElectric:
		return DeathElectrify
	case DamageFire:
		return DeathFire
	case DamageExplosive:
		if rate > 0.3 {
			return DeathExplode
		}
	case DamageSlashing:
		if rate > 0.2 {
			return DeathCutInHalf
		}
	case DamageBullet:
		if rate > 0.2 {
			return DeathBigHole
		}
	}
	return DeathNormal
}

func (a *Actor) dodgeChance(damageType DamageType) float32 { return DodgeChanceFor(damageType) }

func (a *Actor) fallChance(damageType DamageType, force mgl32.Vec3) float32 {
	return FallChanceFor(damageType, force.Len(), a.action)
}

func (a *Actor) deathType(damageType DamageType, damage float32) DeathID {
	return DeathTypeFor(damageType, damage, a.proto.HitPoints)
}

// OnImpact применяет урон: уклонение, падение, реакция на попадание или смерть
func (a *Actor) OnImpact(damageType DamageType, damage float32, force mgl32.Vec3) {
	if a.world == nil || a.IsClient() {
		return
	}
	if a.IsDying() {
		a.hitPoints -= damage
		return
	}

	current, _ := a.orderData().(*GetHitOrder)
	fallen := current != nil && current.IsFallen()
	w := a.world

	dodge := !fallen && w.Rand() <= a.dodgeChance(damageType)
	fall := !dodge && w.Rand() <= a.fallChance(damageType, force)

	if !dodge {
		a.hitPoints -= damage
	}

	switch {
	case a.hitPoints <= 0:
		a.SetOrder(NewDieOrder(a.deathType(damageType, damage)), true)
	case fall:
		fallTime := damage / a.proto.HitPoints * force.Len() * w.Rand()
		if fallen {
			current.FallTime += fallTime
		} else {
			a.SetOrder(NewFallOrder(force, fallTime), true)
		}
	case current == nil:
		kind, ok := a.CurrentOrderKind()
		if (ok && kind == OrderIdle) || w.Rand() > 1-HitReactionChance {
			a.SetOrder(NewGetHitOrder(dodge), true)
		}
	}
	a.replicate()

	if a.ai != nil {
		a.ai.OnImpact(a, damageType, damage, force)
	}
}

// dist2D расстояние между центрами коробок на плоскости карты
func dist2D(a, b Entity) float32 {
	ca, cb := a.BoundingBox().Center(), b.BoundingBox().Center()
	return float32(math.Hypot(float64(ca[0]-cb[0]), float64(ca[2]-cb[2])))
}

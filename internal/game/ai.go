package game

import (
	"github.com/go-gl/mathgl/mgl32"
)

// AI управляет актёром на авторитетной стороне
type AI interface {
	Think(a *Actor)
	OnImpact(a *Actor, damageType DamageType, damage float32, force mgl32.Vec3)
}

// SentryAI стоит на месте и атакует ближайшего видимого врага в радиусе
type SentryAI struct {
	Range  float32
	Mode   SentryMode
	target EntityRef
	alert  bool
}

// NewSentryAI создаёт охранника
func NewSentryAI(radius float32, mode SentryMode) *SentryAI {
	return &SentryAI{Range: radius, Mode: mode}
}

// Target текущая цель охранника
func (s *SentryAI) Target() EntityRef { return s.target }

func (s *SentryAI) Think(a *Actor) {
	if a.IsDying() || s.Mode == SentryPassive {
		return
	}
	if s.Mode == SentryDefensive && !s.alert {
		return
	}
	kind, ok := a.CurrentOrderKind()
	if !ok || kind != OrderIdle || len(a.following) > 0 {
		return
	}

	target := s.findTarget(a)
	s.target = target
	if !target.IsValid() {
		return
	}

	weapon := a.Weapon()
	mode := weapon.DefaultMode()
	if mode.IsMelee() && !AreAdjacent(a, a.world.Entity(target)) {
		a.SetOrder(NewMoveOrder(roundPos(a.world.Entity(target)), false), false)
		return
	}
	a.SetOrder(NewAttackOrder(mode, target), false)
}

func (s *SentryAI) OnImpact(a *Actor, damageType DamageType, damage float32, force mgl32.Vec3) {
	s.alert = true
}

func (s *SentryAI) findTarget(a *Actor) EntityRef {
	w := a.world
	best, bestDist := EntityRef{}, s.Range
	for _, ref := range w.Entities() {
		other, ok := w.Entity(ref).(*Actor)
		if !ok || other == a || other.faction == a.faction || other.IsDying() {
			continue
		}
		d := dist2D(a, other)
		if d > bestDist {
			continue
		}
		if !w.IsVisible(a.BoundingBox(), other.BoundingBox()) {
			continue
		}
		best, bestDist = ref, d
	}
	return best
}

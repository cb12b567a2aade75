package game

import "github.com/annel0/iso-game/internal/vec"

func (a *Actor) handleGetHit(o *Order, d *GetHitOrder, ev actorEvent) {
	switch ev {
	case evInitOrder:
		switch d.Mode {
		case GetHitReact:
			action := ActionGetHit
			if d.Dodge {
				action = ActionDodge
			}
			if !a.animate(action) {
				o.finish()
			}
		case GetHitFall:
			// Удар в спину роняет вперёд
			facing := vec.AngleToVector(a.angle)
			d.Back = facing[0]*d.Force[0]+facing[1]*d.Force[2] < 0
			if !a.animate(fallAction(d.Back)) {
				o.finish()
			}
		default:
			a.animateGetHit(o, d)
		}

	case evThink:
		if d.Mode != GetHitFallen {
			return
		}
		d.FallTime -= a.timeDelta()
		if d.FallTime <= 0 || o.cancelled {
			d.Mode = GetHitGetUp
			a.animateGetHit(o, d)
		}

	case evAnimFinished:
		switch d.Mode {
		case GetHitFall:
			d.Mode = GetHitFallen
			a.animateGetHit(o, d)
		case GetHitFallen:
		default:
			o.finish()
		}
	}
}

func (a *Actor) animateGetHit(o *Order, d *GetHitOrder) {
	var action Action
	switch {
	case d.Mode == GetHitFallen && d.Back:
		action = ActionFallenBack
	case d.Mode == GetHitFallen:
		action = ActionFallenForward
	case d.Back:
		action = ActionGetUpBack
	default:
		action = ActionGetUpForward
	}
	if !a.animate(action) {
		o.finish()
	}
}

func fallAction(back bool) Action {
	if back {
		return ActionFallBack
	}
	return ActionFallForward
}

package game

func (a *Actor) stanceStep(d *ChangeStanceOrder) {
	action := ActionStanceDown
	if d.Target > a.stance {
		action = ActionStanceUp
	}
	if !a.animate(action) {
		dataErrorf("actor %s: missing animation %s", a.proto.ID, AnimationName(a.stance, action, WeaponUnarmed))
	}
}

func (a *Actor) handleChangeStance(o *Order, d *ChangeStanceOrder, ev actorEvent) {
	switch ev {
	case evInitOrder:
		if d.Target == a.stance || !a.proto.CanChangeStance {
			o.finish()
			return
		}
		a.stanceStep(d)

	case evAnimFinished:
		if d.Target > a.stance {
			a.stance++
		} else {
			a.stance--
		}
		a.replicate()
		if a.stance == d.Target || o.cancelled {
			o.finish()
			return
		}
		a.stanceStep(d)
	}
}

package game

func (a *Actor) handleDie(o *Order, d *DieOrder, ev actorEvent) {
	playSound := ev == evSound

	switch ev {
	case evInitOrder:
		fallen := a.action.IsFallen()
		if (fallen || a.stance == StanceProne) && !d.Death.IsSpecial() {
			// Уже лежащий актёр не проигрывает анимацию смерти второй раз
			d.Death = DeathNormal
			playSound = true
			if a.stance == StanceProne && !fallen {
				a.mustAnimate(ActionFallForward)
			} else {
				a.markDead(d)
			}
		} else if !a.animateDeath(d.Death) && !a.animateDeath(DeathNormal) {
			dataErrorf("actor %s: missing animation %s", a.proto.ID, DeathAnimationName(DeathNormal))
		}

	case evAnimFinished:
		a.markDead(d)
	}

	if playSound && !a.IsServer() && a.world != nil {
		a.world.playSound(a.ref, EventSound)
	}
}

func (a *Actor) markDead(d *DieOrder) {
	if d.Dead {
		return
	}
	d.Dead = true
	a.replicate()
	if !a.diedFired && a.world != nil && !a.IsClient() {
		a.diedFired = true
		a.world.actorDied(a, d.Death)
	}
}

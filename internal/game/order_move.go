package game

import "github.com/annel0/iso-game/internal/vec"

func (a *Actor) handleMove(o *Order, d *MoveOrder, ev actorEvent) {
	switch ev {
	case evInitOrder:
		if d.Path.IsEmpty() {
			a.fixPosition()
			from := vec.Round(a.pos)
			grid := a.world.nav.FindPath(from.XZ(), d.Target.XZ())
			d.Path = BuildPath(grid, from.Y)
			d.PathPos = PathPos{}
		}
		if d.Path.IsEmpty() {
			o.finish()
			return
		}
		if a.stance != StanceStand {
			d.Run = false
		}
		if d.Run {
			a.mustAnimate(ActionRun)
		} else {
			a.mustAnimate(ActionWalk)
		}

	case evThink:
		switch a.followPath(d.Path, &d.PathPos, d.Run) {
		case followFinished:
			o.finish()
		case followCollided:
			d.Collided = true
			o.finish()
		}
	}
}
